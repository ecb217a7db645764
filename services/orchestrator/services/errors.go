// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a pipeline failure so the transport can choose a
// status code without parsing error text.
type ErrorKind string

const (
	// KindUpstreamUnavailable means the embedder, vector index or LLM failed.
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"

	// KindMalformedInput means the request was rejected before any stage ran.
	KindMalformedInput ErrorKind = "malformed_input"

	// KindTimeout means a stage ran out of time or the caller went away.
	KindTimeout ErrorKind = "timeout"

	// KindInternal means the session store failed.
	KindInternal ErrorKind = "internal"
)

// HTTPStatus maps the kind to the status code used by the HTTP layer.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindMalformedInput:
		return http.StatusBadRequest
	case KindUpstreamUnavailable:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether resubmitting the same turn may succeed.
func (k ErrorKind) Retryable() bool {
	return k == KindUpstreamUnavailable || k == KindTimeout
}

// PipelineError is the typed failure of ChatPipeline.Run.
//
// # Fields
//
//   - Kind: Failure class
//   - Stage: The stage that failed
//   - Err: Underlying cause, available through errors.Unwrap
//
// # Example
//
//	var pe *PipelineError
//	if errors.As(err, &pe) {
//	    c.JSON(pe.Kind.HTTPStatus(), gin.H{"error": pe.Error()})
//	}
type PipelineError struct {
	Kind  ErrorKind
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

// Unwrap returns the cause.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// IsPipelineError reports whether err wraps a *PipelineError.
func IsPipelineError(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe)
}

// AsPipelineError returns the wrapped *PipelineError or nil.
func AsPipelineError(err error) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return nil
}

func malformed(format string, args ...any) *PipelineError {
	return &PipelineError{Kind: KindMalformedInput, Stage: StageReceived, Err: fmt.Errorf(format, args...)}
}

// classify picks the kind for a failure of an upstream call.
func classify(stage Stage, err error) *PipelineError {
	kind := KindUpstreamUnavailable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = KindTimeout
	}
	return &PipelineError{Kind: kind, Stage: stage, Err: err}
}
