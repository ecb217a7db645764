// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"errors"
	"fmt"
	"net/http"
)

// RetrievalError wraps a vector index failure that carried a status code.
//
// # Fields
//
//   - StatusCode: HTTP status reported by the index (0 when unknown)
//   - Message: Error text from the index
//   - Retryable: True for 429, 502, 503, 504 and transport failures
//
// # Example
//
//	var re *RetrievalError
//	if errors.As(err, &re) && re.Retryable {
//	    // back off and retry
//	}
type RetrievalError struct {
	StatusCode int
	Message    string
	Retryable  bool
	Err        error
}

// Error implements the error interface.
func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval error (status %d): %s", e.StatusCode, e.Message)
}

// Unwrap returns the underlying client error.
func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// IsRetrievalError reports whether err wraps a *RetrievalError.
func IsRetrievalError(err error) bool {
	var re *RetrievalError
	return errors.As(err, &re)
}

func isRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0, http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
