// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package services holds the business logic of the workmate orchestrator,
// separated from the HTTP handlers.
//
// The centre piece is ChatPipeline, which turns one user utterance plus the
// session's prior turns into a grounded answer:
//
//	Received ─► Contextualizing ─► Retrieving ─► Generating ─► Committing ─► Completed
//	               (skipped when        │             │             │
//	                history empty)      └─────────────┴─────────────┴──► Failed
//
// Services are designed to be:
//   - Testable: Dependencies are injected via constructors
//   - Traceable: All methods accept context for distributed tracing
package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/igrowicare/workmate/services/orchestrator/conversation"
	"github.com/igrowicare/workmate/services/orchestrator/datatypes"
	"github.com/igrowicare/workmate/services/orchestrator/observability"
	"github.com/igrowicare/workmate/services/orchestrator/retrieval"
)

// pipelineTracer is the OpenTelemetry tracer for ChatPipeline operations.
var pipelineTracer = otel.Tracer("workmate.orchestrator.services.pipeline")

// Stage is a state of the pipeline state machine.
type Stage string

const (
	StageReceived        Stage = "received"
	StageContextualizing Stage = "contextualizing"
	StageRetrieving      Stage = "retrieving"
	StageGenerating      Stage = "generating"
	StageCommitting      Stage = "committing"
	StageCompleted       Stage = "completed"
	StageFailed          Stage = "failed"
)

// Runner is what the transport layer depends on.
type Runner interface {
	Run(ctx context.Context, req datatypes.PipelineRequest) (*datatypes.PipelineResponse, error)
}

// ChatPipeline orchestrates one conversational turn.
//
// # Description
//
// A run holds the session's lock from the history read to the commit, so
// two requests for the same session are served one after the other and an
// answer built from stale history can never be appended after a newer one.
// Runs for different sessions proceed concurrently.
//
// Only a fully successful run commits, and it commits the original question
// (never the rewritten query) with the answer. Any failure leaves the
// history untouched and returns a *PipelineError.
//
// # Thread Safety
//
// Safe for concurrent use.
type ChatPipeline struct {
	store          conversation.SessionStore
	contextualizer conversation.Contextualizer
	retriever      retrieval.ContextRetriever
	generator      Generator
	metrics        *observability.PipelineMetrics
}

// NewChatPipeline wires the pipeline. metrics may be nil.
func NewChatPipeline(
	store conversation.SessionStore,
	contextualizer conversation.Contextualizer,
	retriever retrieval.ContextRetriever,
	generator Generator,
	metrics *observability.PipelineMetrics,
) *ChatPipeline {
	return &ChatPipeline{
		store:          store,
		contextualizer: contextualizer,
		retriever:      retriever,
		generator:      generator,
		metrics:        metrics,
	}
}

// Run executes one turn.
//
// # Inputs
//
//   - ctx: Cancels the in-flight stage when the caller goes away. Each
//     upstream stage also applies its own timeout.
//   - req: SessionID and Question are required.
//
// # Outputs
//
//   - *datatypes.PipelineResponse: Set only on success.
//   - error: Always a *PipelineError on failure.
func (p *ChatPipeline) Run(ctx context.Context, req datatypes.PipelineRequest) (*datatypes.PipelineResponse, error) {
	ctx, span := pipelineTracer.Start(ctx, "ChatPipeline.Run")
	defer span.End()

	if strings.TrimSpace(req.SessionID) == "" {
		return nil, p.fail(span, malformed("session id is required"))
	}
	if strings.TrimSpace(req.Question) == "" {
		return nil, p.fail(span, malformed("question is required"))
	}
	span.SetAttributes(
		attribute.String("session.id", req.SessionID),
		attribute.String("request.mood", string(req.Mood)),
	)

	unlock, err := p.store.Lock(ctx, req.SessionID)
	if err != nil {
		return nil, p.fail(span, classify(StageReceived, err))
	}
	defer unlock()

	history, err := p.store.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		return nil, p.fail(span, &PipelineError{Kind: KindInternal, Stage: StageReceived, Err: err})
	}
	span.SetAttributes(attribute.Int("session.turns", len(history)))

	// Contextualizing
	query := req.Question
	rewritten := false
	if len(history) > 0 {
		start := time.Now()
		query, err = p.contextualizer.Contextualize(ctx, req.Question, history)
		p.metrics.ObserveStage(string(StageContextualizing), time.Since(start))
		if err != nil {
			return nil, p.fail(span, classify(StageContextualizing, err))
		}
		rewritten = true
	}

	// Retrieving
	start := time.Now()
	retrieved, err := p.retriever.Retrieve(ctx, query)
	p.metrics.ObserveStage(string(StageRetrieving), time.Since(start))
	if err != nil {
		return nil, p.fail(span, classify(StageRetrieving, err))
	}
	span.SetAttributes(attribute.Int("retrieval.chunks", len(retrieved.Chunks)))

	// Generating
	start = time.Now()
	answer, err := p.generator.Generate(ctx, GenerateInput{
		Question: req.Question,
		Context:  retrieved.Context,
		History:  history,
		Mood:     req.Mood,
	})
	p.metrics.ObserveStage(string(StageGenerating), time.Since(start))
	if err != nil {
		return nil, p.fail(span, classify(StageGenerating, err))
	}

	// Committing
	err = p.store.Append(ctx, req.SessionID, datatypes.UserTurn(req.Question), datatypes.AssistantTurn(answer))
	if err != nil {
		return nil, p.fail(span, &PipelineError{Kind: KindInternal, Stage: StageCommitting, Err: err})
	}
	if counter, ok := p.store.(interface{ Len() int }); ok {
		p.metrics.SetSessionsActive(counter.Len())
	}

	p.metrics.RecordRun(true)
	slog.Debug("Chat pipeline completed",
		"session_id", req.SessionID,
		"rewritten", rewritten,
		"chunks", len(retrieved.Chunks),
	)
	return &datatypes.PipelineResponse{
		Reply:     answer,
		Query:     query,
		Rewritten: rewritten,
		Chunks:    retrieved.Chunks,
	}, nil
}

// fail records the failure on the span, metrics and log, and returns pe.
func (p *ChatPipeline) fail(span trace.Span, pe *PipelineError) *PipelineError {
	span.RecordError(pe)
	span.SetStatus(codes.Error, string(pe.Stage)+" failed")
	span.SetAttributes(
		attribute.String("pipeline.failed_stage", string(pe.Stage)),
		attribute.String("pipeline.error_kind", string(pe.Kind)),
	)
	p.metrics.RecordStageError(string(pe.Stage), string(pe.Kind))
	p.metrics.RecordRun(false)
	slog.Warn("Chat pipeline failed", "stage", pe.Stage, "kind", pe.Kind, "error", pe.Err)
	return pe
}

var _ Runner = (*ChatPipeline)(nil)
