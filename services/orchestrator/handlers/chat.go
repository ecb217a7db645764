// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/igrowicare/workmate/services/orchestrator/datatypes"
	"github.com/igrowicare/workmate/services/orchestrator/ledger"
	"github.com/igrowicare/workmate/services/orchestrator/observability"
	"github.com/igrowicare/workmate/services/orchestrator/services"
)

var chatTracer = otel.Tracer("workmate.orchestrator.handlers")

// publicMessages is the user-facing text per failure kind. Internal causes
// are logged, never returned.
var publicMessages = map[services.ErrorKind]string{
	services.KindUpstreamUnavailable: "the assistant is temporarily unavailable, please try again",
	services.KindMalformedInput:      "invalid request",
	services.KindTimeout:             "the assistant took too long to answer, please try again",
	services.KindInternal:            "internal error",
}

// ChatDeps are the collaborators of the chat endpoints. Ledger and Metrics
// may be nil.
type ChatDeps struct {
	Pipeline services.Runner
	Ledger   ledger.Ledger
	Metrics  *observability.PipelineMetrics
}

// HandleChat serves POST /chat.
//
// The mood, when present, is written to the ledger before the pipeline
// runs, so it is recorded even if answering fails.
func HandleChat(deps ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Error:     "invalid request body",
				ErrorKind: string(services.KindMalformedInput),
			})
			return
		}
		if err := req.Validate(); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Error:     validationMessage(err),
				ErrorKind: string(services.KindMalformedInput),
			})
			return
		}
		req.EnsureDefaults()
		span.SetAttributes(attribute.String("session.id", req.SessionID), attribute.Int64("user.id", req.UserID))

		status, body := runChatTurn(ctx, deps, req)
		if status != http.StatusOK {
			span.SetStatus(codes.Error, "chat turn failed")
		}
		c.JSON(status, body)
	}
}

// runChatTurn is shared by the HTTP and websocket transports. req must be
// validated and defaulted.
func runChatTurn(ctx context.Context, deps ChatDeps, req datatypes.ChatRequest) (int, any) {
	mood := req.ParsedMood()
	earned, total := recordChatMood(ctx, deps, req.UserID, mood)

	resp, err := deps.Pipeline.Run(ctx, datatypes.PipelineRequest{
		SessionID: req.SessionID,
		Question:  req.Message,
		Mood:      mood,
	})
	if err != nil {
		pe := services.AsPipelineError(err)
		if pe == nil {
			slog.Error("Chat pipeline returned an untyped error", "error", err)
			return http.StatusInternalServerError, datatypes.ErrorResponse{
				Error:     publicMessages[services.KindInternal],
				ErrorKind: string(services.KindInternal),
			}
		}
		return pe.Kind.HTTPStatus(), datatypes.ErrorResponse{
			Error:     publicMessages[pe.Kind],
			ErrorKind: string(pe.Kind),
		}
	}

	return http.StatusOK, datatypes.ChatResponse{
		Reply:        resp.Reply,
		PointsEarned: earned,
		TotalPoints:  total,
	}
}

// recordChatMood applies the points rule for the chat's mood and returns the
// points outcome. Ledger failures are logged and reported as no points.
func recordChatMood(ctx context.Context, deps ChatDeps, userID int64, mood datatypes.Mood) (int, *int) {
	if deps.Ledger == nil || userID <= 0 {
		return 0, nil
	}

	if mood == "" {
		total, err := deps.Ledger.TotalPoints(ctx, userID)
		if err != nil {
			slog.Warn("Failed to read total points", "user_id", userID, "error", err)
			return 0, nil
		}
		return 0, &total
	}

	res, err := deps.Ledger.RecordMood(ctx, userID, mood)
	if err != nil {
		slog.Warn("Failed to record chat mood", "user_id", userID, "mood", mood, "error", err)
		return 0, nil
	}
	deps.Metrics.RecordMoodCheckin(res.PointsEarned > 0)
	total := res.TotalPoints
	return res.PointsEarned, &total
}
