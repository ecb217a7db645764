// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "workmate_request_id"

// RequestLogger assigns a request id (reusing the client's when present)
// and logs one line per request. Health checks are not logged.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)
		c.Set(requestIDKey, requestID)

		c.Next()

		if path == "/health" || path == "/health/ready" || path == "/metrics" {
			return
		}
		status := c.Writer.Status()
		logger := slog.Default().With(
			"request_id", requestID,
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		)
		switch {
		case status >= 500:
			logger.Error("Request completed with server error")
		case status >= 400:
			logger.Warn("Request completed with client error")
		default:
			logger.Info("Request completed")
		}
	}
}

// GetRequestID returns the id set by RequestLogger, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
