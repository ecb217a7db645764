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
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is anything readiness depends on.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandleHealth serves GET /health.
func HandleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// HandleReady serves GET /health/ready. Each named dependency is pinged
// with a 2s budget; any failure yields 503.
func HandleReady(deps map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := make(gin.H, len(deps))
		ready := true
		for name, p := range deps {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			err := p.Ping(ctx)
			cancel()
			if err != nil {
				slog.Warn("Readiness check failed", "dependency", name, "error", err)
				checks[name] = "unavailable"
				ready = false
				continue
			}
			checks[name] = "ok"
		}

		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": checks})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
	}
}
