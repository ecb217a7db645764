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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/igrowicare/workmate/pkg/extensions"
	"github.com/igrowicare/workmate/services/orchestrator/middleware"
)

// HandleAuthMe serves GET /auth/me. Requires AuthMiddleware. The body is
// exactly {id, name, email}.
func HandleAuthMe(users extensions.UserDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := middleware.GetAuthInfo(c)
		if auth == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		user, err := users.GetUser(c.Request.Context(), auth.UserID)
		if errors.Is(err, extensions.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if err != nil {
			slog.Error("Failed to load user", "user_id", auth.UserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
			return
		}
		c.JSON(http.StatusOK, user)
	}
}
