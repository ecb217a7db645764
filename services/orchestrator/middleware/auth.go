// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware holds the Gin middleware shared by the orchestrator
// routes.
//
// # Session Tokens
//
// Sign-in issues a JWT whose "uid" claim is the user id. Browsers get it as
// the httpOnly "token" cookie; scripts and the CLI send the same JWT as
// "Authorization: Bearer <jwt>". The cookie wins when both are present.
//
//	cookie "token" ──┐
//	                 ├─► AuthProvider.Validate ─► AuthInfo{UserID} on *gin.Context
//	bearer header ───┘                 │
//	                                   └─► 401 {"error": ...}
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/igrowicare/workmate/pkg/extensions"
)

// TokenCookieName is the cookie carrying the session JWT.
const TokenCookieName = "token"

const authInfoKey = "workmate_auth_info"

// SetAuthInfo attaches the validated session to c. The mood, assessment and
// posts handlers read it back with GetAuthInfo; a nil info leaves the
// request anonymous.
func SetAuthInfo(c *gin.Context, info *extensions.AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo returns the session attached by AuthMiddleware, or nil on
// routes outside the authenticated group.
func GetAuthInfo(c *gin.Context) *extensions.AuthInfo {
	v, ok := c.Get(authInfoKey)
	if !ok {
		return nil
	}
	info, _ := v.(*extensions.AuthInfo)
	return info
}

// AuthMiddleware rejects requests whose session JWT is missing, expired or
// signed with another secret. Only ErrUnauthorized is reported as such;
// any other provider failure is "authentication failed". Both are 401.
//
//	authed := router.Group("/")
//	authed.Use(middleware.AuthMiddleware(opts.AuthProvider))
func AuthMiddleware(provider extensions.AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := provider.Validate(c.Request.Context(), sessionToken(c))
		switch {
		case errors.Is(err, extensions.ErrUnauthorized):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		case err != nil:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
			return
		}
		SetAuthInfo(c, info)
		c.Next()
	}
}

// sessionToken prefers the cookie and falls back to the bearer header.
func sessionToken(c *gin.Context) string {
	if v, err := c.Cookie(TokenCookieName); err == nil {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return extractBearerToken(c)
}

// extractBearerToken returns the JWT from "Authorization: Bearer <jwt>".
// The scheme is matched case-insensitively; anything else yields "".
func extractBearerToken(c *gin.Context) string {
	scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
