// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned by AuthProvider implementations when a token
// is missing, malformed, expired, or signed with the wrong key.
//
// Callers should use errors.Is to detect it:
//
//	if errors.Is(err, extensions.ErrUnauthorized) {
//	    c.AbortWithStatusJSON(http.StatusUnauthorized, ...)
//	}
var ErrUnauthorized = errors.New("unauthorized")

// ErrUserNotFound is returned by UserDirectory when the token subject does
// not resolve to a stored user.
var ErrUserNotFound = errors.New("user not found")

// AuthInfo describes the authenticated caller.
//
// # Description
//
// Produced by AuthProvider.Validate and stored on the gin context by the
// auth middleware. Handlers read it back with middleware.GetAuthInfo.
//
// # Fields
//
//   - UserID: Numeric user id carried in the token's "uid" claim
//   - ExpiresAtUnix: Token expiry, 0 when the token carries none
type AuthInfo struct {
	UserID        int64
	ExpiresAtUnix int64
}

// AuthProvider validates a session token.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type AuthProvider interface {
	// Validate parses the raw token string and returns the caller identity.
	// An empty token must return ErrUnauthorized.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// User is the public profile returned by GET /auth/me.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UserDirectory resolves user ids to public profiles.
type UserDirectory interface {
	// GetUser returns ErrUserNotFound when no row matches id.
	GetUser(ctx context.Context, id int64) (*User, error)
}
