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
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igrowicare/workmate/pkg/extensions"
)

func TestJWTAuthProvider_RoundTrip(t *testing.T) {
	p := NewJWTAuthProvider("s3cret")

	token, err := p.Issue(3, time.Hour)
	require.NoError(t, err)
	info, err := p.Validate(context.Background(), token)

	require.NoError(t, err)
	assert.Equal(t, int64(3), info.UserID)
	assert.Greater(t, info.ExpiresAtUnix, time.Now().Unix())
}

func TestJWTAuthProvider_Rejects(t *testing.T) {
	p := NewJWTAuthProvider("s3cret")
	other := NewJWTAuthProvider("other")

	expired := NewJWTAuthProvider("s3cret")
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, err := expired.Issue(3, time.Hour)
	require.NoError(t, err)

	foreignToken, err := other.Issue(3, time.Hour)
	require.NoError(t, err)

	noUID, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"uid": 3}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"expired", expiredToken},
		{"wrong secret", foreignToken},
		{"missing uid", noUID},
		{"wrong algorithm", hs512},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Validate(context.Background(), tt.token)
			assert.ErrorIs(t, err, extensions.ErrUnauthorized)
		})
	}
}

func TestNewJWTAuthProvider_DefaultSecret(t *testing.T) {
	token, err := NewJWTAuthProvider(DefaultJWTSecret).Issue(9, time.Minute)
	require.NoError(t, err)

	info, err := NewJWTAuthProvider("").Validate(context.Background(), token)

	require.NoError(t, err)
	assert.Equal(t, int64(9), info.UserID)
}

// =============================================================================
// Rate limiting / request id
// =============================================================================

func TestRateLimiter_BurstThenReject(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{PerMinute: 1, Burst: 2})
	fixed := time.Now()
	rl.now = func() time.Time { return fixed }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "keys have separate buckets")
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{})
	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("a"))
	}
}

func TestRateLimiter_PrunesIdle(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{PerMinute: 60, Burst: 1, IdleTTL: time.Minute})
	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.Allow("old")

	now = now.Add(2 * time.Minute)
	rl.Allow("new")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.entries, "old")
	assert.Contains(t, rl.entries, "new")
}

func TestRateLimiter_Middleware429(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{PerMinute: 1, Burst: 1})
	router := gin.New()
	router.Use(rl.Middleware(func(*gin.Context) string { return "same" }))
	router.GET("/chat", func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest("GET", "/chat", nil))
	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest("GET", "/chat", nil))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestRequestLogger_RequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestLogger())
	router.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/x", nil))

		id := w.Header().Get(RequestIDHeader)
		assert.Len(t, id, 36)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("propagated", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/x", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		router.ServeHTTP(w, req)

		assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "abc-123", w.Body.String())
	})
}
