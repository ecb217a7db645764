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
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig bounds requests per caller.
type RateLimitConfig struct {
	// PerMinute is the sustained rate. Zero disables limiting.
	PerMinute int

	// Burst is the bucket size.
	Burst int

	// IdleTTL drops limiters not used for this long.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig allows 30 chat turns a minute with a burst of 5.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{PerMinute: 30, Burst: 5, IdleTTL: 10 * time.Minute}
}

// KeyFunc picks the limiter bucket for a request.
type KeyFunc func(c *gin.Context) string

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per key.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	config  RateLimitConfig
	now     func() time.Time
}

// NewRateLimiter creates a limiter set.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultRateLimitConfig().IdleTTL
	}
	return &RateLimiter{
		entries: make(map[string]*limiterEntry),
		config:  config,
		now:     time.Now,
	}
}

// Allow reports whether key may proceed now.
func (r *RateLimiter) Allow(key string) bool {
	if r.config.PerMinute <= 0 {
		return true
	}
	now := r.now()

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(float64(r.config.PerMinute)/60), r.config.Burst)}
		r.entries[key] = e
	}
	e.lastSeen = now
	r.prune(now)
	r.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// prune must be called with mu held.
func (r *RateLimiter) prune(now time.Time) {
	for key, e := range r.entries {
		if now.Sub(e.lastSeen) > r.config.IdleTTL {
			delete(r.entries, key)
		}
	}
}

// Middleware rejects over-limit requests with 429.
func (r *RateLimiter) Middleware(key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.Allow(key(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests",
			})
			return
		}
		c.Next()
	}
}

// ClientIPKey buckets by client address.
func ClientIPKey(c *gin.Context) string {
	return c.ClientIP()
}
