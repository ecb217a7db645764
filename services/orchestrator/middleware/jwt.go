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
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/igrowicare/workmate/pkg/extensions"
)

// DefaultJWTSecret is the development secret used when none is configured.
const DefaultJWTSecret = "dev_secret"

// SessionClaims is the payload of the session JWT. UID is the users.id.
type SessionClaims struct {
	UID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// JWTAuthProvider validates HS256 session tokens.
//
// # Thread Safety
//
// Safe for concurrent use; holds no mutable state.
type JWTAuthProvider struct {
	secret []byte
	now    func() time.Time
}

// NewJWTAuthProvider creates a provider for secret. An empty secret falls
// back to DefaultJWTSecret.
func NewJWTAuthProvider(secret string) *JWTAuthProvider {
	if secret == "" {
		secret = DefaultJWTSecret
	}
	return &JWTAuthProvider{secret: []byte(secret), now: time.Now}
}

// Validate implements extensions.AuthProvider. Every failure wraps
// extensions.ErrUnauthorized.
func (p *JWTAuthProvider) Validate(_ context.Context, token string) (*extensions.AuthInfo, error) {
	if token == "" {
		return nil, extensions.ErrUnauthorized
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", extensions.ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: %v", extensions.ErrUnauthorized, err)
	}
	if claims.UID <= 0 {
		return nil, fmt.Errorf("%w: missing uid claim", extensions.ErrUnauthorized)
	}

	info := &extensions.AuthInfo{UserID: claims.UID}
	if claims.ExpiresAt != nil {
		info.ExpiresAtUnix = claims.ExpiresAt.Unix()
	}
	return info, nil
}

// Issue signs a token for uid valid for ttl.
func (p *JWTAuthProvider) Issue(uid int64, ttl time.Duration) (string, error) {
	now := p.now()
	claims := SessionClaims{
		UID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

var _ extensions.AuthProvider = (*JWTAuthProvider)(nil)
