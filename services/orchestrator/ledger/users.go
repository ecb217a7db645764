// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/igrowicare/workmate/pkg/extensions"
)

// UserRepository reads the users table.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository wraps an open pool.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetUser implements extensions.UserDirectory.
func (r *UserRepository) GetUser(ctx context.Context, id int64) (*extensions.User, error) {
	var u extensions.User
	err := r.db.QueryRowContext(ctx, `SELECT id, name, email FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, extensions.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &u, nil
}

var _ extensions.UserDirectory = (*UserRepository)(nil)
