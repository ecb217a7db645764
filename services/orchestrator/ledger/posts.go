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
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrEmptyPost is returned when a post has no content after trimming.
var ErrEmptyPost = errors.New("post content is empty")

const postSelect = `SELECT p.id, p.author_id, u.name, p.content, p.image_url, p.created_at, p.updated_at
FROM posts p JOIN users u ON u.id = p.author_id`

// CreatePost implements Ledger. Content is trimmed; a blank imageURL is
// stored as NULL.
func (l *MySQLLedger) CreatePost(ctx context.Context, authorID int64, content string, imageURL *string) (*Post, error) {
	ctx, span := ledgerTracer.Start(ctx, "MySQLLedger.CreatePost")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", authorID))

	if authorID <= 0 {
		return nil, ErrInvalidUser
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyPost
	}
	if imageURL != nil && strings.TrimSpace(*imageURL) == "" {
		imageURL = nil
	}

	res, err := l.db.ExecContext(ctx,
		`INSERT INTO posts (author_id, content, image_url) VALUES (?, ?, ?)`,
		authorID, content, imageURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert post")
		return nil, fmt.Errorf("insert post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}

	post, err := scanPost(l.db.QueryRowContext(ctx, postSelect+` WHERE p.id = ?`, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read post")
		return nil, fmt.Errorf("read post %d: %w", id, err)
	}
	return &post, nil
}

// ListPosts implements Ledger. limit is clamped with ClampPostLimit.
func (l *MySQLLedger) ListPosts(ctx context.Context, limit int) ([]Post, error) {
	rows, err := l.db.QueryContext(ctx,
		postSelect+` ORDER BY p.created_at DESC, p.id DESC LIMIT ?`,
		ClampPostLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := make([]Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

func scanPost(row interface{ Scan(dest ...any) error }) (Post, error) {
	var (
		p     Post
		image sql.NullString
	)
	if err := row.Scan(&p.ID, &p.AuthorID, &p.AuthorName, &p.Content, &image, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Post{}, err
	}
	if image.Valid {
		p.ImageURL = &image.String
	}
	return p, nil
}
