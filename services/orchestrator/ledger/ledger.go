// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ledger stores the well-being side of workmate in MySQL: daily mood
// entries, the points they earn, self-assessments, and the user directory.
//
// # Points Rule
//
// The first mood entry of a user on a calendar day awards one point. Later
// entries on the same day overwrite the mood and score and award nothing.
// The rule is enforced by the unique key (user_id, entry_date) together with
// INSERT ... ON DUPLICATE KEY UPDATE, whose affected-row count tells a fresh
// insert (1) apart from an update (2, or 0 when nothing changed).
//
// The ledger shares no transaction with the chat pipeline.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/igrowicare/workmate/services/orchestrator/datatypes"
)

// ErrInvalidUser is returned for user ids that are not positive.
var ErrInvalidUser = errors.New("invalid user id")

// ErrInvalidMood is re-exported so callers need not import datatypes.
var ErrInvalidMood = datatypes.ErrInvalidMood

const (
	// DefaultHistoryDays is used when a history request names no window.
	DefaultHistoryDays = 30

	// MaxHistoryDays caps the history window.
	MaxHistoryDays = 365

	// DefaultAssessmentLimit and MaxAssessmentLimit bound assessment history.
	DefaultAssessmentLimit = 10
	MaxAssessmentLimit     = 100

	// DefaultPostLimit and MaxPostLimit bound one page of the posts feed.
	DefaultPostLimit = 50
	MaxPostLimit     = 200

	// dateLayout is the wire and column format of an entry date.
	dateLayout = "2006-01-02"
)

// MoodResult is the outcome of RecordMood.
type MoodResult struct {
	PointsEarned int `json:"points_earned"`
	TotalPoints  int `json:"total_points"`
	MoodScore    int `json:"mood_score"`
}

// MoodEntry is one stored daily mood.
type MoodEntry struct {
	Date      string         `json:"date"`
	Mood      datatypes.Mood `json:"mood"`
	MoodScore int            `json:"mood_score"`
}

// Assessment is one stored self-assessment.
type Assessment struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Q1          int       `json:"q1"`
	Q2          int       `json:"q2"`
	Q3          int       `json:"q3"`
	Q4          int       `json:"q4"`
	Total       int       `json:"total"`
	Level       Level     `json:"level"`
	Advice      string    `json:"advice"`
	ShareWithHR bool      `json:"share_with_hr"`
	CreatedAt   time.Time `json:"created_at"`
}

// Post is one community feed entry joined with its author's name.
type Post struct {
	ID         int64     `json:"id"`
	AuthorID   int64     `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	ImageURL   *string   `json:"image_url"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Ledger is the capability the HTTP layer depends on.
type Ledger interface {
	// RecordMood stores today's mood and applies the points rule.
	RecordMood(ctx context.Context, userID int64, mood datatypes.Mood) (*MoodResult, error)

	// TotalPoints returns 0 for users with no points row.
	TotalPoints(ctx context.Context, userID int64) (int, error)

	// Today returns nil, nil when the user has no entry today.
	Today(ctx context.Context, userID int64) (*MoodEntry, error)

	// History returns entries of the last days days, newest first.
	History(ctx context.Context, userID int64, days int) ([]MoodEntry, error)

	// Streak counts consecutive days with an entry, ending today.
	Streak(ctx context.Context, userID int64) (int, error)

	CreateAssessment(ctx context.Context, userID int64, scores [4]int, shareWithHR bool) (*Assessment, error)

	// LatestAssessment returns nil, nil when the user has none.
	LatestAssessment(ctx context.Context, userID int64) (*Assessment, error)

	// AssessmentHistory returns up to limit assessments, newest first.
	AssessmentHistory(ctx context.Context, userID int64, limit int) ([]Assessment, error)

	// CreatePost stores a post and returns it with the author's name.
	CreatePost(ctx context.Context, authorID int64, content string, imageURL *string) (*Post, error)

	// ListPosts returns up to limit posts, newest first.
	ListPosts(ctx context.Context, limit int) ([]Post, error)

	// InitSchema creates the tables if missing and returns their names.
	InitSchema(ctx context.Context) ([]string, error)

	Ping(ctx context.Context) error
}

// ClampDays applies the history window defaults.
func ClampDays(days int) int {
	return clamp(days, DefaultHistoryDays, MaxHistoryDays)
}

// ClampAssessmentLimit applies the assessment history defaults.
func ClampAssessmentLimit(limit int) int {
	return clamp(limit, DefaultAssessmentLimit, MaxAssessmentLimit)
}

// ClampPostLimit applies the feed page defaults.
func ClampPostLimit(limit int) int {
	return clamp(limit, DefaultPostLimit, MaxPostLimit)
}

// clamp maps n <= 0 to def and caps it at upper.
func clamp(n, def, upper int) int {
	if n <= 0 {
		return def
	}
	if n > upper {
		return upper
	}
	return n
}

// consecutiveDays counts how many of dates, newest first and unique, form an
// unbroken run of calendar days ending on today.
func consecutiveDays(dates []time.Time, today time.Time) int {
	expected := today.Format(dateLayout)
	cursor := today
	streak := 0
	for _, d := range dates {
		if d.Format(dateLayout) != expected {
			break
		}
		streak++
		cursor = cursor.AddDate(0, 0, -1)
		expected = cursor.Format(dateLayout)
	}
	return streak
}
