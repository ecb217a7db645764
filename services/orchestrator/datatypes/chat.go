// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxMessageContentBytes bounds a single chat message (8KB).
	MaxMessageContentBytes = 8 * 1024

	// MaxSessionIDLength bounds the client supplied session key.
	MaxSessionIDLength = 128
)

// =============================================================================
// Validator
// =============================================================================

// requestValidate is the package-level validator, safe for concurrent use
// after init.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
	_ = requestValidate.RegisterValidation("maxbytes", validateMaxBytes)
	_ = requestValidate.RegisterValidation("notblank", validateNotBlank)
	_ = requestValidate.RegisterValidation("mood", validateMood)
}

func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func validateMood(fl validator.FieldLevel) bool {
	_, err := ParseMood(fl.Field().String())
	return err == nil
}

// =============================================================================
// Chat
// =============================================================================

// ChatRequest is the body of POST /chat.
//
// # Description
//
// Either SessionID or UserID must be present; when SessionID is empty it is
// derived from the user id by EnsureDefaults. Mood is optional and, when
// present, must be one of the five labels.
//
// # Examples
//
//	{"message": "我最近壓力很大", "session_id": "abc", "user_id": 7, "mood": "Okay"}
type ChatRequest struct {
	Message   string `json:"message" validate:"required,notblank,maxbytes"`
	SessionID string `json:"session_id" validate:"required_without=UserID,max=128"`
	UserID    int64  `json:"user_id" validate:"gte=0"`
	Mood      string `json:"mood" validate:"omitempty,mood"`
}

// Validate checks struct tags.
func (r *ChatRequest) Validate() error {
	return requestValidate.Struct(r)
}

// EnsureDefaults derives a session key from the user id when none was sent.
func (r *ChatRequest) EnsureDefaults() {
	r.SessionID = strings.TrimSpace(r.SessionID)
	if r.SessionID == "" && r.UserID > 0 {
		r.SessionID = "user-" + strconv.FormatInt(r.UserID, 10)
	}
}

// ParsedMood returns the request mood, or "" when none was supplied.
// Call only after Validate succeeded.
func (r *ChatRequest) ParsedMood() Mood {
	if r.Mood == "" {
		return ""
	}
	m, _ := ParseMood(r.Mood)
	return m
}

// ChatResponse is the success body of POST /chat. TotalPoints is null when
// the request carried no user id.
type ChatResponse struct {
	Reply        string `json:"reply"`
	PointsEarned int    `json:"points_earned"`
	TotalPoints  *int   `json:"total_points"`
}

// ErrorResponse is the failure body of every endpoint. ErrorKind is only
// set for pipeline failures.
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// WSChatFrame is one client frame on the chat websocket.
type WSChatFrame struct {
	Message string `json:"message" validate:"required,notblank,maxbytes"`
	Mood    string `json:"mood" validate:"omitempty,mood"`
}

// Validate checks struct tags.
func (f *WSChatFrame) Validate() error {
	return requestValidate.Struct(f)
}

// =============================================================================
// Well-being
// =============================================================================

// MoodCheckinRequest is the body of POST /mood/checkin.
type MoodCheckinRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Mood   string `json:"mood" validate:"required,mood"`
}

// Validate checks struct tags.
func (r *MoodCheckinRequest) Validate() error {
	return requestValidate.Struct(r)
}

// AssessmentRequest is the body of POST /assessment. Pointers let a valid
// answer of 0 be told apart from a missing one.
type AssessmentRequest struct {
	Q1          *int `json:"q1" validate:"required,min=0,max=3"`
	Q2          *int `json:"q2" validate:"required,min=0,max=3"`
	Q3          *int `json:"q3" validate:"required,min=0,max=3"`
	Q4          *int `json:"q4" validate:"required,min=0,max=3"`
	ShareWithHR bool `json:"share_with_hr"`
}

// Validate checks struct tags.
func (r *AssessmentRequest) Validate() error {
	return requestValidate.Struct(r)
}

// Scores returns the four answers. Call only after Validate succeeded.
func (r *AssessmentRequest) Scores() [4]int {
	return [4]int{*r.Q1, *r.Q2, *r.Q3, *r.Q4}
}

// =============================================================================
// Posts
// =============================================================================

// MaxImageURLLength matches the posts.image_url column.
const MaxImageURLLength = 512

// PostRequest is the body of POST /posts.
type PostRequest struct {
	Content  string  `json:"content" validate:"required,notblank,maxbytes"`
	ImageURL *string `json:"image_url" validate:"omitempty,url,max=512"`
}

// Validate checks struct tags.
func (r *PostRequest) Validate() error {
	return requestValidate.Struct(r)
}
