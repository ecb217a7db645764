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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/igrowicare/workmate/pkg/extensions"
	"github.com/igrowicare/workmate/services/orchestrator/datatypes"
	"github.com/igrowicare/workmate/services/orchestrator/ledger"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeRunner answers every turn with a canned reply or error.
type fakeRunner struct {
	mu    sync.Mutex
	reqs  []datatypes.PipelineRequest
	reply string
	err   error
}

func (f *fakeRunner) Run(_ context.Context, req datatypes.PipelineRequest) (*datatypes.PipelineResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &datatypes.PipelineResponse{Reply: f.reply, Query: req.Question}, nil
}

// memLedger is an in-memory Ledger with the same points rule as MySQL.
type memLedger struct {
	mu          sync.Mutex
	today       string
	points      map[int64]int
	entries     map[int64]map[string]datatypes.Mood
	assessments map[int64][]ledger.Assessment
	posts       []ledger.Post
	users       map[int64]string
	streak      int
	lastDays    int
	lastLimit   int
	err         error
	pingErr     error
	schemaCalls int
}

func newMemLedger() *memLedger {
	return &memLedger{
		today:       "2025-03-14",
		points:      make(map[int64]int),
		entries:     make(map[int64]map[string]datatypes.Mood),
		assessments: make(map[int64][]ledger.Assessment),
		users:       map[int64]string{3: "Mei Lin"},
	}
}

func (m *memLedger) RecordMood(_ context.Context, userID int64, mood datatypes.Mood) (*ledger.MoodResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	days, ok := m.entries[userID]
	if !ok {
		days = make(map[string]datatypes.Mood)
		m.entries[userID] = days
	}
	earned := 0
	if _, seen := days[m.today]; !seen {
		earned = 1
		m.points[userID]++
	}
	days[m.today] = mood
	return &ledger.MoodResult{PointsEarned: earned, TotalPoints: m.points[userID], MoodScore: mood.Score()}, nil
}

func (m *memLedger) TotalPoints(_ context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.points[userID], m.err
}

func (m *memLedger) Today(_ context.Context, userID int64) (*ledger.MoodEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	mood, ok := m.entries[userID][m.today]
	if !ok {
		return nil, nil
	}
	return &ledger.MoodEntry{Date: m.today, Mood: mood, MoodScore: mood.Score()}, nil
}

func (m *memLedger) History(_ context.Context, userID int64, days int) ([]ledger.MoodEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastDays = days
	out := make([]ledger.MoodEntry, 0)
	for date, mood := range m.entries[userID] {
		out = append(out, ledger.MoodEntry{Date: date, Mood: mood, MoodScore: mood.Score()})
	}
	return out, m.err
}

func (m *memLedger) Streak(context.Context, int64) (int, error) {
	return m.streak, m.err
}

func (m *memLedger) CreateAssessment(_ context.Context, userID int64, scores [4]int, share bool) (*ledger.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := scores[0] + scores[1] + scores[2] + scores[3]
	level := ledger.LevelFor(total)
	a := ledger.Assessment{
		ID: int64(len(m.assessments[userID]) + 1), UserID: userID,
		Q1: scores[0], Q2: scores[1], Q3: scores[2], Q4: scores[3],
		Total: total, Level: level, Advice: level.Advice(), ShareWithHR: share, CreatedAt: time.Now(),
	}
	m.assessments[userID] = append(m.assessments[userID], a)
	return &a, nil
}

func (m *memLedger) LatestAssessment(_ context.Context, userID int64) (*ledger.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.assessments[userID]
	if len(list) == 0 {
		return nil, nil
	}
	a := list[len(list)-1]
	return &a, nil
}

func (m *memLedger) AssessmentHistory(_ context.Context, userID int64, limit int) ([]ledger.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	limit = ledger.ClampAssessmentLimit(limit)
	list := m.assessments[userID]
	out := make([]ledger.Assessment, 0, len(list))
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, m.err
}

func (m *memLedger) CreatePost(_ context.Context, authorID int64, content string, imageURL *string) (*ledger.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ledger.ErrEmptyPost
	}
	now := time.Now()
	p := ledger.Post{
		ID: int64(len(m.posts) + 1), AuthorID: authorID, AuthorName: m.users[authorID],
		Content: content, ImageURL: imageURL, CreatedAt: now, UpdatedAt: now,
	}
	m.posts = append(m.posts, p)
	return &p, nil
}

func (m *memLedger) ListPosts(_ context.Context, limit int) ([]ledger.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	limit = ledger.ClampPostLimit(limit)
	out := make([]ledger.Post, 0, len(m.posts))
	for i := len(m.posts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.posts[i])
	}
	return out, m.err
}

func (m *memLedger) InitSchema(context.Context) ([]string, error) {
	m.schemaCalls++
	return ledger.TableNames(), m.err
}

func (m *memLedger) Ping(context.Context) error {
	return m.pingErr
}

var _ ledger.Ledger = (*memLedger)(nil)

// fakeUsers is a fixed user directory.
type fakeUsers map[int64]extensions.User

func (f fakeUsers) GetUser(_ context.Context, id int64) (*extensions.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, extensions.ErrUserNotFound
	}
	return &u, nil
}

var errBoom = errors.New("boom")

// performRequest executes an HTTP request against the router.
func performRequest(router http.Handler, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}
