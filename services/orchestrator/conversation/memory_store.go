// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/igrowicare/workmate/services/orchestrator/datatypes"
)

// MemoryStore is the in-process SessionStore.
//
// # Description
//
// Histories live in a map keyed by session id and are lost on restart. Each
// session records its last access time; Sweep drops sessions idle longer
// than the configured TTL, skipping any session whose lock is held or
// awaited.
//
// # Thread Safety
//
// Safe for concurrent use. The map is guarded by one mutex; per-session run
// exclusion uses keyLocks and never holds the map mutex while blocked.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	locks    *keyLocks
	ttl      time.Duration
	now      func() time.Time
}

type memorySession struct {
	turns      []datatypes.Turn
	lastAccess time.Time
}

// NewMemoryStore creates an empty store. ttl <= 0 disables eviction.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		locks:    newKeyLocks(),
		ttl:      ttl,
		now:      time.Now,
	}
}

// GetOrCreate implements SessionStore. It never returns an error.
func (s *MemoryStore) GetOrCreate(_ context.Context, sessionID string) ([]datatypes.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessionLocked(sessionID)
	return datatypes.CloneHistory(sess.turns), nil
}

// Append implements SessionStore.
func (s *MemoryStore) Append(_ context.Context, sessionID string, user, assistant datatypes.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessionLocked(sessionID)
	sess.turns = append(sess.turns, user, assistant)
	return nil
}

// Lock implements SessionStore.
func (s *MemoryStore) Lock(ctx context.Context, sessionID string) (func(), error) {
	return s.locks.Lock(ctx, sessionID)
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep implements Sweeper by removing sessions idle for longer than the TTL.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastAccess) <= s.ttl {
			continue
		}
		// Checked and deleted under the lock registry, so a turn that has
		// started waiting for this session keeps its history.
		if s.locks.IfIdle(id, func() { delete(s.sessions, id) }) {
			evicted++
		}
	}
	return evicted, nil
}

// sessionLocked returns the entry for id, creating it on miss, and marks it
// accessed. Caller must hold s.mu.
func (s *MemoryStore) sessionLocked(id string) *memorySession {
	sess, ok := s.sessions[id]
	if !ok {
		sess = &memorySession{}
		s.sessions[id] = sess
	}
	sess.lastAccess = s.now()
	return sess
}

var (
	_ SessionStore = (*MemoryStore)(nil)
	_ Sweeper      = (*MemoryStore)(nil)
)
