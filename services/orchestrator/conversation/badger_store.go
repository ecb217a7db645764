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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/igrowicare/workmate/services/orchestrator/datatypes"
)

const sessionKeyPrefix = "session:"

// BadgerStore is a SessionStore that survives restarts.
//
// # Description
//
// Each session is one key ("session:<id>") holding the JSON-encoded turn
// list. Every append rewrites the entry with a fresh Badger TTL, so idle
// sessions expire natively. Sweep only runs value-log GC to reclaim the
// space of expired entries.
//
// # Thread Safety
//
// Safe for concurrent use. Append is a read-modify-write inside one Badger
// transaction; callers that also need read-then-append atomicity across slow
// work must hold Lock.
type BadgerStore struct {
	db    *badger.DB
	locks *keyLocks
	ttl   time.Duration
}

// OpenBadgerStore opens (or creates) the store at path. An empty path opens
// an in-memory database, used by tests.
func OpenBadgerStore(path string, ttl time.Duration) (*BadgerStore, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0750); err != nil {
			return nil, fmt.Errorf("create session store directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger session store: %w", err)
	}
	return &BadgerStore{db: db, locks: newKeyLocks(), ttl: ttl}, nil
}

// Close releases the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// GetOrCreate implements SessionStore.
func (s *BadgerStore) GetOrCreate(_ context.Context, sessionID string) ([]datatypes.Turn, error) {
	var turns []datatypes.Turn
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		turns, err = readTurns(txn, sessionKey(sessionID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read session history: %w", err)
	}
	return datatypes.CloneHistory(turns), nil
}

// Append implements SessionStore.
func (s *BadgerStore) Append(_ context.Context, sessionID string, user, assistant datatypes.Turn) error {
	key := sessionKey(sessionID)
	err := s.db.Update(func(txn *badger.Txn) error {
		turns, err := readTurns(txn, key)
		if err != nil {
			return err
		}
		turns = append(turns, user, assistant)
		payload, err := json.Marshal(turns)
		if err != nil {
			return fmt.Errorf("encode turns: %w", err)
		}
		entry := badger.NewEntry(key, payload)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("append session history: %w", err)
	}
	return nil
}

// Lock implements SessionStore.
func (s *BadgerStore) Lock(ctx context.Context, sessionID string) (func(), error) {
	return s.locks.Lock(ctx, sessionID)
}

// Sweep implements Sweeper. Expiry itself is handled by Badger.
func (s *BadgerStore) Sweep(_ context.Context, _ time.Time) (int, error) {
	err := s.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrGCInMemoryMode) {
		slog.Warn("Session store value log GC failed", "error", err)
		return 0, err
	}
	return 0, nil
}

func readTurns(txn *badger.Txn, key []byte) ([]datatypes.Turn, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var turns []datatypes.Turn
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &turns)
	})
	if err != nil {
		return nil, fmt.Errorf("decode turns: %w", err)
	}
	return turns, nil
}

func sessionKey(id string) []byte {
	return []byte(sessionKeyPrefix + id)
}

var (
	_ SessionStore = (*BadgerStore)(nil)
	_ Sweeper      = (*BadgerStore)(nil)
)
