// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conversation owns per-session chat memory and the rewrite of
// follow-up questions into standalone retrieval queries.
package conversation

import (
	"context"
	"time"

	"github.com/igrowicare/workmate/services/llm"
	"github.com/igrowicare/workmate/services/orchestrator/datatypes"
)

// SessionStore maps an opaque session id to its ordered turn history.
//
// # Description
//
// The session id is untrusted client input used purely as a partition key:
// implementations must never return turns recorded under a different id.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Lock provides per-session
// mutual exclusion so a caller can read history, do slow work, and append
// without another request for the same session interleaving. Calls for
// different sessions never block each other on Lock.
type SessionStore interface {
	// GetOrCreate returns a copy of the history for sessionID. An unseen id
	// yields an empty history, not an error.
	GetOrCreate(ctx context.Context, sessionID string) ([]datatypes.Turn, error)

	// Append adds one completed (user, assistant) pair to the end of the
	// history. It always appends; it is not idempotent.
	Append(ctx context.Context, sessionID string, user, assistant datatypes.Turn) error

	// Lock acquires the exclusive lock for sessionID and returns its release
	// function. It gives up with ctx.Err() when ctx ends first. The lock is
	// not reentrant.
	Lock(ctx context.Context, sessionID string) (unlock func(), err error)
}

// Sweeper is implemented by stores that need periodic housekeeping, such as
// dropping idle sessions. It returns how many sessions were removed.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Contextualizer turns a follow-up question into a standalone query.
type Contextualizer interface {
	// Contextualize returns question unchanged when history is empty,
	// without calling the model.
	Contextualize(ctx context.Context, question string, history []datatypes.Turn) (string, error)
}

// ChatFunc performs one chat completion. It adapts llm.ChatClient so tests
// can supply a closure.
type ChatFunc func(ctx context.Context, messages []llm.Message) (string, error)

// ChatFuncFromClient adapts a ChatClient with fixed generation params.
func ChatFuncFromClient(client llm.ChatClient, params llm.GenerationParams) ChatFunc {
	return func(ctx context.Context, messages []llm.Message) (string, error) {
		return client.Chat(ctx, messages, params)
	}
}
