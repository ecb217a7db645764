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
)

// keyLocks hands out one lock per key. Each lock is a one-slot semaphore so
// a waiter can give up when its context ends. Entries are reference counted
// and removed when the last holder or waiter leaves, so the map only holds
// keys that are in use.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sem  chan struct{}
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*refLock)}
}

// Lock blocks until key is free or ctx is done. On success it returns the
// release function; calling it more than once has no effect. On ctx expiry
// it returns ctx.Err() and holds nothing.
func (k *keyLocks) Lock(ctx context.Context, key string) (func(), error) {
	l := k.acquireRef(key)

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		k.releaseRef(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			k.releaseRef(key, l)
		})
	}, nil
}

// IfIdle runs fn while holding the registry, but only when key is neither
// held nor awaited. A Lock call that starts while fn runs waits for it.
func (k *keyLocks) IfIdle(key string, fn func()) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, busy := k.locks[key]; busy {
		return false
	}
	fn()
	return true
}

// InUse reports whether key is held or waited on.
func (k *keyLocks) InUse(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.locks[key]
	return ok
}

func (k *keyLocks) acquireRef(key string) *refLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{sem: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	return l
}

func (k *keyLocks) releaseRef(key string, l *refLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}
