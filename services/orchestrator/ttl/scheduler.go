// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ttl runs the background eviction of idle chat sessions.
package ttl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/igrowicare/workmate/services/orchestrator/conversation"
	"github.com/igrowicare/workmate/services/orchestrator/observability"
)

// =============================================================================
// Session Eviction Scheduler
// =============================================================================

// SchedulerConfig holds configuration for the eviction scheduler.
//
// # Fields
//
//   - Interval: How often to sweep. Default: 5 minutes.
//   - SweepTimeout: Budget of one sweep. Default: 30 seconds.
type SchedulerConfig struct {
	Interval     time.Duration
	SweepTimeout time.Duration
}

// DefaultSchedulerConfig returns a 5 minute interval and 30 second budget.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:     5 * time.Minute,
		SweepTimeout: 30 * time.Second,
	}
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Evicted   int
	Remaining int
	StartTime time.Time
	EndTime   time.Time
}

// DurationMs returns the sweep duration in milliseconds.
func (r SweepResult) DurationMs() int64 {
	return r.EndTime.Sub(r.StartTime).Milliseconds()
}

// Scheduler periodically evicts idle sessions from a store.
//
// # Description
//
// Manages the lifecycle of a background goroutine that calls Sweep on the
// session store. Uses the ticker + done channel pattern for graceful
// shutdown.
//
// # Thread Safety
//
// All public methods are thread-safe.
type Scheduler struct {
	sweeper conversation.Sweeper
	metrics *observability.PipelineMetrics
	config  SchedulerConfig
	now     func() time.Time

	mu      sync.Mutex
	done    chan struct{}
	stopped chan struct{}
	running bool
}

// NewScheduler creates a scheduler for sweeper. metrics may be nil.
func NewScheduler(sweeper conversation.Sweeper, metrics *observability.PipelineMetrics, config SchedulerConfig) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.SweepTimeout <= 0 {
		config.SweepTimeout = defaults.SweepTimeout
	}
	return &Scheduler{
		sweeper: sweeper,
		metrics: metrics,
		config:  config,
		now:     time.Now,
	}
}

// Start begins the background loop. It returns an error if the scheduler
// is already running. The loop ends on Stop or when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})

	slog.Info("Session eviction scheduler starting", "interval", s.config.Interval.String())
	go s.runLoop(ctx, s.done, s.stopped)
	return nil
}

// Stop signals the loop to end and waits for the current sweep. Safe to
// call multiple times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	slog.Info("Session eviction scheduler stopping")
	close(s.done)
	stopped := s.stopped
	s.running = false
	s.mu.Unlock()

	<-stopped
}

// RunNow sweeps immediately, independent of the schedule.
func (s *Scheduler) RunNow(ctx context.Context) (SweepResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.SweepTimeout)
	defer cancel()

	result := SweepResult{StartTime: s.now()}
	evicted, err := s.sweeper.Sweep(ctx, result.StartTime)
	result.EndTime = s.now()
	if err != nil {
		return result, fmt.Errorf("session sweep failed: %w", err)
	}
	result.Evicted = evicted

	if counter, ok := s.sweeper.(interface{ Len() int }); ok {
		result.Remaining = counter.Len()
		s.metrics.SetSessionsActive(result.Remaining)
	}
	return result, nil
}

// =============================================================================
// Internal Methods
// =============================================================================

func (s *Scheduler) runLoop(ctx context.Context, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Session eviction scheduler stopped (context cancelled)")
			return
		case <-done:
			slog.Info("Session eviction scheduler stopped (stop requested)")
			return
		case <-ticker.C:
			s.executeSweep(ctx)
		}
	}
}

// executeSweep runs one sweep and logs the outcome. Errors never stop the
// loop.
func (s *Scheduler) executeSweep(ctx context.Context) {
	result, err := s.RunNow(ctx)
	if err != nil {
		slog.Error("Session sweep failed", "error", err)
		return
	}
	if result.Evicted > 0 {
		slog.Info("Idle sessions evicted",
			"evicted", result.Evicted,
			"remaining", result.Remaining,
			"duration_ms", result.DurationMs(),
		)
		return
	}
	slog.Debug("Session sweep completed (nothing idle)")
}
