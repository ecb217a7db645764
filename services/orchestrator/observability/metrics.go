// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the chat pipeline
// and the mood ledger.
//
// # Description
//
// Metrics include:
//   - Pipeline runs by outcome (completed, failed)
//   - Stage failures by stage and error kind
//   - Stage latency histograms
//   - Live session count
//   - Mood check-ins by whether a point was awarded
//
// Metrics are exposed via GET /metrics.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every method is a no-op on a nil *PipelineMetrics so components can be
// built without metrics in tests.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "workmate"

// PipelineMetrics holds the service's Prometheus collectors.
//
// # Fields
//
//   - RunsTotal: Pipeline runs. Labels: outcome (completed, failed)
//   - StageErrorsTotal: Failed stages. Labels: stage, kind
//   - StageDurationSeconds: Stage latency. Labels: stage
//   - SessionsActive: Sessions currently held by the session store
//   - MoodCheckinsTotal: Ledger writes. Labels: awarded (true, false)
type PipelineMetrics struct {
	RunsTotal            *prometheus.CounterVec
	StageErrorsTotal     *prometheus.CounterVec
	StageDurationSeconds *prometheus.HistogramVec
	SessionsActive       prometheus.Gauge
	MoodCheckinsTotal    *prometheus.CounterVec
}

// NewPipelineMetrics creates the collectors and registers them on reg.
// Tests pass a fresh prometheus.NewRegistry().
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)
	return &PipelineMetrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Total chat pipeline runs by outcome",
			},
			[]string{"outcome"},
		),

		StageErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "stage_errors_total",
				Help:      "Total chat pipeline stage failures by stage and error kind",
			},
			[]string{"stage", "kind"},
		),

		StageDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Chat pipeline stage latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage"},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "sessions_active",
				Help:      "Number of chat sessions held in memory",
			},
		),

		MoodCheckinsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "mood_checkins_total",
				Help:      "Total mood check-ins by whether a point was awarded",
			},
			[]string{"awarded"},
		),
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRun records a finished pipeline run.
func (m *PipelineMetrics) RecordRun(success bool) {
	if m == nil {
		return
	}
	outcome := "completed"
	if !success {
		outcome = "failed"
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
}

// RecordStageError records a stage failure.
func (m *PipelineMetrics) RecordStageError(stage, kind string) {
	if m == nil {
		return
	}
	m.StageErrorsTotal.WithLabelValues(stage, kind).Inc()
}

// ObserveStage records how long a stage took.
func (m *PipelineMetrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// SetSessionsActive sets the live session gauge.
func (m *PipelineMetrics) SetSessionsActive(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}

// RecordMoodCheckin records a ledger write.
func (m *PipelineMetrics) RecordMoodCheckin(awarded bool) {
	if m == nil {
		return
	}
	label := "false"
	if awarded {
		label = "true"
	}
	m.MoodCheckinsTotal.WithLabelValues(label).Inc()
}
