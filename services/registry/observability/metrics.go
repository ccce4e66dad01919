// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the registry.
//
// # Description
//
// Counters, histograms, and gauges for catalog operations, resolver
// outcomes, the ingestion pipeline, search latency, and consistency
// sweeps. Metrics are exposed through the telemetry package's /metrics
// endpoint.
//
// Call sites guard on the singleton so the registry runs identically with
// metrics disabled:
//
//	if m := observability.DefaultMetrics; m != nil {
//	    m.RecordResolve(source, observability.ResolveOutcomeResolved)
//	}
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for registry metrics
const registrySubsystem = "registry"

// RegistryMetrics holds all Prometheus metrics for the policy registry.
//
// # Fields
//
//   - OperationsTotal: catalog operations by name and status
//   - ResolvesTotal: temporal resolutions by source and outcome
//   - IngestionPhasesTotal: pipeline phase transitions
//   - IngestionDurationSeconds: end-to-end job duration by outcome
//   - ActiveIngestions: jobs currently queued or running
//   - SearchesTotal: vector searches by mode and status
//   - SearchDurationSeconds: search latency by mode
//   - ConsistencySweepsTotal: sweeps by result
//   - ConsistencyFindings: last sweep's finding counts by kind
type RegistryMetrics struct {
	OperationsTotal          *prometheus.CounterVec
	ResolvesTotal            *prometheus.CounterVec
	IngestionPhasesTotal     *prometheus.CounterVec
	IngestionDurationSeconds *prometheus.HistogramVec
	ActiveIngestions         prometheus.Gauge
	SearchesTotal            *prometheus.CounterVec
	SearchDurationSeconds    *prometheus.HistogramVec
	ConsistencySweepsTotal   *prometheus.CounterVec
	ConsistencyFindings      *prometheus.GaugeVec
}

// DefaultMetrics is the singleton instance, set by InitMetrics. Nil until
// then; call sites nil-guard.
var DefaultMetrics *RegistryMetrics

// InitMetrics registers all registry metrics with the default Prometheus
// registry and sets DefaultMetrics. Call once at startup; a second call
// panics on duplicate registration.
func InitMetrics() *RegistryMetrics {
	DefaultMetrics = newMetrics(prometheus.DefaultRegisterer)
	return DefaultMetrics
}

// newMetrics builds the metric set against an explicit registerer. Tests
// pass a private registry to stay out of the global one.
func newMetrics(reg prometheus.Registerer) *RegistryMetrics {
	factory := promauto.With(reg)

	return &RegistryMetrics{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: registrySubsystem,
				Name:      "operations_total",
				Help:      "Total catalog operations by name and status",
			},
			[]string{"operation", "status"},
		),

		ResolvesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: registrySubsystem,
				Name:      "resolves_total",
				Help:      "Total temporal resolutions by source and outcome",
			},
			[]string{"source", "outcome"},
		),

		IngestionPhasesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: registrySubsystem,
				Name:      "ingestion_phases_total",
				Help:      "Total ingestion pipeline phase transitions",
			},
			[]string{"phase"},
		),

		IngestionDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: registrySubsystem,
				Name:      "ingestion_duration_seconds",
				Help:      "End-to-end ingestion job duration by outcome",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"outcome"},
		),

		ActiveIngestions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: registrySubsystem,
				Name:      "active_ingestions",
				Help:      "Ingestion jobs currently queued or running",
			},
		),

		SearchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: registrySubsystem,
				Name:      "searches_total",
				Help:      "Total vector searches by mode and status",
			},
			[]string{"mode", "status"},
		),

		SearchDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: registrySubsystem,
				Name:      "search_duration_seconds",
				Help:      "Search latency by mode",
				Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"mode"},
		),

		ConsistencySweepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: registrySubsystem,
				Name:      "consistency_sweeps_total",
				Help:      "Total consistency sweeps by result",
			},
			[]string{"result"},
		),

		ConsistencyFindings: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: registrySubsystem,
				Name:      "consistency_findings",
				Help:      "Finding counts by kind from the last consistency sweep",
			},
			[]string{"kind"},
		),
	}
}

// =============================================================================
// Label Values
// =============================================================================

// ResolveOutcome labels a temporal resolution result.
type ResolveOutcome string

const (
	// ResolveOutcomeResolved means a revision was in force on the date.
	ResolveOutcomeResolved ResolveOutcome = "resolved"

	// ResolveOutcomeGap means the document exists but nothing was in force.
	ResolveOutcomeGap ResolveOutcome = "gap"

	// ResolveOutcomeUnknown means the document is not registered.
	ResolveOutcomeUnknown ResolveOutcome = "unknown_document"
)

// SearchMode labels how a search was constrained.
type SearchMode string

const (
	// SearchModeDated is a search pinned to an as-of date.
	SearchModeDated SearchMode = "dated"

	// SearchModeUndated is a search across all indexed revisions.
	SearchModeUndated SearchMode = "undated"
)

// SweepResult labels a consistency sweep outcome.
type SweepResult string

const (
	SweepHealthy SweepResult = "healthy"
	SweepDrift   SweepResult = "drift"
	SweepError   SweepResult = "error"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordOperation records one catalog operation.
func (m *RegistryMetrics) RecordOperation(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordResolve records one temporal resolution.
func (m *RegistryMetrics) RecordResolve(source string, outcome ResolveOutcome) {
	m.ResolvesTotal.WithLabelValues(source, string(outcome)).Inc()
}

// RecordIngestionPhase records one pipeline phase transition.
func (m *RegistryMetrics) RecordIngestionPhase(phase string) {
	m.IngestionPhasesTotal.WithLabelValues(phase).Inc()
}

// ObserveIngestion records a finished job's duration under its outcome
// ("done" or "failed").
func (m *RegistryMetrics) ObserveIngestion(outcome string, seconds float64) {
	m.IngestionDurationSeconds.WithLabelValues(outcome).Observe(seconds)
}

// IngestionStarted increments the active jobs gauge.
func (m *RegistryMetrics) IngestionStarted() {
	m.ActiveIngestions.Inc()
}

// IngestionEnded decrements the active jobs gauge.
func (m *RegistryMetrics) IngestionEnded() {
	m.ActiveIngestions.Dec()
}

// RecordSearch records one search's status and latency.
func (m *RegistryMetrics) RecordSearch(mode SearchMode, seconds float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.SearchesTotal.WithLabelValues(string(mode), status).Inc()
	m.SearchDurationSeconds.WithLabelValues(string(mode)).Observe(seconds)
}

// RecordSweep records one consistency sweep result.
func (m *RegistryMetrics) RecordSweep(result SweepResult) {
	m.ConsistencySweepsTotal.WithLabelValues(string(result)).Inc()
}

// SetConsistencyFindings replaces the findings gauge with the latest
// sweep's per-kind counts. Kinds absent from the map are cleared so a
// repaired drift does not linger.
func (m *RegistryMetrics) SetConsistencyFindings(counts map[string]int) {
	m.ConsistencyFindings.Reset()
	for kind, count := range counts {
		m.ConsistencyFindings.WithLabelValues(kind).Set(float64(count))
	}
}
