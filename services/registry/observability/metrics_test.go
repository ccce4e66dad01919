// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestMetrics builds the metric set against a private registry so tests
// never collide with the global one.
func newTestMetrics(t *testing.T) *RegistryMetrics {
	t.Helper()
	return newMetrics(prometheus.NewRegistry())
}

func TestNewMetrics_AllCreated(t *testing.T) {
	m := newTestMetrics(t)

	require.NotNil(t, m.OperationsTotal)
	require.NotNil(t, m.ResolvesTotal)
	require.NotNil(t, m.IngestionPhasesTotal)
	require.NotNil(t, m.IngestionDurationSeconds)
	require.NotNil(t, m.ActiveIngestions)
	require.NotNil(t, m.SearchesTotal)
	require.NotNil(t, m.SearchDurationSeconds)
	require.NotNil(t, m.ConsistencySweepsTotal)
	require.NotNil(t, m.ConsistencyFindings)
}

func TestRecordOperation(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordOperation("add_revision", nil)
	m.RecordOperation("add_revision", nil)
	m.RecordOperation("add_revision", fmt.Errorf("overlap"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("add_revision", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("add_revision", "error")))
}

func TestRecordResolve(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordResolve("NPPF", ResolveOutcomeResolved)
	m.RecordResolve("NPPF", ResolveOutcomeGap)
	m.RecordResolve("LTN_1_20", ResolveOutcomeResolved)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolvesTotal.WithLabelValues("NPPF", "resolved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolvesTotal.WithLabelValues("NPPF", "gap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolvesTotal.WithLabelValues("LTN_1_20", "resolved")))
}

func TestIngestionMetrics(t *testing.T) {
	m := newTestMetrics(t)

	m.IngestionStarted()
	m.IngestionStarted()
	m.IngestionEnded()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveIngestions))

	m.RecordIngestionPhase("chunking")
	m.RecordIngestionPhase("chunking")
	m.RecordIngestionPhase("embedding")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IngestionPhasesTotal.WithLabelValues("chunking")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestionPhasesTotal.WithLabelValues("embedding")))

	m.ObserveIngestion("done", 42.5)
	assert.Equal(t, 1, testutil.CollectAndCount(m.IngestionDurationSeconds))
}

func TestRecordSearch(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordSearch(SearchModeDated, 0.12, nil)
	m.RecordSearch(SearchModeDated, 0.3, fmt.Errorf("degraded"))
	m.RecordSearch(SearchModeUndated, 0.05, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchesTotal.WithLabelValues("dated", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchesTotal.WithLabelValues("dated", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchesTotal.WithLabelValues("undated", "success")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.SearchDurationSeconds))
}

func TestConsistencyMetrics(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordSweep(SweepHealthy)
	m.RecordSweep(SweepDrift)
	m.RecordSweep(SweepDrift)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConsistencySweepsTotal.WithLabelValues("healthy")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConsistencySweepsTotal.WithLabelValues("drift")))

	m.SetConsistencyFindings(map[string]int{
		"missing_index_data": 2,
		"chunk_count_drift":  1,
	})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConsistencyFindings.WithLabelValues("missing_index_data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConsistencyFindings.WithLabelValues("chunk_count_drift")))

	// A clean sweep clears every kind.
	m.SetConsistencyFindings(nil)
	assert.Equal(t, 0, testutil.CollectAndCount(m.ConsistencyFindings))
}
