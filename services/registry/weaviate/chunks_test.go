// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package weaviate

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

func newTestChunkStore(t *testing.T) *ChunkStore {
	t.Helper()
	rc := &ResilientClient{
		config: ClientConfig{RetryAttempts: 0},
		logger: slog.Default(),
	}
	rc.state.Store(int32(StateConnected))
	cs, err := NewChunkStore(rc, slog.Default())
	require.NoError(t, err)
	return cs
}

func TestNewChunkStore_RequiresClient(t *testing.T) {
	_, err := NewChunkStore(nil, nil)
	assert.Error(t, err)
}

func TestWriteBatch_VectorCountMismatch(t *testing.T) {
	cs := newTestChunkStore(t)

	records := []datatypes.ChunkRecord{
		{RevisionID: "rev-1", ChunkIndex: 0, Content: "a"},
		{RevisionID: "rev-1", ChunkIndex: 1, Content: "b"},
	}
	vectors := [][]float32{{0.1, 0.2}}

	n, err := cs.WriteBatch(context.Background(), records, vectors)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, datatypes.ErrIndexWriteFailed)
}

func TestWriteBatch_EmptyIsNoop(t *testing.T) {
	cs := newTestChunkStore(t)

	n, err := cs.WriteBatch(context.Background(), nil, nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestWriteBatch_ClosedClient(t *testing.T) {
	cs := newTestChunkStore(t)
	cs.rc.closed.Store(true)

	records := []datatypes.ChunkRecord{{RevisionID: "rev-1", ChunkIndex: 0, Content: "a"}}
	vectors := [][]float32{{0.1}}

	_, err := cs.WriteBatch(context.Background(), records, vectors)
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestSearch_EmptyRevisionSetNeverQueries(t *testing.T) {
	// The temporal filter is mandatory. No revisions in force means no
	// hits, and the index must not be contacted at all.
	cs := newTestChunkStore(t)
	cs.rc.closed.Store(true) // Any index call would error

	hits, err := cs.Search(context.Background(), []float32{0.5}, nil, 10)
	assert.NoError(t, err)
	assert.Empty(t, hits)
}

func TestResultToHit(t *testing.T) {
	idx := 3
	certainty := float32(0.91)
	r := datatypes.ChunkResult{
		Source:        "NPPF",
		RevisionID:    "rev-1",
		EffectiveFrom: "2024-12-12",
		EffectiveTo:   "",
		SectionRef:    "para-11",
		Heading:       "Presumption in favour of sustainable development",
		ChunkIndex:    &idx,
		Content:       "Plans and decisions should apply a presumption...",
	}
	r.Additional.ID = "0b7e3c1a-0000-0000-0000-000000000000"
	r.Additional.Certainty = &certainty

	hit := resultToHit(r)
	assert.Equal(t, "NPPF", hit.Source)
	assert.Equal(t, "rev-1", hit.RevisionID)
	assert.Equal(t, "para-11", hit.SectionRef)
	assert.Equal(t, 3, hit.ChunkIndex)
	assert.Equal(t, float32(0.91), hit.Certainty)
	assert.Equal(t, r.Additional.ID, hit.ID)
}

func TestResultToHit_NilOptionals(t *testing.T) {
	hit := resultToHit(datatypes.ChunkResult{Source: "NPPF"})
	assert.Zero(t, hit.ChunkIndex)
	assert.Zero(t, hit.Certainty)
}

func TestParseMetaCount(t *testing.T) {
	t.Run("count present", func(t *testing.T) {
		data := map[string]models.JSONObject{
			"Aggregate": map[string]interface{}{
				"PolicyChunk": []interface{}{
					map[string]interface{}{
						"meta": map[string]interface{}{"count": 42.0},
					},
				},
			},
		}
		count, err := parseMetaCount(data)
		require.NoError(t, err)
		assert.Equal(t, 42, count)
	})

	t.Run("no groups means zero", func(t *testing.T) {
		data := map[string]models.JSONObject{
			"Aggregate": map[string]interface{}{
				"PolicyChunk": []interface{}{},
			},
		}
		count, err := parseMetaCount(data)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestParseRevisionGroups(t *testing.T) {
	data := map[string]models.JSONObject{
		"Aggregate": map[string]interface{}{
			"PolicyChunk": []interface{}{
				map[string]interface{}{
					"groupedBy": map[string]interface{}{"value": "rev-a"},
					"meta":      map[string]interface{}{"count": 12.0},
				},
				map[string]interface{}{
					"groupedBy": map[string]interface{}{"value": "rev-b"},
					"meta":      map[string]interface{}{"count": 7.0},
				},
				map[string]interface{}{
					// Grouping artifact without a value is skipped
					"groupedBy": map[string]interface{}{"value": ""},
					"meta":      map[string]interface{}{"count": 1.0},
				},
			},
		},
	}

	groups, err := parseRevisionGroups(data)
	require.NoError(t, err)
	assert.Len(t, groups, 2)
	assert.Equal(t, 12, groups["rev-a"])
	assert.Equal(t, 7, groups["rev-b"])
}
