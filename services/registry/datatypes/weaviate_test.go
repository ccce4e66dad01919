// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// ParseGraphQLResponse Tests
// =============================================================================

func TestParseGraphQLResponse_ChunkQuery(t *testing.T) {
	resp := &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]interface{}{
				"PolicyChunk": []interface{}{
					map[string]interface{}{
						"source":         "NPPF",
						"revision_id":    "rev-1",
						"effective_from": "2024-12-12",
						"effective_to":   "",
						"section_ref":    "para_011",
						"heading":        "The presumption in favour of sustainable development",
						"chunk_index":    2,
						"content":        "Plans and decisions should apply a presumption...",
						"ingested_at":    1734000000000,
						"_additional": map[string]interface{}{
							"id":        "7c9e6679-7425-40de-944b-e07fc1f90ae7",
							"certainty": 0.87,
						},
					},
				},
			},
		},
	}

	parsed, err := ParseGraphQLResponse[ChunkQueryResponse](resp)
	require.NoError(t, err)
	require.Len(t, parsed.Get.PolicyChunk, 1)

	chunk := parsed.Get.PolicyChunk[0]
	assert.Equal(t, "NPPF", chunk.Source)
	assert.Equal(t, "rev-1", chunk.RevisionID)
	assert.Equal(t, "2024-12-12", chunk.EffectiveFrom)
	assert.Empty(t, chunk.EffectiveTo)
	assert.Equal(t, "para_011", chunk.SectionRef)
	require.NotNil(t, chunk.ChunkIndex)
	assert.Equal(t, 2, *chunk.ChunkIndex)
	assert.Equal(t, int64(1734000000000), chunk.IngestedAt)
	assert.Equal(t, "7c9e6679-7425-40de-944b-e07fc1f90ae7", chunk.Additional.ID)
	require.NotNil(t, chunk.Additional.Certainty)
	assert.InDelta(t, 0.87, float64(*chunk.Additional.Certainty), 0.0001)
	assert.Nil(t, chunk.Additional.Distance)
}

func TestParseGraphQLResponse_NilResponse(t *testing.T) {
	_, err := ParseGraphQLResponse[ChunkQueryResponse](nil)
	assert.Error(t, err)
}

func TestParseGraphQLResponse_EmptyData(t *testing.T) {
	parsed, err := ParseGraphQLResponse[ChunkQueryResponse](&models.GraphQLResponse{})
	require.NoError(t, err)
	assert.Empty(t, parsed.Get.PolicyChunk)
}

// =============================================================================
// ChunkRecord.ToMap Tests
// =============================================================================

func TestChunkRecord_ToMap(t *testing.T) {
	rec := ChunkRecord{
		Source:        "LTN_1_20",
		RevisionID:    "rev-9",
		EffectiveFrom: "2020-07-27",
		EffectiveTo:   "",
		SectionRef:    "4.2",
		Heading:       "Cycle lanes and tracks",
		ChunkIndex:    5,
		Content:       "Cycle lanes are part of the carriageway...",
		IngestedAt:    1734000000000,
	}

	m := rec.ToMap()
	assert.Equal(t, "LTN_1_20", m["source"])
	assert.Equal(t, "rev-9", m["revision_id"])
	assert.Equal(t, "2020-07-27", m["effective_from"])
	assert.Equal(t, "", m["effective_to"])
	assert.Equal(t, "4.2", m["section_ref"])
	assert.Equal(t, 5, m["chunk_index"])
	assert.Equal(t, int64(1734000000000), m["ingested_at"])
}

func TestChunkRecord_ToMap_MatchesSchemaProperties(t *testing.T) {
	// Every property written must exist in the class schema, and every
	// schema property must be written. A drift here surfaces as silent
	// nulls in the index.
	schema := GetPolicyChunkSchema()
	m := (&ChunkRecord{}).ToMap()

	schemaProps := make(map[string]bool, len(schema.Properties))
	for _, p := range schema.Properties {
		schemaProps[p.Name] = true
	}

	for key := range m {
		assert.True(t, schemaProps[key], "ToMap writes %q which is not in the schema", key)
	}
	for name := range schemaProps {
		_, ok := m[name]
		assert.True(t, ok, "schema property %q is never written", name)
	}
}
