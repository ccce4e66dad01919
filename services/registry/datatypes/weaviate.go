// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// Encapsulates the marshal/unmarshal pattern required to convert Weaviate's
// dynamic response (map[string]models.JSONObject) into a strongly-typed Go
// struct. The target type T must have json tags matching the expected
// response shape.
//
// # Inputs
//
//   - resp: The GraphQL response from the Weaviate client's Do() method.
//
// # Outputs
//
//   - *T: Pointer to the parsed struct.
//   - error: Non-nil if the response is nil or parsing fails.
//
// # Limitations
//
//   - Type mismatches produce zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Chunk Query Response Types
// =============================================================================

// ChunkQueryResponse represents the response from querying the PolicyChunk
// class.
type ChunkQueryResponse struct {
	Get struct {
		PolicyChunk []ChunkResult `json:"PolicyChunk"`
	} `json:"Get"`
}

// ChunkResult represents a single chunk from a query.
type ChunkResult struct {
	Source        string `json:"source"`
	RevisionID    string `json:"revision_id"`
	EffectiveFrom string `json:"effective_from"`
	EffectiveTo   string `json:"effective_to"`
	SectionRef    string `json:"section_ref"`
	Heading       string `json:"heading"`
	ChunkIndex    *int   `json:"chunk_index"`
	Content       string `json:"content"`
	IngestedAt    int64  `json:"ingested_at"`
	Additional    struct {
		ID        string   `json:"id"`
		Distance  *float32 `json:"distance"`
		Certainty *float32 `json:"certainty"`
	} `json:"_additional"`
}

// ToMap converts a ChunkRecord to map[string]interface{} for Weaviate.
//
// # Example
//
//	obj := &models.Object{Class: PolicyChunkClass, Properties: rec.ToMap()}
func (r *ChunkRecord) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"source":         r.Source,
		"revision_id":    r.RevisionID,
		"effective_from": r.EffectiveFrom,
		"effective_to":   r.EffectiveTo,
		"section_ref":    r.SectionRef,
		"heading":        r.Heading,
		"chunk_index":    r.ChunkIndex,
		"content":        r.Content,
		"ingested_at":    r.IngestedAt,
	}
}
