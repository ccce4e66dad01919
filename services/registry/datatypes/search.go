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

// =============================================================================
// Temporal Search
// =============================================================================

const (
	// DefaultSearchLimit is the result count when the request omits one.
	DefaultSearchLimit = 8

	// MaxSearchLimit bounds result counts to keep GraphQL responses small.
	MaxSearchLimit = 50

	// MaxQueryLength bounds the query text handed to the embedder.
	MaxQueryLength = 4096
)

// SearchRequest is a semantic query, optionally pinned to the registry
// state on a given date.
//
// # Fields
//
//   - Query: free-text query, embedded and matched against chunk vectors.
//   - AsOfDate: optional canonical date. When set, only chunks of revisions
//     in force on that date are eligible; the revision set is computed by
//     the resolver BEFORE any vector query. Empty means no temporal filter.
//   - Sources: optional slugs restricting the search to specific documents.
//   - Limit: maximum results; defaulted and capped by EnsureDefaults.
type SearchRequest struct {
	Query    string   `json:"query" validate:"required,max=4096"`
	AsOfDate string   `json:"as_of_date" validate:"dateonly"`
	Sources  []string `json:"sources" validate:"dive,source_slug"`
	Limit    int      `json:"limit" validate:"gte=0,lte=50"`
}

// Validate validates the SearchRequest fields.
func (r *SearchRequest) Validate() error {
	return registryValidate.Struct(r)
}

// EnsureDefaults applies the default and maximum result limit.
func (r *SearchRequest) EnsureDefaults() {
	if r.Limit <= 0 {
		r.Limit = DefaultSearchLimit
	}
	if r.Limit > MaxSearchLimit {
		r.Limit = MaxSearchLimit
	}
}

// SearchHit is one matched chunk with its provenance and effective range.
type SearchHit struct {
	Source        string  `json:"source"`
	RevisionID    string  `json:"revision_id"`
	EffectiveFrom string  `json:"effective_from"`
	EffectiveTo   string  `json:"effective_to,omitempty"`
	SectionRef    string  `json:"section_ref,omitempty"`
	Heading       string  `json:"heading,omitempty"`
	ChunkIndex    int     `json:"chunk_index"`
	Content       string  `json:"content"`
	Certainty     float64 `json:"certainty,omitempty"`
}

// SearchResponse is the ranked result set for one query.
//
// ResolvedRevisions records the revision IDs the resolver produced for
// AsOfDate (empty without a temporal filter), so callers can see which
// registry state answered the query.
type SearchResponse struct {
	Query             string      `json:"query"`
	AsOfDate          string      `json:"as_of_date,omitempty"`
	Hits              []SearchHit `json:"hits"`
	Count             int         `json:"count"`
	ResolvedRevisions []string    `json:"resolved_revisions,omitempty"`
}

// =============================================================================
// Section Fetch
// =============================================================================

// SectionResponse is a full section of a resolved revision, reassembled
// from its chunks in order.
type SectionResponse struct {
	Source     string `json:"source"`
	SectionRef string `json:"section_ref"`
	AsOfDate   string `json:"as_of_date"`
	RevisionID string `json:"revision_id"`
	Heading    string `json:"heading,omitempty"`
	Content    string `json:"content"`
	ChunkCount int    `json:"chunk_count"`
}
