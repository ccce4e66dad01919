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
	"github.com/weaviate/weaviate/entities/models"
)

// PolicyChunkClass is the Weaviate class holding every ingested chunk.
const PolicyChunkClass = "PolicyChunk"

// GetPolicyChunkSchema returns the schema for the PolicyChunk class.
//
// # Description
//
// One PolicyChunk object per chunk of ingested revision content. Vectors
// are supplied by the ingest pipeline (vectorizer "none"). The filterable
// fields carry the temporal provenance: search filters on revision_id (the
// resolver decides which revisions are in force), consistency aggregates
// group by revision_id, and effective_from/effective_to let operators
// inspect ranges directly in Weaviate.
//
// # Properties
//
//   - source: document slug, exact-match filterable.
//   - revision_id: owning revision UUID, exact-match filterable.
//   - effective_from: first day in force (YYYY-MM-DD).
//   - effective_to: last day in force INCLUSIVE; empty string = open-ended.
//   - section_ref: document section reference ("para_110", "5.2").
//   - heading: nearest heading text at chunk position.
//   - chunk_index: 0-based position within the revision.
//   - content: the chunk text, word-tokenized for hybrid queries.
//   - ingested_at: Unix milliseconds of the write.
func GetPolicyChunkSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       PolicyChunkClass,
		Description: "A chunk of one revision of a registered policy document.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexNullState:  true,
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "Canonical slug of the parent document (e.g. 'NPPF').",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "revision_id",
				DataType:        []string{"text"},
				Description:     "Deterministic UUID of the owning revision.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "effective_from",
				DataType:        []string{"text"},
				Description:     "First day the revision is in force (YYYY-MM-DD).",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "effective_to",
				DataType:        []string{"text"},
				Description:     "Last day in force, inclusive. Empty string when open-ended.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "section_ref",
				DataType:        []string{"text"},
				Description:     "Section reference within the document (e.g. 'para_110').",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "heading",
				DataType:     []string{"text"},
				Description:  "Nearest heading text above the chunk.",
				Tokenization: "word",
			},
			{
				Name:            "chunk_index",
				DataType:        []string{"int"},
				Description:     "0-based chunk position within the revision.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The chunk text.",
				Tokenization: "word",
			},
			{
				Name:            "ingested_at",
				DataType:        []string{"number"},
				Description:     "Timestamp (Unix ms) of when the chunk was written.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}
