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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

// sectionFetchLimit caps how many chunks a single section fetch returns.
// Sections are chunked at a few hundred tokens each, so real sections sit
// far below this.
const sectionFetchLimit = 256

// ChunkHit is one chunk returned from the index.
type ChunkHit struct {
	ID            string  `json:"id"`
	Source        string  `json:"source"`
	RevisionID    string  `json:"revision_id"`
	EffectiveFrom string  `json:"effective_from"`
	EffectiveTo   string  `json:"effective_to"`
	SectionRef    string  `json:"section_ref"`
	Heading       string  `json:"heading"`
	ChunkIndex    int     `json:"chunk_index"`
	Content       string  `json:"content"`
	Certainty     float32 `json:"certainty,omitempty"`
}

// ChunkStore reads and writes PolicyChunk objects through the resilient
// client.
//
// Description:
//
//	All operations key on revision_id, never on source alone, so that a
//	revision's chunks can be purged or counted without touching its
//	siblings. Object IDs are deterministic (revision_id + chunk index),
//	which makes batch writes idempotent and therefore safe to retry.
//
// Thread Safety: Safe for concurrent use.
type ChunkStore struct {
	rc     *ResilientClient
	logger *slog.Logger
}

// NewChunkStore creates a chunk store over the given client.
func NewChunkStore(rc *ResilientClient, logger *slog.Logger) (*ChunkStore, error) {
	if rc == nil {
		return nil, errors.New("resilient client must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChunkStore{
		rc:     rc,
		logger: logger.With(slog.String("component", "chunk_store")),
	}, nil
}

// EnsureSchema creates the PolicyChunk class if it does not exist.
//
// Outputs:
//
//	error - Non-nil if the class cannot be fetched or created.
func (c *ChunkStore) EnsureSchema(ctx context.Context) error {
	class := datatypes.GetPolicyChunkSchema()

	return c.rc.Execute(ctx, func() error {
		_, err := c.rc.Client().Schema().ClassGetter().
			WithClassName(class.Class).
			Do(ctx)
		if err == nil {
			c.logger.Debug("schema already exists", slog.String("class", class.Class))
			return nil
		}

		// The client returns an error for a missing class, so create it.
		if err := c.rc.Client().Schema().ClassCreator().
			WithClass(class).
			Do(ctx); err != nil {
			return fmt.Errorf("create class %s: %w", class.Class, err)
		}
		c.logger.Info("created schema", slog.String("class", class.Class))
		return nil
	})
}

// WriteBatch writes one revision's chunks with their vectors in a single
// batch request.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	records - Chunk records, all for the same revision.
//	vectors - One embedding per record, same order.
//
// Outputs:
//
//	int - Number of chunks accepted by the index.
//	error - ErrIndexWriteFailed if any item was rejected.
func (c *ChunkStore) WriteBatch(ctx context.Context, records []datatypes.ChunkRecord, vectors [][]float32) (int, error) {
	if len(records) != len(vectors) {
		return 0, fmt.Errorf("%w: %d records but %d vectors",
			datatypes.ErrIndexWriteFailed, len(records), len(vectors))
	}
	if len(records) == 0 {
		return 0, nil
	}

	ctx, span := otel.Tracer("registry").Start(ctx, "weaviate.WriteBatch",
		trace.WithAttributes(
			attribute.String("revision_id", records[0].RevisionID),
			attribute.Int("chunks", len(records)),
		),
	)
	defer span.End()

	objects := make([]*models.Object, len(records))
	for i, rec := range records {
		objects[i] = &models.Object{
			Class:      datatypes.PolicyChunkClass,
			ID:         strfmt.UUID(datatypes.NewChunkID(rec.RevisionID, rec.ChunkIndex)),
			Vector:     vectors[i],
			Properties: rec.ToMap(),
		}
	}

	var written int
	err := c.rc.Execute(ctx, func() error {
		written = 0
		resp, err := c.rc.Client().Batch().ObjectsBatcher().
			WithObjects(objects...).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("batch write: %w", err)
		}

		var firstMsg string
		failed := 0
		for _, item := range resp {
			if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
				written++
				continue
			}
			failed++
			if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
				for _, errItem := range item.Result.Errors.Error {
					if firstMsg == "" {
						firstMsg = errItem.Message
					}
					c.logger.Warn("rejected batch item",
						slog.String("revision_id", records[0].RevisionID),
						slog.String("error", errItem.Message))
				}
			}
		}
		if failed > 0 {
			return fmt.Errorf("%w: %d of %d chunks rejected: %s",
				datatypes.ErrIndexWriteFailed, failed, len(objects), firstMsg)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch write failed")
		return written, err
	}

	span.SetStatus(codes.Ok, "written")
	return written, nil
}

// PurgeRevision deletes every chunk belonging to a revision.
//
// Outputs:
//
//	int - Number of chunks deleted.
//	error - Non-nil if the delete request failed or was partial.
func (c *ChunkStore) PurgeRevision(ctx context.Context, revisionID string) (int, error) {
	ctx, span := otel.Tracer("registry").Start(ctx, "weaviate.PurgeRevision",
		trace.WithAttributes(attribute.String("revision_id", revisionID)),
	)
	defer span.End()

	where := filters.Where().
		WithPath([]string{"revision_id"}).
		WithOperator(filters.Equal).
		WithValueText(revisionID)

	var deleted int
	err := c.rc.Execute(ctx, func() error {
		resp, err := c.rc.Client().Batch().ObjectsBatchDeleter().
			WithClassName(datatypes.PolicyChunkClass).
			WithWhere(where).
			WithOutput("minimal").
			Do(ctx)
		if err != nil {
			return fmt.Errorf("batch delete: %w", err)
		}
		if resp == nil || resp.Results == nil {
			deleted = 0
			return nil
		}
		deleted = int(resp.Results.Successful)
		if resp.Results.Failed > 0 {
			return fmt.Errorf("partial purge: %d deleted, %d failed",
				resp.Results.Successful, resp.Results.Failed)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "purge failed")
		return deleted, err
	}

	span.SetAttributes(attribute.Int("deleted", deleted))
	span.SetStatus(codes.Ok, "purged")
	return deleted, nil
}

// CountRevision returns how many chunks the index holds for a revision.
func (c *ChunkStore) CountRevision(ctx context.Context, revisionID string) (int, error) {
	where := filters.Where().
		WithPath([]string{"revision_id"}).
		WithOperator(filters.Equal).
		WithValueText(revisionID)

	var count int
	err := c.rc.Execute(ctx, func() error {
		resp, err := c.rc.Client().GraphQL().Aggregate().
			WithClassName(datatypes.PolicyChunkClass).
			WithWhere(where).
			WithFields(graphql.Field{
				Name:   "meta",
				Fields: []graphql.Field{{Name: "count"}},
			}).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("aggregate query failed: %w", err)
		}

		count, err = parseMetaCount(resp.Data)
		return err
	})
	return count, err
}

// ListRevisionCounts returns the chunk count per revision_id across the
// whole index. The consistency checker uses this to find orphaned chunks
// whose revision no longer exists in the catalog.
func (c *ChunkStore) ListRevisionCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	err := c.rc.Execute(ctx, func() error {
		resp, err := c.rc.Client().GraphQL().Aggregate().
			WithClassName(datatypes.PolicyChunkClass).
			WithGroupBy("revision_id").
			WithFields(
				graphql.Field{
					Name:   "groupedBy",
					Fields: []graphql.Field{{Name: "value"}},
				},
				graphql.Field{
					Name:   "meta",
					Fields: []graphql.Field{{Name: "count"}},
				},
			).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("aggregate query failed: %w", err)
		}

		groups, err := parseRevisionGroups(resp.Data)
		if err != nil {
			return err
		}
		clear(counts)
		for id, n := range groups {
			counts[id] = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// Search runs a vector query restricted to the given revisions.
//
// Description:
//
//	The revision filter is what makes search temporal. The resolver picks
//	the revision in force per document for the query date, and only those
//	IDs are searched. An empty ID set returns no hits without touching
//	the index, so a dated query can never return chunks the resolver did
//	not sanction.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	vector - Query embedding.
//	revisionIDs - Revisions to search within. Empty returns no hits.
//	limit - Maximum hits to return. Non-positive uses 10.
//
// Outputs:
//
//	[]ChunkHit - Hits ordered by certainty, best first.
//	error - Non-nil if the query failed.
func (c *ChunkStore) Search(ctx context.Context, vector []float32, revisionIDs []string, limit int) ([]ChunkHit, error) {
	if len(revisionIDs) == 0 {
		return nil, nil
	}
	where := filters.Where().
		WithPath([]string{"revision_id"}).
		WithOperator(filters.ContainsAny).
		WithValueText(revisionIDs...)
	return c.vectorQuery(ctx, "weaviate.Search", vector, where, limit,
		attribute.Int("revisions", len(revisionIDs)))
}

// SearchAll runs a vector query with no temporal filter, spanning every
// indexed revision, superseded ones included. An optional source list
// narrows it to specific documents. This is the explicit no-time-constraint
// mode; dated queries go through Search.
func (c *ChunkStore) SearchAll(ctx context.Context, vector []float32, sources []string, limit int) ([]ChunkHit, error) {
	var where *filters.WhereBuilder
	if len(sources) > 0 {
		where = filters.Where().
			WithPath([]string{"source"}).
			WithOperator(filters.ContainsAny).
			WithValueText(sources...)
	}
	return c.vectorQuery(ctx, "weaviate.SearchAll", vector, where, limit,
		attribute.Int("sources", len(sources)))
}

func (c *ChunkStore) vectorQuery(ctx context.Context, name string, vector []float32, where *filters.WhereBuilder, limit int, attrs ...attribute.KeyValue) ([]ChunkHit, error) {
	if limit <= 0 {
		limit = 10
	}

	ctx, span := otel.Tracer("registry").Start(ctx, name,
		trace.WithAttributes(append(attrs, attribute.Int("limit", limit))...))
	defer span.End()

	nearVector := c.rc.Client().GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	// Certainty (always [0,1]) instead of distance, which varies by metric.
	fields := []graphql.Field{
		{Name: "source"},
		{Name: "revision_id"},
		{Name: "effective_from"},
		{Name: "effective_to"},
		{Name: "section_ref"},
		{Name: "heading"},
		{Name: "chunk_index"},
		{Name: "content"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "certainty"},
		}},
	}

	var hits []ChunkHit
	err := c.rc.Execute(ctx, func() error {
		query := c.rc.Client().GraphQL().Get().
			WithClassName(datatypes.PolicyChunkClass).
			WithFields(fields...).
			WithNearVector(nearVector).
			WithLimit(limit)
		if where != nil {
			query = query.WithWhere(where)
		}
		resp, err := query.Do(ctx)
		if err != nil {
			return fmt.Errorf("vector query failed: %w", err)
		}

		parsed, err := datatypes.ParseGraphQLResponse[datatypes.ChunkQueryResponse](resp)
		if err != nil {
			return fmt.Errorf("failed to parse results: %w", err)
		}

		hits = hits[:0]
		for _, r := range parsed.Get.PolicyChunk {
			hits = append(hits, resultToHit(r))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("hits", len(hits)))
	span.SetStatus(codes.Ok, "searched")
	return hits, nil
}

// FetchSection returns every chunk of one section of a revision, in
// document order.
//
// Outputs:
//
//	[]ChunkHit - Chunks ordered by chunk_index. Empty if the section has
//	no chunks in the index.
//	error - Non-nil if the query failed.
func (c *ChunkStore) FetchSection(ctx context.Context, revisionID, sectionRef string) ([]ChunkHit, error) {
	ctx, span := otel.Tracer("registry").Start(ctx, "weaviate.FetchSection",
		trace.WithAttributes(
			attribute.String("revision_id", revisionID),
			attribute.String("section_ref", sectionRef),
		),
	)
	defer span.End()

	revisionFilter := filters.Where().
		WithPath([]string{"revision_id"}).
		WithOperator(filters.Equal).
		WithValueText(revisionID)

	sectionFilter := filters.Where().
		WithPath([]string{"section_ref"}).
		WithOperator(filters.Equal).
		WithValueText(sectionRef)

	combinedFilter := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{revisionFilter, sectionFilter})

	sortBy := graphql.Sort{Path: []string{"chunk_index"}, Order: graphql.Asc}

	fields := []graphql.Field{
		{Name: "source"},
		{Name: "revision_id"},
		{Name: "effective_from"},
		{Name: "effective_to"},
		{Name: "section_ref"},
		{Name: "heading"},
		{Name: "chunk_index"},
		{Name: "content"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
		}},
	}

	var chunks []ChunkHit
	err := c.rc.Execute(ctx, func() error {
		resp, err := c.rc.Client().GraphQL().Get().
			WithClassName(datatypes.PolicyChunkClass).
			WithFields(fields...).
			WithWhere(combinedFilter).
			WithSort(sortBy).
			WithLimit(sectionFetchLimit).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("section query failed: %w", err)
		}

		parsed, err := datatypes.ParseGraphQLResponse[datatypes.ChunkQueryResponse](resp)
		if err != nil {
			return fmt.Errorf("failed to parse results: %w", err)
		}

		chunks = chunks[:0]
		for _, r := range parsed.Get.PolicyChunk {
			chunks = append(chunks, resultToHit(r))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "section fetch failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	span.SetStatus(codes.Ok, "fetched")
	return chunks, nil
}

// -----------------------------------------------------------------------------
// Response Parsing
// -----------------------------------------------------------------------------

// resultToHit converts one parsed GraphQL result into a ChunkHit.
func resultToHit(r datatypes.ChunkResult) ChunkHit {
	hit := ChunkHit{
		ID:            r.Additional.ID,
		Source:        r.Source,
		RevisionID:    r.RevisionID,
		EffectiveFrom: r.EffectiveFrom,
		EffectiveTo:   r.EffectiveTo,
		SectionRef:    r.SectionRef,
		Heading:       r.Heading,
		Content:       r.Content,
	}
	if r.ChunkIndex != nil {
		hit.ChunkIndex = *r.ChunkIndex
	}
	if r.Additional.Certainty != nil {
		hit.Certainty = *r.Additional.Certainty
	}
	return hit
}

// parseMetaCount extracts the object count from an aggregate response.
func parseMetaCount(data interface{}) (int, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("marshal aggregate response: %w", err)
	}

	var response struct {
		Aggregate struct {
			PolicyChunk []struct {
				Meta struct {
					Count float64 `json:"count"`
				} `json:"meta"`
			} `json:"PolicyChunk"`
		} `json:"Aggregate"`
	}
	if err := json.Unmarshal(jsonBytes, &response); err != nil {
		return 0, fmt.Errorf("unmarshal aggregate response: %w", err)
	}

	if len(response.Aggregate.PolicyChunk) == 0 {
		return 0, nil
	}
	return int(response.Aggregate.PolicyChunk[0].Meta.Count), nil
}

// parseRevisionGroups extracts per-revision counts from a grouped
// aggregate response.
func parseRevisionGroups(data interface{}) (map[string]int, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal aggregate response: %w", err)
	}

	var response struct {
		Aggregate struct {
			PolicyChunk []struct {
				GroupedBy struct {
					Value string `json:"value"`
				} `json:"groupedBy"`
				Meta struct {
					Count float64 `json:"count"`
				} `json:"meta"`
			} `json:"PolicyChunk"`
		} `json:"Aggregate"`
	}
	if err := json.Unmarshal(jsonBytes, &response); err != nil {
		return nil, fmt.Errorf("unmarshal aggregate response: %w", err)
	}

	groups := make(map[string]int, len(response.Aggregate.PolicyChunk))
	for _, g := range response.Aggregate.PolicyChunk {
		if g.GroupedBy.Value == "" {
			continue
		}
		groups[g.GroupedBy.Value] = int(g.Meta.Count)
	}
	return groups, nil
}
