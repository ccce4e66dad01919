// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package search answers semantic queries against the vector index,
// optionally pinned to the registry state on a given date.
//
// The gateway never queries the index blind on a dated search: the
// temporal resolver computes the revision set in force on the date first,
// and only those revision IDs are eligible. A date with nothing in force
// is an empty result, not an index query.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/Waymark/services/registry/datatypes"
	"github.com/AleutianAI/Waymark/services/registry/observability"
	"github.com/AleutianAI/Waymark/services/registry/temporal"
	"github.com/AleutianAI/Waymark/services/registry/weaviate"
)

// chunkOverlapBound bounds the overlap scan when reassembling a section
// from its chunks. The ingest chunker overlaps neighbouring chunks by a
// tenth of the chunk size; anything repeated beyond this is real text.
const chunkOverlapBound = 128

// minChunkOverlap is the shortest repeated run treated as splitter overlap
// rather than coincidence.
const minChunkOverlap = 24

// QueryEmbedder embeds query text. The ingest package's embedder backends
// satisfy this, so queries and documents share one vector space.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChunkIndex is the vector index surface the gateway reads.
// *weaviate.ChunkStore is the production implementation.
type ChunkIndex interface {
	Search(ctx context.Context, vector []float32, revisionIDs []string, limit int) ([]weaviate.ChunkHit, error)
	SearchAll(ctx context.Context, vector []float32, sources []string, limit int) ([]weaviate.ChunkHit, error)
	FetchSection(ctx context.Context, revisionID, sectionRef string) ([]weaviate.ChunkHit, error)
}

// QueryGate reports whether vector queries should be rejected outright.
// *weaviate.SearchDegradation is the production implementation.
type QueryGate interface {
	ShouldRejectQueries() bool
}

// Gateway is the temporal search entry point.
//
// Thread Safety: Safe for concurrent use.
type Gateway struct {
	resolver *temporal.Resolver
	embedder QueryEmbedder
	chunks   ChunkIndex
	gate     QueryGate
	logger   *slog.Logger
}

// NewGateway creates a search gateway. gate may be nil when degradation
// handling is not wired.
func NewGateway(resolver *temporal.Resolver, embedder QueryEmbedder, chunks ChunkIndex, gate QueryGate, logger *slog.Logger) (*Gateway, error) {
	if resolver == nil {
		return nil, errors.New("resolver must not be nil")
	}
	if embedder == nil {
		return nil, errors.New("embedder must not be nil")
	}
	if chunks == nil {
		return nil, errors.New("chunk index must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		resolver: resolver,
		embedder: embedder,
		chunks:   chunks,
		gate:     gate,
		logger:   logger.With(slog.String("component", "search_gateway")),
	}, nil
}

// Search runs a semantic query, constrained to the revisions in force on
// req.AsOfDate when one is given.
//
// # Description
//
// With a date, the resolver produces the in-force revision set before any
// vector work happens; an empty set returns an empty response without
// embedding or querying. Without a date the query spans every indexed
// revision, restricted to req.Sources when given. Hits are belt-checked
// against the resolved set; a chunk outside it means the index and the
// registry disagree, which is logged and the chunk dropped.
//
// # Outputs
//
//	datatypes.SearchResponse - Hits ordered by certainty, best first.
//	error - Validation errors, datatypes.ErrEmbeddingFailed, or
//	weaviate.ErrWeaviateUnavailable when queries are gated off.
func (g *Gateway) Search(ctx context.Context, req datatypes.SearchRequest) (_ datatypes.SearchResponse, retErr error) {
	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		return datatypes.SearchResponse{}, fmt.Errorf("invalid search request: %w", err)
	}

	mode := observability.SearchModeUndated
	if req.AsOfDate != "" {
		mode = observability.SearchModeDated
	}
	started := time.Now()
	defer func() {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordSearch(mode, time.Since(started).Seconds(), retErr)
		}
	}()

	ctx, span := otel.Tracer("registry").Start(ctx, "search.Search",
		trace.WithAttributes(
			attribute.String("as_of_date", req.AsOfDate),
			attribute.Int("sources", len(req.Sources)),
			attribute.Int("limit", req.Limit),
		),
	)
	defer span.End()

	// Gate before embedding so a degraded index does not burn embedder
	// quota on queries that cannot be answered.
	if g.gate != nil && g.gate.ShouldRejectQueries() {
		span.SetStatus(codes.Error, "queries gated off")
		return datatypes.SearchResponse{}, fmt.Errorf("%w: vector queries rejected while degraded", weaviate.ErrWeaviateUnavailable)
	}

	resp := datatypes.SearchResponse{
		Query:    req.Query,
		AsOfDate: req.AsOfDate,
		Hits:     []datatypes.SearchHit{},
	}

	var resolved map[string]temporal.Entry
	if req.AsOfDate != "" {
		set, err := g.resolver.InForceSet(req.AsOfDate, req.Sources)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "resolution failed")
			return datatypes.SearchResponse{}, err
		}
		resolved = set
		resp.ResolvedRevisions = revisionIDsOf(set)
		if len(resolved) == 0 {
			g.logger.Debug("nothing in force on query date",
				slog.String("as_of_date", req.AsOfDate))
			span.SetStatus(codes.Ok, "empty in-force set")
			return resp, nil
		}
	}

	vector, err := g.embedder.Embed(ctx, req.Query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query embedding failed")
		return datatypes.SearchResponse{}, fmt.Errorf("embed query: %w", err)
	}

	var hits []weaviate.ChunkHit
	if resolved != nil {
		hits, err = g.chunks.Search(ctx, vector, resp.ResolvedRevisions, req.Limit)
	} else {
		hits, err = g.chunks.SearchAll(ctx, vector, req.Sources, req.Limit)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "vector query failed")
		return datatypes.SearchResponse{}, err
	}

	for _, hit := range hits {
		if resolved != nil && !inResolvedSet(resolved, hit.RevisionID) {
			// The index holds a chunk tagged with a revision the resolver
			// did not produce for this date. Registry and index disagree;
			// the consistency checker's territory, not the client's.
			g.logger.Warn("dropping hit outside resolved revision set",
				slog.String("revision_id", hit.RevisionID),
				slog.String("source", hit.Source),
				slog.String("as_of_date", req.AsOfDate))
			continue
		}
		resp.Hits = append(resp.Hits, hitFromChunk(hit))
	}
	resp.Count = len(resp.Hits)

	span.SetAttributes(attribute.Int("hits", resp.Count))
	span.SetStatus(codes.Ok, "searched")
	return resp, nil
}

// GetSection reassembles one section of the revision in force on a date.
//
// # Description
//
// asOfDate empty means today. The resolver picks the revision; the
// section's chunks are fetched in document order and merged back into
// continuous text, trimming the splitter overlap at chunk seams.
//
// # Outputs
//
//	datatypes.SectionResponse - The reassembled section.
//	error - datatypes.ErrDocumentNotFound, ErrNoRevisionInForce,
//	ErrInvalidDate, or ErrSectionNotFound when the resolved revision has
//	no chunks under that reference.
func (g *Gateway) GetSection(ctx context.Context, source, sectionRef, asOfDate string) (_ datatypes.SectionResponse, retErr error) {
	if strings.TrimSpace(sectionRef) == "" {
		return datatypes.SectionResponse{}, fmt.Errorf("%w: empty section reference", datatypes.ErrSectionNotFound)
	}
	if asOfDate == "" {
		asOfDate = datatypes.Today()
	}

	defer func() {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordOperation("get_section", retErr)
		}
	}()

	ctx, span := otel.Tracer("registry").Start(ctx, "search.GetSection",
		trace.WithAttributes(
			attribute.String("source", source),
			attribute.String("section_ref", sectionRef),
			attribute.String("as_of_date", asOfDate),
		),
	)
	defer span.End()

	entry, err := g.resolver.Resolve(source, asOfDate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolution failed")
		return datatypes.SectionResponse{}, err
	}

	chunks, err := g.chunks.FetchSection(ctx, entry.RevisionID, sectionRef)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "section fetch failed")
		return datatypes.SectionResponse{}, err
	}
	if len(chunks) == 0 {
		span.SetStatus(codes.Error, "section not found")
		return datatypes.SectionResponse{}, fmt.Errorf("%w: %s section %q as of %s",
			datatypes.ErrSectionNotFound, source, sectionRef, asOfDate)
	}

	resp := datatypes.SectionResponse{
		Source:     source,
		SectionRef: sectionRef,
		AsOfDate:   asOfDate,
		RevisionID: entry.RevisionID,
		Heading:    chunks[0].Heading,
		Content:    mergeChunks(chunks),
		ChunkCount: len(chunks),
	}

	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	span.SetStatus(codes.Ok, "fetched")
	return resp, nil
}

// =============================================================================
// Helpers
// =============================================================================

// revisionIDsOf flattens an in-force set into revision IDs, ordered by
// source so responses are deterministic.
func revisionIDsOf(set map[string]temporal.Entry) []string {
	sources := make([]string, 0, len(set))
	for source := range set {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	ids := make([]string, 0, len(set))
	for _, source := range sources {
		ids = append(ids, set[source].RevisionID)
	}
	return ids
}

func inResolvedSet(set map[string]temporal.Entry, revisionID string) bool {
	for _, e := range set {
		if e.RevisionID == revisionID {
			return true
		}
	}
	return false
}

func hitFromChunk(hit weaviate.ChunkHit) datatypes.SearchHit {
	return datatypes.SearchHit{
		Source:        hit.Source,
		RevisionID:    hit.RevisionID,
		EffectiveFrom: hit.EffectiveFrom,
		EffectiveTo:   hit.EffectiveTo,
		SectionRef:    hit.SectionRef,
		Heading:       hit.Heading,
		ChunkIndex:    hit.ChunkIndex,
		Content:       hit.Content,
		Certainty:     float64(hit.Certainty),
	}
}

// mergeChunks reassembles section text from ordered chunks. Consecutive
// chunks repeat the splitter overlap at their seam; when the repeat is
// found the chunks are joined seamlessly, otherwise as separate blocks.
func mergeChunks(chunks []weaviate.ChunkHit) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c.Content)
			continue
		}
		if k := overlapLen(b.String(), c.Content); k > 0 {
			b.WriteString(c.Content[k:])
		} else {
			b.WriteString("\n\n")
			b.WriteString(c.Content)
		}
	}
	return b.String()
}

// overlapLen returns the longest k where the last k bytes of prev equal
// the first k bytes of next, bounded to the splitter overlap window.
func overlapLen(prev, next string) int {
	bound := min(chunkOverlapBound, len(prev), len(next))
	for k := bound; k >= minChunkOverlap; k-- {
		if strings.HasSuffix(prev, next[:k]) {
			return k
		}
	}
	return 0
}
