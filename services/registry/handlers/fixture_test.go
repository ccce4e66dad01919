// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/Waymark/pkg/extensions"
	"github.com/AleutianAI/Waymark/services/registry/catalog"
	"github.com/AleutianAI/Waymark/services/registry/consistency"
	"github.com/AleutianAI/Waymark/services/registry/datatypes"
	"github.com/AleutianAI/Waymark/services/registry/handlers"
	"github.com/AleutianAI/Waymark/services/registry/ingest"
	"github.com/AleutianAI/Waymark/services/registry/routes"
	"github.com/AleutianAI/Waymark/services/registry/search"
	"github.com/AleutianAI/Waymark/services/registry/storage/badger"
	"github.com/AleutianAI/Waymark/services/registry/storage/blob"
	"github.com/AleutianAI/Waymark/services/registry/temporal"
	"github.com/AleutianAI/Waymark/services/registry/weaviate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const planningPolicy = `# National Planning Policy Framework

The planning system should be genuinely plan-led.

## 2. Achieving sustainable development

The purpose of the planning system is to contribute to the achievement of
sustainable development, including the provision of homes and supporting
infrastructure in a climate resilient way.

## 5. Delivering a sufficient supply of homes

To support the objective of significantly boosting the supply of homes, it
is important that a sufficient amount and variety of land can come forward
where it is needed.
`

// memoryVectorIndex is an in-memory stand-in for the weaviate chunk
// store. The same instance serves the ingestion writer, the search
// gateway, and the consistency checker, so an end-to-end request flow
// reads its own writes.
type memoryVectorIndex struct {
	mu        sync.Mutex
	chunks    map[string][]datatypes.ChunkRecord
	purges    map[string]int
	writeErr  error
	searchErr error
}

func newMemoryVectorIndex() *memoryVectorIndex {
	return &memoryVectorIndex{
		chunks: make(map[string][]datatypes.ChunkRecord),
		purges: make(map[string]int),
	}
}

func (f *memoryVectorIndex) WriteBatch(ctx context.Context, records []datatypes.ChunkRecord, vectors [][]float32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	for _, rec := range records {
		f.chunks[rec.RevisionID] = append(f.chunks[rec.RevisionID], rec)
	}
	return len(records), nil
}

func (f *memoryVectorIndex) PurgeRevision(ctx context.Context, revisionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.chunks[revisionID])
	delete(f.chunks, revisionID)
	f.purges[revisionID]++
	return n, nil
}

func (f *memoryVectorIndex) Search(ctx context.Context, vector []float32, revisionIDs []string, limit int) ([]weaviate.ChunkHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var hits []weaviate.ChunkHit
	for _, id := range revisionIDs {
		for _, rec := range f.chunks[id] {
			hits = append(hits, toHit(rec))
			if len(hits) == limit {
				return hits, nil
			}
		}
	}
	return hits, nil
}

func (f *memoryVectorIndex) SearchAll(ctx context.Context, vector []float32, sources []string, limit int) ([]weaviate.ChunkHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	allowed := make(map[string]bool, len(sources))
	for _, s := range sources {
		allowed[s] = true
	}
	var hits []weaviate.ChunkHit
	for _, recs := range f.chunks {
		for _, rec := range recs {
			if len(sources) > 0 && !allowed[rec.Source] {
				continue
			}
			hits = append(hits, toHit(rec))
			if len(hits) == limit {
				return hits, nil
			}
		}
	}
	return hits, nil
}

func (f *memoryVectorIndex) FetchSection(ctx context.Context, revisionID, sectionRef string) ([]weaviate.ChunkHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var hits []weaviate.ChunkHit
	for _, rec := range f.chunks[revisionID] {
		if rec.SectionRef == sectionRef {
			hits = append(hits, toHit(rec))
		}
	}
	return hits, nil
}

func (f *memoryVectorIndex) CountRevision(ctx context.Context, revisionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks[revisionID]), nil
}

func (f *memoryVectorIndex) ListRevisionCounts(ctx context.Context) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int, len(f.chunks))
	for id, recs := range f.chunks {
		counts[id] = len(recs)
	}
	return counts, nil
}

func (f *memoryVectorIndex) purgeCount(revisionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.purges[revisionID]
}

func toHit(rec datatypes.ChunkRecord) weaviate.ChunkHit {
	return weaviate.ChunkHit{
		Source:        rec.Source,
		RevisionID:    rec.RevisionID,
		EffectiveFrom: rec.EffectiveFrom,
		EffectiveTo:   rec.EffectiveTo,
		SectionRef:    rec.SectionRef,
		Heading:       rec.Heading,
		ChunkIndex:    rec.ChunkIndex,
		Content:       rec.Content,
		Certainty:     0.92,
	}
}

// fakeVectorizer serves both the ingestion pipeline and search queries
// with deterministic vectors.
type fakeVectorizer struct {
	embedErr atomic.Value // error
}

func (f *fakeVectorizer) failWith(err error) {
	f.embedErr.Store(err)
}

func (f *fakeVectorizer) Embed(ctx context.Context, text string) ([]float32, error) {
	if err, ok := f.embedErr.Load().(error); ok && err != nil {
		return nil, err
	}
	return []float32{float32(len(text)), 0.5, 0.25}, nil
}

func (f *fakeVectorizer) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

type scriptedGate struct {
	reject atomic.Bool
}

func (g *scriptedGate) ShouldRejectQueries() bool { return g.reject.Load() }

// registryFixture runs the full API against in-memory storage and the
// fake vector index, wired through the production route table.
type registryFixture struct {
	router    *gin.Engine
	h         *handlers.Handlers
	cat       *catalog.Catalog
	coord     *ingest.Coordinator
	vectors   *memoryVectorIndex
	vectorize *fakeVectorizer
	gate      *scriptedGate
	db        *badger.DB
	backupDir string
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	logger := discardLogger()

	db, err := badger.OpenDB(badger.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := catalog.NewStore(db, logger)
	require.NoError(t, err)
	blobs, err := blob.NewStore(t.TempDir())
	require.NoError(t, err)
	index := temporal.NewIndex()
	cat, err := catalog.NewCatalog(store, blobs, index,
		extensions.NewMemoryAuditLogger(64), logger)
	require.NoError(t, err)
	resolver := temporal.NewResolver(index)

	vectors := newMemoryVectorIndex()
	writer, err := ingest.NewWriter(vectors, 8, logger)
	require.NoError(t, err)
	vectorize := &fakeVectorizer{}

	coord, err := ingest.NewCoordinator(ingest.Config{
		Workers:           2,
		QueueDepth:        16,
		EmbedBatchSize:    8,
		WriteBatchSize:    8,
		HoldCheckInterval: 10 * time.Millisecond,
	}, ingest.Deps{
		Catalog:  cat,
		Store:    store,
		Blobs:    blobs,
		Embedder: vectorize,
		Writer:   writer,
		Logger:   logger,
	})
	require.NoError(t, err)
	coord.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coord.Shutdown(ctx)
	})

	gate := &scriptedGate{}
	gateway, err := search.NewGateway(resolver, vectorize, vectors, gate, logger)
	require.NoError(t, err)

	checker, err := consistency.NewChecker(consistency.Config{}, store, vectors, logger)
	require.NoError(t, err)
	scheduler, err := consistency.NewScheduler(checker, time.Hour, logger)
	require.NoError(t, err)

	backupDir := t.TempDir()
	h, err := handlers.New(handlers.Deps{
		Catalog:     cat,
		Resolver:    resolver,
		Blobs:       blobs,
		Gateway:     gateway,
		Coordinator: coord,
		Writer:      writer,
		Scheduler:   scheduler,
		DB:          db,
		BackupDir:   backupDir,
		Logger:      logger,
	})
	require.NoError(t, err)

	router := gin.New()
	routes.SetupRoutes(router, h, extensions.DefaultOptions())

	return &registryFixture{
		router:    router,
		h:         h,
		cat:       cat,
		coord:     coord,
		vectors:   vectors,
		vectorize: vectorize,
		gate:      gate,
		db:        db,
		backupDir: backupDir,
	}
}

// do runs one request through the router and returns the recorder.
func (f *registryFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out),
		"body: %s", rec.Body.String())
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) datatypes.ErrorResponse {
	t.Helper()
	var envelope datatypes.ErrorResponse
	decodeInto(t, rec, &envelope)
	return envelope
}

func (f *registryFixture) createDocument(t *testing.T, source, title string, category datatypes.DocumentCategory) datatypes.Document {
	t.Helper()
	rec := f.do(t, "POST", "/v1/documents", datatypes.CreateDocumentRequest{
		Source:   source,
		Title:    title,
		Category: category,
	})
	require.Equal(t, 201, rec.Code, "body: %s", rec.Body.String())
	var doc datatypes.Document
	decodeInto(t, rec, &doc)
	return doc
}

func (f *registryFixture) addRevision(t *testing.T, source string, req datatypes.AddRevisionRequest) datatypes.AddRevisionResponse {
	t.Helper()
	rec := f.do(t, "POST", "/v1/documents/"+source+"/revisions", req)
	require.Equal(t, 201, rec.Code, "body: %s", rec.Body.String())
	var resp datatypes.AddRevisionResponse
	decodeInto(t, rec, &resp)
	return resp
}

// waitIngested blocks until the revision's async ingestion flips it to
// active.
func (f *registryFixture) waitIngested(t *testing.T, source, revisionID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		rev, err := f.cat.GetRevision(context.Background(), source, revisionID)
		return err == nil && rev.Status == datatypes.StatusActive
	}, 5*time.Second, 10*time.Millisecond, "revision %s never became active", revisionID)
}

// addActiveRevision registers a revision and waits out its ingestion.
func (f *registryFixture) addActiveRevision(t *testing.T, source, from, to string) datatypes.Revision {
	t.Helper()
	resp := f.addRevision(t, source, datatypes.AddRevisionRequest{
		EffectiveFrom: from,
		EffectiveTo:   to,
		Content:       planningPolicy,
	})
	f.waitIngested(t, source, resp.Revision.RevisionID)
	rev, err := f.cat.GetRevision(context.Background(), source, resp.Revision.RevisionID)
	require.NoError(t, err)
	return rev
}
