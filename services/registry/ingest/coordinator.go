// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/Waymark/services/registry/catalog"
	"github.com/AleutianAI/Waymark/services/registry/datatypes"
	"github.com/AleutianAI/Waymark/services/registry/observability"
	"github.com/AleutianAI/Waymark/services/registry/storage/blob"
)

var (
	// ErrQueueFull means the intake channel is at capacity. Callers map
	// this to a retry-later response.
	ErrQueueFull = errors.New("ingestion queue full")

	// ErrIntakeClosed means the coordinator is shutting down and accepts
	// no new jobs.
	ErrIntakeClosed = errors.New("ingestion intake closed")
)

// Job is one unit of ingestion work. Content may be nil, in which case
// the worker re-reads the revision blob by its stored file reference.
type Job struct {
	Source     string
	RevisionID string
	Content    []byte
}

// JobHolder pauses job starts while the vector index is degraded.
// *weaviate.IngestDegradation is the production implementation.
type JobHolder interface {
	ShouldHoldJobs() bool
}

// Config tunes the coordinator's worker pool and batching.
type Config struct {
	// Workers is the number of concurrent ingestion workers.
	Workers int

	// QueueDepth is the intake channel capacity.
	QueueDepth int

	// EmbedBatchSize is how many chunks go to the embedder per request.
	EmbedBatchSize int

	// WriteBatchSize is how many chunk objects go to the index per batch.
	WriteBatchSize int

	// HoldCheckInterval is how often a held worker re-checks degradation.
	HoldCheckInterval time.Duration
}

// DefaultConfig returns the coordinator defaults.
func DefaultConfig() Config {
	return Config{
		Workers:           2,
		QueueDepth:        32,
		EmbedBatchSize:    64,
		WriteBatchSize:    128,
		HoldCheckInterval: 2 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = def.QueueDepth
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = def.EmbedBatchSize
	}
	if c.WriteBatchSize <= 0 {
		c.WriteBatchSize = def.WriteBatchSize
	}
	if c.HoldCheckInterval <= 0 {
		c.HoldCheckInterval = def.HoldCheckInterval
	}
}

// Deps are the collaborators the coordinator drives. Hold is optional;
// everything else is required.
type Deps struct {
	Catalog  *catalog.Catalog
	Store    *catalog.Store
	Blobs    *blob.Store
	Embedder Embedder
	Writer   *Writer
	Hold     JobHolder
	Logger   *slog.Logger
}

// Coordinator runs the ingestion pipeline through a fixed worker pool.
//
// # Description
//
// Jobs enter through Enqueue or Reindex and execute asynchronously:
// extract, chunk, embed, write, then flip the revision to active. Vectors
// are always written before the status flip, so a revision is never
// resolvable while its chunks are missing. On failure every chunk already
// written for the revision is purged and the revision is marked failed.
//
// Job state lives in an in-memory map for cheap polling and is persisted
// on every phase change so status survives restarts.
//
// # Thread Safety
//
// Safe for concurrent use.
type Coordinator struct {
	cfg      Config
	catalog  *catalog.Catalog
	store    *catalog.Store
	blobs    *blob.Store
	embedder Embedder
	writer   *Writer
	hold     JobHolder
	logger   *slog.Logger

	mu     sync.RWMutex
	jobs   map[string]*datatypes.IngestionJob
	closed bool

	tasks   chan Job
	wg      sync.WaitGroup
	started atomic.Bool
	cancel  context.CancelFunc
}

// NewCoordinator builds a coordinator. Call Start before enqueueing.
func NewCoordinator(cfg Config, deps Deps) (*Coordinator, error) {
	cfg.applyDefaults()
	if deps.Catalog == nil || deps.Store == nil || deps.Blobs == nil {
		return nil, fmt.Errorf("ingest coordinator needs catalog, store, and blobs")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("ingest coordinator needs an embedder")
	}
	if deps.Writer == nil {
		return nil, fmt.Errorf("ingest coordinator needs a writer")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:      cfg,
		catalog:  deps.Catalog,
		store:    deps.Store,
		blobs:    deps.Blobs,
		embedder: deps.Embedder,
		writer:   deps.Writer,
		hold:     deps.Hold,
		logger:   logger.With(slog.String("component", "ingest_coordinator")),
		jobs:     make(map[string]*datatypes.IngestionJob),
		tasks:    make(chan Job, cfg.QueueDepth),
	}, nil
}

// Start launches the worker pool. Subsequent calls are no-ops.
func (c *Coordinator) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go c.runWorker(ctx, i+1)
	}
	c.logger.Info("ingestion workers started",
		slog.Int("workers", c.cfg.Workers),
		slog.Int("queue_depth", c.cfg.QueueDepth))
}

// Enqueue accepts a job for asynchronous ingestion.
//
// # Outputs
//
//	error - datatypes.ErrIngestInProgress when a job for the revision is
//	        already queued or running, ErrQueueFull, or ErrIntakeClosed.
func (c *Coordinator) Enqueue(ctx context.Context, job Job) error {
	if job.Source == "" || job.RevisionID == "" {
		return fmt.Errorf("ingestion job needs a source and a revision id")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrIntakeClosed
	}
	if existing, ok := c.jobs[job.RevisionID]; ok && existing.Running() {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", datatypes.ErrIngestInProgress, job.RevisionID)
	}

	record := &datatypes.IngestionJob{
		RevisionID: job.RevisionID,
		Source:     job.Source,
		Phase:      datatypes.PhaseQueued,
		Percent:    datatypes.PhaseQueued.Percent(),
		EnqueuedAt: time.Now().UTC(),
	}
	if err := c.store.PutJob(ctx, *record); err != nil {
		c.logger.Warn("queued job not persisted",
			slog.String("revision_id", job.RevisionID),
			slog.Any("error", err))
	}

	select {
	case c.tasks <- job:
		c.jobs[job.RevisionID] = record
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		if err := c.store.DeleteJob(context.WithoutCancel(ctx), job.RevisionID); err != nil {
			c.logger.Warn("stale queued job record left behind", slog.Any("error", err))
		}
		return fmt.Errorf("%w: depth %d", ErrQueueFull, cap(c.tasks))
	}

	if m := observability.DefaultMetrics; m != nil {
		m.IngestionStarted()
		m.RecordIngestionPhase(string(datatypes.PhaseQueued))
	}
	c.logger.Info("ingestion queued",
		slog.String("source", job.Source),
		slog.String("revision_id", job.RevisionID))
	return nil
}

// Reindex re-runs ingestion for an existing revision.
//
// # Description
//
// Existing chunks are purged first, the revision moves back to
// processing (active and failed revisions both qualify), and a fresh job
// is enqueued. With nil content the worker re-reads the stored blob, so
// a reindex never needs the original upload.
func (c *Coordinator) Reindex(ctx context.Context, source, revisionID string, content []byte) error {
	ctx, span := otel.Tracer("registry").Start(ctx, "ingest.Reindex",
		trace.WithAttributes(
			attribute.String("source", source),
			attribute.String("revision_id", revisionID),
		),
	)
	defer span.End()

	c.mu.RLock()
	existing, ok := c.jobs[revisionID]
	running := ok && existing.Running()
	c.mu.RUnlock()
	if running {
		span.SetStatus(codes.Error, "job already running")
		return fmt.Errorf("%w: %s", datatypes.ErrIngestInProgress, revisionID)
	}

	rev, err := c.catalog.GetRevision(ctx, source, revisionID)
	if err != nil {
		span.SetStatus(codes.Error, "revision lookup failed")
		return err
	}

	if _, err := c.writer.Purge(ctx, revisionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "purge failed")
		return fmt.Errorf("purge before reindex: %w", err)
	}

	if rev.Status != datatypes.StatusProcessing {
		if _, err := c.catalog.SetRevisionStatus(ctx, source, revisionID, datatypes.StatusProcessing, nil); err != nil {
			span.SetStatus(codes.Error, "status transition rejected")
			return err
		}
	}

	return c.Enqueue(ctx, Job{Source: source, RevisionID: revisionID, Content: content})
}

// Status returns the job state for a revision, preferring the in-memory
// record and falling back to the persisted one.
//
// # Outputs
//
//	error - datatypes.ErrIngestionNotFound when no job exists.
func (c *Coordinator) Status(ctx context.Context, revisionID string) (datatypes.IngestionStatusResponse, error) {
	c.mu.RLock()
	if record, ok := c.jobs[revisionID]; ok {
		snapshot := *record
		c.mu.RUnlock()
		return datatypes.StatusFromJob(&snapshot), nil
	}
	c.mu.RUnlock()

	job, err := c.store.GetJob(ctx, revisionID)
	if err != nil {
		return datatypes.IngestionStatusResponse{}, err
	}
	return datatypes.StatusFromJob(&job), nil
}

// Shutdown stops intake and drains accepted jobs. When ctx expires first,
// in-flight work is cancelled; the failure paths still persist final
// states.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.tasks)
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("ingestion coordinator drained")
		return nil
	case <-ctx.Done():
		if c.cancel != nil {
			c.cancel()
		}
		<-done
		c.logger.Warn("ingestion coordinator shutdown cut short", slog.Any("error", ctx.Err()))
		return ctx.Err()
	}
}

// =============================================================================
// Workers
// =============================================================================

func (c *Coordinator) runWorker(ctx context.Context, id int) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-c.tasks:
			if !ok {
				return
			}
			c.runJob(ctx, job)
		}
	}
}

func (c *Coordinator) runJob(ctx context.Context, job Job) {
	ctx, span := otel.Tracer("registry").Start(ctx, "ingest.runJob",
		trace.WithAttributes(
			attribute.String("source", job.Source),
			attribute.String("revision_id", job.RevisionID),
		),
	)
	defer span.End()

	if err := c.holdWhileDegraded(ctx, job); err != nil {
		// Shutdown hit while the job was held. It stays queued in the
		// store; the consistency checker reports it if never resumed.
		c.logger.Warn("job held at shutdown, leaving queued",
			slog.String("revision_id", job.RevisionID))
		return
	}

	start := time.Now()
	c.updateJob(ctx, job.RevisionID, func(j *datatypes.IngestionJob) {
		j.Phase = datatypes.PhaseExtracting
		j.Percent = datatypes.PhaseExtracting.Percent()
		j.StartedAt = start.UTC()
	})

	rev, err := c.catalog.GetRevision(ctx, job.Source, job.RevisionID)
	if err != nil {
		c.failJob(ctx, job, datatypes.PhaseExtracting, err)
		return
	}

	content, err := c.extract(ctx, rev, job.Content)
	if err != nil {
		c.failJob(ctx, job, datatypes.PhaseExtracting, err)
		return
	}

	c.setPhase(ctx, job.RevisionID, datatypes.PhaseChunking)
	records, err := ChunkDocument(rev, content)
	if err != nil {
		c.failJob(ctx, job, datatypes.PhaseChunking, err)
		return
	}

	c.setPhase(ctx, job.RevisionID, datatypes.PhaseEmbedding)
	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.Content
	}
	vectors, err := EmbedChunks(ctx, c.embedder, texts, c.cfg.EmbedBatchSize, func(done, total int) {
		c.updateJob(ctx, job.RevisionID, func(j *datatypes.IngestionJob) {
			j.Percent = progressBetween(datatypes.PhaseEmbedding, datatypes.PhaseWriting, done, total)
		})
	})
	if err != nil {
		c.failJob(ctx, job, datatypes.PhaseEmbedding, err)
		return
	}

	c.setPhase(ctx, job.RevisionID, datatypes.PhaseWriting)
	written, err := c.writer.WriteChunks(ctx, records, vectors, nil)
	if err != nil {
		c.failJob(ctx, job, datatypes.PhaseWriting, err)
		return
	}

	// Chunks are verified in the index; only now does the revision become
	// resolvable.
	if _, err := c.catalog.SetRevisionStatus(ctx, job.Source, job.RevisionID, datatypes.StatusActive, func(r *datatypes.Revision) {
		r.ChunkCount = written
		r.IngestedAt = time.Now().UTC()
	}); err != nil {
		c.failJob(ctx, job, datatypes.PhaseWriting, err)
		return
	}

	c.updateJob(ctx, job.RevisionID, func(j *datatypes.IngestionJob) {
		j.Phase = datatypes.PhaseDone
		j.Percent = datatypes.PhaseDone.Percent()
		j.ChunkCount = written
		j.FinishedAt = time.Now().UTC()
	})
	if m := observability.DefaultMetrics; m != nil {
		m.IngestionEnded()
		m.ObserveIngestion("done", time.Since(start).Seconds())
	}
	c.logger.Info("ingestion complete",
		slog.String("source", job.Source),
		slog.String("revision_id", job.RevisionID),
		slog.Int("chunks", written),
		slog.Duration("elapsed", time.Since(start)))
}

// holdWhileDegraded blocks while the degradation handler holds jobs.
func (c *Coordinator) holdWhileDegraded(ctx context.Context, job Job) error {
	if c.hold == nil || !c.hold.ShouldHoldJobs() {
		return nil
	}
	c.logger.Info("holding ingestion job until the index recovers",
		slog.String("revision_id", job.RevisionID))
	ticker := time.NewTicker(c.cfg.HoldCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !c.hold.ShouldHoldJobs() {
				return nil
			}
		}
	}
}

// failJob purges written chunks, marks the revision failed, and records
// the phase and cause on the job. Runs detached from ctx cancellation so
// final states land even during shutdown.
func (c *Coordinator) failJob(ctx context.Context, job Job, phase datatypes.IngestionPhase, cause error) {
	ctx = context.WithoutCancel(ctx)
	trace.SpanFromContext(ctx).RecordError(cause)
	trace.SpanFromContext(ctx).SetStatus(codes.Error, string(phase))

	c.logger.Error("ingestion failed",
		slog.String("source", job.Source),
		slog.String("revision_id", job.RevisionID),
		slog.String("phase", string(phase)),
		slog.Any("error", cause))

	if _, err := c.writer.Purge(ctx, job.RevisionID); err != nil {
		c.logger.Warn("purge after failure incomplete",
			slog.String("revision_id", job.RevisionID),
			slog.Any("error", err))
	}

	note := fmt.Sprintf("ingestion failed during %s: %v", phase, cause)
	if _, err := c.catalog.SetRevisionStatus(ctx, job.Source, job.RevisionID, datatypes.StatusFailed, func(r *datatypes.Revision) {
		r.Notes = truncate(note, 512)
	}); err != nil && !errors.Is(err, datatypes.ErrRevisionNotFound) {
		c.logger.Warn("could not mark revision failed",
			slog.String("revision_id", job.RevisionID),
			slog.Any("error", err))
	}

	c.updateJob(ctx, job.RevisionID, func(j *datatypes.IngestionJob) {
		j.Phase = datatypes.PhaseFailed
		j.Percent = datatypes.PhaseFailed.Percent()
		j.Error = cause.Error()
		j.FinishedAt = time.Now().UTC()
	})

	c.mu.RLock()
	var elapsed time.Duration
	if record, ok := c.jobs[job.RevisionID]; ok && !record.StartedAt.IsZero() {
		elapsed = record.FinishedAt.Sub(record.StartedAt)
	}
	c.mu.RUnlock()
	if m := observability.DefaultMetrics; m != nil {
		m.IngestionEnded()
		m.ObserveIngestion("failed", elapsed.Seconds())
	}
}

// extract yields the text to chunk. PDF and HTML arrive pre-extracted by
// the operator tooling, so extraction here is normalization: BOM strip,
// CRLF fold, UTF-8 and emptiness checks.
func (c *Coordinator) extract(ctx context.Context, rev datatypes.Revision, content []byte) (string, error) {
	if len(content) == 0 {
		if rev.FileReference == "" {
			return "", fmt.Errorf("no content on job and no file reference on revision")
		}
		raw, err := c.blobs.Get(ctx, rev.FileReference)
		if err != nil {
			return "", fmt.Errorf("read revision blob: %w", err)
		}
		content = raw
	}

	text := string(bytes.TrimPrefix(content, []byte("\xef\xbb\xbf")))
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("content is not valid UTF-8")
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("content is empty")
	}
	return text, nil
}

// =============================================================================
// Job State
// =============================================================================

// updateJob mutates a tracked job and persists the result. Persisting
// under the lock keeps the store ordered with the in-memory state.
func (c *Coordinator) updateJob(ctx context.Context, revisionID string, mutate func(*datatypes.IngestionJob)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record, ok := c.jobs[revisionID]
	if !ok {
		return
	}
	before := record.Phase
	mutate(record)
	if record.Phase != before {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordIngestionPhase(string(record.Phase))
		}
	}
	if err := c.store.PutJob(context.WithoutCancel(ctx), *record); err != nil {
		c.logger.Warn("ingestion job state not persisted",
			slog.String("revision_id", revisionID),
			slog.Any("error", err))
	}
}

func (c *Coordinator) setPhase(ctx context.Context, revisionID string, phase datatypes.IngestionPhase) {
	c.updateJob(ctx, revisionID, func(j *datatypes.IngestionJob) {
		j.Phase = phase
		j.Percent = phase.Percent()
	})
}

// progressBetween interpolates percent between two phase anchors.
func progressBetween(from, to datatypes.IngestionPhase, done, total int) int {
	if total <= 0 {
		return from.Percent()
	}
	lo, hi := from.Percent(), to.Percent()
	return lo + (hi-lo)*done/total
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
