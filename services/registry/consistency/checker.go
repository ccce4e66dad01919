// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package consistency audits the registry against the vector index.
//
// The registry and the index are mutated by different processes with no
// shared transaction, so they can drift: a crash between a status flip and
// a batch write, a purge that half-finished, an operator deleting objects
// by hand. The checker is a read-only sweep that names the drift; repair
// stays a human decision.
package consistency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/Waymark/services/registry/datatypes"
	"github.com/AleutianAI/Waymark/services/registry/observability"
)

// Severity grades a finding.
type Severity string

const (
	// SeverityWarn marks drift that degrades results but keeps the
	// registry usable.
	SeverityWarn Severity = "warn"

	// SeverityError marks drift that makes an active revision unsearchable.
	SeverityError Severity = "error"
)

// FindingKind names one class of registry/index disagreement.
type FindingKind string

const (
	// FindingMissingIndexData is an active revision with zero chunks in
	// the index. Resolvable but unsearchable.
	FindingMissingIndexData FindingKind = "missing_index_data"

	// FindingChunkCountDrift is an active revision whose indexed chunk
	// count differs from the registry's record.
	FindingChunkCountDrift FindingKind = "chunk_count_drift"

	// FindingOrphanedVectors is a revision_id present in the index with no
	// registry record behind it.
	FindingOrphanedVectors FindingKind = "orphaned_vectors"

	// FindingStaleProcessing is a revision stuck in processing past the
	// configured threshold.
	FindingStaleProcessing FindingKind = "stale_processing"
)

// Finding is one observed disagreement.
type Finding struct {
	Kind       FindingKind `json:"kind"`
	Severity   Severity    `json:"severity"`
	Source     string      `json:"source,omitempty"`
	RevisionID string      `json:"revision_id"`
	Detail     string      `json:"detail"`
	Expected   int         `json:"expected,omitempty"`
	Actual     int         `json:"actual,omitempty"`
}

// Report is the outcome of one sweep.
type Report struct {
	RanAt            time.Time `json:"ran_at"`
	DurationMS       int64     `json:"duration_ms"`
	RevisionsChecked int       `json:"revisions_checked"`
	IndexedRevisions int       `json:"indexed_revisions"`
	Findings         []Finding `json:"findings"`
	Healthy          bool      `json:"healthy"`
}

// RevisionStore is the registry surface the checker reads.
// *catalog.Store is the production implementation.
type RevisionStore interface {
	ListAllRevisions(ctx context.Context) ([]datatypes.Revision, error)
	GetJob(ctx context.Context, revisionID string) (datatypes.IngestionJob, error)
}

// VectorCounter is the index surface the checker reads.
// *weaviate.ChunkStore is the production implementation.
type VectorCounter interface {
	CountRevision(ctx context.Context, revisionID string) (int, error)
	ListRevisionCounts(ctx context.Context) (map[string]int, error)
}

// Config tunes a checker.
type Config struct {
	// StaleAfter is how long a revision may sit in processing before it
	// counts as stuck. Zero uses 30 minutes.
	StaleAfter time.Duration

	// Parallelism bounds concurrent per-revision index counts. Zero uses 4.
	Parallelism int
}

func (c *Config) applyDefaults() {
	if c.StaleAfter <= 0 {
		c.StaleAfter = 30 * time.Minute
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 4
	}
}

// Checker compares registry revision records against the index's
// revision tags.
//
// Thread Safety: Safe for concurrent use; each Run is independent.
type Checker struct {
	cfg    Config
	store  RevisionStore
	index  VectorCounter
	logger *slog.Logger
	now    func() time.Time
}

// NewChecker creates a checker.
func NewChecker(cfg Config, store RevisionStore, index VectorCounter, logger *slog.Logger) (*Checker, error) {
	if store == nil {
		return nil, errors.New("revision store must not be nil")
	}
	if index == nil {
		return nil, errors.New("vector counter must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &Checker{
		cfg:    cfg,
		store:  store,
		index:  index,
		logger: logger.With(slog.String("component", "consistency_checker")),
		now:    time.Now,
	}, nil
}

// Run executes one read-only sweep.
//
// # Description
//
// Three passes: every active revision's chunks are counted in the index
// (bounded parallelism); the index's revision_id population is compared
// against registry records for orphans; processing revisions are aged
// against their ingestion jobs for stuckness. Findings are logged at
// their severity and returned. Nothing is mutated.
//
// # Outputs
//
//	Report - All findings, empty when registry and index agree.
//	error - Non-nil when a pass could not complete; the report is then
//	not meaningful.
func (c *Checker) Run(ctx context.Context) (_ Report, retErr error) {
	started := c.now()

	ctx, span := otel.Tracer("registry").Start(ctx, "consistency.Run")
	defer span.End()

	defer func() {
		if retErr == nil {
			return
		}
		if m := observability.DefaultMetrics; m != nil {
			m.RecordSweep(observability.SweepError)
		}
	}()

	revisions, err := c.store.ListAllRevisions(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing revisions failed")
		return Report{}, fmt.Errorf("list revisions: %w", err)
	}

	indexed, err := c.index.ListRevisionCounts(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing index revisions failed")
		return Report{}, fmt.Errorf("list indexed revisions: %w", err)
	}

	var findings []Finding

	active, err := c.checkActive(ctx, revisions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "active revision pass failed")
		return Report{}, err
	}
	findings = append(findings, active...)
	findings = append(findings, c.checkOrphans(revisions, indexed)...)
	findings = append(findings, c.checkStale(ctx, revisions)...)

	sortFindings(findings)
	for _, f := range findings {
		c.logFinding(f)
	}

	report := Report{
		RanAt:            started.UTC(),
		DurationMS:       c.now().Sub(started).Milliseconds(),
		RevisionsChecked: len(revisions),
		IndexedRevisions: len(indexed),
		Findings:         findings,
		Healthy:          len(findings) == 0,
	}
	if report.Findings == nil {
		report.Findings = []Finding{}
	}

	span.SetAttributes(
		attribute.Int("revisions", report.RevisionsChecked),
		attribute.Int("findings", len(findings)),
	)
	span.SetStatus(codes.Ok, "swept")
	c.recordSweepMetrics(report)
	return report, nil
}

func (c *Checker) recordSweepMetrics(report Report) {
	m := observability.DefaultMetrics
	if m == nil {
		return
	}
	result := observability.SweepHealthy
	if !report.Healthy {
		result = observability.SweepDrift
	}
	m.RecordSweep(result)

	tally := make(map[string]int, len(report.Findings))
	for _, f := range report.Findings {
		tally[string(f.Kind)]++
	}
	m.SetConsistencyFindings(tally)
}

// checkActive counts every active revision's chunks in the index.
func (c *Checker) checkActive(ctx context.Context, revisions []datatypes.Revision) ([]Finding, error) {
	var active []datatypes.Revision
	for _, rev := range revisions {
		if rev.Status == datatypes.StatusActive {
			active = append(active, rev)
		}
	}
	if len(active) == 0 {
		return nil, nil
	}

	results := make([]*Finding, len(active))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Parallelism)

	for i, rev := range active {
		g.Go(func() error {
			count, err := c.index.CountRevision(gCtx, rev.RevisionID)
			if err != nil {
				return fmt.Errorf("count %s: %w", rev.RevisionID, err)
			}
			switch {
			case count == 0:
				results[i] = &Finding{
					Kind:       FindingMissingIndexData,
					Severity:   SeverityError,
					Source:     rev.Source,
					RevisionID: rev.RevisionID,
					Detail:     "active revision has no chunks in the index",
					Expected:   rev.ChunkCount,
				}
			case count != rev.ChunkCount:
				results[i] = &Finding{
					Kind:       FindingChunkCountDrift,
					Severity:   SeverityWarn,
					Source:     rev.Source,
					RevisionID: rev.RevisionID,
					Detail:     "indexed chunk count differs from registry record",
					Expected:   rev.ChunkCount,
					Actual:     count,
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var findings []Finding
	for _, f := range results {
		if f != nil {
			findings = append(findings, *f)
		}
	}
	return findings, nil
}

// checkOrphans flags revision_ids present in the index with no registry
// record of any status behind them.
func (c *Checker) checkOrphans(revisions []datatypes.Revision, indexed map[string]int) []Finding {
	known := make(map[string]string, len(revisions))
	for _, rev := range revisions {
		known[rev.RevisionID] = rev.Source
	}

	var findings []Finding
	for revisionID, count := range indexed {
		if _, ok := known[revisionID]; ok {
			continue
		}
		findings = append(findings, Finding{
			Kind:       FindingOrphanedVectors,
			Severity:   SeverityWarn,
			RevisionID: revisionID,
			Detail:     "index holds chunks for a revision the registry does not know",
			Actual:     count,
		})
	}
	return findings
}

// checkStale ages processing revisions against their ingestion jobs.
func (c *Checker) checkStale(ctx context.Context, revisions []datatypes.Revision) []Finding {
	now := c.now()

	var findings []Finding
	for _, rev := range revisions {
		if rev.Status != datatypes.StatusProcessing {
			continue
		}

		var age time.Duration
		var detail string

		job, err := c.store.GetJob(ctx, rev.RevisionID)
		switch {
		case errors.Is(err, datatypes.ErrIngestionNotFound):
			// Registered but never handed to the coordinator, or the job
			// record was lost. Age from registration.
			age = now.Sub(rev.CreatedAt)
			detail = "processing revision has no ingestion job"
		case err != nil:
			c.logger.Warn("could not load ingestion job",
				slog.String("revision_id", rev.RevisionID),
				slog.Any("error", err))
			continue
		case job.Running():
			age = now.Sub(job.EnqueuedAt)
			detail = fmt.Sprintf("ingestion sitting in phase %s", job.Phase)
		default:
			// Terminal job under a processing revision: the final status
			// flip never landed, or a reindex is mid-swap.
			age = now.Sub(job.FinishedAt)
			detail = fmt.Sprintf("ingestion finished (%s) but revision still processing", job.Phase)
		}

		if age < c.cfg.StaleAfter {
			continue
		}
		findings = append(findings, Finding{
			Kind:       FindingStaleProcessing,
			Severity:   SeverityWarn,
			Source:     rev.Source,
			RevisionID: rev.RevisionID,
			Detail:     fmt.Sprintf("%s for %s", detail, age.Round(time.Second)),
		})
	}
	return findings
}

func (c *Checker) logFinding(f Finding) {
	attrs := []any{
		slog.String("kind", string(f.Kind)),
		slog.String("revision_id", f.RevisionID),
		slog.String("detail", f.Detail),
	}
	if f.Source != "" {
		attrs = append(attrs, slog.String("source", f.Source))
	}
	if f.Severity == SeverityError {
		c.logger.Error("consistency finding", attrs...)
		return
	}
	c.logger.Warn("consistency finding", attrs...)
}

// sortFindings orders findings for stable reports: severity first, then
// kind, then revision.
func sortFindings(findings []Finding) {
	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Severity != b.Severity {
			return a.Severity == SeverityError
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.RevisionID < b.RevisionID
	})
}
