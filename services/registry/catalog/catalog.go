// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/Waymark/pkg/extensions"
	"github.com/AleutianAI/Waymark/pkg/validation"
	"github.com/AleutianAI/Waymark/services/registry/datatypes"
	"github.com/AleutianAI/Waymark/services/registry/storage/blob"
	"github.com/AleutianAI/Waymark/services/registry/temporal"
)

// Catalog is the policy registry: the single writer for document and
// revision records.
//
// Description:
//
//	All mutations flow through here. The catalog validates identities,
//	enforces the non-overlap and status-machine invariants, runs the
//	supersession protocol, and keeps the in-memory revision index in step
//	with committed state.
//
// Invariants:
//   - A document's revisions never overlap. Ranges are inclusive at both
//     ends; an empty effective_to extends to infinity.
//   - At most one revision per document is open-ended.
//   - Revision IDs are assigned at creation and never change, even when
//     effective dates are edited afterwards.
//   - The index is updated only after the store transaction commits, so
//     readers never see uncommitted revisions.
//
// Thread Safety: Safe for concurrent use. Mutations on the same document
// serialize on a per-source mutex; mutations on different documents
// proceed in parallel.
type Catalog struct {
	store  *Store
	blobs  *blob.Store
	index  *temporal.Index
	audit  extensions.AuditLogger
	logger *slog.Logger

	// locks serializes mutations per document.
	locks sync.Map // source -> *sync.Mutex
}

// NewCatalog creates a catalog over its storage and index dependencies.
// A nil audit logger defaults to the no-op implementation.
func NewCatalog(store *Store, blobs *blob.Store, index *temporal.Index, audit extensions.AuditLogger, logger *slog.Logger) (*Catalog, error) {
	if store == nil {
		return nil, fmt.Errorf("store must not be nil")
	}
	if blobs == nil {
		return nil, fmt.Errorf("blob store must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("index must not be nil")
	}
	if audit == nil {
		audit = &extensions.NopAuditLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		store:  store,
		blobs:  blobs,
		index:  index,
		audit:  audit,
		logger: logger.With(slog.String("component", "catalog")),
	}, nil
}

// Index returns the revision index the catalog maintains. Resolvers and
// the search gateway share it.
func (c *Catalog) Index() *temporal.Index {
	return c.index
}

// lockSource returns the mutex serializing mutations for one document.
func (c *Catalog) lockSource(source string) *sync.Mutex {
	lock, _ := c.locks.LoadOrStore(source, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// auditLog records an audit event, attributing it to the context identity.
// Audit failures are logged but never fail the mutation they describe.
func (c *Catalog) auditLog(ctx context.Context, event extensions.AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.UserID == "" {
		event.UserID = extensions.UserFromContext(ctx)
	}
	if err := c.audit.Log(ctx, event); err != nil {
		c.logger.Warn("audit log failed",
			slog.String("event", event.EventType),
			slog.String("error", err.Error()))
	}
}

// Rebuild replaces the revision index from stored records. Called once at
// startup before the catalog serves traffic.
func (c *Catalog) Rebuild(ctx context.Context) (int, int, error) {
	docs, err := c.store.ListDocuments(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list documents: %w", err)
	}
	revs, err := c.store.ListAllRevisions(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list revisions: %w", err)
	}

	c.index.Rebuild(docs, revs)
	c.logger.Info("revision index rebuilt",
		slog.Int("documents", len(docs)),
		slog.Int("revisions", len(revs)))
	return len(docs), len(revs), nil
}

// =============================================================================
// Documents
// =============================================================================

// CreateDocument registers a new policy document.
//
// Outputs:
//
//	datatypes.Document - The stored record.
//	error - ErrInvalidSource, ErrDocumentExists, or validation errors.
func (c *Catalog) CreateDocument(ctx context.Context, req datatypes.CreateDocumentRequest) (datatypes.Document, error) {
	ctx, span := otel.Tracer("registry").Start(ctx, "catalog.CreateDocument",
		trace.WithAttributes(attribute.String("source", req.Source)),
	)
	defer span.End()

	if err := req.Validate(); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return datatypes.Document{}, err
	}
	if err := validation.ValidateSource(req.Source); err != nil {
		span.SetStatus(codes.Error, "invalid source")
		return datatypes.Document{}, fmt.Errorf("%w: %v", datatypes.ErrInvalidSource, err)
	}

	mu := c.lockSource(req.Source)
	mu.Lock()
	defer mu.Unlock()

	now := time.Now().UTC()
	doc := datatypes.Document{
		Source:      req.Source,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := c.store.update(ctx, func(txn *dgbadger.Txn) error {
		if _, err := getDocumentTxn(txn, req.Source); err == nil {
			return fmt.Errorf("%w: %s", datatypes.ErrDocumentExists, req.Source)
		}
		return putDocumentTxn(txn, doc)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return datatypes.Document{}, err
	}

	c.index.RegisterSource(req.Source)
	c.auditLog(ctx, extensions.AuditEvent{
		EventType:    "registry.document.create",
		Action:       "create",
		ResourceType: "document",
		ResourceID:   req.Source,
		Outcome:      "success",
		Metadata:     map[string]any{"title": req.Title, "category": string(req.Category)},
	})
	c.logger.Info("document registered",
		slog.String("source", req.Source),
		slog.String("category", string(req.Category)))
	return doc, nil
}

// GetDocument returns a document with its revision summaries, newest
// first.
func (c *Catalog) GetDocument(ctx context.Context, source string) (datatypes.DocumentResponse, error) {
	var resp datatypes.DocumentResponse
	err := c.store.view(ctx, func(txn *dgbadger.Txn) error {
		doc, err := getDocumentTxn(txn, source)
		if err != nil {
			return err
		}
		revs, err := listRevisionsTxn(txn, source)
		if err != nil {
			return err
		}
		sortRevisionsDesc(revs)
		resp = datatypes.DocumentResponse{
			Document:  doc,
			Revisions: revisionSummaries(revs),
		}
		return nil
	})
	return resp, err
}

// UpdateDocument applies a metadata-only partial update. The source slug
// itself is immutable.
func (c *Catalog) UpdateDocument(ctx context.Context, source string, req datatypes.UpdateDocumentRequest) (datatypes.Document, error) {
	ctx, span := otel.Tracer("registry").Start(ctx, "catalog.UpdateDocument",
		trace.WithAttributes(attribute.String("source", source)),
	)
	defer span.End()

	if err := req.Validate(); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return datatypes.Document{}, err
	}

	mu := c.lockSource(source)
	mu.Lock()
	defer mu.Unlock()

	var doc datatypes.Document
	err := c.store.update(ctx, func(txn *dgbadger.Txn) error {
		var err error
		doc, err = getDocumentTxn(txn, source)
		if err != nil {
			return err
		}
		if req.Title != nil {
			doc.Title = *req.Title
		}
		if req.Description != nil {
			doc.Description = *req.Description
		}
		if req.Category != nil {
			doc.Category = *req.Category
		}
		doc.UpdatedAt = time.Now().UTC()
		return putDocumentTxn(txn, doc)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return datatypes.Document{}, err
	}

	c.auditLog(ctx, extensions.AuditEvent{
		EventType:    "registry.document.update",
		Action:       "update",
		ResourceType: "document",
		ResourceID:   source,
		Outcome:      "success",
	})
	return doc, nil
}

// ListDocuments returns registered documents with the revision in force
// today, filtered by category and source prefix when given.
func (c *Catalog) ListDocuments(ctx context.Context, req datatypes.ListDocumentsRequest) (datatypes.ListDocumentsResponse, error) {
	if err := req.Validate(); err != nil {
		return datatypes.ListDocumentsResponse{}, err
	}

	today := datatypes.Today()
	prefix := strings.ToUpper(req.SourcePrefix)

	var summaries []datatypes.DocumentSummary
	err := c.store.view(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		keyPrefix := []byte(docPrefix)
		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			var doc datatypes.Document
			err := it.Item().Value(func(val []byte) error {
				return decodeRecord(val, &doc)
			})
			if err != nil {
				return err
			}
			if req.Category != "" && doc.Category != datatypes.DocumentCategory(req.Category) {
				continue
			}
			if prefix != "" && !strings.HasPrefix(doc.Source, prefix) {
				continue
			}

			revs, err := listRevisionsTxn(txn, doc.Source)
			if err != nil {
				return err
			}
			summaries = append(summaries, datatypes.DocumentSummary{
				Document: doc,
				Current:  currentRevision(revs, today),
			})
		}
		return nil
	})
	if err != nil {
		return datatypes.ListDocumentsResponse{}, err
	}

	if summaries == nil {
		summaries = []datatypes.DocumentSummary{}
	}
	return datatypes.ListDocumentsResponse{
		Documents: summaries,
		Count:     len(summaries),
	}, nil
}

// DeleteDocument removes a document that has no revisions left. Documents
// with revisions cannot be deleted; their revisions must go first, and the
// sole-revision guard stops the last one, so document deletion is only
// for registrations that never ingested anything.
func (c *Catalog) DeleteDocument(ctx context.Context, source string) error {
	ctx, span := otel.Tracer("registry").Start(ctx, "catalog.DeleteDocument",
		trace.WithAttributes(attribute.String("source", source)),
	)
	defer span.End()

	mu := c.lockSource(source)
	mu.Lock()
	defer mu.Unlock()

	err := c.store.update(ctx, func(txn *dgbadger.Txn) error {
		if _, err := getDocumentTxn(txn, source); err != nil {
			return err
		}
		revs, err := listRevisionsTxn(txn, source)
		if err != nil {
			return err
		}
		if len(revs) > 0 {
			return fmt.Errorf("%w: %s has %d", datatypes.ErrDocumentHasRevisions, source, len(revs))
		}
		if err := txn.Delete(docKey(source)); err != nil {
			return fmt.Errorf("delete document %s: %w", source, err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return err
	}

	c.index.RemoveSource(source)
	c.auditLog(ctx, extensions.AuditEvent{
		EventType:    "registry.document.delete",
		Action:       "delete",
		ResourceType: "document",
		ResourceID:   source,
		Outcome:      "success",
	})
	c.logger.Info("document deleted", slog.String("source", source))
	return nil
}

// =============================================================================
// Revisions
// =============================================================================

// AddResult is the outcome of AddRevision. Superseded is non-nil when the
// new revision closed a prior open-ended one.
type AddResult struct {
	Revision   datatypes.Revision
	Superseded *datatypes.Revision
}

// AddRevision registers a new revision of a document and stores its raw
// content. The revision starts in processing status; ingestion runs
// asynchronously and flips it to active or failed.
//
// Supersession: when the new revision is open-ended and the document
// already has an open-ended revision with an earlier effective_from, the
// prior revision is closed at the day before the new effective_from. Both
// records commit in one transaction. A bounded new revision never
// supersedes anything; any overlap is an error.
//
// Outputs:
//
//	AddResult - The new revision plus the superseded prior, if any.
//	error - ErrDocumentNotFound, ErrRevisionExists, ErrRevisionOverlap,
//	        or validation errors.
func (c *Catalog) AddRevision(ctx context.Context, source string, req datatypes.AddRevisionRequest) (AddResult, error) {
	ctx, span := otel.Tracer("registry").Start(ctx, "catalog.AddRevision",
		trace.WithAttributes(
			attribute.String("source", source),
			attribute.String("effective_from", req.EffectiveFrom),
		),
	)
	defer span.End()

	if err := req.Validate(); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return AddResult{}, err
	}
	if err := validation.ValidateSource(source); err != nil {
		span.SetStatus(codes.Error, "invalid source")
		return AddResult{}, fmt.Errorf("%w: %v", datatypes.ErrInvalidSource, err)
	}

	mu := c.lockSource(source)
	mu.Lock()
	defer mu.Unlock()

	content := []byte(req.Content)
	fileRef, err := c.blobs.Put(ctx, content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "blob write failed")
		return AddResult{}, fmt.Errorf("store content: %w", err)
	}

	now := time.Now().UTC()
	rev := datatypes.Revision{
		RevisionID:    datatypes.NewRevisionID(source, req.EffectiveFrom),
		Source:        source,
		VersionLabel:  req.VersionLabel,
		EffectiveFrom: req.EffectiveFrom,
		EffectiveTo:   req.EffectiveTo,
		Status:        datatypes.StatusProcessing,
		FileReference: fileRef,
		Checksum:      datatypes.Checksum(content),
		Notes:         req.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var superseded *datatypes.Revision
	err = c.store.update(ctx, func(txn *dgbadger.Txn) error {
		superseded = nil
		if _, err := getDocumentTxn(txn, source); err != nil {
			return err
		}
		existing, err := listRevisionsTxn(txn, source)
		if err != nil {
			return err
		}

		prior, err := checkPlacement(existing, rev.EffectiveFrom, rev.EffectiveTo)
		if err != nil {
			return err
		}
		if prior != nil {
			closed := *prior
			prevDay, err := datatypes.PreviousDay(rev.EffectiveFrom)
			if err != nil {
				return err
			}
			closed.EffectiveTo = prevDay
			// Only active revisions move to superseded; a processing or
			// failed prior keeps its status and just gains an end date.
			if closed.Status == datatypes.StatusActive {
				closed.Status = datatypes.StatusSuperseded
			}
			closed.UpdatedAt = now
			if err := putRevisionTxn(txn, closed); err != nil {
				return err
			}
			superseded = &closed
		}
		return putRevisionTxn(txn, rev)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return AddResult{}, err
	}

	c.index.Upsert(rev)
	if superseded != nil {
		c.index.Upsert(*superseded)
	}

	c.auditLog(ctx, extensions.AuditEvent{
		EventType:    "registry.revision.add",
		Action:       "create",
		ResourceType: "revision",
		ResourceID:   rev.RevisionID,
		Outcome:      "success",
		Metadata: map[string]any{
			"source":         source,
			"effective_from": rev.EffectiveFrom,
			"effective_to":   rev.EffectiveTo,
		},
	})
	if superseded != nil {
		c.auditLog(ctx, extensions.AuditEvent{
			EventType:    "registry.revision.supersede",
			Action:       "supersede",
			ResourceType: "revision",
			ResourceID:   superseded.RevisionID,
			Outcome:      "success",
			Metadata: map[string]any{
				"source":        source,
				"superseded_by": rev.RevisionID,
				"effective_to":  superseded.EffectiveTo,
			},
		})
		span.SetAttributes(attribute.String("superseded", superseded.RevisionID))
	}

	c.logger.Info("revision added",
		slog.String("source", source),
		slog.String("revision_id", rev.RevisionID),
		slog.String("effective_from", rev.EffectiveFrom),
		slog.Bool("superseded_prior", superseded != nil))
	return AddResult{Revision: rev, Superseded: superseded}, nil
}

// checkPlacement verifies that a revision with range [from, to] can join
// the existing set. It returns the prior open-ended revision to close when
// the placement is a supersession, or nil for a plain insert.
//
// Rules:
//   - A duplicate effective_from is ErrRevisionExists.
//   - An open-ended newcomer supersedes an existing open-ended revision
//     only when its effective_from is strictly later; otherwise the pair
//     overlaps.
//   - A bounded newcomer must not intersect anything, including an
//     open-ended revision. Bounding an open-ended revision is an explicit
//     supersede or update, never a side effect.
func checkPlacement(existing []datatypes.Revision, from, to string) (*datatypes.Revision, error) {
	var prior *datatypes.Revision
	for i := range existing {
		r := &existing[i]
		if r.EffectiveFrom == from {
			return nil, fmt.Errorf("%w: %s@%s", datatypes.ErrRevisionExists, r.Source, from)
		}
		if to == "" && r.OpenEnded() {
			if r.EffectiveFrom < from {
				prior = r
				continue
			}
			return nil, fmt.Errorf("%w: open-ended revision %s starts %s",
				datatypes.ErrRevisionOverlap, r.RevisionID, r.EffectiveFrom)
		}
		if r.Overlaps(from, to) {
			return nil, fmt.Errorf("%w: %s covers %s..%s",
				datatypes.ErrRevisionOverlap, r.RevisionID, r.EffectiveFrom, r.EffectiveTo)
		}
	}
	return prior, nil
}

// GetRevision returns one revision by its ID.
func (c *Catalog) GetRevision(ctx context.Context, source, revisionID string) (datatypes.Revision, error) {
	return c.store.FindRevision(ctx, source, revisionID)
}

// ListRevisions returns a document's revisions, newest first.
func (c *Catalog) ListRevisions(ctx context.Context, source string) (datatypes.ListRevisionsResponse, error) {
	var revs []datatypes.Revision
	err := c.store.view(ctx, func(txn *dgbadger.Txn) error {
		if _, err := getDocumentTxn(txn, source); err != nil {
			return err
		}
		var err error
		revs, err = listRevisionsTxn(txn, source)
		return err
	})
	if err != nil {
		return datatypes.ListRevisionsResponse{}, err
	}

	sortRevisionsDesc(revs)
	if revs == nil {
		revs = []datatypes.Revision{}
	}
	return datatypes.ListRevisionsResponse{
		Source:    source,
		Revisions: revs,
		Count:     len(revs),
	}, nil
}

// UpdateRevision applies a partial update to a revision's label, notes,
// or effective range. Date changes are revalidated against every other
// revision of the document; the revision ID never changes. Closing or
// widening a range can open a coverage gap, which is a valid outcome.
func (c *Catalog) UpdateRevision(ctx context.Context, source, revisionID string, req datatypes.UpdateRevisionRequest) (datatypes.Revision, error) {
	ctx, span := otel.Tracer("registry").Start(ctx, "catalog.UpdateRevision",
		trace.WithAttributes(
			attribute.String("source", source),
			attribute.String("revision_id", revisionID),
		),
	)
	defer span.End()

	if err := req.Validate(); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return datatypes.Revision{}, err
	}
	if req.Empty() {
		return c.store.FindRevision(ctx, source, revisionID)
	}

	mu := c.lockSource(source)
	mu.Lock()
	defer mu.Unlock()

	var rev datatypes.Revision
	err := c.store.update(ctx, func(txn *dgbadger.Txn) error {
		var err error
		rev, err = findRevisionTxn(txn, source, revisionID)
		if err != nil {
			return err
		}

		newFrom := rev.EffectiveFrom
		if req.EffectiveFrom != nil {
			newFrom = *req.EffectiveFrom
		}
		newTo := rev.EffectiveTo
		if req.EffectiveTo != nil {
			newTo = *req.EffectiveTo
		}
		if newTo != "" && newTo < newFrom {
			return fmt.Errorf("%w: %s..%s", datatypes.ErrInvalidDateRange, newFrom, newTo)
		}

		if newFrom != rev.EffectiveFrom || newTo != rev.EffectiveTo {
			others, err := listRevisionsTxn(txn, source)
			if err != nil {
				return err
			}
			for i := range others {
				o := &others[i]
				if o.RevisionID == rev.RevisionID {
					continue
				}
				if o.EffectiveFrom == newFrom {
					return fmt.Errorf("%w: %s@%s", datatypes.ErrRevisionExists, source, newFrom)
				}
				if o.Overlaps(newFrom, newTo) {
					return fmt.Errorf("%w: %s covers %s..%s",
						datatypes.ErrRevisionOverlap, o.RevisionID, o.EffectiveFrom, o.EffectiveTo)
				}
			}
		}

		if newFrom != rev.EffectiveFrom {
			// The store key embeds effective_from, so a start-date edit
			// moves the record. Same transaction, no window.
			if err := deleteRevisionTxn(txn, source, rev.EffectiveFrom); err != nil {
				return err
			}
		}
		if req.VersionLabel != nil {
			rev.VersionLabel = *req.VersionLabel
		}
		if req.Notes != nil {
			rev.Notes = *req.Notes
		}
		rev.EffectiveFrom = newFrom
		rev.EffectiveTo = newTo
		rev.UpdatedAt = time.Now().UTC()
		return putRevisionTxn(txn, rev)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return datatypes.Revision{}, err
	}

	c.index.Upsert(rev)
	c.auditLog(ctx, extensions.AuditEvent{
		EventType:    "registry.revision.update",
		Action:       "update",
		ResourceType: "revision",
		ResourceID:   revisionID,
		Outcome:      "success",
		Metadata: map[string]any{
			"source":         source,
			"effective_from": rev.EffectiveFrom,
			"effective_to":   rev.EffectiveTo,
		},
	})
	return rev, nil
}

// DeleteRevision removes a revision record and its ingestion job. The
// deleted record is returned so the caller can purge its vectors from the
// search index; vector purge runs after the delete commits and is best
// effort, with the consistency checker catching any leftovers.
//
// Outputs:
//
//	datatypes.Revision - The deleted record (the purge token).
//	error - ErrRevisionNotFound or ErrSoleRevision.
func (c *Catalog) DeleteRevision(ctx context.Context, source, revisionID string) (datatypes.Revision, error) {
	ctx, span := otel.Tracer("registry").Start(ctx, "catalog.DeleteRevision",
		trace.WithAttributes(
			attribute.String("source", source),
			attribute.String("revision_id", revisionID),
		),
	)
	defer span.End()

	mu := c.lockSource(source)
	mu.Lock()
	defer mu.Unlock()

	var rev datatypes.Revision
	err := c.store.update(ctx, func(txn *dgbadger.Txn) error {
		var err error
		rev, err = findRevisionTxn(txn, source, revisionID)
		if err != nil {
			return err
		}
		revs, err := listRevisionsTxn(txn, source)
		if err != nil {
			return err
		}
		if len(revs) == 1 {
			return fmt.Errorf("%w: %s", datatypes.ErrSoleRevision, source)
		}
		if err := deleteRevisionTxn(txn, source, rev.EffectiveFrom); err != nil {
			return err
		}
		if err := txn.Delete(jobKey(revisionID)); err != nil {
			return fmt.Errorf("delete job %s: %w", revisionID, err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return datatypes.Revision{}, err
	}

	c.index.Remove(source, revisionID)
	c.auditLog(ctx, extensions.AuditEvent{
		EventType:    "registry.revision.delete",
		Action:       "delete",
		ResourceType: "revision",
		ResourceID:   revisionID,
		Outcome:      "success",
		Metadata: map[string]any{
			"source":         source,
			"effective_from": rev.EffectiveFrom,
		},
	})
	c.logger.Info("revision deleted",
		slog.String("source", source),
		slog.String("revision_id", revisionID))
	return rev, nil
}

// SetRevisionStatus moves a revision through its status machine. The
// ingestion pipeline calls this to flip processing to active or failed
// and to restart processing for a reindex. The mutate callback, when
// given, edits the record inside the same transaction (chunk counts,
// ingestion timestamps, failure notes).
//
// Outputs:
//
//	datatypes.Revision - The updated record.
//	error - ErrRevisionNotFound or ErrInvalidTransition.
func (c *Catalog) SetRevisionStatus(ctx context.Context, source, revisionID string, next datatypes.RevisionStatus, mutate func(*datatypes.Revision)) (datatypes.Revision, error) {
	ctx, span := otel.Tracer("registry").Start(ctx, "catalog.SetRevisionStatus",
		trace.WithAttributes(
			attribute.String("revision_id", revisionID),
			attribute.String("next", string(next)),
		),
	)
	defer span.End()

	mu := c.lockSource(source)
	mu.Lock()
	defer mu.Unlock()

	var rev datatypes.Revision
	err := c.store.update(ctx, func(txn *dgbadger.Txn) error {
		var err error
		rev, err = findRevisionTxn(txn, source, revisionID)
		if err != nil {
			return err
		}
		if !rev.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", datatypes.ErrInvalidTransition, rev.Status, next)
		}
		rev.Status = next
		if mutate != nil {
			mutate(&rev)
		}
		rev.UpdatedAt = time.Now().UTC()
		return putRevisionTxn(txn, rev)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transition failed")
		return datatypes.Revision{}, err
	}

	c.index.Upsert(rev)
	c.logger.Debug("revision status set",
		slog.String("source", source),
		slog.String("revision_id", revisionID),
		slog.String("status", string(next)))
	return rev, nil
}

// =============================================================================
// Helpers
// =============================================================================

// sortRevisionsDesc orders revisions newest first for API responses.
func sortRevisionsDesc(revs []datatypes.Revision) {
	sort.Slice(revs, func(i, j int) bool {
		return revs[i].EffectiveFrom > revs[j].EffectiveFrom
	})
}

// revisionSummaries maps revisions onto their listing shape.
func revisionSummaries(revs []datatypes.Revision) []datatypes.RevisionSummary {
	out := make([]datatypes.RevisionSummary, 0, len(revs))
	for _, r := range revs {
		out = append(out, datatypes.RevisionSummary{
			RevisionID:    r.RevisionID,
			VersionLabel:  r.VersionLabel,
			EffectiveFrom: r.EffectiveFrom,
			EffectiveTo:   r.EffectiveTo,
			Status:        r.Status,
			ChunkCount:    r.ChunkCount,
		})
	}
	return out
}

// currentRevision picks the revision in force on date, if a resolvable
// one covers it.
func currentRevision(revs []datatypes.Revision, date string) *datatypes.RevisionSummary {
	for i := range revs {
		r := &revs[i]
		if r.Status != datatypes.StatusActive && r.Status != datatypes.StatusSuperseded {
			continue
		}
		if r.InForceOn(date) {
			s := revisionSummaries(revs[i : i+1])[0]
			return &s
		}
	}
	return nil
}
