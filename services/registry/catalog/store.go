// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog owns the policy registry: durable document and revision
// records, invariant enforcement, and the supersession protocol.
//
// This file is the persistence layer. Records are gob-encoded with a CRC32
// prefix and stored in BadgerDB under prefixed keys:
//
//	doc:{source}                   Document record
//	rev:{source}:{effective_from}  Revision record
//	ing:{revision_id}              Ingestion job record
//
// Effective dates are canonical YYYY-MM-DD strings, so the rev: prefix
// scan yields a document's revisions already ordered chronologically.
// Business rules live in catalog.go; nothing here validates anything
// beyond record integrity.
package catalog

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/Waymark/services/registry/datatypes"
	"github.com/AleutianAI/Waymark/services/registry/storage/badger"
)

// Key prefixes. A colon terminator keeps prefixes non-overlapping.
const (
	docPrefix = "doc:"
	revPrefix = "rev:"
	ingPrefix = "ing:"
)

// Store is the persistence layer for registry records.
//
// Description:
//
//	Thin record-oriented wrapper over BadgerDB. Every value is framed as
//	[4-byte CRC32][gob payload]; a frame that fails its checksum surfaces
//	as ErrCorruptRecord rather than a silent bad decode.
//
// Thread Safety: Safe for concurrent use; BadgerDB transactions provide
// isolation. Multi-record atomicity is the caller's job via update().
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewStore creates a store over an open database.
func NewStore(db *badger.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With(slog.String("component", "catalog.store")),
	}, nil
}

// DB exposes the underlying database for lifecycle management (backup,
// close). Record access stays behind the Store methods.
func (s *Store) DB() *badger.DB {
	return s.db
}

// update runs fn inside a read-write transaction. The registry uses this
// to commit multi-record mutations (supersession, date edits) atomically.
func (s *Store) update(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	return s.db.WithTxn(ctx, fn)
}

// view runs fn inside a read-only transaction.
func (s *Store) view(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	return s.db.WithReadTxn(ctx, fn)
}

// =============================================================================
// Record Framing
// =============================================================================

// encodeRecord frames a record as [4-byte CRC32][gob payload].
func encodeRecord(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}

	crc := crc32.ChecksumIEEE(buf.Bytes())
	out := make([]byte, 4+buf.Len())
	binary.BigEndian.PutUint32(out[:4], crc)
	copy(out[4:], buf.Bytes())
	return out, nil
}

// decodeRecord verifies the CRC32 frame and decodes the payload into v.
func decodeRecord(data []byte, v any) error {
	if len(data) < 5 {
		return fmt.Errorf("%w: frame too short", datatypes.ErrCorruptRecord)
	}

	stored := binary.BigEndian.Uint32(data[:4])
	payload := data[4:]
	if computed := crc32.ChecksumIEEE(payload); stored != computed {
		return fmt.Errorf("%w: crc stored=%08x computed=%08x", datatypes.ErrCorruptRecord, stored, computed)
	}

	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(v); err != nil {
		return fmt.Errorf("%w: gob decode: %v", datatypes.ErrCorruptRecord, err)
	}
	return nil
}

// =============================================================================
// Keys
// =============================================================================

func docKey(source string) []byte {
	return []byte(docPrefix + source)
}

func revKey(source, effectiveFrom string) []byte {
	return []byte(revPrefix + source + ":" + effectiveFrom)
}

func revSourcePrefix(source string) []byte {
	return []byte(revPrefix + source + ":")
}

func jobKey(revisionID string) []byte {
	return []byte(ingPrefix + revisionID)
}

// =============================================================================
// Transaction-Scoped Record Access
// =============================================================================

// getRecord reads and decodes one key inside txn. notFound is returned for
// missing keys so each entity maps onto its own sentinel.
func getRecord(txn *dgbadger.Txn, key []byte, v any, notFound error) error {
	item, err := txn.Get(key)
	if errors.Is(err, dgbadger.ErrKeyNotFound) {
		return notFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		return decodeRecord(val, v)
	})
}

// putRecord encodes and writes one record inside txn.
func putRecord(txn *dgbadger.Txn, key []byte, v any) error {
	data, err := encodeRecord(v)
	if err != nil {
		return err
	}
	if err := txn.Set(key, data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// getDocumentTxn reads a document record inside txn.
func getDocumentTxn(txn *dgbadger.Txn, source string) (datatypes.Document, error) {
	var doc datatypes.Document
	err := getRecord(txn, docKey(source), &doc,
		fmt.Errorf("%w: %s", datatypes.ErrDocumentNotFound, source))
	return doc, err
}

// putDocumentTxn writes a document record inside txn.
func putDocumentTxn(txn *dgbadger.Txn, doc datatypes.Document) error {
	return putRecord(txn, docKey(doc.Source), doc)
}

// getRevisionTxn reads one revision record inside txn.
func getRevisionTxn(txn *dgbadger.Txn, source, effectiveFrom string) (datatypes.Revision, error) {
	var rev datatypes.Revision
	err := getRecord(txn, revKey(source, effectiveFrom), &rev,
		fmt.Errorf("%w: %s@%s", datatypes.ErrRevisionNotFound, source, effectiveFrom))
	return rev, err
}

// putRevisionTxn writes one revision record inside txn.
func putRevisionTxn(txn *dgbadger.Txn, rev datatypes.Revision) error {
	return putRecord(txn, revKey(rev.Source, rev.EffectiveFrom), rev)
}

// deleteRevisionTxn removes one revision record inside txn.
func deleteRevisionTxn(txn *dgbadger.Txn, source, effectiveFrom string) error {
	if err := txn.Delete(revKey(source, effectiveFrom)); err != nil {
		return fmt.Errorf("delete revision %s@%s: %w", source, effectiveFrom, err)
	}
	return nil
}

// listRevisionsTxn returns one document's revisions ascending by
// effective_from, straight off the key order.
func listRevisionsTxn(txn *dgbadger.Txn, source string) ([]datatypes.Revision, error) {
	prefix := revSourcePrefix(source)

	opts := dgbadger.DefaultIteratorOptions
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	defer it.Close()

	var revs []datatypes.Revision
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var rev datatypes.Revision
		err := it.Item().Value(func(val []byte) error {
			return decodeRecord(val, &rev)
		})
		if err != nil {
			return nil, err
		}
		revs = append(revs, rev)
	}
	return revs, nil
}

// findRevisionTxn locates a revision by its ID within one document's
// records. Revision counts per document are small (a handful of editions
// over a decade), so a prefix scan beats maintaining a second index.
func findRevisionTxn(txn *dgbadger.Txn, source, revisionID string) (datatypes.Revision, error) {
	revs, err := listRevisionsTxn(txn, source)
	if err != nil {
		return datatypes.Revision{}, err
	}
	for _, rev := range revs {
		if rev.RevisionID == revisionID {
			return rev, nil
		}
	}
	return datatypes.Revision{}, fmt.Errorf("%w: %s in %s", datatypes.ErrRevisionNotFound, revisionID, source)
}

// =============================================================================
// Documents
// =============================================================================

// PutDocument writes a document record.
func (s *Store) PutDocument(ctx context.Context, doc datatypes.Document) error {
	return s.update(ctx, func(txn *dgbadger.Txn) error {
		return putDocumentTxn(txn, doc)
	})
}

// GetDocument reads a document record.
//
// Outputs:
//
//	datatypes.Document - The record.
//	error - ErrDocumentNotFound if the source is not registered.
func (s *Store) GetDocument(ctx context.Context, source string) (datatypes.Document, error) {
	var doc datatypes.Document
	err := s.view(ctx, func(txn *dgbadger.Txn) error {
		var err error
		doc, err = getDocumentTxn(txn, source)
		return err
	})
	return doc, err
}

// DeleteDocument removes a document record. The revision guard lives in
// the registry, not here.
func (s *Store) DeleteDocument(ctx context.Context, source string) error {
	return s.update(ctx, func(txn *dgbadger.Txn) error {
		if err := txn.Delete(docKey(source)); err != nil {
			return fmt.Errorf("delete document %s: %w", source, err)
		}
		return nil
	})
}

// ListDocuments returns every document record, ascending by source.
func (s *Store) ListDocuments(ctx context.Context) ([]datatypes.Document, error) {
	var docs []datatypes.Document
	prefix := []byte(docPrefix)

	err := s.view(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var doc datatypes.Document
			err := it.Item().Value(func(val []byte) error {
				return decodeRecord(val, &doc)
			})
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	return docs, err
}

// =============================================================================
// Revisions
// =============================================================================

// PutRevision writes one revision record.
func (s *Store) PutRevision(ctx context.Context, rev datatypes.Revision) error {
	return s.update(ctx, func(txn *dgbadger.Txn) error {
		return putRevisionTxn(txn, rev)
	})
}

// GetRevision reads one revision record by its natural key.
func (s *Store) GetRevision(ctx context.Context, source, effectiveFrom string) (datatypes.Revision, error) {
	var rev datatypes.Revision
	err := s.view(ctx, func(txn *dgbadger.Txn) error {
		var err error
		rev, err = getRevisionTxn(txn, source, effectiveFrom)
		return err
	})
	return rev, err
}

// FindRevision locates a revision by ID within one document.
func (s *Store) FindRevision(ctx context.Context, source, revisionID string) (datatypes.Revision, error) {
	var rev datatypes.Revision
	err := s.view(ctx, func(txn *dgbadger.Txn) error {
		var err error
		rev, err = findRevisionTxn(txn, source, revisionID)
		return err
	})
	return rev, err
}

// ListRevisions returns one document's revisions ascending by
// effective_from.
func (s *Store) ListRevisions(ctx context.Context, source string) ([]datatypes.Revision, error) {
	var revs []datatypes.Revision
	err := s.view(ctx, func(txn *dgbadger.Txn) error {
		var err error
		revs, err = listRevisionsTxn(txn, source)
		return err
	})
	return revs, err
}

// ListAllRevisions returns every revision record across all documents.
// Feeds the index rebuild and the consistency checker.
func (s *Store) ListAllRevisions(ctx context.Context) ([]datatypes.Revision, error) {
	var revs []datatypes.Revision
	prefix := []byte(revPrefix)

	err := s.view(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rev datatypes.Revision
			err := it.Item().Value(func(val []byte) error {
				return decodeRecord(val, &rev)
			})
			if err != nil {
				return err
			}
			revs = append(revs, rev)
		}
		return nil
	})
	return revs, err
}

// =============================================================================
// Ingestion Jobs
// =============================================================================

// PutJob writes an ingestion job record. Jobs are keyed by revision ID, so
// each revision has at most one job at a time.
func (s *Store) PutJob(ctx context.Context, job datatypes.IngestionJob) error {
	return s.update(ctx, func(txn *dgbadger.Txn) error {
		return putRecord(txn, jobKey(job.RevisionID), job)
	})
}

// GetJob reads the ingestion job for a revision.
//
// Outputs:
//
//	datatypes.IngestionJob - The record.
//	error - ErrIngestionNotFound if the revision has no job.
func (s *Store) GetJob(ctx context.Context, revisionID string) (datatypes.IngestionJob, error) {
	var job datatypes.IngestionJob
	err := s.view(ctx, func(txn *dgbadger.Txn) error {
		return getRecord(txn, jobKey(revisionID), &job,
			fmt.Errorf("%w: %s", datatypes.ErrIngestionNotFound, revisionID))
	})
	return job, err
}

// DeleteJob removes the ingestion job for a revision. Missing jobs are
// not an error; revision deletion calls this unconditionally.
func (s *Store) DeleteJob(ctx context.Context, revisionID string) error {
	return s.update(ctx, func(txn *dgbadger.Txn) error {
		err := txn.Delete(jobKey(revisionID))
		if err != nil && !errors.Is(err, dgbadger.ErrKeyNotFound) {
			return fmt.Errorf("delete job %s: %w", revisionID, err)
		}
		return nil
	})
}

// ListJobs returns every ingestion job record. The consistency checker
// uses this to flag stale processing runs.
func (s *Store) ListJobs(ctx context.Context) ([]datatypes.IngestionJob, error) {
	var jobs []datatypes.IngestionJob
	prefix := []byte(ingPrefix)

	err := s.view(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var job datatypes.IngestionJob
			err := it.Item().Value(func(val []byte) error {
				return decodeRecord(val, &job)
			})
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return nil
	})
	return jobs, err
}
