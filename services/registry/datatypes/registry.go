// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the registry service.
//
// This file contains the core domain model: documents, revisions, the
// revision status machine, and the deterministic identifier scheme. Request
// and response types for the HTTP API live in requests.go.
package datatypes

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire and storage format for effective dates. Dates are
// civil dates with no time or zone component. The zero-padded layout keeps
// lexicographic order identical to chronological order, which the store key
// scheme and the revision index both rely on.
const DateLayout = "2006-01-02"

// =============================================================================
// Revision Status
// =============================================================================

// RevisionStatus is the lifecycle state of a revision.
type RevisionStatus string

const (
	// StatusProcessing means ingestion is queued or running. The revision is
	// invisible to the resolver and to search.
	StatusProcessing RevisionStatus = "processing"

	// StatusActive means ingestion completed and vectors are queryable.
	StatusActive RevisionStatus = "active"

	// StatusSuperseded means a later open-ended revision closed this one.
	// Superseded revisions still resolve for dates inside their bounded range.
	StatusSuperseded RevisionStatus = "superseded"

	// StatusFailed means ingestion failed and any partial vectors were purged.
	// The registry record survives for inspection and reindex.
	StatusFailed RevisionStatus = "failed"
)

// Valid reports whether s is a known status value.
func (s RevisionStatus) Valid() bool {
	switch s {
	case StatusProcessing, StatusActive, StatusSuperseded, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status machine permits moving from s
// to next. Allowed moves:
//
//	processing -> active      (ingestion success)
//	processing -> failed      (ingestion failure)
//	active     -> superseded  (a later open-ended revision arrived)
//	active     -> processing  (reindex)
//	failed     -> processing  (reindex)
func (s RevisionStatus) CanTransitionTo(next RevisionStatus) bool {
	switch s {
	case StatusProcessing:
		return next == StatusActive || next == StatusFailed
	case StatusActive:
		return next == StatusSuperseded || next == StatusProcessing
	case StatusFailed:
		return next == StatusProcessing
	}
	return false
}

// =============================================================================
// Document Category
// =============================================================================

// DocumentCategory classifies a policy document by its regulatory weight.
type DocumentCategory string

const (
	// CategoryFramework is a national policy framework (e.g. NPPF).
	CategoryFramework DocumentCategory = "framework"

	// CategoryStandard is a technical design standard (e.g. LTN_1_20).
	CategoryStandard DocumentCategory = "standard"

	// CategoryGuidance is non-statutory guidance.
	CategoryGuidance DocumentCategory = "guidance"

	// CategoryRegulation is statutory regulation with legal force.
	CategoryRegulation DocumentCategory = "regulation"

	// CategoryStrategy is a strategy or vision document (e.g. GEAR_CHANGE).
	CategoryStrategy DocumentCategory = "strategy"

	// CategoryOther covers documents outside the named categories.
	CategoryOther DocumentCategory = "other"
)

// Valid reports whether c is a known category value.
func (c DocumentCategory) Valid() bool {
	switch c {
	case CategoryFramework, CategoryStandard, CategoryGuidance,
		CategoryRegulation, CategoryStrategy, CategoryOther:
		return true
	}
	return false
}

// =============================================================================
// Core Domain Types
// =============================================================================

// Document is a registered policy document identified by its source slug.
//
// The slug is the canonical identity ("NPPF", "LTN_1_20", "GEAR_CHANGE");
// everything else is descriptive. A document owns zero or more revisions,
// each covering a non-overlapping effective date range. The slug is
// immutable once created and never reused.
type Document struct {
	Source      string           `json:"source"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Category    DocumentCategory `json:"category"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Revision is one published version of a document with its effective range.
//
// # Fields
//
//   - RevisionID: deterministic UUID derived from (source, effective_from)
//     at creation time. See NewRevisionID. Immutable afterwards, so vector
//     objects stay correlated even if the dates are later edited.
//   - EffectiveFrom: first day in force, YYYY-MM-DD. Required.
//   - EffectiveTo: last day in force, INCLUSIVE. Empty string means
//     open-ended (in force indefinitely). The empty-string sentinel is kept
//     end to end, including in vector chunk metadata, so that filterable
//     fields never need null handling.
//   - FileReference: opaque handle into the blob store holding the raw
//     content, so reindex runs never need a re-upload.
//   - Checksum: sha256 hex of the raw content handed to ingestion.
//   - ChunkCount: number of chunks written to the vector index; zero until
//     the first successful ingestion.
//   - IngestedAt: when the last successful ingestion finished. Zero until
//     the first success; failure reasons land in Notes.
type Revision struct {
	RevisionID    string         `json:"revision_id"`
	Source        string         `json:"source"`
	VersionLabel  string         `json:"version_label,omitempty"`
	EffectiveFrom string         `json:"effective_from"`
	EffectiveTo   string         `json:"effective_to,omitempty"`
	Status        RevisionStatus `json:"status"`
	FileReference string         `json:"file_reference,omitempty"`
	Checksum      string         `json:"checksum,omitempty"`
	ChunkCount    int            `json:"chunk_count"`
	Notes         string         `json:"notes,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	IngestedAt    time.Time      `json:"ingested_at"`
}

// OpenEnded reports whether the revision has no end date.
func (r *Revision) OpenEnded() bool {
	return r.EffectiveTo == ""
}

// InForceOn reports whether date falls inside the revision's effective
// range. Both ends are inclusive; open-ended ranges cover every date from
// EffectiveFrom onward. The date must already be in canonical YYYY-MM-DD
// form: comparison is lexicographic.
func (r *Revision) InForceOn(date string) bool {
	if date < r.EffectiveFrom {
		return false
	}
	return r.EffectiveTo == "" || date <= r.EffectiveTo
}

// Overlaps reports whether the inclusive range [from, to] intersects the
// revision's range. An empty to (or EffectiveTo) extends to infinity.
func (r *Revision) Overlaps(from, to string) bool {
	// r ends before the candidate starts
	if r.EffectiveTo != "" && r.EffectiveTo < from {
		return false
	}
	// candidate ends before r starts
	if to != "" && to < r.EffectiveFrom {
		return false
	}
	return true
}

// =============================================================================
// Deterministic Identifiers
// =============================================================================

// NewRevisionID derives the revision UUID from the source slug and the
// effective_from date. The same (source, effective_from) pair always yields
// the same ID, so re-registering a revision is idempotent at the identity
// level and vector objects can be correlated without a lookup.
//
// Derivation: sha256(source + "@" + effective_from), first 16 bytes as a
// UUID.
//
// # Example
//
//	id := NewRevisionID("NPPF", "2024-12-12")
func NewRevisionID(source, effectiveFrom string) string {
	sum := sha256.Sum256([]byte(source + "@" + effectiveFrom))
	id, err := uuid.FromBytes(sum[:16])
	if err != nil {
		// FromBytes only fails on length != 16, which cannot happen here.
		panic(fmt.Sprintf("revision id derivation: %v", err))
	}
	return id.String()
}

// NewChunkID derives the vector object UUID for one chunk of a revision.
// Deterministic so that re-ingesting a revision overwrites its chunks in
// place instead of accumulating duplicates.
//
// Derivation: sha256(revision_id + ":" + chunk_index), first 16 bytes as a
// UUID.
func NewChunkID(revisionID string, chunkIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", revisionID, chunkIndex)))
	id, err := uuid.FromBytes(sum[:16])
	if err != nil {
		panic(fmt.Sprintf("chunk id derivation: %v", err))
	}
	return id.String()
}

// Checksum returns the sha256 hex digest of content, stored on the revision
// so reindex runs can detect unchanged input.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%x", sum)
}

// =============================================================================
// Date Helpers
// =============================================================================

// ParseDate parses a canonical YYYY-MM-DD date string. The string must be
// in exact canonical form (zero-padded, no time component); anything else
// returns ErrInvalidDate with detail.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	// Round-trip guard: reject non-canonical spellings that time.Parse
	// tolerates, so lexicographic ordering stays safe.
	if t.Format(DateLayout) != s {
		return time.Time{}, fmt.Errorf("%w: %q is not canonical", ErrInvalidDate, s)
	}
	return t, nil
}

// ValidDate reports whether s is a canonical YYYY-MM-DD date string.
func ValidDate(s string) bool {
	_, err := ParseDate(s)
	return err == nil
}

// PreviousDay returns the canonical date string for the day before s.
// Used by supersession to close the prior open-ended revision.
func PreviousDay(s string) (string, error) {
	t, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, -1).Format(DateLayout), nil
}

// Today returns the current UTC date in canonical form.
func Today() string {
	return time.Now().UTC().Format(DateLayout)
}
