// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package temporal

import (
	"fmt"

	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

// ResolutionState classifies why a document did or did not resolve.
type ResolutionState string

const (
	// StateInForce means a revision covers the date.
	StateInForce ResolutionState = "in_force"

	// StateNotYetEffective means the earliest revision starts after the date.
	StateNotYetEffective ResolutionState = "not_yet_effective"

	// StateNoRevisionInForce means revisions exist but none covers the date:
	// a gap between ranges, every range ended earlier, or the covering
	// revision is not yet active.
	StateNoRevisionInForce ResolutionState = "no_revision_in_force"

	// StateNoRevisions means the document is registered but has no revisions.
	StateNoRevisions ResolutionState = "no_revisions"
)

// Snapshot is the result of resolving every document as of one date.
type Snapshot struct {
	Date              string
	InForce           map[string]Entry
	NotYetEffective   []string
	NoRevisionInForce []string
	NoRevisions       []string
}

// Resolver answers "which revision was in force on date D" over the index.
//
// Description:
//
//	Pure temporal query logic. The date is always an explicit parameter;
//	nothing here reads the clock, so "currently in force" is the caller
//	passing today's date. All methods validate the date before touching
//	the index.
//
// Thread Safety: Safe for concurrent use; the index serializes access.
type Resolver struct {
	index *Index
}

// NewResolver creates a resolver over an index.
func NewResolver(index *Index) *Resolver {
	return &Resolver{index: index}
}

// Resolve finds the revision in force on date for one document.
//
// Outputs:
//
//	Entry - The in-force entry.
//	error - ErrInvalidDate for non-canonical dates, ErrDocumentNotFound
//	for unknown sources, ErrNoRevisionInForce when no active or
//	superseded revision covers the date (a valid outcome, not a fault).
func (r *Resolver) Resolve(source, date string) (Entry, error) {
	if !datatypes.ValidDate(date) {
		return Entry{}, fmt.Errorf("%w: %q", datatypes.ErrInvalidDate, date)
	}
	if !r.index.HasSource(source) {
		return Entry{}, fmt.Errorf("%w: %s", datatypes.ErrDocumentNotFound, source)
	}
	e, ok := r.index.Lookup(source, date)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s on %s", datatypes.ErrNoRevisionInForce, source, date)
	}
	return e, nil
}

// ResolveCurrent resolves at today's UTC date. The date is computed
// here, once, and handed to Resolve; resolution itself stays a pure
// function of its date argument.
func (r *Resolver) ResolveCurrent(source string) (Entry, error) {
	return r.Resolve(source, datatypes.Today())
}

// Classify resolves one document and reports which state it landed in,
// without treating the empty outcomes as errors. The returned entry is
// meaningful only in the in-force state. Unknown sources report
// ErrDocumentNotFound.
func (r *Resolver) Classify(source, date string) (Entry, ResolutionState, error) {
	if !datatypes.ValidDate(date) {
		return Entry{}, "", fmt.Errorf("%w: %q", datatypes.ErrInvalidDate, date)
	}

	entries := r.index.Entries(source)
	if entries == nil {
		return Entry{}, "", fmt.Errorf("%w: %s", datatypes.ErrDocumentNotFound, source)
	}

	e, state := r.resolveEntries(entries, source, date)
	return e, state, nil
}

// resolveEntries buckets a document's relationship to the date. entries is
// the document's full ordered entry list.
func (r *Resolver) resolveEntries(entries []Entry, source, date string) (Entry, ResolutionState) {
	if len(entries) == 0 {
		return Entry{}, StateNoRevisions
	}
	if e, ok := r.index.Lookup(source, date); ok {
		return e, StateInForce
	}
	if date < entries[0].EffectiveFrom {
		return Entry{}, StateNotYetEffective
	}
	return Entry{}, StateNoRevisionInForce
}

// ResolveSnapshot resolves every registered document as of one date.
//
// Description:
//
//	Applies Resolve to each document and buckets the outcomes, so callers
//	can distinguish "date predates this document's earliest revision"
//	from "document has a coverage gap on this date" from "document has
//	nothing ingested at all".
func (r *Resolver) ResolveSnapshot(date string) (Snapshot, error) {
	if !datatypes.ValidDate(date) {
		return Snapshot{}, fmt.Errorf("%w: %q", datatypes.ErrInvalidDate, date)
	}

	snap := Snapshot{
		Date:    date,
		InForce: make(map[string]Entry),
	}

	for _, source := range r.index.Sources() {
		entries := r.index.Entries(source)
		e, state := r.resolveEntries(entries, source, date)
		switch state {
		case StateInForce:
			snap.InForce[source] = e
		case StateNotYetEffective:
			snap.NotYetEffective = append(snap.NotYetEffective, source)
		case StateNoRevisionInForce:
			snap.NoRevisionInForce = append(snap.NoRevisionInForce, source)
		case StateNoRevisions:
			snap.NoRevisions = append(snap.NoRevisions, source)
		}
	}
	return snap, nil
}

// InForceSet resolves the valid revision set for a date, optionally
// restricted to specific sources. Used by search to build its temporal
// filter: the result holds only documents with a revision in force.
//
// Unknown sources in the restriction contribute nothing; that mirrors
// search semantics, where an unmatched document is an empty result, not
// an error.
func (r *Resolver) InForceSet(date string, sources []string) (map[string]Entry, error) {
	if !datatypes.ValidDate(date) {
		return nil, fmt.Errorf("%w: %q", datatypes.ErrInvalidDate, date)
	}

	if len(sources) == 0 {
		sources = r.index.Sources()
	}

	set := make(map[string]Entry)
	for _, source := range sources {
		if e, ok := r.index.Lookup(source, date); ok {
			set[source] = e
		}
	}
	return set, nil
}
