// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package temporal provides the revision index and effective-date resolver.
//
// The index is a derived, in-memory projection of the revision records in
// the catalog: per document, an ordered sequence of effective ranges
// supporting O(log n) point-in-time lookups. It is rebuilt from the store
// at startup and kept current by the registry on every committed mutation.
// It is never authoritative; suspicion of corruption is answered by a
// rebuild, not a repair.
package temporal

import (
	"sort"
	"sync"

	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

// Entry is one revision's tuple in the index.
type Entry struct {
	EffectiveFrom string
	EffectiveTo   string // empty means open-ended
	RevisionID    string
	Status        datatypes.RevisionStatus
}

// openEnded reports whether the entry has no end date.
func (e Entry) openEnded() bool {
	return e.EffectiveTo == ""
}

// covers reports whether date falls inside the entry's inclusive range.
// Dates are canonical YYYY-MM-DD strings, so comparison is lexicographic.
func (e Entry) covers(date string) bool {
	if date < e.EffectiveFrom {
		return false
	}
	return e.EffectiveTo == "" || date <= e.EffectiveTo
}

// resolvable reports whether the entry's revision can be returned by a
// temporal lookup. Processing revisions have no vectors yet and failed
// ones never will; neither is ever "in force".
func (e Entry) resolvable() bool {
	return e.Status == datatypes.StatusActive || e.Status == datatypes.StatusSuperseded
}

// Index is the per-document ordered revision index.
//
// Description:
//
//	Holds, for every registered document, its revisions sorted ascending
//	by effective_from. Registered documents with no revisions keep an
//	empty (non-nil map presence) slot so the resolver can distinguish an
//	unknown source from an empty one.
//
// Invariants:
//   - entries[source] is sorted ascending by EffectiveFrom
//   - no two entries of one source share an EffectiveFrom (the registry
//     rejects duplicates before they reach the index)
//   - every mutation happens under mu; lookups take the read lock
//
// Thread Safety: Safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		entries: make(map[string][]Entry),
	}
}

// Rebuild replaces the whole index from document and revision records.
// This is the recovery path: called at startup after the store opens, or
// whenever the index is suspected stale.
func (ix *Index) Rebuild(docs []datatypes.Document, revs []datatypes.Revision) {
	fresh := make(map[string][]Entry, len(docs))
	for _, d := range docs {
		fresh[d.Source] = nil
	}
	for _, r := range revs {
		fresh[r.Source] = append(fresh[r.Source], entryFor(r))
	}
	for source := range fresh {
		sortEntries(fresh[source])
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = fresh
}

// RegisterSource adds an empty slot for a new document.
func (ix *Index) RegisterSource(source string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.entries[source]; !ok {
		ix.entries[source] = nil
	}
}

// RemoveSource drops a document and all its entries.
func (ix *Index) RemoveSource(source string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.entries, source)
}

// HasSource reports whether a document is registered.
func (ix *Index) HasSource(source string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.entries[source]
	return ok
}

// Upsert inserts or replaces one revision's entry. Replacement matches by
// RevisionID, so a date edit moves the entry to its new sorted position.
func (ix *Index) Upsert(rev datatypes.Revision) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	s := ix.removeLocked(rev.Source, rev.RevisionID)
	e := entryFor(rev)

	// Insert at sorted position.
	pos := sort.Search(len(s), func(i int) bool {
		return s[i].EffectiveFrom >= e.EffectiveFrom
	})
	s = append(s, Entry{})
	copy(s[pos+1:], s[pos:])
	s[pos] = e
	ix.entries[rev.Source] = s
}

// Remove drops one revision's entry. Removing an absent revision is a
// no-op; the source's slot survives even when its last entry goes.
func (ix *Index) Remove(source, revisionID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.entries[source]; !ok {
		return
	}
	ix.entries[source] = ix.removeLocked(source, revisionID)
}

// removeLocked returns source's slice with revisionID filtered out.
// Caller holds mu.
func (ix *Index) removeLocked(source, revisionID string) []Entry {
	s := ix.entries[source]
	for i := range s {
		if s[i].RevisionID == revisionID {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// Lookup finds the entry in force on date for one document.
//
// Description:
//
//	Binary-searches for the entry with the greatest effective_from <= date,
//	then checks the inclusive upper bound. Ranges are non-overlapping, so
//	at most one entry can cover any date; if that entry is not resolvable
//	(still processing, or failed) nothing is in force on the date.
//
// Outputs:
//
//	Entry - The covering entry, when found.
//	bool - False if the source is unknown, no entry covers the date, or
//	the covering entry is not resolvable.
func (ix *Index) Lookup(source, date string) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	s, ok := ix.entries[source]
	if !ok || len(s) == 0 {
		return Entry{}, false
	}

	// First entry starting after date; the candidate is the one before it.
	pos := sort.Search(len(s), func(i int) bool {
		return s[i].EffectiveFrom > date
	})
	if pos == 0 {
		return Entry{}, false
	}
	e := s[pos-1]
	if !e.covers(date) || !e.resolvable() {
		return Entry{}, false
	}
	return e, true
}

// Entries returns a copy of one document's entries, ascending by
// effective_from. Nil for unknown sources, empty for registered documents
// without revisions.
func (ix *Index) Entries(source string) []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	s, ok := ix.entries[source]
	if !ok {
		return nil
	}
	out := make([]Entry, len(s))
	copy(out, s)
	return out
}

// OpenEnded returns the document's open-ended entry, if it has one. The
// registry's invariant permits at most one.
func (ix *Index) OpenEnded(source string) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	s := ix.entries[source]
	// The open-ended entry, if present, is always last in the sorted
	// order: nothing may start after it without superseding it first.
	if n := len(s); n > 0 && s[n-1].openEnded() {
		return s[n-1], true
	}
	return Entry{}, false
}

// Sources returns every registered source in sorted order.
func (ix *Index) Sources() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]string, 0, len(ix.entries))
	for source := range ix.entries {
		out = append(out, source)
	}
	sort.Strings(out)
	return out
}

// Len returns the total entry count across all documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := 0
	for _, s := range ix.entries {
		n += len(s)
	}
	return n
}

// entryFor projects a revision record onto its index tuple.
func entryFor(r datatypes.Revision) Entry {
	return Entry{
		EffectiveFrom: r.EffectiveFrom,
		EffectiveTo:   r.EffectiveTo,
		RevisionID:    r.RevisionID,
		Status:        r.Status,
	}
}

// sortEntries sorts in place, ascending by effective_from.
func sortEntries(s []Entry) {
	sort.Slice(s, func(i, j int) bool {
		return s[i].EffectiveFrom < s[j].EffectiveFrom
	})
}
