// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"sync"
	"time"
)

// AuditEvent represents a registry event recorded for compliance.
//
// A policy registry answers "which rule applied on date D"; the audit
// trail answers "who changed the rules, and when". Events are
// categorized by type for filtering and alerting:
//
//   - Document lifecycle: "registry.document.create", "registry.document.delete"
//   - Revision lifecycle: "registry.revision.add", "registry.revision.supersede",
//     "registry.revision.delete", "registry.revision.reindex"
//   - Ingestion: "ingest.complete", "ingest.failed"
//   - Authentication: "auth.failed"
//
// For regulatory traceability, always populate UserID, Timestamp, and
// ResourceType/ResourceID.
//
// Example:
//
//	event := AuditEvent{
//	    EventType:    "registry.revision.supersede",
//	    Timestamp:    time.Now().UTC(),
//	    UserID:       authInfo.UserID,
//	    Action:       "supersede",
//	    ResourceType: "revision",
//	    ResourceID:   priorRevisionID,
//	    Outcome:      "success",
//	    Metadata: map[string]any{
//	        "source":          "NPPF",
//	        "superseded_by":   newRevisionID,
//	        "effective_to":    "2024-12-11",
//	    },
//	}
type AuditEvent struct {
	// EventType categorizes the event, formatted "category.action"
	// (e.g. "registry.revision.add").
	EventType string

	// Timestamp is when the event occurred (always use UTC).
	// If zero, implementations should set it to time.Now().UTC().
	Timestamp time.Time

	// UserID identifies who performed the action.
	// Use "system" for automated actions (watcher, scheduler).
	UserID string

	// Action describes the operation: "create", "delete", "supersede",
	// "reindex", "backup".
	Action string

	// ResourceType is the category of resource involved:
	// "document", "revision", "ingestion", "backup".
	ResourceType string

	// ResourceID is the specific resource instance (optional),
	// e.g. a source slug or revision_id.
	ResourceID string

	// Outcome indicates the result: "success", "failure", "blocked".
	Outcome string

	// Metadata holds event-specific details ("error", "source",
	// "effective_from", "chunk_count", "duration_ms").
	Metadata map[string]any
}

// AuditFilter defines criteria for querying audit events.
//
// All fields are optional; only non-zero values are used as filters,
// combined with AND logic.
type AuditFilter struct {
	// EventTypes limits results to specific event types.
	EventTypes []string

	// UserID limits results to events from a specific user.
	UserID string

	// StartTime is the earliest timestamp to include (inclusive).
	StartTime time.Time

	// EndTime is the latest timestamp to include (exclusive).
	EndTime time.Time

	// ResourceType limits results to a resource category.
	ResourceType string

	// ResourceID limits results to a specific resource.
	ResourceID string

	// Outcome limits results to a specific outcome.
	Outcome string

	// Limit is the maximum number of events to return.
	// If zero, an implementation-specific default applies.
	Limit int

	// Offset is the number of events to skip (for pagination).
	Offset int
}

// AuditLogger records registry events for compliance and analysis.
//
// Implementations must be safe for concurrent use. Log should be
// non-blocking or have reasonable timeouts so it never slows a
// mutation. Hosted versions forward events to SIEM systems or
// compliance databases; the open source default discards them.
type AuditLogger interface {
	// Log records an event. Implementations should set Timestamp if
	// zero, persist or transmit the event, and return quickly.
	Log(ctx context.Context, event AuditEvent) error

	// Query retrieves events matching the filter, ordered by
	// Timestamp descending.
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)

	// Flush ensures buffered events are persisted. Call before
	// shutdown to prevent event loss.
	Flush(ctx context.Context) error
}

// NopAuditLogger is the default audit logger. It discards all events;
// appropriate for local single-operator deployments where an audit
// trail isn't required. Thread-safe: no mutable state.
type NopAuditLogger struct{}

// Log discards the event without recording it.
func (l *NopAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	return nil
}

// Query returns an empty slice (no events are stored).
func (l *NopAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

// Flush is a no-op since nothing is buffered.
func (l *NopAuditLogger) Flush(ctx context.Context) error {
	return nil
}

// MemoryAuditLogger keeps events in a bounded in-memory ring.
//
// Used by tests to assert that mutations emit the right events, and
// usable as a lightweight trail for development deployments. When the
// ring is full the oldest events are dropped.
type MemoryAuditLogger struct {
	mu     sync.Mutex
	events []AuditEvent
	max    int
}

// NewMemoryAuditLogger creates a logger retaining at most max events.
// A max of zero defaults to 1024.
func NewMemoryAuditLogger(max int) *MemoryAuditLogger {
	if max <= 0 {
		max = 1024
	}
	return &MemoryAuditLogger{
		events: make([]AuditEvent, 0, 64),
		max:    max,
	}
}

// Log appends the event, stamping Timestamp if zero and evicting the
// oldest event when the ring is full.
func (l *MemoryAuditLogger) Log(_ context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) >= l.max {
		l.events = l.events[1:]
	}
	l.events = append(l.events, event)
	return nil
}

// Query filters the retained events. Results are ordered newest first.
func (l *MemoryAuditLogger) Query(_ context.Context, filter AuditFilter) ([]AuditEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []AuditEvent
	for i := len(l.events) - 1; i >= 0; i-- {
		e := l.events[i]
		if !matchesFilter(e, filter) {
			continue
		}
		out = append(out, e)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []AuditEvent{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	if out == nil {
		out = []AuditEvent{}
	}
	return out, nil
}

// Flush is a no-op (events are already in memory).
func (l *MemoryAuditLogger) Flush(_ context.Context) error {
	return nil
}

// matchesFilter applies the AND semantics of AuditFilter to one event.
func matchesFilter(e AuditEvent, f AuditFilter) bool {
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if e.EventType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && !e.Timestamp.Before(f.EndTime) {
		return false
	}
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	return true
}

// Compile-time interface compliance checks.
var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*MemoryAuditLogger)(nil)
)
