// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/Waymark/services/registry/analytics"
	"github.com/AleutianAI/Waymark/services/registry/datatypes"
	"github.com/AleutianAI/Waymark/services/registry/observability"
)

// Resolve handles GET /v1/resolve?source=S&date=D. An omitted date
// resolves at today's UTC date; the clock is read here at the request
// boundary, never inside the resolver. The 404s distinguish an unknown
// document from a known document with nothing in force on the date.
func (h *Handlers) Resolve(c *gin.Context) {
	source := c.Query("source")
	date := c.Query("date")
	if date == "" {
		date = datatypes.Today()
	}
	started := time.Now()

	entry, err := h.resolver.Resolve(source, date)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordResolve(source, resolveOutcome(err))
	}
	if err != nil {
		h.recorder.Record(c.Request.Context(), analytics.OperationResolve, source,
			analytics.OutcomeOf(err), time.Since(started), 0)
		h.respondError(c, err)
		return
	}

	rev, err := h.catalog.GetRevision(c.Request.Context(), source, entry.RevisionID)
	h.recorder.Record(c.Request.Context(), analytics.OperationResolve, source,
		analytics.OutcomeOf(err), time.Since(started), 1)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, datatypes.ResolveResponse{
		Source:   source,
		Date:     date,
		Revision: rev,
	})
}

// resolveOutcome buckets a resolution error for the metrics label.
func resolveOutcome(err error) observability.ResolveOutcome {
	switch {
	case err == nil:
		return observability.ResolveOutcomeResolved
	case errors.Is(err, datatypes.ErrNoRevisionInForce):
		return observability.ResolveOutcomeGap
	default:
		return observability.ResolveOutcomeUnknown
	}
}

// Snapshot handles GET /v1/snapshot?date=D. Every registered document
// lands in exactly one bucket of the response.
func (h *Handlers) Snapshot(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = datatypes.Today()
	}

	snap, err := h.resolver.ResolveSnapshot(date)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := datatypes.SnapshotResponse{
		Date:              snap.Date,
		InForce:           make(map[string]datatypes.Revision, len(snap.InForce)),
		NotYetEffective:   snap.NotYetEffective,
		NoRevisionInForce: snap.NoRevisionInForce,
		NoRevisions:       snap.NoRevisions,
	}
	for source, entry := range snap.InForce {
		rev, err := h.catalog.GetRevision(c.Request.Context(), source, entry.RevisionID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		resp.InForce[source] = rev
	}
	resp.Count = len(resp.InForce)

	c.JSON(http.StatusOK, resp)
}
