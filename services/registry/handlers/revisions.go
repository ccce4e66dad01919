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
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/Waymark/services/registry/analytics"
	"github.com/AleutianAI/Waymark/services/registry/datatypes"
	"github.com/AleutianAI/Waymark/services/registry/ingest"
	"github.com/AleutianAI/Waymark/services/registry/observability"
)

// ingestionStatusPath returns the polling URL for a revision's
// ingestion job, as embedded in write responses.
func ingestionStatusPath(revisionID string) string {
	return "/v1/ingestions/" + revisionID
}

// AddRevision handles POST /v1/documents/:source/revisions.
//
// The revision record is created in processing status and its ingestion
// job is enqueued before the response is written. When the queue is
// full the record stays in processing with no job; the consistency
// sweep flags it as stale and a reindex retries it.
func (h *Handlers) AddRevision(c *gin.Context) {
	source := c.Param("source")
	started := time.Now()

	var req datatypes.AddRevisionRequest
	if err := c.BindJSON(&req); err != nil {
		h.respondBadBody(c, err)
		return
	}

	result, err := h.catalog.AddRevision(c.Request.Context(), source, req)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordOperation("add_revision", err)
	}
	if err != nil {
		h.recorder.Record(c.Request.Context(), analytics.OperationIngest, source,
			analytics.OutcomeError, time.Since(started), 0)
		h.respondError(c, err)
		return
	}

	revisionID := result.Revision.RevisionID
	err = h.coordinator.Enqueue(c.Request.Context(), ingest.Job{
		Source:     source,
		RevisionID: revisionID,
		Content:    []byte(req.Content),
	})
	h.recorder.Record(c.Request.Context(), analytics.OperationIngest, source,
		analytics.OutcomeOf(err), time.Since(started), 0)
	if err != nil {
		h.logger.Warn("revision created but ingestion not queued",
			slog.String("source", source),
			slog.String("revision_id", revisionID),
			slog.String("error", err.Error()))
		h.respondError(c, err)
		return
	}

	resp := datatypes.AddRevisionResponse{
		Revision:  result.Revision,
		Ingestion: ingestionStatusPath(revisionID),
	}
	if result.Superseded != nil {
		resp.SupersededRevisionID = result.Superseded.RevisionID
		resp.SupersededEffectiveTo = result.Superseded.EffectiveTo
	}
	c.JSON(http.StatusCreated, resp)
}

// ListRevisions handles GET /v1/documents/:source/revisions.
func (h *Handlers) ListRevisions(c *gin.Context) {
	resp, err := h.catalog.ListRevisions(c.Request.Context(), c.Param("source"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetRevision handles GET /v1/documents/:source/revisions/:revisionId.
func (h *Handlers) GetRevision(c *gin.Context) {
	rev, err := h.catalog.GetRevision(c.Request.Context(), c.Param("source"), c.Param("revisionId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rev)
}

// UpdateRevision handles PATCH /v1/documents/:source/revisions/:revisionId.
func (h *Handlers) UpdateRevision(c *gin.Context) {
	var req datatypes.UpdateRevisionRequest
	if err := c.BindJSON(&req); err != nil {
		h.respondBadBody(c, err)
		return
	}

	rev, err := h.catalog.UpdateRevision(c.Request.Context(), c.Param("source"), c.Param("revisionId"), req)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordOperation("update_revision", err)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rev)
}

// DeleteRevision handles DELETE /v1/documents/:source/revisions/:revisionId.
//
// The vector purge runs after the record delete commits and is best
// effort; a false vectors_purged in the response means the consistency
// sweep will pick up the orphans.
func (h *Handlers) DeleteRevision(c *gin.Context) {
	source := c.Param("source")
	revisionID := c.Param("revisionId")

	rev, err := h.catalog.DeleteRevision(c.Request.Context(), source, revisionID)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordOperation("delete_revision", err)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	purged := false
	if h.writer != nil {
		if _, perr := h.writer.Purge(c.Request.Context(), rev.RevisionID); perr != nil {
			h.logger.Warn("vector purge after revision delete failed",
				slog.String("source", source),
				slog.String("revision_id", rev.RevisionID),
				slog.String("error", perr.Error()))
		} else {
			purged = true
		}
	}

	c.JSON(http.StatusOK, datatypes.DeleteRevisionResponse{
		Source:           source,
		PurgedRevisionID: rev.RevisionID,
		VectorsPurged:    purged,
	})
}

// ReindexRevision handles POST /v1/documents/:source/revisions/:revisionId/reindex.
//
// Content is not re-uploaded; the worker re-reads the stored blob.
func (h *Handlers) ReindexRevision(c *gin.Context) {
	source := c.Param("source")
	revisionID := c.Param("revisionId")

	err := h.coordinator.Reindex(c.Request.Context(), source, revisionID, nil)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordOperation("reindex_revision", err)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"source":      source,
		"revision_id": revisionID,
		"ingestion":   ingestionStatusPath(revisionID),
	})
}
