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
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/Waymark/services/registry/analytics"
	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

// Search handles POST /v1/search. The gateway applies the temporal
// filter and the degradation gate; this handler only binds, records
// usage, and shapes errors.
func (h *Handlers) Search(c *gin.Context) {
	var req datatypes.SearchRequest
	if err := c.BindJSON(&req); err != nil {
		h.respondBadBody(c, err)
		return
	}
	started := time.Now()

	resp, err := h.gateway.Search(c.Request.Context(), req)
	h.recorder.Record(c.Request.Context(), analytics.OperationSearch, searchScope(req.Sources),
		analytics.OutcomeOf(err), time.Since(started), resp.Count)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// searchScope labels a search's source restriction for usage analytics.
// Multi-source and unrestricted searches are not attributed to any one
// document.
func searchScope(sources []string) string {
	if len(sources) == 1 {
		return sources[0]
	}
	return "all"
}

// GetSection handles GET /v1/sections/:source/:sectionRef?as_of_date=D.
// An omitted as_of_date fetches from the revision in force today; the
// gateway applies that default.
func (h *Handlers) GetSection(c *gin.Context) {
	source := c.Param("source")
	sectionRef := c.Param("sectionRef")
	asOfDate := c.Query("as_of_date")
	started := time.Now()

	resp, err := h.gateway.GetSection(c.Request.Context(), source, sectionRef, asOfDate)
	h.recorder.Record(c.Request.Context(), analytics.OperationSection, source,
		analytics.OutcomeOf(err), time.Since(started), resp.ChunkCount)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
