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

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/Waymark/services/registry/datatypes"
	"github.com/AleutianAI/Waymark/services/registry/observability"
)

// CreateDocument handles POST /v1/documents.
func (h *Handlers) CreateDocument(c *gin.Context) {
	var req datatypes.CreateDocumentRequest
	if err := c.BindJSON(&req); err != nil {
		h.respondBadBody(c, err)
		return
	}

	doc, err := h.catalog.CreateDocument(c.Request.Context(), req)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordOperation("create_document", err)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, doc)
}

// ListDocuments handles GET /v1/documents with optional category and
// source_prefix query filters.
func (h *Handlers) ListDocuments(c *gin.Context) {
	var req datatypes.ListDocumentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.respondBadBody(c, err)
		return
	}

	resp, err := h.catalog.ListDocuments(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetDocument handles GET /v1/documents/:source.
func (h *Handlers) GetDocument(c *gin.Context) {
	resp, err := h.catalog.GetDocument(c.Request.Context(), c.Param("source"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// UpdateDocument handles PATCH /v1/documents/:source.
func (h *Handlers) UpdateDocument(c *gin.Context) {
	var req datatypes.UpdateDocumentRequest
	if err := c.BindJSON(&req); err != nil {
		h.respondBadBody(c, err)
		return
	}

	doc, err := h.catalog.UpdateDocument(c.Request.Context(), c.Param("source"), req)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordOperation("update_document", err)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

// DeleteDocument handles DELETE /v1/documents/:source. Documents that
// still hold revisions are refused; delete the revisions first.
func (h *Handlers) DeleteDocument(c *gin.Context) {
	err := h.catalog.DeleteDocument(c.Request.Context(), c.Param("source"))
	if m := observability.DefaultMetrics; m != nil {
		m.RecordOperation("delete_document", err)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
