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
)

// Health handles GET /health. Liveness plus a subsystem readout; the
// endpoint answers 200 even when weaviate is degraded, because the
// registry keeps serving catalog and resolve traffic in that state.
func (h *Handlers) Health(c *gin.Context) {
	index := h.catalog.Index()

	store := gin.H{"status": "up"}
	if h.db != nil {
		if h.db.InMemory() {
			store["path"] = "in_memory"
		} else {
			store["path"] = h.db.Path()
		}
	}

	vector := gin.H{"status": "not_configured"}
	if h.index != nil {
		vector["status"] = h.index.GetState().String()
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"store":  store,
		"vector": vector,
		"index": gin.H{
			"documents": len(index.Sources()),
			"entries":   index.Len(),
		},
	})
}
