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
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

// RunConsistencyCheck handles POST /v1/consistency/check. The sweep
// runs synchronously; a sweep already in flight is a conflict, not a
// queue.
func (h *Handlers) RunConsistencyCheck(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, datatypes.ErrorResponse{
			Error: "consistency checking is not configured",
			Code:  "consistency_disabled",
		})
		return
	}

	report, err := h.scheduler.RunNow(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// ConsistencyReport handles GET /v1/consistency/report, returning the
// most recent sweep result without running a new one.
func (h *Handlers) ConsistencyReport(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, datatypes.ErrorResponse{
			Error: "consistency checking is not configured",
			Code:  "consistency_disabled",
		})
		return
	}

	report, ok := h.scheduler.LastReport()
	if !ok {
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{
			Error: "no consistency sweep has completed yet",
			Code:  "no_report",
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

// AnalyticsUsage handles GET /v1/analytics/usage?days=N. Days is
// defaulted and capped by the recorder; a registry running without
// InfluxDB answers 404.
func (h *Handlers) AnalyticsUsage(c *gin.Context) {
	days := 0
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Error:  "days must be an integer",
				Code:   "invalid_days",
				Detail: raw,
			})
			return
		}
		days = parsed
	}

	usage, err := h.recorder.Usage(c.Request.Context(), days)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, usage)
}

// Backup handles POST /v1/admin/backup. A full badger backup is
// streamed to a timestamped file under the configured backup directory
// and the file's path and size are returned; shipping the file off the
// host is the caller's business.
func (h *Handlers) Backup(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, datatypes.ErrorResponse{
			Error: "store backup is not configured",
			Code:  "backup_disabled",
		})
		return
	}

	dir := h.backupDir
	if dir == "" {
		dir = os.TempDir()
	}
	stamp := time.Now().UTC().Format("20060102T150405Z")
	path := filepath.Join(dir, "waymark-"+stamp+".bak")

	size, err := h.db.BackupToFile(c.Request.Context(), path)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Info("store backup written",
		slog.String("path", path),
		slog.Int64("size_bytes", size))
	c.JSON(http.StatusOK, gin.H{
		"path":       path,
		"size_bytes": size,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	})
}
