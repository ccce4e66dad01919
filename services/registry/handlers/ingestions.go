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
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// watchInterval is how often the watch socket pushes a status frame.
const watchInterval = time.Second

// IngestionStatus handles GET /v1/ingestions/:revisionId.
func (h *Handlers) IngestionStatus(c *gin.Context) {
	status, err := h.coordinator.Status(c.Request.Context(), c.Param("revisionId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// WatchIngestion handles GET /v1/ingestions/:revisionId/watch.
//
// The job is looked up before the upgrade so an unknown revision gets a
// plain 404 envelope rather than a broken socket. After the upgrade the
// socket receives one frame immediately and then one per second until
// the job reaches a terminal phase, at which point the server sends the
// final frame and closes.
func (h *Handlers) WatchIngestion(c *gin.Context) {
	revisionID := c.Param("revisionId")

	status, err := h.coordinator.Status(c.Request.Context(), revisionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			slog.String("revision_id", revisionID),
			slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	if err := ws.WriteJSON(status); err != nil {
		return
	}
	if status.Phase.Terminal() {
		h.closeWatch(ws)
		return
	}

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}

		status, err := h.coordinator.Status(c.Request.Context(), revisionID)
		if err != nil {
			h.logger.Warn("ingestion watch lost its job",
				slog.String("revision_id", revisionID),
				slog.String("error", err.Error()))
			h.closeWatch(ws)
			return
		}
		if err := ws.WriteJSON(status); err != nil {
			return
		}
		if status.Phase.Terminal() {
			h.closeWatch(ws)
			return
		}
	}
}

// closeWatch sends a normal close frame so well-behaved clients see a
// clean end of stream instead of an abnormal closure.
func (h *Handlers) closeWatch(ws *websocket.Conn) {
	deadline := time.Now().Add(time.Second)
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}
