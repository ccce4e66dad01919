// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes wires the handler set onto the gin router.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/Waymark/pkg/extensions"
	"github.com/AleutianAI/Waymark/services/registry/handlers"
	"github.com/AleutianAI/Waymark/services/registry/middleware"
	"github.com/AleutianAI/Waymark/services/registry/telemetry"
)

// SetupRoutes registers every registry endpoint. Health and metrics
// stay outside the /v1 group so probes and scrapers never need a
// token; everything under /v1 passes bearer auth, with the destructive
// routes additionally gated by the authorization provider.
func SetupRoutes(router *gin.Engine, h *handlers.Handlers, opts extensions.ServiceOptions) {
	if opts.AuthProvider == nil {
		opts.AuthProvider = &extensions.NopAuthProvider{}
	}
	if opts.AuthzProvider == nil {
		opts.AuthzProvider = &extensions.NopAuthzProvider{}
	}

	router.GET("/health", h.Health)
	if mh := telemetry.MetricsHandler(); mh != nil {
		router.GET("/metrics", gin.WrapH(mh))
	}

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(opts.AuthProvider))
	{
		documents := v1.Group("/documents")
		{
			documents.POST("", h.CreateDocument)
			documents.GET("", h.ListDocuments)
			documents.GET("/:source", h.GetDocument)
			documents.PATCH("/:source", h.UpdateDocument)
			documents.DELETE("/:source",
				middleware.RequireAction(opts.AuthzProvider, "delete", "document"),
				h.DeleteDocument)

			documents.POST("/:source/revisions", h.AddRevision)
			documents.GET("/:source/revisions", h.ListRevisions)
			documents.GET("/:source/revisions/:revisionId", h.GetRevision)
			documents.PATCH("/:source/revisions/:revisionId", h.UpdateRevision)
			documents.DELETE("/:source/revisions/:revisionId",
				middleware.RequireAction(opts.AuthzProvider, "delete", "revision"),
				h.DeleteRevision)
			documents.POST("/:source/revisions/:revisionId/reindex", h.ReindexRevision)
		}

		v1.GET("/resolve", h.Resolve)
		v1.GET("/snapshot", h.Snapshot)
		v1.POST("/search", h.Search)
		v1.GET("/sections/:source/:sectionRef", h.GetSection)

		ingestions := v1.Group("/ingestions")
		{
			ingestions.GET("/:revisionId", h.IngestionStatus)
			ingestions.GET("/:revisionId/watch", h.WatchIngestion)
		}

		consistency := v1.Group("/consistency")
		{
			consistency.POST("/check", h.RunConsistencyCheck)
			consistency.GET("/report", h.ConsistencyReport)
		}

		v1.GET("/analytics/usage", h.AnalyticsUsage)

		admin := v1.Group("/admin")
		{
			admin.POST("/backup",
				middleware.RequireAction(opts.AuthzProvider, "backup", "store"),
				h.Backup)
		}
	}
}
