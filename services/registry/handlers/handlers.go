// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the registry's HTTP API.
//
// Every endpoint speaks the uniform error envelope
// datatypes.ErrorResponse; sentinel errors from the domain packages map
// to HTTP statuses in one table (mapError) so the catalog, gateway, and
// coordinator never learn about HTTP. Usage analytics and the catalog
// operation counters are recorded here, at the request edge; the
// gateway and coordinator carry their own instrumentation.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/Waymark/services/registry/analytics"
	"github.com/AleutianAI/Waymark/services/registry/catalog"
	"github.com/AleutianAI/Waymark/services/registry/consistency"
	"github.com/AleutianAI/Waymark/services/registry/datatypes"
	"github.com/AleutianAI/Waymark/services/registry/ingest"
	"github.com/AleutianAI/Waymark/services/registry/search"
	"github.com/AleutianAI/Waymark/services/registry/storage/badger"
	"github.com/AleutianAI/Waymark/services/registry/storage/blob"
	"github.com/AleutianAI/Waymark/services/registry/temporal"
	"github.com/AleutianAI/Waymark/services/registry/weaviate"
)

// Deps carries the subsystems the handlers serve.
//
// Catalog, Resolver, Gateway, and Coordinator are required. The rest
// are optional: a nil Recorder disables usage analytics, a nil Writer
// skips the best-effort vector purge on revision delete, a nil
// Scheduler disables the consistency endpoints, a nil Index degrades
// /health to store-only, and a nil DB disables backup.
type Deps struct {
	Catalog     *catalog.Catalog
	Resolver    *temporal.Resolver
	Blobs       *blob.Store
	Gateway     *search.Gateway
	Coordinator *ingest.Coordinator
	Writer      *ingest.Writer
	Scheduler   *consistency.Scheduler
	Recorder    *analytics.Recorder
	Index       *weaviate.ResilientClient
	DB          *badger.DB

	// BackupDir is where POST /v1/admin/backup writes badger backup
	// files. Empty defaults to the system temp directory.
	BackupDir string

	Logger *slog.Logger
}

// Handlers is the registry's HTTP handler set. Construct with New and
// register with routes.SetupRoutes.
type Handlers struct {
	catalog     *catalog.Catalog
	resolver    *temporal.Resolver
	blobs       *blob.Store
	gateway     *search.Gateway
	coordinator *ingest.Coordinator
	writer      *ingest.Writer
	scheduler   *consistency.Scheduler
	recorder    *analytics.Recorder
	index       *weaviate.ResilientClient
	db          *badger.DB
	backupDir   string
	logger      *slog.Logger
}

// New validates the required dependencies and returns the handler set.
func New(deps Deps) (*Handlers, error) {
	if deps.Catalog == nil {
		return nil, errors.New("handlers: catalog is required")
	}
	if deps.Resolver == nil {
		return nil, errors.New("handlers: resolver is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("handlers: gateway is required")
	}
	if deps.Coordinator == nil {
		return nil, errors.New("handlers: coordinator is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handlers{
		catalog:     deps.Catalog,
		resolver:    deps.Resolver,
		blobs:       deps.Blobs,
		gateway:     deps.Gateway,
		coordinator: deps.Coordinator,
		writer:      deps.Writer,
		scheduler:   deps.Scheduler,
		recorder:    deps.Recorder,
		index:       deps.Index,
		db:          deps.DB,
		backupDir:   deps.BackupDir,
		logger:      logger.With(slog.String("component", "api")),
	}, nil
}

// errorStatuses maps sentinel errors to HTTP statuses and envelope
// codes. First match wins; order groups by status for readability.
var errorStatuses = []struct {
	target error
	status int
	code   string
}{
	{datatypes.ErrInvalidSource, http.StatusBadRequest, "invalid_source"},
	{datatypes.ErrInvalidCategory, http.StatusBadRequest, "invalid_category"},
	{datatypes.ErrInvalidDate, http.StatusBadRequest, "invalid_date"},
	{datatypes.ErrInvalidDateRange, http.StatusBadRequest, "invalid_date_range"},
	{datatypes.ErrContentTooLarge, http.StatusBadRequest, "content_too_large"},

	{datatypes.ErrDocumentNotFound, http.StatusNotFound, "document_not_found"},
	{datatypes.ErrRevisionNotFound, http.StatusNotFound, "revision_not_found"},
	{datatypes.ErrNoRevisionInForce, http.StatusNotFound, "no_revision_in_force"},
	{datatypes.ErrSectionNotFound, http.StatusNotFound, "section_not_found"},
	{datatypes.ErrIngestionNotFound, http.StatusNotFound, "ingestion_not_found"},
	{datatypes.ErrAnalyticsDisabled, http.StatusNotFound, "analytics_disabled"},

	{datatypes.ErrDocumentExists, http.StatusConflict, "document_exists"},
	{datatypes.ErrDocumentHasRevisions, http.StatusConflict, "document_has_revisions"},
	{datatypes.ErrRevisionExists, http.StatusConflict, "revision_exists"},
	{datatypes.ErrRevisionOverlap, http.StatusConflict, "revision_overlap"},
	{datatypes.ErrSoleRevision, http.StatusConflict, "sole_revision"},
	{datatypes.ErrIngestInProgress, http.StatusConflict, "ingest_in_progress"},
	{datatypes.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{consistency.ErrSweepInFlight, http.StatusConflict, "sweep_in_flight"},

	{ingest.ErrQueueFull, http.StatusServiceUnavailable, "queue_full"},
	{ingest.ErrIntakeClosed, http.StatusServiceUnavailable, "intake_closed"},

	{datatypes.ErrEmbeddingFailed, http.StatusBadGateway, "embedding_failed"},
	{datatypes.ErrIndexWriteFailed, http.StatusBadGateway, "index_write_failed"},
	{weaviate.ErrWeaviateUnavailable, http.StatusBadGateway, "index_unavailable"},
	{weaviate.ErrCircuitOpen, http.StatusBadGateway, "index_circuit_open"},
	{weaviate.ErrConnectionTimeout, http.StatusBadGateway, "index_timeout"},

	{datatypes.ErrCorruptRecord, http.StatusInternalServerError, "corrupt_record"},
}

// mapError translates a domain error into (status, envelope).
func mapError(err error) (int, datatypes.ErrorResponse) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return http.StatusBadRequest, datatypes.ErrorResponse{
			Error:  "request validation failed",
			Code:   "validation_failed",
			Detail: err.Error(),
		}
	}

	for _, m := range errorStatuses {
		if errors.Is(err, m.target) {
			envelope := datatypes.ErrorResponse{
				Error: m.target.Error(),
				Code:  m.code,
			}
			if detail := err.Error(); detail != envelope.Error {
				envelope.Detail = detail
			}
			return m.status, envelope
		}
	}

	return http.StatusInternalServerError, datatypes.ErrorResponse{
		Error:  "internal error",
		Code:   "internal",
		Detail: err.Error(),
	}
}

// respondError writes the uniform error envelope for err. Server-side
// failures are logged here so handlers do not repeat it.
func (h *Handlers) respondError(c *gin.Context, err error) {
	status, envelope := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("path", c.FullPath()),
			slog.String("method", c.Request.Method),
			slog.String("error", err.Error()))
	}
	c.JSON(status, envelope)
}

// respondBadBody writes the envelope for an unparseable request body.
func (h *Handlers) respondBadBody(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
		Error:  "invalid request body",
		Code:   "invalid_body",
		Detail: err.Error(),
	})
}
