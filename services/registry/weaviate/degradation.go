// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package weaviate

import (
	"log/slog"
	"sync/atomic"
)

// -----------------------------------------------------------------------------
// Degradation Mode
// -----------------------------------------------------------------------------

// DegradationMode represents the operational mode of a component.
type DegradationMode int32

const (
	// ModeNormal indicates full functionality.
	ModeNormal DegradationMode = iota
	// ModeDegraded indicates reduced functionality.
	ModeDegraded
	// ModeDisabled indicates the component is completely disabled.
	ModeDisabled
)

// String returns the string representation of DegradationMode.
func (m DegradationMode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeDegraded:
		return "degraded"
	case ModeDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Degradation Handler Interface
// -----------------------------------------------------------------------------

// DegradationHandler is notified of vector index availability changes.
//
// Description:
//
//	Components that depend on the index should implement this interface
//	to handle degradation gracefully. The catalog itself never degrades,
//	only search and ingestion do.
//
// Thread Safety: Implementations must be safe for concurrent use.
type DegradationHandler interface {
	// OnDegraded is called when the index becomes unavailable.
	//
	// Inputs:
	//   - reason: Description of why degradation occurred.
	OnDegraded(reason string)

	// OnRecovered is called when the index becomes available again.
	OnRecovered()

	// GetMode returns the current degradation mode.
	GetMode() DegradationMode
}

// -----------------------------------------------------------------------------
// Base Degradation Handler
// -----------------------------------------------------------------------------

// BaseDegradationHandler provides a basic implementation of DegradationHandler.
//
// Description:
//
//	Tracks degradation state and provides logging. Embed this in
//	component-specific handlers.
//
// Thread Safety: Safe for concurrent use.
type BaseDegradationHandler struct {
	name   string
	mode   atomic.Int32
	logger *slog.Logger
}

// NewBaseDegradationHandler creates a new base handler.
//
// Inputs:
//
//	name - Component name for logging.
//	logger - Logger instance. Uses slog.Default() if nil.
func NewBaseDegradationHandler(name string, logger *slog.Logger) *BaseDegradationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BaseDegradationHandler{
		name:   name,
		logger: logger.With(slog.String("component", name)),
	}
}

// OnDegraded marks the handler as degraded.
func (h *BaseDegradationHandler) OnDegraded(reason string) {
	h.mode.Store(int32(ModeDegraded))
	h.logger.Warn("component degraded, vector index unavailable",
		slog.String("reason", reason))
}

// OnRecovered marks the handler as normal.
func (h *BaseDegradationHandler) OnRecovered() {
	h.mode.Store(int32(ModeNormal))
	h.logger.Info("component recovered, vector index available")
}

// GetMode returns the current mode.
func (h *BaseDegradationHandler) GetMode() DegradationMode {
	return DegradationMode(h.mode.Load())
}

// IsNormal returns true if operating normally.
func (h *BaseDegradationHandler) IsNormal() bool {
	return h.GetMode() == ModeNormal
}

// IsDegraded returns true if operating with reduced functionality.
func (h *BaseDegradationHandler) IsDegraded() bool {
	return h.GetMode() == ModeDegraded
}

// IsDisabled returns true if the component is disabled.
func (h *BaseDegradationHandler) IsDisabled() bool {
	return h.GetMode() == ModeDisabled
}

// SetDisabled explicitly disables the handler.
func (h *BaseDegradationHandler) SetDisabled() {
	h.mode.Store(int32(ModeDisabled))
	h.logger.Warn("component explicitly disabled")
}

// -----------------------------------------------------------------------------
// Component-Specific Handlers
// -----------------------------------------------------------------------------

// SearchDegradation handles degradation for temporal search.
//
// Description:
//
//	When the index is unavailable, semantic search fails fast instead of
//	burning retry budget per query. Section fetch and metadata endpoints
//	keep working from the catalog.
type SearchDegradation struct {
	*BaseDegradationHandler
}

// NewSearchDegradation creates a handler for the search gateway.
func NewSearchDegradation(logger *slog.Logger) *SearchDegradation {
	return &SearchDegradation{
		BaseDegradationHandler: NewBaseDegradationHandler("temporal_search", logger),
	}
}

// OnDegraded handles search degradation.
func (h *SearchDegradation) OnDegraded(reason string) {
	h.BaseDegradationHandler.OnDegraded(reason)
	h.logger.Warn("semantic search disabled, metadata endpoints unaffected",
		slog.String("reason", reason))
}

// OnRecovered handles search recovery.
func (h *SearchDegradation) OnRecovered() {
	h.BaseDegradationHandler.OnRecovered()
	h.logger.Info("semantic search restored")
}

// ShouldRejectQueries returns true if vector queries should be rejected
// without touching the index.
func (h *SearchDegradation) ShouldRejectQueries() bool {
	return h.GetMode() != ModeNormal
}

// -----------------------------------------------------------------------------

// IngestDegradation handles degradation for the ingestion pipeline.
//
// Description:
//
//	When the index is unavailable, queued ingestion jobs are held instead
//	of dispatched. Jobs already past the embedding phase fail and their
//	revisions are marked failed for later reindexing.
type IngestDegradation struct {
	*BaseDegradationHandler
}

// NewIngestDegradation creates a handler for the ingestion coordinator.
func NewIngestDegradation(logger *slog.Logger) *IngestDegradation {
	return &IngestDegradation{
		BaseDegradationHandler: NewBaseDegradationHandler("ingest_pipeline", logger),
	}
}

// OnDegraded handles ingestion degradation.
func (h *IngestDegradation) OnDegraded(reason string) {
	h.BaseDegradationHandler.OnDegraded(reason)
	h.logger.Warn("ingestion paused, queued jobs held until the index recovers",
		slog.String("reason", reason))
}

// OnRecovered handles ingestion recovery.
func (h *IngestDegradation) OnRecovered() {
	h.BaseDegradationHandler.OnRecovered()
	h.logger.Info("ingestion resumed")
}

// ShouldHoldJobs returns true if queued jobs should wait rather than
// dispatch to workers.
func (h *IngestDegradation) ShouldHoldJobs() bool {
	return h.GetMode() != ModeNormal
}
