// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// =============================================================================
// Ingestion Phases
// =============================================================================

// IngestionPhase is one stage of the ingestion pipeline.
type IngestionPhase string

const (
	PhaseQueued     IngestionPhase = "queued"
	PhaseExtracting IngestionPhase = "extracting"
	PhaseChunking   IngestionPhase = "chunking"
	PhaseEmbedding  IngestionPhase = "embedding"
	PhaseWriting    IngestionPhase = "writing"
	PhaseDone       IngestionPhase = "done"
	PhaseFailed     IngestionPhase = "failed"
)

// Terminal reports whether the phase ends the job.
func (p IngestionPhase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// phasePercent maps each phase onto coarse progress for polling clients.
var phasePercent = map[IngestionPhase]int{
	PhaseQueued:     0,
	PhaseExtracting: 10,
	PhaseChunking:   25,
	PhaseEmbedding:  45,
	PhaseWriting:    80,
	PhaseDone:       100,
	PhaseFailed:     100,
}

// Percent returns the coarse progress percentage for the phase.
func (p IngestionPhase) Percent() int {
	return phasePercent[p]
}

// =============================================================================
// Ingestion Job
// =============================================================================

// IngestionJob is the persistent record of one ingestion run for a
// revision. Persisted alongside the revision so progress and failure detail
// survive restarts.
type IngestionJob struct {
	RevisionID string         `json:"revision_id"`
	Source     string         `json:"source"`
	Phase      IngestionPhase `json:"phase"`
	Percent    int            `json:"percent"`
	ChunkCount int            `json:"chunk_count"`
	Error      string         `json:"error,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Running reports whether the job is still queued or executing.
func (j *IngestionJob) Running() bool {
	return !j.Phase.Terminal()
}

// IngestionStatusResponse is the polling and websocket frame shape.
type IngestionStatusResponse struct {
	RevisionID string         `json:"revision_id"`
	Source     string         `json:"source"`
	Phase      IngestionPhase `json:"phase"`
	Percent    int            `json:"percent"`
	ChunkCount int            `json:"chunk_count,omitempty"`
	Error      string         `json:"error,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// StatusFromJob builds the wire frame from a job record.
func StatusFromJob(j *IngestionJob) IngestionStatusResponse {
	return IngestionStatusResponse{
		RevisionID: j.RevisionID,
		Source:     j.Source,
		Phase:      j.Phase,
		Percent:    j.Percent,
		ChunkCount: j.ChunkCount,
		Error:      j.Error,
		EnqueuedAt: j.EnqueuedAt,
		FinishedAt: j.FinishedAt,
	}
}

// =============================================================================
// Chunk Records
// =============================================================================

// ChunkRecord is one chunk of revision content with the metadata written to
// the vector index. EffectiveTo keeps the empty-string sentinel for
// open-ended ranges so the field stays filterable without null handling.
type ChunkRecord struct {
	Source        string `json:"source"`
	RevisionID    string `json:"revision_id"`
	EffectiveFrom string `json:"effective_from"`
	EffectiveTo   string `json:"effective_to"`
	SectionRef    string `json:"section_ref"`
	Heading       string `json:"heading"`
	ChunkIndex    int    `json:"chunk_index"`
	Content       string `json:"content"`
	IngestedAt    int64  `json:"ingested_at"` // Unix ms
}
