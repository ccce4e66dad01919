// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

// VectorWriter is the slice of the vector index the pipeline writes
// through. *weaviate.ChunkStore is the production implementation.
type VectorWriter interface {
	// WriteBatch writes chunk objects with their vectors and reports how
	// many the index accepted. Any rejection is an error.
	WriteBatch(ctx context.Context, records []datatypes.ChunkRecord, vectors [][]float32) (int, error)

	// PurgeRevision deletes every chunk object of a revision and reports
	// how many were removed.
	PurgeRevision(ctx context.Context, revisionID string) (int, error)
}

// Writer feeds chunk batches to the vector index in fixed-size slabs so a
// long document never lands in a single oversized request.
type Writer struct {
	index     VectorWriter
	batchSize int
	logger    *slog.Logger
}

// NewWriter wraps the vector index with slab batching.
func NewWriter(index VectorWriter, batchSize int, logger *slog.Logger) (*Writer, error) {
	if index == nil {
		return nil, fmt.Errorf("vector writer is required")
	}
	if batchSize <= 0 {
		batchSize = 128
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		index:     index,
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "chunk_writer")),
	}, nil
}

// WriteChunks writes all chunks for a revision, slab by slab. onProgress,
// when non-nil, is called after each slab with the number of chunks done.
//
// A failed slab aborts the write; the caller purges whatever landed. Chunk
// object IDs are deterministic, so a later retry overwrites cleanly.
func (w *Writer) WriteChunks(ctx context.Context, records []datatypes.ChunkRecord, vectors [][]float32, onProgress func(done, total int)) (int, error) {
	if len(records) != len(vectors) {
		return 0, fmt.Errorf("%w: %d chunks with %d vectors",
			datatypes.ErrIndexWriteFailed, len(records), len(vectors))
	}

	written := 0
	for start := 0; start < len(records); start += w.batchSize {
		end := min(start+w.batchSize, len(records))
		n, err := w.index.WriteBatch(ctx, records[start:end], vectors[start:end])
		written += n
		if err != nil {
			return written, err
		}
		if onProgress != nil {
			onProgress(end, len(records))
		}
	}
	return written, nil
}

// Purge removes every indexed chunk of a revision. Used on ingestion
// failure and before a reindex.
func (w *Writer) Purge(ctx context.Context, revisionID string) (int, error) {
	purged, err := w.index.PurgeRevision(ctx, revisionID)
	if err != nil {
		return purged, err
	}
	if purged > 0 {
		w.logger.Info("purged indexed chunks",
			slog.String("revision_id", revisionID),
			slog.Int("count", purged))
	}
	return purged, nil
}
