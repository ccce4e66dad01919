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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

// fakeIndex is an in-memory VectorWriter recording writes and purges.
type fakeIndex struct {
	mu         sync.Mutex
	chunks     map[string][]datatypes.ChunkRecord
	batchSizes []int
	purges     []string
	writeErr   error
	failOn     int // 1-based batch number that fails; 0 with writeErr fails every batch
	purgeErr   error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{chunks: make(map[string][]datatypes.ChunkRecord)}
}

func (f *fakeIndex) WriteBatch(ctx context.Context, records []datatypes.ChunkRecord, vectors [][]float32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchSizes = append(f.batchSizes, len(records))

	call := len(f.batchSizes)
	if f.writeErr != nil && (f.failOn == 0 || call == f.failOn) {
		return 0, f.writeErr
	}
	for _, rec := range records {
		f.chunks[rec.RevisionID] = append(f.chunks[rec.RevisionID], rec)
	}
	return len(records), nil
}

func (f *fakeIndex) PurgeRevision(ctx context.Context, revisionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purges = append(f.purges, revisionID)
	if f.purgeErr != nil {
		return 0, f.purgeErr
	}
	n := len(f.chunks[revisionID])
	delete(f.chunks, revisionID)
	return n, nil
}

func (f *fakeIndex) chunkCount(revisionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks[revisionID])
}

func (f *fakeIndex) purgeCount(revisionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.purges {
		if id == revisionID {
			n++
		}
	}
	return n
}

func makeChunks(revisionID string, n int) ([]datatypes.ChunkRecord, [][]float32) {
	records := make([]datatypes.ChunkRecord, n)
	vectors := make([][]float32, n)
	for i := range records {
		records[i] = datatypes.ChunkRecord{
			Source:     "NPPF",
			RevisionID: revisionID,
			ChunkIndex: i,
			Content:    fmt.Sprintf("chunk %d", i),
		}
		vectors[i] = []float32{float32(i), 1}
	}
	return records, vectors
}

func TestWriter_SlabBatching(t *testing.T) {
	index := newFakeIndex()
	writer, err := NewWriter(index, 2, discardLogger())
	require.NoError(t, err)

	records, vectors := makeChunks("rev-1", 5)
	var progress []int
	written, err := writer.WriteChunks(context.Background(), records, vectors, func(done, total int) {
		assert.Equal(t, 5, total)
		progress = append(progress, done)
	})
	require.NoError(t, err)

	assert.Equal(t, 5, written)
	assert.Equal(t, []int{2, 2, 1}, index.batchSizes)
	assert.Equal(t, []int{2, 4, 5}, progress)
	assert.Equal(t, 5, index.chunkCount("rev-1"))
}

func TestWriter_VectorCountMismatch(t *testing.T) {
	writer, err := NewWriter(newFakeIndex(), 2, discardLogger())
	require.NoError(t, err)

	records, vectors := makeChunks("rev-1", 3)
	_, err = writer.WriteChunks(context.Background(), records, vectors[:2], nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, datatypes.ErrIndexWriteFailed)
}

func TestWriter_AbortsOnSlabError(t *testing.T) {
	index := newFakeIndex()
	index.writeErr = fmt.Errorf("index rejected batch")
	index.failOn = 2

	writer, err := NewWriter(index, 2, discardLogger())
	require.NoError(t, err)

	records, vectors := makeChunks("rev-1", 6)
	written, err := writer.WriteChunks(context.Background(), records, vectors, nil)
	require.Error(t, err)

	assert.Equal(t, 2, written, "only the first slab landed")
	assert.Len(t, index.batchSizes, 2, "no slabs attempted after the failure")
}

func TestWriter_Purge(t *testing.T) {
	index := newFakeIndex()
	writer, err := NewWriter(index, 4, discardLogger())
	require.NoError(t, err)

	records, vectors := makeChunks("rev-1", 3)
	_, err = writer.WriteChunks(context.Background(), records, vectors, nil)
	require.NoError(t, err)

	purged, err := writer.Purge(context.Background(), "rev-1")
	require.NoError(t, err)
	assert.Equal(t, 3, purged)
	assert.Zero(t, index.chunkCount("rev-1"))
}

func TestNewWriter_RequiresIndex(t *testing.T) {
	_, err := NewWriter(nil, 0, nil)
	assert.Error(t, err)
}
