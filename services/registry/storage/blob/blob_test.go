// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package blob

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	return s
}

func TestStore_PutGetRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	content := []byte("# LTN 1/20\n\nCycle lanes should be 2.0m wide.")
	ref, err := s.Put(ctx, content)
	require.NoError(t, err)
	assert.Len(t, ref, 64)

	got, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestStore_PutIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	content := []byte("same content")
	ref1, err := s.Put(ctx, content)
	require.NoError(t, err)
	ref2, err := s.Put(ctx, content)
	require.NoError(t, err)
	assert.Equal(t, ref1, ref2)
}

func TestStore_DistinctContentDistinctRefs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ref1, err := s.Put(ctx, []byte("revision one"))
	require.NoError(t, err)
	ref2, err := s.Put(ctx, []byte("revision two"))
	require.NoError(t, err)
	assert.NotEqual(t, ref1, ref2)
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)

	missing := "0000000000000000000000000000000000000000000000000000000000000000"
	_, err := s.Get(context.Background(), missing)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_RejectsMalformedRefs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, ref := range []string{
		"",
		"short",
		"../../../etc/passwd",
		"ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789", // uppercase
	} {
		t.Run(ref, func(t *testing.T) {
			_, err := s.Get(ctx, ref)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRef))
		})
	}
}

func TestStore_Exists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ref, err := s.Put(ctx, []byte("present"))
	require.NoError(t, err)
	assert.True(t, s.Exists(ref))
	assert.False(t, s.Exists("1111111111111111111111111111111111111111111111111111111111111111"))
	assert.False(t, s.Exists("not-a-ref"))
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ref, err := s.Put(ctx, []byte("to be removed"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, ref))
	assert.False(t, s.Exists(ref))

	// Deleting again is not an error
	require.NoError(t, s.Delete(ctx, ref))
}

func TestStore_ShardedLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	ref, err := s.Put(context.Background(), []byte("sharded"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, ref[:2], ref))
	require.NoError(t, err)
}

func TestStore_CancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, []byte("never stored"))
	assert.Error(t, err)

	_, err = s.Get(ctx, "2222222222222222222222222222222222222222222222222222222222222222")
	assert.Error(t, err)
}

func TestNewStore_RequiresDir(t *testing.T) {
	_, err := NewStore("")
	assert.Error(t, err)
}
