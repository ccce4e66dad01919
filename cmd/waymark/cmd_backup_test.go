// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyBackupLocal(t *testing.T) {
	srcDir := t.TempDir()
	archive := filepath.Join(srcDir, "waymark-20250101T000000Z.bak")
	require.NoError(t, os.WriteFile(archive, []byte("badger backup payload"), 0644))

	destDir := filepath.Join(t.TempDir(), "nested", "backups")
	copied, err := copyBackupLocal(archive, destDir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(destDir, "waymark-20250101T000000Z.bak"), copied)
	body, err := os.ReadFile(copied)
	require.NoError(t, err)
	assert.Equal(t, "badger backup payload", string(body))
}

func TestCopyBackupLocal_MissingArchive(t *testing.T) {
	_, err := copyBackupLocal(filepath.Join(t.TempDir(), "gone.bak"), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another host",
		"the message must explain the shared filesystem assumption")
}

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{3 * 1024 * 1024 * 1024, "3.0 GiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, humanBytes(tt.in))
	}
}
