// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package blob provides content-addressed storage for raw revision content.
//
// Every revision keeps its source text on disk under a checksum-derived
// reference, so reindex runs re-read the original bytes instead of
// requiring a re-upload. References are opaque to callers; only this
// package interprets them.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

// ErrNotFound is returned when a reference has no stored content.
var ErrNotFound = errors.New("blob not found")

// ErrInvalidRef is returned for references that do not match the
// content-address shape. Guards against path traversal through a
// tampered file_reference.
var ErrInvalidRef = errors.New("invalid blob reference")

// refPattern matches a sha256 hex digest.
var refPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Store is a content-addressed blob store rooted at a directory.
//
// Layout: {root}/{first two hex chars}/{digest}. Writes are atomic
// (temp file + rename), so a crash mid-write never leaves a partial
// blob under a valid reference.
//
// Thread Safety: Safe for concurrent use. Writes to the same content
// are idempotent; the rename either lands identical bytes or loses to
// an identical winner.
type Store struct {
	root string
}

// NewStore creates a blob store rooted at dir, creating it if missing.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("blob store dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create blob store dir: %w", err)
	}
	return &Store{root: dir}, nil
}

// Put stores content and returns its reference. Storing the same content
// twice returns the same reference and rewrites nothing.
func (s *Store) Put(ctx context.Context, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref := datatypes.Checksum(content)
	path, err := s.pathFor(ref)
	if err != nil {
		return "", err
	}

	// Already stored; content-addressing makes this a no-op.
	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", fmt.Errorf("create blob shard dir: %w", err)
	}

	// Write atomically: temp file + rename
	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("rename blob: %w", err)
	}

	success = true
	return ref, nil
}

// Get returns the content for a reference.
func (s *Store) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.pathFor(ref)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("read blob %s: %w", ref, err)
	}
	return data, nil
}

// Exists reports whether a reference has stored content.
func (s *Store) Exists(ref string) bool {
	path, err := s.pathFor(ref)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Delete removes the content for a reference. Deleting a missing
// reference is not an error; deletion is invoked after the owning
// revision record is already gone.
func (s *Store) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.pathFor(ref)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob %s: %w", ref, err)
	}
	return nil
}

// pathFor maps a reference to its shard path, rejecting anything that is
// not a bare hex digest.
func (s *Store) pathFor(ref string) (string, error) {
	if !refPattern.MatchString(ref) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return filepath.Join(s.root, ref[:2], ref), nil
}
