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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/Waymark/pkg/validation"
	"github.com/AleutianAI/Waymark/services/registry/catalog"
	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

// dropSettleDelay gives the writing process a moment to finish the file
// before we read it.
const dropSettleDelay = 250 * time.Millisecond

// Registrar registers revisions from dropped files. *catalog.Catalog is
// the production implementation.
type Registrar interface {
	AddRevision(ctx context.Context, source string, req datatypes.AddRevisionRequest) (catalog.AddResult, error)
}

// Enqueuer accepts ingestion jobs. *Coordinator is the production
// implementation.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// DropWatcher watches a drop directory for policy document files.
//
// # Description
//
// A file named {SOURCE}@{YYYY-MM-DD}.md landing in the directory is
// registered as an open-ended revision of that source and queued for
// ingestion. Malformed names are logged and skipped. The watcher is
// optional; mains only construct one when a drop path is configured.
type DropWatcher struct {
	dir      string
	registry Registrar
	jobs     Enqueuer
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
}

// NewDropWatcher creates a watcher over dir. Call Start to begin.
func NewDropWatcher(dir string, registry Registrar, jobs Enqueuer, logger *slog.Logger) (*DropWatcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("drop directory path is required")
	}
	if registry == nil || jobs == nil {
		return nil, fmt.Errorf("drop watcher needs a registrar and an enqueuer")
	}
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &DropWatcher{
		dir:      dir,
		registry: registry,
		jobs:     jobs,
		watcher:  watcher,
		logger:   logger.With(slog.String("component", "drop_watcher")),
	}, nil
}

// Start watches the drop directory until the context is cancelled.
// Blocks; run in a goroutine.
func (w *DropWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching drop directory", slog.String("dir", w.dir))

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("drop watcher error", slog.Any("error", err))

		case <-ctx.Done():
			w.logger.Debug("drop watcher stopping")
			return nil
		}
	}
}

// Stop stops the watcher. Safe to call multiple times.
func (w *DropWatcher) Stop() error {
	return w.watcher.Close()
}

func (w *DropWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, ".md") {
		return
	}

	source, date, err := ParseDropName(name)
	if err != nil {
		w.logger.Warn("malformed drop file name, skipping",
			slog.String("file", name),
			slog.Any("error", err))
		return
	}

	time.Sleep(dropSettleDelay)
	content, err := os.ReadFile(event.Name)
	if err != nil {
		w.logger.Warn("could not read dropped file",
			slog.String("file", name),
			slog.Any("error", err))
		return
	}
	if len(content) == 0 {
		w.logger.Warn("dropped file is empty, skipping", slog.String("file", name))
		return
	}

	result, err := w.registry.AddRevision(ctx, source, datatypes.AddRevisionRequest{
		EffectiveFrom: date,
		Content:       string(content),
		Notes:         "registered from drop directory",
	})
	if err != nil {
		// A second fsnotify event for the same file lands here as
		// ErrRevisionExists, which is the dedupe working.
		level := slog.LevelWarn
		if errors.Is(err, datatypes.ErrRevisionExists) {
			level = slog.LevelDebug
		}
		w.logger.Log(ctx, level, "drop registration skipped",
			slog.String("source", source),
			slog.String("effective_from", date),
			slog.Any("error", err))
		return
	}

	if err := w.jobs.Enqueue(ctx, Job{
		Source:     source,
		RevisionID: result.Revision.RevisionID,
		Content:    content,
	}); err != nil {
		w.logger.Error("could not queue ingestion for dropped file",
			slog.String("source", source),
			slog.String("revision_id", result.Revision.RevisionID),
			slog.Any("error", err))
		return
	}

	w.logger.Info("drop file registered",
		slog.String("source", source),
		slog.String("revision_id", result.Revision.RevisionID),
		slog.String("effective_from", date))
}

// ParseDropName splits a drop file name of the form
// {SOURCE}@{YYYY-MM-DD}.md into its source and date.
func ParseDropName(name string) (source, date string, err error) {
	stem, ok := strings.CutSuffix(name, ".md")
	if !ok {
		return "", "", fmt.Errorf("not a .md file: %s", name)
	}
	source, date, ok = strings.Cut(stem, "@")
	if !ok {
		return "", "", fmt.Errorf("missing @ separator: %s", name)
	}
	if err := validation.ValidateSource(source); err != nil {
		return "", "", fmt.Errorf("bad source %q: %w", source, err)
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", "", fmt.Errorf("bad date %q: expected YYYY-MM-DD", date)
	}
	return source, date, nil
}
