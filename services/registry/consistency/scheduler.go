// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package consistency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSweepInFlight indicates a manual run was refused because a sweep is
// already executing.
var ErrSweepInFlight = errors.New("consistency sweep already running")

// defaultInterval is the sweep cadence when none is configured.
const defaultInterval = 15 * time.Minute

// Scheduler runs the checker on a cadence and keeps the last report.
//
// # Description
//
// Ticker + done channel loop. One sweep runs at a time: ticks that land
// while a sweep is in flight are skipped, and RunNow reports
// ErrSweepInFlight instead of queueing. The last completed report is
// retained for the report endpoint regardless of how the run was
// triggered.
//
// Thread Safety: Safe for concurrent use.
type Scheduler struct {
	checker  *Checker
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}

	inFlight atomic.Bool

	lastMu sync.RWMutex
	last   *Report
}

// NewScheduler creates a scheduler over a checker. interval <= 0 uses
// the default cadence.
func NewScheduler(checker *Checker, interval time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if checker == nil {
		return nil, errors.New("checker must not be nil")
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		checker:  checker,
		interval: interval,
		logger:   logger.With(slog.String("component", "consistency_scheduler")),
		done:     make(chan struct{}),
	}, nil
}

// Start begins periodic sweeps, including one immediately. Returns an
// error if the scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("consistency scheduler already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("consistency scheduler starting",
		slog.Duration("interval", s.interval))

	go s.runLoop(ctx)
	return nil
}

// Stop halts scheduled sweeps. An in-flight sweep finishes. Safe to call
// multiple times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.done)
	s.running = false
	s.logger.Info("consistency scheduler stopped")
}

// RunNow executes a sweep immediately.
//
// # Outputs
//
//	Report - The completed sweep.
//	error - ErrSweepInFlight when a sweep is already executing, or the
//	checker's error.
func (s *Scheduler) RunNow(ctx context.Context) (Report, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return Report{}, ErrSweepInFlight
	}
	defer s.inFlight.Store(false)

	report, err := s.checker.Run(ctx)
	if err != nil {
		return Report{}, err
	}
	s.setLast(report)
	return report, nil
}

// LastReport returns the most recent completed report, false when no
// sweep has completed yet.
func (s *Scheduler) LastReport() (Report, bool) {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	if s.last == nil {
		return Report{}, false
	}
	return *s.last, true
}

func (s *Scheduler) setLast(report Report) {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	s.last = &report
}

func (s *Scheduler) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("consistency scheduler context cancelled")
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one scheduled pass, skipping if one is already in flight.
func (s *Scheduler) sweep(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("skipping scheduled sweep, one already running")
		return
	}
	defer s.inFlight.Store(false)

	report, err := s.checker.Run(ctx)
	if err != nil {
		s.logger.Error("consistency sweep failed", slog.Any("error", err))
		return
	}
	s.setLast(report)

	if report.Healthy {
		s.logger.Debug("consistency sweep clean",
			slog.Int("revisions", report.RevisionsChecked))
		return
	}
	s.logger.Warn("consistency sweep found drift",
		slog.Int("findings", len(report.Findings)),
		slog.Int("revisions", report.RevisionsChecked))
}
