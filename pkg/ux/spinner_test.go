// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"errors"
	"strings"
	"testing"
)

// =============================================================================
// NewSpinner Tests
// =============================================================================

func TestNewSpinner_ReturnsNonNil(t *testing.T) {
	spin := NewSpinner("Resolving...")
	if spin == nil {
		t.Fatal("NewSpinner returned nil")
	}
}

func TestNewSpinner_SetsMessage(t *testing.T) {
	spin := NewSpinner("Ingesting document")
	if spin.message != "Ingesting document" {
		t.Errorf("expected message 'Ingesting document', got %q", spin.message)
	}
}

func TestNewSpinner_DefaultsToDotsType(t *testing.T) {
	spin := NewSpinner("Resolving...")
	if spin.spinType != SpinnerDots {
		t.Errorf("expected SpinnerDots, got %v", spin.spinType)
	}
}

func TestNewSpinner_InitializesChannels(t *testing.T) {
	spin := NewSpinner("Resolving...")
	if spin.stop == nil {
		t.Error("stop channel should be initialized")
	}
	if spin.done == nil {
		t.Error("done channel should be initialized")
	}
}

// =============================================================================
// WithType Tests
// =============================================================================

func TestSpinner_WithType_Trail(t *testing.T) {
	spin := NewSpinner("Resolving...").WithType(SpinnerTrail)
	if spin.spinType != SpinnerTrail {
		t.Errorf("expected SpinnerTrail, got %v", spin.spinType)
	}
}

func TestSpinner_WithType_Marker(t *testing.T) {
	spin := NewSpinner("Resolving...").WithType(SpinnerMarker)
	if spin.spinType != SpinnerMarker {
		t.Errorf("expected SpinnerMarker, got %v", spin.spinType)
	}
}

func TestSpinner_WithType_Clock(t *testing.T) {
	spin := NewSpinner("Resolving...").WithType(SpinnerClock)
	if spin.spinType != SpinnerClock {
		t.Errorf("expected SpinnerClock, got %v", spin.spinType)
	}
}

func TestSpinner_WithType_Chaining(t *testing.T) {
	spin := NewSpinner("Resolving...").WithType(SpinnerTrail)
	if spin == nil {
		t.Error("WithType should return the spinner for chaining")
	}
}

// =============================================================================
// Start/Stop Tests (Machine Mode)
// =============================================================================

func TestSpinner_Start_MachineMode(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)

	SetMode(ModeMachine)

	spin := NewSpinner("Reindexing...")
	output := captureStdout(func() {
		spin.Start()
	})

	if output != "PROGRESS: Reindexing...\n" {
		t.Errorf("expected 'PROGRESS: Reindexing...', got %q", output)
	}
}

func TestSpinner_Stop_MachineMode(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)

	SetMode(ModeMachine)

	spin := NewSpinner("Reindexing...")
	spin.Start()
	spin.Stop() // Should not panic or hang
}

func TestSpinner_Start_AlreadyRunning(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)

	SetMode(ModeMachine)

	spin := NewSpinner("Reindexing...")
	output := captureStdout(func() {
		spin.Start()
		spin.Start() // Second call should be a no-op
	})

	if strings.Count(output, "PROGRESS:") != 1 {
		t.Errorf("Start called twice should print once, got %q", output)
	}
}

func TestSpinner_Stop_NotRunning(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)

	SetMode(ModeMachine)

	spin := NewSpinner("Reindexing...")
	spin.Stop() // Should not panic
}

// =============================================================================
// UpdateMessage Tests
// =============================================================================

func TestSpinner_UpdateMessage(t *testing.T) {
	spin := NewSpinner("Chunking document")
	spin.UpdateMessage("Embedding chunks")
	if spin.message != "Embedding chunks" {
		t.Errorf("expected updated message, got %q", spin.message)
	}
}

// =============================================================================
// StopWith Tests (Machine Mode)
// =============================================================================

func TestSpinner_StopWithSuccess(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)

	SetMode(ModeMachine)

	spin := NewSpinner("Ingesting...")
	spin.Start()
	output := captureStdout(func() {
		spin.StopWithSuccess("ingestion complete")
	})

	if output != "OK: ingestion complete\n" {
		t.Errorf("expected 'OK: ingestion complete', got %q", output)
	}
}

func TestSpinner_StopWithError(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)

	SetMode(ModeMachine)

	spin := NewSpinner("Ingesting...")
	spin.Start()
	output := captureStderr(func() {
		spin.StopWithError("embedding backend unreachable")
	})

	if output != "ERROR: embedding backend unreachable\n" {
		t.Errorf("expected error output, got %q", output)
	}
}

func TestSpinner_StopWithWarning(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)

	SetMode(ModeMachine)

	spin := NewSpinner("Checking...")
	spin.Start()
	output := captureStderr(func() {
		spin.StopWithWarning("drift detected in vector store")
	})

	if output != "WARN: drift detected in vector store\n" {
		t.Errorf("expected warning output, got %q", output)
	}
}

// =============================================================================
// WithSpinner Tests
// =============================================================================

func TestWithSpinner_Success(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)

	SetMode(ModeMachine)

	called := false
	err := WithSpinner("running check", func() error {
		called = true
		return nil
	})

	if err != nil {
		t.Errorf("WithSpinner returned error: %v", err)
	}
	if !called {
		t.Error("WithSpinner should call the function")
	}
}

func TestWithSpinner_Error(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)

	SetMode(ModeMachine)

	wantErr := errors.New("store unavailable")
	err := WithSpinner("running check", func() error {
		return wantErr
	})

	if !errors.Is(err, wantErr) {
		t.Errorf("WithSpinner should propagate the error, got %v", err)
	}
}

// =============================================================================
// ProgressSpinner Tests
// =============================================================================

func TestNewProgressSpinner(t *testing.T) {
	spin := NewProgressSpinner("Embedding chunks", 42)
	if spin == nil {
		t.Fatal("NewProgressSpinner returned nil")
	}
	if spin.total != 42 {
		t.Errorf("expected total 42, got %d", spin.total)
	}
	if spin.current != 0 {
		t.Errorf("expected current 0, got %d", spin.current)
	}
}

func TestProgressSpinner_Increment(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)

	SetMode(ModeFull)

	spin := NewProgressSpinner("Embedding chunks", 10)
	spin.Increment()
	spin.Increment()

	if spin.current != 2 {
		t.Errorf("expected current 2 after two increments, got %d", spin.current)
	}
	if !strings.Contains(spin.message, "[2/10]") {
		t.Errorf("message should show progress, got %q", spin.message)
	}
}

func TestProgressSpinner_SetProgress(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)

	SetMode(ModeFull)

	spin := NewProgressSpinner("Embedding chunks", 10)
	spin.SetProgress(7)

	if spin.current != 7 {
		t.Errorf("expected current 7, got %d", spin.current)
	}
	if !strings.Contains(spin.message, "[7/10]") {
		t.Errorf("message should show progress, got %q", spin.message)
	}
}
