// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

// Helper to capture stdout
func captureStdout(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// Helper to capture stderr
func captureStderr(f func()) string {
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	f()

	w.Close()
	os.Stderr = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// =============================================================================
// Mode Tests
// =============================================================================

func TestParseMode(t *testing.T) {
	tests := []struct {
		input string
		want  Mode
	}{
		{"full", ModeFull},
		{"f", ModeFull},
		{"FULL", ModeFull},
		{"standard", ModeStandard},
		{"std", ModeStandard},
		{"s", ModeStandard},
		{"minimal", ModeMinimal},
		{"min", ModeMinimal},
		{"m", ModeMinimal},
		{"machine", ModeMachine},
		{"quiet", ModeMachine},
		{"q", ModeMachine},
		{"unknown", ModeStandard},
		{"", ModeStandard},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseMode(tt.input)
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSetMode_GetMode(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)

	SetMode(ModeMinimal)
	if GetMode() != ModeMinimal {
		t.Errorf("GetMode() = %v after SetMode(ModeMinimal)", GetMode())
	}

	SetMode(ModeMachine)
	if GetMode() != ModeMachine {
		t.Errorf("GetMode() = %v after SetMode(ModeMachine)", GetMode())
	}
}

func TestShouldShowProgress_MachineMode(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)

	SetMode(ModeMachine)
	if ShouldShowProgress() {
		t.Error("ShouldShowProgress() should be false in machine mode")
	}

	SetMode(ModeFull)
	if !ShouldShowProgress() {
		t.Error("ShouldShowProgress() should be true in full mode")
	}
}

// =============================================================================
// Print Helper Tests (Machine Mode)
// =============================================================================

func TestSuccess_MachineMode(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)
	SetMode(ModeMachine)

	output := captureStdout(func() {
		Success("revision added")
	})

	if output != "OK: revision added\n" {
		t.Errorf("Success machine output = %q, want 'OK: revision added'", output)
	}
}

func TestWarning_MachineMode(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)
	SetMode(ModeMachine)

	output := captureStderr(func() {
		Warning("index drift detected")
	})

	if output != "WARN: index drift detected\n" {
		t.Errorf("Warning machine output = %q", output)
	}
}

func TestError_MachineMode(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)
	SetMode(ModeMachine)

	output := captureStderr(func() {
		Error("document not found")
	})

	if output != "ERROR: document not found\n" {
		t.Errorf("Error machine output = %q", output)
	}
}

func TestInfo_MachineMode(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)
	SetMode(ModeMachine)

	output := captureStdout(func() {
		Info("3 revisions in force")
	})

	if output != "3 revisions in force\n" {
		t.Errorf("Info machine output = %q", output)
	}
}

func TestTitle_MachineMode_Suppressed(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)
	SetMode(ModeMachine)

	output := captureStdout(func() {
		Title("Registered Documents")
	})

	if output != "" {
		t.Errorf("Title should print nothing in machine mode, got %q", output)
	}
}

func TestMuted_MachineMode_Suppressed(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)
	SetMode(ModeMachine)

	output := captureStdout(func() {
		Muted("last checked 5m ago")
	})

	if output != "" {
		t.Errorf("Muted should print nothing in machine mode, got %q", output)
	}
}

func TestBox_MachineMode(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)
	SetMode(ModeMachine)

	output := captureStdout(func() {
		Box("NPPF", "3 revisions, 1 in force")
	})

	if output != "NPPF: 3 revisions, 1 in force\n" {
		t.Errorf("Box machine output = %q", output)
	}
}

func TestStatusLine_MachineMode(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)
	SetMode(ModeMachine)

	output := captureStdout(func() {
		StatusLine("LTN_1_20", IconSuccess, "active")
	})

	if output != "✓\tLTN_1_20\tactive\n" {
		t.Errorf("StatusLine machine output = %q", output)
	}
}

func TestSummary_MachineMode(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)
	SetMode(ModeMachine)

	output := captureStdout(func() {
		Summary(5, 1, 2, 8)
	})

	want := "SUMMARY: active=5 processing=1 failed=2 total=8\n"
	if output != want {
		t.Errorf("Summary machine output = %q, want %q", output, want)
	}
}

// =============================================================================
// Print Helper Tests (Full Mode)
// =============================================================================

func TestSuccess_FullMode_ContainsMessage(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)
	SetMode(ModeFull)

	output := captureStdout(func() {
		Success("revision added")
	})

	if !strings.Contains(output, "revision added") {
		t.Errorf("Success output should contain the message, got %q", output)
	}
}

func TestStatusLine_FullMode_WithDetail(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)
	SetMode(ModeFull)

	output := captureStdout(func() {
		StatusLine("NPPF", IconSuccess, "2 revisions")
	})

	if !strings.Contains(output, "NPPF") {
		t.Errorf("StatusLine output should contain the name, got %q", output)
	}
	if !strings.Contains(output, "2 revisions") {
		t.Errorf("StatusLine output should contain the detail, got %q", output)
	}
}

// =============================================================================
// ProgressBar Tests
// =============================================================================

func TestProgressBar_MachineMode(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)
	SetMode(ModeMachine)

	got := ProgressBar(3, 10, 20)
	if got != "3/10" {
		t.Errorf("ProgressBar machine output = %q, want '3/10'", got)
	}
}

func TestProgressBar_FullMode_ShowsPercentage(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)
	SetMode(ModeFull)

	got := ProgressBar(5, 10, 20)
	if !strings.Contains(got, "50%") {
		t.Errorf("ProgressBar should show 50%%, got %q", got)
	}
}

func TestProgressBar_Complete(t *testing.T) {
	orig := GetMode()
	defer SetMode(orig)
	SetMode(ModeFull)

	got := ProgressBar(10, 10, 20)
	if !strings.Contains(got, "100%") {
		t.Errorf("ProgressBar should show 100%%, got %q", got)
	}
}

// =============================================================================
// repeatChar Tests
// =============================================================================

func TestRepeatChar(t *testing.T) {
	tests := []struct {
		name string
		c    rune
		n    int
		want string
	}{
		{"zero count", '█', 0, ""},
		{"negative count", '█', -5, ""},
		{"single", '░', 1, "░"},
		{"multiple", '-', 4, "----"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := repeatChar(tt.c, tt.n)
			if got != tt.want {
				t.Errorf("repeatChar(%q, %d) = %q, want %q", tt.c, tt.n, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Icon Tests
// =============================================================================

func TestIcon_Render_NonEmpty(t *testing.T) {
	icons := []Icon{IconSuccess, IconWarning, IconError, IconPending, IconArrow, IconMarker, IconSignpost}
	for _, icon := range icons {
		if icon.Render() == "" {
			t.Errorf("Icon %q rendered empty", string(icon))
		}
	}
}

func TestIcon_Render_PlainForUnstyled(t *testing.T) {
	// Icons without semantic styling render as-is
	if IconArrow.Render() != string(IconArrow) {
		t.Errorf("IconArrow.Render() = %q, want %q", IconArrow.Render(), string(IconArrow))
	}
}
