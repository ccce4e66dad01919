// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"
)

// Mode defines the verbosity and richness of CLI output
type Mode string

const (
	// ModeFull enables all visual flourishes and rich formatting
	ModeFull Mode = "full"

	// ModeStandard enables colors, icons, and boxes but minimal theming
	ModeStandard Mode = "standard"

	// ModeMinimal uses icons and basic formatting only
	ModeMinimal Mode = "minimal"

	// ModeMachine outputs plain text suitable for scripting and parsing
	ModeMachine Mode = "machine"
)

var (
	currentMode = ModeFull
	modeMu      sync.RWMutex
)

// GetMode returns the current output mode
func GetMode() Mode {
	modeMu.RLock()
	defer modeMu.RUnlock()
	return currentMode
}

// SetMode updates the current output mode
func SetMode(m Mode) {
	modeMu.Lock()
	defer modeMu.Unlock()
	currentMode = m
}

// ParseMode converts a string to Mode
func ParseMode(s string) Mode {
	switch strings.ToLower(s) {
	case "full", "f":
		return ModeFull
	case "standard", "std", "s":
		return ModeStandard
	case "minimal", "min", "m":
		return ModeMinimal
	case "machine", "quiet", "q":
		return ModeMachine
	default:
		return ModeStandard
	}
}

// InitMode initializes the output mode from environment and defaults
func InitMode() {
	// Check environment variable first
	if envMode := os.Getenv("WAYMARK_OUTPUT"); envMode != "" {
		SetMode(ParseMode(envMode))
		return
	}

	// Check if we're in a non-interactive context
	if !isTerminal() {
		SetMode(ModeMachine)
		return
	}

	SetMode(ModeFull)
}

// isTerminal checks if stdout is a terminal
func isTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// IsInteractive returns true if we should show interactive prompts
func IsInteractive() bool {
	return GetMode() != ModeMachine && isTerminal()
}

// ShouldShowProgress returns true if we should show progress indicators
func ShouldShowProgress() bool {
	return GetMode() != ModeMachine
}

// ShouldShowColors returns true if we should use colors
func ShouldShowColors() bool {
	return GetMode() != ModeMachine
}
