// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up in
// Badger keys, Weaviate filters, or Flux queries. Using these validators
// prevents injection attacks and malformed registry identities.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// sourcePattern matches canonical policy document slugs.
// Segments of uppercase letters and digits joined by single underscores.
// Examples: NPPF, LTN_1_20, GEAR_CHANGE, MANUAL_FOR_STREETS
// Max length: 64 characters.
var sourcePattern = regexp.MustCompile(`^[A-Z0-9]+(_[A-Z0-9]+)*$`)

// MaxSourceLength bounds slug length so keys stay readable in scans.
const MaxSourceLength = 64

// ValidateSource validates a policy document slug.
//
// Valid slugs:
//   - 1-64 characters
//   - Uppercase letters A-Z and digits 0-9
//   - Segments joined by single underscores (no leading, trailing,
//     or doubled underscores)
//
// Returns an error if the slug is invalid.
//
// Example:
//
//	if err := validation.ValidateSource(source); err != nil {
//	    return nil, fmt.Errorf("invalid source: %w", err)
//	}
//	// Safe to use in store keys and index filters
func ValidateSource(source string) error {
	if source == "" {
		return fmt.Errorf("source cannot be empty")
	}

	if len(source) > MaxSourceLength {
		return fmt.Errorf("source too long: %d characters (max %d)", len(source), MaxSourceLength)
	}

	if !sourcePattern.MatchString(source) {
		return fmt.Errorf("invalid source format: %q (must be uppercase alphanumeric segments joined by underscores, e.g. LTN_1_20)", source)
	}

	return nil
}

// ValidateSources validates multiple slugs.
// Returns an error listing all invalid slugs if any fail validation.
func ValidateSources(sources []string) error {
	var invalid []string
	for _, s := range sources {
		if err := ValidateSource(s); err != nil {
			invalid = append(invalid, s)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid sources: %v", invalid)
	}
	return nil
}

// SanitizeSource normalizes and validates a slug.
// Returns the uppercase slug if valid, or an error if invalid.
//
// Use this at API boundaries where operators may type lowercase:
//
//	source, err := validation.SanitizeSource(userInput)
//	if err != nil {
//	    return err
//	}
//	// source is uppercase and validated
func SanitizeSource(source string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(source))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "/", "_")
	if err := ValidateSource(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
