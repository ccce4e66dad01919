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
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/Waymark/pkg/ux"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	healthJSONOutput bool // Output as JSON
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// healthCmd reports the registry's own health endpoint.
//
// # Description
//
// Shows whether the registry store is up, what state the vector index
// connection is in, and how many documents and revisions the temporal
// index currently holds. A degraded vector index is reported but does
// not fail the command, since the registry keeps answering document
// and resolve queries without it.
//
// # Examples
//
//	waymark health           # Styled health report
//	waymark health --json    # Raw JSON for scripting
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of the registry and its vector index",
	Run:   runHealth,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	healthCmd.Flags().BoolVar(&healthJSONOutput, "json", false,
		"Output as JSON for scripting")
	rootCmd.AddCommand(healthCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// healthReport mirrors the registry's /health body.
type healthReport struct {
	Status string `json:"status"`
	Store  struct {
		Status string `json:"status"`
		Path   string `json:"path"`
	} `json:"store"`
	Vector struct {
		Status string `json:"status"`
	} `json:"vector"`
	Index struct {
		Documents int `json:"documents"`
		Entries   int `json:"entries"`
	} `json:"index"`
}

func runHealth(cmd *cobra.Command, args []string) {
	client := newAPIClient()

	var report healthReport
	if err := client.get("/health", &report); err != nil {
		log.Fatalf("Error checking health: %v", err)
	}

	if healthJSONOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report); err != nil {
			log.Fatalf("Error encoding health report: %v", err)
		}
		return
	}

	renderHealthReport(&report)
	if report.Vector.Status != "connected" {
		os.Exit(1)
	}
}

func renderHealthReport(report *healthReport) {
	ux.Title("Waymark Registry Health")
	ux.StatusLine("store", healthIcon(report.Store.Status == "up"), report.Store.Path)

	vectorIcon := ux.IconSuccess
	vectorDetail := ""
	switch report.Vector.Status {
	case "connected":
	case "not_configured":
		vectorIcon = ux.IconPending
		vectorDetail = "no vector index configured"
	default:
		vectorIcon = ux.IconWarning
		vectorDetail = "search is unavailable, ingestion is holding jobs"
	}
	ux.StatusLine("vector index ("+report.Vector.Status+")", vectorIcon, vectorDetail)

	ux.StatusLine("temporal index", ux.IconSuccess,
		fmt.Sprintf("%d document(s), %d revision entries", report.Index.Documents, report.Index.Entries))
}

func healthIcon(ok bool) ux.Icon {
	if ok {
		return ux.IconSuccess
	}
	return ux.IconError
}
