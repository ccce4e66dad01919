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
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/Waymark/pkg/ux"
	"github.com/AleutianAI/Waymark/services/registry/consistency"
)

func runVerify(cmd *cobra.Command, args []string) {
	client := newAPIClient()

	var report consistency.Report
	var err error
	if showLastReport {
		err = client.get("/v1/consistency/report", &report)
	} else {
		err = ux.WithSpinner("Sweeping the registry against the vector index", func() error {
			return client.post("/v1/consistency/check", nil, &report)
		})
	}
	if err != nil {
		log.Fatalf("Error running consistency check: %v", err)
	}

	renderConsistencyReport(&report)
	if !report.Healthy {
		os.Exit(1)
	}
}

func renderConsistencyReport(report *consistency.Report) {
	ux.Title("Consistency Report")
	ux.Muted(fmt.Sprintf("ran %s, %d revision(s) against %d indexed, took %dms",
		report.RanAt.Format("2006-01-02 15:04:05"),
		report.RevisionsChecked, report.IndexedRevisions, report.DurationMS))

	if report.Healthy {
		ux.Success("The registry and the vector index agree.")
		return
	}

	fmt.Println()
	for _, finding := range report.Findings {
		icon := ux.IconWarning
		if finding.Severity == consistency.SeverityError {
			icon = ux.IconError
		}
		name := string(finding.Kind)
		if finding.Source != "" {
			name += "  " + finding.Source
		}
		detail := finding.Detail
		if finding.Expected != 0 || finding.Actual != 0 {
			detail = fmt.Sprintf("%s (expected %d, found %d)", finding.Detail, finding.Expected, finding.Actual)
		}
		ux.StatusLine(name+"  "+finding.RevisionID, icon, detail)
	}
	ux.WarningBox("Repair hints", "Orphaned vectors: waymark revisions delete, then reindex.\n"+
		"Missing or short chunks: waymark revisions reindex SOURCE REVISION_ID.")
}
