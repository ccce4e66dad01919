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
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/Waymark/pkg/ux"
	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

// ingestionPollInterval paces the --wait loop. The server finishes small
// documents in a few seconds, so anything tighter just burns requests.
var ingestionPollInterval = 2 * time.Second

func runAddRevision(cmd *cobra.Command, args []string) {
	if revFile == "" {
		log.Fatalf("Error: --file is required")
	}
	if revEffectiveFrom == "" {
		log.Fatalf("Error: --effective-from is required")
	}

	content, err := os.ReadFile(revFile)
	if err != nil {
		log.Fatalf("Error reading %s: %v", revFile, err)
	}

	client := newAPIClient()
	resp, err := addRevision(client, args[0], datatypes.AddRevisionRequest{
		VersionLabel:  revLabel,
		EffectiveFrom: revEffectiveFrom,
		EffectiveTo:   revEffectiveTo,
		Content:       string(content),
		Notes:         revNotes,
	})
	if err != nil {
		log.Fatalf("Error publishing revision: %v", err)
	}

	if waitForIngestion {
		if err := waitForIngestionDone(client, resp.Revision.RevisionID); err != nil {
			log.Fatalf("Error waiting for ingestion: %v", err)
		}
	}
}

func addRevision(client *apiClient, source string, req datatypes.AddRevisionRequest) (*datatypes.AddRevisionResponse, error) {
	var resp datatypes.AddRevisionResponse
	path := "/v1/documents/" + url.PathEscape(source) + "/revisions"
	if err := client.post(path, req, &resp); err != nil {
		return nil, err
	}

	ux.Success(fmt.Sprintf("Published revision %s of %s", resp.Revision.RevisionID, source))
	if resp.SupersededRevisionID != "" {
		ux.Info(fmt.Sprintf("Superseded %s, now effective until %s",
			resp.SupersededRevisionID, resp.SupersededEffectiveTo))
	}
	ux.Muted("Ingestion status: waymark status " + resp.Revision.RevisionID)
	return &resp, nil
}

// waitForIngestionDone polls the status endpoint until the job reaches a
// terminal phase. A failed job is reported as an error so scripts using
// --wait see a non-zero exit.
func waitForIngestionDone(client *apiClient, revisionID string) error {
	spinner := ux.NewSpinner("Chunking and indexing " + revisionID)
	spinner.Start()

	for {
		var status datatypes.IngestionStatusResponse
		if err := client.get("/v1/ingestions/"+url.PathEscape(revisionID), &status); err != nil {
			spinner.StopWithError("Lost the ingestion status")
			return err
		}

		switch status.Phase {
		case datatypes.PhaseDone:
			spinner.StopWithSuccess(fmt.Sprintf("Indexed %d chunks", status.ChunkCount))
			return nil
		case datatypes.PhaseFailed:
			spinner.StopWithError("Ingestion failed")
			return fmt.Errorf("ingestion failed: %s", status.Error)
		default:
			spinner.UpdateMessage(fmt.Sprintf("%s (%d%%)", status.Phase, status.Percent))
		}

		time.Sleep(ingestionPollInterval)
	}
}

func runListRevisions(cmd *cobra.Command, args []string) {
	if err := listRevisions(newAPIClient(), args[0]); err != nil {
		log.Fatalf("Error listing revisions: %v", err)
	}
}

func listRevisions(client *apiClient, source string) error {
	var resp datatypes.ListRevisionsResponse
	if err := client.get("/v1/documents/"+url.PathEscape(source)+"/revisions", &resp); err != nil {
		return err
	}

	if resp.Count == 0 {
		ux.Info("No revisions published for " + source + " yet.")
		return nil
	}

	ux.Title("Revisions of " + source)
	active, processing, failed := 0, 0, 0
	for _, rev := range resp.Revisions {
		switch rev.Status {
		case datatypes.StatusActive:
			active++
		case datatypes.StatusProcessing:
			processing++
		case datatypes.StatusFailed:
			failed++
		}

		rangeText := rev.EffectiveFrom + " to "
		if rev.OpenEnded() {
			rangeText += "open"
		} else {
			rangeText += rev.EffectiveTo
		}
		detail := fmt.Sprintf("%s, %s, %d chunks", rev.VersionLabel, rangeText, rev.ChunkCount)
		ux.StatusLine(rev.RevisionID, statusIcon(rev.Status), detail)
	}
	ux.Summary(active, processing, failed, resp.Count)
	return nil
}

func runUpdateRevision(cmd *cobra.Command, args []string) {
	req := datatypes.UpdateRevisionRequest{}
	if cmd.Flags().Changed("label") {
		req.VersionLabel = &revLabel
	}
	if cmd.Flags().Changed("effective-from") {
		req.EffectiveFrom = &revEffectiveFrom
	}
	if cmd.Flags().Changed("effective-to") {
		req.EffectiveTo = &revEffectiveTo
	}
	if cmd.Flags().Changed("notes") {
		req.Notes = &revNotes
	}
	if err := updateRevision(newAPIClient(), args[0], args[1], req); err != nil {
		log.Fatalf("Error updating revision: %v", err)
	}
}

func updateRevision(client *apiClient, source, revisionID string, req datatypes.UpdateRevisionRequest) error {
	if req.Empty() {
		return fmt.Errorf("nothing to update, pass --label, --effective-from, --effective-to, or --notes")
	}
	var rev datatypes.Revision
	path := "/v1/documents/" + url.PathEscape(source) + "/revisions/" + url.PathEscape(revisionID)
	if err := client.patch(path, req, &rev); err != nil {
		return err
	}
	ux.Success(fmt.Sprintf("Updated revision %s of %s", rev.RevisionID, rev.Source))
	return nil
}

func runDeleteRevision(cmd *cobra.Command, args []string) {
	source, revisionID := args[0], args[1]
	if !skipConfirm {
		if !ux.IsInteractive() {
			log.Fatalf("Error: refusing to delete %s without --yes in a non-interactive session", revisionID)
		}
		confirmed, err := confirmDeletion(
			fmt.Sprintf("Delete revision %s of %s?", revisionID, source),
			"Its indexed chunks are purged. Dates covered only by this revision stop resolving.")
		if err != nil {
			log.Fatalf("Error reading confirmation: %v", err)
		}
		if !confirmed {
			ux.Info("Aborted.")
			return
		}
	}
	if err := deleteRevision(newAPIClient(), source, revisionID); err != nil {
		log.Fatalf("Error deleting revision: %v", err)
	}
}

func deleteRevision(client *apiClient, source, revisionID string) error {
	var resp datatypes.DeleteRevisionResponse
	path := "/v1/documents/" + url.PathEscape(source) + "/revisions/" + url.PathEscape(revisionID)
	if err := client.del(path, &resp); err != nil {
		return err
	}
	ux.Success(fmt.Sprintf("Deleted revision %s of %s", resp.PurgedRevisionID, resp.Source))
	if !resp.VectorsPurged {
		ux.Warning("The vector index was unreachable, run 'waymark verify' once it recovers")
	}
	return nil
}

func runReindexRevision(cmd *cobra.Command, args []string) {
	if err := reindexRevision(newAPIClient(), args[0], args[1]); err != nil {
		log.Fatalf("Error reindexing revision: %v", err)
	}
}

func reindexRevision(client *apiClient, source, revisionID string) error {
	var resp struct {
		Source     string `json:"source"`
		RevisionID string `json:"revision_id"`
		Ingestion  string `json:"ingestion"`
	}
	path := "/v1/documents/" + url.PathEscape(source) + "/revisions/" + url.PathEscape(revisionID) + "/reindex"
	if err := client.post(path, nil, &resp); err != nil {
		return err
	}
	ux.Success(fmt.Sprintf("Reindex queued for %s", resp.RevisionID))
	ux.Muted("Ingestion status: waymark status " + resp.RevisionID)
	return nil
}
