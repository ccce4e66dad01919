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
	"io"
	"log"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/Waymark/pkg/ux"
	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

func runIngestionStatus(cmd *cobra.Command, args []string) {
	client := newAPIClient()
	revisionID := args[0]

	if watchIngestion {
		if err := watchIngestionStatus(client, revisionID); err != nil {
			log.Fatalf("Error watching ingestion: %v", err)
		}
		return
	}
	if err := showIngestionStatus(client, revisionID); err != nil {
		log.Fatalf("Error fetching ingestion status: %v", err)
	}
}

func showIngestionStatus(client *apiClient, revisionID string) error {
	var status datatypes.IngestionStatusResponse
	if err := client.get("/v1/ingestions/"+url.PathEscape(revisionID), &status); err != nil {
		return err
	}
	renderIngestionStatus(&status)
	return nil
}

func renderIngestionStatus(status *datatypes.IngestionStatusResponse) {
	bar := ux.ProgressBar(status.Percent, 100, 24)
	line := fmt.Sprintf("%s  %s %s", status.RevisionID, bar, status.Phase)
	if status.Phase == datatypes.PhaseDone {
		line += fmt.Sprintf(", %d chunks", status.ChunkCount)
	}
	fmt.Println(line)
	if status.Error != "" {
		ux.Error(status.Error)
	}
}

// watchIngestionStatus streams status frames over the watch websocket
// until the job reaches a terminal phase and the server closes the
// socket. A failed job surfaces as an error for script exit codes.
func watchIngestionStatus(client *apiClient, revisionID string) error {
	header := http.Header{}
	if client.token != "" {
		header.Set("Authorization", "Bearer "+client.token)
	}

	target := client.wsURL("/v1/ingestions/" + url.PathEscape(revisionID) + "/watch")
	conn, resp, err := websocket.DefaultDialer.Dial(target, header)
	if err != nil {
		// A rejected upgrade carries the registry's error envelope.
		if resp != nil && resp.Body != nil {
			raw, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr == nil && len(raw) > 0 {
				return decodeAPIError(resp.StatusCode, raw)
			}
		}
		return fmt.Errorf("could not open the watch stream: %w", err)
	}
	defer conn.Close()

	for {
		var status datatypes.IngestionStatusResponse
		if err := conn.ReadJSON(&status); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("watch stream ended unexpectedly: %w", err)
		}

		renderIngestionStatus(&status)
		if status.Phase.Terminal() {
			if status.Phase == datatypes.PhaseFailed {
				return fmt.Errorf("ingestion failed: %s", status.Error)
			}
			return nil
		}
	}
}
