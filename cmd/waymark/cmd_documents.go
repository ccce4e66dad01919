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

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/Waymark/pkg/ux"
	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

func runCreateDocument(cmd *cobra.Command, args []string) {
	if docTitle == "" {
		log.Fatalf("Error: --title is required")
	}
	if err := createDocument(newAPIClient(), args[0], docTitle, docDescription, docCategory); err != nil {
		log.Fatalf("Error creating document: %v", err)
	}
}

func createDocument(client *apiClient, source, title, description, category string) error {
	req := datatypes.CreateDocumentRequest{
		Source:      source,
		Title:       title,
		Description: description,
		Category:    datatypes.DocumentCategory(category),
	}
	var doc datatypes.Document
	if err := client.post("/v1/documents", req, &doc); err != nil {
		return err
	}
	ux.Success(fmt.Sprintf("Registered %s (%s)", doc.Source, doc.Title))
	ux.Muted("Publish revisions with: waymark revisions add " + doc.Source + " --file <doc.md> --effective-from <YYYY-MM-DD>")
	return nil
}

func runListDocuments(cmd *cobra.Command, args []string) {
	if err := listDocuments(newAPIClient(), listCategory, listPrefix); err != nil {
		log.Fatalf("Error listing documents: %v", err)
	}
}

func listDocuments(client *apiClient, category, prefix string) error {
	query := url.Values{}
	if category != "" {
		query.Set("category", category)
	}
	if prefix != "" {
		query.Set("source_prefix", prefix)
	}
	path := "/v1/documents"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp datatypes.ListDocumentsResponse
	if err := client.get(path, &resp); err != nil {
		return err
	}

	if resp.Count == 0 {
		ux.Info("No documents registered yet.")
		return nil
	}

	ux.Title("Registered Documents")
	for _, doc := range resp.Documents {
		detail := string(doc.Category)
		icon := ux.IconPending
		if doc.Current != nil {
			icon = ux.IconSuccess
			detail = fmt.Sprintf("%s, current: %s from %s",
				doc.Category, doc.Current.VersionLabel, doc.Current.EffectiveFrom)
		}
		ux.StatusLine(doc.Source+"  "+doc.Title, icon, detail)
	}
	fmt.Printf("\n%d document(s)\n", resp.Count)
	return nil
}

func runGetDocument(cmd *cobra.Command, args []string) {
	if err := getDocument(newAPIClient(), args[0]); err != nil {
		log.Fatalf("Error fetching document: %v", err)
	}
}

func getDocument(client *apiClient, source string) error {
	var resp datatypes.DocumentResponse
	if err := client.get("/v1/documents/"+url.PathEscape(source), &resp); err != nil {
		return err
	}

	ux.Title(resp.Source + "  " + resp.Title)
	if resp.Description != "" {
		ux.Muted(resp.Description)
	}
	ux.Muted(fmt.Sprintf("category: %s, created: %s", resp.Category, resp.CreatedAt.Format("2006-01-02")))

	if len(resp.Revisions) == 0 {
		ux.Info("No revisions published yet.")
		return nil
	}

	fmt.Println()
	for _, rev := range resp.Revisions {
		icon := statusIcon(rev.Status)
		rangeText := rev.EffectiveFrom + " to "
		if rev.EffectiveTo == "" {
			rangeText += "open"
		} else {
			rangeText += rev.EffectiveTo
		}
		detail := fmt.Sprintf("%s, %s, %d chunks", rev.VersionLabel, rangeText, rev.ChunkCount)
		ux.StatusLine(rev.RevisionID, icon, detail)
	}
	return nil
}

func statusIcon(status datatypes.RevisionStatus) ux.Icon {
	switch status {
	case datatypes.StatusActive:
		return ux.IconSuccess
	case datatypes.StatusFailed:
		return ux.IconError
	case datatypes.StatusSuperseded:
		return ux.IconMarker
	default:
		return ux.IconPending
	}
}

func runUpdateDocument(cmd *cobra.Command, args []string) {
	req := datatypes.UpdateDocumentRequest{}
	if cmd.Flags().Changed("title") {
		req.Title = &docTitle
	}
	if cmd.Flags().Changed("description") {
		req.Description = &docDescription
	}
	if cmd.Flags().Changed("category") {
		category := datatypes.DocumentCategory(docCategory)
		req.Category = &category
	}
	if err := updateDocument(newAPIClient(), args[0], req); err != nil {
		log.Fatalf("Error updating document: %v", err)
	}
}

func updateDocument(client *apiClient, source string, req datatypes.UpdateDocumentRequest) error {
	if req.Empty() {
		return fmt.Errorf("nothing to update, pass --title, --description, or --category")
	}
	var doc datatypes.Document
	if err := client.patch("/v1/documents/"+url.PathEscape(source), req, &doc); err != nil {
		return err
	}
	ux.Success(fmt.Sprintf("Updated %s (%s)", doc.Source, doc.Title))
	return nil
}

func runDeleteDocument(cmd *cobra.Command, args []string) {
	source := args[0]
	if !skipConfirm {
		if !ux.IsInteractive() {
			log.Fatalf("Error: refusing to delete %s without --yes in a non-interactive session", source)
		}
		confirmed, err := confirmDeletion(
			fmt.Sprintf("Delete document %s and all of its revisions?", source),
			"This also purges every indexed chunk. There is no undo.")
		if err != nil {
			log.Fatalf("Error reading confirmation: %v", err)
		}
		if !confirmed {
			ux.Info("Aborted.")
			return
		}
	}
	if err := deleteDocument(newAPIClient(), source); err != nil {
		log.Fatalf("Error deleting document: %v", err)
	}
}

// confirmDeletion prompts for a yes/no answer before destructive calls.
func confirmDeletion(title, description string) (bool, error) {
	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Delete").
				Negative("Cancel").
				Value(&confirmed),
		),
	)
	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}

func deleteDocument(client *apiClient, source string) error {
	if err := client.del("/v1/documents/"+url.PathEscape(source), nil); err != nil {
		return err
	}
	ux.Success(fmt.Sprintf("Deleted %s", source))
	return nil
}
