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
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/Waymark/pkg/ux"
	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

// searchSnippetLimit trims hit content for terminal display.
const searchSnippetLimit = 240

func runSearch(cmd *cobra.Command, args []string) {
	client := newAPIClient()

	if searchInteractive {
		if err := interactiveSearch(client, NewInteractiveInputReader(50)); err != nil {
			log.Fatalf("Error in interactive search: %v", err)
		}
		return
	}

	if len(args) == 0 {
		log.Fatalf("Error: provide a query, or start a session with --interactive")
	}
	if err := searchOnce(client, strings.Join(args, " ")); err != nil {
		log.Fatalf("Error searching: %v", err)
	}
}

func searchOnce(client *apiClient, query string) error {
	req := datatypes.SearchRequest{
		Query:    query,
		AsOfDate: asOfDate,
		Sources:  searchSources,
		Limit:    searchLimit,
	}
	var resp datatypes.SearchResponse
	if err := client.post("/v1/search", req, &resp); err != nil {
		return err
	}
	renderSearchResults(&resp)
	return nil
}

// interactiveSearch loops reading queries until exit, quit, or EOF.
// A failed query is reported and the loop continues, so one degraded
// index response does not end the session.
func interactiveSearch(client *apiClient, reader InputReader) error {
	asOf := asOfDate
	if asOf == "" {
		asOf = "today"
	}
	ux.Title("Waymark search, scoped to " + asOf)
	ux.Muted("Type a query. 'exit', 'quit', or Ctrl+D ends the session.")

	for {
		line, err := reader.ReadLine()
		if err == io.EOF {
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		if err := searchOnce(client, line); err != nil {
			ux.Error(err.Error())
		}
	}
}

func renderSearchResults(resp *datatypes.SearchResponse) {
	if resp.Count == 0 {
		ux.Info(fmt.Sprintf("No matches for %q", resp.Query))
		return
	}

	for i, hit := range resp.Hits {
		heading := hit.Heading
		if heading == "" {
			heading = hit.SectionRef
		}
		fmt.Printf("\n%d. %s  %s\n", i+1,
			ux.Styles.Bold.Render(hit.Source+" "+hit.SectionRef),
			ux.Styles.Muted.Render(fmt.Sprintf("(%.3f, rev %s)", hit.Certainty, hit.RevisionID)))
		if heading != hit.SectionRef {
			ux.Muted(heading)
		}
		fmt.Println(snippet(hit.Content, searchSnippetLimit))
	}

	if len(resp.ResolvedRevisions) > 0 {
		fmt.Println()
		ux.Muted(fmt.Sprintf("as of %s, searched %d revision(s): %s",
			resp.AsOfDate, len(resp.ResolvedRevisions), strings.Join(resp.ResolvedRevisions, ", ")))
	}
}

// snippet cuts content at a rune boundary and marks the cut.
func snippet(content string, limit int) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "…"
}

func runGetSection(cmd *cobra.Command, args []string) {
	if err := getSection(newAPIClient(), args[0], args[1]); err != nil {
		log.Fatalf("Error fetching section: %v", err)
	}
}

func getSection(client *apiClient, source, sectionRef string) error {
	path := "/v1/sections/" + url.PathEscape(source) + "/" + url.PathEscape(sectionRef)
	if asOfDate != "" {
		query := url.Values{}
		query.Set("as_of_date", asOfDate)
		path += "?" + query.Encode()
	}

	var resp datatypes.SectionResponse
	if err := client.get(path, &resp); err != nil {
		return err
	}

	title := resp.Source + " " + resp.SectionRef
	if resp.Heading != "" {
		title += "  " + resp.Heading
	}
	ux.Title(title)
	ux.Muted(fmt.Sprintf("as of %s, revision %s, %d chunk(s)",
		resp.AsOfDate, resp.RevisionID, resp.ChunkCount))
	fmt.Println()
	fmt.Println(resp.Content)
	return nil
}
