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
	"sort"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/Waymark/pkg/ux"
	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

func runResolve(cmd *cobra.Command, args []string) {
	if err := resolveRevision(newAPIClient(), args[0], args[1]); err != nil {
		log.Fatalf("Error resolving: %v", err)
	}
}

func resolveRevision(client *apiClient, source, date string) error {
	query := url.Values{}
	query.Set("source", source)
	query.Set("date", date)

	var resp datatypes.ResolveResponse
	if err := client.get("/v1/resolve?"+query.Encode(), &resp); err != nil {
		return err
	}

	rev := resp.Revision
	rangeText := rev.EffectiveFrom + " to "
	if rev.OpenEnded() {
		rangeText += "open"
	} else {
		rangeText += rev.EffectiveTo
	}

	ux.Title(fmt.Sprintf("%s on %s", resp.Source, resp.Date))
	ux.StatusLine(rev.RevisionID, statusIcon(rev.Status),
		fmt.Sprintf("%s, %s", rev.VersionLabel, rangeText))
	if rev.Notes != "" {
		ux.Muted(rev.Notes)
	}
	return nil
}

func runSnapshot(cmd *cobra.Command, args []string) {
	if err := snapshotDate(newAPIClient(), args[0]); err != nil {
		log.Fatalf("Error taking snapshot: %v", err)
	}
}

func snapshotDate(client *apiClient, date string) error {
	query := url.Values{}
	query.Set("date", date)

	var resp datatypes.SnapshotResponse
	if err := client.get("/v1/snapshot?"+query.Encode(), &resp); err != nil {
		return err
	}

	ux.Title("Documents in force on " + resp.Date)
	if len(resp.InForce) == 0 {
		ux.Info("Nothing was in force on this date.")
	}

	// Map iteration order is random, sort for a stable listing.
	sources := make([]string, 0, len(resp.InForce))
	for source := range resp.InForce {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	for _, source := range sources {
		rev := resp.InForce[source]
		detail := fmt.Sprintf("%s, from %s", rev.VersionLabel, rev.EffectiveFrom)
		ux.StatusLine(source+"  "+rev.RevisionID, ux.IconSuccess, detail)
	}

	for _, source := range resp.NotYetEffective {
		ux.StatusLine(source, ux.IconPending, "first revision not yet effective")
	}
	for _, source := range resp.NoRevisionInForce {
		ux.StatusLine(source, ux.IconWarning, "gap between revisions on this date")
	}
	for _, source := range resp.NoRevisions {
		ux.StatusLine(source, ux.IconPending, "no revisions published")
	}

	fmt.Printf("\n%d of %d document(s) in force\n", len(resp.InForce), resp.Count)
	return nil
}
