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
	"sort"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/Waymark/pkg/ux"
	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

func runStats(cmd *cobra.Command, args []string) {
	if err := showUsageStats(newAPIClient(), statsDays); err != nil {
		log.Fatalf("Error fetching usage stats: %v", err)
	}
}

func showUsageStats(client *apiClient, days int) error {
	path := fmt.Sprintf("/v1/analytics/usage?days=%d", days)

	var resp datatypes.UsageResponse
	if err := client.get(path, &resp); err != nil {
		return err
	}

	if ux.GetMode() == ux.ModeMachine {
		for _, bucket := range resp.Buckets {
			fmt.Printf("%s\t%s\t%d\n", bucket.Day, bucket.Operation, bucket.Count)
		}
		return nil
	}

	ux.Title(fmt.Sprintf("Registry usage, last %d day(s)", resp.Days))
	if resp.Total == 0 {
		ux.Info("No recorded operations in this window.")
		return nil
	}

	// Roll the day buckets up per operation for the headline numbers.
	perOperation := map[string]int64{}
	for _, bucket := range resp.Buckets {
		perOperation[bucket.Operation] += bucket.Count
	}
	operations := make([]string, 0, len(perOperation))
	for op := range perOperation {
		operations = append(operations, op)
	}
	sort.Slice(operations, func(i, j int) bool {
		return perOperation[operations[i]] > perOperation[operations[j]]
	})

	for _, op := range operations {
		fmt.Printf("  %-18s %8d\n", op, perOperation[op])
	}
	fmt.Printf("\n%s %d\n", ux.Styles.Bold.Render("total"), resp.Total)
	return nil
}
