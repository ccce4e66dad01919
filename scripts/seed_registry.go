// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build ignore

// seed_registry.go populates a running registry with the three core UK
// policy documents and one revision each, so a fresh local stack has
// something to resolve and search against.
//
// Usage:
//
//	go run scripts/seed_registry.go
//	WAYMARK_SERVER_URL=http://localhost:12210 go run scripts/seed_registry.go
//
// Seeding is idempotent in effect: an existing document or revision is
// reported and skipped, not treated as a failure.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

type seedDocument struct {
	Source      string
	Title       string
	Description string
	Category    string

	VersionLabel  string
	EffectiveFrom string
	Content       string
}

var seeds = []seedDocument{
	{
		Source:      "NPPF",
		Title:       "National Planning Policy Framework",
		Description: "The government's planning policies for England and how they are expected to be applied.",
		Category:    "framework",

		VersionLabel:  "December 2024 revision",
		EffectiveFrom: "2024-12-12",
		Content: `# National Planning Policy Framework

## 11. Presumption in favour of sustainable development

Plans and decisions should apply a presumption in favour of sustainable
development. For plan-making this means that all plans should promote a
sustainable pattern of development that seeks to meet the development
needs of their area.

## 145. Grey belt

The release of grey belt land should be prioritised where Green Belt
boundaries need to be altered, provided development would not
fundamentally undermine the purposes of the remaining Green Belt.
`,
	},
	{
		Source:      "LTN_1_20",
		Title:       "Cycle Infrastructure Design",
		Description: "Local Transport Note 1/20, guidance for local authorities on designing high-quality cycle infrastructure.",
		Category:    "standard",

		VersionLabel:  "July 2020 edition",
		EffectiveFrom: "2020-07-27",
		Content: `# Cycle Infrastructure Design

## 1. Introduction

This guidance sets out how local authorities can deliver cycle
infrastructure that is safe, direct, coherent, comfortable and
attractive. Networks should be planned for all potential users.

## 4. Cycle lanes and tracks

Cycle tracks should be physically segregated from motor traffic on
roads with higher speeds or volumes. Shared use with pedestrians
should be a last resort in urban areas.
`,
	},
	{
		Source:      "GEAR_CHANGE",
		Title:       "Gear Change: A bold vision for cycling and walking",
		Description: "The government's vision for making England a great walking and cycling nation.",
		Category:    "strategy",

		VersionLabel:  "July 2020 edition",
		EffectiveFrom: "2020-07-28",
		Content: `# Gear Change

## 1. A bold vision

We want cycling and walking to be the natural first choice for many
journeys, with half of all journeys in towns and cities being cycled
or walked by 2030.

## 2. Better streets for cycling and people

Cycle routes must be designed to standards set out in the new cycle
infrastructure design guidance, and schemes which do not meet them
will not be funded.
`,
	},
}

func main() {
	baseURL := os.Getenv("WAYMARK_SERVER_URL")
	if baseURL == "" {
		baseURL = "http://localhost:12210"
	}

	client := &http.Client{Timeout: 30 * time.Second}
	failures := 0

	for _, seed := range seeds {
		if err := seedOne(client, baseURL, seed); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", seed.Source, err)
			failures++
		}
	}

	if failures > 0 {
		os.Exit(1)
	}
	fmt.Println("Registry seeded. Ingestion continues in the background; check with: waymark verify")
}

func seedOne(client *http.Client, baseURL string, seed seedDocument) error {
	status, body, err := postJSON(client, baseURL+"/v1/documents", map[string]any{
		"source":      seed.Source,
		"title":       seed.Title,
		"description": seed.Description,
		"category":    seed.Category,
	})
	if err != nil {
		return err
	}
	switch status {
	case http.StatusCreated:
		fmt.Printf("registered %s\n", seed.Source)
	case http.StatusConflict:
		fmt.Printf("%s already registered\n", seed.Source)
	default:
		return fmt.Errorf("registering document: HTTP %d: %s", status, body)
	}

	status, body, err = postJSON(client, baseURL+"/v1/documents/"+seed.Source+"/revisions", map[string]any{
		"version_label":  seed.VersionLabel,
		"effective_from": seed.EffectiveFrom,
		"content":        seed.Content,
	})
	if err != nil {
		return err
	}
	switch status {
	case http.StatusCreated:
		fmt.Printf("published %s (%s)\n", seed.VersionLabel, seed.Source)
	case http.StatusConflict:
		fmt.Printf("%s already has the %s revision\n", seed.Source, seed.EffectiveFrom)
	default:
		return fmt.Errorf("publishing revision: HTTP %d: %s", status, body)
	}
	return nil
}

func postJSON(client *http.Client, url string, payload any) (int, string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, "", err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode, string(body), nil
}
