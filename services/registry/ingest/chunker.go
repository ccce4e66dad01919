// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest runs the asynchronous ingestion pipeline: revision content
// is chunked, embedded, and written to the vector index outside the request
// path, with per-revision job records for polling.
package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

var (
	chunkSize    = 1000
	chunkOverlap = chunkSize / 10

	markdownSeparators = []string{
		"\n# ", "\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ",
		"\n\n", "\n", " ", "",
	}
)

// headingLine matches an ATX heading and captures its text.
var headingLine = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*$`)

// numberedHeading captures a leading clause number such as "5" or "5.2"
// from headings like "## 5. Delivering a sufficient supply of homes".
var numberedHeading = regexp.MustCompile(`^(\d+(?:\.\d+)*)[.):]?\s+`)

// annexHeading captures the annex letter from headings like "Annex A:
// Flood risk and coastal change".
var annexHeading = regexp.MustCompile(`(?i)^annex\s+([a-z0-9]+)\b`)

// slugStrip reduces free-text headings to reference slugs.
var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// section is one heading-delimited span of the document.
type section struct {
	Ref     string
	Heading string
	Body    string
}

// ChunkDocument splits revision content into chunks carrying the metadata
// the vector index stores with every object.
//
// # Description
//
// The document is first divided at markdown headings so every chunk knows
// its enclosing section; each section body is then split with a recursive
// character splitter tuned for markdown. Chunk indexes are assigned in
// document order, which keeps the derived chunk UUIDs stable across
// re-ingestion of identical content.
//
// Section references come from the heading text: numbered headings keep
// their clause number ("5", "5.2"), annex headings become "annex-a", and
// anything else is slugified. Content before the first heading is filed
// under "preamble".
//
// # Inputs
//
//   - rev: The revision record supplying source, id, and effective range.
//   - content: Markdown or plain text.
//
// # Outputs
//
//   - []datatypes.ChunkRecord: Chunks in document order.
//   - error: Non-nil when splitting fails or nothing survives splitting.
func ChunkDocument(rev datatypes.Revision, content string) ([]datatypes.ChunkRecord, error) {
	splitter := newSectionSplitter()
	ingestedAt := time.Now().UnixMilli()

	var records []datatypes.ChunkRecord
	for _, sec := range splitSections(content) {
		parts, err := splitter.SplitText(sec.Body)
		if err != nil {
			return nil, fmt.Errorf("split section %q: %w", sec.Ref, err)
		}
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			records = append(records, datatypes.ChunkRecord{
				Source:        rev.Source,
				RevisionID:    rev.RevisionID,
				EffectiveFrom: rev.EffectiveFrom,
				EffectiveTo:   rev.EffectiveTo,
				SectionRef:    sec.Ref,
				Heading:       sec.Heading,
				ChunkIndex:    len(records),
				Content:       part,
				IngestedAt:    ingestedAt,
			})
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no chunks produced from %d bytes of content", len(content))
	}
	return records, nil
}

func newSectionSplitter() textsplitter.TextSplitter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithSeparators(markdownSeparators),
	)
}

// splitSections divides the document at ATX headings. Every returned
// section has a non-empty body; empty sections (back-to-back headings)
// are dropped.
func splitSections(content string) []section {
	var sections []section
	current := section{Ref: "preamble"}
	var body strings.Builder

	flush := func() {
		current.Body = strings.TrimSpace(body.String())
		if current.Body != "" {
			sections = append(sections, current)
		}
		body.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		m := headingLine.FindStringSubmatch(line)
		if m == nil {
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}
		flush()
		heading := m[2]
		current = section{Ref: sectionRefFor(heading), Heading: heading}
	}
	flush()
	return sections
}

// sectionRefFor derives the stable reference used to address a section
// through the API and in chunk metadata.
func sectionRefFor(heading string) string {
	if m := numberedHeading.FindStringSubmatch(heading); m != nil {
		return m[1]
	}
	if m := annexHeading.FindStringSubmatch(heading); m != nil {
		return "annex-" + strings.ToLower(m[1])
	}
	slug := slugStrip.ReplaceAllString(strings.ToLower(heading), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "untitled"
	}
	return slug
}
