// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

func testRevision() datatypes.Revision {
	return datatypes.Revision{
		RevisionID:    "rev-nppf-2024",
		Source:        "NPPF",
		EffectiveFrom: "2024-12-12",
		EffectiveTo:   "",
		Status:        datatypes.StatusProcessing,
	}
}

func TestChunkDocument_SectionMetadata(t *testing.T) {
	content := `Ministerial foreword text that precedes any heading.

# National Planning Policy Framework

Opening statement of the framework.

## 5. Delivering a sufficient supply of homes

Local planning authorities should identify a supply of deliverable sites.

### 5.2 Small and medium sites

Small sites make an important contribution to meeting housing need.

## Annex A: Flood risk and coastal change

Development should be directed away from areas at highest risk.
`

	rev := testRevision()
	records, err := ChunkDocument(rev, content)
	require.NoError(t, err)
	require.NotEmpty(t, records)

	refs := make(map[string]string)
	for i, rec := range records {
		assert.Equal(t, "NPPF", rec.Source)
		assert.Equal(t, "rev-nppf-2024", rec.RevisionID)
		assert.Equal(t, "2024-12-12", rec.EffectiveFrom)
		assert.Equal(t, "", rec.EffectiveTo)
		assert.Equal(t, i, rec.ChunkIndex, "chunk indexes must be contiguous")
		assert.NotEmpty(t, rec.Content)
		assert.Positive(t, rec.IngestedAt)
		refs[rec.SectionRef] = rec.Heading
	}

	assert.Contains(t, refs, "preamble")
	assert.Contains(t, refs, "national-planning-policy-framework")
	assert.Contains(t, refs, "5")
	assert.Contains(t, refs, "5.2")
	assert.Contains(t, refs, "annex-a")

	assert.Equal(t, "", refs["preamble"])
	assert.Equal(t, "5. Delivering a sufficient supply of homes", refs["5"])
	assert.Equal(t, "Annex A: Flood risk and coastal change", refs["annex-a"])
}

func TestChunkDocument_LongSectionSplits(t *testing.T) {
	paragraph := strings.Repeat("Planning policies should be clear and unambiguous. ", 20)
	content := "## 11. Making effective use of land\n\n" +
		paragraph + "\n\n" + paragraph + "\n\n" + paragraph

	records, err := ChunkDocument(testRevision(), content)
	require.NoError(t, err)
	require.Greater(t, len(records), 1, "a long section must split into multiple chunks")

	for _, rec := range records {
		assert.Equal(t, "11", rec.SectionRef)
		assert.Equal(t, "11. Making effective use of land", rec.Heading)
		assert.LessOrEqual(t, len(rec.Content), chunkSize+chunkOverlap)
	}
}

func TestChunkDocument_EmptyContent(t *testing.T) {
	_, err := ChunkDocument(testRevision(), "")
	assert.Error(t, err)

	_, err = ChunkDocument(testRevision(), "   \n\n  \n")
	assert.Error(t, err)
}

func TestSplitSections_DropsEmptySections(t *testing.T) {
	content := "# First\n## Second\nBody under second.\n"
	sections := splitSections(content)

	require.Len(t, sections, 1)
	assert.Equal(t, "second", sections[0].Ref)
	assert.Equal(t, "Second", sections[0].Heading)
	assert.Equal(t, "Body under second.", sections[0].Body)
}

func TestSectionRefFor(t *testing.T) {
	tests := []struct {
		heading string
		want    string
	}{
		{"5. Delivering a sufficient supply of homes", "5"},
		{"5.2 Small and medium sites", "5.2"},
		{"12) Achieving well-designed places", "12"},
		{"3: Plan-making", "3"},
		{"Annex A: Flood risk and coastal change", "annex-a"},
		{"annex b glossary", "annex-b"},
		{"Introduction", "introduction"},
		{"Setting the scene!", "setting-the-scene"},
		{"", "untitled"},
		{"---", "untitled"},
	}

	for _, tt := range tests {
		t.Run(tt.heading, func(t *testing.T) {
			assert.Equal(t, tt.want, sectionRefFor(tt.heading))
		})
	}
}
