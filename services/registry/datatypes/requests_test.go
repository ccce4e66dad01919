// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CreateDocumentRequest Tests
// =============================================================================

func TestCreateDocumentRequest_Valid(t *testing.T) {
	req := CreateDocumentRequest{
		Source:      "LTN_1_20",
		Title:       "Cycle Infrastructure Design",
		Description: "Standards for cycle infrastructure on highways",
		Category:    CategoryStandard,
	}
	require.NoError(t, req.Validate())
}

func TestCreateDocumentRequest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		req  CreateDocumentRequest
	}{
		{"missing source", CreateDocumentRequest{Title: "x", Category: CategoryGuidance}},
		{"missing title", CreateDocumentRequest{Source: "NPPF", Category: CategoryFramework}},
		{"missing category", CreateDocumentRequest{Source: "NPPF", Title: "x"}},
		{"unknown category", CreateDocumentRequest{Source: "NPPF", Title: "x", Category: "pamphlet"}},
		{"lowercase source", CreateDocumentRequest{Source: "nppf", Title: "x", Category: CategoryFramework}},
		{"hyphenated source", CreateDocumentRequest{Source: "LTN-1-20", Title: "x", Category: CategoryStandard}},
		{"trailing underscore", CreateDocumentRequest{Source: "NPPF_", Title: "x", Category: CategoryFramework}},
		{"title too long", CreateDocumentRequest{Source: "NPPF", Title: strings.Repeat("a", 300), Category: CategoryFramework}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.req.Validate())
		})
	}
}

func TestDocumentCategory_Valid(t *testing.T) {
	for _, c := range []DocumentCategory{
		CategoryFramework, CategoryStandard, CategoryGuidance,
		CategoryRegulation, CategoryStrategy, CategoryOther,
	} {
		assert.True(t, c.Valid(), string(c))
	}
	assert.False(t, DocumentCategory("").Valid())
	assert.False(t, DocumentCategory("pamphlet").Valid())
}

func TestUpdateDocumentRequest(t *testing.T) {
	title := "National Planning Policy Framework"
	cat := CategoryFramework
	bad := DocumentCategory("pamphlet")
	long := strings.Repeat("a", 300)
	empty := ""

	t.Run("valid partial", func(t *testing.T) {
		req := UpdateDocumentRequest{Title: &title}
		require.NoError(t, req.Validate())
		assert.False(t, req.Empty())
	})

	t.Run("valid category", func(t *testing.T) {
		req := UpdateDocumentRequest{Category: &cat}
		require.NoError(t, req.Validate())
	})

	t.Run("empty update", func(t *testing.T) {
		req := UpdateDocumentRequest{}
		require.NoError(t, req.Validate())
		assert.True(t, req.Empty())
	})

	t.Run("empty title rejected", func(t *testing.T) {
		req := UpdateDocumentRequest{Title: &empty}
		assert.Error(t, req.Validate())
	})

	t.Run("title too long", func(t *testing.T) {
		req := UpdateDocumentRequest{Title: &long}
		assert.Error(t, req.Validate())
	})

	t.Run("unknown category", func(t *testing.T) {
		req := UpdateDocumentRequest{Category: &bad}
		assert.Error(t, req.Validate())
	})
}

func TestListDocumentsRequest(t *testing.T) {
	t.Run("empty is valid", func(t *testing.T) {
		req := ListDocumentsRequest{}
		require.NoError(t, req.Validate())
	})

	t.Run("category filter", func(t *testing.T) {
		req := ListDocumentsRequest{Category: "standard"}
		require.NoError(t, req.Validate())
	})

	t.Run("prefix filter", func(t *testing.T) {
		req := ListDocumentsRequest{SourcePrefix: "LTN"}
		require.NoError(t, req.Validate())
	})

	t.Run("unknown category", func(t *testing.T) {
		req := ListDocumentsRequest{Category: "pamphlet"}
		assert.Error(t, req.Validate())
	})
}

// =============================================================================
// AddRevisionRequest Tests
// =============================================================================

func TestAddRevisionRequest_ValidOpenEnded(t *testing.T) {
	req := AddRevisionRequest{
		VersionLabel:  "December 2024 revision",
		EffectiveFrom: "2024-12-12",
		Content:       "# NPPF\n\nSome policy text.",
	}
	require.NoError(t, req.Validate())
}

func TestAddRevisionRequest_ValidBounded(t *testing.T) {
	req := AddRevisionRequest{
		EffectiveFrom: "2021-07-20",
		EffectiveTo:   "2024-12-11",
		Content:       "historic revision body",
	}
	require.NoError(t, req.Validate())
}

func TestAddRevisionRequest_SingleDayRange(t *testing.T) {
	// effective_from == effective_to is a legal one-day range.
	req := AddRevisionRequest{
		EffectiveFrom: "2024-06-01",
		EffectiveTo:   "2024-06-01",
		Content:       "x",
	}
	require.NoError(t, req.Validate())
}

func TestAddRevisionRequest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		req  AddRevisionRequest
	}{
		{"missing effective_from", AddRevisionRequest{Content: "x"}},
		{"missing content", AddRevisionRequest{EffectiveFrom: "2024-12-12"}},
		{"non-canonical from", AddRevisionRequest{EffectiveFrom: "2024-1-2", Content: "x"}},
		{"non-canonical to", AddRevisionRequest{EffectiveFrom: "2024-01-02", EffectiveTo: "2024-6-1", Content: "x"}},
		{"label too long", AddRevisionRequest{EffectiveFrom: "2024-12-12", Content: "x", VersionLabel: strings.Repeat("l", 200)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.req.Validate())
		})
	}
}

// =============================================================================
// UpdateRevisionRequest Tests
// =============================================================================

func TestUpdateRevisionRequest(t *testing.T) {
	label := "corrected label"
	from := "2024-12-12"
	to := "2025-06-30"
	openEnded := ""
	badDate := "2024-1-2"
	inverted := "2024-01-01"

	t.Run("valid label only", func(t *testing.T) {
		req := UpdateRevisionRequest{VersionLabel: &label}
		require.NoError(t, req.Validate())
		assert.False(t, req.Empty())
	})

	t.Run("valid date move", func(t *testing.T) {
		req := UpdateRevisionRequest{EffectiveFrom: &from, EffectiveTo: &to}
		require.NoError(t, req.Validate())
	})

	t.Run("reopen via empty effective_to", func(t *testing.T) {
		// Empty string means make the range open-ended; legal at the
		// request level, the registry enforces the one-open-ended rule.
		req := UpdateRevisionRequest{EffectiveTo: &openEnded}
		require.NoError(t, req.Validate())
	})

	t.Run("empty update", func(t *testing.T) {
		req := UpdateRevisionRequest{}
		require.NoError(t, req.Validate())
		assert.True(t, req.Empty())
	})

	t.Run("empty effective_from rejected", func(t *testing.T) {
		req := UpdateRevisionRequest{EffectiveFrom: &openEnded}
		err := req.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidDate))
	})

	t.Run("non-canonical date", func(t *testing.T) {
		req := UpdateRevisionRequest{EffectiveFrom: &badDate}
		assert.Error(t, req.Validate())
	})

	t.Run("inverted range", func(t *testing.T) {
		req := UpdateRevisionRequest{EffectiveFrom: &from, EffectiveTo: &inverted}
		err := req.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidDateRange))
	})
}

func TestAddRevisionRequest_InvertedRange(t *testing.T) {
	req := AddRevisionRequest{
		EffectiveFrom: "2024-12-12",
		EffectiveTo:   "2024-12-11",
		Content:       "x",
	}
	err := req.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDateRange))
}

func TestAddRevisionRequest_ContentTooLarge(t *testing.T) {
	req := AddRevisionRequest{
		EffectiveFrom: "2024-12-12",
		Content:       strings.Repeat("a", MaxContentBytes+1),
	}
	err := req.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContentTooLarge))
}

// =============================================================================
// SearchRequest Tests
// =============================================================================

func TestSearchRequest_Valid(t *testing.T) {
	req := SearchRequest{
		Query:    "minimum cycle lane width",
		AsOfDate: "2024-01-15",
		Sources:  []string{"LTN_1_20", "GEAR_CHANGE"},
		Limit:    10,
	}
	require.NoError(t, req.Validate())
}

func TestSearchRequest_NoTemporalFilter(t *testing.T) {
	req := SearchRequest{Query: "green belt policy"}
	require.NoError(t, req.Validate())
}

func TestSearchRequest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		req  SearchRequest
	}{
		{"missing query", SearchRequest{AsOfDate: "2024-01-15"}},
		{"bad as_of_date", SearchRequest{Query: "x", AsOfDate: "15/01/2024"}},
		{"bad source slug", SearchRequest{Query: "x", Sources: []string{"nppf"}}},
		{"limit above cap", SearchRequest{Query: "x", Limit: 500}},
		{"query too long", SearchRequest{Query: strings.Repeat("q", MaxQueryLength+1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.req.Validate())
		})
	}
}

func TestSearchRequest_EnsureDefaults(t *testing.T) {
	req := SearchRequest{Query: "x"}
	req.EnsureDefaults()
	assert.Equal(t, DefaultSearchLimit, req.Limit)

	req = SearchRequest{Query: "x", Limit: 200}
	req.EnsureDefaults()
	assert.Equal(t, MaxSearchLimit, req.Limit)

	req = SearchRequest{Query: "x", Limit: 5}
	req.EnsureDefaults()
	assert.Equal(t, 5, req.Limit)
}
