// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

func TestSearch_Dated(t *testing.T) {
	f := newRegistryFixture(t)
	f.createDocument(t, "NPPF", "NPPF", datatypes.CategoryFramework)
	current := f.addActiveRevision(t, "NPPF", "2021-07-20", "")

	rec := f.do(t, "POST", "/v1/search", datatypes.SearchRequest{
		Query:    "housing supply",
		AsOfDate: "2024-01-01",
	})

	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	var resp datatypes.SearchResponse
	decodeInto(t, rec, &resp)
	assert.Equal(t, "housing supply", resp.Query)
	assert.Equal(t, "2024-01-01", resp.AsOfDate)
	require.NotEmpty(t, resp.Hits)
	assert.Equal(t, len(resp.Hits), resp.Count)
	assert.Contains(t, resp.ResolvedRevisions, current.RevisionID)
	for _, hit := range resp.Hits {
		assert.Equal(t, current.RevisionID, hit.RevisionID)
		assert.Equal(t, "NPPF", hit.Source)
	}
}

func TestSearch_DatedExcludesSupersededText(t *testing.T) {
	f := newRegistryFixture(t)
	f.createDocument(t, "NPPF", "NPPF", datatypes.CategoryFramework)
	old := f.addActiveRevision(t, "NPPF", "2012-03-27", "2021-07-19")
	f.addActiveRevision(t, "NPPF", "2021-07-20", "")

	rec := f.do(t, "POST", "/v1/search", datatypes.SearchRequest{
		Query:    "sustainable development",
		AsOfDate: "2015-06-01",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp datatypes.SearchResponse
	decodeInto(t, rec, &resp)
	require.NotEmpty(t, resp.Hits)
	for _, hit := range resp.Hits {
		assert.Equal(t, old.RevisionID, hit.RevisionID)
	}
}

func TestSearch_Undated(t *testing.T) {
	f := newRegistryFixture(t)
	f.createDocument(t, "NPPF", "NPPF", datatypes.CategoryFramework)
	f.addActiveRevision(t, "NPPF", "2021-07-20", "")

	rec := f.do(t, "POST", "/v1/search", datatypes.SearchRequest{
		Query: "plan-led system",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp datatypes.SearchResponse
	decodeInto(t, rec, &resp)
	assert.Empty(t, resp.AsOfDate)
	assert.Empty(t, resp.ResolvedRevisions)
	assert.NotEmpty(t, resp.Hits)
}

func TestSearch_SourceRestriction(t *testing.T) {
	f := newRegistryFixture(t)
	f.createDocument(t, "NPPF", "NPPF", datatypes.CategoryFramework)
	f.addActiveRevision(t, "NPPF", "2021-07-20", "")
	f.createDocument(t, "LTN_1_20", "Cycle Infrastructure Design", datatypes.CategoryStandard)
	f.addActiveRevision(t, "LTN_1_20", "2020-07-27", "")

	rec := f.do(t, "POST", "/v1/search", datatypes.SearchRequest{
		Query:    "infrastructure",
		AsOfDate: "2024-01-01",
		Sources:  []string{"LTN_1_20"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp datatypes.SearchResponse
	decodeInto(t, rec, &resp)
	require.NotEmpty(t, resp.Hits)
	for _, hit := range resp.Hits {
		assert.Equal(t, "LTN_1_20", hit.Source)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	f := newRegistryFixture(t)

	rec := f.do(t, "POST", "/v1/search", datatypes.SearchRequest{Query: ""})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decodeError(t, rec).Code)
}

func TestSearch_GateRejects(t *testing.T) {
	f := newRegistryFixture(t)
	f.createDocument(t, "NPPF", "NPPF", datatypes.CategoryFramework)
	f.addActiveRevision(t, "NPPF", "2021-07-20", "")
	f.gate.reject.Store(true)

	rec := f.do(t, "POST", "/v1/search", datatypes.SearchRequest{
		Query:    "housing",
		AsOfDate: "2024-01-01",
	})

	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "index_unavailable", decodeError(t, rec).Code)
}

func TestGetSection(t *testing.T) {
	f := newRegistryFixture(t)
	f.createDocument(t, "NPPF", "NPPF", datatypes.CategoryFramework)
	current := f.addActiveRevision(t, "NPPF", "2021-07-20", "")

	rec := f.do(t, "GET", "/v1/sections/NPPF/5?as_of_date=2024-01-01", nil)

	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	var resp datatypes.SectionResponse
	decodeInto(t, rec, &resp)
	assert.Equal(t, "NPPF", resp.Source)
	assert.Equal(t, "5", resp.SectionRef)
	assert.Equal(t, current.RevisionID, resp.RevisionID)
	assert.Contains(t, resp.Heading, "Delivering")
	assert.Contains(t, resp.Content, "supply of homes")
	assert.GreaterOrEqual(t, resp.ChunkCount, 1)
}

func TestGetSection_HistoricalRevision(t *testing.T) {
	f := newRegistryFixture(t)
	f.createDocument(t, "NPPF", "NPPF", datatypes.CategoryFramework)
	old := f.addActiveRevision(t, "NPPF", "2012-03-27", "2021-07-19")
	f.addActiveRevision(t, "NPPF", "2021-07-20", "")

	rec := f.do(t, "GET", "/v1/sections/NPPF/2?as_of_date=2015-06-01", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp datatypes.SectionResponse
	decodeInto(t, rec, &resp)
	assert.Equal(t, old.RevisionID, resp.RevisionID)
	assert.Equal(t, "2015-06-01", resp.AsOfDate)
}

func TestGetSection_UnknownRef(t *testing.T) {
	f := newRegistryFixture(t)
	f.createDocument(t, "NPPF", "NPPF", datatypes.CategoryFramework)
	f.addActiveRevision(t, "NPPF", "2021-07-20", "")

	rec := f.do(t, "GET", "/v1/sections/NPPF/99?as_of_date=2024-01-01", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "section_not_found", decodeError(t, rec).Code)
}

func TestGetSection_UnknownDocument(t *testing.T) {
	f := newRegistryFixture(t)

	rec := f.do(t, "GET", "/v1/sections/MISSING/1?as_of_date=2024-01-01", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "document_not_found", decodeError(t, rec).Code)
}
