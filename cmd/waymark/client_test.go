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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/Waymark/pkg/ux"
	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

func TestMain(m *testing.M) {
	// Plain output keeps assertions and CI logs free of ANSI codes.
	ux.SetMode(ux.ModeMachine)
	os.Exit(m.Run())
}

// testClient builds an apiClient pinned to a mock server, bypassing the
// config file and environment resolution.
func testClient(srv *httptest.Server, token string) *apiClient {
	return &apiClient{
		baseURL: srv.URL,
		token:   token,
		http:    srv.Client(),
	}
}

func TestAPIClient_SendsAuthAndContentType(t *testing.T) {
	var gotAuth, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	}))
	defer srv.Close()

	var out map[string]string
	err := testClient(srv, "my-token").post("/v1/anything", map[string]string{"a": "b"}, &out)
	require.NoError(t, err)

	assert.Equal(t, "Bearer my-token", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "yes", out["ok"])
}

func TestAPIClient_NoAuthHeaderWithoutToken(t *testing.T) {
	var sawAuthHeader bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawAuthHeader = r.Header["Authorization"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, testClient(srv, "").del("/v1/anything", nil))
	assert.False(t, sawAuthHeader)
}

func TestAPIClient_DecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(datatypes.ErrorResponse{
			Error:  "effective range overlaps revision 2024-12-12",
			Code:   "revision_overlap",
			Detail: "NPPF already has an open ended revision",
		})
	}))
	defer srv.Close()

	err := testClient(srv, "").get("/v1/documents", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "effective range overlaps")
	assert.Contains(t, err.Error(), "open ended revision")
}

func TestAPIClient_FallsBackToRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	err := testClient(srv, "").get("/v1/search", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestAPIClient_UnreachableServer(t *testing.T) {
	client := &apiClient{
		baseURL: "http://127.0.0.1:1",
		http:    http.DefaultClient,
	}
	err := client.get("/health", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not reach the registry")
}

func TestWSURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		path string
		want string
	}{
		{"http", "http://localhost:12210", "/v1/ingestions/abc/watch", "ws://localhost:12210/v1/ingestions/abc/watch"},
		{"https", "https://registry.example", "/x", "wss://registry.example/x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &apiClient{baseURL: tt.base}
			assert.Equal(t, tt.want, client.wsURL(tt.path))
		})
	}
}

func TestGetRegistryBaseURL_EnvWins(t *testing.T) {
	t.Setenv("WAYMARK_SERVER_URL", "http://override:4444/")
	assert.Equal(t, "http://override:4444", getRegistryBaseURL(),
		"trailing slashes would double up when paths are appended")
}
