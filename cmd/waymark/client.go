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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/Waymark/cmd/waymark/config"
	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

// Constants for default connection settings
const (
	DefaultRegistryPort = 12210
	DefaultRegistryHost = "localhost"
)

func getRegistryBaseURL() string {
	// 1. Priority: Environment Variable (Used by Tests & Docker overrides)
	if url := os.Getenv("WAYMARK_SERVER_URL"); url != "" {
		return strings.TrimRight(url, "/")
	}
	// 2. Config file (~/.waymark/waymark.yaml)
	if err := config.Load(); err == nil && config.Global.Server.URL != "" {
		return strings.TrimRight(config.Global.Server.URL, "/")
	}
	// 3. Default: Standard Host/Port
	return fmt.Sprintf("http://%s:%d", DefaultRegistryHost, DefaultRegistryPort)
}

func getAuthToken() string {
	if token := os.Getenv("WAYMARK_AUTH_TOKEN"); token != "" {
		return token
	}
	if err := config.Load(); err == nil {
		return config.Global.Server.AuthToken
	}
	return ""
}

// apiClient wraps the registry HTTP API. Every command talks through it
// so the base URL, auth header, and error envelope are handled once.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient() *apiClient {
	timeout := 30 * time.Second
	if err := config.Load(); err == nil && config.Global.Server.TimeoutS > 0 {
		timeout = time.Duration(config.Global.Server.TimeoutS) * time.Second
	}
	return &apiClient{
		baseURL: getRegistryBaseURL(),
		token:   getAuthToken(),
		http:    &http.Client{Timeout: timeout},
	}
}

// wsURL rewrites the base URL for a websocket endpoint.
func (c *apiClient) wsURL(path string) string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + path
}

func (c *apiClient) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *apiClient) post(path string, body, out any) error {
	return c.do(http.MethodPost, path, body, out)
}

func (c *apiClient) patch(path string, body, out any) error {
	return c.do(http.MethodPatch, path, body, out)
}

func (c *apiClient) del(path string, out any) error {
	return c.do(http.MethodDelete, path, nil, out)
}

func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode the request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build the request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach the registry at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read the response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode the response: %w", err)
	}
	return nil
}

// decodeAPIError turns the registry's error envelope into a readable
// error, falling back to the raw body when the envelope is absent.
func decodeAPIError(status int, raw []byte) error {
	var envelope datatypes.ErrorResponse
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != "" {
		if envelope.Detail != "" {
			return fmt.Errorf("%s (%s)", envelope.Error, envelope.Detail)
		}
		return fmt.Errorf("%s", envelope.Error)
	}
	return fmt.Errorf("the registry returned HTTP %d: %s", status, strings.TrimSpace(string(raw)))
}
