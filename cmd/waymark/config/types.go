// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

type WaymarkConfig struct {
	// Server: where the registry listens and how to authenticate
	Server ServerConfig `yaml:"server"`

	// GCS: optional offsite destination for backup uploads
	GCS GCSConfig `yaml:"gcs"`

	// Output: terminal rendering preferences
	Output OutputConfig `yaml:"output"`
}

type ServerConfig struct {
	URL       string `yaml:"url"`                  // e.g. http://localhost:12210
	AuthToken string `yaml:"auth_token,omitempty"` // sent as a Bearer token when set
	TimeoutS  int    `yaml:"timeout_seconds"`      // per-request HTTP timeout
}

type GCSConfig struct {
	ProjectId  string `yaml:"project_id,omitempty"`
	BucketName string `yaml:"bucket_name,omitempty"`
	SAKeyPath  string `yaml:"sa_key_path,omitempty"` // service account key file
}

type OutputConfig struct {
	// Mode can be "auto", "interactive", or "plain".
	Mode string `yaml:"mode"`
}

func DefaultConfig() WaymarkConfig {
	return WaymarkConfig{
		Server: ServerConfig{
			URL:      "http://localhost:12210",
			TimeoutS: 30,
		},
		GCS: GCSConfig{},
		Output: OutputConfig{
			Mode: "auto",
		},
	}
}
