// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command registry starts the Waymark policy registry HTTP server.
//
// This is the main entry point for the containerized registry service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - REGISTRY_PORT: HTTP server port (default: 12210)
//   - WAYMARK_DATA_DIR: root directory for catalog, blobs, and backups (default: ./data)
//   - WAYMARK_DROP_DIR: directory watched for dropped revision files (optional)
//   - WAYMARK_CONSISTENCY_INTERVAL: consistency sweep interval (default: 1h)
//   - WEAVIATE_SERVICE_URL: vector index URL (default: http://localhost:8080)
//   - EMBEDDING_BACKEND: "sidecar" or "openai" (default: sidecar)
//   - EMBEDDING_SERVICE_URL: sidecar embedding endpoint (required for sidecar)
//   - OPENAI_API_KEY: API key for the openai embedding backend
//   - INFLUXDB_URL, INFLUXDB_TOKEN: usage analytics sink (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: localhost:4317)
//
// # Usage
//
//	# Build
//	go build -o registry ./cmd/registry
//
//	# Run
//	./registry
//
//	# Or via container
//	podman-compose up registry
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/AleutianAI/Waymark/services/registry"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := registry.Config{
		Port:                getEnvInt("REGISTRY_PORT", 12210),
		DataDir:             getEnvString("WAYMARK_DATA_DIR", "./data"),
		DropDir:             os.Getenv("WAYMARK_DROP_DIR"),
		ConsistencyInterval: getEnvDuration("WAYMARK_CONSISTENCY_INTERVAL", time.Hour),
		WeaviateURL:         getEnvString("WEAVIATE_SERVICE_URL", "http://localhost:8080"),
	}

	slog.Info("Starting registry",
		"port", cfg.Port,
		"data_dir", cfg.DataDir,
		"weaviate_url", cfg.WeaviateURL,
	)

	// Create the registry with default (no-op) extension options.
	// Enterprise builds pass custom ServiceOptions here.
	svc, err := registry.New(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create registry: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Registry error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
