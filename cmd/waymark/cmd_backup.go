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
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/Waymark/cmd/waymark/config"
	"github.com/AleutianAI/Waymark/cmd/waymark/gcs"
	"github.com/AleutianAI/Waymark/pkg/ux"
)

// backupResponse mirrors the admin backup endpoint's body.
type backupResponse struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	CreatedAt string `json:"created_at"`
}

func runBackup(cmd *cobra.Command, args []string) {
	client := newAPIClient()

	var resp backupResponse
	err := ux.WithSpinner("Writing a registry backup", func() error {
		return client.post("/v1/admin/backup", nil, &resp)
	})
	if err != nil {
		log.Fatalf("Error creating backup: %v", err)
	}
	ux.Success(fmt.Sprintf("Backup written to %s (%s)", resp.Path, humanBytes(resp.SizeBytes)))

	archivePath := resp.Path
	if backupDir != "" {
		copied, err := copyBackupLocal(resp.Path, backupDir)
		if err != nil {
			log.Fatalf("Error copying backup: %v", err)
		}
		ux.Success("Copied to " + copied)
		archivePath = copied
	}

	if err := maybeUploadToGCS(archivePath); err != nil {
		log.Fatalf("Error uploading backup: %v", err)
	}
}

// copyBackupLocal copies the archive the server wrote into dir. The
// registry and the CLI share a filesystem on a standard single box
// install, which is what makes this a copy rather than a download.
func copyBackupLocal(archivePath, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	src, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("cannot open the archive the server reported. "+
			"If the registry runs on another host, copy %s from there instead: %w", archivePath, err)
	}
	defer src.Close()

	destPath := filepath.Join(dir, filepath.Base(archivePath))
	dest, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		return "", fmt.Errorf("failed to copy the archive: %w", err)
	}
	return destPath, nil
}

// maybeUploadToGCS pushes the archive offsite when a bucket is
// configured, via flags first and the config file second.
func maybeUploadToGCS(archivePath string) error {
	bucket, project, keyPath := gcsBucket, gcsProject, gcsKeyPath
	if bucket == "" {
		if err := config.Load(); err == nil {
			bucket = config.Global.GCS.BucketName
			project = config.Global.GCS.ProjectId
			keyPath = config.Global.GCS.SAKeyPath
		}
	}
	if bucket == "" {
		return nil
	}
	if keyPath == "" {
		return fmt.Errorf("a GCS upload needs --gcs-key or gcs.sa_key_path in the config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	client, err := gcs.NewClient(ctx, project, bucket, keyPath)
	if err != nil {
		return err
	}
	defer client.Close()

	return client.UploadBackup(ctx, archivePath)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
