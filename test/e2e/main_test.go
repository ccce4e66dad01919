// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// End-to-end tests for the waymark CLI against a live registry stack.
//
// These build the real binary and exec it, so they cover flag parsing,
// config layering, and output rendering on top of the HTTP API. Set
// RUN_E2E_TESTS=1 and point WAYMARK_SERVER_URL at a running registry
// (default http://localhost:12210) with its Weaviate and embedding
// sidecar up.

package e2e

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

var (
	cliBinary string

	// fakeHome keeps the exec'd CLI's first-run config file out of the
	// developer's real ~/.waymark.
	fakeHome string
)

func TestMain(m *testing.M) {
	if os.Getenv("RUN_E2E_TESTS") == "" {
		fmt.Println("Set RUN_E2E_TESTS=1 to run the CLI end-to-end tests")
		os.Exit(0)
	}

	// 1. Build the binary
	cwd, _ := os.Getwd()
	cliBinary = filepath.Join(cwd, "waymark_e2e")

	cmd := exec.Command("go", "build", "-o", cliBinary, "../../cmd/waymark")
	if out, err := cmd.CombinedOutput(); err != nil {
		fmt.Printf("Failed to build CLI: %v\n%s\n", err, out)
		os.Exit(1)
	}

	home, err := os.MkdirTemp("", "waymark-e2e-home-")
	if err != nil {
		fmt.Printf("Failed to create temp home: %v\n", err)
		os.Exit(1)
	}
	fakeHome = home

	// 2. Run tests
	exitCode := m.Run()

	// 3. Cleanup
	os.Remove(cliBinary)
	os.RemoveAll(fakeHome)
	os.Exit(exitCode)
}

// serverURL is where the CLI under test is pointed.
func serverURL() string {
	if url := os.Getenv("WAYMARK_SERVER_URL"); url != "" {
		return url
	}
	return "http://localhost:12210"
}

// runCLI execs the built binary with a pinned environment and returns
// the combined output. Machine output mode keeps assertions free of
// styling.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := exec.Command(cliBinary, args...)
	cmd.Env = append(os.Environ(),
		"HOME="+fakeHome,
		"WAYMARK_SERVER_URL="+serverURL(),
		"WAYMARK_OUTPUT=machine",
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}
