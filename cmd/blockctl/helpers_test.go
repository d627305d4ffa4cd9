package main

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/joshuapare/blockmem/internal/config"
	"github.com/joshuapare/blockmem/internal/format"
)

// useSmallConfig resets global flags and installs a config with small
// chunks and pools so commands run quickly.
func useSmallConfig(t *testing.T) {
	t.Helper()
	prev := cfg
	t.Cleanup(func() { cfg = prev })

	cfg = config.Default()
	cfg.Allocator.ChunkSize = config.ByteSize(format.Megabyte)
	cfg.Allocator.PoolBudget = config.ByteSize(64 * format.Kilobyte)

	verbose, quiet, jsonOut, configPath = false, false, false, ""
	stressWorkers, stressOps, stressHold, stressSeed = 0, 0, 0, 0
	stressMinSize, stressMaxSize = "", ""
	stressRelease = -1
	stressTimeout = 0
	stressFlush, stressReport, stressMetrics = true, false, false
	infoSample = nil
}

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan struct{})
	var buf bytes.Buffer
	go func() {
		_, _ = buf.ReadFrom(r)
		close(done)
	}()

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout
	<-done

	return buf.String(), fnErr
}

// assertJSON checks that output is valid JSON and decodes it into v.
func assertJSON(t *testing.T, output string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(output), v); err != nil {
		t.Fatalf("output is not valid JSON: %v\nOutput: %s", err, output)
	}
}

// assertContains checks that output contains all expected strings
func assertContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, exp := range expected {
		if !strings.Contains(output, exp) {
			t.Errorf("output missing %q\nOutput: %s", exp, output)
		}
	}
}
