// Package testutil builds on-disk benchmark and observability fixtures for the
// bench/ package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ChuDinhKlopp/moe-offloading/bench/runkey"
)

// PreemptionsBody returns a metric file body holding one preemption count.
func PreemptionsBody(val string) string {
	return "metric,val\nsum(vllm:num_preemptions_total)," + val + "\n"
}

// LogDirs creates <root>/bench and <root>/observability and returns their paths.
func LogDirs(t *testing.T, root string) (benchDir, obsDir string) {
	t.Helper()
	benchDir = filepath.Join(root, "bench")
	obsDir = filepath.Join(root, "observability")
	for _, d := range []string{benchDir, obsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("creating %s: %v", d, err)
		}
	}
	return benchDir, obsDir
}

// WriteObservabilityFile writes <dir>/<obs name>.csv with body and returns its path.
func WriteObservabilityFile(t *testing.T, dir string, n runkey.RunName, body string) string {
	t.Helper()
	return WriteFile(t, dir, runkey.Observability.Encode(n)+".csv", body)
}

// WriteReportFolder creates <dir>/<report name>/ holding files (name -> content)
// and returns the folder path. A nil files map leaves the folder empty.
func WriteReportFolder(t *testing.T, dir string, n runkey.RunName, files map[string]string) string {
	t.Helper()
	folder := filepath.Join(dir, runkey.Benchmark.Encode(n))
	if err := os.MkdirAll(folder, 0o755); err != nil {
		t.Fatalf("creating %s: %v", folder, err)
	}
	for name, content := range files {
		WriteFile(t, folder, name, content)
	}
	return folder
}

// WriteFile writes content to dir/name and returns the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// Run builds a RunName with the given key and ep1/off0.
func Run(model string, in, out, tp, dp, con int) runkey.RunName {
	return runkey.RunName{
		Key: runkey.ConfigKey{
			Model: model, InputLen: in, OutputLen: out,
			TPSize: tp, DPSize: dp, Concurrency: con,
		},
		ExpertParallel: 1,
	}
}
