package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeRecord(t *testing.T, dataDir, id, content string) {
	t.Helper()
	dir := filepath.Join(dataDir, "patient_"+id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "patient_"+id+".json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func setupEnv(t *testing.T) (dataDir, outDir string) {
	t.Helper()
	dataDir = t.TempDir()
	outDir = t.TempDir()
	t.Setenv("ENV", "test")
	t.Setenv("LOG_DIR", t.TempDir())
	t.Setenv("DATA_DIR", filepath.Join(dataDir, "unused"))
	t.Setenv("OUTPUT_DIR", outDir)
	return dataDir, outDir
}

func TestRunCombine(t *testing.T) {
	dataDir, outDir := setupEnv(t)
	writeRecord(t, dataDir, "P1", `{"id": "P1", "baseline": {"age": 30}, "cycles": [{"day": 1}, {"day": 2}]}`)
	writeRecord(t, dataDir, "P2", `{"id": "P2", "cycles": []}`)

	var stdout, stderr bytes.Buffer
	code := run([]string{"combine", "--data-dir", dataDir, "--output-name", "cohort", "--no-xlsx"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}

	csv, err := os.ReadFile(filepath.Join(outDir, "cohort.csv"))
	if err != nil {
		t.Fatalf("expected CSV output: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(string(csv)), "\n"); len(lines) != 4 {
		t.Errorf("expected header and 3 rows, got %d lines", len(lines))
	}
	if _, err := os.Stat(filepath.Join(outDir, "cohort.xlsx")); !os.IsNotExist(err) {
		t.Errorf("--no-xlsx should skip the spreadsheet, stat err = %v", err)
	}
	if stdout.Len() == 0 {
		t.Error("expected a summary on stdout")
	}
}

func TestRunCombinePartial(t *testing.T) {
	dataDir, _ := setupEnv(t)
	writeRecord(t, dataDir, "A", `{"id": "A", "cycles": [{"day": 1}]}`)
	writeRecord(t, dataDir, "B", `{"id": "B", "cycles": [`)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"combine", "--data-dir", dataDir, "--no-xlsx"}, &stdout, &stderr); code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
	if strings.Contains(stderr.String(), "Error:") {
		t.Errorf("partial success should not print an error line: %s", stderr.String())
	}
}

func TestRunCombineFatal(t *testing.T) {
	dataDir, _ := setupEnv(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{"combine", "--data-dir", filepath.Join(dataDir, "missing")}, &stdout, &stderr)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "Error:") {
		t.Errorf("expected an error message, got %q", stderr.String())
	}
}

func TestRunInvalidFlag(t *testing.T) {
	setupEnv(t)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"combine", "--workers", "0"}, &stdout, &stderr); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}
