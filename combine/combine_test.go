package combine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/giygas/patient-records/records"
	"github.com/giygas/patient-records/tabulate"
)

func writePatient(t *testing.T, dataDir, id, content string) {
	t.Helper()
	dir := filepath.Join(dataDir, "patient_"+id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "patient_"+id+".json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testOptions(t *testing.T) Options {
	t.Helper()
	root := t.TempDir()
	opts := Options{
		DataDir:    filepath.Join(root, "data"),
		Pattern:    records.DefaultPattern,
		OutputDir:  filepath.Join(root, "out"),
		OutputName: "combined_patient_data",
		ExportXLSX: true,
		TopMissing: 10,
		Workers:    1,
		Layout:     tabulate.DefaultLayout(),
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return opts
}

func TestRunPartialSuccess(t *testing.T) {
	opts := testOptions(t)
	writePatient(t, opts.DataDir, "001", `{"id": "001", "baseline": {"age": 61}, "cycles": [{"day": 1}, {"day": 22}]}`)
	writePatient(t, opts.DataDir, "002", `{"id": "002", "baseline": {"age": 48}, "cycles": [{"day": 1}]}`)
	writePatient(t, opts.DataDir, "003", `{"id": "003", "cycles": [`)
	if err := os.WriteFile(filepath.Join(opts.DataDir, "notes.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.ExitCode() != ExitPartial {
		t.Errorf("ExitCode() = %d, want %d", res.ExitCode(), ExitPartial)
	}
	if res.RunID == "" {
		t.Error("expected a run id")
	}
	if res.Summary.FilesFound != 3 || res.Summary.FilesProcessed != 2 {
		t.Errorf("files found/processed = %d/%d, want 3/2", res.Summary.FilesFound, res.Summary.FilesProcessed)
	}
	if res.Summary.Rows != 3 || res.Summary.Patients != 2 {
		t.Errorf("rows/patients = %d/%d, want 3/2", res.Summary.Rows, res.Summary.Patients)
	}
	if len(res.Summary.Errors) != 1 || !strings.Contains(res.Summary.Errors[0], "patient_003.json") {
		t.Errorf("unexpected errors %v", res.Summary.Errors)
	}

	content, err := os.ReadFile(res.CSVPath)
	if err != nil {
		t.Fatalf("csv not written: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(strings.TrimPrefix(string(content), "\ufeff"), "\n"), "\n")
	want := []string{
		"patient_id,source_file,baseline_age,day",
		"001,patient_001.json,61,1",
		"001,patient_001.json,61,22",
		"002,patient_002.json,48,1",
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}

	if res.XLSXPath == "" {
		t.Error("expected the spreadsheet to be written")
	} else if _, err := os.Stat(res.XLSXPath); err != nil {
		t.Errorf("spreadsheet missing: %v", err)
	}
}

func TestRunCleanExit(t *testing.T) {
	opts := testOptions(t)
	opts.ExportXLSX = false
	writePatient(t, opts.DataDir, "P1", `{"id": "P1", "cycles": [{"day": 1}]}`)

	res, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.ExitCode() != ExitOK {
		t.Errorf("ExitCode() = %d, want %d", res.ExitCode(), ExitOK)
	}
	if res.XLSXPath != "" {
		t.Errorf("spreadsheet should not be written, got %s", res.XLSXPath)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	opts := testOptions(t)
	opts.ExportXLSX = false
	writePatient(t, opts.DataDir, "A", `{"id": "A", "baseline": {"x": 1.50}, "cycles": [{"side_effects": ["a", "b"]}]}`)
	writePatient(t, opts.DataDir, "B", `{"id": "B", "final": {"outcome": "ok"}}`)

	first, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	firstBytes, _ := os.ReadFile(first.CSVPath)

	second, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	secondBytes, _ := os.ReadFile(second.CSVPath)

	if !bytes.Equal(firstBytes, secondBytes) {
		t.Errorf("outputs differ:\n%s\n---\n%s", firstBytes, secondBytes)
	}
	if first.RunID == second.RunID {
		t.Error("each run should get its own id")
	}
}

func TestRunSpreadsheetFailureIsWarning(t *testing.T) {
	opts := testOptions(t)
	writePatient(t, opts.DataDir, "P1", `{"id": "P1"}`)
	if err := os.MkdirAll(filepath.Join(opts.OutputDir, opts.OutputName+".xlsx", "occupied"), 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.XLSXPath != "" {
		t.Errorf("XLSXPath = %s, want empty", res.XLSXPath)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "spreadsheet export unavailable") {
		t.Errorf("unexpected warnings %v", res.Warnings)
	}
	if res.ExitCode() != ExitOK {
		t.Errorf("a spreadsheet failure should not change the exit code, got %d", res.ExitCode())
	}
}

func TestRunFatalErrors(t *testing.T) {
	t.Run("missing data directory", func(t *testing.T) {
		opts := testOptions(t)
		opts.DataDir = filepath.Join(opts.DataDir, "nope")
		if _, err := Run(context.Background(), opts); !errors.Is(err, ErrMissingInputDirectory) {
			t.Errorf("expected ErrMissingInputDirectory, got %v", err)
		}
	})

	t.Run("data directory is a file", func(t *testing.T) {
		opts := testOptions(t)
		file := filepath.Join(opts.DataDir, "file")
		_ = os.WriteFile(file, nil, 0o644)
		opts.DataDir = file
		if _, err := Run(context.Background(), opts); !errors.Is(err, ErrMissingInputDirectory) {
			t.Errorf("expected ErrMissingInputDirectory, got %v", err)
		}
	})

	t.Run("no matching files", func(t *testing.T) {
		opts := testOptions(t)
		_ = os.WriteFile(filepath.Join(opts.DataDir, "patient_1.json"), []byte(`{"id": "1"}`), 0o644)
		if _, err := Run(context.Background(), opts); !errors.Is(err, ErrNoMatchingFiles) {
			t.Errorf("expected ErrNoMatchingFiles, got %v", err)
		}
	})

	t.Run("no rows", func(t *testing.T) {
		opts := testOptions(t)
		writePatient(t, opts.DataDir, "X", `[]`)
		_, err := Run(context.Background(), opts)
		if !errors.Is(err, tabulate.ErrNoRows) {
			t.Fatalf("expected ErrNoRows, got %v", err)
		}
		for _, part := range []string{"1 of 1 files failed", "error processing patient_X.json"} {
			if !strings.Contains(err.Error(), part) {
				t.Errorf("error %q should mention %q", err.Error(), part)
			}
		}
		if _, err := os.Stat(filepath.Join(opts.OutputDir, opts.OutputName+".csv")); !os.IsNotExist(err) {
			t.Errorf("no csv should be written on a fatal error, stat err = %v", err)
		}
	})
}

func TestPrintSummary(t *testing.T) {
	res := &Result{
		RunID:    "run-1",
		CSVPath:  "out/combined.csv",
		XLSXPath: "out/combined.xlsx",
		Dataset:  &tabulate.Dataset{},
		Summary: tabulate.Summary{
			FilesFound:           3,
			FilesProcessed:       2,
			Rows:                 4,
			Columns:              6,
			Patients:             2,
			RecordsWithoutCycles: 1,
			TopMissing:           []tabulate.MissingColumn{{Column: "lab_hb", Missing: 3, Percent: 75}},
			DuplicateIDs:         []tabulate.DuplicateID{{ID: "P1", Sources: []string{"a.json", "b.json"}}},
			Errors:               []string{"error processing c.json: malformed record"},
		},
	}

	var buf bytes.Buffer
	if err := PrintSummary(&buf, res); err != nil {
		t.Fatalf("PrintSummary failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Found 3 patient files, processed 2",
		"CSV file saved: out/combined.csv",
		"Total rows: 4",
		"Total columns: 6",
		"Excel file saved: out/combined.xlsx",
		"Unique patients: 2",
		"Records without cycles: 1",
		"Duplicate patient id P1 in: a.json, b.json",
		"- lab_hb: 3 (75.0%)",
		"1 errors occurred during processing",
		"error processing c.json",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestPrintSummaryNoNulls(t *testing.T) {
	res := &Result{Dataset: &tabulate.Dataset{}, Summary: tabulate.Summary{TopMissing: []tabulate.MissingColumn{}}}

	var buf bytes.Buffer
	_ = PrintSummary(&buf, res)
	if !strings.Contains(buf.String(), "No null values!") {
		t.Errorf("expected no-null notice:\n%s", buf.String())
	}
}
