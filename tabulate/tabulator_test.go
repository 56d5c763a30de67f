package tabulate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/giygas/patient-records/records"
)

func writeRecords(t *testing.T, files map[string]string) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
		paths = append(paths, path)
	}
	return paths
}

func TestRunScenarioColumns(t *testing.T) {
	paths := writeRecords(t, map[string]string{"patient_P1.json": scenarioRecord})

	ds, err := NewTabulator(DefaultLayout()).Run(context.Background(), paths)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	wantCols := []string{
		"patient_id", "source_file", "baseline_age", "day",
		"medications_doses", "medications_names", "medications_units",
		"followup_outcome",
	}
	if diff := cmp.Diff(wantCols, ds.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if len(ds.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(ds.Rows))
	}
	if ds.FilesFound != 1 || ds.FilesProcessed != 1 {
		t.Errorf("files found/processed = %d/%d, want 1/1", ds.FilesFound, ds.FilesProcessed)
	}
	if got := FormatCell(ds.Rows[1]["medications_names"]); got != "" {
		t.Errorf("second row medications_names = %q, want empty", got)
	}
}

func TestRunSkipsMalformedFile(t *testing.T) {
	paths := writeRecords(t, map[string]string{
		"a.json": `{"id": "A", "cycles": [{"day": 1}, {"day": 2}]}`,
		"b.json": `{"id": "B", "cycles": [{"day": 1}]`,
		"c.json": `{"id": "C"}`,
	})

	ds, err := NewTabulator(DefaultLayout()).Run(context.Background(), paths)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(ds.Rows) != 3 {
		t.Errorf("expected 3 rows, got %d", len(ds.Rows))
	}
	if ds.FilesFound != 3 || ds.FilesProcessed != 2 {
		t.Errorf("files found/processed = %d/%d, want 3/2", ds.FilesFound, ds.FilesProcessed)
	}
	if len(ds.Errors) != 1 {
		t.Fatalf("expected 1 file error, got %d", len(ds.Errors))
	}

	fe := ds.Errors[0]
	if filepath.Base(fe.Path) != "b.json" {
		t.Errorf("error path = %s, want b.json", fe.Path)
	}
	if !errors.Is(fe, ErrMalformedRecord) {
		t.Errorf("file error should match ErrMalformedRecord: %v", fe)
	}
	if !strings.HasPrefix(fe.Error(), "error processing b.json: ") {
		t.Errorf("unexpected error message %q", fe.Error())
	}
}

func TestRunRowOrder(t *testing.T) {
	paths := writeRecords(t, map[string]string{
		"patient_2.json":  `{"id": "2", "cycles": [{"day": 1}, {"day": 2}]}`,
		"patient_10.json": `{"id": "10", "cycles": [{"day": 1}]}`,
		"patient_1.json":  `{"id": "1"}`,
	})

	ds, err := NewTabulator(DefaultLayout()).Run(context.Background(), paths)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var got []string
	for _, row := range ds.Rows {
		got = append(got, row[SourceColumn].(string)+"/"+FormatCell(row["day"]))
	}
	want := []string{
		"patient_1.json/",
		"patient_10.json/1",
		"patient_2.json/1",
		"patient_2.json/2",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("row order mismatch (-want +got):\n%s", diff)
	}
}

func TestRunWorkersMatchSequential(t *testing.T) {
	files := make(map[string]string)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		files["patient_"+id+".json"] = `{"id": "` + id + `", "baseline": {"arm": "` + id + `"},
			"cycles": [{"day": 1, "side_effects": ["x"]}, {"day": 2, "laboratory": {"hb": 12}}]}`
	}
	files["patient_bad.json"] = `{"cycles": []}`
	paths := writeRecords(t, files)

	sequential, err := NewTabulator(DefaultLayout()).Run(context.Background(), paths)
	if err != nil {
		t.Fatalf("sequential Run failed: %v", err)
	}

	parallel := NewTabulator(DefaultLayout())
	parallel.Workers = 4
	got, err := parallel.Run(context.Background(), paths)
	if err != nil {
		t.Fatalf("parallel Run failed: %v", err)
	}

	if diff := cmp.Diff(sequential.Columns, got.Columns); diff != "" {
		t.Errorf("parallel columns differ (-sequential +parallel):\n%s", diff)
	}
	if diff := cmp.Diff(sequential.Rows, got.Rows); diff != "" {
		t.Errorf("parallel rows differ (-sequential +parallel):\n%s", diff)
	}
	if diff := cmp.Diff(sequential.Records, got.Records); diff != "" {
		t.Errorf("parallel records differ (-sequential +parallel):\n%s", diff)
	}
	if len(got.Errors) != 1 || got.Errors[0].Error() != sequential.Errors[0].Error() {
		t.Errorf("parallel errors differ: %v vs %v", got.Errors, sequential.Errors)
	}
}

func TestRunNoRows(t *testing.T) {
	paths := writeRecords(t, map[string]string{
		"a.json": `not json`,
		"b.json": `{"baseline": {}}`,
	})

	ds, err := NewTabulator(DefaultLayout()).Run(context.Background(), paths)
	if !errors.Is(err, ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
	if ds == nil || len(ds.Errors) != 2 {
		t.Fatalf("expected the dataset to carry 2 file errors, got %+v", ds)
	}
}

func TestRunCustomLoader(t *testing.T) {
	tab := NewTabulator(DefaultLayout())
	tab.Load = func(path string) (records.Document, error) {
		return records.Document{"id": strings.TrimSuffix(path, ".json")}, nil
	}

	ds, err := tab.Run(context.Background(), []string{"y.json", "x.json"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if ds.Rows[0][IDColumn] != "x" || ds.Rows[1][IDColumn] != "y" {
		t.Errorf("unexpected ids: %v, %v", ds.Rows[0][IDColumn], ds.Rows[1][IDColumn])
	}
	if ds.Records[0].Cycles != 0 {
		t.Errorf("Cycles = %d, want 0", ds.Records[0].Cycles)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, workers := range []int{1, 3} {
		tab := NewTabulator(DefaultLayout())
		tab.Workers = workers
		tab.Load = func(string) (records.Document, error) {
			return records.Document{"id": "x"}, nil
		}
		if _, err := tab.Run(ctx, []string{"a", "b", "c"}); !errors.Is(err, context.Canceled) {
			t.Errorf("workers=%d: expected context.Canceled, got %v", workers, err)
		}
	}
}

func TestOrderColumns(t *testing.T) {
	testCases := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "groups",
			in:   []string{"followup_b", "lab_hb", "baseline_z", "source_file", "day", "baseline_a", "patient_id", "followup_a"},
			want: []string{"patient_id", "source_file", "baseline_a", "baseline_z", "day", "lab_hb", "followup_a", "followup_b"},
		},
		{
			name: "prefix must be followed by separator",
			in:   []string{"baselineish", "followupdate", "baseline_x"},
			want: []string{"baseline_x", "baselineish", "followupdate"},
		},
		{
			name: "no identifier columns",
			in:   []string{"b", "a"},
			want: []string{"a", "b"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := OrderColumns(tc.in, "baseline", "followup")
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("OrderColumns mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
