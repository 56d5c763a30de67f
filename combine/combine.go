// Package combine runs one batch: discover record files, tabulate them,
// export the dataset and report a summary.
package combine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/giygas/patient-records/config"
	"github.com/giygas/patient-records/export"
	"github.com/giygas/patient-records/logging"
	"github.com/giygas/patient-records/metrics"
	"github.com/giygas/patient-records/records"
	"github.com/giygas/patient-records/tabulate"
)

// Process exit statuses of a combine run.
const (
	ExitOK      = 0
	ExitFatal   = 1
	ExitPartial = 2
)

var (
	// ErrMissingInputDirectory is returned when the data directory does not
	// exist or is not a directory.
	ErrMissingInputDirectory = errors.New("data directory not found")

	// ErrNoMatchingFiles is returned when the data directory holds no file
	// matching the record pattern.
	ErrNoMatchingFiles = errors.New("no patient record files found")
)

// Options controls a run.
type Options struct {
	DataDir    string
	Pattern    string
	OutputDir  string
	OutputName string
	ExportXLSX bool
	TopMissing int
	Workers    int
	Layout     tabulate.Layout
}

// OptionsFromConfig maps the batch section of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DataDir:    cfg.DataDir,
		Pattern:    cfg.FilePattern,
		OutputDir:  cfg.OutputDir,
		OutputName: cfg.OutputName,
		ExportXLSX: cfg.ExportXLSX,
		TopMissing: cfg.TopMissing,
		Workers:    cfg.Workers,
		Layout:     tabulate.DefaultLayout(),
	}
}

func (o Options) csvPath() string {
	return filepath.Join(o.OutputDir, o.OutputName+".csv")
}

func (o Options) xlsxPath() string {
	return filepath.Join(o.OutputDir, o.OutputName+".xlsx")
}

// Result is the outcome of a run that produced a dataset.
type Result struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Dataset   *tabulate.Dataset
	Summary   tabulate.Summary
	CSVPath   string
	XLSXPath  string // empty when the spreadsheet was not written
	Warnings  []string
}

// ExitCode is ExitPartial when any record file was skipped.
func (r *Result) ExitCode() int {
	if len(r.Dataset.Errors) > 0 {
		return ExitPartial
	}
	return ExitOK
}

func (r *Result) status() string {
	if r.ExitCode() == ExitPartial {
		return metrics.StatusPartial
	}
	return metrics.StatusOK
}

// Run performs one combine run. Any returned error is fatal; skipped files
// and a failed spreadsheet export are reported in the Result instead.
func Run(ctx context.Context, opts Options) (res *Result, err error) {
	runID := uuid.NewString()
	started := time.Now()
	log := logging.Logger().With("run_id", runID)

	defer func() {
		stats := metrics.RunStats{
			Status:   metrics.StatusFailed,
			Duration: time.Since(started),
			Finished: time.Now(),
		}
		if res != nil {
			stats.Status = res.status()
			stats.Processed = res.Dataset.FilesProcessed
			stats.Failed = len(res.Dataset.Errors)
			stats.Rows = len(res.Dataset.Rows)
			stats.Columns = len(res.Dataset.Columns)
		}
		metrics.ObserveRun(stats)
	}()

	if info, statErr := os.Stat(opts.DataDir); statErr != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrMissingInputDirectory, opts.DataDir)
	}

	log.Info("Scanning for patient files", "dir", opts.DataDir, "pattern", opts.Pattern)
	files, err := records.Discover(opts.DataDir, opts.Pattern)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoMatchingFiles, opts.DataDir)
	}
	log.Info("Found patient files", "count", len(files))

	tab := tabulate.NewTabulator(opts.Layout)
	tab.Workers = opts.Workers
	ds, err := tab.Run(ctx, files)
	if err != nil {
		if ds != nil && len(ds.Errors) > 0 {
			return nil, withFileErrors(err, ds)
		}
		return nil, err
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	res = &Result{
		RunID:     runID,
		StartedAt: started,
		Dataset:   ds,
		CSVPath:   opts.csvPath(),
	}

	if err := export.SaveCSV(res.CSVPath, ds); err != nil {
		return nil, err
	}
	log.Info("CSV file saved", "path", res.CSVPath, "rows", len(ds.Rows), "columns", len(ds.Columns))

	if opts.ExportXLSX {
		path := opts.xlsxPath()
		if err := export.SaveXLSX(path, ds); err != nil {
			log.Warn("Spreadsheet export skipped", "error", err)
			res.Warnings = append(res.Warnings, err.Error())
		} else {
			res.XLSXPath = path
			log.Info("Spreadsheet saved", "path", path)
		}
	}

	res.Summary = tabulate.Summarize(ds, opts.TopMissing)
	res.Duration = time.Since(started)

	log.Info("Combine run finished",
		"files_found", ds.FilesFound,
		"files_processed", ds.FilesProcessed,
		"errors", len(ds.Errors),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// Runner runs with fixed options. It is what serve mode schedules.
type Runner struct {
	Options Options
}

// Combine runs one batch with the runner's options.
func (r *Runner) Combine(ctx context.Context) (*Result, error) {
	return Run(ctx, r.Options)
}

// withFileErrors appends the per-file failures of ds to err, one per line.
func withFileErrors(err error, ds *tabulate.Dataset) error {
	lines := make([]string, len(ds.Errors))
	for i, fe := range ds.Errors {
		lines[i] = "  - " + fe.Error()
	}
	return fmt.Errorf("%w: %d of %d files failed\n%s",
		err, len(ds.Errors), ds.FilesFound, strings.Join(lines, "\n"))
}
