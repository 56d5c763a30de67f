package tabulate

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/giygas/patient-records/flatten"
	"github.com/giygas/patient-records/logging"
	"github.com/giygas/patient-records/records"
)

// RecordInfo describes one successfully tabulated record.
type RecordInfo struct {
	ID     string
	Source string
	Cycles int
}

// Dataset is the union of all rows produced by a run.
type Dataset struct {
	Columns        []string
	Rows           []Row
	Records        []RecordInfo
	FilesFound     int
	FilesProcessed int
	Errors         []*FileError
}

// Tabulator turns a set of record files into one Dataset.
type Tabulator struct {
	Layout Layout

	// Workers bounds how many files are read and expanded concurrently.
	// Values below 2 process files sequentially. Output is identical
	// either way.
	Workers int

	// Load reads one record file. Defaults to records.Load.
	Load func(path string) (records.Document, error)
}

// NewTabulator returns a sequential tabulator for layout.
func NewTabulator(layout Layout) *Tabulator {
	return &Tabulator{Layout: layout, Workers: 1, Load: records.Load}
}

type fileResult struct {
	rows []Row
	info RecordInfo
	err  error
}

// Run tabulates files in lexicographic path order. A failing file is
// recorded in Dataset.Errors and skipped. Run returns ErrNoRows, together
// with the dataset holding the per-file errors, when nothing was extracted.
func (t *Tabulator) Run(ctx context.Context, files []string) (*Dataset, error) {
	ordered := append([]string(nil), files...)
	sort.Strings(ordered)

	results, err := t.processAll(ctx, ordered)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{FilesFound: len(ordered)}
	seen := make(map[string]struct{})

	for i, res := range results {
		if res.err != nil {
			fe := &FileError{Path: ordered[i], Err: res.err}
			logging.Warn("Skipping record file", "file", filepath.Base(ordered[i]), "error", res.err)
			ds.Errors = append(ds.Errors, fe)
			continue
		}

		ds.FilesProcessed++
		ds.Records = append(ds.Records, res.info)
		for _, row := range res.rows {
			for col := range row {
				seen[col] = struct{}{}
			}
		}
		ds.Rows = append(ds.Rows, res.rows...)
	}

	if len(ds.Rows) == 0 {
		return ds, ErrNoRows
	}

	cols := make([]string, 0, len(seen))
	for col := range seen {
		cols = append(cols, col)
	}
	ds.Columns = OrderColumns(cols, t.Layout.BaselinePrefix, t.Layout.FinalPrefix)

	return ds, nil
}

func (t *Tabulator) processAll(ctx context.Context, files []string) ([]fileResult, error) {
	results := make([]fileResult, len(files))

	if t.Workers < 2 {
		for i, path := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results[i] = t.processFile(path)
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.Workers)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = t.processFile(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (t *Tabulator) processFile(path string) fileResult {
	load := t.Load
	if load == nil {
		load = records.Load
	}

	logging.Debug("Processing record file", "file", filepath.Base(path))

	doc, err := load(path)
	if err != nil {
		return fileResult{err: err}
	}

	source := filepath.Base(path)
	rows, err := t.Layout.ExpandRecord(doc, source)
	if err != nil {
		return fileResult{err: err}
	}

	id, _ := t.Layout.RecordID(doc)
	cycles, _ := t.Layout.cycles(doc)
	return fileResult{
		rows: rows,
		info: RecordInfo{
			ID:     id,
			Source: source,
			Cycles: len(cycles),
		},
	}
}

// OrderColumns sorts columns as: identifier columns, baseline columns,
// every other column, followup columns. Each group is in byte order.
func OrderColumns(cols []string, baselinePrefix, finalPrefix string) []string {
	var baseline, middle, final []string
	hasID, hasSource := false, false

	for _, c := range cols {
		switch {
		case c == IDColumn:
			hasID = true
		case c == SourceColumn:
			hasSource = true
		case baselinePrefix != "" && strings.HasPrefix(c, baselinePrefix+flatten.Separator):
			baseline = append(baseline, c)
		case finalPrefix != "" && strings.HasPrefix(c, finalPrefix+flatten.Separator):
			final = append(final, c)
		default:
			middle = append(middle, c)
		}
	}

	sort.Strings(baseline)
	sort.Strings(middle)
	sort.Strings(final)

	ordered := make([]string, 0, len(cols))
	if hasID {
		ordered = append(ordered, IDColumn)
	}
	if hasSource {
		ordered = append(ordered, SourceColumn)
	}
	ordered = append(ordered, baseline...)
	ordered = append(ordered, middle...)
	return append(ordered, final...)
}
