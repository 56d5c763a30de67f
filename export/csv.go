// Package export writes a tabulated dataset to CSV and XLSX files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/giygas/patient-records/atomicfile"
	"github.com/giygas/patient-records/tabulate"
)

const filePerm = 0o644

// WriteCSV writes ds as UTF-8 CSV with a byte order mark: one header row of
// the dataset columns, then one line per row. Missing cells are empty.
func WriteCSV(w io.Writer, ds *tabulate.Dataset) error {
	bom := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	cw := csv.NewWriter(bom)

	if err := cw.Write(ds.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(ds.Columns))
	for i, row := range ds.Rows {
		for j, col := range ds.Columns {
			record[j] = tabulate.FormatCell(row[col])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return bom.Close()
}

// SaveCSV atomically replaces path with the CSV rendering of ds.
func SaveCSV(path string, ds *tabulate.Dataset) error {
	err := atomicfile.Write(path, filePerm, func(w io.Writer) error {
		return WriteCSV(w, ds)
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
