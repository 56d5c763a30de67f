package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/giygas/patient-records/atomicfile"
	"github.com/giygas/patient-records/tabulate"
)

// SheetName is the worksheet holding the dataset.
const SheetName = "patients"

// ErrSpreadsheetUnavailable wraps any failure of the optional XLSX export.
var ErrSpreadsheetUnavailable = errors.New("spreadsheet export unavailable")

// WriteXLSX writes ds as a single-sheet workbook. Numeric cells are stored
// as numbers, booleans as booleans and everything else as text.
func WriteXLSX(w io.Writer, ds *tabulate.Dataset) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeSheet(f, ds); err != nil {
		return fmt.Errorf("%w: %w", ErrSpreadsheetUnavailable, err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("%w: %w", ErrSpreadsheetUnavailable, err)
	}
	return nil
}

// SaveXLSX atomically replaces path with the workbook rendering of ds.
func SaveXLSX(path string, ds *tabulate.Dataset) error {
	err := atomicfile.Write(path, filePerm, func(w io.Writer) error {
		return WriteXLSX(w, ds)
	})
	if err != nil {
		if errors.Is(err, ErrSpreadsheetUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrSpreadsheetUnavailable, err)
	}
	return nil
}

func writeSheet(f *excelize.File, ds *tabulate.Dataset) error {
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return err
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return err
	}

	header := make([]any, len(ds.Columns))
	for i, col := range ds.Columns {
		header[i] = col
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	for i, row := range ds.Rows {
		values := make([]any, len(ds.Columns))
		for j, col := range ds.Columns {
			values[j] = sheetValue(row[col])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, values); err != nil {
			return err
		}
	}

	return sw.Flush()
}

func sheetValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case bool, string, float64, int, int64:
		return t
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if n, err := t.Float64(); err == nil {
			return n
		}
	}
	return tabulate.FormatCell(v)
}
