package combine

import (
	"fmt"
	"io"
	"strings"
)

// PrintSummary writes the human-readable report of res to w.
func PrintSummary(w io.Writer, res *Result) error {
	s := res.Summary
	var b strings.Builder

	fmt.Fprintf(&b, "Run %s\n", res.RunID)
	fmt.Fprintf(&b, "Found %d patient files, processed %d\n\n", s.FilesFound, s.FilesProcessed)

	fmt.Fprintf(&b, "CSV file saved: %s\n", res.CSVPath)
	fmt.Fprintf(&b, "   Total rows: %d\n", s.Rows)
	fmt.Fprintf(&b, "   Total columns: %d\n", s.Columns)
	if res.XLSXPath != "" {
		fmt.Fprintf(&b, "Excel file saved: %s\n", res.XLSXPath)
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(&b, "Warning: %s\n", warning)
	}

	b.WriteString("\nSummary:\n")
	fmt.Fprintf(&b, "   Unique patients: %d\n", s.Patients)
	fmt.Fprintf(&b, "   Treatment cycle records: %d\n", s.Rows)
	if s.RecordsWithoutCycles > 0 {
		fmt.Fprintf(&b, "   Records without cycles: %d\n", s.RecordsWithoutCycles)
	}
	for _, dup := range s.DuplicateIDs {
		fmt.Fprintf(&b, "   Duplicate patient id %s in: %s\n", dup.ID, strings.Join(dup.Sources, ", "))
	}

	b.WriteString("   Null values per column:\n")
	if len(s.TopMissing) == 0 {
		b.WriteString("     No null values!\n")
	}
	for _, m := range s.TopMissing {
		fmt.Fprintf(&b, "     - %s: %d (%.1f%%)\n", m.Column, m.Missing, m.Percent)
	}

	if len(s.Errors) > 0 {
		fmt.Fprintf(&b, "\n%d errors occurred during processing\n", len(s.Errors))
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "   - %s\n", e)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
