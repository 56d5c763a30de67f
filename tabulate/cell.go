package tabulate

import "github.com/giygas/patient-records/flatten"

// FormatCell renders a flattened value as cell text. Absent and null values
// render as the empty string.
func FormatCell(v any) string {
	return flatten.Format(v)
}
