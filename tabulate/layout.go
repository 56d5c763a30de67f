// Package tabulate expands per-subject records into flat rows and assembles
// them into one dataset with a deterministic column order.
package tabulate

import (
	"fmt"

	"github.com/giygas/patient-records/flatten"
	"github.com/giygas/patient-records/records"
)

// Identifier columns lead every row.
const (
	IDColumn     = "patient_id"
	SourceColumn = "source_file"
)

// Layout describes where a record keeps its sections and how each section
// is prefixed once flattened. Section keys are tried in order; the first
// one present in a record wins.
type Layout struct {
	IDKeys       []string
	BaselineKeys []string
	CycleKeys    []string
	FinalKeys    []string

	BaselinePrefix string
	CyclePrefix    string
	FinalPrefix    string

	// NestedFields maps a cycle field holding a mapping to the sub-prefix
	// its flattened keys are emitted under.
	NestedFields map[string]string

	// ObjectListAttrs lists the attributes collected from each item of a
	// cycle field holding a list of mappings. Fields not listed collect the
	// sorted union of their items' keys.
	ObjectListAttrs map[string][]string
}

// DefaultLayout matches both the current record schema and the older
// patient_id / baseline_data / treatment_cycles / final_followup one.
func DefaultLayout() Layout {
	return Layout{
		IDKeys:         []string{"id", "patient_id", "study_id"},
		BaselineKeys:   []string{"baseline", "baseline_data"},
		CycleKeys:      []string{"cycles", "treatment_cycles"},
		FinalKeys:      []string{"final", "final_followup"},
		BaselinePrefix: "baseline",
		CyclePrefix:    "",
		FinalPrefix:    "followup",
		NestedFields: map[string]string{
			"laboratory": "lab",
		},
		ObjectListAttrs: map[string][]string{
			"medications": {"name", "dose", "unit"},
		},
	}
}

// RecordID returns the identifier of doc as text.
func (l Layout) RecordID(doc records.Document) (string, error) {
	for _, key := range l.IDKeys {
		v, ok := doc[key]
		if !ok || v == nil {
			continue
		}
		switch id := v.(type) {
		case string:
			if id != "" {
				return id, nil
			}
		case map[string]any, []any:
			return "", fmt.Errorf("%w: identifier %q is not a scalar", ErrMalformedRecord, key)
		default:
			return FormatCell(id), nil
		}
	}
	return "", fmt.Errorf("%w: missing identifier (tried %v)", ErrMalformedRecord, l.IDKeys)
}

func (l Layout) section(doc records.Document, keys []string) (map[string]any, error) {
	for _, key := range keys {
		v, ok := doc[key]
		if !ok || v == nil {
			continue
		}
		m, isMap := v.(map[string]any)
		if !isMap {
			return nil, fmt.Errorf("%w: section %q is %s, want object", ErrMalformedRecord, key, describe(v))
		}
		return m, nil
	}
	return nil, nil
}

func (l Layout) cycles(doc records.Document) ([]map[string]any, error) {
	for _, key := range l.CycleKeys {
		v, ok := doc[key]
		if !ok || v == nil {
			continue
		}
		list, isList := v.([]any)
		if !isList {
			return nil, fmt.Errorf("%w: section %q is %s, want list", ErrMalformedRecord, key, describe(v))
		}
		items := make([]map[string]any, len(list))
		for i, item := range list {
			m, isMap := item.(map[string]any)
			if !isMap {
				return nil, fmt.Errorf("%w: %s[%d] is %s, want object", ErrMalformedRecord, key, i, describe(item))
			}
			items[i] = m
		}
		return items, nil
	}
	return nil, nil
}

func describe(v any) string {
	switch flatten.Classify(v) {
	case flatten.Nested:
		return "an object"
	case flatten.Scalar:
		return fmt.Sprintf("a scalar (%T)", v)
	}
	return "a list"
}
