package tabulate

import (
	"fmt"
	"strings"

	"github.com/giygas/patient-records/flatten"
	"github.com/giygas/patient-records/records"
)

// Row is one output row keyed by column name. A missing key is an empty cell.
type Row map[string]any

// ExpandRecord turns one record into its rows: one per cycle, or a single
// row without cycle columns when the record has no cycles. Baseline, cycle
// and followup columns are merged in that order, later fragments overwriting
// earlier ones on key collision. The identifier columns are merged last so
// no record field can replace them.
func (l Layout) ExpandRecord(doc records.Document, source string) ([]Row, error) {
	id, err := l.RecordID(doc)
	if err != nil {
		return nil, err
	}

	baseline, err := l.flattenSection(doc, l.BaselineKeys, l.BaselinePrefix)
	if err != nil {
		return nil, err
	}

	final, err := l.flattenSection(doc, l.FinalKeys, l.FinalPrefix)
	if err != nil {
		return nil, err
	}

	cycles, err := l.cycles(doc)
	if err != nil {
		return nil, err
	}

	head := Row{IDColumn: id, SourceColumn: source}

	if len(cycles) == 0 {
		return []Row{newRow(baseline, final, head)}, nil
	}

	rows := make([]Row, 0, len(cycles))
	for i, cycle := range cycles {
		fragment, err := l.ExpandCycle(cycle)
		if err != nil {
			return nil, fmt.Errorf("cycle %d: %w", i+1, err)
		}
		rows = append(rows, newRow(baseline, fragment, final, head))
	}
	return rows, nil
}

// ExpandCycle flattens one cycle item into its row fragment.
//
// Plain fields are flattened under the cycle prefix first. Fields listed in
// NestedFields are then flattened under their fixed sub-prefix, and lists of
// mappings are collapsed into one joined column per attribute, named
// <field>_<attribute>s. The special-cased columns win on collision.
func (l Layout) ExpandCycle(item map[string]any) (map[string]any, error) {
	native := make(map[string]any, len(item))
	special := make(map[string]any)

	for _, key := range flatten.SortedKeys(item) {
		v := item[key]
		kind := flatten.Classify(v)

		if sub, ok := l.NestedFields[key]; ok && kind == flatten.Nested {
			flat, err := flatten.Flatten(flatten.Join(l.CyclePrefix, sub), v.(map[string]any))
			if err != nil {
				return nil, err
			}
			merge(special, flat)
			continue
		}

		if kind == flatten.ObjectList {
			merge(special, l.collapseObjectList(key, v.([]any)))
			continue
		}

		native[key] = v
	}

	out, err := flatten.Flatten(l.CyclePrefix, native)
	if err != nil {
		return nil, err
	}
	merge(out, special)
	return out, nil
}

// collapseObjectList builds one joined column per attribute, keeping item
// order. An item without the attribute contributes an empty string.
func (l Layout) collapseObjectList(field string, items []any) map[string]any {
	attrs := l.ObjectListAttrs[field]
	if len(attrs) == 0 {
		attrs = unionKeys(items)
	}

	prefix := flatten.Join(l.CyclePrefix, field)
	out := make(map[string]any, len(attrs))
	values := make([]string, len(items))

	for _, attr := range attrs {
		for i, item := range items {
			values[i] = FormatCell(item.(map[string]any)[attr])
		}
		out[flatten.Join(prefix, attr+"s")] = strings.Join(values, flatten.ListSeparator)
	}
	return out
}

func (l Layout) flattenSection(doc records.Document, keys []string, prefix string) (map[string]any, error) {
	section, err := l.section(doc, keys)
	if err != nil || section == nil {
		return nil, err
	}
	return flatten.Flatten(prefix, section)
}

func unionKeys(items []any) []string {
	seen := make(map[string]struct{})
	for _, item := range items {
		for k := range item.(map[string]any) {
			seen[k] = struct{}{}
		}
	}
	return flatten.SortedKeys(seen)
}

func newRow(fragments ...map[string]any) Row {
	row := make(Row)
	for _, f := range fragments {
		merge(row, f)
	}
	return row
}

func merge[M ~map[string]any](dst M, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}
