package tabulate

import (
	"math"
	"sort"
)

// MissingColumn reports how many rows lack a value in one column.
type MissingColumn struct {
	Column  string  `json:"column"`
	Missing int     `json:"missing"`
	Percent float64 `json:"percent"`
}

// DuplicateID is an identifier found in more than one record file.
type DuplicateID struct {
	ID      string   `json:"id"`
	Sources []string `json:"sources"`
}

// Summary is the run report of a Dataset.
type Summary struct {
	FilesFound           int             `json:"files_found"`
	FilesProcessed       int             `json:"files_processed"`
	Rows                 int             `json:"rows"`
	Columns              int             `json:"columns"`
	Patients             int             `json:"patients"`
	RecordsWithoutCycles int             `json:"records_without_cycles"`
	TopMissing           []MissingColumn `json:"top_missing"`
	DuplicateIDs         []DuplicateID   `json:"duplicate_ids,omitempty"`
	Errors               []string        `json:"errors,omitempty"`
}

// Summarize reports totals, the topN columns with the most missing cells
// and data quality findings. Columns without missing cells are not listed;
// ties keep column order. topN <= 0 lists every column with missing cells.
func Summarize(ds *Dataset, topN int) Summary {
	s := Summary{
		FilesFound:     ds.FilesFound,
		FilesProcessed: ds.FilesProcessed,
		Rows:           len(ds.Rows),
		Columns:        len(ds.Columns),
		TopMissing:     []MissingColumn{},
	}

	patients := make(map[string]struct{})
	for _, row := range ds.Rows {
		if id, ok := row[IDColumn]; ok {
			patients[FormatCell(id)] = struct{}{}
		}
	}
	s.Patients = len(patients)

	for _, fe := range ds.Errors {
		s.Errors = append(s.Errors, fe.Error())
	}

	s.TopMissing = topMissing(ds, topN)
	s.RecordsWithoutCycles, s.DuplicateIDs = qualityFindings(ds.Records)

	return s
}

func topMissing(ds *Dataset, topN int) []MissingColumn {
	missing := make([]MissingColumn, 0, len(ds.Columns))
	for _, col := range ds.Columns {
		count := 0
		for _, row := range ds.Rows {
			if row[col] == nil {
				count++
			}
		}
		if count == 0 {
			continue
		}
		pct := float64(count) / float64(len(ds.Rows)) * 100
		missing = append(missing, MissingColumn{
			Column:  col,
			Missing: count,
			Percent: math.Round(pct*10) / 10,
		})
	}

	sort.SliceStable(missing, func(i, j int) bool {
		return missing[i].Missing > missing[j].Missing
	})

	if topN > 0 && len(missing) > topN {
		missing = missing[:topN]
	}
	return missing
}

// qualityFindings counts records without cycles and collects identifiers
// stored in more than one file.
func qualityFindings(infos []RecordInfo) (int, []DuplicateID) {
	withoutCycles := 0
	sources := make(map[string][]string)
	var order []string

	for _, info := range infos {
		if info.Cycles == 0 {
			withoutCycles++
		}
		if _, ok := sources[info.ID]; !ok {
			order = append(order, info.ID)
		}
		sources[info.ID] = append(sources[info.ID], info.Source)
	}

	var duplicates []DuplicateID
	for _, id := range order {
		if len(sources[id]) > 1 {
			duplicates = append(duplicates, DuplicateID{ID: id, Sources: sources[id]})
		}
	}
	return withoutCycles, duplicates
}
