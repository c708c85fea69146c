package index

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/expr"
)

// Stats is the lazily parsed per-file statistics subdocument
type Stats struct {
	NumRecords int64            `json:"numRecords"`
	MinValues  map[string]any   `json:"minValues"`
	MaxValues  map[string]any   `json:"maxValues"`
	NullCount  map[string]int64 `json:"nullCount"`
}

// ParseStats decodes the raw stats attached to an AddFile; a file without
// stats yields nil, which every proof treats as "cannot prove"
func ParseStats(f *action.AddFile) (*Stats, error) {
	if f.Stats == "" {
		return nil, nil
	}
	var s Stats
	if err := json.Unmarshal([]byte(f.Stats), &s); err != nil {
		return nil, fmt.Errorf("index: parse stats of %q: %w", f.Path, err)
	}
	for k, v := range s.MinValues {
		s.MinValues[k] = expr.Normalize(v)
	}
	for k, v := range s.MaxValues {
		s.MaxValues[k] = expr.Normalize(v)
	}
	return &s, nil
}

// columnRange is what the prover knows about one column within one file
type columnRange struct {
	min, max   any  // non-null value bounds; nil when unknown or all-null
	nullCount  int64
	numRecords int64
	hasCounts  bool // nullCount/numRecords are trustworthy
	known      bool // any information at all
}

// fileRanges merges partition values (exact, min==max) with data column
// stats into a per-column range lookup
type fileRanges struct {
	file  *action.AddFile
	stats *Stats
}

func (r fileRanges) column(name string) columnRange {
	if v, ok := r.file.PartitionValues[name]; ok {
		total := int64(1)
		if r.stats != nil {
			total = r.stats.NumRecords
		}
		if v == "" {
			// null partition value: every row is null in this column
			return columnRange{nullCount: total, numRecords: total, hasCounts: true, known: true}
		}
		parsed := parsePartitionValue(v)
		return columnRange{min: parsed, max: parsed, numRecords: total, hasCounts: true, known: true}
	}
	if r.stats == nil {
		return columnRange{}
	}
	cr := columnRange{numRecords: r.stats.NumRecords}
	if n, ok := r.stats.NullCount[name]; ok {
		cr.nullCount = n
		cr.hasCounts = true
		cr.known = true
	}
	if mn, ok := r.stats.MinValues[name]; ok {
		cr.min = mn
		cr.max = r.stats.MaxValues[name]
		cr.known = true
	}
	return cr
}

// PartitionRow exposes a file's partition values as typed row columns;
// empty strings encode null
func PartitionRow(f *action.AddFile) expr.Row {
	row := expr.Row{}
	for col, v := range f.PartitionValues {
		if v == "" {
			row[col] = nil
			continue
		}
		row[col] = parsePartitionValue(v)
	}
	return row
}

func parsePartitionValue(v string) any {
	var i int64
	if _, err := fmt.Sscanf(v, "%d", &i); err == nil && fmt.Sprintf("%d", i) == v {
		return i
	}
	var f float64
	if _, err := fmt.Sscanf(v, "%g", &f); err == nil && fmt.Sprintf("%g", f) == v {
		return f
	}
	if v == "true" {
		return true
	}
	if v == "false" {
		return false
	}
	return v
}
