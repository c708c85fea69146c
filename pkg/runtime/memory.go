package runtime

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/expr"
	"github.com/cuemby/delta/pkg/schema"
)

// nullPartitionValue encodes a null partition value in a file path
const nullPartitionValue = "__HIVE_DEFAULT_PARTITION__"

// Memory is an in-memory QueryRuntime holding row groups keyed by file
// path. It backs the test-suite and the CLI; a production runtime plugs in
// behind the same interface.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]expr.Row
}

// NewMemory creates an empty in-memory runtime
func NewMemory() *Memory {
	return &Memory{files: make(map[string][]expr.Row)}
}

// Register seeds the runtime with the rows of an existing file path
func (m *Memory) Register(filePath string, rows []expr.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filePath] = normalizeRows(rows)
}

// FileRows returns the rows registered for a file path
func (m *Memory) FileRows(filePath string) ([]expr.Row, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows, ok := m.files[filePath]
	return rows, ok
}

func (m *Memory) Scan(files []*action.AddFile, projection []string, filter expr.Expr) (Rows, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []expr.Row
	for _, f := range files {
		rows, ok := m.files[f.Path]
		if !ok {
			return nil, fmt.Errorf("runtime: unknown file %q", f.Path)
		}
		for _, row := range rows {
			// partition columns live in the file entry, not the row group
			full := expr.MergeRows(partitionRow(f), row)
			if filter != nil {
				keep, err := expr.EvalPredicate(filter, full)
				if err != nil {
					return nil, err
				}
				if !keep {
					continue
				}
			}
			if projection != nil {
				projected := expr.Row{}
				for _, col := range projection {
					projected[col] = full[col]
				}
				full = projected
			}
			out = append(out, full)
		}
	}
	return NewSliceRows(out), nil
}

func (m *Memory) Join(left Rows, leftCols []string, right Rows, rightCols []string, condition expr.Expr, kind JoinKind) (Rows, error) {
	leftRows, err := Collect(left)
	if err != nil {
		return nil, err
	}
	rightRows, err := Collect(right)
	if err != nil {
		return nil, err
	}
	leftRows = normalizeRows(leftRows)
	rightRows = normalizeRows(rightRows)

	var out []expr.Row
	rightMatched := make([]bool, len(rightRows))
	for _, lrow := range leftRows {
		matched := false
		for ri, rrow := range rightRows {
			combined := expr.MergeRows(lrow, rrow)
			ok, err := expr.EvalPredicate(condition, combined)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			matched = true
			rightMatched[ri] = true
			if kind != JoinLeftAnti {
				out = append(out, combined)
			}
		}
		switch kind {
		case JoinLeftAnti:
			if !matched {
				out = append(out, lrow)
			}
		case JoinFullOuter:
			if !matched {
				out = append(out, nullExtend(lrow, rightCols))
			}
		}
	}
	if kind == JoinFullOuter || kind == JoinRightOuter {
		for ri, rrow := range rightRows {
			if !rightMatched[ri] {
				out = append(out, nullExtend(rrow, leftCols))
			}
		}
	}
	return NewSliceRows(out), nil
}

func (m *Memory) Write(rows Rows, sch schema.StructType, partitionColumns []string, tablePath string) ([]*action.AddFile, error) {
	all, err := Collect(rows)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	// group rows by partition values
	groups := map[string][]expr.Row{}
	groupKeys := map[string]map[string]string{}
	for _, row := range all {
		values := map[string]string{}
		var parts []string
		for _, col := range partitionColumns {
			v := formatPartitionValue(expr.Normalize(row[col]))
			values[col] = v
			name := v
			if name == "" {
				name = nullPartitionValue
			}
			parts = append(parts, col+"="+name)
		}
		key := strings.Join(parts, "/")
		groups[key] = append(groups[key], row)
		groupKeys[key] = values
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UnixMilli()
	var added []*action.AddFile
	for _, key := range keys {
		groupRows := normalizeRows(groups[key])
		name := fmt.Sprintf("part-%s.parquet", uuid.NewString())
		filePath := name
		if key != "" {
			filePath = path.Join(key, name)
		}
		raw, err := json.Marshal(groupRows)
		if err != nil {
			return nil, fmt.Errorf("runtime: encode rows: %w", err)
		}
		stats, err := computeStats(groupRows, sch, partitionColumns)
		if err != nil {
			return nil, err
		}
		m.files[filePath] = groupRows
		added = append(added, &action.AddFile{
			Path:             filePath,
			PartitionValues:  groupKeys[key],
			Size:             int64(len(raw)),
			ModificationTime: now,
			DataChange:       true,
			Stats:            stats,
		})
	}
	return added, nil
}

// partitionRow exposes a file's partition values as typed row columns.
// Partition values are stored as strings; the empty string reads as null,
// integers, floats and booleans parse to typed values, and anything else
// stays a string.
func partitionRow(f *action.AddFile) expr.Row {
	row := expr.Row{}
	for col, v := range f.PartitionValues {
		row[col] = parsePartitionValue(v)
	}
	return row
}

func parsePartitionValue(v string) any {
	if v == "" {
		return nil
	}
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

func formatPartitionValue(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func nullExtend(row expr.Row, missingCols []string) expr.Row {
	out := expr.MergeRows(row)
	for _, col := range missingCols {
		if _, ok := out[col]; !ok {
			out[col] = nil
		}
	}
	return out
}

func normalizeRows(rows []expr.Row) []expr.Row {
	out := make([]expr.Row, len(rows))
	for i, row := range rows {
		n := make(expr.Row, len(row))
		for k, v := range row {
			n[k] = expr.Normalize(v)
		}
		out[i] = n
	}
	return out
}

// fileStats mirrors the per-file stats subdocument tracked in AddFile.Stats
type fileStats struct {
	NumRecords int64            `json:"numRecords"`
	MinValues  map[string]any   `json:"minValues"`
	MaxValues  map[string]any   `json:"maxValues"`
	NullCount  map[string]int64 `json:"nullCount"`
}

func computeStats(rows []expr.Row, sch schema.StructType, partitionColumns []string) (string, error) {
	partition := map[string]bool{}
	for _, c := range partitionColumns {
		partition[c] = true
	}
	stats := fileStats{
		NumRecords: int64(len(rows)),
		MinValues:  map[string]any{},
		MaxValues:  map[string]any{},
		NullCount:  map[string]int64{},
	}
	for _, field := range sch.Fields {
		if partition[field.Name] {
			continue
		}
		if _, isStruct := field.Type.(schema.StructType); isStruct {
			continue
		}
		var min, max any
		var nulls int64
		for _, row := range rows {
			v := expr.Normalize(row[field.Name])
			if v == nil {
				nulls++
				continue
			}
			if min == nil {
				min, max = v, v
				continue
			}
			if cmp, err := expr.CompareValues(v, min); err == nil && cmp < 0 {
				min = v
			}
			if cmp, err := expr.CompareValues(v, max); err == nil && cmp > 0 {
				max = v
			}
		}
		stats.NullCount[field.Name] = nulls
		if min != nil {
			stats.MinValues[field.Name] = min
			stats.MaxValues[field.Name] = max
		}
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return "", fmt.Errorf("runtime: encode stats: %w", err)
	}
	return string(raw), nil
}
