package index

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/expr"
)

func statsFile(path string, numRecords int64, min, max map[string]any, nulls map[string]int64) *action.AddFile {
	stats := fmt.Sprintf(`{"numRecords":%d,"minValues":%s,"maxValues":%s,"nullCount":%s}`,
		numRecords, jsonish(min), jsonish(max), jsonishCounts(nulls))
	return &action.AddFile{Path: path, DataChange: true, Stats: stats}
}

func jsonish(m map[string]any) string {
	out := "{"
	first := true
	for k, v := range m {
		if !first {
			out += ","
		}
		first = false
		out += fmt.Sprintf("%q:%v", k, v)
	}
	return out + "}"
}

func jsonishCounts(m map[string]int64) string {
	out := "{"
	first := true
	for k, v := range m {
		if !first {
			out += ","
		}
		first = false
		out += fmt.Sprintf("%q:%d", k, v)
	}
	return out + "}"
}

func TestPartitionPruning(t *testing.T) {
	files := []*action.AddFile{
		{Path: "k=1/a.parquet", PartitionValues: map[string]string{"k": "1"}, DataChange: true},
		{Path: "k=2/b.parquet", PartitionValues: map[string]string{"k": "2"}, DataChange: true},
		{Path: "k=__null__/c.parquet", PartitionValues: map[string]string{"k": ""}, DataChange: true},
	}
	f := NewFilter(true)

	kept, err := f.Select(files, []expr.Expr{expr.Eq(expr.Col("k"), expr.Lit(2))})
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, "k=2/b.parquet", kept[0].Path)

	// null partition values satisfy only null-safe equality
	kept, err = f.Select(files, []expr.Expr{expr.NullSafeEq(expr.Col("k"), expr.Lit(nil))})
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, "k=__null__/c.parquet", kept[0].Path)
}

func TestStatsPruning(t *testing.T) {
	low := statsFile("low.parquet", 100,
		map[string]any{"v": 0}, map[string]any{"v": 9}, map[string]int64{"v": 0})
	high := statsFile("high.parquet", 100,
		map[string]any{"v": 10}, map[string]any{"v": 99}, map[string]int64{"v": 0})
	noStats := &action.AddFile{Path: "nostats.parquet", DataChange: true}
	files := []*action.AddFile{low, high, noStats}

	f := NewFilter(true)
	tests := []struct {
		name string
		pred expr.Expr
		want []string
	}{
		{"eq in low range", expr.Eq(expr.Col("v"), expr.Lit(5)), []string{"low.parquet", "nostats.parquet"}},
		{"gt above low", expr.Gt(expr.Col("v"), expr.Lit(50)), []string{"high.parquet", "nostats.parquet"}},
		{"lt below high", expr.Lt(expr.Col("v"), expr.Lit(5)), []string{"low.parquet", "nostats.parquet"}},
		{"ge boundary", expr.Ge(expr.Col("v"), expr.Lit(9)), []string{"low.parquet", "high.parquet", "nostats.parquet"}},
		{"literal on the left", expr.Gt(expr.Lit(5), expr.Col("v")), []string{"low.parquet", "nostats.parquet"}},
		{"eq nothing", expr.Eq(expr.Col("v"), expr.Lit(200)), []string{"nostats.parquet"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, err := f.Select(files, []expr.Expr{tt.pred})
			require.NoError(t, err)
			var paths []string
			for _, k := range kept {
				paths = append(paths, k.Path)
			}
			assert.Equal(t, tt.want, paths)
		})
	}
}

func TestNullCountPruning(t *testing.T) {
	allNull := statsFile("allnull.parquet", 10,
		map[string]any{}, map[string]any{}, map[string]int64{"v": 10})
	someNull := statsFile("somenull.parquet", 10,
		map[string]any{"v": 1}, map[string]any{"v": 5}, map[string]int64{"v": 3})

	f := NewFilter(true)

	kept, err := f.Select([]*action.AddFile{allNull, someNull}, []expr.Expr{expr.IsNull(expr.Col("v"))})
	require.NoError(t, err)
	assert.Len(t, kept, 2)

	kept, err = f.Select([]*action.AddFile{allNull, someNull}, []expr.Expr{expr.IsNotNull(expr.Col("v"))})
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, "somenull.parquet", kept[0].Path)

	// a plain comparison cannot hold on an all-null column
	kept, err = f.Select([]*action.AddFile{allNull}, []expr.Expr{expr.Eq(expr.Col("v"), expr.Lit(1))})
	require.NoError(t, err)
	assert.Empty(t, kept)
}

func TestSkippingDisabledKeepsDataFiles(t *testing.T) {
	low := statsFile("low.parquet", 100,
		map[string]any{"v": 0}, map[string]any{"v": 9}, map[string]int64{"v": 0})
	f := NewFilter(false)

	kept, err := f.Select([]*action.AddFile{low}, []expr.Expr{expr.Eq(expr.Col("v"), expr.Lit(100))})
	require.NoError(t, err)
	assert.Len(t, kept, 1, "stats are ignored when skipping is off")

	// partition pruning still applies: it is exact, not statistical
	part := &action.AddFile{Path: "k=1/a.parquet", PartitionValues: map[string]string{"k": "1"}}
	kept, err = f.Select([]*action.AddFile{part}, []expr.Expr{expr.Eq(expr.Col("k"), expr.Lit(2))})
	require.NoError(t, err)
	assert.Empty(t, kept)
}

func TestUnsupportedShapesRetain(t *testing.T) {
	low := statsFile("low.parquet", 100,
		map[string]any{"v": 0}, map[string]any{"v": 9}, map[string]int64{"v": 0})
	f := NewFilter(true)

	// NOT and column-to-column comparisons cannot be disproven from ranges
	kept, err := f.Select([]*action.AddFile{low}, []expr.Expr{expr.Not(expr.Eq(expr.Col("v"), expr.Lit(5)))})
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	kept, err = f.Select([]*action.AddFile{low}, []expr.Expr{expr.Eq(expr.Col("v"), expr.Col("w"))})
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestMayMatch(t *testing.T) {
	low := statsFile("low.parquet", 100,
		map[string]any{"v": 0}, map[string]any{"v": 9}, map[string]int64{"v": 0})
	f := NewFilter(true)

	assert.True(t, f.MayMatch(low, []expr.Expr{expr.Eq(expr.Col("v"), expr.Lit(5))}))
	assert.False(t, f.MayMatch(low, []expr.Expr{expr.Eq(expr.Col("v"), expr.Lit(50))}))
}

func TestParseStats(t *testing.T) {
	s, err := ParseStats(&action.AddFile{Path: "p"})
	require.NoError(t, err)
	assert.Nil(t, s, "missing stats parse to nil")

	_, err = ParseStats(&action.AddFile{Path: "p", Stats: "{broken"})
	assert.Error(t, err)

	s, err = ParseStats(statsFile("p", 7, map[string]any{"v": 1}, map[string]any{"v": 2}, map[string]int64{"v": 0}))
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, int64(7), s.NumRecords)
	assert.Equal(t, float64(1), s.MinValues["v"], "JSON numbers decode as float64")
}
