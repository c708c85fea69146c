package dml_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/deltalog"
	"github.com/cuemby/delta/pkg/dml"
	"github.com/cuemby/delta/pkg/expr"
	"github.com/cuemby/delta/pkg/runtime"
	"github.com/cuemby/delta/pkg/schema"
	"github.com/cuemby/delta/pkg/txn"
)

func newTable(t *testing.T, partitionColumns []string) (*deltalog.DeltaLog, *runtime.Memory) {
	t.Helper()
	s := schema.StructType{Fields: []schema.StructField{
		{Name: "k", Type: schema.PrimitiveType(schema.TypeInteger), Nullable: true},
		{Name: "v", Type: schema.PrimitiveType(schema.TypeInteger), Nullable: true},
	}}
	raw, err := s.ToJSON()
	require.NoError(t, err)

	registry := deltalog.NewRegistry(deltalog.StoreFile)
	t.Cleanup(func() { registry.Close() })
	dl, err := registry.Open(filepath.Join(t.TempDir(), "tbl"))
	require.NoError(t, err)
	_, err = txn.CreateTable(dl, action.NewMetadata("tbl", raw, partitionColumns, nil), nil)
	require.NoError(t, err)
	return dl, runtime.NewMemory()
}

func seed(t *testing.T, dl *deltalog.DeltaLog, rt *runtime.Memory, rows []expr.Row) {
	t.Helper()
	snap := dl.Snapshot()
	sch, err := snap.Schema()
	require.NoError(t, err)
	src := runtime.NewSliceSource(sch, rows)
	_, err = dml.WriteCommand{Mode: dml.SaveAppend}.Run(dl, rt, src)
	require.NoError(t, err)
}

func tableRows(t *testing.T, dl *deltalog.DeltaLog, rt *runtime.Memory) []expr.Row {
	t.Helper()
	snap, err := dl.Update()
	require.NoError(t, err)
	rows, err := rt.Scan(snap.AllFiles(), nil, nil)
	require.NoError(t, err)
	got, err := runtime.Collect(rows)
	require.NoError(t, err)
	return got
}

func TestDeleteWithoutPredicate(t *testing.T) {
	dl, rt := newTable(t, nil)
	seed(t, dl, rt, []expr.Row{{"k": 1, "v": 1}, {"k": 2, "v": 2}})

	m, snap, err := dml.Delete(dl, rt, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.FilesRemoved)
	assert.Equal(t, int64(0), m.FilesAdded, "no rewrite for an unconditional delete")
	assert.Equal(t, 0, snap.NumFiles())
}

func TestDeletePartitionPredicate(t *testing.T) {
	dl, rt := newTable(t, []string{"k"})
	seed(t, dl, rt, []expr.Row{{"k": 1, "v": 1}, {"k": 2, "v": 2}, {"k": 3, "v": 3}})

	m, snap, err := dml.Delete(dl, rt, expr.Eq(expr.Col("k"), expr.Lit(2)))
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.FilesRemoved)
	assert.Equal(t, int64(0), m.FilesAdded, "partition deletes tombstone whole files")
	assert.Equal(t, 2, snap.NumFiles())

	for _, row := range tableRows(t, dl, rt) {
		assert.NotEqual(t, int64(2), row["k"])
	}
}

func TestDeleteRowPredicate(t *testing.T) {
	dl, rt := newTable(t, nil)
	seed(t, dl, rt, []expr.Row{{"k": 1, "v": 1}, {"k": 2, "v": 20}, {"k": 3, "v": 3}})

	m, _, err := dml.Delete(dl, rt, expr.Gt(expr.Col("v"), expr.Lit(10)))
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.RowsDeleted)
	assert.Equal(t, int64(2), m.RowsCopied)
	assert.Equal(t, int64(1), m.FilesRemoved)
	assert.Equal(t, int64(1), m.FilesAdded)

	rows := tableRows(t, dl, rt)
	assert.Len(t, rows, 2)
}

func TestDeleteUntouchedFilesSurvive(t *testing.T) {
	dl, rt := newTable(t, nil)
	// two separate commits produce two files with disjoint ranges
	seed(t, dl, rt, []expr.Row{{"k": 1, "v": 1}, {"k": 2, "v": 2}})
	seed(t, dl, rt, []expr.Row{{"k": 10, "v": 100}, {"k": 11, "v": 110}})

	before := dl.Snapshot().AllFiles()
	require.Len(t, before, 2)

	m, snap, err := dml.Delete(dl, rt, expr.Gt(expr.Col("v"), expr.Lit(50)))
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.FilesRemoved, "the low-range file is provably untouched")
	assert.Equal(t, int64(2), m.RowsDeleted)

	var lowSurvives bool
	for _, f := range snap.AllFiles() {
		if f.Path == before[0].Path || f.Path == before[1].Path {
			lowSurvives = true
		}
	}
	assert.True(t, lowSurvives)
}

func TestDeleteNoMatchesCommitsNothing(t *testing.T) {
	dl, rt := newTable(t, nil)
	seed(t, dl, rt, []expr.Row{{"k": 1, "v": 1}})
	versionBefore := dl.Snapshot().Version()

	m, snap, err := dml.Delete(dl, rt, expr.Gt(expr.Col("v"), expr.Lit(100)))
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.RowsDeleted)
	assert.Equal(t, versionBefore, snap.Version(), "no-op delete writes no version")
}

func TestDeleteNonDeterministicRejected(t *testing.T) {
	dl, rt := newTable(t, nil)
	seed(t, dl, rt, []expr.Row{{"k": 1, "v": 1}})
	_, _, err := dml.Delete(dl, rt, expr.Lt(expr.Random(), expr.Lit(0.5)))
	assert.ErrorIs(t, err, expr.ErrNonDeterministic)
}

func TestUpdate(t *testing.T) {
	dl, rt := newTable(t, nil)
	seed(t, dl, rt, []expr.Row{{"k": 1, "v": 1}, {"k": 2, "v": 2}, {"k": 3, "v": 3}})

	m, _, err := dml.Update(dl, rt,
		expr.Ge(expr.Col("k"), expr.Lit(2)),
		map[string]expr.Expr{"v": expr.Add(expr.Col("v"), expr.Lit(100))},
	)
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.RowsUpdated)
	assert.Equal(t, int64(1), m.RowsCopied)

	got := map[int64]int64{}
	for _, row := range tableRows(t, dl, rt) {
		got[row["k"].(int64)] = row["v"].(int64)
	}
	assert.Equal(t, map[int64]int64{1: 1, 2: 102, 3: 103}, got)
}

func TestUpdatePartitionColumnRejected(t *testing.T) {
	dl, rt := newTable(t, []string{"k"})
	seed(t, dl, rt, []expr.Row{{"k": 1, "v": 1}})
	_, _, err := dml.Update(dl, rt, nil, map[string]expr.Expr{"k": expr.Lit(9)})
	assert.Error(t, err)
}

func TestUpdateUnknownColumn(t *testing.T) {
	dl, rt := newTable(t, nil)
	seed(t, dl, rt, []expr.Row{{"k": 1, "v": 1}})
	_, _, err := dml.Update(dl, rt, nil, map[string]expr.Expr{"missing": expr.Lit(1)})
	var unknown *schema.UnknownColumnError
	assert.ErrorAs(t, err, &unknown)
}

func TestOverwrite(t *testing.T) {
	dl, rt := newTable(t, nil)
	seed(t, dl, rt, []expr.Row{{"k": 1, "v": 1}})

	sch, err := dl.Snapshot().Schema()
	require.NoError(t, err)
	src := runtime.NewSliceSource(sch, []expr.Row{{"k": 9, "v": 9}})
	snap, err := dml.WriteCommand{Mode: dml.SaveOverwrite}.Run(dl, rt, src)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.NumFiles())
	rows := tableRows(t, dl, rt)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(9), rows[0]["k"])
}

func TestOverwriteReplaceWhere(t *testing.T) {
	dl, rt := newTable(t, []string{"k"})
	seed(t, dl, rt, []expr.Row{{"k": 1, "v": 1}, {"k": 2, "v": 2}})

	sch, err := dl.Snapshot().Schema()
	require.NoError(t, err)
	src := runtime.NewSliceSource(sch, []expr.Row{{"k": 1, "v": 100}})
	_, err = dml.WriteCommand{
		Mode:         dml.SaveOverwrite,
		ReplaceWhere: expr.Eq(expr.Col("k"), expr.Lit(1)),
	}.Run(dl, rt, src)
	require.NoError(t, err)

	got := map[int64]int64{}
	for _, row := range tableRows(t, dl, rt) {
		got[row["k"].(int64)] = row["v"].(int64)
	}
	assert.Equal(t, map[int64]int64{1: 100, 2: 2}, got)
}

func TestOverwriteReplaceWhereNonPartition(t *testing.T) {
	dl, rt := newTable(t, []string{"k"})
	seed(t, dl, rt, []expr.Row{{"k": 1, "v": 1}})

	sch, err := dl.Snapshot().Schema()
	require.NoError(t, err)
	src := runtime.NewSliceSource(sch, nil)
	_, err = dml.WriteCommand{
		Mode:         dml.SaveOverwrite,
		ReplaceWhere: expr.Eq(expr.Col("v"), expr.Lit(1)),
	}.Run(dl, rt, src)
	assert.ErrorIs(t, err, dml.ErrNonPartitionPredicate)
}
