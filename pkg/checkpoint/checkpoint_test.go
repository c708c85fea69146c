package checkpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/logstore"
	"github.com/cuemby/delta/pkg/schema"
	"github.com/cuemby/delta/pkg/snapshot"
)

func buildSnapshot(t *testing.T, version int64, extra ...action.Action) *snapshot.Snapshot {
	t.Helper()
	s := schema.StructType{Fields: []schema.StructField{
		{Name: "key", Type: schema.PrimitiveType(schema.TypeInteger), Nullable: true},
	}}
	raw, err := s.ToJSON()
	require.NoError(t, err)

	b := snapshot.NewBuilder()
	b.Apply(&action.Protocol{MinReaderVersion: 1, MinWriterVersion: 2})
	b.Apply(action.NewMetadata("t", raw, nil, nil))
	for _, a := range extra {
		b.Apply(a)
	}
	snap, err := b.Build(version)
	require.NoError(t, err)
	return snap
}

func TestShouldCheckpoint(t *testing.T) {
	store, err := logstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	m := NewManager(store)

	assert.False(t, m.ShouldCheckpoint(0, 10))
	assert.True(t, m.ShouldCheckpoint(9, 10))
	assert.True(t, m.ShouldCheckpoint(19, 10))
	assert.False(t, m.ShouldCheckpoint(10, 10))
	assert.False(t, m.ShouldCheckpoint(9, 0), "interval 0 disables checkpoints")
}

func TestWriteAndReadBack(t *testing.T) {
	store, err := logstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	m := NewManager(store)

	snap := buildSnapshot(t, 9,
		&action.AddFile{Path: "a.parquet", Size: 10, DataChange: true},
		&action.AddFile{Path: "b.parquet", Size: 20, DataChange: true},
	)
	require.NoError(t, m.Write(snap))

	meta, err := m.Latest(9)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, int64(9), meta.Version)

	actions, err := m.Read(9)
	require.NoError(t, err)

	// replay(checkpoint) == original state
	b := snapshot.NewBuilder()
	for _, a := range actions {
		b.Apply(a)
	}
	restored, err := b.Build(9)
	require.NoError(t, err)
	assert.Equal(t, snap.AllFiles(), restored.AllFiles())
	assert.Equal(t, snap.Metadata().ID, restored.Metadata().ID)
}

func TestLatestIgnoresNewerCheckpoint(t *testing.T) {
	store, err := logstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	m := NewManager(store)

	snap := buildSnapshot(t, 20)
	require.NoError(t, m.Write(snap))

	meta, err := m.Latest(10)
	require.NoError(t, err)
	assert.Nil(t, meta, "checkpoint above the requested version is unusable")
}

func TestWriteDropsExpiredTombstones(t *testing.T) {
	store, err := logstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	m := NewManager(store)

	old := time.Now().Add(-60 * 24 * time.Hour).UnixMilli()
	fresh := time.Now().UnixMilli()
	snap := buildSnapshot(t, 9,
		&action.RemoveFile{Path: "ancient.parquet", DeletionTimestamp: &old, DataChange: true},
		&action.RemoveFile{Path: "recent.parquet", DeletionTimestamp: &fresh, DataChange: true},
	)
	require.NoError(t, m.Write(snap))

	actions, err := m.Read(9)
	require.NoError(t, err)
	var removes []string
	for _, a := range actions {
		if r, ok := a.(*action.RemoveFile); ok {
			removes = append(removes, r.Path)
		}
	}
	assert.Equal(t, []string{"recent.parquet"}, removes)
}

func TestMaybeWriteSwallowsFailures(t *testing.T) {
	store, err := logstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	m := NewManager(store)
	require.NoError(t, store.Close())

	snap := buildSnapshot(t, 9)
	// file store Close is a no-op, so this write succeeds; the contract
	// under test is that MaybeWrite never panics or propagates
	m.MaybeWrite(snap, 10)
	m.MaybeWrite(snap, 0)
}
