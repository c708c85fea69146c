package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/logstore"
	"github.com/cuemby/delta/pkg/schema"
)

func testSchema(t *testing.T) string {
	t.Helper()
	s := schema.StructType{Fields: []schema.StructField{
		{Name: "key", Type: schema.PrimitiveType(schema.TypeInteger), Nullable: true},
		{Name: "value", Type: schema.PrimitiveType(schema.TypeInteger), Nullable: true},
	}}
	raw, err := s.ToJSON()
	require.NoError(t, err)
	return raw
}

func baseActions(t *testing.T) []action.Action {
	return []action.Action{
		&action.Protocol{MinReaderVersion: 1, MinWriterVersion: 2},
		action.NewMetadata("events", testSchema(t), nil, nil),
	}
}

func TestReplayFold(t *testing.T) {
	b := NewBuilder()
	for _, a := range baseActions(t) {
		b.Apply(a)
	}
	b.Apply(&action.AddFile{Path: "a.parquet", Size: 10, DataChange: true})
	b.Apply(&action.AddFile{Path: "b.parquet", Size: 20, DataChange: true})
	b.Apply(&action.RemoveFile{Path: "a.parquet", DataChange: true})
	b.Apply(&action.SetTransaction{AppID: "app", Version: 1})
	b.Apply(&action.SetTransaction{AppID: "app", Version: 2})
	b.Apply(&action.CommitInfo{Operation: action.OpWrite})

	snap, err := b.Build(3)
	require.NoError(t, err)

	assert.Equal(t, int64(3), snap.Version())
	assert.Equal(t, 1, snap.NumFiles())
	assert.Equal(t, int64(20), snap.SizeInBytes())
	_, ok := snap.File("a.parquet")
	assert.False(t, ok, "removed file is erased")
	require.Len(t, snap.Tombstones(), 1)
	assert.Equal(t, "a.parquet", snap.Tombstones()[0].Path)

	st, ok := snap.Txn("app")
	require.True(t, ok)
	assert.Equal(t, int64(2), st.Version, "last txn wins")
}

func TestReplayReAddClearsTombstone(t *testing.T) {
	b := NewBuilder()
	for _, a := range baseActions(t) {
		b.Apply(a)
	}
	b.Apply(&action.AddFile{Path: "a.parquet", DataChange: true})
	b.Apply(&action.RemoveFile{Path: "a.parquet", DataChange: true})
	b.Apply(&action.AddFile{Path: "a.parquet", DataChange: true})

	snap, err := b.Build(2)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.NumFiles())
	assert.Empty(t, snap.Tombstones())
}

func TestReplayLastMetadataWins(t *testing.T) {
	b := NewBuilder()
	for _, a := range baseActions(t) {
		b.Apply(a)
	}
	second := action.NewMetadata("renamed", testSchema(t), nil, nil)
	b.Apply(second)
	snap, err := b.Build(1)
	require.NoError(t, err)
	assert.Equal(t, "renamed", snap.Metadata().Name)
}

func TestBuilderFromKeepsDeterminism(t *testing.T) {
	b := NewBuilder()
	for _, a := range baseActions(t) {
		b.Apply(a)
	}
	b.Apply(&action.AddFile{Path: "a.parquet", Size: 1, DataChange: true})
	snap1, err := b.Build(1)
	require.NoError(t, err)

	// folding the same tail twice from the same base yields the same state
	tail := []action.Action{
		&action.AddFile{Path: "b.parquet", Size: 2, DataChange: true},
		&action.RemoveFile{Path: "a.parquet", DataChange: true},
	}
	first := NewBuilderFrom(snap1)
	for _, a := range tail {
		first.Apply(a)
	}
	s1, err := first.Build(2)
	require.NoError(t, err)

	second := NewBuilderFrom(snap1)
	for _, a := range tail {
		second.Apply(a)
	}
	s2, err := second.Build(2)
	require.NoError(t, err)

	assert.Equal(t, s1.AllFiles(), s2.AllFiles())
	assert.Equal(t, s1.Tombstones(), s2.Tombstones())
	assert.Equal(t, snap1.NumFiles(), 1, "base snapshot is untouched")
}

func TestBuildRequiresMetadataAndProtocol(t *testing.T) {
	b := NewBuilder()
	b.Apply(&action.Protocol{MinReaderVersion: 1, MinWriterVersion: 1})
	_, err := b.Build(0)
	assert.ErrorIs(t, err, logstore.ErrCorruptLog)

	b = NewBuilder()
	b.Apply(action.NewMetadata("t", testSchema(t), nil, nil))
	_, err = b.Build(0)
	assert.ErrorIs(t, err, logstore.ErrCorruptLog)
}

func TestApplyLinesCorruptLine(t *testing.T) {
	b := NewBuilder()
	err := b.ApplyLines(4, []string{`{"add":{"path":"a"`})
	assert.ErrorIs(t, err, logstore.ErrCorruptLog)
}

func TestProtocolGate(t *testing.T) {
	b := NewBuilder()
	b.Apply(&action.Protocol{MinReaderVersion: 2, MinWriterVersion: 5})
	b.Apply(action.NewMetadata("t", testSchema(t), nil, nil))
	snap, err := b.Build(0)
	require.NoError(t, err)

	var unsupported *UnsupportedProtocolError
	require.ErrorAs(t, snap.CheckRead(), &unsupported)
	assert.Equal(t, "reader", unsupported.Role)
	assert.Equal(t, 2, unsupported.Required)

	require.ErrorAs(t, snap.CheckWrite(), &unsupported)
	assert.Equal(t, "writer", unsupported.Role)
}

func TestProtocolDowngradeRejected(t *testing.T) {
	current := action.Protocol{MinReaderVersion: 1, MinWriterVersion: 3}
	var downgrade *ProtocolDowngradeError
	assert.ErrorAs(t, CheckUpgrade(current, action.Protocol{MinReaderVersion: 1, MinWriterVersion: 2}), &downgrade)
	assert.NoError(t, CheckUpgrade(current, action.Protocol{MinReaderVersion: 1, MinWriterVersion: 3}))
	assert.NoError(t, CheckUpgrade(current, action.Protocol{MinReaderVersion: 1, MinWriterVersion: 4}))
}

func TestRequiredProtocolForFeatures(t *testing.T) {
	md := action.NewMetadata("t", testSchema(t), nil, nil)
	assert.Equal(t, action.Protocol{MinReaderVersion: 1, MinWriterVersion: 1}, RequiredProtocol(md))

	md = action.NewMetadata("t", testSchema(t), nil, map[string]string{"delta.appendOnly": "true"})
	assert.Equal(t, 2, RequiredProtocol(md).MinWriterVersion)

	md = action.NewMetadata("t", testSchema(t), nil, map[string]string{"delta.constraints.positive": "value > 0"})
	assert.Equal(t, 3, RequiredProtocol(md).MinWriterVersion)
}

func TestRequiredProtocolForInvariants(t *testing.T) {
	s := schema.StructType{Fields: []schema.StructField{
		{
			Name: "value", Type: schema.PrimitiveType(schema.TypeInteger), Nullable: true,
			Metadata: map[string]any{"delta.invariants": `{"expression":{"expression":"value > 0"}}`},
		},
	}}
	raw, err := s.ToJSON()
	require.NoError(t, err)
	md := action.NewMetadata("t", raw, nil, nil)
	assert.Equal(t, 2, RequiredProtocol(md).MinWriterVersion)
}

func TestEffectiveProtocolNeverDowngrades(t *testing.T) {
	existing := &action.Protocol{MinReaderVersion: 1, MinWriterVersion: 3}
	md := action.NewMetadata("t", testSchema(t), nil, map[string]string{"delta.appendOnly": "true"})
	assert.Equal(t, *existing, EffectiveProtocol(existing, md))
}

func TestCheckpointActionsShape(t *testing.T) {
	b := NewBuilder()
	for _, a := range baseActions(t) {
		b.Apply(a)
	}
	b.Apply(&action.AddFile{Path: "a.parquet", DataChange: true})
	b.Apply(&action.AddFile{Path: "b.parquet", DataChange: true})
	b.Apply(&action.RemoveFile{Path: "old.parquet", DataChange: true})
	b.Apply(&action.SetTransaction{AppID: "app", Version: 9})
	snap, err := b.Build(1)
	require.NoError(t, err)

	actions := snap.CheckpointActions()
	require.Len(t, actions, 6)
	assert.IsType(t, &action.Protocol{}, actions[0])
	assert.IsType(t, &action.Metadata{}, actions[1])

	// replaying the checkpoint reproduces the state
	rb := NewBuilder()
	for _, a := range actions {
		rb.Apply(a)
	}
	restored, err := rb.Build(1)
	require.NoError(t, err)
	assert.Equal(t, snap.AllFiles(), restored.AllFiles())
	assert.Equal(t, snap.Tombstones(), restored.Tombstones())
	assert.Equal(t, snap.Txns(), restored.Txns())
}
