package logstore

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	boltStore, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		fileStore.Close()
		boltStore.Close()
	})
	return map[string]Store{"file": fileStore, "bolt": boltStore}
}

func TestWriteReadRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			lines := []string{`{"protocol":{"minReaderVersion":1,"minWriterVersion":2}}`, `{"commitInfo":{"timestamp":1}}`}
			require.NoError(t, store.Write(0, lines))

			got, err := store.Read(0)
			require.NoError(t, err)
			assert.Equal(t, lines, got)
		})
	}
}

func TestWriteIsExclusive(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Write(0, []string{"a"}))
			err := store.Write(0, []string{"b"})
			assert.ErrorIs(t, err, ErrVersionExists)

			// the winner's content survives
			got, err := store.Read(0)
			require.NoError(t, err)
			assert.Equal(t, []string{"a"}, got)
		})
	}
}

func TestConcurrentWritersExactlyOneWins(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			const writers = 16
			var wg sync.WaitGroup
			results := make([]error, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i] = store.Write(7, []string{fmt.Sprintf("writer-%d", i)})
				}(i)
			}
			wg.Wait()

			wins := 0
			for _, err := range results {
				if err == nil {
					wins++
				} else {
					assert.ErrorIs(t, err, ErrVersionExists)
				}
			}
			assert.Equal(t, 1, wins, "exactly one writer must win a version")
		})
	}
}

func TestReadMissingVersion(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Read(99)
			assert.ErrorIs(t, err, ErrFileNotFound)
		})
	}
}

func TestListFromAndLatest(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.LatestVersion()
			require.NoError(t, err)
			assert.False(t, ok, "empty log has no latest version")

			for v := int64(0); v < 5; v++ {
				require.NoError(t, store.Write(v, []string{fmt.Sprintf("v%d", v)}))
			}

			entries, err := store.ListFrom(2)
			require.NoError(t, err)
			require.Len(t, entries, 3)
			assert.Equal(t, int64(2), entries[0].Version)
			assert.Equal(t, int64(4), entries[2].Version)

			latest, ok, err := store.LatestVersion()
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int64(4), latest)
		})
	}
}

func TestListFromDetectsGaps(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Write(0, []string{"v0"}))
			require.NoError(t, store.Write(1, []string{"v1"}))
			require.NoError(t, store.Write(3, []string{"v3"}))

			_, err := store.ListFrom(0)
			assert.ErrorIs(t, err, ErrCorruptLog)
		})
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			meta, err := store.LastCheckpoint()
			require.NoError(t, err)
			assert.Nil(t, meta)

			lines := []string{`{"protocol":{"minReaderVersion":1,"minWriterVersion":1}}`}
			require.NoError(t, store.WriteCheckpoint(10, lines))
			require.NoError(t, store.WriteLastCheckpoint(CheckpointMeta{Version: 10, Size: 1}))

			got, err := store.ReadCheckpoint(10)
			require.NoError(t, err)
			assert.Equal(t, lines, got)

			meta, err = store.LastCheckpoint()
			require.NoError(t, err)
			require.NotNil(t, meta)
			assert.Equal(t, int64(10), meta.Version)
		})
	}
}

func TestDeltaFileNames(t *testing.T) {
	assert.Equal(t, "00000000000000000007.json", DeltaFileName(7))
	assert.Equal(t, "00000000000000000010.checkpoint.parquet", CheckpointFileName(10))

	v, ok := ParseDeltaFileName("00000000000000000042.json")
	require.True(t, ok)
	assert.Equal(t, int64(42), v)

	_, ok = ParseDeltaFileName("00000000000000000042.checkpoint.parquet")
	assert.False(t, ok)
	_, ok = ParseDeltaFileName("42.json")
	assert.False(t, ok)
	_, ok = ParseDeltaFileName("_last_checkpoint")
	assert.False(t, ok)

	v, ok = ParseCheckpointFileName("00000000000000000010.checkpoint.parquet")
	require.True(t, ok)
	assert.Equal(t, int64(10), v)
}
