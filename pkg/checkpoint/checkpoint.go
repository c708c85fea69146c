package checkpoint

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/log"
	"github.com/cuemby/delta/pkg/logstore"
	"github.com/cuemby/delta/pkg/snapshot"
)

// Manager writes and locates checkpoints. Checkpoints are advisory: a failed
// write is logged and retried at a later commit, and their absence only
// affects replay cost, never correctness.
type Manager struct {
	store  logstore.Store
	logger zerolog.Logger
}

// NewManager creates a checkpoint manager over a log store
func NewManager(store logstore.Store) *Manager {
	return &Manager{
		store:  store,
		logger: log.WithComponent("checkpoint"),
	}
}

// ShouldCheckpoint reports whether a checkpoint is due after committing the
// given version, per the table's checkpoint interval
func (m *Manager) ShouldCheckpoint(version int64, interval int) bool {
	if interval <= 0 {
		return false
	}
	return (version+1)%int64(interval) == 0
}

// Write serializes the snapshot state and publishes the checkpoint plus the
// _last_checkpoint pointer. Tombstones past the log retention horizon are
// dropped here; this is the GC point for RemoveFile entries.
func (m *Manager) Write(snap *snapshot.Snapshot) error {
	cutoff := time.Now().Add(-snap.Config().LogRetention).UnixMilli()
	all := snap.CheckpointActions()
	kept := make([]action.Action, 0, len(all))
	for _, a := range all {
		if r, ok := a.(*action.RemoveFile); ok {
			if r.DeletionTimestamp != nil && *r.DeletionTimestamp < cutoff {
				continue
			}
		}
		kept = append(kept, a)
	}
	lines, err := action.EncodeAll(kept)
	if err != nil {
		return fmt.Errorf("checkpoint: encode snapshot: %w", err)
	}
	if err := m.store.WriteCheckpoint(snap.Version(), lines); err != nil {
		return err
	}
	meta := logstore.CheckpointMeta{Version: snap.Version(), Size: int64(len(lines))}
	if err := m.store.WriteLastCheckpoint(meta); err != nil {
		return err
	}
	m.logger.Debug().
		Int64("version", snap.Version()).
		Int64("size", meta.Size).
		Msg("checkpoint written")
	return nil
}

// MaybeWrite writes a checkpoint when one is due. Failures are logged and
// swallowed: the next due commit retries.
func (m *Manager) MaybeWrite(snap *snapshot.Snapshot, interval int) {
	if !m.ShouldCheckpoint(snap.Version(), interval) {
		return
	}
	if err := m.Write(snap); err != nil {
		m.logger.Warn().Err(err).
			Int64("version", snap.Version()).
			Msg("checkpoint write failed, will retry at a later commit")
	}
}

// Latest returns the newest usable checkpoint at or below maxVersion, nil
// when none exists. A stale or unreadable pointer falls back to nil.
func (m *Manager) Latest(maxVersion int64) (*logstore.CheckpointMeta, error) {
	meta, err := m.store.LastCheckpoint()
	if err != nil {
		return nil, err
	}
	if meta == nil || (maxVersion >= 0 && meta.Version > maxVersion) {
		return nil, nil
	}
	return meta, nil
}

// Read returns the decoded actions of the checkpoint at version
func (m *Manager) Read(version int64) ([]action.Action, error) {
	lines, err := m.store.ReadCheckpoint(version)
	if err != nil {
		return nil, err
	}
	return action.DecodeAll(lines)
}
