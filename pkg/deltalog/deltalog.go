package deltalog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/checkpoint"
	"github.com/cuemby/delta/pkg/events"
	"github.com/cuemby/delta/pkg/log"
	"github.com/cuemby/delta/pkg/logstore"
	"github.com/cuemby/delta/pkg/metrics"
	"github.com/cuemby/delta/pkg/snapshot"
)

// ErrPartialTableScan indicates an attempt to open a subdirectory of a
// partitioned table; tables must be opened at their root
var ErrPartialTableScan = errors.New("deltalog: path is inside a table, open the table root instead")

// ErrTableNotInitialized indicates the log holds no committed version yet
var ErrTableNotInitialized = errors.New("deltalog: table has no committed version")

// DeltaLog is the shared handle to one table's log. It caches the latest
// snapshot under a mutex; the snapshot itself is immutable and may be held
// by readers without locking.
type DeltaLog struct {
	path        string
	store       logstore.Store
	checkpoints *checkpoint.Manager
	broker      *events.Broker
	logger      zerolog.Logger

	mu      sync.Mutex
	current *snapshot.Snapshot
}

func newDeltaLog(path string, store logstore.Store, broker *events.Broker) (*DeltaLog, error) {
	l := &DeltaLog{
		path:        path,
		store:       store,
		checkpoints: checkpoint.NewManager(store),
		broker:      broker,
		logger:      log.WithTable(path),
	}
	if _, err := l.Update(); err != nil && !errors.Is(err, ErrTableNotInitialized) {
		return nil, err
	}
	return l, nil
}

// Path returns the table root path
func (l *DeltaLog) Path() string {
	return l.path
}

// Store returns the underlying log store
func (l *DeltaLog) Store() logstore.Store {
	return l.store
}

// Checkpoints returns the table's checkpoint manager
func (l *DeltaLog) Checkpoints() *checkpoint.Manager {
	return l.checkpoints
}

// TableID returns the table's stable metadata id, empty before the first
// commit
func (l *DeltaLog) TableID() string {
	if snap := l.Snapshot(); snap != nil {
		return snap.Metadata().ID
	}
	return ""
}

// Snapshot returns the cached latest snapshot, nil for an uninitialized
// table
func (l *DeltaLog) Snapshot() *snapshot.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Update reconstructs the latest snapshot: the cached snapshot when one is
// held, otherwise the newest checkpoint at or below the latest version,
// plus every delta file after it, folded in order.
func (l *DeltaLog) Update() (*snapshot.Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.updateLocked()
}

func (l *DeltaLog) updateLocked() (*snapshot.Snapshot, error) {
	timer := metrics.NewTimer()

	latest, ok, err := l.store.LatestVersion()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTableNotInitialized
	}
	if l.current != nil && l.current.Version() == latest {
		return l.current, nil
	}

	builder := snapshot.NewBuilder()
	replayFrom := int64(0)

	switch {
	case l.current != nil && l.current.Version() < latest:
		// incremental: fold only the new deltas onto the cached state
		builder = snapshot.NewBuilderFrom(l.current)
		replayFrom = l.current.Version() + 1
	default:
		meta, err := l.checkpoints.Latest(latest)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			actions, err := l.checkpoints.Read(meta.Version)
			if err != nil {
				// a lost checkpoint only costs replay time
				l.logger.Warn().Err(err).Int64("version", meta.Version).
					Msg("checkpoint unreadable, replaying full log")
			} else {
				for _, a := range actions {
					builder.Apply(a)
				}
				replayFrom = meta.Version + 1
			}
		}
	}

	entries, err := l.store.ListFrom(replayFrom)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 && entries[0].Version != replayFrom {
		return nil, fmt.Errorf("%w: expected version %d, found %d",
			logstore.ErrCorruptLog, replayFrom, entries[0].Version)
	}
	for _, entry := range entries {
		lines, err := l.store.Read(entry.Version)
		if err != nil {
			return nil, err
		}
		if err := builder.ApplyLines(entry.Version, lines); err != nil {
			return nil, err
		}
	}

	snap, err := builder.Build(latest)
	if err != nil {
		return nil, err
	}
	if err := snap.CheckRead(); err != nil {
		return nil, err
	}

	l.current = snap
	timer.ObserveDuration(metrics.SnapshotLoadDuration)
	metrics.SnapshotFiles.WithLabelValues(l.path).Set(float64(snap.NumFiles()))
	metrics.SnapshotSizeBytes.WithLabelValues(l.path).Set(float64(snap.SizeInBytes()))
	l.logger.Debug().Int64("version", snap.Version()).Int("files", snap.NumFiles()).
		Msg("snapshot loaded")
	return snap, nil
}

// SnapshotAt reconstructs the table state at a historical version for
// time-travel reads
func (l *DeltaLog) SnapshotAt(version int64) (*snapshot.Snapshot, error) {
	latest, ok, err := l.store.LatestVersion()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTableNotInitialized
	}
	if version < 0 || version > latest {
		return nil, fmt.Errorf("%w: version %d (latest is %d)", logstore.ErrFileNotFound, version, latest)
	}

	builder := snapshot.NewBuilder()
	replayFrom := int64(0)
	if meta, err := l.checkpoints.Latest(version); err == nil && meta != nil {
		if actions, err := l.checkpoints.Read(meta.Version); err == nil {
			for _, a := range actions {
				builder.Apply(a)
			}
			replayFrom = meta.Version + 1
		}
	}
	for v := replayFrom; v <= version; v++ {
		lines, err := l.store.Read(v)
		if err != nil {
			return nil, err
		}
		if err := builder.ApplyLines(v, lines); err != nil {
			return nil, err
		}
	}
	snap, err := builder.Build(version)
	if err != nil {
		return nil, err
	}
	if err := snap.CheckRead(); err != nil {
		return nil, err
	}
	return snap, nil
}

// PostCommit is invoked by the transaction engine after it wins a version.
// It refreshes the cache, writes a due checkpoint, and publishes events.
func (l *DeltaLog) PostCommit(version int64, committed []action.Action, operation string) (*snapshot.Snapshot, error) {
	snap, err := l.Update()
	if err != nil {
		return nil, err
	}

	metrics.CommitsTotal.WithLabelValues(operation).Inc()
	if l.broker != nil {
		l.broker.Publish(&events.Event{
			Type:      events.EventCommit,
			Table:     l.path,
			Version:   version,
			Operation: operation,
		})
		for _, a := range committed {
			switch a.(type) {
			case *action.Metadata:
				l.broker.Publish(&events.Event{
					Type: events.EventMetadata, Table: l.path, Version: version, Operation: operation,
				})
			case *action.Protocol:
				l.broker.Publish(&events.Event{
					Type: events.EventProtocol, Table: l.path, Version: version, Operation: operation,
				})
			}
		}
	}

	if snap.Version() >= version {
		l.maybeCheckpoint(snap)
	}
	return snap, nil
}

func (l *DeltaLog) maybeCheckpoint(snap *snapshot.Snapshot) {
	interval := snap.Config().CheckpointInterval
	if !l.checkpoints.ShouldCheckpoint(snap.Version(), interval) {
		return
	}
	if err := l.checkpoints.Write(snap); err != nil {
		metrics.CheckpointFailuresTotal.Inc()
		l.logger.Warn().Err(err).Int64("version", snap.Version()).
			Msg("checkpoint write failed, will retry at a later commit")
		return
	}
	metrics.CheckpointsWrittenTotal.Inc()
	if l.broker != nil {
		l.broker.Publish(&events.Event{
			Type:    events.EventCheckpoint,
			Table:   l.path,
			Version: snap.Version(),
		})
	}
}

// Broker returns the event broker shared through the registry, nil when
// the log was opened without one
func (l *DeltaLog) Broker() *events.Broker {
	return l.broker
}
