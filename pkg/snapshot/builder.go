package snapshot

import (
	"fmt"

	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/config"
	"github.com/cuemby/delta/pkg/logstore"
)

// Builder folds an ordered action stream into table state. The fold is a
// pure left-fold: feeding the same prefix twice yields the same state.
type Builder struct {
	metadata   *action.Metadata
	protocol   *action.Protocol
	files      map[string]*action.AddFile
	tombstones map[string]*action.RemoveFile
	txns       map[string]*action.SetTransaction
}

// NewBuilder starts from empty state
func NewBuilder() *Builder {
	return &Builder{
		files:      make(map[string]*action.AddFile),
		tombstones: make(map[string]*action.RemoveFile),
		txns:       make(map[string]*action.SetTransaction),
	}
}

// NewBuilderFrom starts from an existing snapshot's state, for incremental
// updates on top of a cached snapshot
func NewBuilderFrom(s *Snapshot) *Builder {
	b := NewBuilder()
	b.metadata = s.metadata
	b.protocol = s.protocol
	for k, v := range s.files {
		b.files[k] = v
	}
	for k, v := range s.tombstones {
		b.tombstones[k] = v
	}
	for k, v := range s.txns {
		b.txns[k] = v
	}
	return b
}

// Apply folds a single action into the state
func (b *Builder) Apply(a action.Action) {
	switch v := a.(type) {
	case *action.Metadata:
		b.metadata = v
	case *action.Protocol:
		b.protocol = v
	case *action.AddFile:
		delete(b.tombstones, v.Path)
		b.files[v.Path] = v
	case *action.RemoveFile:
		delete(b.files, v.Path)
		b.tombstones[v.Path] = v
	case *action.SetTransaction:
		b.txns[v.AppID] = v
	case *action.CommitInfo:
		// provenance only
	}
}

// ApplyLines decodes and folds one delta file's lines. The file is applied
// atomically from the caller's point of view: a decode failure surfaces
// before any later line of the same file has been observed by Build.
func (b *Builder) ApplyLines(version int64, lines []string) error {
	actions, err := action.DecodeAll(lines)
	if err != nil {
		return fmt.Errorf("%w: version %d: %v", logstore.ErrCorruptLog, version, err)
	}
	for _, a := range actions {
		b.Apply(a)
	}
	return nil
}

// Build finalizes the fold into an immutable snapshot at the given version.
// Metadata and protocol are required state.
func (b *Builder) Build(version int64) (*Snapshot, error) {
	if b.metadata == nil {
		return nil, fmt.Errorf("%w: no metadata in log up to version %d", logstore.ErrCorruptLog, version)
	}
	if b.protocol == nil {
		return nil, fmt.Errorf("%w: no protocol in log up to version %d", logstore.ErrCorruptLog, version)
	}
	cfg, err := config.Parse(b.metadata.Configuration)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		version:    version,
		metadata:   b.metadata,
		protocol:   b.protocol,
		files:      b.files,
		tombstones: b.tombstones,
		txns:       b.txns,
		cfg:        cfg,
	}, nil
}
