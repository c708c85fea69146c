package snapshot

import (
	"fmt"
	"sort"

	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/config"
	"github.com/cuemby/delta/pkg/schema"
)

// Snapshot is the immutable logical state of a table at one version.
// Mutation happens by committing a new version; readers hold a snapshot
// without locking.
type Snapshot struct {
	version    int64
	metadata   *action.Metadata
	protocol   *action.Protocol
	files      map[string]*action.AddFile
	tombstones map[string]*action.RemoveFile
	txns       map[string]*action.SetTransaction
	cfg        config.Table
}

// Version returns the highest log version folded into this snapshot
func (s *Snapshot) Version() int64 {
	return s.version
}

// Metadata returns the effective table metadata
func (s *Snapshot) Metadata() *action.Metadata {
	return s.metadata
}

// Protocol returns the effective protocol versions
func (s *Snapshot) Protocol() *action.Protocol {
	return s.protocol
}

// Config returns the parsed table properties
func (s *Snapshot) Config() config.Table {
	return s.cfg
}

// File returns the AddFile for a path, if present
func (s *Snapshot) File(path string) (*action.AddFile, bool) {
	f, ok := s.files[path]
	return f, ok
}

// AllFiles returns the current file set sorted by path
func (s *Snapshot) AllFiles() []*action.AddFile {
	out := make([]*action.AddFile, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Tombstones returns the retained RemoveFile entries sorted by path
func (s *Snapshot) Tombstones() []*action.RemoveFile {
	out := make([]*action.RemoveFile, 0, len(s.tombstones))
	for _, r := range s.tombstones {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Txn returns the latest SetTransaction for an application id
func (s *Snapshot) Txn(appID string) (*action.SetTransaction, bool) {
	t, ok := s.txns[appID]
	return t, ok
}

// Txns returns all application transactions sorted by app id
func (s *Snapshot) Txns() []*action.SetTransaction {
	out := make([]*action.SetTransaction, 0, len(s.txns))
	for _, t := range s.txns {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppID < out[j].AppID })
	return out
}

// NumFiles returns the number of live data files
func (s *Snapshot) NumFiles() int {
	return len(s.files)
}

// SizeInBytes returns the total size of the live data files
func (s *Snapshot) SizeInBytes() int64 {
	var total int64
	for _, f := range s.files {
		total += f.Size
	}
	return total
}

// Schema parses the table schema from the metadata
func (s *Snapshot) Schema() (schema.StructType, error) {
	return schema.FromJSON(s.metadata.SchemaString)
}

// PartitionSchema returns the schema restricted to the partition columns
func (s *Snapshot) PartitionSchema() (schema.StructType, error) {
	full, err := s.Schema()
	if err != nil {
		return schema.StructType{}, err
	}
	return full.Project(s.metadata.PartitionColumns)
}

// IsPartitionColumn reports whether name is one of the partition columns
func (s *Snapshot) IsPartitionColumn(name string) bool {
	for _, c := range s.metadata.PartitionColumns {
		if c == name {
			return true
		}
	}
	return false
}

// CheckpointActions serializes the snapshot state into the action sequence a
// checkpoint stores: protocol, metadata, app transactions, tombstones, files.
func (s *Snapshot) CheckpointActions() []action.Action {
	out := make([]action.Action, 0, 2+len(s.txns)+len(s.tombstones)+len(s.files))
	out = append(out, s.protocol, s.metadata)
	for _, t := range s.Txns() {
		out = append(out, t)
	}
	for _, r := range s.Tombstones() {
		out = append(out, r)
	}
	for _, f := range s.AllFiles() {
		out = append(out, f)
	}
	return out
}

func (s *Snapshot) String() string {
	return fmt.Sprintf("Snapshot(version=%d, files=%d, size=%d)", s.version, len(s.files), s.SizeInBytes())
}
