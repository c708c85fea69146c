package stream

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/deltalog"
	"github.com/cuemby/delta/pkg/events"
	"github.com/cuemby/delta/pkg/log"
	"github.com/cuemby/delta/pkg/logstore"
	"github.com/cuemby/delta/pkg/metrics"
	"github.com/cuemby/delta/pkg/schema"
	"github.com/cuemby/delta/pkg/snapshot"
)

// DefaultMaxFilesPerTrigger bounds a micro-batch when no limit is set
const DefaultMaxFilesPerTrigger = 1000

// Options configures a streaming source
type Options struct {
	// MaxFilesPerTrigger caps a micro-batch by file count; 0 means the
	// default, negative means unlimited
	MaxFilesPerTrigger int

	// MaxBytesPerTrigger caps a micro-batch by admitted bytes; 0 means no
	// byte cap. File and byte caps compose: a batch stops at whichever
	// trips first (at least one file is always admitted).
	MaxBytesPerTrigger int64

	// ReadAllAvailable ignores both caps
	ReadAllAvailable bool

	// IgnoreChanges tolerates versions that rewrite data (updates, merges);
	// admitted AddFiles may then carry duplicated rows
	IgnoreChanges bool

	// IgnoreDeletes tolerates pure deletion versions
	IgnoreDeletes bool

	// StartingVersion starts the stream at a commit version instead of
	// backfilling the current snapshot
	StartingVersion *int64

	// StartingVersionLatest starts at the next future commit
	StartingVersionLatest bool

	// StartingTimestamp starts at the earliest commit whose timestamp is
	// at or after it, or the next commit if none exists yet
	StartingTimestamp *time.Time
}

// IndexedFile is one admitted AddFile with its stable stream position
type IndexedFile struct {
	Version           int64
	Index             int64
	IsStartingVersion bool
	Add               *action.AddFile
}

// Source serves the table's AddFiles as an incremental, offset-addressed
// stream in (version, index) order
type Source struct {
	dl          *deltalog.DeltaLog
	opts        Options
	tableID     string
	startSchema schema.StructType
	logger      zerolog.Logger
}

// NewSource opens a streaming source over an initialized table, capturing
// the starting schema every later version is checked against
func NewSource(dl *deltalog.DeltaLog, opts Options) (*Source, error) {
	snap, err := dl.Update()
	if err != nil {
		return nil, err
	}
	sch, err := snap.Schema()
	if err != nil {
		return nil, err
	}
	return &Source{
		dl:          dl,
		opts:        opts,
		tableID:     snap.Metadata().ID,
		startSchema: sch,
		logger:      log.WithComponent("stream").With().Str("table", dl.Path()).Logger(),
	}, nil
}

// limits is the admission control state of one batch
type limits struct {
	files     int
	bytes     int64
	unlimited bool
	admitted  int
	bytesUsed int64
}

func (s *Source) newLimits() *limits {
	if s.opts.ReadAllAvailable {
		return &limits{unlimited: true}
	}
	l := &limits{files: s.opts.MaxFilesPerTrigger, bytes: s.opts.MaxBytesPerTrigger}
	if l.files == 0 {
		l.files = DefaultMaxFilesPerTrigger
	}
	return l
}

// admit decides whether one more file fits the batch
func (l *limits) admit(f *action.AddFile) bool {
	if l.unlimited {
		return true
	}
	if l.admitted == 0 {
		// always make progress
		l.admitted++
		l.bytesUsed += f.Size
		return true
	}
	if l.files > 0 && l.admitted >= l.files {
		return false
	}
	if l.bytes > 0 && l.bytesUsed+f.Size > l.bytes {
		return false
	}
	l.admitted++
	l.bytesUsed += f.Size
	return true
}

// startOffset resolves the position the stream begins at when no previous
// offset exists
func (s *Source) startOffset() (Offset, error) {
	latest, ok, err := s.dl.Store().LatestVersion()
	if err != nil {
		return Offset{}, err
	}
	if !ok {
		return Offset{}, deltalog.ErrTableNotInitialized
	}

	switch {
	case s.opts.StartingVersionLatest:
		return Offset{TableID: s.tableID, ReservoirVersion: latest + 1, Index: IndexSentinel}, nil
	case s.opts.StartingVersion != nil:
		return Offset{TableID: s.tableID, ReservoirVersion: *s.opts.StartingVersion, Index: IndexSentinel}, nil
	case s.opts.StartingTimestamp != nil:
		v, err := s.versionAtOrAfter(*s.opts.StartingTimestamp, latest)
		if err != nil {
			return Offset{}, err
		}
		return Offset{TableID: s.tableID, ReservoirVersion: v, Index: IndexSentinel}, nil
	default:
		// backfill: the current snapshot is served as a synthetic version
		snap := s.dl.Snapshot()
		return Offset{
			TableID:           s.tableID,
			ReservoirVersion:  snap.Version(),
			Index:             IndexSentinel,
			IsStartingVersion: true,
		}, nil
	}
}

// versionAtOrAfter finds the earliest version whose commit timestamp is at
// or after ts, or latest+1 when every commit predates it
func (s *Source) versionAtOrAfter(ts time.Time, latest int64) (int64, error) {
	target := ts.UnixMilli()
	entries, err := s.dl.Store().ListFrom(0)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		lines, err := s.dl.Store().Read(e.Version)
		if err != nil {
			return 0, err
		}
		actions, err := action.DecodeAll(lines)
		if err != nil {
			return 0, err
		}
		for _, a := range actions {
			if ci, ok := a.(*action.CommitInfo); ok {
				if ci.Timestamp >= target {
					return e.Version, nil
				}
				break
			}
		}
	}
	return latest + 1, nil
}

// filesFrom lists every servable file strictly after the offset, honoring
// the per-version hygiene rules
func (s *Source) filesFrom(from Offset) ([]IndexedFile, error) {
	var out []IndexedFile

	if from.IsStartingVersion {
		if _, err := s.dl.Update(); err != nil {
			return nil, err
		}
		backfillVersion := from.ReservoirVersion
		files, err := s.backfillFiles(backfillVersion)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.Index > from.Index {
				out = append(out, f)
			}
		}
		tail, err := s.deltaFiles(backfillVersion+1, IndexSentinel)
		if err != nil {
			return nil, err
		}
		return append(out, tail...), nil
	}

	return s.deltaFiles(from.ReservoirVersion, from.Index)
}

// backfillFiles serves the snapshot at version as a synthetic batch,
// ordered by modification time then path for a stable index assignment
func (s *Source) backfillFiles(version int64) ([]IndexedFile, error) {
	snap, err := s.snapshotAt(version)
	if err != nil {
		return nil, err
	}
	files := snap.AllFiles()
	sort.Slice(files, func(i, j int) bool {
		if files[i].ModificationTime != files[j].ModificationTime {
			return files[i].ModificationTime < files[j].ModificationTime
		}
		return files[i].Path < files[j].Path
	})
	out := make([]IndexedFile, 0, len(files))
	for i, f := range files {
		out = append(out, IndexedFile{
			Version:           version,
			Index:             int64(i),
			IsStartingVersion: true,
			Add:               f,
		})
	}
	return out, nil
}

func (s *Source) snapshotAt(version int64) (*snapshot.Snapshot, error) {
	if snap := s.dl.Snapshot(); snap != nil && snap.Version() == version {
		return snap, nil
	}
	return s.dl.SnapshotAt(version)
}

// deltaFiles lists the data-changing AddFiles of committed versions
// starting at fromVersion, skipping indexes at or below afterIndex within
// the first version
func (s *Source) deltaFiles(fromVersion, afterIndex int64) ([]IndexedFile, error) {
	latest, ok, err := s.dl.Store().LatestVersion()
	if err != nil {
		return nil, err
	}
	if !ok || fromVersion > latest {
		return nil, nil
	}

	var out []IndexedFile
	for v := fromVersion; v <= latest; v++ {
		lines, err := s.dl.Store().Read(v)
		if err != nil {
			if errors.Is(err, logstore.ErrFileNotFound) {
				// fromVersion may predate the table; nothing to serve yet
				continue
			}
			return nil, err
		}
		actions, err := action.DecodeAll(lines)
		if err != nil {
			return nil, err
		}
		files, err := s.versionFiles(v, actions)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if v == fromVersion && f.Index <= afterIndex {
				continue
			}
			out = append(out, f)
		}
	}
	return out, nil
}

// versionFiles applies the per-version hygiene rules and indexes the
// data-changing AddFiles
func (s *Source) versionFiles(version int64, actions []action.Action) ([]IndexedFile, error) {
	var (
		adds       []*action.AddFile
		hasDataAdd bool
		hasDataRem bool
	)
	for _, a := range actions {
		switch v := a.(type) {
		case *action.AddFile:
			if v.DataChange {
				hasDataAdd = true
				adds = append(adds, v)
			}
			// compaction output is invisible to the stream
		case *action.RemoveFile:
			if v.DataChange {
				hasDataRem = true
			}
		case *action.Metadata:
			newSchema, err := schema.FromJSON(v.SchemaString)
			if err != nil {
				return nil, err
			}
			if err := schema.CheckReadCompatible(s.startSchema, newSchema); err != nil {
				return nil, &SchemaChangedError{Version: version, Cause: err}
			}
		case *action.Protocol:
			if v.MinReaderVersion > snapshot.SupportedReaderVersion {
				return nil, &snapshot.UnsupportedProtocolError{
					Role:      "reader",
					Required:  v.MinReaderVersion,
					Supported: snapshot.SupportedReaderVersion,
				}
			}
		}
	}

	if hasDataRem {
		if hasDataAdd && !s.opts.IgnoreChanges {
			return nil, &ChangeError{Version: version}
		}
		if !hasDataAdd && !s.opts.IgnoreDeletes && !s.opts.IgnoreChanges {
			return nil, &ChangeError{Version: version, PureDelete: true}
		}
	}

	out := make([]IndexedFile, 0, len(adds))
	for i, f := range adds {
		out = append(out, IndexedFile{Version: version, Index: int64(i), Add: f})
	}
	return out, nil
}

// LatestOffset computes the end offset of the next micro-batch after prev,
// honoring admission control. It returns prev itself (or the resolved
// start) when no new file is available.
func (s *Source) LatestOffset(prev *Offset) (*Offset, error) {
	start, err := s.resolve(prev)
	if err != nil {
		return nil, err
	}
	files, err := s.filesFrom(start)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		if prev == nil {
			return &start, nil
		}
		return prev, nil
	}

	lim := s.newLimits()
	last := -1
	for i, f := range files {
		if !lim.admit(f.Add) {
			break
		}
		last = i
	}
	if last < 0 {
		return prev, nil
	}

	end := files[last]
	offset := Offset{
		TableID:           s.tableID,
		ReservoirVersion:  end.Version,
		Index:             end.Index,
		IsStartingVersion: end.IsStartingVersion,
	}
	// end-of-version bump: when the batch drains a version completely, the
	// committed offset points before the next version so the version is
	// never re-read
	if last == len(files)-1 || files[last+1].Version != end.Version {
		offset = Offset{
			TableID:          s.tableID,
			ReservoirVersion: end.Version + 1,
			Index:            IndexSentinel,
		}
	}
	return &offset, nil
}

// Batch lists the admitted files in (start, end]; a nil start means the
// resolved stream start
func (s *Source) Batch(start, end *Offset) ([]IndexedFile, error) {
	if end == nil {
		return nil, fmt.Errorf("stream: batch requires an end offset")
	}
	if end.TableID != "" && end.TableID != s.tableID {
		return nil, fmt.Errorf("stream: offset belongs to table %s, not %s", end.TableID, s.tableID)
	}
	resolved, err := s.resolve(start)
	if err != nil {
		return nil, err
	}
	files, err := s.filesFrom(resolved)
	if err != nil {
		return nil, err
	}
	var out []IndexedFile
	for _, f := range files {
		pos := Offset{ReservoirVersion: f.Version, Index: f.Index}
		limit := Offset{ReservoirVersion: end.ReservoirVersion, Index: end.Index}
		if limit.Before(pos) {
			break
		}
		out = append(out, f)
	}
	metrics.StreamBatchesTotal.Inc()
	metrics.StreamFilesTotal.Add(float64(len(out)))
	s.logger.Debug().
		Int("files", len(out)).
		Str("end", end.String()).
		Msg("micro-batch served")
	return out, nil
}

func (s *Source) resolve(prev *Offset) (Offset, error) {
	if prev != nil {
		if prev.TableID != "" && prev.TableID != s.tableID {
			return Offset{}, fmt.Errorf("stream: offset belongs to table %s, not %s", prev.TableID, s.tableID)
		}
		return *prev, nil
	}
	return s.startOffset()
}

// WaitForCommit blocks until a new version is committed to the table or
// the stop channel closes, so consumers wake on the table's event broker
// instead of polling the log store. It returns true when a commit event
// was observed; callers then re-run LatestOffset. A commit can land
// between a LatestOffset call and the subscription, so an empty
// LatestOffset after a wake-up is normal.
func (s *Source) WaitForCommit(stop <-chan struct{}) bool {
	broker := s.dl.Broker()
	if broker == nil {
		return false
	}
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	for {
		select {
		case event, ok := <-sub:
			if !ok {
				return false
			}
			if event.Type == events.EventCommit && event.Table == s.dl.Path() {
				return true
			}
		case <-stop:
			return false
		}
	}
}
