package txn

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/config"
	"github.com/cuemby/delta/pkg/expr"
	"github.com/cuemby/delta/pkg/index"
	"github.com/cuemby/delta/pkg/log"
	"github.com/cuemby/delta/pkg/logstore"
	"github.com/cuemby/delta/pkg/metrics"
	"github.com/cuemby/delta/pkg/schema"
	"github.com/cuemby/delta/pkg/snapshot"
)

// DefaultMaxRetries bounds the rebase loop of a single commit
const DefaultMaxRetries = 10

// TableRef is the view of a table handle the transaction engine needs;
// deltalog.DeltaLog implements it
type TableRef interface {
	Path() string
	Store() logstore.Store
	Snapshot() *snapshot.Snapshot
	Update() (*snapshot.Snapshot, error)
	PostCommit(version int64, committed []action.Action, operation string) (*snapshot.Snapshot, error)
}

// Transaction tracks one optimistic writer: the snapshot it read, the
// predicates and files it observed, and the actions it stages. A
// transaction is single-threaded; independent transactions run in parallel
// and serialize only through the log store's atomic write.
type Transaction struct {
	ref      TableRef
	snapshot *snapshot.Snapshot // nil when the table has no version yet
	logger   zerolog.Logger

	readVersion    int64
	readPredicates []expr.Expr
	readFiles      map[string]*action.AddFile
	readWholeTable bool

	maxRetries int
	closed     bool

	// CommittedVersion holds the version this transaction won, valid after
	// a successful Commit
	CommittedVersion int64
}

// Begin starts a transaction against the table's current snapshot
func Begin(ref TableRef) *Transaction {
	snap := ref.Snapshot()
	readVersion := int64(-1)
	if snap != nil {
		readVersion = snap.Version()
	}
	return &Transaction{
		ref:         ref,
		snapshot:    snap,
		logger:      log.WithComponent("txn").With().Str("table", ref.Path()).Logger(),
		readVersion: readVersion,
		readFiles:   make(map[string]*action.AddFile),
		maxRetries:  DefaultMaxRetries,
	}
}

// WithMaxRetries overrides the rebase attempt bound
func (t *Transaction) WithMaxRetries(n int) *Transaction {
	t.maxRetries = n
	return t
}

// ReadVersion returns the table version this transaction started from, -1
// for an uninitialized table
func (t *Transaction) ReadVersion() int64 {
	return t.readVersion
}

// Snapshot returns the snapshot the transaction reads from
func (t *Transaction) Snapshot() *snapshot.Snapshot {
	return t.snapshot
}

// Config returns the table configuration seen by this transaction
func (t *Transaction) Config() config.Table {
	if t.snapshot == nil {
		return config.Defaults()
	}
	return t.snapshot.Config()
}

// FilterFiles returns the files surviving data skipping for the given
// predicates and records both the predicates and the surviving files in
// the read-set for conflict detection
func (t *Transaction) FilterFiles(predicates []expr.Expr) ([]*action.AddFile, error) {
	if t.snapshot == nil {
		return nil, nil
	}
	filter := index.NewFilter(t.Config().StatsSkipping)
	files, err := filter.Select(t.snapshot.AllFiles(), predicates)
	if err != nil {
		return nil, err
	}
	if len(predicates) == 0 {
		t.readWholeTable = true
	}
	t.readPredicates = append(t.readPredicates, predicates...)
	for _, f := range files {
		t.readFiles[f.Path] = f
	}
	return files, nil
}

// ReadWholeTable records that the transaction logically depends on the
// entire table contents
func (t *Transaction) ReadWholeTable() {
	t.readWholeTable = true
}

// TxnVersion returns the last committed version for an idempotent writer
// app id in the transaction's snapshot, or -1 if none. The lookup is not
// recorded in the read-set; app id conflicts are detected only for the
// SetTransaction actions this transaction commits.
func (t *Transaction) TxnVersion(appID string) int64 {
	if t.snapshot == nil {
		return -1
	}
	if st, ok := t.snapshot.Txn(appID); ok {
		return st.Version
	}
	return -1
}

// Abort finishes the transaction without side effects
func (t *Transaction) Abort() {
	t.closed = true
}

// Commit validates the staged actions, writes log version readVersion+1,
// and on a lost race replays the winners through conflict detection before
// rebasing and retrying, up to the retry bound. On success it returns the
// post-commit snapshot.
func (t *Transaction) Commit(actions []action.Action, operation string) (*snapshot.Snapshot, error) {
	if t.closed {
		return nil, ErrTxnClosed
	}
	t.closed = true
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CommitDuration)

	prepared, blindAppend, err := t.prepare(actions, operation)
	if err != nil {
		return nil, err
	}
	lines, err := action.EncodeAll(prepared)
	if err != nil {
		return nil, err
	}

	attemptVersion := t.readVersion + 1
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		err := t.ref.Store().Write(attemptVersion, lines)
		if err == nil {
			t.CommittedVersion = attemptVersion
			t.logger.Info().
				Int64("version", attemptVersion).
				Str("operation", operation).
				Int("attempts", attempt+1).
				Msg("commit succeeded")
			return t.ref.PostCommit(attemptVersion, prepared, operation)
		}
		if !errors.Is(err, logstore.ErrVersionExists) {
			return nil, err
		}

		// lost the race: replay every winner since our read version
		latest, ok, lerr := t.ref.Store().LatestVersion()
		if lerr != nil {
			return nil, lerr
		}
		if !ok || latest < attemptVersion {
			return nil, fmt.Errorf("logstore reported version %d exists but latest is unknown", attemptVersion)
		}
		if cerr := t.checkConflicts(prepared, attemptVersion, latest, blindAppend); cerr != nil {
			return nil, cerr
		}
		metrics.CommitRetriesTotal.Inc()
		t.logger.Debug().
			Int64("lost_version", attemptVersion).
			Int64("rebased_to", latest+1).
			Msg("rebasing after lost commit race")
		attemptVersion = latest + 1
	}
	return nil, fmt.Errorf("%w: %d attempts", ErrMaxRetryExceeded, t.maxRetries+1)
}

// prepare validates and completes the action list
func (t *Transaction) prepare(actions []action.Action, operation string) ([]action.Action, bool, error) {
	var (
		metadataCount, protocolCount int
		commitInfo                   *action.CommitInfo
		newMetadata                  *action.Metadata
		newProtocol                  *action.Protocol
		hasRemove                    bool
		hasNonFileAction             bool
		adds                         []*action.AddFile
		removedPaths                 = map[string]bool{}
	)
	for _, a := range actions {
		switch v := a.(type) {
		case *action.Metadata:
			metadataCount++
			newMetadata = v
			hasNonFileAction = true
		case *action.Protocol:
			protocolCount++
			newProtocol = v
			hasNonFileAction = true
		case *action.CommitInfo:
			commitInfo = v
		case *action.RemoveFile:
			hasRemove = true
			removedPaths[v.Path] = true
		case *action.AddFile:
			adds = append(adds, v)
		case *action.SetTransaction:
		}
	}
	if metadataCount > 1 {
		return nil, false, fmt.Errorf("txn: commit carries %d metadata actions, at most one allowed", metadataCount)
	}
	if protocolCount > 1 {
		return nil, false, fmt.Errorf("txn: commit carries %d protocol actions, at most one allowed", protocolCount)
	}
	if newMetadata != nil {
		// bad properties must never reach the log: every later snapshot
		// rebuild would re-parse them and fail
		if _, err := config.Parse(newMetadata.Configuration); err != nil {
			return nil, false, err
		}
	}

	if t.snapshot == nil {
		if newMetadata == nil {
			return nil, false, fmt.Errorf("txn: first commit of a table must include metadata")
		}
		if newProtocol == nil {
			p := snapshot.EffectiveProtocol(nil, newMetadata)
			newProtocol = &p
			actions = append(actions, newProtocol)
		}
	} else {
		if err := t.snapshot.CheckWrite(); err != nil {
			return nil, false, err
		}
		if t.Config().AppendOnly && hasRemove {
			return nil, false, ErrAppendOnlyTable
		}
		if newProtocol != nil {
			if err := snapshot.CheckUpgrade(*t.snapshot.Protocol(), *newProtocol); err != nil {
				return nil, false, err
			}
		}
		if newMetadata != nil {
			if err := t.checkMetadataUpdate(newMetadata); err != nil {
				return nil, false, err
			}
			// features may demand a protocol upgrade alongside the metadata
			required := snapshot.EffectiveProtocol(t.snapshot.Protocol(), newMetadata)
			if newProtocol == nil && required != *t.snapshot.Protocol() {
				newProtocol = &required
				actions = append(actions, newProtocol)
			}
		}
	}

	// every added path must be new to the snapshot (or freed in this same
	// commit), and its partition values must match the partition columns
	effectiveMetadata := newMetadata
	if effectiveMetadata == nil && t.snapshot != nil {
		effectiveMetadata = t.snapshot.Metadata()
	}
	seen := map[string]bool{}
	for _, add := range adds {
		if seen[add.Path] {
			return nil, false, fmt.Errorf("txn: file %q added twice in one commit", add.Path)
		}
		seen[add.Path] = true
		if t.snapshot != nil && !removedPaths[add.Path] {
			if _, exists := t.snapshot.File(add.Path); exists {
				return nil, false, fmt.Errorf("txn: file %q is already part of the table", add.Path)
			}
		}
		if effectiveMetadata != nil {
			if err := partitionValuesMatch(add, effectiveMetadata.PartitionColumns); err != nil {
				return nil, false, err
			}
		}
	}

	// a blind append only adds data and read nothing
	blindAppend := !hasRemove && !hasNonFileAction &&
		len(t.readFiles) == 0 && len(t.readPredicates) == 0 && !t.readWholeTable

	if commitInfo == nil {
		commitInfo = action.NewCommitInfo(operation, nil, t.readVersion, blindAppend)
		actions = append([]action.Action{commitInfo}, actions...)
	} else {
		isolation := action.IsolationSerializable
		if blindAppend {
			isolation = action.IsolationSnapshotIsolation
		}
		commitInfo.IsolationLevel = isolation
		commitInfo.IsBlindAppend = &blindAppend
		if t.readVersion >= 0 && commitInfo.ReadVersion == nil {
			rv := t.readVersion
			commitInfo.ReadVersion = &rv
		}
	}
	return actions, blindAppend, nil
}

// checkMetadataUpdate verifies the replacement schema remains readable by
// existing readers and the partition columns stay valid
func (t *Transaction) checkMetadataUpdate(m *action.Metadata) error {
	newSchema, err := schema.FromJSON(m.SchemaString)
	if err != nil {
		return err
	}
	if err := schema.ValidatePartitionColumns(newSchema, m.PartitionColumns); err != nil {
		return err
	}
	oldSchema, err := t.snapshot.Schema()
	if err != nil {
		return err
	}
	return schema.CheckReadCompatible(oldSchema, newSchema)
}

// partitionValuesMatch verifies an AddFile carries exactly the table's
// partition columns as its partition value keys
func partitionValuesMatch(add *action.AddFile, partitionColumns []string) error {
	if len(add.PartitionValues) != len(partitionColumns) {
		return fmt.Errorf("txn: file %q has %d partition values, table has %d partition columns",
			add.Path, len(add.PartitionValues), len(partitionColumns))
	}
	for _, col := range partitionColumns {
		if _, ok := add.PartitionValues[col]; !ok {
			return fmt.Errorf("txn: file %q is missing partition value for column %q", add.Path, col)
		}
	}
	return nil
}
