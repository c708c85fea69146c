package merge

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/expr"
	"github.com/cuemby/delta/pkg/log"
	"github.com/cuemby/delta/pkg/metrics"
	"github.com/cuemby/delta/pkg/runtime"
	"github.com/cuemby/delta/pkg/schema"
	"github.com/cuemby/delta/pkg/snapshot"
	"github.com/cuemby/delta/pkg/txn"
)

// synthetic row columns threaded through the joins
const (
	colSourcePresent = "__source_present"
	colTargetPresent = "__target_present"
	colFile          = "__file"
	colRowID         = "__row_id"
)

// Command is one MERGE INTO: join source against the target table on
// Condition and apply the ordered WHEN clauses. Clauses are evaluated in
// listed order; the first whose predicate holds fires.
type Command struct {
	Source      runtime.Source
	SourceAlias string // default "s"
	TargetAlias string // default "t"
	Condition   expr.Expr
	Matched     []MatchedClause
	NotMatched  []NotMatchedClause

	// MaxAttempts bounds reruns from the file-finding phase after a commit
	// conflict; the read-set depends on the snapshot, so a conflicted merge
	// restarts from scratch
	MaxAttempts int
}

// Run executes the merge against the table and returns the recorded
// metrics with the post-commit snapshot
func (c *Command) Run(ref txn.TableRef, rt runtime.QueryRuntime) (Metrics, *snapshot.Snapshot, error) {
	if c.SourceAlias == "" {
		c.SourceAlias = "s"
	}
	if c.TargetAlias == "" {
		c.TargetAlias = "t"
	}
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = txn.DefaultMaxRetries
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.MergeDuration)

	logger := log.WithComponent("merge").With().Str("table", ref.Path()).Logger()
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		m, snap, err := c.runOnce(ref, rt, logger)
		if err == nil {
			metrics.MergeRowsTotal.WithLabelValues("copied").Add(float64(m.TargetRowsCopied))
			metrics.MergeRowsTotal.WithLabelValues("updated").Add(float64(m.TargetRowsUpdated))
			metrics.MergeRowsTotal.WithLabelValues("inserted").Add(float64(m.TargetRowsInserted))
			metrics.MergeRowsTotal.WithLabelValues("deleted").Add(float64(m.TargetRowsDeleted))
			return m, snap, nil
		}
		if !txn.IsConflict(err) {
			return m, nil, err
		}
		lastErr = err
		logger.Warn().Err(err).Int("attempt", attempt+1).
			Msg("merge hit a concurrent commit, rerunning from file finding")
		if _, uerr := ref.Update(); uerr != nil {
			return m, nil, uerr
		}
	}
	return Metrics{}, nil, lastErr
}

func (c *Command) runOnce(ref txn.TableRef, rt runtime.QueryRuntime, logger zerolog.Logger) (Metrics, *snapshot.Snapshot, error) {
	var m Metrics

	tx := txn.Begin(ref)
	snap := tx.Snapshot()
	if snap == nil {
		return m, nil, ErrNoSnapshot
	}
	targetSchema, err := snap.Schema()
	if err != nil {
		return m, nil, err
	}

	// schema evolution widens the target before clause validation so
	// evolved columns are assignable
	finalSchema := targetSchema
	var evolvedMetadata *action.Metadata
	if tx.Config().AutoMergeSchema {
		evolved, err := schema.Merge(targetSchema, c.Source.Schema())
		if err != nil {
			return m, nil, err
		}
		evolvedJSON, err := evolved.ToJSON()
		if err != nil {
			return m, nil, err
		}
		if evolvedJSON != snap.Metadata().SchemaString {
			finalSchema = evolved
			md := *snap.Metadata()
			md.SchemaString = evolvedJSON
			evolvedMetadata = &md
		}
	}
	if err := c.validateClauses(finalSchema); err != nil {
		return m, nil, err
	}

	// ---- Phase A: find touched files ----

	conjuncts := expr.SplitConjuncts(c.Condition)
	var targetOnly []expr.Expr
	for _, p := range conjuncts {
		if expr.ReferencesOnly(p, c.TargetAlias) {
			targetOnly = append(targetOnly, expr.StripQualifier(p, c.TargetAlias))
		}
	}
	m.TargetFilesBeforeSkipping = int64(snap.NumFiles())
	candidates, err := tx.FilterFiles(targetOnly)
	if err != nil {
		return m, nil, err
	}
	m.TargetFilesAfterSkipping = int64(len(candidates))

	sourceRows, err := c.collectSource()
	if err != nil {
		return m, nil, err
	}
	m.SourceRows = int64(len(sourceRows))

	// insert-only merges skip the target rewrite entirely
	if c.insertOnly() && tx.Config().MergeInsertOnly {
		return c.runInsertOnly(tx, rt, ref, snap, finalSchema, evolvedMetadata, candidates, sourceRows, m)
	}

	targetRows, err := c.scanTargetRows(rt, candidates)
	if err != nil {
		return m, nil, err
	}

	matchCounts := map[string]int64{}
	touched := map[string]bool{}
	inner, err := rt.Join(
		runtime.NewSliceRows(sourceRows), nil,
		runtime.NewSliceRows(targetRows), nil,
		c.Condition, runtime.JoinInner,
	)
	if err != nil {
		return m, nil, err
	}
	for {
		row, ok := inner.Next()
		if !ok {
			break
		}
		matchCounts[row[colRowID].(string)]++
		touched[row[colFile].(string)] = true
	}
	if err := inner.Err(); err != nil {
		return m, nil, err
	}
	if !c.unambiguousMultiMatch() {
		for rid, count := range matchCounts {
			if count > 1 {
				return m, nil, fmt.Errorf("%w: row %s matched %d source rows", ErrMultipleSourceMatch, rid, count)
			}
		}
	}
	logger.Debug().
		Int("candidate_files", len(candidates)).
		Int("touched_files", len(touched)).
		Int("source_rows", len(sourceRows)).
		Msg("merge file finding complete")

	// ---- Phase B: write new files ----

	var touchedRows []expr.Row
	for _, trow := range targetRows {
		if touched[trow[colFile].(string)] {
			touchedRows = append(touchedRows, trow)
		}
	}

	kind := runtime.JoinFullOuter
	if len(c.NotMatched) == 0 && tx.Config().MergeMatchedOnly {
		kind = runtime.JoinRightOuter
	}
	leftCols := qualifiedColumns(c.Source.Schema(), c.SourceAlias)
	leftCols = append(leftCols, colSourcePresent)
	rightCols := qualifiedColumns(targetSchema, c.TargetAlias)
	rightCols = append(rightCols, colTargetPresent, colFile, colRowID)

	joined, err := rt.Join(
		runtime.NewSliceRows(sourceRows), leftCols,
		runtime.NewSliceRows(touchedRows), rightCols,
		c.Condition, kind,
	)
	if err != nil {
		return m, nil, err
	}

	output, deletedRows, err := c.processJoined(joined, finalSchema, &m)
	if err != nil {
		return m, nil, err
	}
	m.TargetRowsDeleted = int64(len(deletedRows))

	var added []*action.AddFile
	if len(output) > 0 {
		added, err = rt.Write(runtime.NewSliceRows(output), finalSchema,
			snap.Metadata().PartitionColumns, ref.Path())
		if err != nil {
			return m, nil, err
		}
	}
	m.TargetFilesAdded = int64(len(added))
	m.TargetFilesRemoved = int64(len(touched))

	// ---- Phase C: commit ----

	deletionTime := time.Now().UnixMilli()
	var actions []action.Action
	if evolvedMetadata != nil {
		actions = append(actions, evolvedMetadata)
	}
	for _, f := range candidates {
		if touched[f.Path] {
			actions = append(actions, f.Remove(deletionTime, true))
		}
	}
	for _, a := range added {
		actions = append(actions, a)
	}
	if len(actions) == 0 {
		tx.Abort()
		return m, snap, nil
	}

	ci := action.NewCommitInfo(action.OpMerge, c.operationParameters(), tx.ReadVersion(), false)
	ci.OperationMetrics = m.operationMetrics()
	actions = append([]action.Action{ci}, actions...)

	newSnap, err := tx.Commit(actions, action.OpMerge)
	if err != nil {
		return m, nil, err
	}
	return m, newSnap, nil
}

// processJoined drives the per-row state machine over the joined stream
func (c *Command) processJoined(joined runtime.Rows, finalSchema schema.StructType, m *Metrics) ([]expr.Row, map[string]bool, error) {
	defer joined.Close()
	var output []expr.Row
	deleted := map[string]bool{}
	for {
		row, ok := joined.Next()
		if !ok {
			break
		}
		sourcePresent := row[colSourcePresent] != nil
		targetPresent := row[colTargetPresent] != nil

		switch {
		case !sourcePresent:
			// noop-copy: target row had no source partner
			output = append(output, c.targetRowOut(row, finalSchema))
			m.TargetRowsCopied++

		case !targetPresent:
			out, fired, err := c.applyNotMatched(row, finalSchema)
			if err != nil {
				return nil, nil, err
			}
			if fired {
				output = append(output, out)
				m.TargetRowsInserted++
			}

		default:
			out, outcome, err := c.applyMatched(row, finalSchema)
			if err != nil {
				return nil, nil, err
			}
			switch outcome {
			case outcomeUpdate:
				output = append(output, out)
				m.TargetRowsUpdated++
			case outcomeDelete:
				deleted[row[colRowID].(string)] = true
			case outcomeCopy:
				output = append(output, c.targetRowOut(row, finalSchema))
				m.TargetRowsCopied++
			}
		}
	}
	return output, deleted, joined.Err()
}

type matchOutcome int

const (
	outcomeCopy matchOutcome = iota
	outcomeUpdate
	outcomeDelete
)

func (c *Command) applyMatched(row expr.Row, finalSchema schema.StructType) (expr.Row, matchOutcome, error) {
	for _, clause := range c.Matched {
		if clause.Predicate != nil {
			ok, err := expr.EvalPredicate(clause.Predicate, row)
			if err != nil {
				return nil, outcomeCopy, err
			}
			if !ok {
				continue
			}
		}
		if clause.Delete {
			return nil, outcomeDelete, nil
		}
		out := c.targetRowOut(row, finalSchema)
		for path, e := range clause.Set {
			v, err := e.Eval(row)
			if err != nil {
				return nil, outcomeCopy, err
			}
			out = expr.SetValue(out, path, v)
		}
		return out, outcomeUpdate, nil
	}
	return nil, outcomeCopy, nil
}

func (c *Command) applyNotMatched(row expr.Row, finalSchema schema.StructType) (expr.Row, bool, error) {
	for _, clause := range c.NotMatched {
		if clause.Predicate != nil {
			ok, err := expr.EvalPredicate(clause.Predicate, row)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				continue
			}
		}
		out := expr.Row{}
		for _, field := range finalSchema.Fields {
			out[field.Name] = nil
		}
		for col, e := range clause.Values {
			v, err := e.Eval(row)
			if err != nil {
				return nil, false, err
			}
			out[col] = v
		}
		return out, true, nil
	}
	return nil, false, nil
}

// targetRowOut projects the target side of a joined row onto the final
// schema; columns the target never had come out null
func (c *Command) targetRowOut(row expr.Row, finalSchema schema.StructType) expr.Row {
	out := expr.Row{}
	for _, field := range finalSchema.Fields {
		out[field.Name] = row[c.TargetAlias+"."+field.Name]
	}
	return out
}

func (c *Command) collectSource() ([]expr.Row, error) {
	rows, err := c.Source.Rows()
	if err != nil {
		return nil, err
	}
	raw, err := runtime.Collect(rows)
	if err != nil {
		return nil, err
	}
	out := make([]expr.Row, len(raw))
	for i, r := range raw {
		q := expr.Qualify(r, c.SourceAlias)
		q[colSourcePresent] = true
		out[i] = q
	}
	return out, nil
}

// scanTargetRows reads the candidate files, qualifying each row and
// attaching a synthetic identity and originating file path
func (c *Command) scanTargetRows(rt runtime.QueryRuntime, candidates []*action.AddFile) ([]expr.Row, error) {
	var out []expr.Row
	for _, f := range candidates {
		rows, err := rt.Scan([]*action.AddFile{f}, nil, nil)
		if err != nil {
			return nil, err
		}
		collected, err := runtime.Collect(rows)
		if err != nil {
			return nil, err
		}
		for i, r := range collected {
			q := expr.Qualify(r, c.TargetAlias)
			q[colTargetPresent] = true
			q[colFile] = f.Path
			q[colRowID] = f.Path + ":" + strconv.Itoa(i)
			out = append(out, q)
		}
	}
	return out, nil
}

// runInsertOnly is the left-anti fast path: source rows with no join
// partner become inserts, no target file is rewritten
func (c *Command) runInsertOnly(tx *txn.Transaction, rt runtime.QueryRuntime, ref txn.TableRef,
	snap *snapshot.Snapshot, finalSchema schema.StructType, evolvedMetadata *action.Metadata,
	candidates []*action.AddFile, sourceRows []expr.Row, m Metrics) (Metrics, *snapshot.Snapshot, error) {

	targetRows, err := c.scanTargetRows(rt, candidates)
	if err != nil {
		return m, nil, err
	}
	unmatched, err := rt.Join(
		runtime.NewSliceRows(sourceRows), nil,
		runtime.NewSliceRows(targetRows), nil,
		c.Condition, runtime.JoinLeftAnti,
	)
	if err != nil {
		return m, nil, err
	}

	var output []expr.Row
	for {
		row, ok := unmatched.Next()
		if !ok {
			break
		}
		out, fired, err := c.applyNotMatched(row, finalSchema)
		if err != nil {
			return m, nil, err
		}
		if fired {
			output = append(output, out)
			m.TargetRowsInserted++
		}
	}
	if err := unmatched.Err(); err != nil {
		return m, nil, err
	}

	var added []*action.AddFile
	if len(output) > 0 {
		added, err = rt.Write(runtime.NewSliceRows(output), finalSchema,
			snap.Metadata().PartitionColumns, ref.Path())
		if err != nil {
			return m, nil, err
		}
	}
	m.TargetFilesAdded = int64(len(added))

	var actions []action.Action
	if evolvedMetadata != nil {
		actions = append(actions, evolvedMetadata)
	}
	for _, a := range added {
		actions = append(actions, a)
	}
	if len(actions) == 0 {
		tx.Abort()
		return m, snap, nil
	}
	ci := action.NewCommitInfo(action.OpMerge, c.operationParameters(), tx.ReadVersion(), false)
	ci.OperationMetrics = m.operationMetrics()
	actions = append([]action.Action{ci}, actions...)

	newSnap, err := tx.Commit(actions, action.OpMerge)
	if err != nil {
		return m, nil, err
	}
	return m, newSnap, nil
}

// operationParameters records the merge shape. The deprecated per-action
// predicate fields stay for on-disk compatibility and are always null.
func (c *Command) operationParameters() map[string]string {
	matched := make([]string, 0, len(c.Matched))
	for _, cl := range c.Matched {
		kind := "update"
		if cl.Delete {
			kind = "delete"
		}
		pred := "null"
		if cl.Predicate != nil {
			pred = strconv.Quote(cl.Predicate.String())
		}
		matched = append(matched, fmt.Sprintf(`{"actionType":%q,"predicate":%s}`, kind, pred))
	}
	notMatched := make([]string, 0, len(c.NotMatched))
	for _, cl := range c.NotMatched {
		pred := "null"
		if cl.Predicate != nil {
			pred = strconv.Quote(cl.Predicate.String())
		}
		notMatched = append(notMatched, fmt.Sprintf(`{"actionType":"insert","predicate":%s}`, pred))
	}
	matchedJSON, _ := json.Marshal(matched)
	notMatchedJSON, _ := json.Marshal(notMatched)
	return map[string]string{
		"predicate":            strconv.Quote(c.Condition.String()),
		"matchedPredicates":    string(matchedJSON),
		"notMatchedPredicates": string(notMatchedJSON),
		"updatePredicate":      "null",
		"deletePredicate":      "null",
		"insertPredicate":      "null",
	}
}
