package dml

import (
	"fmt"
	"sort"

	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/expr"
	"github.com/cuemby/delta/pkg/runtime"
	"github.com/cuemby/delta/pkg/schema"
	"github.com/cuemby/delta/pkg/snapshot"
	"github.com/cuemby/delta/pkg/txn"
)

// UpdateMetrics reports what an update touched
type UpdateMetrics struct {
	FilesRemoved int64
	FilesAdded   int64
	RowsUpdated  int64
	RowsCopied   int64
}

func (m UpdateMetrics) operationMetrics() map[string]string {
	return map[string]string{
		"numRemovedFiles": fmt.Sprintf("%d", m.FilesRemoved),
		"numAddedFiles":   fmt.Sprintf("%d", m.FilesAdded),
		"numUpdatedRows":  fmt.Sprintf("%d", m.RowsUpdated),
		"numCopiedRows":   fmt.Sprintf("%d", m.RowsCopied),
	}
}

// Update rewrites every file containing a row that satisfies condition,
// applying the set expressions to matching rows and carrying the rest
// forward verbatim. Set keys may be dotted struct paths.
func Update(ref txn.TableRef, rt runtime.QueryRuntime, condition expr.Expr, set map[string]expr.Expr) (UpdateMetrics, *snapshot.Snapshot, error) {
	var m UpdateMetrics
	if len(set) == 0 {
		return m, nil, fmt.Errorf("dml: update requires at least one assignment")
	}
	if err := validateCondition(condition); err != nil {
		return m, nil, err
	}

	tx := txn.Begin(ref)
	snap := tx.Snapshot()
	if snap == nil {
		return m, nil, ErrNoSnapshot
	}
	sch, err := snap.Schema()
	if err != nil {
		return m, nil, err
	}

	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	if err := schema.ValidateAssignments(sch, paths); err != nil {
		return m, nil, err
	}
	for _, col := range snap.Metadata().PartitionColumns {
		for _, p := range paths {
			if p == col {
				return m, nil, fmt.Errorf("dml: cannot update partition column %q", col)
			}
		}
	}

	var preds []expr.Expr
	if condition != nil {
		preds = expr.SplitConjuncts(condition)
	}
	files, err := tx.FilterFiles(preds)
	if err != nil {
		return m, nil, err
	}

	deletionTime := nowMillis()
	var actions []action.Action
	for _, f := range files {
		rows, err := scanFile(rt, f)
		if err != nil {
			return m, nil, err
		}
		out := make([]expr.Row, 0, len(rows))
		var updated int64
		for _, row := range rows {
			match := true
			if condition != nil {
				match, err = expr.EvalPredicate(condition, row)
				if err != nil {
					return m, nil, err
				}
			}
			if !match {
				out = append(out, row)
				continue
			}
			updated++
			next := row
			for _, p := range paths {
				v, err := set[p].Eval(row)
				if err != nil {
					return m, nil, err
				}
				next = expr.SetValue(next, p, v)
			}
			out = append(out, next)
		}
		if updated == 0 {
			continue
		}
		m.RowsUpdated += updated
		m.RowsCopied += int64(len(out)) - updated
		m.FilesRemoved++
		actions = append(actions, f.Remove(deletionTime, true))
		added, err := rt.Write(runtime.NewSliceRows(out), sch, snap.Metadata().PartitionColumns, ref.Path())
		if err != nil {
			return m, nil, err
		}
		for _, a := range added {
			actions = append(actions, a)
			m.FilesAdded++
		}
	}

	if len(actions) == 0 {
		tx.Abort()
		return m, snap, nil
	}

	ci := action.NewCommitInfo(action.OpUpdate, predicateParam(condition), tx.ReadVersion(), false)
	ci.OperationMetrics = m.operationMetrics()
	actions = append([]action.Action{ci}, actions...)

	newSnap, err := tx.Commit(actions, action.OpUpdate)
	if err != nil {
		return m, nil, err
	}
	return m, newSnap, nil
}
