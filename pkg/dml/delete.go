package dml

import (
	"fmt"

	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/expr"
	"github.com/cuemby/delta/pkg/index"
	"github.com/cuemby/delta/pkg/runtime"
	"github.com/cuemby/delta/pkg/snapshot"
	"github.com/cuemby/delta/pkg/txn"
)

// DeleteMetrics reports what a delete touched
type DeleteMetrics struct {
	FilesRemoved int64
	FilesAdded   int64
	RowsDeleted  int64
	RowsCopied   int64
}

func (m DeleteMetrics) operationMetrics() map[string]string {
	return map[string]string{
		"numRemovedFiles": fmt.Sprintf("%d", m.FilesRemoved),
		"numAddedFiles":   fmt.Sprintf("%d", m.FilesAdded),
		"numDeletedRows":  fmt.Sprintf("%d", m.RowsDeleted),
		"numCopiedRows":   fmt.Sprintf("%d", m.RowsCopied),
	}
}

// Delete removes the rows satisfying condition. With no condition every
// file is tombstoned without a rewrite; a condition over partition columns
// only tombstones whole matching files; otherwise affected files are
// rewritten without the matching rows.
func Delete(ref txn.TableRef, rt runtime.QueryRuntime, condition expr.Expr) (DeleteMetrics, *snapshot.Snapshot, error) {
	var m DeleteMetrics
	if err := validateCondition(condition); err != nil {
		return m, nil, err
	}
	tx := txn.Begin(ref)
	snap := tx.Snapshot()
	if snap == nil {
		return m, nil, ErrNoSnapshot
	}

	deletionTime := nowMillis()
	var actions []action.Action

	switch {
	case condition == nil:
		// file-level truncate: no data rewrite
		files, err := tx.FilterFiles(nil)
		if err != nil {
			return m, nil, err
		}
		for _, f := range files {
			actions = append(actions, f.Remove(deletionTime, true))
			m.FilesRemoved++
		}

	case partitionOnly(snap, condition):
		preds := expr.SplitConjuncts(condition)
		files, err := tx.FilterFiles(preds)
		if err != nil {
			return m, nil, err
		}
		for _, f := range files {
			// partition values are exact, so the predicate decides whole files
			match, err := expr.EvalPredicate(condition, index.PartitionRow(f))
			if err != nil {
				return m, nil, err
			}
			if match {
				actions = append(actions, f.Remove(deletionTime, true))
				m.FilesRemoved++
			}
		}

	default:
		preds := expr.SplitConjuncts(condition)
		files, err := tx.FilterFiles(preds)
		if err != nil {
			return m, nil, err
		}
		sch, err := snap.Schema()
		if err != nil {
			return m, nil, err
		}
		for _, f := range files {
			rows, err := scanFile(rt, f)
			if err != nil {
				return m, nil, err
			}
			kept := make([]expr.Row, 0, len(rows))
			var deleted int64
			for _, row := range rows {
				match, err := expr.EvalPredicate(condition, row)
				if err != nil {
					return m, nil, err
				}
				if match {
					deleted++
				} else {
					kept = append(kept, row)
				}
			}
			if deleted == 0 {
				// stats retained the file but no row matches; leave it alone
				continue
			}
			m.RowsDeleted += deleted
			m.RowsCopied += int64(len(kept))
			m.FilesRemoved++
			actions = append(actions, f.Remove(deletionTime, true))
			if len(kept) > 0 {
				added, err := rt.Write(runtime.NewSliceRows(kept), sch, snap.Metadata().PartitionColumns, ref.Path())
				if err != nil {
					return m, nil, err
				}
				for _, a := range added {
					actions = append(actions, a)
					m.FilesAdded++
				}
			}
		}
	}

	if len(actions) == 0 {
		tx.Abort()
		return m, snap, nil
	}

	ci := action.NewCommitInfo(action.OpDelete, predicateParam(condition), tx.ReadVersion(), false)
	ci.OperationMetrics = m.operationMetrics()
	actions = append([]action.Action{ci}, actions...)

	newSnap, err := tx.Commit(actions, action.OpDelete)
	if err != nil {
		return m, nil, err
	}
	return m, newSnap, nil
}
