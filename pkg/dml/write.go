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

// SaveMode selects how written rows combine with the table contents
type SaveMode string

const (
	SaveAppend    SaveMode = "Append"
	SaveOverwrite SaveMode = "Overwrite"
)

// WriteCommand materializes source rows into the table
type WriteCommand struct {
	Mode SaveMode

	// ReplaceWhere restricts an Overwrite to the partitions the predicate
	// selects; it must reference partition columns only
	ReplaceWhere expr.Expr
}

// Run executes the write and commits it as a WRITE operation
func (c WriteCommand) Run(ref txn.TableRef, rt runtime.QueryRuntime, source runtime.Source) (*snapshot.Snapshot, error) {
	tx := txn.Begin(ref)
	snap := tx.Snapshot()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	sch, err := snap.Schema()
	if err != nil {
		return nil, err
	}

	var actions []action.Action
	deletionTime := nowMillis()

	if c.Mode == SaveOverwrite {
		if c.ReplaceWhere != nil {
			if !partitionOnly(snap, c.ReplaceWhere) {
				return nil, fmt.Errorf("%w: %s", ErrNonPartitionPredicate, c.ReplaceWhere.String())
			}
			files, err := tx.FilterFiles(expr.SplitConjuncts(c.ReplaceWhere))
			if err != nil {
				return nil, err
			}
			for _, f := range files {
				match, err := expr.EvalPredicate(c.ReplaceWhere, index.PartitionRow(f))
				if err != nil {
					return nil, err
				}
				if match {
					actions = append(actions, f.Remove(deletionTime, true))
				}
			}
		} else {
			files, err := tx.FilterFiles(nil)
			if err != nil {
				return nil, err
			}
			for _, f := range files {
				actions = append(actions, f.Remove(deletionTime, true))
			}
		}
	}

	rows, err := source.Rows()
	if err != nil {
		return nil, err
	}
	all, err := runtime.Collect(rows)
	if err != nil {
		return nil, err
	}
	added, err := rt.Write(runtime.NewSliceRows(all), sch, snap.Metadata().PartitionColumns, ref.Path())
	if err != nil {
		return nil, err
	}
	for _, a := range added {
		actions = append(actions, a)
	}

	params := map[string]string{"mode": string(c.Mode)}
	if c.ReplaceWhere != nil {
		params["replaceWhere"] = c.ReplaceWhere.String()
	}
	ci := action.NewCommitInfo(action.OpWrite, params, tx.ReadVersion(), c.Mode == SaveAppend)
	ci.OperationMetrics = map[string]string{
		"numFiles":      fmt.Sprintf("%d", len(added)),
		"numOutputRows": fmt.Sprintf("%d", len(all)),
	}
	actions = append([]action.Action{ci}, actions...)

	return tx.Commit(actions, action.OpWrite)
}
