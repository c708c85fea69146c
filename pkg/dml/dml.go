package dml

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/expr"
	"github.com/cuemby/delta/pkg/runtime"
	"github.com/cuemby/delta/pkg/snapshot"
)

var (
	// ErrNonPartitionPredicate rejects a replaceWhere predicate that
	// references non-partition columns
	ErrNonPartitionPredicate = errors.New("dml: predicate must reference partition columns only")

	// ErrNoSnapshot indicates a DML verb against a table with no version
	ErrNoSnapshot = errors.New("dml: table has no committed version")
)

// validateCondition applies the shared condition rules for DML verbs
func validateCondition(condition expr.Expr) error {
	if condition == nil {
		return nil
	}
	if !expr.IsDeterministic(condition) {
		return fmt.Errorf("%w: %s", expr.ErrNonDeterministic, condition.String())
	}
	return nil
}

// partitionOnly reports whether every column the condition references is a
// partition column of the snapshot
func partitionOnly(snap *snapshot.Snapshot, condition expr.Expr) bool {
	for _, ref := range condition.References() {
		if !snap.IsPartitionColumn(ref) {
			return false
		}
	}
	return true
}

// predicateParam serializes the condition for operation parameters
func predicateParam(condition expr.Expr) map[string]string {
	if condition == nil {
		return nil
	}
	return map[string]string{"predicate": strconv.Quote(condition.String())}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// scanFile reads one data file's rows including partition columns
func scanFile(rt runtime.QueryRuntime, f *action.AddFile) ([]expr.Row, error) {
	rows, err := rt.Scan([]*action.AddFile{f}, nil, nil)
	if err != nil {
		return nil, err
	}
	return runtime.Collect(rows)
}
