package index

import (
	"github.com/rs/zerolog"

	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/expr"
	"github.com/cuemby/delta/pkg/log"
	"github.com/cuemby/delta/pkg/metrics"
)

// Filter prunes a snapshot's file set against predicates. Skipping is a
// monotonic filter: a retained file may contain no matching row, but a
// skipped file provably contains none, so disabling skipping never changes
// query results.
type Filter struct {
	statsSkipping bool
	logger        zerolog.Logger
}

// NewFilter creates a file filter; statsSkipping mirrors the
// delta.stats.skipping table property
func NewFilter(statsSkipping bool) *Filter {
	return &Filter{
		statsSkipping: statsSkipping,
		logger:        log.WithComponent("index"),
	}
}

// Select returns the files that may contain rows satisfying every
// predicate. Predicates reference unqualified column names.
func (f *Filter) Select(files []*action.AddFile, predicates []expr.Expr) ([]*action.AddFile, error) {
	if len(predicates) == 0 {
		return files, nil
	}
	var kept []*action.AddFile
	for _, file := range files {
		retain, err := f.mayMatch(file, predicates)
		if err != nil {
			return nil, err
		}
		if retain {
			kept = append(kept, file)
		}
	}
	metrics.FilesScannedTotal.Add(float64(len(kept)))
	metrics.FilesSkippedTotal.Add(float64(len(files) - len(kept)))
	f.logger.Debug().
		Int("candidates", len(files)).
		Int("retained", len(kept)).
		Msg("file skipping")
	return kept, nil
}

// MayMatch reports whether the file can contain a row satisfying every
// predicate; conflict detection uses it to test winning AddFiles against a
// transaction's read predicates
func (f *Filter) MayMatch(file *action.AddFile, predicates []expr.Expr) bool {
	retain, err := f.mayMatch(file, predicates)
	if err != nil {
		// an unprovable predicate never excludes a file
		return true
	}
	return retain
}

func (f *Filter) mayMatch(file *action.AddFile, predicates []expr.Expr) (bool, error) {
	ranges := fileRanges{file: file}
	if f.statsSkipping {
		stats, err := ParseStats(file)
		if err != nil {
			// unreadable stats cannot prove anything
			f.logger.Warn().Err(err).Str("path", file.Path).Msg("ignoring unreadable stats")
		} else {
			ranges.stats = stats
		}
	}
	for _, p := range predicates {
		if !canBeTrue(p, ranges) {
			return false, nil
		}
	}
	return true, nil
}

// canBeTrue reports whether any row within the file's ranges could satisfy
// the predicate. It must never return false unless that is provable.
func canBeTrue(e expr.Expr, r fileRanges) bool {
	switch v := e.(type) {
	case expr.AndExpr:
		return canBeTrue(v.L, r) && canBeTrue(v.R, r)
	case expr.OrExpr:
		return canBeTrue(v.L, r) || canBeTrue(v.R, r)
	case expr.Comparison:
		return comparisonCanBeTrue(v, r)
	case expr.IsNullExpr:
		col, ok := v.E.(expr.Column)
		if !ok {
			return true
		}
		cr := r.column(col.Name)
		if !cr.known || !cr.hasCounts {
			return true
		}
		if v.Negated {
			return cr.numRecords > cr.nullCount
		}
		return cr.nullCount > 0
	case expr.Literal:
		b, ok := v.Value.(bool)
		return !ok || b
	default:
		return true
	}
}

func comparisonCanBeTrue(c expr.Comparison, r fileRanges) bool {
	col, lit, op, ok := normalizeComparison(c)
	if !ok {
		return true
	}
	cr := r.column(col.Name)
	if !cr.known {
		return true
	}

	if lit == nil {
		// only <=> can be satisfied by null
		if op == expr.OpNullSafeEq {
			return !cr.hasCounts || cr.nullCount > 0
		}
		return false
	}

	if cr.min == nil {
		// no value bounds; if every row is null, no plain comparison holds
		if cr.hasCounts && cr.numRecords > 0 && cr.nullCount == cr.numRecords {
			return op == expr.OpNullSafeEq && lit == nil
		}
		return true
	}

	cmpMin, err1 := expr.CompareValues(lit, cr.min)
	cmpMax, err2 := expr.CompareValues(lit, cr.max)
	if err1 != nil || err2 != nil {
		return true
	}
	switch op {
	case expr.OpEq, expr.OpNullSafeEq:
		return cmpMin >= 0 && cmpMax <= 0
	case expr.OpNe:
		// only disprovable when every value equals the literal
		allEqual, err := expr.CompareValues(cr.min, cr.max)
		if err == nil && allEqual == 0 && cmpMin == 0 {
			return cr.hasCounts && cr.nullCount > 0
		}
		return true
	case expr.OpLt:
		return cmpMin > 0 // min < lit
	case expr.OpLe:
		return cmpMin >= 0
	case expr.OpGt:
		return cmpMax < 0 // max > lit
	case expr.OpGe:
		return cmpMax <= 0
	default:
		return true
	}
}

// normalizeComparison rewrites the comparison as <column> <op> <literal>
func normalizeComparison(c expr.Comparison) (expr.Column, any, expr.CompareOp, bool) {
	if col, ok := c.L.(expr.Column); ok {
		if lit, ok := c.R.(expr.Literal); ok {
			return col, lit.Value, c.Op, true
		}
	}
	if col, ok := c.R.(expr.Column); ok {
		if lit, ok := c.L.(expr.Literal); ok {
			return col, lit.Value, flip(c.Op), true
		}
	}
	return expr.Column{}, nil, c.Op, false
}

func flip(op expr.CompareOp) expr.CompareOp {
	switch op {
	case expr.OpLt:
		return expr.OpGt
	case expr.OpLe:
		return expr.OpGe
	case expr.OpGt:
		return expr.OpLt
	case expr.OpGe:
		return expr.OpLe
	default:
		return op
	}
}
