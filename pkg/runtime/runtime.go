package runtime

import (
	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/expr"
	"github.com/cuemby/delta/pkg/schema"
)

// JoinKind selects the join shape
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinRightOuter
	JoinFullOuter
	JoinLeftAnti
)

// Rows is a pull-based row iterator; the producer owns the state, the
// consumer drives
type Rows interface {
	// Next returns the next row; ok is false once the stream is exhausted
	Next() (row expr.Row, ok bool)
	// Err reports a production error after Next returned ok=false
	Err() error
	// Close releases producer resources
	Close() error
}

// Source is a re-scannable row producer, the shape MERGE requires for its
// two passes over the source relation
type Source interface {
	Rows() (Rows, error)
	Schema() schema.StructType
}

// QueryRuntime is the capability the core requires from the execution
// layer: scan a set of files into rows, join row streams, and materialize
// rows into new data files. The core never parses data files itself.
type QueryRuntime interface {
	// Scan produces the rows of the given files, applying an optional
	// projection and filter
	Scan(files []*action.AddFile, projection []string, filter expr.Expr) (Rows, error)

	// Join combines two row streams on a condition. Row keys of the two
	// sides must not collide (callers qualify them); leftCols/rightCols
	// name each side's keys so outer joins can null-extend the missing side.
	Join(left Rows, leftCols []string, right Rows, rightCols []string, condition expr.Expr, kind JoinKind) (Rows, error)

	// Write materializes rows into new data files under tablePath,
	// partitioned by the given columns. The producer decides file sizing.
	Write(rows Rows, sch schema.StructType, partitionColumns []string, tablePath string) ([]*action.AddFile, error)
}

// sliceRows iterates an in-memory row slice
type sliceRows struct {
	rows []expr.Row
	pos  int
}

// NewSliceRows wraps a row slice in the Rows interface
func NewSliceRows(rows []expr.Row) Rows {
	return &sliceRows{rows: rows}
}

func (s *sliceRows) Next() (expr.Row, bool) {
	if s.pos >= len(s.rows) {
		return nil, false
	}
	row := s.rows[s.pos]
	s.pos++
	return row, true
}

func (s *sliceRows) Err() error   { return nil }
func (s *sliceRows) Close() error { return nil }

// sliceSource is a re-scannable slice-backed Source
type sliceSource struct {
	sch  schema.StructType
	rows []expr.Row
}

// NewSliceSource builds a re-scannable source over fixed rows
func NewSliceSource(sch schema.StructType, rows []expr.Row) Source {
	return &sliceSource{sch: sch, rows: rows}
}

func (s *sliceSource) Rows() (Rows, error)       { return NewSliceRows(s.rows), nil }
func (s *sliceSource) Schema() schema.StructType { return s.sch }

// Collect drains a row stream into a slice
func Collect(rows Rows) ([]expr.Row, error) {
	defer rows.Close()
	var out []expr.Row
	for {
		row, ok := rows.Next()
		if !ok {
			break
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// funcRows adapts a pull function to the Rows interface
type funcRows struct {
	next func() (expr.Row, bool, error)
	err  error
}

// NewFuncRows builds a Rows from a pull function
func NewFuncRows(next func() (expr.Row, bool, error)) Rows {
	return &funcRows{next: next}
}

func (f *funcRows) Next() (expr.Row, bool) {
	if f.err != nil {
		return nil, false
	}
	row, ok, err := f.next()
	if err != nil {
		f.err = err
		return nil, false
	}
	return row, ok
}

func (f *funcRows) Err() error   { return f.err }
func (f *funcRows) Close() error { return nil }
