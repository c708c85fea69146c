package merge

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cuemby/delta/pkg/expr"
	"github.com/cuemby/delta/pkg/schema"
)

var (
	// ErrMultipleSourceMatch indicates a target row that joins with more
	// than one source row where the combined effect is ambiguous
	ErrMultipleSourceMatch = errors.New("merge: a target row matched multiple source rows")

	// ErrNoSnapshot indicates a merge against a table with no version
	ErrNoSnapshot = errors.New("merge: table has no committed version")
)

// MatchedClause handles target rows that join with a source row: either an
// update (Set) or a delete
type MatchedClause struct {
	Predicate expr.Expr
	Delete    bool
	Set       map[string]expr.Expr
}

// NotMatchedClause handles source rows with no join partner: an insert
type NotMatchedClause struct {
	Predicate expr.Expr
	Values    map[string]expr.Expr
}

// validateClauses enforces the clause rules: in the ordered list of each
// side only the last clause may omit its predicate, matched clauses carry
// exactly one action, insert value maps are flat, and update paths must
// not conflict
func (c *Command) validateClauses(target schema.StructType) error {
	if c.Condition == nil {
		return fmt.Errorf("merge: condition is required")
	}
	if !expr.IsDeterministic(c.Condition) {
		return fmt.Errorf("%w: %s", expr.ErrNonDeterministic, c.Condition.String())
	}
	if len(c.Matched) == 0 && len(c.NotMatched) == 0 {
		return fmt.Errorf("merge: at least one WHEN clause is required")
	}

	for i, m := range c.Matched {
		if m.Predicate == nil && i != len(c.Matched)-1 {
			return fmt.Errorf("merge: only the last matched clause may omit its predicate")
		}
		if m.Predicate != nil && !expr.IsDeterministic(m.Predicate) {
			return fmt.Errorf("%w: %s", expr.ErrNonDeterministic, m.Predicate.String())
		}
		if m.Delete == (len(m.Set) > 0) {
			return fmt.Errorf("merge: matched clause %d must be exactly one of update or delete", i)
		}
		if !m.Delete {
			paths := make([]string, 0, len(m.Set))
			for p := range m.Set {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			if err := schema.ValidateAssignments(target, paths); err != nil {
				return err
			}
		}
	}
	for i, n := range c.NotMatched {
		if n.Predicate == nil && i != len(c.NotMatched)-1 {
			return fmt.Errorf("merge: only the last not-matched clause may omit its predicate")
		}
		if n.Predicate != nil && !expr.IsDeterministic(n.Predicate) {
			return fmt.Errorf("%w: %s", expr.ErrNonDeterministic, n.Predicate.String())
		}
		if len(n.Values) == 0 {
			return fmt.Errorf("merge: not-matched clause %d has no insert values", i)
		}
		cols := make([]string, 0, len(n.Values))
		for col := range n.Values {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		if err := schema.ValidateInsertColumns(target, cols); err != nil {
			return err
		}
	}
	return nil
}

// unambiguousMultiMatch is the one multi-match shape with a well-defined
// result: a single unconditional delete, which removes every matched target
// row regardless of which source row "wins"
func (c *Command) unambiguousMultiMatch() bool {
	return len(c.Matched) == 1 && c.Matched[0].Delete && c.Matched[0].Predicate == nil
}

// insertOnly reports whether the merge can take the left-anti fast path
func (c *Command) insertOnly() bool {
	return len(c.Matched) == 0 && len(c.NotMatched) == 1
}

// qualifiedColumns lists a schema's top-level columns under an alias
func qualifiedColumns(s schema.StructType, alias string) []string {
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		out = append(out, alias+"."+f.Name)
	}
	return out
}
