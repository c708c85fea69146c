package expr

import (
	"fmt"
	"math/rand"
	"strings"
)

// Row is the unit of evaluation: column name (optionally qualified) to value.
// Values are nil, bool, int64, float64, or string.
type Row map[string]any

// Expr is the narrow expression contract the DML engines consume: evaluate
// against a row, and report the columns referenced. Parsing text into an
// Expr is a collaborator concern; this package provides constructors.
type Expr interface {
	Eval(row Row) (any, error)
	References() []string
	String() string
}

// Normalize maps Go integer and float types onto the value domain
func Normalize(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint32:
		return int64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

// Column references a column, optionally qualified by a row-source alias
type Column struct {
	Qualifier string
	Name      string
}

// Col references an unqualified column
func Col(name string) Column {
	return Column{Name: name}
}

// QCol references a column through a source alias, e.g. QCol("t", "key")
func QCol(qualifier, name string) Column {
	return Column{Qualifier: qualifier, Name: name}
}

// Key returns the row key this column resolves through
func (c Column) Key() string {
	if c.Qualifier == "" {
		return c.Name
	}
	return c.Qualifier + "." + c.Name
}

func (c Column) Eval(row Row) (any, error) {
	if v, ok := row[c.Key()]; ok {
		return Normalize(v), nil
	}
	// qualified references resolve against bare rows during single-source
	// evaluation (data skipping, partition pruning)
	if c.Qualifier != "" {
		if v, ok := row[c.Name]; ok {
			return Normalize(v), nil
		}
	}
	return nil, nil
}

func (c Column) References() []string { return []string{c.Key()} }
func (c Column) String() string       { return c.Key() }

// Literal is a constant value
type Literal struct {
	Value any
}

// Lit builds a literal constant
func Lit(v any) Literal {
	return Literal{Value: Normalize(v)}
}

func (l Literal) Eval(Row) (any, error) { return l.Value, nil }
func (l Literal) References() []string  { return nil }
func (l Literal) String() string {
	if l.Value == nil {
		return "NULL"
	}
	if s, ok := l.Value.(string); ok {
		return fmt.Sprintf("'%s'", s)
	}
	return fmt.Sprintf("%v", l.Value)
}

// CompareOp enumerates comparison operators
type CompareOp string

const (
	OpEq         CompareOp = "="
	OpNe         CompareOp = "!="
	OpLt         CompareOp = "<"
	OpLe         CompareOp = "<="
	OpGt         CompareOp = ">"
	OpGe         CompareOp = ">="
	OpNullSafeEq CompareOp = "<=>"
)

// Comparison applies a comparison operator with SQL null semantics: any
// null operand yields null, except <=> which treats two nulls as equal
type Comparison struct {
	Op   CompareOp
	L, R Expr
}

func Eq(l, r Expr) Comparison         { return Comparison{Op: OpEq, L: l, R: r} }
func Ne(l, r Expr) Comparison         { return Comparison{Op: OpNe, L: l, R: r} }
func Lt(l, r Expr) Comparison         { return Comparison{Op: OpLt, L: l, R: r} }
func Le(l, r Expr) Comparison         { return Comparison{Op: OpLe, L: l, R: r} }
func Gt(l, r Expr) Comparison         { return Comparison{Op: OpGt, L: l, R: r} }
func Ge(l, r Expr) Comparison         { return Comparison{Op: OpGe, L: l, R: r} }
func NullSafeEq(l, r Expr) Comparison { return Comparison{Op: OpNullSafeEq, L: l, R: r} }

func (c Comparison) Eval(row Row) (any, error) {
	lv, err := c.L.Eval(row)
	if err != nil {
		return nil, err
	}
	rv, err := c.R.Eval(row)
	if err != nil {
		return nil, err
	}
	if c.Op == OpNullSafeEq {
		if lv == nil && rv == nil {
			return true, nil
		}
		if lv == nil || rv == nil {
			return false, nil
		}
		cmp, err := CompareValues(lv, rv)
		if err != nil {
			return nil, err
		}
		return cmp == 0, nil
	}
	if lv == nil || rv == nil {
		return nil, nil
	}
	cmp, err := CompareValues(lv, rv)
	if err != nil {
		return nil, err
	}
	switch c.Op {
	case OpEq:
		return cmp == 0, nil
	case OpNe:
		return cmp != 0, nil
	case OpLt:
		return cmp < 0, nil
	case OpLe:
		return cmp <= 0, nil
	case OpGt:
		return cmp > 0, nil
	case OpGe:
		return cmp >= 0, nil
	default:
		return nil, fmt.Errorf("expr: unknown comparison %q", c.Op)
	}
}

func (c Comparison) References() []string { return append(c.L.References(), c.R.References()...) }
func (c Comparison) String() string {
	return fmt.Sprintf("(%s %s %s)", c.L.String(), c.Op, c.R.String())
}

// AndExpr is three-valued logical AND
type AndExpr struct{ L, R Expr }

// And conjoins expressions left-deep
func And(exprs ...Expr) Expr {
	if len(exprs) == 0 {
		return Lit(true)
	}
	out := exprs[0]
	for _, e := range exprs[1:] {
		out = AndExpr{L: out, R: e}
	}
	return out
}

func (a AndExpr) Eval(row Row) (any, error) {
	lv, ln, err := evalTristate(a.L, row)
	if err != nil {
		return nil, err
	}
	if !ln && !lv {
		return false, nil
	}
	rv, rn, err := evalTristate(a.R, row)
	if err != nil {
		return nil, err
	}
	if !rn && !rv {
		return false, nil
	}
	if ln || rn {
		return nil, nil
	}
	return true, nil
}

func (a AndExpr) References() []string { return append(a.L.References(), a.R.References()...) }
func (a AndExpr) String() string       { return fmt.Sprintf("(%s AND %s)", a.L.String(), a.R.String()) }

// OrExpr is three-valued logical OR
type OrExpr struct{ L, R Expr }

// Or disjoins two expressions
func Or(l, r Expr) OrExpr { return OrExpr{L: l, R: r} }

func (o OrExpr) Eval(row Row) (any, error) {
	lv, ln, err := evalTristate(o.L, row)
	if err != nil {
		return nil, err
	}
	if !ln && lv {
		return true, nil
	}
	rv, rn, err := evalTristate(o.R, row)
	if err != nil {
		return nil, err
	}
	if !rn && rv {
		return true, nil
	}
	if ln || rn {
		return nil, nil
	}
	return false, nil
}

func (o OrExpr) References() []string { return append(o.L.References(), o.R.References()...) }
func (o OrExpr) String() string       { return fmt.Sprintf("(%s OR %s)", o.L.String(), o.R.String()) }

// NotExpr is three-valued logical NOT
type NotExpr struct{ E Expr }

// Not negates an expression
func Not(e Expr) NotExpr { return NotExpr{E: e} }

func (n NotExpr) Eval(row Row) (any, error) {
	v, isNull, err := evalTristate(n.E, row)
	if err != nil {
		return nil, err
	}
	if isNull {
		return nil, nil
	}
	return !v, nil
}

func (n NotExpr) References() []string { return n.E.References() }
func (n NotExpr) String() string       { return fmt.Sprintf("(NOT %s)", n.E.String()) }

// IsNullExpr tests for null; never returns null itself
type IsNullExpr struct {
	E       Expr
	Negated bool
}

func IsNull(e Expr) IsNullExpr    { return IsNullExpr{E: e} }
func IsNotNull(e Expr) IsNullExpr { return IsNullExpr{E: e, Negated: true} }

func (i IsNullExpr) Eval(row Row) (any, error) {
	v, err := i.E.Eval(row)
	if err != nil {
		return nil, err
	}
	return (v == nil) != i.Negated, nil
}

func (i IsNullExpr) References() []string { return i.E.References() }
func (i IsNullExpr) String() string {
	if i.Negated {
		return fmt.Sprintf("(%s IS NOT NULL)", i.E.String())
	}
	return fmt.Sprintf("(%s IS NULL)", i.E.String())
}

// ArithOp enumerates arithmetic operators
type ArithOp string

const (
	OpAdd ArithOp = "+"
	OpSub ArithOp = "-"
	OpMul ArithOp = "*"
	OpDiv ArithOp = "/"
)

// Arithmetic applies an arithmetic operator; null propagates
type Arithmetic struct {
	Op   ArithOp
	L, R Expr
}

func Add(l, r Expr) Arithmetic { return Arithmetic{Op: OpAdd, L: l, R: r} }
func Sub(l, r Expr) Arithmetic { return Arithmetic{Op: OpSub, L: l, R: r} }
func Mul(l, r Expr) Arithmetic { return Arithmetic{Op: OpMul, L: l, R: r} }
func Div(l, r Expr) Arithmetic { return Arithmetic{Op: OpDiv, L: l, R: r} }

func (a Arithmetic) Eval(row Row) (any, error) {
	lv, err := a.L.Eval(row)
	if err != nil {
		return nil, err
	}
	rv, err := a.R.Eval(row)
	if err != nil {
		return nil, err
	}
	if lv == nil || rv == nil {
		return nil, nil
	}
	li, lIsInt := lv.(int64)
	ri, rIsInt := rv.(int64)
	if lIsInt && rIsInt && a.Op != OpDiv {
		switch a.Op {
		case OpAdd:
			return li + ri, nil
		case OpSub:
			return li - ri, nil
		case OpMul:
			return li * ri, nil
		}
	}
	lf, err := toFloat(lv)
	if err != nil {
		return nil, err
	}
	rf, err := toFloat(rv)
	if err != nil {
		return nil, err
	}
	switch a.Op {
	case OpAdd:
		return lf + rf, nil
	case OpSub:
		return lf - rf, nil
	case OpMul:
		return lf * rf, nil
	case OpDiv:
		if rf == 0 {
			return nil, nil
		}
		return lf / rf, nil
	default:
		return nil, fmt.Errorf("expr: unknown arithmetic operator %q", a.Op)
	}
}

func (a Arithmetic) References() []string { return append(a.L.References(), a.R.References()...) }
func (a Arithmetic) String() string {
	return fmt.Sprintf("(%s %s %s)", a.L.String(), a.Op, a.R.String())
}

// RandomExpr yields a uniform float in [0, 1); it is the one
// nondeterministic node, and DML conditions reject it
type RandomExpr struct{}

// Random builds a nondeterministic random expression
func Random() RandomExpr { return RandomExpr{} }

func (RandomExpr) Eval(Row) (any, error) { return rand.Float64(), nil }
func (RandomExpr) References() []string  { return nil }
func (RandomExpr) String() string        { return "rand()" }

func evalTristate(e Expr, row Row) (value bool, isNull bool, err error) {
	v, err := e.Eval(row)
	if err != nil {
		return false, false, err
	}
	if v == nil {
		return false, true, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, false, fmt.Errorf("expr: %s is not a boolean predicate (got %T)", e.String(), v)
	}
	return b, false, nil
}

// EvalPredicate evaluates e as a filter: null counts as not satisfied
func EvalPredicate(e Expr, row Row) (bool, error) {
	v, isNull, err := evalTristate(e, row)
	if err != nil {
		return false, err
	}
	return v && !isNull, nil
}

// CompareValues orders two non-null values of compatible types, returning
// -1, 0, or 1
func CompareValues(a, b any) (int, error) {
	a, b = Normalize(a), Normalize(b)
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, typeMismatch(a, b)
		}
		return strings.Compare(av, bv), nil
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, typeMismatch(a, b)
		}
		switch {
		case av == bv:
			return 0, nil
		case bv:
			return -1, nil
		default:
			return 1, nil
		}
	case int64:
		if bv, ok := b.(int64); ok {
			switch {
			case av < bv:
				return -1, nil
			case av > bv:
				return 1, nil
			default:
				return 0, nil
			}
		}
	case float64:
	default:
		return 0, fmt.Errorf("expr: cannot compare values of type %T", a)
	}
	af, err := toFloat(a)
	if err != nil {
		return 0, err
	}
	bf, err := toFloat(b)
	if err != nil {
		return 0, typeMismatch(a, b)
	}
	switch {
	case af < bf:
		return -1, nil
	case af > bf:
		return 1, nil
	default:
		return 0, nil
	}
}

func toFloat(v any) (float64, error) {
	switch n := Normalize(v).(type) {
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("expr: %T is not numeric", v)
	}
}

func typeMismatch(a, b any) error {
	return fmt.Errorf("expr: cannot compare %T with %T", a, b)
}

// Sentinel errors surfaced by expression validation in the DML engines
var (
	// ErrNonDeterministic rejects conditions whose result can differ
	// between the two scans of a multi-phase operation
	ErrNonDeterministic = fmt.Errorf("expr: condition is not deterministic")

	// ErrSubqueryNotSupported rejects conditions that embed a subquery;
	// the expression contract is row-local
	ErrSubqueryNotSupported = fmt.Errorf("expr: subqueries are not supported in conditions")
)
