package expr

import "strings"

// SplitConjuncts flattens top-level ANDs into a predicate list
func SplitConjuncts(e Expr) []Expr {
	if a, ok := e.(AndExpr); ok {
		return append(SplitConjuncts(a.L), SplitConjuncts(a.R)...)
	}
	return []Expr{e}
}

// ReferencesOnly reports whether every column referenced by e carries the
// given qualifier
func ReferencesOnly(e Expr, qualifier string) bool {
	refs := e.References()
	if len(refs) == 0 {
		return false
	}
	prefix := qualifier + "."
	for _, r := range refs {
		if !strings.HasPrefix(r, prefix) {
			return false
		}
	}
	return true
}

// StripQualifier rewrites column references with the given qualifier into
// bare columns so the predicate can run against unqualified rows
func StripQualifier(e Expr, qualifier string) Expr {
	switch v := e.(type) {
	case Column:
		if v.Qualifier == qualifier {
			return Col(v.Name)
		}
		return v
	case Comparison:
		return Comparison{Op: v.Op, L: StripQualifier(v.L, qualifier), R: StripQualifier(v.R, qualifier)}
	case AndExpr:
		return AndExpr{L: StripQualifier(v.L, qualifier), R: StripQualifier(v.R, qualifier)}
	case OrExpr:
		return OrExpr{L: StripQualifier(v.L, qualifier), R: StripQualifier(v.R, qualifier)}
	case NotExpr:
		return NotExpr{E: StripQualifier(v.E, qualifier)}
	case IsNullExpr:
		return IsNullExpr{E: StripQualifier(v.E, qualifier), Negated: v.Negated}
	case Arithmetic:
		return Arithmetic{Op: v.Op, L: StripQualifier(v.L, qualifier), R: StripQualifier(v.R, qualifier)}
	default:
		return e
	}
}

// IsDeterministic reports whether the expression is free of
// nondeterministic nodes
func IsDeterministic(e Expr) bool {
	switch v := e.(type) {
	case RandomExpr:
		return false
	case Comparison:
		return IsDeterministic(v.L) && IsDeterministic(v.R)
	case AndExpr:
		return IsDeterministic(v.L) && IsDeterministic(v.R)
	case OrExpr:
		return IsDeterministic(v.L) && IsDeterministic(v.R)
	case NotExpr:
		return IsDeterministic(v.E)
	case IsNullExpr:
		return IsDeterministic(v.E)
	case Arithmetic:
		return IsDeterministic(v.L) && IsDeterministic(v.R)
	default:
		return true
	}
}

// Qualify returns a copy of row with every key prefixed by the qualifier
func Qualify(row Row, qualifier string) Row {
	out := make(Row, len(row))
	for k, v := range row {
		out[qualifier+"."+k] = v
	}
	return out
}

// Unqualify strips one level of the given qualifier from the row's keys,
// dropping keys under other qualifiers
func Unqualify(row Row, qualifier string) Row {
	prefix := qualifier + "."
	out := make(Row, len(row))
	for k, v := range row {
		if name, found := strings.CutPrefix(k, prefix); found {
			out[name] = v
		} else if !strings.Contains(k, ".") {
			out[k] = v
		}
	}
	return out
}

// MergeRows overlays rows left to right into a fresh row
func MergeRows(rows ...Row) Row {
	out := Row{}
	for _, r := range rows {
		for k, v := range r {
			out[k] = v
		}
	}
	return out
}

// SetValue writes a value into a row at a dotted path, copying the nested
// maps it traverses so shared rows stay immutable
func SetValue(row Row, path string, value any) Row {
	out := MergeRows(row)
	parts := strings.Split(path, ".")
	if len(parts) == 1 {
		out[path] = value
		return out
	}
	cur := map[string]any(out)
	for i := 0; i < len(parts)-1; i++ {
		next := asMap(cur[parts[i]])
		copied := make(map[string]any, len(next)+1)
		for k, v := range next {
			copied[k] = v
		}
		cur[parts[i]] = copied
		cur = copied
	}
	cur[parts[len(parts)-1]] = value
	return out
}

func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case Row:
		return m
	default:
		return nil
	}
}
