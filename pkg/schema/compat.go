package schema

import (
	"fmt"
	"sort"
	"strings"
)

// numeric widening order; a type may be widened to any later type in its row
var widenings = map[string][]string{
	TypeByte:  {TypeShort, TypeInteger, TypeLong},
	TypeShort: {TypeInteger, TypeLong},
	TypeInteger: {TypeLong},
	TypeFloat: {TypeDouble},
}

// CanWiden reports whether values of type from can be widened to type to
// without loss for existing readers
func CanWiden(from, to DataType) bool {
	fp, ok1 := from.(PrimitiveType)
	tp, ok2 := to.(PrimitiveType)
	if !ok1 || !ok2 {
		return false
	}
	if fp == tp {
		return true
	}
	// narrow upcasts to string are accepted when the runtime performs them
	if tp == TypeString {
		switch fp {
		case TypeByte, TypeShort, TypeInteger, TypeLong, TypeFloat, TypeDouble:
			return true
		}
	}
	for _, w := range widenings[string(fp)] {
		if string(tp) == w {
			return true
		}
	}
	return false
}

// CheckReadCompatible verifies that readers of the existing schema can read
// data written with the new schema. The new schema may append nullable fields
// and widen numeric types; removing, renaming, narrowing a field, or turning
// a nullable field required is not read-compatible.
func CheckReadCompatible(existing, updated StructType) error {
	return checkReadCompatible(existing, updated, "")
}

func checkReadCompatible(existing, updated StructType, prefix string) error {
	for _, old := range existing.Fields {
		path := joinPath(prefix, old.Name)
		nw, ok := updated.Field(old.Name)
		if !ok {
			return &IncompatibleSchemaError{Field: path, Reason: "field removed"}
		}
		if old.Nullable && !nw.Nullable {
			return &IncompatibleSchemaError{Field: path, Reason: "nullable field made required"}
		}
		oldStruct, oldIsStruct := old.Type.(StructType)
		newStruct, newIsStruct := nw.Type.(StructType)
		switch {
		case oldIsStruct && newIsStruct:
			if err := checkReadCompatible(oldStruct, newStruct, path); err != nil {
				return err
			}
		case oldIsStruct != newIsStruct:
			return &IncompatibleSchemaError{Field: path, Reason: "struct/non-struct mismatch"}
		default:
			if !CanWiden(old.Type, nw.Type) {
				return &IncompatibleSchemaError{
					Field:  path,
					Reason: fmt.Sprintf("type changed from %s to %s", old.Type.TypeName(), nw.Type.TypeName()),
				}
			}
		}
	}
	for _, nw := range updated.Fields {
		if _, ok := existing.Field(nw.Name); !ok && !nw.Nullable {
			return &IncompatibleSchemaError{Field: joinPath(prefix, nw.Name), Reason: "new field is not nullable"}
		}
	}
	return nil
}

// Merge widens target with the fields of source: source-only columns are
// appended as nullable, and shared columns keep the wider of the two types.
// Used by MERGE schema evolution.
func Merge(target, source StructType) (StructType, error) {
	out := StructType{Fields: make([]StructField, 0, len(target.Fields))}
	for _, tf := range target.Fields {
		sf, ok := source.Field(tf.Name)
		if !ok {
			out.Fields = append(out.Fields, tf)
			continue
		}
		ts, tIsStruct := tf.Type.(StructType)
		ss, sIsStruct := sf.Type.(StructType)
		switch {
		case tIsStruct && sIsStruct:
			merged, err := Merge(ts, ss)
			if err != nil {
				return StructType{}, err
			}
			tf.Type = merged
			out.Fields = append(out.Fields, tf)
		case tIsStruct != sIsStruct:
			return StructType{}, &IncompatibleSchemaError{Field: tf.Name, Reason: "struct/non-struct mismatch"}
		case CanWiden(sf.Type, tf.Type):
			out.Fields = append(out.Fields, tf)
		case CanWiden(tf.Type, sf.Type):
			tf.Type = sf.Type
			out.Fields = append(out.Fields, tf)
		default:
			return StructType{}, &IncompatibleSchemaError{
				Field:  tf.Name,
				Reason: fmt.Sprintf("cannot merge %s with %s", tf.Type.TypeName(), sf.Type.TypeName()),
			}
		}
	}
	for _, sf := range source.Fields {
		if _, ok := target.Field(sf.Name); !ok {
			sf.Nullable = true
			out.Fields = append(out.Fields, sf)
		}
	}
	return out, nil
}

// ValidatePartitionColumns verifies that every partition column names a
// top-level schema field
func ValidatePartitionColumns(s StructType, partitionColumns []string) error {
	for _, c := range partitionColumns {
		if _, ok := s.Field(c); !ok {
			return &UnknownColumnError{Column: c, Schema: s}
		}
	}
	return nil
}

// ValidateAssignments checks a set of SET target paths for conflicts: two
// assignments to the same leaf, or one path being a prefix of another.
// Paths must resolve through struct fields only.
func ValidateAssignments(s StructType, paths []string) error {
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)
	for i := 1; i < len(sorted); i++ {
		a, b := sorted[i-1], sorted[i]
		if a == b || strings.HasPrefix(b, a+".") {
			return &ConflictingAssignmentsError{First: a, Second: b}
		}
	}
	for _, p := range paths {
		if _, err := s.FieldAtPath(p); err != nil {
			return err
		}
	}
	return nil
}

// ValidateInsertColumns rejects dotted paths in INSERT value maps and
// verifies every named column exists
func ValidateInsertColumns(s StructType, columns []string) error {
	for _, c := range columns {
		if strings.Contains(c, ".") {
			return fmt.Errorf("%w: %q", ErrNestedFieldInInsert, c)
		}
		if _, ok := s.Field(c); !ok {
			return &UnknownColumnError{Column: c, Schema: s}
		}
	}
	return nil
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
