package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNestedFieldInInsert indicates a dotted column path in an INSERT
	// value map; inserts accept top-level columns only
	ErrNestedFieldInInsert = errors.New("schema: nested fields are not allowed in insert values")
)

// UnknownColumnError indicates a reference to a column that is not part of
// the schema
type UnknownColumnError struct {
	Column string
	Schema StructType
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("schema: unknown column %q (schema fields: %s)",
		e.Column, strings.Join(e.Schema.FieldNames(), ", "))
}

// IncompatibleSchemaError indicates a schema change that readers of the old
// schema cannot follow
type IncompatibleSchemaError struct {
	Field  string
	Reason string
}

func (e *IncompatibleSchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema: incompatible schema change: %s", e.Reason)
	}
	return fmt.Sprintf("schema: incompatible schema change on field %q: %s", e.Field, e.Reason)
}

// ConflictingAssignmentsError indicates two SET paths that write to the same
// leaf, or where one path is a prefix of the other
type ConflictingAssignmentsError struct {
	First  string
	Second string
}

func (e *ConflictingAssignmentsError) Error() string {
	return fmt.Sprintf("schema: conflicting assignments: %q and %q", e.First, e.Second)
}
