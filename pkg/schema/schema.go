package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Primitive type names as they appear in the schema JSON
const (
	TypeByte      = "byte"
	TypeShort     = "short"
	TypeInteger   = "integer"
	TypeLong      = "long"
	TypeFloat     = "float"
	TypeDouble    = "double"
	TypeString    = "string"
	TypeBoolean   = "boolean"
	TypeBinary    = "binary"
	TypeDate      = "date"
	TypeTimestamp = "timestamp"
)

// DataType is the type of a single column or nested field
type DataType interface {
	TypeName() string
}

// PrimitiveType is a leaf column type (integer, string, ...)
type PrimitiveType string

func (p PrimitiveType) TypeName() string { return string(p) }

// StructType is an ordered collection of named fields
type StructType struct {
	Fields []StructField
}

func (s StructType) TypeName() string { return "struct" }

// StructField is a single named field inside a StructType
type StructField struct {
	Name     string
	Type     DataType
	Nullable bool
	Metadata map[string]any
}

// FieldNames returns the top-level field names in declaration order
func (s StructType) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Field looks up a top-level field by name
func (s StructType) Field(name string) (StructField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return StructField{}, false
}

// FieldAtPath resolves a dotted path. Only struct fields may be traversed;
// descending through a non-struct type is an error.
func (s StructType) FieldAtPath(path string) (StructField, error) {
	parts := strings.Split(path, ".")
	cur := s
	for i, part := range parts {
		f, ok := cur.Field(part)
		if !ok {
			return StructField{}, &UnknownColumnError{Column: strings.Join(parts[:i+1], "."), Schema: s}
		}
		if i == len(parts)-1 {
			return f, nil
		}
		nested, ok := f.Type.(StructType)
		if !ok {
			return StructField{}, fmt.Errorf("schema: cannot traverse %q: field %q is %s, not struct",
				path, part, f.Type.TypeName())
		}
		cur = nested
	}
	return StructField{}, &UnknownColumnError{Column: path, Schema: s}
}

// Project returns a copy of the schema restricted to the given top-level
// columns, in the given order.
func (s StructType) Project(columns []string) (StructType, error) {
	out := StructType{Fields: make([]StructField, 0, len(columns))}
	for _, c := range columns {
		f, ok := s.Field(c)
		if !ok {
			return StructType{}, &UnknownColumnError{Column: c, Schema: s}
		}
		out.Fields = append(out.Fields, f)
	}
	return out, nil
}

// jsonField is the wire representation of a StructField
type jsonField struct {
	Name     string          `json:"name"`
	Type     json.RawMessage `json:"type"`
	Nullable bool            `json:"nullable"`
	Metadata map[string]any  `json:"metadata"`
}

type jsonStruct struct {
	Type   string      `json:"type"`
	Fields []jsonField `json:"fields"`
}

// ToJSON serializes the schema into its canonical JSON string form
func (s StructType) ToJSON() (string, error) {
	raw, err := marshalType(s)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func marshalType(t DataType) (json.RawMessage, error) {
	switch v := t.(type) {
	case PrimitiveType:
		return json.Marshal(string(v))
	case StructType:
		fields := make([]jsonField, len(v.Fields))
		for i, f := range v.Fields {
			raw, err := marshalType(f.Type)
			if err != nil {
				return nil, err
			}
			md := f.Metadata
			if md == nil {
				md = map[string]any{}
			}
			fields[i] = jsonField{Name: f.Name, Type: raw, Nullable: f.Nullable, Metadata: md}
		}
		return json.Marshal(jsonStruct{Type: "struct", Fields: fields})
	default:
		return nil, fmt.Errorf("schema: cannot serialize type %T", t)
	}
}

// FromJSON parses a schema from its canonical JSON string form
func FromJSON(schemaString string) (StructType, error) {
	t, err := unmarshalType(json.RawMessage(schemaString))
	if err != nil {
		return StructType{}, err
	}
	st, ok := t.(StructType)
	if !ok {
		return StructType{}, fmt.Errorf("schema: top-level type must be struct, got %s", t.TypeName())
	}
	return st, nil
}

func unmarshalType(raw json.RawMessage) (DataType, error) {
	// A primitive is encoded as a bare JSON string
	var prim string
	if err := json.Unmarshal(raw, &prim); err == nil {
		return PrimitiveType(prim), nil
	}

	var js jsonStruct
	if err := json.Unmarshal(raw, &js); err != nil {
		return nil, fmt.Errorf("schema: invalid type document: %w", err)
	}
	if js.Type != "struct" {
		return nil, fmt.Errorf("schema: unsupported complex type %q", js.Type)
	}
	st := StructType{Fields: make([]StructField, len(js.Fields))}
	for i, f := range js.Fields {
		ft, err := unmarshalType(f.Type)
		if err != nil {
			return StructType{}, err
		}
		st.Fields[i] = StructField{Name: f.Name, Type: ft, Nullable: f.Nullable, Metadata: f.Metadata}
	}
	return st, nil
}
