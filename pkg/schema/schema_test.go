package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intSchema(names ...string) StructType {
	s := StructType{}
	for _, n := range names {
		s.Fields = append(s.Fields, StructField{Name: n, Type: PrimitiveType(TypeInteger), Nullable: true})
	}
	return s
}

func TestJSONRoundTrip(t *testing.T) {
	s := StructType{Fields: []StructField{
		{Name: "key", Type: PrimitiveType(TypeLong), Nullable: false},
		{Name: "value", Type: PrimitiveType(TypeString), Nullable: true},
		{Name: "nested", Type: StructType{Fields: []StructField{
			{Name: "inner", Type: PrimitiveType(TypeDouble), Nullable: true},
		}}, Nullable: true},
	}}
	raw, err := s.ToJSON()
	require.NoError(t, err)
	parsed, err := FromJSON(raw)
	require.NoError(t, err)

	require.Len(t, parsed.Fields, 3)
	assert.Equal(t, "key", parsed.Fields[0].Name)
	assert.Equal(t, PrimitiveType(TypeLong), parsed.Fields[0].Type)
	assert.False(t, parsed.Fields[0].Nullable)
	nested, ok := parsed.Fields[2].Type.(StructType)
	require.True(t, ok)
	assert.Equal(t, "inner", nested.Fields[0].Name)
}

func TestFromJSONRejectsNonStruct(t *testing.T) {
	_, err := FromJSON(`"integer"`)
	assert.Error(t, err)
}

func TestFieldAtPath(t *testing.T) {
	s := StructType{Fields: []StructField{
		{Name: "a", Type: StructType{Fields: []StructField{
			{Name: "b", Type: PrimitiveType(TypeInteger), Nullable: true},
		}}, Nullable: true},
		{Name: "c", Type: PrimitiveType(TypeString), Nullable: true},
	}}

	f, err := s.FieldAtPath("a.b")
	require.NoError(t, err)
	assert.Equal(t, "b", f.Name)

	_, err = s.FieldAtPath("c.d")
	assert.Error(t, err, "cannot traverse a scalar")

	_, err = s.FieldAtPath("a.x")
	var unknown *UnknownColumnError
	assert.ErrorAs(t, err, &unknown)
}

func TestCanWiden(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{TypeByte, TypeShort, true},
		{TypeByte, TypeLong, true},
		{TypeShort, TypeInteger, true},
		{TypeInteger, TypeLong, true},
		{TypeFloat, TypeDouble, true},
		{TypeInteger, TypeString, true},
		{TypeLong, TypeInteger, false},
		{TypeDouble, TypeFloat, false},
		{TypeString, TypeInteger, false},
		{TypeInteger, TypeInteger, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanWiden(PrimitiveType(tt.from), PrimitiveType(tt.to)),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestCheckReadCompatible(t *testing.T) {
	base := StructType{Fields: []StructField{
		{Name: "key", Type: PrimitiveType(TypeInteger), Nullable: false},
		{Name: "value", Type: PrimitiveType(TypeInteger), Nullable: true},
	}}

	t.Run("adding nullable field is compatible", func(t *testing.T) {
		widened := StructType{Fields: append([]StructField{}, base.Fields...)}
		widened.Fields = append(widened.Fields, StructField{Name: "extra", Type: PrimitiveType(TypeString), Nullable: true})
		assert.NoError(t, CheckReadCompatible(base, widened))
	})

	t.Run("widening is compatible", func(t *testing.T) {
		widened := StructType{Fields: []StructField{
			{Name: "key", Type: PrimitiveType(TypeLong), Nullable: false},
			{Name: "value", Type: PrimitiveType(TypeInteger), Nullable: true},
		}}
		assert.NoError(t, CheckReadCompatible(base, widened))
	})

	t.Run("removing a field is incompatible", func(t *testing.T) {
		err := CheckReadCompatible(base, intSchema("key"))
		var ic *IncompatibleSchemaError
		assert.ErrorAs(t, err, &ic)
	})

	t.Run("narrowing is incompatible", func(t *testing.T) {
		narrowed := StructType{Fields: []StructField{
			{Name: "key", Type: PrimitiveType(TypeByte), Nullable: false},
			{Name: "value", Type: PrimitiveType(TypeInteger), Nullable: true},
		}}
		assert.Error(t, CheckReadCompatible(base, narrowed))
	})

	t.Run("new required field is incompatible", func(t *testing.T) {
		widened := StructType{Fields: append([]StructField{}, base.Fields...)}
		widened.Fields = append(widened.Fields, StructField{Name: "extra", Type: PrimitiveType(TypeString), Nullable: false})
		assert.Error(t, CheckReadCompatible(base, widened))
	})

	t.Run("nullable made required is incompatible", func(t *testing.T) {
		flipped := StructType{Fields: []StructField{
			{Name: "key", Type: PrimitiveType(TypeInteger), Nullable: false},
			{Name: "value", Type: PrimitiveType(TypeInteger), Nullable: false},
		}}
		assert.Error(t, CheckReadCompatible(base, flipped))
	})
}

func TestMergeEvolution(t *testing.T) {
	target := StructType{Fields: []StructField{
		{Name: "key", Type: PrimitiveType(TypeInteger), Nullable: false},
		{Name: "value", Type: PrimitiveType(TypeInteger), Nullable: true},
	}}
	source := StructType{Fields: []StructField{
		{Name: "key", Type: PrimitiveType(TypeInteger), Nullable: false},
		{Name: "value", Type: PrimitiveType(TypeLong), Nullable: true},
		{Name: "extra", Type: PrimitiveType(TypeString), Nullable: false},
	}}

	merged, err := Merge(target, source)
	require.NoError(t, err)
	require.Len(t, merged.Fields, 3)
	value, _ := merged.Field("value")
	assert.Equal(t, PrimitiveType(TypeLong), value.Type, "shared column keeps wider type")
	extra, _ := merged.Field("extra")
	assert.True(t, extra.Nullable, "appended columns become nullable")

	_, err = Merge(
		intSchema("k"),
		StructType{Fields: []StructField{{Name: "k", Type: PrimitiveType(TypeString), Nullable: true}}},
	)
	assert.Error(t, err, "unmergeable types")
}

func TestValidateAssignments(t *testing.T) {
	s := StructType{Fields: []StructField{
		{Name: "a", Type: StructType{Fields: []StructField{
			{Name: "b", Type: PrimitiveType(TypeInteger), Nullable: true},
			{Name: "c", Type: PrimitiveType(TypeInteger), Nullable: true},
		}}, Nullable: true},
		{Name: "x", Type: PrimitiveType(TypeInteger), Nullable: true},
	}}

	assert.NoError(t, ValidateAssignments(s, []string{"a.b", "a.c", "x"}))

	var conflict *ConflictingAssignmentsError
	assert.ErrorAs(t, ValidateAssignments(s, []string{"a", "a.b"}), &conflict, "prefix conflict")
	assert.ErrorAs(t, ValidateAssignments(s, []string{"x", "x"}), &conflict, "duplicate leaf")
	assert.Error(t, ValidateAssignments(s, []string{"x.y"}), "scalar traversal")
}

func TestValidateInsertColumns(t *testing.T) {
	s := intSchema("key", "value")
	assert.NoError(t, ValidateInsertColumns(s, []string{"key", "value"}))
	assert.ErrorIs(t, ValidateInsertColumns(s, []string{"key.inner"}), ErrNestedFieldInInsert)
	var unknown *UnknownColumnError
	assert.ErrorAs(t, ValidateInsertColumns(s, []string{"missing"}), &unknown)
}

func TestValidatePartitionColumns(t *testing.T) {
	s := intSchema("key", "value")
	assert.NoError(t, ValidatePartitionColumns(s, []string{"key"}))
	assert.Error(t, ValidatePartitionColumns(s, []string{"nope"}))
}
