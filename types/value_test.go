package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/mend/errors"
)

func TestValueKinds(t *testing.T) {
	assert.Equal(t, KindNull, Value{}.Kind())
	assert.True(t, Null().IsNull())
	assert.Equal(t, KindInt, Int(3).Kind())
	assert.Equal(t, KindFloat, Float(3.5).Kind())
	assert.Equal(t, KindText, Text("a").Kind())
	assert.True(t, Int(1).IsNumeric())
	assert.False(t, Text("1").IsNumeric())
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "", Null().String())
	assert.Equal(t, "-7", Int(-7).String())
	assert.Equal(t, "2.5", Float(2.5).String())
	assert.Equal(t, "10", Float(10).String())
	assert.Equal(t, "Boston", Text("Boston").String())
}

func TestValueEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"int and float", Int(2), Float(2.0), true},
		{"different ints", Int(2), Int(3), false},
		{"text", Text("a"), Text("a"), true},
		{"text and int render alike", Text("5"), Int(5), true},
		{"null and null", Null(), Null(), true},
		{"null and empty text", Null(), Text(""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
			assert.Equal(t, tt.want, tt.b.Equal(tt.a))
		})
	}
}

func TestValueCompare(t *testing.T) {
	assert.Equal(t, -1, Int(9).Compare(Int(10)))
	assert.Equal(t, 1, Text("9").Compare(Text("10")), "text compares lexically")
	assert.Equal(t, 0, Float(1.5).Compare(Float(1.5)))
	assert.Equal(t, -1, Null().Compare(Int(0)))
	assert.Equal(t, 1, Int(0).Compare(Null()))
	assert.Equal(t, 1, Int(120).Compare(Float(99.5)))
	assert.Equal(t, 1, Int(120).Compare(Text("99.5")), "a number against numeric text compares numerically")
	assert.Equal(t, -1, Text("80").Compare(Int(99)))
	assert.Equal(t, 1, Text("abc").Compare(Int(5)), "non-numeric text falls back to lexical order")
}

func TestDataTypeOf(t *testing.T) {
	tests := map[string]DataType{
		"INTEGER":          TypeInteger,
		"int4":             TypeInteger,
		"BIGINT":           TypeInteger,
		"bigserial":        TypeInteger,
		"REAL":             TypeFloat,
		"FLOAT8":           TypeFloat,
		"double precision": TypeFloat,
		"NUMERIC(10,2)":    TypeFloat,
		"TEXT":             TypeText,
		"VARCHAR(20)":      TypeText,
		"":                 TypeText,
	}
	for declared, want := range tests {
		assert.Equal(t, want, DataTypeOf(declared), declared)
	}
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue("42", TypeInteger)
	require.NoError(t, err)
	assert.Equal(t, Int(42), v)

	v, err = ParseValue("42.0", TypeInteger)
	require.NoError(t, err)
	assert.Equal(t, Int(42), v)

	_, err = ParseValue("4.2", TypeInteger)
	assert.True(t, errors.IsInvalidInputError(err))

	v, err = ParseValue("4.25", TypeFloat)
	require.NoError(t, err)
	assert.Equal(t, Float(4.25), v)

	v, err = ParseValue("x", TypeText)
	require.NoError(t, err)
	assert.Equal(t, Text("x"), v)
}

func TestParseConstant(t *testing.T) {
	v, err := ParseConstant("99.5", TypeInteger)
	require.NoError(t, err)
	assert.Equal(t, Float(99.5), v)

	v, err = ParseConstant("99", TypeInteger)
	require.NoError(t, err)
	assert.Equal(t, Int(99), v)

	_, err = ParseConstant("many", TypeInteger)
	assert.True(t, errors.IsInvalidInputError(err))

	v, err = ParseConstant("7", TypeText)
	require.NoError(t, err)
	assert.Equal(t, Text("7"), v)
}

func TestFromDB(t *testing.T) {
	v, err := FromDB(nil, TypeInteger)
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	v, err = FromDB(int64(7), TypeInteger)
	require.NoError(t, err)
	assert.Equal(t, Int(7), v)

	v, err = FromDB(int32(7), TypeFloat)
	require.NoError(t, err)
	assert.Equal(t, Float(7), v)

	v, err = FromDB([]byte("Boston"), TypeText)
	require.NoError(t, err)
	assert.Equal(t, Text("Boston"), v)

	v, err = FromDB(int64(2134), TypeText)
	require.NoError(t, err)
	assert.Equal(t, Text("2134"), v)

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	v, err = FromDB(ts, TypeText)
	require.NoError(t, err)
	assert.Equal(t, Text("2024-01-02T03:04:05Z"), v)

	_, err = FromDB(struct{}{}, TypeText)
	assert.Error(t, err)
}
