// Package types holds the value-level data model shared by solvers, rules,
// storage and the repair loop: values, cells, operations and fixes.
package types

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/mend/errors"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a tagged union over {Null, Integer, Float, Text}.
// The zero Value is Null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

// Null returns the null value.
func Null() Value { return Value{} }

// Int returns an integer value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float returns a floating point value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Text returns a text value.
func Text(v string) Value { return Value{kind: KindText, s: v} }

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }
func (v Value) IsNumeric() bool { return v.kind == KindInt || v.kind == KindFloat }

// AsInt returns the integer payload. Floats are truncated.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		return int64(v.f), true
	default:
		return 0, false
	}
}

// AsFloat returns the numeric payload of an Int or Float value.
// Text is parsed when it holds a number.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	case KindText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// String renders the value the way it is persisted in violation and repair rows.
// Null renders as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindText:
		return v.s
	default:
		return ""
	}
}

// numbers returns both sides as floats when at least one side is numeric
// and the other is numeric or text holding a number.
func (v Value) numbers(o Value) (float64, float64, bool) {
	if !v.IsNumeric() && !o.IsNumeric() {
		return 0, 0, false
	}
	a, ok := v.AsFloat()
	if !ok {
		return 0, 0, false
	}
	b, ok := o.AsFloat()
	if !ok {
		return 0, 0, false
	}
	return a, b, true
}

// Equal compares numerically when both sides are numbers and textually otherwise.
// Null equals only Null.
func (v Value) Equal(o Value) bool {
	if v.kind == KindNull || o.kind == KindNull {
		return v.kind == o.kind
	}
	if a, b, ok := v.numbers(o); ok {
		return a == b
	}
	return v.String() == o.String()
}

// Compare orders two values: numerically when both sides are numbers,
// lexically otherwise. Null sorts before everything else.
func (v Value) Compare(o Value) int {
	switch {
	case v.kind == KindNull && o.kind == KindNull:
		return 0
	case v.kind == KindNull:
		return -1
	case o.kind == KindNull:
		return 1
	}
	if a, b, ok := v.numbers(o); ok {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(v.String(), o.String())
}

// SQL returns the driver argument for v.
func (v Value) SQL() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindText:
		return v.s
	default:
		return nil
	}
}

// DataType is the declared type of a source column.
type DataType uint8

const (
	TypeText DataType = iota
	TypeInteger
	TypeFloat
)

func (t DataType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	default:
		return "text"
	}
}

// DataTypeOf maps a declared database column type to a DataType.
func DataTypeOf(declared string) DataType {
	upper := strings.ToUpper(strings.TrimSpace(declared))
	if i := strings.IndexByte(upper, '('); i >= 0 {
		upper = upper[:i]
	}
	switch {
	case strings.HasPrefix(upper, "INT"), upper == "BIGINT", upper == "SMALLINT",
		upper == "TINYINT", strings.HasSuffix(upper, "SERIAL"):
		return TypeInteger
	case upper == "REAL", strings.HasPrefix(upper, "FLOAT"), strings.HasPrefix(upper, "DOUBLE"),
		upper == "NUMERIC", upper == "DECIMAL":
		return TypeFloat
	default:
		return TypeText
	}
}

// ParseValue converts the persisted text form of a value back into a Value of type dt.
func ParseValue(raw string, dt DataType) (Value, error) {
	switch dt {
	case TypeInteger:
		i, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if ferr != nil || f != math.Trunc(f) {
				return Value{}, errors.Wrapf(errors.ErrInvalidInput, "parse %q as integer", raw)
			}
			return Int(int64(f)), nil
		}
		return Int(i), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return Value{}, errors.Wrapf(errors.ErrInvalidInput, "parse %q as float", raw)
		}
		return Float(f), nil
	default:
		return Text(raw), nil
	}
}

// ParseConstant parses the right-hand constant of a comparison against a
// column of type dt. A fractional constant on an integer column stays a Float.
func ParseConstant(raw string, dt DataType) (Value, error) {
	v, err := ParseValue(raw, dt)
	if err == nil || dt != TypeInteger {
		return v, err
	}
	if f, ferr := strconv.ParseFloat(strings.TrimSpace(raw), 64); ferr == nil {
		return Float(f), nil
	}
	return Value{}, err
}

// FromDB converts a value scanned from a database driver into a Value of type dt.
func FromDB(raw any, dt DataType) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case int64:
		return convertNumber(float64(x), Int(x), dt), nil
	case int32:
		return convertNumber(float64(x), Int(int64(x)), dt), nil
	case int:
		return convertNumber(float64(x), Int(int64(x)), dt), nil
	case float64:
		return convertNumber(x, Float(x), dt), nil
	case float32:
		return convertNumber(float64(x), Float(float64(x)), dt), nil
	case bool:
		if x {
			return convertNumber(1, Int(1), dt), nil
		}
		return convertNumber(0, Int(0), dt), nil
	case []byte:
		return ParseValue(string(x), dt)
	case string:
		return ParseValue(x, dt)
	case time.Time:
		return Text(x.UTC().Format(time.RFC3339)), nil
	default:
		return Value{}, errors.Newf("unsupported driver value %T", raw)
	}
}

func convertNumber(f float64, natural Value, dt DataType) Value {
	switch dt {
	case TypeInteger:
		return Int(int64(f))
	case TypeFloat:
		return Float(f)
	case TypeText:
		return Text(natural.String())
	default:
		return natural
	}
}
