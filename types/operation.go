package types

import (
	"strconv"

	"github.com/teranos/mend/errors"
)

// Operation is the comparator a Fix asserts between its left cell and right operand.
// The integer codes are persisted in repair.op and must not be reordered.
type Operation int

const (
	EQ Operation = iota
	NEQ
	GT
	LT
	GTE
	LTE
)

var operationSymbols = [...]string{EQ: "=", NEQ: "!=", GT: ">", LT: "<", GTE: ">=", LTE: "<="}

func (o Operation) String() string {
	if o.Valid() {
		return operationSymbols[o]
	}
	return "op(" + strconv.Itoa(int(o)) + ")"
}

// Valid reports whether o is one of the six known comparators.
func (o Operation) Valid() bool {
	return o >= EQ && o <= LTE
}

// ParseOperation accepts the symbolic forms, plus "==" and "<>".
func ParseOperation(s string) (Operation, error) {
	switch s {
	case "=", "==":
		return EQ, nil
	case "!=", "<>":
		return NEQ, nil
	case ">":
		return GT, nil
	case "<":
		return LT, nil
	case ">=":
		return GTE, nil
	case "<=":
		return LTE, nil
	}
	return 0, errors.NewInvalidInputError("unknown operation %q", s)
}

// OperationFromCode converts a persisted code back into an Operation.
func OperationFromCode(code int) (Operation, error) {
	o := Operation(code)
	if !o.Valid() {
		return 0, errors.NewInvalidInputError("unknown operation code %d", code)
	}
	return o, nil
}

// Flip returns the comparator that holds after swapping the operands.
func (o Operation) Flip() Operation {
	switch o {
	case GT:
		return LT
	case LT:
		return GT
	case GTE:
		return LTE
	case LTE:
		return GTE
	default:
		return o
	}
}

// Negate returns the complementary comparator.
func (o Operation) Negate() Operation {
	switch o {
	case EQ:
		return NEQ
	case NEQ:
		return EQ
	case GT:
		return LTE
	case LT:
		return GTE
	case GTE:
		return LT
	default:
		return GT
	}
}

// IsEquality reports whether o is EQ or NEQ.
func (o Operation) IsEquality() bool {
	return o == EQ || o == NEQ
}

// Holds evaluates left o right.
func (o Operation) Holds(left, right Value) bool {
	switch o {
	case EQ:
		return left.Equal(right)
	case NEQ:
		return !left.Equal(right)
	}
	if left.IsNull() || right.IsNull() {
		return false
	}
	c := left.Compare(right)
	switch o {
	case GT:
		return c > 0
	case LT:
		return c < 0
	case GTE:
		return c >= 0
	case LTE:
		return c <= 0
	}
	return false
}
