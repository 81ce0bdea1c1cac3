package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationCodesArePersistent(t *testing.T) {
	assert.Equal(t, 0, int(EQ))
	assert.Equal(t, 1, int(NEQ))
	assert.Equal(t, 2, int(GT))
	assert.Equal(t, 3, int(LT))
	assert.Equal(t, 4, int(GTE))
	assert.Equal(t, 5, int(LTE))

	op, err := OperationFromCode(3)
	require.NoError(t, err)
	assert.Equal(t, LT, op)

	_, err = OperationFromCode(6)
	assert.Error(t, err)
}

func TestParseOperation(t *testing.T) {
	for _, s := range []string{"=", "==", "!=", "<>", ">", "<", ">=", "<="} {
		op, err := ParseOperation(s)
		require.NoError(t, err, s)
		assert.True(t, op.Valid())
	}
	_, err := ParseOperation("~")
	assert.Error(t, err)
}

func TestOperationFlipAndNegate(t *testing.T) {
	for _, op := range []Operation{EQ, NEQ, GT, LT, GTE, LTE} {
		assert.Equal(t, op, op.Flip().Flip())
		assert.Equal(t, op, op.Negate().Negate())
	}
	assert.Equal(t, GT, LT.Flip())
	assert.Equal(t, LTE, GTE.Flip())
	assert.Equal(t, GTE, LT.Negate())
}

func TestOperationHolds(t *testing.T) {
	tests := []struct {
		op          Operation
		left, right Value
		want        bool
	}{
		{EQ, Text("a"), Text("a"), true},
		{NEQ, Text("a"), Text("a"), false},
		{GT, Int(5), Float(4.5), true},
		{LT, Int(5), Int(5), false},
		{LTE, Int(5), Int(5), true},
		{GTE, Float(1), Int(2), false},
		{LT, Null(), Int(2), false},
		{NEQ, Null(), Int(2), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.op.Holds(tt.left, tt.right), "%s %s %s", tt.left, tt.op, tt.right)
	}
}

func TestFixRightValue(t *testing.T) {
	col, _ := NewColumn("hospital", "city")
	left, _ := NewCell(col, 1, Text("a"))
	right, _ := NewCell(col, 2, Text("b"))

	constant := NewConstantFix(7, left, EQ, Text("c"))
	assert.True(t, constant.RightConstant)
	assert.Equal(t, Text("c"), constant.RightValue())
	assert.True(t, constant.Satisfied(Text("c")))
	assert.False(t, constant.Touches(right.Key()))

	pair := NewCellFix(7, left, EQ, right)
	assert.Equal(t, Text("b"), pair.RightValue())
	assert.True(t, pair.Touches(right.Key()))
	assert.True(t, pair.Touches(left.Key()))
}
