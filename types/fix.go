package types

import "fmt"

// Fix is one constraint on a cell: Left Op Right, where Right is either
// another cell or a constant. Left is always the cell under repair.
type Fix struct {
	VID  int
	Left Cell
	Op   Operation

	// Right is meaningful only when RightConstant is false.
	Right Cell
	// Constant is meaningful only when RightConstant is true.
	Constant      Value
	RightConstant bool
}

// NewConstantFix builds a right-constant fix.
func NewConstantFix(vid int, left Cell, op Operation, constant Value) Fix {
	return Fix{VID: vid, Left: left, Op: op, Constant: constant, RightConstant: true}
}

// NewCellFix builds a fix relating two cells.
func NewCellFix(vid int, left Cell, op Operation, right Cell) Fix {
	return Fix{VID: vid, Left: left, Op: op, Right: right}
}

// RightValue returns the constant, or the right cell's current value.
func (f Fix) RightValue() Value {
	if f.RightConstant {
		return f.Constant
	}
	return f.Right.Value()
}

// Touches reports whether either side of f is the cell at key.
func (f Fix) Touches(key CellKey) bool {
	if f.Left.Key() == key {
		return true
	}
	return !f.RightConstant && f.Right.Key() == key
}

// Satisfied reports whether v, standing in for the left cell, satisfies f.
func (f Fix) Satisfied(v Value) bool {
	return f.Op.Holds(v, f.RightValue())
}

func (f Fix) String() string {
	if f.RightConstant {
		return fmt.Sprintf("%s %s %q", f.Left.Key(), f.Op, f.Constant.String())
	}
	return fmt.Sprintf("%s %s %s", f.Left.Key(), f.Op, f.Right.Key())
}

// Violation records a set of cells that jointly break one rule.
type Violation struct {
	ID     int
	RuleID string
	Cells  []Cell
}

// TupleIDs returns the distinct tuple ids of the violation's cells in order of appearance.
func (v Violation) TupleIDs() []int {
	seen := make(map[int]struct{}, len(v.Cells))
	var ids []int
	for _, c := range v.Cells {
		if _, ok := seen[c.TID()]; ok {
			continue
		}
		seen[c.TID()] = struct{}{}
		ids = append(ids, c.TID())
	}
	return ids
}
