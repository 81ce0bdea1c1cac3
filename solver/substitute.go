package solver

import "github.com/teranos/mend/types"

// SubstituteRHS rewrites fixes so that cell is the left operand and the other
// operand is a constant holding its current value. Fixes with cell on the right
// are swapped and their comparator flipped. Fixes not touching cell are dropped.
func SubstituteRHS(cell types.Cell, fixes []types.Fix) []types.Fix {
	key := cell.Key()
	out := make([]types.Fix, 0, len(fixes))
	for _, f := range fixes {
		switch {
		case f.Left.Key() == key:
			out = append(out, types.NewConstantFix(f.VID, cell, f.Op, f.RightValue()))
		case !f.RightConstant && f.Right.Key() == key:
			out = append(out, types.NewConstantFix(f.VID, cell, f.Op.Flip(), f.Left.Value()))
		}
	}
	return out
}
