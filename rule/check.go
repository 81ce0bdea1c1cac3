package rule

import (
	"context"

	"github.com/teranos/mend/errors"
	"github.com/teranos/mend/types"
)

// Check requires attribute op constant to hold on every tuple, e.g. beds >= 0.
type Check struct {
	id        string
	table     string
	attribute string
	op        types.Operation
	constant  string
}

// NewCheck validates the comparison.
func NewCheck(id, table, attribute string, op types.Operation, constant string) (*Check, error) {
	if id == "" {
		return nil, errors.NewInvalidInputError("rule id is empty")
	}
	if _, err := types.NewColumn(table, attribute); err != nil {
		return nil, errors.Wrapf(err, "rule %s", id)
	}
	if !op.Valid() {
		return nil, errors.NewInvalidInputError("rule %s: invalid operation %s", id, op)
	}
	return &Check{id: id, table: table, attribute: attribute, op: op, constant: constant}, nil
}

func (r *Check) ID() string           { return r.id }
func (r *Check) Kind() Kind           { return KindSingle }
func (r *Check) TableNames() []string { return []string{r.table} }

// Iterator emits each tuple of the table, or only the new ones when given.
func (r *Check) Iterator(ctx context.Context, tables map[string]*types.Table, newTuples []int, emit Emit) error {
	return singleTuples(ctx, r.id, r.table, tables, newTuples, emit)
}

// Detect reports a tuple whose value fails the comparison. Null values are not checked.
func (r *Check) Detect(b Block) []types.Violation {
	if len(b.Tuples) != 1 {
		return nil
	}
	c, err := b.Tuples[0].Cell(r.attribute)
	if err != nil || c.Value().IsNull() {
		return nil
	}
	if r.op.Holds(c.Value(), constantLike(c.Value(), r.constant)) {
		return nil
	}
	return []types.Violation{{RuleID: r.id, Cells: []types.Cell{c}}}
}

// Repair emits the comparison itself as a right-constant fix.
func (r *Check) Repair(v types.Violation) []types.Fix {
	if len(v.Cells) != 1 {
		return nil
	}
	c := v.Cells[0]
	return []types.Fix{types.NewConstantFix(v.ID, c, r.op, constantLike(c.Value(), r.constant))}
}
