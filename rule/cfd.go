package rule

import (
	"context"

	"github.com/teranos/mend/errors"
	"github.com/teranos/mend/types"
)

// Binding pairs an attribute with a constant.
type Binding struct {
	Attribute string
	Value     string
}

// CFD is a constant conditional functional dependency: tuples matching every
// LHS binding must carry the RHS constant.
type CFD struct {
	id    string
	table string
	lhs   []Binding
	rhs   Binding
}

// NewCFD validates the pattern.
func NewCFD(id, table string, lhs []Binding, rhs Binding) (*CFD, error) {
	if id == "" {
		return nil, errors.NewInvalidInputError("rule id is empty")
	}
	if len(lhs) == 0 {
		return nil, errors.NewInvalidInputError("rule %s: pattern needs at least one condition", id)
	}
	for _, b := range append(append([]Binding{}, lhs...), rhs) {
		if _, err := types.NewColumn(table, b.Attribute); err != nil {
			return nil, errors.Wrapf(err, "rule %s", id)
		}
	}
	return &CFD{id: id, table: table, lhs: lhs, rhs: rhs}, nil
}

func (r *CFD) ID() string           { return r.id }
func (r *CFD) Kind() Kind           { return KindSingle }
func (r *CFD) TableNames() []string { return []string{r.table} }

// Iterator emits each tuple of the table, or only the new ones when given.
func (r *CFD) Iterator(ctx context.Context, tables map[string]*types.Table, newTuples []int, emit Emit) error {
	return singleTuples(ctx, r.id, r.table, tables, newTuples, emit)
}

func (r *CFD) matches(t types.Tuple) bool {
	for _, b := range r.lhs {
		v, ok := t.Value(b.Attribute)
		if !ok || v.IsNull() || !v.Equal(constantLike(v, b.Value)) {
			return false
		}
	}
	return true
}

// Detect reports a tuple matching the pattern whose RHS value differs.
func (r *CFD) Detect(b Block) []types.Violation {
	if len(b.Tuples) != 1 {
		return nil
	}
	t := b.Tuples[0]
	if !r.matches(t) {
		return nil
	}
	v, ok := t.Value(r.rhs.Attribute)
	if !ok || v.Equal(constantLike(v, r.rhs.Value)) {
		return nil
	}

	violation := types.Violation{RuleID: r.id}
	for _, bind := range append(append([]Binding{}, r.lhs...), r.rhs) {
		if c, err := t.Cell(bind.Attribute); err == nil {
			violation.Cells = append(violation.Cells, c)
		}
	}
	return []types.Violation{violation}
}

// Repair emits rhs = constant for the violating tuple.
func (r *CFD) Repair(v types.Violation) []types.Fix {
	tids := v.TupleIDs()
	if len(tids) != 1 {
		return nil
	}
	c, ok := cellAt(v, tids[0], r.rhs.Attribute)
	if !ok {
		return nil
	}
	return []types.Fix{types.NewConstantFix(v.ID, c, types.EQ, constantLike(c.Value(), r.rhs.Value))}
}

func singleTuples(ctx context.Context, id, name string, tables map[string]*types.Table, newTuples []int, emit Emit) error {
	table, ok := tables[name]
	if !ok {
		return errors.NewNotFoundError("table %s for rule %s", name, id)
	}
	fresh := tidSet(newTuples)
	for _, t := range table.Tuples {
		if fresh != nil && !contains(fresh, t.TID()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(Block{Tuples: []types.Tuple{t}}); err != nil {
			return err
		}
	}
	return nil
}
