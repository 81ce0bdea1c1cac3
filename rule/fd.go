package rule

import (
	"context"
	"strings"

	"github.com/teranos/mend/errors"
	"github.com/teranos/mend/types"
)

// FD is the functional dependency LHS -> RHS over one table: tuples agreeing on
// every LHS attribute must agree on every RHS attribute.
type FD struct {
	id    string
	table string
	lhs   []string
	rhs   []string
}

// NewFD validates the attribute lists.
func NewFD(id, table string, lhs, rhs []string) (*FD, error) {
	if id == "" {
		return nil, errors.NewInvalidInputError("rule id is empty")
	}
	if len(lhs) == 0 || len(rhs) == 0 {
		return nil, errors.NewInvalidInputError("rule %s: dependency needs attributes on both sides", id)
	}
	for _, attr := range append(append([]string{}, lhs...), rhs...) {
		if _, err := types.NewColumn(table, attr); err != nil {
			return nil, errors.Wrapf(err, "rule %s", id)
		}
	}
	return &FD{id: id, table: table, lhs: lhs, rhs: rhs}, nil
}

func (r *FD) ID() string           { return r.id }
func (r *FD) Kind() Kind           { return KindPair }
func (r *FD) TableNames() []string { return []string{r.table} }

func (r *FD) lhsKey(t types.Tuple) (string, bool) {
	parts := make([]string, 0, len(r.lhs))
	for _, attr := range r.lhs {
		v, ok := t.Value(attr)
		if !ok || v.IsNull() {
			return "", false
		}
		parts = append(parts, v.String())
	}
	return strings.Join(parts, "\x1f"), true
}

// Iterator emits every pair of tuples sharing the LHS values.
func (r *FD) Iterator(ctx context.Context, tables map[string]*types.Table, newTuples []int, emit Emit) error {
	table, ok := tables[r.table]
	if !ok {
		return errors.NewNotFoundError("table %s for rule %s", r.table, r.id)
	}
	fresh := tidSet(newTuples)

	var order []string
	groups := make(map[string][]types.Tuple)
	for _, t := range table.Tuples {
		key, ok := r.lhsKey(t)
		if !ok {
			continue
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], t)
	}

	for _, key := range order {
		group := groups[key]
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if fresh != nil && !contains(fresh, group[i].TID()) && !contains(fresh, group[j].TID()) {
					continue
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := emit(Block{Tuples: []types.Tuple{group[i], group[j]}}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Detect reports a pair agreeing on LHS but differing on some RHS attribute.
// The violation holds the LHS cells and the differing RHS cells of both tuples.
func (r *FD) Detect(b Block) []types.Violation {
	if len(b.Tuples) != 2 {
		return nil
	}
	t1, t2 := b.Tuples[0], b.Tuples[1]
	k1, ok1 := r.lhsKey(t1)
	k2, ok2 := r.lhsKey(t2)
	if !ok1 || !ok2 || k1 != k2 {
		return nil
	}

	var differing []string
	for _, attr := range r.rhs {
		v1, _ := t1.Value(attr)
		v2, _ := t2.Value(attr)
		if !v1.Equal(v2) {
			differing = append(differing, attr)
		}
	}
	if len(differing) == 0 {
		return nil
	}

	v := types.Violation{RuleID: r.id}
	for _, t := range []types.Tuple{t1, t2} {
		for _, attr := range append(append([]string{}, r.lhs...), differing...) {
			c, err := t.Cell(attr)
			if err != nil {
				continue
			}
			v.Cells = append(v.Cells, c)
		}
	}
	return []types.Violation{v}
}

// Repair emits t1.rhs = t2.rhs for every differing RHS attribute in v.
func (r *FD) Repair(v types.Violation) []types.Fix {
	tids := v.TupleIDs()
	if len(tids) != 2 {
		return nil
	}
	var fixes []types.Fix
	for _, attr := range r.rhs {
		left, ok1 := cellAt(v, tids[0], attr)
		right, ok2 := cellAt(v, tids[1], attr)
		if !ok1 || !ok2 {
			continue
		}
		fixes = append(fixes, types.NewCellFix(v.ID, left, types.EQ, right))
	}
	return fixes
}
