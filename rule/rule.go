// Package rule defines the data-quality rules the engine detects and repairs.
//
// A rule is consumed only through the Rule interface: Iterator enumerates
// candidate blocks of tuples, Detect turns a block into violations and Repair
// turns a violation into candidate fixes.
package rule

import (
	"context"

	"github.com/teranos/mend/types"
)

// Kind declares how many tuples a rule inspects at once.
type Kind int

const (
	// KindSingle rules inspect one tuple per block.
	KindSingle Kind = iota + 1
	// KindPair rules inspect two tuples per block.
	KindPair
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindPair:
		return "pair"
	default:
		return "unknown"
	}
}

// Block is one detection input: a single tuple, or a pair.
type Block struct {
	Tuples []types.Tuple
}

// Emit receives blocks from an iterator. Returning an error stops iteration.
type Emit func(Block) error

// Rule is a data-quality constraint over one or more tables.
type Rule interface {
	ID() string
	Kind() Kind
	TableNames() []string

	// Detect returns the violations found in b. Violation ids are left zero.
	Detect(b Block) []types.Violation

	// Repair returns candidate fixes for a violation produced by Detect.
	Repair(v types.Violation) []types.Fix

	// Iterator emits the blocks to detect over. When newTuples is non-empty only
	// blocks containing at least one of those tuple ids are emitted.
	Iterator(ctx context.Context, tables map[string]*types.Table, newTuples []int, emit Emit) error
}

func tidSet(tids []int) map[int]struct{} {
	if len(tids) == 0 {
		return nil
	}
	set := make(map[int]struct{}, len(tids))
	for _, t := range tids {
		set[t] = struct{}{}
	}
	return set
}

func contains(set map[int]struct{}, tid int) bool {
	_, ok := set[tid]
	return ok
}

// cellAt finds the violation cell at tid/attribute.
func cellAt(v types.Violation, tid int, attribute string) (types.Cell, bool) {
	for _, c := range v.Cells {
		if c.TID() == tid && c.Attribute() == attribute {
			return c, true
		}
	}
	return types.Cell{}, false
}

// constantLike parses raw into the kind of v when v is numeric. A
// fractional constant against an integer becomes a Float.
func constantLike(v types.Value, raw string) types.Value {
	switch v.Kind() {
	case types.KindInt:
		if parsed, err := types.ParseConstant(raw, types.TypeInteger); err == nil {
			return parsed
		}
	case types.KindFloat:
		if parsed, err := types.ParseValue(raw, types.TypeFloat); err == nil {
			return parsed
		}
	}
	return types.Text(raw)
}
