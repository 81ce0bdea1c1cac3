package solver

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/mend/logger"
	"github.com/teranos/mend/types"
)

// VFM resolves EQ/NEQ constraints on categorical values by frequency voting.
type VFM struct {
	domain     DomainSource
	cleanTable func(string) string
	logger     *zap.SugaredLogger
}

// NewVFM creates a frequency solver. cleanTable maps a dirty table name to the
// reference table whose domain is scanned when the original value is voted down.
func NewVFM(domain DomainSource, cleanTable func(string) string, logger *zap.SugaredLogger) *VFM {
	if cleanTable == nil {
		cleanTable = func(table string) string { return table }
	}
	return &VFM{domain: domain, cleanTable: cleanTable, logger: logger}
}

// tally is a signed vote count that remembers first-seen order.
type tally struct {
	order  []string
	counts map[string]int
}

func newTally() *tally {
	return &tally{counts: make(map[string]int)}
}

func (t *tally) add(value string, delta int) {
	if _, ok := t.counts[value]; !ok {
		t.order = append(t.order, value)
	}
	t.counts[value] += delta
}

// best returns the first value holding the maximum non-negative count.
func (t *tally) best() (string, bool) {
	found := false
	var bestValue string
	bestCount := 0
	for _, v := range t.order {
		c := t.counts[v]
		if c < 0 {
			continue
		}
		if !found || c > bestCount {
			bestValue, bestCount, found = v, c, true
		}
	}
	return bestValue, found
}

// Solve tallies +1 per EQ operand and -1 per NEQ constant, then assigns the
// winning value to every involved cell. Ties go to the value seen first.
func (s *VFM) Solve(ctx context.Context, fixes []types.Fix) []types.Fix {
	votes := newTally()
	var cells []types.Cell
	vids := make(map[types.CellKey]int)
	addCell := func(c types.Cell, vid int) {
		if _, ok := vids[c.Key()]; ok {
			return
		}
		vids[c.Key()] = vid
		cells = append(cells, c)
	}

	for _, f := range fixes {
		addCell(f.Left, f.VID)
		if f.RightConstant {
			if f.Op == types.NEQ {
				votes.add(f.Constant.String(), -1)
			} else {
				votes.add(f.Constant.String(), 1)
			}
			continue
		}
		addCell(f.Right, f.VID)
		votes.add(f.Left.Value().String(), 1)
		votes.add(f.Right.Value().String(), 1)
	}
	if len(cells) == 0 {
		return nil
	}

	solution, ok := votes.best()
	if !ok {
		original := cells[0].Value().String()
		if count, seen := votes.counts[original]; !seen || count >= 0 {
			solution = original
		} else {
			solution = s.unconstrainedDomainValue(ctx, cells[0], votes)
		}
	}

	result := make([]types.Fix, 0, len(cells))
	for _, c := range cells {
		result = append(result, types.NewConstantFix(vids[c.Key()], c, types.EQ, types.Text(solution)))
	}
	return result
}

// unconstrainedDomainValue returns the first reference domain value with no vote
// for or against it, or the empty string.
func (s *VFM) unconstrainedDomainValue(ctx context.Context, cell types.Cell, votes *tally) string {
	if s.domain == nil {
		return ""
	}
	table := s.cleanTable(cell.Table())
	domain, err := s.domain.DistinctValues(ctx, table, cell.Attribute())
	if err != nil {
		s.logger.Warnw("Distinct values could not be read, suggesting empty string",
			logger.FieldTable, table,
			logger.FieldAttribute, cell.Attribute(),
			logger.FieldError, err)
		return ""
	}
	for _, v := range domain {
		if _, ok := votes.counts[v]; !ok {
			return v
		}
	}
	return ""
}
