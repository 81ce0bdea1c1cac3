// Package repair builds ranked candidate fixes per violated column and picks
// the column to put in front of the user next.
package repair

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/mend/am"
	"github.com/teranos/mend/classify"
	"github.com/teranos/mend/errors"
	"github.com/teranos/mend/logger"
	"github.com/teranos/mend/solver"
	"github.com/teranos/mend/types"
)

// Scoring selects how candidates are scored.
type Scoring string

const (
	// ScoringVOI scores a candidate by the number of competing constraints it satisfies.
	ScoringVOI Scoring = am.ScoringVOI
	// ScoringEntropy scores a candidate by the classifier's uncertainty about it.
	ScoringEntropy Scoring = am.ScoringEntropy
)

// ParseScoring validates a scoring name. Empty selects ScoringVOI.
func ParseScoring(s string) (Scoring, error) {
	switch Scoring(s) {
	case "", ScoringVOI:
		return ScoringVOI, nil
	case ScoringEntropy:
		return ScoringEntropy, nil
	default:
		return "", errors.WithHint(
			errors.NewInvalidInputError("unknown scoring mode %q", s),
			"use voi or entropy")
	}
}

// Store is the read surface a group needs.
type Store interface {
	ViolatedColumns(ctx context.Context) ([]types.Column, error)
	ViolatedTuples(ctx context.Context, col types.Column) ([]int, error)
	Tuple(ctx context.Context, table string, tid int) (types.Tuple, error)
	FixesOfCell(ctx context.Context, cell types.Cell) ([]types.Fix, error)
}

// CellSolver collapses the constraints on one cell into an assignment.
type CellSolver interface {
	SolveCell(ctx context.Context, cell types.Cell, fixes []types.Fix) (types.Fix, error)
}

// Hooks observe group population. Nil hooks are skipped.
type Hooks struct {
	SolverFailure func(col types.Column, err error)
	Populated     func(col types.Column, elapsed time.Duration, candidates int)
}

// Options wires groups to their collaborators.
type Options struct {
	Store  Store
	Solver CellSolver
	// Classifier is required for ScoringEntropy.
	Classifier classify.Classifier
	Scoring    Scoring
	Hooks      Hooks
	Logger     *zap.SugaredLogger
}

func (o *Options) validate() error {
	if o.Store == nil || o.Solver == nil {
		return errors.NewInvalidInputError("repair needs a store and a solver")
	}
	if o.Scoring == "" {
		o.Scoring = ScoringVOI
	}
	if _, err := ParseScoring(string(o.Scoring)); err != nil {
		return err
	}
	if o.Scoring == ScoringEntropy && o.Classifier == nil {
		return errors.NewInvalidInputError("entropy scoring needs a classifier")
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	return nil
}

// Candidate is the proposed assignment for one conflicted cell.
type Candidate struct {
	Fix        types.Fix
	Score      float64
	Tuple      types.Tuple
	Similarity float64
}

// Cell is the cell the candidate would change.
func (c Candidate) Cell() types.Cell { return c.Fix.Left }

// Proposed is the value the candidate would write.
func (c Candidate) Proposed() types.Value { return c.Fix.Constant }

// Instance builds the training instance recording the user's answer.
func (c Candidate) Instance(label types.Label) types.TrainingInstance {
	return types.TrainingInstance{
		Label:      label,
		Tuple:      c.Tuple,
		Attribute:  c.Fix.Left.Attribute(),
		Proposed:   c.Fix.Constant,
		Similarity: c.Similarity,
	}
}

// Group is the ranked working set of candidates for one column.
type Group struct {
	column     types.Column
	opts       Options
	logger     *zap.SugaredLogger
	candidates []Candidate
}

// NewGroup creates an empty group for col.
func NewGroup(col types.Column, opts Options) (*Group, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return newGroup(col, opts), nil
}

func newGroup(col types.Column, opts Options) *Group {
	return &Group{
		column: col,
		opts:   opts,
		logger: opts.Logger.With(logger.FieldTable, col.Table, logger.FieldAttribute, col.Attribute),
	}
}

// Column returns the group's column.
func (g *Group) Column() types.Column { return g.column }

// Len returns the number of candidates.
func (g *Group) Len() int { return len(g.candidates) }

// Candidates returns the ranked candidates.
func (g *Group) Candidates() []Candidate { return g.candidates }

// Populate rebuilds the candidates from the open violations on the column and
// ranks them. Cells whose constraints cannot be solved are skipped. Storage
// and classifier failures abort population.
func (g *Group) Populate(ctx context.Context) error {
	start := time.Now()

	tids, err := g.opts.Store.ViolatedTuples(ctx, g.column)
	if err != nil {
		return errors.Wrapf(err, "populate %s", g.column)
	}

	candidates := make([]Candidate, 0, len(tids))
	for _, tid := range tids {
		c, ok, err := g.candidate(ctx, tid)
		if err != nil {
			return errors.Wrapf(err, "populate %s", g.column)
		}
		if ok {
			candidates = append(candidates, c)
		}
	}
	g.candidates = candidates
	g.Rank()

	elapsed := time.Since(start)
	if g.opts.Hooks.Populated != nil {
		g.opts.Hooks.Populated(g.column, elapsed, len(candidates))
	}
	g.logger.Debugw("Populated repair group",
		logger.FieldCount, len(candidates),
		logger.FieldScoring, g.opts.Scoring,
		logger.FieldDurationMS, elapsed.Milliseconds())
	return nil
}

func (g *Group) candidate(ctx context.Context, tid int) (Candidate, bool, error) {
	tuple, err := g.opts.Store.Tuple(ctx, g.column.Table, tid)
	if err != nil {
		return Candidate{}, false, err
	}
	cell, err := tuple.Cell(g.column.Attribute)
	if err != nil {
		return Candidate{}, false, err
	}
	fixes, err := g.opts.Store.FixesOfCell(ctx, cell)
	if err != nil {
		return Candidate{}, false, err
	}
	fixes = solver.SubstituteRHS(cell, fixes)
	if len(fixes) == 0 {
		return Candidate{}, false, nil
	}

	solution, err := g.opts.Solver.SolveCell(ctx, cell, fixes)
	if err != nil {
		if errors.IsStorageError(err) {
			return Candidate{}, false, err
		}
		g.logger.Warnw("No repair for cell",
			append(logger.CellFields(cell.Table(), cell.Attribute(), cell.TID()),
				logger.FieldFixCount, len(fixes),
				logger.FieldError, err)...)
		if g.opts.Hooks.SolverFailure != nil {
			g.opts.Hooks.SolverFailure(g.column, err)
		}
		return Candidate{}, false, nil
	}

	c := Candidate{
		Fix:        solution,
		Tuple:      tuple,
		Similarity: classify.Similarity(cell.Value(), solution.Constant),
	}
	switch g.opts.Scoring {
	case ScoringEntropy:
		d, err := g.opts.Classifier.Predict(ctx, c.Instance(types.LabelUnset))
		if err != nil {
			return Candidate{}, false, errors.MarkClassifier(err)
		}
		c.Score = classify.Entropy(d)
	default:
		c.Score = float64(satisfiedCount(solution.Constant, fixes))
	}
	return c, true, nil
}

// satisfiedCount is the number of fixes v satisfies.
func satisfiedCount(v types.Value, fixes []types.Fix) int {
	n := 0
	for _, f := range fixes {
		if f.Satisfied(v) {
			n++
		}
	}
	return n
}

// Rank orders candidates by descending score. Equal scores keep their order.
func (g *Group) Rank() {
	sort.SliceStable(g.candidates, func(i, j int) bool {
		return g.candidates[i].Score > g.candidates[j].Score
	})
}

// TopFix returns the candidate at offset in ranked order.
func (g *Group) TopFix(offset int) (Candidate, bool) {
	if !g.HasNext(offset) {
		return Candidate{}, false
	}
	return g.candidates[offset], true
}

// HasNext reports whether offset addresses a candidate.
func (g *Group) HasNext(offset int) bool {
	return offset >= 0 && offset < len(g.candidates)
}

// TotalScore is the sum of the candidate scores.
func (g *Group) TotalScore() float64 {
	total := 0.0
	for _, c := range g.candidates {
		total += c.Score
	}
	return total
}
