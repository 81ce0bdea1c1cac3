// Package solver turns a set of conflicting constraints on cells into concrete
// value assignments. Text cells are resolved by frequency voting, numeric cells
// by a least-squares quadratic program with a relaxation fallback.
package solver

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/mend/errors"
	"github.com/teranos/mend/types"
)

// DomainSource lists the distinct values of a column.
type DomainSource interface {
	DistinctValues(ctx context.Context, table, attribute string) ([]string, error)
}

// Config holds solver parameters.
type Config struct {
	// Epsilon is the strict-comparator margin for continuous variables.
	Epsilon float64
	// CleanTable maps a dirty table to the reference table for domain lookups.
	CleanTable func(string) string
}

// Solver dispatches a fix set to the solver matching the value type of the cell under repair.
type Solver struct {
	vfm     *VFM
	numeric *Numeric
	logger  *zap.SugaredLogger
}

// New creates a dispatching solver.
func New(domain DomainSource, cfg Config, logger *zap.SugaredLogger) *Solver {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger = logger.Named("solver")
	return &Solver{
		vfm:     NewVFM(domain, cfg.CleanTable, logger),
		numeric: NewNumeric(cfg.Epsilon, logger),
		logger:  logger,
	}
}

// Solve returns one EQ fix per involved cell. Infeasible sets yield an error
// marked ErrSolverInfeasible.
func (s *Solver) Solve(ctx context.Context, fixes []types.Fix) ([]types.Fix, error) {
	if len(fixes) == 0 {
		return nil, errors.NewInvalidInputError("no fixes to solve")
	}

	kind, ok := operandKind(fixes)
	if !ok {
		return nil, errors.Wrapf(errors.ErrSolverInfeasible, "cell %s: no typed operand", fixes[0].Left.Key())
	}

	switch kind {
	case types.KindText:
		return s.vfm.Solve(ctx, fixes), nil
	case types.KindInt:
		return s.numeric.Solve(fixes, true)
	case types.KindFloat:
		return s.numeric.Solve(fixes, false)
	default:
		return nil, errors.AssertionFailedf("unsupported value kind %s", kind)
	}
}

// SolveCell solves fixes and returns the assignment for cell.
func (s *Solver) SolveCell(ctx context.Context, cell types.Cell, fixes []types.Fix) (types.Fix, error) {
	solved, err := s.Solve(ctx, fixes)
	if err != nil {
		return types.Fix{}, err
	}
	for _, f := range solved {
		if f.Left.SameCoordinate(cell) {
			return f, nil
		}
	}
	return types.Fix{}, errors.Wrapf(errors.ErrSolverInfeasible, "no assignment for %s", cell.Key())
}

// operandKind is the kind of the original value under repair, or of the
// first non-null operand when that value is null.
func operandKind(fixes []types.Fix) (types.Kind, bool) {
	if k := fixes[0].Left.Value().Kind(); k != types.KindNull {
		return k, true
	}
	for _, f := range fixes {
		if k := f.RightValue().Kind(); k != types.KindNull {
			return k, true
		}
	}
	return types.KindNull, false
}
