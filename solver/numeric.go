package solver

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/teranos/mend/errors"
	"github.com/teranos/mend/logger"
	"github.com/teranos/mend/types"
)

// maxRoundingVariables bounds the floor/ceil enumeration of integer solutions.
const maxRoundingVariables = 12

// Numeric resolves comparator constraints over numeric cells by finding the
// values of least squared distance from the observed ones.
type Numeric struct {
	epsilon float64
	logger  *zap.SugaredLogger
}

// NewNumeric creates a numeric solver. epsilon is the margin of strict
// comparators on continuous variables.
func NewNumeric(epsilon float64, logger *zap.SugaredLogger) *Numeric {
	if epsilon <= 0 {
		epsilon = 1e-5
	}
	return &Numeric{epsilon: epsilon, logger: logger}
}

// constraint is one fix expressed as coef·x - constant ⋈ 0. On integer
// variables coef·x is itself an integer, so strict and fractional bounds are
// snapped onto the lattice instead of padded with a margin.
type constraint struct {
	fix      types.Fix
	coef     []float64
	constant float64
	op       types.Operation
	integer  bool
}

// expr evaluates coef·x - constant.
func (c constraint) expr(x []float64) float64 {
	v := -c.constant
	for i, a := range c.coef {
		v += a * x[i]
	}
	return v
}

func (c constraint) sum(x []float64) float64 {
	return c.expr(x) + c.constant
}

// lower is the least admissible coef·x for GT (strict) or GTE.
func (c constraint) lower(strict bool, margin float64) float64 {
	switch {
	case c.integer && strict:
		return math.Floor(c.constant) + 1
	case c.integer:
		return math.Ceil(c.constant)
	case strict:
		return c.constant + margin
	default:
		return c.constant
	}
}

// upper is the greatest admissible coef·x for LT (strict) or LTE.
func (c constraint) upper(strict bool, margin float64) float64 {
	switch {
	case c.integer && strict:
		return math.Ceil(c.constant) - 1
	case c.integer:
		return math.Floor(c.constant)
	case strict:
		return c.constant - margin
	default:
		return c.constant
	}
}

func (c constraint) ge(strict bool, margin float64) halfspace {
	return halfspace{coef: c.coef, bound: c.lower(strict, margin)}
}

func (c constraint) le(strict bool, margin float64) halfspace {
	neg := make([]float64, len(c.coef))
	for i, a := range c.coef {
		neg[i] = -a
	}
	return halfspace{coef: neg, bound: -c.upper(strict, margin)}
}

// rows encodes the constraint. NEQ yields both strict halves, which no point
// satisfies, so any NEQ forces the relaxation phase.
func (c constraint) rows(margin float64) []halfspace {
	switch c.op {
	case types.EQ:
		return []halfspace{c.ge(false, margin), c.le(false, margin)}
	case types.NEQ:
		return []halfspace{c.ge(true, margin), c.le(true, margin)}
	case types.GT:
		return []halfspace{c.ge(true, margin)}
	case types.GTE:
		return []halfspace{c.ge(false, margin)}
	case types.LT:
		return []halfspace{c.le(true, margin)}
	default:
		return []halfspace{c.le(false, margin)}
	}
}

// holds checks the constraint at x with the same bounds used to encode it.
func (c constraint) holds(x []float64, margin float64) bool {
	s := c.sum(x)
	switch c.op {
	case types.EQ:
		return math.Abs(c.expr(x)) <= feasibilityTol
	case types.NEQ:
		return s >= c.lower(true, margin)-feasibilityTol || s <= c.upper(true, margin)+feasibilityTol
	case types.GT:
		return s >= c.lower(true, margin)-feasibilityTol
	case types.GTE:
		return s >= c.lower(false, margin)-feasibilityTol
	case types.LT:
		return s <= c.upper(true, margin)+feasibilityTol
	default:
		return s <= c.upper(false, margin)+feasibilityTol
	}
}

// model is the quadratic program min Σ(x - origin)² over the free cells.
type model struct {
	cells       []types.Cell
	vids        []int
	origin      []float64
	index       map[types.CellKey]int
	constraints []constraint
	integer     bool
	margin      float64
}

func (s *Numeric) build(fixes []types.Fix, integer bool) (*model, error) {
	m := &model{index: make(map[types.CellKey]int), integer: integer, margin: s.epsilon}

	variable := func(c types.Cell, vid int) int {
		if i, ok := m.index[c.Key()]; ok {
			return i
		}
		origin, _ := c.Value().AsFloat()
		m.index[c.Key()] = len(m.cells)
		m.cells = append(m.cells, c)
		m.vids = append(m.vids, vid)
		m.origin = append(m.origin, origin)
		return len(m.cells) - 1
	}

	type term struct {
		left, right int
		constant    float64
	}
	terms := make([]term, 0, len(fixes))
	for _, f := range fixes {
		t := term{left: variable(f.Left, f.VID), right: -1}
		if f.RightConstant {
			v, ok := f.Constant.AsFloat()
			if !ok {
				return nil, errors.NewInvalidInputError("fix %s has non-numeric constant %q", f, f.Constant.String())
			}
			t.constant = v
		} else {
			t.right = variable(f.Right, f.VID)
		}
		terms = append(terms, t)
	}

	for i, t := range terms {
		coef := make([]float64, len(m.cells))
		coef[t.left] += 1
		if t.right >= 0 {
			coef[t.right] -= 1
		}
		m.constraints = append(m.constraints, constraint{
			fix: fixes[i], coef: coef, constant: t.constant, op: fixes[i].Op, integer: integer,
		})
	}
	return m, nil
}

func (m *model) rows(constraints []constraint) []halfspace {
	var rows []halfspace
	for _, c := range constraints {
		rows = append(rows, c.rows(m.margin)...)
	}
	return rows
}

// Solve returns one EQ fix per free cell, or ErrSolverInfeasible when the
// constraints cannot be satisfied even after relaxation.
func (s *Numeric) Solve(fixes []types.Fix, integer bool) ([]types.Fix, error) {
	if len(fixes) == 0 {
		return nil, errors.NewInvalidInputError("numeric solver needs at least one fix")
	}
	m, err := s.build(fixes, integer)
	if err != nil {
		return nil, err
	}

	x, err := s.solveExact(m, m.constraints)
	if err == nil {
		return m.fixes(x), nil
	}
	if !errors.IsSolverInfeasible(err) {
		return nil, err
	}

	s.logger.Debugw("Constraint set infeasible, relaxing",
		logger.FieldFixCount, len(fixes))

	relaxed, err := s.relax(m)
	if err != nil {
		return nil, err
	}
	consistent := m.disambiguate(relaxed)
	x, err = s.solveExact(m, consistent)
	if err != nil {
		return nil, errors.Wrap(err, "re-solve after relaxation")
	}
	return m.fixes(x), nil
}

// solveExact minimizes the squared distance subject to every given constraint.
func (s *Numeric) solveExact(m *model, constraints []constraint) ([]float64, error) {
	rows := m.rows(constraints)
	ok, err := feasible(len(m.origin), rows)
	if err != nil {
		s.logger.Debugw("Simplex feasibility check failed, relying on projection",
			logger.FieldError, err)
		ok = true
	}
	if !ok {
		return nil, errors.Wrap(errors.ErrSolverInfeasible, "constraints admit no point")
	}

	x, converged := project(m.origin, rows)
	if !converged {
		return nil, errors.Wrap(errors.ErrSolverInfeasible, "projection did not converge")
	}
	if !m.integer {
		return x, nil
	}
	return m.round(x, rows)
}

// round moves a continuous optimum onto the integer lattice.
func (m *model) round(x []float64, rows []halfspace) ([]float64, error) {
	rounded := make([]float64, len(x))
	for i, v := range x {
		rounded[i] = math.Round(v)
	}
	if satisfiesAll(rounded, rows) {
		return rounded, nil
	}
	if len(x) > maxRoundingVariables {
		return nil, errors.Wrap(errors.ErrSolverInfeasible, "no integer point near the continuous optimum")
	}

	var best []float64
	bestDistance := math.Inf(1)
	candidate := make([]float64, len(x))
	for mask := 0; mask < 1<<len(x); mask++ {
		for i, v := range x {
			if mask&(1<<i) != 0 {
				candidate[i] = math.Ceil(v)
			} else {
				candidate[i] = math.Floor(v)
			}
		}
		if !satisfiesAll(candidate, rows) {
			continue
		}
		if d := distance(candidate, m.origin); d < bestDistance {
			bestDistance = d
			best = append(best[:0], candidate...)
		}
	}
	if best == nil {
		return nil, errors.Wrap(errors.ErrSolverInfeasible, "no integer point near the continuous optimum")
	}
	return best, nil
}

// relax finds a point satisfying a maximal subset of the constraints. Identical
// constraints are grouped and admitted greedily by descending multiplicity.
// A NEQ group is admitted through whichever strict half yields the closer point.
func (s *Numeric) relax(m *model) ([]float64, error) {
	type group struct {
		c     constraint
		count int
		first int
	}
	var groups []*group
	byKey := make(map[string]*group)
	for i, c := range m.constraints {
		key := c.fix.String()
		if g, ok := byKey[key]; ok {
			g.count++
			continue
		}
		g := &group{c: c, count: 1, first: i}
		byKey[key] = g
		groups = append(groups, g)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].count > groups[j].count
	})

	var kept []halfspace
	for _, g := range groups {
		var options [][]halfspace
		if g.c.op == types.NEQ {
			options = [][]halfspace{{g.c.ge(true, m.margin)}, {g.c.le(true, m.margin)}}
		} else {
			options = [][]halfspace{g.c.rows(m.margin)}
		}

		var chosen []halfspace
		best := math.Inf(1)
		for _, opt := range options {
			candidate := append(append([]halfspace(nil), kept...), opt...)
			ok, err := feasible(len(m.origin), candidate)
			if err != nil {
				ok = true
			}
			if !ok {
				continue
			}
			x, converged := project(m.origin, candidate)
			if !converged {
				continue
			}
			if d := distance(x, m.origin); d < best {
				best = d
				chosen = candidate
			}
		}
		if chosen != nil {
			kept = chosen
		}
	}

	x, converged := project(m.origin, kept)
	if !converged {
		return nil, errors.Wrap(errors.ErrSolverInfeasible, "relaxed constraint set")
	}
	return x, nil
}

// disambiguate keeps the constraints satisfied at the relaxed point, rewriting
// each NEQ into the strict comparator matching the point's side.
func (m *model) disambiguate(x []float64) []constraint {
	var consistent []constraint
	for _, c := range m.constraints {
		if !c.holds(x, m.margin) {
			continue
		}
		if c.op == types.NEQ {
			if c.expr(x) < 0 {
				c.op = types.LT
			} else {
				c.op = types.GT
			}
		}
		consistent = append(consistent, c)
	}
	return consistent
}

func (m *model) fixes(x []float64) []types.Fix {
	out := make([]types.Fix, 0, len(m.cells))
	for i, c := range m.cells {
		var v types.Value
		if m.integer {
			v = types.Int(int64(math.Round(x[i])))
		} else {
			v = types.Float(x[i])
		}
		out = append(out, types.NewConstantFix(m.vids[i], c, types.EQ, v))
	}
	return out
}
