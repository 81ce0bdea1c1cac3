package solver

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/teranos/mend/errors"
)

const (
	// projectionSweeps bounds the dual coordinate ascent passes.
	projectionSweeps = 20000
	projectionTol    = 1e-12
	feasibilityTol   = 1e-7
	activeTol        = 1e-7
	snapTol          = 1e-9
	singularRcond    = 1e-12
)

// halfspace is the linear constraint coef·x >= bound.
type halfspace struct {
	coef  []float64
	bound float64
}

func (h halfspace) slack(x []float64) float64 {
	return floats.Dot(h.coef, x) - h.bound
}

func (h halfspace) zero() bool {
	for _, c := range h.coef {
		if c != 0 {
			return false
		}
	}
	return true
}

func satisfiesAll(x []float64, rows []halfspace) bool {
	for _, r := range rows {
		if r.slack(x) < -feasibilityTol {
			return false
		}
	}
	return true
}

func distance(x, origin []float64) float64 {
	d := 0.0
	for i := range x {
		diff := x[i] - origin[i]
		d += diff * diff
	}
	return d
}

// feasible decides whether rows admit a point, using the simplex method on
// the standard form coef·(p-n) - s = bound with p, n, s >= 0.
func feasible(dim int, rows []halfspace) (bool, error) {
	var live []halfspace
	for _, r := range rows {
		if r.zero() {
			if r.bound > feasibilityTol {
				return false, nil
			}
			continue
		}
		live = append(live, r)
	}
	if len(live) == 0 {
		return true, nil
	}

	var used []int
	for j := 0; j < dim; j++ {
		for _, r := range live {
			if r.coef[j] != 0 {
				used = append(used, j)
				break
			}
		}
	}

	m, k := len(live), len(used)
	a := mat.NewDense(m, 2*k+m, nil)
	b := make([]float64, m)
	for i, r := range live {
		sign := 1.0
		if r.bound < 0 {
			sign = -1
		}
		for j, v := range used {
			a.Set(i, j, sign*r.coef[v])
			a.Set(i, k+j, -sign*r.coef[v])
		}
		a.Set(i, 2*k+i, -sign)
		b[i] = sign * r.bound
	}

	c := make([]float64, 2*k+m)
	_, _, err := lp.Simplex(c, a, b, 0, nil)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, lp.ErrInfeasible):
		return false, nil
	default:
		return false, err
	}
}

// project returns the point of {x : rows} nearest to origin in Euclidean norm.
// The bool reports whether the returned point satisfies every row.
func project(origin []float64, rows []halfspace) ([]float64, bool) {
	x := append([]float64(nil), origin...)
	if len(rows) == 0 {
		return x, true
	}

	// Hildreth's method: x = origin + Σ λ_i coef_i with λ >= 0.
	lambda := make([]float64, len(rows))
	norms := make([]float64, len(rows))
	for i, r := range rows {
		norms[i] = floats.Dot(r.coef, r.coef)
	}
	for sweep := 0; sweep < projectionSweeps; sweep++ {
		moved := 0.0
		for i, r := range rows {
			if norms[i] == 0 {
				continue
			}
			step := -r.slack(x) / norms[i]
			if step < -lambda[i] {
				step = -lambda[i]
			}
			if step == 0 {
				continue
			}
			lambda[i] += step
			floats.AddScaled(x, step, r.coef)
			moved = math.Max(moved, math.Abs(step))
		}
		if moved < projectionTol {
			break
		}
	}

	if polished, ok := polish(origin, rows, x); ok {
		x = polished
	}
	snap(x, rows)
	return x, satisfiesAll(x, rows)
}

// polish projects origin onto the affine hull of the rows tight at x, which
// recovers the exact projection once the active set is known.
func polish(origin []float64, rows []halfspace, x []float64) ([]float64, bool) {
	var active []halfspace
	for _, r := range rows {
		if !r.zero() && math.Abs(r.slack(x)) <= activeTol {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		return nil, false
	}

	n := len(origin)
	a := mat.NewDense(len(active), n, nil)
	residual := mat.NewVecDense(len(active), nil)
	for i, r := range active {
		a.SetRow(i, r.coef)
		residual.SetVec(i, -r.slack(origin))
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, false
	}
	rank := svd.Rank(singularRcond)
	if rank == 0 {
		return nil, false
	}
	step := mat.NewVecDense(n, nil)
	svd.SolveVecTo(step, residual, rank)

	polished := append([]float64(nil), origin...)
	floats.Add(polished, step.RawVector().Data)
	if !satisfiesAll(polished, rows) {
		return nil, false
	}
	return polished, true
}

// snap moves a coordinate onto the bound of a single-variable row when it is
// within rounding distance of it.
func snap(x []float64, rows []halfspace) {
	for _, r := range rows {
		j, count := -1, 0
		for i, c := range r.coef {
			if c != 0 {
				j = i
				count++
			}
		}
		if count != 1 {
			continue
		}
		target := r.bound / r.coef[j]
		if x[j] != target && math.Abs(x[j]-target) <= snapTol {
			x[j] = target
		}
	}
}
