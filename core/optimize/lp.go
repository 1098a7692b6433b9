package optimize

import (
	"errors"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// ErrRelaxationFailed indicates the LP relaxation could not be solved; the
// caller falls back to the greedy construction.
var ErrRelaxationFailed = errors.New("optimize: lp relaxation failed")

// lpProblem is the fractional assignment relaxation: one variable per
// candidate in [0,1], maximizing reward subject to row constraints
// (per-vessel choice, berth slot exclusivity, resource capacity).
type lpProblem struct {
	reward []float64 // per candidate
	rows   []lpRow
}

// lpRow is one inequality: sum(coef_i * x_i for i in vars) <= bound.
type lpRow struct {
	vars  []int
	coefs []float64
	bound float64
}

// solveRelaxation solves the LP in standard form via the simplex method,
// adding one slack variable per row and upper-bound rows for each candidate.
// Returns the fractional value per candidate.
func solveRelaxation(p lpProblem) ([]float64, error) {
	n := len(p.reward)
	if n == 0 {
		return nil, nil
	}
	rows := make([]lpRow, 0, len(p.rows)+n)
	rows = append(rows, p.rows...)
	for i := 0; i < n; i++ {
		rows = append(rows, lpRow{vars: []int{i}, coefs: []float64{1}, bound: 1})
	}

	m := len(rows)
	nVar := n + m // candidates + slacks
	a := mat.NewDense(m, nVar, nil)
	b := make([]float64, m)
	c := make([]float64, nVar)
	for i, r := range p.reward {
		c[i] = -r // simplex minimizes
	}
	for ri, row := range rows {
		for k, vi := range row.vars {
			a.Set(ri, vi, row.coefs[k])
		}
		a.Set(ri, n+ri, 1) // slack
		b[ri] = row.bound
	}

	_, x, err := lp.Simplex(c, a, b, 1e-7, nil)
	if err != nil {
		return nil, errors.Join(ErrRelaxationFailed, err)
	}
	return x[:n], nil
}

// lpSolve points to the relaxation solver. Overridable in tests to simulate
// solver failures.
var lpSolve = solveRelaxation
