package solver

import (
	"container/heap"
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const intTol = 1e-6

// Solver runs best-first branch & bound over LP relaxations
type Solver struct {
	log zerolog.Logger
}

// New creates a solver. All solver chatter goes to the component logger at
// debug level; the solve itself produces no other output.
func New(log zerolog.Logger) *Solver {
	return &Solver{log: log.With().Str("component", "solver").Logger()}
}

type node struct {
	fixed []int8 // -1 free, 0 or 1 fixed
	bound float64
	x     []float64
}

type nodeQueue []*node

func (q nodeQueue) Len() int            { return len(q) }
func (q nodeQueue) Less(i, j int) bool  { return q[i].bound < q[j].bound }
func (q nodeQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x interface{}) { *q = append(*q, x.(*node)) }
func (q *nodeQueue) Pop() interface{} {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// Solve minimizes m.Obj over binary assignments satisfying m.Constraints.
// It stops when the tree is exhausted (optimal or infeasible), the budget
// elapses, or ctx is cancelled; the last two report StatusBudgetExceeded.
func (s *Solver) Solve(ctx context.Context, m *Model, budget time.Duration) Solution {
	start := time.Now()
	deadline := start.Add(budget)

	root := &node{fixed: make([]int8, m.NumVars())}
	for i := range root.fixed {
		root.fixed[i] = -1
	}

	obj, x, feasible := s.relax(m, root.fixed)
	if !feasible {
		return Solution{Status: StatusInfeasible, Nodes: 1}
	}
	root.bound = obj
	root.x = x

	queue := &nodeQueue{root}
	heap.Init(queue)

	var incumbent []float64
	incumbentObj := math.Inf(1)
	nodes := 0

	for queue.Len() > 0 {
		if time.Now().After(deadline) || ctx.Err() != nil {
			s.log.Debug().Int("nodes", nodes).Dur("elapsed", time.Since(start)).Msg("Budget exhausted")
			return Solution{Values: incumbent, Objective: incumbentObj, Status: StatusBudgetExceeded, Nodes: nodes}
		}

		n := heap.Pop(queue).(*node)
		nodes++

		// A better incumbent may have arrived since this node was queued
		if n.bound >= incumbentObj-intTol {
			continue
		}

		branchVar := mostFractional(n.x, n.fixed)
		if branchVar < 0 {
			// LP relaxation is already integral: new incumbent
			if n.bound < incumbentObj {
				incumbentObj = n.bound
				incumbent = roundBinary(n.x)
			}
			continue
		}

		for _, v := range []int8{0, 1} {
			child := &node{fixed: make([]int8, len(n.fixed))}
			copy(child.fixed, n.fixed)
			child.fixed[branchVar] = v

			obj, x, feasible := s.relax(m, child.fixed)
			if !feasible || obj >= incumbentObj-intTol {
				continue
			}
			child.bound = obj
			child.x = x
			heap.Push(queue, child)
		}
	}

	if incumbent == nil {
		return Solution{Status: StatusInfeasible, Nodes: nodes}
	}
	s.log.Debug().
		Int("nodes", nodes).
		Float64("objective", incumbentObj).
		Dur("elapsed", time.Since(start)).
		Msg("Proven optimal")
	return Solution{Values: incumbent, Objective: incumbentObj, Status: StatusOptimal, Nodes: nodes}
}

// relax solves the LP relaxation with the given variables fixed. Fixed
// variables are eliminated from the program; free variables carry 0 <= x <= 1
// bounds as inequality rows. Returns the relaxation objective (including the
// fixed-variable constant) and the full-length fractional solution.
func (s *Solver) relax(m *Model, fixed []int8) (float64, []float64, bool) {
	nTotal := m.NumVars()
	free := make([]int, 0, nTotal)
	for j := 0; j < nTotal; j++ {
		if fixed[j] == -1 {
			free = append(free, j)
		}
	}

	constant := 0.0
	for j := 0; j < nTotal; j++ {
		if fixed[j] == 1 {
			constant += m.Obj[j]
		}
	}

	if len(free) == 0 {
		if !satisfiesAll(m, fixed) {
			return 0, nil, false
		}
		full := make([]float64, nTotal)
		for j := 0; j < nTotal; j++ {
			full[j] = float64(fixed[j])
		}
		return constant, full, true
	}

	n := len(free)
	c := make([]float64, n)
	for k, j := range free {
		c[k] = m.Obj[j]
	}

	// Inequality rows: model Le/Ge rows plus 0 <= x <= 1 variable bounds
	var gRows [][]float64
	var h []float64
	var aRows [][]float64
	var b []float64

	for _, con := range m.Constraints {
		row := make([]float64, n)
		rhs := con.RHS
		for k, j := range free {
			row[k] = con.Coeffs[j]
		}
		for j := 0; j < nTotal; j++ {
			if fixed[j] == 1 {
				rhs -= con.Coeffs[j]
			}
		}
		switch con.Sense {
		case SenseEq:
			aRows = append(aRows, row)
			b = append(b, rhs)
		case SenseLe:
			gRows = append(gRows, row)
			h = append(h, rhs)
		case SenseGe:
			neg := make([]float64, n)
			for k := range row {
				neg[k] = -row[k]
			}
			gRows = append(gRows, neg)
			h = append(h, -rhs)
		}
	}
	for k := 0; k < n; k++ {
		upper := make([]float64, n)
		upper[k] = 1
		gRows = append(gRows, upper)
		h = append(h, 1)

		lower := make([]float64, n)
		lower[k] = -1
		gRows = append(gRows, lower)
		h = append(h, 0)
	}

	g := mat.NewDense(len(gRows), n, nil)
	for i, row := range gRows {
		g.SetRow(i, row)
	}
	var a *mat.Dense
	if len(aRows) > 0 {
		a = mat.NewDense(len(aRows), n, nil)
		for i, row := range aRows {
			a.SetRow(i, row)
		}
	}

	var cStd []float64
	var aStd *mat.Dense
	var bStd []float64
	if a != nil {
		cStd, aStd, bStd = lp.Convert(c, g, h, a, b)
	} else {
		cStd, aStd, bStd = lp.Convert(c, g, h, nil, nil)
	}

	optF, optX, err := lp.Simplex(cStd, aStd, bStd, 1e-10, nil)
	if err != nil {
		return 0, nil, false
	}

	// Convert's standard form splits each free variable into x+ - x-
	full := make([]float64, nTotal)
	for j := 0; j < nTotal; j++ {
		if fixed[j] >= 0 {
			full[j] = float64(fixed[j])
		}
	}
	for k, j := range free {
		full[j] = optX[k] - optX[n+k]
	}
	return optF + constant, full, true
}

func satisfiesAll(m *Model, fixed []int8) bool {
	for _, con := range m.Constraints {
		lhs := 0.0
		for j, f := range fixed {
			if f == 1 {
				lhs += con.Coeffs[j]
			}
		}
		switch con.Sense {
		case SenseEq:
			if math.Abs(lhs-con.RHS) > intTol {
				return false
			}
		case SenseLe:
			if lhs > con.RHS+intTol {
				return false
			}
		case SenseGe:
			if lhs < con.RHS-intTol {
				return false
			}
		}
	}
	return true
}

// mostFractional picks the free variable whose relaxed value is closest to
// 0.5, or -1 when the solution is integral.
func mostFractional(x []float64, fixed []int8) int {
	best := -1
	bestDist := math.Inf(1)
	for j, v := range x {
		if fixed[j] != -1 {
			continue
		}
		frac := math.Abs(v - math.Round(v))
		if frac < intTol {
			continue
		}
		dist := math.Abs(v - 0.5)
		if dist < bestDist {
			bestDist = dist
			best = j
		}
	}
	return best
}

func roundBinary(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Round(v)
	}
	return out
}
