// Package fairness distributes a day's packages across drivers by solving a
// binary program with coverage, capacity and equity constraints, falling back
// to a deterministic greedy assignment when the solver cannot prove optimality
// within its budget.
package fairness

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/fleetops/dispatch/internal/domain"
	"github.com/fleetops/dispatch/internal/solver"
)

// Path identifies which algorithm produced a distribution
type Path string

const (
	PathOptimal Path = "optimal"
	PathGreedy  Path = "greedy"
)

// Config holds the optimizer's bands and budget
type Config struct {
	KMin      int           // minimum packages per driver (solver only)
	KMax      int           // maximum packages per driver (both paths)
	Tolerance float64       // equity band half-width in difficulty units
	Budget    time.Duration // solver wall-clock budget
}

// Result is a complete distribution: PackagesByDriver[i] lists the package
// indices given to driver i. Every package index appears exactly once.
type Result struct {
	PackagesByDriver [][]int
	Path             Path
	Warning          string
	Metrics          Metrics
}

// Optimizer solves the daily fair-assignment problem
type Optimizer struct {
	solver *solver.Solver
	log    zerolog.Logger
}

// New creates a fairness optimizer
func New(s *solver.Solver, log zerolog.Logger) *Optimizer {
	return &Optimizer{
		solver: s,
		log:    log.With().Str("service", "fairness").Logger(),
	}
}

// Distribute assigns every package to exactly one driver. d is the
// drivers x packages difficulty matrix. More packages than n*KMax is a hard
// error: silently dropping a package is never acceptable. Fewer packages
// than n*KMin makes the exact program infeasible, so the greedy path runs
// and the result carries a warning.
func (o *Optimizer) Distribute(ctx context.Context, d *mat.Dense, cfg Config) (*Result, error) {
	nd, np := d.Dims()
	if nd == 0 || np == 0 {
		return nil, fmt.Errorf("empty difficulty matrix: %w", domain.ErrValidation)
	}
	if np > nd*cfg.KMax {
		return nil, fmt.Errorf("%d packages exceed fleet capacity %d drivers x %d: %w",
			np, nd, cfg.KMax, domain.ErrValidation)
	}

	if np < nd*cfg.KMin {
		o.log.Warn().
			Int("packages", np).
			Int("drivers", nd).
			Int("k_min", cfg.KMin).
			Msg("Too few packages for capacity band, taking greedy path")
		res := o.greedy(d, cfg.KMax)
		res.Warning = "package volume below fleet minimum, capacity band not enforceable"
		return res, nil
	}

	start := time.Now()
	sol := o.solver.Solve(ctx, buildModel(d, cfg), cfg.Budget)
	elapsed := time.Since(start)

	if sol.Status != solver.StatusOptimal {
		o.log.Warn().
			Str("status", sol.Status.String()).
			Int("nodes", sol.Nodes).
			Dur("elapsed", elapsed).
			Msg("Solver did not prove optimality, taking greedy path")
		return o.greedy(d, cfg.KMax), nil
	}

	res := extract(d, sol.Values)
	res.Path = PathOptimal
	o.log.Info().
		Float64("objective", sol.Objective).
		Int("nodes", sol.Nodes).
		Dur("elapsed", elapsed).
		Float64("gini", res.Metrics.Gini).
		Msg("Optimal distribution found")
	return res, nil
}

// buildModel encodes the distribution as a binary program over
// x[i*np+j] = driver i receives package j.
func buildModel(d *mat.Dense, cfg Config) *solver.Model {
	nd, np := d.Dims()
	m := solver.NewModel(nd * np)

	for i := 0; i < nd; i++ {
		for j := 0; j < np; j++ {
			m.SetObjective(i*np+j, d.At(i, j))
		}
	}

	// Coverage: each package goes to exactly one driver
	for j := 0; j < np; j++ {
		row := make([]float64, nd*np)
		for i := 0; i < nd; i++ {
			row[i*np+j] = 1
		}
		_ = m.AddConstraint(row, solver.SenseEq, 1)
	}

	// Capacity band per driver
	for i := 0; i < nd; i++ {
		row := make([]float64, nd*np)
		for j := 0; j < np; j++ {
			row[i*np+j] = 1
		}
		_ = m.AddConstraint(row, solver.SenseGe, float64(cfg.KMin))
		upper := make([]float64, nd*np)
		copy(upper, row)
		_ = m.AddConstraint(upper, solver.SenseLe, float64(cfg.KMax))
	}

	// Equity band: each driver's difficulty total within mu +/- tolerance,
	// mu taken over the entire matrix.
	mu := matrixMean(d)
	for i := 0; i < nd; i++ {
		row := make([]float64, nd*np)
		for j := 0; j < np; j++ {
			row[i*np+j] = d.At(i, j)
		}
		_ = m.AddConstraint(row, solver.SenseGe, mu-cfg.Tolerance)
		upper := make([]float64, nd*np)
		copy(upper, row)
		_ = m.AddConstraint(upper, solver.SenseLe, mu+cfg.Tolerance)
	}

	return m
}

func extract(d *mat.Dense, values []float64) *Result {
	nd, np := d.Dims()
	byDriver := make([][]int, nd)
	for i := 0; i < nd; i++ {
		for j := 0; j < np; j++ {
			if values[i*np+j] > 0.5 {
				byDriver[i] = append(byDriver[i], j)
			}
		}
	}
	return &Result{
		PackagesByDriver: byDriver,
		Metrics:          computeMetrics(d, byDriver),
	}
}

func matrixMean(d *mat.Dense) float64 {
	nd, np := d.Dims()
	sum := 0.0
	for i := 0; i < nd; i++ {
		for j := 0; j < np; j++ {
			sum += d.At(i, j)
		}
	}
	return sum / float64(nd*np)
}
