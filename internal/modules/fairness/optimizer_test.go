package fairness

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/fleetops/dispatch/internal/domain"
	"github.com/fleetops/dispatch/internal/solver"
)

func newOptimizer() *Optimizer {
	log := zerolog.Nop()
	return New(solver.New(log), log)
}

func TestGini_ReferenceValues(t *testing.T) {
	tests := []struct {
		name   string
		totals []float64
		want   float64
	}{
		{"perfect equality", []float64{50, 50, 50}, 0},
		{"total inequality", []float64{0, 0, 100}, 2.0 / 3.0},
		{"empty", nil, 0},
		{"all zero", []float64{0, 0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Gini(tt.totals), 1e-9)
		})
	}
}

func TestGini_MoreEvenScoresLower(t *testing.T) {
	even := Gini([]float64{48, 50, 52})
	skewed := Gini([]float64{10, 40, 100})
	assert.Less(t, even, skewed)
}

func TestDistribute_CoversEveryPackageExactlyOnce(t *testing.T) {
	// 2 drivers x 4 packages, band [1,3]
	d := mat.NewDense(2, 4, []float64{
		10, 20, 30, 40,
		40, 30, 20, 10,
	})
	res, err := newOptimizer().Distribute(context.Background(), d, Config{
		KMin: 1, KMax: 3, Tolerance: 100, Budget: 5 * time.Second,
	})
	require.NoError(t, err)

	seen := make(map[int]int)
	for _, pkgs := range res.PackagesByDriver {
		for _, j := range pkgs {
			seen[j]++
		}
	}
	require.Len(t, seen, 4)
	for j, n := range seen {
		assert.Equal(t, 1, n, "package %d assigned %d times", j, n)
	}
}

func TestDistribute_OptimalPrefersCheaperDriver(t *testing.T) {
	// Each driver is strictly cheaper for "their" packages; with a wide
	// equity band the optimum is the diagonal pairing.
	d := mat.NewDense(2, 2, []float64{
		1, 100,
		100, 1,
	})
	res, err := newOptimizer().Distribute(context.Background(), d, Config{
		KMin: 1, KMax: 1, Tolerance: 1000, Budget: 5 * time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, PathOptimal, res.Path)
	assert.Equal(t, []int{0}, res.PackagesByDriver[0])
	assert.Equal(t, []int{1}, res.PackagesByDriver[1])
}

func TestDistribute_OverCapacityIsError(t *testing.T) {
	d := mat.NewDense(1, 3, []float64{10, 20, 30})
	_, err := newOptimizer().Distribute(context.Background(), d, Config{
		KMin: 1, KMax: 2, Tolerance: 10, Budget: time.Second,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDistribute_BelowMinimumTakesGreedyWithWarning(t *testing.T) {
	// 3 drivers, 2 packages, k_min 1 -> infeasible exact program
	d := mat.NewDense(3, 2, []float64{
		10, 20,
		20, 10,
		15, 15,
	})
	res, err := newOptimizer().Distribute(context.Background(), d, Config{
		KMin: 1, KMax: 2, Tolerance: 10, Budget: time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, PathGreedy, res.Path)
	assert.NotEmpty(t, res.Warning)
}

func TestDistribute_EmptyMatrixIsError(t *testing.T) {
	_, err := newOptimizer().Distribute(context.Background(), &mat.Dense{}, Config{
		KMin: 1, KMax: 2, Tolerance: 10, Budget: time.Second,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGreedy_HonorsKMax(t *testing.T) {
	o := newOptimizer()
	// 9 packages over 3 drivers, cap 3: everyone ends up full
	vals := make([]float64, 3*9)
	for i := range vals {
		vals[i] = float64(i%9) + 1
	}
	d := mat.NewDense(3, 9, vals)

	res := o.greedy(d, 3)
	for i, pkgs := range res.PackagesByDriver {
		assert.LessOrEqual(t, len(pkgs), 3, "driver %d over capacity", i)
	}
	assert.Equal(t, PathGreedy, res.Path)
}

func TestGreedy_BalancesDifficultyTotals(t *testing.T) {
	o := newOptimizer()
	// Identical difficulty columns: greedy should spread counts evenly
	d := mat.NewDense(2, 6, []float64{
		10, 10, 10, 10, 10, 10,
		10, 10, 10, 10, 10, 10,
	})
	res := o.greedy(d, 6)
	assert.Len(t, res.PackagesByDriver[0], 3)
	assert.Len(t, res.PackagesByDriver[1], 3)
	assert.InDelta(t, 0, res.Metrics.Gini, 1e-9)
}

func TestComputeMetrics_VarianceAndBounds(t *testing.T) {
	d := mat.NewDense(2, 2, []float64{
		10, 30,
		30, 10,
	})
	m := computeMetrics(d, [][]int{{0}, {1}})
	assert.Equal(t, 1, m.CountMin)
	assert.Equal(t, 1, m.CountMax)
	assert.InDelta(t, 10, m.DifficultyMin, 1e-9)
	assert.InDelta(t, 10, m.DifficultyMax, 1e-9)
	assert.InDelta(t, 0, m.DifficultyVariance, 1e-9)
}
