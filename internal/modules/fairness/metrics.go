package fairness

import (
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Metrics summarizes how even a distribution came out. DifficultyTotals is
// indexed by driver and feeds the Gini coefficient.
type Metrics struct {
	CountMin           int       `json:"count_min"`
	CountMax           int       `json:"count_max"`
	CountMean          float64   `json:"count_mean"`
	DifficultyMin      float64   `json:"difficulty_min"`
	DifficultyMax      float64   `json:"difficulty_max"`
	DifficultyMean     float64   `json:"difficulty_mean"`
	DifficultyVariance float64   `json:"difficulty_variance"`
	Gini               float64   `json:"gini"`
	DifficultyTotals   []float64 `json:"-"`
}

func computeMetrics(d *mat.Dense, byDriver [][]int) Metrics {
	nd := len(byDriver)
	if nd == 0 {
		return Metrics{}
	}

	counts := make([]float64, nd)
	totals := make([]float64, nd)
	for i, pkgs := range byDriver {
		counts[i] = float64(len(pkgs))
		for _, j := range pkgs {
			totals[i] += d.At(i, j)
		}
	}

	m := Metrics{
		CountMin:         int(minOf(counts)),
		CountMax:         int(maxOf(counts)),
		CountMean:        stat.Mean(counts, nil),
		DifficultyMin:    minOf(totals),
		DifficultyMax:    maxOf(totals),
		DifficultyMean:   stat.Mean(totals, nil),
		Gini:             Gini(totals),
		DifficultyTotals: totals,
	}
	// Population variance: the drivers are the whole population, not a sample
	m.DifficultyVariance = popVariance(totals, m.DifficultyMean)
	return m
}

// Gini computes the Gini coefficient over per-driver difficulty totals:
// G = (2*sum(i*s_i)) / (n*sum(s_i)) - (n+1)/n with s sorted ascending and
// i 1-based. Zero totals (or an empty set) yield 0.
func Gini(totals []float64) float64 {
	n := len(totals)
	if n == 0 {
		return 0
	}
	s := make([]float64, n)
	copy(s, totals)
	sort.Float64s(s)

	sum := 0.0
	weighted := 0.0
	for i, v := range s {
		sum += v
		weighted += float64(i+1) * v
	}
	if sum == 0 {
		return 0
	}
	return (2*weighted)/(float64(n)*sum) - float64(n+1)/float64(n)
}

func popVariance(xs []float64, mean float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range xs {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(xs))
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, v := range xs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, v := range xs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
