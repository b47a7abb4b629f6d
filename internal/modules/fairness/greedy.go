package fairness

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// greedy is the deterministic fallback distribution: packages ranked by mean
// difficulty across drivers, hardest first, each given to the driver with the
// smallest accumulated difficulty total that still has capacity. Unlike the
// exact program it never fails, and it enforces only the k_max side of the
// capacity band.
func (o *Optimizer) greedy(d *mat.Dense, kMax int) *Result {
	nd, np := d.Dims()

	type ranked struct {
		pkg     int
		meanDif float64
	}
	order := make([]ranked, np)
	for j := 0; j < np; j++ {
		sum := 0.0
		for i := 0; i < nd; i++ {
			sum += d.At(i, j)
		}
		order[j] = ranked{pkg: j, meanDif: sum / float64(nd)}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return order[a].meanDif > order[b].meanDif
	})

	byDriver := make([][]int, nd)
	totals := make([]float64, nd)

	for _, r := range order {
		best := -1
		for i := 0; i < nd; i++ {
			if len(byDriver[i]) >= kMax {
				continue
			}
			if best == -1 || totals[i] < totals[best] {
				best = i
			}
		}
		// Capacity is pre-checked by Distribute (np <= nd*kMax), so a slot
		// always exists.
		byDriver[best] = append(byDriver[best], r.pkg)
		totals[best] += d.At(best, r.pkg)
	}

	return &Result{
		PackagesByDriver: byDriver,
		Path:             PathGreedy,
		Metrics:          computeMetrics(d, byDriver),
	}
}
