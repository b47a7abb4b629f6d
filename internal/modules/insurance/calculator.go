// Package insurance computes statistical-outlier compensation for drivers
// whose failure rate over a review window exceeds the fleet norm, and keeps
// the immutable payout ledger.
package insurance

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Thresholds parameterize eligibility and the reason bands
type Thresholds struct {
	Moderate    float64 // z above this is eligible
	Severe      float64 // z above this reads as severe external factors
	BasePenalty float64 // payout per excess failure
}

// WindowStats is one driver's outcome count over the review window
type WindowStats struct {
	DriverID int64
	Total    int
	Failed   int
}

// Claim is the calculator's verdict for one driver
type Claim struct {
	DriverID       int64
	Total          int
	Failed         int
	FailureRate    float64
	PopulationMean float64
	PopulationStd  float64
	ZScore         float64
	ExcessFailures float64
	PayoutAmount   float64
	Eligible       bool
	Reason         string
}

// Evaluate scores a single driver's window against the whole population.
// The z-score uses the population standard deviation over every driver's
// window failure rate; a degenerate population (σ=0) yields z=0 and no
// eligibility.
func Evaluate(target WindowStats, population []WindowStats, t Thresholds) Claim {
	rates := make([]float64, len(population))
	for i, p := range population {
		rates[i] = failureRate(p)
	}

	mean := 0.0
	std := 0.0
	if len(rates) > 0 {
		mean = stat.Mean(rates, nil)
		std = math.Sqrt(stat.PopVariance(rates, nil))
	}

	c := Claim{
		DriverID:       target.DriverID,
		Total:          target.Total,
		Failed:         target.Failed,
		FailureRate:    failureRate(target),
		PopulationMean: mean,
		PopulationStd:  std,
	}

	if std > 0 {
		c.ZScore = (c.FailureRate - mean) / std
	}

	c.Eligible = c.ZScore > t.Moderate
	c.Reason = reasonFor(c.ZScore, t)
	if c.Eligible {
		c.ExcessFailures = math.Max(0, float64(target.Failed)-mean*float64(target.Total))
		c.PayoutAmount = c.ExcessFailures * t.BasePenalty
	}
	return c
}

func failureRate(w WindowStats) float64 {
	if w.Total == 0 {
		return 0
	}
	return float64(w.Failed) / float64(w.Total)
}

func reasonFor(z float64, t Thresholds) string {
	midpoint := (t.Moderate + t.Severe) / 2
	switch {
	case z > t.Severe:
		return "failure rate indicates severe external factors"
	case z > midpoint:
		return "failure rate significantly above fleet norm"
	case z > t.Moderate:
		return "failure rate is a moderate statistical anomaly"
	default:
		return "failure rate within normal range"
	}
}
