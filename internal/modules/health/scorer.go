// Package health scores driver health risk from wearable vitals and workload,
// recommends breaks, and runs the periodic monitor sweep that turns high risk
// into deduplicated alerts.
package health

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/domain"
	"github.com/fleetops/dispatch/internal/ml"
)

// NeutralScore is returned when the health predictor is absent
const NeutralScore = 50.0

// FeatureCount is the width of the health feature vector
const FeatureCount = 12

// DefaultAvgDifficulty stands in when the driver's remaining packages have
// no known difficulty yet.
const DefaultAvgDifficulty = 50.0

// Scorer maps a health event to a 0-100 risk score and a severity band
type Scorer struct {
	models *ml.Registry
	log    zerolog.Logger
}

// NewScorer creates a health scorer backed by the model registry
func NewScorer(models *ml.Registry, log zerolog.Logger) *Scorer {
	return &Scorer{
		models: models,
		log:    log.With().Str("service", "health").Logger(),
	}
}

// Features assembles the 12-dimension feature vector in training order
func Features(e *domain.HealthEvent, avgDifficulty float64) []float64 {
	hours := math.Max(e.HoursWorked, 1)
	delivered := float64(e.PackagesDelivered)
	remaining := float64(e.PackagesRemaining)

	return []float64{
		e.HeartRate,
		e.FatigueLevel,
		e.HoursWorked,
		e.HoursSinceLastBreak,
		delivered,
		remaining,
		e.TotalDistanceKm,
		avgDifficulty,
		delivered / hours,
		e.FatigueLevel / hours,
		(e.HeartRate - 60) / 40,
		(remaining * avgDifficulty * e.TotalDistanceKm) / 1000,
	}
}

// Score computes the risk score for one event. The classifier's P(high-risk)
// is scaled to 0-100; an absent predictor yields the neutral 50.
func (s *Scorer) Score(e *domain.HealthEvent, avgDifficulty float64) float64 {
	forest, ok := s.models.Health()
	if !ok {
		return NeutralScore
	}
	features := Features(e, avgDifficulty)
	if scaler, ok := s.models.Scaler(); ok {
		features = scaler.Transform("health", features)
	}
	raw := forest.Predict(features)
	if forest.Classifier {
		raw *= 100
	}
	return math.Min(math.Max(raw, 0), 100)
}

// SeverityFor maps a risk score to its operational band
func SeverityFor(score float64) domain.Severity {
	switch {
	case score >= 75:
		return domain.SeverityCritical
	case score >= 60:
		return domain.SeverityHigh
	case score >= 40:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// Advise maps (risk, remaining difficulty, hours worked) to a break plan.
// remainingDifficulty is packages_remaining x avg_package_difficulty.
// hadBreak reports whether the driver has taken any break this shift.
func Advise(risk, remainingDifficulty, hoursWorked float64, hadBreak bool) domain.BreakRecommendation {
	rec := domain.BreakRecommendation{}

	switch {
	case risk >= 90:
		rec = breakPlan(60, domain.UrgencyCritical, "risk score critical")
	case risk >= 80:
		rec = breakPlan(45, domain.UrgencyCritical, "risk score critical")
	case risk >= 75:
		rec = breakPlan(30, domain.UrgencyCritical, "risk score critical")
	case risk >= 60:
		rec = breakPlan(20, domain.UrgencyHigh, "risk score high")
	case risk >= 40 && (remainingDifficulty > 50 || hoursWorked > 6):
		rec = breakPlan(15, domain.UrgencyMedium, "elevated risk under heavy remaining workload")
	case hoursWorked > 8 && !hadBreak:
		rec = breakPlan(15, domain.UrgencyMedium, "long shift without a break")
	default:
		return rec
	}

	switch {
	case remainingDifficulty > 70:
		rec.Timing = domain.BreakAfterNextDelivery
	case hoursWorked > 7:
		rec.Timing = domain.BreakImmediately
	default:
		rec.Timing = domain.BreakWithin30Minutes
	}
	return rec
}

func breakPlan(minutes int, urgency domain.BreakUrgency, reason string) domain.BreakRecommendation {
	return domain.BreakRecommendation{
		Recommended:     true,
		DurationMinutes: minutes,
		Urgency:         urgency,
		Reason:          reason,
	}
}
