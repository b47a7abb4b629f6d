// Package difficulty computes the personalized per-(driver, package)
// difficulty score used by the fairness optimizer and the assignment pipeline.
package difficulty

import (
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/fleetops/dispatch/internal/domain"
	"github.com/fleetops/dispatch/internal/ml"
)

// NeutralScore is returned when the difficulty predictor is absent
const NeutralScore = 50.0

// FeatureCount is the width of the difficulty feature vector
const FeatureCount = 15

// Scorer maps driver and package descriptors to a 0-100 difficulty score
type Scorer struct {
	models *ml.Registry
	log    zerolog.Logger
}

// NewScorer creates a difficulty scorer backed by the model registry
func NewScorer(models *ml.Registry, log zerolog.Logger) *Scorer {
	return &Scorer{
		models: models,
		log:    log.With().Str("service", "difficulty").Logger(),
	}
}

// Features assembles the 15-dimension feature vector. Order matters: it must
// match the artifact's training layout. Missing descriptor values take the
// neutral defaults the model was trained with.
func Features(d *domain.Driver, p *domain.Package) []float64 {
	experience := float64(d.ExperienceDays)
	avgTime := d.AvgDeliveryTimeMinutes
	if avgTime == 0 {
		avgTime = 30
	}
	successRate := d.SuccessRate
	if d.TotalDeliveries == 0 {
		successRate = 0.9
	}
	capacity := d.VehicleCapacityKg
	if capacity == 0 {
		capacity = 50
	}

	weight := p.WeightKg
	if weight == 0 {
		weight = 5
	}
	distance := p.DistanceFromHubKm
	if distance == 0 {
		distance = 10
	}
	floor := float64(p.FloorNumber)
	fragile := 0.0
	if p.IsFragile {
		fragile = 1.0
	}
	timeWindow := 4.0
	if p.TimeWindowHours != nil && *p.TimeWindowHours > 0 {
		timeWindow = *p.TimeWindowHours
	}

	floorFactor := math.Max(floor, 1)

	return []float64{
		experience,
		avgTime,
		successRate,
		capacity,
		weight,
		distance,
		floor,
		fragile,
		timeWindow,
		weight / math.Max(capacity, 1),
		experience / math.Max(distance, 1),
		successRate * weight,
		distance * floorFactor,
		1 / math.Max(timeWindow, 1),
		(weight * distance * floorFactor) / (experience + 1),
	}
}

// Score computes the difficulty of one package for one driver.
// Absent predictor: neutral 50.
func (s *Scorer) Score(d *domain.Driver, p *domain.Package) float64 {
	forest, ok := s.models.Difficulty()
	if !ok {
		return NeutralScore
	}
	features := s.standardize(Features(d, p))
	return clamp(forest.Predict(features), 0, 100)
}

// ScoreMatrix computes the full drivers x packages difficulty matrix in one
// batch inference. Row i holds driver i's scores. Absent predictor: a flat
// matrix of 50s, which keeps the optimizer's equity math well defined.
func (s *Scorer) ScoreMatrix(drivers []domain.Driver, packages []domain.Package) *mat.Dense {
	nd, np := len(drivers), len(packages)
	if nd == 0 || np == 0 {
		return &mat.Dense{}
	}
	out := mat.NewDense(nd, np, nil)

	forest, ok := s.models.Difficulty()
	if !ok {
		s.log.Warn().Msg("Difficulty predictor absent, using neutral matrix")
		for i := 0; i < nd; i++ {
			for j := 0; j < np; j++ {
				out.Set(i, j, NeutralScore)
			}
		}
		return out
	}

	rows := make([][]float64, 0, nd*np)
	for i := range drivers {
		for j := range packages {
			rows = append(rows, s.standardize(Features(&drivers[i], &packages[j])))
		}
	}
	scores := forest.PredictBatch(rows)
	for i := 0; i < nd; i++ {
		for j := 0; j < np; j++ {
			out.Set(i, j, clamp(scores[i*np+j], 0, 100))
		}
	}
	return out
}

func (s *Scorer) standardize(features []float64) []float64 {
	scaler, ok := s.models.Scaler()
	if !ok {
		return features
	}
	return scaler.Transform("difficulty", features)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
