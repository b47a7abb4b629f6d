package difficulty

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/fleetops/dispatch/internal/domain"
	"github.com/fleetops/dispatch/internal/ml"
)

func emptyRegistry(t *testing.T) *ml.Registry {
	t.Helper()
	r := ml.NewRegistry(t.TempDir(), zerolog.Nop())
	r.Load()
	return r
}

// constantForest always predicts v regardless of features
func constantForest(v float64) *ml.Forest {
	return &ml.Forest{
		Trees: []ml.Tree{{
			FeatureIdx: []int{-1},
			Threshold:  []float64{0},
			Left:       []int{0},
			Right:      []int{0},
			LeafValue:  []float64{v},
		}},
	}
}

func TestScore_NeutralWithoutPredictor(t *testing.T) {
	s := NewScorer(emptyRegistry(t), zerolog.Nop())
	score := s.Score(&domain.Driver{}, &domain.Package{})
	assert.Equal(t, NeutralScore, score)
}

func TestScore_ClampsModelOutput(t *testing.T) {
	models := emptyRegistry(t)
	models.SetForTesting(constantForest(240), nil, nil, nil, nil)
	s := NewScorer(models, zerolog.Nop())

	assert.Equal(t, 100.0, s.Score(&domain.Driver{}, &domain.Package{}))

	models.SetForTesting(constantForest(-30), nil, nil, nil, nil)
	assert.Equal(t, 0.0, s.Score(&domain.Driver{}, &domain.Package{}))
}

func TestFeatures_WidthAndDefaults(t *testing.T) {
	f := Features(&domain.Driver{}, &domain.Package{})
	require.Len(t, f, FeatureCount)

	// Empty descriptors take the training-time neutral defaults
	assert.Equal(t, 30.0, f[1], "avg delivery time")
	assert.Equal(t, 0.9, f[2], "success rate")
	assert.Equal(t, 50.0, f[3], "capacity")
	assert.Equal(t, 5.0, f[4], "weight")
	assert.Equal(t, 10.0, f[5], "distance")
	assert.Equal(t, 4.0, f[8], "time window")
}

func TestFeatures_DerivedTerms(t *testing.T) {
	window := 2.0
	d := &domain.Driver{
		ExperienceDays:         100,
		AvgDeliveryTimeMinutes: 25,
		SuccessRate:            0.8,
		TotalDeliveries:        40,
		VehicleCapacityKg:      40,
	}
	p := &domain.Package{
		WeightKg:          8,
		DistanceFromHubKm: 5,
		FloorNumber:       3,
		IsFragile:         true,
		TimeWindowHours:   &window,
	}

	f := Features(d, p)
	require.Len(t, f, FeatureCount)
	assert.InDelta(t, 8.0/40.0, f[9], 1e-9, "load ratio")
	assert.InDelta(t, 100.0/5.0, f[10], 1e-9, "experience per km")
	assert.InDelta(t, 0.8*8, f[11], 1e-9, "rate-weighted load")
	assert.InDelta(t, 5.0*3, f[12], 1e-9, "distance times floor")
	assert.InDelta(t, 0.5, f[13], 1e-9, "window pressure")
	assert.InDelta(t, 8*5*3.0/101.0, f[14], 1e-9, "compound effort")
	assert.Equal(t, 1.0, f[7], "fragile flag")
}

func TestScoreMatrix_NeutralWithoutPredictor(t *testing.T) {
	s := NewScorer(emptyRegistry(t), zerolog.Nop())
	drivers := []domain.Driver{{ID: 1}, {ID: 2}}
	packages := []domain.Package{{ID: 10}, {ID: 11}, {ID: 12}}

	m := s.ScoreMatrix(drivers, packages)
	r, c := m.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 3, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			assert.Equal(t, NeutralScore, m.At(i, j))
		}
	}
}

func TestScoreMatrix_EmptyInputs(t *testing.T) {
	s := NewScorer(emptyRegistry(t), zerolog.Nop())
	m := s.ScoreMatrix(nil, []domain.Package{{ID: 1}})
	assert.True(t, mat.Equal(m, &mat.Dense{}))
}

func TestScoreMatrix_BatchMatchesScalar(t *testing.T) {
	models := emptyRegistry(t)
	models.SetForTesting(constantForest(37), nil, nil, nil, nil)
	s := NewScorer(models, zerolog.Nop())

	drivers := []domain.Driver{{ID: 1, ExperienceDays: 10}}
	packages := []domain.Package{{ID: 10, WeightKg: 3}}

	m := s.ScoreMatrix(drivers, packages)
	assert.Equal(t, s.Score(&drivers[0], &packages[0]), m.At(0, 0))
}
