package ml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

// stumpForest builds a one-tree forest: feature 0 < 5 -> left leaf, else right
func stumpForest(left, right float64) *Forest {
	return &Forest{
		Trees: []Tree{{
			FeatureIdx: []int{0, -1, -1},
			Threshold:  []float64{5, 0, 0},
			Left:       []int{1, 0, 0},
			Right:      []int{2, 0, 0},
			LeafValue:  []float64{0, left, right},
		}},
	}
}

func TestForest_PredictRegressor(t *testing.T) {
	f := stumpForest(10, 20)
	f.BaseScore = 1

	assert.InDelta(t, 11, f.Predict([]float64{3}), 1e-9)
	assert.InDelta(t, 21, f.Predict([]float64{7}), 1e-9)
}

func TestForest_PredictClassifierIsProbability(t *testing.T) {
	f := stumpForest(-2, 2)
	f.Classifier = true

	low := f.Predict([]float64{0})
	high := f.Predict([]float64{9})
	assert.Greater(t, low, 0.0)
	assert.Less(t, low, 0.5)
	assert.Greater(t, high, 0.5)
	assert.Less(t, high, 1.0)
}

func TestForest_MissingFeatureReadsAsZero(t *testing.T) {
	f := stumpForest(10, 20)
	// Feature vector too short: feature 0 absent would panic if unchecked;
	// here feature index 0 exists, so exercise an out-of-range split index.
	f.Trees[0].FeatureIdx[0] = 5
	assert.InDelta(t, 10, f.Predict([]float64{100}), 1e-9, "missing feature compares as 0 < 5")
}

func TestSequence_Predict(t *testing.T) {
	s := &Sequence{Weights: []float64{0.5, 0.5}, Bias: 1}
	assert.Equal(t, 2, s.WindowSize())
	assert.InDelta(t, 1+0.5*2+0.5*4, s.Predict([]float64{2, 4}), 1e-9)
}

func TestScaler_TransformAndInverse(t *testing.T) {
	s := &Scaler{Groups: map[string]ScalerGroup{
		"volume": {Mean: []float64{100}, Std: []float64{20}},
	}}

	scaled := s.Transform("volume", []float64{140})
	assert.InDelta(t, 2.0, scaled[0], 1e-9)
	assert.InDelta(t, 140, s.Inverse("volume", 0, scaled[0]), 1e-9)
}

func TestScaler_ZeroStdLeavesValueCentered(t *testing.T) {
	// sigma = 0 must not divide by zero: the value is centered only
	s := &Scaler{Groups: map[string]ScalerGroup{
		"health": {Mean: []float64{10}, Std: []float64{0}},
	}}
	out := s.Transform("health", []float64{14})
	assert.InDelta(t, 4.0, out[0], 1e-9)
}

func TestScaler_UnknownGroupIsIdentity(t *testing.T) {
	s := &Scaler{Groups: map[string]ScalerGroup{}}
	in := []float64{1, 2, 3}
	assert.Equal(t, in, s.Transform("nope", in))
	assert.InDelta(t, 7.0, s.Inverse("nope", 0, 7.0), 1e-9)
}

func TestExplainer_AttributesDeviation(t *testing.T) {
	f := stumpForest(10, 20)
	e := &Explainer{FeatureNames: []string{"weight_kg"}, Baseline: 10}

	attrs := e.Explain(f, []float64{9})
	require.Len(t, attrs, 1)
	assert.Equal(t, "weight_kg", attrs[0].Feature)
	assert.InDelta(t, 10.0, attrs[0].Contribution, 1e-9)

	assert.Nil(t, e.Explain(nil, nil))
}

func TestRegistry_LoadsArtifactRoundTrip(t *testing.T) {
	dir := t.TempDir()

	forest := stumpForest(30, 60)
	forest.NumFeature = 1
	data, err := msgpack.Marshal(forest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "difficulty.model"), data, 0o644))

	r := NewRegistry(dir, zerolog.Nop())
	assert.False(t, r.Ready())
	r.Load()
	require.True(t, r.Ready())

	loaded, ok := r.Difficulty()
	require.True(t, ok)
	assert.InDelta(t, 30, loaded.Predict([]float64{1}), 1e-9)
	assert.Equal(t, 1, loaded.NumFeature)

	// Absent artifacts stay absent
	_, ok = r.Sequence()
	assert.False(t, ok)
	_, ok = r.Health()
	assert.False(t, ok)
}

func TestRegistry_HealthArtifactForcedToClassifier(t *testing.T) {
	dir := t.TempDir()
	data, err := msgpack.Marshal(stumpForest(-1, 1))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "health.model"), data, 0o644))

	r := NewRegistry(dir, zerolog.Nop())
	r.Load()
	health, ok := r.Health()
	require.True(t, ok)
	assert.True(t, health.Classifier)
}

func TestRegistry_CorruptArtifactIsSkipped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scaler.model"), []byte("junk"), 0o644))

	r := NewRegistry(dir, zerolog.Nop())
	r.Load()
	assert.True(t, r.Ready())
	_, ok := r.Scaler()
	assert.False(t, ok)
}
