package ml

import (
	"fmt"
	"math"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// Forest is a gradient-boosted tree ensemble stored as parallel arrays.
// Node i of a tree is a split when FeatureIdx[i] >= 0 (go left when
// feature < Threshold[i]) and a leaf otherwise (value in LeafValue[i]).
type Forest struct {
	Trees      []Tree  `msgpack:"trees"`
	BaseScore  float64 `msgpack:"base_score"`
	NumFeature int     `msgpack:"num_feature"`
	Classifier bool    `msgpack:"classifier"`
}

// Tree holds one regression tree in parallel-array form
type Tree struct {
	FeatureIdx []int     `msgpack:"feature_idx"`
	Threshold  []float64 `msgpack:"threshold"`
	Left       []int     `msgpack:"left"`
	Right      []int     `msgpack:"right"`
	LeafValue  []float64 `msgpack:"leaf_value"`
}

// Predict evaluates the ensemble for one feature vector. Classifier
// forests squash the margin through a sigmoid so the output is P(positive).
func (f *Forest) Predict(features []float64) float64 {
	score := f.BaseScore
	for i := range f.Trees {
		score += f.Trees[i].eval(features)
	}
	if f.Classifier {
		return 1.0 / (1.0 + math.Exp(-score))
	}
	return score
}

// PredictBatch evaluates the ensemble for many rows
func (f *Forest) PredictBatch(rows [][]float64) []float64 {
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = f.Predict(row)
	}
	return out
}

func (t *Tree) eval(features []float64) float64 {
	node := 0
	for {
		fi := t.FeatureIdx[node]
		if fi < 0 {
			return t.LeafValue[node]
		}
		v := 0.0
		if fi < len(features) {
			v = features[fi]
		}
		if v < t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
}

// DecisionPath returns the distinct feature indices visited on the way to
// the leaf, plus the leaf value. Used by the explainer.
func (t *Tree) DecisionPath(features []float64) ([]int, float64) {
	var path []int
	seen := map[int]bool{}
	node := 0
	for {
		fi := t.FeatureIdx[node]
		if fi < 0 {
			return path, t.LeafValue[node]
		}
		if !seen[fi] {
			seen[fi] = true
			path = append(path, fi)
		}
		v := 0.0
		if fi < len(features) {
			v = features[fi]
		}
		if v < t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
}

// Sequence is a linear autoregressive model over a scaled window
type Sequence struct {
	Weights []float64 `msgpack:"weights"`
	Bias    float64   `msgpack:"bias"`
}

// WindowSize returns the input window length the model was trained on
func (s *Sequence) WindowSize() int { return len(s.Weights) }

// Predict produces the next scaled value from a scaled window.
// The window must have exactly WindowSize elements.
func (s *Sequence) Predict(window []float64) float64 {
	out := s.Bias
	for i, w := range s.Weights {
		if i < len(window) {
			out += w * window[i]
		}
	}
	return out
}

// ScalerGroup holds per-feature standardization parameters
type ScalerGroup struct {
	Mean []float64 `msgpack:"mean"`
	Std  []float64 `msgpack:"std"`
}

// Scaler standardizes feature vectors. Groups are keyed by the consumer
// ("difficulty", "health", "volume") because each model was trained with
// its own statistics.
type Scaler struct {
	Groups map[string]ScalerGroup `msgpack:"groups"`
}

// Transform standardizes vec in place using the named group.
// A zero or missing std leaves the raw value untouched (divide by 1).
func (s *Scaler) Transform(group string, vec []float64) []float64 {
	g, ok := s.Groups[group]
	if !ok {
		return vec
	}
	out := make([]float64, len(vec))
	for i, v := range vec {
		mean, std := 0.0, 1.0
		if i < len(g.Mean) {
			mean = g.Mean[i]
		}
		if i < len(g.Std) && g.Std[i] != 0 {
			std = g.Std[i]
		}
		out[i] = (v - mean) / std
	}
	return out
}

// Inverse maps a scaled value back to raw units using element idx of the group
func (s *Scaler) Inverse(group string, idx int, v float64) float64 {
	g, ok := s.Groups[group]
	if !ok {
		return v
	}
	mean, std := 0.0, 1.0
	if idx < len(g.Mean) {
		mean = g.Mean[idx]
	}
	if idx < len(g.Std) && g.Std[idx] != 0 {
		std = g.Std[idx]
	}
	return v*std + mean
}

// Explainer attributes a forest prediction to individual features by
// walking each tree's decision path and splitting the tree's contribution
// across the features that participated in the path.
type Explainer struct {
	FeatureNames []string `msgpack:"feature_names"`
	Baseline     float64  `msgpack:"baseline"`
}

// Attribution is one feature's share of a prediction's deviation from baseline
type Attribution struct {
	Feature      string  `json:"feature"`
	Contribution float64 `json:"contribution"`
}

// Explain returns per-feature contributions for a single forest prediction,
// sorted by the caller if needed. The attribution is deterministic: each
// tree's (leaf - per-tree baseline) delta is divided equally among the
// distinct features on its decision path.
func (e *Explainer) Explain(forest *Forest, features []float64) []Attribution {
	if forest == nil || len(forest.Trees) == 0 {
		return nil
	}
	contrib := make(map[int]float64)
	treeBase := e.Baseline / float64(len(forest.Trees))
	for i := range forest.Trees {
		path, leaf := forest.Trees[i].DecisionPath(features)
		if len(path) == 0 {
			continue
		}
		delta := (leaf - treeBase) / float64(len(path))
		for _, fi := range path {
			contrib[fi] += delta
		}
	}
	out := make([]Attribution, 0, len(contrib))
	for fi, c := range contrib {
		name := fmt.Sprintf("f%d", fi)
		if fi < len(e.FeatureNames) {
			name = e.FeatureNames[fi]
		}
		out = append(out, Attribution{Feature: name, Contribution: c})
	}
	return out
}

func decodeArtifact(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	if err := msgpack.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode artifact: %w", err)
	}
	return nil
}
