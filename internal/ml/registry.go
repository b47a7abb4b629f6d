// Package ml loads and serves the opaque predictor artifacts. Every artifact
// is optional: consumers ask the registry for a handle and fall back to a
// documented neutral behaviour when it is absent.
package ml

import (
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Kind identifies one predictor artifact
type Kind string

const (
	KindDifficulty Kind = "difficulty" // gradient-boosted regressor
	KindSequence   Kind = "sequence"   // autoregressive volume model
	KindHealth     Kind = "health"     // ensemble risk classifier
	KindExplainer  Kind = "explainer"  // tree attribution metadata
	KindScaler     Kind = "scaler"     // feature standardizer
)

// Registry holds the loaded predictor handles. Load is serialized and
// idempotent; reads are lock-free after the first load completes.
type Registry struct {
	log zerolog.Logger
	dir string

	mu         sync.RWMutex
	ready      bool
	difficulty *Forest
	sequence   *Sequence
	health     *Forest
	explainer  *Explainer
	scaler     *Scaler
}

// NewRegistry creates a registry reading artifacts from dir.
// Call Load (or LoadAsync) before serving traffic; consumers tolerate
// absent handles either way.
func NewRegistry(dir string, log zerolog.Logger) *Registry {
	return &Registry{
		log: log.With().Str("component", "model_registry").Logger(),
		dir: dir,
	}
}

// Load reads every artifact that exists on disk. Missing or corrupt files
// are logged and skipped; the registry is ready after the first attempt
// regardless of how many artifacts loaded.
func (r *Registry) Load() {
	r.mu.Lock()
	defer r.mu.Unlock()

	loaded := 0

	var difficulty Forest
	if err := decodeArtifact(r.artifactPath(KindDifficulty), &difficulty); err != nil {
		r.log.Warn().Err(err).Str("kind", string(KindDifficulty)).Msg("Artifact unavailable, consumers will fall back")
		r.difficulty = nil
	} else {
		r.difficulty = &difficulty
		loaded++
	}

	var sequence Sequence
	if err := decodeArtifact(r.artifactPath(KindSequence), &sequence); err != nil {
		r.log.Warn().Err(err).Str("kind", string(KindSequence)).Msg("Artifact unavailable, consumers will fall back")
		r.sequence = nil
	} else {
		r.sequence = &sequence
		loaded++
	}

	var health Forest
	if err := decodeArtifact(r.artifactPath(KindHealth), &health); err != nil {
		r.log.Warn().Err(err).Str("kind", string(KindHealth)).Msg("Artifact unavailable, consumers will fall back")
		r.health = nil
	} else {
		health.Classifier = true
		r.health = &health
		loaded++
	}

	var explainer Explainer
	if err := decodeArtifact(r.artifactPath(KindExplainer), &explainer); err != nil {
		r.log.Warn().Err(err).Str("kind", string(KindExplainer)).Msg("Artifact unavailable, consumers will fall back")
		r.explainer = nil
	} else {
		r.explainer = &explainer
		loaded++
	}

	var scaler Scaler
	if err := decodeArtifact(r.artifactPath(KindScaler), &scaler); err != nil {
		r.log.Warn().Err(err).Str("kind", string(KindScaler)).Msg("Artifact unavailable, consumers will fall back")
		r.scaler = nil
	} else {
		r.scaler = &scaler
		loaded++
	}

	r.ready = true
	r.log.Info().Int("loaded", loaded).Str("dir", r.dir).Msg("Model registry loaded")
}

// LoadAsync runs Load on a goroutine so startup is not blocked on disk
func (r *Registry) LoadAsync() {
	go r.Load()
}

// Reload re-reads all artifacts. Takes the same lock as Load so in-flight
// readers see either the old or the new set, never a mix.
func (r *Registry) Reload() {
	r.Load()
}

// Ready reports whether the first load attempt has completed
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// Difficulty returns the difficulty forest, or false when absent
func (r *Registry) Difficulty() (*Forest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.difficulty, r.difficulty != nil
}

// Sequence returns the volume AR model, or false when absent
func (r *Registry) Sequence() (*Sequence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sequence, r.sequence != nil
}

// Health returns the health risk classifier, or false when absent
func (r *Registry) Health() (*Forest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.health, r.health != nil
}

// Explainer returns the attribution metadata, or false when absent
func (r *Registry) Explainer() (*Explainer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.explainer, r.explainer != nil
}

// Scaler returns the standardizer, or false when absent
func (r *Registry) Scaler() (*Scaler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scaler, r.scaler != nil
}

// SetForTesting injects handles directly. Test helper only.
func (r *Registry) SetForTesting(difficulty, health *Forest, sequence *Sequence, explainer *Explainer, scaler *Scaler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.difficulty = difficulty
	r.health = health
	r.sequence = sequence
	r.explainer = explainer
	r.scaler = scaler
	r.ready = true
}

func (r *Registry) artifactPath(kind Kind) string {
	return filepath.Join(r.dir, string(kind)+".model")
}
