// Package forecast predicts daily package volume by autoregressive rollout
// and decomposes it into per-driver earnings.
package forecast

import (
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/fleetops/dispatch/internal/ml"
)

// WindowLength is the history window the sequence model consumes
const WindowLength = 30

// FallbackBaseVolume is the flat daily volume used when the model is absent
const FallbackBaseVolume = 100

// VolumePoint is one forecast day
type VolumePoint struct {
	Date            string  `json:"date"`
	Weekday         string  `json:"weekday"`
	PredictedVolume int     `json:"predicted_volume"`
	Confidence      float64 `json:"confidence"`
	WeatherAdjusted bool    `json:"weather_adjusted,omitempty"`
}

// Forecaster produces N-day volume forecasts
type Forecaster struct {
	models *ml.Registry
	log    zerolog.Logger
}

// NewForecaster creates a volume forecaster backed by the model registry
func NewForecaster(models *ml.Registry, log zerolog.Logger) *Forecaster {
	return &Forecaster{
		models: models,
		log:    log.With().Str("service", "forecast").Logger(),
	}
}

// Volume forecasts the next `days` daily volumes from the historical series.
// Dates are consecutive starting at tomorrow. Short histories are left-padded
// with the series mean; an absent model falls back to a weekday heuristic.
func (f *Forecaster) Volume(history []float64, days int, now time.Time) []VolumePoint {
	seq, haveSeq := f.models.Sequence()
	scaler, haveScaler := f.models.Scaler()
	if !haveSeq || !haveScaler {
		f.log.Warn().Msg("Sequence model absent, using weekday fallback forecast")
		return f.fallback(days, now)
	}

	window := padLeft(history, seq.WindowSize())
	scaled := make([]float64, len(window))
	for i, v := range window {
		scaled[i] = scaler.Transform("volume", []float64{v})[0]
	}

	out := make([]VolumePoint, 0, days)
	for k := 0; k < days; k++ {
		scaledPred := seq.Predict(scaled)
		raw := scaler.Inverse("volume", 0, scaledPred)
		volume := int(math.Max(math.Round(raw), 0))

		date := now.AddDate(0, 0, k+1)
		out = append(out, VolumePoint{
			Date:            date.Format("2006-01-02"),
			Weekday:         date.Weekday().String(),
			PredictedVolume: volume,
			Confidence:      confidence(k),
		})

		// Slide the window: drop the oldest, append the scaled prediction
		scaled = append(scaled[1:], scaledPred)
	}
	return out
}

func (f *Forecaster) fallback(days int, now time.Time) []VolumePoint {
	out := make([]VolumePoint, 0, days)
	for k := 0; k < days; k++ {
		date := now.AddDate(0, 0, k+1)
		volume := FallbackBaseVolume
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			volume = int(math.Floor(0.7 * FallbackBaseVolume))
		}
		out = append(out, VolumePoint{
			Date:            date.Format("2006-01-02"),
			Weekday:         date.Weekday().String(),
			PredictedVolume: volume,
			Confidence:      0.5,
		})
	}
	return out
}

// confidence decays with forecast distance: 0.95 * exp(-0.01 * dayOffset)
func confidence(dayOffset int) float64 {
	return 0.95 * math.Exp(-0.01*float64(dayOffset))
}

// padLeft extends history to length with the series mean. An empty history
// pads with zeros.
func padLeft(history []float64, length int) []float64 {
	if len(history) >= length {
		return history[len(history)-length:]
	}
	mean := 0.0
	if len(history) > 0 {
		mean = stat.Mean(history, nil)
	}
	out := make([]float64, length)
	pad := length - len(history)
	for i := 0; i < pad; i++ {
		out[i] = mean
	}
	copy(out[pad:], history)
	return out
}
