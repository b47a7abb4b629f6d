package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/cache"
	"github.com/fleetops/dispatch/internal/domain"
	"github.com/fleetops/dispatch/internal/modules/fleet"
)

// VolumeHistory supplies the historical daily package counts
type VolumeHistory interface {
	DailyVolumes(days int) ([]fleet.DailyVolume, error)
}

// ShareSource supplies a driver's share of recent assignments
type ShareSource interface {
	DriverShare(driverID int64, days int) (share float64, total int, err error)
}

// DriverSource supplies the active fleet for the share fallback
type DriverSource interface {
	ListActive() ([]domain.Driver, error)
}

// WeatherOracle supplies the volume impact multiplier; 1.0 when the oracle
// is unavailable.
type WeatherOracle interface {
	ImpactFactor(ctx context.Context) float64
}

// Service is the cached, weather-adjusted forecast surface
type Service struct {
	forecaster *Forecaster
	history    VolumeHistory
	shares     ShareSource
	drivers    DriverSource
	weather    WeatherOracle
	cache      cache.Cache
	unitPay    float64
	log        zerolog.Logger
}

// NewService wires the forecast service
func NewService(
	forecaster *Forecaster,
	history VolumeHistory,
	shares ShareSource,
	drivers DriverSource,
	weather WeatherOracle,
	c cache.Cache,
	unitPay float64,
	log zerolog.Logger,
) *Service {
	return &Service{
		forecaster: forecaster,
		history:    history,
		shares:     shares,
		drivers:    drivers,
		weather:    weather,
		cache:      c,
		unitPay:    unitPay,
		log:        log.With().Str("service", "forecast").Logger(),
	}
}

// Volume returns the N-day volume forecast, serving from cache when fresh.
// The weather impact factor scales each day's volume when the oracle answers.
func (s *Service) Volume(ctx context.Context, days int) ([]VolumePoint, error) {
	if days < 1 {
		return nil, fmt.Errorf("forecast days must be positive: %w", domain.ErrValidation)
	}

	key := cache.VolumeForecastKey(days)
	var cached []VolumePoint
	if cache.GetJSON(ctx, s.cache, key, &cached) && len(cached) == days {
		return cached, nil
	}

	history, err := s.history.DailyVolumes(90)
	if err != nil {
		return nil, fmt.Errorf("load volume history: %w", err)
	}
	series := make([]float64, len(history))
	for i, h := range history {
		series[i] = h.Volume
	}

	points := s.forecaster.Volume(series, days, time.Now())

	if factor := s.weather.ImpactFactor(ctx); factor != 1.0 {
		for i := range points {
			points[i].PredictedVolume = int(math.Max(math.Round(float64(points[i].PredictedVolume)*factor), 0))
			points[i].WeatherAdjusted = true
		}
		s.log.Debug().Float64("factor", factor).Msg("Forecast weather-adjusted")
	}

	if err := cache.SetJSON(ctx, s.cache, key, points, cache.VolumeForecastTTL); err != nil {
		s.log.Warn().Err(err).Msg("Forecast cache store failed")
	}
	return points, nil
}

// Earnings projects a driver's earnings over the next N days. The driver's
// share falls back to an even fleet split when no recent assignments exist.
func (s *Service) Earnings(ctx context.Context, driverID int64, days int) (*EarningsForecast, error) {
	volumes, err := s.Volume(ctx, days)
	if err != nil {
		return nil, err
	}

	share, total, err := s.shares.DriverShare(driverID, 30)
	if err != nil {
		return nil, fmt.Errorf("compute driver share: %w", err)
	}
	if total == 0 {
		drivers, err := s.drivers.ListActive()
		if err != nil {
			return nil, fmt.Errorf("load active drivers: %w", err)
		}
		if len(drivers) > 0 {
			share = 1.0 / float64(len(drivers))
		}
	}

	return Earnings(volumes, share, s.unitPay), nil
}

// Refresh warms the default 7-day forecast cache; the daily refresh job
func (s *Service) Refresh(ctx context.Context) error {
	_ = s.cache.Delete(ctx, cache.VolumeForecastKey(7))
	_, err := s.Volume(ctx, 7)
	return err
}
