// Package analytics serves read-only operational views: volume trends with
// smoothing, per-day fairness history, and the driver leaderboard.
package analytics

import (
	"database/sql"
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/modules/fairness"
	"github.com/fleetops/dispatch/internal/modules/fleet"
)

const (
	smaPeriod = 7
	emaPeriod = 14
)

// VolumeSource supplies the historical daily package counts
type VolumeSource interface {
	DailyVolumes(days int) ([]fleet.DailyVolume, error)
}

// TrendPoint is one day of the volume trend, with smoothed overlays.
// Smoothed values are NaN-free: days before the lookback fills hold zero.
type TrendPoint struct {
	Date   string  `json:"date"`
	Volume float64 `json:"volume"`
	SMA7   float64 `json:"sma_7"`
	EMA14  float64 `json:"ema_14"`
}

// FairnessDay summarizes one operational date's assignment distribution
type FairnessDay struct {
	Date            string  `json:"date"`
	Drivers         int     `json:"drivers"`
	Packages        int     `json:"packages"`
	CountMin        int     `json:"count_min"`
	CountMax        int     `json:"count_max"`
	DifficultyMean  float64 `json:"difficulty_mean"`
	DifficultyGini  float64 `json:"difficulty_gini"`
	DifficultyRange float64 `json:"difficulty_range"`
}

// LeaderboardEntry is one driver's standing by delivery record
type LeaderboardEntry struct {
	DriverID        int64   `json:"driver_id"`
	Name            string  `json:"name"`
	TotalDeliveries int     `json:"total_deliveries"`
	SuccessRate     float64 `json:"success_rate"`
	AvgTimeMinutes  float64 `json:"avg_time_minutes"`
}

// Service answers analytics queries over fleet.db
type Service struct {
	db      *sql.DB
	volumes VolumeSource
	log     zerolog.Logger
}

// NewService wires the analytics service
func NewService(db *sql.DB, volumes VolumeSource, log zerolog.Logger) *Service {
	return &Service{
		db:      db,
		volumes: volumes,
		log:     log.With().Str("service", "analytics").Logger(),
	}
}

// VolumeTrend returns the trailing daily volumes with SMA(7) and EMA(14)
// overlays. Windows shorter than the smoothing period skip the overlays.
func (s *Service) VolumeTrend(days int) ([]TrendPoint, error) {
	history, err := s.volumes.DailyVolumes(days)
	if err != nil {
		return nil, fmt.Errorf("load volume history: %w", err)
	}

	series := make([]float64, len(history))
	out := make([]TrendPoint, len(history))
	for i, h := range history {
		series[i] = h.Volume
		out[i] = TrendPoint{Date: h.Date, Volume: h.Volume}
	}

	if len(series) >= smaPeriod {
		for i, v := range talib.Sma(series, smaPeriod) {
			out[i].SMA7 = zeroNaN(v)
		}
	}
	if len(series) >= emaPeriod {
		for i, v := range talib.Ema(series, emaPeriod) {
			out[i].EMA14 = zeroNaN(v)
		}
	}
	return out, nil
}

// FairnessHistory summarizes the assignment distribution for each of the
// last N operational dates: per-driver counts and the Gini coefficient over
// per-driver predicted-difficulty totals.
func (s *Service) FairnessHistory(days int) ([]FairnessDay, error) {
	rows, err := s.db.Query(`
		SELECT operational_date, driver_id, COUNT(*), SUM(predicted_difficulty)
		FROM assignments
		WHERE operational_date >= date('now', ?)
		GROUP BY operational_date, driver_id
		ORDER BY operational_date`, fmt.Sprintf("-%d days", days))
	if err != nil {
		return nil, fmt.Errorf("failed to query fairness history: %w", err)
	}
	defer rows.Close()

	type dayAgg struct {
		counts []int
		totals []float64
	}
	order := []string{}
	byDate := map[string]*dayAgg{}
	for rows.Next() {
		var date string
		var driverID int64
		var count int
		var total sql.NullFloat64
		if err := rows.Scan(&date, &driverID, &count, &total); err != nil {
			return nil, fmt.Errorf("failed to scan fairness row: %w", err)
		}
		agg, ok := byDate[date]
		if !ok {
			agg = &dayAgg{}
			byDate[date] = agg
			order = append(order, date)
		}
		agg.counts = append(agg.counts, count)
		agg.totals = append(agg.totals, total.Float64)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fairness row iteration failed: %w", err)
	}

	out := make([]FairnessDay, 0, len(order))
	for _, date := range order {
		agg := byDate[date]
		day := FairnessDay{Date: date, Drivers: len(agg.counts)}
		minT, maxT := agg.totals[0], agg.totals[0]
		sumT := 0.0
		for i, c := range agg.counts {
			day.Packages += c
			if i == 0 || c < day.CountMin {
				day.CountMin = c
			}
			if c > day.CountMax {
				day.CountMax = c
			}
			t := agg.totals[i]
			sumT += t
			if t < minT {
				minT = t
			}
			if t > maxT {
				maxT = t
			}
		}
		day.DifficultyMean = sumT / float64(len(agg.totals))
		day.DifficultyGini = fairness.Gini(agg.totals)
		day.DifficultyRange = maxT - minT
		out = append(out, day)
	}
	return out, nil
}

// Leaderboard ranks active drivers by success rate, then volume
func (s *Service) Leaderboard(limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, name, total_deliveries, success_rate, avg_delivery_time_minutes
		FROM drivers
		WHERE is_active = 1 AND total_deliveries > 0
		ORDER BY success_rate DESC, total_deliveries DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var out []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.DriverID, &e.Name, &e.TotalDeliveries, &e.SuccessRate, &e.AvgTimeMinutes); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leaderboard row iteration failed: %w", err)
	}
	return out, nil
}

func zeroNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
