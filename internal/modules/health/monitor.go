package health

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/domain"
	"github.com/fleetops/dispatch/internal/metrics"
)

// AlertDedupWindow is how long after an alert a driver stays quiet
const AlertDedupWindow = 15 * time.Minute

// DriverSource supplies the monitor's driver snapshot
type DriverSource interface {
	ListActive() ([]domain.Driver, error)
	GetByID(id int64) (*domain.Driver, error)
}

// Pusher dispatches best-effort notifications
type Pusher interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// RealtimeSender delivers a message to a driver's live socket, dropping it
// when the driver is not connected.
type RealtimeSender interface {
	Send(driverID int64, message interface{})
}

// Monitor is the periodic health sweep: re-score every active driver's
// latest event, advise breaks, alert with dedup.
type Monitor struct {
	drivers  DriverSource
	events   *Repository
	scorer   *Scorer
	pusher   Pusher
	realtime RealtimeSender
	metrics  *metrics.Registry
	yellow   float64 // minimum risk that triggers the advisor
	log      zerolog.Logger
}

// NewMonitor wires the health monitor
func NewMonitor(
	drivers DriverSource,
	events *Repository,
	scorer *Scorer,
	pusher Pusher,
	realtime RealtimeSender,
	m *metrics.Registry,
	yellowThreshold int,
	log zerolog.Logger,
) *Monitor {
	return &Monitor{
		drivers:  drivers,
		events:   events,
		scorer:   scorer,
		pusher:   pusher,
		realtime: realtime,
		metrics:  m,
		yellow:   float64(yellowThreshold),
		log:      log.With().Str("service", "health_monitor").Logger(),
	}
}

// SweepResult summarizes one monitor pass
type SweepResult struct {
	Scored  int `json:"scored"`
	Alerted int `json:"alerted"`
	Deduped int `json:"deduped"`
}

// Sweep scores every active driver with a health event and dispatches break
// alerts where warranted. Alert dedup happens inside the recording
// transaction; pushes and socket sends are best-effort afterwards.
func (m *Monitor) Sweep(ctx context.Context) (*SweepResult, error) {
	drivers, err := m.drivers.ListActive()
	if err != nil {
		return nil, fmt.Errorf("load driver snapshot: %w", err)
	}
	active := make(map[int64]*domain.Driver, len(drivers))
	for i := range drivers {
		active[drivers[i].ID] = &drivers[i]
	}

	events, err := m.events.LatestPerDriver()
	if err != nil {
		return nil, fmt.Errorf("load latest events: %w", err)
	}

	result := &SweepResult{}
	for i := range events {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		e := &events[i]
		driver, ok := active[e.DriverID]
		if !ok {
			continue
		}

		score := m.scorer.Score(e, DefaultAvgDifficulty)
		severity := SeverityFor(score)
		result.Scored++

		if score < m.yellow {
			if err := m.events.UpdateScore(e.ID, score, severity); err != nil {
				m.log.Warn().Err(err).Int64("driver_id", e.DriverID).Msg("Score update failed")
			}
			continue
		}

		remaining := float64(e.PackagesRemaining) * DefaultAvgDifficulty
		hadBreak := e.HoursSinceLastBreak < e.HoursWorked
		rec := Advise(score, remaining, e.HoursWorked, hadBreak)
		if !rec.Recommended {
			if err := m.events.UpdateScore(e.ID, score, severity); err != nil {
				m.log.Warn().Err(err).Int64("driver_id", e.DriverID).Msg("Score update failed")
			}
			continue
		}

		recorded, err := m.events.RecordAlert(e.ID, e.DriverID, score, severity, rec, AlertDedupWindow)
		if err != nil {
			m.log.Error().Err(err).Int64("driver_id", e.DriverID).Msg("Alert recording failed")
			continue
		}
		if !recorded {
			result.Deduped++
			continue
		}
		result.Alerted++
		m.metrics.HealthAlerts.WithLabelValues(string(severity)).Inc()
		m.dispatch(ctx, driver, score, severity, rec)
	}

	m.log.Debug().
		Int("scored", result.Scored).
		Int("alerted", result.Alerted).
		Int("deduped", result.Deduped).
		Msg("Health sweep finished")
	return result, nil
}

func (m *Monitor) dispatch(ctx context.Context, driver *domain.Driver, score float64, severity domain.Severity, rec domain.BreakRecommendation) {
	body := fmt.Sprintf("Take a %d minute break %s", rec.DurationMinutes, timingText(rec.Timing))

	m.realtime.Send(driver.ID, map[string]interface{}{
		"type":             "break_recommendation",
		"risk_score":       score,
		"severity":         string(severity),
		"duration_minutes": rec.DurationMinutes,
		"urgency":          string(rec.Urgency),
		"timing":           string(rec.Timing),
		"reason":           rec.Reason,
	})

	if driver.PushToken == nil {
		return
	}
	err := m.pusher.Send(ctx, *driver.PushToken, "Break recommended", body, map[string]string{
		"type":     "break_recommendation",
		"severity": string(severity),
	})
	if err != nil {
		m.log.Warn().Err(err).Int64("driver_id", driver.ID).Msg("Break alert push failed")
	}
}

func timingText(t domain.BreakTiming) string {
	switch t {
	case domain.BreakImmediately:
		return "immediately"
	case domain.BreakAfterNextDelivery:
		return "after your next delivery"
	default:
		return "within 30 minutes"
	}
}
