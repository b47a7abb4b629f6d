package health

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/database"
	"github.com/fleetops/dispatch/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05"

const eventColumns = `id, driver_id, heart_rate, fatigue_level, hours_worked, hours_since_last_break,
	packages_delivered, packages_remaining, total_distance_km, predicted_risk_score, severity,
	break_recommended, break_duration_minutes, break_urgency, break_reason, alert_sent_at, recorded_at`

// Repository handles health event storage on telemetry.db. Events are
// append-only; the monitor mutates only the derived columns of the latest
// event per driver.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a health event repository over telemetry.db
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "health_event").Logger(),
	}
}

// Create appends one event and returns its id
func (r *Repository) Create(e *domain.HealthEvent) (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO health_events (driver_id, heart_rate, fatigue_level, hours_worked,
			hours_since_last_break, packages_delivered, packages_remaining, total_distance_km,
			predicted_risk_score, severity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.DriverID, e.HeartRate, e.FatigueLevel, e.HoursWorked, e.HoursSinceLastBreak,
		e.PackagesDelivered, e.PackagesRemaining, e.TotalDistanceKm,
		nullFloatPtr(e.PredictedRiskScore), nullStr(string(e.Severity)),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create health event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read health event id: %w", err)
	}
	return id, nil
}

// LatestByDriver returns the most recent event for one driver
func (r *Repository) LatestByDriver(driverID int64) (*domain.HealthEvent, error) {
	row := r.db.QueryRow(
		"SELECT "+eventColumns+" FROM health_events WHERE driver_id = ? ORDER BY recorded_at DESC, id DESC LIMIT 1",
		driverID)
	e, err := scanEvent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no health events for driver %d: %w", driverID, domain.ErrNotFound)
	}
	return e, err
}

// ListByDriver returns a driver's recent events, newest first
func (r *Repository) ListByDriver(driverID int64, limit int) ([]domain.HealthEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(
		"SELECT "+eventColumns+" FROM health_events WHERE driver_id = ? ORDER BY recorded_at DESC, id DESC LIMIT ?",
		driverID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list health events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ListSince returns every event recorded on or after the date, oldest first;
// feeds the nightly learning export.
func (r *Repository) ListSince(date string) ([]domain.HealthEvent, error) {
	rows, err := r.db.Query(
		"SELECT "+eventColumns+" FROM health_events WHERE recorded_at >= ? ORDER BY id",
		date)
	if err != nil {
		return nil, fmt.Errorf("failed to list health events since %s: %w", date, err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// LatestPerDriver returns the newest event for every driver that has one,
// the monitor sweep's input.
func (r *Repository) LatestPerDriver() ([]domain.HealthEvent, error) {
	rows, err := r.db.Query(`
		SELECT ` + eventColumns + `
		FROM health_events
		WHERE id IN (SELECT MAX(id) FROM health_events GROUP BY driver_id)
		ORDER BY driver_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// UpdateScore stores the derived risk score and severity on an event
func (r *Repository) UpdateScore(id int64, score float64, severity domain.Severity) error {
	_, err := r.db.Exec(
		"UPDATE health_events SET predicted_risk_score = ?, severity = ? WHERE id = ?",
		score, string(severity), id)
	if err != nil {
		return fmt.Errorf("failed to update health score: %w", err)
	}
	return nil
}

// RecordAlert persists a break recommendation and the alert timestamp on an
// event, deduplicating by driver inside the same transaction: if any alert
// was sent for this driver within the window, nothing is written and false
// is returned. Keeping the check and the write in one transaction prevents
// duplicate alerts under concurrent monitor runs.
func (r *Repository) RecordAlert(eventID, driverID int64, score float64, severity domain.Severity, rec domain.BreakRecommendation, window time.Duration) (bool, error) {
	recorded := false
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		var recent int
		cutoff := time.Now().UTC().Add(-window).Format(timeLayout)
		err := tx.QueryRow(`
			SELECT COUNT(*) FROM health_events
			WHERE driver_id = ? AND alert_sent_at IS NOT NULL AND alert_sent_at > ?`,
			driverID, cutoff,
		).Scan(&recent)
		if err != nil {
			return fmt.Errorf("alert dedup check: %w", err)
		}
		if recent > 0 {
			return nil
		}
		_, err = tx.Exec(`
			UPDATE health_events SET
				predicted_risk_score = ?, severity = ?, break_recommended = 1,
				break_duration_minutes = ?, break_urgency = ?, break_reason = ?,
				alert_sent_at = datetime('now')
			WHERE id = ?`,
			score, string(severity), rec.DurationMinutes, string(rec.Urgency), rec.Reason, eventID,
		)
		if err != nil {
			return fmt.Errorf("record alert: %w", err)
		}
		recorded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return recorded, nil
}

// PruneOlderThan deletes events past the retention window; nightly cleanup
func (r *Repository) PruneOlderThan(days int) (int64, error) {
	res, err := r.db.Exec(
		"DELETE FROM health_events WHERE recorded_at < date('now', ?)",
		fmt.Sprintf("-%d days", days))
	if err != nil {
		return 0, fmt.Errorf("failed to prune health events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanEvent(scan func(...interface{}) error) (*domain.HealthEvent, error) {
	var e domain.HealthEvent
	var risk sql.NullFloat64
	var severity, urgency, reason, alertSentAt sql.NullString
	var breakRecommended int
	var recordedAt string

	err := scan(
		&e.ID, &e.DriverID, &e.HeartRate, &e.FatigueLevel, &e.HoursWorked, &e.HoursSinceLastBreak,
		&e.PackagesDelivered, &e.PackagesRemaining, &e.TotalDistanceKm, &risk, &severity,
		&breakRecommended, &e.BreakDurationMinutes, &urgency, &reason, &alertSentAt, &recordedAt,
	)
	if err != nil {
		return nil, err
	}
	if risk.Valid {
		e.PredictedRiskScore = &risk.Float64
	}
	e.Severity = domain.Severity(severity.String)
	e.BreakRecommended = breakRecommended == 1
	e.BreakUrgency = domain.BreakUrgency(urgency.String)
	e.BreakReason = reason.String
	if alertSentAt.Valid && alertSentAt.String != "" {
		t := parseTime(alertSentAt.String)
		e.AlertSentAt = &t
	}
	e.RecordedAt = parseTime(recordedAt)
	return &e, nil
}

func collectEvents(rows *sql.Rows) ([]domain.HealthEvent, error) {
	var out []domain.HealthEvent
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan health event: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("health event iteration failed: %w", err)
	}
	return out, nil
}

func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func nullFloatPtr(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
