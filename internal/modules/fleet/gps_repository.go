package fleet

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/domain"
)

// GPSRepository stores location breadcrumbs in telemetry.db
type GPSRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewGPSRepository creates a GPS log repository over telemetry.db
func NewGPSRepository(db *sql.DB, log zerolog.Logger) *GPSRepository {
	return &GPSRepository{
		db:  db,
		log: log.With().Str("repo", "gps").Logger(),
	}
}

// Create appends one breadcrumb
func (r *GPSRepository) Create(g *domain.GPSLog) error {
	res, err := r.db.Exec(`
		INSERT INTO gps_logs (driver_id, latitude, longitude, speed_kmh)
		VALUES (?, ?, ?, ?)`,
		g.DriverID, g.Latitude, g.Longitude, g.SpeedKmh,
	)
	if err != nil {
		return fmt.Errorf("failed to create gps log: %w", err)
	}
	g.ID, _ = res.LastInsertId()
	return nil
}

// Recent returns a driver's latest breadcrumbs, newest first
func (r *GPSRepository) Recent(driverID int64, limit int) ([]domain.GPSLog, error) {
	rows, err := r.db.Query(`
		SELECT id, driver_id, latitude, longitude, speed_kmh, recorded_at
		FROM gps_logs WHERE driver_id = ?
		ORDER BY recorded_at DESC LIMIT ?`, driverID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list gps logs: %w", err)
	}
	defer rows.Close()

	var out []domain.GPSLog
	for rows.Next() {
		var g domain.GPSLog
		var speed sql.NullFloat64
		var recordedAt string
		if err := rows.Scan(&g.ID, &g.DriverID, &g.Latitude, &g.Longitude, &speed, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan gps row: %w", err)
		}
		if speed.Valid {
			g.SpeedKmh = &speed.Float64
		}
		g.RecordedAt = parseTime(recordedAt)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gps row iteration failed: %w", err)
	}
	return out, nil
}

// PruneOlderThan drops breadcrumbs past the retention window
func (r *GPSRepository) PruneOlderThan(days int) (int64, error) {
	res, err := r.db.Exec(
		"DELETE FROM gps_logs WHERE recorded_at < datetime('now', ?)",
		fmt.Sprintf("-%d days", days))
	if err != nil {
		return 0, fmt.Errorf("failed to prune gps logs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
