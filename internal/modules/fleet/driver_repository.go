// Package fleet holds the driver, package and delivery surface: repositories
// over fleet.db, the delivery-completion transaction and profile maintenance.
package fleet

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05"

// driverColumns avoids SELECT *; order must match scanDriver
const driverColumns = `id, email, phone, password_hash, name, vehicle_type, vehicle_capacity_kg,
	is_active, is_admin, experience_days, total_deliveries, successful_deliveries, failed_deliveries,
	success_rate, avg_delivery_time_minutes, current_latitude, current_longitude, push_token,
	created_at, updated_at`

// DriverRepository handles driver database operations
type DriverRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewDriverRepository creates a driver repository over fleet.db
func NewDriverRepository(db *sql.DB, log zerolog.Logger) *DriverRepository {
	return &DriverRepository{
		db:  db,
		log: log.With().Str("repo", "driver").Logger(),
	}
}

// Create inserts a new driver and returns its id
func (r *DriverRepository) Create(d *domain.Driver) (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO drivers (email, phone, password_hash, name, vehicle_type, vehicle_capacity_kg,
			is_active, is_admin, experience_days, avg_delivery_time_minutes)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		d.Email, nullString(d.Phone), d.PasswordHash, d.Name, d.VehicleType, d.VehicleCapacityKg,
		boolToInt(d.IsAdmin), d.ExperienceDays, d.AvgDeliveryTimeMinutes,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create driver: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read driver id: %w", err)
	}
	r.log.Info().Int64("driver_id", id).Str("email", d.Email).Msg("Driver created")
	return id, nil
}

// GetByID fetches one driver, ErrNotFound when missing
func (r *DriverRepository) GetByID(id int64) (*domain.Driver, error) {
	row := r.db.QueryRow("SELECT "+driverColumns+" FROM drivers WHERE id = ?", id)
	return scanDriver(row)
}

// GetByEmail fetches one driver by unique email
func (r *DriverRepository) GetByEmail(email string) (*domain.Driver, error) {
	row := r.db.QueryRow("SELECT "+driverColumns+" FROM drivers WHERE email = ?", email)
	return scanDriver(row)
}

// ListActive returns all active drivers, the pipeline's daily snapshot
func (r *DriverRepository) ListActive() ([]domain.Driver, error) {
	rows, err := r.db.Query("SELECT " + driverColumns + " FROM drivers WHERE is_active = 1 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list active drivers: %w", err)
	}
	defer rows.Close()
	return collectDrivers(rows)
}

// List returns every driver, active or not
func (r *DriverRepository) List() ([]domain.Driver, error) {
	rows, err := r.db.Query("SELECT " + driverColumns + " FROM drivers ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list drivers: %w", err)
	}
	defer rows.Close()
	return collectDrivers(rows)
}

// UpdateProfile updates the mutable profile fields
func (r *DriverRepository) UpdateProfile(id int64, name, phone, vehicleType string, capacityKg float64) error {
	_, err := r.db.Exec(`
		UPDATE drivers
		SET name = ?, phone = ?, vehicle_type = ?, vehicle_capacity_kg = ?, updated_at = datetime('now')
		WHERE id = ?`,
		name, nullString(phone), vehicleType, capacityKg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update driver profile: %w", err)
	}
	return nil
}

// UpdateLocation stores the last known position
func (r *DriverRepository) UpdateLocation(id int64, lat, lng float64) error {
	_, err := r.db.Exec(`
		UPDATE drivers SET current_latitude = ?, current_longitude = ?, updated_at = datetime('now')
		WHERE id = ?`, lat, lng, id)
	if err != nil {
		return fmt.Errorf("failed to update driver location: %w", err)
	}
	return nil
}

// SetPushToken stores (or clears, with "") the push endpoint token
func (r *DriverRepository) SetPushToken(id int64, token string) error {
	_, err := r.db.Exec(`
		UPDATE drivers SET push_token = ?, updated_at = datetime('now') WHERE id = ?`,
		nullString(token), id)
	if err != nil {
		return fmt.Errorf("failed to set push token: %w", err)
	}
	return nil
}

// Deactivate flips is_active off. Drivers are never hard-deleted.
func (r *DriverRepository) Deactivate(id int64) error {
	res, err := r.db.Exec(`
		UPDATE drivers SET is_active = 0, updated_at = datetime('now') WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate driver: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("driver %d: %w", id, domain.ErrNotFound)
	}
	r.log.Info().Int64("driver_id", id).Msg("Driver deactivated")
	return nil
}

// ApplyDeliveryOutcomeTx updates the driver's aggregates inside the delivery
// completion transaction. success_rate is stored, not derived: it is
// recomputed here as successful/total so every reader sees one definition.
func (r *DriverRepository) ApplyDeliveryOutcomeTx(tx *sql.Tx, driverID int64, success bool, durationMinutes float64) error {
	successDelta, failDelta := 0, 1
	if success {
		successDelta, failDelta = 1, 0
	}
	_, err := tx.Exec(`
		UPDATE drivers SET
			total_deliveries = total_deliveries + 1,
			successful_deliveries = successful_deliveries + ?,
			failed_deliveries = failed_deliveries + ?,
			success_rate = CAST(successful_deliveries + ? AS REAL) / (total_deliveries + 1),
			avg_delivery_time_minutes = (avg_delivery_time_minutes * total_deliveries + ?) / (total_deliveries + 1),
			updated_at = datetime('now')
		WHERE id = ?`,
		successDelta, failDelta, successDelta, durationMinutes, driverID,
	)
	if err != nil {
		return fmt.Errorf("failed to update driver aggregates: %w", err)
	}
	return nil
}

func scanDriver(row *sql.Row) (*domain.Driver, error) {
	var d domain.Driver
	var phone, pushToken sql.NullString
	var lat, lng sql.NullFloat64
	var isActive, isAdmin int
	var createdAt, updatedAt string

	err := row.Scan(
		&d.ID, &d.Email, &phone, &d.PasswordHash, &d.Name, &d.VehicleType, &d.VehicleCapacityKg,
		&isActive, &isAdmin, &d.ExperienceDays, &d.TotalDeliveries, &d.SuccessfulDeliveries,
		&d.FailedDeliveries, &d.SuccessRate, &d.AvgDeliveryTimeMinutes, &lat, &lng, &pushToken,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("driver: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan driver: %w", err)
	}
	d.Phone = phone.String
	d.IsActive = isActive == 1
	d.IsAdmin = isAdmin == 1
	if pushToken.Valid {
		d.PushToken = &pushToken.String
	}
	if lat.Valid {
		d.CurrentLatitude = &lat.Float64
	}
	if lng.Valid {
		d.CurrentLongitude = &lng.Float64
	}
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

func collectDrivers(rows *sql.Rows) ([]domain.Driver, error) {
	var out []domain.Driver
	for rows.Next() {
		var d domain.Driver
		var phone, pushToken sql.NullString
		var lat, lng sql.NullFloat64
		var isActive, isAdmin int
		var createdAt, updatedAt string
		err := rows.Scan(
			&d.ID, &d.Email, &phone, &d.PasswordHash, &d.Name, &d.VehicleType, &d.VehicleCapacityKg,
			&isActive, &isAdmin, &d.ExperienceDays, &d.TotalDeliveries, &d.SuccessfulDeliveries,
			&d.FailedDeliveries, &d.SuccessRate, &d.AvgDeliveryTimeMinutes, &lat, &lng, &pushToken,
			&createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan driver row: %w", err)
		}
		d.Phone = phone.String
		d.IsActive = isActive == 1
		d.IsAdmin = isAdmin == 1
		if pushToken.Valid {
			d.PushToken = &pushToken.String
		}
		if lat.Valid {
			d.CurrentLatitude = &lat.Float64
		}
		if lng.Valid {
			d.CurrentLongitude = &lng.Float64
		}
		d.CreatedAt = parseTime(createdAt)
		d.UpdatedAt = parseTime(updatedAt)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("driver row iteration failed: %w", err)
	}
	return out, nil
}

// Shared scan helpers for the fleet repositories

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339, "2006-01-02T15:04:05Z07:00", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func nullTimeString(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
