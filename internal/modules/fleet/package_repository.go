package fleet

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/domain"
)

const packageColumns = `id, tracking_number, status, weight_kg, is_fragile, delivery_latitude,
	delivery_longitude, delivery_address, floor_number, time_window_hours, priority,
	distance_from_hub_km, created_at, updated_at`

// PackageRepository handles package database operations
type PackageRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPackageRepository creates a package repository over fleet.db
func NewPackageRepository(db *sql.DB, log zerolog.Logger) *PackageRepository {
	return &PackageRepository{
		db:  db,
		log: log.With().Str("repo", "package").Logger(),
	}
}

// Create inserts a new pending package
func (r *PackageRepository) Create(p *domain.Package) (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO packages (tracking_number, status, weight_kg, is_fragile, delivery_latitude,
			delivery_longitude, delivery_address, floor_number, time_window_hours, priority,
			distance_from_hub_km)
		VALUES (?, 'pending', ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.TrackingNumber, p.WeightKg, boolToInt(p.IsFragile),
		nullFloat(p.DeliveryLatitude), nullFloat(p.DeliveryLongitude),
		p.DeliveryAddress, p.FloorNumber, nullFloat(p.TimeWindowHours),
		defaultStr(p.Priority, "normal"), p.DistanceFromHubKm,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create package: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read package id: %w", err)
	}
	return id, nil
}

// BulkCreate inserts a manifest of packages in one transaction.
// Duplicate tracking numbers abort the whole batch.
func (r *PackageRepository) BulkCreate(packages []domain.Package) ([]int64, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin bulk insert: %w", err)
	}
	ids := make([]int64, 0, len(packages))
	for i := range packages {
		p := &packages[i]
		res, err := tx.Exec(`
			INSERT INTO packages (tracking_number, status, weight_kg, is_fragile, delivery_latitude,
				delivery_longitude, delivery_address, floor_number, time_window_hours, priority,
				distance_from_hub_km)
			VALUES (?, 'pending', ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.TrackingNumber, p.WeightKg, boolToInt(p.IsFragile),
			nullFloat(p.DeliveryLatitude), nullFloat(p.DeliveryLongitude),
			p.DeliveryAddress, p.FloorNumber, nullFloat(p.TimeWindowHours),
			defaultStr(p.Priority, "normal"), p.DistanceFromHubKm,
		)
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("bulk insert failed at %s: %w", p.TrackingNumber, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to read package id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit bulk insert: %w", err)
	}
	r.log.Info().Int("count", len(ids)).Msg("Package manifest created")
	return ids, nil
}

// GetByID fetches one package, ErrNotFound when missing
func (r *PackageRepository) GetByID(id int64) (*domain.Package, error) {
	row := r.db.QueryRow("SELECT "+packageColumns+" FROM packages WHERE id = ?", id)
	return scanPackage(row)
}

// GetByTracking fetches one package by its unique tracking number
func (r *PackageRepository) GetByTracking(tracking string) (*domain.Package, error) {
	row := r.db.QueryRow("SELECT "+packageColumns+" FROM packages WHERE tracking_number = ?", tracking)
	return scanPackage(row)
}

// ListPending returns the pipeline's daily snapshot of unassigned packages
func (r *PackageRepository) ListPending() ([]domain.Package, error) {
	return r.listByStatus(string(domain.PackagePending))
}

// ListByStatus returns packages in one lifecycle state
func (r *PackageRepository) ListByStatus(status domain.PackageStatus) ([]domain.Package, error) {
	return r.listByStatus(string(status))
}

func (r *PackageRepository) listByStatus(status string) ([]domain.Package, error) {
	rows, err := r.db.Query("SELECT "+packageColumns+" FROM packages WHERE status = ? ORDER BY id", status)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	defer rows.Close()
	return collectPackages(rows)
}

// UpdateStatus transitions a package. Terminal states are enforced by the
// callers that own the surrounding transaction.
func (r *PackageRepository) UpdateStatus(id int64, status domain.PackageStatus) error {
	_, err := r.db.Exec(`
		UPDATE packages SET status = ?, updated_at = datetime('now') WHERE id = ?`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update package status: %w", err)
	}
	return nil
}

// UpdateStatusTx is UpdateStatus inside a caller-owned transaction
func (r *PackageRepository) UpdateStatusTx(tx *sql.Tx, id int64, status domain.PackageStatus) error {
	_, err := tx.Exec(`
		UPDATE packages SET status = ?, updated_at = datetime('now') WHERE id = ?`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update package status: %w", err)
	}
	return nil
}

// DailyVolumes returns (date, package count) pairs for the trailing window,
// oldest first. Feeds the volume forecaster and analytics.
func (r *PackageRepository) DailyVolumes(days int) ([]DailyVolume, error) {
	rows, err := r.db.Query(`
		SELECT date(created_at) AS day, COUNT(*) AS volume
		FROM packages
		WHERE created_at >= date('now', ?)
		GROUP BY day
		ORDER BY day`,
		fmt.Sprintf("-%d days", days),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily volumes: %w", err)
	}
	defer rows.Close()

	var out []DailyVolume
	for rows.Next() {
		var v DailyVolume
		if err := rows.Scan(&v.Date, &v.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan daily volume: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("daily volume iteration failed: %w", err)
	}
	return out, nil
}

// DailyVolume is one day's package intake count
type DailyVolume struct {
	Date   string  `json:"date"`
	Volume float64 `json:"volume"`
}

func scanPackage(row *sql.Row) (*domain.Package, error) {
	var p domain.Package
	var status string
	var fragile int
	var lat, lng, window sql.NullFloat64
	var createdAt, updatedAt string

	err := row.Scan(
		&p.ID, &p.TrackingNumber, &status, &p.WeightKg, &fragile, &lat, &lng,
		&p.DeliveryAddress, &p.FloorNumber, &window, &p.Priority, &p.DistanceFromHubKm,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("package: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan package: %w", err)
	}
	p.Status = domain.PackageStatus(status)
	p.IsFragile = fragile == 1
	if lat.Valid {
		p.DeliveryLatitude = &lat.Float64
	}
	if lng.Valid {
		p.DeliveryLongitude = &lng.Float64
	}
	if window.Valid {
		p.TimeWindowHours = &window.Float64
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func collectPackages(rows *sql.Rows) ([]domain.Package, error) {
	var out []domain.Package
	for rows.Next() {
		var p domain.Package
		var status string
		var fragile int
		var lat, lng, window sql.NullFloat64
		var createdAt, updatedAt string
		err := rows.Scan(
			&p.ID, &p.TrackingNumber, &status, &p.WeightKg, &fragile, &lat, &lng,
			&p.DeliveryAddress, &p.FloorNumber, &window, &p.Priority, &p.DistanceFromHubKm,
			&createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package row: %w", err)
		}
		p.Status = domain.PackageStatus(status)
		p.IsFragile = fragile == 1
		if lat.Valid {
			p.DeliveryLatitude = &lat.Float64
		}
		if lng.Valid {
			p.DeliveryLongitude = &lng.Float64
		}
		if window.Valid {
			p.TimeWindowHours = &window.Float64
		}
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("package row iteration failed: %w", err)
	}
	return out, nil
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
