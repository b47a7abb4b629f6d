// Package assignments holds the daily fair-assignment pipeline and the
// assignment repository. The (package_id, operational_date) unique row is the
// serialization point for assignment ownership across the whole system.
package assignments

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

const assignmentColumns = `id, driver_id, package_id, operational_date, predicted_difficulty,
	actual_difficulty, status, explanation, assigned_at, accepted_at, started_at, completed_at`

// Repository handles assignment database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates an assignment repository over fleet.db
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "assignment").Logger(),
	}
}

// DailyRecord is one row the pipeline persists for an operational date
type DailyRecord struct {
	DriverID            int64
	PackageID           int64
	OperationalDate     string
	PredictedDifficulty float64
	Explanation         *string
}

// CreateDaily persists a whole day's distribution in one transaction:
// every assignment row plus the pending->assigned package transition.
// The ON CONFLICT guard on (package_id, operational_date) makes a replay
// of the same batch a no-op; skipped rows are counted, not errors.
func (r *Repository) CreateDaily(records []DailyRecord) (created, skipped int, err error) {
	err = database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, rec := range records {
			res, err := tx.Exec(`
				INSERT INTO assignments (driver_id, package_id, operational_date, predicted_difficulty, explanation)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(package_id, operational_date) DO NOTHING`,
				rec.DriverID, rec.PackageID, rec.OperationalDate, rec.PredictedDifficulty, nullStringPtr(rec.Explanation),
			)
			if err != nil {
				return fmt.Errorf("insert assignment for package %d: %w", rec.PackageID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if n == 0 {
				skipped++
				continue
			}
			created++
			if _, err := tx.Exec(`
				UPDATE packages SET status = 'assigned', updated_at = datetime('now')
				WHERE id = ? AND status = 'pending'`, rec.PackageID); err != nil {
				return fmt.Errorf("transition package %d: %w", rec.PackageID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return created, skipped, nil
}

// GetByID fetches one assignment, ErrNotFound when missing
func (r *Repository) GetByID(id int64) (*domain.Assignment, error) {
	row := r.db.QueryRow("SELECT "+assignmentColumns+" FROM assignments WHERE id = ?", id)
	a, err := scanAssignment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("assignment %d: %w", id, domain.ErrNotFound)
	}
	return a, err
}

// GetCurrentForPackage returns the package's assignment for one operational
// date, ErrNotFound when the package is unassigned that day.
func (r *Repository) GetCurrentForPackage(packageID int64, date string) (*domain.Assignment, error) {
	row := r.db.QueryRow(
		"SELECT "+assignmentColumns+" FROM assignments WHERE package_id = ? AND operational_date = ?",
		packageID, date)
	a, err := scanAssignment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no assignment for package %d on %s: %w", packageID, date, domain.ErrNotFound)
	}
	return a, err
}

// ListByDriverAndDate returns one driver's assignments for a date
func (r *Repository) ListByDriverAndDate(driverID int64, date string) ([]domain.Assignment, error) {
	rows, err := r.db.Query(
		"SELECT "+assignmentColumns+" FROM assignments WHERE driver_id = ? AND operational_date = ? ORDER BY id",
		driverID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()
	return collectAssignments(rows)
}

// ListByDate returns every assignment for an operational date
func (r *Repository) ListByDate(date string) ([]domain.Assignment, error) {
	rows, err := r.db.Query(
		"SELECT "+assignmentColumns+" FROM assignments WHERE operational_date = ? ORDER BY id", date)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()
	return collectAssignments(rows)
}

// Accept marks an assignment accepted by its driver
func (r *Repository) Accept(id, driverID int64) error {
	return r.transition(id, driverID, domain.AssignmentAccepted, "accepted_at")
}

// Start marks an assignment in progress
func (r *Repository) Start(id, driverID int64) error {
	return r.transition(id, driverID, domain.AssignmentInProgress, "started_at")
}

func (r *Repository) transition(id, driverID int64, status domain.AssignmentStatus, stampCol string) error {
	a, err := r.GetByID(id)
	if err != nil {
		return err
	}
	if a.DriverID != driverID {
		return fmt.Errorf("assignment %d belongs to another driver: %w", id, domain.ErrUnauthorized)
	}
	if a.Status.IsTerminal() {
		return fmt.Errorf("assignment %d is already %s: %w", id, a.Status, domain.ErrValidation)
	}
	query := fmt.Sprintf("UPDATE assignments SET status = ?, %s = datetime('now') WHERE id = ?", stampCol)
	if _, err := r.db.Exec(query, string(status), id); err != nil {
		return fmt.Errorf("failed to transition assignment: %w", err)
	}
	return nil
}

// FinishTx marks an assignment completed or failed inside the delivery
// completion transaction and records the actual difficulty when known.
func (r *Repository) FinishTx(tx *sql.Tx, id int64, status domain.AssignmentStatus, actualDifficulty *float64) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finish requires a terminal status, got %s: %w", status, domain.ErrValidation)
	}
	_, err := tx.Exec(`
		UPDATE assignments SET status = ?, actual_difficulty = ?, completed_at = datetime('now')
		WHERE id = ?`, string(status), nullFloatPtr(actualDifficulty), id)
	if err != nil {
		return fmt.Errorf("failed to finish assignment: %w", err)
	}
	return nil
}

// DriverShare returns driverID's share of all assignments over the trailing
// window, for the earnings forecaster. Zero total yields (0, 0).
func (r *Repository) DriverShare(driverID int64, days int) (share float64, total int, err error) {
	var driverCount int
	err = r.db.QueryRow(`
		SELECT
			COUNT(*) FILTER (WHERE driver_id = ?),
			COUNT(*)
		FROM assignments
		WHERE operational_date >= date('now', ?)`,
		driverID, fmt.Sprintf("-%d days", days),
	).Scan(&driverCount, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to compute driver share: %w", err)
	}
	if total == 0 {
		return 0, 0, nil
	}
	return float64(driverCount) / float64(total), total, nil
}

// WindowOutcomes returns per-driver (total, failed) assignment counts over a
// claim window, for the insurance calculator. Only terminal assignments count.
func (r *Repository) WindowOutcomes(periodStart, periodEnd string) (map[int64][2]int, error) {
	rows, err := r.db.Query(`
		SELECT driver_id,
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM assignments
		WHERE operational_date BETWEEN ? AND ?
		  AND status IN ('completed', 'failed')
		GROUP BY driver_id`,
		periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to query window outcomes: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][2]int)
	for rows.Next() {
		var driverID int64
		var total, failed int
		if err := rows.Scan(&driverID, &total, &failed); err != nil {
			return nil, fmt.Errorf("failed to scan window outcome: %w", err)
		}
		out[driverID] = [2]int{total, failed}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("window outcome iteration failed: %w", err)
	}
	return out, nil
}

// CompletedSince returns terminal assignments newer than the cutoff date,
// for the nightly learning export.
func (r *Repository) CompletedSince(date string) ([]domain.Assignment, error) {
	rows, err := r.db.Query(
		"SELECT "+assignmentColumns+` FROM assignments
		 WHERE operational_date >= ? AND status IN ('completed', 'failed') ORDER BY id`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed assignments: %w", err)
	}
	defer rows.Close()
	return collectAssignments(rows)
}

func scanAssignment(scan func(...interface{}) error) (*domain.Assignment, error) {
	var a domain.Assignment
	var status string
	var actual sql.NullFloat64
	var explanation sql.NullString
	var assignedAt string
	var acceptedAt, startedAt, completedAt sql.NullString

	err := scan(
		&a.ID, &a.DriverID, &a.PackageID, &a.OperationalDate, &a.PredictedDifficulty,
		&actual, &status, &explanation, &assignedAt, &acceptedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = domain.AssignmentStatus(status)
	if actual.Valid {
		a.ActualDifficulty = &actual.Float64
	}
	if explanation.Valid {
		a.Explanation = &explanation.String
	}
	a.AssignedAt = parseTime(assignedAt)
	a.AcceptedAt = parseNullTime(acceptedAt)
	a.StartedAt = parseNullTime(startedAt)
	a.CompletedAt = parseNullTime(completedAt)
	return &a, nil
}

func collectAssignments(rows *sql.Rows) ([]domain.Assignment, error) {
	var out []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment row: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assignment row iteration failed: %w", err)
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

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullStringPtr(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullFloatPtr(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
