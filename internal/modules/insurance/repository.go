package insurance

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/domain"
)

const payoutColumns = `id, driver_id, period_start, period_end, total_tasks, failed_tasks,
	driver_failure_rate, population_mean, population_std, z_score, excess_failures,
	payout_amount, eligible, approved, paid, reason, created_at`

// Repository persists insurance payouts in ledger.db. Payout rows are
// immutable; only the approved and paid flags ever change.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a payout repository over ledger.db
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "insurance").Logger(),
	}
}

// Create records an evaluated claim and returns it with its id
func (r *Repository) Create(p *domain.InsurancePayout) error {
	res, err := r.db.Exec(`
		INSERT INTO insurance_payouts (driver_id, period_start, period_end, total_tasks,
			failed_tasks, driver_failure_rate, population_mean, population_std, z_score,
			excess_failures, payout_amount, eligible, approved, paid, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?)`,
		p.DriverID, p.PeriodStart, p.PeriodEnd, p.TotalTasks, p.FailedTasks,
		p.DriverFailureRate, p.PopulationMean, p.PopulationStd, p.ZScore,
		p.ExcessFailures, p.PayoutAmount, boolToInt(p.Eligible), p.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to create payout: %w", err)
	}
	p.ID, _ = res.LastInsertId()
	r.log.Info().
		Int64("payout_id", p.ID).
		Int64("driver_id", p.DriverID).
		Float64("amount", p.PayoutAmount).
		Bool("eligible", p.Eligible).
		Msg("Payout recorded")
	return nil
}

// GetByID fetches one payout, ErrNotFound when missing
func (r *Repository) GetByID(id int64) (*domain.InsurancePayout, error) {
	row := r.db.QueryRow("SELECT "+payoutColumns+" FROM insurance_payouts WHERE id = ?", id)
	p, err := scanPayout(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payout %d: %w", id, domain.ErrNotFound)
	}
	return p, err
}

// ListByDriver returns a driver's payout history, newest first
func (r *Repository) ListByDriver(driverID int64) ([]domain.InsurancePayout, error) {
	return r.list("SELECT "+payoutColumns+` FROM insurance_payouts
		WHERE driver_id = ? ORDER BY created_at DESC`, driverID)
}

// ListPendingApproval returns eligible payouts awaiting an admin decision
func (r *Repository) ListPendingApproval() ([]domain.InsurancePayout, error) {
	return r.list("SELECT " + payoutColumns + ` FROM insurance_payouts
		WHERE eligible = 1 AND approved = 0 ORDER BY created_at`)
}

// ExistsForPeriod reports whether a driver was already evaluated for a window;
// the nightly job's idempotence guard.
func (r *Repository) ExistsForPeriod(driverID int64, periodStart, periodEnd string) (bool, error) {
	var n int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM insurance_payouts
		WHERE driver_id = ? AND period_start = ? AND period_end = ?`,
		driverID, periodStart, periodEnd).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check payout period: %w", err)
	}
	return n > 0, nil
}

// Approve flips the approved flag on an eligible payout
func (r *Repository) Approve(id int64) error {
	return r.setFlag(id, "approved", "eligible = 1 AND approved = 0")
}

// MarkPaid flips the paid flag on an approved payout
func (r *Repository) MarkPaid(id int64) error {
	return r.setFlag(id, "paid", "approved = 1 AND paid = 0")
}

func (r *Repository) setFlag(id int64, column, guard string) error {
	res, err := r.db.Exec(
		"UPDATE insurance_payouts SET "+column+" = 1 WHERE id = ? AND "+guard, id)
	if err != nil {
		return fmt.Errorf("failed to update payout %s flag: %w", column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(id); err != nil {
			return err
		}
		return fmt.Errorf("payout %d is not in a state allowing %s: %w", id, column, domain.ErrValidation)
	}
	return nil
}

func (r *Repository) list(query string, args ...interface{}) ([]domain.InsurancePayout, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer rows.Close()

	var out []domain.InsurancePayout
	for rows.Next() {
		p, err := scanPayout(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout row: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payout row iteration failed: %w", err)
	}
	return out, nil
}

func scanPayout(scan func(...interface{}) error) (*domain.InsurancePayout, error) {
	var p domain.InsurancePayout
	var eligible, approved, paid int
	var createdAt string

	err := scan(
		&p.ID, &p.DriverID, &p.PeriodStart, &p.PeriodEnd, &p.TotalTasks, &p.FailedTasks,
		&p.DriverFailureRate, &p.PopulationMean, &p.PopulationStd, &p.ZScore,
		&p.ExcessFailures, &p.PayoutAmount, &eligible, &approved, &paid, &p.Reason, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	p.Eligible = eligible != 0
	p.Approved = approved != 0
	p.Paid = paid != 0
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

func parseTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
