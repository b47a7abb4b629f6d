package swaps

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

const swapColumns = `id, proposer_id, acceptor_id, offered_assignment_id, requested_assignment_id,
	status, reason, compatibility_score, distance_saved_km, proposed_at, responded_at, completed_at`

// Repository handles swap requests and the atomic assignment exchange.
// Swaps and assignments share fleet.db, so the exchange is one transaction.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a swap repository over fleet.db
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "swap").Logger(),
	}
}

// Create persists a new pending swap
func (r *Repository) Create(s *domain.SwapRequest) error {
	_, err := r.db.Exec(`
		INSERT INTO swap_requests (id, proposer_id, acceptor_id, offered_assignment_id,
			requested_assignment_id, status, reason, compatibility_score, distance_saved_km)
		VALUES (?, ?, ?, ?, ?, 'pending', ?, ?, ?)`,
		s.ID, s.ProposerID, s.AcceptorID, s.OfferedAssignmentID, s.RequestedAssignmentID,
		nullStr(s.Reason), s.CompatibilityScore, s.DistanceSavedKm,
	)
	if err != nil {
		return fmt.Errorf("failed to create swap: %w", err)
	}
	r.log.Info().
		Str("swap_id", s.ID).
		Int64("proposer", s.ProposerID).
		Int64("acceptor", s.AcceptorID).
		Msg("Swap proposed")
	return nil
}

// GetByID fetches one swap, ErrNotFound when missing
func (r *Repository) GetByID(id string) (*domain.SwapRequest, error) {
	row := r.db.QueryRow("SELECT "+swapColumns+" FROM swap_requests WHERE id = ?", id)
	s, err := scanSwap(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("swap %s: %w", id, domain.ErrNotFound)
	}
	return s, err
}

// ListPendingForAcceptor returns the marketplace listing for one driver,
// best compatibility first.
func (r *Repository) ListPendingForAcceptor(driverID int64) ([]domain.SwapRequest, error) {
	rows, err := r.db.Query(
		"SELECT "+swapColumns+` FROM swap_requests
		 WHERE acceptor_id = ? AND status = 'pending'
		 ORDER BY compatibility_score DESC, proposed_at`, driverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list marketplace swaps: %w", err)
	}
	defer rows.Close()
	return collectSwaps(rows)
}

// ListByDriver returns every swap a driver proposed or was offered
func (r *Repository) ListByDriver(driverID int64) ([]domain.SwapRequest, error) {
	rows, err := r.db.Query(
		"SELECT "+swapColumns+` FROM swap_requests
		 WHERE proposer_id = ? OR acceptor_id = ?
		 ORDER BY proposed_at DESC`, driverID, driverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list swaps: %w", err)
	}
	defer rows.Close()
	return collectSwaps(rows)
}

// CountProposedSince counts a proposer's swaps newer than the cutoff;
// the daily-cap guard.
func (r *Repository) CountProposedSince(proposerID int64, cutoff time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM swap_requests WHERE proposer_id = ? AND proposed_at >= ?",
		proposerID, cutoff.UTC().Format(timeLayout),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count proposals: %w", err)
	}
	return n, nil
}

// LastProposalAt returns when the proposer last proposed, nil when never;
// the cooldown guard.
func (r *Repository) LastProposalAt(proposerID int64) (*time.Time, error) {
	var s sql.NullString
	err := r.db.QueryRow(
		"SELECT MAX(proposed_at) FROM swap_requests WHERE proposer_id = ?",
		proposerID).Scan(&s)
	if err != nil {
		return nil, fmt.Errorf("failed to read last proposal: %w", err)
	}
	return parseNullTime(s), nil
}

// Cancel transitions a pending swap to cancelled
func (r *Repository) Cancel(id string) error {
	_, err := r.db.Exec(`
		UPDATE swap_requests SET status = 'cancelled', responded_at = datetime('now')
		WHERE id = ? AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("failed to cancel swap: %w", err)
	}
	return nil
}

// Exchange performs the atomic two-assignment driver exchange. Inside one
// transaction it re-reads both assignments, verifies each still belongs to
// the driver the swap expects, exchanges the driver ids and completes the
// swap. A mid-flight ownership change aborts with ErrConflict and nothing
// is written.
func (r *Repository) Exchange(s *domain.SwapRequest) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		offered, err := readAssignmentForUpdate(tx, s.OfferedAssignmentID)
		if err != nil {
			return err
		}
		requested, err := readAssignmentForUpdate(tx, s.RequestedAssignmentID)
		if err != nil {
			return err
		}

		if offered.driverID != s.ProposerID || requested.driverID != s.AcceptorID {
			return fmt.Errorf("assignment ownership changed since proposal: %w", domain.ErrConflict)
		}
		if offered.terminal || requested.terminal {
			return fmt.Errorf("assignment already completed: %w", domain.ErrValidation)
		}

		if _, err := tx.Exec("UPDATE assignments SET driver_id = ? WHERE id = ?",
			s.AcceptorID, s.OfferedAssignmentID); err != nil {
			return fmt.Errorf("exchange offered assignment: %w", err)
		}
		if _, err := tx.Exec("UPDATE assignments SET driver_id = ? WHERE id = ?",
			s.ProposerID, s.RequestedAssignmentID); err != nil {
			return fmt.Errorf("exchange requested assignment: %w", err)
		}

		if _, err := tx.Exec(`
			UPDATE swap_requests
			SET status = 'completed', responded_at = datetime('now'), completed_at = datetime('now')
			WHERE id = ? AND status = 'pending'`, s.ID); err != nil {
			return fmt.Errorf("complete swap: %w", err)
		}
		return nil
	})
}

// ExpireStalePending rejects pending swaps older than the timeout; the
// nightly cleanup sweep.
func (r *Repository) ExpireStalePending(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(timeLayout)
	res, err := r.db.Exec(`
		UPDATE swap_requests SET status = 'rejected', responded_at = datetime('now')
		WHERE status = 'pending' AND proposed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale swaps: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type assignmentRow struct {
	driverID int64
	terminal bool
}

func readAssignmentForUpdate(tx *sql.Tx, id int64) (*assignmentRow, error) {
	var driverID int64
	var status string
	err := tx.QueryRow("SELECT driver_id, status FROM assignments WHERE id = ?", id).
		Scan(&driverID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("assignment %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read assignment %d: %w", id, err)
	}
	return &assignmentRow{
		driverID: driverID,
		terminal: domain.AssignmentStatus(status).IsTerminal(),
	}, nil
}

func scanSwap(scan func(...interface{}) error) (*domain.SwapRequest, error) {
	var s domain.SwapRequest
	var status string
	var reason sql.NullString
	var score, saved sql.NullFloat64
	var proposedAt string
	var respondedAt, completedAt sql.NullString

	err := scan(
		&s.ID, &s.ProposerID, &s.AcceptorID, &s.OfferedAssignmentID, &s.RequestedAssignmentID,
		&status, &reason, &score, &saved, &proposedAt, &respondedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = domain.SwapStatus(status)
	s.Reason = reason.String
	s.CompatibilityScore = score.Float64
	s.DistanceSavedKm = saved.Float64
	s.ProposedAt = parseTime(proposedAt)
	s.RespondedAt = parseNullTime(respondedAt)
	s.CompletedAt = parseNullTime(completedAt)
	return &s, nil
}

func collectSwaps(rows *sql.Rows) ([]domain.SwapRequest, error) {
	var out []domain.SwapRequest
	for rows.Next() {
		s, err := scanSwap(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan swap row: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("swap row iteration failed: %w", err)
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

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
