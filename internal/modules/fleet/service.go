package fleet

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/database"
	"github.com/fleetops/dispatch/internal/domain"
)

// AssignmentFinisher closes an assignment inside the delivery transaction
type AssignmentFinisher interface {
	FinishTx(tx *sql.Tx, id int64, status domain.AssignmentStatus, actualDifficulty *float64) error
}

// Service owns the delivery completion transaction: one commit covers the
// delivery record, the assignment and package terminal states, and the
// driver's running aggregates.
type Service struct {
	db          *sql.DB
	drivers     *DriverRepository
	packages    *PackageRepository
	assignments AssignmentFinisher
	log         zerolog.Logger
}

// NewService wires the fleet service over fleet.db
func NewService(db *sql.DB, drivers *DriverRepository, packages *PackageRepository, assignments AssignmentFinisher, log zerolog.Logger) *Service {
	return &Service{
		db:          db,
		drivers:     drivers,
		packages:    packages,
		assignments: assignments,
		log:         log.With().Str("service", "fleet").Logger(),
	}
}

// DeliveryOutcome is the driver-reported result of a delivery attempt
type DeliveryOutcome struct {
	AssignmentID    int64
	DriverID        int64
	Success         bool
	DurationMinutes *float64
	FailureReason   *string
}

// CompleteDelivery records a delivery outcome atomically. The caller must own
// the assignment; a terminal assignment or a duplicate delivery row rejects
// the report.
func (s *Service) CompleteDelivery(out DeliveryOutcome) (*domain.Delivery, error) {
	if !out.Success && (out.FailureReason == nil || *out.FailureReason == "") {
		return nil, fmt.Errorf("failed delivery requires a failure reason: %w", domain.ErrValidation)
	}

	var delivery *domain.Delivery
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		var driverID, packageID int64
		var status string
		err := tx.QueryRow(
			"SELECT driver_id, package_id, status FROM assignments WHERE id = ?",
			out.AssignmentID).Scan(&driverID, &packageID, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("assignment %d: %w", out.AssignmentID, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read assignment: %w", err)
		}
		if driverID != out.DriverID {
			return fmt.Errorf("assignment %d belongs to another driver: %w", out.AssignmentID, domain.ErrUnauthorized)
		}
		if domain.AssignmentStatus(status).IsTerminal() {
			return fmt.Errorf("assignment %d already completed: %w", out.AssignmentID, domain.ErrValidation)
		}

		res, err := tx.Exec(`
			INSERT INTO deliveries (assignment_id, driver_id, package_id, success,
				actual_duration_minutes, failure_reason)
			VALUES (?, ?, ?, ?, ?, ?)`,
			out.AssignmentID, out.DriverID, packageID, boolToInt(out.Success),
			out.DurationMinutes, out.FailureReason,
		)
		if err != nil {
			return fmt.Errorf("create delivery: %w", err)
		}
		deliveryID, _ := res.LastInsertId()

		assignmentStatus := domain.AssignmentCompleted
		packageStatus := domain.PackageDelivered
		if !out.Success {
			assignmentStatus = domain.AssignmentFailed
			packageStatus = domain.PackageFailed
		}
		if err := s.assignments.FinishTx(tx, out.AssignmentID, assignmentStatus, nil); err != nil {
			return err
		}
		if err := s.packages.UpdateStatusTx(tx, packageID, packageStatus); err != nil {
			return err
		}

		duration := 0.0
		if out.DurationMinutes != nil {
			duration = *out.DurationMinutes
		}
		if err := s.drivers.ApplyDeliveryOutcomeTx(tx, out.DriverID, out.Success, duration); err != nil {
			return err
		}

		delivery = &domain.Delivery{
			ID:                    deliveryID,
			AssignmentID:          out.AssignmentID,
			DriverID:              out.DriverID,
			PackageID:             packageID,
			Success:               out.Success,
			ActualDurationMinutes: out.DurationMinutes,
			FailureReason:         out.FailureReason,
			DeliveredAt:           time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("assignment_id", out.AssignmentID).
		Int64("driver_id", out.DriverID).
		Bool("success", out.Success).
		Msg("Delivery recorded")
	return delivery, nil
}
