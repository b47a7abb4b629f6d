package swaps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/domain"
)

// AssignmentSource supplies the assignments a swap would exchange
type AssignmentSource interface {
	GetByID(id int64) (*domain.Assignment, error)
}

// DriverSource supplies driver records for compatibility scoring
type DriverSource interface {
	GetByID(id int64) (*domain.Driver, error)
}

// PackageSource supplies package records for compatibility scoring
type PackageSource interface {
	GetByID(id int64) (*domain.Package, error)
}

// Notifier informs the acceptor a swap was proposed to them; best-effort
type Notifier interface {
	NotifyDriver(ctx context.Context, driverID int64, title, body string, data map[string]string)
}

// Config holds the marketplace guard rails
type Config struct {
	MaxPerDay       int
	CooldownMinutes int
}

// Service runs the swap marketplace: propose with guard rails, accept with
// the atomic exchange, cancel, and list.
type Service struct {
	repo        *Repository
	assignments AssignmentSource
	drivers     DriverSource
	packages    PackageSource
	notifier    Notifier
	cfg         Config
	log         zerolog.Logger
}

// NewService wires the swap service
func NewService(
	repo *Repository,
	assignments AssignmentSource,
	drivers DriverSource,
	packages PackageSource,
	notifier Notifier,
	cfg Config,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:        repo,
		assignments: assignments,
		drivers:     drivers,
		packages:    packages,
		notifier:    notifier,
		cfg:         cfg,
		log:         log.With().Str("service", "swaps").Logger(),
	}
}

// Propose creates a pending swap after validating ownership and the
// per-driver guard rails, and scores compatibility for the acceptor.
func (s *Service) Propose(ctx context.Context, proposerID, offeredAssignmentID, requestedAssignmentID int64, reason string) (*domain.SwapRequest, error) {
	if offeredAssignmentID == requestedAssignmentID {
		return nil, fmt.Errorf("cannot swap an assignment with itself: %w", domain.ErrValidation)
	}

	if err := s.checkGuardRails(proposerID); err != nil {
		return nil, err
	}

	offered, err := s.assignments.GetByID(offeredAssignmentID)
	if err != nil {
		return nil, err
	}
	requested, err := s.assignments.GetByID(requestedAssignmentID)
	if err != nil {
		return nil, err
	}

	if offered.DriverID != proposerID {
		return nil, fmt.Errorf("offered assignment does not belong to proposer: %w", domain.ErrUnauthorized)
	}
	if requested.DriverID == proposerID {
		return nil, fmt.Errorf("cannot request own assignment: %w", domain.ErrValidation)
	}
	today := domain.OperationalDate(time.Now())
	if offered.OperationalDate != today || requested.OperationalDate != today {
		return nil, fmt.Errorf("swaps are limited to today's assignments: %w", domain.ErrValidation)
	}
	if offered.Status.IsTerminal() || requested.Status.IsTerminal() {
		return nil, fmt.Errorf("cannot swap a completed assignment: %w", domain.ErrValidation)
	}

	swap := &domain.SwapRequest{
		ID:                    uuid.NewString(),
		ProposerID:            proposerID,
		AcceptorID:            requested.DriverID,
		OfferedAssignmentID:   offeredAssignmentID,
		RequestedAssignmentID: requestedAssignmentID,
		Status:                domain.SwapPending,
		Reason:                reason,
		ProposedAt:            time.Now().UTC(),
	}

	if compat, ok := s.scoreCompatibility(requested.DriverID, offered, requested); ok {
		swap.CompatibilityScore = compat.Score
		swap.DistanceSavedKm = compat.DistanceSavedKm
	}

	if err := s.repo.Create(swap); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.NotifyDriver(ctx, swap.AcceptorID,
			"Swap proposed",
			"Another driver wants to exchange a delivery with you",
			map[string]string{"type": "swap_proposed", "swap_id": swap.ID})
	}
	return swap, nil
}

// Accept executes a pending swap on behalf of the acceptor. The exchange is
// atomic; if an assignment changed hands mid-flight it retries once against
// fresh state and otherwise reports a validation failure.
func (s *Service) Accept(ctx context.Context, swapID string, acceptorID int64) (*domain.SwapRequest, error) {
	swap, err := s.repo.GetByID(swapID)
	if err != nil {
		return nil, err
	}
	if swap.AcceptorID != acceptorID {
		return nil, fmt.Errorf("swap %s is not addressed to driver %d: %w", swapID, acceptorID, domain.ErrUnauthorized)
	}
	if swap.Status != domain.SwapPending {
		return nil, fmt.Errorf("swap %s is %s, not pending: %w", swapID, swap.Status, domain.ErrValidation)
	}

	err = s.repo.Exchange(swap)
	if errors.Is(err, domain.ErrConflict) {
		s.log.Warn().Str("swap_id", swapID).Msg("Swap exchange conflicted, retrying once")
		if swap, err = s.repo.GetByID(swapID); err != nil {
			return nil, err
		}
		if swap.Status != domain.SwapPending {
			return nil, fmt.Errorf("swap %s resolved concurrently: %w", swapID, domain.ErrValidation)
		}
		if err = s.repo.Exchange(swap); errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("swap %s no longer valid, assignments changed: %w", swapID, domain.ErrValidation)
		}
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("swap_id", swapID).
		Int64("proposer", swap.ProposerID).
		Int64("acceptor", swap.AcceptorID).
		Msg("Swap completed")

	if s.notifier != nil {
		s.notifier.NotifyDriver(ctx, swap.ProposerID,
			"Swap accepted",
			"Your swap proposal was accepted",
			map[string]string{"type": "swap_accepted", "swap_id": swap.ID})
	}
	return s.repo.GetByID(swapID)
}

// Cancel withdraws a pending swap; only the proposer may cancel
func (s *Service) Cancel(swapID string, proposerID int64) error {
	swap, err := s.repo.GetByID(swapID)
	if err != nil {
		return err
	}
	if swap.ProposerID != proposerID {
		return fmt.Errorf("only the proposer may cancel swap %s: %w", swapID, domain.ErrUnauthorized)
	}
	if swap.Status != domain.SwapPending {
		return fmt.Errorf("swap %s is %s, not pending: %w", swapID, swap.Status, domain.ErrValidation)
	}
	return s.repo.Cancel(swapID)
}

// Marketplace lists pending swaps addressed to a driver, best match first
func (s *Service) Marketplace(driverID int64) ([]domain.SwapRequest, error) {
	return s.repo.ListPendingForAcceptor(driverID)
}

// History lists every swap a driver has been part of
func (s *Service) History(driverID int64) ([]domain.SwapRequest, error) {
	return s.repo.ListByDriver(driverID)
}

func (s *Service) checkGuardRails(proposerID int64) error {
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	count, err := s.repo.CountProposedSince(proposerID, midnight)
	if err != nil {
		return err
	}
	if count >= s.cfg.MaxPerDay {
		return fmt.Errorf("daily swap limit of %d reached: %w", s.cfg.MaxPerDay, domain.ErrValidation)
	}

	last, err := s.repo.LastProposalAt(proposerID)
	if err != nil {
		return err
	}
	cooldown := time.Duration(s.cfg.CooldownMinutes) * time.Minute
	if last != nil && time.Since(*last) < cooldown {
		return fmt.Errorf("swap cooldown active, next proposal allowed at %s: %w",
			last.Add(cooldown).Format(time.RFC3339), domain.ErrValidation)
	}
	return nil
}

// scoreCompatibility evaluates the proposal from the acceptor's side. Missing
// records degrade to an unscored swap rather than blocking the proposal.
func (s *Service) scoreCompatibility(acceptorID int64, offered, requested *domain.Assignment) (Compatibility, bool) {
	acceptor, err := s.drivers.GetByID(acceptorID)
	if err != nil {
		return Compatibility{}, false
	}
	offeredPkg, err := s.packages.GetByID(offered.PackageID)
	if err != nil {
		return Compatibility{}, false
	}
	requestedPkg, err := s.packages.GetByID(requested.PackageID)
	if err != nil {
		return Compatibility{}, false
	}
	return ScoreSwap(acceptor, offeredPkg, requestedPkg, offered.PredictedDifficulty, requested.PredictedDifficulty), true
}
