package insurance

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/domain"
)

// OutcomeSource supplies per-driver terminal assignment counts for a window
type OutcomeSource interface {
	WindowOutcomes(periodStart, periodEnd string) (map[int64][2]int, error)
}

// DriverSource supplies the active fleet forming the claim population
type DriverSource interface {
	ListActive() ([]domain.Driver, error)
}

// Service evaluates claims against the fleet population and manages the
// payout ledger lifecycle.
type Service struct {
	repo       *Repository
	outcomes   OutcomeSource
	drivers    DriverSource
	thresholds Thresholds
	log        zerolog.Logger
}

// NewService wires the insurance service
func NewService(repo *Repository, outcomes OutcomeSource, drivers DriverSource, thresholds Thresholds, log zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		outcomes:   outcomes,
		drivers:    drivers,
		thresholds: thresholds,
		log:        log.With().Str("service", "insurance").Logger(),
	}
}

// EvaluateClaim evaluates one driver's window against the whole fleet and
// persists the verdict. Re-filing the same window is rejected.
func (s *Service) EvaluateClaim(driverID int64, periodStart, periodEnd string) (*domain.InsurancePayout, error) {
	if periodStart == "" || periodEnd == "" || periodStart > periodEnd {
		return nil, fmt.Errorf("invalid claim period [%s, %s]: %w", periodStart, periodEnd, domain.ErrValidation)
	}

	exists, err := s.repo.ExistsForPeriod(driverID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("claim for driver %d over [%s, %s] already evaluated: %w",
			driverID, periodStart, periodEnd, domain.ErrConflict)
	}

	claim, err := s.evaluate(driverID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	payout := toPayout(claim, periodStart, periodEnd)
	if err := s.repo.Create(payout); err != nil {
		return nil, err
	}
	return payout, nil
}

// EvaluateFleet runs the window evaluation for every active driver with
// outcomes, skipping drivers already evaluated for the window. Returns the
// number of eligible payouts created.
func (s *Service) EvaluateFleet(periodStart, periodEnd string) (int, error) {
	population, err := s.population(periodStart, periodEnd)
	if err != nil {
		return 0, err
	}

	eligible := 0
	for _, w := range population {
		exists, err := s.repo.ExistsForPeriod(w.DriverID, periodStart, periodEnd)
		if err != nil {
			return eligible, err
		}
		if exists || w.Total == 0 {
			continue
		}

		claim := Evaluate(w, population, s.thresholds)
		if !claim.Eligible {
			continue
		}
		if err := s.repo.Create(toPayout(claim, periodStart, periodEnd)); err != nil {
			return eligible, err
		}
		eligible++
	}
	if eligible > 0 {
		s.log.Info().Int("payouts", eligible).
			Str("period_start", periodStart).Str("period_end", periodEnd).
			Msg("Fleet insurance sweep found eligible drivers")
	}
	return eligible, nil
}

// History returns a driver's payout records
func (s *Service) History(driverID int64) ([]domain.InsurancePayout, error) {
	return s.repo.ListByDriver(driverID)
}

// PendingApproval returns eligible payouts awaiting an admin decision
func (s *Service) PendingApproval() ([]domain.InsurancePayout, error) {
	return s.repo.ListPendingApproval()
}

// Approve marks an eligible payout approved
func (s *Service) Approve(id int64) (*domain.InsurancePayout, error) {
	if err := s.repo.Approve(id); err != nil {
		return nil, err
	}
	return s.repo.GetByID(id)
}

// MarkPaid marks an approved payout paid
func (s *Service) MarkPaid(id int64) (*domain.InsurancePayout, error) {
	if err := s.repo.MarkPaid(id); err != nil {
		return nil, err
	}
	return s.repo.GetByID(id)
}

func (s *Service) evaluate(driverID int64, periodStart, periodEnd string) (Claim, error) {
	population, err := s.population(periodStart, periodEnd)
	if err != nil {
		return Claim{}, err
	}

	target := WindowStats{DriverID: driverID}
	for _, w := range population {
		if w.DriverID == driverID {
			target = w
			break
		}
	}
	return Evaluate(target, population, s.thresholds), nil
}

// population builds one WindowStats per active driver; drivers with no
// terminal assignments in the window contribute a zero rate.
func (s *Service) population(periodStart, periodEnd string) ([]WindowStats, error) {
	drivers, err := s.drivers.ListActive()
	if err != nil {
		return nil, fmt.Errorf("load active drivers: %w", err)
	}
	outcomes, err := s.outcomes.WindowOutcomes(periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("load window outcomes: %w", err)
	}

	out := make([]WindowStats, 0, len(drivers))
	for _, d := range drivers {
		w := WindowStats{DriverID: d.ID}
		if counts, ok := outcomes[d.ID]; ok {
			w.Total = counts[0]
			w.Failed = counts[1]
		}
		out = append(out, w)
	}
	return out, nil
}

func toPayout(c Claim, periodStart, periodEnd string) *domain.InsurancePayout {
	return &domain.InsurancePayout{
		DriverID:          c.DriverID,
		PeriodStart:       periodStart,
		PeriodEnd:         periodEnd,
		TotalTasks:        c.Total,
		FailedTasks:       c.Failed,
		DriverFailureRate: c.FailureRate,
		PopulationMean:    c.PopulationMean,
		PopulationStd:     c.PopulationStd,
		ZScore:            c.ZScore,
		ExcessFailures:    c.ExcessFailures,
		PayoutAmount:      c.PayoutAmount,
		Eligible:          c.Eligible,
		Reason:            c.Reason,
	}
}
