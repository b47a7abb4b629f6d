package assignments

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/fleetops/dispatch/internal/domain"
	"github.com/fleetops/dispatch/internal/metrics"
	"github.com/fleetops/dispatch/internal/ml"
	"github.com/fleetops/dispatch/internal/modules/difficulty"
	"github.com/fleetops/dispatch/internal/modules/fairness"
)

// DriverSource supplies the pipeline's driver snapshot
type DriverSource interface {
	ListActive() ([]domain.Driver, error)
}

// PackageSource supplies the pipeline's pending-package snapshot
type PackageSource interface {
	ListPending() ([]domain.Package, error)
}

// Pusher dispatches best-effort notifications
type Pusher interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// Pipeline runs the daily fair-assignment batch: score, optimize, persist,
// notify. Each step is transactional on its own; the persist step is one
// database transaction.
type Pipeline struct {
	drivers   DriverSource
	packages  PackageSource
	scorer    *difficulty.Scorer
	optimizer *fairness.Optimizer
	repo      *Repository
	models    *ml.Registry
	pusher    Pusher
	metrics   *metrics.Registry
	cfg       fairness.Config
	log       zerolog.Logger
}

// NewPipeline wires the daily assignment pipeline
func NewPipeline(
	drivers DriverSource,
	packages PackageSource,
	scorer *difficulty.Scorer,
	optimizer *fairness.Optimizer,
	repo *Repository,
	models *ml.Registry,
	pusher Pusher,
	m *metrics.Registry,
	cfg fairness.Config,
	log zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		drivers:   drivers,
		packages:  packages,
		scorer:    scorer,
		optimizer: optimizer,
		repo:      repo,
		models:    models,
		pusher:    pusher,
		metrics:   m,
		cfg:       cfg,
		log:       log.With().Str("service", "assignment_pipeline").Logger(),
	}
}

// RunSummary reports what one pipeline run did
type RunSummary struct {
	OperationalDate string           `json:"operational_date"`
	Drivers         int              `json:"drivers"`
	Packages        int              `json:"packages"`
	Created         int              `json:"created"`
	Skipped         int              `json:"skipped"`
	Path            fairness.Path    `json:"path"`
	Warning         string           `json:"warning,omitempty"`
	Metrics         fairness.Metrics `json:"metrics"`
}

// Run executes the pipeline for one operational date. Re-running with the
// same pending set is idempotent: rows already present for (package, date)
// are skipped by the persistence guard.
func (p *Pipeline) Run(ctx context.Context, date string) (*RunSummary, error) {
	start := time.Now()

	drivers, err := p.drivers.ListActive()
	if err != nil {
		return nil, fmt.Errorf("load driver snapshot: %w", err)
	}
	packages, err := p.packages.ListPending()
	if err != nil {
		return nil, fmt.Errorf("load package snapshot: %w", err)
	}
	if len(drivers) == 0 || len(packages) == 0 {
		p.log.Info().
			Int("drivers", len(drivers)).
			Int("packages", len(packages)).
			Msg("Nothing to assign today")
		return &RunSummary{OperationalDate: date, Drivers: len(drivers), Packages: len(packages)}, nil
	}

	d := p.scorer.ScoreMatrix(drivers, packages)

	result, err := p.optimizer.Distribute(ctx, d, p.cfg)
	if err != nil {
		p.metrics.OptimizerRuns.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("distribute packages: %w", err)
	}
	p.metrics.OptimizerRuns.WithLabelValues(string(result.Path)).Inc()
	p.metrics.OptimizerSolveSeconds.Observe(time.Since(start).Seconds())

	records := p.buildRecords(drivers, packages, d, result, date)
	created, skipped, err := p.repo.CreateDaily(records)
	if err != nil {
		return nil, fmt.Errorf("persist distribution: %w", err)
	}
	p.metrics.AssignmentsCreated.Add(float64(created))

	p.notify(ctx, drivers, result)

	summary := &RunSummary{
		OperationalDate: date,
		Drivers:         len(drivers),
		Packages:        len(packages),
		Created:         created,
		Skipped:         skipped,
		Path:            result.Path,
		Warning:         result.Warning,
		Metrics:         result.Metrics,
	}
	p.log.Info().
		Str("date", date).
		Str("path", string(result.Path)).
		Int("created", created).
		Int("skipped", skipped).
		Float64("gini", result.Metrics.Gini).
		Dur("elapsed", time.Since(start)).
		Msg("Daily assignment run finished")
	return summary, nil
}

func (p *Pipeline) buildRecords(
	drivers []domain.Driver,
	packages []domain.Package,
	d *mat.Dense,
	result *fairness.Result,
	date string,
) []DailyRecord {
	explainer, haveExplainer := p.models.Explainer()
	forest, haveForest := p.models.Difficulty()

	var records []DailyRecord
	for i, pkgIdxs := range result.PackagesByDriver {
		for _, j := range pkgIdxs {
			rec := DailyRecord{
				DriverID:            drivers[i].ID,
				PackageID:           packages[j].ID,
				OperationalDate:     date,
				PredictedDifficulty: d.At(i, j),
			}
			if haveExplainer && haveForest {
				rec.Explanation = explanationBlob(explainer, forest, &drivers[i], &packages[j])
			}
			records = append(records, rec)
		}
	}
	return records
}

// explanationBlob stores the top feature attributions as JSON on the
// assignment. Any failure leaves the column NULL, never fails the run.
func explanationBlob(explainer *ml.Explainer, forest *ml.Forest, d *domain.Driver, pkg *domain.Package) *string {
	attrs := explainer.Explain(forest, difficulty.Features(d, pkg))
	if len(attrs) == 0 {
		return nil
	}
	sort.Slice(attrs, func(a, b int) bool {
		return abs(attrs[a].Contribution) > abs(attrs[b].Contribution)
	})
	if len(attrs) > 5 {
		attrs = attrs[:5]
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

// notify sends one best-effort push per driver who received packages.
// Failures are logged and never retried inline.
func (p *Pipeline) notify(ctx context.Context, drivers []domain.Driver, result *fairness.Result) {
	for i, pkgIdxs := range result.PackagesByDriver {
		if len(pkgIdxs) == 0 || drivers[i].PushToken == nil {
			continue
		}
		body := fmt.Sprintf("You have %d new packages for today", len(pkgIdxs))
		err := p.pusher.Send(ctx, *drivers[i].PushToken, "New assignments", body, map[string]string{
			"type":  "new_assignments",
			"count": fmt.Sprintf("%d", len(pkgIdxs)),
		})
		if err != nil {
			p.log.Warn().Err(err).Int64("driver_id", drivers[i].ID).Msg("Assignment notification failed")
		}
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
