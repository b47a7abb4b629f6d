package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/domain"
	"github.com/fleetops/dispatch/internal/modules/assignments"
	"github.com/fleetops/dispatch/internal/modules/health"
)

// Default cron expressions for the five background jobs (six-field)
const (
	DailyAssignmentSchedule = "0 0 6 * * *"
	ForecastRefreshSchedule = "0 0 0 * * *"
	HealthMonitorSchedule   = "@every 60s"
	LearningExportSchedule  = "0 0 23 * * *"
	NightlyCleanupSchedule  = "0 0 3 * * *"
)

const jobTimeout = 10 * time.Minute

// AssignmentRunner runs the daily distribution pipeline
type AssignmentRunner interface {
	Run(ctx context.Context, date string) (*assignments.RunSummary, error)
}

// DailyAssignmentJob distributes pending packages every morning
type DailyAssignmentJob struct {
	pipeline AssignmentRunner
}

// NewDailyAssignmentJob creates the 06:00 distribution job
func NewDailyAssignmentJob(pipeline AssignmentRunner) *DailyAssignmentJob {
	return &DailyAssignmentJob{pipeline: pipeline}
}

// Name implements Job
func (j *DailyAssignmentJob) Name() string { return "daily-assignment" }

// Run implements Job
func (j *DailyAssignmentJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	_, err := j.pipeline.Run(ctx, domain.OperationalDate(time.Now()))
	return err
}

// ForecastRefresher warms the volume forecast cache
type ForecastRefresher interface {
	Refresh(ctx context.Context) error
}

// ForecastRefreshJob rebuilds the default forecast at midnight
type ForecastRefreshJob struct {
	forecast ForecastRefresher
}

// NewForecastRefreshJob creates the midnight forecast refresh job
func NewForecastRefreshJob(forecast ForecastRefresher) *ForecastRefreshJob {
	return &ForecastRefreshJob{forecast: forecast}
}

// Name implements Job
func (j *ForecastRefreshJob) Name() string { return "daily-forecast-refresh" }

// Run implements Job
func (j *ForecastRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	return j.forecast.Refresh(ctx)
}

// HealthSweeper evaluates the fleet's latest wearable readings
type HealthSweeper interface {
	Sweep(ctx context.Context) (*health.SweepResult, error)
}

// HealthMonitorJob sweeps driver health every minute
type HealthMonitorJob struct {
	monitor HealthSweeper
}

// NewHealthMonitorJob creates the per-minute health sweep job
func NewHealthMonitorJob(monitor HealthSweeper) *HealthMonitorJob {
	return &HealthMonitorJob{monitor: monitor}
}

// Name implements Job
func (j *HealthMonitorJob) Name() string { return "health-monitor" }

// Run implements Job
func (j *HealthMonitorJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, err := j.monitor.Sweep(ctx)
	return err
}

// LearningExporter builds and uploads the nightly training snapshot
type LearningExporter interface {
	Export(ctx context.Context) error
	Enabled() bool
}

// LearningExportJob ships the day's outcomes for model retraining
type LearningExportJob struct {
	exporter LearningExporter
	log      zerolog.Logger
}

// NewLearningExportJob creates the 23:00 export job
func NewLearningExportJob(exporter LearningExporter, log zerolog.Logger) *LearningExportJob {
	return &LearningExportJob{
		exporter: exporter,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// Name implements Job
func (j *LearningExportJob) Name() string { return "nightly-learning-export" }

// Run implements Job
func (j *LearningExportJob) Run() error {
	if !j.exporter.Enabled() {
		j.log.Debug().Msg("Learning export disabled, skipping")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	return j.exporter.Export(ctx)
}

// Pruner drops rows older than a retention window
type Pruner interface {
	PruneOlderThan(days int) (int64, error)
}

// SwapExpirer rejects stale pending swaps
type SwapExpirer interface {
	ExpireStalePending(olderThan time.Duration) (int64, error)
}

// CachePurger drops expired api_cache rows
type CachePurger interface {
	PurgeExpired() (int64, error)
}

// NightlyCleanupJob enforces the retention windows: GPS logs 30 days, health
// events 90 days, job runs 90 days, pending swaps past the configured
// notification timeout, and expired API cache rows.
type NightlyCleanupJob struct {
	gps         Pruner
	health      Pruner
	runs        Pruner
	swaps       SwapExpirer
	apiCache    CachePurger
	swapTimeout time.Duration
	log         zerolog.Logger
}

// NewNightlyCleanupJob creates the 03:00 retention job. swapTimeout is how
// long a swap proposal may stay pending before the sweep rejects it.
func NewNightlyCleanupJob(gps, health, runs Pruner, swaps SwapExpirer, apiCache CachePurger, swapTimeout time.Duration, log zerolog.Logger) *NightlyCleanupJob {
	return &NightlyCleanupJob{
		gps:         gps,
		health:      health,
		runs:        runs,
		swaps:       swaps,
		apiCache:    apiCache,
		swapTimeout: swapTimeout,
		log:         log.With().Str("component", "cleanup").Logger(),
	}
}

// Name implements Job
func (j *NightlyCleanupJob) Name() string { return "nightly-cleanup" }

// Run implements Job
func (j *NightlyCleanupJob) Run() error {
	gps, err := j.gps.PruneOlderThan(30)
	if err != nil {
		return err
	}
	health, err := j.health.PruneOlderThan(90)
	if err != nil {
		return err
	}
	runs, err := j.runs.PruneOlderThan(90)
	if err != nil {
		return err
	}
	swaps, err := j.swaps.ExpireStalePending(j.swapTimeout)
	if err != nil {
		return err
	}
	cached, err := j.apiCache.PurgeExpired()
	if err != nil {
		return err
	}

	j.log.Info().
		Int64("gps_pruned", gps).
		Int64("health_pruned", health).
		Int64("job_runs_pruned", runs).
		Int64("swaps_expired", swaps).
		Int64("cache_purged", cached).
		Msg("Nightly cleanup finished")
	return nil
}
