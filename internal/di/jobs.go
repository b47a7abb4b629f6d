package di

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/config"
	"github.com/fleetops/dispatch/internal/scheduler"
)

// RegisterJobs creates the scheduler and registers the background jobs:
//
//   - daily_assignment: the 06:00 fair-assignment batch
//   - forecast_refresh: midnight forecast cache rebuild
//   - health_monitor:   interval sweep over driver health scores
//   - learning_export:  nightly training-data upload (when configured)
//   - nightly_cleanup:  retention pruning across all databases
//
// Cron expressions come from configuration; the health monitor runs on the
// configured interval instead of a cron spec.
func RegisterJobs(c *Container, cfg *config.Config, log zerolog.Logger) error {
	c.Scheduler = scheduler.New(c.JobRuns, log)

	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.Schedule.DailyAssignment, scheduler.NewDailyAssignmentJob(c.Pipeline)},
		{cfg.Schedule.ForecastRefresh, scheduler.NewForecastRefreshJob(c.ForecastService)},
		{fmt.Sprintf("@every %ds", cfg.Health.MonitorIntervalSecs), scheduler.NewHealthMonitorJob(c.HealthMonitor)},
		{cfg.Schedule.LearningExport, scheduler.NewLearningExportJob(c.Exporter, log)},
		{cfg.Schedule.NightlyCleanup, scheduler.NewNightlyCleanupJob(
			c.GPSRepo, c.HealthRepo, c.JobRuns, c.SwapRepo, c.ClientData,
			time.Duration(cfg.Swap.NotificationTimeoutMinutes)*time.Minute, log)},
	}

	for _, j := range jobs {
		if err := c.Scheduler.AddJob(j.schedule, j.job); err != nil {
			return fmt.Errorf("failed to register job %q: %w", j.job.Name(), err)
		}
	}

	log.Info().Int("jobs", len(jobs)).Msg("Background jobs registered")
	return nil
}
