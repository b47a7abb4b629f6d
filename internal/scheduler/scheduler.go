// Package scheduler runs the background jobs on cron triggers and records
// every run in the job_runs ledger.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// RunRecorder persists job run outcomes
type RunRecorder interface {
	RecordStart(jobName string) (int64, error)
	RecordFinish(runID int64, runErr error, duration time.Duration) error
}

// Scheduler manages background jobs. Each job has at most one live instance;
// an overlapping trigger is skipped, not queued.
type Scheduler struct {
	cron    *cron.Cron
	runs    RunRecorder
	jobs    map[string]Job
	running map[string]*sync.Mutex
	mu      sync.Mutex
	started bool
	log     zerolog.Logger
}

// New creates a new scheduler
func New(runs RunRecorder, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		runs:    runs,
		jobs:    make(map[string]Job),
		running: make(map[string]*sync.Mutex),
		log:     log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler; calling it twice is a no-op
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for in-flight jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job with a cron schedule (six-field, seconds first).
// Schedule examples:
//   - "0 0 6 * * *"   - 06:00 daily
//   - "@every 60s"    - every minute
func (s *Scheduler) AddJob(schedule string, job Job) error {
	s.mu.Lock()
	if _, dup := s.jobs[job.Name()]; dup {
		s.mu.Unlock()
		return fmt.Errorf("job %q already registered", job.Name())
	}
	s.jobs[job.Name()] = job
	s.running[job.Name()] = &sync.Mutex{}
	s.mu.Unlock()

	_, err := s.cron.AddFunc(schedule, func() {
		s.execute(job)
	})
	if err != nil {
		return fmt.Errorf("register job %q: %w", job.Name(), err)
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// RunNow executes a registered job immediately; the manual trigger endpoint
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	s.log.Info().Str("job", name).Msg("Running job on demand")
	return s.execute(job)
}

// JobNames lists the registered jobs
func (s *Scheduler) JobNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

func (s *Scheduler) execute(job Job) (err error) {
	s.mu.Lock()
	guard := s.running[job.Name()]
	s.mu.Unlock()

	if !guard.TryLock() {
		s.log.Warn().Str("job", job.Name()).Msg("Previous run still in flight, skipping")
		return nil
	}
	defer guard.Unlock()

	start := time.Now()
	runID, recErr := s.runs.RecordStart(job.Name())
	if recErr != nil {
		s.log.Warn().Err(recErr).Str("job", job.Name()).Msg("Failed to record job start")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %q panicked: %v", job.Name(), r)
			s.log.Error().Str("job", job.Name()).Interface("panic", r).Msg("Job panicked")
		}
		if runID > 0 {
			if recErr := s.runs.RecordFinish(runID, err, time.Since(start)); recErr != nil {
				s.log.Warn().Err(recErr).Str("job", job.Name()).Msg("Failed to record job finish")
			}
		}
	}()

	s.log.Debug().Str("job", job.Name()).Msg("Running job")
	if err = job.Run(); err != nil {
		s.log.Error().Err(err).Str("job", job.Name()).Msg("Job failed")
		return err
	}
	s.log.Debug().
		Str("job", job.Name()).
		Dur("duration", time.Since(start)).
		Msg("Job completed")
	return nil
}
