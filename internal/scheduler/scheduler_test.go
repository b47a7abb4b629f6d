package scheduler_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/dispatch/internal/scheduler"
	dbtest "github.com/fleetops/dispatch/internal/testing"
)

type fakeJob struct {
	name    string
	err     error
	panics  bool
	block   chan struct{} // when set, Run waits on it
	mu      sync.Mutex
	runs    int
	started chan struct{}
}

func (j *fakeJob) Name() string { return j.name }

func (j *fakeJob) Run() error {
	j.mu.Lock()
	j.runs++
	j.mu.Unlock()
	if j.started != nil {
		j.started <- struct{}{}
	}
	if j.block != nil {
		<-j.block
	}
	if j.panics {
		panic("boom")
	}
	return j.err
}

func (j *fakeJob) runCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

func newRunRepo(t *testing.T) *scheduler.RunRepository {
	t.Helper()
	db, cleanup := dbtest.NewTestDB(t, "cache")
	t.Cleanup(cleanup)
	return scheduler.NewRunRepository(db.Conn(), zerolog.Nop())
}

func TestScheduler_RunNowRecordsOutcome(t *testing.T) {
	runs := newRunRepo(t)
	s := scheduler.New(runs, zerolog.Nop())
	require.NoError(t, s.AddJob("0 0 6 * * *", &fakeJob{name: "harmless"}))

	require.NoError(t, s.RunNow("harmless"))

	recent, err := runs.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "harmless", recent[0].JobName)
	assert.Equal(t, "success", recent[0].Status)
	require.NotNil(t, recent[0].FinishedAt)
	assert.Nil(t, recent[0].Error)
}

func TestScheduler_FailedRunRecordsError(t *testing.T) {
	runs := newRunRepo(t)
	s := scheduler.New(runs, zerolog.Nop())
	require.NoError(t, s.AddJob("0 0 6 * * *", &fakeJob{name: "broken", err: errors.New("no packages")}))

	err := s.RunNow("broken")
	require.Error(t, err)

	recent, err := runs.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "failed", recent[0].Status)
	require.NotNil(t, recent[0].Error)
	assert.Contains(t, *recent[0].Error, "no packages")
}

func TestScheduler_PanicIsContained(t *testing.T) {
	runs := newRunRepo(t)
	s := scheduler.New(runs, zerolog.Nop())
	require.NoError(t, s.AddJob("0 0 6 * * *", &fakeJob{name: "panicky", panics: true}))

	err := s.RunNow("panicky")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	recent, err := runs.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "failed", recent[0].Status)
}

func TestScheduler_OverlappingRunIsSkipped(t *testing.T) {
	runs := newRunRepo(t)
	s := scheduler.New(runs, zerolog.Nop())
	job := &fakeJob{name: "slow", block: make(chan struct{}), started: make(chan struct{}, 1)}
	require.NoError(t, s.AddJob("0 0 6 * * *", job))

	done := make(chan error, 1)
	go func() { done <- s.RunNow("slow") }()
	<-job.started

	// The second trigger must return immediately without running the job again
	require.NoError(t, s.RunNow("slow"))
	assert.Equal(t, 1, job.runCount())

	close(job.block)
	require.NoError(t, <-done)
}

func TestScheduler_DuplicateAndUnknownJobs(t *testing.T) {
	s := scheduler.New(newRunRepo(t), zerolog.Nop())
	require.NoError(t, s.AddJob("0 0 6 * * *", &fakeJob{name: "once"}))

	assert.Error(t, s.AddJob("0 0 7 * * *", &fakeJob{name: "once"}))
	assert.Error(t, s.AddJob("not a schedule", &fakeJob{name: "other"}))
	assert.Error(t, s.RunNow("never-registered"))

	assert.Equal(t, []string{"once"}, s.JobNames())
}

func TestRunRepository_PruneOlderThan(t *testing.T) {
	db, cleanup := dbtest.NewTestDB(t, "cache")
	t.Cleanup(cleanup)
	runs := scheduler.NewRunRepository(db.Conn(), zerolog.Nop())

	id, err := runs.RecordStart("ancient")
	require.NoError(t, err)
	require.NoError(t, runs.RecordFinish(id, nil, time.Second))
	_, err = db.Conn().Exec(
		"UPDATE job_runs SET started_at = datetime('now', '-40 days') WHERE id = ?", id)
	require.NoError(t, err)

	_, err = runs.RecordStart("fresh")
	require.NoError(t, err)

	pruned, err := runs.PruneOlderThan(30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	recent, err := runs.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "fresh", recent[0].JobName)
}
