package scheduler_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/dispatch/internal/scheduler"
)

type fakePruner struct {
	days []int
}

func (p *fakePruner) PruneOlderThan(days int) (int64, error) {
	p.days = append(p.days, days)
	return 1, nil
}

type fakeSwapExpirer struct {
	olderThan time.Duration
}

func (e *fakeSwapExpirer) ExpireStalePending(olderThan time.Duration) (int64, error) {
	e.olderThan = olderThan
	return 1, nil
}

type fakeCachePurger struct {
	called bool
}

func (p *fakeCachePurger) PurgeExpired() (int64, error) {
	p.called = true
	return 1, nil
}

func TestNightlyCleanup_UsesConfiguredSwapTimeout(t *testing.T) {
	gps := &fakePruner{}
	health := &fakePruner{}
	runs := &fakePruner{}
	swaps := &fakeSwapExpirer{}
	apiCache := &fakeCachePurger{}

	job := scheduler.NewNightlyCleanupJob(
		gps, health, runs, swaps, apiCache, 10*time.Minute, zerolog.Nop())
	require.NoError(t, job.Run())

	// The sweep expires swaps at the configured notification timeout,
	// not a fixed retention window
	assert.Equal(t, 10*time.Minute, swaps.olderThan)

	assert.Equal(t, []int{30}, gps.days)
	assert.Equal(t, []int{90}, health.days)
	assert.Equal(t, []int{90}, runs.days)
	assert.True(t, apiCache.called)
}
