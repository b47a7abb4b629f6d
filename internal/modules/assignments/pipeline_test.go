package assignments_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/dispatch/internal/domain"
	"github.com/fleetops/dispatch/internal/metrics"
	"github.com/fleetops/dispatch/internal/ml"
	"github.com/fleetops/dispatch/internal/modules/assignments"
	"github.com/fleetops/dispatch/internal/modules/difficulty"
	"github.com/fleetops/dispatch/internal/modules/fairness"
	"github.com/fleetops/dispatch/internal/modules/fleet"
	"github.com/fleetops/dispatch/internal/solver"
	dbtest "github.com/fleetops/dispatch/internal/testing"
)

type pipelineFixture struct {
	pipeline *assignments.Pipeline
	repo     *assignments.Repository
	drivers  *fleet.DriverRepository
	packages *fleet.PackageRepository
	pusher   *dbtest.PushRecorder
	today    string
}

func newPipelineFixture(t *testing.T, cfg fairness.Config) *pipelineFixture {
	t.Helper()
	log := zerolog.Nop()
	db, cleanup := dbtest.NewTestDB(t, "fleet")
	t.Cleanup(cleanup)

	models := ml.NewRegistry(t.TempDir(), log)
	models.Load()

	f := &pipelineFixture{
		repo:     assignments.NewRepository(db.Conn(), log),
		drivers:  fleet.NewDriverRepository(db.Conn(), log),
		packages: fleet.NewPackageRepository(db.Conn(), log),
		pusher:   &dbtest.PushRecorder{},
		today:    domain.OperationalDate(time.Now()),
	}
	scorer := difficulty.NewScorer(models, log)
	optimizer := fairness.New(solver.New(log), log)
	f.pipeline = assignments.NewPipeline(
		f.drivers, f.packages, scorer, optimizer, f.repo,
		models, f.pusher, metrics.New(), cfg, log)
	return f
}

func smallFleetConfig() fairness.Config {
	return fairness.Config{KMin: 1, KMax: 3, Tolerance: 10, Budget: 30 * time.Second}
}

func TestPipelineRun_AssignsEveryPendingPackage(t *testing.T) {
	f := newPipelineFixture(t, smallFleetConfig())

	for i := 1; i <= 2; i++ {
		id, err := f.drivers.Create(dbtest.NewDriverFixture(i))
		require.NoError(t, err)
		require.NoError(t, f.drivers.SetPushToken(id, "expo-token"))
	}
	for i := 1; i <= 4; i++ {
		_, err := f.packages.Create(dbtest.NewPackageFixture(i))
		require.NoError(t, err)
	}

	summary, err := f.pipeline.Run(context.Background(), f.today)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Drivers)
	assert.Equal(t, 4, summary.Packages)
	assert.Equal(t, 4, summary.Created)
	assert.Zero(t, summary.Skipped)

	rows, err := f.repo.ListByDate(f.today)
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	// Neutral 50s everywhere: every assignment carries the flat prediction
	for _, a := range rows {
		assert.Equal(t, 50.0, a.PredictedDifficulty)
	}

	// One push per driver who received packages
	assert.Equal(t, 2, f.pusher.Count())
}

func TestPipelineRun_ReRunIsIdempotent(t *testing.T) {
	f := newPipelineFixture(t, smallFleetConfig())

	_, err := f.drivers.Create(dbtest.NewDriverFixture(1))
	require.NoError(t, err)
	for i := 1; i <= 2; i++ {
		_, err := f.packages.Create(dbtest.NewPackageFixture(i))
		require.NoError(t, err)
	}

	first, err := f.pipeline.Run(context.Background(), f.today)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	// The first run moved the packages out of pending, so the second
	// snapshot is empty and no rows are written.
	second, err := f.pipeline.Run(context.Background(), f.today)
	require.NoError(t, err)
	assert.Zero(t, second.Created)

	rows, err := f.repo.ListByDate(f.today)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestPipelineRun_NothingToAssign(t *testing.T) {
	f := newPipelineFixture(t, smallFleetConfig())

	summary, err := f.pipeline.Run(context.Background(), f.today)
	require.NoError(t, err)
	assert.Zero(t, summary.Created)
	assert.Zero(t, f.pusher.Count())
}
