package swaps_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/dispatch/internal/domain"
	"github.com/fleetops/dispatch/internal/modules/assignments"
	"github.com/fleetops/dispatch/internal/modules/fleet"
	"github.com/fleetops/dispatch/internal/modules/swaps"
	dbtest "github.com/fleetops/dispatch/internal/testing"
)

type swapFixture struct {
	db          *sql.DB
	service     *swaps.Service
	repo        *swaps.Repository
	assignments *assignments.Repository
	packages    *fleet.PackageRepository
	notifier    *dbtest.NotifyRecorder
	driver1     int64
	driver2     int64
	assign1     int64 // driver1's assignment
	assign2     int64 // driver2's assignment
}

func newSwapFixture(t *testing.T, cfg swaps.Config) *swapFixture {
	t.Helper()
	log := zerolog.Nop()
	db, cleanup := dbtest.NewTestDB(t, "fleet")
	t.Cleanup(cleanup)

	drivers := fleet.NewDriverRepository(db.Conn(), log)
	packages := fleet.NewPackageRepository(db.Conn(), log)
	assignRepo := assignments.NewRepository(db.Conn(), log)
	swapRepo := swaps.NewRepository(db.Conn(), log)
	notifier := &dbtest.NotifyRecorder{}

	f := &swapFixture{
		db:          db.Conn(),
		repo:        swapRepo,
		assignments: assignRepo,
		packages:    packages,
		notifier:    notifier,
		service:     swaps.NewService(swapRepo, assignRepo, drivers, packages, notifier, cfg, log),
	}

	var err error
	f.driver1, err = drivers.Create(dbtest.NewDriverFixture(1))
	require.NoError(t, err)
	f.driver2, err = drivers.Create(dbtest.NewDriverFixture(2))
	require.NoError(t, err)

	pkg1, err := packages.Create(dbtest.NewPackageFixture(1))
	require.NoError(t, err)
	pkg2, err := packages.Create(dbtest.NewPackageFixture(2))
	require.NoError(t, err)

	today := domain.OperationalDate(time.Now())
	created, _, err := assignRepo.CreateDaily([]assignments.DailyRecord{
		{DriverID: f.driver1, PackageID: pkg1, OperationalDate: today, PredictedDifficulty: 40},
		{DriverID: f.driver2, PackageID: pkg2, OperationalDate: today, PredictedDifficulty: 60},
	})
	require.NoError(t, err)
	require.Equal(t, 2, created)

	rows, err := assignRepo.ListByDate(today)
	require.NoError(t, err)
	for _, a := range rows {
		switch a.DriverID {
		case f.driver1:
			f.assign1 = a.ID
		case f.driver2:
			f.assign2 = a.ID
		}
	}
	require.NotZero(t, f.assign1)
	require.NotZero(t, f.assign2)
	return f
}

func defaultConfig() swaps.Config {
	return swaps.Config{MaxPerDay: 5, CooldownMinutes: 0}
}

func TestPropose_CreatesPendingSwapAndNotifiesAcceptor(t *testing.T) {
	f := newSwapFixture(t, defaultConfig())

	swap, err := f.service.Propose(context.Background(), f.driver1, f.assign1, f.assign2, "closer to home")
	require.NoError(t, err)

	assert.Equal(t, domain.SwapPending, swap.Status)
	assert.Equal(t, f.driver1, swap.ProposerID)
	assert.Equal(t, f.driver2, swap.AcceptorID)
	assert.NotEmpty(t, swap.ID)

	require.Equal(t, 1, f.notifier.Count())
	assert.Equal(t, f.driver2, f.notifier.Notifications[0].DriverID)
}

func TestPropose_RejectsSelfSwap(t *testing.T) {
	f := newSwapFixture(t, defaultConfig())
	_, err := f.service.Propose(context.Background(), f.driver1, f.assign1, f.assign1, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPropose_RejectsForeignOffer(t *testing.T) {
	f := newSwapFixture(t, defaultConfig())
	// driver2 tries to offer driver1's assignment
	_, err := f.service.Propose(context.Background(), f.driver2, f.assign1, f.assign2, "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestPropose_RejectsRequestingOwnAssignment(t *testing.T) {
	f := newSwapFixture(t, defaultConfig())

	// Give driver1 a second assignment and have them request it
	pkg3, err := f.packages.Create(dbtest.NewPackageFixture(3))
	require.NoError(t, err)
	today := domain.OperationalDate(time.Now())
	_, _, err = f.assignments.CreateDaily([]assignments.DailyRecord{
		{DriverID: f.driver1, PackageID: pkg3, OperationalDate: today, PredictedDifficulty: 55},
	})
	require.NoError(t, err)

	rows, err := f.assignments.ListByDriverAndDate(f.driver1, today)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	_, err = f.service.Propose(context.Background(), f.driver1, rows[0].ID, rows[1].ID, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPropose_DailyCapEnforced(t *testing.T) {
	f := newSwapFixture(t, swaps.Config{MaxPerDay: 1, CooldownMinutes: 0})

	_, err := f.service.Propose(context.Background(), f.driver1, f.assign1, f.assign2, "")
	require.NoError(t, err)

	_, err = f.service.Propose(context.Background(), f.driver1, f.assign1, f.assign2, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "daily swap limit")
}

func TestPropose_CooldownEnforced(t *testing.T) {
	f := newSwapFixture(t, swaps.Config{MaxPerDay: 10, CooldownMinutes: 60})

	_, err := f.service.Propose(context.Background(), f.driver1, f.assign1, f.assign2, "")
	require.NoError(t, err)

	_, err = f.service.Propose(context.Background(), f.driver1, f.assign1, f.assign2, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "cooldown")
}

func TestAccept_ExchangesAssignments(t *testing.T) {
	f := newSwapFixture(t, defaultConfig())

	swap, err := f.service.Propose(context.Background(), f.driver1, f.assign1, f.assign2, "")
	require.NoError(t, err)

	done, err := f.service.Accept(context.Background(), swap.ID, f.driver2)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)

	// Ownership exchanged both ways
	a1, err := f.assignments.GetByID(f.assign1)
	require.NoError(t, err)
	assert.Equal(t, f.driver2, a1.DriverID)

	a2, err := f.assignments.GetByID(f.assign2)
	require.NoError(t, err)
	assert.Equal(t, f.driver1, a2.DriverID)

	// Proposer was told
	require.Equal(t, 2, f.notifier.Count())
	assert.Equal(t, f.driver1, f.notifier.Notifications[1].DriverID)
}

func TestAccept_OnlyAddressedDriverMayAccept(t *testing.T) {
	f := newSwapFixture(t, defaultConfig())
	swap, err := f.service.Propose(context.Background(), f.driver1, f.assign1, f.assign2, "")
	require.NoError(t, err)

	_, err = f.service.Accept(context.Background(), swap.ID, f.driver1)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAccept_CompletedSwapCannotBeAcceptedAgain(t *testing.T) {
	f := newSwapFixture(t, defaultConfig())
	swap, err := f.service.Propose(context.Background(), f.driver1, f.assign1, f.assign2, "")
	require.NoError(t, err)

	_, err = f.service.Accept(context.Background(), swap.ID, f.driver2)
	require.NoError(t, err)

	// Swap is no longer pending: a second accept is a validation failure
	_, err = f.service.Accept(context.Background(), swap.ID, f.driver2)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCancel_OnlyProposerWhilePending(t *testing.T) {
	f := newSwapFixture(t, defaultConfig())
	swap, err := f.service.Propose(context.Background(), f.driver1, f.assign1, f.assign2, "")
	require.NoError(t, err)

	assert.ErrorIs(t, f.service.Cancel(swap.ID, f.driver2), domain.ErrUnauthorized)
	require.NoError(t, f.service.Cancel(swap.ID, f.driver1))

	got, err := f.repo.GetByID(swap.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapCancelled, got.Status)

	// Cancelled swaps cannot be cancelled again
	assert.ErrorIs(t, f.service.Cancel(swap.ID, f.driver1), domain.ErrValidation)
}

func TestMarketplace_ListsPendingForAcceptor(t *testing.T) {
	f := newSwapFixture(t, defaultConfig())
	swap, err := f.service.Propose(context.Background(), f.driver1, f.assign1, f.assign2, "")
	require.NoError(t, err)

	listed, err := f.service.Marketplace(f.driver2)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, swap.ID, listed[0].ID)

	// Nothing addressed to the proposer
	empty, err := f.service.Marketplace(f.driver1)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestExpireStalePending(t *testing.T) {
	f := newSwapFixture(t, defaultConfig())
	swap, err := f.service.Propose(context.Background(), f.driver1, f.assign1, f.assign2, "")
	require.NoError(t, err)

	// Nothing is older than an hour yet
	n, err := f.repo.ExpireStalePending(time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Everything is older than zero
	n, err = f.repo.ExpireStalePending(0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := f.repo.GetByID(swap.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapRejected, got.Status)
}

func TestExpireStalePending_NotificationTimeoutWindow(t *testing.T) {
	f := newSwapFixture(t, defaultConfig())
	swap, err := f.service.Propose(context.Background(), f.driver1, f.assign1, f.assign2, "")
	require.NoError(t, err)

	// Backdate the proposal past the 10-minute notification timeout
	_, err = f.db.Exec(
		"UPDATE swap_requests SET proposed_at = datetime('now', '-30 minutes') WHERE id = ?", swap.ID)
	require.NoError(t, err)

	n, err := f.repo.ExpireStalePending(10 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := f.repo.GetByID(swap.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapRejected, got.Status)
}
