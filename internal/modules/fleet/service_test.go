package fleet_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/dispatch/internal/domain"
	"github.com/fleetops/dispatch/internal/modules/assignments"
	"github.com/fleetops/dispatch/internal/modules/fleet"
	dbtest "github.com/fleetops/dispatch/internal/testing"
)

type deliveryFixture struct {
	service    *fleet.Service
	drivers    *fleet.DriverRepository
	packages   *fleet.PackageRepository
	assignRepo *assignments.Repository
	driverID   int64
	packageID  int64
	assignID   int64
}

func newDeliveryFixture(t *testing.T) *deliveryFixture {
	t.Helper()
	log := zerolog.Nop()
	db, cleanup := dbtest.NewTestDB(t, "fleet")
	t.Cleanup(cleanup)

	f := &deliveryFixture{
		drivers:    fleet.NewDriverRepository(db.Conn(), log),
		packages:   fleet.NewPackageRepository(db.Conn(), log),
		assignRepo: assignments.NewRepository(db.Conn(), log),
	}
	f.service = fleet.NewService(db.Conn(), f.drivers, f.packages, f.assignRepo, log)

	var err error
	f.driverID, err = f.drivers.Create(dbtest.NewDriverFixture(1))
	require.NoError(t, err)
	f.packageID, err = f.packages.Create(dbtest.NewPackageFixture(1))
	require.NoError(t, err)

	today := domain.OperationalDate(time.Now())
	_, _, err = f.assignRepo.CreateDaily([]assignments.DailyRecord{
		{DriverID: f.driverID, PackageID: f.packageID, OperationalDate: today, PredictedDifficulty: 42},
	})
	require.NoError(t, err)

	rows, err := f.assignRepo.ListByDate(today)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	f.assignID = rows[0].ID
	return f
}

func fptr(v float64) *float64 { return &v }
func sptr(v string) *string   { return &v }

func TestCompleteDelivery_SuccessUpdatesEverything(t *testing.T) {
	f := newDeliveryFixture(t)

	before, err := f.drivers.GetByID(f.driverID)
	require.NoError(t, err)

	delivery, err := f.service.CompleteDelivery(fleet.DeliveryOutcome{
		AssignmentID:    f.assignID,
		DriverID:        f.driverID,
		Success:         true,
		DurationMinutes: fptr(25),
	})
	require.NoError(t, err)
	assert.NotZero(t, delivery.ID)
	assert.Equal(t, f.packageID, delivery.PackageID)

	a, err := f.assignRepo.GetByID(f.assignID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentCompleted, a.Status)
	assert.NotNil(t, a.CompletedAt)

	p, err := f.packages.GetByID(f.packageID)
	require.NoError(t, err)
	assert.Equal(t, domain.PackageDelivered, p.Status)

	after, err := f.drivers.GetByID(f.driverID)
	require.NoError(t, err)
	assert.Equal(t, before.TotalDeliveries+1, after.TotalDeliveries)
	assert.Equal(t, before.SuccessfulDeliveries+1, after.SuccessfulDeliveries)
	assert.Equal(t, before.FailedDeliveries, after.FailedDeliveries)
}

func TestCompleteDelivery_FailureNeedsReason(t *testing.T) {
	f := newDeliveryFixture(t)

	_, err := f.service.CompleteDelivery(fleet.DeliveryOutcome{
		AssignmentID: f.assignID,
		DriverID:     f.driverID,
		Success:      false,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)

	// Nothing was written: the assignment is still open
	a, err := f.assignRepo.GetByID(f.assignID)
	require.NoError(t, err)
	assert.False(t, a.Status.IsTerminal())
}

func TestCompleteDelivery_FailureMarksFailed(t *testing.T) {
	f := newDeliveryFixture(t)

	_, err := f.service.CompleteDelivery(fleet.DeliveryOutcome{
		AssignmentID:  f.assignID,
		DriverID:      f.driverID,
		Success:       false,
		FailureReason: sptr("recipient unavailable"),
	})
	require.NoError(t, err)

	a, err := f.assignRepo.GetByID(f.assignID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentFailed, a.Status)

	p, err := f.packages.GetByID(f.packageID)
	require.NoError(t, err)
	assert.Equal(t, domain.PackageFailed, p.Status)

	d, err := f.drivers.GetByID(f.driverID)
	require.NoError(t, err)
	assert.Equal(t, 1, d.FailedDeliveries)
}

func TestCompleteDelivery_WrongDriverIsUnauthorized(t *testing.T) {
	f := newDeliveryFixture(t)
	other, err := f.drivers.Create(dbtest.NewDriverFixture(2))
	require.NoError(t, err)

	_, err = f.service.CompleteDelivery(fleet.DeliveryOutcome{
		AssignmentID: f.assignID,
		DriverID:     other,
		Success:      true,
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCompleteDelivery_TerminalAssignmentRejectsReplay(t *testing.T) {
	f := newDeliveryFixture(t)

	_, err := f.service.CompleteDelivery(fleet.DeliveryOutcome{
		AssignmentID: f.assignID,
		DriverID:     f.driverID,
		Success:      true,
	})
	require.NoError(t, err)

	_, err = f.service.CompleteDelivery(fleet.DeliveryOutcome{
		AssignmentID: f.assignID,
		DriverID:     f.driverID,
		Success:      true,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCompleteDelivery_UnknownAssignment(t *testing.T) {
	f := newDeliveryFixture(t)
	_, err := f.service.CompleteDelivery(fleet.DeliveryOutcome{
		AssignmentID: 9999,
		DriverID:     f.driverID,
		Success:      true,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
