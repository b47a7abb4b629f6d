package analytics_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/dispatch/internal/database"
	"github.com/fleetops/dispatch/internal/domain"
	"github.com/fleetops/dispatch/internal/modules/analytics"
	"github.com/fleetops/dispatch/internal/modules/assignments"
	"github.com/fleetops/dispatch/internal/modules/fleet"
	dbtest "github.com/fleetops/dispatch/internal/testing"
)

type staticVolumes struct {
	history []fleet.DailyVolume
}

func (s *staticVolumes) DailyVolumes(days int) ([]fleet.DailyVolume, error) {
	return s.history, nil
}

func newAnalyticsFixture(t *testing.T, volumes analytics.VolumeSource) (*analytics.Service, *database.DB) {
	t.Helper()
	db, cleanup := dbtest.NewTestDB(t, "fleet")
	t.Cleanup(cleanup)
	return analytics.NewService(db.Conn(), volumes, zerolog.Nop()), db
}

func flatHistory(n int, volume float64) []fleet.DailyVolume {
	out := make([]fleet.DailyVolume, n)
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = fleet.DailyVolume{Date: day.AddDate(0, 0, i).Format("2006-01-02"), Volume: volume}
	}
	return out
}

func TestVolumeTrend_FlatSeriesSmoothsToItself(t *testing.T) {
	svc, _ := newAnalyticsFixture(t, &staticVolumes{history: flatHistory(20, 120)})

	trend, err := svc.VolumeTrend(20)
	require.NoError(t, err)
	require.Len(t, trend, 20)

	// A flat series smooths to itself once the lookback is filled
	assert.InDelta(t, 120, trend[19].SMA7, 1e-9)
	assert.InDelta(t, 120, trend[19].EMA14, 1e-9)

	// Days before the lookback fills hold zero, never NaN
	assert.Zero(t, trend[0].SMA7)
	assert.Zero(t, trend[0].EMA14)
	assert.Equal(t, "2026-08-01", trend[0].Date)
}

func TestVolumeTrend_ShortWindowSkipsOverlays(t *testing.T) {
	svc, _ := newAnalyticsFixture(t, &staticVolumes{history: flatHistory(5, 80)})

	trend, err := svc.VolumeTrend(5)
	require.NoError(t, err)
	require.Len(t, trend, 5)
	for _, p := range trend {
		assert.Equal(t, 80.0, p.Volume)
		assert.Zero(t, p.SMA7)
		assert.Zero(t, p.EMA14)
	}
}

func TestFairnessHistory(t *testing.T) {
	svc, db := newAnalyticsFixture(t, &staticVolumes{})
	log := zerolog.Nop()

	drivers := fleet.NewDriverRepository(db.Conn(), log)
	packages := fleet.NewPackageRepository(db.Conn(), log)
	assignRepo := assignments.NewRepository(db.Conn(), log)

	d1, err := drivers.Create(dbtest.NewDriverFixture(1))
	require.NoError(t, err)
	d2, err := drivers.Create(dbtest.NewDriverFixture(2))
	require.NoError(t, err)

	today := domain.OperationalDate(time.Now())
	var records []assignments.DailyRecord
	// driver1 carries three packages, driver2 carries one
	for i, spec := range []struct {
		driver     int64
		difficulty float64
	}{
		{d1, 30}, {d1, 30}, {d1, 30}, {d2, 10},
	} {
		pkgID, err := packages.Create(dbtest.NewPackageFixture(i + 1))
		require.NoError(t, err)
		records = append(records, assignments.DailyRecord{
			DriverID:            spec.driver,
			PackageID:           pkgID,
			OperationalDate:     today,
			PredictedDifficulty: spec.difficulty,
		})
	}
	_, _, err = assignRepo.CreateDaily(records)
	require.NoError(t, err)

	history, err := svc.FairnessHistory(7)
	require.NoError(t, err)
	require.Len(t, history, 1)

	day := history[0]
	assert.Equal(t, 2, day.Drivers)
	assert.Equal(t, 4, day.Packages)
	assert.Equal(t, 1, day.CountMin)
	assert.Equal(t, 3, day.CountMax)
	assert.InDelta(t, 50, day.DifficultyMean, 1e-9) // (90+10)/2
	assert.InDelta(t, 80, day.DifficultyRange, 1e-9)
	assert.InDelta(t, 0.4, day.DifficultyGini, 1e-9) // totals {90,10}
}

func TestFairnessHistory_EmptyWindow(t *testing.T) {
	svc, _ := newAnalyticsFixture(t, &staticVolumes{})
	history, err := svc.FairnessHistory(7)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestLeaderboard(t *testing.T) {
	svc, db := newAnalyticsFixture(t, &staticVolumes{})
	drivers := fleet.NewDriverRepository(db.Conn(), zerolog.Nop())

	seed := func(i, total int, rate, avgTime float64) int64 {
		id, err := drivers.Create(dbtest.NewDriverFixture(i))
		require.NoError(t, err)
		_, err = db.Conn().Exec(`
			UPDATE drivers
			SET total_deliveries = ?, success_rate = ?, avg_delivery_time_minutes = ?
			WHERE id = ?`, total, rate, avgTime, id)
		require.NoError(t, err)
		return id
	}

	best := seed(1, 50, 0.98, 22)
	second := seed(2, 200, 0.90, 25)
	third := seed(3, 100, 0.90, 28)
	seed(4, 0, 0, 0) // no deliveries yet, excluded

	board, err := svc.Leaderboard(10)
	require.NoError(t, err)
	require.Len(t, board, 3)

	assert.Equal(t, best, board[0].DriverID)
	// Equal success rates rank by volume
	assert.Equal(t, second, board[1].DriverID)
	assert.Equal(t, third, board[2].DriverID)
	assert.Equal(t, 50, board[0].TotalDeliveries)
	assert.InDelta(t, 0.98, board[0].SuccessRate, 1e-9)
}

func TestLeaderboard_LimitDefaultsAndClamps(t *testing.T) {
	svc, db := newAnalyticsFixture(t, &staticVolumes{})
	drivers := fleet.NewDriverRepository(db.Conn(), zerolog.Nop())

	for i := 1; i <= 3; i++ {
		id, err := drivers.Create(dbtest.NewDriverFixture(i))
		require.NoError(t, err)
		_, err = db.Conn().Exec(
			"UPDATE drivers SET total_deliveries = 10, success_rate = 0.9 WHERE id = ?", id)
		require.NoError(t, err)
	}

	board, err := svc.Leaderboard(0)
	require.NoError(t, err)
	assert.Len(t, board, 3)

	board, err = svc.Leaderboard(2)
	require.NoError(t, err)
	assert.Len(t, board, 2)
}
