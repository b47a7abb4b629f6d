package di

import (
	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/clientdata"
	"github.com/fleetops/dispatch/internal/modules/assignments"
	"github.com/fleetops/dispatch/internal/modules/fleet"
	"github.com/fleetops/dispatch/internal/modules/health"
	"github.com/fleetops/dispatch/internal/modules/insurance"
	"github.com/fleetops/dispatch/internal/modules/swaps"
	"github.com/fleetops/dispatch/internal/scheduler"
)

// InitializeRepositories creates all repositories over the opened databases.
// Repositories never cross databases: fleet state lives in fleet.db,
// telemetry in telemetry.db, payouts in ledger.db, ephemera in cache.db.
func InitializeRepositories(c *Container, log zerolog.Logger) {
	c.DriverRepo = fleet.NewDriverRepository(c.FleetDB.Conn(), log)
	c.PackageRepo = fleet.NewPackageRepository(c.FleetDB.Conn(), log)
	c.AssignmentRepo = assignments.NewRepository(c.FleetDB.Conn(), log)
	c.SwapRepo = swaps.NewRepository(c.FleetDB.Conn(), log)

	c.GPSRepo = fleet.NewGPSRepository(c.TelemetryDB.Conn(), log)
	c.HealthRepo = health.NewRepository(c.TelemetryDB.Conn(), log)

	c.InsuranceRepo = insurance.NewRepository(c.LedgerDB.Conn(), log)

	c.ClientData = clientdata.NewRepository(c.CacheDB.Conn())
	c.JobRuns = scheduler.NewRunRepository(c.CacheDB.Conn(), log)

	log.Debug().Msg("Repositories initialized")
}
