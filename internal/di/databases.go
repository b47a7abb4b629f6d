package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/config"
	"github.com/fleetops/dispatch/internal/database"
)

// InitializeDatabases opens the four-database architecture and applies
// schema migrations. On any failure, databases opened so far are closed.
//
//   - fleet.db:     operational state, standard profile
//   - telemetry.db: high-churn sensor data, standard profile
//   - ledger.db:    immutable payout records, maximum-safety profile
//   - cache.db:     ephemeral data, maximum-speed profile
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	c := &Container{}

	specs := []struct {
		name    string
		profile database.DatabaseProfile
		target  **database.DB
	}{
		{"fleet", database.ProfileStandard, &c.FleetDB},
		{"telemetry", database.ProfileStandard, &c.TelemetryDB},
		{"ledger", database.ProfileLedger, &c.LedgerDB},
		{"cache", database.ProfileCache, &c.CacheDB},
	}

	for _, spec := range specs {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, spec.name+".db"),
			Profile: spec.profile,
			Name:    spec.name,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to open %s database: %w", spec.name, err)
		}
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			c.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", spec.name, err)
		}
		*spec.target = db
		log.Debug().Str("db", spec.name).Str("profile", string(spec.profile)).Msg("Database ready")
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return c, nil
}
