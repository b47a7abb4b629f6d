package di

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/config"
)

// Wire builds the complete dependency container in four steps:
// databases, repositories, services, background jobs.
//
// The passed context bounds the lifetime of long-lived components
// (websocket gateway, Redis client); cancel it during shutdown.
// On failure the partially built container is closed before returning.
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	c, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, err
	}

	InitializeRepositories(c, log)
	InitializeServices(ctx, c, cfg, log)

	if err := RegisterJobs(c, cfg, log); err != nil {
		c.Close()
		return nil, err
	}

	log.Info().Msg("Dependency container wired")
	return c, nil
}
