// Package main is the entry point for the dispatch fleet control plane.
// The service scores package difficulty, distributes daily assignments
// fairly across the fleet, monitors driver health, forecasts volume and
// earnings, and runs the swap marketplace and insurance ledger.
//
// The application follows clean architecture principles:
// - Domain layer is pure (no infrastructure dependencies)
// - Dependency injection via DI container
// - Repository pattern for data access
// - Service layer for business logic
// - HTTP handlers for API endpoints
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetops/dispatch/internal/config"
	"github.com/fleetops/dispatch/internal/di"
	"github.com/fleetops/dispatch/internal/server"
	"github.com/fleetops/dispatch/pkg/logger"
)

// main orchestrates the startup sequence:
//  1. Load configuration from environment variables
//  2. Initialize structured logging
//  3. Wire all dependencies (databases, repositories, services, jobs)
//  4. Load ML model artifacts asynchronously
//  5. Start the cron scheduler and HTTP server
//  6. Wait for a shutdown signal and drain gracefully
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger not configured yet
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Int("port", cfg.Port).
		Bool("dev_mode", cfg.DevMode).
		Str("data_dir", cfg.DataDir).
		Msg("Dispatch control plane starting")

	// Root context bounds the websocket gateway and Redis client lifetimes
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := di.Wire(rootCtx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Model artifacts load in the background; endpoints that need a model
	// fall back to heuristics until the registry reports ready.
	container.Models.LoadAsync()

	container.Scheduler.Start()

	srv := server.New(server.Config{
		Log:       log,
		Container: container,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	// Drain in dependency order: stop accepting HTTP, stop the scheduler,
	// close live sockets, then release the databases via the deferred Close.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	container.Scheduler.Stop()
	container.Realtime.Shutdown()
	cancel()

	log.Info().Msg("Dispatch control plane stopped")
}
