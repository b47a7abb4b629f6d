/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application
 * dependencies. The Container is the single source of truth for all service
 * instances and is passed to the server for access to services.
 */
package di

import (
	"github.com/fleetops/dispatch/internal/auth"
	"github.com/fleetops/dispatch/internal/cache"
	"github.com/fleetops/dispatch/internal/clientdata"
	"github.com/fleetops/dispatch/internal/clients/push"
	"github.com/fleetops/dispatch/internal/clients/weather"
	"github.com/fleetops/dispatch/internal/database"
	"github.com/fleetops/dispatch/internal/exporter"
	"github.com/fleetops/dispatch/internal/metrics"
	"github.com/fleetops/dispatch/internal/ml"
	"github.com/fleetops/dispatch/internal/modules/analytics"
	"github.com/fleetops/dispatch/internal/modules/assignments"
	"github.com/fleetops/dispatch/internal/modules/difficulty"
	"github.com/fleetops/dispatch/internal/modules/fairness"
	"github.com/fleetops/dispatch/internal/modules/fleet"
	"github.com/fleetops/dispatch/internal/modules/forecast"
	"github.com/fleetops/dispatch/internal/modules/health"
	"github.com/fleetops/dispatch/internal/modules/insurance"
	"github.com/fleetops/dispatch/internal/modules/swaps"
	"github.com/fleetops/dispatch/internal/realtime"
	"github.com/fleetops/dispatch/internal/scheduler"
	"github.com/fleetops/dispatch/internal/solver"
)

/**
 * Container holds all dependencies for the application.
 *
 * This is the single source of truth for all service instances.
 * The container is created by Wire() and passed to the server.
 *
 * Architecture:
 * - Databases: 4-database architecture (fleet, telemetry, ledger, cache)
 * - Clients: External integrations (push gateway, weather oracle, S3 export)
 * - Repositories: Data access layer (drivers, packages, assignments, etc.)
 * - Services: Business logic layer (pipeline, health, forecast, swaps, insurance)
 * - Scheduler: Cron-driven background jobs with run recording
 *
 * All dependencies are injected via constructor injection.
 */
type Container struct {
	// Databases (4-database architecture)
	// Each database uses SQLite with WAL mode and profile-specific PRAGMAs
	FleetDB     *database.DB // Operational state (drivers, packages, assignments, swaps)
	TelemetryDB *database.DB // High-churn sensor data (health events, GPS logs)
	LedgerDB    *database.DB // Immutable financial records (insurance payouts)
	CacheDB     *database.DB // Ephemeral operational data (API cache, job history)

	// ML model registry, loaded asynchronously at startup
	Models *ml.Registry

	// Observability
	Metrics *metrics.Registry

	// Cache backend - Redis when configured, in-memory otherwise
	Cache        cache.Cache
	CacheBackend string // "redis" or "memory", for the status surface

	// Clients - external integrations
	PushDispatcher *push.Dispatcher
	WeatherClient  *weather.Client
	Exporter       *exporter.Exporter

	// Repositories - data access layer
	DriverRepo     *fleet.DriverRepository
	PackageRepo    *fleet.PackageRepository
	GPSRepo        *fleet.GPSRepository
	AssignmentRepo *assignments.Repository
	HealthRepo     *health.Repository
	SwapRepo       *swaps.Repository
	InsuranceRepo  *insurance.Repository
	ClientData     *clientdata.Repository
	JobRuns        *scheduler.RunRepository

	// Services - business logic layer
	AuthService      *auth.Service
	FleetService     *fleet.Service
	Solver           *solver.Solver
	DifficultyScorer *difficulty.Scorer
	Optimizer        *fairness.Optimizer
	Pipeline         *assignments.Pipeline
	HealthScorer     *health.Scorer
	HealthMonitor    *health.Monitor
	ForecastService  *forecast.Service
	SwapService      *swaps.Service
	InsuranceService *insurance.Service
	AnalyticsService *analytics.Service

	// Realtime websocket surface
	Realtime *realtime.Registry
	Gateway  *realtime.Gateway

	// Background job scheduler
	Scheduler *scheduler.Scheduler
}

// Close closes all database connections in the container.
// Safe to call with partially initialized containers.
func (c *Container) Close() {
	for _, db := range []*database.DB{c.FleetDB, c.TelemetryDB, c.LedgerDB, c.CacheDB} {
		if db != nil {
			_ = db.Close()
		}
	}
}
