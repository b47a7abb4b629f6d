package di

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/auth"
	"github.com/fleetops/dispatch/internal/cache"
	"github.com/fleetops/dispatch/internal/clients/push"
	"github.com/fleetops/dispatch/internal/clients/weather"
	"github.com/fleetops/dispatch/internal/config"
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
	"github.com/fleetops/dispatch/internal/solver"
)

// InitializeServices creates all services over the repositories.
// Order matters: shared infrastructure (models, metrics, cache, clients)
// first, then the realtime registry, then the services that depend on them.
func InitializeServices(ctx context.Context, c *Container, cfg *config.Config, log zerolog.Logger) {
	c.Models = ml.NewRegistry(cfg.ModelDir, log)
	c.Metrics = metrics.New()

	// Cache backend: Redis when configured, degrading to in-memory when the
	// connection fails so a cache outage never blocks startup.
	c.Cache = cache.NewMemory()
	c.CacheBackend = "memory"
	if cfg.RedisAddr != "" {
		if redis, err := cache.NewRedis(ctx, cfg.RedisAddr, log); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).
				Msg("Redis unreachable, falling back to in-memory cache")
		} else {
			c.Cache = redis
			c.CacheBackend = "redis"
		}
	}

	c.PushDispatcher = push.NewDispatcher(cfg.Push.Endpoint, cfg.Push.APIKey, c.Metrics, log)
	c.WeatherClient = weather.NewClient(cfg.Weather.APIKey, cfg.Weather.APIURL, cfg.Weather.City, c.ClientData, log)
	c.Exporter = exporter.New(c.AssignmentRepo, c.HealthRepo, exporter.Config{
		Bucket:    cfg.Export.S3Bucket,
		Endpoint:  cfg.Export.S3Endpoint,
		Region:    cfg.Export.S3Region,
		AccessKey: cfg.Export.S3AccessKey,
		SecretKey: cfg.Export.S3SecretKey,
	}, log)

	c.Realtime = realtime.NewRegistry(c.Metrics, log)
	c.Gateway = realtime.NewGateway(ctx, c.Realtime, c.GPSRepo, c.DriverRepo, log)

	c.AuthService = auth.NewService(c.DriverRepo, cfg.JWTSecret, cfg.JWTExpireDays, log)
	c.FleetService = fleet.NewService(c.FleetDB.Conn(), c.DriverRepo, c.PackageRepo, c.AssignmentRepo, log)

	c.Solver = solver.New(log)
	c.DifficultyScorer = difficulty.NewScorer(c.Models, log)
	c.Optimizer = fairness.New(c.Solver, log)
	c.Pipeline = assignments.NewPipeline(
		c.DriverRepo,
		c.PackageRepo,
		c.DifficultyScorer,
		c.Optimizer,
		c.AssignmentRepo,
		c.Models,
		c.PushDispatcher,
		c.Metrics,
		fairness.Config{
			KMin:      cfg.Fairness.MinPackagesPerDriver,
			KMax:      cfg.Fairness.MaxPackagesPerDriver,
			Tolerance: cfg.Fairness.VarianceThreshold,
			Budget:    time.Duration(cfg.Fairness.TimeoutSeconds) * time.Second,
		},
		log,
	)

	c.HealthScorer = health.NewScorer(c.Models, log)
	c.HealthMonitor = health.NewMonitor(
		c.DriverRepo,
		c.HealthRepo,
		c.HealthScorer,
		c.PushDispatcher,
		c.Realtime,
		c.Metrics,
		cfg.Health.RiskThresholdYellow,
		log,
	)

	c.ForecastService = forecast.NewService(
		forecast.NewForecaster(c.Models, log),
		c.PackageRepo,
		c.AssignmentRepo,
		c.DriverRepo,
		c.WeatherClient,
		c.Cache,
		cfg.PaymentPerPackage,
		log,
	)

	c.SwapService = swaps.NewService(
		c.SwapRepo,
		c.AssignmentRepo,
		c.DriverRepo,
		c.PackageRepo,
		&swapNotifier{
			drivers:  c.DriverRepo,
			pusher:   c.PushDispatcher,
			realtime: c.Realtime,
			log:      log.With().Str("component", "swap_notifier").Logger(),
		},
		swaps.Config{
			MaxPerDay:       cfg.Swap.MaxPerDay,
			CooldownMinutes: cfg.Swap.CooldownMinutes,
		},
		log,
	)

	c.InsuranceService = insurance.NewService(
		c.InsuranceRepo,
		c.AssignmentRepo,
		c.DriverRepo,
		insurance.Thresholds{
			Moderate:    cfg.Insurance.ZScoreModerateThreshold,
			Severe:      cfg.Insurance.ZScoreSevereThreshold,
			BasePenalty: cfg.Insurance.BasePenalty,
		},
		log,
	)

	c.AnalyticsService = analytics.NewService(c.FleetDB.Conn(), c.PackageRepo, log)

	log.Debug().Msg("Services initialized")
}

// swapNotifier fans a swap notification out to the driver's live socket and,
// when a push token is registered, the push gateway. Both legs are
// best-effort.
type swapNotifier struct {
	drivers  *fleet.DriverRepository
	pusher   *push.Dispatcher
	realtime *realtime.Registry
	log      zerolog.Logger
}

func (n *swapNotifier) NotifyDriver(ctx context.Context, driverID int64, title, body string, data map[string]string) {
	payload := map[string]interface{}{
		"type":  "swap_notification",
		"title": title,
		"body":  body,
		"data":  data,
	}
	n.realtime.Send(driverID, payload)

	if !n.pusher.Enabled() {
		return
	}
	driver, err := n.drivers.GetByID(driverID)
	if err != nil || driver.PushToken == nil || *driver.PushToken == "" {
		return
	}
	if err := n.pusher.Send(ctx, *driver.PushToken, title, body, data); err != nil {
		n.log.Warn().Err(err).Int64("driver_id", driverID).Msg("Swap push failed")
	}
}
