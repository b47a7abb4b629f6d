// Package server provides the HTTP server and routing for the dispatch
// control plane.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/auth"
	"github.com/fleetops/dispatch/internal/di"
	analyticshandlers "github.com/fleetops/dispatch/internal/modules/analytics/handlers"
	assignmenthandlers "github.com/fleetops/dispatch/internal/modules/assignments/handlers"
	fleethandlers "github.com/fleetops/dispatch/internal/modules/fleet/handlers"
	forecasthandlers "github.com/fleetops/dispatch/internal/modules/forecast/handlers"
	healthhandlers "github.com/fleetops/dispatch/internal/modules/health/handlers"
	insurancehandlers "github.com/fleetops/dispatch/internal/modules/insurance/handlers"
	swaphandlers "github.com/fleetops/dispatch/internal/modules/swaps/handlers"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Container *di.Container
	Port      int
	DevMode   bool
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	container *di.Container
	system    *SystemHandlers
	log       zerolog.Logger
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		container: cfg.Container,
		system:    NewSystemHandlers(cfg.Container, cfg.Log),
		log:       cfg.Log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if devMode {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
}

func (s *Server) setupRoutes() {
	c := s.container

	authHandler := auth.NewHandler(c.AuthService, c.DriverRepo, s.log)
	fleetHandler := fleethandlers.NewHandler(c.DriverRepo, c.PackageRepo, c.GPSRepo, c.FleetService, s.log)
	assignmentHandler := assignmenthandlers.NewHandler(c.AssignmentRepo, c.Pipeline, s.log)
	healthHandler := healthhandlers.NewHandler(c.HealthRepo, c.HealthScorer, s.log)
	forecastHandler := forecasthandlers.NewHandler(c.ForecastService, s.log)
	swapHandler := swaphandlers.NewHandler(c.SwapService, s.log)
	insuranceHandler := insurancehandlers.NewHandler(c.InsuranceService, s.log)
	analyticsHandler := analyticshandlers.NewHandler(c.AnalyticsService, s.log)

	// Public surface
	authHandler.RegisterPublicRoutes(s.router)
	s.router.Get("/health", s.system.HandleHealth)
	s.router.Handle("/metrics", c.Metrics.Handler())

	// Websocket gateway authenticates via token query param inside the
	// bearer middleware.
	s.router.Group(func(r chi.Router) {
		r.Use(c.AuthService.Middleware)
		c.Gateway.RegisterRoutes(r)
	})

	// Authenticated API surface
	s.router.Group(func(r chi.Router) {
		r.Use(c.AuthService.Middleware)

		authHandler.RegisterProtectedRoutes(r)
		fleetHandler.RegisterRoutes(r)
		assignmentHandler.RegisterRoutes(r)
		healthHandler.RegisterRoutes(r)
		forecastHandler.RegisterRoutes(r)
		swapHandler.RegisterRoutes(r)
		insuranceHandler.RegisterRoutes(r)
		analyticsHandler.RegisterRoutes(r)
		s.registerWeatherRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Get("/api/system/status", s.system.HandleStatus)
			r.Get("/api/system/database/stats", s.system.HandleDatabaseStats)
			r.Get("/api/system/jobs", s.system.HandleJobRuns)
			r.Post("/api/system/jobs/{name}", s.system.HandleTriggerJob)
		})
	})
}

// Start begins serving; blocks until the listener fails or closes
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and closes the listener
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}
