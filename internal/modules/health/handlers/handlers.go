// Package handlers provides HTTP handlers for driver health operations
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/api"
	"github.com/fleetops/dispatch/internal/auth"
	"github.com/fleetops/dispatch/internal/domain"
	"github.com/fleetops/dispatch/internal/modules/health"
)

// Handler handles health HTTP requests
type Handler struct {
	events *health.Repository
	scorer *health.Scorer
	log    zerolog.Logger
}

// NewHandler creates a new health handler
func NewHandler(events *health.Repository, scorer *health.Scorer, log zerolog.Logger) *Handler {
	return &Handler{
		events: events,
		scorer: scorer,
		log:    log.With().Str("handler", "health").Logger(),
	}
}

// RegisterRoutes mounts the health endpoints on an authenticated router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/health/events", h.handleCreateEvent)
	r.Get("/api/health/events", h.handleListEvents)
	r.Get("/api/health/risk/{driver_id}", h.handleRisk)
}

type eventRequest struct {
	HeartRate            float64 `json:"heart_rate"`
	FatigueLevel         float64 `json:"fatigue_level"`
	HoursWorked          float64 `json:"hours_worked"`
	HoursSinceLastBreak  float64 `json:"hours_since_last_break"`
	PackagesDelivered    int     `json:"packages_delivered"`
	PackagesRemaining    int     `json:"packages_remaining"`
	TotalDistanceKm      float64 `json:"total_distance_km"`
	BreakDurationMinutes int     `json:"break_duration_minutes"`
}

// handleCreateEvent ingests a wearable reading and scores it immediately so
// the reporting app gets the risk back in the same round trip.
func (h *Handler) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		api.WriteError(h.log, w, domain.ErrUnauthorized)
		return
	}

	var req eventRequest
	if err := api.Decode(r, &req); err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	if req.HeartRate <= 0 || req.HoursWorked < 0 {
		api.WriteError(h.log, w, domain.Validationf("heart_rate must be positive and hours_worked non-negative"))
		return
	}

	event := &domain.HealthEvent{
		DriverID:             identity.DriverID,
		HeartRate:            req.HeartRate,
		FatigueLevel:         req.FatigueLevel,
		HoursWorked:          req.HoursWorked,
		HoursSinceLastBreak:  req.HoursSinceLastBreak,
		PackagesDelivered:    req.PackagesDelivered,
		PackagesRemaining:    req.PackagesRemaining,
		TotalDistanceKm:      req.TotalDistanceKm,
		BreakDurationMinutes: req.BreakDurationMinutes,
	}

	id, err := h.events.Create(event)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	event.ID = id

	score := h.scorer.Score(event, health.DefaultAvgDifficulty)
	severity := health.SeverityFor(score)
	if err := h.events.UpdateScore(id, score, severity); err != nil {
		h.log.Warn().Err(err).Int64("event_id", id).Msg("Score update failed")
	}
	event.PredictedRiskScore = &score
	event.Severity = severity

	api.WriteJSON(w, http.StatusCreated, map[string]interface{}{"event": event})
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		api.WriteError(h.log, w, domain.ErrUnauthorized)
		return
	}

	driverID := identity.DriverID
	if raw := r.URL.Query().Get("driver_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			api.WriteError(h.log, w, domain.Validationf("invalid driver_id"))
			return
		}
		if parsed != identity.DriverID && !identity.Admin {
			api.WriteError(h.log, w, domain.ErrUnauthorized)
			return
		}
		driverID = parsed
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.events.ListByDriver(driverID, limit)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// handleRisk returns the driver's latest scored reading with the current
// break recommendation.
func (h *Handler) handleRisk(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		api.WriteError(h.log, w, domain.ErrUnauthorized)
		return
	}
	driverID, err := strconv.ParseInt(chi.URLParam(r, "driver_id"), 10, 64)
	if err != nil || driverID <= 0 {
		api.WriteError(h.log, w, domain.Validationf("invalid driver_id"))
		return
	}
	if driverID != identity.DriverID && !identity.Admin {
		api.WriteError(h.log, w, domain.ErrUnauthorized)
		return
	}

	event, err := h.events.LatestByDriver(driverID)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}

	score := h.scorer.Score(event, health.DefaultAvgDifficulty)
	severity := health.SeverityFor(score)
	remaining := float64(event.PackagesRemaining) * health.DefaultAvgDifficulty
	hadBreak := event.HoursSinceLastBreak < event.HoursWorked
	rec := health.Advise(score, remaining, event.HoursWorked, hadBreak)

	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"driver_id":      driverID,
		"risk_score":     score,
		"severity":       severity,
		"recommendation": rec,
		"recorded_at":    event.RecordedAt,
	})
}
