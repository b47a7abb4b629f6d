// Package handlers provides HTTP handlers for forecast queries
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/api"
	"github.com/fleetops/dispatch/internal/auth"
	"github.com/fleetops/dispatch/internal/domain"
	"github.com/fleetops/dispatch/internal/modules/forecast"
)

const maxForecastDays = 30

// Handler handles forecast HTTP requests
type Handler struct {
	service *forecast.Service
	log     zerolog.Logger
}

// NewHandler creates a new forecast handler
func NewHandler(service *forecast.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "forecast").Logger(),
	}
}

// RegisterRoutes mounts the forecast endpoints on an authenticated router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/forecast/volume", h.handleVolume)
	r.Get("/api/forecast/earnings", h.handleEarnings)
}

func (h *Handler) handleVolume(w http.ResponseWriter, r *http.Request) {
	days, err := parseDays(r)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}

	points, err := h.service.Volume(r.Context(), days)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"forecast": points,
		"days":     days,
	})
}

func (h *Handler) handleEarnings(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		api.WriteError(h.log, w, domain.ErrUnauthorized)
		return
	}

	days, err := parseDays(r)
	if err != nil {
		api.WriteError(h.log, w, err)
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

	earnings, err := h.service.Earnings(r.Context(), driverID, days)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"earnings":  earnings,
		"driver_id": driverID,
		"days":      days,
	})
}

func parseDays(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return 7, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 || days > maxForecastDays {
		return 0, domain.Validationf("days must be between 1 and %d", maxForecastDays)
	}
	return days, nil
}
