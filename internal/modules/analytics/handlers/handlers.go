// Package handlers provides HTTP handlers for analytics queries
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/api"
	"github.com/fleetops/dispatch/internal/modules/analytics"
)

// Handler handles analytics HTTP requests
type Handler struct {
	service *analytics.Service
	log     zerolog.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(service *analytics.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "analytics").Logger(),
	}
}

// RegisterRoutes mounts the analytics endpoints on an authenticated router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/analytics/volume-trend", h.handleVolumeTrend)
	r.Get("/api/analytics/fairness", h.handleFairness)
	r.Get("/api/analytics/leaderboard", h.handleLeaderboard)
}

func (h *Handler) handleVolumeTrend(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30, 365)
	trend, err := h.service.VolumeTrend(days)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"trend": trend,
		"days":  days,
	})
}

func (h *Handler) handleFairness(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 14, 90)
	history, err := h.service.FairnessHistory(days)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"history": history,
		"days":    days,
	})
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20, 100)
	entries, err := h.service.Leaderboard(limit)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"leaderboard": entries,
		"count":       len(entries),
	})
}

func queryInt(r *http.Request, name string, fallback, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > max {
		return fallback
	}
	return v
}
