// Package handlers provides HTTP handlers for assignment operations
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/api"
	"github.com/fleetops/dispatch/internal/auth"
	"github.com/fleetops/dispatch/internal/domain"
	"github.com/fleetops/dispatch/internal/modules/assignments"
)

// Handler handles assignment HTTP requests
type Handler struct {
	repo     *assignments.Repository
	pipeline *assignments.Pipeline
	log      zerolog.Logger
}

// NewHandler creates a new assignment handler
func NewHandler(repo *assignments.Repository, pipeline *assignments.Pipeline, log zerolog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		pipeline: pipeline,
		log:      log.With().Str("handler", "assignments").Logger(),
	}
}

// RegisterRoutes mounts the assignment endpoints on an authenticated router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin)
		r.Post("/api/assignments/generate", h.handleGenerate)
	})
	r.Get("/api/assignments", h.handleList)
	r.Get("/api/assignments/{id}", h.handleGet)
	r.Post("/api/assignments/{id}/accept", h.handleAccept)
	r.Post("/api/assignments/{id}/start", h.handleStart)
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = domain.OperationalDate(time.Now())
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		api.WriteError(h.log, w, domain.Validationf("invalid date %q, expected YYYY-MM-DD", date))
		return
	}

	summary, err := h.pipeline.Run(r.Context(), date)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"run": summary})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		api.WriteError(h.log, w, domain.ErrUnauthorized)
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = domain.OperationalDate(time.Now())
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

	var (
		list []domain.Assignment
		err  error
	)
	if identity.Admin && r.URL.Query().Get("driver_id") == "" {
		list, err = h.repo.ListByDate(date)
	} else {
		list, err = h.repo.ListByDriverAndDate(driverID, date)
	}
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"assignments": list,
		"count":       len(list),
		"date":        date,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		api.WriteError(h.log, w, domain.Validationf("invalid assignment id"))
		return
	}
	assignment, err := h.repo.GetByID(id)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"assignment": assignment})
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.repo.Accept)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.repo.Start)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(id, driverID int64) error) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		api.WriteError(h.log, w, domain.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		api.WriteError(h.log, w, domain.Validationf("invalid assignment id"))
		return
	}
	if err := fn(id, identity.DriverID); err != nil {
		api.WriteError(h.log, w, err)
		return
	}

	assignment, err := h.repo.GetByID(id)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"assignment": assignment})
}
