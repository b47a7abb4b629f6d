// Package handlers provides HTTP handlers for the swap marketplace
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/api"
	"github.com/fleetops/dispatch/internal/auth"
	"github.com/fleetops/dispatch/internal/domain"
	"github.com/fleetops/dispatch/internal/modules/swaps"
)

// Handler handles swap HTTP requests
type Handler struct {
	service *swaps.Service
	log     zerolog.Logger
}

// NewHandler creates a new swap handler
func NewHandler(service *swaps.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "swaps").Logger(),
	}
}

// RegisterRoutes mounts the swap endpoints on an authenticated router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/swaps", h.handlePropose)
	r.Post("/api/swaps/{id}/accept", h.handleAccept)
	r.Post("/api/swaps/{id}/cancel", h.handleCancel)
	r.Get("/api/swaps/marketplace", h.handleMarketplace)
	r.Get("/api/swaps", h.handleHistory)
}

type proposeRequest struct {
	OfferedAssignmentID   int64  `json:"offered_assignment_id"`
	RequestedAssignmentID int64  `json:"requested_assignment_id"`
	Reason                string `json:"reason"`
}

func (h *Handler) handlePropose(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		api.WriteError(h.log, w, domain.ErrUnauthorized)
		return
	}

	var req proposeRequest
	if err := api.Decode(r, &req); err != nil {
		api.WriteError(h.log, w, err)
		return
	}

	swap, err := h.service.Propose(r.Context(), identity.DriverID,
		req.OfferedAssignmentID, req.RequestedAssignmentID, req.Reason)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, map[string]interface{}{"swap": swap})
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		api.WriteError(h.log, w, domain.ErrUnauthorized)
		return
	}

	swap, err := h.service.Accept(r.Context(), chi.URLParam(r, "id"), identity.DriverID)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"swap": swap})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		api.WriteError(h.log, w, domain.ErrUnauthorized)
		return
	}

	if err := h.service.Cancel(chi.URLParam(r, "id"), identity.DriverID); err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handler) handleMarketplace(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		api.WriteError(h.log, w, domain.ErrUnauthorized)
		return
	}

	list, err := h.service.Marketplace(identity.DriverID)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"swaps": list,
		"count": len(list),
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
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

	list, err := h.service.History(driverID)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"swaps": list,
		"count": len(list),
	})
}
