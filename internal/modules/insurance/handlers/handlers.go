// Package handlers provides HTTP handlers for insurance payouts
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/api"
	"github.com/fleetops/dispatch/internal/auth"
	"github.com/fleetops/dispatch/internal/domain"
	"github.com/fleetops/dispatch/internal/modules/insurance"
)

// Handler handles insurance HTTP requests
type Handler struct {
	service *insurance.Service
	log     zerolog.Logger
}

// NewHandler creates a new insurance handler
func NewHandler(service *insurance.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "insurance").Logger(),
	}
}

// RegisterRoutes mounts the insurance endpoints on an authenticated router.
// Claim evaluation and flag changes are admin-only.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin)
		r.Post("/api/insurance/calculate", h.handleCalculate)
		r.Get("/api/insurance/pending", h.handlePending)
		r.Post("/api/insurance/payouts/{id}/approve", h.handleApprove)
		r.Post("/api/insurance/payouts/{id}/pay", h.handlePay)
	})
	r.Get("/api/insurance/payouts", h.handleHistory)
}

type calculateRequest struct {
	DriverID    int64  `json:"driver_id"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

// handleCalculate evaluates either one driver's claim or, when driver_id is
// omitted, sweeps the whole fleet for the window.
func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := api.Decode(r, &req); err != nil {
		api.WriteError(h.log, w, err)
		return
	}

	if req.DriverID == 0 {
		created, err := h.service.EvaluateFleet(req.PeriodStart, req.PeriodEnd)
		if err != nil {
			api.WriteError(h.log, w, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]interface{}{"eligible_payouts": created})
		return
	}

	payout, err := h.service.EvaluateClaim(req.DriverID, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, map[string]interface{}{"payout": payout})
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

	payouts, err := h.service.History(driverID)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"payouts": payouts,
		"count":   len(payouts),
	})
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	payouts, err := h.service.PendingApproval()
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"payouts": payouts,
		"count":   len(payouts),
	})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.flagChange(w, r, h.service.Approve)
}

func (h *Handler) handlePay(w http.ResponseWriter, r *http.Request) {
	h.flagChange(w, r, h.service.MarkPaid)
}

func (h *Handler) flagChange(w http.ResponseWriter, r *http.Request, fn func(int64) (*domain.InsurancePayout, error)) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		api.WriteError(h.log, w, domain.Validationf("invalid payout id"))
		return
	}
	payout, err := fn(id)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"payout": payout})
}
