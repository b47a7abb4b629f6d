package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/api"
	"github.com/fleetops/dispatch/internal/domain"
)

// Handler handles authentication HTTP requests
type Handler struct {
	service *Service
	drivers DriverStore
	log     zerolog.Logger
}

// NewHandler creates a new auth handler
func NewHandler(service *Service, drivers DriverStore, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		drivers: drivers,
		log:     log.With().Str("handler", "auth").Logger(),
	}
}

// RegisterPublicRoutes mounts the unauthenticated endpoints
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/api/auth/register", h.handleRegister)
	r.Post("/api/auth/login", h.handleLogin)
}

// RegisterProtectedRoutes mounts the endpoints requiring a bearer token
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/api/auth/me", h.handleMe)
}

type registerRequest struct {
	Email             string  `json:"email"`
	Password          string  `json:"password"`
	Name              string  `json:"name"`
	Phone             string  `json:"phone"`
	VehicleType       string  `json:"vehicle_type"`
	VehicleCapacityKg float64 `json:"vehicle_capacity_kg"`
}

type authResponse struct {
	Token  string         `json:"token"`
	Driver *domain.Driver `json:"driver"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := api.Decode(r, &req); err != nil {
		api.WriteError(h.log, w, err)
		return
	}

	driver, token, err := h.service.Register(RegisterInput{
		Email:             req.Email,
		Password:          req.Password,
		Name:              req.Name,
		Phone:             req.Phone,
		VehicleType:       req.VehicleType,
		VehicleCapacityKg: req.VehicleCapacityKg,
	})
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, authResponse{Token: token, Driver: driver})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := api.Decode(r, &req); err != nil {
		api.WriteError(h.log, w, err)
		return
	}

	driver, token, err := h.service.Login(req.Email, req.Password)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, authResponse{Token: token, Driver: driver})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := FromContext(r.Context())
	if !ok {
		api.WriteError(h.log, w, domain.ErrUnauthorized)
		return
	}
	driver, err := h.drivers.GetByID(identity.DriverID)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"driver": driver})
}
