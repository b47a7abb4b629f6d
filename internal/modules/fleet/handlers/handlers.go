// Package handlers provides HTTP handlers for fleet operations: drivers,
// package intake, and delivery completion.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/api"
	"github.com/fleetops/dispatch/internal/auth"
	"github.com/fleetops/dispatch/internal/domain"
	"github.com/fleetops/dispatch/internal/modules/fleet"
)

// Handler handles fleet HTTP requests
type Handler struct {
	drivers  *fleet.DriverRepository
	packages *fleet.PackageRepository
	gps      *fleet.GPSRepository
	service  *fleet.Service
	log      zerolog.Logger
}

// NewHandler creates a new fleet handler
func NewHandler(
	drivers *fleet.DriverRepository,
	packages *fleet.PackageRepository,
	gps *fleet.GPSRepository,
	service *fleet.Service,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		drivers:  drivers,
		packages: packages,
		gps:      gps,
		service:  service,
		log:      log.With().Str("handler", "fleet").Logger(),
	}
}

// RegisterRoutes mounts the fleet endpoints on an authenticated router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin)
		r.Get("/api/drivers", h.handleListDrivers)
	})
	r.Get("/api/drivers/{id}", h.handleGetDriver)
	r.Put("/api/drivers/{id}", h.handleUpdateDriver)
	r.Post("/api/drivers/{id}/location", h.handleUpdateLocation)
	r.Delete("/api/drivers/{id}", h.handleDeactivateDriver)
	r.Get("/api/drivers/{id}/gps", h.handleListGPS)

	r.Get("/api/packages", h.handleListPackages)
	r.Post("/api/packages", h.handleCreatePackage)
	r.Post("/api/packages/bulk", h.handleBulkCreatePackages)
	r.Get("/api/packages/{id}", h.handleGetPackage)

	r.Post("/api/deliveries", h.handleCompleteDelivery)
}

func (h *Handler) handleListDrivers(w http.ResponseWriter, r *http.Request) {
	var (
		drivers []domain.Driver
		err     error
	)
	if r.URL.Query().Get("active") == "true" {
		drivers, err = h.drivers.ListActive()
	} else {
		drivers, err = h.drivers.List()
	}
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"drivers": drivers,
		"count":   len(drivers),
	})
}

func (h *Handler) handleGetDriver(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	driver, err := h.drivers.GetByID(id)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"driver": driver})
}

type updateDriverRequest struct {
	Name              string  `json:"name"`
	Phone             string  `json:"phone"`
	VehicleType       string  `json:"vehicle_type"`
	VehicleCapacityKg float64 `json:"vehicle_capacity_kg"`
}

func (h *Handler) handleUpdateDriver(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	if err := requireSelfOrAdmin(r, id); err != nil {
		api.WriteError(h.log, w, err)
		return
	}

	var req updateDriverRequest
	if err := api.Decode(r, &req); err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	if err := h.drivers.UpdateProfile(id, req.Name, req.Phone, req.VehicleType, req.VehicleCapacityKg); err != nil {
		api.WriteError(h.log, w, err)
		return
	}

	driver, err := h.drivers.GetByID(id)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"driver": driver})
}

type locationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (h *Handler) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	if err := requireSelfOrAdmin(r, id); err != nil {
		api.WriteError(h.log, w, err)
		return
	}

	var req locationRequest
	if err := api.Decode(r, &req); err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		api.WriteError(h.log, w, domain.Validationf("coordinates out of range"))
		return
	}
	if err := h.drivers.UpdateLocation(id, req.Latitude, req.Longitude); err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleDeactivateDriver(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	if err := requireSelfOrAdmin(r, id); err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	if err := h.drivers.Deactivate(id); err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *Handler) handleListGPS(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	logs, err := h.gps.Recent(id, limit)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"gps_logs": logs,
		"count":    len(logs),
	})
}

func (h *Handler) handleListPackages(w http.ResponseWriter, r *http.Request) {
	var (
		packages []domain.Package
		err      error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		packages, err = h.packages.ListByStatus(domain.PackageStatus(status))
	} else {
		packages, err = h.packages.ListPending()
	}
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"packages": packages,
		"count":    len(packages),
	})
}

type packageRequest struct {
	TrackingNumber    string   `json:"tracking_number"`
	DeliveryAddress   string   `json:"delivery_address"`
	DeliveryLatitude  *float64 `json:"delivery_latitude"`
	DeliveryLongitude *float64 `json:"delivery_longitude"`
	WeightKg          float64  `json:"weight_kg"`
	FloorNumber       int      `json:"floor_number"`
	DistanceFromHubKm float64  `json:"distance_from_hub_km"`
	IsFragile         bool     `json:"is_fragile"`
	TimeWindowHours   *float64 `json:"time_window_hours"`
	Priority          string   `json:"priority"`
}

func (req packageRequest) toDomain() domain.Package {
	return domain.Package{
		TrackingNumber:    req.TrackingNumber,
		Status:            domain.PackagePending,
		DeliveryAddress:   req.DeliveryAddress,
		DeliveryLatitude:  req.DeliveryLatitude,
		DeliveryLongitude: req.DeliveryLongitude,
		WeightKg:          req.WeightKg,
		FloorNumber:       req.FloorNumber,
		DistanceFromHubKm: req.DistanceFromHubKm,
		IsFragile:         req.IsFragile,
		TimeWindowHours:   req.TimeWindowHours,
		Priority:          req.Priority,
	}
}

func (h *Handler) handleCreatePackage(w http.ResponseWriter, r *http.Request) {
	var req packageRequest
	if err := api.Decode(r, &req); err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	if req.TrackingNumber == "" || req.DeliveryAddress == "" {
		api.WriteError(h.log, w, domain.Validationf("tracking_number and delivery_address are required"))
		return
	}

	pkg := req.toDomain()
	id, err := h.packages.Create(&pkg)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	pkg.ID = id
	api.WriteJSON(w, http.StatusCreated, map[string]interface{}{"package": pkg})
}

func (h *Handler) handleBulkCreatePackages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Packages []packageRequest `json:"packages"`
	}
	if err := api.Decode(r, &req); err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	if len(req.Packages) == 0 {
		api.WriteError(h.log, w, domain.Validationf("manifest is empty"))
		return
	}

	packages := make([]domain.Package, len(req.Packages))
	for i, p := range req.Packages {
		if p.TrackingNumber == "" || p.DeliveryAddress == "" {
			api.WriteError(h.log, w, domain.Validationf("manifest entry %d missing tracking_number or delivery_address", i))
			return
		}
		packages[i] = p.toDomain()
	}

	ids, err := h.packages.BulkCreate(packages)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"created": len(ids),
		"ids":     ids,
	})
}

func (h *Handler) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	pkg, err := h.packages.GetByID(id)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"package": pkg})
}

type deliveryRequest struct {
	AssignmentID    int64    `json:"assignment_id"`
	Success         bool     `json:"success"`
	DurationMinutes *float64 `json:"duration_minutes"`
	FailureReason   *string  `json:"failure_reason"`
}

func (h *Handler) handleCompleteDelivery(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		api.WriteError(h.log, w, domain.ErrUnauthorized)
		return
	}

	var req deliveryRequest
	if err := api.Decode(r, &req); err != nil {
		api.WriteError(h.log, w, err)
		return
	}

	delivery, err := h.service.CompleteDelivery(fleet.DeliveryOutcome{
		AssignmentID:    req.AssignmentID,
		DriverID:        identity.DriverID,
		Success:         req.Success,
		DurationMinutes: req.DurationMinutes,
		FailureReason:   req.FailureReason,
	})
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, map[string]interface{}{"delivery": delivery})
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validationf("invalid %s", name)
	}
	return id, nil
}

func requireSelfOrAdmin(r *http.Request, driverID int64) error {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		return domain.ErrUnauthorized
	}
	if identity.DriverID != driverID && !identity.Admin {
		return domain.ErrUnauthorized
	}
	return nil
}
