package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/fleetops/dispatch/internal/auth"
	"github.com/fleetops/dispatch/internal/domain"
)

// GPSStore persists location breadcrumbs from the socket
type GPSStore interface {
	Create(g *domain.GPSLog) error
}

// LocationUpdater mirrors the latest position onto the driver record
type LocationUpdater interface {
	UpdateLocation(id int64, lat, lng float64) error
}

// Gateway accepts driver websockets at /ws/{driver_id} and routes inbound
// messages. The reader goroutine only acknowledges and persists; it never
// runs scoring or solving.
type Gateway struct {
	registry  *Registry
	gps       GPSStore
	drivers   LocationUpdater
	parentCtx context.Context
	log       zerolog.Logger
}

// NewGateway wires the websocket gateway. parentCtx cancels every reader on
// server shutdown.
func NewGateway(parentCtx context.Context, registry *Registry, gps GPSStore, drivers LocationUpdater, log zerolog.Logger) *Gateway {
	return &Gateway{
		registry:  registry,
		gps:       gps,
		drivers:   drivers,
		parentCtx: parentCtx,
		log:       log.With().Str("component", "ws-gateway").Logger(),
	}
}

// RegisterRoutes mounts the websocket endpoint
func (g *Gateway) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{driver_id}", g.handleConnect)
}

type inboundMessage struct {
	Type      string   `json:"type"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	SpeedKmh  *float64 `json:"speed_kmh,omitempty"`
	PackageID int64    `json:"package_id,omitempty"`
	Status    string   `json:"status,omitempty"`
}

func (g *Gateway) handleConnect(w http.ResponseWriter, r *http.Request) {
	driverID, err := strconv.ParseInt(chi.URLParam(r, "driver_id"), 10, 64)
	if err != nil || driverID <= 0 {
		http.Error(w, "invalid driver id", http.StatusBadRequest)
		return
	}

	// The socket must belong to the authenticated driver; a driver cannot
	// register as someone else and receive their notifications.
	identity, ok := auth.FromContext(r.Context())
	if !ok || (identity.DriverID != driverID && !identity.Admin) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.log.Warn().Err(err).Int64("driver_id", driverID).Msg("Websocket accept failed")
		return
	}

	g.registry.Connect(driverID, conn)
	g.log.Info().Int64("driver_id", driverID).Msg("Driver connected")

	g.registry.Send(driverID, map[string]interface{}{
		"type":      "connected",
		"driver_id": driverID,
		"message":   "realtime channel established",
	})

	go g.readLoop(driverID, conn)
}

func (g *Gateway) readLoop(driverID int64, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(g.parentCtx)
	defer cancel()
	defer g.registry.Disconnect(driverID, conn)
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			g.log.Debug().Int64("driver_id", driverID).Msg("Driver disconnected")
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			g.log.Warn().Int64("driver_id", driverID).Msg("Dropping malformed websocket message")
			continue
		}
		g.route(driverID, msg)
	}
}

func (g *Gateway) route(driverID int64, msg inboundMessage) {
	switch msg.Type {
	case "ping":
		g.registry.Send(driverID, map[string]interface{}{
			"type":      "pong",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})

	case "location_update":
		if msg.Latitude == nil || msg.Longitude == nil {
			g.log.Warn().Int64("driver_id", driverID).Msg("location_update missing coordinates")
			return
		}
		logEntry := &domain.GPSLog{
			DriverID:   driverID,
			Latitude:   *msg.Latitude,
			Longitude:  *msg.Longitude,
			SpeedKmh:   msg.SpeedKmh,
			RecordedAt: time.Now().UTC(),
		}
		if err := g.gps.Create(logEntry); err != nil {
			g.log.Warn().Err(err).Int64("driver_id", driverID).Msg("Failed to persist gps log")
		}
		if err := g.drivers.UpdateLocation(driverID, *msg.Latitude, *msg.Longitude); err != nil {
			g.log.Warn().Err(err).Int64("driver_id", driverID).Msg("Failed to update driver location")
		}
		g.registry.Send(driverID, map[string]interface{}{
			"type":   "location_received",
			"status": "ok",
		})

	case "delivery_status":
		g.registry.Send(driverID, map[string]interface{}{
			"type":       "status_received",
			"package_id": msg.PackageID,
		})

	default:
		g.log.Debug().Str("type", msg.Type).Int64("driver_id", driverID).Msg("Unknown websocket message type")
	}
}
