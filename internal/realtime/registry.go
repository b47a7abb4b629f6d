// Package realtime maintains the driver websocket connections: a registry
// keyed by driver id and a gateway that routes inbound messages.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/fleetops/dispatch/internal/metrics"
)

const writeTimeout = 5 * time.Second

// Registry tracks at most one live socket per driver. A reconnect replaces
// and closes the prior socket; any send failure evicts the connection.
type Registry struct {
	mu      sync.RWMutex
	conns   map[int64]*websocket.Conn
	metrics *metrics.Registry
	log     zerolog.Logger
}

// NewRegistry creates an empty connection registry
func NewRegistry(m *metrics.Registry, log zerolog.Logger) *Registry {
	return &Registry{
		conns:   make(map[int64]*websocket.Conn),
		metrics: m,
		log:     log.With().Str("component", "realtime").Logger(),
	}
}

// Connect registers a driver's socket, closing any previous one
func (r *Registry) Connect(driverID int64, conn *websocket.Conn) {
	r.mu.Lock()
	old, had := r.conns[driverID]
	r.conns[driverID] = conn
	r.mu.Unlock()

	if had {
		old.Close(websocket.StatusPolicyViolation, "superseded by new connection")
		r.log.Debug().Int64("driver_id", driverID).Msg("Replaced stale websocket")
	} else if r.metrics != nil {
		r.metrics.WSConnections.Inc()
	}
}

// Disconnect removes a driver's socket if it is still the registered one
func (r *Registry) Disconnect(driverID int64, conn *websocket.Conn) {
	r.mu.Lock()
	current, ok := r.conns[driverID]
	if ok && current == conn {
		delete(r.conns, driverID)
	}
	r.mu.Unlock()

	if ok && current == conn && r.metrics != nil {
		r.metrics.WSConnections.Dec()
	}
}

// Count returns the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Send delivers a JSON message to one driver. Absent drivers are dropped
// silently; a write failure evicts and closes the connection.
func (r *Registry) Send(driverID int64, message interface{}) {
	r.mu.RLock()
	conn, ok := r.conns[driverID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if !r.write(conn, message) {
		r.evict(driverID, conn)
	}
}

// Broadcast delivers a JSON message to every connected driver. Failed
// connections are collected during iteration and evicted afterwards.
func (r *Registry) Broadcast(message interface{}) {
	r.mu.RLock()
	snapshot := make(map[int64]*websocket.Conn, len(r.conns))
	for id, c := range r.conns {
		snapshot[id] = c
	}
	r.mu.RUnlock()

	var failed []int64
	for id, conn := range snapshot {
		if !r.write(conn, message) {
			failed = append(failed, id)
		}
	}
	for _, id := range failed {
		r.evict(id, snapshot[id])
	}
}

// Shutdown closes every connection; used on server stop
func (r *Registry) Shutdown() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[int64]*websocket.Conn)
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	if r.metrics != nil {
		r.metrics.WSConnections.Set(0)
	}
}

func (r *Registry) write(conn *websocket.Conn, message interface{}) bool {
	payload, err := json.Marshal(message)
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to marshal realtime message")
		return true // nothing wrong with the connection
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return false
	}
	return true
}

func (r *Registry) evict(driverID int64, conn *websocket.Conn) {
	r.Disconnect(driverID, conn)
	conn.Close(websocket.StatusInternalError, "send failed")
	r.log.Debug().Int64("driver_id", driverID).Msg("Evicted websocket after send failure")
}
