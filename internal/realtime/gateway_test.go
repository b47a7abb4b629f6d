package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/fleetops/dispatch/internal/auth"
	"github.com/fleetops/dispatch/internal/domain"
	"github.com/fleetops/dispatch/internal/metrics"
)

type gpsRecorder struct {
	logs []domain.GPSLog
}

func (g *gpsRecorder) Create(l *domain.GPSLog) error {
	g.logs = append(g.logs, *l)
	return nil
}

type locationRecorder struct {
	updates int
}

func (l *locationRecorder) UpdateLocation(id int64, lat, lng float64) error {
	l.updates++
	return nil
}

// gatewayServer mounts the gateway behind a middleware that injects the
// given identity, the way the bearer middleware does in production.
func gatewayServer(t *testing.T, registry *Registry, identity auth.Identity) *httptest.Server {
	t.Helper()
	g := NewGateway(context.Background(), registry, &gpsRecorder{}, &locationRecorder{}, zerolog.Nop())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.NewContext(req.Context(), identity)))
		})
	})
	g.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, url string) (*websocket.Conn, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if conn != nil {
		t.Cleanup(func() { _ = conn.CloseNow() })
	}
	return conn, err
}

func TestGateway_ConnectsOwnSocket(t *testing.T) {
	registry := NewRegistry(metrics.New(), zerolog.Nop())
	srv := gatewayServer(t, registry, auth.Identity{DriverID: 7})

	conn, err := dialWS(t, srv.URL+"/ws/7")
	require.NoError(t, err)

	msg := readJSON(t, conn)
	assert.Equal(t, "connected", msg["type"])
	assert.Equal(t, float64(7), msg["driver_id"])
}

func TestGateway_RejectsForeignDriverSocket(t *testing.T) {
	registry := NewRegistry(metrics.New(), zerolog.Nop())
	// Authenticated as driver 7, trying to listen on driver 8's channel
	srv := gatewayServer(t, registry, auth.Identity{DriverID: 7})

	_, err := dialWS(t, srv.URL+"/ws/8")
	require.Error(t, err)
	assert.Equal(t, 0, registry.Count())
}

func TestGateway_AdminMayConnectAsAnyDriver(t *testing.T) {
	registry := NewRegistry(metrics.New(), zerolog.Nop())
	srv := gatewayServer(t, registry, auth.Identity{DriverID: 1, Admin: true})

	conn, err := dialWS(t, srv.URL+"/ws/8")
	require.NoError(t, err)

	msg := readJSON(t, conn)
	assert.Equal(t, "connected", msg["type"])
}

func TestGateway_RejectsUnauthenticatedRequest(t *testing.T) {
	registry := NewRegistry(metrics.New(), zerolog.Nop())
	g := NewGateway(context.Background(), registry, &gpsRecorder{}, &locationRecorder{}, zerolog.Nop())

	r := chi.NewRouter()
	g.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	_, err := dialWS(t, srv.URL+"/ws/7")
	require.Error(t, err)
}
