package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/fleetops/dispatch/internal/metrics"
)

// wsPair dials a real websocket through an httptest server and hands back
// both ends. The server side is what the registry manages.
func wsPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		connCh <- c
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _, err := websocket.Dial(ctx, srv.URL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.CloseNow() })

	server = <-connCh
	t.Cleanup(func() { _ = server.CloseNow() })
	return server, client
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestRegistry_ConnectAndSend(t *testing.T) {
	m := metrics.New()
	r := NewRegistry(m, zerolog.Nop())
	server, client := wsPair(t)

	r.Connect(7, server)
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WSConnections))

	r.Send(7, map[string]string{"type": "ping_ack"})
	msg := readJSON(t, client)
	assert.Equal(t, "ping_ack", msg["type"])
}

func TestRegistry_SendToAbsentDriverIsSilent(t *testing.T) {
	r := NewRegistry(metrics.New(), zerolog.Nop())
	r.Send(99, map[string]string{"type": "noop"}) // must not panic
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_ReconnectReplacesPriorSocket(t *testing.T) {
	m := metrics.New()
	r := NewRegistry(m, zerolog.Nop())
	first, firstClient := wsPair(t)
	second, secondClient := wsPair(t)

	r.Connect(7, first)
	r.Connect(7, second)

	// Still one logical connection, gauge not double counted
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WSConnections))

	// The first socket was closed by the replacement
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := firstClient.Read(ctx)
	assert.Error(t, err)

	// Sends land on the second socket
	r.Send(7, map[string]string{"type": "after_reconnect"})
	msg := readJSON(t, secondClient)
	assert.Equal(t, "after_reconnect", msg["type"])
}

func TestRegistry_DisconnectIgnoresStaleSocket(t *testing.T) {
	r := NewRegistry(metrics.New(), zerolog.Nop())
	first, _ := wsPair(t)
	second, secondClient := wsPair(t)

	r.Connect(7, first)
	r.Connect(7, second)

	// The read loop of the replaced socket reports its disconnect late;
	// it must not tear down the live connection.
	r.Disconnect(7, first)
	assert.Equal(t, 1, r.Count())

	r.Disconnect(7, second)
	assert.Equal(t, 0, r.Count())
	_ = secondClient
}

func TestRegistry_Broadcast(t *testing.T) {
	r := NewRegistry(metrics.New(), zerolog.Nop())
	s1, c1 := wsPair(t)
	s2, c2 := wsPair(t)

	r.Connect(1, s1)
	r.Connect(2, s2)

	r.Broadcast(map[string]string{"type": "fleet_notice"})
	assert.Equal(t, "fleet_notice", readJSON(t, c1)["type"])
	assert.Equal(t, "fleet_notice", readJSON(t, c2)["type"])
}

func TestRegistry_Shutdown(t *testing.T) {
	m := metrics.New()
	r := NewRegistry(m, zerolog.Nop())
	s1, c1 := wsPair(t)
	r.Connect(1, s1)

	r.Shutdown()
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.WSConnections))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := c1.Read(ctx)
	assert.Error(t, err)
}
