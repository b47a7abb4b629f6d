// Package push delivers mobile push notifications through an FCM-style HTTP
// endpoint. Sends are best-effort: failures log and count, they never block
// the caller's flow.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/fleetops/dispatch/internal/metrics"
)

const (
	requestTimeout = 5 * time.Second
	multicastLimit = 8
)

// Dispatcher sends push notifications behind a circuit breaker. An empty
// endpoint disables sending entirely.
type Dispatcher struct {
	endpoint string
	apiKey   string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	metrics  *metrics.Registry
	log      zerolog.Logger
}

// NewDispatcher creates a push dispatcher
func NewDispatcher(endpoint, apiKey string, m *metrics.Registry, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: requestTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "push",
			MaxRequests: 3,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		metrics: m,
		log:     log.With().Str("client", "push").Logger(),
	}
}

// Enabled reports whether an endpoint is configured
func (d *Dispatcher) Enabled() bool {
	return d.endpoint != ""
}

type message struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Send delivers one notification to a device token
func (d *Dispatcher) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	if !d.Enabled() {
		return nil
	}
	if token == "" {
		return fmt.Errorf("empty push token")
	}

	_, err := d.breaker.Execute(func() (interface{}, error) {
		return nil, d.post(ctx, message{Token: token, Title: title, Body: body, Data: data})
	})
	if err != nil {
		d.count("failure")
		d.log.Warn().Err(err).Str("title", title).Msg("Push send failed")
		return err
	}
	d.count("success")
	return nil
}

// Multicast fans one notification out to many tokens concurrently. Individual
// failures are counted but do not fail the batch; only a cancelled context
// aborts it.
func (d *Dispatcher) Multicast(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	if !d.Enabled() || len(tokens) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(multicastLimit)
	for _, token := range tokens {
		token := token
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_ = d.Send(ctx, token, title, body, data)
			return nil
		})
	}
	return g.Wait()
}

func (d *Dispatcher) post(ctx context.Context, msg message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "key="+d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) count(result string) {
	if d.metrics != nil {
		d.metrics.PushSends.WithLabelValues(result).Inc()
	}
}
