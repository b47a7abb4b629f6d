// Package weather provides current conditions and the forecast volume impact
// factor from an OpenWeather-compatible API, cache-first with stale fallback.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/fleetops/dispatch/internal/clientdata"
)

const (
	requestTimeout = 5 * time.Second
	currentTTL     = 600 * time.Second
	forecastTTL    = 3600 * time.Second
)

// Conditions is the subset of the weather response the control plane uses
type Conditions struct {
	Main        string  `json:"main"`
	Description string  `json:"description"`
	TempC       float64 `json:"temp_c"`
	WindSpeed   float64 `json:"wind_speed"` // m/s
	City        string  `json:"city"`
}

// Client fetches weather behind a circuit breaker. An empty API key disables
// the client; every consumer then sees the neutral impact factor.
type Client struct {
	apiKey  string
	baseURL string
	city    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	cache   *clientdata.Repository
	log     zerolog.Logger
}

// NewClient creates a weather client. cache is optional; nil disables caching.
func NewClient(apiKey, baseURL, city string, cache *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		city:    city,
		client:  &http.Client{Timeout: requestTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "weather",
			MaxRequests: 2,
			Interval:    time.Minute,
			Timeout:     2 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		cache: cache,
		log:   log.With().Str("client", "weather").Logger(),
	}
}

// Enabled reports whether an API key is configured
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// Current returns the current conditions for the configured city,
// cache-first. A failed API call falls back to stale cache when present.
func (c *Client) Current(ctx context.Context) (*Conditions, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("weather client disabled")
	}

	cacheKey := "weather:current:" + c.city
	if cond, ok := c.fromCache(cacheKey, true); ok {
		return cond, nil
	}

	cond, err := c.fetch(ctx)
	if err != nil {
		if stale, ok := c.fromCache(cacheKey, false); ok {
			c.log.Warn().Err(err).Msg("Weather API failed, using stale conditions")
			return stale, nil
		}
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Store(cacheKey, cond, currentTTL); err != nil {
			c.log.Warn().Err(err).Msg("Failed to cache weather conditions")
		}
	}
	return cond, nil
}

// ImpactFactor maps current conditions onto a forecast volume multiplier:
// rain +0.2, storm +0.3, strong wind (>15 m/s) +0.1, extreme temperature
// (>35 or <10 C) +0.15, clamped to [0.5, 1.5]. An unavailable oracle is
// neutral (1.0).
func (c *Client) ImpactFactor(ctx context.Context) float64 {
	cond, err := c.Current(ctx)
	if err != nil {
		return 1.0
	}

	factor := 1.0
	switch cond.Main {
	case "Rain", "Drizzle":
		factor += 0.2
	case "Thunderstorm":
		factor += 0.3
	}
	if cond.WindSpeed > 15 {
		factor += 0.1
	}
	if cond.TempC > 35 || cond.TempC < 10 {
		factor += 0.15
	}

	if factor < 0.5 {
		factor = 0.5
	}
	if factor > 1.5 {
		factor = 1.5
	}
	return factor
}

// ForecastEntry is one 3-hour slot from the forecast endpoint
type ForecastEntry struct {
	Time        string  `json:"time"`
	Main        string  `json:"main"`
	Description string  `json:"description"`
	TempC       float64 `json:"temp_c"`
	WindSpeed   float64 `json:"wind_speed"`
}

// Forecast returns the upcoming 3-hour forecast slots for the configured
// city, cache-first with the longer forecast TTL.
func (c *Client) Forecast(ctx context.Context) ([]ForecastEntry, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("weather client disabled")
	}

	cacheKey := "weather:forecast:" + c.city
	if c.cache != nil {
		if data, err := c.cache.GetIfFresh(cacheKey); err == nil && data != nil {
			var entries []ForecastEntry
			if json.Unmarshal(data, &entries) == nil {
				return entries, nil
			}
		}
	}

	entries, err := c.fetchForecast(ctx)
	if err != nil {
		if c.cache != nil {
			if data, cerr := c.cache.Get(cacheKey); cerr == nil && data != nil {
				var stale []ForecastEntry
				if json.Unmarshal(data, &stale) == nil {
					c.log.Warn().Err(err).Msg("Weather API failed, using stale forecast")
					return stale, nil
				}
			}
		}
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Store(cacheKey, entries, forecastTTL); err != nil {
			c.log.Warn().Err(err).Msg("Failed to cache weather forecast")
		}
	}
	return entries, nil
}

type openWeatherForecastResponse struct {
	List []struct {
		DtTxt   string `json:"dt_txt"`
		Weather []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
	} `json:"list"`
}

func (c *Client) fetchForecast(ctx context.Context) ([]ForecastEntry, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		endpoint := fmt.Sprintf("%s/forecast?q=%s&units=metric&appid=%s",
			c.baseURL, url.QueryEscape(c.city), c.apiKey)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("build forecast request: %w", err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("forecast request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("weather API returned %d", resp.StatusCode)
		}

		var body openWeatherForecastResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("decode forecast response: %w", err)
		}

		entries := make([]ForecastEntry, 0, len(body.List))
		for _, slot := range body.List {
			entry := ForecastEntry{
				Time:      slot.DtTxt,
				TempC:     slot.Main.Temp,
				WindSpeed: slot.Wind.Speed,
			}
			if len(slot.Weather) > 0 {
				entry.Main = slot.Weather[0].Main
				entry.Description = slot.Weather[0].Description
			}
			entries = append(entries, entry)
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]ForecastEntry), nil
}

type openWeatherResponse struct {
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Name string `json:"name"`
}

func (c *Client) fetch(ctx context.Context) (*Conditions, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		endpoint := fmt.Sprintf("%s/weather?q=%s&units=metric&appid=%s",
			c.baseURL, url.QueryEscape(c.city), c.apiKey)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("build weather request: %w", err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("weather request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("weather API returned %d", resp.StatusCode)
		}

		var body openWeatherResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("decode weather response: %w", err)
		}

		cond := &Conditions{
			TempC:     body.Main.Temp,
			WindSpeed: body.Wind.Speed,
			City:      body.Name,
		}
		if len(body.Weather) > 0 {
			cond.Main = body.Weather[0].Main
			cond.Description = body.Weather[0].Description
		}
		return cond, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Conditions), nil
}

func (c *Client) fromCache(key string, freshOnly bool) (*Conditions, bool) {
	if c.cache == nil {
		return nil, false
	}
	var data json.RawMessage
	var err error
	if freshOnly {
		data, err = c.cache.GetIfFresh(key)
	} else {
		data, err = c.cache.Get(key)
	}
	if err != nil || data == nil {
		return nil, false
	}
	var cond Conditions
	if err := json.Unmarshal(data, &cond); err != nil {
		return nil, false
	}
	return &cond, true
}
