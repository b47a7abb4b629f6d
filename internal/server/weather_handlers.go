package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetops/dispatch/internal/api"
)

// registerWeatherRoutes mounts the thin weather passthrough endpoints.
// A disabled oracle answers 503 rather than failing silently.
func (s *Server) registerWeatherRoutes(r chi.Router) {
	r.Get("/api/weather/current", s.handleWeatherCurrent)
	r.Get("/api/weather/forecast", s.handleWeatherForecast)
}

func (s *Server) handleWeatherCurrent(w http.ResponseWriter, r *http.Request) {
	client := s.container.WeatherClient
	if !client.Enabled() {
		api.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "weather oracle not configured"})
		return
	}
	cond, err := client.Current(r.Context())
	if err != nil {
		api.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "weather unavailable"})
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"conditions":    cond,
		"impact_factor": client.ImpactFactor(r.Context()),
	})
}

func (s *Server) handleWeatherForecast(w http.ResponseWriter, r *http.Request) {
	client := s.container.WeatherClient
	if !client.Enabled() {
		api.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "weather oracle not configured"})
		return
	}
	entries, err := client.Forecast(r.Context())
	if err != nil {
		api.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "weather unavailable"})
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"forecast": entries,
		"count":    len(entries),
	})
}
