package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/fleetops/dispatch/internal/api"
	"github.com/fleetops/dispatch/internal/database"
	"github.com/fleetops/dispatch/internal/di"
	"github.com/fleetops/dispatch/internal/domain"
)

// SystemHandlers serves the operational surface: liveness, system status,
// database stats, and job run history with manual triggering.
type SystemHandlers struct {
	container *di.Container
	startedAt time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates the system handlers
func NewSystemHandlers(c *di.Container, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		container: c,
		startedAt: time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// HandleHealth answers the liveness probe with per-database pings
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	for name, db := range h.databases() {
		if err := db.QuickCheck(ctx); err != nil {
			checks[name] = "unreachable"
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	api.WriteJSON(w, status, map[string]interface{}{
		"status":    state,
		"databases": checks,
	})
}

// HandleStatus returns host metrics plus control-plane readiness
func (h *SystemHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"uptime_seconds":   int(time.Since(h.startedAt).Seconds()),
		"models_ready":     h.container.Models.Ready(),
		"ws_connections":   h.container.Realtime.Count(),
		"scheduler_jobs":   h.container.Scheduler.JobNames(),
		"cache_backend":    h.container.CacheBackend,
		"export_enabled":   h.container.Exporter.Enabled(),
		"weather_enabled":  h.container.WeatherClient.Enabled(),
		"push_enabled":     h.container.PushDispatcher.Enabled(),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory_percent"] = vm.UsedPercent
		status["memory_total_mb"] = vm.Total / (1024 * 1024)
	}
	if du, err := disk.Usage("/"); err == nil {
		status["disk_percent"] = du.UsedPercent
	}

	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"status": status})
}

// HandleDatabaseStats returns size and page statistics for every database
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{}
	for name, db := range h.databases() {
		s, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("db", name).Msg("Failed to collect database stats")
			continue
		}
		stats[name] = map[string]interface{}{
			"size_bytes":     s.SizeBytes,
			"wal_size_bytes": s.WALSizeBytes,
			"page_count":     s.PageCount,
			"page_size":      s.PageSize,
			"freelist_count": s.FreelistCount,
		}
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"databases": stats})
}

// HandleJobRuns returns the job run tail
func (h *SystemHandlers) HandleJobRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.container.JobRuns.Recent(50)
	if err != nil {
		api.WriteError(h.log, w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// HandleTriggerJob runs a scheduled job on demand
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.container.Scheduler.RunNow(name); err != nil {
		api.WriteError(h.log, w, domain.Validationf("job %q failed or is unknown: %v", name, err))
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "completed", "job": name})
}

func (h *SystemHandlers) databases() map[string]*database.DB {
	return map[string]*database.DB{
		"fleet":     h.container.FleetDB,
		"telemetry": h.container.TelemetryDB,
		"ledger":    h.container.LedgerDB,
		"cache":     h.container.CacheDB,
	}
}
