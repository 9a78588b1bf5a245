package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports connectivity for one dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports process liveness plus store and cache
// connectivity.
type HealthHandler struct {
	store  Pinger
	cache  Pinger // nil when Redis is not configured
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. cache may be nil.
func NewHealthHandler(store, cache Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		store:  store,
		cache:  cache,
		logger: logHandler(logger, "health"),
	}
}

// HealthCheck pings the configured dependencies and reports per-check
// results. Any failing dependency degrades the response to 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := map[string]string{}

	check := func(name string, p Pinger) {
		if p == nil {
			return
		}
		if err := p.Ping(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "health check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			checks[name] = "unreachable"
			status = "degraded"
			return
		}
		checks[name] = "ok"
	}
	check("postgres", h.store)
	check("redis", h.cache)

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
