package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves runtime status for dashboards.
type StatusHandler struct {
	Mode         string
	PollInterval time.Duration
	StartedAt    time.Time
	DryRun       func() bool // nil reads as false
}

// NewStatusHandler creates a StatusHandler. dryRun is sampled on every
// request so admin toggles show up immediately.
func NewStatusHandler(mode string, pollInterval time.Duration, startedAt time.Time, dryRun func() bool) *StatusHandler {
	return &StatusHandler{
		Mode:         mode,
		PollInterval: pollInterval,
		StartedAt:    startedAt,
		DryRun:       dryRun,
	}
}

// GetStatus responds with the current mode, dry-run flag, monitor poll
// interval, and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	dryRun := false
	if h.DryRun != nil {
		dryRun = h.DryRun()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"dry_run":        dryRun,
		"poll_interval":  h.PollInterval.String(),
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	})
}
