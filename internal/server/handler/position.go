package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rehan1020/tgbot/internal/domain"
)

// PositionService defines the methods that the position handler requires.
// It is declared locally so this package does not depend on the concrete
// store implementation.
type PositionService interface {
	ListOpen(ctx context.Context) ([]domain.Position, error)
	ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error)
	GetByID(ctx context.Context, id int64) (domain.Position, error)
	Stats(ctx context.Context) (domain.PositionStats, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logHandler(logger, "positions"),
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
	Count     int               `json:"count"`
}

// ListOpen returns positions that are still pending or active.
// GET /api/positions
func (h *PositionHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.ListOpen(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list open positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions, Count: len(positions)})
}

// History returns recently created positions, newest first, including
// closed ones. Supports limit/offset query parameters.
// GET /api/positions/history
func (h *PositionHandler) History(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	positions, err := h.positions.ListRecent(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list recent positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions, Count: len(positions)})
}

// statsResponse is the aggregate view over the positions table.
type statsResponse struct {
	ByStatus map[domain.PositionStatus]int `json:"by_status"`
	Total    int                           `json:"total"`
	TotalPnL float64                       `json:"total_pnl"`
}

// Stats returns lifetime position counts grouped by status plus realized PnL.
// GET /api/positions/stats
func (h *PositionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.positions.Stats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "position stats failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	if stats.ByStatus == nil {
		stats.ByStatus = map[domain.PositionStatus]int{}
	}
	writeJSON(w, http.StatusOK, statsResponse{
		ByStatus: stats.ByStatus,
		Total:    stats.Total(),
		TotalPnL: stats.TotalPnL,
	})
}

// GetPosition returns a single position by its numeric ID.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid position id")
		return
	}

	pos, err := h.positions.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get position failed",
			slog.Int64("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load position")
		return
	}

	writeJSON(w, http.StatusOK, pos)
}
