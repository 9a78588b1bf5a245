package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rehan1020/tgbot/internal/domain"
	"github.com/rehan1020/tgbot/internal/intake"
)

// maxSignalBody caps the accepted request size for signal submission.
const maxSignalBody = 64 << 10

// SignalProcessor is the slice of the lifecycle engine the intake
// endpoint drives.
type SignalProcessor interface {
	ProcessSignal(ctx context.Context, sig domain.Signal) (domain.Position, error)
}

// SignalHandler accepts trading signals over HTTP, as an alternative to
// the Telegram listener.
type SignalHandler struct {
	engine SignalProcessor
	logger *slog.Logger
}

// NewSignalHandler creates a SignalHandler.
func NewSignalHandler(engine SignalProcessor, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{
		engine: engine,
		logger: logHandler(logger, "signals"),
	}
}

// submitSignalRequest is the intake body. Either Text carries a raw
// signal message to run through the parser, or the structured fields
// describe the signal directly.
type submitSignalRequest struct {
	Text string `json:"text"`

	Direction       string  `json:"direction"`
	Pair            string  `json:"pair"`
	ContractAddress string  `json:"contract_address"`
	EntryPrice      float64 `json:"entry_price"`
	TakeProfit      float64 `json:"take_profit"`
	StopLoss        float64 `json:"stop_loss"`
}

type submitSignalResponse struct {
	Position domain.Position `json:"position"`
}

// signalRejection is the structured error body for declined signals.
type signalRejection struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// SubmitSignal parses and validates a signal, hands it to the engine,
// and returns the created position or a structured rejection.
// POST /api/signals
func (h *SignalHandler) SubmitSignal(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSignalBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, signalRejection{
			Error:  "request body too large",
			Reason: "invalid_request",
		})
		return
	}

	var req submitSignalRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, signalRejection{
			Error:  "invalid JSON body",
			Reason: "invalid_request",
		})
		return
	}

	sig, err := h.buildSignal(req, body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, signalRejection{
			Error:  err.Error(),
			Reason: "invalid_signal",
		})
		return
	}

	if sig.Direction == domain.DirectionShort {
		writeJSON(w, http.StatusUnprocessableEntity, signalRejection{
			Error:  "short signals are not tradable on spot",
			Reason: "short_not_supported",
		})
		return
	}

	pos, err := h.engine.ProcessSignal(r.Context(), sig)
	if err != nil {
		h.logger.WarnContext(r.Context(), "signal rejected",
			slog.String("pair", sig.PairName),
			slog.String("error", err.Error()),
		)
		status, reason := rejectionStatus(err)
		writeJSON(w, status, signalRejection{Error: err.Error(), Reason: reason})
		return
	}

	h.logger.InfoContext(r.Context(), "signal accepted",
		slog.Int64("position", pos.ID),
		slog.String("pair", pos.PairName),
	)
	writeJSON(w, http.StatusCreated, submitSignalResponse{Position: pos})
}

// buildSignal constructs the signal from whichever request form was sent.
func (h *SignalHandler) buildSignal(req submitSignalRequest, raw []byte) (domain.Signal, error) {
	if req.Text != "" {
		return intake.Parse(req.Text)
	}
	return domain.NewSignal(
		domain.Direction(strings.ToLower(req.Direction)),
		req.Pair,
		req.ContractAddress,
		req.EntryPrice,
		req.TakeProfit,
		req.StopLoss,
		string(raw),
	)
}

// rejectionStatus maps engine rejections to an HTTP status and a stable
// machine-readable reason code.
func rejectionStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrCapacityExceeded):
		return http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, domain.ErrChainUnresolved):
		return http.StatusUnprocessableEntity, "chain_unresolved"
	case errors.Is(err, domain.ErrNoBackendForChain):
		return http.StatusUnprocessableEntity, "no_backend_for_chain"
	case errors.Is(err, domain.ErrInvalidSignal):
		return http.StatusBadRequest, "invalid_signal"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
