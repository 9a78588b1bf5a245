package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rehan1020/tgbot/internal/domain"
)

// PriceReader is the cache view the price endpoint reads.
type PriceReader interface {
	GetPrices(ctx context.Context, tokenAddresses []string) (map[string]float64, error)
}

// OpenPositionLister supplies the default token set when the request
// does not name any.
type OpenPositionLister interface {
	ListOpen(ctx context.Context) ([]domain.Position, error)
}

// PriceHandler serves last-observed prices from the cache.
type PriceHandler struct {
	prices    PriceReader // nil when Redis is not configured
	positions OpenPositionLister
	logger    *slog.Logger
}

// NewPriceHandler creates a PriceHandler. prices may be nil, in which
// case the endpoint reports that no cache is available.
func NewPriceHandler(prices PriceReader, positions OpenPositionLister, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{
		prices:    prices,
		positions: positions,
		logger:    logHandler(logger, "prices"),
	}
}

type pricesResponse struct {
	Prices map[string]float64 `json:"prices"`
}

// GetPrices returns cached prices for the requested token addresses, or
// for all open positions' tokens when none are given. Prices are
// best-effort monitor observations, not quotes.
// GET /api/prices?tokens=addr1,addr2
func (h *PriceHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	if h.prices == nil {
		writeError(w, http.StatusServiceUnavailable, "price cache not configured")
		return
	}

	tokens := splitTokens(r.URL.Query().Get("tokens"))
	if len(tokens) == 0 {
		open, err := h.positions.ListOpen(r.Context())
		if err != nil {
			h.logger.ErrorContext(r.Context(), "list open positions failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to resolve token set")
			return
		}
		for _, p := range open {
			tokens = append(tokens, p.TokenAddress)
		}
	}

	prices, err := h.prices.GetPrices(r.Context(), tokens)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "price cache read failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read prices")
		return
	}

	if prices == nil {
		prices = map[string]float64{}
	}
	writeJSON(w, http.StatusOK, pricesResponse{Prices: prices})
}

// splitTokens parses the comma-separated tokens parameter, dropping
// empty entries.
func splitTokens(raw string) []string {
	if raw == "" {
		return nil
	}
	var tokens []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}
