package domain

import (
	"context"
	"time"
)

// PriceCache stores the most recently observed price per token. The
// monitor writes into it best-effort after each price fetch; the status
// API reads from it. Decisions never depend on cached prices.
type PriceCache interface {
	SetPrice(ctx context.Context, tokenAddress string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, tokenAddress string) (float64, time.Time, error)
	GetPrices(ctx context.Context, tokenAddresses []string) (map[string]float64, error)
}

// EventBus publishes lifecycle events (position created/opened/closed) to
// interested consumers such as the websocket hub.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of raw payloads; it is closed when the
	// context is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter throttles keyed request rates over a sliding window.
type RateLimiter interface {
	// Allow reports whether one more request under key fits the limit,
	// counting it when it does.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
