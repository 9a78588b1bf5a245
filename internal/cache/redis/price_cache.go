package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rehan1020/tgbot/internal/domain"
)

// PriceCache implements domain.PriceCache on Redis hashes. Each token's
// last observed price lives at "price:{tokenAddress}" with fields "price"
// and "ts" (Unix nanoseconds). Entries carry a TTL so a stalled monitor
// cannot keep serving old prices as current.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client. A zero
// ttl keeps entries until they are overwritten.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.rdb, ttl: ttl}
}

func priceKey(tokenAddress string) string {
	return "price:" + tokenAddress
}

// SetPrice stores the latest observed price and timestamp for a token.
func (pc *PriceCache) SetPrice(ctx context.Context, tokenAddress string, price float64, ts time.Time) error {
	key := priceKey(tokenAddress)
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}

	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", tokenAddress, err)
	}
	return nil
}

// GetPrice retrieves the latest price and observation time for a token.
// It returns domain.ErrNotFound when no price has been cached.
func (pc *PriceCache) GetPrice(ctx context.Context, tokenAddress string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(tokenAddress)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", tokenAddress, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	price, ts, err := parsePriceFields(vals)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: price %s: %w", tokenAddress, err)
	}
	return price, ts, nil
}

// GetPrices retrieves cached prices for multiple tokens with one
// pipelined round trip. Tokens without a cached price are omitted from
// the result map.
func (pc *PriceCache) GetPrices(ctx context.Context, tokenAddresses []string) (map[string]float64, error) {
	if len(tokenAddresses) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(tokenAddresses))
	for _, addr := range tokenAddresses {
		cmds[addr] = pipe.HGetAll(ctx, priceKey(addr))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]float64, len(tokenAddresses))
	for addr, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		price, _, err := parsePriceFields(vals)
		if err != nil {
			continue
		}
		result[addr] = price
	}
	return result, nil
}

func parsePriceFields(vals map[string]string) (float64, time.Time, error) {
	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parse price %q: %w", priceStr, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parse ts %q: %w", tsStr, err)
	}

	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
