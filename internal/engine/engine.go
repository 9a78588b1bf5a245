// Package engine drives the position lifecycle: signal intake with
// capacity and routing checks, and the monitor loop that walks open
// positions from pending through entry to a take-profit or stop-loss
// close.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rehan1020/tgbot/internal/domain"
)

// DefaultPollInterval is the monitor cadence when none is configured.
const DefaultPollInterval = 10 * time.Second

// Backends resolves a chain to its trading backend.
type Backends interface {
	Resolve(chain domain.Chain) (domain.DEX, error)
}

// Hooks receive lifecycle transitions after the store write commits. A
// hook error is logged and never rolls the transition back.
type Hooks interface {
	PositionOpened(ctx context.Context, pos domain.Position, result domain.TradeResult) error
	PositionClosed(ctx context.Context, pos domain.Position, result domain.TradeResult, pnlPercent float64) error
}

// Config tunes the engine.
type Config struct {
	// MaxPositions caps pending + active positions; intake beyond the cap
	// is rejected.
	MaxPositions int
	// CapitalPercent is the fraction of the quote balance committed per
	// entry (0.05 = 5%).
	CapitalPercent float64
	// SlippagePercent is the swap tolerance fraction (0.01 = 1%).
	SlippagePercent float64
	PollInterval    time.Duration
	// DryRun starts the engine in simulation; SetDryRun can flip it at
	// runtime.
	DryRun bool
	// QuoteToken is the default quote symbol when a pair name does not
	// carry a recognized one. Defaults to USDT.
	QuoteToken string
}

// Dependencies wires the engine's collaborators. Positions, Backends,
// and Resolver are required; the rest are best-effort and may be nil.
type Dependencies struct {
	Positions domain.PositionStore
	Trades    domain.TradeLogStore
	Backends  Backends
	Resolver  domain.ChainResolver
	Prices    domain.PriceCache
	Bus       domain.EventBus
}

// Engine owns every position transition. One instance runs per process;
// the monitor loop processes positions one at a time, so no transition
// races another.
type Engine struct {
	cfg       Config
	positions domain.PositionStore
	trades    domain.TradeLogStore
	backends  Backends
	resolver  domain.ChainResolver
	prices    domain.PriceCache
	bus       domain.EventBus
	pollDur   time.Duration
	logger    *slog.Logger

	dryRun atomic.Bool

	mu    sync.RWMutex
	hooks []Hooks
}

// New creates the engine. PollInterval defaults to 10s when unset.
func New(cfg Config, deps Dependencies, logger *slog.Logger) (*Engine, error) {
	if deps.Positions == nil {
		return nil, fmt.Errorf("engine: position store is required")
	}
	if deps.Backends == nil {
		return nil, fmt.Errorf("engine: backend registry is required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("engine: chain resolver is required")
	}
	if cfg.MaxPositions <= 0 {
		return nil, fmt.Errorf("engine: max positions must be positive, got %d", cfg.MaxPositions)
	}
	if cfg.CapitalPercent <= 0 || cfg.CapitalPercent > 1 {
		return nil, fmt.Errorf("engine: capital percent must be in (0, 1], got %v", cfg.CapitalPercent)
	}

	pollDur := cfg.PollInterval
	if pollDur <= 0 {
		pollDur = DefaultPollInterval
	}
	if cfg.QuoteToken == "" {
		cfg.QuoteToken = "USDT"
	}

	e := &Engine{
		cfg:       cfg,
		positions: deps.Positions,
		trades:    deps.Trades,
		backends:  deps.Backends,
		resolver:  deps.Resolver,
		prices:    deps.Prices,
		bus:       deps.Bus,
		pollDur:   pollDur,
		logger:    logger.With(slog.String("component", "engine")),
	}
	e.dryRun.Store(cfg.DryRun)
	return e, nil
}

// AddHook registers a lifecycle hook. Call before Run.
func (e *Engine) AddHook(h Hooks) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = append(e.hooks, h)
}

// DryRun reports whether swaps are currently simulated.
func (e *Engine) DryRun() bool { return e.dryRun.Load() }

// SetDryRun flips simulation mode for all subsequent swaps. In-flight
// swaps keep the mode they started with.
func (e *Engine) SetDryRun(v bool) {
	prev := e.dryRun.Swap(v)
	if prev != v {
		e.logger.Info("dry run mode changed", slog.Bool("dry_run", v))
	}
}

// ProcessSignal turns a validated signal into a pending position.
// Rejections are checked in a fixed order: capacity, then chain
// resolution, then backend availability. A signal rejected for capacity
// reports capacity even when its chain would also fail to resolve.
func (e *Engine) ProcessSignal(ctx context.Context, sig domain.Signal) (domain.Position, error) {
	if sig.Direction != domain.DirectionLong {
		return domain.Position{}, fmt.Errorf("engine: %s signals are not tradable spot: %w", sig.Direction, domain.ErrInvalidSignal)
	}

	open, err := e.positions.CountOpen(ctx)
	if err != nil {
		return domain.Position{}, fmt.Errorf("engine: count open positions: %w", err)
	}
	if open >= e.cfg.MaxPositions {
		return domain.Position{}, fmt.Errorf("engine: %d of %d open: %w", open, e.cfg.MaxPositions, domain.ErrCapacityExceeded)
	}

	chain := sig.Chain
	if !chain.Valid() {
		chain, err = e.resolver.Resolve(ctx, sig.ContractAddress)
		if err != nil {
			return domain.Position{}, fmt.Errorf("engine: resolve chain: %w", err)
		}
	}

	if _, err := e.backends.Resolve(chain); err != nil {
		return domain.Position{}, fmt.Errorf("engine: route %s: %w", chain, err)
	}

	pos := domain.Position{
		Chain:            chain,
		TokenAddress:     sig.ContractAddress,
		PairName:         sig.PairName,
		QuoteToken:       quoteSymbol(sig.PairName, e.cfg.QuoteToken),
		TargetEntryPrice: sig.EntryPrice,
		TakeProfitPrice:  sig.TakeProfit,
		StopLossPrice:    sig.StopLoss,
		Status:           domain.PositionStatusPending,
		CreatedAt:        time.Now().UTC(),
		RawSignal:        sig.RawMessage,
	}
	if err := e.positions.Create(ctx, &pos); err != nil {
		return domain.Position{}, fmt.Errorf("engine: create position: %w", err)
	}

	e.logger.InfoContext(ctx, "position created",
		slog.Int64("id", pos.ID),
		slog.String("pair", pos.PairName),
		slog.String("chain", string(pos.Chain)),
		slog.Float64("entry", pos.TargetEntryPrice),
		slog.Float64("tp", pos.TakeProfitPrice),
		slog.Float64("sl", pos.StopLossPrice),
	)
	e.publish(ctx, "position_created", pos)

	return pos, nil
}

// Run drives the monitor loop until the context is cancelled or the
// position store fails. Backend failures are logged and retried on later
// iterations; store failures abort, since the engine cannot act honestly
// on state it cannot read or persist.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "monitor started",
		slog.Duration("poll_interval", e.pollDur),
		slog.Bool("dry_run", e.dryRun.Load()),
	)

	ticker := time.NewTicker(e.pollDur)
	defer ticker.Stop()

	for {
		if err := e.tick(ctx); err != nil {
			return fmt.Errorf("engine: monitor: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tick processes one monitor iteration over a fresh read of the open
// set. Positions are handled strictly one at a time.
func (e *Engine) tick(ctx context.Context) error {
	open, err := e.positions.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("list open positions: %w", err)
	}

	for _, pos := range open {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.checkPosition(ctx, pos); err != nil {
			return err
		}
	}
	return nil
}

// checkPosition evaluates one open position against the current price.
// Only store failures propagate; anything the next iteration can retry
// is logged and skipped.
func (e *Engine) checkPosition(ctx context.Context, pos domain.Position) error {
	backend, err := e.backends.Resolve(pos.Chain)
	if err != nil {
		e.logger.WarnContext(ctx, "no backend for open position",
			slog.Int64("id", pos.ID),
			slog.String("chain", string(pos.Chain)),
		)
		return nil
	}

	price, err := backend.GetTokenPrice(ctx, pos.TokenAddress)
	if err != nil {
		e.logger.DebugContext(ctx, "price fetch failed",
			slog.Int64("id", pos.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if e.prices != nil {
		_ = e.prices.SetPrice(ctx, pos.TokenAddress, price, time.Now().UTC())
	}

	switch pos.Status {
	case domain.PositionStatusPending:
		if price <= pos.TargetEntryPrice {
			return e.executeEntry(ctx, pos, backend, price)
		}
	case domain.PositionStatusActive:
		// Take-profit is evaluated before stop-loss; when one price
		// satisfies both, the position closes as a win.
		if price >= pos.TakeProfitPrice {
			return e.executeExit(ctx, pos, backend, price, domain.PositionStatusClosedTP)
		}
		if price <= pos.StopLossPrice {
			return e.executeExit(ctx, pos, backend, price, domain.PositionStatusClosedSL)
		}
	}
	return nil
}

// executeEntry sizes and executes the entry swap. Any failure leaves the
// position pending; the next iteration retries from a fresh balance.
func (e *Engine) executeEntry(ctx context.Context, pos domain.Position, backend domain.DEX, price float64) error {
	quoteAddr, ok := domain.QuoteTokenAddress(pos.Chain, pos.QuoteToken)
	if !ok {
		e.logger.WarnContext(ctx, "no quote token address",
			slog.Int64("id", pos.ID),
			slog.String("quote", pos.QuoteToken),
			slog.String("chain", string(pos.Chain)),
		)
		return nil
	}

	balance := backend.GetTokenBalance(ctx, quoteAddr)
	size := balance * e.cfg.CapitalPercent
	if size <= 0 {
		e.logger.WarnContext(ctx, "entry skipped: no quote balance",
			slog.Int64("id", pos.ID),
			slog.String("quote", pos.QuoteToken),
			slog.Float64("balance", balance),
		)
		return nil
	}

	quote, err := backend.GetQuote(ctx, quoteAddr, pos.TokenAddress, size, e.cfg.SlippagePercent)
	if err != nil {
		e.logger.WarnContext(ctx, "entry quote failed",
			slog.Int64("id", pos.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	result, err := backend.ExecuteSwap(ctx, quote, e.dryRun.Load())
	if err != nil || !result.Success {
		e.logger.WarnContext(ctx, "entry swap failed, position stays pending",
			slog.Int64("id", pos.ID),
			slog.String("error", swapError(result, err)),
		)
		return nil
	}

	now := time.Now().UTC()
	pos.Status = domain.PositionStatusActive
	pos.EntryAmountQuote = result.AmountIn
	pos.EntryAmountToken = result.AmountOut
	pos.ActualEntryPrice = price
	if result.AmountOut > 0 {
		pos.ActualEntryPrice = result.AmountIn / result.AmountOut
	}
	pos.OpenedAt = &now
	pos.EntryTxHash = &result.TxHash

	if err := e.positions.Update(ctx, pos); err != nil {
		return fmt.Errorf("update position %d: %w", pos.ID, err)
	}

	e.recordTrade(ctx, pos, domain.TradeSideEntry, result)
	e.logger.InfoContext(ctx, "position opened",
		slog.Int64("id", pos.ID),
		slog.String("pair", pos.PairName),
		slog.Float64("amount_quote", pos.EntryAmountQuote),
		slog.Float64("amount_token", pos.EntryAmountToken),
		slog.Float64("entry_price", pos.ActualEntryPrice),
		slog.String("tx", result.TxHash),
	)
	e.publish(ctx, "position_opened", pos)
	e.fireOpened(ctx, pos, result)

	return nil
}

// executeExit sells the full position. Any failure leaves the position
// active for the next iteration; a successful swap transitions to the
// terminal status and records PnL.
func (e *Engine) executeExit(ctx context.Context, pos domain.Position, backend domain.DEX, price float64, status domain.PositionStatus) error {
	quoteAddr, ok := domain.QuoteTokenAddress(pos.Chain, pos.QuoteToken)
	if !ok {
		e.logger.WarnContext(ctx, "no quote token address",
			slog.Int64("id", pos.ID),
			slog.String("quote", pos.QuoteToken),
			slog.String("chain", string(pos.Chain)),
		)
		return nil
	}
	if pos.EntryAmountToken <= 0 {
		e.logger.WarnContext(ctx, "exit skipped: no recorded token amount", slog.Int64("id", pos.ID))
		return nil
	}

	quote, err := backend.GetQuote(ctx, pos.TokenAddress, quoteAddr, pos.EntryAmountToken, e.cfg.SlippagePercent)
	if err != nil {
		e.logger.WarnContext(ctx, "exit quote failed",
			slog.Int64("id", pos.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	result, err := backend.ExecuteSwap(ctx, quote, e.dryRun.Load())
	if err != nil || !result.Success {
		e.logger.WarnContext(ctx, "exit swap failed, position stays active",
			slog.Int64("id", pos.ID),
			slog.String("error", swapError(result, err)),
		)
		return nil
	}

	exitPrice := price
	if result.AmountIn > 0 {
		exitPrice = result.AmountOut / result.AmountIn
	}
	pnlPercent := domain.PnLPercentFrom(pos.ActualEntryPrice, exitPrice)
	pnlAbsolute := result.AmountOut - pos.EntryAmountQuote

	now := time.Now().UTC()
	pos.Status = status
	pos.ClosedAt = &now
	pos.ExitTxHash = &result.TxHash
	pos.ExitPrice = &exitPrice
	pos.PnLPercent = &pnlPercent
	pos.PnLAbsolute = &pnlAbsolute

	if err := e.positions.Update(ctx, pos); err != nil {
		return fmt.Errorf("update position %d: %w", pos.ID, err)
	}

	e.recordTrade(ctx, pos, domain.TradeSideExit, result)
	e.logger.InfoContext(ctx, "position closed",
		slog.Int64("id", pos.ID),
		slog.String("pair", pos.PairName),
		slog.String("status", string(status)),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("pnl_percent", pnlPercent),
		slog.Float64("pnl_absolute", pnlAbsolute),
		slog.String("tx", result.TxHash),
	)
	e.publish(ctx, "position_closed", pos)
	e.fireClosed(ctx, pos, result, pnlPercent)

	return nil
}

// Stats aggregates the positions table by status.
func (e *Engine) Stats(ctx context.Context) (domain.PositionStats, error) {
	stats, err := e.positions.Stats(ctx)
	if err != nil {
		return domain.PositionStats{}, fmt.Errorf("engine: stats: %w", err)
	}
	return stats, nil
}

// recordTrade journals an executed swap, best-effort.
func (e *Engine) recordTrade(ctx context.Context, pos domain.Position, side domain.TradeSide, result domain.TradeResult) {
	if e.trades == nil {
		return
	}
	err := e.trades.Insert(ctx, domain.TradeLogEntry{
		PositionID: pos.ID,
		Side:       side,
		Chain:      pos.Chain,
		TokenAddr:  pos.TokenAddress,
		PairName:   pos.PairName,
		AmountIn:   result.AmountIn,
		AmountOut:  result.AmountOut,
		Price:      result.Price,
		TxHash:     result.TxHash,
		DryRun:     result.TxHash == domain.DryRunTxHash,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		e.logger.WarnContext(ctx, "trade journal insert failed",
			slog.Int64("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}

// publish emits a lifecycle event to the bus, best-effort.
func (e *Engine) publish(ctx context.Context, event string, pos domain.Position) {
	if e.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"event":       event,
		"position_id": pos.ID,
		"pair":        pos.PairName,
		"chain":       string(pos.Chain),
		"status":      string(pos.Status),
	})
	_ = e.bus.Publish(ctx, "positions", payload)
}

func (e *Engine) fireOpened(ctx context.Context, pos domain.Position, result domain.TradeResult) {
	for _, h := range e.snapshotHooks() {
		if err := h.PositionOpened(ctx, pos, result); err != nil {
			e.logger.WarnContext(ctx, "position opened hook failed",
				slog.Int64("id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (e *Engine) fireClosed(ctx context.Context, pos domain.Position, result domain.TradeResult, pnlPercent float64) {
	for _, h := range e.snapshotHooks() {
		if err := h.PositionClosed(ctx, pos, result, pnlPercent); err != nil {
			e.logger.WarnContext(ctx, "position closed hook failed",
				slog.Int64("id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (e *Engine) snapshotHooks() []Hooks {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Hooks, len(e.hooks))
	copy(out, e.hooks)
	return out
}

// quoteSymbol extracts the quote-asset symbol from a pair name like
// "PEPE/USDT", falling back to def.
func quoteSymbol(pairName, def string) string {
	for i := len(pairName) - 1; i >= 0; i-- {
		if pairName[i] == '/' {
			if sym := pairName[i+1:]; sym != "" {
				return normalizeQuote(sym, def)
			}
			break
		}
	}
	return def
}

// normalizeQuote maps pair-name quote symbols onto tradable stables: USD
// pairs settle in USDC.
func normalizeQuote(sym, def string) string {
	switch sym {
	case "USDT", "USDC":
		return sym
	case "USD":
		return "USDC"
	default:
		return def
	}
}

func swapError(result domain.TradeResult, err error) string {
	if err != nil {
		return err.Error()
	}
	if result.Error != "" {
		return result.Error
	}
	return "swap reported failure"
}
