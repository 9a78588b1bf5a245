package notify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rehan1020/tgbot/internal/domain"
	"github.com/rehan1020/tgbot/internal/engine"
)

// Lifecycle event names used for notification filtering.
const (
	EventPositionCreated = "position_created"
	EventPositionOpened  = "position_opened"
	EventPositionClosed  = "position_closed"
	EventError           = "error"
)

// Hooks adapts the Notifier to the engine's lifecycle hooks and the
// intake outcomes, formatting transitions as operator messages.
type Hooks struct {
	notifier *Notifier
}

// NewHooks creates the notification hooks over a Notifier.
func NewHooks(n *Notifier) *Hooks {
	return &Hooks{notifier: n}
}

// PositionCreated reports a signal accepted into a pending position.
func (h *Hooks) PositionCreated(ctx context.Context, pos domain.Position) error {
	msg := fmt.Sprintf("%s on %s\nEntry target %s\nTP %s / SL %s",
		pos.PairName, pos.Chain,
		fmtPrice(pos.TargetEntryPrice), fmtPrice(pos.TakeProfitPrice), fmtPrice(pos.StopLossPrice))
	return h.notifier.Notify(ctx, EventPositionCreated,
		fmt.Sprintf("Position #%d created", pos.ID), msg)
}

// SignalRejected reports an intake rejection.
func (h *Hooks) SignalRejected(ctx context.Context, sig domain.Signal, reason error) error {
	msg := fmt.Sprintf("%s (%s)\n%v", sig.PairName, sig.ContractAddress, reason)
	return h.notifier.Notify(ctx, EventError, "Signal rejected", msg)
}

// PositionOpened reports an entry fill.
func (h *Hooks) PositionOpened(ctx context.Context, pos domain.Position, result domain.TradeResult) error {
	msg := fmt.Sprintf("%s filled at %s\nSpent %s %s for %s tokens%s",
		pos.PairName, fmtPrice(pos.ActualEntryPrice),
		fmtPrice(pos.EntryAmountQuote), pos.QuoteToken,
		fmtPrice(pos.EntryAmountToken), txSuffix(result))
	return h.notifier.Notify(ctx, EventPositionOpened,
		fmt.Sprintf("Position #%d opened", pos.ID), msg)
}

// PositionClosed reports an exit fill with the realized PnL.
func (h *Hooks) PositionClosed(ctx context.Context, pos domain.Position, result domain.TradeResult, pnlPercent float64) error {
	title := fmt.Sprintf("Position #%d closed: stop loss", pos.ID)
	if pos.Status == domain.PositionStatusClosedTP {
		title = fmt.Sprintf("Position #%d closed: take profit", pos.ID)
	}

	var exit, absolute float64
	if pos.ExitPrice != nil {
		exit = *pos.ExitPrice
	}
	if pos.PnLAbsolute != nil {
		absolute = *pos.PnLAbsolute
	}

	msg := fmt.Sprintf("%s out at %s\nPnL %+.2f%% (%+.2f %s)%s",
		pos.PairName, fmtPrice(exit), pnlPercent, absolute, pos.QuoteToken, txSuffix(result))
	return h.notifier.Notify(ctx, EventPositionClosed, title, msg)
}

func txSuffix(result domain.TradeResult) string {
	switch result.TxHash {
	case domain.DryRunTxHash:
		return "\n(dry run)"
	case "":
		return ""
	default:
		return "\nTx: " + result.TxHash
	}
}

// fmtPrice renders a price without exponent notation; micro-cap token
// prices routinely sit below 1e-4.
func fmtPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Compile-time interface check.
var _ engine.Hooks = (*Hooks)(nil)
