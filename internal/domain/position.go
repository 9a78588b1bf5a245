// Package domain defines the core types, store interfaces, and sentinel
// errors shared across the bot. It has no dependencies on other internal
// packages.
package domain

import "time"

// PositionStatus tracks where a position sits in its lifecycle.
type PositionStatus string

const (
	// PositionStatusPending is the initial state: waiting for price to
	// reach the target entry level.
	PositionStatusPending PositionStatus = "pending"
	// PositionStatusActive means the entry swap filled and the position
	// is being monitored for take-profit / stop-loss.
	PositionStatusActive PositionStatus = "active"
	// PositionStatusClosedTP is terminal: exited at take-profit.
	PositionStatusClosedTP PositionStatus = "closed_tp"
	// PositionStatusClosedSL is terminal: exited at stop-loss.
	PositionStatusClosedSL PositionStatus = "closed_sl"
	// PositionStatusFailed is a terminal state reserved for unrecoverable
	// errors. The monitor never sets it on its own: entry and exit
	// failures are retried indefinitely.
	PositionStatusFailed PositionStatus = "failed"
)

// IsOpen reports whether the status still participates in monitoring.
func (s PositionStatus) IsOpen() bool {
	return s == PositionStatusPending || s == PositionStatusActive
}

// IsTerminal reports whether the status permits no further transitions.
func (s PositionStatus) IsTerminal() bool {
	return s == PositionStatusClosedTP || s == PositionStatusClosedSL || s == PositionStatusFailed
}

// Position is a single tracked trade from signal intake through closure.
// The lifecycle engine is the only writer once a row exists; nullable
// columns are pointer fields and stay nil until the corresponding
// transition happens.
type Position struct {
	ID           int64
	Chain        Chain
	TokenAddress string
	PairName     string
	// QuoteToken is the quote-asset symbol (e.g. "USDT"); the per-chain
	// contract address comes from QuoteTokenAddress.
	QuoteToken string

	TargetEntryPrice float64
	TakeProfitPrice  float64
	StopLossPrice    float64

	Status PositionStatus

	// Filled amounts, populated on entry.
	EntryAmountQuote float64 // quote asset spent
	EntryAmountToken float64 // tokens received
	ActualEntryPrice float64 // realized entry price

	CreatedAt time.Time
	OpenedAt  *time.Time
	ClosedAt  *time.Time

	EntryTxHash *string
	ExitTxHash  *string

	// Populated only in a terminal closed state.
	ExitPrice   *float64
	PnLPercent  *float64
	PnLAbsolute *float64

	RawSignal string
}

// PnLPercentFrom computes the percentage PnL between an entry and exit
// price. A non-positive entry price yields 0 rather than dividing by zero.
func PnLPercentFrom(entryPrice, exitPrice float64) float64 {
	if entryPrice <= 0 {
		return 0
	}
	return (exitPrice - entryPrice) / entryPrice * 100
}
