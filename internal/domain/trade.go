package domain

import "time"

// TradeSide distinguishes journal entries for entry and exit swaps.
type TradeSide string

const (
	TradeSideEntry TradeSide = "entry"
	TradeSideExit  TradeSide = "exit"
)

// TradeLogEntry is one row of the swap journal: every executed swap,
// including dry runs, is recorded here for audit and export.
type TradeLogEntry struct {
	ID         int64
	PositionID int64
	Side       TradeSide
	Chain      Chain
	TokenAddr  string
	PairName   string
	AmountIn   float64
	AmountOut  float64
	Price      float64
	TxHash     string
	DryRun     bool
	CreatedAt  time.Time
}
