package domain

import "encoding/json"

// DryRunTxHash is the sentinel transaction reference reported for
// simulated swaps.
const DryRunTxHash = "DRY_RUN_NO_TX"

// Quote is a priced proposal for a single prospective swap. It is
// ephemeral and never persisted. Raw carries the backend's own quote
// payload and must be threaded back unchanged into ExecuteSwap — Jupiter
// in particular rebuilds the transaction from it.
type Quote struct {
	InputToken   string
	OutputToken  string
	InputAmount  float64
	OutputAmount float64
	// Price is output per input unit implied by the quoted amounts.
	Price       float64
	PriceImpact float64
	// Route is a human-readable description of the venues the aggregator
	// would route through, e.g. "Raydium -> Orca".
	Route string
	// Slippage is the tolerance fraction the quote was requested with
	// (0.01 = 1%); backends that need it at execution time read it back
	// from here.
	Slippage float64
	Raw      json.RawMessage
}

// TradeResult is the outcome of an ExecuteSwap call.
type TradeResult struct {
	Success   bool
	TxHash    string // DryRunTxHash for simulated swaps, empty if never broadcast
	AmountIn  float64
	AmountOut float64
	Price     float64
	GasUsed   uint64
	Error     string
}

// DryRunResult builds the synthetic success result for a simulated swap:
// the quote's expected amounts, the sentinel tx reference, and no
// external side effects.
func DryRunResult(q Quote) TradeResult {
	return TradeResult{
		Success:   true,
		TxHash:    DryRunTxHash,
		AmountIn:  q.InputAmount,
		AmountOut: q.OutputAmount,
		Price:     q.Price,
	}
}
