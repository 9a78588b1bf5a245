package domain

import "context"

// DEX is the capability contract every exchange backend implements. The
// lifecycle engine only talks to backends through this interface,
// resolved per chain from a registry built at startup.
//
// Timeouts are the backend's responsibility: no method may block the
// monitor indefinitely, and a timed-out quote/price lookup is reported as
// an error (treated by the engine as "no result this cycle"), not a hang.
type DEX interface {
	// Chain returns the network this backend trades on.
	Chain() Chain
	// Name identifies the backend in logs, e.g. "jupiter".
	Name() string

	// GetQuote prices a prospective swap of amount input tokens. It is
	// purely informational and mutates nothing. Slippage is a fraction
	// (0.01 = 1%).
	GetQuote(ctx context.Context, inputToken, outputToken string, amount, slippage float64) (Quote, error)

	// ExecuteSwap performs the swap described by a quote previously
	// returned from GetQuote. With dryRun set it returns a synthetic
	// success carrying the quote's expected amounts and makes no network
	// call that signs or broadcasts anything. Live swaps do not return
	// until confirmation is reasonably established or failure is
	// definitive.
	ExecuteSwap(ctx context.Context, quote Quote, dryRun bool) (TradeResult, error)

	// GetTokenPrice returns a best-effort USD spot price for the token.
	GetTokenPrice(ctx context.Context, tokenAddress string) (float64, error)

	// GetTokenBalance and GetNativeBalance report holdings under the
	// backend's configured wallet. Both fail closed: any retrieval error
	// yields zero, never an error value, because the engine sizes trades
	// directly from the returned number and a spurious positive would
	// over-trade.
	GetTokenBalance(ctx context.Context, tokenAddress string) float64
	GetNativeBalance(ctx context.Context) float64

	// Close releases RPC/HTTP resources held by the backend.
	Close() error
}

// ChainResolver determines which chain a contract address belongs to.
// Implementations may consult external indexers; a lookup that cannot
// place the address returns an error wrapping ErrChainUnresolved.
type ChainResolver interface {
	Resolve(ctx context.Context, address string) (Chain, error)
}
