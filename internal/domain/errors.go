package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// Signal intake rejections, in the order ProcessSignal evaluates them.
	ErrCapacityExceeded  = errors.New("max open positions reached")
	ErrChainUnresolved   = errors.New("chain could not be resolved")
	ErrNoBackendForChain = errors.New("no backend registered for chain")

	ErrInvalidSignal = errors.New("invalid signal")
	ErrNoQuote       = errors.New("no quote available")
	ErrWalletLocked  = errors.New("wallet key not configured")
)
