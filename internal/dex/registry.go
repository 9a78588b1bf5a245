// Package dex holds the per-chain backend registry. Concrete backends
// live in the jupiter and oneinch sub-packages; the engine only sees
// domain.DEX values resolved from here.
package dex

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rehan1020/tgbot/internal/domain"
)

// Registry maps chains to their configured backend. Registration happens
// once during wiring; after that the registry is read-only and safe for
// concurrent lookup from the monitor and the bot commands.
type Registry struct {
	backends map[domain.Chain]domain.DEX
	mu       sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[domain.Chain]domain.DEX),
	}
}

// Register adds a backend for its chain. Registering a chain twice
// replaces the earlier backend.
func (r *Registry) Register(d domain.DEX) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[d.Chain()] = d
}

// Resolve returns the backend for a chain, or ErrNoBackendForChain.
func (r *Registry) Resolve(chain domain.Chain) (domain.DEX, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.backends[chain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoBackendForChain, chain)
	}
	return d, nil
}

// Has reports whether a backend is registered for the chain.
func (r *Registry) Has(chain domain.Chain) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.backends[chain]
	return ok
}

// Chains returns the registered chains in sorted order.
func (r *Registry) Chains() []domain.Chain {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chains := make([]domain.Chain, 0, len(r.backends))
	for c := range r.backends {
		chains = append(chains, c)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
	return chains
}

// CloseAll closes every registered backend, joining any errors.
func (r *Registry) CloseAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for chain, d := range r.backends {
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("dex: close %s backend: %w", chain, err))
		}
	}
	return errors.Join(errs...)
}
