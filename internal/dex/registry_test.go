package dex

import (
	"context"
	"errors"
	"testing"

	"github.com/rehan1020/tgbot/internal/domain"
)

// stubDEX is a minimal domain.DEX used to exercise the registry.
type stubDEX struct {
	chain  domain.Chain
	closed bool
}

func (s *stubDEX) Chain() domain.Chain { return s.chain }
func (s *stubDEX) Name() string        { return "stub" }
func (s *stubDEX) GetQuote(ctx context.Context, in, out string, amount, slippage float64) (domain.Quote, error) {
	return domain.Quote{}, domain.ErrNoQuote
}
func (s *stubDEX) ExecuteSwap(ctx context.Context, q domain.Quote, dryRun bool) (domain.TradeResult, error) {
	return domain.DryRunResult(q), nil
}
func (s *stubDEX) GetTokenPrice(ctx context.Context, token string) (float64, error) {
	return 0, domain.ErrNotFound
}
func (s *stubDEX) GetTokenBalance(ctx context.Context, token string) float64 { return 0 }
func (s *stubDEX) GetNativeBalance(ctx context.Context) float64              { return 0 }
func (s *stubDEX) Close() error {
	s.closed = true
	return nil
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	sol := &stubDEX{chain: domain.ChainSolana}
	r.Register(sol)

	got, err := r.Resolve(domain.ChainSolana)
	if err != nil {
		t.Fatalf("Resolve(solana) returned error: %v", err)
	}
	if got != sol {
		t.Error("Resolve returned a different backend than registered")
	}

	_, err = r.Resolve(domain.ChainBase)
	if err == nil {
		t.Fatal("Resolve(base) should fail when nothing is registered")
	}
	if !errors.Is(err, domain.ErrNoBackendForChain) {
		t.Errorf("error should wrap ErrNoBackendForChain, got %v", err)
	}
}

func TestRegistryChainsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubDEX{chain: domain.ChainSolana})
	r.Register(&stubDEX{chain: domain.ChainBase})
	r.Register(&stubDEX{chain: domain.ChainEthereum})

	chains := r.Chains()
	if len(chains) != 3 {
		t.Fatalf("Chains() returned %d entries, want 3", len(chains))
	}
	want := []domain.Chain{domain.ChainBase, domain.ChainEthereum, domain.ChainSolana}
	for i, c := range want {
		if chains[i] != c {
			t.Errorf("chains[%d] = %s, want %s", i, chains[i], c)
		}
	}
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry()
	a := &stubDEX{chain: domain.ChainSolana}
	b := &stubDEX{chain: domain.ChainBSC}
	r.Register(a)
	r.Register(b)

	if err := r.CloseAll(); err != nil {
		t.Fatalf("CloseAll returned error: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("CloseAll should close every registered backend")
	}
}
