// Package chain resolves a bare token contract address to the chain it
// lives on, using address shape first and public token indexes second.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/rehan1020/tgbot/internal/domain"
)

// Default API endpoints.
const (
	DefaultDexScreenerURL   = "https://api.dexscreener.com/latest/dex/tokens"
	DefaultGeckoTerminalURL = "https://api.geckoterminal.com/api/v2"
)

// DefaultLookupTimeout bounds the whole external lookup chain for one
// address when the config does not say otherwise.
const DefaultLookupTimeout = 10 * time.Second

var (
	solanaAddrRe = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
	evmAddrRe    = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
)

// dexscreenerChains maps DexScreener chain identifiers to ours.
var dexscreenerChains = map[string]domain.Chain{
	"solana":   domain.ChainSolana,
	"ethereum": domain.ChainEthereum,
	"bsc":      domain.ChainBSC,
	"base":     domain.ChainBase,
	"arbitrum": domain.ChainArbitrum,
}

// geckoNetworks is the GeckoTerminal fallback probe order; the first
// network that knows the token wins.
var geckoNetworks = []struct {
	id    string
	chain domain.Chain
}{
	{"eth", domain.ChainEthereum},
	{"sepolia", domain.ChainSepolia},
	{"goerli", domain.ChainGoerli},
	{"bsc", domain.ChainBSC},
	{"base", domain.ChainBase},
	{"arbitrum", domain.ChainArbitrum},
}

// Config holds the index endpoints; zero values select the public APIs
// and the default lookup timeout.
type Config struct {
	DexScreenerURL   string
	GeckoTerminalURL string
	Timeout          time.Duration
}

// Detector implements domain.ChainResolver. Solana addresses are decided
// from shape alone; EVM addresses are looked up on DexScreener and, when
// unlisted there, probed per network on GeckoTerminal.
type Detector struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewDetector creates a resolver with a 10 second default budget per
// lookup.
func NewDetector(cfg Config, logger *slog.Logger) *Detector {
	if cfg.DexScreenerURL == "" {
		cfg.DexScreenerURL = DefaultDexScreenerURL
	}
	if cfg.GeckoTerminalURL == "" {
		cfg.GeckoTerminalURL = DefaultGeckoTerminalURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLookupTimeout
	}
	return &Detector{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With(slog.String("component", "chain_detector")),
	}
}

// Resolve determines the chain for a token contract address. The error
// wraps domain.ErrChainUnresolved whenever no confident answer exists.
func (d *Detector) Resolve(ctx context.Context, address string) (domain.Chain, error) {
	// EVM shape is checked first: hex addresses like 0xdead...beef can
	// also be valid base58, so the more specific format wins.
	if evmAddrRe.MatchString(address) {
		return d.resolveEVM(ctx, address)
	}
	if solanaAddrRe.MatchString(address) {
		return domain.ChainSolana, nil
	}
	return "", fmt.Errorf("chain: unrecognized address format %s: %w", shorten(address), domain.ErrChainUnresolved)
}

func (d *Detector) resolveEVM(ctx context.Context, address string) (domain.Chain, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	if chain, ok := d.lookupDexScreener(ctx, address); ok {
		return chain, nil
	}
	if chain, ok := d.lookupGeckoTerminal(ctx, address); ok {
		return chain, nil
	}
	return "", fmt.Errorf("chain: %s not listed on any known network: %w", shorten(address), domain.ErrChainUnresolved)
}

// lookupDexScreener returns the chain of the first trading pair with a
// chain identifier we support.
func (d *Detector) lookupDexScreener(ctx context.Context, address string) (domain.Chain, bool) {
	body, err := d.doGet(ctx, d.cfg.DexScreenerURL+"/"+address)
	if err != nil {
		d.logger.Warn("dexscreener lookup failed",
			slog.String("address", shorten(address)),
			slog.String("error", err.Error()),
		)
		return "", false
	}

	var resp struct {
		Pairs []struct {
			ChainID string `json:"chainId"`
		} `json:"pairs"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		d.logger.Warn("dexscreener decode failed", slog.String("error", err.Error()))
		return "", false
	}

	for _, pair := range resp.Pairs {
		if chain, ok := dexscreenerChains[pair.ChainID]; ok {
			d.logger.Info("chain resolved",
				slog.String("address", shorten(address)),
				slog.String("chain", string(chain)),
				slog.String("source", "dexscreener"),
			)
			return chain, true
		}
	}
	return "", false
}

// lookupGeckoTerminal probes each supported network until the token
// definition exists.
func (d *Detector) lookupGeckoTerminal(ctx context.Context, address string) (domain.Chain, bool) {
	for _, network := range geckoNetworks {
		if ctx.Err() != nil {
			return "", false
		}

		url := fmt.Sprintf("%s/networks/%s/tokens/%s", d.cfg.GeckoTerminalURL, network.id, address)
		body, err := d.doGet(ctx, url)
		if err != nil {
			continue // 404 means not on this network
		}

		var resp struct {
			Data struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &resp); err != nil || resp.Data.ID == "" {
			continue
		}

		d.logger.Info("chain resolved",
			slog.String("address", shorten(address)),
			slog.String("chain", string(network.chain)),
			slog.String("source", "geckoterminal"),
		)
		return network.chain, true
	}
	return "", false
}

func (d *Detector) doGet(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return body, nil
}

func shorten(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:10] + "..."
}

// Compile-time interface check.
var _ domain.ChainResolver = (*Detector)(nil)
