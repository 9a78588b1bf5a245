// Package jupiter implements the DEX contract for Solana using the
// Jupiter v6 aggregator REST API and Solana JSON-RPC.
package jupiter

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"github.com/rehan1020/tgbot/internal/domain"
)

// Default API endpoints.
const (
	DefaultQuoteURL = "https://quote-api.jup.ag/v6/quote"
	DefaultSwapURL  = "https://quote-api.jup.ag/v6/swap"
	DefaultPriceURL = "https://price.jup.ag/v6/price"
)

const (
	// quoteDecimals is used for USDT/USDC mints; everything else defaults
	// to splDecimals. Token metadata lookups are deliberately avoided on
	// the hot path.
	quoteDecimals  = 6
	splDecimals    = 9
	lamportsPerSOL = 1e9

	// confirmTimeout bounds how long ExecuteSwap polls for transaction
	// confirmation before reporting failure.
	confirmTimeout = 90 * time.Second
	confirmPoll    = 2 * time.Second
)

// Config holds the connection parameters for the Jupiter backend.
type Config struct {
	RPCURL   string
	QuoteURL string
	SwapURL  string
	PriceURL string
	// PrivateKey is the base58-encoded wallet secret (64-byte keypair or
	// 32-byte seed). Empty means read-only: quotes and prices work,
	// swaps are refused.
	PrivateKey string
}

// DEX talks to Jupiter for quotes/swaps and to a Solana RPC node for
// balances and transaction submission.
type DEX struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	signer ed25519.PrivateKey // nil when read-only
	wallet string             // base58 public key, "" when read-only
}

// New creates the Solana backend. The private key is optional; without
// it the backend refuses ExecuteSwap but still serves quotes, prices,
// and (zero) balances.
func New(cfg Config, logger *slog.Logger) (*DEX, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("jupiter: rpc url is required")
	}
	if cfg.QuoteURL == "" {
		cfg.QuoteURL = DefaultQuoteURL
	}
	if cfg.SwapURL == "" {
		cfg.SwapURL = DefaultSwapURL
	}
	if cfg.PriceURL == "" {
		cfg.PriceURL = DefaultPriceURL
	}

	d := &DEX{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With(slog.String("component", "jupiter")),
	}

	if cfg.PrivateKey != "" {
		secret, err := base58.Decode(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("jupiter: decode private key: %w", err)
		}
		switch len(secret) {
		case ed25519.PrivateKeySize:
			d.signer = ed25519.PrivateKey(secret)
		case ed25519.SeedSize:
			d.signer = ed25519.NewKeyFromSeed(secret)
		default:
			return nil, fmt.Errorf("jupiter: private key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(secret))
		}
		d.wallet = base58.Encode(d.signer.Public().(ed25519.PublicKey))
		d.logger.Info("wallet initialized", slog.String("address", shorten(d.wallet)))
	}

	return d, nil
}

func (d *DEX) Chain() domain.Chain { return domain.ChainSolana }
func (d *DEX) Name() string        { return "jupiter" }

// Wallet returns the backend's base58 public key, or "" when read-only.
func (d *DEX) Wallet() string { return d.wallet }

// Close releases HTTP resources.
func (d *DEX) Close() error {
	d.httpClient.CloseIdleConnections()
	return nil
}

// GetQuote fetches a swap quote from the Jupiter v6 quote API.
func (d *DEX) GetQuote(ctx context.Context, inputToken, outputToken string, amount, slippage float64) (domain.Quote, error) {
	inDec := mintDecimals(inputToken)
	amountRaw := uint64(math.Round(amount * math.Pow10(inDec)))
	if amountRaw == 0 {
		return domain.Quote{}, fmt.Errorf("jupiter: amount %v rounds to zero base units", amount)
	}

	params := url.Values{}
	params.Set("inputMint", inputToken)
	params.Set("outputMint", outputToken)
	params.Set("amount", strconv.FormatUint(amountRaw, 10))
	params.Set("slippageBps", strconv.Itoa(int(math.Round(slippage*10000))))

	body, err := d.doGet(ctx, d.cfg.QuoteURL+"?"+params.Encode())
	if err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: quote %s->%s: %w", shorten(inputToken), shorten(outputToken), err)
	}

	var resp struct {
		OutAmount      string `json:"outAmount"`
		PriceImpactPct string `json:"priceImpactPct"`
		RoutePlan      []struct {
			SwapInfo struct {
				Label string `json:"label"`
			} `json:"swapInfo"`
		} `json:"routePlan"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: decode quote: %w", err)
	}

	outRaw, err := strconv.ParseUint(resp.OutAmount, 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: parse outAmount %q: %w", resp.OutAmount, err)
	}
	outAmount := float64(outRaw) / math.Pow10(mintDecimals(outputToken))

	price := 0.0
	if amount > 0 {
		price = outAmount / amount
	}
	impact, _ := strconv.ParseFloat(resp.PriceImpactPct, 64)

	labels := make([]string, 0, len(resp.RoutePlan))
	for _, hop := range resp.RoutePlan {
		if hop.SwapInfo.Label != "" {
			labels = append(labels, hop.SwapInfo.Label)
		}
	}
	route := "Direct"
	if len(labels) > 0 {
		route = strings.Join(labels, " -> ")
	}

	return domain.Quote{
		InputToken:   inputToken,
		OutputToken:  outputToken,
		InputAmount:  amount,
		OutputAmount: outAmount,
		Price:        price,
		PriceImpact:  impact,
		Route:        route,
		Slippage:     slippage,
		Raw:          json.RawMessage(body),
	}, nil
}

// ExecuteSwap builds, signs, and submits the swap transaction for a
// previously obtained quote, then polls until the signature confirms.
func (d *DEX) ExecuteSwap(ctx context.Context, quote domain.Quote, dryRun bool) (domain.TradeResult, error) {
	if dryRun {
		d.logger.Info("dry run swap",
			slog.Float64("amount_in", quote.InputAmount),
			slog.Float64("amount_out", quote.OutputAmount),
			slog.String("route", quote.Route),
		)
		return domain.DryRunResult(quote), nil
	}

	if d.signer == nil {
		return domain.TradeResult{Success: false, Error: "wallet not initialized"}, domain.ErrWalletLocked
	}

	// Ask Jupiter to build the transaction from the original quote
	// payload. The payload must go back verbatim.
	swapReq, err := json.Marshal(map[string]any{
		"quoteResponse":    json.RawMessage(quote.Raw),
		"userPublicKey":    d.wallet,
		"wrapAndUnwrapSol": true,
	})
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("jupiter: marshal swap request: %w", err)
	}

	body, err := d.doPost(ctx, d.cfg.SwapURL, swapReq)
	if err != nil {
		return domain.TradeResult{Success: false, Error: err.Error()}, fmt.Errorf("jupiter: swap request: %w", err)
	}

	var swapResp struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.Unmarshal(body, &swapResp); err != nil {
		return domain.TradeResult{}, fmt.Errorf("jupiter: decode swap response: %w", err)
	}
	if swapResp.SwapTransaction == "" {
		return domain.TradeResult{Success: false, Error: "no swap transaction returned"}, fmt.Errorf("jupiter: empty swapTransaction")
	}

	raw, err := base64.StdEncoding.DecodeString(swapResp.SwapTransaction)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("jupiter: decode transaction: %w", err)
	}

	signed, err := signTransaction(raw, d.signer)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("jupiter: sign transaction: %w", err)
	}

	sig, err := d.sendTransaction(ctx, signed)
	if err != nil {
		return domain.TradeResult{Success: false, Error: err.Error()}, fmt.Errorf("jupiter: send transaction: %w", err)
	}

	if err := d.awaitConfirmation(ctx, sig); err != nil {
		return domain.TradeResult{Success: false, TxHash: sig, Error: err.Error()},
			fmt.Errorf("jupiter: confirm %s: %w", shorten(sig), err)
	}

	d.logger.Info("swap executed", slog.String("signature", sig))

	return domain.TradeResult{
		Success:   true,
		TxHash:    sig,
		AmountIn:  quote.InputAmount,
		AmountOut: quote.OutputAmount,
		Price:     quote.Price,
	}, nil
}

// GetTokenPrice returns the USD price from the Jupiter price API.
func (d *DEX) GetTokenPrice(ctx context.Context, tokenAddress string) (float64, error) {
	params := url.Values{}
	params.Set("ids", tokenAddress)

	body, err := d.doGet(ctx, d.cfg.PriceURL+"?"+params.Encode())
	if err != nil {
		return 0, fmt.Errorf("jupiter: price %s: %w", shorten(tokenAddress), err)
	}

	var resp struct {
		Data map[string]struct {
			Price float64 `json:"price"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("jupiter: decode price: %w", err)
	}

	entry, ok := resp.Data[tokenAddress]
	if !ok || entry.Price <= 0 {
		return 0, fmt.Errorf("jupiter: no price for %s: %w", shorten(tokenAddress), domain.ErrNotFound)
	}
	return entry.Price, nil
}

// GetTokenBalance returns the wallet's SPL balance for the mint, zero on
// any failure.
func (d *DEX) GetTokenBalance(ctx context.Context, tokenAddress string) float64 {
	if d.wallet == "" {
		return 0
	}

	result, err := d.rpcCall(ctx, "getTokenAccountsByOwner", []any{
		d.wallet,
		map[string]string{"mint": tokenAddress},
		map[string]string{"encoding": "jsonParsed"},
	})
	if err != nil {
		d.logger.Warn("token balance lookup failed",
			slog.String("mint", shorten(tokenAddress)),
			slog.String("error", err.Error()),
		)
		return 0
	}

	var resp struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								UIAmount *float64 `json:"uiAmount"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		d.logger.Warn("token balance decode failed", slog.String("error", err.Error()))
		return 0
	}
	if len(resp.Value) == 0 {
		return 0
	}
	if ui := resp.Value[0].Account.Data.Parsed.Info.TokenAmount.UIAmount; ui != nil {
		return *ui
	}
	return 0
}

// GetNativeBalance returns the wallet's SOL balance, zero on any failure.
func (d *DEX) GetNativeBalance(ctx context.Context) float64 {
	if d.wallet == "" {
		return 0
	}

	result, err := d.rpcCall(ctx, "getBalance", []any{d.wallet})
	if err != nil {
		d.logger.Warn("native balance lookup failed", slog.String("error", err.Error()))
		return 0
	}

	var resp struct {
		Value uint64 `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		d.logger.Warn("native balance decode failed", slog.String("error", err.Error()))
		return 0
	}
	return float64(resp.Value) / lamportsPerSOL
}

// sendTransaction submits a signed transaction and returns its signature.
func (d *DEX) sendTransaction(ctx context.Context, signedTx []byte) (string, error) {
	result, err := d.rpcCall(ctx, "sendTransaction", []any{
		base64.StdEncoding.EncodeToString(signedTx),
		map[string]any{"encoding": "base64", "skipPreflight": false},
	})
	if err != nil {
		return "", err
	}

	var sig string
	if err := json.Unmarshal(result, &sig); err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	return sig, nil
}

// awaitConfirmation polls getSignatureStatuses until the transaction is
// confirmed or finalized, the chain reports an execution error, or the
// timeout elapses.
func (d *DEX) awaitConfirmation(ctx context.Context, sig string) error {
	ctx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(confirmPoll)
	defer ticker.Stop()

	for {
		done, err := d.checkSignature(ctx, sig)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("confirmation timed out: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// checkSignature performs one getSignatureStatuses poll. It reports
// (true, nil) on confirmation, (false, nil) when the signature is still
// pending or the poll itself failed transiently, and a non-nil error on
// a definitive on-chain failure.
func (d *DEX) checkSignature(ctx context.Context, sig string) (bool, error) {
	result, err := d.rpcCall(ctx, "getSignatureStatuses", []any{[]string{sig}})
	if err != nil {
		d.logger.Warn("signature status poll failed", slog.String("error", err.Error()))
		return false, nil
	}

	var resp struct {
		Value []*struct {
			ConfirmationStatus string          `json:"confirmationStatus"`
			Err                json.RawMessage `json:"err"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return false, fmt.Errorf("decode signature status: %w", err)
	}
	if len(resp.Value) == 0 || resp.Value[0] == nil {
		return false, nil // not yet visible
	}

	status := resp.Value[0]
	if len(status.Err) > 0 && string(status.Err) != "null" {
		return false, fmt.Errorf("transaction failed on chain: %s", status.Err)
	}
	if status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized" {
		return true, nil
	}
	return false, nil
}

// rpcCall performs one Solana JSON-RPC request and returns the raw result.
func (d *DEX) rpcCall(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	reqBody, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rpc request: %w", err)
	}

	body, err := d.doPost(ctx, d.cfg.RPCURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("rpc %s: %w", method, err)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode rpc response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("rpc %s: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
	}
	return resp.Result, nil
}

func (d *DEX) doGet(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return d.do(req)
}

func (d *DEX) doPost(ctx context.Context, rawURL string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return d.do(req)
}

func (d *DEX) do(req *http.Request) ([]byte, error) {
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
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

// mintDecimals picks the decimal scale for amount conversion: stable
// quote mints use 6, everything else the SPL default of 9.
func mintDecimals(mint string) int {
	if domain.IsQuoteToken(domain.ChainSolana, mint) {
		return quoteDecimals
	}
	return splDecimals
}

func shorten(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8] + "..."
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Compile-time interface check.
var _ domain.DEX = (*DEX)(nil)
