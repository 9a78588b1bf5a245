// Package oneinch implements the DEX contract for EVM chains using the
// 1inch v6 aggregation API and a JSON-RPC node via go-ethereum.
package oneinch

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/rehan1020/tgbot/internal/domain"
)

// Default API endpoints.
const (
	DefaultBaseURL  = "https://api.1inch.dev/swap/v6.0"
	DefaultPriceURL = "https://api.dexscreener.com/latest/dex/tokens"
)

const (
	stableDecimals = 6
	erc20Decimals  = 18
	weiPerEther    = 1e18

	// receiptTimeout bounds how long ExecuteSwap waits for the swap
	// transaction to be mined before reporting failure.
	receiptTimeout = 120 * time.Second
	receiptPoll    = 3 * time.Second

	defaultGasLimit = 500_000
)

// ERC-20 function selectors: balanceOf(address) and decimals().
var (
	selectorBalanceOf = []byte{0x70, 0xa0, 0x82, 0x31}
	selectorDecimals  = []byte{0x31, 0x3c, 0xe5, 0x67}
)

// nodeClient is the subset of ethclient.Client the backend needs. Narrow
// so tests can substitute a fake node.
type nodeClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

// Config holds the connection parameters for a 1inch backend instance.
type Config struct {
	Chain    domain.Chain
	APIKey   string
	RPCURL   string
	BaseURL  string
	PriceURL string
	// PrivateKey is the hex-encoded secp256k1 wallet key (0x prefix
	// optional). Empty means read-only: quotes and prices work, swaps
	// are refused.
	PrivateKey string
}

// DEX serves one EVM chain: quotes and calldata come from the 1inch API,
// balances and transaction submission go through the RPC node.
type DEX struct {
	cfg        Config
	chainID    *big.Int
	node       nodeClient
	httpClient *http.Client
	logger     *slog.Logger

	key     *ecdsa.PrivateKey // nil when read-only
	address common.Address
}

// New dials the chain's RPC node and creates the backend. One instance
// serves exactly one chain; run several for multi-chain coverage.
func New(cfg Config, logger *slog.Logger) (*DEX, error) {
	if !cfg.Chain.IsEVM() {
		return nil, fmt.Errorf("oneinch: %s is not an EVM chain", cfg.Chain)
	}
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("oneinch: rpc url is required for %s", cfg.Chain)
	}

	node, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("oneinch: dial %s node: %w", cfg.Chain, err)
	}
	return newWithNode(cfg, node, logger)
}

func newWithNode(cfg Config, node nodeClient, logger *slog.Logger) (*DEX, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PriceURL == "" {
		cfg.PriceURL = DefaultPriceURL
	}

	chainID := cfg.Chain.EVMChainID()
	if chainID == 0 {
		return nil, fmt.Errorf("oneinch: no chain id for %s", cfg.Chain)
	}

	d := &DEX{
		cfg:     cfg,
		chainID: big.NewInt(chainID),
		node:    node,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With(
			slog.String("component", "oneinch"),
			slog.String("chain", string(cfg.Chain)),
		),
	}

	if cfg.PrivateKey != "" {
		key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("oneinch: invalid private key: %w", err)
		}
		d.key = key
		d.address = ethcrypto.PubkeyToAddress(key.PublicKey)
		d.logger.Info("wallet initialized", slog.String("address", d.address.Hex()))
	}

	return d, nil
}

func (d *DEX) Chain() domain.Chain { return d.cfg.Chain }
func (d *DEX) Name() string        { return "1inch" }

// Wallet returns the backend's checksummed address, or "" when read-only.
func (d *DEX) Wallet() string {
	if d.key == nil {
		return ""
	}
	return d.address.Hex()
}

// Close releases the node connection and idle HTTP connections.
func (d *DEX) Close() error {
	d.node.Close()
	d.httpClient.CloseIdleConnections()
	return nil
}

// GetQuote fetches a swap quote from the 1inch aggregation API.
func (d *DEX) GetQuote(ctx context.Context, inputToken, outputToken string, amount, slippage float64) (domain.Quote, error) {
	amountRaw := toBaseUnits(amount, d.tokenDecimals(inputToken))
	if amountRaw.Sign() <= 0 {
		return domain.Quote{}, fmt.Errorf("oneinch: amount %v rounds to zero base units", amount)
	}

	params := url.Values{}
	params.Set("src", inputToken)
	params.Set("dst", outputToken)
	params.Set("amount", amountRaw.String())

	body, err := d.doGet(ctx, fmt.Sprintf("%s/%d/quote?%s", d.cfg.BaseURL, d.chainID, params.Encode()))
	if err != nil {
		return domain.Quote{}, fmt.Errorf("oneinch: quote %s->%s: %w", shorten(inputToken), shorten(outputToken), err)
	}

	var resp struct {
		DstAmount string `json:"dstAmount"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("oneinch: decode quote: %w", err)
	}

	outAmount, err := fromBaseUnits(resp.DstAmount, d.tokenDecimals(outputToken))
	if err != nil {
		return domain.Quote{}, fmt.Errorf("oneinch: parse dstAmount %q: %w", resp.DstAmount, err)
	}

	price := 0.0
	if amount > 0 {
		price = outAmount / amount
	}

	return domain.Quote{
		InputToken:   inputToken,
		OutputToken:  outputToken,
		InputAmount:  amount,
		OutputAmount: outAmount,
		Price:        price,
		Route:        "1inch",
		Slippage:     slippage,
		Raw:          json.RawMessage(body),
	}, nil
}

// ExecuteSwap asks the API for swap calldata, signs it, broadcasts it,
// and waits for the transaction to be mined. A reverted transaction is a
// definitive failure and keeps its hash in the result.
func (d *DEX) ExecuteSwap(ctx context.Context, quote domain.Quote, dryRun bool) (domain.TradeResult, error) {
	if dryRun {
		d.logger.Info("dry run swap",
			slog.Float64("amount_in", quote.InputAmount),
			slog.Float64("amount_out", quote.OutputAmount),
		)
		return domain.DryRunResult(quote), nil
	}

	if d.key == nil {
		return domain.TradeResult{Success: false, Error: "wallet not initialized"}, domain.ErrWalletLocked
	}

	amountRaw := toBaseUnits(quote.InputAmount, d.tokenDecimals(quote.InputToken))

	params := url.Values{}
	params.Set("src", quote.InputToken)
	params.Set("dst", quote.OutputToken)
	params.Set("amount", amountRaw.String())
	slippage := quote.Slippage * 100 // API expects whole percent
	if slippage <= 0 {
		slippage = 1
	}

	params.Set("from", d.address.Hex())
	params.Set("slippage", trimFloat(slippage))

	body, err := d.doGet(ctx, fmt.Sprintf("%s/%d/swap?%s", d.cfg.BaseURL, d.chainID, params.Encode()))
	if err != nil {
		return domain.TradeResult{Success: false, Error: err.Error()}, fmt.Errorf("oneinch: swap request: %w", err)
	}

	var swapResp struct {
		Tx struct {
			To       string `json:"to"`
			Data     string `json:"data"`
			Value    string `json:"value"`
			Gas      uint64 `json:"gas"`
			GasPrice string `json:"gasPrice"`
		} `json:"tx"`
	}
	if err := json.Unmarshal(body, &swapResp); err != nil {
		return domain.TradeResult{}, fmt.Errorf("oneinch: decode swap response: %w", err)
	}
	if swapResp.Tx.To == "" {
		return domain.TradeResult{Success: false, Error: "no transaction returned"}, fmt.Errorf("oneinch: empty swap transaction")
	}

	tx, err := d.buildTransaction(ctx, swapResp.Tx.To, swapResp.Tx.Data, swapResp.Tx.Value, swapResp.Tx.Gas, swapResp.Tx.GasPrice)
	if err != nil {
		return domain.TradeResult{Success: false, Error: err.Error()}, fmt.Errorf("oneinch: build transaction: %w", err)
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(d.chainID), d.key)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("oneinch: sign transaction: %w", err)
	}

	if err := d.node.SendTransaction(ctx, signed); err != nil {
		return domain.TradeResult{Success: false, Error: err.Error()}, fmt.Errorf("oneinch: broadcast transaction: %w", err)
	}
	txHash := signed.Hash().Hex()

	receipt, err := d.awaitReceipt(ctx, signed.Hash())
	if err != nil {
		return domain.TradeResult{Success: false, TxHash: txHash, Error: err.Error()},
			fmt.Errorf("oneinch: await receipt %s: %w", shorten(txHash), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return domain.TradeResult{Success: false, TxHash: txHash, GasUsed: receipt.GasUsed, Error: "transaction reverted"},
			fmt.Errorf("oneinch: transaction %s reverted", shorten(txHash))
	}

	d.logger.Info("swap executed",
		slog.String("tx_hash", txHash),
		slog.Uint64("gas_used", receipt.GasUsed),
	)

	return domain.TradeResult{
		Success:   true,
		TxHash:    txHash,
		AmountIn:  quote.InputAmount,
		AmountOut: quote.OutputAmount,
		Price:     quote.Price,
		GasUsed:   receipt.GasUsed,
	}, nil
}

// GetTokenPrice returns the USD price from DexScreener, preferring the
// pair listed on this backend's chain.
func (d *DEX) GetTokenPrice(ctx context.Context, tokenAddress string) (float64, error) {
	body, err := d.doGet(ctx, d.cfg.PriceURL+"/"+tokenAddress)
	if err != nil {
		return 0, fmt.Errorf("oneinch: price %s: %w", shorten(tokenAddress), err)
	}

	var resp struct {
		Pairs []struct {
			ChainID  string `json:"chainId"`
			PriceUsd string `json:"priceUsd"`
		} `json:"pairs"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("oneinch: decode price: %w", err)
	}
	if len(resp.Pairs) == 0 {
		return 0, fmt.Errorf("oneinch: no pairs for %s: %w", shorten(tokenAddress), domain.ErrNotFound)
	}

	raw := resp.Pairs[0].PriceUsd
	for _, pair := range resp.Pairs {
		if pair.ChainID == string(d.cfg.Chain) {
			raw = pair.PriceUsd
			break
		}
	}

	var price float64
	if _, err := fmt.Sscanf(raw, "%g", &price); err != nil || price <= 0 {
		return 0, fmt.Errorf("oneinch: bad price %q for %s", raw, shorten(tokenAddress))
	}
	return price, nil
}

// GetTokenBalance returns the wallet's ERC-20 balance, zero on any failure.
func (d *DEX) GetTokenBalance(ctx context.Context, tokenAddress string) float64 {
	if d.key == nil {
		return 0
	}

	token := common.HexToAddress(tokenAddress)

	balRaw, err := d.node.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: append(append([]byte{}, selectorBalanceOf...), common.LeftPadBytes(d.address.Bytes(), 32)...),
	}, nil)
	if err != nil {
		d.logger.Warn("token balance lookup failed",
			slog.String("token", shorten(tokenAddress)),
			slog.String("error", err.Error()),
		)
		return 0
	}

	decimals := erc20Decimals
	if decRaw, err := d.node.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: append([]byte{}, selectorDecimals...),
	}, nil); err == nil && len(decRaw) > 0 {
		if dec := int(new(big.Int).SetBytes(decRaw).Int64()); dec > 0 && dec <= 36 {
			decimals = dec
		}
	}

	bal := new(big.Int).SetBytes(balRaw)
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(bal), big.NewFloat(math.Pow10(decimals))).Float64()
	return out
}

// GetNativeBalance returns the wallet's native coin balance, zero on any
// failure.
func (d *DEX) GetNativeBalance(ctx context.Context) float64 {
	if d.key == nil {
		return 0
	}

	wei, err := d.node.BalanceAt(ctx, d.address, nil)
	if err != nil {
		d.logger.Warn("native balance lookup failed", slog.String("error", err.Error()))
		return 0
	}

	out, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(weiPerEther)).Float64()
	return out
}

// buildTransaction assembles the legacy transaction from the API's tx
// fields, filling nonce and gas price from the node where the API left
// them out.
func (d *DEX) buildTransaction(ctx context.Context, to, data, value string, gas uint64, gasPrice string) (*types.Transaction, error) {
	nonce, err := d.node.PendingNonceAt(ctx, d.address)
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}

	toAddr := common.HexToAddress(to)

	val := new(big.Int)
	if value != "" {
		if _, ok := val.SetString(value, 10); !ok {
			return nil, fmt.Errorf("bad tx value %q", value)
		}
	}

	price := new(big.Int)
	if gasPrice != "" {
		if _, ok := price.SetString(gasPrice, 10); !ok {
			return nil, fmt.Errorf("bad gas price %q", gasPrice)
		}
	} else {
		price, err = d.node.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("suggest gas price: %w", err)
		}
	}

	if gas == 0 {
		gas = defaultGasLimit
	}

	calldata := common.FromHex(data)

	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: price,
		Gas:      gas,
		To:       &toAddr,
		Value:    val,
		Data:     calldata,
	}), nil
}

// awaitReceipt polls for the transaction receipt until it lands or the
// timeout elapses.
func (d *DEX) awaitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := d.node.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			d.logger.Warn("receipt poll failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("receipt wait timed out: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (d *DEX) doGet(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if d.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	}

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

// tokenDecimals picks the decimal scale for amount conversion: stable
// quote tokens use 6, everything else the ERC-20 default of 18.
func (d *DEX) tokenDecimals(token string) int {
	if domain.IsQuoteToken(d.cfg.Chain, token) {
		return stableDecimals
	}
	return erc20Decimals
}

// toBaseUnits converts a human amount to integer base units without
// overflowing float64 at 18 decimals.
func toBaseUnits(amount float64, decimals int) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(math.Pow10(decimals)))
	raw, _ := scaled.Int(nil)
	return raw
}

// fromBaseUnits converts an integer base-unit string back to a human
// amount.
func fromBaseUnits(raw string, decimals int) (float64, error) {
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return 0, fmt.Errorf("not a base-10 integer")
	}
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(n), big.NewFloat(math.Pow10(decimals))).Float64()
	return out, nil
}

func trimFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}

func shorten(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:10] + "..."
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Compile-time interface check.
var _ domain.DEX = (*DEX)(nil)
