package oneinch

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/rehan1020/tgbot/internal/domain"
)

type fakeNode struct {
	nonce      uint64
	gasPrice   *big.Int
	sent       []*types.Transaction
	sendErr    error
	receipt    *types.Receipt
	receiptErr error
	balance    *big.Int
	balanceErr error
	contract   func(msg ethereum.CallMsg) ([]byte, error)
}

func (f *fakeNode) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeNode) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if f.gasPrice == nil {
		return big.NewInt(1_000_000_000), nil
	}
	return f.gasPrice, nil
}

func (f *fakeNode) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeNode) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	if f.receipt == nil {
		return nil, ethereum.NotFound
	}
	return f.receipt, nil
}

func (f *fakeNode) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if f.contract == nil {
		return nil, errors.New("no contract hook")
	}
	return f.contract(msg)
}

func (f *fakeNode) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	if f.balance == nil {
		return big.NewInt(0), nil
	}
	return f.balance, nil
}

func (f *fakeNode) Close() {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testKey(t *testing.T) string {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return hex.EncodeToString(ethcrypto.FromECDSA(key))
}

func newTestDEX(t *testing.T, cfg Config, node nodeClient) *DEX {
	t.Helper()
	if cfg.Chain == "" {
		cfg.Chain = domain.ChainEthereum
	}
	d, err := newWithNode(cfg, node, testLogger())
	if err != nil {
		t.Fatalf("newWithNode(): %v", err)
	}
	return d
}

func TestNewRejectsNonEVMChain(t *testing.T) {
	if _, err := New(Config{Chain: domain.ChainSolana, RPCURL: "http://localhost"}, testLogger()); err == nil {
		t.Fatal("New() with solana chain: expected error, got nil")
	}
}

func TestGetQuote(t *testing.T) {
	usdt, ok := domain.QuoteTokenAddress(domain.ChainEthereum, "USDT")
	if !ok {
		t.Fatal("no USDT address for ethereum")
	}
	const meme = "0x1111111111111111111111111111111111111111"

	var gotPath, gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		io.WriteString(w, `{"dstAmount": "250000000000000000000"}`)
	}))
	defer srv.Close()

	d := newTestDEX(t, Config{BaseURL: srv.URL, APIKey: "secret-key"}, &fakeNode{})

	quote, err := d.GetQuote(context.Background(), usdt, meme, 100, 0.01)
	if err != nil {
		t.Fatalf("GetQuote(): %v", err)
	}

	if gotPath != "/1/quote" {
		t.Errorf("path = %q, want /1/quote", gotPath)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("Authorization = %q, want Bearer secret-key", gotAuth)
	}
	// USDT input is 6 decimals: 100 USDT = 100000000 base units.
	if !strings.Contains(gotQuery, "amount=100000000") {
		t.Errorf("query = %q, want amount=100000000", gotQuery)
	}

	// 18-decimal output: 250000000000000000000 = 250 tokens.
	if quote.OutputAmount != 250 {
		t.Errorf("OutputAmount = %v, want 250", quote.OutputAmount)
	}
	if quote.Price != 2.5 {
		t.Errorf("Price = %v, want 2.5", quote.Price)
	}
	if quote.Slippage != 0.01 {
		t.Errorf("Slippage = %v, want 0.01", quote.Slippage)
	}
}

func TestGetQuotePerChainPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		io.WriteString(w, `{"dstAmount": "1000000000000000000"}`)
	}))
	defer srv.Close()

	d := newTestDEX(t, Config{Chain: domain.ChainBase, BaseURL: srv.URL}, &fakeNode{})

	if _, err := d.GetQuote(context.Background(), "0xaaa", "0xbbb", 1, 0.01); err != nil {
		t.Fatalf("GetQuote(): %v", err)
	}
	if gotPath != "/8453/quote" {
		t.Errorf("path = %q, want /8453/quote", gotPath)
	}
}

func TestExecuteSwapDryRun(t *testing.T) {
	d := newTestDEX(t, Config{}, &fakeNode{})

	quote := domain.Quote{InputAmount: 100, OutputAmount: 250, Price: 2.5}
	result, err := d.ExecuteSwap(context.Background(), quote, true)
	if err != nil {
		t.Fatalf("ExecuteSwap(dry): %v", err)
	}
	if !result.Success {
		t.Error("Success = false, want true")
	}
	if result.TxHash != domain.DryRunTxHash {
		t.Errorf("TxHash = %q, want %q", result.TxHash, domain.DryRunTxHash)
	}
}

func TestExecuteSwapWithoutWallet(t *testing.T) {
	d := newTestDEX(t, Config{}, &fakeNode{})

	_, err := d.ExecuteSwap(context.Background(), domain.Quote{}, false)
	if !errors.Is(err, domain.ErrWalletLocked) {
		t.Errorf("ExecuteSwap() error = %v, want ErrWalletLocked", err)
	}
}

func TestExecuteSwapLive(t *testing.T) {
	node := &fakeNode{
		nonce:   7,
		receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, GasUsed: 123456},
	}

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		io.WriteString(w, `{"tx": {
			"to": "0x2222222222222222222222222222222222222222",
			"data": "0xdeadbeef",
			"value": "0",
			"gas": 210000,
			"gasPrice": "2000000000"
		}}`)
	}))
	defer srv.Close()

	d := newTestDEX(t, Config{BaseURL: srv.URL, PrivateKey: testKey(t)}, node)

	quote := domain.Quote{
		InputToken:   "0xaaa",
		OutputToken:  "0xbbb",
		InputAmount:  1.5,
		OutputAmount: 300,
		Price:        200,
		Slippage:     0.01,
	}
	result, err := d.ExecuteSwap(context.Background(), quote, false)
	if err != nil {
		t.Fatalf("ExecuteSwap(): %v", err)
	}
	if !result.Success {
		t.Errorf("Success = false, want true (error=%q)", result.Error)
	}
	if result.GasUsed != 123456 {
		t.Errorf("GasUsed = %d, want 123456", result.GasUsed)
	}
	if !strings.Contains(gotQuery, "slippage=1") {
		t.Errorf("query = %q, want slippage=1", gotQuery)
	}

	if len(node.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(node.sent))
	}
	tx := node.sent[0]
	if result.TxHash != tx.Hash().Hex() {
		t.Errorf("TxHash = %q, want %q", result.TxHash, tx.Hash().Hex())
	}
	if tx.Nonce() != 7 {
		t.Errorf("nonce = %d, want 7", tx.Nonce())
	}
	if tx.Gas() != 210000 {
		t.Errorf("gas = %d, want 210000", tx.Gas())
	}
	if tx.GasPrice().Cmp(big.NewInt(2_000_000_000)) != 0 {
		t.Errorf("gas price = %s, want 2000000000", tx.GasPrice())
	}
	if got := tx.To().Hex(); got != "0x2222222222222222222222222222222222222222" {
		t.Errorf("to = %q, want the API's target", got)
	}

	// The signature must recover to the configured wallet.
	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), tx)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender.Hex() != d.Wallet() {
		t.Errorf("sender = %q, want %q", sender.Hex(), d.Wallet())
	}
}

func TestExecuteSwapReverted(t *testing.T) {
	node := &fakeNode{
		receipt: &types.Receipt{Status: types.ReceiptStatusFailed, GasUsed: 99999},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"tx": {"to": "0x2222222222222222222222222222222222222222", "data": "0x", "value": "0", "gas": 100000, "gasPrice": "1"}}`)
	}))
	defer srv.Close()

	d := newTestDEX(t, Config{BaseURL: srv.URL, PrivateKey: testKey(t)}, node)

	result, err := d.ExecuteSwap(context.Background(), domain.Quote{InputAmount: 1}, false)
	if err == nil {
		t.Fatal("ExecuteSwap() on revert: expected error, got nil")
	}
	if result.Success {
		t.Error("Success = true, want false")
	}
	if result.TxHash == "" {
		t.Error("TxHash empty, want the reverted hash preserved")
	}
	if result.Error != "transaction reverted" {
		t.Errorf("Error = %q, want %q", result.Error, "transaction reverted")
	}
}

func TestGetTokenPricePrefersOwnChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"pairs": [
			{"chainId": "bsc", "priceUsd": "0.9"},
			{"chainId": "ethereum", "priceUsd": "1.1"}
		]}`)
	}))
	defer srv.Close()

	d := newTestDEX(t, Config{PriceURL: srv.URL}, &fakeNode{})

	price, err := d.GetTokenPrice(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("GetTokenPrice(): %v", err)
	}
	if price != 1.1 {
		t.Errorf("price = %v, want the ethereum pair's 1.1", price)
	}
}

func TestGetTokenPriceNoPairs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"pairs": []}`)
	}))
	defer srv.Close()

	d := newTestDEX(t, Config{PriceURL: srv.URL}, &fakeNode{})

	if _, err := d.GetTokenPrice(context.Background(), "0xabc"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetTokenPrice() error = %v, want ErrNotFound", err)
	}
}

func TestGetTokenBalance(t *testing.T) {
	node := &fakeNode{
		contract: func(msg ethereum.CallMsg) ([]byte, error) {
			switch {
			case strings.HasPrefix(hex.EncodeToString(msg.Data), "70a08231"):
				return common.LeftPadBytes(big.NewInt(5_000_000).Bytes(), 32), nil
			case strings.HasPrefix(hex.EncodeToString(msg.Data), "313ce567"):
				return common.LeftPadBytes(big.NewInt(6).Bytes(), 32), nil
			}
			return nil, errors.New("unexpected call")
		},
	}

	d := newTestDEX(t, Config{PrivateKey: testKey(t)}, node)

	if got := d.GetTokenBalance(context.Background(), "0xabc"); got != 5 {
		t.Errorf("GetTokenBalance() = %v, want 5", got)
	}
}

func TestBalancesFailClosed(t *testing.T) {
	node := &fakeNode{balanceErr: errors.New("node down")}

	d := newTestDEX(t, Config{PrivateKey: testKey(t)}, node)

	if got := d.GetTokenBalance(context.Background(), "0xabc"); got != 0 {
		t.Errorf("GetTokenBalance() on node failure = %v, want 0", got)
	}
	if got := d.GetNativeBalance(context.Background()); got != 0 {
		t.Errorf("GetNativeBalance() on node failure = %v, want 0", got)
	}
}

func TestGetNativeBalance(t *testing.T) {
	wei, _ := new(big.Int).SetString("2500000000000000000", 10)
	node := &fakeNode{balance: wei}

	d := newTestDEX(t, Config{PrivateKey: testKey(t)}, node)

	if got := d.GetNativeBalance(context.Background()); got != 2.5 {
		t.Errorf("GetNativeBalance() = %v, want 2.5", got)
	}
}

func TestBaseUnitConversions(t *testing.T) {
	raw := toBaseUnits(250, 18)
	if raw.String() != "250000000000000000000" {
		t.Errorf("toBaseUnits(250, 18) = %s, want 250000000000000000000", raw)
	}

	back, err := fromBaseUnits(raw.String(), 18)
	if err != nil {
		t.Fatalf("fromBaseUnits(): %v", err)
	}
	if back != 250 {
		t.Errorf("fromBaseUnits() = %v, want 250", back)
	}

	if _, err := fromBaseUnits("not-a-number", 18); err == nil {
		t.Error("fromBaseUnits() on garbage: expected error, got nil")
	}
}
