package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rehan1020/tgbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePinger struct {
	err   error
	calls int
}

func (f *fakePinger) Ping(ctx context.Context) error {
	f.calls++
	return f.err
}

func TestHealthDegradedWhenStoreDown(t *testing.T) {
	store := &fakePinger{err: errors.New("connection refused")}
	cache := &fakePinger{}
	h := NewHealthHandler(store, cache, testLogger())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "degraded" {
		t.Errorf("status = %q, want degraded", body.Status)
	}
	if body.Checks["postgres"] != "unreachable" {
		t.Errorf("postgres check = %q, want unreachable", body.Checks["postgres"])
	}
	if body.Checks["redis"] != "ok" {
		t.Errorf("redis check = %q, want ok", body.Checks["redis"])
	}
}

func TestHealthSkipsAbsentCache(t *testing.T) {
	store := &fakePinger{}
	h := NewHealthHandler(store, nil, testLogger())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body struct {
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, present := body.Checks["redis"]; present {
		t.Error("redis check present, want omitted when cache is nil")
	}
}

type fakePositionService struct {
	open    []domain.Position
	recent  []domain.Position
	byID    map[int64]domain.Position
	stats   domain.PositionStats
	err     error
	gotOpts domain.ListOpts
}

func (f *fakePositionService) ListOpen(ctx context.Context) ([]domain.Position, error) {
	return f.open, f.err
}

func (f *fakePositionService) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	f.gotOpts = opts
	return f.recent, f.err
}

func (f *fakePositionService) GetByID(ctx context.Context, id int64) (domain.Position, error) {
	if f.err != nil {
		return domain.Position{}, f.err
	}
	pos, ok := f.byID[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (f *fakePositionService) Stats(ctx context.Context) (domain.PositionStats, error) {
	return f.stats, f.err
}

func TestListOpenReturnsEmptyArray(t *testing.T) {
	h := NewPositionHandler(&fakePositionService{}, testLogger())

	rec := httptest.NewRecorder()
	h.ListOpen(rec, httptest.NewRequest(http.MethodGet, "/api/positions", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"positions":[]`) {
		t.Errorf("body = %s, want empty positions array", rec.Body.String())
	}
}

func TestHistoryParsesListOpts(t *testing.T) {
	svc := &fakePositionService{}
	h := NewPositionHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/api/positions/history?limit=20&offset=40", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if svc.gotOpts.Limit != 20 || svc.gotOpts.Offset != 40 {
		t.Errorf("opts = %+v, want limit 20 offset 40", svc.gotOpts)
	}
}

func TestGetPositionNotFound(t *testing.T) {
	h := NewPositionHandler(&fakePositionService{byID: map[int64]domain.Position{}}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/positions/99", nil)
	req.SetPathValue("id", "99")
	rec := httptest.NewRecorder()
	h.GetPosition(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGetPositionBadID(t *testing.T) {
	h := NewPositionHandler(&fakePositionService{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/positions/abc", nil)
	req.SetPathValue("id", "abc")
	rec := httptest.NewRecorder()
	h.GetPosition(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestStatsAggregates(t *testing.T) {
	svc := &fakePositionService{stats: domain.PositionStats{
		ByStatus: map[domain.PositionStatus]int{
			domain.PositionStatusActive:   2,
			domain.PositionStatusClosedTP: 3,
		},
		TotalPnL: 12.5,
	}}
	h := NewPositionHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/positions/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Total != 5 {
		t.Errorf("total = %d, want 5", body.Total)
	}
	if body.TotalPnL != 12.5 {
		t.Errorf("total_pnl = %v, want 12.5", body.TotalPnL)
	}
}

type fakeSignalProcessor struct {
	pos domain.Position
	err error
	got domain.Signal
}

func (f *fakeSignalProcessor) ProcessSignal(ctx context.Context, sig domain.Signal) (domain.Position, error) {
	f.got = sig
	if f.err != nil {
		return domain.Position{}, f.err
	}
	return f.pos, nil
}

const sampleSignalText = "{LONG} $PEPE/USDT\nCA: 0x6982508145454ce325ddbe47a25d4ec3d2311933\nLIMIT ENTRY: 0.0000012\nTP: 0.0000018\nSL: 0.0000009"

func postSignal(t *testing.T, h *SignalHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/signals", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.SubmitSignal(rec, req)
	return rec
}

func TestSubmitSignalRawText(t *testing.T) {
	engine := &fakeSignalProcessor{pos: domain.Position{ID: 7, PairName: "PEPE/USDT"}}
	h := NewSignalHandler(engine, testLogger())

	payload, _ := json.Marshal(map[string]string{"text": sampleSignalText})
	rec := postSignal(t, h, string(payload))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if engine.got.PairName != "PEPE/USDT" {
		t.Errorf("engine pair = %q, want PEPE/USDT", engine.got.PairName)
	}
	if engine.got.EntryPrice != 0.0000012 {
		t.Errorf("engine entry = %v, want 0.0000012", engine.got.EntryPrice)
	}
	var body submitSignalResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Position.ID != 7 {
		t.Errorf("position id = %d, want 7", body.Position.ID)
	}
}

func TestSubmitSignalStructured(t *testing.T) {
	engine := &fakeSignalProcessor{pos: domain.Position{ID: 3}}
	h := NewSignalHandler(engine, testLogger())

	rec := postSignal(t, h, `{
		"direction": "long",
		"pair": "PEPE/USDT",
		"contract_address": "0x6982508145454ce325ddbe47a25d4ec3d2311933",
		"entry_price": 0.0000012,
		"take_profit": 0.0000018,
		"stop_loss": 0.0000009
	}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if engine.got.ContractAddress != "0x6982508145454ce325ddbe47a25d4ec3d2311933" {
		t.Errorf("engine address = %q", engine.got.ContractAddress)
	}
}

func TestSubmitSignalShortDeclined(t *testing.T) {
	engine := &fakeSignalProcessor{}
	h := NewSignalHandler(engine, testLogger())

	rec := postSignal(t, h, `{
		"direction": "short",
		"pair": "PEPE/USDT",
		"contract_address": "0x6982508145454ce325ddbe47a25d4ec3d2311933",
		"entry_price": 0.0000012,
		"take_profit": 0.0000009,
		"stop_loss": 0.0000018
	}`)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
	if engine.got.ID != "" {
		t.Error("engine called for a short signal")
	}
	if !strings.Contains(rec.Body.String(), "short_not_supported") {
		t.Errorf("body = %s, want short_not_supported reason", rec.Body.String())
	}
}

func TestSubmitSignalRejectionStatuses(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
	}{
		{"capacity", domain.ErrCapacityExceeded, http.StatusConflict, "capacity_exceeded"},
		{"chain", domain.ErrChainUnresolved, http.StatusUnprocessableEntity, "chain_unresolved"},
		{"backend", domain.ErrNoBackendForChain, http.StatusUnprocessableEntity, "no_backend_for_chain"},
		{"internal", errors.New("pg down"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSignalHandler(&fakeSignalProcessor{err: tt.err}, testLogger())
			payload, _ := json.Marshal(map[string]string{"text": sampleSignalText})
			rec := postSignal(t, h, string(payload))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantReason) {
				t.Errorf("body = %s, want reason %q", rec.Body.String(), tt.wantReason)
			}
		})
	}
}

func TestSubmitSignalInvalidJSON(t *testing.T) {
	h := NewSignalHandler(&fakeSignalProcessor{}, testLogger())
	rec := postSignal(t, h, "{not json")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

type fakePriceReader struct {
	prices map[string]float64
	got    []string
}

func (f *fakePriceReader) GetPrices(ctx context.Context, tokenAddresses []string) (map[string]float64, error) {
	f.got = tokenAddresses
	return f.prices, nil
}

func TestGetPricesDefaultsToOpenPositions(t *testing.T) {
	cache := &fakePriceReader{prices: map[string]float64{"0xabc": 1.5}}
	positions := &fakePositionService{open: []domain.Position{
		{TokenAddress: "0xabc"},
		{TokenAddress: "So11111111111111111111111111111111111111112"},
	}}
	h := NewPriceHandler(cache, positions, testLogger())

	rec := httptest.NewRecorder()
	h.GetPrices(rec, httptest.NewRequest(http.MethodGet, "/api/prices", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(cache.got) != 2 || cache.got[0] != "0xabc" {
		t.Errorf("cache queried with %v, want open position tokens", cache.got)
	}
}

func TestGetPricesExplicitTokens(t *testing.T) {
	cache := &fakePriceReader{prices: map[string]float64{}}
	h := NewPriceHandler(cache, &fakePositionService{}, testLogger())

	rec := httptest.NewRecorder()
	h.GetPrices(rec, httptest.NewRequest(http.MethodGet, "/api/prices?tokens=0xabc,%200xdef", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(cache.got) != 2 || cache.got[1] != "0xdef" {
		t.Errorf("cache queried with %v, want [0xabc 0xdef]", cache.got)
	}
}

func TestGetPricesNoCacheConfigured(t *testing.T) {
	h := NewPriceHandler(nil, &fakePositionService{}, testLogger())

	rec := httptest.NewRecorder()
	h.GetPrices(rec, httptest.NewRequest(http.MethodGet, "/api/prices", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestStatusSamplesDryRun(t *testing.T) {
	dry := false
	h := NewStatusHandler("bot", 5*time.Second, time.Now().Add(-time.Minute), func() bool { return dry })

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if !strings.Contains(rec.Body.String(), `"dry_run":false`) {
		t.Errorf("body = %s, want dry_run false", rec.Body.String())
	}

	dry = true
	rec = httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if !strings.Contains(rec.Body.String(), `"dry_run":true`) {
		t.Errorf("body = %s, want dry_run true", rec.Body.String())
	}
}
