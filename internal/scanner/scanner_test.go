package scanner

import (
	"context"
	"sync"
	"testing"
	"time"

	"cryptosignals/engine/internal/config"
	"cryptosignals/engine/internal/engine"
	"cryptosignals/engine/internal/marketdata"
	"cryptosignals/engine/internal/store"
)

type fakeMarketData struct {
	mu        sync.Mutex
	failNext  map[string]int // symbol|tf -> remaining failures
	orderBook *marketdata.OrderBookMetrics
}

func newFakeMarketData() *fakeMarketData {
	return &fakeMarketData{failNext: make(map[string]int)}
}

func (m *fakeMarketData) Candles(ctx context.Context, symbol string, tf marketdata.Timeframe, limit int) ([]marketdata.Candle, error) {
	m.mu.Lock()
	key := symbol + "|" + string(tf)
	if n := m.failNext[key]; n > 0 {
		m.failNext[key] = n - 1
		m.mu.Unlock()
		return nil, context.DeadlineExceeded
	}
	m.mu.Unlock()
	candles := make([]marketdata.Candle, limit)
	for i := range candles {
		candles[i] = marketdata.Candle{Open: 100, High: 101, Low: 99, Close: 100, Volume: 10}
	}
	return candles, nil
}

func (m *fakeMarketData) OrderBook(ctx context.Context, symbol string) (*marketdata.OrderBookMetrics, error) {
	return m.orderBook, nil
}

func (m *fakeMarketData) FundingRate(ctx context.Context, symbol string) (float64, error) {
	return 0.01, nil
}

func (m *fakeMarketData) OpenInterestChangePct(ctx context.Context, symbol string) (float64, error) {
	return 0, nil
}

func (m *fakeMarketData) OrderFlowRatio(ctx context.Context, symbol string) (float64, error) {
	return 1.0, nil
}

type fakeSignalEngine struct {
	next func(req engine.Request) engine.Signal
}

func (e *fakeSignalEngine) Analyze(ctx context.Context, req engine.Request) engine.Signal {
	return e.next(req)
}

type fakeTrader struct {
	mu        sync.Mutex
	executed  []int64
	returnOK  bool
	returnErr error
}

func (t *fakeTrader) AutoExecute(ctx context.Context, sig engine.Signal, signalID int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.returnErr != nil {
		return false, t.returnErr
	}
	if t.returnOK {
		t.executed = append(t.executed, signalID)
	}
	return t.returnOK, nil
}

type fakeScannerStore struct {
	mu            sync.Mutex
	nextID        int64
	signals       []*store.Signal
	executedIDs   []int64
	hasOpenSymbol map[string]bool
	tradeLogs     []*store.TradeabilityLogEntry
}

func newFakeScannerStore() *fakeScannerStore {
	return &fakeScannerStore{hasOpenSymbol: make(map[string]bool)}
}

func (s *fakeScannerStore) CreateSignal(ctx context.Context, sig *store.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sig.ID = s.nextID
	s.signals = append(s.signals, sig)
	return nil
}

func (s *fakeScannerStore) UpdateSignalStatus(ctx context.Context, id int64, status store.SignalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executedIDs = append(s.executedIDs, id)
	return nil
}

func (s *fakeScannerStore) HasOpenPosition(ctx context.Context, botVersion, symbol string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasOpenSymbol[symbol], nil
}

func (s *fakeScannerStore) AppendTradeabilityLog(ctx context.Context, e *store.TradeabilityLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tradeLogs = append(s.tradeLogs, e)
	return nil
}

func testConfig() *config.BotConfig {
	cfg := &config.BotConfig{
		Pairs:   []config.PairConfig{{Symbol: "BTCUSDT", Enabled: true}, {Symbol: "ETHUSDT", Enabled: false}},
		Scanner: config.ScannerConfig{IntervalSeconds: 30, Modes: []string{"scalping"}},
		Modes:   map[string]config.ModeConfig{"scalping": {}},
	}
	cfg.Modes["scalping"] = func() config.ModeConfig {
		mc := cfg.Modes["scalping"]
		mc.Timeframes.Analysis = []string{"1m"}
		mc.Timeframes.Filter = "15m"
		return mc
	}()
	return cfg
}

func tradeSignal(symbol string, entry float64) engine.Signal {
	return engine.Signal{
		Type:       engine.SignalTypeSignal,
		Symbol:     symbol,
		Mode:       engine.ModeScalping,
		BotVersion: engine.BotV1,
		Direction:  engine.DirectionLong,
		Score:      70,
		EntryPrice: entry,
		StopLoss:   entry * 0.95,
		TP1:        entry * 1.1,
		SetupType:  "breakout",
	}
}

func TestScanOne_AdmitsAndExecutesSignal(t *testing.T) {
	md := newFakeMarketData()
	se := &fakeSignalEngine{next: func(req engine.Request) engine.Signal { return tradeSignal(req.Symbol, 100) }}
	tr := &fakeTrader{returnOK: true}
	st := newFakeScannerStore()
	cfg := testConfig()

	s := New(engine.BotV1, cfg, md, se, tr, st, nil)
	if err := s.scanOne(context.Background(), "BTCUSDT", "scalping"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(st.signals) != 1 {
		t.Fatalf("expected one signal persisted, got %d", len(st.signals))
	}
	if len(st.executedIDs) != 1 {
		t.Fatalf("expected the signal marked executed, got %d updates", len(st.executedIDs))
	}
	if len(tr.executed) != 1 {
		t.Fatalf("expected AutoExecute called once, got %d", len(tr.executed))
	}
}

func TestScanOne_NoTradeAppendsTradeabilityLog(t *testing.T) {
	md := newFakeMarketData()
	se := &fakeSignalEngine{next: func(req engine.Request) engine.Signal {
		return engine.NoTrade(req.Symbol, req.Mode, req.BotVersion, "spread too wide", 42)
	}}
	tr := &fakeTrader{returnOK: true}
	st := newFakeScannerStore()
	cfg := testConfig()

	s := New(engine.BotV1, cfg, md, se, tr, st, nil)
	if err := s.scanOne(context.Background(), "BTCUSDT", "scalping"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(st.tradeLogs) != 1 {
		t.Fatalf("expected one tradeability_log row, got %d", len(st.tradeLogs))
	}
	if st.tradeLogs[0].Reason != "spread too wide" || st.tradeLogs[0].Score != 42 {
		t.Fatalf("unexpected tradeability log contents: %+v", st.tradeLogs[0])
	}
	if len(st.signals) != 0 {
		t.Fatalf("expected no signal persisted on no_trade, got %d", len(st.signals))
	}
}

func TestScanOne_SkipsUnderCooldown(t *testing.T) {
	md := newFakeMarketData()
	se := &fakeSignalEngine{next: func(req engine.Request) engine.Signal { return tradeSignal(req.Symbol, 100) }}
	tr := &fakeTrader{returnOK: true}
	st := newFakeScannerStore()
	cfg := testConfig()

	s := New(engine.BotV1, cfg, md, se, tr, st, nil)
	s.SetCooldown("BTCUSDT", "scalping", time.Minute)

	if err := s.scanOne(context.Background(), "BTCUSDT", "scalping"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.signals) != 0 {
		t.Fatalf("expected the cooldown to suppress scanning, got %d signals", len(st.signals))
	}
}

func TestScanOne_RejectsWhenPositionAlreadyOpen(t *testing.T) {
	md := newFakeMarketData()
	se := &fakeSignalEngine{next: func(req engine.Request) engine.Signal { return tradeSignal(req.Symbol, 100) }}
	tr := &fakeTrader{returnOK: true}
	st := newFakeScannerStore()
	st.hasOpenSymbol["BTCUSDT"] = true
	cfg := testConfig()

	s := New(engine.BotV1, cfg, md, se, tr, st, nil)
	if err := s.scanOne(context.Background(), "BTCUSDT", "scalping"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.signals) != 0 {
		t.Fatalf("expected no signal persisted with an open position on symbol, got %d", len(st.signals))
	}
}

func TestScanOne_DedupesSameSetupAndCloseEntry(t *testing.T) {
	md := newFakeMarketData()
	se := &fakeSignalEngine{next: func(req engine.Request) engine.Signal { return tradeSignal(req.Symbol, 100) }}
	tr := &fakeTrader{returnOK: true}
	st := newFakeScannerStore()
	cfg := testConfig()

	s := New(engine.BotV1, cfg, md, se, tr, st, nil)
	if err := s.scanOne(context.Background(), "BTCUSDT", "scalping"); err != nil {
		t.Fatalf("unexpected error on first scan: %v", err)
	}
	if len(st.signals) != 1 {
		t.Fatalf("expected first signal admitted, got %d", len(st.signals))
	}

	// A second identical signal within the anti-flip-flop window is also a
	// duplicate (same direction/setup/entry), so it must not persist again.
	if err := s.scanOne(context.Background(), "BTCUSDT", "scalping"); err != nil {
		t.Fatalf("unexpected error on second scan: %v", err)
	}
	if len(st.signals) != 1 {
		t.Fatalf("expected the duplicate signal suppressed, got %d total", len(st.signals))
	}
}

func TestScanOne_RejectsRecentFlipFlopEvenWithDifferentSetup(t *testing.T) {
	md := newFakeMarketData()
	calls := 0
	se := &fakeSignalEngine{next: func(req engine.Request) engine.Signal {
		calls++
		sig := tradeSignal(req.Symbol, 100)
		if calls == 2 {
			sig.SetupType = "reversal" // not a dedupe match, but still within the 45s window
		}
		return sig
	}}
	tr := &fakeTrader{returnOK: true}
	st := newFakeScannerStore()
	cfg := testConfig()

	s := New(engine.BotV1, cfg, md, se, tr, st, nil)
	if err := s.scanOne(context.Background(), "BTCUSDT", "scalping"); err != nil {
		t.Fatalf("unexpected error on first scan: %v", err)
	}
	if err := s.scanOne(context.Background(), "BTCUSDT", "scalping"); err != nil {
		t.Fatalf("unexpected error on second scan: %v", err)
	}
	if len(st.signals) != 1 {
		t.Fatalf("expected the anti-flip-flop window to suppress the second signal, got %d", len(st.signals))
	}
}

func TestScanOne_RetriesCandleFetchOnce(t *testing.T) {
	md := newFakeMarketData()
	md.failNext["BTCUSDT|1m"] = 1 // fails once, then succeeds on retry
	se := &fakeSignalEngine{next: func(req engine.Request) engine.Signal { return tradeSignal(req.Symbol, 100) }}
	tr := &fakeTrader{returnOK: true}
	st := newFakeScannerStore()
	cfg := testConfig()

	s := New(engine.BotV1, cfg, md, se, tr, st, nil)
	if err := s.scanOne(context.Background(), "BTCUSDT", "scalping"); err != nil {
		t.Fatalf("expected the single retry to recover, got error: %v", err)
	}
	if len(st.signals) != 1 {
		t.Fatalf("expected one signal admitted after the retry, got %d", len(st.signals))
	}
}

func TestScanOne_GivesUpAfterTwoConsecutiveFailures(t *testing.T) {
	md := newFakeMarketData()
	md.failNext["BTCUSDT|1m"] = 2 // fails on the initial attempt and the retry
	se := &fakeSignalEngine{next: func(req engine.Request) engine.Signal { return tradeSignal(req.Symbol, 100) }}
	tr := &fakeTrader{returnOK: true}
	st := newFakeScannerStore()
	cfg := testConfig()

	s := New(engine.BotV1, cfg, md, se, tr, st, nil)
	if err := s.scanOne(context.Background(), "BTCUSDT", "scalping"); err == nil {
		t.Fatalf("expected an error once both attempts fail")
	}
	if len(st.signals) != 0 {
		t.Fatalf("expected no signal when candle fetch never recovers, got %d", len(st.signals))
	}
}

func TestStatus_ReportsEnabledPairsAndCooldowns(t *testing.T) {
	md := newFakeMarketData()
	se := &fakeSignalEngine{next: func(req engine.Request) engine.Signal { return engine.NoTrade(req.Symbol, req.Mode, req.BotVersion, "x", 1) }}
	tr := &fakeTrader{returnOK: true}
	st := newFakeScannerStore()
	cfg := testConfig()

	s := New(engine.BotV1, cfg, md, se, tr, st, nil)
	s.SetCooldown("BTCUSDT", "scalping", time.Minute)

	status := s.Status()
	if len(status.Pairs) != 1 || status.Pairs[0] != "BTCUSDT" {
		t.Fatalf("expected only the enabled pair BTCUSDT, got %v", status.Pairs)
	}
	if _, ok := status.Cooldowns["BTCUSDT|scalping"]; !ok {
		t.Fatalf("expected the cooldown to be reported in status")
	}
}
