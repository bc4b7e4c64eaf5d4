package papertrader

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"cryptosignals/engine/internal/config"
	"cryptosignals/engine/internal/correlation"
	"cryptosignals/engine/internal/engine"
	"cryptosignals/engine/internal/position"
	"cryptosignals/engine/internal/store"
)

type fakePosStore struct {
	mu        sync.Mutex
	positions map[int64]*store.ActivePosition
	journal   []*store.TradeJournalEntry
	nextID    int64
}

func newFakePosStore() *fakePosStore {
	return &fakePosStore{positions: make(map[int64]*store.ActivePosition)}
}

func (s *fakePosStore) CreatePosition(ctx context.Context, p *store.ActivePosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p.ID = s.nextID
	cp := *p
	s.positions[p.ID] = &cp
	return nil
}

func (s *fakePosStore) UpdatePosition(ctx context.Context, id int64, patch store.PositionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.positions[id]
	if !ok {
		return nil
	}
	if patch.State != nil {
		row.State = *patch.State
	}
	if patch.Quantity != nil {
		row.Quantity = *patch.Quantity
	}
	if patch.StopLoss != nil {
		row.StopLoss = *patch.StopLoss
	}
	if patch.TP1Hit != nil {
		row.TP1Hit = *patch.TP1Hit
	}
	if patch.TP2Hit != nil {
		row.TP2Hit = *patch.TP2Hit
	}
	if patch.TP3Hit != nil {
		row.TP3Hit = *patch.TP3Hit
	}
	if patch.BreakevenApplied != nil {
		row.BreakevenApplied = *patch.BreakevenApplied
	}
	if patch.TrailingActive != nil {
		row.TrailingActive = *patch.TrailingActive
	}
	if patch.PeakProfitUSD != nil {
		row.PeakProfitUSD = *patch.PeakProfitUSD
	}
	if patch.MaxDrawdownUSD != nil {
		row.MaxDrawdownUSD = *patch.MaxDrawdownUSD
	}
	return nil
}

func (s *fakePosStore) ClosePosition(ctx context.Context, id int64, patch store.PositionPatch) error {
	closed := store.PositionClosed
	patch.State = &closed
	return s.UpdatePosition(ctx, id, patch)
}

func (s *fakePosStore) GetOpenPositions(ctx context.Context, botVersion string) ([]*store.ActivePosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.ActivePosition
	for _, p := range s.positions {
		if p.State != store.PositionClosed {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakePosStore) AppendTradeJournal(ctx context.Context, t *store.TradeJournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = append(s.journal, t)
	return nil
}

func (s *fakePosStore) UpsertSetupPerformance(ctx context.Context, setupType, symbol, mode string, won bool, pnl float64) error {
	return nil
}

func (s *fakePosStore) WriteSnapshot(ctx context.Context, snap *store.PositionSnapshot) error {
	return nil
}

// fakeStream is a position.PriceStream a test can drive by hand, in lieu
// of a real Binance mark-price socket.
type fakeStream struct {
	mu        sync.Mutex
	listeners map[string]func(float64)
}

func newFakeStream() *fakeStream {
	return &fakeStream{listeners: make(map[string]func(float64))}
}

func (s *fakeStream) Subscribe(symbol string, onTick func(price float64)) (func(), error) {
	s.mu.Lock()
	s.listeners[symbol] = onTick
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, symbol)
		s.mu.Unlock()
	}, nil
}

func (s *fakeStream) Tick(symbol string, price float64) {
	s.mu.Lock()
	fn := s.listeners[symbol]
	s.mu.Unlock()
	if fn != nil {
		fn(price)
	}
}

type fakeTraderStore struct {
	mu        sync.Mutex
	portfolio *store.PaperPortfolio
}

func newFakeTraderStore(balance float64) *fakeTraderStore {
	return &fakeTraderStore{portfolio: &store.PaperPortfolio{BalanceUSD: balance}}
}

func (s *fakeTraderStore) InitPaperPortfolio(ctx context.Context, botVersion string, startingBalanceUSD float64) error {
	return nil
}

func (s *fakeTraderStore) GetPaperPortfolio(ctx context.Context, botVersion string) (*store.PaperPortfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.portfolio
	return &cp, nil
}

func (s *fakeTraderStore) ReservePaperMargin(ctx context.Context, botVersion string, amountUSD float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amountUSD > s.portfolio.BalanceUSD-s.portfolio.ReservedMarginUSD {
		return fmt.Errorf("insufficient balance")
	}
	s.portfolio.ReservedMarginUSD += amountUSD
	return nil
}

func (s *fakeTraderStore) UpdatePaperBalance(ctx context.Context, botVersion string, pnlDelta, releaseMarginUSD float64, won bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portfolio.BalanceUSD += pnlDelta
	s.portfolio.ReservedMarginUSD -= releaseMarginUSD
	if s.portfolio.ReservedMarginUSD < 0 {
		s.portfolio.ReservedMarginUSD = 0
	}
	s.portfolio.TotalTrades++
	if won {
		s.portfolio.Wins++
	} else {
		s.portfolio.Losses++
	}
	s.portfolio.TotalPnL += pnlDelta
	return nil
}

func baseSignal(symbol string, dir engine.Direction, score float64) engine.Signal {
	return engine.Signal{
		Type:        engine.SignalTypeSignal,
		Symbol:      symbol,
		Mode:        engine.ModeScalping,
		BotVersion:  engine.BotV1,
		Direction:   dir,
		Score:       score,
		EntryPrice:  100,
		StopLoss:    95,
		TP1:         110,
		TP2:         120,
		TP3:         130,
		TP1ClosePct: 50,
		TP2ClosePct: 0,
		TP3ClosePct: 50,
		SetupType:   "breakout",
		Leverage:    10,
	}
}

func newV1Trader(posStore *fakePosStore, stream *fakeStream, ts Store) *Trader {
	cfg := &config.BotConfig{Modes: map[string]config.ModeConfig{"scalping": {}}}
	m := position.New(engine.BotV1, posStore, nil, stream, nil)
	return New(engine.BotV1, cfg, ts, m, nil, nil, nil)
}

func TestAutoExecute_AdmitsAndReservesMargin(t *testing.T) {
	posStore := newFakePosStore()
	stream := newFakeStream()
	ts := newFakeTraderStore(100)
	tr := newV1Trader(posStore, stream, ts)

	ok, err := tr.AutoExecute(context.Background(), baseSignal("BTCUSDT", engine.DirectionLong, 70), 1)
	if err != nil || !ok {
		t.Fatalf("expected admission, got ok=%v err=%v", ok, err)
	}
	p, _ := ts.GetPaperPortfolio(context.Background(), "V1")
	if p.ReservedMarginUSD != fixedMarginUSD {
		t.Fatalf("expected reserved margin %v, got %v", fixedMarginUSD, p.ReservedMarginUSD)
	}
}

func TestAutoExecute_RejectsDuplicateSymbolDirection(t *testing.T) {
	posStore := newFakePosStore()
	stream := newFakeStream()
	ts := newFakeTraderStore(100)
	tr := newV1Trader(posStore, stream, ts)
	ctx := context.Background()

	ok, _ := tr.AutoExecute(ctx, baseSignal("BTCUSDT", engine.DirectionLong, 70), 1)
	if !ok {
		t.Fatalf("expected first trade admitted")
	}
	ok, _ = tr.AutoExecute(ctx, baseSignal("BTCUSDT", engine.DirectionLong, 70), 2)
	if ok {
		t.Fatalf("expected duplicate symbol+direction rejected")
	}
}

func TestAutoExecute_RejectsAtMaxOpenPositions(t *testing.T) {
	posStore := newFakePosStore()
	stream := newFakeStream()
	ts := newFakeTraderStore(1000)
	tr := newV1Trader(posStore, stream, ts)
	ctx := context.Background()

	symbols := []string{"AAA", "BBB", "CCC", "DDD", "EEE"}
	for i, sym := range symbols {
		ok, err := tr.AutoExecute(ctx, baseSignal(sym, engine.DirectionLong, 70), int64(i+1))
		if err != nil || !ok {
			t.Fatalf("trade %d: expected admission, got ok=%v err=%v", i, ok, err)
		}
	}
	ok, _ := tr.AutoExecute(ctx, baseSignal("FFF", engine.DirectionLong, 70), 99)
	if ok {
		t.Fatalf("expected rejection once the fixed max-open cap is reached")
	}
}

func TestAutoExecute_RejectsWhenMarginExceedsAvailable(t *testing.T) {
	posStore := newFakePosStore()
	stream := newFakeStream()
	ts := newFakeTraderStore(5) // below fixedMarginUSD
	tr := newV1Trader(posStore, stream, ts)

	ok, err := tr.AutoExecute(context.Background(), baseSignal("BTCUSDT", engine.DirectionLong, 70), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected rejection due to insufficient paper balance")
	}
}

func TestOnPositionClosed_ReleasesMarginAndUpdatesPortfolio(t *testing.T) {
	posStore := newFakePosStore()
	stream := newFakeStream()
	ts := newFakeTraderStore(100)
	tr := newV1Trader(posStore, stream, ts)
	ctx := context.Background()

	ok, err := tr.AutoExecute(ctx, baseSignal("BTCUSDT", engine.DirectionLong, 70), 1)
	if err != nil || !ok {
		t.Fatalf("expected admission, got ok=%v err=%v", ok, err)
	}

	stream.Tick("BTCUSDT", 95) // drives the position straight to its stop loss

	p, _ := ts.GetPaperPortfolio(ctx, "V1")
	if p.ReservedMarginUSD != 0 {
		t.Fatalf("expected margin released after close, got %v reserved", p.ReservedMarginUSD)
	}
	if p.Losses != 1 {
		t.Fatalf("expected one loss recorded, got wins=%d losses=%d", p.Wins, p.Losses)
	}
}

func TestAutoExecute_V4FeeGateRejectsTightTP1(t *testing.T) {
	posStore := newFakePosStore()
	stream := newFakeStream()
	ts := newFakeTraderStore(100)
	cfg := &config.BotConfig{
		Modes: map[string]config.ModeConfig{"scalping": {}},
		Fees:  &config.FeesConfig{TakerPct: 0.06},
	}
	m := position.New(engine.BotV4, posStore, nil, stream, nil)
	tr := New(engine.BotV4, cfg, ts, m, nil, nil, nil)

	sig := baseSignal("BTCUSDT", engine.DirectionLong, 70)
	sig.BotVersion = engine.BotV4
	sig.TP1 = 100.05 // 0.05% away, below the 0.12% round-trip fee

	ok, err := tr.AutoExecute(context.Background(), sig, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected fee gate rejection")
	}
}

func TestAutoExecute_V4AntiCorrelationCapsSameDirection(t *testing.T) {
	posStore := newFakePosStore()
	stream := newFakeStream()
	ts := newFakeTraderStore(1000)
	cfg := &config.BotConfig{Modes: map[string]config.ModeConfig{"scalping": {}}}
	m := position.New(engine.BotV4, posStore, nil, stream, nil)
	tr := New(engine.BotV4, cfg, ts, m, nil, nil, nil)
	ctx := context.Background()

	for i, sym := range []string{"AAA", "BBB", "CCC"} {
		sig := baseSignal(sym, engine.DirectionLong, 70)
		sig.BotVersion = engine.BotV4
		ok, err := tr.AutoExecute(ctx, sig, int64(i+1))
		if err != nil || !ok {
			t.Fatalf("trade %d: expected admission, got ok=%v err=%v", i, ok, err)
		}
	}

	sig := baseSignal("DDD", engine.DirectionLong, 70)
	sig.BotVersion = engine.BotV4
	ok, _ := tr.AutoExecute(ctx, sig, 99)
	if ok {
		t.Fatalf("expected anti-correlation rejection at 3 same-direction positions")
	}
}

func TestAutoExecute_V4CorrelationGuardWiredIntoAdmission(t *testing.T) {
	posStore := newFakePosStore()
	stream := newFakeStream()
	ts := newFakeTraderStore(1000)
	cfg := &config.BotConfig{Modes: map[string]config.ModeConfig{"scalping": {}}}
	m := position.New(engine.BotV4, posStore, nil, stream, nil)
	guard := correlation.New(map[string]string{"AAA": "majors"})
	tr := New(engine.BotV4, cfg, ts, m, nil, guard, nil)

	sig := baseSignal("AAA", engine.DirectionLong, 70)
	sig.BotVersion = engine.BotV4
	ok, err := tr.AutoExecute(context.Background(), sig, 1)
	if err != nil || !ok {
		t.Fatalf("expected the first admission on a fresh guard to pass through, got ok=%v err=%v", ok, err)
	}
}

func TestDynamicMargin_ClampsToScoreMultiplierAndBounds(t *testing.T) {
	sizing := config.SizingConfig{BasePct: 8, MinMargin: 3, MaxMargin: 20}

	// score <= 50 floors the multiplier at 0.6.
	if got, want := dynamicMargin(100, 50, sizing), 100*0.08*0.6; got != want {
		t.Fatalf("expected margin %v at the floor multiplier, got %v", want, got)
	}
	// score = 67.5 gives an exact, easy-to-check multiplier of 1.05.
	if got, want := dynamicMargin(100, 67.5, sizing), 100*0.08*1.05; got-want > 1e-9 || got-want < -1e-9 {
		t.Fatalf("expected margin %v at multiplier 1.05, got %v", want, got)
	}
	// score >= 85 caps the multiplier at 1.5.
	if got, want := dynamicMargin(100, 90, sizing), 100*0.08*1.5; got-want > 1e-9 || got-want < -1e-9 {
		t.Fatalf("expected margin %v at the cap multiplier, got %v", want, got)
	}
	if got := dynamicMargin(1000, 90, sizing); got != 20 {
		t.Fatalf("expected margin clamped to max_margin 20, got %v", got)
	}
	if got := dynamicMargin(10, 50, sizing); got != 3 {
		t.Fatalf("expected margin clamped to min_margin 3, got %v", got)
	}
}

func TestDynamicMaxOpen_ClampsBetween2And6(t *testing.T) {
	sizing := config.SizingConfig{BasePct: 8, MinMargin: 3}
	if got := dynamicMaxOpen(10, sizing); got != 2 {
		t.Fatalf("expected floor of 2 on a small balance, got %v", got)
	}
	if got := dynamicMaxOpen(100000, sizing); got != 6 {
		t.Fatalf("expected cap of 6 on a large balance, got %v", got)
	}
}

func TestApplySlippage_IgnoresMissingOrAbsurdSpread(t *testing.T) {
	if got := applySlippage(100, engine.DirectionLong, 0); got != 100 {
		t.Fatalf("expected no slippage at zero spread, got %v", got)
	}
	if got := applySlippage(100, engine.DirectionLong, 999); got != 100 {
		t.Fatalf("expected no slippage on an absurd spread reading, got %v", got)
	}
	if got := applySlippage(100, engine.DirectionLong, 0.2); got <= 100 {
		t.Fatalf("expected a worse (higher) fill for a long, got %v", got)
	}
	if got := applySlippage(100, engine.DirectionShort, 0.2); got >= 100 {
		t.Fatalf("expected a worse (lower) fill for a short, got %v", got)
	}
}
