package position

import (
	"context"
	"testing"
	"time"

	"cryptosignals/engine/internal/engine"
	"cryptosignals/engine/internal/learner"
	"cryptosignals/engine/internal/store"
)

type fakeStore struct {
	positions map[int64]*store.ActivePosition
	journal   []*store.TradeJournalEntry
	nextID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{positions: make(map[int64]*store.ActivePosition)}
}

func (s *fakeStore) CreatePosition(ctx context.Context, p *store.ActivePosition) error {
	s.nextID++
	p.ID = s.nextID
	p.OpenedAt = time.Now()
	cp := *p
	s.positions[p.ID] = &cp
	return nil
}

func (s *fakeStore) UpdatePosition(ctx context.Context, id int64, patch store.PositionPatch) error {
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

func (s *fakeStore) ClosePosition(ctx context.Context, id int64, patch store.PositionPatch) error {
	closed := store.PositionClosed
	patch.State = &closed
	return s.UpdatePosition(ctx, id, patch)
}

func (s *fakeStore) GetOpenPositions(ctx context.Context, botVersion string) ([]*store.ActivePosition, error) {
	var out []*store.ActivePosition
	for _, p := range s.positions {
		if p.State != store.PositionClosed {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) AppendTradeJournal(ctx context.Context, t *store.TradeJournalEntry) error {
	s.journal = append(s.journal, t)
	return nil
}

func (s *fakeStore) UpsertSetupPerformance(ctx context.Context, setupType, symbol, mode string, won bool, pnl float64) error {
	return nil
}

func (s *fakeStore) WriteSnapshot(ctx context.Context, snap *store.PositionSnapshot) error {
	return nil
}

type fakeLearner struct {
	calls []learner.TradeOutcome
}

func (f *fakeLearner) RecordClose(ctx context.Context, bot engine.BotVersion, out learner.TradeOutcome) error {
	f.calls = append(f.calls, out)
	return nil
}

func newTestMonitor(st *fakeStore, l Learner) *Monitor {
	return New(engine.BotV4, st, l, nil, nil)
}

func longRow(entry, tp1, tp2, tp3, sl float64) store.ActivePosition {
	return store.ActivePosition{
		Symbol:           "BTCUSDT",
		Direction:        "long",
		EntryPrice:       entry,
		OriginalQuantity: 1,
		Quantity:         1,
		MarginUSD:        100,
		StopLoss:         sl,
		TP1:              tp1,
		TP2:              tp2,
		TP3:              tp3,
		TP1ClosePct:      50,
		TP2ClosePct:      0,
		TP3ClosePct:      50,
		SetupType:        "breakout",
		Mode:             "scalping",
	}
}

func TestOnTP1Hit_ShrinksQuantityAndMigratesBreakeven(t *testing.T) {
	st := newFakeStore()
	m := newTestMonitor(st, nil)
	row := longRow(100, 110, 120, 130, 95)
	p, err := m.RegisterTrade(context.Background(), row, Params{BotVersion: engine.BotV4, TakerFeePct: 0.05})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	m.evaluate(context.Background(), p, 110)

	snap := p.Snapshot()
	if !snap.TP1Hit {
		t.Fatalf("expected tp1_hit=true")
	}
	if snap.State != store.PositionBreakeven {
		t.Fatalf("expected state=breakeven, got %s", snap.State)
	}
	if snap.Quantity != 0.5 {
		t.Fatalf("expected remaining quantity 0.5, got %v", snap.Quantity)
	}
	if snap.StopLoss <= snap.EntryPrice {
		t.Fatalf("expected fee-adjusted breakeven stop above entry for a long, got %v", snap.StopLoss)
	}
}

func TestOnTP2Hit_MovesStopToTP1AndShrinksToTP3Pct(t *testing.T) {
	st := newFakeStore()
	m := newTestMonitor(st, nil)
	row := longRow(100, 110, 120, 130, 95)
	p, _ := m.RegisterTrade(context.Background(), row, Params{BotVersion: engine.BotV4})

	m.evaluate(context.Background(), p, 110) // TP1
	m.evaluate(context.Background(), p, 120) // TP2

	snap := p.Snapshot()
	if !snap.TP2Hit {
		t.Fatalf("expected tp2_hit=true")
	}
	if snap.State != store.PositionTrailing {
		t.Fatalf("expected state=trailing, got %s", snap.State)
	}
	if snap.StopLoss != 110 {
		t.Fatalf("expected stop migrated to TP1 price 110, got %v", snap.StopLoss)
	}
	if snap.Quantity != 0.5 {
		t.Fatalf("expected remaining quantity = original * tp3_close_pct/100 = 0.5, got %v", snap.Quantity)
	}
}

func TestOnTP3Hit_ClosesWhenTrailingTPDisabled(t *testing.T) {
	st := newFakeStore()
	m := newTestMonitor(st, nil)
	row := longRow(100, 110, 120, 130, 95)
	p, _ := m.RegisterTrade(context.Background(), row, Params{BotVersion: engine.BotV4})

	m.evaluate(context.Background(), p, 110)
	m.evaluate(context.Background(), p, 120)
	m.evaluate(context.Background(), p, 130)

	snap := st.positions[p.ID()]
	if snap.State != store.PositionClosed {
		t.Fatalf("expected closed state, got %s", snap.State)
	}
	if len(st.journal) != 1 || st.journal[0].ExitReason != string(closeTP3) {
		t.Fatalf("expected a tp3 journal entry, got %+v", st.journal)
	}
}

func TestOnTP3Hit_TrailingTPDownsizesInsteadOfClosing(t *testing.T) {
	st := newFakeStore()
	m := newTestMonitor(st, nil)
	row := longRow(100, 110, 120, 130, 95)
	row.EntryATR = 2
	params := Params{BotVersion: engine.BotV4, TrailingTPEnabled: true, TP3ClosePct: 50, TrailATR: 1}
	p, _ := m.RegisterTrade(context.Background(), row, params)

	m.evaluate(context.Background(), p, 110)
	m.evaluate(context.Background(), p, 120)
	m.evaluate(context.Background(), p, 130)

	snap := p.Snapshot()
	if snap.State != store.PositionTrailingTP {
		t.Fatalf("expected state=trailing_tp, got %s", snap.State)
	}
	if snap.StopLoss != 130-2 {
		t.Fatalf("expected new SL at tp3_price - entry_atr*trail_atr = 128, got %v", snap.StopLoss)
	}
	if snap.Quantity != 0.25 {
		t.Fatalf("expected quantity downsized by tp3_close_pct, got %v", snap.Quantity)
	}
}

func TestSLHit_ClosesWithSLReason(t *testing.T) {
	st := newFakeStore()
	l := &fakeLearner{}
	m := newTestMonitor(st, l)
	row := longRow(100, 110, 120, 130, 95)
	params := Params{BotVersion: engine.BotV4}
	p, _ := m.RegisterTrade(context.Background(), row, params)

	m.evaluate(context.Background(), p, 95)

	snap := st.positions[p.ID()]
	if snap.State != store.PositionClosed {
		t.Fatalf("expected closed, got %s", snap.State)
	}
	if st.journal[0].ExitReason != string(closeSL) {
		t.Fatalf("expected sl close reason, got %s", st.journal[0].ExitReason)
	}
	if len(l.calls) != 1 {
		t.Fatalf("expected learner notified once for V4 close, got %d calls", len(l.calls))
	}
}

func TestLearnerNotNotifiedOnNonV4Close(t *testing.T) {
	st := newFakeStore()
	l := &fakeLearner{}
	m := New(engine.BotV1, st, l, nil, nil)
	row := longRow(100, 110, 120, 130, 95)
	params := Params{BotVersion: engine.BotV1}
	p, _ := m.RegisterTrade(context.Background(), row, params)

	m.evaluate(context.Background(), p, 95)

	if len(l.calls) != 0 {
		t.Fatalf("expected no learner notification for a V1 close, got %d", len(l.calls))
	}
}

func TestStaleTimeout_ClosesBelowLossFloor(t *testing.T) {
	st := newFakeStore()
	m := newTestMonitor(st, nil)
	row := longRow(100, 110, 120, 130, 95)
	params := Params{BotVersion: engine.BotV4, MaxHoldSeconds: 1, StaleLossFloorUSD: 0}
	p, _ := m.RegisterTrade(context.Background(), row, params)
	p.row.OpenedAt = time.Now().Add(-2 * time.Second)

	m.evaluate(context.Background(), p, 99) // unrealized pnl -1, below floor of 0

	snap := st.positions[p.ID()]
	if snap.State != store.PositionClosed {
		t.Fatalf("expected stale-timeout close, got %s", snap.State)
	}
	if st.journal[0].ExitReason != string(closeStale) {
		t.Fatalf("expected stale_timeout reason, got %s", st.journal[0].ExitReason)
	}
}

func TestStaleTimeout_DoesNotCloseProfitablePositionForV4(t *testing.T) {
	st := newFakeStore()
	m := newTestMonitor(st, nil)
	row := longRow(100, 110, 120, 130, 95)
	params := Params{BotVersion: engine.BotV4, MaxHoldSeconds: 1, StaleLossFloorUSD: 0}
	p, _ := m.RegisterTrade(context.Background(), row, params)
	p.row.OpenedAt = time.Now().Add(-2 * time.Second)

	m.evaluate(context.Background(), p, 101) // profitable, should survive past hold time

	snap := st.positions[p.ID()]
	if snap.State == store.PositionClosed {
		t.Fatalf("expected profitable V4 position to survive the stale timeout")
	}
}

func TestMaxLossUSD_ClosesOnceBreached(t *testing.T) {
	st := newFakeStore()
	m := newTestMonitor(st, nil)
	row := longRow(100, 110, 120, 130, 0) // no SL configured, rely on max_loss_usd
	params := Params{BotVersion: engine.BotV4, MaxLossUSD: 5}
	p, _ := m.RegisterTrade(context.Background(), row, params)

	m.evaluate(context.Background(), p, 94) // -6 usd loss on qty 1

	snap := st.positions[p.ID()]
	if snap.State != store.PositionClosed || st.journal[0].ExitReason != string(closeMaxLoss) {
		t.Fatalf("expected max_loss_usd close, got state=%s reason=%v", snap.State, st.journal)
	}
}

func TestMinProfitUSD_ClosesOnceReached(t *testing.T) {
	st := newFakeStore()
	m := newTestMonitor(st, nil)
	row := longRow(100, 110, 120, 130, 95)
	params := Params{BotVersion: engine.BotV4, MinProfitUSD: 3}
	p, _ := m.RegisterTrade(context.Background(), row, params)

	m.evaluate(context.Background(), p, 104) // +4 usd

	snap := st.positions[p.ID()]
	if snap.State != store.PositionClosed || st.journal[0].ExitReason != string(closeMinProfit) {
		t.Fatalf("expected min_profit_usd close, got state=%s reason=%v", snap.State, st.journal)
	}
}

func TestProfitGiveback_ActivatesAndClosesOnRetracement(t *testing.T) {
	st := newFakeStore()
	m := newTestMonitor(st, nil)
	row := longRow(100, 110, 120, 130, 0)
	row.MarginUSD = 100
	params := Params{
		BotVersion:        engine.BotV4,
		TakerFeePct:       0.05,
		ActivationFeeMult: 2,
		GivebackPct:       0.3,
	}
	p, _ := m.RegisterTrade(context.Background(), row, params)

	// Run up to a peak profit well above the activation threshold.
	m.evaluate(context.Background(), p, 120)
	if p.Snapshot().State == store.PositionClosed {
		t.Fatalf("should not close at peak")
	}

	// Retrace more than giveback_pct of the peak while still net-of-fees profitable.
	m.evaluate(context.Background(), p, 112)

	snap := st.positions[p.ID()]
	if snap.State != store.PositionClosed {
		t.Fatalf("expected profit-giveback close after retracement, got state=%s", snap.State)
	}
	if st.journal[0].ExitReason != string(closeProfitGiveback) {
		t.Fatalf("expected profit_giveback reason, got %s", st.journal[0].ExitReason)
	}
}

func TestFeeDeduction_APpliedOnlyWhenTakerFeeConfigured(t *testing.T) {
	st := newFakeStore()
	m := newTestMonitor(st, nil)
	row := longRow(100, 110, 120, 130, 95)
	params := Params{BotVersion: engine.BotV1} // no taker fee configured
	p, _ := m.RegisterTrade(context.Background(), row, params)

	m.evaluate(context.Background(), p, 95) // sl hit, loss of -5usd on qty 1

	if st.journal[0].PnL != -5 {
		t.Fatalf("expected undeducted pnl of -5 without a taker fee, got %v", st.journal[0].PnL)
	}
	if st.journal[0].FeePaid != 0 {
		t.Fatalf("expected zero fee paid without a configured taker fee, got %v", st.journal[0].FeePaid)
	}
}
