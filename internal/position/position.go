// Package position implements the Position Monitor: a
// per-(id) state machine that walks an open paper position through
// active → breakeven → trailing → trailing_tp → closed on every price
// tick, applying early-profit-protection, V4 profit-giveback, V3 dynamic
// stop-loss widening, and the stale-timeout/quick-exit safety rails, then
// journals the close and notifies the Adaptive Learner.
//
// It tracks per-position lifecycle bookkeeping with a per-position
// "processing" mutex that serializes re-entrant ticks for the same id.
package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cryptosignals/engine/internal/engine"
	"cryptosignals/engine/internal/learner"
	"cryptosignals/engine/internal/logging"
	"cryptosignals/engine/internal/store"
)

// Store is the narrow persistence slice the monitor needs, satisfied by
// *store.Repository.
type Store interface {
	CreatePosition(ctx context.Context, p *store.ActivePosition) error
	UpdatePosition(ctx context.Context, id int64, patch store.PositionPatch) error
	ClosePosition(ctx context.Context, id int64, patch store.PositionPatch) error
	GetOpenPositions(ctx context.Context, botVersion string) ([]*store.ActivePosition, error)
	AppendTradeJournal(ctx context.Context, t *store.TradeJournalEntry) error
	UpsertSetupPerformance(ctx context.Context, setupType, symbol, mode string, won bool, pnl float64) error
	WriteSnapshot(ctx context.Context, snap *store.PositionSnapshot) error
}

// Learner is the narrow slice of internal/learner.Learner the monitor
// notifies on close.
type Learner interface {
	RecordClose(ctx context.Context, bot engine.BotVersion, out learner.TradeOutcome) error
}

// PriceStream is the narrow tick-source interface the monitor subscribes
// through (satisfied by the concrete MarkPriceStream in stream.go, or a
// fake in tests).
type PriceStream interface {
	Subscribe(symbol string, onTick func(price float64)) (unsubscribe func(), err error)
}

// Params bundles the per-(bot_version, mode) thresholds the Position
// Monitor evaluates on every tick, snapshotted from
// internal/config.BotConfig/ModeConfig at registration time so the
// monitor's core logic does not depend on the config package's YAML
// shape directly.
type Params struct {
	BotVersion engine.BotVersion

	BreakevenAtPct     float64
	TrailActivationPct float64
	TrailBehindPct     float64

	MaxHoldSeconds int
	MinProfitUSD   float64
	MaxLossUSD     float64

	// V4 only.
	TakerFeePct       float64 // round-trip fee deduction and fee-adjusted breakeven
	ActivationFeeMult float64 // profit-giveback activation threshold
	GivebackPct       float64
	TrailingTPEnabled bool
	TP3ClosePct       float64
	TrailATR          float64

	// V3 only.
	DynamicSLWideningEnabled bool

	// StaleLossFloorUSD is the PnL threshold below which a stale position
	// is force-closed: 0.05 for V1-V3 ("PnL < $0.05"), 0 for V4 ("PnL < 0").
	StaleLossFloorUSD float64
}

// Position wraps a store.ActivePosition with the runtime-only state the
// monitor needs between ticks: a per-position mutex that serializes
// re-entrant evaluation and the params snapshot captured at registration.
type Position struct {
	mu  sync.Mutex
	row store.ActivePosition

	params    Params
	entryATR  float64
	giveback  bool // profit-giveback armed once max_profit_usd crosses the activation threshold
	lastPrice float64
}

// ID returns the position's persisted identifier.
func (p *Position) ID() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.row.ID
}

// Margin returns the position's leveraged size in USD (margin *
// leverage), the value fee calculations are based on. It is not the
// dollar amount reserved against the paper balance — callers tracking a
// margin reservation (the Paper Trader) keep that separately, since
// margin = position size / leverage.
func (p *Position) Margin() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.row.MarginUSD
}

// Snapshot returns a copy of the position's current persisted row.
func (p *Position) Snapshot() store.ActivePosition {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.row
}

// OnCloseFunc is invoked once a position has fully closed and its close
// journal has been written. The Paper Trader subscribes here to release
// reserved margin.
type OnCloseFunc func(positionID int64, pnlUSD float64)

// Monitor is the Position Monitor for one bot instance:
// "positions map<id,Position> + ws_tasks map<symbol,worker>" translated
// to a Go map of *Position guarded by a single RWMutex, plus a lazily
// spawned per-symbol PriceStream subscription.
type Monitor struct {
	bot    engine.BotVersion
	store  Store
	learn  Learner
	stream PriceStream
	log    *logging.Logger

	mu          sync.RWMutex
	positions   map[int64]*Position
	subsBySym   map[string]func()
	refcountSym map[string]int

	closeMu   sync.Mutex
	onClose   []OnCloseFunc
}

func New(bot engine.BotVersion, st Store, learn Learner, stream PriceStream, log *logging.Logger) *Monitor {
	return &Monitor{
		bot:         bot,
		store:       st,
		learn:       learn,
		stream:      stream,
		log:         log,
		positions:   make(map[int64]*Position),
		subsBySym:   make(map[string]func()),
		refcountSym: make(map[string]int),
	}
}

// OnClose registers a callback fired after a position finishes closing.
func (m *Monitor) OnClose(fn OnCloseFunc) {
	m.closeMu.Lock()
	m.onClose = append(m.onClose, fn)
	m.closeMu.Unlock()
}

// RegisterTrade persists a new position and begins monitoring it, handing
// the opened trade from the Paper Trader to the Position Monitor.
func (m *Monitor) RegisterTrade(ctx context.Context, row store.ActivePosition, params Params) (*Position, error) {
	row.BotVersion = string(m.bot)
	row.State = store.PositionActive
	if err := m.store.CreatePosition(ctx, &row); err != nil {
		return nil, fmt.Errorf("position: create: %w", err)
	}

	p := &Position{row: row, params: params, entryATR: row.EntryATR}

	m.mu.Lock()
	m.positions[row.ID] = p
	m.mu.Unlock()

	m.ensureSubscribed(row.Symbol)
	return p, nil
}

// OpenPositions returns a snapshot of every position currently tracked.
func (m *Monitor) OpenPositions() []*Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out
}

func (m *Monitor) ensureSubscribed(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refcountSym[symbol]++
	if _, ok := m.subsBySym[symbol]; ok {
		return
	}
	if m.stream == nil {
		return
	}
	unsub, err := m.stream.Subscribe(symbol, func(price float64) {
		m.tick(context.Background(), symbol, price)
	})
	if err != nil {
		if m.log != nil {
			m.log.Warn("position: subscribe failed", "symbol", symbol, "error", err)
		}
		return
	}
	m.subsBySym[symbol] = unsub
}

func (m *Monitor) releaseSubscription(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refcountSym[symbol]--
	if m.refcountSym[symbol] > 0 {
		return
	}
	delete(m.refcountSym, symbol)
	if unsub, ok := m.subsBySym[symbol]; ok {
		unsub()
		delete(m.subsBySym, symbol)
	}
}

// tick dispatches a price update to every open position on that symbol
//.
func (m *Monitor) tick(ctx context.Context, symbol string, price float64) {
	m.mu.RLock()
	var matched []*Position
	for _, p := range m.positions {
		if p.row.Symbol == symbol {
			matched = append(matched, p)
		}
	}
	m.mu.RUnlock()

	for _, p := range matched {
		m.evaluate(ctx, p, price)
	}
}

// progressPct returns how far price has moved toward TP1 from entry, as a
// fraction of the entry→TP1 distance, signed so that 1.0 means "at TP1".
func progressPct(row *store.ActivePosition, price float64) float64 {
	dist := tp1Distance(row)
	if dist == 0 {
		return 0
	}
	if row.Direction == "long" {
		return (price - row.EntryPrice) / dist
	}
	return (row.EntryPrice - price) / dist
}

func tp1Distance(row *store.ActivePosition) float64 {
	if row.Direction == "long" {
		return row.TP1 - row.EntryPrice
	}
	return row.EntryPrice - row.TP1
}

// unrealizedPnLUSD computes the mark-to-market PnL of the remaining
// position size at the given price, before fees.
func unrealizedPnLUSD(row *store.ActivePosition, price float64) float64 {
	if row.Direction == "long" {
		return (price - row.EntryPrice) * row.Quantity
	}
	return (row.EntryPrice - price) * row.Quantity
}

// feeAdjustedBreakeven computes V4's fee-adjusted breakeven price:
// entry ± (position_size_usd * taker_pct/100 * 2) / remaining_quantity.
func feeAdjustedBreakeven(row *store.ActivePosition, takerPct float64) float64 {
	if row.Quantity == 0 {
		return row.EntryPrice
	}
	feeOffset := (row.MarginUSD * takerPct / 100 * 2) / row.Quantity
	if row.Direction == "long" {
		return row.EntryPrice + feeOffset
	}
	return row.EntryPrice - feeOffset
}

func roundTripFeesUSD(row *store.ActivePosition, takerPct float64) float64 {
	return row.MarginUSD * takerPct / 100 * 2
}
