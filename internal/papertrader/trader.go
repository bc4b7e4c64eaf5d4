// Package papertrader implements the Paper Trader: a per-bot
// admission controller and shadow-accounting ledger. Every candidate
// signal runs through a fixed nine-step pipeline before it is handed to
// the Position Monitor; on close, the trader releases the reserved
// margin and rolls the portfolio counters.
//
// Validation runs as a sequential reject-with-reason chain, and the
// original Python's app/core/paper_trader.py (the exact nine-step order
// and sizing/slippage/fee-gate formulas).
package papertrader

import (
	"context"
	"fmt"
	"math"

	"cryptosignals/engine/internal/circuit"
	"cryptosignals/engine/internal/config"
	"cryptosignals/engine/internal/correlation"
	"cryptosignals/engine/internal/engine"
	"cryptosignals/engine/internal/logging"
	"cryptosignals/engine/internal/position"
	"cryptosignals/engine/internal/store"
)

const (
	fixedMarginUSD     = 10.0
	fixedMaxOpen       = 5
	startingBalanceUSD = 100.0
	defaultLeverage    = 10
)

// Store is the narrow persistence slice the Paper Trader needs,
// satisfied by *store.Repository.
type Store interface {
	InitPaperPortfolio(ctx context.Context, botVersion string, startingBalanceUSD float64) error
	GetPaperPortfolio(ctx context.Context, botVersion string) (*store.PaperPortfolio, error)
	ReservePaperMargin(ctx context.Context, botVersion string, amountUSD float64) error
	UpdatePaperBalance(ctx context.Context, botVersion string, pnlDelta, releaseMarginUSD float64, won bool) error
}

// PositionRegistrar is the slice of *position.Monitor the trader drives:
// admit by registering, subscribe to closes, and read the open set for
// the dedupe/cap/anti-correlation checks.
type PositionRegistrar interface {
	RegisterTrade(ctx context.Context, row store.ActivePosition, params position.Params) (*position.Position, error)
	OnClose(fn position.OnCloseFunc)
	OpenPositions() []*position.Position
}

// Trader is one bot's Paper Trader.
type Trader struct {
	bot   engine.BotVersion
	cfg   *config.BotConfig
	store Store
	pm    PositionRegistrar
	log   *logging.Logger

	breaker *circuit.CircuitBreaker // V4 only; nil otherwise
	guard   *correlation.Guard      // V4 only; nil otherwise

	// openMargin tracks the actual dollar margin reserved per position id
	// (not the leveraged position size), released on close.
	openMargin map[int64]float64
}

// New builds a Trader and registers its close callback with pm. breaker
// and guard are V4-only collaborators; pass nil for V1-V3.
func New(bot engine.BotVersion, cfg *config.BotConfig, st Store, pm PositionRegistrar, breaker *circuit.CircuitBreaker, guard *correlation.Guard, log *logging.Logger) *Trader {
	t := &Trader{
		bot:        bot,
		cfg:        cfg,
		store:      st,
		pm:         pm,
		breaker:    breaker,
		guard:      guard,
		log:        log,
		openMargin: make(map[int64]float64),
	}
	pm.OnClose(t.onPositionClosed)
	return t
}

// Start initialises the paper portfolio row if absent.
func (t *Trader) Start(ctx context.Context) error {
	if err := t.store.InitPaperPortfolio(ctx, string(t.bot), startingBalanceUSD); err != nil {
		return fmt.Errorf("papertrader: init portfolio: %w", err)
	}
	p, err := t.store.GetPaperPortfolio(ctx, string(t.bot))
	if err != nil {
		return fmt.Errorf("papertrader: load portfolio: %w", err)
	}
	if t.log != nil {
		t.log.Info("papertrader started", "bot_version", t.bot, "balance", p.BalanceUSD,
			"trades", p.TotalTrades, "pnl", p.TotalPnL)
	}
	return nil
}

// AutoExecute runs the nine-step admission pipeline for one candidate
// signal. signalID is the already-persisted `signals` row id
// the caller obtained from store.CreateSignal, carried through onto the
// opened position and, eventually, the trade journal. Returns true if
// the trade was admitted.
func (t *Trader) AutoExecute(ctx context.Context, sig engine.Signal, signalID int64) (bool, error) {
	if sig.Type != engine.SignalTypeSignal || sig.Direction == engine.DirectionNone {
		return false, nil
	}
	isV4 := t.bot == engine.BotV4

	// Step 1: circuit breaker (V4).
	if isV4 && t.breaker != nil {
		if ok, reason := t.breaker.CanTrade(); !ok {
			t.logf("circuit breaker rejected", sig.Symbol, reason)
			return false, nil
		}
	}

	portfolio, err := t.store.GetPaperPortfolio(ctx, string(t.bot))
	if err != nil {
		return false, fmt.Errorf("papertrader: load portfolio: %w", err)
	}
	open := t.pm.OpenPositions()

	// Step 2: max open positions cap.
	maxOpen := fixedMaxOpen
	if isV4 && t.cfg.Sizing != nil {
		maxOpen = dynamicMaxOpen(portfolio.BalanceUSD, *t.cfg.Sizing)
	}
	if len(open) >= maxOpen {
		t.logf("max open positions reached", sig.Symbol, fmt.Sprintf("%d/%d", len(open), maxOpen))
		return false, nil
	}

	// Step 3: same symbol+direction dedupe.
	for _, p := range open {
		snap := p.Snapshot()
		if snap.Symbol == sig.Symbol && snap.Direction == string(sig.Direction) {
			t.logf("duplicate symbol+direction", sig.Symbol, string(sig.Direction))
			return false, nil
		}
	}

	// Step 4: V4 anti-correlation.
	if isV4 {
		sameDirection := 0
		guardPositions := make([]correlation.OpenPosition, 0, len(open))
		for _, p := range open {
			snap := p.Snapshot()
			if snap.Direction == string(sig.Direction) {
				sameDirection++
			}
			guardPositions = append(guardPositions, correlation.OpenPosition{Symbol: snap.Symbol, Direction: snap.Direction})
		}
		if sameDirection >= 3 {
			t.logf("anti-correlation: same-direction cap reached", sig.Symbol, string(sig.Direction))
			return false, nil
		}
		if t.guard != nil {
			if ok, reason := t.guard.Check(guardPositions, sig.Symbol, string(sig.Direction)); !ok {
				t.logf("correlation guard rejected", sig.Symbol, reason)
				return false, nil
			}
		}
	}

	// Step 5: V4 fee gate — the trade cannot be profitable net of fees if
	// TP1 distance is smaller than the round-trip taker fee.
	if isV4 && t.cfg.Fees != nil && sig.EntryPrice > 0 && sig.TP1 != 0 {
		tp1DistPct := math.Abs(sig.TP1-sig.EntryPrice) / sig.EntryPrice * 100
		feesRoundTripPct := t.cfg.Fees.TakerPct * 2
		if tp1DistPct < feesRoundTripPct {
			t.logf("fee gate rejected", sig.Symbol, fmt.Sprintf("tp1=%.4f%% < fees=%.4f%%", tp1DistPct, feesRoundTripPct))
			return false, nil
		}
	}

	available := portfolio.BalanceUSD - portfolio.ReservedMarginUSD

	// Step 6: sizing.
	margin := fixedMarginUSD
	if isV4 && t.cfg.Sizing != nil {
		margin = dynamicMargin(portfolio.BalanceUSD, sig.Score, *t.cfg.Sizing)
	}

	// Step 7: V4 slippage — half the spread against the direction, capped
	// at 0.5%.
	entryPrice := sig.EntryPrice
	if isV4 && sig.V4 != nil {
		entryPrice = applySlippage(entryPrice, sig.Direction, sig.V4.IndicatorSnapshot["spread_pct"])
	}

	// Step 8: margin availability.
	if margin > available {
		t.logf("insufficient paper balance", sig.Symbol, fmt.Sprintf("available=%.2f required=%.2f", available, margin))
		return false, nil
	}

	leverage := sig.Leverage
	if leverage <= 0 {
		leverage = defaultLeverage
	}
	positionSizeUSD := margin * float64(leverage)
	quantity := positionSizeUSD / entryPrice
	if quantity <= 0 {
		return false, nil
	}

	row := store.ActivePosition{
		BotVersion:       string(t.bot),
		Symbol:           sig.Symbol,
		Direction:        string(sig.Direction),
		EntryPrice:       entryPrice,
		OriginalQuantity: quantity,
		Quantity:         quantity,
		MarginUSD:        positionSizeUSD,
		StopLoss:         sig.StopLoss,
		TP1:              sig.TP1,
		TP2:              sig.TP2,
		TP3:              sig.TP3,
		TP1ClosePct:      sig.TP1ClosePct,
		TP2ClosePct:      sig.TP2ClosePct,
		TP3ClosePct:      sig.TP3ClosePct,
		SetupType:        sig.SetupType,
		Mode:             string(sig.Mode),
		SignalID:         signalID,
		HourUTC:          sig.HourUTC,
		ScoreRange:       engine.ScoreRangeBucket(sig.Score),
	}
	if sig.V4 != nil {
		row.EntryATR = sig.V4.EntryATR
		row.Regime = sig.V4.Regime
		row.MTFConfluenceBucket = engine.ConfluenceBucket(sig.V4.MTFConfluence)
	}

	// Step 9: hand to the Position Monitor; on success, atomically reserve
	// the margin and remember position_id -> margin.
	pos, err := t.pm.RegisterTrade(ctx, row, t.monitorParams(sig.Mode))
	if err != nil {
		return false, fmt.Errorf("papertrader: register trade: %w", err)
	}
	if err := t.store.ReservePaperMargin(ctx, string(t.bot), margin); err != nil {
		return false, fmt.Errorf("papertrader: reserve margin: %w", err)
	}
	t.openMargin[pos.ID()] = margin

	if t.log != nil {
		t.log.Info("paper trade opened", "bot_version", t.bot, "symbol", sig.Symbol,
			"direction", sig.Direction, "quantity", quantity, "margin", margin, "position_size_usd", positionSizeUSD)
	}
	return true, nil
}

// onPositionClosed releases the reserved margin and updates the
// portfolio counters.
func (t *Trader) onPositionClosed(positionID int64, pnlUSD float64) {
	margin, ok := t.openMargin[positionID]
	if !ok {
		return
	}
	delete(t.openMargin, positionID)

	won := pnlUSD > 0
	ctx := context.Background()
	if err := t.store.UpdatePaperBalance(ctx, string(t.bot), pnlUSD, margin, won); err != nil && t.log != nil {
		t.log.Error("papertrader: balance update failed", "position_id", positionID, "error", err)
	}

	if t.bot == engine.BotV4 && t.breaker != nil && margin > 0 {
		t.breaker.RecordTrade(pnlUSD / margin * 100)
	}

	if t.log != nil {
		portfolio, err := t.store.GetPaperPortfolio(ctx, string(t.bot))
		if err == nil {
			t.log.Info("paper trade closed", "bot_version", t.bot, "pnl_usd", pnlUSD,
				"balance", portfolio.BalanceUSD, "wins", portfolio.Wins, "losses", portfolio.Losses)
		}
	}
}

// monitorParams snapshots the mode's config into the Position Monitor's
// per-trade Params.
func (t *Trader) monitorParams(mode engine.Mode) position.Params {
	mc := t.cfg.Modes[string(mode)]
	p := position.Params{
		BotVersion:         t.bot,
		BreakevenAtPct:     mc.EarlyProtection.BreakevenAtPct,
		TrailActivationPct: mc.EarlyProtection.TrailActivationPct,
		TrailBehindPct:     mc.EarlyProtection.TrailBehindPct,
		MaxHoldSeconds:     mc.MaxHoldSeconds,
		MinProfitUSD:       mc.MinProfitUSD,
		MaxLossUSD:         mc.MaxLossUSD,
		StaleLossFloorUSD:  0.05,
	}
	if t.bot == engine.BotV4 {
		p.StaleLossFloorUSD = 0
		if t.cfg.Fees != nil {
			p.TakerFeePct = t.cfg.Fees.TakerPct
		}
		if t.cfg.ProfitProtection != nil {
			p.ActivationFeeMult = t.cfg.ProfitProtection.ActivationFeeMult
			p.GivebackPct = t.cfg.ProfitProtection.GivebackPct
		}
		if t.cfg.TrailingTP != nil {
			p.TrailingTPEnabled = t.cfg.TrailingTP.Enabled
			p.TP3ClosePct = t.cfg.TrailingTP.TP3ClosePct
			p.TrailATR = t.cfg.TrailingTP.TrailATR
		}
	}
	if t.bot == engine.BotV3 {
		p.DynamicSLWideningEnabled = true
	}
	return p
}

func (t *Trader) logf(msg, symbol, detail string) {
	if t.log != nil {
		t.log.Debug(msg, "bot_version", t.bot, "symbol", symbol, "detail", detail)
	}
}

// dynamicMaxOpen caps V4's concurrent open positions at
// max(2, min(6, floor(balance*0.50/avg_margin))).
func dynamicMaxOpen(balance float64, sizing config.SizingConfig) int {
	basePct := sizing.BasePct / 100
	avgMargin := balance * basePct
	if avgMargin < sizing.MinMargin {
		avgMargin = sizing.MinMargin
	}
	if avgMargin <= 0 {
		return 2
	}
	maxPos := int(balance * 0.50 / avgMargin)
	if maxPos > 6 {
		maxPos = 6
	}
	if maxPos < 2 {
		maxPos = 2
	}
	return maxPos
}

// dynamicMargin computes V4's dynamic position margin:
// margin = clamp(balance*base_pct*score_multiplier, min_margin, max_margin),
// score_multiplier = clamp(0.6 + (score-50)*(0.9/35), 0.6, 1.5).
func dynamicMargin(balance, score float64, sizing config.SizingConfig) float64 {
	scoreMult := 0.6 + (score-50)*(0.9/35)
	if scoreMult < 0.6 {
		scoreMult = 0.6
	}
	if scoreMult > 1.5 {
		scoreMult = 1.5
	}
	margin := balance * (sizing.BasePct / 100) * scoreMult
	if margin < sizing.MinMargin {
		margin = sizing.MinMargin
	}
	if margin > sizing.MaxMargin {
		margin = sizing.MaxMargin
	}
	return margin
}

// applySlippage worsens the fill by half the spread against the
// direction, ignoring absurd/missing spread readings and capping the
// adjustment at 0.5%.
func applySlippage(entryPrice float64, dir engine.Direction, spreadPct float64) float64 {
	if spreadPct <= 0 || spreadPct > 0.5 {
		return entryPrice
	}
	halfSpread := entryPrice * (spreadPct / 100) / 2
	if dir == engine.DirectionLong {
		return entryPrice + halfSpread
	}
	return entryPrice - halfSpread
}
