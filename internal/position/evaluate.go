package position

import (
	"context"
	"time"

	"cryptosignals/engine/internal/engine"
	"cryptosignals/engine/internal/learner"
	"cryptosignals/engine/internal/store"
)

// closeReason names why a position was fully closed, recorded on the
// trade journal row.
type closeReason string

const (
	closeTP3           closeReason = "tp3"
	closeSL            closeReason = "sl"
	closeStale         closeReason = "stale_timeout"
	closeProfitGiveback closeReason = "profit_giveback"
	closeMinProfit     closeReason = "min_profit_usd"
	closeMaxLoss       closeReason = "max_loss_usd"
)

// evaluate runs one tick's full evaluation order for a single position
//, serialized by the position's own mutex so a fast-arriving
// second tick cannot re-enter mid-transition.
func (m *Monitor) evaluate(ctx context.Context, p *Position, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.row.State == store.PositionClosed {
		return
	}
	p.lastPrice = price

	pnl := unrealizedPnLUSD(&p.row, price)
	if pnl > p.row.PeakProfitUSD {
		p.row.PeakProfitUSD = pnl
	}
	drawdown := p.row.PeakProfitUSD - pnl
	if drawdown > p.row.MaxDrawdownUSD {
		p.row.MaxDrawdownUSD = drawdown
	}

	// V4 profit-giveback preflight.
	if p.params.GivebackPct > 0 {
		if m.checkProfitGiveback(ctx, p, pnl) {
			return
		}
	}

	// Stale timeout preflight.
	if p.params.MaxHoldSeconds > 0 {
		elapsed := time.Since(p.row.OpenedAt)
		if elapsed.Seconds() >= float64(p.params.MaxHoldSeconds) && pnl < p.params.StaleLossFloorUSD {
			m.closePosition(ctx, p, price, closeStale)
			return
		}
	}

	// V3/V4 mode-level absolute caps: a hard profit floor/loss ceiling
	// independent of the TP ladder, for modes that leave min_profit_usd or
	// max_loss_usd configured above zero.
	if p.params.MinProfitUSD > 0 && pnl >= p.params.MinProfitUSD {
		m.closePosition(ctx, p, price, closeMinProfit)
		return
	}
	if p.params.MaxLossUSD > 0 && pnl <= -p.params.MaxLossUSD {
		m.closePosition(ctx, p, price, closeMaxLoss)
		return
	}

	switch p.row.State {
	case store.PositionActive:
		m.evaluateActive(ctx, p, price, pnl)
	case store.PositionBreakeven, store.PositionTrailing:
		if !p.row.TP1Hit {
			m.evaluateActive(ctx, p, price, pnl)
			return
		}
		m.evaluateAfterTP1(ctx, p, price)
	case store.PositionTrailingTP:
		m.evaluateStopOnly(ctx, p, price)
	}

	if p.params.DynamicSLWideningEnabled {
		m.widenStopLoss(ctx, p)
	}
}

// evaluateActive handles the pre-TP1 "active" state: early-profit
// protection (breakeven/trailing SL migration) then TP1/SL checks.
func (m *Monitor) evaluateActive(ctx context.Context, p *Position, price, pnl float64) {
	// TP/SL are checked against the stop as it stood entering this tick,
	// before any trailing/breakeven adjustment below takes effect — a
	// stop moved up to meet the current price must not self-trigger the
	// same tick it was moved.
	if hitTP(&p.row, price, p.row.TP1) {
		m.onTP1Hit(ctx, p, price)
		return
	}
	if hitSL(&p.row, price) {
		m.closePosition(ctx, p, price, closeSL)
		return
	}

	progress := progressPct(&p.row, price)
	if progress >= p.params.TrailActivationPct {
		m.trailStopLoss(ctx, p, progress)
	} else if progress >= p.params.BreakevenAtPct && !p.row.BreakevenApplied {
		m.migrateToBreakeven(ctx, p)
	}
}

// evaluateAfterTP1 handles breakeven/trailing (TP1 already hit, TP2/TP3
// pending) and, once TP2 hits, transitions into trailing.
func (m *Monitor) evaluateAfterTP1(ctx context.Context, p *Position, price float64) {
	if !p.row.TP2Hit {
		if hitTP(&p.row, price, p.row.TP2) {
			m.onTP2Hit(ctx, p, price)
			return
		}
		if hitSL(&p.row, price) {
			m.closePosition(ctx, p, price, closeSL)
		}
		return
	}

	// After TP2: trailing toward TP3.
	if hitTP(&p.row, price, p.row.TP3) {
		m.onTP3Hit(ctx, p, price)
		return
	}
	if hitSL(&p.row, price) {
		m.closePosition(ctx, p, price, closeSL)
	}
}

// evaluateStopOnly handles the post-trailing-TP downsized remainder:
// only the trailed stop can close it from here.
func (m *Monitor) evaluateStopOnly(ctx context.Context, p *Position, price float64) {
	if hitSL(&p.row, price) {
		m.closePosition(ctx, p, price, closeSL)
	}
}

func hitTP(row *store.ActivePosition, price, tp float64) bool {
	if tp == 0 {
		return false
	}
	if row.Direction == "long" {
		return price >= tp
	}
	return price <= tp
}

func hitSL(row *store.ActivePosition, price float64) bool {
	if row.StopLoss == 0 {
		return false
	}
	if row.Direction == "long" {
		return price <= row.StopLoss
	}
	return price >= row.StopLoss
}

// migrateToBreakeven moves the stop to fee-adjusted breakeven (V4) or
// plain entry (V1-V3) and transitions active → breakeven.
func (m *Monitor) migrateToBreakeven(ctx context.Context, p *Position) {
	newSL := p.row.EntryPrice
	if p.params.TakerFeePct > 0 {
		newSL = feeAdjustedBreakeven(&p.row, p.params.TakerFeePct)
	}
	p.row.StopLoss = newSL
	p.row.BreakevenApplied = true
	p.row.State = store.PositionBreakeven

	state := store.PositionBreakeven
	applied := true
	m.persistPatch(ctx, p, store.PositionPatch{State: &state, StopLoss: &newSL, BreakevenApplied: &applied})
}

// trailStopLoss moves the stop monotonically toward TP1 as price
// progresses past the trail-activation threshold:
// entry + (progress - trail_behind) * tp1_distance.
func (m *Monitor) trailStopLoss(ctx context.Context, p *Position, progress float64) {
	dist := tp1Distance(&p.row)
	trailProgress := progress - p.params.TrailBehindPct
	if trailProgress < 0 {
		trailProgress = 0
	}

	var candidate float64
	if p.row.Direction == "long" {
		candidate = p.row.EntryPrice + trailProgress*dist
		if candidate <= p.row.StopLoss {
			return
		}
	} else {
		candidate = p.row.EntryPrice - trailProgress*dist
		if p.row.StopLoss != 0 && candidate >= p.row.StopLoss {
			return
		}
	}

	p.row.StopLoss = candidate
	p.row.TrailingActive = true

	patch := store.PositionPatch{StopLoss: &candidate, TrailingActive: &boolTrue}
	// Pre-TP1 trailing stays classified as "breakeven"; "trailing" is
	// reserved for post-TP1. Only promote the persisted state once TP1
	// has actually been hit.
	if p.row.TP1Hit {
		p.row.State = store.PositionTrailing
		state := store.PositionTrailing
		patch.State = &state
	} else if !p.row.BreakevenApplied {
		p.row.BreakevenApplied = true
		p.row.State = store.PositionBreakeven
		state := store.PositionBreakeven
		patch.State = &state
		patch.BreakevenApplied = &boolTrue
	}
	m.persistPatch(ctx, p, patch)
}

var boolTrue = true

// onTP1Hit: cancel the original stop, shrink the remaining quantity by
// tp1_close_pct, move the stop to fee-adjusted breakeven/entry, state →
// breakeven.
func (m *Monitor) onTP1Hit(ctx context.Context, p *Position, price float64) {
	remaining := p.row.OriginalQuantity * (1 - p.row.TP1ClosePct/100)
	p.row.Quantity = remaining
	p.row.TP1Hit = true

	newSL := p.row.EntryPrice
	if p.params.TakerFeePct > 0 {
		newSL = feeAdjustedBreakeven(&p.row, p.params.TakerFeePct)
	}
	p.row.StopLoss = newSL
	p.row.State = store.PositionBreakeven

	state := store.PositionBreakeven
	hit := true
	m.persistPatch(ctx, p, store.PositionPatch{
		State: &state, StopLoss: &newSL, TP1Hit: &hit, Quantity: &remaining,
	})
}

// onTP2Hit: cancel the stop, move it to the TP1 price, shrink remaining
// quantity to tp3_close_pct of original, state → trailing.
func (m *Monitor) onTP2Hit(ctx context.Context, p *Position, price float64) {
	remaining := p.row.OriginalQuantity * (p.row.TP3ClosePct / 100)
	p.row.Quantity = remaining
	p.row.TP2Hit = true
	p.row.StopLoss = p.row.TP1
	p.row.State = store.PositionTrailing

	state := store.PositionTrailing
	hit := true
	newSL := p.row.TP1
	m.persistPatch(ctx, p, store.PositionPatch{
		State: &state, StopLoss: &newSL, TP2Hit: &hit, Quantity: &remaining,
	})
}

// onTP3Hit: either close entirely (non-V4) or, when V4 trailing-TP is
// enabled, downsize by tp3_close_pct and trail a new stop at
// tp3_price ± entry_atr*trail_atr.
func (m *Monitor) onTP3Hit(ctx context.Context, p *Position, price float64) {
	if !p.params.TrailingTPEnabled {
		m.closePosition(ctx, p, price, closeTP3)
		return
	}

	remaining := p.row.Quantity * (1 - p.params.TP3ClosePct/100)
	trailOffset := p.entryATR * p.params.TrailATR
	var newSL float64
	if p.row.Direction == "long" {
		newSL = price - trailOffset
	} else {
		newSL = price + trailOffset
	}

	p.row.Quantity = remaining
	p.row.TP3Hit = true
	p.row.StopLoss = newSL
	p.row.State = store.PositionTrailingTP

	state := store.PositionTrailingTP
	hit := true
	m.persistPatch(ctx, p, store.PositionPatch{
		State: &state, StopLoss: &newSL, TP3Hit: &hit, Quantity: &remaining,
	})
}

// widenStopLoss implements the V3-only dynamic SL widening:
// if current_atr/entry_atr > 1.5, widen to the worse of the current stop
// and entry ∓ original_distance * min(ratio, 2.0). The ratio is
// p.entryATR over row.EntryATR; both are set from the same value at
// registration and nothing in the monitor fetches a live ATR or updates
// p.entryATR, so the ratio stays 1 and no widening takes place.
func (m *Monitor) widenStopLoss(ctx context.Context, p *Position) {
	if p.entryATR == 0 || p.row.EntryATR == 0 {
		return
	}
	ratio := p.entryATR / p.row.EntryATR
	if ratio <= 1.5 {
		return
	}
	if ratio > 2.0 {
		ratio = 2.0
	}

	originalDist := p.row.EntryATR
	var widened float64
	if p.row.Direction == "long" {
		widened = p.row.EntryPrice - originalDist*ratio
		if widened >= p.row.StopLoss {
			return
		}
	} else {
		widened = p.row.EntryPrice + originalDist*ratio
		if widened <= p.row.StopLoss {
			return
		}
	}

	p.row.StopLoss = widened
	m.persistPatch(ctx, p, store.PositionPatch{StopLoss: &widened})
}

// checkProfitGiveback implements the V4-only Profit-Giveback rail:
// activates once max_profit_usd crosses activation_fee_mult *
// round_trip_fees, then closes once the retracement from peak consumes
// giveback_pct of the peak while remaining net-of-fees profitable.
func (m *Monitor) checkProfitGiveback(ctx context.Context, p *Position, pnl float64) bool {
	fees := roundTripFeesUSD(&p.row, p.params.TakerFeePct)
	if !p.giveback {
		if p.row.PeakProfitUSD >= p.params.ActivationFeeMult*fees {
			p.giveback = true
		} else {
			return false
		}
	}
	if p.row.PeakProfitUSD <= 0 {
		return false
	}
	retracement := (p.row.PeakProfitUSD - pnl) / p.row.PeakProfitUSD
	if retracement >= p.params.GivebackPct && pnl-fees > 0 {
		// closePosition expects a price; derive it back from pnl since the
		// caller only has the unrealized USD figure at this point.
		price := priceFromPnL(&p.row, pnl)
		m.closePosition(ctx, p, price, closeProfitGiveback)
		return true
	}
	return false
}

func priceFromPnL(row *store.ActivePosition, pnl float64) float64 {
	if row.Quantity == 0 {
		return row.EntryPrice
	}
	delta := pnl / row.Quantity
	if row.Direction == "long" {
		return row.EntryPrice + delta
	}
	return row.EntryPrice - delta
}

// closePosition runs the seven-step close-and-journal path:
// deduct fees (V4), compute pnl_pct/result, persist the closed row,
// insert the trade journal entry, upsert setup_performance, notify the
// Adaptive Learner (V4), and invoke on_close callbacks.
func (m *Monitor) closePosition(ctx context.Context, p *Position, price float64, reason closeReason) {
	pnlUSD := unrealizedPnLUSD(&p.row, price)
	if p.params.TakerFeePct > 0 {
		pnlUSD -= roundTripFeesUSD(&p.row, p.params.TakerFeePct)
	}

	pnlPct := 0.0
	if p.row.MarginUSD > 0 {
		pnlPct = pnlUSD / p.row.MarginUSD * 100
	}
	won := pnlUSD > 0

	now := time.Now()
	p.row.ClosedAt = &now
	p.row.State = store.PositionClosed

	if err := m.store.ClosePosition(ctx, p.row.ID, store.PositionPatch{}); err != nil && m.log != nil {
		m.log.Error("position: close persist failed", "position_id", p.row.ID, "error", err)
	}

	duration := int(now.Sub(p.row.OpenedAt).Seconds())
	journal := &store.TradeJournalEntry{
		BotVersion:      p.row.BotVersion,
		SignalID:        p.row.SignalID,
		Symbol:          p.row.Symbol,
		Direction:       p.row.Direction,
		EntryPrice:      p.row.EntryPrice,
		ExitPrice:       price,
		Quantity:        p.row.OriginalQuantity,
		PnL:             pnlUSD,
		PnLPct:          pnlPct,
		FeePaid:         roundTripFeesUSD(&p.row, p.params.TakerFeePct),
		ExitReason:      string(reason),
		DurationSeconds: duration,
		OpenedAt:        p.row.OpenedAt,
		ClosedAt:        &now,
	}
	if err := m.store.AppendTradeJournal(ctx, journal); err != nil && m.log != nil {
		m.log.Error("position: journal append failed", "position_id", p.row.ID, "error", err)
	}

	if err := m.store.UpsertSetupPerformance(ctx, p.row.SetupType, p.row.Symbol, p.row.Mode, won, pnlUSD); err != nil && m.log != nil {
		m.log.Error("position: setup_performance upsert failed", "position_id", p.row.ID, "error", err)
	}

	if m.learn != nil && p.params.BotVersion == engine.BotV4 {
		out := learner.TradeOutcome{
			SetupType:     p.row.SetupType,
			Symbol:        p.row.Symbol,
			Mode:          engine.Mode(p.row.Mode),
			Regime:        p.row.Regime,
			HourUTC:       p.row.HourUTC,
			ScoreRange:    p.row.ScoreRange,
			Direction:     engine.Direction(p.row.Direction),
			MTFConfluence: p.row.MTFConfluenceBucket,
			PnL:           pnlUSD,
		}
		if err := m.learn.RecordClose(ctx, m.bot, out); err != nil && m.log != nil {
			m.log.Error("position: learner record_close failed", "position_id", p.row.ID, "error", err)
		}
	}

	m.mu.Lock()
	delete(m.positions, p.row.ID)
	m.mu.Unlock()
	m.releaseSubscription(p.row.Symbol)

	m.closeMu.Lock()
	callbacks := append([]OnCloseFunc(nil), m.onClose...)
	m.closeMu.Unlock()
	for _, fn := range callbacks {
		fn(p.row.ID, pnlUSD)
	}
}

// persistPatch writes a transition's patch to the store, logging (not
// panicking) on failure since the in-memory state has already advanced
// and a 30s backup_check loop will reconcile on the next pass.
func (m *Monitor) persistPatch(ctx context.Context, p *Position, patch store.PositionPatch) {
	if err := m.store.UpdatePosition(ctx, p.row.ID, patch); err != nil && m.log != nil {
		m.log.Error("position: patch persist failed", "position_id", p.row.ID, "error", err)
	}
}
