package store

import (
	"context"
	"fmt"
)

// Repository provides the data-access methods for the persistence
// contract, using plain SQL via pgx with no ORM.
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ---- signals ----

func (r *Repository) CreateSignal(ctx context.Context, s *Signal) error {
	query := `
		INSERT INTO signals (bot_version, symbol, mode, direction, status, setup_type,
			entry_price, stop_loss, tp1, tp2, tp3, final_score, tradeability_score,
			direction_score, setup_score, sentiment_score, reason, hour_utc, mtf_confluence)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING id, created_at, updated_at
	`
	return r.db.Pool.QueryRow(ctx, query,
		s.BotVersion, s.Symbol, s.Mode, s.Direction, s.Status, s.SetupType,
		s.EntryPrice, s.StopLoss, s.TP1, s.TP2, s.TP3, s.FinalScore, s.TradeabilityScore,
		s.DirectionScore, s.SetupScore, s.SentimentScore, s.Reason, s.HourUTC, s.MTFConfluence,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// UpdateSignalStatus transitions a signal's status through the
// {active -> executed|skipped|error|test} machine.
func (r *Repository) UpdateSignalStatus(ctx context.Context, id int64, status SignalStatus) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE signals SET status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	return err
}

// HasRecentSignal implements the anti-flip-flop check: true if an active/executed
// signal for (bot_version, symbol, direction) was created within
// `windowSeconds`.
func (r *Repository) HasRecentSignal(ctx context.Context, botVersion, symbol, direction string, windowSeconds int) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM signals
			WHERE bot_version = $1 AND symbol = $2 AND direction = $3
			  AND status IN ('active', 'executed')
			  AND created_at > now() - ($4 || ' seconds')::interval
		)
	`, botVersion, symbol, direction, windowSeconds).Scan(&exists)
	return exists, err
}

// ---- trades_journal ----

func (r *Repository) AppendTradeJournal(ctx context.Context, t *TradeJournalEntry) error {
	query := `
		INSERT INTO trades_journal (bot_version, signal_id, symbol, direction, entry_price,
			exit_price, quantity, pnl, pnl_pct, fee_paid, exit_reason, notes,
			duration_seconds, opened_at, closed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id
	`
	return r.db.Pool.QueryRow(ctx, query,
		t.BotVersion, t.SignalID, t.Symbol, t.Direction, t.EntryPrice,
		t.ExitPrice, t.Quantity, t.PnL, t.PnLPct, t.FeePaid, t.ExitReason, t.Notes,
		t.DurationSeconds, t.OpenedAt, t.ClosedAt,
	).Scan(&t.ID)
}

// ---- active_positions ----

func (r *Repository) CreatePosition(ctx context.Context, p *ActivePosition) error {
	query := `
		INSERT INTO active_positions (bot_version, symbol, direction, state, entry_price,
			original_quantity, quantity, margin_usd, entry_atr, stop_loss, tp1, tp2, tp3,
			tp1_close_pct, tp2_close_pct, tp3_close_pct, setup_type, mode, signal_id,
			regime, score_range, hour_utc, mtf_confluence_bucket)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		RETURNING id, opened_at, updated_at
	`
	return r.db.Pool.QueryRow(ctx, query,
		p.BotVersion, p.Symbol, p.Direction, p.State, p.EntryPrice,
		p.OriginalQuantity, p.Quantity, p.MarginUSD, p.EntryATR, p.StopLoss, p.TP1, p.TP2, p.TP3,
		p.TP1ClosePct, p.TP2ClosePct, p.TP3ClosePct, p.SetupType, p.Mode, p.SignalID,
		p.Regime, p.ScoreRange, p.HourUTC, p.MTFConfluenceBucket,
	).Scan(&p.ID, &p.OpenedAt, &p.UpdatedAt)
}

// UpdatePosition applies a partial patch to an active position row.
func (r *Repository) UpdatePosition(ctx context.Context, id int64, patch PositionPatch) error {
	set := "updated_at = now()"
	args := []any{id}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.State != nil {
		set += ", state = " + arg(*patch.State)
	}
	if patch.Quantity != nil {
		set += ", quantity = " + arg(*patch.Quantity)
	}
	if patch.StopLoss != nil {
		set += ", stop_loss = " + arg(*patch.StopLoss)
	}
	if patch.TP1Hit != nil {
		set += ", tp1_hit = " + arg(*patch.TP1Hit)
	}
	if patch.TP2Hit != nil {
		set += ", tp2_hit = " + arg(*patch.TP2Hit)
	}
	if patch.TP3Hit != nil {
		set += ", tp3_hit = " + arg(*patch.TP3Hit)
	}
	if patch.BreakevenApplied != nil {
		set += ", breakeven_applied = " + arg(*patch.BreakevenApplied)
	}
	if patch.TrailingActive != nil {
		set += ", trailing_active = " + arg(*patch.TrailingActive)
	}
	if patch.PeakProfitUSD != nil {
		set += ", peak_profit_usd = " + arg(*patch.PeakProfitUSD)
	}
	if patch.MaxDrawdownUSD != nil {
		set += ", max_drawdown_usd = " + arg(*patch.MaxDrawdownUSD)
	}

	query := fmt.Sprintf(`UPDATE active_positions SET %s WHERE id = $1`, set)
	_, err := r.db.Pool.Exec(ctx, query, args...)
	return err
}

// ClosePosition sets state='closed' and applies any final patch fields.
func (r *Repository) ClosePosition(ctx context.Context, id int64, patch PositionPatch) error {
	closed := PositionClosed
	patch.State = &closed
	if err := r.UpdatePosition(ctx, id, patch); err != nil {
		return err
	}
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE active_positions SET closed_at = now() WHERE id = $1`, id,
	)
	return err
}

func (r *Repository) GetOpenPositions(ctx context.Context, botVersion string) ([]*ActivePosition, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, bot_version, symbol, direction, state, entry_price, original_quantity, quantity,
		       margin_usd, entry_atr, stop_loss, tp1, tp2, tp3, tp1_close_pct, tp2_close_pct, tp3_close_pct,
		       tp1_hit, tp2_hit, tp3_hit, breakeven_applied, trailing_active, peak_profit_usd,
		       max_drawdown_usd, setup_type, mode, signal_id, regime, score_range, hour_utc,
		       mtf_confluence_bucket, opened_at, closed_at, updated_at
		FROM active_positions
		WHERE bot_version = $1 AND state != 'closed'
	`, botVersion)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ActivePosition
	for rows.Next() {
		p := &ActivePosition{}
		if err := rows.Scan(
			&p.ID, &p.BotVersion, &p.Symbol, &p.Direction, &p.State, &p.EntryPrice, &p.OriginalQuantity, &p.Quantity,
			&p.MarginUSD, &p.EntryATR, &p.StopLoss, &p.TP1, &p.TP2, &p.TP3, &p.TP1ClosePct, &p.TP2ClosePct, &p.TP3ClosePct,
			&p.TP1Hit, &p.TP2Hit, &p.TP3Hit, &p.BreakevenApplied, &p.TrailingActive, &p.PeakProfitUSD,
			&p.MaxDrawdownUSD, &p.SetupType, &p.Mode, &p.SignalID, &p.Regime, &p.ScoreRange, &p.HourUTC,
			&p.MTFConfluenceBucket, &p.OpenedAt, &p.ClosedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// HasOpenPosition implements the Scanner's "a non-closed position on that
// symbol already exists" rejection, regardless of
// direction.
func (r *Repository) HasOpenPosition(ctx context.Context, botVersion, symbol string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM active_positions
			WHERE bot_version = $1 AND symbol = $2 AND state != 'closed'
		)
	`, botVersion, symbol).Scan(&exists)
	return exists, err
}

// HasOpenPositionSameDirection checks for the policy violation of
// attempting a second position on the same symbol+direction.
func (r *Repository) HasOpenPositionSameDirection(ctx context.Context, botVersion, symbol, direction string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM active_positions
			WHERE bot_version = $1 AND symbol = $2 AND direction = $3 AND state != 'closed'
		)
	`, botVersion, symbol, direction).Scan(&exists)
	return exists, err
}

// ---- paper_portfolio ----

// InitPaperPortfolio creates the bot's paper_portfolio row with the given
// starting balance if it does not already exist. A pre-existing row is left untouched
// so restarts do not reset an in-progress paper balance.
func (r *Repository) InitPaperPortfolio(ctx context.Context, botVersion string, startingBalanceUSD float64) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO paper_portfolio (bot_version, balance_usd, reserved_margin_usd)
		VALUES ($1, $2, 0)
		ON CONFLICT (bot_version) DO NOTHING
	`, botVersion, startingBalanceUSD)
	return err
}

func (r *Repository) GetPaperPortfolio(ctx context.Context, botVersion string) (*PaperPortfolio, error) {
	p := &PaperPortfolio{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT bot_version, balance_usd, reserved_margin_usd, total_trades, wins, losses,
		       total_pnl, best_trade_usd, worst_trade_usd, updated_at
		FROM paper_portfolio WHERE bot_version = $1
	`, botVersion).Scan(&p.BotVersion, &p.BalanceUSD, &p.ReservedMarginUSD, &p.TotalTrades, &p.Wins,
		&p.Losses, &p.TotalPnL, &p.BestTradeUSD, &p.WorstTradeUSD, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ReservePaperMargin atomically reserves margin for a new paper position.
// Fails (returns an error) if the reservation would exceed the available
// balance.
func (r *Repository) ReservePaperMargin(ctx context.Context, botVersion string, amountUSD float64) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE paper_portfolio
		SET reserved_margin_usd = reserved_margin_usd + $2, updated_at = now()
		WHERE bot_version = $1 AND (balance_usd - reserved_margin_usd) >= $2
	`, botVersion, amountUSD)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: insufficient paper balance for %s to reserve %.2f", botVersion, amountUSD)
	}
	return nil
}

// UpdatePaperBalance atomically applies a realised PnL delta, releases the
// given reserved margin, and rolls the win/loss/pnl/best/worst counters.
func (r *Repository) UpdatePaperBalance(ctx context.Context, botVersion string, pnlDelta, releaseMarginUSD float64, won bool) error {
	winInc, lossInc := 0, 0
	if won {
		winInc = 1
	} else {
		lossInc = 1
	}
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE paper_portfolio
		SET balance_usd = balance_usd + $2,
		    reserved_margin_usd = GREATEST(reserved_margin_usd - $3, 0),
		    total_trades = total_trades + 1,
		    wins = wins + $4,
		    losses = losses + $5,
		    total_pnl = total_pnl + $2,
		    best_trade_usd = GREATEST(best_trade_usd, $2),
		    worst_trade_usd = LEAST(worst_trade_usd, $2),
		    updated_at = now()
		WHERE bot_version = $1
	`, botVersion, pnlDelta, releaseMarginUSD, winInc, lossInc)
	return err
}

// ---- setup_performance ----

// UpsertSetupPerformance implements the upsert-by-(setup_type, symbol,
// mode) semantics.
func (r *Repository) UpsertSetupPerformance(ctx context.Context, setupType, symbol, mode string, won bool, pnl float64) error {
	win, loss := 0, 0
	if won {
		win = 1
	} else {
		loss = 1
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO setup_performance (setup_type, symbol, mode, wins, losses, total_pnl)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (setup_type, symbol, mode) DO UPDATE SET
			wins = setup_performance.wins + EXCLUDED.wins,
			losses = setup_performance.losses + EXCLUDED.losses,
			total_pnl = setup_performance.total_pnl + EXCLUDED.total_pnl,
			updated_at = now()
	`, setupType, symbol, mode, win, loss, pnl)
	return err
}

// ---- learning_weights ----

// UpsertLearningWeight implements the upsert-by-(dimension, value,
// bot_version) semantics.
func (r *Repository) UpsertLearningWeight(ctx context.Context, w LearningWeight) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO learning_weights (dimension, value, bot_version, sample_count,
			win_rate_7d, win_rate_30d, win_rate_all, avg_pnl, modifier, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (dimension, value, bot_version) DO UPDATE SET
			sample_count = EXCLUDED.sample_count,
			win_rate_7d = EXCLUDED.win_rate_7d,
			win_rate_30d = EXCLUDED.win_rate_30d,
			win_rate_all = EXCLUDED.win_rate_all,
			avg_pnl = EXCLUDED.avg_pnl,
			modifier = EXCLUDED.modifier,
			confidence = EXCLUDED.confidence,
			updated_at = now()
	`, w.Dimension, w.Value, w.BotVersion, w.SampleCount,
		w.WinRate7d, w.WinRate30d, w.WinRateAll, w.AvgPnL, w.Modifier, w.Confidence)
	return err
}

func (r *Repository) GetLearningWeights(ctx context.Context, botVersion string) ([]LearningWeight, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT dimension, value, bot_version, sample_count,
		       win_rate_7d, win_rate_30d, win_rate_all, avg_pnl, modifier, confidence, updated_at
		FROM learning_weights WHERE bot_version = $1
	`, botVersion)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LearningWeight
	for rows.Next() {
		var w LearningWeight
		if err := rows.Scan(&w.Dimension, &w.Value, &w.BotVersion, &w.SampleCount,
			&w.WinRate7d, &w.WinRate30d, &w.WinRateAll, &w.AvgPnL, &w.Modifier, &w.Confidence, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ---- trade_context ----

func (r *Repository) AppendTradeContext(ctx context.Context, tc *TradeContext) error {
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO trade_context (bot_version, symbol, setup_type, mode, direction,
			score_range, hour_utc, mtf_confluence_bucket, regime, outcome, pnl)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id, created_at
	`, tc.BotVersion, tc.Symbol, tc.SetupType, tc.Mode, tc.Direction,
		tc.ScoreRange, tc.HourUTC, tc.MTFConfluenceBucket, tc.Regime, tc.Outcome, tc.PnL,
	).Scan(&tc.ID, &tc.CreatedAt)
}

// TradeContextSince queries trade context rows over a rolling window of days.
func (r *Repository) TradeContextSince(ctx context.Context, botVersion string, days int) ([]TradeContext, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, bot_version, symbol, setup_type, mode, direction, score_range,
		       hour_utc, mtf_confluence_bucket, regime, outcome, pnl, created_at
		FROM trade_context
		WHERE bot_version = $1 AND created_at > now() - ($2 || ' days')::interval
		ORDER BY created_at DESC
		LIMIT 2000
	`, botVersion, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeContext
	for rows.Next() {
		var tc TradeContext
		if err := rows.Scan(&tc.ID, &tc.BotVersion, &tc.Symbol, &tc.SetupType, &tc.Mode, &tc.Direction,
			&tc.ScoreRange, &tc.HourUTC, &tc.MTFConfluenceBucket, &tc.Regime, &tc.Outcome, &tc.PnL, &tc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// ---- position_snapshots ----

// WriteSnapshot is the Position Monitor's 30s backup-loop write.
func (r *Repository) WriteSnapshot(ctx context.Context, snap *PositionSnapshot) error {
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO position_snapshots (position_id, bot_version, symbol, state,
			unrealized_pnl, current_price)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, snapshot_at
	`, snap.PositionID, snap.BotVersion, snap.Symbol, snap.State,
		snap.UnrealizedPnL, snap.CurrentPrice,
	).Scan(&snap.ID, &snap.SnapshotAt)
}

// ---- tradeability_log ----

// AppendTradeabilityLog records one Scanner cycle's `no_trade` verdict.
func (r *Repository) AppendTradeabilityLog(ctx context.Context, e *TradeabilityLogEntry) error {
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO tradeability_log (bot_version, symbol, mode, score, reason)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at
	`, e.BotVersion, e.Symbol, e.Mode, e.Score, e.Reason,
	).Scan(&e.ID, &e.CreatedAt)
}
