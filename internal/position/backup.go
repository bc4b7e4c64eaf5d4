package position

import (
	"context"
	"time"

	"cryptosignals/engine/internal/store"
)

// backupInterval is the backup_check loop period, re-syncing
// in-memory state to persistence.
const backupInterval = 30 * time.Second

// RunBackupLoop runs until ctx is cancelled, writing a position_snapshot
// row for every open position on each tick and persisting
// any in-memory fields (peak profit, drawdown, stop loss) that a failed
// prior persistPatch call left stale in the database.
func (m *Monitor) RunBackupLoop(ctx context.Context) {
	ticker := time.NewTicker(backupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.backupTick(ctx)
		}
	}
}

func (m *Monitor) backupTick(ctx context.Context) {
	for _, p := range m.OpenPositions() {
		p.mu.Lock()
		row := p.row
		lastPrice := p.lastPrice
		p.mu.Unlock()

		if row.State == store.PositionClosed {
			continue
		}

		unrealized := 0.0
		if lastPrice > 0 {
			unrealized = unrealizedPnLUSD(&row, lastPrice)
		}
		snap := &store.PositionSnapshot{
			PositionID:    row.ID,
			BotVersion:    row.BotVersion,
			Symbol:        row.Symbol,
			State:         row.State,
			UnrealizedPnL: unrealized,
			CurrentPrice:  lastPrice,
		}
		if err := m.store.WriteSnapshot(ctx, snap); err != nil && m.log != nil {
			m.log.Error("position: snapshot write failed", "position_id", row.ID, "error", err)
		}

		stop := row.StopLoss
		peak := row.PeakProfitUSD
		drawdown := row.MaxDrawdownUSD
		m.persistPatch(ctx, p, store.PositionPatch{
			StopLoss:       &stop,
			PeakProfitUSD:  &peak,
			MaxDrawdownUSD: &drawdown,
		})
	}
}
