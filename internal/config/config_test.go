package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleV4YAML = `
pairs:
  - symbol: BTCUSDT
    enabled: true
scanner:
  interval_seconds: 30
  modes: ["scalp", "swing"]
direction:
  ema_fast: 20
  ema_slow: 50
  ema_neutral_threshold: 0.001
  rsi_long_threshold: 55
  rsi_short_threshold: 45
  structure_lookback: 50
entry:
  setups: ["breakout", "retest"]
  min_score: 60
  bb_squeeze_threshold: 0.02
  volume_spike_ratio: 1.5
  retest_buffer_pct: 0.002
  rejection_wick_ratio: 1.5
  ema_bounce_proximity_pct: 0.003
modes:
  scalp:
    timeframes:
      analysis: ["1m", "5m"]
      filter: "15m"
    stop_loss:
      method: atr
      atr_multiplier: 1.5
      buffer_atr: 0.2
      max_stop_pct: 0.02
    take_profit:
      tp1_rr: 1.0
      tp2_rr: 2.0
      tp3_rr: 3.0
      tp1_close_pct: 0.5
      tp2_close_pct: 0.3
      tp3_close_pct: 0.2
    risk:
      leverage_range: [5, 10]
    entry:
      setups: ["breakout"]
      min_score: 60
    early_protection:
      breakeven_at_pct: 0.5
      trail_activation_pct: 0.7
      trail_behind_pct: 0.3
    max_hold_seconds: 3600
    min_profit_usd: 1.0
    max_loss_usd: 5.0
tradeability:
  thresholds:
    atr_min_ratio: 0.8
    atr_max_ratio: 2.0
    volume_min_ratio: 0.5
    spread_kill: 0.5
    spread_max_scalp: 0.1
    spread_max_swing: 0.2
    funding_kill: 0.5
    funding_max: 0.1
    oi_drop_max_pct: 5
  weights:
    volatility: 0.2
    volume: 0.2
    spread: 0.2
    funding: 0.2
    oi: 0.2
  min_score: 0.6
scoring:
  weights:
    tradeability: 0.35
    direction: 0.3
    setup: 0.3
    sentiment: 0.05
swing_neutral_allowed: false
fees:
  taker_pct: 0.0004
sizing:
  base_pct: 0.02
  min_margin: 5
  max_margin: 500
  max_valid_spread_pct: 0.5
risk_limits:
  max_daily_loss_usd: 100
  max_consecutive_losses: 5
  pause_minutes: 60
profit_protection:
  activation_fee_mult: 3
  giveback_pct: 0.3
trailing_tp:
  enabled: true
  tp3_close_pct: 0.2
  trail_atr: 1.0
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "v4.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoad_ValidV4Config(t *testing.T) {
	path := writeTempConfig(t, sampleV4YAML)
	cfg, err := Load("V4", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sizing == nil || cfg.Sizing.MaxValidSpreadPct != 0.5 {
		t.Fatalf("expected sizing.max_valid_spread_pct to load, got %+v", cfg.Sizing)
	}
	if len(cfg.Modes["scalp"].Timeframes.Analysis) != 2 {
		t.Fatalf("expected scalp mode to have 2 analysis timeframes")
	}
}

func TestLoad_RejectsUnbalancedScoringWeights(t *testing.T) {
	bad := sampleV4YAML
	bad = replaceOnce(bad, "sentiment: 0.05", "sentiment: 0.5")
	path := writeTempConfig(t, bad)
	if _, err := Load("V4", path); err == nil {
		t.Fatalf("expected error for scoring weights not summing to 1")
	}
}

func replaceOnce(s, old, new string) string {
	idx := indexOf(s, old)
	if idx < 0 {
		return s
	}
	return s[:idx] + new + s[idx+len(old):]
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
