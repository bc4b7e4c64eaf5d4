package engine

import (
	"context"
	"testing"
	"time"

	"cryptosignals/engine/internal/engine/direction"
	"cryptosignals/engine/internal/engine/entry"
	"cryptosignals/engine/internal/engine/risk"
	"cryptosignals/engine/internal/engine/tradeability"
	"cryptosignals/engine/internal/indicator"
	"cryptosignals/engine/internal/logging"
)

func newTestLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "ERROR", Output: "stderr"})
}

func makeUptrendCandles(n int, start float64) []indicator.Candle {
	candles := make([]indicator.Candle, 0, n)
	price := start
	baseMillis := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	for i := 0; i < n; i++ {
		open := price
		price += start * 0.004
		high := price + start*0.001
		low := open - start*0.001
		candles = append(candles, indicator.Candle{
			OpenTime: baseMillis + int64(i)*3600_000,
			Open:     open,
			High:     high,
			Low:      low,
			Close:    price,
			Volume:   1000 + float64(i),
		})
	}
	return candles
}

func basicLayerConfig() LayerConfig {
	return LayerConfig{
		Tradeability: tradeability.Thresholds{
			ATRMinRatio: 0.1, ATRMaxRatio: 5.0, VolumeMinRatio: 0.1,
			SpreadKill: 0.5, SpreadMax: 0.3, FundingKill: 0.05, FundingMax: 0.02,
			OIDropMaxPct: 10,
		},
		TradeabilityWeights: tradeability.Weights{
			"volatility": 0.2, "volume": 0.2, "spread": 0.2,
			"funding": 0.15, "open_interest": 0.1, "adx": 0.15,
		},
		TradeabilityMinScore: 0.1,
		Direction: direction.Thresholds{
			EMANeutralThreshold: 0.0001, RSILongThreshold: 52, RSIShortThreshold: 48,
		},
		Entry: entry.Thresholds{
			BBSqueezeThreshold: 100, VolumeSpikeRatio: 0.1,
			RetestBufferPct: 0.5, RejectionWickRatio: 1.0,
			EMABounceProximityPct: 5, VWAPProximityPct: 5,
		},
		AllowedSetups: entry.AllowedSetups{
			entry.SetupBreakout:   true,
			entry.SetupRetest:     true,
			entry.SetupDivergence: true,
			entry.SetupEMABounce:  true,
			entry.SetupMomentum:   true,
		},
		Risk: risk.Config{
			StopMethod: risk.StopMethodATR, ATRMultiplier: 1.5, MaxStopPct: 5,
			TP1RR: 1, TP2RR: 2, TP3RR: 3,
			TP1ClosePct: 50, TP2ClosePct: 30, TP3ClosePct: 20,
			LevMin: 5, LevMax: 20,
		},
		ScoreWeights:  ScoreWeights{Tradeability: 0.35, Direction: 0.3, Setup: 0.3, Sentiment: 0.05},
		FinalMinScore: 1, // low bar so a clean uptrend fixture can pass
	}
}

func TestAnalyze_MissingConfigReturnsNoTrade(t *testing.T) {
	e := New(nil, nil, nil, newTestLogger())
	sig := e.Analyze(context.Background(), Request{Symbol: "BTCUSDT", Mode: ModeScalping, BotVersion: BotV1, Now: time.Now()})
	if sig.Type != SignalTypeNoTrade {
		t.Fatalf("expected no_trade without a registered config")
	}
}

func TestAnalyze_MissingCandlesReturnsNoTrade(t *testing.T) {
	e := New(nil, nil, nil, newTestLogger())
	e.SetConfig(BotV1, ModeScalping, basicLayerConfig())
	sig := e.Analyze(context.Background(), Request{Symbol: "BTCUSDT", Mode: ModeScalping, BotVersion: BotV1, Now: time.Now()})
	if sig.Type != SignalTypeNoTrade {
		t.Fatalf("expected no_trade without candles")
	}
}

func TestAnalyze_CleanUptrendProducesLongSignal(t *testing.T) {
	e := New(nil, nil, nil, newTestLogger())
	e.SetConfig(BotV1, ModeScalping, basicLayerConfig())

	candles := makeUptrendCandles(120, 100)
	req := Request{
		Symbol:          "BTCUSDT",
		Mode:            ModeScalping,
		BotVersion:      BotV1,
		AnalysisCandles: candles,
		FilterCandles:   candles,
		Now:             time.Now(),
	}
	sig := e.Analyze(context.Background(), req)
	if sig.Type == SignalTypeNoTrade {
		t.Fatalf("expected a signal on a clean uptrend fixture, got no_trade: %s", sig.RejectReason)
	}
	if sig.Direction != DirectionLong {
		t.Fatalf("expected long direction, got %v", sig.Direction)
	}
	if sig.StopLoss >= sig.EntryPrice {
		t.Fatalf("expected stop below entry for a long signal")
	}
}

func TestAnalyze_V4AttachesExtras(t *testing.T) {
	e := New(nil, nil, nil, newTestLogger())
	cfg := basicLayerConfig()
	cfg.ScoreWeights = V4ScalpingWeights()
	cfg.VWAPProximityPct = 5
	cfg.VWAPModifierPoints = 5
	e.SetConfig(BotV4, ModeScalping, cfg)

	candles := makeUptrendCandles(120, 100)
	req := Request{
		Symbol:          "BTCUSDT",
		Mode:            ModeScalping,
		BotVersion:      BotV4,
		AnalysisCandles: candles,
		FilterCandles:   candles,
		Now:             time.Now(),
	}
	sig := e.Analyze(context.Background(), req)
	if sig.Type == SignalTypeNoTrade {
		t.Fatalf("expected a v4 signal on a clean uptrend fixture, got no_trade: %s", sig.RejectReason)
	}
	if sig.V4 == nil {
		t.Fatalf("expected v4 extras to be attached")
	}
}

func TestScoreRangeBucket(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{{85, "80+"}, {75, "70-79"}, {65, "60-69"}, {52, "50-59"}}
	for _, c := range cases {
		if got := scoreRangeBucket(c.score); got != c.want {
			t.Fatalf("scoreRangeBucket(%v) = %v, want %v", c.score, got, c.want)
		}
	}
}

func TestConfluenceBucket(t *testing.T) {
	if confluenceBucket(5) != "positive" {
		t.Fatalf("expected positive bucket")
	}
	if confluenceBucket(-5) != "negative" {
		t.Fatalf("expected negative bucket")
	}
	if confluenceBucket(0) != "zero" {
		t.Fatalf("expected zero bucket")
	}
}
