package direction

import (
	"testing"

	"cryptosignals/engine/internal/indicator"
)

func defaultThresholds() Thresholds {
	return Thresholds{
		EMANeutralThreshold: 0.001,
		RSILongThreshold:    55,
		RSIShortThreshold:   45,
	}
}

func TestEvaluate_StrongLongConsensusScoresHundred(t *testing.T) {
	in := Inputs{
		Price: 110, EMA20: 108, EMA50: 100, EMA200: 90,
		RSI: 60, MACDHistogram: 1.5,
		ADX: 28, PlusDI: 30, MinusDI: 15,
		Structure: indicator.MarketStructure{Trend: indicator.TrendBullish},
	}
	res := Evaluate(in, defaultThresholds(), false)
	if res.Bias != BiasLong {
		t.Fatalf("expected long bias, got %v", res.Bias)
	}
	if res.Score != 100 {
		t.Fatalf("expected score 100 for 6/6 consensus, got %v", res.Score)
	}
}

func TestEvaluate_MixedVotesAreNeutral(t *testing.T) {
	in := Inputs{
		Price: 100, EMA20: 100, EMA50: 100, EMA200: 100,
		RSI: 50, MACDHistogram: 0,
		ADX: 10, PlusDI: 20, MinusDI: 20,
		Structure: indicator.MarketStructure{Trend: indicator.TrendNeutral},
	}
	res := Evaluate(in, defaultThresholds(), false)
	if res.Bias != BiasNeutral {
		t.Fatalf("expected neutral bias on no votes, got %v", res.Bias)
	}
	if res.Score != 40 {
		t.Fatalf("expected neutral score 40, got %v", res.Score)
	}
}

func TestEvaluate_SwingRejectsNeutralWithZeroScore(t *testing.T) {
	in := Inputs{
		Price: 100, EMA20: 100, EMA50: 100, EMA200: 100,
		RSI: 50, MACDHistogram: 0,
		ADX: 10, PlusDI: 20, MinusDI: 20,
		Structure: indicator.MarketStructure{Trend: indicator.TrendNeutral},
	}
	res := Evaluate(in, defaultThresholds(), true)
	if res.Score != 0 {
		t.Fatalf("expected swing-mode neutral rejection to zero the score, got %v", res.Score)
	}
}

func TestEvaluate_FourAlignedWithOneOppositeScores85(t *testing.T) {
	in := Inputs{
		// long: ema_spread, market_structure, rsi, macd (4 long)
		// short: adx_di (1 short)
		// price_vs_ema200: neutral (ema200 = price)
		Price: 110, EMA20: 108, EMA50: 100, EMA200: 110,
		RSI: 60, MACDHistogram: 1.5,
		ADX: 25, PlusDI: 10, MinusDI: 30,
		Structure: indicator.MarketStructure{Trend: indicator.TrendBullish},
	}
	res := Evaluate(in, defaultThresholds(), false)
	if res.Bias != BiasLong {
		t.Fatalf("expected long bias, got %v", res.Bias)
	}
	if res.Score != 85 {
		t.Fatalf("expected score 85 for 4 aligned votes, got %v", res.Score)
	}
}
