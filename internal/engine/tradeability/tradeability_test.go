package tradeability

import "testing"

func defaultThresholds() Thresholds {
	return Thresholds{
		ATRMinRatio:    0.8,
		ATRMaxRatio:    2.0,
		VolumeMinRatio: 0.5,
		SpreadKill:     0.5,
		SpreadMax:      0.15,
		FundingKill:    0.03,
		FundingMax:     0.01,
		OIDropMaxPct:   5.0,
	}
}

func defaultWeights() Weights {
	return Weights{
		"volatility":    0.2,
		"volume":        0.2,
		"spread":        0.2,
		"funding":       0.15,
		"open_interest": 0.1,
		"adx":           0.15,
	}
}

func TestEvaluate_KillsOnExtremeSpread(t *testing.T) {
	in := Inputs{
		ATR: 1, MeanATR: 1, Volume: 1, MeanVolume: 1,
		HasOrderBook: true, SpreadPct: 0.6,
		FundingRate: 0.001, OIChangePct: 0, ADX: 25,
	}
	res := Evaluate(in, defaultThresholds(), defaultWeights(), 0.5)
	if res.Tradable {
		t.Fatalf("expected kill switch to block trading")
	}
	if res.Score != -1 {
		t.Fatalf("expected sentinel score -1, got %v", res.Score)
	}
	if res.KillReason == "" {
		t.Fatalf("expected a kill reason")
	}
}

func TestEvaluate_KillsOnExtremeFunding(t *testing.T) {
	in := Inputs{
		ATR: 1, MeanATR: 1, Volume: 1, MeanVolume: 1,
		HasOrderBook: true, SpreadPct: 0.05,
		FundingRate: 0.05, OIChangePct: 0, ADX: 25,
	}
	res := Evaluate(in, defaultThresholds(), defaultWeights(), 0.5)
	if res.Tradable {
		t.Fatalf("expected kill switch to block trading")
	}
}

func TestEvaluate_GoodConditionsAreTradable(t *testing.T) {
	in := Inputs{
		ATR: 1.2, MeanATR: 1.0, // ratio 1.2, in sweet spot
		Volume: 2.0, MeanVolume: 1.0, // ratio 2.0, max volume score
		HasOrderBook: true, SpreadPct: 0.02,
		FundingRate: 0.0005, OIChangePct: 0, ADX: 32,
	}
	res := Evaluate(in, defaultThresholds(), defaultWeights(), 0.5)
	if !res.Tradable {
		t.Fatalf("expected good market conditions to be tradable, score=%v", res.Score)
	}
}

func TestVolatilityCheck_MissingHistoryIsNeutralPositive(t *testing.T) {
	c := volatilityCheck(Inputs{ATR: 1, MeanATR: 0}, defaultThresholds())
	if c.Score != 0.7 {
		t.Fatalf("expected neutral-positive 0.7 with no ATR history, got %v", c.Score)
	}
}

func TestSpreadCheck_MissingOrderBookIsNeutralPositive(t *testing.T) {
	c := spreadCheck(Inputs{HasOrderBook: false}, defaultThresholds())
	if c.Score != 0.7 {
		t.Fatalf("expected neutral-positive 0.7 with no orderbook, got %v", c.Score)
	}
}

func TestADXCheck_Tiers(t *testing.T) {
	cases := []struct {
		adx  float64
		want float64
	}{
		{35, 1.0},
		{27, 0.8},
		{22, 0.5},
		{10, 0.2},
	}
	for _, c := range cases {
		got := adxCheck(Inputs{ADX: c.adx})
		if got.Score != c.want {
			t.Fatalf("adxCheck(%v) = %v, want %v", c.adx, got.Score, c.want)
		}
	}
}

func TestOrderFlowCheck_DecisiveImbalanceScoresHigh(t *testing.T) {
	balanced := orderFlowCheck(Inputs{OrderFlowRatio: 0.5})
	if balanced.Score != 0.5 {
		t.Fatalf("expected balanced order flow to score 0.5, got %v", balanced.Score)
	}
	decisive := orderFlowCheck(Inputs{OrderFlowRatio: 0.6})
	if decisive.Score != 1.0 {
		t.Fatalf("expected 60/40 imbalance to score 1.0, got %v", decisive.Score)
	}
}

func TestOICheck_StableWithinOnePercent(t *testing.T) {
	c := oiCheck(Inputs{OIChangePct: -0.5}, defaultThresholds())
	if c.Score != 1.0 {
		t.Fatalf("expected stable OI to score 1.0, got %v", c.Score)
	}
}

func TestOICheck_LargeDropScoresZero(t *testing.T) {
	th := defaultThresholds()
	c := oiCheck(Inputs{OIChangePct: -th.OIDropMaxPct}, th)
	if c.Score != 0 {
		t.Fatalf("expected max OI drop to score 0, got %v", c.Score)
	}
}
