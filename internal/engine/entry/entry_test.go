package entry

import (
	"testing"

	"cryptosignals/engine/internal/engine/direction"
	"cryptosignals/engine/internal/indicator"
)

func allSetupsAllowed() AllowedSetups {
	return AllowedSetups{
		SetupBreakout:   true,
		SetupRetest:     true,
		SetupDivergence: true,
		SetupEMABounce:  true,
		SetupMomentum:   true,
	}
}

func defaultThresholds() Thresholds {
	return Thresholds{
		BBSqueezeThreshold:    5,
		VolumeSpikeRatio:      1.5,
		RetestBufferPct:       0.3,
		RejectionWickRatio:    1.0,
		EMABounceProximityPct: 0.3,
		VWAPProximityPct:      0.5,
	}
}

func TestEvaluate_NoSetupFiresReturnsRejection(t *testing.T) {
	in := Inputs{
		Price:     100,
		Bias:      direction.BiasNeutral,
		Bollinger: indicator.BollingerBands{Upper: 110, Middle: 100, Lower: 90, Bandwidth: 20},
		ADX:       10,
		RSI:       50,
	}
	res := Evaluate(in, defaultThresholds(), allSetupsAllowed(), indicator.CandleContext{})
	if res.Setup != nil {
		t.Fatalf("expected no setup, got %+v", res.Setup)
	}
	if res.RejectReason == "" {
		t.Fatalf("expected a reject reason")
	}
}

func TestDetectBreakout_FiresOnSqueezeAndVolumeSpike(t *testing.T) {
	in := Inputs{
		Price:       111,
		Bias:        direction.BiasLong,
		Bollinger:   indicator.BollingerBands{Upper: 110, Middle: 100, Lower: 90, Bandwidth: 3},
		VolumeRatio: 2.0,
	}
	s := detectBreakout(in, defaultThresholds())
	if s == nil {
		t.Fatalf("expected breakout to fire")
	}
	if s.Direction != direction.BiasLong {
		t.Fatalf("expected long breakout, got %v", s.Direction)
	}
}

func TestDetectBreakout_WideBandwidthDoesNotFire(t *testing.T) {
	in := Inputs{
		Price:       111,
		Bias:        direction.BiasLong,
		Bollinger:   indicator.BollingerBands{Upper: 110, Middle: 100, Lower: 90, Bandwidth: 20},
		VolumeRatio: 2.0,
	}
	if s := detectBreakout(in, defaultThresholds()); s != nil {
		t.Fatalf("expected no breakout on wide bandwidth, got %+v", s)
	}
}

func TestConfluenceScore_Tiers(t *testing.T) {
	cases := []struct {
		fired int
		want  float64
	}{{0, 0}, {1, 5}, {2, 15}, {3, 25}, {4, 25}}
	for _, c := range cases {
		if got := confluenceScore(c.fired); got != c.want {
			t.Fatalf("confluenceScore(%d) = %v, want %v", c.fired, got, c.want)
		}
	}
}

func TestConfirmCandle_BigOppositeResistanceRejectsLong(t *testing.T) {
	s := Setup{Direction: direction.BiasLong}
	ctx := indicator.CandleContext{BigCandleResistance: true}
	_, confirmed, reason := confirmCandle(s, ctx)
	if confirmed {
		t.Fatalf("expected rejection on big candle resistance")
	}
	if reason == "" {
		t.Fatalf("expected a reject reason")
	}
}

func TestConfirmCandle_ConfirmingEngulfingAddsPositiveModifier(t *testing.T) {
	s := Setup{Direction: direction.BiasLong}
	ctx := indicator.CandleContext{
		Pattern: indicator.CandlePattern{Type: indicator.PatternEngulfingBull, Direction: "bullish"},
	}
	mod, confirmed, _ := confirmCandle(s, ctx)
	if !confirmed {
		t.Fatalf("expected confirmation")
	}
	if mod != 8 {
		t.Fatalf("expected +8 modifier for confirming engulfing, got %v", mod)
	}
}

func TestConfirmCandle_ContradictoryPatternPenalises(t *testing.T) {
	s := Setup{Direction: direction.BiasLong}
	ctx := indicator.CandleContext{
		Pattern: indicator.CandlePattern{Type: indicator.PatternEngulfingBear, Direction: "bearish"},
	}
	mod, confirmed, _ := confirmCandle(s, ctx)
	if !confirmed {
		t.Fatalf("expected confirmation (not an outright rejection)")
	}
	if mod != -15 {
		t.Fatalf("expected -15 modifier for contradictory pattern, got %v", mod)
	}
}

func TestConfirmCandle_ModifierClampedToRange(t *testing.T) {
	s := Setup{Direction: direction.BiasLong}
	ctx := indicator.CandleContext{
		Pattern:          indicator.CandlePattern{Type: indicator.PatternEngulfingBear, Direction: "bearish"},
		LastDirection:    "bearish",
		BodyRatio:        0.9,
		ConsecutiveCount: 4,
	}
	mod, confirmed, _ := confirmCandle(s, ctx)
	if !confirmed {
		t.Fatalf("expected confirmation")
	}
	if mod != -15 {
		t.Fatalf("expected modifier clamped at -15, got %v", mod)
	}
}
