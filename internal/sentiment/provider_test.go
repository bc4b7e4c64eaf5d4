package sentiment

import "testing"

func TestCalculateOverall_RescalesToHundredRange(t *testing.T) {
	v := calculateOverall(100, 0)
	if v != 100 {
		t.Fatalf("expected extreme greed to rescale to +100, got %v", v)
	}
	v = calculateOverall(0, 0)
	if v != -100 {
		t.Fatalf("expected extreme fear to rescale to -100, got %v", v)
	}
	v = calculateOverall(50, 0)
	if v != 0 {
		t.Fatalf("expected neutral fear/greed to rescale to 0, got %v", v)
	}
}

func TestBiasFromValue(t *testing.T) {
	cases := []struct {
		v    float64
		want Bias
	}{
		{40, BiasBullish},
		{-40, BiasBearish},
		{10, BiasNeutral},
		{-10, BiasNeutral},
	}
	for _, c := range cases {
		if got := biasFromValue(c.v); got != c.want {
			t.Fatalf("biasFromValue(%v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestSentimentMultiplier(t *testing.T) {
	bullish := Score{Bias: BiasBullish}
	bearish := Score{Bias: BiasBearish}
	neutral := Score{Bias: BiasNeutral}

	if m := SentimentMultiplier(bullish, "long"); m != 1.3 {
		t.Fatalf("expected agreement multiplier 1.3, got %v", m)
	}
	if m := SentimentMultiplier(bearish, "long"); m != 0.6 {
		t.Fatalf("expected disagreement multiplier 0.6, got %v", m)
	}
	if m := SentimentMultiplier(neutral, "long"); m != 1.0 {
		t.Fatalf("expected neutral multiplier 1.0, got %v", m)
	}
	if m := SentimentMultiplier(bearish, "short"); m != 1.3 {
		t.Fatalf("expected short+bearish agreement multiplier 1.3, got %v", m)
	}
}
