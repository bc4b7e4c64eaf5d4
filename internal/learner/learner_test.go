package learner

import (
	"context"
	"testing"
	"time"

	"cryptosignals/engine/internal/engine"
	"cryptosignals/engine/internal/store"
)

type fakeStore struct {
	weights map[string]store.LearningWeight // key: dimension|value|bot
	trades  []store.TradeContext
}

func newFakeStore() *fakeStore {
	return &fakeStore{weights: make(map[string]store.LearningWeight)}
}

func (f *fakeStore) UpsertLearningWeight(ctx context.Context, w store.LearningWeight) error {
	f.weights[w.Dimension+"|"+w.Value+"|"+w.BotVersion] = w
	return nil
}

func (f *fakeStore) GetLearningWeights(ctx context.Context, botVersion string) ([]store.LearningWeight, error) {
	var out []store.LearningWeight
	for _, w := range f.weights {
		if w.BotVersion == botVersion {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeStore) AppendTradeContext(ctx context.Context, tc *store.TradeContext) error {
	tc.ID = int64(len(f.trades) + 1)
	tc.CreatedAt = time.Now()
	f.trades = append(f.trades, *tc)
	return nil
}

func (f *fakeStore) TradeContextSince(ctx context.Context, botVersion string, days int) ([]store.TradeContext, error) {
	var out []store.TradeContext
	for _, tc := range f.trades {
		if tc.BotVersion == botVersion {
			out = append(out, tc)
		}
	}
	return out, nil
}

type fakeCache struct{}

func (fakeCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) { return false, nil }
func (fakeCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return nil
}

func TestHourGroup(t *testing.T) {
	cases := map[int]string{0: "asian", 7: "asian", 8: "european", 15: "european", 16: "us", 23: "us"}
	for h, want := range cases {
		if got := hourGroup(h); got != want {
			t.Fatalf("hourGroup(%d) = %v, want %v", h, got, want)
		}
	}
}

func TestModifierForSample_HysteresisThresholds(t *testing.T) {
	if m := modifierForSample(3, 0.1); m != 0 {
		t.Fatalf("expected 0 modifier below sample 5, got %v", m)
	}
	if m := modifierForSample(8, 0.2); m != -15 {
		t.Fatalf("expected -15 for low win rate with sample>=8, got %v", m)
	}
	if m := modifierForSample(5, 0.35); m != -8 {
		t.Fatalf("expected -8 for moderate low win rate, got %v", m)
	}
	if m := modifierForSample(10, 0.7); m != 5 {
		t.Fatalf("expected +5 for strong win rate, got %v", m)
	}
	if m := modifierForSample(10, 0.5); m != 0 {
		t.Fatalf("expected 0 for break-even win rate, got %v", m)
	}
}

func recordLosingTrades(t *testing.T, l *Learner, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := l.RecordClose(context.Background(), engine.BotV4, TradeOutcome{
			SetupType:     "breakout",
			Symbol:        "BTCUSDT",
			Mode:          engine.ModeScalping,
			Regime:        "trending",
			HourUTC:       10,
			ScoreRange:    "70-79",
			Direction:     engine.DirectionLong,
			MTFConfluence: "positive",
			PnL:           -5,
		})
		if err != nil {
			t.Fatalf("RecordClose: %v", err)
		}
	}
}

func TestRecordClose_RecomputesAndAppliesNegativeModifier(t *testing.T) {
	st := newFakeStore()
	l := New(st, fakeCache{}, nil)

	recordLosingTrades(t, l, 8)

	modifier, reasons := l.ScoreModifier(context.Background(), engine.BotV4, engine.LearningDimensions{
		SetupType:     "breakout",
		Symbol:        "BTCUSDT",
		Mode:          engine.ModeScalping,
		Regime:        "trending",
		HourUTC:       10,
		ScoreRange:    "70-79",
		Direction:     engine.DirectionLong,
		MTFConfluence: "positive",
	})

	if modifier >= 0 {
		t.Fatalf("expected a negative modifier after 8 consecutive losses, got %v (reasons=%v)", modifier, reasons)
	}
	if modifier < -20 {
		t.Fatalf("modifier must stay within the [-20,+10] clamp, got %v", modifier)
	}
	if len(reasons) == 0 {
		t.Fatalf("expected non-empty reasons for a nonzero modifier")
	}
}

func TestScoreModifier_NoHistoryReturnsZero(t *testing.T) {
	l := New(newFakeStore(), fakeCache{}, nil)
	modifier, reasons := l.ScoreModifier(context.Background(), engine.BotV4, engine.LearningDimensions{SetupType: "breakout"})
	if modifier != 0 || reasons != nil {
		t.Fatalf("expected zero modifier and no reasons with no history, got %v %v", modifier, reasons)
	}
}

func TestEdgeDecayAlerts_FlagsDivergingWinRates(t *testing.T) {
	l := New(newFakeStore(), fakeCache{}, nil)
	l.weights[engine.BotV4] = map[weightKey]store.LearningWeight{
		{DimSetupType, "breakout"}: {
			Dimension: DimSetupType, Value: "breakout", BotVersion: "V4",
			SampleCount: 10, WinRate7d: 0.20, WinRate30d: 0.50,
		},
		{DimSetupType, "retest"}: {
			Dimension: DimSetupType, Value: "retest", BotVersion: "V4",
			SampleCount: 10, WinRate7d: 0.45, WinRate30d: 0.50,
		},
	}
	alerts := l.EdgeDecayAlerts(engine.BotV4)
	if len(alerts) != 1 || alerts[0].Value != "breakout" {
		t.Fatalf("expected exactly one decay alert for breakout, got %+v", alerts)
	}
}

func TestCalibrationReport_GroupsByScoreRangeOnly(t *testing.T) {
	l := New(newFakeStore(), fakeCache{}, nil)
	l.weights[engine.BotV4] = map[weightKey]store.LearningWeight{
		{DimScoreRange, "70-79"}: {Dimension: DimScoreRange, Value: "70-79", SampleCount: 12, WinRateAll: 0.6, AvgPnL: 4.5},
		{DimSetupType, "breakout"}: {Dimension: DimSetupType, Value: "breakout", SampleCount: 12, WinRateAll: 0.6},
	}
	report := l.CalibrationReport(engine.BotV4)
	if len(report) != 1 || report[0].ScoreRange != "70-79" {
		t.Fatalf("expected calibration report to contain only score_range buckets, got %+v", report)
	}
}
