package risk

import (
	"testing"

	"cryptosignals/engine/internal/engine/direction"
)

func defaultConfig() Config {
	return Config{
		StopMethod:    StopMethodATR,
		ATRMultiplier: 1.5,
		MaxStopPct:    2.0,
		TP1RR:         1.0,
		TP2RR:         2.0,
		TP3RR:         3.0,
		TP1ClosePct:   50,
		TP2ClosePct:   30,
		TP3ClosePct:   20,
		LevMin:        5,
		LevMax:        20,
	}
}

func TestCalculate_LongStopBelowEntryTPsAbove(t *testing.T) {
	in := Inputs{EntryPrice: 100, Direction: direction.BiasLong, ATR: 1}
	res := Calculate(in, defaultConfig())
	if res.StopLoss >= in.EntryPrice {
		t.Fatalf("expected long stop below entry, got %v", res.StopLoss)
	}
	if res.TP1 <= in.EntryPrice || res.TP2 <= res.TP1 || res.TP3 <= res.TP2 {
		t.Fatalf("expected ascending TP ladder above entry, got tp1=%v tp2=%v tp3=%v", res.TP1, res.TP2, res.TP3)
	}
}

func TestCalculate_ShortStopAboveEntryTPsBelow(t *testing.T) {
	in := Inputs{EntryPrice: 100, Direction: direction.BiasShort, ATR: 1}
	res := Calculate(in, defaultConfig())
	if res.StopLoss <= in.EntryPrice {
		t.Fatalf("expected short stop above entry, got %v", res.StopLoss)
	}
	if res.TP1 >= in.EntryPrice || res.TP2 >= res.TP1 || res.TP3 >= res.TP2 {
		t.Fatalf("expected descending TP ladder below entry, got tp1=%v tp2=%v tp3=%v", res.TP1, res.TP2, res.TP3)
	}
}

func TestCalculate_StopDistanceCappedByMaxStopPct(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxStopPct = 1.0
	in := Inputs{EntryPrice: 100, Direction: direction.BiasLong, ATR: 5} // 5*1.5=7.5, way over 1%
	res := Calculate(in, cfg)
	if res.RiskPct > 1.0+1e-9 {
		t.Fatalf("expected risk pct capped at 1.0, got %v", res.RiskPct)
	}
}

func TestCalculate_DegenerateTP1DistanceYieldsZeroRR(t *testing.T) {
	cfg := defaultConfig()
	cfg.TP1RR = 0
	in := Inputs{EntryPrice: 100, Direction: direction.BiasLong, ATR: 1}
	res := Calculate(in, cfg)
	if res.RRRatio != 0 {
		t.Fatalf("expected rr_ratio 0 on degenerate tp1 distance, got %v", res.RRRatio)
	}
}

func TestLeverageForStopPct_Bounds(t *testing.T) {
	cfg := defaultConfig()
	if lev := leverageForStopPct(0, cfg); lev != int(cfg.LevMax) {
		t.Fatalf("expected max leverage at zero stop pct, got %v", lev)
	}
	if lev := leverageForStopPct(1.0, cfg); lev != int(cfg.LevMin) {
		t.Fatalf("expected min leverage at 1%% stop, got %v", lev)
	}
	if lev := leverageForStopPct(2.0, cfg); lev != int(cfg.LevMin) {
		t.Fatalf("expected min leverage beyond 1%% stop, got %v", lev)
	}
}

func TestStopDistance_StructuralFallsBackToATRWithoutSwing(t *testing.T) {
	cfg := defaultConfig()
	cfg.StopMethod = StopMethodStructural
	in := Inputs{EntryPrice: 100, Direction: direction.BiasLong, ATR: 2, StructuralSwing: 0}
	dist := stopDistance(in, cfg)
	if dist != in.ATR*cfg.ATRMultiplier {
		t.Fatalf("expected ATR fallback when no structural swing, got %v", dist)
	}
}
