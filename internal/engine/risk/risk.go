// Package risk implements the Risk Calculator: stop distance,
// take-profit ladder, and leverage sizing from entry/ATR/direction and the
// mode's risk config, computing a {stop,take-profit,leverage} struct.
package risk

import "cryptosignals/engine/internal/engine/direction"

// StopMethod selects how the stop distance is derived.
type StopMethod string

const (
	StopMethodATR        StopMethod = "atr"
	StopMethodStructural StopMethod = "structural"
)

// Config mirrors a mode's risk config block.
type Config struct {
	StopMethod   StopMethod
	ATRMultiplier float64
	BufferATR    float64
	MaxStopPct   float64

	TP1RR float64
	TP2RR float64
	TP3RR float64

	TP1ClosePct float64
	TP2ClosePct float64
	TP3ClosePct float64

	LevMin float64
	LevMax float64
}

// Inputs are the entry conditions the calculator needs.
type Inputs struct {
	EntryPrice   float64
	Direction    direction.Bias
	ATR          float64
	StructuralSwing float64 // nearest swing high/low in the trade's favor, for StopMethodStructural
}

// Result is the full risk package attached to a signal.
type Result struct {
	StopLoss    float64
	TP1, TP2, TP3 float64
	TP1ClosePct, TP2ClosePct, TP3ClosePct float64
	SLDistance  float64
	RiskPct     float64
	Leverage    int
	RRRatio     float64
}

// Calculate derives the full risk package for one candidate entry.
func Calculate(in Inputs, cfg Config) Result {
	slDistance := stopDistance(in, cfg)

	maxDistance := in.EntryPrice * cfg.MaxStopPct / 100
	if slDistance > maxDistance {
		slDistance = maxDistance
	}

	var stopLoss, tp1, tp2, tp3 float64
	if in.Direction == direction.BiasLong {
		stopLoss = in.EntryPrice - slDistance
		tp1 = in.EntryPrice + slDistance*cfg.TP1RR
		tp2 = in.EntryPrice + slDistance*cfg.TP2RR
		tp3 = in.EntryPrice + slDistance*cfg.TP3RR
	} else {
		stopLoss = in.EntryPrice + slDistance
		tp1 = in.EntryPrice - slDistance*cfg.TP1RR
		tp2 = in.EntryPrice - slDistance*cfg.TP2RR
		tp3 = in.EntryPrice - slDistance*cfg.TP3RR
	}

	tp1Distance := tp1 - in.EntryPrice
	if tp1Distance < 0 {
		tp1Distance = -tp1Distance
	}
	var rrRatio float64
	if tp1Distance == 0 {
		rrRatio = 0
	} else if slDistance != 0 {
		rrRatio = tp1Distance / slDistance
	}

	riskPct := 0.0
	if in.EntryPrice != 0 {
		riskPct = slDistance / in.EntryPrice * 100
	}

	return Result{
		StopLoss:    stopLoss,
		TP1:         tp1,
		TP2:         tp2,
		TP3:         tp3,
		TP1ClosePct: cfg.TP1ClosePct,
		TP2ClosePct: cfg.TP2ClosePct,
		TP3ClosePct: cfg.TP3ClosePct,
		SLDistance:  slDistance,
		RiskPct:     riskPct,
		Leverage:    leverageForStopPct(riskPct, cfg),
		RRRatio:     rrRatio,
	}
}

func stopDistance(in Inputs, cfg Config) float64 {
	switch cfg.StopMethod {
	case StopMethodStructural:
		if in.StructuralSwing <= 0 {
			return in.ATR * cfg.ATRMultiplier
		}
		dist := in.EntryPrice - in.StructuralSwing
		if dist < 0 {
			dist = -dist
		}
		return dist + cfg.BufferATR*in.ATR
	default:
		return in.ATR * cfg.ATRMultiplier
	}
}

// leverageForStopPct is a piecewise-linear function of the realised stop
// percentage within [lev_min, lev_max]: stops near zero use lev_max, stops
// at or beyond 1% use lev_min.
func leverageForStopPct(stopPct float64, cfg Config) int {
	if stopPct <= 0 {
		return int(cfg.LevMax)
	}
	if stopPct >= 1.0 {
		return int(cfg.LevMin)
	}
	lev := cfg.LevMax - (cfg.LevMax-cfg.LevMin)*stopPct
	if lev < cfg.LevMin {
		lev = cfg.LevMin
	}
	if lev > cfg.LevMax {
		lev = cfg.LevMax
	}
	return int(lev)
}
