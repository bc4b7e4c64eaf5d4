// Package tradeability implements the Tradeability Layer:
// seven-to-eight independently scored checks over current market
// conditions, each in [-1,1], aggregated into a weighted score gating
// whether a symbol is tradable at all, drawing on
// internal/confluence/scorer.go for the weighted-sum-of-checks shape, and
// on the original source's risk_manager.py for the exact scoring curves
// (linear interpolation between configured thresholds).
package tradeability

// Check is one independently scored dimension.
type Check struct {
	Name   string
	Score  float64 // [-1, 1]; -1 is a kill switch
	Reason string
}

// Thresholds mirrors the `tradeability.thresholds` config block.
type Thresholds struct {
	ATRMinRatio    float64
	ATRMaxRatio    float64
	VolumeMinRatio float64
	SpreadKill     float64
	SpreadMax      float64 // spread_max_scalp or spread_max_swing, mode-selected by caller
	FundingKill    float64
	FundingMax     float64
	OIDropMaxPct   float64
}

// Weights mirrors `tradeability.weights`, keyed by check name; must sum
// to 1 (enforced by internal/config.validate at load time).
type Weights map[string]float64

// Inputs are the current market-condition readings the Tradeability
// Layer scores.
type Inputs struct {
	ATR         float64
	MeanATR     float64
	Volume      float64
	MeanVolume  float64
	SpreadPct   float64 // negative means "missing orderbook"
	HasOrderBook bool
	FundingRate float64
	OIChangePct float64
	ADX         float64
	// OrderFlowRatio is the V4-only taker buy/sell imbalance in [0,1]
	// (0.5 = balanced). Zero value with HasOrderFlow=false is ignored.
	OrderFlowRatio float64
	HasOrderFlow   bool
}

// Result is the Tradeability Layer's verdict.
type Result struct {
	Tradable bool
	Score    float64 // weighted aggregate in [0,1], or -1 on a kill switch
	Checks   []Check
	KillReason string
}

// Evaluate runs every configured check and aggregates them into a Result.
func Evaluate(in Inputs, th Thresholds, w Weights, minScore float64) Result {
	var checks []Check

	volatility := volatilityCheck(in, th)
	checks = append(checks, volatility)

	volume := volumeCheck(in, th)
	checks = append(checks, volume)

	spread := spreadCheck(in, th)
	checks = append(checks, spread)
	if spread.Score == -1 {
		return Result{Tradable: false, Score: -1, Checks: checks, KillReason: spread.Reason}
	}

	funding := fundingCheck(in, th)
	checks = append(checks, funding)
	if funding.Score == -1 {
		return Result{Tradable: false, Score: -1, Checks: checks, KillReason: funding.Reason}
	}

	oi := oiCheck(in, th)
	checks = append(checks, oi)

	adx := adxCheck(in)
	checks = append(checks, adx)

	if in.HasOrderFlow {
		checks = append(checks, orderFlowCheck(in))
	}

	score := 0.0
	for _, c := range checks {
		score += w[c.Name] * c.Score
	}

	return Result{
		Tradable: score >= minScore,
		Score:    score,
		Checks:   checks,
	}
}

func volatilityCheck(in Inputs, th Thresholds) Check {
	if in.MeanATR <= 0 {
		return Check{Name: "volatility", Score: 0.7, Reason: "no ATR history, neutral-positive"}
	}
	ratio := in.ATR / in.MeanATR
	if ratio >= th.ATRMinRatio && ratio <= th.ATRMaxRatio {
		return Check{Name: "volatility", Score: 1.0, Reason: "ATR ratio in sweet spot"}
	}
	if ratio < th.ATRMinRatio {
		if th.ATRMinRatio == 0 {
			return Check{Name: "volatility", Score: 0, Reason: "ATR ratio below minimum, undefined floor"}
		}
		return Check{Name: "volatility", Score: clamp(ratio/th.ATRMinRatio, 0, 1), Reason: "volatility below sweet spot"}
	}
	// ratio > max: decay linearly, floor at 0 by 2x the max.
	over := ratio - th.ATRMaxRatio
	span := th.ATRMaxRatio
	if span <= 0 {
		span = 1
	}
	return Check{Name: "volatility", Score: clamp(1-over/span, 0, 1), Reason: "volatility above sweet spot"}
}

func volumeCheck(in Inputs, th Thresholds) Check {
	if in.MeanVolume <= 0 {
		return Check{Name: "volume", Score: 0.7, Reason: "no volume history, neutral-positive"}
	}
	ratio := in.Volume / in.MeanVolume
	score := (ratio - th.VolumeMinRatio) / (2.0 - th.VolumeMinRatio)
	return Check{Name: "volume", Score: clamp(score, 0, 1), Reason: "volume ratio scaled linearly to 2x"}
}

func spreadCheck(in Inputs, th Thresholds) Check {
	if !in.HasOrderBook {
		return Check{Name: "spread", Score: 0.7, Reason: "no orderbook snapshot, neutral-positive"}
	}
	if in.SpreadPct >= th.SpreadKill {
		return Check{Name: "spread", Score: -1, Reason: "spread at or above kill threshold"}
	}
	score := 1 - in.SpreadPct/th.SpreadMax
	return Check{Name: "spread", Score: clamp(score, 0, 1), Reason: "spread penalised linearly toward max"}
}

func fundingCheck(in Inputs, th Thresholds) Check {
	abs := in.FundingRate
	if abs < 0 {
		abs = -abs
	}
	if abs >= th.FundingKill {
		return Check{Name: "funding", Score: -1, Reason: "funding at or above kill threshold"}
	}
	score := 1 - abs/th.FundingMax
	return Check{Name: "funding", Score: clamp(score, 0, 1), Reason: "funding penalised linearly toward max"}
}

func oiCheck(in Inputs, th Thresholds) Check {
	drop := -in.OIChangePct // a negative change is a drop
	if drop <= 1.0 {
		return Check{Name: "open_interest", Score: 1.0, Reason: "OI stable within ±1%"}
	}
	if th.OIDropMaxPct <= 1.0 {
		return Check{Name: "open_interest", Score: 0, Reason: "OI drop threshold misconfigured"}
	}
	score := 1 - (drop-1.0)/(th.OIDropMaxPct-1.0)
	return Check{Name: "open_interest", Score: clamp(score, 0, 1), Reason: "OI drop scaled linearly to max"}
}

func adxCheck(in Inputs) Check {
	switch {
	case in.ADX >= 30:
		return Check{Name: "adx", Score: 1.0, Reason: "ADX >= 30, strong trend"}
	case in.ADX >= 25:
		return Check{Name: "adx", Score: 0.8, Reason: "ADX >= 25"}
	case in.ADX >= 20:
		return Check{Name: "adx", Score: 0.5, Reason: "ADX >= 20"}
	default:
		return Check{Name: "adx", Score: 0.2, Reason: "ADX below 20, weak trend"}
	}
}

func orderFlowCheck(in Inputs) Check {
	// Measured in percentage points so that an exact 60/40 split reaches
	// the full score without float rounding.
	imbalance := in.OrderFlowRatio*100 - 50
	if imbalance < 0 {
		imbalance = -imbalance
	}
	// 0.5 balanced -> 0.5 score; 10 points (60/40 or further) imbalance or more -> 1.0
	score := 0.5 + clamp(imbalance/10, 0, 1)*0.5
	return Check{Name: "order_flow", Score: clamp(score, 0, 1), Reason: "order flow imbalance"}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
