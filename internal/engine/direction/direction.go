// Package direction implements the Direction Layer: six
// independent votes on the filter timeframe, reduced to a consensus bias
// and score by counting multiple independent signals and thresholding
// them, built on internal/indicator for the underlying series.
package direction

import "cryptosignals/engine/internal/indicator"

// Bias is the candidate direction the layer votes toward.
type Bias string

const (
	BiasLong    Bias = "long"
	BiasShort   Bias = "short"
	BiasNeutral Bias = "neutral"
)

// Thresholds mirrors the `direction` config block.
type Thresholds struct {
	EMANeutralThreshold float64 // min fractional EMA20/EMA50 spread to count as a vote
	RSILongThreshold    float64
	RSIShortThreshold   float64
}

// Inputs are the filter-timeframe readings the Direction Layer votes on.
type Inputs struct {
	Price float64
	EMA20 float64
	EMA50 float64
	EMA200 float64
	RSI   float64
	MACDHistogram float64
	ADX   float64
	PlusDI  float64
	MinusDI float64
	Structure indicator.MarketStructure
}

// Vote is one of the six independent checks.
type Vote struct {
	Name   string
	Bias   Bias
	Reason string
}

// Result is the Direction Layer's verdict.
type Result struct {
	Bias    Bias
	Score   float64
	Votes   []Vote
	Reasons []string
}

// Evaluate runs all six votes and reduces them to a consensus.
func Evaluate(in Inputs, th Thresholds, swingRejectNeutral bool) Result {
	votes := []Vote{
		emaSpreadVote(in, th),
		structureVote(in),
		rsiVote(in, th),
		macdVote(in),
		adxDIVote(in),
		priceVsEMA200Vote(in),
	}

	longVotes, shortVotes := 0, 0
	for _, v := range votes {
		switch v.Bias {
		case BiasLong:
			longVotes++
		case BiasShort:
			shortVotes++
		}
	}

	var bias Bias
	var aligned, opposite int
	if longVotes >= shortVotes {
		bias, aligned, opposite = BiasLong, longVotes, shortVotes
	} else {
		bias, aligned, opposite = BiasShort, shortVotes, longVotes
	}

	var score float64
	switch {
	case aligned >= 5:
		score = 100
	case aligned >= 4:
		score = 85
	case aligned >= 3 && opposite <= 1:
		score = 65
	default:
		bias = BiasNeutral
		score = 40
	}

	if bias == BiasNeutral && swingRejectNeutral {
		score = 0
	}

	reasons := make([]string, 0, len(votes))
	for _, v := range votes {
		reasons = append(reasons, v.Reason)
	}

	return Result{Bias: bias, Score: score, Votes: votes, Reasons: reasons}
}

func emaSpreadVote(in Inputs, th Thresholds) Vote {
	if in.EMA50 == 0 {
		return Vote{Name: "ema_spread", Bias: BiasNeutral, Reason: "ema50 unavailable"}
	}
	spread := (in.EMA20 - in.EMA50) / in.EMA50
	if spread > th.EMANeutralThreshold && in.Price > in.EMA20 {
		return Vote{Name: "ema_spread", Bias: BiasLong, Reason: "ema20 above ema50 beyond threshold, price confirms"}
	}
	if spread < -th.EMANeutralThreshold && in.Price < in.EMA20 {
		return Vote{Name: "ema_spread", Bias: BiasShort, Reason: "ema20 below ema50 beyond threshold, price confirms"}
	}
	return Vote{Name: "ema_spread", Bias: BiasNeutral, Reason: "ema spread inconclusive"}
}

func structureVote(in Inputs) Vote {
	switch in.Structure.Trend {
	case indicator.TrendBullish:
		return Vote{Name: "market_structure", Bias: BiasLong, Reason: "market structure bullish"}
	case indicator.TrendBearish:
		return Vote{Name: "market_structure", Bias: BiasShort, Reason: "market structure bearish"}
	default:
		return Vote{Name: "market_structure", Bias: BiasNeutral, Reason: "market structure neutral"}
	}
}

func rsiVote(in Inputs, th Thresholds) Vote {
	if in.RSI > th.RSILongThreshold {
		return Vote{Name: "rsi", Bias: BiasLong, Reason: "rsi above long threshold"}
	}
	if in.RSI < th.RSIShortThreshold {
		return Vote{Name: "rsi", Bias: BiasShort, Reason: "rsi below short threshold"}
	}
	return Vote{Name: "rsi", Bias: BiasNeutral, Reason: "rsi within neutral band"}
}

func macdVote(in Inputs) Vote {
	if in.MACDHistogram > 0 {
		return Vote{Name: "macd", Bias: BiasLong, Reason: "macd histogram positive"}
	}
	if in.MACDHistogram < 0 {
		return Vote{Name: "macd", Bias: BiasShort, Reason: "macd histogram negative"}
	}
	return Vote{Name: "macd", Bias: BiasNeutral, Reason: "macd histogram flat"}
}

func adxDIVote(in Inputs) Vote {
	if in.ADX < 20 {
		return Vote{Name: "adx_di", Bias: BiasNeutral, Reason: "adx below 20, no trend vote"}
	}
	if in.PlusDI > in.MinusDI {
		return Vote{Name: "adx_di", Bias: BiasLong, Reason: "adx trending with +DI above -DI"}
	}
	if in.MinusDI > in.PlusDI {
		return Vote{Name: "adx_di", Bias: BiasShort, Reason: "adx trending with -DI above +DI"}
	}
	return Vote{Name: "adx_di", Bias: BiasNeutral, Reason: "adx trending but DI tied"}
}

func priceVsEMA200Vote(in Inputs) Vote {
	if in.EMA200 == 0 {
		return Vote{Name: "price_vs_ema200", Bias: BiasNeutral, Reason: "ema200 unavailable"}
	}
	if in.Price > in.EMA200 {
		return Vote{Name: "price_vs_ema200", Bias: BiasLong, Reason: "price above ema200"}
	}
	if in.Price < in.EMA200 {
		return Vote{Name: "price_vs_ema200", Bias: BiasShort, Reason: "price below ema200"}
	}
	return Vote{Name: "price_vs_ema200", Bias: BiasNeutral, Reason: "price at ema200"}
}
