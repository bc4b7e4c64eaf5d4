package engine

import "cryptosignals/engine/internal/indicator"

// MTFInputs are the analysis-timeframe and filter-timeframe readings
// compared for multi-timeframe confluence (V4 only).
type MTFInputs struct {
	AnalysisStructure indicator.TrendDirection
	FilterStructure   indicator.TrendDirection
	AnalysisRSI       float64
	FilterRSI         float64
	AnalysisADXTrending bool
	FilterADXTrending   bool
	Direction           Direction
}

// MTFConfluence compares analysis-TF and filter-TF structure, RSI side
// and ADX regime, returning a modifier in [-15,+15].
func MTFConfluence(in MTFInputs) float64 {
	score := 0.0

	structureAgrees := trendMatchesDirection(in.AnalysisStructure, in.Direction) &&
		trendMatchesDirection(in.FilterStructure, in.Direction)
	structureDisagrees := trendMatchesDirection(in.AnalysisStructure, opposite(in.Direction)) &&
		trendMatchesDirection(in.FilterStructure, opposite(in.Direction))
	switch {
	case structureAgrees:
		score += 5
	case structureDisagrees:
		score -= 5
	}

	analysisRSISide := rsiSide(in.AnalysisRSI)
	filterRSISide := rsiSide(in.FilterRSI)
	if analysisRSISide == in.Direction && filterRSISide == in.Direction {
		score += 5
	} else if analysisRSISide == opposite(in.Direction) && filterRSISide == opposite(in.Direction) {
		score -= 5
	}

	if in.AnalysisADXTrending && in.FilterADXTrending {
		score += 5
	} else if !in.AnalysisADXTrending && !in.FilterADXTrending {
		score -= 5
	}

	if score > 15 {
		score = 15
	}
	if score < -15 {
		score = -15
	}
	return score
}

func trendMatchesDirection(t indicator.TrendDirection, dir Direction) bool {
	return (t == indicator.TrendBullish && dir == DirectionLong) ||
		(t == indicator.TrendBearish && dir == DirectionShort)
}

func opposite(dir Direction) Direction {
	switch dir {
	case DirectionLong:
		return DirectionShort
	case DirectionShort:
		return DirectionLong
	default:
		return DirectionNone
	}
}

func rsiSide(rsi float64) Direction {
	if rsi > 55 {
		return DirectionLong
	}
	if rsi < 45 {
		return DirectionShort
	}
	return DirectionNone
}
