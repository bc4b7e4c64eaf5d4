package indicator

import "math"

// ATR computes the Average True Range over `period` bars using Wilder's
// true-range formula.
func ATR(candles []Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return NaN
	}
	trueRanges := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		trueRanges = append(trueRanges, trueRange(candles[i], candles[i-1]))
	}
	if len(trueRanges) < period {
		return NaN
	}
	// Wilder smoothing: seed with a simple average, then recursively smooth.
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += trueRanges[i]
	}
	atr := sum / float64(period)
	for i := period; i < len(trueRanges); i++ {
		atr = (atr*float64(period-1) + trueRanges[i]) / float64(period)
	}
	return atr
}

func trueRange(curr, prev Candle) float64 {
	hl := curr.High - curr.Low
	hc := math.Abs(curr.High - prev.Close)
	lc := math.Abs(curr.Low - prev.Close)
	return math.Max(hl, math.Max(hc, lc))
}

// BollingerBands holds the upper/middle/lower bands and bandwidth.
type BollingerBands struct {
	Upper     float64
	Middle    float64
	Lower     float64
	Bandwidth float64 // (upper-lower)/middle*100
}

// Bollinger computes Bollinger Bands(period, stdDevMultiplier).
func Bollinger(candles []Candle, period int, stdDevMultiplier float64) BollingerBands {
	if period <= 0 || len(candles) < period {
		return BollingerBands{NaN, NaN, NaN, NaN}
	}
	window := candles[len(candles)-period:]
	mean := 0.0
	for _, c := range window {
		mean += c.Close
	}
	mean /= float64(period)

	variance := 0.0
	for _, c := range window {
		d := c.Close - mean
		variance += d * d
	}
	variance /= float64(period)
	stdDev := math.Sqrt(variance)

	upper := mean + stdDevMultiplier*stdDev
	lower := mean - stdDevMultiplier*stdDev
	bandwidth := 0.0
	if mean != 0 {
		bandwidth = (upper - lower) / mean * 100
	}
	return BollingerBands{Upper: upper, Middle: mean, Lower: lower, Bandwidth: bandwidth}
}
