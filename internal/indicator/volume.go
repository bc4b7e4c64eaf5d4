package indicator

// OBVSeries computes On-Balance Volume across the whole series: volume is
// added when the close rises, subtracted when it falls, unchanged on a flat
// close. The running total has no natural zero point, so only its direction
// (trend) over a lookback is meaningful to callers.
func OBVSeries(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	if len(candles) == 0 {
		return out
	}
	obv := 0.0
	out[0] = 0
	for i := 1; i < len(candles); i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			obv += candles[i].Volume
		case candles[i].Close < candles[i-1].Close:
			obv -= candles[i].Volume
		}
		out[i] = obv
	}
	return out
}

// OBVTrend reports whether OBV has risen or fallen over the last `lookback`
// bars (used by the breakout detector's OBV confirmation).
func OBVTrend(candles []Candle, lookback int) (rising bool, falling bool) {
	series := OBVSeries(candles)
	if len(series) < lookback+1 {
		return false, false
	}
	start := series[len(series)-lookback-1]
	end := series[len(series)-1]
	return end > start, end < start
}

// VWAP computes the cumulative typical-price volume-weighted average price
// over the entire supplied candle window. Callers pass the window they want
// the anchor to start from (e.g. the current session's candles).
func VWAP(candles []Candle) float64 {
	if len(candles) == 0 {
		return NaN
	}
	var pvSum, vSum float64
	for _, c := range candles {
		pvSum += c.TypicalPrice() * c.Volume
		vSum += c.Volume
	}
	if vSum == 0 {
		return NaN
	}
	return pvSum / vSum
}
