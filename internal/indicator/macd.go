package indicator

// MACDResult holds the MACD line, its signal line and the histogram
// (MACD - signal).
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD computes MACD(fastPeriod, slowPeriod, signalPeriod) with a true
// EMA-smoothed signal line built from the actual MACD-line history, not a
// fixed-ratio literal approximation.
func MACD(candles []Candle, fastPeriod, slowPeriod, signalPeriod int) MACDResult {
	if len(candles) < slowPeriod+signalPeriod {
		return MACDResult{NaN, NaN, NaN}
	}

	fastSeries := EMASeries(candles, fastPeriod)
	slowSeries := EMASeries(candles, slowPeriod)

	start := slowPeriod - 1
	macdSeries := make([]float64, 0, len(candles)-start)
	for i := start; i < len(candles); i++ {
		if !IsAvailable(fastSeries[i]) || !IsAvailable(slowSeries[i]) {
			continue
		}
		macdSeries = append(macdSeries, fastSeries[i]-slowSeries[i])
	}
	if len(macdSeries) < signalPeriod {
		return MACDResult{NaN, NaN, NaN}
	}

	signal := emaOfSeries(macdSeries, signalPeriod)
	macdLine := macdSeries[len(macdSeries)-1]
	return MACDResult{
		MACD:      macdLine,
		Signal:    signal,
		Histogram: macdLine - signal,
	}
}

// emaOfSeries computes the trailing EMA(period) of an arbitrary float
// series, seeded by a simple average of its first `period` values.
func emaOfSeries(series []float64, period int) float64 {
	if len(series) < period {
		return NaN
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += series[i]
	}
	ema := sum / float64(period)
	mult := 2.0 / float64(period+1)
	for i := period; i < len(series); i++ {
		ema = (series[i]-ema)*mult + ema
	}
	return ema
}
