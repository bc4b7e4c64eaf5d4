package indicator

// RSISeries computes the Wilder-smoothed Relative Strength Index over the
// whole candle series: a simple average gain/loss seeds the first `period`
// window, then every subsequent bar is folded in with Wilder's recursive
// smoothing (avg = (avg*(period-1) + new) / period) rather than a fresh
// simple average per bar over just the single most-recent window; this
// fixes that while keeping the same function-over-candles shape.
func RSISeries(candles []Candle, period int) []float64 {
	out := make([]float64, len(candles))
	for i := range out {
		out[i] = NaN
	}
	if period <= 0 || len(candles) < period+1 {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiFromAvg(avgGain, avgLoss)

	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFromAvg(avgGain, avgLoss)
	}
	return out
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0
		}
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// RSI returns the most recent Wilder RSI(period) value, or NaN on
// insufficient history.
func RSI(candles []Candle, period int) float64 {
	series := RSISeries(candles, period)
	if len(series) == 0 {
		return NaN
	}
	return series[len(series)-1]
}

// StochasticRSIResult holds the %K/%D pair of the Stochastic-RSI oscillator.
type StochasticRSIResult struct {
	K float64
	D float64
}

// StochasticRSI computes Stochastic-RSI(rsiPeriod, kPeriod, dPeriod): the
// Stochastic oscillator applied to the RSI series itself rather than to
// price, with %D as the dPeriod-bar SMA of %K (not an approximation).
func StochasticRSI(candles []Candle, rsiPeriod, kPeriod, dPeriod int) StochasticRSIResult {
	rsiSeries := RSISeries(candles, rsiPeriod)
	firstValid := -1
	for i, v := range rsiSeries {
		if IsAvailable(v) {
			firstValid = i
			break
		}
	}
	if firstValid < 0 {
		return StochasticRSIResult{NaN, NaN}
	}
	valid := rsiSeries[firstValid:]
	if len(valid) < kPeriod {
		return StochasticRSIResult{NaN, NaN}
	}

	kValues := make([]float64, 0, len(valid)-kPeriod+1)
	for i := kPeriod - 1; i < len(valid); i++ {
		window := valid[i-kPeriod+1 : i+1]
		lo, hi := window[0], window[0]
		for _, v := range window {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		k := 50.0
		if hi != lo {
			k = (window[len(window)-1] - lo) / (hi - lo) * 100
		}
		kValues = append(kValues, k)
	}
	if len(kValues) == 0 {
		return StochasticRSIResult{NaN, NaN}
	}
	lastK := kValues[len(kValues)-1]
	if len(kValues) < dPeriod {
		return StochasticRSIResult{lastK, NaN}
	}
	sum := 0.0
	for _, v := range kValues[len(kValues)-dPeriod:] {
		sum += v
	}
	return StochasticRSIResult{lastK, sum / float64(dPeriod)}
}
