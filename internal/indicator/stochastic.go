package indicator

// StochasticResult holds the %K/%D pair of the classic price Stochastic
// oscillator.
type StochasticResult struct {
	K float64
	D float64
}

// Stochastic computes the Stochastic oscillator(kPeriod, dPeriod) with %D as
// the true dPeriod-bar SMA of the %K series, not a fixed-ratio
// approximation.
func Stochastic(candles []Candle, kPeriod, dPeriod int) StochasticResult {
	if kPeriod <= 0 || len(candles) < kPeriod+dPeriod-1 {
		return StochasticResult{NaN, NaN}
	}

	kValues := make([]float64, 0, dPeriod)
	total := len(candles)
	for offset := dPeriod - 1; offset >= 0; offset-- {
		end := total - offset
		window := candles[end-kPeriod : end]
		lo, hi := window[0].Low, window[0].High
		for _, c := range window {
			if c.Low < lo {
				lo = c.Low
			}
			if c.High > hi {
				hi = c.High
			}
		}
		k := 50.0
		if hi != lo {
			k = (window[len(window)-1].Close - lo) / (hi - lo) * 100
		}
		kValues = append(kValues, k)
	}

	sum := 0.0
	for _, k := range kValues {
		sum += k
	}
	d := sum / float64(len(kValues))
	return StochasticResult{K: kValues[len(kValues)-1], D: d}
}
