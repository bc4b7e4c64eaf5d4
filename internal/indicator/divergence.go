package indicator

// DivergenceType enumerates the divergence shapes the Entry Layer's
// divergence detector consumes.
type DivergenceType string

const (
	DivergenceNone    DivergenceType = "none"
	DivergenceBullish DivergenceType = "bullish"
	DivergenceBearish DivergenceType = "bearish"
)

// Divergence reports price/oscillator divergence over a lookback window by
// comparing price and oscillator extrema in the first half of the window
// against the second half.
func Divergence(candles []Candle, oscillator []float64, lookback int) DivergenceType {
	if len(candles) < lookback || len(oscillator) < lookback {
		return DivergenceNone
	}
	priceWindow := candles[len(candles)-lookback:]
	oscWindow := oscillator[len(oscillator)-lookback:]

	half := lookback / 2
	if half < 2 {
		return DivergenceNone
	}

	firstPriceLow, firstPriceHigh := priceWindow[0].Low, priceWindow[0].High
	firstOscLow, firstOscHigh := oscWindow[0], oscWindow[0]
	for i := 0; i < half; i++ {
		if priceWindow[i].Low < firstPriceLow {
			firstPriceLow = priceWindow[i].Low
		}
		if priceWindow[i].High > firstPriceHigh {
			firstPriceHigh = priceWindow[i].High
		}
		if IsAvailable(oscWindow[i]) {
			if oscWindow[i] < firstOscLow {
				firstOscLow = oscWindow[i]
			}
			if oscWindow[i] > firstOscHigh {
				firstOscHigh = oscWindow[i]
			}
		}
	}

	secondPriceLow, secondPriceHigh := priceWindow[half].Low, priceWindow[half].High
	secondOscLow, secondOscHigh := oscWindow[half], oscWindow[half]
	for i := half; i < lookback; i++ {
		if priceWindow[i].Low < secondPriceLow {
			secondPriceLow = priceWindow[i].Low
		}
		if priceWindow[i].High > secondPriceHigh {
			secondPriceHigh = priceWindow[i].High
		}
		if IsAvailable(oscWindow[i]) {
			if oscWindow[i] < secondOscLow {
				secondOscLow = oscWindow[i]
			}
			if oscWindow[i] > secondOscHigh {
				secondOscHigh = oscWindow[i]
			}
		}
	}

	// Bullish: price makes a lower low, oscillator makes a higher low.
	if secondPriceLow < firstPriceLow && secondOscLow > firstOscLow {
		return DivergenceBullish
	}
	// Bearish: price makes a higher high, oscillator makes a lower high.
	if secondPriceHigh > firstPriceHigh && secondOscHigh < firstOscHigh {
		return DivergenceBearish
	}
	return DivergenceNone
}
