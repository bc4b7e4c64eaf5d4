package indicator

import "math"

// ADXResult holds ADX(14) alongside its +DI/-DI components, required by the
// Direction Layer's DI-ordering vote and the Tradeability
// Layer's ADX scoring shape.
type ADXResult struct {
	ADX     float64
	PlusDI  float64
	MinusDI float64
}

// ADX computes a true Wilder ADX(period) with directional indicators, not
// a fixed-ratio `(priceRange/atr)*25` approximation.
func ADX(candles []Candle, period int) ADXResult {
	if period <= 0 || len(candles) < period*2+1 {
		return ADXResult{NaN, NaN, NaN}
	}

	n := len(candles)
	trs := make([]float64, 0, n-1)
	plusDM := make([]float64, 0, n-1)
	minusDM := make([]float64, 0, n-1)

	for i := 1; i < n; i++ {
		up := candles[i].High - candles[i-1].High
		down := candles[i-1].Low - candles[i].Low

		pdm, mdm := 0.0, 0.0
		if up > down && up > 0 {
			pdm = up
		}
		if down > up && down > 0 {
			mdm = down
		}
		plusDM = append(plusDM, pdm)
		minusDM = append(minusDM, mdm)
		trs = append(trs, trueRange(candles[i], candles[i-1]))
	}

	if len(trs) < period {
		return ADXResult{NaN, NaN, NaN}
	}

	// Wilder smoothing (same recursive scheme as ATR) for TR, +DM, -DM.
	smoothedTR := wilderSmooth(trs, period)
	smoothedPlusDM := wilderSmooth(plusDM, period)
	smoothedMinusDM := wilderSmooth(minusDM, period)

	if len(smoothedTR) == 0 {
		return ADXResult{NaN, NaN, NaN}
	}

	dxSeries := make([]float64, len(smoothedTR))
	plusDI, minusDI := 0.0, 0.0
	for i := range smoothedTR {
		tr := smoothedTR[i]
		pdi, mdi := 0.0, 0.0
		if tr != 0 {
			pdi = smoothedPlusDM[i] / tr * 100
			mdi = smoothedMinusDM[i] / tr * 100
		}
		dxDenom := pdi + mdi
		dx := 0.0
		if dxDenom != 0 {
			dx = math.Abs(pdi-mdi) / dxDenom * 100
		}
		dxSeries[i] = dx
		plusDI, minusDI = pdi, mdi
	}

	if len(dxSeries) < period {
		return ADXResult{NaN, plusDI, minusDI}
	}
	adx := wilderSmooth(dxSeries, period)
	if len(adx) == 0 {
		return ADXResult{NaN, plusDI, minusDI}
	}
	return ADXResult{ADX: adx[len(adx)-1], PlusDI: plusDI, MinusDI: minusDI}
}

// wilderSmooth applies Wilder's recursive smoothing to a raw series,
// seeding with a simple average of the first `period` values and returning
// the smoothed series from that point onward.
func wilderSmooth(series []float64, period int) []float64 {
	if len(series) < period {
		return nil
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += series[i]
	}
	smoothed := sum / float64(period)
	out := make([]float64, 0, len(series)-period+1)
	out = append(out, smoothed)
	for i := period; i < len(series); i++ {
		smoothed = (smoothed*float64(period-1) + series[i]) / float64(period)
		out = append(out, smoothed)
	}
	return out
}
