package indicator

// Ichimoku holds the components of the Ichimoku Kinko Hyo cloud relevant to
// the Entry Layer's ema_bounce cloud-side bonus.
type Ichimoku struct {
	Tenkan    float64 // conversion line (period1)
	Kijun     float64 // base line (period2)
	SenkouA   float64 // leading span A, projected period2 bars forward
	SenkouB   float64 // leading span B (period3), projected period2 bars forward
	Chikou    float64 // lagging span: the close period2 bars before the latest candle
	AboveCloud bool
	BelowCloud bool
}

// IchimokuCloud computes Ichimoku(period1, period2, period3) — classic
// (9, 26, 52) — against the most recent candle. Senkou spans are evaluated
// at their *current* (unprojected) value since this library deals only with
// the present bar's position relative to the cloud, not a forward-plotted
// chart.
func IchimokuCloud(candles []Candle, period1, period2, period3 int) Ichimoku {
	if len(candles) < period3 {
		return Ichimoku{NaN, NaN, NaN, NaN, NaN, false, false}
	}

	tenkan := midpoint(candles, period1)
	kijun := midpoint(candles, period2)
	senkouA := (tenkan + kijun) / 2
	senkouB := midpoint(candles, period3)

	cloudTop := senkouA
	cloudBottom := senkouB
	if cloudBottom > cloudTop {
		cloudTop, cloudBottom = cloudBottom, cloudTop
	}

	price := candles[len(candles)-1].Close
	var lagged float64 = NaN
	if len(candles) > period2 {
		lagged = candles[len(candles)-1-period2].Close
	}

	return Ichimoku{
		Tenkan:     tenkan,
		Kijun:      kijun,
		SenkouA:    senkouA,
		SenkouB:    senkouB,
		Chikou:     lagged,
		AboveCloud: price > cloudTop,
		BelowCloud: price < cloudBottom,
	}
}

func midpoint(candles []Candle, period int) float64 {
	if len(candles) < period {
		return NaN
	}
	window := candles[len(candles)-period:]
	hi, lo := window[0].High, window[0].Low
	for _, c := range window {
		if c.High > hi {
			hi = c.High
		}
		if c.Low < lo {
			lo = c.Low
		}
	}
	return (hi + lo) / 2
}
