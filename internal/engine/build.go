package engine

import (
	"cryptosignals/engine/internal/engine/direction"
	"cryptosignals/engine/internal/engine/entry"
	"cryptosignals/engine/internal/engine/tradeability"
	"cryptosignals/engine/internal/indicator"
)

func buildTradeabilityInputs(req Request) tradeability.Inputs {
	candles := req.AnalysisCandles
	atr := indicator.ATR(candles, 14)
	meanATR := indicator.ATR(candles, 50)
	adx := indicator.ADX(candles, 14)

	in := tradeability.Inputs{
		ATR:         valueOrZero(atr),
		MeanATR:     valueOrZero(meanATR),
		Volume:      lastVolume(candles),
		MeanVolume:  meanVolume(candles, 20),
		FundingRate: req.FundingRate,
		OIChangePct: req.OIChangePct,
		ADX:         valueOrZero(adx.ADX),
	}

	if req.OrderBook != nil {
		in.HasOrderBook = true
		in.SpreadPct = req.OrderBook.SpreadPct
	}
	if req.HasOrderFlow {
		in.HasOrderFlow = true
		in.OrderFlowRatio = req.OrderFlowRatio
	}
	return in
}

func buildDirectionInputs(req Request) direction.Inputs {
	candles := req.FilterCandles
	price := lastClose(candles)
	macd := indicator.MACD(candles, 12, 26, 9)
	adx := indicator.ADX(candles, 14)
	structure := indicator.DetectMarketStructure(candles, 20)

	return direction.Inputs{
		Price:         price,
		EMA20:         valueOrZero(indicator.EMA(candles, 20)),
		EMA50:         valueOrZero(indicator.EMA(candles, 50)),
		EMA200:        valueOrZero(indicator.EMA(candles, 200)),
		RSI:           valueOrZero(indicator.RSI(candles, 14)),
		MACDHistogram: valueOrZero(macd.Histogram),
		ADX:           valueOrZero(adx.ADX),
		PlusDI:        valueOrZero(adx.PlusDI),
		MinusDI:       valueOrZero(adx.MinusDI),
		Structure:     structure,
	}
}

func buildEntryInputs(req Request, bias direction.Bias) entry.Inputs {
	candles := req.AnalysisCandles
	price := lastClose(candles)
	bb := indicator.Bollinger(candles, 20, 2)
	macd := indicator.MACD(candles, 12, 26, 9)
	adx := indicator.ADX(candles, 14)
	rising, falling := indicator.OBVTrend(candles, 5)
	stochRSI := indicator.StochasticRSI(candles, 14, 3, 3)
	ichimoku := indicator.IchimokuCloud(candles, 9, 26, 52)

	return entry.Inputs{
		Candles:       candles,
		Price:         price,
		Bias:          bias,
		Bollinger:     bb,
		VolumeRatio:   volumeRatio(candles, 20),
		OBVRisingDir:  rising,
		OBVFallingDir: falling,
		MACDHistogram: valueOrZero(macd.Histogram),
		RSISeries:     indicator.RSISeries(candles, 14),
		MACDSeries:    macdLineSeries(candles, 12, 26),
		StochRSI:      stochRSI,
		VWAP:          indicator.VWAP(candles),
		ADX:           valueOrZero(adx.ADX),
		PlusDI:        valueOrZero(adx.PlusDI),
		MinusDI:       valueOrZero(adx.MinusDI),
		RSI:           valueOrZero(indicator.RSI(candles, 14)),
		EMA20:         valueOrZero(indicator.EMA(candles, 20)),
		EMA50:         valueOrZero(indicator.EMA(candles, 50)),
		Ichimoku:      ichimoku,
	}
}

func regimeInputs(req Request, tIn tradeability.Inputs) RegimeInputs {
	bb := indicator.Bollinger(req.AnalysisCandles, 20, 2)
	ratio := 1.0
	if tIn.MeanATR > 0 {
		ratio = tIn.ATR / tIn.MeanATR
	}
	return RegimeInputs{
		ADX:         tIn.ADX,
		BBBandwidth: valueOrZero(bb.Bandwidth),
		ATRRatio:    ratio,
	}
}

func mtfInputs(req Request, dRes direction.Result) MTFInputs {
	analysisStructure := indicator.DetectMarketStructure(req.AnalysisCandles, 20)
	analysisRSI := indicator.RSI(req.AnalysisCandles, 14)
	analysisADX := indicator.ADX(req.AnalysisCandles, 14)
	filterADX := indicator.ADX(req.FilterCandles, 14)

	return MTFInputs{
		AnalysisStructure:   analysisStructure.Trend,
		FilterStructure:     indicator.DetectMarketStructure(req.FilterCandles, 20).Trend,
		AnalysisRSI:         valueOrZero(analysisRSI),
		FilterRSI:           valueOrZero(indicator.RSI(req.FilterCandles, 14)),
		AnalysisADXTrending: valueOrZero(analysisADX.ADX) >= 20,
		FilterADXTrending:   valueOrZero(filterADX.ADX) >= 20,
		Direction:           toEngineDirection(dRes.Bias),
	}
}

func valueOrZero(v float64) float64 {
	if !indicator.IsAvailable(v) {
		return 0
	}
	return v
}

func lastClose(candles []indicator.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Close
}

func lastVolume(candles []indicator.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Volume
}

func meanVolume(candles []indicator.Candle, lookback int) float64 {
	n := len(candles)
	if n == 0 {
		return 0
	}
	if lookback > n {
		lookback = n
	}
	sum := 0.0
	for _, c := range candles[n-lookback:] {
		sum += c.Volume
	}
	return sum / float64(lookback)
}

func volumeRatio(candles []indicator.Candle, lookback int) float64 {
	mean := meanVolume(candles, lookback)
	if mean == 0 {
		return 0
	}
	return lastVolume(candles) / mean
}

// macdLineSeries rebuilds the raw MACD-line history (fast EMA - slow EMA)
// for use as a divergence oscillator, since
// indicator.MACD only returns the final {macd,signal,histogram} triple.
func macdLineSeries(candles []indicator.Candle, fastPeriod, slowPeriod int) []float64 {
	fast := indicator.EMASeries(candles, fastPeriod)
	slow := indicator.EMASeries(candles, slowPeriod)
	out := make([]float64, len(candles))
	for i := range candles {
		if i < len(fast) && i < len(slow) && indicator.IsAvailable(fast[i]) && indicator.IsAvailable(slow[i]) {
			out[i] = fast[i] - slow[i]
		} else {
			out[i] = indicator.NaN
		}
	}
	return out
}
