package indicator

import (
	"math"
	"testing"
)

func makeTrendingCandles(n int, start, step float64) []Candle {
	candles := make([]Candle, n)
	price := start
	for i := 0; i < n; i++ {
		open := price
		close := price + step
		hi := math.Max(open, close) + 0.1
		lo := math.Min(open, close) - 0.1
		candles[i] = Candle{
			OpenTime: int64(i), CloseTime: int64(i + 1),
			Open: open, High: hi, Low: lo, Close: close, Volume: 100 + float64(i),
		}
		price = close
	}
	return candles
}

func TestRSI_InsufficientHistoryReturnsNaN(t *testing.T) {
	candles := makeTrendingCandles(5, 100, 1)
	if v := RSI(candles, 14); !math.IsNaN(v) {
		t.Fatalf("expected NaN on insufficient history, got %v", v)
	}
}

func TestRSI_StrongUptrendIsOverbought(t *testing.T) {
	candles := makeTrendingCandles(30, 100, 1)
	v := RSI(candles, 14)
	if math.IsNaN(v) {
		t.Fatalf("expected a value, got NaN")
	}
	if v < 90 {
		t.Fatalf("expected RSI near 100 for a pure uptrend, got %v", v)
	}
}

func TestMACD_SignalLineIsNotAConstantFractionOfMACD(t *testing.T) {
	candles := makeTrendingCandles(60, 100, 0.3)
	result := MACD(candles, 12, 26, 9)
	if math.IsNaN(result.MACD) || math.IsNaN(result.Signal) {
		t.Fatalf("expected MACD/Signal to be available, got %+v", result)
	}
	// A simplified signal line would use signal = macd*0.8 exactly;
	// assert we are NOT doing that.
	if math.Abs(result.Signal-result.MACD*0.8) < 1e-9 {
		t.Fatalf("signal line looks like the naive macd*0.8 approximation")
	}
}

func TestADX_TrendingSeriesHasStrongPlusDI(t *testing.T) {
	candles := makeTrendingCandles(60, 100, 1)
	result := ADX(candles, 14)
	if math.IsNaN(result.ADX) {
		t.Fatalf("expected ADX value, got NaN")
	}
	if result.PlusDI <= result.MinusDI {
		t.Fatalf("expected +DI > -DI in an uptrend, got +DI=%v -DI=%v", result.PlusDI, result.MinusDI)
	}
}

func TestStochastic_DIsSMAOfK(t *testing.T) {
	candles := makeTrendingCandles(30, 100, 1)
	result := Stochastic(candles, 14, 3)
	if math.IsNaN(result.D) {
		t.Fatalf("expected %%D to be available")
	}
	if math.Abs(result.D-result.K*0.9) < 1e-9 {
		t.Fatalf("%%D looks like the naive K*0.9 approximation")
	}
}

func TestBollinger_SqueezeDetected(t *testing.T) {
	candles := make([]Candle, 25)
	for i := range candles {
		candles[i] = Candle{Open: 100, High: 100.2, Low: 99.8, Close: 100, Volume: 10}
	}
	bb := Bollinger(candles, 20, 2)
	if bb.Bandwidth > 1.0 {
		t.Fatalf("expected a tight bandwidth for flat candles, got %v", bb.Bandwidth)
	}
}

func TestDetectCandlePattern_BullishEngulfing(t *testing.T) {
	candles := []Candle{
		{Open: 100, Close: 98, High: 100.2, Low: 97.8},
		{Open: 97.5, Close: 101, High: 101.2, Low: 97.3},
	}
	p := DetectCandlePattern(candles)
	if p.Type != PatternEngulfingBull {
		t.Fatalf("expected bullish engulfing, got %v", p.Type)
	}
}

func TestDeriveCandleContext_BigCandleResistance(t *testing.T) {
	candles := makeTrendingCandles(20, 100, 0.05)
	// Insert one large bearish candle straddling price=105.
	candles = append(candles, Candle{Open: 110, Close: 100, High: 110.1, Low: 99.9, Volume: 500})
	ctx := DeriveCandleContext(candles, 20, 105)
	if !ctx.BigCandleResistance {
		t.Fatalf("expected big candle resistance at price=105")
	}
}
