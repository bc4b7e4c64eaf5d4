// Package entry implements the Entry Layer: breakout, retest,
// divergence, ema_bounce and momentum detectors over the analysis
// timeframe, selecting the single best-scoring setup and applying candle
// confirmation, scoring each candidate setup against this project's
// detector list and scoring bonuses.
package entry

import (
	"fmt"

	"cryptosignals/engine/internal/engine/direction"
	"cryptosignals/engine/internal/indicator"
)

// SetupType names the five setup detectors.
type SetupType string

const (
	SetupBreakout   SetupType = "breakout"
	SetupRetest     SetupType = "retest"
	SetupDivergence SetupType = "divergence"
	SetupEMABounce  SetupType = "ema_bounce"
	SetupMomentum   SetupType = "momentum"
)

// Setup is a fired detector's candidate entry.
type Setup struct {
	Type        SetupType
	Direction   direction.Bias
	EntryPrice  float64
	PatternScore float64
	VolScore    float64
	Reason      string
	KeyLevel    float64
}

// Thresholds mirrors the `entry` config block.
type Thresholds struct {
	BBSqueezeThreshold    float64
	VolumeSpikeRatio      float64
	RetestBufferPct       float64
	RejectionWickRatio    float64
	EMABounceProximityPct float64
	VWAPProximityPct      float64
}

// AllowedSetups is the per-mode whitelist of enabled detectors.
type AllowedSetups map[SetupType]bool

// Inputs bundles the analysis-timeframe indicator readings the detectors
// consume.
type Inputs struct {
	Candles       []indicator.Candle
	Price         float64
	Bias          direction.Bias
	Bollinger     indicator.BollingerBands
	VolumeRatio   float64
	OBVRisingDir  bool // true if OBV last-5 trend rising
	OBVFallingDir bool
	MACDHistogram float64
	RSISeries     []float64
	MACDSeries    []float64
	StochRSI      indicator.StochasticRSIResult
	VWAP          float64
	ADX           float64
	PlusDI        float64
	MinusDI       float64
	RSI           float64
	EMA20         float64
	EMA50         float64
	Ichimoku      indicator.Ichimoku
}

// Result is the Entry Layer's verdict after selection and candle
// confirmation.
type Result struct {
	Setup          *Setup
	AllFired       []Setup
	ConfluenceScore float64
	CandleModifier float64
	Confirmed      bool
	RejectReason   string
}

// Evaluate runs every enabled detector, keeps the best setup, and applies
// candle confirmation.
func Evaluate(in Inputs, th Thresholds, allowed AllowedSetups, candleCtx indicator.CandleContext) Result {
	var fired []Setup

	if allowed[SetupBreakout] {
		if s := detectBreakout(in, th); s != nil {
			fired = append(fired, *s)
		}
	}
	if allowed[SetupRetest] {
		if s := detectRetest(in, th); s != nil {
			fired = append(fired, *s)
		}
	}
	if allowed[SetupDivergence] {
		if s := detectDivergence(in); s != nil {
			fired = append(fired, *s)
		}
	}
	if allowed[SetupEMABounce] {
		if s := detectEMABounce(in, th, candleCtx); s != nil {
			fired = append(fired, *s)
		}
	}
	if allowed[SetupMomentum] {
		if s := detectMomentum(in); s != nil {
			fired = append(fired, *s)
		}
	}

	if len(fired) == 0 {
		return Result{RejectReason: "no setup detected"}
	}

	best := fired[0]
	for _, s := range fired[1:] {
		if s.PatternScore+s.VolScore > best.PatternScore+best.VolScore {
			best = s
		}
	}

	confluence := confluenceScore(len(fired))

	res := Result{
		Setup:           &best,
		AllFired:        fired,
		ConfluenceScore: confluence,
	}

	modifier, confirmed, reason := confirmCandle(best, candleCtx)
	res.CandleModifier = modifier
	res.Confirmed = confirmed
	if !confirmed {
		res.RejectReason = reason
	}
	return res
}

func confluenceScore(fired int) float64 {
	switch {
	case fired >= 3:
		return 25
	case fired == 2:
		return 15
	case fired == 1:
		return 5
	default:
		return 0
	}
}

func biasMatches(bias direction.Bias, setupDir direction.Bias) bool {
	return bias == direction.BiasNeutral || bias == setupDir
}

func detectBreakout(in Inputs, th Thresholds) *Setup {
	if in.Bollinger.Bandwidth > th.BBSqueezeThreshold {
		return nil
	}
	if in.VolumeRatio < th.VolumeSpikeRatio {
		return nil
	}

	var dir direction.Bias
	var keyLevel float64
	switch {
	case in.Price > in.Bollinger.Upper:
		dir, keyLevel = direction.BiasLong, in.Bollinger.Upper
	case in.Price < in.Bollinger.Lower:
		dir, keyLevel = direction.BiasShort, in.Bollinger.Lower
	default:
		return nil
	}
	if !biasMatches(in.Bias, dir) {
		return nil
	}

	patternScore := 50.0
	if dir == direction.BiasLong && in.OBVRisingDir {
		patternScore += 5
	}
	if dir == direction.BiasShort && in.OBVFallingDir {
		patternScore += 5
	}
	if dir == direction.BiasLong && in.MACDHistogram > 0 {
		patternScore += 5
	}
	if dir == direction.BiasShort && in.MACDHistogram < 0 {
		patternScore += 5
	}

	return &Setup{
		Type:         SetupBreakout,
		Direction:    dir,
		EntryPrice:   in.Price,
		PatternScore: patternScore,
		VolScore:     volScoreFromRatio(in.VolumeRatio),
		Reason:       fmt.Sprintf("bb squeeze breakout beyond %v", keyLevel),
		KeyLevel:     keyLevel,
	}
}

func detectRetest(in Inputs, th Thresholds) *Setup {
	n := len(in.Candles)
	if n < 21 {
		return nil
	}
	window := in.Candles[n-21 : n-1]
	lo, hi := window[0].Low, window[0].High
	for _, c := range window {
		if c.Low < lo {
			lo = c.Low
		}
		if c.High > hi {
			hi = c.High
		}
	}

	last := in.Candles[n-1]
	body := last.Body()
	if body == 0 {
		return nil
	}

	var dir direction.Bias
	var keyLevel float64
	lowBuffer := lo * (1 + th.RetestBufferPct/100)
	highBuffer := hi * (1 - th.RetestBufferPct/100)

	switch {
	case in.Price <= lowBuffer && last.LowerWick() > th.RejectionWickRatio*body:
		dir, keyLevel = direction.BiasLong, lo
	case in.Price >= highBuffer && last.UpperWick() > th.RejectionWickRatio*body:
		dir, keyLevel = direction.BiasShort, hi
	default:
		return nil
	}
	if !biasMatches(in.Bias, dir) {
		return nil
	}

	patternScore := 50.0
	if dir == direction.BiasLong && in.StochRSI.K < 20 {
		patternScore += 5
	}
	if dir == direction.BiasShort && in.StochRSI.K > 80 {
		patternScore += 5
	}
	if in.VWAP > 0 {
		proximity := (in.Price - in.VWAP) / in.VWAP
		if proximity < 0 {
			proximity = -proximity
		}
		if proximity*100 <= th.VWAPProximityPct {
			patternScore += 5
		}
	}

	return &Setup{
		Type:         SetupRetest,
		Direction:    dir,
		EntryPrice:   in.Price,
		PatternScore: patternScore,
		VolScore:     volScoreFromRatio(in.VolumeRatio),
		Reason:       fmt.Sprintf("retest of level %v with rejection wick", keyLevel),
		KeyLevel:     keyLevel,
	}
}

func detectDivergence(in Inputs) *Setup {
	rsiDiv := indicator.Divergence(in.Candles, in.RSISeries, 20)
	macdDiv := indicator.Divergence(in.Candles, in.MACDSeries, 20)

	var dir direction.Bias
	switch {
	case rsiDiv == indicator.DivergenceBullish || macdDiv == indicator.DivergenceBullish:
		dir = direction.BiasLong
	case rsiDiv == indicator.DivergenceBearish || macdDiv == indicator.DivergenceBearish:
		dir = direction.BiasShort
	default:
		return nil
	}
	if !biasMatches(in.Bias, dir) {
		return nil
	}

	patternScore := 50.0
	double := false
	if dir == direction.BiasLong && rsiDiv == indicator.DivergenceBullish && macdDiv == indicator.DivergenceBullish {
		double = true
	}
	if dir == direction.BiasShort && rsiDiv == indicator.DivergenceBearish && macdDiv == indicator.DivergenceBearish {
		double = true
	}
	if double {
		patternScore += 8
	}

	return &Setup{
		Type:         SetupDivergence,
		Direction:    dir,
		EntryPrice:   in.Price,
		PatternScore: patternScore,
		VolScore:     volScoreFromRatio(in.VolumeRatio),
		Reason:       "rsi/macd divergence",
	}
}

func detectEMABounce(in Inputs, th Thresholds, ctx indicator.CandleContext) *Setup {
	if in.EMA20 == 0 {
		return nil
	}
	proximity := (in.Price - in.EMA20) / in.EMA20
	if proximity < 0 {
		proximity = -proximity
	}
	if proximity*100 > th.EMABounceProximityPct {
		return nil
	}

	var dir direction.Bias
	switch {
	case in.EMA20 > in.EMA50:
		dir = direction.BiasLong
	case in.EMA20 < in.EMA50:
		dir = direction.BiasShort
	default:
		return nil
	}
	if !biasMatches(in.Bias, dir) {
		return nil
	}

	confirmingPattern := false
	if dir == direction.BiasLong && (ctx.Pattern.Type == indicator.PatternEngulfingBull || ctx.Pattern.Type == indicator.PatternPinBarBull) {
		confirmingPattern = true
	}
	if dir == direction.BiasShort && (ctx.Pattern.Type == indicator.PatternEngulfingBear || ctx.Pattern.Type == indicator.PatternPinBarBear) {
		confirmingPattern = true
	}
	if !confirmingPattern {
		return nil
	}

	patternScore := 50.0
	if dir == direction.BiasLong && in.Ichimoku.AboveCloud {
		patternScore += 5
	}
	if dir == direction.BiasShort && in.Ichimoku.BelowCloud {
		patternScore += 5
	}
	if in.VWAP > 0 {
		vwapProximity := (in.Price - in.VWAP) / in.VWAP
		if vwapProximity < 0 {
			vwapProximity = -vwapProximity
		}
		if vwapProximity*100 <= th.VWAPProximityPct {
			patternScore += 5
		}
	}

	return &Setup{
		Type:         SetupEMABounce,
		Direction:    dir,
		EntryPrice:   in.Price,
		PatternScore: patternScore,
		VolScore:     volScoreFromRatio(in.VolumeRatio),
		Reason:       "ema20 bounce with confirming candle",
	}
}

func detectMomentum(in Inputs) *Setup {
	if in.ADX < 20 {
		return nil
	}
	extremeLong := in.RSI < 35
	extremeShort := in.RSI > 65
	if !extremeLong && !extremeShort {
		return nil
	}

	var dir direction.Bias
	switch {
	case extremeShort && in.PlusDI > in.MinusDI && in.Price > in.EMA20 && in.Price > in.EMA50:
		dir = direction.BiasLong
	case extremeLong && in.MinusDI > in.PlusDI && in.Price < in.EMA20 && in.Price < in.EMA50:
		dir = direction.BiasShort
	default:
		return nil
	}
	if !biasMatches(in.Bias, dir) {
		return nil
	}

	patternScore := 50.0
	if in.RSI > 70 || in.RSI < 30 {
		patternScore += 5
	}
	if in.ADX >= 30 {
		patternScore += 5
	}
	if dir == direction.BiasLong && in.MACDHistogram > 0 {
		patternScore += 5
	}
	if dir == direction.BiasShort && in.MACDHistogram < 0 {
		patternScore += 5
	}

	return &Setup{
		Type:         SetupMomentum,
		Direction:    dir,
		EntryPrice:   in.Price,
		PatternScore: patternScore,
		VolScore:     volScoreFromRatio(in.VolumeRatio),
		Reason:       "adx/rsi momentum alignment",
	}
}

func volScoreFromRatio(ratio float64) float64 {
	score := (ratio - 1.0) * 10
	if score < 0 {
		return 0
	}
	if score > 20 {
		return 20
	}
	return score
}

// confirmCandle applies the candle confirmation step. A big
// opposite-color candle straddling the price rejects the entry outright;
// otherwise a modifier in [-15,+8] is applied.
func confirmCandle(s Setup, ctx indicator.CandleContext) (modifier float64, confirmed bool, rejectReason string) {
	if s.Direction == direction.BiasLong && ctx.BigCandleResistance {
		return 0, false, "big opposite-color candle resistance straddles entry"
	}
	if s.Direction == direction.BiasShort && ctx.BigCandleSupport {
		return 0, false, "big opposite-color candle support straddles entry"
	}

	mod := 0.0

	confirming := (s.Direction == direction.BiasLong && (ctx.Pattern.Direction == "bullish")) ||
		(s.Direction == direction.BiasShort && (ctx.Pattern.Direction == "bearish"))
	contradictory := (s.Direction == direction.BiasLong && ctx.Pattern.Direction == "bearish") ||
		(s.Direction == direction.BiasShort && ctx.Pattern.Direction == "bullish")

	switch {
	case confirming && (ctx.Pattern.Type == indicator.PatternEngulfingBull ||
		ctx.Pattern.Type == indicator.PatternEngulfingBear ||
		ctx.Pattern.Type == indicator.PatternHammer ||
		ctx.Pattern.Type == indicator.PatternShootingStar):
		mod += 8
	case contradictory:
		mod -= 15
	}

	strongAgainst := (s.Direction == direction.BiasLong && ctx.LastDirection == "bearish" && ctx.BodyRatio > 0.6) ||
		(s.Direction == direction.BiasShort && ctx.LastDirection == "bullish" && ctx.BodyRatio > 0.6)
	if strongAgainst {
		mod -= 10
	}

	if ctx.Pattern.Type == indicator.PatternDoji {
		mod -= 5
	}

	oppositeDir := "bearish"
	if s.Direction == direction.BiasShort {
		oppositeDir = "bullish"
	}
	if ctx.ConsecutiveCount >= 3 && ctx.LastDirection == oppositeDir {
		mod -= 10
	}

	if mod < -15 {
		mod = -15
	}
	if mod > 8 {
		mod = 8
	}
	return mod, true, ""
}
