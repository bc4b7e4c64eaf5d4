package engine

import (
	"context"
	"fmt"
	"time"

	"cryptosignals/engine/internal/engine/direction"
	"cryptosignals/engine/internal/engine/entry"
	"cryptosignals/engine/internal/engine/risk"
	"cryptosignals/engine/internal/engine/tradeability"
	"cryptosignals/engine/internal/indicator"
	"cryptosignals/engine/internal/logging"
	"cryptosignals/engine/internal/marketdata"
	"cryptosignals/engine/internal/sentiment"
)

// SentimentSource is the narrow slice of *sentiment.Provider the Signal
// Engine consumes.
type SentimentSource interface {
	Current(ctx context.Context) sentiment.Score
}

// SetupDisabler reports whether the (legacy) trade_learner has disabled a
// setup type for a (symbol, mode) pair.
type SetupDisabler interface {
	IsDisabled(ctx context.Context, botVersion BotVersion, symbol string, mode Mode, setupType string) bool
}

// LearningDimensions is the key the Adaptive Learner scores against
//.
type LearningDimensions struct {
	SetupType     string
	Symbol        string
	Mode          Mode
	Regime        string
	HourUTC       int
	ScoreRange    string
	Direction     Direction
	MTFConfluence string // "negative" | "zero" | "positive"
}

// LearningModifier is the V4 Adaptive Learner's signal-scoring hook
//.
type LearningModifier interface {
	ScoreModifier(ctx context.Context, botVersion BotVersion, dims LearningDimensions) (modifier float64, reasons []string)
}

// Engine ties the Tradeability, Direction, Entry and Risk layers together
// with the Sentiment Provider and (V4 only) the Adaptive Learner, per bot
// instance. Grounded on internal/autopilot/controller.go's
// Controller.evaluateSymbol orchestration shape.
type Engine struct {
	configs   map[configKey]LayerConfig
	sentiment SentimentSource
	disabler  SetupDisabler
	learner   LearningModifier
	log       *logging.Logger
}

type configKey struct {
	bot  BotVersion
	mode Mode
}

func New(sentimentSource SentimentSource, disabler SetupDisabler, learner LearningModifier, log *logging.Logger) *Engine {
	return &Engine{
		configs:   make(map[configKey]LayerConfig),
		sentiment: sentimentSource,
		disabler:  disabler,
		learner:   learner,
		log:       log,
	}
}

// SetConfig registers the layer configuration for one (bot, mode) pair.
func (e *Engine) SetConfig(bot BotVersion, mode Mode, cfg LayerConfig) {
	e.configs[configKey{bot, mode}] = cfg
}

// Request bundles the already-fetched market data the Scanner hands to
// one Signal Engine analysis.
type Request struct {
	Symbol          string
	Mode            Mode
	BotVersion      BotVersion
	AnalysisCandles []indicator.Candle
	FilterCandles   []indicator.Candle
	OrderBook       *marketdata.OrderBookMetrics
	FundingRate     float64
	OIChangePct     float64
	OrderFlowRatio  float64
	HasOrderFlow    bool
	Now             time.Time
}

// Analyze runs one full Signal Engine pass for (symbol, mode, bot_version)
// through the tradeability, direction, entry and risk layers in sequence.
func (e *Engine) Analyze(ctx context.Context, req Request) Signal {
	cfg, ok := e.configs[configKey{req.BotVersion, req.Mode}]
	if !ok {
		return NoTrade(req.Symbol, req.Mode, req.BotVersion, "no mode config registered", 0)
	}

	if len(req.AnalysisCandles) == 0 || len(req.FilterCandles) == 0 {
		return NoTrade(req.Symbol, req.Mode, req.BotVersion, "missing market data timeframe", 0)
	}

	// Step 2: Tradeability on analysis timeframe.
	tIn := buildTradeabilityInputs(req)
	tRes := tradeability.Evaluate(tIn, cfg.Tradeability, cfg.TradeabilityWeights, cfg.TradeabilityMinScore)
	if !tRes.Tradable {
		reason := tRes.KillReason
		if reason == "" {
			reason = fmt.Sprintf("tradeability score %.3f below min %.3f", tRes.Score, cfg.TradeabilityMinScore)
		}
		return NoTrade(req.Symbol, req.Mode, req.BotVersion, reason, tRes.Score)
	}

	// Step 3: Direction on filter timeframe.
	dIn := buildDirectionInputs(req)
	dRes := direction.Evaluate(dIn, cfg.Direction, req.Mode == ModeSwing && cfg.SwingRejectNeutral)
	if req.Mode == ModeSwing && cfg.SwingRejectNeutral && dRes.Bias == direction.BiasNeutral {
		return NoTrade(req.Symbol, req.Mode, req.BotVersion, "swing mode rejects neutral direction bias", tRes.Score)
	}

	isV4 := req.BotVersion == BotV4

	// Step 4: V4-only regime and MTF confluence.
	var regimeResult RegimeResult
	var mtf float64
	if isV4 {
		regimeResult = ClassifyRegime(regimeInputs(req, tIn))
		mtf = MTFConfluence(mtfInputs(req, dRes))
	}

	// Step 5: remove disabled setup types before selection.
	allowed := cfg.AllowedSetups
	if e.disabler != nil {
		allowed = make(entry.AllowedSetups, len(cfg.AllowedSetups))
		for setupType, ok := range cfg.AllowedSetups {
			if !ok {
				continue
			}
			if e.disabler.IsDisabled(ctx, req.BotVersion, req.Symbol, req.Mode, string(setupType)) {
				continue
			}
			allowed[setupType] = true
		}
	}

	eIn := buildEntryInputs(req, dRes.Bias)
	candleCtx := indicator.DeriveCandleContext(req.AnalysisCandles, 20, eIn.Price)

	// Step 6: Entry detection.
	eRes := entry.Evaluate(eIn, cfg.Entry, allowed, candleCtx)
	if eRes.Setup == nil {
		return NoTrade(req.Symbol, req.Mode, req.BotVersion, eRes.RejectReason, tRes.Score)
	}

	// Step 7: Candle confirmation.
	if !eRes.Confirmed {
		return NoTrade(req.Symbol, req.Mode, req.BotVersion, eRes.RejectReason, tRes.Score)
	}

	directionScore := dRes.Score

	// Step 8: Sentiment multiplier.
	var sentimentScore sentiment.Score
	if e.sentiment != nil {
		sentimentScore = e.sentiment.Current(ctx)
	}
	multiplier := sentiment.SentimentMultiplier(sentimentScore, string(eRes.Setup.Direction))
	directionScore *= multiplier
	if directionScore > 100 {
		directionScore = 100
	}

	// Step 9: Risk calculation.
	rIn := risk.Inputs{
		EntryPrice: eRes.Setup.EntryPrice,
		Direction:  eRes.Setup.Direction,
		ATR:        tIn.ATR,
	}
	rRes := risk.Calculate(rIn, cfg.Risk)

	// Step 10: setup score.
	setupScore := eRes.Setup.PatternScore + eRes.Setup.VolScore + rRes.RRRatio*10 + eRes.ConfluenceScore + eRes.CandleModifier
	var regimeModifier float64
	if isV4 {
		regimeModifier = regimeScoreModifier(regimeResult, eRes.Setup.Direction)
		setupScore += regimeModifier
	}

	normalizedSentiment := (sentimentScore.Value + 100) / 2

	baseScore := cfg.ScoreWeights.Tradeability*tRes.Score*100 +
		cfg.ScoreWeights.Direction*directionScore +
		cfg.ScoreWeights.Setup*setupScore +
		cfg.ScoreWeights.Sentiment*normalizedSentiment

	hourUTC := req.Now.UTC().Hour()
	finalScore := baseScore
	var vwapModifier, learningModifier float64
	var learningReasons []string

	if isV4 {
		// Step 12: gate on base_score before modifiers.
		if baseScore < cfg.FinalMinScore {
			return NoTrade(req.Symbol, req.Mode, req.BotVersion, "v4 base score below min_score before modifiers", tRes.Score)
		}

		vwapModifier = vwapScoreModifier(req, eRes.Setup, cfg)
		finalScore += mtf + vwapModifier

		if e.learner != nil {
			dims := LearningDimensions{
				SetupType:     string(eRes.Setup.Type),
				Symbol:        req.Symbol,
				Mode:          req.Mode,
				Regime:        string(regimeResult.Regime),
				HourUTC:       hourUTC,
				ScoreRange:    scoreRangeBucket(finalScore),
				Direction:     toEngineDirection(eRes.Setup.Direction),
				MTFConfluence: confluenceBucket(mtf),
			}
			learningModifier, learningReasons = e.learner.ScoreModifier(ctx, req.BotVersion, dims)
			finalScore += learningModifier
		}

		if finalScore > 100 {
			finalScore = 100
		}
		if finalScore < 0 {
			finalScore = 0
		}
		if finalScore < cfg.FinalMinScore {
			return NoTrade(req.Symbol, req.Mode, req.BotVersion, "v4 final score below min_score after modifiers", tRes.Score)
		}
	} else {
		if finalScore > 100 {
			finalScore = 100
		}
		if finalScore < 0 {
			finalScore = 0
		}
		if finalScore < cfg.FinalMinScore {
			return NoTrade(req.Symbol, req.Mode, req.BotVersion, "final score below min_score", tRes.Score)
		}
	}

	sig := Signal{
		Type:              SignalTypeSignal,
		Symbol:            req.Symbol,
		Mode:              req.Mode,
		BotVersion:        req.BotVersion,
		Direction:         toEngineDirection(eRes.Setup.Direction),
		Score:             finalScore,
		EntryPrice:        eRes.Setup.EntryPrice,
		StopLoss:          rRes.StopLoss,
		TP1:               rRes.TP1,
		TP2:               rRes.TP2,
		TP3:               rRes.TP3,
		TP1ClosePct:       rRes.TP1ClosePct,
		TP2ClosePct:       rRes.TP2ClosePct,
		TP3ClosePct:       rRes.TP3ClosePct,
		SetupType:         string(eRes.Setup.Type),
		Leverage:          rRes.Leverage,
		RRRatio:           rRes.RRRatio,
		TradeabilityScore: tRes.Score,
		DirectionScore:    directionScore,
		SetupScore:        setupScore,
		SentimentScore:    sentimentScore.Value,
		Reasons:           append(append([]string{eRes.Setup.Reason}, dRes.Reasons...), learningReasons...),
		HourUTC:           hourUTC,
		CreatedAt:         req.Now,
	}

	if isV4 {
		sig.V4 = &V4SignalExtras{
			Regime:            string(regimeResult.Regime),
			RegimeConfidence:  regimeResult.Confidence,
			MTFConfluence:     mtf,
			VWAPModifier:      vwapModifier,
			LearningModifier:  learningModifier,
			LearningReasons:   learningReasons,
			IndicatorSnapshot: indicatorSnapshot(tIn, dIn),
			CandlePattern:     string(candleCtx.Pattern.Type),
			EntryATR:          tIn.ATR,
		}
	}

	return sig
}

func toEngineDirection(d direction.Bias) Direction {
	switch d {
	case direction.BiasLong:
		return DirectionLong
	case direction.BiasShort:
		return DirectionShort
	default:
		return DirectionNone
	}
}

func regimeScoreModifier(r RegimeResult, dir direction.Bias) float64 {
	switch r.Regime {
	case RegimeTrending:
		return 5 * r.Confidence
	case RegimeVolatile:
		return -5 * r.Confidence
	default:
		return 0
	}
}

// vwapScoreModifier rewards ±5 when price sits on the favourable side of
// VWAP beyond a configured distance threshold.
func vwapScoreModifier(req Request, s *entry.Setup, cfg LayerConfig) float64 {
	vwap := indicator.VWAP(req.AnalysisCandles)
	if !indicator.IsAvailable(vwap) || vwap == 0 {
		return 0
	}
	distance := (s.EntryPrice - vwap) / vwap * 100
	if distance < 0 {
		distance = -distance
	}
	if distance < cfg.VWAPProximityPct {
		return 0
	}
	favourable := (s.Direction == direction.BiasLong && s.EntryPrice > vwap) ||
		(s.Direction == direction.BiasShort && s.EntryPrice < vwap)
	if favourable {
		return cfg.VWAPModifierPoints
	}
	return -cfg.VWAPModifierPoints
}

// ScoreRangeBucket exposes the score_range dimension bucketing for
// callers outside this package that need to snapshot it at trade-open
// time (the Paper Trader, onto active_positions).
func ScoreRangeBucket(score float64) string {
	return scoreRangeBucket(score)
}

// ConfluenceBucket exposes the mtf_confluence dimension bucketing for the
// same reason as ScoreRangeBucket.
func ConfluenceBucket(mtf float64) string {
	return confluenceBucket(mtf)
}

func scoreRangeBucket(score float64) string {
	switch {
	case score >= 80:
		return "80+"
	case score >= 70:
		return "70-79"
	case score >= 60:
		return "60-69"
	default:
		return "50-59"
	}
}

func confluenceBucket(mtf float64) string {
	switch {
	case mtf > 0:
		return "positive"
	case mtf < 0:
		return "negative"
	default:
		return "zero"
	}
}

func indicatorSnapshot(tIn tradeability.Inputs, dIn direction.Inputs) map[string]float64 {
	return map[string]float64{
		"atr":         tIn.ATR,
		"adx":         tIn.ADX,
		"rsi":         dIn.RSI,
		"ema20":       dIn.EMA20,
		"ema50":       dIn.EMA50,
		"ema200":      dIn.EMA200,
		"macd_hist":   dIn.MACDHistogram,
		"plus_di":     dIn.PlusDI,
		"minus_di":    dIn.MinusDI,
	}
}
