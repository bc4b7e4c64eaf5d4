// Package engine orchestrates one Signal Engine analysis for one
// (symbol, mode, bot_version), wiring the Tradeability, Direction, Entry
// and Risk layers together with the Sentiment Provider and (V4 only) the
// Adaptive Learner, running a collect-signals -> make-decision ->
// validate-decision pipeline in sequence since each layer is pure-CPU
// math, not I/O.
package engine

import "time"

// Direction is the candidate trade direction.
type Direction string

const (
	DirectionLong    Direction = "long"
	DirectionShort   Direction = "short"
	DirectionNone    Direction = "none"
)

// Mode is the trading mode, each carrying its own timeframe/setup/risk
// policy.
type Mode string

const (
	ModeScalping Mode = "scalping"
	ModeSwing    Mode = "swing"
)

// BotVersion selects a scoring-weight variant and feature subset.
type BotVersion string

const (
	BotV1 BotVersion = "V1"
	BotV2 BotVersion = "V2"
	BotV3 BotVersion = "V3"
	BotV4 BotVersion = "V4"
)

// SignalType distinguishes an actionable signal from a rejection.
type SignalType string

const (
	SignalTypeSignal  SignalType = "signal"
	SignalTypeNoTrade SignalType = "no_trade"
)

// V4SignalExtras carries the V4-only snapshots and modifiers (regime,
// multi-timeframe confluence, VWAP) layered on top of the base signal.
type V4SignalExtras struct {
	Regime           string
	RegimeConfidence float64
	MTFConfluence    float64
	VWAPModifier     float64
	LearningModifier float64
	LearningReasons  []string
	IndicatorSnapshot map[string]float64
	CandlePattern    string
	EntryATR         float64
}

// Signal is the immutable record produced by the Signal Engine.
type Signal struct {
	Type       SignalType
	Symbol     string
	Mode       Mode
	BotVersion BotVersion
	Direction  Direction
	Score      float64

	EntryPrice float64
	StopLoss   float64
	TP1, TP2, TP3 float64
	TP1ClosePct, TP2ClosePct, TP3ClosePct float64

	SetupType string
	Leverage  int
	RRRatio   float64

	TradeabilityScore float64
	DirectionScore    float64
	SetupScore        float64
	SentimentScore    float64

	Reasons []string

	HourUTC       int
	V4            *V4SignalExtras

	// Rejection-only fields.
	RejectReason string
	KillReason   string

	CreatedAt time.Time
}

// NoTrade builds a rejection signal, carrying the current tradeability
// score for telemetry.
func NoTrade(symbol string, mode Mode, bot BotVersion, reason string, tradeabilityScore float64) Signal {
	return Signal{
		Type:              SignalTypeNoTrade,
		Symbol:            symbol,
		Mode:              mode,
		BotVersion:        bot,
		Direction:         DirectionNone,
		RejectReason:      reason,
		TradeabilityScore: tradeabilityScore,
		CreatedAt:         time.Now(),
	}
}
