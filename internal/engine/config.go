package engine

import (
	"cryptosignals/engine/internal/engine/direction"
	"cryptosignals/engine/internal/engine/entry"
	"cryptosignals/engine/internal/engine/risk"
	"cryptosignals/engine/internal/engine/tradeability"
)

// ScoreWeights combines the four layer scores into the final signal score
//: "Weights differ per bot and per mode."
type ScoreWeights struct {
	Tradeability float64
	Direction    float64
	Setup        float64
	Sentiment    float64
}

// LayerConfig is everything the Signal Engine needs for one
// (bot_version, mode) pair, assembled from internal/config.BotConfig at
// wiring time.
type LayerConfig struct {
	Tradeability         tradeability.Thresholds
	TradeabilityWeights  tradeability.Weights
	TradeabilityMinScore float64

	Direction          direction.Thresholds
	SwingRejectNeutral bool

	Entry         entry.Thresholds
	AllowedSetups entry.AllowedSetups

	Risk risk.Config

	ScoreWeights ScoreWeights

	VWAPProximityPct   float64
	VWAPModifierPoints float64

	FinalMinScore float64
}

// V4ScalpingWeights and V4SwingWeights are V4's fixed final-score blends,
// one per mode.
func V4ScalpingWeights() ScoreWeights {
	return ScoreWeights{Tradeability: 0.35, Direction: 0.30, Setup: 0.30, Sentiment: 0.05}
}

func V4SwingWeights() ScoreWeights {
	return ScoreWeights{Tradeability: 0.30, Direction: 0.25, Setup: 0.25, Sentiment: 0.20}
}
