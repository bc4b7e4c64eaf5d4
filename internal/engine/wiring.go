package engine

import (
	"cryptosignals/engine/internal/config"
	"cryptosignals/engine/internal/engine/direction"
	"cryptosignals/engine/internal/engine/entry"
	"cryptosignals/engine/internal/engine/risk"
	"cryptosignals/engine/internal/engine/tradeability"
)

// vwapProximityPct and vwapModifierPoints drive the VWAP confluence
// modifier: 0 within the proximity distance of VWAP, +5 points beyond it
// on the favourable side and -5 beyond it on the unfavourable side (the
// proximity value also feeds the entry layer's VWAP pattern bonus).
// Neither value is part of the keyed YAML
// schema, so they're fixed here rather than threaded through
// config.BotConfig.
const (
	vwapProximityPct   = 0.3
	vwapModifierPoints = 5.0
)

// BuildLayerConfig translates one bot version's loaded YAML config into
// the LayerConfig the Signal Engine needs for a single mode, mirroring
// the nesting of internal/config.BotConfig field-for-field into the
// layer packages' own threshold types.
func BuildLayerConfig(bot BotVersion, mode Mode, cfg *config.BotConfig) (LayerConfig, error) {
	modeCfg, ok := cfg.Modes[string(mode)]
	if !ok {
		return LayerConfig{}, errModeNotConfigured(mode)
	}

	thresholds := tradeability.Thresholds{
		ATRMinRatio:    cfg.Tradeability.Thresholds.ATRMinRatio,
		ATRMaxRatio:    cfg.Tradeability.Thresholds.ATRMaxRatio,
		VolumeMinRatio: cfg.Tradeability.Thresholds.VolumeMinRatio,
		SpreadKill:     cfg.Tradeability.Thresholds.SpreadKill,
		FundingKill:    cfg.Tradeability.Thresholds.FundingKill,
		FundingMax:     cfg.Tradeability.Thresholds.FundingMax,
		OIDropMaxPct:   cfg.Tradeability.Thresholds.OIDropMaxPct,
	}
	if mode == ModeScalping {
		thresholds.SpreadMax = cfg.Tradeability.Thresholds.SpreadMaxScalp
	} else {
		thresholds.SpreadMax = cfg.Tradeability.Thresholds.SpreadMaxSwing
	}

	directionThresholds := direction.Thresholds{
		EMANeutralThreshold: cfg.Direction.EMANeutralThreshold,
		RSILongThreshold:    cfg.Direction.RSILongThreshold,
		RSIShortThreshold:   cfg.Direction.RSIShortThreshold,
	}

	entryThresholds := entry.Thresholds{
		BBSqueezeThreshold:    cfg.Entry.BBSqueezeThreshold,
		VolumeSpikeRatio:      cfg.Entry.VolumeSpikeRatio,
		RetestBufferPct:       cfg.Entry.RetestBufferPct,
		RejectionWickRatio:    cfg.Entry.RejectionWickRatio,
		EMABounceProximityPct: cfg.Entry.EMABounceProximityPct,
		VWAPProximityPct:      vwapProximityPct,
	}

	allowed := make(entry.AllowedSetups, len(modeCfg.Entry.Setups))
	for _, name := range modeCfg.Entry.Setups {
		allowed[entry.SetupType(name)] = true
	}

	riskCfg := risk.Config{
		StopMethod:    risk.StopMethod(modeCfg.StopLoss.Method),
		ATRMultiplier: modeCfg.StopLoss.ATRMultiplier,
		BufferATR:     modeCfg.StopLoss.BufferATR,
		MaxStopPct:    modeCfg.StopLoss.MaxStopPct,
		TP1RR:         modeCfg.TakeProfit.TP1RR,
		TP2RR:         modeCfg.TakeProfit.TP2RR,
		TP3RR:         modeCfg.TakeProfit.TP3RR,
		TP1ClosePct:   modeCfg.TakeProfit.TP1ClosePct,
		TP2ClosePct:   modeCfg.TakeProfit.TP2ClosePct,
		TP3ClosePct:   modeCfg.TakeProfit.TP3ClosePct,
		LevMin:        float64(modeCfg.Risk.LeverageRange[0]),
		LevMax:        float64(modeCfg.Risk.LeverageRange[1]),
	}

	weights := scoreWeightsFor(bot, mode, cfg)

	return LayerConfig{
		Tradeability:         thresholds,
		TradeabilityWeights:  tradeability.Weights(cfg.Tradeability.Weights),
		TradeabilityMinScore: cfg.Tradeability.MinScore,

		Direction:          directionThresholds,
		SwingRejectNeutral: !cfg.SwingNeutralAllowed,

		Entry:         entryThresholds,
		AllowedSetups: allowed,

		Risk: riskCfg,

		ScoreWeights: weights,

		VWAPProximityPct:   vwapProximityPct,
		VWAPModifierPoints: vwapModifierPoints,

		FinalMinScore: modeCfg.Entry.MinScore,
	}, nil
}

// scoreWeightsFor picks the final-score blend: V4 uses the two fixed
// weight sets keyed by mode, every other bot version uses the weights
// configured under scoring.weights.
func scoreWeightsFor(bot BotVersion, mode Mode, cfg *config.BotConfig) ScoreWeights {
	if bot == BotV4 {
		if mode == ModeScalping {
			return V4ScalpingWeights()
		}
		return V4SwingWeights()
	}
	w := cfg.Scoring.Weights
	return ScoreWeights{
		Tradeability: w.Tradeability,
		Direction:    w.Direction,
		Setup:        w.Setup,
		Sentiment:    w.Sentiment,
	}
}

type modeNotConfiguredError struct {
	mode Mode
}

func (e modeNotConfiguredError) Error() string {
	return "engine: mode " + string(e.mode) + " has no config entry"
}

func errModeNotConfigured(mode Mode) error {
	return modeNotConfiguredError{mode: mode}
}
