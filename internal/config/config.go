// Package config loads the per-bot-version keyed YAML configuration,
// layering environment variable overrides on top of the file (file
// first, then env vars take precedence). YAML rather than JSON because
// each bot version's pairs/mode/setup lists are naturally nested, with
// one file per bot version instead of one global file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// BotConfig is the root configuration for one bot version (V1-V4).
type BotConfig struct {
	Pairs     []PairConfig        `yaml:"pairs"`
	Scanner   ScannerConfig       `yaml:"scanner"`
	Direction DirectionConfig     `yaml:"direction"`
	Entry     EntryConfig         `yaml:"entry"`
	Modes     map[string]ModeConfig `yaml:"modes"`

	Tradeability        TradeabilityConfig `yaml:"tradeability"`
	Scoring             ScoringWeights     `yaml:"scoring"`
	SwingNeutralAllowed bool               `yaml:"swing_neutral_allowed"`

	// V4 only.
	Fees             *FeesConfig             `yaml:"fees,omitempty"`
	Sizing           *SizingConfig           `yaml:"sizing,omitempty"`
	RiskLimits       *RiskLimitsConfig       `yaml:"risk_limits,omitempty"`
	ProfitProtection *ProfitProtectionConfig `yaml:"profit_protection,omitempty"`
	TrailingTP       *TrailingTPConfig       `yaml:"trailing_tp,omitempty"`
}

type PairConfig struct {
	Symbol  string `yaml:"symbol"`
	Enabled bool   `yaml:"enabled"`
}

type ScannerConfig struct {
	IntervalSeconds int      `yaml:"interval_seconds"`
	Modes           []string `yaml:"modes"`
}

type DirectionConfig struct {
	EMAFast             int     `yaml:"ema_fast"`
	EMASlow             int     `yaml:"ema_slow"`
	EMANeutralThreshold float64 `yaml:"ema_neutral_threshold"`
	RSILongThreshold    float64 `yaml:"rsi_long_threshold"`
	RSIShortThreshold   float64 `yaml:"rsi_short_threshold"`
	StructureLookback   int     `yaml:"structure_lookback"`
}

type EntryConfig struct {
	Setups               []string `yaml:"setups"`
	MinScore             float64  `yaml:"min_score"`
	BBSqueezeThreshold   float64  `yaml:"bb_squeeze_threshold"`
	VolumeSpikeRatio     float64  `yaml:"volume_spike_ratio"`
	RetestBufferPct      float64  `yaml:"retest_buffer_pct"`
	RejectionWickRatio   float64  `yaml:"rejection_wick_ratio"`
	EMABounceProximityPct float64 `yaml:"ema_bounce_proximity_pct"`
}

// ModeConfig holds the per-mode (scalp/swing/position) overrides.
type ModeConfig struct {
	Timeframes struct {
		Analysis []string `yaml:"analysis"`
		Filter   string   `yaml:"filter"`
	} `yaml:"timeframes"`

	StopLoss struct {
		Method        string  `yaml:"method"`
		ATRMultiplier float64 `yaml:"atr_multiplier"`
		BufferATR     float64 `yaml:"buffer_atr"`
		MaxStopPct    float64 `yaml:"max_stop_pct"`
	} `yaml:"stop_loss"`

	TakeProfit struct {
		TP1RR      float64 `yaml:"tp1_rr"`
		TP2RR      float64 `yaml:"tp2_rr"`
		TP3RR      float64 `yaml:"tp3_rr"`
		TP1ClosePct float64 `yaml:"tp1_close_pct"`
		TP2ClosePct float64 `yaml:"tp2_close_pct"`
		TP3ClosePct float64 `yaml:"tp3_close_pct"`
	} `yaml:"take_profit"`

	Risk struct {
		LeverageRange [2]int `yaml:"leverage_range"`
	} `yaml:"risk"`

	Entry struct {
		Setups  []string `yaml:"setups"`
		MinScore float64 `yaml:"min_score"`
	} `yaml:"entry"`

	EarlyProtection struct {
		BreakevenAtPct     float64 `yaml:"breakeven_at_pct"`
		TrailActivationPct float64 `yaml:"trail_activation_pct"`
		TrailBehindPct     float64 `yaml:"trail_behind_pct"`
	} `yaml:"early_protection"`

	MaxHoldSeconds int     `yaml:"max_hold_seconds"`
	MinProfitUSD   float64 `yaml:"min_profit_usd"`
	MaxLossUSD     float64 `yaml:"max_loss_usd"`
}

type TradeabilityConfig struct {
	Thresholds struct {
		ATRMinRatio    float64 `yaml:"atr_min_ratio"`
		ATRMaxRatio    float64 `yaml:"atr_max_ratio"`
		VolumeMinRatio float64 `yaml:"volume_min_ratio"`
		SpreadKill     float64 `yaml:"spread_kill"`
		SpreadMaxScalp float64 `yaml:"spread_max_scalp"`
		SpreadMaxSwing float64 `yaml:"spread_max_swing"`
		FundingKill    float64 `yaml:"funding_kill"`
		FundingMax     float64 `yaml:"funding_max"`
		OIDropMaxPct   float64 `yaml:"oi_drop_max_pct"`
	} `yaml:"thresholds"`
	Weights  map[string]float64 `yaml:"weights"`
	MinScore float64            `yaml:"min_score"`
}

type ScoringWeights struct {
	Weights struct {
		Tradeability float64 `yaml:"tradeability"`
		Direction    float64 `yaml:"direction"`
		Setup        float64 `yaml:"setup"`
		Sentiment    float64 `yaml:"sentiment"`
	} `yaml:"weights"`
}

type FeesConfig struct {
	TakerPct float64 `yaml:"taker_pct"`
}

type SizingConfig struct {
	BasePct          float64 `yaml:"base_pct"`
	MinMargin        float64 `yaml:"min_margin"`
	MaxMargin        float64 `yaml:"max_margin"`
	MaxValidSpreadPct float64 `yaml:"max_valid_spread_pct"`
}

type RiskLimitsConfig struct {
	MaxDailyLossUSD      float64 `yaml:"max_daily_loss_usd"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	PauseMinutes         int     `yaml:"pause_minutes"`
}

type ProfitProtectionConfig struct {
	ActivationFeeMult float64 `yaml:"activation_fee_mult"`
	GivebackPct       float64 `yaml:"giveback_pct"`
}

type TrailingTPConfig struct {
	Enabled      bool    `yaml:"enabled"`
	TP3ClosePct  float64 `yaml:"tp3_close_pct"`
	TrailATR     float64 `yaml:"trail_atr"`
}

// Load reads the YAML config file for one bot version and applies
// environment variable overrides (file first, env vars take precedence),
// keyed per bot version instead of a single global file.
func Load(botVersion, path string) (*BotConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s config at %s: %w", botVersion, path, err)
	}

	var cfg BotConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s config: %w", botVersion, err)
	}

	applyEnvOverrides(botVersion, &cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: %s config invalid: %w", botVersion, err)
	}

	return &cfg, nil
}

// applyEnvOverrides layers environment variables of the form
// <BOT_VERSION>_<FIELD> over values already loaded from file.
func applyEnvOverrides(botVersion string, cfg *BotConfig) {
	prefix := botVersion + "_"

	cfg.Scanner.IntervalSeconds = getEnvIntOrDefault(prefix+"SCANNER_INTERVAL_SECONDS", cfg.Scanner.IntervalSeconds)
	cfg.Entry.MinScore = getEnvFloatOrDefault(prefix+"ENTRY_MIN_SCORE", cfg.Entry.MinScore)
	cfg.Tradeability.MinScore = getEnvFloatOrDefault(prefix+"TRADEABILITY_MIN_SCORE", cfg.Tradeability.MinScore)

	if cfg.Sizing != nil {
		cfg.Sizing.MaxValidSpreadPct = getEnvFloatOrDefault(prefix+"MAX_VALID_SPREAD_PCT", cfg.Sizing.MaxValidSpreadPct)
	}
	if cfg.RiskLimits != nil {
		cfg.RiskLimits.MaxDailyLossUSD = getEnvFloatOrDefault(prefix+"MAX_DAILY_LOSS_USD", cfg.RiskLimits.MaxDailyLossUSD)
	}
}

// validate enforces that scoring and tradeability weights each sum to 1,
// and that V4's slippage-sentinel replacement has a configured threshold.
func validate(cfg *BotConfig) error {
	w := cfg.Scoring.Weights
	sum := w.Tradeability + w.Direction + w.Setup + w.Sentiment
	if sum != 0 && (sum < 0.99 || sum > 1.01) {
		return fmt.Errorf("scoring weights must sum to 1, got %.4f", sum)
	}

	tradeSum := 0.0
	for _, v := range cfg.Tradeability.Weights {
		tradeSum += v
	}
	if tradeSum != 0 && (tradeSum < 0.99 || tradeSum > 1.01) {
		return fmt.Errorf("tradeability weights must sum to 1, got %.4f", tradeSum)
	}

	if cfg.Sizing != nil && cfg.Sizing.MaxValidSpreadPct <= 0 {
		return fmt.Errorf("sizing.max_valid_spread_pct must be > 0 for V4")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
