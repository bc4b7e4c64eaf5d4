package store

import "time"

// SignalStatus is the transition set for `signals` rows.
type SignalStatus string

const (
	SignalActive   SignalStatus = "active"
	SignalExecuted SignalStatus = "executed"
	SignalSkipped  SignalStatus = "skipped"
	SignalError    SignalStatus = "error"
	SignalTest     SignalStatus = "test"
)

// Signal is one row of the `signals` table.
type Signal struct {
	ID                int64
	BotVersion        string
	Symbol            string
	Mode              string
	Direction         string
	Status            SignalStatus
	SetupType         string
	EntryPrice        float64
	StopLoss          float64
	TP1, TP2, TP3     float64
	FinalScore        float64
	TradeabilityScore float64
	DirectionScore    float64
	SetupScore        float64
	SentimentScore    float64
	Reason            string
	HourUTC           int
	MTFConfluence     float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TradeJournalEntry is one append-only row of `trades_journal`.
type TradeJournalEntry struct {
	ID              int64
	BotVersion      string
	SignalID        int64
	Symbol          string
	Direction       string
	EntryPrice      float64
	ExitPrice       float64
	Quantity        float64
	PnL             float64
	PnLPct          float64
	FeePaid         float64
	ExitReason      string
	Notes           string
	DurationSeconds int
	OpenedAt        time.Time
	ClosedAt        *time.Time
}

// PositionState mirrors the Position Monitor's state machine chain
// active → breakeven → trailing → trailing_tp → closed.
type PositionState string

const (
	PositionActive     PositionState = "active"
	PositionBreakeven  PositionState = "breakeven"
	PositionTrailing   PositionState = "trailing"
	PositionTrailingTP PositionState = "trailing_tp"
	PositionClosed     PositionState = "closed"
)

// ActivePosition is one row of `active_positions`, mutated via
// UpdatePosition and finalised via ClosePosition.
type ActivePosition struct {
	ID                int64
	BotVersion        string
	Symbol            string
	Direction         string
	State             PositionState
	EntryPrice        float64
	OriginalQuantity  float64 // quantity at open; Quantity tracks what remains open
	Quantity          float64
	MarginUSD         float64 // position_size_usd, used for fee-adjusted breakeven and pnl_pct
	EntryATR          float64 // snapshotted at open, used by V4 trailing-TP's new SL calc
	StopLoss          float64
	TP1, TP2, TP3     float64
	TP1ClosePct       float64
	TP2ClosePct       float64
	TP3ClosePct       float64
	TP1Hit            bool
	TP2Hit            bool
	TP3Hit            bool
	BreakevenApplied  bool
	TrailingActive    bool
	PeakProfitUSD     float64 // max_profit_usd (V4 preflight tracking)
	MaxDrawdownUSD    float64
	SetupType         string
	Mode              string
	SignalID          int64
	// Snapshotted at open from the triggering Signal, carried through to
	// close-and-journal so the V4 Adaptive Learner's TradeContext can be
	// assembled without re-deriving them from stale market state at
	// close time.
	Regime              string
	ScoreRange          string
	HourUTC             int
	MTFConfluenceBucket string
	OpenedAt            time.Time
	ClosedAt            *time.Time
	UpdatedAt           time.Time
}

// PositionPatch is a partial update applied by UpdatePosition/ClosePosition.
// Nil fields are left untouched.
type PositionPatch struct {
	State            *PositionState
	Quantity         *float64
	StopLoss         *float64
	TP1Hit           *bool
	TP2Hit           *bool
	TP3Hit           *bool
	BreakevenApplied *bool
	TrailingActive   *bool
	PeakProfitUSD    *float64
	MaxDrawdownUSD   *float64
}

// PaperPortfolio is one row of `paper_portfolio`, keyed by bot_version.
type PaperPortfolio struct {
	BotVersion        string
	BalanceUSD        float64
	ReservedMarginUSD float64
	TotalTrades       int
	Wins              int
	Losses            int
	TotalPnL          float64
	BestTradeUSD      float64
	WorstTradeUSD     float64
	UpdatedAt         time.Time
}

// TradeabilityLogEntry is one row of `tradeability_log`, appended on every
// Scanner cycle that resolves to `no_trade`.
type TradeabilityLogEntry struct {
	ID         int64
	BotVersion string
	Symbol     string
	Mode       string
	Score      float64
	Reason     string
	CreatedAt  time.Time
}

// SetupPerformance is one row of `setup_performance`, unique by
// (setup_type, symbol, mode).
type SetupPerformance struct {
	SetupType string
	Symbol    string
	Mode      string
	Wins      int
	Losses    int
	TotalPnL  float64
}

// LearningWeight is one row of `learning_weights`, unique by
// (dimension, value, bot_version) — the Adaptive Learner's persisted
// per-dimension modifier.
type LearningWeight struct {
	Dimension   string
	Value       string
	BotVersion  string
	SampleCount int
	WinRate7d   float64
	WinRate30d  float64
	WinRateAll  float64
	AvgPnL      float64
	Modifier    float64
	Confidence  float64
	UpdatedAt   time.Time
}

// TradeContext is one append-only row of `trade_context`, the Adaptive
// Learner's raw per-trade dimension record — carries enough
// of the eight tracked dimensions (setup_type, symbol, mode, regime,
// hour_utc, score_range, direction, mtf_confluence_bucket) to recompute
// every dimension's win rate from history.
type TradeContext struct {
	ID                  int64
	BotVersion          string
	Symbol              string
	SetupType           string
	Mode                string
	Direction           string
	ScoreRange          string
	HourUTC             int
	MTFConfluenceBucket string
	Regime              string
	Outcome             string // "win" | "loss"
	PnL                 float64
	CreatedAt           time.Time
}

// PositionSnapshot is one row of `position_snapshots`.
type PositionSnapshot struct {
	ID            int64
	PositionID    int64
	BotVersion    string
	Symbol        string
	State         PositionState
	UnrealizedPnL float64
	CurrentPrice  float64
	SnapshotAt    time.Time
}
