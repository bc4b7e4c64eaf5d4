// Package learner implements the V4 Adaptive Learner: it
// records the outcome of every closed V4 trade against eight tracked
// dimensions, recomputes rolling win rates and a hysteresis-gated score
// modifier per (dimension, value, bot_version), and exposes that modifier
// back to the Signal Engine through the engine.LearningModifier interface.
//
// It accumulates per-dimension stats and derives win-rate-driven
// recommendations across eight tracked axes, wired to Postgres + Redis
// for persistence.
package learner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cryptosignals/engine/internal/cache"
	"cryptosignals/engine/internal/engine"
	"cryptosignals/engine/internal/logging"
	"cryptosignals/engine/internal/store"
)

// Dimension names are the eight tracked axes.
const (
	DimSetupType     = "setup_type"
	DimSymbol        = "symbol"
	DimMode          = "mode"
	DimRegime        = "regime"
	DimHourGroup     = "hour_group"
	DimScoreRange    = "score_range"
	DimDirection     = "direction"
	DimMTFConfluence = "mtf_confluence"
)

// historyRowCap mirrors the store's TradeContextSince LIMIT — history
// recomputation never looks past the most recent 2000 rows per bot.
const historyRowCap = 2000

const (
	windowAllDays = 36500 // effectively "all time"
	window30Days  = 30
	window7Days   = 7
)

// Store is the narrow persistence slice the learner needs, satisfied by
// *store.Repository.
type Store interface {
	UpsertLearningWeight(ctx context.Context, w store.LearningWeight) error
	GetLearningWeights(ctx context.Context, botVersion string) ([]store.LearningWeight, error)
	AppendTradeContext(ctx context.Context, tc *store.TradeContext) error
	TradeContextSince(ctx context.Context, botVersion string, days int) ([]store.TradeContext, error)
}

// Cache is the narrow caching slice the learner needs, satisfied by
// *cache.Service.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// TradeOutcome is the per-trade record handed to RecordClose by the
// Position Monitor's close-and-journal path. PnL must
// already be the net, post-fee figure (resolved Open Question #1).
type TradeOutcome struct {
	SetupType     string
	Symbol        string
	Mode          engine.Mode
	Regime        string
	HourUTC       int
	ScoreRange    string
	Direction     engine.Direction
	MTFConfluence string // "negative" | "zero" | "positive"
	PnL           float64
}

type weightKey struct {
	dimension string
	value     string
}

// Learner is the V4 Adaptive Learner. One instance is shared across all
// bot versions; weights are partitioned internally by bot_version so no
// bot version's writes leak into another's recommendations.
type Learner struct {
	store Store
	cache Cache
	log   *logging.Logger

	mu      sync.RWMutex
	weights map[engine.BotVersion]map[weightKey]store.LearningWeight
}

func New(st Store, ch Cache, log *logging.Logger) *Learner {
	return &Learner{
		store:   st,
		cache:   ch,
		log:     log,
		weights: make(map[engine.BotVersion]map[weightKey]store.LearningWeight),
	}
}

// RecordClose appends the trade's dimension row and recomputes every
// weight for the bot.
func (l *Learner) RecordClose(ctx context.Context, bot engine.BotVersion, out TradeOutcome) error {
	outcome := "loss"
	if out.PnL > 0 {
		outcome = "win"
	}
	tc := &store.TradeContext{
		BotVersion:          string(bot),
		Symbol:              out.Symbol,
		SetupType:           out.SetupType,
		Mode:                string(out.Mode),
		Direction:           string(out.Direction),
		ScoreRange:          out.ScoreRange,
		HourUTC:             out.HourUTC,
		MTFConfluenceBucket: out.MTFConfluence,
		Regime:              out.Regime,
		Outcome:             outcome,
		PnL:                 out.PnL,
	}
	if err := l.store.AppendTradeContext(ctx, tc); err != nil {
		return fmt.Errorf("learner: append trade context: %w", err)
	}
	if err := l.Recompute(ctx, bot); err != nil {
		return fmt.Errorf("learner: recompute after close: %w", err)
	}
	return nil
}

type bucketStats struct {
	wins, losses int
	pnlSum       float64
}

func (b bucketStats) sample() int { return b.wins + b.losses }

func (b bucketStats) winRate() float64 {
	if b.sample() == 0 {
		return 0
	}
	return float64(b.wins) / float64(b.sample())
}

// Recompute rebuilds every (dimension, value) weight for one bot from its
// trade_context history, using 7d/30d/all-time windows capped at
// historyRowCap rows.
func (l *Learner) Recompute(ctx context.Context, bot engine.BotVersion) error {
	win7, err := l.fetchWindow(ctx, bot, window7Days)
	if err != nil {
		return err
	}
	win30, err := l.fetchWindow(ctx, bot, window30Days)
	if err != nil {
		return err
	}
	winAll, err := l.fetchWindow(ctx, bot, windowAllDays)
	if err != nil {
		return err
	}

	seen := make(map[weightKey]struct{})
	for k := range win7 {
		seen[k] = struct{}{}
	}
	for k := range win30 {
		seen[k] = struct{}{}
	}
	for k := range winAll {
		seen[k] = struct{}{}
	}

	fresh := make(map[weightKey]store.LearningWeight, len(seen))
	for k := range seen {
		all := winAll[k]
		s7 := win7[k]
		s30 := win30[k]

		sample := all.sample()
		wr7 := s7.winRate()
		wr30 := s30.winRate()
		wrAll := all.winRate()

		wr := wr7
		if s7.sample() == 0 {
			wr = wr30
		}

		modifier := modifierForSample(sample, wr)
		confidence := float64(sample) / 20
		if confidence > 1 {
			confidence = 1
		}

		avgPnL := 0.0
		if sample > 0 {
			avgPnL = all.pnlSum / float64(sample)
		}

		fresh[k] = store.LearningWeight{
			Dimension:   k.dimension,
			Value:       k.value,
			BotVersion:  string(bot),
			SampleCount: sample,
			WinRate7d:   wr7,
			WinRate30d:  wr30,
			WinRateAll:  wrAll,
			AvgPnL:      avgPnL,
			Modifier:    modifier,
			Confidence:  confidence,
			UpdatedAt:   time.Now(),
		}
	}

	for _, w := range fresh {
		if err := l.store.UpsertLearningWeight(ctx, w); err != nil {
			return fmt.Errorf("learner: upsert weight %s/%s: %w", w.Dimension, w.Value, err)
		}
	}

	l.mu.Lock()
	l.weights[bot] = fresh
	l.mu.Unlock()

	if l.cache != nil {
		list := make([]store.LearningWeight, 0, len(fresh))
		for _, w := range fresh {
			list = append(list, w)
		}
		cacheKey := cache.LearningWeightKey(string(bot))
		if err := l.cache.Set(ctx, cacheKey, list, cache.LearningWeightTTL); err != nil && l.log != nil {
			l.log.Warn("learner: cache set failed", "bot_version", bot, "error", err)
		}
	}
	return nil
}

// modifierForSample applies hysteresis thresholds to the sample. Zero
// below a 5-trade sample avoids overreacting to noise; the -15/-8/+5
// tiers only sharpen as sample size and win rate diverge further from
// break-even.
func modifierForSample(sample int, wr float64) float64 {
	if sample < 5 {
		return 0
	}
	switch {
	case wr < 0.30 && sample >= 8:
		return -15
	case wr < 0.40:
		return -8
	case wr > 0.65:
		return 5
	default:
		return 0
	}
}

func (l *Learner) fetchWindow(ctx context.Context, bot engine.BotVersion, days int) (map[weightKey]bucketStats, error) {
	rows, err := l.store.TradeContextSince(ctx, string(bot), days)
	if err != nil {
		return nil, fmt.Errorf("learner: trade context since %dd: %w", days, err)
	}
	if len(rows) > historyRowCap {
		rows = rows[:historyRowCap]
	}

	out := make(map[weightKey]bucketStats)
	for _, tc := range rows {
		win := tc.Outcome == "win"
		for _, k := range dimensionKeysFor(tc) {
			st := out[k]
			if win {
				st.wins++
			} else {
				st.losses++
			}
			st.pnlSum += tc.PnL
			out[k] = st
		}
	}
	return out, nil
}

func dimensionKeysFor(tc store.TradeContext) []weightKey {
	return []weightKey{
		{DimSetupType, tc.SetupType},
		{DimSymbol, tc.Symbol},
		{DimMode, tc.Mode},
		{DimRegime, tc.Regime},
		{DimHourGroup, hourGroup(tc.HourUTC)},
		{DimScoreRange, tc.ScoreRange},
		{DimDirection, tc.Direction},
		{DimMTFConfluence, tc.MTFConfluenceBucket},
	}
}

// hourGroup buckets the UTC hour of day into three trading sessions,
// following the conventional Asian/European/US session split
// (00-08 / 08-16 / 16-24 UTC).
func hourGroup(hourUTC int) string {
	switch {
	case hourUTC >= 0 && hourUTC < 8:
		return "asian"
	case hourUTC >= 8 && hourUTC < 16:
		return "european"
	default:
		return "us"
	}
}

// LoadCache warms the in-memory weight map for a bot from the store,
// used at startup before the first Recompute runs.
func (l *Learner) LoadCache(ctx context.Context, bot engine.BotVersion) error {
	rows, err := l.store.GetLearningWeights(ctx, string(bot))
	if err != nil {
		return fmt.Errorf("learner: load cache: %w", err)
	}
	m := make(map[weightKey]store.LearningWeight, len(rows))
	for _, w := range rows {
		m[weightKey{w.Dimension, w.Value}] = w
	}
	l.mu.Lock()
	l.weights[bot] = m
	l.mu.Unlock()
	return nil
}

// ScoreModifier implements engine.LearningModifier:
// maps the signal's context onto each of the eight dimension values, sums
// the cached per-dimension modifiers, and clamps the result to [-20, +10].
func (l *Learner) ScoreModifier(ctx context.Context, botVersion engine.BotVersion, dims engine.LearningDimensions) (float64, []string) {
	l.mu.RLock()
	weights := l.weights[botVersion]
	l.mu.RUnlock()
	if weights == nil {
		return 0, nil
	}

	lookups := []weightKey{
		{DimSetupType, dims.SetupType},
		{DimSymbol, dims.Symbol},
		{DimMode, string(dims.Mode)},
		{DimRegime, dims.Regime},
		{DimHourGroup, hourGroup(dims.HourUTC)},
		{DimScoreRange, dims.ScoreRange},
		{DimDirection, string(dims.Direction)},
		{DimMTFConfluence, dims.MTFConfluence},
	}

	var total float64
	var reasons []string
	for _, k := range lookups {
		w, ok := weights[k]
		if !ok || w.Modifier == 0 {
			continue
		}
		total += w.Modifier
		reasons = append(reasons, fmt.Sprintf("%s=%s modifier=%.1f (wr7d=%.2f n=%d)", k.dimension, k.value, w.Modifier, w.WinRate7d, w.SampleCount))
	}

	if total > 10 {
		total = 10
	}
	if total < -20 {
		total = -20
	}
	return total, reasons
}

// EdgeDecayAlert flags a (dimension, value) whose short-term win rate has
// dropped well below its 30-day baseline: sample >= 5 and wr_30d - wr_7d >= 15 points.
type EdgeDecayAlert struct {
	Dimension  string
	Value      string
	WinRate7d  float64
	WinRate30d float64
	Sample     int
}

// EdgeDecayAlerts scans the bot's cached weights for decaying edges.
func (l *Learner) EdgeDecayAlerts(bot engine.BotVersion) []EdgeDecayAlert {
	l.mu.RLock()
	weights := l.weights[bot]
	l.mu.RUnlock()

	var alerts []EdgeDecayAlert
	for k, w := range weights {
		if w.SampleCount >= 5 && (w.WinRate30d-w.WinRate7d) >= 0.15 {
			alerts = append(alerts, EdgeDecayAlert{
				Dimension:  k.dimension,
				Value:      k.value,
				WinRate7d:  w.WinRate7d,
				WinRate30d: w.WinRate30d,
				Sample:     w.SampleCount,
			})
		}
	}
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Dimension != alerts[j].Dimension {
			return alerts[i].Dimension < alerts[j].Dimension
		}
		return alerts[i].Value < alerts[j].Value
	})
	return alerts
}

// CalibrationBucket is one score_range row of the calibration report
//.
type CalibrationBucket struct {
	ScoreRange string
	SampleSize int
	WinRate    float64
	AvgPnL     float64
}

// CalibrationReport reports how well each score_range bucket's observed
// win rate matches its intended score tier, using the bot's cached
// all-time weights.
func (l *Learner) CalibrationReport(bot engine.BotVersion) []CalibrationBucket {
	l.mu.RLock()
	weights := l.weights[bot]
	l.mu.RUnlock()

	var out []CalibrationBucket
	for k, w := range weights {
		if k.dimension != DimScoreRange {
			continue
		}
		out = append(out, CalibrationBucket{
			ScoreRange: k.value,
			SampleSize: w.SampleCount,
			WinRate:    w.WinRateAll,
			AvgPnL:     w.AvgPnL,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScoreRange < out[j].ScoreRange })
	return out
}
