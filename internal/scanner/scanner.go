// Package scanner implements the per-bot Scanner: a fixed-
// interval cooperative loop over (symbol, mode) pairs that pulls market
// data, runs the Signal Engine, and auto-executes resulting signals via
// the Paper Trader.
//
// It keeps a cooldown map, a last-signal-dedupe map and an
// anti-flip-flop-timestamp map in memory, driven by a ticker-driven
// single loop with inter-symbol pacing.
package scanner

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"cryptosignals/engine/internal/config"
	"cryptosignals/engine/internal/engine"
	"cryptosignals/engine/internal/logging"
	"cryptosignals/engine/internal/marketdata"
	"cryptosignals/engine/internal/store"
)

// antiFlipFlopWindow rejects any new signal for a symbol (whatever its
// mode or direction) within this window of that symbol's prior signal.
const antiFlipFlopWindow = 45 * time.Second

// dedupeEntryTolerancePct suppresses a duplicate signal when its entry
// price is within this percent of the previous signal for the same
// (symbol, mode).
const dedupeEntryTolerancePct = 0.2

// interSymbolDelay paces requests between symbols to avoid rate-limit
// bursts.
const interSymbolDelay = 1 * time.Second

const candleLimit = 100

// MarketData is the narrow slice of *marketdata.Client the Scanner needs.
type MarketData interface {
	Candles(ctx context.Context, symbol string, tf marketdata.Timeframe, limit int) ([]marketdata.Candle, error)
	OrderBook(ctx context.Context, symbol string) (*marketdata.OrderBookMetrics, error)
	FundingRate(ctx context.Context, symbol string) (float64, error)
	OpenInterestChangePct(ctx context.Context, symbol string) (float64, error)
	OrderFlowRatio(ctx context.Context, symbol string) (float64, error)
}

// SignalEngine is the narrow slice of *engine.Engine the Scanner drives.
type SignalEngine interface {
	Analyze(ctx context.Context, req engine.Request) engine.Signal
}

// Trader is the narrow slice of *papertrader.Trader the Scanner
// auto-executes accepted signals through.
type Trader interface {
	AutoExecute(ctx context.Context, sig engine.Signal, signalID int64) (bool, error)
}

// Store is the narrow persistence slice the Scanner needs, satisfied by
// *store.Repository.
type Store interface {
	CreateSignal(ctx context.Context, s *store.Signal) error
	UpdateSignalStatus(ctx context.Context, id int64, status store.SignalStatus) error
	HasOpenPosition(ctx context.Context, botVersion, symbol string) (bool, error)
	AppendTradeabilityLog(ctx context.Context, e *store.TradeabilityLogEntry) error
}

// Scanner is the Scanner for one bot instance.
type Scanner struct {
	bot    engine.BotVersion
	cfg    *config.BotConfig
	md     MarketData
	eng    SignalEngine
	trader Trader
	store  Store
	log    *logging.Logger

	mu           sync.Mutex
	running      bool
	cooldowns    map[string]time.Time  // key: symbol|mode
	lastSignals  map[string]lastSignal // key: symbol|mode
	lastSignalAt map[string]time.Time  // key: symbol, anti-flip-flop

	stop chan struct{}
	wg   sync.WaitGroup
}

func New(bot engine.BotVersion, cfg *config.BotConfig, md MarketData, eng SignalEngine, trader Trader, st Store, log *logging.Logger) *Scanner {
	return &Scanner{
		bot:          bot,
		cfg:          cfg,
		md:           md,
		eng:          eng,
		trader:       trader,
		store:        st,
		log:          log,
		cooldowns:    make(map[string]time.Time),
		lastSignals:  make(map[string]lastSignal),
		lastSignalAt: make(map[string]time.Time),
		stop:         make(chan struct{}),
	}
}

// Start launches the scan loop on cfg.Scanner.IntervalSeconds, running one
// cycle immediately.
func (s *Scanner) Start(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runLoop(ctx)
}

// Stop signals the scan loop to exit and waits for it to finish.
func (s *Scanner) Stop() {
	close(s.stop)
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Scanner) runLoop(ctx context.Context) {
	defer s.wg.Done()

	interval := time.Duration(s.cfg.Scanner.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runCycle(ctx)
	for {
		select {
		case <-ticker.C:
			s.runCycle(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runCycle walks every enabled (symbol, mode) pair once.
func (s *Scanner) runCycle(ctx context.Context) {
	pairs := s.enabledPairs()
	modes := s.cfg.Scanner.Modes

	for _, symbol := range pairs {
		for _, mode := range modes {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			default:
			}

			if err := s.scanOne(ctx, symbol, mode); err != nil && s.log != nil {
				s.log.Error("scanner: cycle error", "bot_version", s.bot, "symbol", symbol, "mode", mode, "error", err)
			}

			select {
			case <-time.After(interSymbolDelay):
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Scanner) enabledPairs() []string {
	out := make([]string, 0, len(s.cfg.Pairs))
	for _, p := range s.cfg.Pairs {
		if p.Enabled {
			out = append(out, p.Symbol)
		}
	}
	return out
}

func cooldownKey(symbol, mode string) string {
	return symbol + "|" + mode
}

// scanOne runs the seven-step cycle body for a single (symbol, mode) pair
//.
func (s *Scanner) scanOne(ctx context.Context, symbol, mode string) error {
	key := cooldownKey(symbol, mode)

	// Step 1: cooldown.
	s.mu.Lock()
	until, cooling := s.cooldowns[key]
	s.mu.Unlock()
	if cooling && time.Now().Before(until) {
		return nil
	}

	mc, ok := s.cfg.Modes[mode]
	if !ok || len(mc.Timeframes.Analysis) == 0 || mc.Timeframes.Filter == "" {
		return fmt.Errorf("no timeframes configured for mode %q", mode)
	}

	// Steps 2-3: fetch OHLCV (with a single retry standing in for the
	// market-data client's reconnect, since the REST boundary is stateless
	// and has no persistent connection to probe) plus orderbook/funding/OI/
	// order-flow.
	analysisCandles, err := s.fetchCandlesWithRetry(ctx, symbol, marketdata.Timeframe(mc.Timeframes.Analysis[0]))
	if err != nil {
		return fmt.Errorf("analysis candles: %w", err)
	}
	filterCandles, err := s.fetchCandlesWithRetry(ctx, symbol, marketdata.Timeframe(mc.Timeframes.Filter))
	if err != nil {
		return fmt.Errorf("filter candles: %w", err)
	}

	orderBook, _ := s.md.OrderBook(ctx, symbol) // nil is a valid "missing orderbook" signal
	fundingRate, err := s.md.FundingRate(ctx, symbol)
	if err != nil {
		return fmt.Errorf("funding rate: %w", err)
	}
	oiChangePct, err := s.md.OpenInterestChangePct(ctx, symbol)
	if err != nil {
		oiChangePct = 0
	}

	var orderFlowRatio float64
	var hasOrderFlow bool
	if s.bot == engine.BotV4 {
		if ratio, err := s.md.OrderFlowRatio(ctx, symbol); err == nil {
			orderFlowRatio = ratio
			hasOrderFlow = true
		}
	}

	req := engine.Request{
		Symbol:          symbol,
		Mode:            engine.Mode(mode),
		BotVersion:      s.bot,
		AnalysisCandles: analysisCandles,
		FilterCandles:   filterCandles,
		OrderBook:       orderBook,
		FundingRate:     fundingRate,
		OIChangePct:     oiChangePct,
		OrderFlowRatio:  orderFlowRatio,
		HasOrderFlow:    hasOrderFlow,
		Now:             time.Now(),
	}

	// Step 4.
	sig := s.eng.Analyze(ctx, req)

	// Step 6.
	if sig.Type == engine.SignalTypeNoTrade {
		return s.store.AppendTradeabilityLog(ctx, &store.TradeabilityLogEntry{
			BotVersion: string(s.bot),
			Symbol:     symbol,
			Mode:       mode,
			Score:      sig.TradeabilityScore,
			Reason:     sig.RejectReason,
		})
	}

	// Step 5.
	return s.handleSignal(ctx, key, symbol, mode, sig)
}

func (s *Scanner) fetchCandlesWithRetry(ctx context.Context, symbol string, tf marketdata.Timeframe) ([]marketdata.Candle, error) {
	candles, err := s.md.Candles(ctx, symbol, tf, candleLimit)
	if err == nil {
		return candles, nil
	}
	if s.log != nil {
		s.log.Warn("scanner: candle fetch failed, retrying once", "symbol", symbol, "timeframe", tf, "error", err)
	}
	return s.md.Candles(ctx, symbol, tf, candleLimit)
}

// handleSignal runs the dedupe/position/anti-flip-flop rejections, then
// persists and auto-executes an admitted signal.
func (s *Scanner) handleSignal(ctx context.Context, key, symbol, mode string, sig engine.Signal) error {
	if s.isDuplicate(key, sig) {
		return nil
	}

	hasPosition, err := s.store.HasOpenPosition(ctx, string(s.bot), symbol)
	if err != nil {
		return fmt.Errorf("check open position: %w", err)
	}
	if hasPosition {
		return nil
	}

	if s.isRecentFlipFlop(symbol) {
		return nil
	}

	row := &store.Signal{
		BotVersion:        string(s.bot),
		Symbol:            sig.Symbol,
		Mode:              string(sig.Mode),
		Direction:         string(sig.Direction),
		Status:            store.SignalActive,
		SetupType:         sig.SetupType,
		EntryPrice:        sig.EntryPrice,
		StopLoss:          sig.StopLoss,
		TP1:               sig.TP1,
		TP2:               sig.TP2,
		TP3:               sig.TP3,
		FinalScore:        sig.Score,
		TradeabilityScore: sig.TradeabilityScore,
		DirectionScore:    sig.DirectionScore,
		SetupScore:        sig.SetupScore,
		SentimentScore:    sig.SentimentScore,
		Reason:            joinReasons(sig.Reasons),
		HourUTC:           sig.HourUTC,
	}
	if sig.V4 != nil {
		row.MTFConfluence = sig.V4.MTFConfluence
	}

	if err := s.store.CreateSignal(ctx, row); err != nil {
		return fmt.Errorf("create signal: %w", err)
	}

	s.recordSignal(key, symbol, sig)

	if s.log != nil {
		s.log.Info("signal", "bot_version", s.bot, "symbol", symbol, "mode", mode,
			"direction", sig.Direction, "score", sig.Score, "entry", sig.EntryPrice)
	}

	executed, err := s.trader.AutoExecute(ctx, sig, row.ID)
	if err != nil {
		return fmt.Errorf("auto-execute: %w", err)
	}
	if executed {
		if err := s.store.UpdateSignalStatus(ctx, row.ID, store.SignalExecuted); err != nil {
			return fmt.Errorf("mark signal executed: %w", err)
		}
	}
	return nil
}

func (s *Scanner) isDuplicate(key string, sig engine.Signal) bool {
	s.mu.Lock()
	last, ok := s.lastSignals[key]
	s.mu.Unlock()
	if !ok || sig.EntryPrice == 0 {
		return false
	}
	return last.direction == string(sig.Direction) &&
		last.setupType == sig.SetupType &&
		math.Abs(last.entryPrice-sig.EntryPrice)/sig.EntryPrice*100 < dedupeEntryTolerancePct
}

func (s *Scanner) isRecentFlipFlop(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastSignalAt[symbol]
	if !ok {
		return false
	}
	return time.Since(last) < antiFlipFlopWindow
}

func (s *Scanner) recordSignal(key, symbol string, sig engine.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSignals[key] = lastSignal{
		direction:  string(sig.Direction),
		setupType:  sig.SetupType,
		entryPrice: sig.EntryPrice,
	}
	s.lastSignalAt[symbol] = time.Now()
}

// SetCooldown blocks (symbol, mode) from scanning for d, exposed for
// external callers (e.g. a risk-limit breach elsewhere in the bot).
func (s *Scanner) SetCooldown(symbol, mode string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldowns[cooldownKey(symbol, mode)] = time.Now().Add(d)
}

// Status reports the Scanner's exposed runtime state.
func (s *Scanner) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	cooldowns := make(map[string]time.Time, len(s.cooldowns))
	for k, v := range s.cooldowns {
		cooldowns[k] = v
	}

	return Status{
		BotVersion:    string(s.bot),
		Running:       s.running,
		Pairs:         s.enabledPairs(),
		Modes:         append([]string(nil), s.cfg.Scanner.Modes...),
		ActiveSignals: len(s.lastSignals),
		Cooldowns:     cooldowns,
	}
}

func joinReasons(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += "; "
		}
		out += r
	}
	return out
}
