package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ExchangeREST is the narrow boundary the Market-Data Client depends on,
// so the concrete exchange SDK
// never leaks into the Signal Engine.
type ExchangeREST interface {
	Klines(ctx context.Context, symbol string, timeframe Timeframe, limit int) ([]Candle, error)
	OrderBook(ctx context.Context, symbol string) (*OrderBookMetrics, error)
	FundingRate(ctx context.Context, symbol string) (float64, error)
	OpenInterest(ctx context.Context, symbol string) (float64, error)
	OrderFlowRatio(ctx context.Context, symbol string) (float64, error)
}

// Client is the Market-Data Client. It is
// read-shared across bots; its OI-delta memory is keyed per symbol and the
// last-value update is benign under a single-threaded scheduler, so no
// mutex guards the oi map beyond what's needed for safety when embedded
// in a real goroutine-per-bot runtime.
type Client struct {
	rest ExchangeREST

	mu       sync.Mutex
	lastOI   map[string]float64
	oiAsOf   map[string]time.Time
}

// NewClient wires a Market-Data Client against the given REST boundary.
func NewClient(rest ExchangeREST) *Client {
	return &Client{
		rest:   rest,
		lastOI: make(map[string]float64),
		oiAsOf: make(map[string]time.Time),
	}
}

// Candles fetches `limit` candles of the given timeframe, erroring if the
// exchange cannot serve them.
func (c *Client) Candles(ctx context.Context, symbol string, tf Timeframe, limit int) ([]Candle, error) {
	candles, err := c.rest.Klines(ctx, symbol, tf, limit)
	if err != nil {
		return nil, fmt.Errorf("marketdata: klines %s %s: %w", symbol, tf, err)
	}
	return candles, nil
}

// CandlesForMode fetches every timeframe ModeTimeframes names for mode,
// returning a map keyed by timeframe. An error on any single timeframe
// fails the whole call.
func (c *Client) CandlesForMode(ctx context.Context, symbol, mode string, limit int) (map[Timeframe][]Candle, error) {
	timeframes, ok := ModeTimeframes[mode]
	if !ok {
		return nil, fmt.Errorf("marketdata: unknown mode %q", mode)
	}
	out := make(map[Timeframe][]Candle, len(timeframes))
	for _, tf := range timeframes {
		candles, err := c.Candles(ctx, symbol, tf, limit)
		if err != nil {
			return nil, err
		}
		out[tf] = candles
	}
	return out, nil
}

// OrderBook returns spread/depth metrics, or nil if the exchange has no
// orderbook snapshot available.
func (c *Client) OrderBook(ctx context.Context, symbol string) (*OrderBookMetrics, error) {
	metrics, err := c.rest.OrderBook(ctx, symbol)
	if err != nil {
		return nil, nil
	}
	return metrics, nil
}

// FundingRate returns the current funding rate, used by the Tradeability
// Layer's funding kill-switch and scoring.
func (c *Client) FundingRate(ctx context.Context, symbol string) (float64, error) {
	return c.rest.FundingRate(ctx, symbol)
}

// OpenInterestChangePct returns the percentage change in open interest
// since the last call for this symbol. The first call for a symbol has no
// prior value and returns 0 (neutral).
func (c *Client) OpenInterestChangePct(ctx context.Context, symbol string) (float64, error) {
	current, err := c.rest.OpenInterest(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("marketdata: open interest %s: %w", symbol, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, known := c.lastOI[symbol]
	c.lastOI[symbol] = current
	c.oiAsOf[symbol] = time.Now()

	if !known || prev == 0 {
		return 0, nil
	}
	return (current - prev) / prev * 100, nil
}

// OrderFlowRatio returns the taker-buy share of volume in [0,1], 0.5 =
// balanced (V4 only).
func (c *Client) OrderFlowRatio(ctx context.Context, symbol string) (float64, error) {
	return c.rest.OrderFlowRatio(ctx, symbol)
}
