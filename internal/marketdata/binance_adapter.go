package marketdata

import (
	"context"
	"fmt"
	"strconv"

	"cryptosignals/engine/internal/binance"
)

// BinanceAdapter satisfies ExchangeREST against a real
// binance.FuturesClient, translating this package's context-aware,
// typed-timeframe calls into the underlying signed/unsigned REST methods.
type BinanceAdapter struct {
	client binance.FuturesClient
}

// NewBinanceAdapter wraps a futures client for use as the Market-Data
// Client's REST boundary.
func NewBinanceAdapter(client binance.FuturesClient) *BinanceAdapter {
	return &BinanceAdapter{client: client}
}

func (a *BinanceAdapter) Klines(ctx context.Context, symbol string, tf Timeframe, limit int) ([]Candle, error) {
	raw, err := a.client.GetFuturesKlines(symbol, string(tf), limit)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s %s: %w", symbol, tf, err)
	}
	candles := make([]Candle, len(raw))
	for i, k := range raw {
		candles[i] = Candle{
			OpenTime:  k.OpenTime,
			CloseTime: k.CloseTime,
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
		}
	}
	return candles, nil
}

func (a *BinanceAdapter) OrderBook(ctx context.Context, symbol string) (*OrderBookMetrics, error) {
	depth, err := a.client.GetOrderBookDepth(symbol, 20)
	if err != nil {
		return nil, fmt.Errorf("binance order book %s: %w", symbol, err)
	}
	if len(depth.Bids) == 0 || len(depth.Asks) == 0 {
		return nil, fmt.Errorf("binance order book %s: empty book", symbol)
	}

	bestBid, err := strconv.ParseFloat(depth.Bids[0][0], 64)
	if err != nil {
		return nil, fmt.Errorf("binance order book %s: parsing best bid: %w", symbol, err)
	}
	bestAsk, err := strconv.ParseFloat(depth.Asks[0][0], 64)
	if err != nil {
		return nil, fmt.Errorf("binance order book %s: parsing best ask: %w", symbol, err)
	}

	bidDepth := sumDepth(depth.Bids)
	askDepth := sumDepth(depth.Asks)

	mid := (bestBid + bestAsk) / 2
	spreadPct := 0.0
	if mid > 0 {
		spreadPct = (bestAsk - bestBid) / mid * 100
	}

	return &OrderBookMetrics{
		SpreadPct: spreadPct,
		BidDepth:  bidDepth,
		AskDepth:  askDepth,
	}, nil
}

func sumDepth(levels [][]string) float64 {
	var total float64
	for _, level := range levels {
		if len(level) < 2 {
			continue
		}
		qty, err := strconv.ParseFloat(level[1], 64)
		if err != nil {
			continue
		}
		total += qty
	}
	return total
}

func (a *BinanceAdapter) FundingRate(ctx context.Context, symbol string) (float64, error) {
	rate, err := a.client.GetFundingRate(symbol)
	if err != nil {
		return 0, fmt.Errorf("binance funding rate %s: %w", symbol, err)
	}
	return rate.FundingRate, nil
}

func (a *BinanceAdapter) OpenInterest(ctx context.Context, symbol string) (float64, error) {
	oi, err := a.client.GetOpenInterest(symbol)
	if err != nil {
		return 0, fmt.Errorf("binance open interest %s: %w", symbol, err)
	}
	return oi.OpenInterest, nil
}

// OrderFlowRatio returns the most recent 1m kline's taker-buy share of
// volume in [0,1] (0.5 = balanced), since the futures REST surface has no
// dedicated order-flow endpoint. No data reads as balanced.
func (a *BinanceAdapter) OrderFlowRatio(ctx context.Context, symbol string) (float64, error) {
	klines, err := a.client.GetFuturesKlines(symbol, "1m", 1)
	if err != nil {
		return 0, fmt.Errorf("binance order flow %s: %w", symbol, err)
	}
	if len(klines) == 0 || klines[0].Volume == 0 {
		return 0.5, nil
	}
	last := klines[0]
	return last.TakerBuyBaseAssetVolume / last.Volume, nil
}
