// Package marketdata is the Market-Data Client: REST snapshot fetches for
// OHLCV/funding/open-interest/orderbook plus the inbound deal-stream
// WebSocket worker (REST interface boundary, the stream's
// reconnect/keepalive idiom).
package marketdata

import (
	"time"

	"cryptosignals/engine/internal/indicator"
)

// Timeframe is a kline interval understood by the exchange client.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
)

// ModeTimeframes maps each mode to its analysis/filter timeframe pair.
var ModeTimeframes = map[string][]Timeframe{
	"scalp":    {Timeframe1m, Timeframe5m, Timeframe15m},
	"swing":    {Timeframe15m, Timeframe1h, Timeframe4h},
	"position": {Timeframe1h, Timeframe4h},
}

// OrderBookMetrics summarises the spread/depth inputs the Tradeability
// Layer consumes. A nil *OrderBookMetrics from Client.OrderBook signals
// a missing orderbook, which callers must map to the neutral-positive
// 0.7 default rather than treating as an error.
type OrderBookMetrics struct {
	SpreadPct float64
	BidDepth  float64
	AskDepth  float64
}

// Deal is one trade print from the deal stream, taker-side normalised to
// bool (true=buy) from the wire's T∈{1,2}.
type Deal struct {
	Symbol    string
	Price     float64
	Volume    float64
	TakerBuy  bool
	Timestamp time.Time
}

// rawDealMessage is the upstream push-deal wire shape:
// {channel:"push.deal", symbol:"<NATIVE>", data:[{p,v,T,t}, ...]}
// data may also arrive as a single object instead of an array, handled in
// UnmarshalJSON.
type rawDealMessage struct {
	Channel string        `json:"channel"`
	Symbol  string        `json:"symbol"`
	Data    rawDealEntries `json:"data"`
}

type rawDealEntry struct {
	Price     float64 `json:"p"`
	Volume    float64 `json:"v"`
	TakerSide int     `json:"T"`
	Millis    int64   `json:"t"`
}

// Candle is re-exported so callers of this package do not need to import
// internal/indicator directly just to hold OHLCV data.
type Candle = indicator.Candle
