package marketdata

import (
	"context"
	"errors"
	"testing"
)

type fakeREST struct {
	klines      map[Timeframe][]Candle
	klinesErr   error
	orderBook   *OrderBookMetrics
	orderBookErr error
	funding     float64
	oi          []float64
	oiIdx       int
	flow        float64
}

func (f *fakeREST) Klines(ctx context.Context, symbol string, tf Timeframe, limit int) ([]Candle, error) {
	if f.klinesErr != nil {
		return nil, f.klinesErr
	}
	return f.klines[tf], nil
}

func (f *fakeREST) OrderBook(ctx context.Context, symbol string) (*OrderBookMetrics, error) {
	if f.orderBookErr != nil {
		return nil, f.orderBookErr
	}
	return f.orderBook, nil
}

func (f *fakeREST) FundingRate(ctx context.Context, symbol string) (float64, error) {
	return f.funding, nil
}

func (f *fakeREST) OpenInterest(ctx context.Context, symbol string) (float64, error) {
	v := f.oi[f.oiIdx]
	if f.oiIdx < len(f.oi)-1 {
		f.oiIdx++
	}
	return v, nil
}

func (f *fakeREST) OrderFlowRatio(ctx context.Context, symbol string) (float64, error) {
	return f.flow, nil
}

func TestCandlesForMode_FailsWhenAnyTimeframeMissing(t *testing.T) {
	rest := &fakeREST{klinesErr: errors.New("boom")}
	c := NewClient(rest)
	_, err := c.CandlesForMode(context.Background(), "BTCUSDT", "scalp", 50)
	if err == nil {
		t.Fatalf("expected error when a timeframe fetch fails")
	}
}

func TestCandlesForMode_UnknownModeErrors(t *testing.T) {
	c := NewClient(&fakeREST{})
	_, err := c.CandlesForMode(context.Background(), "BTCUSDT", "nonsense", 50)
	if err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestOrderBook_MissingSnapshotReturnsNilNotError(t *testing.T) {
	rest := &fakeREST{orderBookErr: errors.New("no snapshot")}
	c := NewClient(rest)
	metrics, err := c.OrderBook(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("expected nil error on missing orderbook, got %v", err)
	}
	if metrics != nil {
		t.Fatalf("expected nil metrics on missing orderbook")
	}
}

func TestOpenInterestChangePct_FirstCallIsNeutral(t *testing.T) {
	rest := &fakeREST{oi: []float64{1000, 1050}}
	c := NewClient(rest)

	pct, err := c.OpenInterestChangePct(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pct != 0 {
		t.Fatalf("expected first call to be neutral (0), got %v", pct)
	}

	pct, err = c.OpenInterestChangePct(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pct <= 0 {
		t.Fatalf("expected positive OI change on second call, got %v", pct)
	}
}
