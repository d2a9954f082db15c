package exchange

import (
	"testing"
	"time"

	"jax-feed/domain/marketdata"
)

func TestCoinbaseRESTAdapter_ParseKlines_ReversesToAscending(t *testing.T) {
	// Coinbase returns newest-first: [time, low, high, open, close, volume]
	body := []byte(`[
		[1700000120, 99.0, 102.0, 100.0, 101.5, 50.0],
		[1700000060, 98.0, 101.0, 99.0, 100.0, 40.0]
	]`)

	adapter := coinbaseRESTAdapter{}
	candles, err := adapter.parseKlines("BTC-USD", marketdata.Timeframe1m, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if !candles[0].Timestamp.Before(candles[1].Timestamp) {
		t.Errorf("expected ascending order, got %v then %v", candles[0].Timestamp, candles[1].Timestamp)
	}
	if candles[0].Open != 99.0 || candles[0].Close != 100.0 {
		t.Errorf("unexpected first candle: %+v", candles[0])
	}
}

func TestCoinbaseRESTAdapter_ParseKlines_MalformedRow(t *testing.T) {
	adapter := coinbaseRESTAdapter{}
	_, err := adapter.parseKlines("BTC-USD", marketdata.Timeframe1m, []byte(`[[1,2,3]]`))
	if err == nil {
		t.Fatal("expected error for malformed row")
	}
}

func TestCoinbaseRESTAdapter_KlinesPath(t *testing.T) {
	adapter := coinbaseRESTAdapter{}
	path, params := adapter.klinesPath("BTC-USD", marketdata.Timeframe1h, time.Time{}, time.Time{}, 0)
	if path != "/products/BTC-USD/candles" {
		t.Errorf("unexpected path: %s", path)
	}
	if params["granularity"] != "3600" {
		t.Errorf("expected granularity 3600, got %s", params["granularity"])
	}
}
