package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"jax-feed/domain/marketdata"
)

// coinbaseRESTAdapter normalizes Coinbase Exchange's /products/{id}/candles
// endpoint. Response rows are [time, low, high, open, close, volume], most
// recent first, granularity in seconds.
type coinbaseRESTAdapter struct{}

var coinbaseGranularitySeconds = map[marketdata.Timeframe]int{
	marketdata.Timeframe1m:  60,
	marketdata.Timeframe5m:  300,
	marketdata.Timeframe15m: 900,
	marketdata.Timeframe1h:  3600,
	marketdata.Timeframe4h:  14400,
	marketdata.Timeframe1d:  86400,
}

func (a coinbaseRESTAdapter) name() string    { return "coinbase" }
func (a coinbaseRESTAdapter) baseURL() string { return "https://api.exchange.coinbase.com" }

func (a coinbaseRESTAdapter) supportedTimeframes() []marketdata.Timeframe {
	tfs := make([]marketdata.Timeframe, 0, len(coinbaseGranularitySeconds))
	for tf := range coinbaseGranularitySeconds {
		tfs = append(tfs, tf)
	}
	return tfs
}

func (a coinbaseRESTAdapter) klinesPath(symbol string, timeframe marketdata.Timeframe, start, end time.Time, limit int) (string, map[string]string) {
	params := map[string]string{
		"granularity": strconv.Itoa(coinbaseGranularitySeconds[timeframe]),
	}
	if !start.IsZero() {
		params["start"] = start.UTC().Format(time.RFC3339)
	}
	if !end.IsZero() {
		params["end"] = end.UTC().Format(time.RFC3339)
	}
	return "/products/" + symbol + "/candles", params
}

func (a coinbaseRESTAdapter) parseKlines(symbol string, timeframe marketdata.Timeframe, body []byte) ([]marketdata.Candle, error) {
	var rows [][]float64
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("coinbase: decode candles: %w", err)
	}

	candles := make([]marketdata.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("coinbase: malformed candle row: %d fields", len(row))
		}
		candles = append(candles, marketdata.Candle{
			Timestamp:   time.Unix(int64(row[0]), 0).UTC(),
			Exchange:    a.name(),
			Symbol:      symbol,
			Timeframe:   timeframe,
			Low:         row[1],
			High:        row[2],
			Open:        row[3],
			Close:       row[4],
			Volume:      row[5],
			IsSynthetic: false,
		})
	}
	// Coinbase returns newest-first; callers expect ascending order.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}
