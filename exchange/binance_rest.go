package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"jax-feed/domain/marketdata"
)

// binanceRESTAdapter normalizes Binance's /api/v3/klines REST endpoint.
// Response rows are untyped JSON arrays:
//
//	[openTime, open, high, low, close, volume, closeTime, quoteVolume,
//	 trades, takerBuyBase, takerBuyQuote, ignore]
type binanceRESTAdapter struct{}

var binanceTimeframes = map[marketdata.Timeframe]string{
	marketdata.Timeframe1m:  "1m",
	marketdata.Timeframe5m:  "5m",
	marketdata.Timeframe15m: "15m",
	marketdata.Timeframe30m: "30m",
	marketdata.Timeframe1h:  "1h",
	marketdata.Timeframe4h:  "4h",
	marketdata.Timeframe1d:  "1d",
}

func (a binanceRESTAdapter) name() string     { return "binance" }
func (a binanceRESTAdapter) baseURL() string  { return "https://api.binance.com" }

func (a binanceRESTAdapter) supportedTimeframes() []marketdata.Timeframe {
	tfs := make([]marketdata.Timeframe, 0, len(binanceTimeframes))
	for tf := range binanceTimeframes {
		tfs = append(tfs, tf)
	}
	return tfs
}

func (a binanceRESTAdapter) klinesPath(symbol string, timeframe marketdata.Timeframe, start, end time.Time, limit int) (string, map[string]string) {
	params := map[string]string{
		"symbol":   symbol,
		"interval": binanceTimeframes[timeframe],
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	if !start.IsZero() {
		params["startTime"] = strconv.FormatInt(start.UnixMilli(), 10)
	}
	if !end.IsZero() {
		params["endTime"] = strconv.FormatInt(end.UnixMilli(), 10)
	}
	return "/api/v3/klines", params
}

func (a binanceRESTAdapter) parseKlines(symbol string, timeframe marketdata.Timeframe, body []byte) ([]marketdata.Candle, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("binance: decode klines: %w", err)
	}

	candles := make([]marketdata.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 9 {
			return nil, fmt.Errorf("binance: malformed kline row: %d fields", len(row))
		}

		openMS, err := parseRawInt(row[0])
		if err != nil {
			return nil, fmt.Errorf("binance: open time: %w", err)
		}
		open, err := parseRawDecimal(row[1])
		if err != nil {
			return nil, fmt.Errorf("binance: open price: %w", err)
		}
		high, err := parseRawDecimal(row[2])
		if err != nil {
			return nil, fmt.Errorf("binance: high price: %w", err)
		}
		low, err := parseRawDecimal(row[3])
		if err != nil {
			return nil, fmt.Errorf("binance: low price: %w", err)
		}
		closePrice, err := parseRawDecimal(row[4])
		if err != nil {
			return nil, fmt.Errorf("binance: close price: %w", err)
		}
		volume, err := parseRawDecimal(row[5])
		if err != nil {
			return nil, fmt.Errorf("binance: volume: %w", err)
		}
		quoteVolume, err := parseRawDecimal(row[7])
		if err != nil {
			return nil, fmt.Errorf("binance: quote volume: %w", err)
		}
		tradesCount, err := parseRawInt(row[8])
		if err != nil {
			return nil, fmt.Errorf("binance: trades count: %w", err)
		}

		openF, _ := open.Float64()
		highF, _ := high.Float64()
		lowF, _ := low.Float64()
		closeF, _ := closePrice.Float64()
		volumeF, _ := volume.Float64()
		quoteVolumeF, _ := quoteVolume.Float64()

		candles = append(candles, marketdata.Candle{
			Timestamp:   time.UnixMilli(openMS).UTC(),
			Exchange:    a.name(),
			Symbol:      symbol,
			Timeframe:   timeframe,
			Open:        openF,
			High:        highF,
			Low:         lowF,
			Close:       closeF,
			Volume:      volumeF,
			QuoteVolume: quoteVolumeF,
			TradesCount: tradesCount,
			IsSynthetic: false,
		})
	}
	return candles, nil
}

func parseRawDecimal(raw json.RawMessage) (decimal.Decimal, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var f float64
		if err2 := json.Unmarshal(raw, &f); err2 != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromFloat(f), nil
	}
	return decimal.NewFromString(s)
}

func parseRawInt(raw json.RawMessage) (int64, error) {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseInt(s, 10, 64)
}
