// Package marketdata defines the canonical shapes that flow between
// StreamIngest, CandleSync, ColumnarSink, CacheSink, and IndicatorEngine.
package marketdata

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the aggressor side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is an individual execution normalized from an exchange WebSocket
// feed. It is immutable and never persisted directly; it is consumed within
// the same process by validation, CacheSink, and (via batching) the store.
type Trade struct {
	Timestamp    time.Time
	Exchange     string
	Symbol       string
	TradeID      string
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	Side         Side
	IsBuyerMaker bool
}

// Level is a single (price, quantity) rung of an order book side.
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderBook is a normalized depth snapshot. Bids must be sorted descending by
// price, asks ascending, with a strictly positive spread (no crossed book).
type OrderBook struct {
	Timestamp time.Time
	Exchange  string
	Symbol    string
	Bids      []Level
	Asks      []Level
	Checksum  int64
}

// BestBid returns the highest bid, or a zero Level if the book is empty.
func (ob OrderBook) BestBid() Level {
	if len(ob.Bids) == 0 {
		return Level{}
	}
	return ob.Bids[0]
}

// BestAsk returns the lowest ask, or a zero Level if the book is empty.
func (ob OrderBook) BestAsk() Level {
	if len(ob.Asks) == 0 {
		return Level{}
	}
	return ob.Asks[0]
}

// Timeframe is a candle aggregation period.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// Minutes returns the aggregation period in minutes, or 0 if tf is unknown.
func (tf Timeframe) Minutes() int {
	switch tf {
	case Timeframe1m:
		return 1
	case Timeframe5m:
		return 5
	case Timeframe15m:
		return 15
	case Timeframe30m:
		return 30
	case Timeframe1h:
		return 60
	case Timeframe4h:
		return 240
	case Timeframe1d:
		return 1440
	default:
		return 0
	}
}

// Candle is one OHLCV bar. Its identity key is (Exchange, Symbol, Timeframe,
// Timestamp); newer writes for the same key replace older ones on merge, so
// rows are always safe to re-submit.
type Candle struct {
	Timestamp   time.Time
	Exchange    string
	Symbol      string
	Timeframe   Timeframe
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	QuoteVolume float64
	TradesCount int64
	IsSynthetic bool
}

// Validate enforces the invariants CandleSync requires of every row it
// writes: open/high/low/close strictly positive, volume non-negative, and
// high/low bracketing the other three prices.
func (c Candle) Validate() error {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("%w: open/high/low/close must be > 0", ErrInvalidCandle)
	}
	if c.Volume < 0 {
		return fmt.Errorf("%w: volume must be >= 0", ErrInvalidCandle)
	}
	maxOCL := c.Open
	if c.Close > maxOCL {
		maxOCL = c.Close
	}
	if c.Low > maxOCL {
		maxOCL = c.Low
	}
	if c.High < maxOCL {
		return fmt.Errorf("%w: high must be >= max(open,close,low)", ErrInvalidCandle)
	}
	minOCH := c.Open
	if c.Close < minOCH {
		minOCH = c.Close
	}
	if c.High < minOCH {
		minOCH = c.High
	}
	if c.Low > minOCH {
		return fmt.Errorf("%w: low must be <= min(open,close,high)", ErrInvalidCandle)
	}
	return nil
}

// IndicatorPoint is one normalized indicator output row. Its identity key is
// (Exchange, Symbol, Timeframe, IndicatorName, Timestamp).
type IndicatorPoint struct {
	Timestamp      time.Time
	Exchange       string
	Symbol         string
	Timeframe      Timeframe
	IndicatorName  string
	IndicatorValue float64
}

// SymbolSpec is read-only per-symbol configuration loaded at startup.
type SymbolSpec struct {
	Exchange       string
	NativeSymbol   string
	BaseAsset      string
	QuoteAsset     string
	Features       map[string]bool
	RateLimitHints map[string]int
}

// GapInfo describes one detected hole in a candle series at a fixed
// timeframe spacing. It is transient: produced only inside the indicator
// path when synthetic gap fill is enabled, never persisted.
type GapInfo struct {
	StartTime           time.Time
	EndTime             time.Time
	MissingCount        int
	ExpectedIntervalMin int
}
