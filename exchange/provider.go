// Package exchange defines the normalized REST and WebSocket contracts
// CandleSync and StreamIngest consume, plus concrete adapters for specific
// crypto exchanges. Wire formats are exchange-specific; only the normalized
// output shapes (marketdata.Candle, marketdata.Trade, marketdata.OrderBook)
// cross this package's boundary.
package exchange

import (
	"context"
	"errors"
	"time"

	"jax-feed/domain/marketdata"
)

// ErrUnsupportedExchange is returned by the factory functions when no
// adapter is registered for the requested name.
var ErrUnsupportedExchange = errors.New("exchange: unsupported exchange")

// ErrUnsupportedTimeframe is returned when a REST client is asked for a
// timeframe its exchange does not support.
var ErrUnsupportedTimeframe = errors.New("exchange: unsupported timeframe")

// RESTClient is the normalized REST surface CandleSync drives. Errors may be
// transient (rate-limit, timeout) or permanent (bad symbol, auth); both
// bubble up identically — CandleSync treats either as "skip this pair this
// cycle".
type RESTClient interface {
	// FetchKlines returns closed candles in [start, end), ascending order.
	FetchKlines(ctx context.Context, symbol string, timeframe marketdata.Timeframe, start, end time.Time, limit int) ([]marketdata.Candle, error)
	// FetchLatestKlines returns the latest `limit` closed candles, ascending.
	FetchLatestKlines(ctx context.Context, symbol string, timeframe marketdata.Timeframe, limit int) ([]marketdata.Candle, error)
	SupportedTimeframes() []marketdata.Timeframe
	Close() error
}

// TradeCallback and OrderBookCallback are invoked by a WSClient's consumer
// workers — never by its reader loop directly.
type TradeCallback func(marketdata.Trade)
type OrderBookCallback func(marketdata.OrderBook)

// WSClient is the normalized WebSocket surface StreamIngest drives for a
// single exchange.
type WSClient interface {
	// Connect establishes the subscription plan without blocking on messages.
	Connect(ctx context.Context, symbols []string) error
	// Start runs the reader loop; on disconnect it reconnects after a fixed
	// backoff, forever, until Stop is called.
	Start(ctx context.Context)
	Stop()
	OnTrade(cb TradeCallback)
	OnOrderBook(cb OrderBookCallback)
}
