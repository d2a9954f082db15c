package marketdata

import "errors"

var (
	// ErrInvalidTrade is returned when a Trade fails validation.
	ErrInvalidTrade = errors.New("invalid trade")

	// ErrInvalidOrderBook is returned when an OrderBook fails validation.
	ErrInvalidOrderBook = errors.New("invalid order book")

	// ErrInvalidCandle is returned when a Candle fails validation.
	ErrInvalidCandle = errors.New("invalid candle")

	// ErrUnsupportedTimeframe is returned by ParseTimeframe for an unknown
	// timeframe string.
	ErrUnsupportedTimeframe = errors.New("unsupported timeframe")
)
