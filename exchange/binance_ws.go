package exchange

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"jax-feed/domain/marketdata"
)

// binanceWSAdapter normalizes Binance's combined-stream WebSocket endpoint,
// subscribing each symbol's trade and partial-depth streams.
type binanceWSAdapter struct{}

func (a binanceWSAdapter) name() string { return "binance" }

func (a binanceWSAdapter) dialURL(symbols []string) string {
	streams := make([]string, 0, len(symbols)*2)
	for _, sym := range symbols {
		lower := strings.ToLower(sym)
		streams = append(streams, lower+"@trade", lower+"@depth20@100ms")
	}
	return "wss://stream.binance.com:9443/stream?streams=" + strings.Join(streams, "/")
}

// subscribe is a no-op for Binance: the stream selection is already encoded
// in the dial URL's query string.
func (a binanceWSAdapter) subscribe(conn *websocket.Conn, symbols []string) error {
	return nil
}

type binanceStreamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type binanceTradeEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	TradeID   int64  `json:"t"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
	IsBuyerMM bool   `json:"m"`
}

type binanceDepthEvent struct {
	EventType string     `json:"e"`
	Symbol    string     `json:"s"`
	Bids      [][]string `json:"b"`
	Asks      [][]string `json:"a"`
}

func (a binanceWSAdapter) decode(raw []byte) (*wsMessage, error) {
	var envelope binanceStreamEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("binance ws: decode envelope: %w", err)
	}

	switch {
	case strings.HasSuffix(envelope.Stream, "@trade"):
		var ev binanceTradeEvent
		if err := json.Unmarshal(envelope.Data, &ev); err != nil {
			return nil, fmt.Errorf("binance ws: decode trade: %w", err)
		}
		price, err := decimal.NewFromString(ev.Price)
		if err != nil {
			return nil, fmt.Errorf("binance ws: trade price: %w", err)
		}
		qty, err := decimal.NewFromString(ev.Quantity)
		if err != nil {
			return nil, fmt.Errorf("binance ws: trade quantity: %w", err)
		}
		side := marketdata.SideBuy
		if ev.IsBuyerMM {
			side = marketdata.SideSell
		}
		trade := marketdata.Trade{
			Timestamp:    time.UnixMilli(ev.TradeTime).UTC(),
			Exchange:     a.name(),
			Symbol:       strings.ToUpper(ev.Symbol),
			TradeID:      fmt.Sprintf("%d", ev.TradeID),
			Price:        price,
			Quantity:     qty,
			Side:         side,
			IsBuyerMaker: ev.IsBuyerMM,
		}
		return &wsMessage{trade: &trade}, nil

	case strings.Contains(envelope.Stream, "@depth"):
		var ev binanceDepthEvent
		if err := json.Unmarshal(envelope.Data, &ev); err != nil {
			return nil, fmt.Errorf("binance ws: decode depth: %w", err)
		}
		book := marketdata.OrderBook{
			Timestamp: time.Now().UTC(),
			Exchange:  a.name(),
			Symbol:    strings.ToUpper(ev.Symbol),
			Bids:      make([]marketdata.Level, 0, len(ev.Bids)),
			Asks:      make([]marketdata.Level, 0, len(ev.Asks)),
		}
		for _, lvl := range ev.Bids {
			level, err := parseLevel(lvl)
			if err != nil {
				return nil, fmt.Errorf("binance ws: bid level: %w", err)
			}
			book.Bids = append(book.Bids, level)
		}
		for _, lvl := range ev.Asks {
			level, err := parseLevel(lvl)
			if err != nil {
				return nil, fmt.Errorf("binance ws: ask level: %w", err)
			}
			book.Asks = append(book.Asks, level)
		}
		return &wsMessage{orderBook: &book}, nil

	default:
		return nil, nil
	}
}

func parseLevel(pair []string) (marketdata.Level, error) {
	if len(pair) != 2 {
		return marketdata.Level{}, fmt.Errorf("expected [price, quantity], got %d fields", len(pair))
	}
	price, err := decimal.NewFromString(pair[0])
	if err != nil {
		return marketdata.Level{}, err
	}
	qty, err := decimal.NewFromString(pair[1])
	if err != nil {
		return marketdata.Level{}, err
	}
	return marketdata.Level{Price: price, Quantity: qty}, nil
}
