package exchange

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"jax-feed/domain/marketdata"
)

// coinbaseWSAdapter normalizes Coinbase Exchange's websocket-feed endpoint,
// subscribing each symbol to the "matches" (trades) and "level2" (order
// book) channels.
type coinbaseWSAdapter struct{}

func (a coinbaseWSAdapter) name() string { return "coinbase" }

func (a coinbaseWSAdapter) dialURL(symbols []string) string {
	return "wss://ws-feed.exchange.coinbase.com"
}

type coinbaseSubscribeMsg struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

func (a coinbaseWSAdapter) subscribe(conn *websocket.Conn, symbols []string) error {
	msg := coinbaseSubscribeMsg{
		Type:       "subscribe",
		ProductIDs: symbols,
		Channels:   []string{"matches", "level2"},
	}
	return conn.WriteJSON(msg)
}

type coinbaseMatchEvent struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	TradeID   int64  `json:"trade_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Time      string `json:"time"`
}

type coinbaseL2SnapshotEvent struct {
	Type      string     `json:"type"`
	ProductID string     `json:"product_id"`
	Bids      [][]string `json:"bids"`
	Asks      [][]string `json:"asks"`
}

func (a coinbaseWSAdapter) decode(raw []byte) (*wsMessage, error) {
	var typed struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &typed); err != nil {
		return nil, fmt.Errorf("coinbase ws: decode type: %w", err)
	}

	switch typed.Type {
	case "match", "last_match":
		var ev coinbaseMatchEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("coinbase ws: decode match: %w", err)
		}
		price, err := decimal.NewFromString(ev.Price)
		if err != nil {
			return nil, fmt.Errorf("coinbase ws: price: %w", err)
		}
		size, err := decimal.NewFromString(ev.Size)
		if err != nil {
			return nil, fmt.Errorf("coinbase ws: size: %w", err)
		}
		ts, err := time.Parse(time.RFC3339, ev.Time)
		if err != nil {
			ts = time.Now().UTC()
		}
		side := marketdata.SideBuy
		if ev.Side == "sell" {
			side = marketdata.SideSell
		}
		trade := marketdata.Trade{
			Timestamp: ts,
			Exchange:  a.name(),
			Symbol:    ev.ProductID,
			TradeID:   fmt.Sprintf("%d", ev.TradeID),
			Price:     price,
			Quantity:  size,
			Side:      side,
		}
		return &wsMessage{trade: &trade}, nil

	case "snapshot":
		var ev coinbaseL2SnapshotEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("coinbase ws: decode snapshot: %w", err)
		}
		book := marketdata.OrderBook{
			Timestamp: time.Now().UTC(),
			Exchange:  a.name(),
			Symbol:    ev.ProductID,
			Bids:      make([]marketdata.Level, 0, len(ev.Bids)),
			Asks:      make([]marketdata.Level, 0, len(ev.Asks)),
		}
		for _, lvl := range ev.Bids {
			level, err := parseLevel(lvl)
			if err != nil {
				return nil, fmt.Errorf("coinbase ws: bid level: %w", err)
			}
			book.Bids = append(book.Bids, level)
		}
		for _, lvl := range ev.Asks {
			level, err := parseLevel(lvl)
			if err != nil {
				return nil, fmt.Errorf("coinbase ws: ask level: %w", err)
			}
			book.Asks = append(book.Asks, level)
		}
		return &wsMessage{orderBook: &book}, nil

	default:
		// "subscriptions", "heartbeat", "l2update", "error" acks: ignored.
		return nil, nil
	}
}
