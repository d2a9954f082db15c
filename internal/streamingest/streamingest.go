// Package streamingest implements StreamIngest: it maintains persistent
// per-exchange WebSocket sessions, normalizes exchange messages into Trade
// and OrderBook, validates them, and publishes the results to CacheSink.
// The reader/consumer split and orderbook sampling live in the exchange
// package's WSClient; this package owns validation and cache publication.
package streamingest

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"jax-feed/domain/marketdata"
	"jax-feed/exchange"
	"jax-feed/libs/observability"
	"jax-feed/libs/workerqueue"
)

// CacheWriter is the slice of CacheSink StreamIngest depends on, narrowed so
// this package is testable against a fake instead of a live Redis-backed
// Sink.
type CacheWriter interface {
	SetLatestPrice(ctx context.Context, exchange, symbol string, price string) workerqueue.Outcome
	SetOrderBook(ctx context.Context, exchange, symbol string, payload any) (workerqueue.Outcome, error)
}

// orderBookSummary is CacheSink's orderbook JSON shape.
type orderBookSummary struct {
	BestBidPrice string `json:"best_bid_price"`
	BestBidQty   string `json:"best_bid_qty"`
	BestAskPrice string `json:"best_ask_price"`
	BestAskQty   string `json:"best_ask_qty"`
	Spread       string `json:"spread"`
	MidPrice     string `json:"mid_price"`
	Timestamp    string `json:"timestamp"`
}

// WSClientFactory builds a WSClient for one exchange, typically
// exchange.NewWSClient.
type WSClientFactory func(exchangeName string, cfg exchange.WSConfig) (exchange.WSClient, error)

// ExchangeSubscription is one exchange's symbol subscription plan.
type ExchangeSubscription struct {
	Exchange string
	Symbols  []string
}

// Config parameterizes an Orchestrator.
type Config struct {
	Exchanges         []ExchangeSubscription
	SpikeThresholdPct float64
	WS                exchange.WSConfig
	Metrics           *observability.FeedMetrics
}

// Orchestrator owns one Client per configured exchange.
type Orchestrator struct {
	clients []*Client
}

// NewOrchestrator builds and connects one Client per configured exchange.
// A client that fails to connect is logged and skipped; the others still
// start, matching CandleSync's "one bad collaborator never aborts the rest"
// posture applied to the streaming path.
func NewOrchestrator(ctx context.Context, cfg Config, newWS WSClientFactory, cache CacheWriter) *Orchestrator {
	o := &Orchestrator{}
	for _, sub := range cfg.Exchanges {
		ws, err := newWS(sub.Exchange, cfg.WS)
		if err != nil {
			observability.LogEvent(ctx, "error", "streamingest_ws_client_failed", map[string]any{
				"exchange": sub.Exchange,
				"error":    err.Error(),
			})
			continue
		}
		client := newClient(sub.Exchange, ws, cache, cfg.SpikeThresholdPct, cfg.Metrics)
		if err := ws.Connect(ctx, sub.Symbols); err != nil {
			observability.LogEvent(ctx, "error", "streamingest_connect_failed", map[string]any{
				"exchange": sub.Exchange,
				"error":    err.Error(),
			})
			continue
		}
		o.clients = append(o.clients, client)
	}
	return o
}

// Start launches every connected client's reader loop. It does not block.
func (o *Orchestrator) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, c := range o.clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			c.ws.Start(ctx)
		}(c)
	}
}

// Stop closes every client's session.
func (o *Orchestrator) Stop() {
	for _, c := range o.clients {
		c.ws.Stop()
	}
}

// Client binds one exchange's WSClient to validation and cache publication.
type Client struct {
	exchangeName string
	ws           exchange.WSClient
	cache        CacheWriter
	validator    *marketdata.Validator
	metrics      *observability.FeedMetrics
}

func newClient(exchangeName string, ws exchange.WSClient, cache CacheWriter, spikeThresholdPct float64, metrics *observability.FeedMetrics) *Client {
	c := &Client{
		exchangeName: exchangeName,
		ws:           ws,
		cache:        cache,
		validator:    marketdata.NewValidator(spikeThresholdPct),
		metrics:      metrics,
	}
	ws.OnTrade(c.handleTrade)
	ws.OnOrderBook(c.handleOrderBook)
	return c
}

func (c *Client) handleTrade(trade marketdata.Trade) {
	ctx := context.Background()

	spiked, err := c.validator.ValidateTrade(trade)
	if err != nil {
		if c.metrics != nil {
			c.metrics.ValidationFailures.Inc("type", "trade")
		}
		observability.LogEvent(ctx, "debug", "streamingest_invalid_trade", map[string]any{
			"exchange": c.exchangeName,
			"symbol":   trade.Symbol,
			"error":    err.Error(),
		})
		return
	}
	if c.metrics != nil {
		c.metrics.StreamEventsReceived.Inc("exchange", c.exchangeName)
	}
	if spiked {
		observability.LogEvent(ctx, "warn", "streamingest_price_spike", map[string]any{
			"exchange": c.exchangeName,
			"symbol":   trade.Symbol,
			"price":    trade.Price.String(),
		})
	}

	c.cache.SetLatestPrice(ctx, trade.Exchange, trade.Symbol, trade.Price.String())
}

func (c *Client) handleOrderBook(ob marketdata.OrderBook) {
	ctx := context.Background()

	if err := c.validator.ValidateOrderBook(ob); err != nil {
		if c.metrics != nil {
			c.metrics.ValidationFailures.Inc("type", "orderbook")
		}
		observability.LogEvent(ctx, "debug", "streamingest_invalid_orderbook", map[string]any{
			"exchange": c.exchangeName,
			"symbol":   ob.Symbol,
			"error":    err.Error(),
		})
		return
	}
	if c.metrics != nil {
		c.metrics.StreamEventsReceived.Inc("exchange", c.exchangeName)
	}

	bid := ob.BestBid()
	ask := ob.BestAsk()
	spread := ask.Price.Sub(bid.Price)
	mid := bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2))

	summary := orderBookSummary{
		BestBidPrice: bid.Price.String(),
		BestBidQty:   bid.Quantity.String(),
		BestAskPrice: ask.Price.String(),
		BestAskQty:   ask.Quantity.String(),
		Spread:       spread.String(),
		MidPrice:     mid.String(),
		Timestamp:    ob.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
	}

	if _, err := c.cache.SetOrderBook(ctx, ob.Exchange, ob.Symbol, summary); err != nil {
		observability.LogEvent(ctx, "warn", "streamingest_cache_marshal_failed", map[string]any{
			"exchange": c.exchangeName,
			"symbol":   ob.Symbol,
			"error":    err.Error(),
		})
	}
}
