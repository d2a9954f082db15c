// Package cachesink implements CacheSink: the best-effort, drop-tolerant
// Redis writer behind latest price, order book, and indicator key schemas.
package cachesink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jax-feed/libs/observability"
	"jax-feed/libs/workerqueue"
)

// TTL is the fixed expiry applied to every key CacheSink writes.
const TTL = 60 * time.Second

// Config parameterizes a Sink.
type Config struct {
	RedisURL string

	// QueueSize and Workers size the WorkerQueue fronting every Set call.
	QueueSize int
	Workers   int

	// Metrics, if set, is threaded into the set WorkerQueue. Optional.
	Metrics *observability.FeedMetrics
}

// DefaultConfig returns production-sensible defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize: 10000,
		Workers:   2,
	}
}

type setRequest struct {
	key   string
	value []byte
	ttl   time.Duration
}

// Sink is CacheSink: EnqueueSet never blocks the caller, drops are
// acceptable under backpressure, and drop-rate logging warns at 50 drops/s
// and never escalates to the error tier.
type Sink struct {
	client *redis.Client
	queue  *workerqueue.Queue[setRequest]
}

// New dials Redis and starts the set-request worker pool.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		// Not a redis:// URL: treat the value as a bare host:port.
		opts = &redis.Options{Addr: cfg.RedisURL}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("cachesink: connect to redis: %w", err)
	}

	return newSink(client, cfg), nil
}

// newSink wires a Sink around an already-connected client, separated from
// dialing so tests can supply a mocked client.
func newSink(client *redis.Client, cfg Config) *Sink {
	s := &Sink{client: client}
	s.queue = workerqueue.New(workerqueue.Config{
		Name:    "cachesink.set",
		Size:    cfg.QueueSize,
		Workers: cfg.Workers,
		Thresholds: workerqueue.DropThresholds{
			WarnPerSec:  50,
			PanicPerSec: workerqueue.PanicDisabled,
		},
		Metrics: cfg.Metrics,
	}, s.handleSet)

	return s
}

func (s *Sink) handleSet(ctx context.Context, req setRequest) error {
	return s.client.Set(ctx, req.key, req.value, req.ttl).Err()
}

// EnqueueSet queues a raw value for writing under key with the default TTL.
// Non-blocking: under backpressure the write is dropped rather than stalling
// the caller.
func (s *Sink) EnqueueSet(ctx context.Context, key string, value []byte) workerqueue.Outcome {
	return s.queue.Enqueue(ctx, setRequest{key: key, value: value, ttl: TTL})
}

// LatestPriceKey is the key schema for the most recent trade price of a
// symbol on an exchange.
func LatestPriceKey(exchange, symbol string) string {
	return fmt.Sprintf("latest_price:%s:%s", exchange, symbol)
}

// OrderBookKey is the key schema for the latest order book snapshot.
func OrderBookKey(exchange, symbol string) string {
	return fmt.Sprintf("orderbook:%s:%s", exchange, symbol)
}

// IndicatorsKey is the key schema for the latest computed indicator set at a
// given timeframe.
func IndicatorsKey(exchange, symbol, timeframe string) string {
	return fmt.Sprintf("indicators:%s:%s:%s", exchange, symbol, timeframe)
}

// SetLatestPrice queues the latest trade price for an exchange/symbol pair.
func (s *Sink) SetLatestPrice(ctx context.Context, exchange, symbol string, price string) workerqueue.Outcome {
	return s.EnqueueSet(ctx, LatestPriceKey(exchange, symbol), []byte(price))
}

// SetOrderBook queues a JSON-encoded order book snapshot. payload is
// expected to already be the caller's normalized shape (e.g.
// marketdata.OrderBook) — cachesink stays decoupled from the domain package
// and only needs something json.Marshal can handle.
func (s *Sink) SetOrderBook(ctx context.Context, exchange, symbol string, payload any) (workerqueue.Outcome, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return workerqueue.Dropped, fmt.Errorf("cachesink: marshal orderbook: %w", err)
	}
	return s.EnqueueSet(ctx, OrderBookKey(exchange, symbol), data), nil
}

// SetIndicators queues a JSON-encoded map of the latest computed indicator
// values for an exchange/symbol/timeframe.
func (s *Sink) SetIndicators(ctx context.Context, exchange, symbol, timeframe string, payload any) (workerqueue.Outcome, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return workerqueue.Dropped, fmt.Errorf("cachesink: marshal indicators: %w", err)
	}
	return s.EnqueueSet(ctx, IndicatorsKey(exchange, symbol, timeframe), data), nil
}

// Close stops accepting new writes, drains in-flight ones, and closes the
// Redis client.
func (s *Sink) Close() error {
	s.queue.Close()
	return s.client.Close()
}
