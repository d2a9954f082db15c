// Package columnarstore implements ColumnarSink: the batched, pooled
// Postgres writer/reader for trades, candles, and indicator values.
package columnarstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"jax-feed/libs/observability"
)

// conn is the subset of *pgx.Conn the store needs. Narrowing to an interface
// lets pool discipline (poison/recover/shrink) be unit tested against a fake
// without a live Postgres connection.
type conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close(ctx context.Context) error
}

// Config configures a Pool and the Sink built on top of it.
type Config struct {
	DSN string

	// PoolSize is the number of connections held open at steady state.
	PoolSize int

	// AcquireTimeout bounds how long Acquire waits for a free connection.
	AcquireTimeout time.Duration

	// TradeBatchSize is the number of trades buffered before a batch flush.
	TradeBatchSize int

	// TradeQueueSize and TradeWorkers size the WorkerQueue fronting trade writes.
	TradeQueueSize int
	TradeWorkers   int

	// Metrics, if set, is threaded into the trade WorkerQueue and the pool's
	// poison/recovery bookkeeping. Optional.
	Metrics *observability.FeedMetrics
}

// DefaultConfig returns production-sensible defaults.
func DefaultConfig() Config {
	return Config{
		PoolSize:       10,
		AcquireTimeout: 5 * time.Second,
		TradeBatchSize: 500,
		TradeQueueSize: 10000,
		TradeWorkers:   2,
	}
}

// Pool is a small, fixed-size connection pool with explicit poison-recovery
// discipline: a connection that errors during use is never returned to the
// pool. Instead a fresh replacement is dialed and put back in its place. If
// the replacement dial also fails, the pool permanently shrinks by one
// rather than blocking forever on a slot that can never be filled again.
type Pool struct {
	dsn  string
	dial func(ctx context.Context, dsn string) (conn, error)
	ch   chan conn
	size int32 // current target size, may shrink permanently on repeated dial failure

	closeOnce sync.Once

	// metrics, if set, receives PoolSize/PoolPoisonEvents updates. Optional;
	// assigned by Sink.New after NewPool returns rather than threaded through
	// NewPool's signature, since nothing outside this package constructs a
	// Pool directly.
	metrics *observability.FeedMetrics
}

func dialPgx(ctx context.Context, dsn string) (conn, error) {
	return pgx.Connect(ctx, dsn)
}

// NewPool dials size connections and returns a Pool ready for use.
func NewPool(ctx context.Context, dsn string, size int) (*Pool, error) {
	return newPool(ctx, dsn, size, dialPgx)
}

func newPool(ctx context.Context, dsn string, size int, dial func(ctx context.Context, dsn string) (conn, error)) (*Pool, error) {
	if size <= 0 {
		size = 1
	}
	p := &Pool{
		dsn:  dsn,
		dial: dial,
		ch:   make(chan conn, size),
		size: int32(size),
	}
	for i := 0; i < size; i++ {
		c, err := dial(ctx, dsn)
		if err != nil {
			p.Close(context.Background())
			return nil, fmt.Errorf("columnarstore: dial connection %d/%d: %w", i+1, size, err)
		}
		p.ch <- c
	}
	return p, nil
}

// Acquire blocks until a connection is available, the context is cancelled,
// or timeout elapses.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (conn, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	acquireCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case c, ok := <-p.ch:
		if !ok {
			return nil, fmt.Errorf("columnarstore: pool closed")
		}
		return c, nil
	case <-acquireCtx.Done():
		return nil, fmt.Errorf("columnarstore: acquire timed out after %s: %w", timeout, acquireCtx.Err())
	}
}

// Release returns c to the pool. If poisoned is true, c is assumed broken
// (the operation that used it failed): it is closed rather than reused, and
// a fresh replacement is dialed to take its place. If the replacement dial
// itself fails, the pool permanently shrinks by one and an error-level event
// is logged — the caller's Acquire pool just got smaller.
func (p *Pool) Release(ctx context.Context, c conn, poisoned bool) {
	if !poisoned {
		p.ch <- c
		return
	}

	_ = c.Close(context.Background())
	observability.LogEvent(ctx, "warn", "columnarstore.pool.poisoned", map[string]any{
		"action": "replacing connection",
	})

	fresh, err := p.dial(ctx, p.dsn)
	if err != nil {
		newSize := atomic.AddInt32(&p.size, -1)
		observability.LogEvent(ctx, "error", "columnarstore.pool.shrink", map[string]any{
			"error":    err.Error(),
			"new_size": newSize,
		})
		if p.metrics != nil {
			p.metrics.PoolPoisonEvents.Inc("outcome", "shrunk")
			p.metrics.PoolSize.Set(float64(newSize))
		}
		return
	}
	if p.metrics != nil {
		p.metrics.PoolPoisonEvents.Inc("outcome", "recovered")
	}
	p.ch <- fresh
}

// Size returns the pool's current target size (may be below the original
// configured size if replacement dials have failed).
func (p *Pool) Size() int {
	return int(atomic.LoadInt32(&p.size))
}

// Close drains the pool and closes every held connection. Safe to call once;
// subsequent calls are no-ops.
func (p *Pool) Close(ctx context.Context) {
	p.closeOnce.Do(func() {
		close(p.ch)
		for c := range p.ch {
			_ = c.Close(ctx)
		}
	})
}

// withConn acquires a connection, runs fn, and releases the connection —
// poisoned if fn returned an error.
func (p *Pool) withConn(ctx context.Context, timeout time.Duration, fn func(conn) error) error {
	c, err := p.Acquire(ctx, timeout)
	if err != nil {
		return err
	}
	err = fn(c)
	p.Release(ctx, c, err != nil)
	return err
}
