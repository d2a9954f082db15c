// Package candlesync turns authoritative REST endpoints into complete,
// gap-minimized candle series in the store. It runs an initial backfill pass
// followed by a cyclic sync loop, concurrent across exchanges and
// sequential across symbols within one exchange so each exchange's rate
// limiter is shared across its own symbol set.
package candlesync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"jax-feed/domain/marketdata"
	"jax-feed/exchange"
	"jax-feed/libs/columnarstore"
	"jax-feed/libs/observability"
)

// ExchangeSymbols is the configured symbol set for one exchange.
type ExchangeSymbols struct {
	Exchange string
	Symbols  []string
}

// Config parameterizes a Syncer.
type Config struct {
	Exchanges             []ExchangeSymbols
	Timeframes            []marketdata.Timeframe
	IntervalSeconds       int
	FetchLimit            int
	InitialBackfillLimit  int
	RESTTimeoutMS         int
}

// RESTClientFactory builds a fresh REST client for one exchange. One
// instance is built per exchange per cycle so the exchange's own rate
// limiter is shared across every symbol fetched in that cycle.
type RESTClientFactory func(exchangeName string) (exchange.RESTClient, error)

// CandleWriter is the slice of ColumnarSink CandleSync depends on. Narrowed
// to one method so cycle logic can be tested against a fake writer instead
// of a live Postgres-backed Sink.
type CandleWriter interface {
	InsertCandles(ctx context.Context, candles []marketdata.Candle, timeframe marketdata.Timeframe) error
}

var _ CandleWriter = (*columnarstore.Sink)(nil)

// Syncer is CandleSync: it owns the cyclic compute loop plus the one-shot
// backfill/sync entry points exposed for startup and tests.
type Syncer struct {
	cfg     Config
	sink    CandleWriter
	newREST RESTClientFactory

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// New builds a Syncer. newREST is typically exchange.NewRESTClient, wrapped
// so the RESTConfig carries cfg.RESTTimeoutMS.
func New(cfg Config, sink CandleWriter, newREST RESTClientFactory) *Syncer {
	return &Syncer{
		cfg:     cfg,
		sink:    sink,
		newREST: newREST,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start runs initial backfill then the cyclic sync loop until Stop is
// called. It blocks; call it from its own goroutine.
func (s *Syncer) Start(ctx context.Context) {
	defer close(s.doneCh)

	s.BackfillOnce(ctx)

	interval := time.Duration(s.cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		cycleStart := time.Now()
		s.SyncAllOnce(ctx)
		elapsed := time.Since(cycleStart)

		observability.LogEvent(ctx, "info", "candlesync_cycle_complete", map[string]any{
			"elapsed_ms": elapsed.Milliseconds(),
		})

		wait := interval - elapsed
		if wait < 0 {
			wait = 0
		}

		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Stop flips a cooperative flag; the current cycle completes, then the
// loop exits. It does not block.
func (s *Syncer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// Wait blocks until Start's loop has returned.
func (s *Syncer) Wait() {
	<-s.doneCh
}

// BackfillOnce fetches InitialBackfillLimit candles per (symbol, timeframe),
// concurrent across exchanges, sequential across symbols within one
// exchange.
func (s *Syncer) BackfillOnce(ctx context.Context) {
	limit := s.cfg.InitialBackfillLimit
	if limit <= 0 {
		limit = 100
	}
	s.runCycle(ctx, limit)
}

// SyncAllOnce fetches FetchLimit latest candles per (symbol, timeframe),
// same concurrency shape as BackfillOnce.
func (s *Syncer) SyncAllOnce(ctx context.Context) {
	limit := s.cfg.FetchLimit
	if limit <= 0 {
		limit = 5
	}
	s.runCycle(ctx, limit)
}

func (s *Syncer) runCycle(ctx context.Context, limit int) {
	var successCount, failureCount int64

	g, gctx := errgroup.WithContext(ctx)
	for _, es := range s.cfg.Exchanges {
		es := es
		g.Go(func() error {
			s.syncExchange(gctx, es, limit, &successCount, &failureCount)
			return nil
		})
	}
	// Errors from syncExchange are counted, not propagated: a failing
	// exchange must never abort the cycle for the others.
	_ = g.Wait()

	observability.LogEvent(ctx, "info", "candlesync_cycle_counts", map[string]any{
		"success": atomic.LoadInt64(&successCount),
		"failure": atomic.LoadInt64(&failureCount),
	})
}

func (s *Syncer) syncExchange(ctx context.Context, es ExchangeSymbols, limit int, successCount, failureCount *int64) {
	client, err := s.newREST(es.Exchange)
	if err != nil {
		observability.LogEvent(ctx, "error", "candlesync_rest_client_failed", map[string]any{
			"exchange": es.Exchange,
			"error":    err.Error(),
		})
		atomic.AddInt64(failureCount, int64(len(es.Symbols)*len(s.cfg.Timeframes)))
		return
	}
	defer client.Close()

	for _, symbol := range es.Symbols {
		for _, timeframe := range s.cfg.Timeframes {
			if err := s.syncOne(ctx, client, es.Exchange, symbol, timeframe, limit); err != nil {
				atomic.AddInt64(failureCount, 1)
				observability.LogEvent(ctx, "error", "candlesync_fetch_failed", map[string]any{
					"exchange":  es.Exchange,
					"symbol":    symbol,
					"timeframe": string(timeframe),
					"error":     err.Error(),
				})
				continue
			}
			atomic.AddInt64(successCount, 1)
		}
	}
}

func (s *Syncer) syncOne(ctx context.Context, client exchange.RESTClient, exchangeName, symbol string, timeframe marketdata.Timeframe, limit int) error {
	candles, err := client.FetchLatestKlines(ctx, symbol, timeframe, limit)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return nil
	}

	// CandleSync is the sole writer of authoritative (non-synthetic) rows.
	for i := range candles {
		candles[i].Exchange = exchangeName
		candles[i].Symbol = symbol
		candles[i].Timeframe = timeframe
		candles[i].IsSynthetic = false
	}

	return s.sink.InsertCandles(ctx, candles, timeframe)
}
