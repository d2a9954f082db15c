package columnarstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"jax-feed/domain/marketdata"
	"jax-feed/libs/observability"
	"jax-feed/libs/workerqueue"
)

// candleTables maps a timeframe to its dedicated table, mirroring the
// per-timeframe partitioning CandleSync writes into. Only the three
// timeframes the schema materializes (1m/5m/1h) have a backing table;
// other Timeframe values are valid domain types but have no persisted home.
var candleTables = map[marketdata.Timeframe]string{
	marketdata.Timeframe1m: "candles_1m",
	marketdata.Timeframe5m: "candles_5m",
	marketdata.Timeframe1h: "candles_1h",
}

// Sink is ColumnarSink: the pooled, batched Postgres writer and reader for
// trades, candles, and indicator values. Trade writes are asynchronous and
// best-effort (queued, batched, failures logged and swallowed); candle and
// indicator writes and every read are synchronous with errors surfaced to
// the caller.
type Sink struct {
	pool *Pool
	cfg  Config

	tradeQueue *workerqueue.Queue[marketdata.Trade]
	batcher    *tradeBatcher
}

// New builds a Sink: dials cfg.PoolSize connections and starts the trade
// batching workers.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	pool, err := NewPool(ctx, cfg.DSN, cfg.PoolSize)
	if err != nil {
		return nil, err
	}
	pool.metrics = cfg.Metrics
	if cfg.Metrics != nil {
		cfg.Metrics.PoolSize.Set(float64(cfg.PoolSize))
	}

	s := &Sink{pool: pool, cfg: cfg}
	s.batcher = &tradeBatcher{
		batchSize: cfg.TradeBatchSize,
		flush:     s.insertTradesBatch,
	}
	s.tradeQueue = workerqueue.New(workerqueue.Config{
		Name:    "columnarstore.trades",
		Size:    cfg.TradeQueueSize,
		Workers: cfg.TradeWorkers,
		Thresholds: workerqueue.DropThresholds{
			WarnPerSec:  0,
			PanicPerSec: 5,
		},
		Metrics: cfg.Metrics,
	}, s.batcher.add)

	return s, nil
}

// EnqueueTrades submits trades for best-effort, batched, asynchronous
// persistence. Each trade is queued individually; the queue drops on
// backpressure rather than blocking the caller. It returns the number of
// trades accepted into the queue (not yet necessarily written).
func (s *Sink) EnqueueTrades(ctx context.Context, trades []marketdata.Trade) int {
	accepted := 0
	for _, t := range trades {
		if s.tradeQueue.Enqueue(ctx, t) == workerqueue.Queued {
			accepted++
		}
	}
	return accepted
}

// tradeBatcher accumulates trades behind a mutex and flushes whenever the
// buffer reaches batchSize. There is no timer: the only other flush trigger
// is Sink.Close, which drains any partial batch still held after the queue's
// workers have stopped.
type tradeBatcher struct {
	mu        sync.Mutex
	buf       []marketdata.Trade
	batchSize int
	flush     func(ctx context.Context, batch []marketdata.Trade) error
}

func (b *tradeBatcher) add(ctx context.Context, t marketdata.Trade) error {
	b.mu.Lock()
	b.buf = append(b.buf, t)
	var toFlush []marketdata.Trade
	if len(b.buf) >= b.batchSize {
		toFlush = b.buf
		b.buf = nil
	}
	b.mu.Unlock()

	if toFlush == nil {
		return nil
	}
	return b.flush(ctx, toFlush)
}

func (b *tradeBatcher) drain(ctx context.Context) error {
	b.mu.Lock()
	toFlush := b.buf
	b.buf = nil
	b.mu.Unlock()

	if len(toFlush) == 0 {
		return nil
	}
	return b.flush(ctx, toFlush)
}

// insertTradesBatch writes one batch of trades. Failures here are logged by
// the worker queue's handler-error path and swallowed — trade persistence is
// best-effort per the spec, unlike candles and indicators.
func (s *Sink) insertTradesBatch(ctx context.Context, trades []marketdata.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batchID := uuid.New().String()
	err := s.pool.withConn(ctx, s.cfg.AcquireTimeout, func(conn conn) error {
		var sb strings.Builder
		sb.WriteString("INSERT INTO market_trades (timestamp, exchange, symbol, trade_id, price, quantity, side, is_buyer_maker) VALUES ")
		args := make([]any, 0, len(trades)*8)
		for i, t := range trades {
			if i > 0 {
				sb.WriteString(", ")
			}
			base := i * 8
			fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
				base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)
			args = append(args, t.Timestamp, t.Exchange, t.Symbol, t.TradeID,
				t.Price.String(), t.Quantity.String(), string(t.Side), t.IsBuyerMaker)
		}
		sb.WriteString(" ON CONFLICT (exchange, symbol, trade_id) DO NOTHING")

		_, err := conn.Exec(ctx, sb.String(), args...)
		return err
	})
	if err != nil {
		observability.LogEvent(ctx, "error", "columnarstore.trades.batch_failed", map[string]any{
			"batch_id": batchID,
			"count":    len(trades),
			"error":    err.Error(),
		})
	}
	return err
}

// InsertCandles writes candles for the given timeframe synchronously,
// upserting on the (exchange, symbol, timeframe, timestamp) identity key so
// repeated writes for the same bar replace rather than duplicate it. Every
// candle is validated before the batch is sent.
func (s *Sink) InsertCandles(ctx context.Context, candles []marketdata.Candle, timeframe marketdata.Timeframe) error {
	if len(candles) == 0 {
		return nil
	}
	table, ok := candleTables[timeframe]
	if !ok {
		return fmt.Errorf("columnarstore: unsupported timeframe %q", timeframe)
	}
	for _, c := range candles {
		if err := c.Validate(); err != nil {
			return err
		}
	}

	err := s.pool.withConn(ctx, s.cfg.AcquireTimeout, func(conn conn) error {
		var sb strings.Builder
		fmt.Fprintf(&sb, "INSERT INTO %s (timestamp, exchange, symbol, open, high, low, close, volume, quote_volume, trades_count, is_synthetic) VALUES ", table)
		args := make([]any, 0, len(candles)*11)
		for i, c := range candles {
			if i > 0 {
				sb.WriteString(", ")
			}
			base := i * 11
			fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
				base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10, base+11)
			args = append(args, c.Timestamp, c.Exchange, c.Symbol, c.Open, c.High, c.Low, c.Close,
				c.Volume, c.QuoteVolume, c.TradesCount, c.IsSynthetic)
		}
		sb.WriteString(` ON CONFLICT (exchange, symbol, timestamp) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low, close = EXCLUDED.close,
			volume = EXCLUDED.volume, quote_volume = EXCLUDED.quote_volume,
			trades_count = EXCLUDED.trades_count, is_synthetic = EXCLUDED.is_synthetic`)

		_, err := conn.Exec(ctx, sb.String(), args...)
		return err
	})
	if err == nil && s.cfg.Metrics != nil {
		s.cfg.Metrics.CandlesWritten.Add(float64(len(candles)))
	}
	return err
}

// InsertIndicators writes one row per indicator name/value pair for a single
// candle timestamp, synchronously, deduplicating on
// (exchange, symbol, timeframe, indicator_name, timestamp).
func (s *Sink) InsertIndicators(ctx context.Context, exchange, symbol string, timeframe marketdata.Timeframe, timestamp time.Time, values map[string]float64) error {
	if len(values) == 0 {
		return nil
	}

	err := s.pool.withConn(ctx, s.cfg.AcquireTimeout, func(conn conn) error {
		var sb strings.Builder
		sb.WriteString("INSERT INTO indicators (timestamp, exchange, symbol, timeframe, indicator_name, indicator_value) VALUES ")
		args := make([]any, 0, len(values)*6)
		i := 0
		for name, value := range values {
			if i > 0 {
				sb.WriteString(", ")
			}
			base := i * 6
			fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d)",
				base+1, base+2, base+3, base+4, base+5, base+6)
			args = append(args, timestamp, exchange, symbol, string(timeframe), name, value)
			i++
		}
		sb.WriteString(` ON CONFLICT (exchange, symbol, timeframe, indicator_name, timestamp)
			DO UPDATE SET indicator_value = EXCLUDED.indicator_value`)

		_, err := conn.Exec(ctx, sb.String(), args...)
		return err
	})
	if err == nil && s.cfg.Metrics != nil {
		s.cfg.Metrics.IndicatorsWritten.Add(float64(len(values)))
	}
	return err
}

// startOfCurrentInterval returns the start of the timeframe bucket `now`
// falls in: candles for the bucket still accumulating are never returned by
// QueryCandles, only closed ones.
func startOfCurrentInterval(timeframe marketdata.Timeframe, now time.Time) time.Time {
	minutes := timeframe.Minutes()
	if minutes <= 0 {
		minutes = 1
	}
	now = now.UTC()
	period := time.Duration(minutes) * time.Minute
	return now.Truncate(period)
}

// QueryCandles returns candles for (exchange, symbol, timeframe) in
// ascending timestamp order, excluding the still-open current interval.
// limit keeps only the newest `limit` matching rows; an optional
// [start, end) range further restricts the query.
func (s *Sink) QueryCandles(ctx context.Context, exchange, symbol string, timeframe marketdata.Timeframe, limit int, start, end *time.Time) ([]marketdata.Candle, error) {
	table, ok := candleTables[timeframe]
	if !ok {
		return nil, fmt.Errorf("columnarstore: unsupported timeframe %q", timeframe)
	}
	if limit <= 0 {
		limit = 200
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT timestamp, open, high, low, close, volume, quote_volume, trades_count, is_synthetic
		FROM %s WHERE exchange = $1 AND symbol = $2 AND timestamp < $3`, table)
	args := []any{exchange, symbol, startOfCurrentInterval(timeframe, time.Now())}

	if start != nil {
		args = append(args, *start)
		fmt.Fprintf(&sb, " AND timestamp >= $%d", len(args))
	}
	if end != nil {
		args = append(args, *end)
		fmt.Fprintf(&sb, " AND timestamp < $%d", len(args))
	}
	args = append(args, limit)
	fmt.Fprintf(&sb, " ORDER BY timestamp DESC LIMIT $%d", len(args))

	var candles []marketdata.Candle
	err := s.pool.withConn(ctx, s.cfg.AcquireTimeout, func(conn conn) error {
		rows, err := conn.Query(ctx, sb.String(), args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var c marketdata.Candle
			if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close,
				&c.Volume, &c.QuoteVolume, &c.TradesCount, &c.IsSynthetic); err != nil {
				return err
			}
			c.Exchange = exchange
			c.Symbol = symbol
			c.Timeframe = timeframe
			candles = append(candles, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	// Rows came back newest-first; reverse to ascending order.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// Row is one result row from Query, keyed by column name.
type Row map[string]any

// Query executes an arbitrary read-only SQL statement and returns its rows
// as a slice of column-keyed maps, for callers (e.g. ad-hoc diagnostics)
// that don't need a typed shape.
func (s *Sink) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	var out []Row
	err := s.pool.withConn(ctx, s.cfg.AcquireTimeout, func(conn conn) error {
		rows, err := conn.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		fields := rows.FieldDescriptions()
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return err
			}
			row := make(Row, len(fields))
			for i, f := range fields {
				row[string(f.Name)] = values[i]
			}
			out = append(out, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close stops accepting new trades, drains any partial trade batch still
// buffered after the queue's workers finish, and closes every pooled
// connection.
func (s *Sink) Close(ctx context.Context) {
	s.tradeQueue.Close()
	if err := s.batcher.drain(ctx); err != nil {
		observability.LogEvent(ctx, "error", "columnarstore.trades.drain_failed", map[string]any{
			"error": err.Error(),
		})
	}
	s.pool.Close(ctx)
}
