package observability

import (
	"context"
	"time"
)

// RecordRESTFetch logs one exchange REST round-trip (CandleSync's per-symbol
// fetch), mirroring the shape of a tool-call metric event.
func RecordRESTFetch(ctx context.Context, exchange, symbol, timeframe string, duration time.Duration, candles int, err error) {
	fields := map[string]any{
		"name":       "rest_fetch",
		"exchange":   exchange,
		"symbol":     symbol,
		"timeframe":  timeframe,
		"latency_ms": duration.Milliseconds(),
		"candles":    candles,
		"success":    err == nil,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	LogEvent(ctx, "info", "metric", fields)
}

// RecordIndicatorCycle logs the outcome of one IndicatorEngine pass over a
// single (exchange, symbol, timeframe) series.
func RecordIndicatorCycle(ctx context.Context, exchange, symbol, timeframe string, indicatorCount int, err error) {
	fields := map[string]any{
		"name":      "indicator_cycle",
		"exchange":  exchange,
		"symbol":    symbol,
		"timeframe": timeframe,
		"written":   indicatorCount,
		"success":   err == nil,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	LogEvent(ctx, "info", "metric", fields)
}

// RecordPoolEvent logs a connection pool lifecycle event (poisoned, recreated,
// shrunk) for the columnar store's connection pool.
func RecordPoolEvent(ctx context.Context, event string, poolSize int, err error) {
	fields := map[string]any{
		"name":      "pool_event",
		"pool_size": poolSize,
		"success":   err == nil,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	LogEvent(ctx, "info", event, fields)
}
