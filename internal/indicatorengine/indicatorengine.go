// Package indicatorengine implements IndicatorEngine: computes a configured
// set of indicators over recent closed candles and persists both a
// normalized row set and a cache bundle.
package indicatorengine

import (
	"context"
	"errors"
	"sync"
	"time"

	"jax-feed/domain/indicators"
	"jax-feed/domain/marketdata"
	"jax-feed/libs/observability"
	"jax-feed/libs/workerqueue"
)

// CandleReader is the slice of ColumnarSink IndicatorEngine reads from.
type CandleReader interface {
	QueryCandles(ctx context.Context, exchange, symbol string, timeframe marketdata.Timeframe, limit int, start, end *time.Time) ([]marketdata.Candle, error)
}

// IndicatorWriter is the slice of ColumnarSink IndicatorEngine writes to.
type IndicatorWriter interface {
	InsertIndicators(ctx context.Context, exchange, symbol string, timeframe marketdata.Timeframe, timestamp time.Time, values map[string]float64) error
}

// CacheWriter is the slice of CacheSink IndicatorEngine writes to.
type CacheWriter interface {
	SetIndicators(ctx context.Context, exchange, symbol, timeframe string, payload any) (workerqueue.Outcome, error)
}

// IndicatorSpec names one indicator instance to compute per series, as
// dispatched through domain/indicators.Registry.
type IndicatorSpec struct {
	Name   string
	Period int
	Params map[string]int
}

// Series is one (exchange, symbol, timeframe) the engine evaluates every
// cycle.
type Series struct {
	Exchange  string
	Symbol    string
	Timeframe marketdata.Timeframe
}

// Config parameterizes an Engine.
type Config struct {
	Series     []Series
	Indicators []IndicatorSpec

	CandleLookback      int
	MinCandles          int
	MaxGapRatio         float64
	EnableGapFilling    bool
	IntervalSeconds     int
	InitialDelaySeconds int
	CatchUpEnabled      bool
	CatchUpLimit        int
}

// indicatorsCacheBundle is CacheSink's §4.5 indicators JSON shape.
type indicatorsCacheBundle struct {
	Timestamp  string             `json:"timestamp"`
	Indicators map[string]float64 `json:"indicators"`
}

// Engine is IndicatorEngine.
type Engine struct {
	cfg      Config
	registry *indicators.Registry
	reader   CandleReader
	writer   IndicatorWriter
	cache    CacheWriter

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// New builds an Engine around a pre-populated indicator registry.
func New(cfg Config, registry *indicators.Registry, reader CandleReader, writer IndicatorWriter, cache CacheWriter) *Engine {
	return &Engine{
		cfg:      cfg,
		registry: registry,
		reader:   reader,
		writer:   writer,
		cache:    cache,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the lifecycle: initial delay -> optional catch-up -> cyclic
// compute loop, until Stop is called. It blocks; call from its own
// goroutine.
func (e *Engine) Start(ctx context.Context) {
	defer close(e.doneCh)

	delay := time.Duration(e.cfg.InitialDelaySeconds) * time.Second
	select {
	case <-time.After(delay):
	case <-e.stopCh:
		return
	case <-ctx.Done():
		return
	}

	if e.cfg.CatchUpEnabled {
		e.CatchUpOnce(ctx)
	}

	interval := time.Duration(e.cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}

	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		cycleStart := time.Now()
		e.CycleOnce(ctx)
		wait := interval - time.Since(cycleStart)
		if wait < 0 {
			wait = 0
		}

		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Stop flips a cooperative flag; the current cycle completes, then the
// loop exits.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
}

// Wait blocks until Start's loop has returned.
func (e *Engine) Wait() {
	<-e.doneCh
}

// CycleOnce runs one full pass over every configured series.
func (e *Engine) CycleOnce(ctx context.Context) {
	for _, series := range e.cfg.Series {
		e.processSeries(ctx, series)
	}
}

// CatchUpOnce runs the catch-up pass: identical computation to the cyclic
// pass, but applied at every historical candle i in [min_candles-1, len)
// using the trailing window candles[max(0,i-99):i+1], bounded by
// CatchUpLimit candles of history per series.
func (e *Engine) CatchUpOnce(ctx context.Context) {
	limit := e.cfg.CatchUpLimit
	if limit <= 0 {
		limit = 1000
	}

	for _, series := range e.cfg.Series {
		candles, err := e.reader.QueryCandles(ctx, series.Exchange, series.Symbol, series.Timeframe, limit, nil, nil)
		if err != nil {
			observability.LogEvent(ctx, "error", "indicatorengine_catchup_query_failed", map[string]any{
				"exchange":  series.Exchange,
				"symbol":    series.Symbol,
				"timeframe": string(series.Timeframe),
				"error":     err.Error(),
			})
			continue
		}
		if len(candles) < e.cfg.MinCandles {
			continue
		}

		for i := e.cfg.MinCandles - 1; i < len(candles); i++ {
			windowStart := i - 99
			if windowStart < 0 {
				windowStart = 0
			}
			window := candles[windowStart : i+1]

			filled, ok := e.applyGapHandling(ctx, series, window)
			if !ok {
				continue
			}
			e.computeAndPersist(ctx, series, filled)
		}
	}
}

func (e *Engine) processSeries(ctx context.Context, series Series) {
	candles, err := e.reader.QueryCandles(ctx, series.Exchange, series.Symbol, series.Timeframe, e.cfg.CandleLookback, nil, nil)
	if err != nil {
		observability.LogEvent(ctx, "error", "indicatorengine_query_failed", map[string]any{
			"exchange":  series.Exchange,
			"symbol":    series.Symbol,
			"timeframe": string(series.Timeframe),
			"error":     err.Error(),
		})
		return
	}
	if len(candles) < e.cfg.MinCandles {
		return
	}

	candles, ok := e.applyGapHandling(ctx, series, candles)
	if !ok {
		return
	}

	e.computeAndPersist(ctx, series, candles)
}

// applyGapHandling detects gaps at the timeframe's spacing and, if enabled
// and within tolerance, forward-fills synthetic candles for computation
// only. It returns ok=false when the series should be skipped this cycle.
func (e *Engine) applyGapHandling(ctx context.Context, series Series, candles []marketdata.Candle) ([]marketdata.Candle, bool) {
	if !e.cfg.EnableGapFilling {
		return candles, true
	}

	intervalMin, err := marketdata.ParseTimeframe(series.Timeframe)
	if err != nil {
		return candles, true
	}

	gaps := marketdata.DetectGaps(candles, intervalMin)
	if len(gaps) == 0 {
		return candles, true
	}

	ratio := marketdata.GapRatio(candles, gaps)
	maxRatio := e.cfg.MaxGapRatio
	if maxRatio <= 0 {
		maxRatio = 0.1
	}
	if ratio > maxRatio {
		observability.LogEvent(ctx, "warn", "indicatorengine_gap_ratio_exceeded", map[string]any{
			"exchange":  series.Exchange,
			"symbol":    series.Symbol,
			"timeframe": string(series.Timeframe),
			"ratio":     ratio,
		})
		return nil, false
	}

	return marketdata.FillGaps(candles, gaps), true
}

func (e *Engine) computeAndPersist(ctx context.Context, series Series, candles []marketdata.Candle) {
	combined := e.computeIndicators(ctx, series, candles)
	if len(combined) == 0 {
		return
	}

	latestTimestamp := candles[len(candles)-1].Timestamp

	if err := e.writer.InsertIndicators(ctx, series.Exchange, series.Symbol, series.Timeframe, latestTimestamp, combined); err != nil {
		observability.LogEvent(ctx, "error", "indicatorengine_insert_failed", map[string]any{
			"exchange":  series.Exchange,
			"symbol":    series.Symbol,
			"timeframe": string(series.Timeframe),
			"error":     err.Error(),
		})
	}

	bundle := indicatorsCacheBundle{
		Timestamp:  latestTimestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		Indicators: combined,
	}
	if _, err := e.cache.SetIndicators(ctx, series.Exchange, series.Symbol, string(series.Timeframe), bundle); err != nil {
		observability.LogEvent(ctx, "warn", "indicatorengine_cache_failed", map[string]any{
			"exchange":  series.Exchange,
			"symbol":    series.Symbol,
			"timeframe": string(series.Timeframe),
			"error":     err.Error(),
		})
	}
}

// computeIndicators evaluates every configured indicator over candles and
// merges their GetResults maps. A single indicator's failure is logged and
// skipped; it never aborts the others.
func (e *Engine) computeIndicators(ctx context.Context, series Series, candles []marketdata.Candle) map[string]float64 {
	combined := make(map[string]float64)

	for _, spec := range e.cfg.Indicators {
		ind, err := e.registry.Create(spec.Name, spec.Period, spec.Params)
		if err != nil {
			observability.LogEvent(ctx, "error", "indicatorengine_unknown_indicator", map[string]any{
				"indicator": spec.Name,
				"error":     err.Error(),
			})
			continue
		}

		results, err := ind.GetResults(candles)
		if err != nil {
			level := "error"
			if errors.Is(err, indicators.ErrInsufficientInput) {
				level = "debug"
			}
			observability.LogEvent(ctx, level, "indicatorengine_indicator_failed", map[string]any{
				"exchange":  series.Exchange,
				"symbol":    series.Symbol,
				"timeframe": string(series.Timeframe),
				"indicator": spec.Name,
				"error":     err.Error(),
			})
			continue
		}

		for name, value := range results {
			combined[name] = value
		}
	}

	return combined
}
