package indicatorengine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"jax-feed/domain/indicators"
	"jax-feed/domain/marketdata"
	"jax-feed/libs/workerqueue"
)

type fakeReader struct {
	candles []marketdata.Candle
	err     error
}

func (r *fakeReader) QueryCandles(ctx context.Context, exchange, symbol string, timeframe marketdata.Timeframe, limit int, start, end *time.Time) ([]marketdata.Candle, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.candles, nil
}

type fakeWriter struct {
	mu      sync.Mutex
	calls   int
	lastVal map[string]float64
	err     error
}

func (w *fakeWriter) InsertIndicators(ctx context.Context, exchange, symbol string, timeframe marketdata.Timeframe, timestamp time.Time, values map[string]float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.calls++
	w.lastVal = values
	return nil
}

type fakeCache struct {
	mu    sync.Mutex
	calls int
}

func (c *fakeCache) SetIndicators(ctx context.Context, exchange, symbol, timeframe string, payload any) (workerqueue.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return workerqueue.Queued, nil
}

func ascendingCandles(n int, basePrice float64) []marketdata.Candle {
	out := make([]marketdata.Candle, n)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		price := basePrice + float64(i)
		out[i] = marketdata.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Exchange:  "binance",
			Symbol:    "BTCUSDT",
			Timeframe: marketdata.Timeframe1m,
			Open:      price, High: price + 1, Low: price - 1, Close: price,
			Volume: 10,
		}
	}
	return out
}

func newEngine(reader CandleReader, writer IndicatorWriter, cache CacheWriter, cfg Config) *Engine {
	registry := indicators.NewRegistry()
	return New(cfg, registry, reader, writer, cache)
}

func TestCycleOnce_SkipsWhenFewerThanMinCandles(t *testing.T) {
	reader := &fakeReader{candles: ascendingCandles(5, 100)}
	writer := &fakeWriter{}
	cache := &fakeCache{}

	e := newEngine(reader, writer, cache, Config{
		Series:      []Series{{Exchange: "binance", Symbol: "BTCUSDT", Timeframe: marketdata.Timeframe1m}},
		Indicators:  []IndicatorSpec{{Name: "sma", Period: 3}},
		MinCandles:  20,
		CandleLookback: 200,
	})

	e.CycleOnce(context.Background())

	if writer.calls != 0 {
		t.Fatalf("expected no insert when fewer than MinCandles, got %d", writer.calls)
	}
}

func TestCycleOnce_ComputesAndPersistsCombinedResults(t *testing.T) {
	reader := &fakeReader{candles: ascendingCandles(30, 100)}
	writer := &fakeWriter{}
	cache := &fakeCache{}

	e := newEngine(reader, writer, cache, Config{
		Series:         []Series{{Exchange: "binance", Symbol: "BTCUSDT", Timeframe: marketdata.Timeframe1m}},
		Indicators:     []IndicatorSpec{{Name: "sma", Period: 5}, {Name: "ema", Period: 5}},
		MinCandles:     20,
		CandleLookback: 200,
	})

	e.CycleOnce(context.Background())

	if writer.calls != 1 {
		t.Fatalf("expected 1 insert call, got %d", writer.calls)
	}
	if _, ok := writer.lastVal["SMA_5"]; !ok {
		t.Errorf("expected SMA_5 in combined results, got %+v", writer.lastVal)
	}
	if _, ok := writer.lastVal["EMA_5"]; !ok {
		t.Errorf("expected EMA_5 in combined results, got %+v", writer.lastVal)
	}
	if cache.calls != 1 {
		t.Fatalf("expected 1 cache publish, got %d", cache.calls)
	}
}

func TestCycleOnce_UnknownIndicatorDoesNotAbortOthers(t *testing.T) {
	reader := &fakeReader{candles: ascendingCandles(30, 100)}
	writer := &fakeWriter{}
	cache := &fakeCache{}

	e := newEngine(reader, writer, cache, Config{
		Series:         []Series{{Exchange: "binance", Symbol: "BTCUSDT", Timeframe: marketdata.Timeframe1m}},
		Indicators:     []IndicatorSpec{{Name: "nonexistent", Period: 5}, {Name: "sma", Period: 5}},
		MinCandles:     20,
		CandleLookback: 200,
	})

	e.CycleOnce(context.Background())

	if writer.calls != 1 {
		t.Fatalf("expected the valid indicator to still persist, got %d calls", writer.calls)
	}
	if _, ok := writer.lastVal["SMA_5"]; !ok {
		t.Errorf("expected SMA_5 present despite unknown indicator, got %+v", writer.lastVal)
	}
}

func TestCycleOnce_QueryErrorSkipsSeriesWithoutPanicking(t *testing.T) {
	reader := &fakeReader{err: errors.New("db down")}
	writer := &fakeWriter{}
	cache := &fakeCache{}

	e := newEngine(reader, writer, cache, Config{
		Series:         []Series{{Exchange: "binance", Symbol: "BTCUSDT", Timeframe: marketdata.Timeframe1m}},
		Indicators:     []IndicatorSpec{{Name: "sma", Period: 5}},
		MinCandles:     20,
		CandleLookback: 200,
	})

	e.CycleOnce(context.Background())

	if writer.calls != 0 {
		t.Fatalf("expected no insert on query error, got %d", writer.calls)
	}
}

func TestCatchUpOnce_IteratesTrailingWindows(t *testing.T) {
	reader := &fakeReader{candles: ascendingCandles(150, 100)}
	writer := &fakeWriter{}
	cache := &fakeCache{}

	e := newEngine(reader, writer, cache, Config{
		Series:         []Series{{Exchange: "binance", Symbol: "BTCUSDT", Timeframe: marketdata.Timeframe1m}},
		Indicators:     []IndicatorSpec{{Name: "sma", Period: 5}},
		MinCandles:     20,
		CandleLookback: 200,
		CatchUpLimit:   150,
	})

	e.CatchUpOnce(context.Background())

	// 150 candles, MinCandles=20 -> indices 19..149 inclusive = 131 calls.
	if writer.calls != 131 {
		t.Fatalf("expected 131 catch-up writes, got %d", writer.calls)
	}
}

func TestStartStop_RespectsInitialDelayAndCooperativeStop(t *testing.T) {
	reader := &fakeReader{candles: ascendingCandles(30, 100)}
	writer := &fakeWriter{}
	cache := &fakeCache{}

	e := newEngine(reader, writer, cache, Config{
		Series:              []Series{{Exchange: "binance", Symbol: "BTCUSDT", Timeframe: marketdata.Timeframe1m}},
		Indicators:          []IndicatorSpec{{Name: "sma", Period: 5}},
		MinCandles:          20,
		CandleLookback:      200,
		InitialDelaySeconds: 0,
		IntervalSeconds:     1,
	})

	go e.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	e.Stop()
	e.Wait()

	if writer.calls == 0 {
		t.Fatal("expected at least one cycle to have run before stop")
	}
}
