// Command jax-feed is the market-data platform's single entrypoint: it
// wires CandleSync, StreamIngest, and IndicatorEngine to a shared
// ColumnarSink/CacheSink pair, runs them concurrently, and serves a
// health/readiness endpoint until told to stop.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"jax-feed/domain/indicators"
	"jax-feed/domain/marketdata"
	"jax-feed/exchange"
	"jax-feed/internal/candlesync"
	"jax-feed/internal/config"
	"jax-feed/internal/indicatorengine"
	"jax-feed/internal/streamingest"
	"jax-feed/libs/cachesink"
	"jax-feed/libs/columnarstore"
	"jax-feed/libs/database"
	"jax-feed/libs/observability"
)

var startTime = time.Now()

func main() {
	var configPath, httpPort, migrationsPath string
	flag.StringVar(&configPath, "config", "", "path to a JSON configuration file overlaying the defaults")
	flag.StringVar(&httpPort, "port", "8090", "HTTP server port for health checks")
	flag.StringVar(&migrationsPath, "migrations", "libs/database/migrations", "path to the migration files")
	flag.Parse()

	runID := uuid.NewString()
	ctx := observability.WithRunInfo(context.Background(), observability.RunInfo{
		RunID:     runID,
		Component: "jax-feed",
	})
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := runMigrations(cfg.DatabaseDSN, migrationsPath); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	registry := observability.NewRegistry()
	metrics := observability.NewFeedMetrics(registry)

	store, err := columnarstore.New(ctx, columnarstoreConfig(cfg, metrics))
	if err != nil {
		log.Fatalf("open columnar store: %v", err)
	}
	defer store.Close(context.Background())

	cache, err := cachesink.New(ctx, cachesinkConfig(cfg, metrics))
	if err != nil {
		log.Fatalf("open cache sink: %v", err)
	}
	defer cache.Close()

	syncer := candlesync.New(candlesyncConfig(cfg), store, restClientFactory(cfg))
	orchestrator := streamingest.NewOrchestrator(ctx, streamingestConfig(cfg, metrics), wsClientFactory(), cache)
	engine := indicatorengine.New(indicatorengineConfig(cfg), indicators.NewRegistry(), store, store, cache)

	go syncer.Start(ctx)
	orchestrator.Start(ctx)
	go engine.Start(ctx)

	observability.LogEvent(ctx, "info", "jax_feed_started", map[string]any{
		"exchanges":  exchangeNames(cfg),
		"timeframes": cfg.Timeframes,
		"port":       httpPort,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/metrics", handleMetricsJSON(metrics))
	mux.HandleFunc("/metrics/prometheus", handleMetricsPrometheus(registry))
	server := &http.Server{Addr: ":" + httpPort, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	observability.LogEvent(ctx, "info", "jax_feed_shutting_down", nil)
	cancel()

	syncer.Stop()
	orchestrator.Stop()
	engine.Stop()
	syncer.Wait()
	engine.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown: %v", err)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "healthy",
		"uptime": time.Since(startTime).String(),
	})
}

// handleMetricsJSON returns a compact JSON snapshot of the headline counters,
// handy for a quick curl without parsing the Prometheus text format.
func handleMetricsJSON(metrics *observability.FeedMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"queue_drops":            metrics.QueueDrops.Sum(),
			"candles_written":        metrics.CandlesWritten.Sum(),
			"indicators_written":     metrics.IndicatorsWritten.Sum(),
			"stream_events_received": metrics.StreamEventsReceived.Sum(),
			"validation_failures":    metrics.ValidationFailures.Sum(),
			"pool_poison_events":     metrics.PoolPoisonEvents.Sum(),
		})
	}
}

// handleMetricsPrometheus serves every registered metric in Prometheus text
// exposition format, labels and all.
func handleMetricsPrometheus(reg *observability.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		reg.WriteText(w)
	}
}

func runMigrations(dsn, migrationsPath string) error {
	dbCfg := database.DefaultConfig()
	dbCfg.DSN = dsn

	db, err := database.Connect(context.Background(), dbCfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return database.RunMigrations(db.DB, migrationsPath)
}

func columnarstoreConfig(cfg *config.Config, metrics *observability.FeedMetrics) columnarstore.Config {
	c := columnarstore.DefaultConfig()
	c.DSN = cfg.DatabaseDSN
	c.PoolSize = cfg.PoolSize
	c.TradeBatchSize = cfg.DBBatchSize
	c.TradeQueueSize = cfg.DBQueueSize
	c.TradeWorkers = cfg.DBWorkers
	c.Metrics = metrics
	return c
}

func cachesinkConfig(cfg *config.Config, metrics *observability.FeedMetrics) cachesink.Config {
	c := cachesink.DefaultConfig()
	c.RedisURL = cfg.RedisURL
	c.QueueSize = cfg.CacheQueueSize
	c.Workers = cfg.CacheWorkers
	c.Metrics = metrics
	return c
}

func restClientFactory(cfg *config.Config) candlesync.RESTClientFactory {
	return func(exchangeName string) (exchange.RESTClient, error) {
		restCfg := exchange.DefaultRESTConfig()
		if cfg.RESTAPITimeoutMS > 0 {
			restCfg.TimeoutMS = cfg.RESTAPITimeoutMS
		}
		return exchange.NewRESTClient(exchangeName, restCfg)
	}
}

func wsClientFactory() streamingest.WSClientFactory {
	return func(exchangeName string, wsCfg exchange.WSConfig) (exchange.WSClient, error) {
		return exchange.NewWSClient(exchangeName, wsCfg)
	}
}

func candlesyncConfig(cfg *config.Config) candlesync.Config {
	exchanges := make([]candlesync.ExchangeSymbols, 0, len(cfg.Exchanges))
	for _, e := range cfg.Exchanges {
		if !e.Enabled {
			continue
		}
		exchanges = append(exchanges, candlesync.ExchangeSymbols{Exchange: e.Name, Symbols: e.Symbols})
	}

	return candlesync.Config{
		Exchanges:            exchanges,
		Timeframes:           parseTimeframes(cfg.Timeframes),
		IntervalSeconds:      cfg.SyncIntervalS,
		FetchLimit:           cfg.SyncFetchLimit,
		InitialBackfillLimit: cfg.SyncInitialBackfillLimit,
		RESTTimeoutMS:        cfg.RESTAPITimeoutMS,
	}
}

func streamingestConfig(cfg *config.Config, metrics *observability.FeedMetrics) streamingest.Config {
	exchanges := make([]streamingest.ExchangeSubscription, 0, len(cfg.Exchanges))
	for _, e := range cfg.Exchanges {
		if !e.Enabled {
			continue
		}
		exchanges = append(exchanges, streamingest.ExchangeSubscription{Exchange: e.Name, Symbols: e.Symbols})
	}

	return streamingest.Config{
		Exchanges: exchanges,
		WS: exchange.WSConfig{
			QueueSize:               cfg.QueueMaxSize,
			ConsumerWorkers:         cfg.ConsumerWorkers,
			OrderBookSampleInterval: time.Duration(cfg.OrderbookSampleIntervalMS) * time.Millisecond,
		},
		Metrics: metrics,
	}
}

func indicatorengineConfig(cfg *config.Config) indicatorengine.Config {
	var series []indicatorengine.Series
	timeframes := parseTimeframes(cfg.Timeframes)
	for _, e := range cfg.Exchanges {
		if !e.Enabled {
			continue
		}
		for _, symbol := range e.Symbols {
			for _, tf := range timeframes {
				series = append(series, indicatorengine.Series{Exchange: e.Name, Symbol: symbol, Timeframe: tf})
			}
		}
	}

	specs := make([]indicatorengine.IndicatorSpec, 0, len(cfg.Indicators))
	for _, i := range cfg.Indicators {
		specs = append(specs, indicatorengine.IndicatorSpec{Name: i.Name, Period: i.Period, Params: i.Params})
	}

	return indicatorengine.Config{
		Series:              series,
		Indicators:          specs,
		CandleLookback:      cfg.IndicatorCandleLookback,
		MinCandles:          cfg.IndicatorMinCandles,
		MaxGapRatio:         cfg.IndicatorMaxGapRatio,
		EnableGapFilling:    cfg.IndicatorEnableGapFilling,
		IntervalSeconds:     cfg.IndicatorIntervalS,
		InitialDelaySeconds: cfg.IndicatorInitialDelayS,
		CatchUpEnabled:      cfg.IndicatorCatchUpEnabled,
		CatchUpLimit:        cfg.IndicatorCatchUpLimit,
	}
}

func parseTimeframes(raw []string) []marketdata.Timeframe {
	out := make([]marketdata.Timeframe, 0, len(raw))
	for _, r := range raw {
		out = append(out, marketdata.Timeframe(r))
	}
	return out
}

func exchangeNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Exchanges))
	for _, e := range cfg.Exchanges {
		if e.Enabled {
			names = append(names, e.Name)
		}
	}
	return names
}
