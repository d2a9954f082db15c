// Package config loads jax-feed's configuration from a JSON file with
// environment-variable overrides, matching the defaults fixed by the
// component contracts in the package's parent documentation.
package config

import (
	"encoding/json"
	"os"
	"strconv"
)

// ExchangeConfig is one configured exchange's symbol set and feature flags.
type ExchangeConfig struct {
	Name    string   `json:"name"`
	Enabled bool     `json:"enabled"`
	Symbols []string `json:"symbols"`
}

// IndicatorConfig names one indicator instance the engine computes for
// every configured (exchange, symbol, timeframe) series.
type IndicatorConfig struct {
	Name   string         `json:"name"`
	Period int            `json:"period"`
	Params map[string]int `json:"params"`
}

// Config is the full jax-feed configuration tree.
type Config struct {
	DatabaseDSN string `json:"database_dsn"`
	RedisURL    string `json:"redis_url"`

	Exchanges  []ExchangeConfig  `json:"exchanges"`
	Timeframes []string          `json:"timeframes"`
	Indicators []IndicatorConfig `json:"indicators"`

	// Stream queue.
	StreamQueueSize         int `json:"stream_queue_size"`
	StreamWorkers           int `json:"stream_workers"`
	StreamPanicDropsPerSec  int `json:"stream_panic_drops_per_sec"`

	// DB queue.
	DBQueueSize        int `json:"db_queue_size"`
	DBWorkers          int `json:"db_workers"`
	DBBatchSize        int `json:"db_batch_size"`
	DBPanicDropsPerSec int `json:"db_panic_drops_per_sec"`

	// Cache queue.
	CacheQueueSize       int `json:"cache_queue_size"`
	CacheWorkers         int `json:"cache_workers"`
	CacheWarnDropsPerSec int `json:"cache_warn_drops_per_sec"`

	// WebSocket.
	QueueMaxSize             int `json:"queue_max_size"`
	ConsumerWorkers          int `json:"consumer_workers"`
	PingIntervalS            int `json:"ping_interval_s"`
	PingTimeoutS             int `json:"ping_timeout_s"`
	MaxMessageSizeMB         int `json:"max_message_size_mb"`
	OrderbookSampleIntervalMS int `json:"orderbook_sample_interval_ms"`

	// Sync (CandleSync).
	SyncIntervalS            int  `json:"sync_interval_s"`
	SyncFetchLimit           int  `json:"sync_fetch_limit"`
	SyncInitialBackfillLimit int  `json:"sync_initial_backfill_limit"`
	RESTAPITimeoutMS         int  `json:"rest_api_timeout_ms"`
	RESTAPIEnableRateLimit   bool `json:"rest_api_enable_rate_limit"`

	// Indicators (IndicatorEngine).
	IndicatorIntervalS        int     `json:"indicator_interval_s"`
	IndicatorInitialDelayS    int     `json:"indicator_initial_delay_s"`
	IndicatorMinCandles       int     `json:"indicator_min_candles"`
	IndicatorCandleLookback   int     `json:"indicator_candle_lookback"`
	IndicatorMaxGapRatio      float64 `json:"indicator_max_gap_ratio"`
	IndicatorEnableGapFilling bool    `json:"indicator_enable_gap_filling"`
	IndicatorCatchUpEnabled   bool    `json:"indicator_catch_up_enabled"`
	IndicatorCatchUpLimit     int     `json:"indicator_catch_up_limit"`

	// Store pool.
	PoolSize int `json:"pool_size"`
}

// Defaults returns the configuration defaults fixed by the component
// contracts; Load starts from these and overlays the file, then the
// environment.
func Defaults() Config {
	return Config{
		Timeframes: []string{"1m", "5m", "1h"},

		StreamQueueSize:        5000,
		StreamWorkers:          10,
		StreamPanicDropsPerSec: 10,

		DBQueueSize:        2000,
		DBWorkers:          3,
		DBBatchSize:        100,
		DBPanicDropsPerSec: 5,

		CacheQueueSize:       1000,
		CacheWorkers:         2,
		CacheWarnDropsPerSec: 50,

		QueueMaxSize:              10000,
		ConsumerWorkers:           3,
		PingIntervalS:             60,
		PingTimeoutS:              120,
		MaxMessageSizeMB:          10,
		OrderbookSampleIntervalMS: 1000,

		SyncIntervalS:            60,
		SyncFetchLimit:           5,
		SyncInitialBackfillLimit: 100,
		RESTAPITimeoutMS:         30000,
		RESTAPIEnableRateLimit:   true,

		IndicatorIntervalS:        60,
		IndicatorInitialDelayS:    10,
		IndicatorMinCandles:       20,
		IndicatorCandleLookback:   200,
		IndicatorMaxGapRatio:      0.1,
		IndicatorEnableGapFilling: true,
		IndicatorCatchUpEnabled:   true,
		IndicatorCatchUpLimit:     1000,
	}
}

// Load reads path, applying it on top of Defaults, then applies
// environment-variable overrides for the fields operators commonly need to
// set per-deployment (connection strings, credentials).
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.PoolSize <= 0 {
		cfg.PoolSize = cfg.DBWorkers
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.DatabaseDSN = dsn
	}
	if redis := os.Getenv("REDIS_URL"); redis != "" {
		cfg.RedisURL = redis
	}
	if v := os.Getenv("POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
}
