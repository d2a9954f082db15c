package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"jax-feed/domain/marketdata"
	"jax-feed/libs/resilience"
)

// restAdapter is the exchange-specific half of a REST client: URL
// construction and response parsing. The transport (HTTP client, timeouts,
// circuit breaker) is shared across every exchange in restClient.
type restAdapter interface {
	name() string
	baseURL() string
	supportedTimeframes() []marketdata.Timeframe
	klinesPath(symbol string, timeframe marketdata.Timeframe, start, end time.Time, limit int) (string, map[string]string)
	parseKlines(symbol string, timeframe marketdata.Timeframe, body []byte) ([]marketdata.Candle, error)
}

// RESTConfig parameterizes a restClient.
type RESTConfig struct {
	TimeoutMS int
}

// DefaultRESTConfig matches spec's rest_api_timeout_ms default.
func DefaultRESTConfig() RESTConfig {
	return RESTConfig{TimeoutMS: 30000}
}

// restClient is a generic REST transport shared by every concrete exchange
// adapter: one resty client, one circuit breaker, wrapping each call exactly
// as the teacher's vendor providers wrap their SDK calls.
type restClient struct {
	adapter restAdapter
	http    *resty.Client
	cb      *resilience.CircuitBreaker
}

// NewRESTClient builds a RESTClient for the named exchange.
func NewRESTClient(name string, cfg RESTConfig) (RESTClient, error) {
	adapter, err := restAdapterFor(name)
	if err != nil {
		return nil, err
	}
	if cfg.TimeoutMS <= 0 {
		cfg.TimeoutMS = DefaultRESTConfig().TimeoutMS
	}

	http := resty.New().
		SetBaseURL(adapter.baseURL()).
		SetTimeout(time.Duration(cfg.TimeoutMS) * time.Millisecond)

	return &restClient{
		adapter: adapter,
		http:    http,
		cb:      resilience.NewCircuitBreaker(resilience.DefaultConfig(adapter.name() + "-rest")),
	}, nil
}

func (c *restClient) SupportedTimeframes() []marketdata.Timeframe {
	return c.adapter.supportedTimeframes()
}

func (c *restClient) supportsTimeframe(tf marketdata.Timeframe) bool {
	for _, supported := range c.adapter.supportedTimeframes() {
		if supported == tf {
			return true
		}
	}
	return false
}

func (c *restClient) fetch(ctx context.Context, symbol string, timeframe marketdata.Timeframe, start, end time.Time, limit int) ([]marketdata.Candle, error) {
	if !c.supportsTimeframe(timeframe) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTimeframe, timeframe)
	}

	path, params := c.adapter.klinesPath(symbol, timeframe, start, end, limit)

	result, err := c.cb.ExecuteWithContext(ctx, func() (any, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get(path)
		if err != nil {
			return nil, fmt.Errorf("exchange %s: request failed: %w", c.adapter.name(), err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("exchange %s: status %d: %s", c.adapter.name(), resp.StatusCode(), resp.String())
		}
		candles, err := c.adapter.parseKlines(symbol, timeframe, resp.Body())
		if err != nil {
			return nil, fmt.Errorf("exchange %s: parse klines: %w", c.adapter.name(), err)
		}
		return candles, nil
	})
	if err != nil {
		return nil, err
	}
	// Drop any candle whose interval has not fully elapsed yet (the
	// still-open bar exchanges include as their newest row).
	period := time.Duration(timeframe.Minutes()) * time.Minute
	now := time.Now().UTC()
	candles := result.([]marketdata.Candle)
	closed := candles[:0]
	for _, cd := range candles {
		if !cd.Timestamp.Add(period).After(now) {
			closed = append(closed, cd)
		}
	}
	return closed, nil
}

// FetchKlines returns closed candles in [start, end), ascending.
func (c *restClient) FetchKlines(ctx context.Context, symbol string, timeframe marketdata.Timeframe, start, end time.Time, limit int) ([]marketdata.Candle, error) {
	return c.fetch(ctx, symbol, timeframe, start, end, limit)
}

// FetchLatestKlines returns the latest `limit` closed candles, ascending.
func (c *restClient) FetchLatestKlines(ctx context.Context, symbol string, timeframe marketdata.Timeframe, limit int) ([]marketdata.Candle, error) {
	return c.fetch(ctx, symbol, timeframe, time.Time{}, time.Time{}, limit)
}

func (c *restClient) Close() error {
	return nil
}
