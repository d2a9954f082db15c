package exchange

import (
	"testing"
	"time"
)

func TestWSClient_ShouldSample_DropsWithinInterval(t *testing.T) {
	c := &wsClient{
		cfg:        WSConfig{OrderBookSampleInterval: 50 * time.Millisecond},
		lastSample: make(map[string]time.Time),
	}

	if !c.shouldSample("BTCUSDT") {
		t.Fatal("expected first sample to pass")
	}
	if c.shouldSample("BTCUSDT") {
		t.Fatal("expected second immediate sample to be dropped")
	}

	time.Sleep(60 * time.Millisecond)
	if !c.shouldSample("BTCUSDT") {
		t.Fatal("expected sample after interval to pass")
	}
}

func TestWSClient_ShouldSample_IndependentPerSymbol(t *testing.T) {
	c := &wsClient{
		cfg:        WSConfig{OrderBookSampleInterval: time.Second},
		lastSample: make(map[string]time.Time),
	}

	if !c.shouldSample("BTCUSDT") {
		t.Fatal("expected first BTCUSDT sample to pass")
	}
	if !c.shouldSample("ETHUSDT") {
		t.Fatal("expected first ETHUSDT sample to pass even though BTCUSDT just sampled")
	}
}

func TestNewWSClient_UnsupportedExchange(t *testing.T) {
	_, err := NewWSClient("kraken", DefaultWSConfig())
	if err == nil {
		t.Fatal("expected error for unsupported exchange")
	}
}

func TestNewWSClient_DefaultsAppliedWhenConfigZero(t *testing.T) {
	c, err := NewWSClient("binance", WSConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Stop()
	wc := c.(*wsClient)
	if wc.cfg.QueueSize != DefaultWSConfig().QueueSize {
		t.Errorf("expected default queue size to be applied, got %d", wc.cfg.QueueSize)
	}
}

func TestSupportedExchanges(t *testing.T) {
	names := SupportedExchanges()
	if len(names) != 2 {
		t.Fatalf("expected 2 supported exchanges, got %d", len(names))
	}
}
