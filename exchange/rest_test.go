package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jax-feed/domain/marketdata"
)

func TestRestClient_FetchLatestKlines_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`[[1700000000000,"100","101","99","100.5","10","1700000059999","1000",5,"5","500","0"]]`))
	}))
	defer srv.Close()

	c := &restClient{
		adapter: binanceRESTAdapter{},
		http:    newTestRestyClient(srv.URL),
		cb:      newTestCircuitBreaker(),
	}

	candles, err := c.FetchLatestKlines(context.Background(), "BTCUSDT", marketdata.Timeframe1m, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(candles))
	}
}

func TestRestClient_FetchKlines_UnsupportedTimeframe(t *testing.T) {
	c := &restClient{
		adapter: coinbaseRESTAdapter{},
		http:    newTestRestyClient("http://example.invalid"),
		cb:      newTestCircuitBreaker(),
	}

	_, err := c.FetchKlines(context.Background(), "BTC-USD", marketdata.Timeframe30m, time.Time{}, time.Time{}, 10)
	if err == nil {
		t.Fatal("expected error for unsupported timeframe")
	}
}

func TestRestClient_FetchKlines_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := &restClient{
		adapter: binanceRESTAdapter{},
		http:    newTestRestyClient(srv.URL),
		cb:      newTestCircuitBreaker(),
	}

	_, err := c.FetchLatestKlines(context.Background(), "BTCUSDT", marketdata.Timeframe1m, 10)
	if err == nil {
		t.Fatal("expected error on server 500")
	}
}

func TestNewRESTClient_UnsupportedExchange(t *testing.T) {
	_, err := NewRESTClient("kraken", DefaultRESTConfig())
	if err == nil {
		t.Fatal("expected error for unsupported exchange")
	}
}
