package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"testing"
	"time"
)

func captureLog(fn func()) map[string]interface{} {
	old := logger
	defer func() { logger = old }()

	var buf bytes.Buffer
	logger = log.New(&buf, "", 0)

	fn()

	var result map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		return nil
	}
	return result
}

func TestRecordRESTFetch_Success(t *testing.T) {
	ctx := WithRunInfo(context.Background(), RunInfo{
		RunID:    "run_123",
		Exchange: "binance",
		Symbol:   "BTCUSDT",
	})

	result := captureLog(func() {
		RecordRESTFetch(ctx, "binance", "BTCUSDT", "1m", 250*time.Millisecond, 100, nil)
	})

	if result == nil {
		t.Fatal("expected JSON log output")
	}
	if result["event"] != "metric" {
		t.Errorf("expected event=metric, got %v", result["event"])
	}
	if result["name"] != "rest_fetch" {
		t.Errorf("expected name=rest_fetch, got %v", result["name"])
	}
	if result["exchange"] != "binance" {
		t.Errorf("expected exchange=binance, got %v", result["exchange"])
	}
	if result["timeframe"] != "1m" {
		t.Errorf("expected timeframe=1m, got %v", result["timeframe"])
	}
	if result["candles"] != float64(100) {
		t.Errorf("expected candles=100, got %v", result["candles"])
	}
	if result["success"] != true {
		t.Errorf("expected success=true, got %v", result["success"])
	}
	if result["run_id"] != "run_123" {
		t.Errorf("expected run_id=run_123, got %v", result["run_id"])
	}

	latency := result["latency_ms"].(float64)
	if latency < 249 || latency > 251 {
		t.Errorf("expected latency_ms ~250, got %v", latency)
	}
}

func TestRecordRESTFetch_Failure(t *testing.T) {
	ctx := context.Background()

	result := captureLog(func() {
		RecordRESTFetch(ctx, "kraken", "ETHUSD", "5m", 100*time.Millisecond, 0, io.EOF)
	})

	if result == nil {
		t.Fatal("expected JSON log output")
	}
	if result["success"] != false {
		t.Errorf("expected success=false, got %v", result["success"])
	}
	if result["error"] != "EOF" {
		t.Errorf("expected error=EOF, got %v", result["error"])
	}
}

func TestRecordIndicatorCycle(t *testing.T) {
	ctx := WithRunInfo(context.Background(), RunInfo{
		RunID:  "cycle_789",
		Symbol: "ETHUSDT",
	})

	result := captureLog(func() {
		RecordIndicatorCycle(ctx, "binance", "ETHUSDT", "1h", 5, nil)
	})

	if result == nil {
		t.Fatal("expected JSON log output")
	}
	if result["name"] != "indicator_cycle" {
		t.Errorf("expected name=indicator_cycle, got %v", result["name"])
	}
	if result["written"] != float64(5) {
		t.Errorf("expected written=5, got %v", result["written"])
	}
	if result["success"] != true {
		t.Errorf("expected success=true, got %v", result["success"])
	}
}

func TestRecordIndicatorCycle_Failure(t *testing.T) {
	result := captureLog(func() {
		RecordIndicatorCycle(context.Background(), "binance", "ETHUSDT", "1h", 0, io.ErrUnexpectedEOF)
	})

	if result == nil {
		t.Fatal("expected JSON log output")
	}
	if result["success"] != false {
		t.Errorf("expected success=false, got %v", result["success"])
	}
	if result["error"] != "unexpected EOF" {
		t.Errorf("expected error=unexpected EOF, got %v", result["error"])
	}
}

func TestRecordPoolEvent(t *testing.T) {
	result := captureLog(func() {
		RecordPoolEvent(context.Background(), "pool_poisoned", 4, nil)
	})

	if result == nil {
		t.Fatal("expected JSON log output")
	}
	if result["event"] != "pool_poisoned" {
		t.Errorf("expected event=pool_poisoned, got %v", result["event"])
	}
	if result["name"] != "pool_event" {
		t.Errorf("expected name=pool_event, got %v", result["name"])
	}
	if result["pool_size"] != float64(4) {
		t.Errorf("expected pool_size=4, got %v", result["pool_size"])
	}
	if result["success"] != true {
		t.Errorf("expected success=true, got %v", result["success"])
	}
}

func TestMain(m *testing.M) {
	// Suppress log output during tests unless VERBOSE=1
	if os.Getenv("VERBOSE") != "1" {
		logger = log.New(io.Discard, "", 0)
	}
	os.Exit(m.Run())
}
