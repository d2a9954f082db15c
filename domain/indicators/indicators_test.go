package indicators

import (
	"math"
	"testing"
	"time"

	"jax-feed/domain/marketdata"
)

func candlesFromCloses(closes []float64) []marketdata.Candle {
	out := make([]marketdata.Candle, len(closes))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = marketdata.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1,
		}
	}
	return out
}

func TestSMA_Calculate(t *testing.T) {
	candles := candlesFromCloses([]float64{1, 2, 3, 4, 5})
	sma := &SMA{Period: 5}
	value, err := sma.Calculate(candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value == nil || *value != 3.0 {
		t.Fatalf("expected SMA 3.0, got %v", value)
	}
}

func TestSMA_InsufficientInput(t *testing.T) {
	candles := candlesFromCloses([]float64{1, 2})
	sma := &SMA{Period: 5}
	if _, err := sma.Calculate(candles); err == nil {
		t.Fatal("expected insufficient-input error")
	}
}

func TestEMA_ConvergesTowardConstantSeries(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100
	}
	ema := &EMA{Period: 10}
	value, err := ema.Calculate(candlesFromCloses(closes))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value == nil || math.Abs(*value-100) > 1e-6 {
		t.Fatalf("expected EMA to converge to 100, got %v", value)
	}
}

func TestWMA_WeightsRecentPricesMoreHeavily(t *testing.T) {
	candles := candlesFromCloses([]float64{1, 2, 3})
	wma := &WMA{Period: 3}
	value, err := wma.Calculate(candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// (1*1 + 2*2 + 3*3) / (1+2+3) = 14/6
	want := 14.0 / 6.0
	if value == nil || math.Abs(*value-want) > 1e-9 {
		t.Fatalf("expected WMA %v, got %v", want, value)
	}
}

func TestRSI_AllGainsReturns100(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = float64(100 + i)
	}
	rsi := &RSI{Period: 14}
	value, err := rsi.Calculate(candlesFromCloses(closes))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value == nil || *value != 100.0 {
		t.Fatalf("expected RSI 100 for all-gains series, got %v", value)
	}
}

func TestRSI_FlatSeriesReturns100(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}
	rsi := &RSI{Period: 14}
	value, err := rsi.Calculate(candlesFromCloses(closes))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// No gains and no losses: avgLoss == 0, defined as 100 per Wilder's edge case.
	if value == nil || *value != 100.0 {
		t.Fatalf("expected RSI 100 on a flat series, got %v", value)
	}
}

func TestMACD_GetResults_ReturnsThreeComponents(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.5
	}
	macd := NewMACD()
	results, err := macd.GetResults(candlesFromCloses(closes))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, key := range []string{"MACD", "MACD_signal", "MACD_histogram"} {
		if _, ok := results[key]; !ok {
			t.Errorf("expected key %s in results, got %+v", key, results)
		}
	}
}

func TestStochastic_GetResults_ReturnsKAndD(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i%10)
	}
	stoch := NewStochastic()
	results, err := stoch.GetResults(candlesFromCloses(closes))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := results["Stochastic_K"]; !ok {
		t.Error("expected Stochastic_K in results")
	}
	if _, ok := results["Stochastic_D"]; !ok {
		t.Error("expected Stochastic_D in results")
	}
}

func TestRegistry_CreateAndListIndicators(t *testing.T) {
	reg := NewRegistry()

	names := reg.ListIndicators()
	want := []string{"ema", "macd", "rsi", "sma", "stochastic", "wma"}
	if len(names) != len(want) {
		t.Fatalf("expected %d indicators, got %d: %v", len(want), len(names), names)
	}

	sma, err := reg.Create("sma", 20, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sma.Name() != "SMA_20" {
		t.Errorf("expected name SMA_20, got %s", sma.Name())
	}

	macd, err := reg.Create("macd", 0, map[string]int{"fast": 5, "slow": 13, "signal": 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if macd.Name() != "MACD" {
		t.Errorf("expected name MACD, got %s", macd.Name())
	}
}

func TestRegistry_Create_UnknownIndicator(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Create("not_real", 14, nil); err == nil {
		t.Fatal("expected error for unknown indicator")
	}
}
