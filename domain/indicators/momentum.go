package indicators

import (
	"fmt"

	"jax-feed/domain/marketdata"
)

// RSI is the Relative Strength Index, smoothed with Wilder's method: the
// first average gain/loss is a simple average over the first Period deltas,
// then each subsequent average rolls forward as
// avg = (avg*(period-1) + current) / period.
type RSI struct {
	Period int
}

func (r *RSI) Name() string { return fmt.Sprintf("RSI_%d", r.Period) }

func (r *RSI) ValidateInput(candles []marketdata.Candle) error {
	return validateInput(candles, r.Period+1)
}

func (r *RSI) Calculate(candles []marketdata.Candle) (*float64, error) {
	if err := r.ValidateInput(candles); err != nil {
		return nil, err
	}

	prices := closes(candles)
	var avgGain, avgLoss float64

	for i := 1; i <= r.Period; i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss += -delta
		}
	}
	avgGain /= float64(r.Period)
	avgLoss /= float64(r.Period)

	for i := r.Period + 1; i < len(prices); i++ {
		delta := prices[i] - prices[i-1]
		var gain, loss float64
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(r.Period-1) + gain) / float64(r.Period)
		avgLoss = (avgLoss*float64(r.Period-1) + loss) / float64(r.Period)
	}

	if avgLoss == 0 {
		value := 100.0
		return &value, nil
	}
	rs := avgGain / avgLoss
	value := 100.0 - (100.0 / (1.0 + rs))
	return &value, nil
}

func (r *RSI) GetResults(candles []marketdata.Candle) (map[string]float64, error) {
	value, err := r.Calculate(candles)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return map[string]float64{}, nil
	}
	return map[string]float64{r.Name(): *value}, nil
}

// MACD is Moving Average Convergence Divergence: MACD line = EMA(fast) -
// EMA(slow); signal line = EMA(signal) of the MACD line; histogram = MACD -
// signal.
type MACD struct {
	FastPeriod   int
	SlowPeriod   int
	SignalPeriod int
}

// NewMACD builds a MACD with the conventional 12/26/9 periods.
func NewMACD() *MACD {
	return &MACD{FastPeriod: 12, SlowPeriod: 26, SignalPeriod: 9}
}

func (m *MACD) Name() string { return "MACD" }

func (m *MACD) period() int { return m.SlowPeriod + m.SignalPeriod }

func (m *MACD) ValidateInput(candles []marketdata.Candle) error {
	return validateInput(candles, m.period())
}

type macdResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

func (m *MACD) calculateFull(candles []marketdata.Candle) (*macdResult, error) {
	if err := m.ValidateInput(candles); err != nil {
		return nil, err
	}

	prices := closes(candles)
	macdSeries := make([]float64, 0, len(prices))
	for i := m.SlowPeriod; i <= len(prices); i++ {
		fast := emaSeries(prices[:i], m.FastPeriod)
		slow := emaSeries(prices[:i], m.SlowPeriod)
		if fast == nil || slow == nil {
			continue
		}
		macdSeries = append(macdSeries, *fast-*slow)
	}
	if len(macdSeries) < m.SignalPeriod {
		return nil, nil
	}

	signal := emaSeries(macdSeries, m.SignalPeriod)
	if signal == nil {
		return nil, nil
	}
	macdValue := macdSeries[len(macdSeries)-1]
	return &macdResult{
		MACD:      macdValue,
		Signal:    *signal,
		Histogram: macdValue - *signal,
	}, nil
}

func (m *MACD) Calculate(candles []marketdata.Candle) (*float64, error) {
	result, err := m.calculateFull(candles)
	if err != nil || result == nil {
		return nil, err
	}
	return &result.Histogram, nil
}

func (m *MACD) GetResults(candles []marketdata.Candle) (map[string]float64, error) {
	result, err := m.calculateFull(candles)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return map[string]float64{}, nil
	}
	return map[string]float64{
		"MACD":           result.MACD,
		"MACD_signal":    result.Signal,
		"MACD_histogram": result.Histogram,
	}, nil
}

// Stochastic is the Stochastic Oscillator: %K = (close - low(Kperiod)) /
// (high(Kperiod) - low(Kperiod)) * 100, slowed by a KSlowPeriod SMA, with %D
// the DPeriod SMA of the slowed %K.
type Stochastic struct {
	KPeriod     int
	KSlowPeriod int
	DPeriod     int
}

// NewStochastic builds a Stochastic with the conventional 14/3/3 periods.
func NewStochastic() *Stochastic {
	return &Stochastic{KPeriod: 14, KSlowPeriod: 3, DPeriod: 3}
}

func (s *Stochastic) Name() string { return "Stochastic" }

func (s *Stochastic) period() int { return s.KPeriod + s.KSlowPeriod + s.DPeriod }

func (s *Stochastic) ValidateInput(candles []marketdata.Candle) error {
	return validateInput(candles, s.period())
}

type stochResult struct {
	K float64
	D float64
}

func (s *Stochastic) calculateFull(candles []marketdata.Candle) (*stochResult, error) {
	if err := s.ValidateInput(candles); err != nil {
		return nil, err
	}

	rawK := make([]float64, 0, len(candles))
	for i := s.KPeriod - 1; i < len(candles); i++ {
		window := candles[i-s.KPeriod+1 : i+1]
		high, low := window[0].High, window[0].Low
		for _, c := range window {
			if c.High > high {
				high = c.High
			}
			if c.Low < low {
				low = c.Low
			}
		}
		close := candles[i].Close
		if high == low {
			rawK = append(rawK, 50.0)
			continue
		}
		rawK = append(rawK, (close-low)/(high-low)*100.0)
	}

	slowK := sma(rawK, s.KSlowPeriod)
	if len(slowK) < s.DPeriod {
		return nil, nil
	}
	slowD := sma(slowK, s.DPeriod)
	if len(slowD) == 0 {
		return nil, nil
	}

	return &stochResult{
		K: slowK[len(slowK)-1],
		D: slowD[len(slowD)-1],
	}, nil
}

func (s *Stochastic) Calculate(candles []marketdata.Candle) (*float64, error) {
	result, err := s.calculateFull(candles)
	if err != nil || result == nil {
		return nil, err
	}
	return &result.K, nil
}

func (s *Stochastic) GetResults(candles []marketdata.Candle) (map[string]float64, error) {
	result, err := s.calculateFull(candles)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return map[string]float64{}, nil
	}
	return map[string]float64{
		"Stochastic_K": result.K,
		"Stochastic_D": result.D,
	}, nil
}

// sma returns the rolling simple moving average of values over period,
// shortest-first: len(result) == len(values) - period + 1.
func sma(values []float64, period int) []float64 {
	if len(values) < period {
		return nil
	}
	out := make([]float64, 0, len(values)-period+1)
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out = append(out, sum/float64(period))
		}
	}
	return out
}
