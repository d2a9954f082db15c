package indicators

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory builds an Indicator instance from a period and named extra
// parameters (fast/slow/signal periods for MACD, k/d periods for
// Stochastic).
type Factory func(period int, params map[string]int) Indicator

// Registry is a name-keyed factory dispatch, mirroring the construction
// surface IndicatorEngine's config drives: one string name per configured
// indicator, resolved to a concrete implementation at startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry builds a Registry pre-populated with the standard indicator
// set: sma, ema, wma, rsi, macd, stochastic.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("sma", func(period int, _ map[string]int) Indicator { return &SMA{Period: period} })
	r.Register("ema", func(period int, _ map[string]int) Indicator { return &EMA{Period: period} })
	r.Register("wma", func(period int, _ map[string]int) Indicator { return &WMA{Period: period} })
	r.Register("rsi", func(period int, _ map[string]int) Indicator { return &RSI{Period: period} })
	r.Register("macd", func(period int, params map[string]int) Indicator {
		m := NewMACD()
		if fast, ok := params["fast"]; ok {
			m.FastPeriod = fast
		}
		if slow, ok := params["slow"]; ok {
			m.SlowPeriod = slow
		}
		if signal, ok := params["signal"]; ok {
			m.SignalPeriod = signal
		}
		return m
	})
	r.Register("stochastic", func(period int, params map[string]int) Indicator {
		s := NewStochastic()
		if period > 0 {
			s.KPeriod = period
		}
		if kSlow, ok := params["k_slow"]; ok {
			s.KSlowPeriod = kSlow
		}
		if d, ok := params["d"]; ok {
			s.DPeriod = d
		}
		return s
	})
	return r
}

// Register adds or overrides a named factory.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = factory
}

// Create builds an indicator by name. period is the indicator's primary
// look-back; params carries secondary periods (fast/slow/signal/k_slow/d).
func (r *Registry) Create(name string, period int, params map[string]int) (Indicator, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown indicator %q, available: %s", name, strings.Join(r.ListIndicators(), ", "))
	}
	return factory(period, params), nil
}

// ListIndicators returns every registered indicator name, sorted.
func (r *Registry) ListIndicators() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
