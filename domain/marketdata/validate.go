package marketdata

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultSpikeThresholdPct is the default percentage price move within a
// one-second window that triggers a spike warning.
const DefaultSpikeThresholdPct = 10.0

// Validator performs StreamIngest's downstream-of-the-queue checks. It keeps
// per-symbol last-price state across calls, so one Validator should be
// shared by all consumer workers for a given exchange client.
type Validator struct {
	spikeThresholdPct float64

	mu         sync.Mutex
	lastPrices map[string]lastPrice

	spikeCount   int64
	invalidCount int64
}

type lastPrice struct {
	price     decimal.Decimal
	timestamp time.Time
}

// NewValidator builds a Validator with the given spike threshold percentage.
func NewValidator(spikeThresholdPct float64) *Validator {
	if spikeThresholdPct <= 0 {
		spikeThresholdPct = DefaultSpikeThresholdPct
	}
	return &Validator{
		spikeThresholdPct: spikeThresholdPct,
		lastPrices:        make(map[string]lastPrice),
	}
}

// ValidateTrade checks price, quantity, and timestamp sanity and flags (but
// never rejects) a price spike when the previous trade for the same symbol
// arrived under a second ago and moved the price by more than the configured
// threshold. It does not log; a true spiked result lets the caller decide
// whether to log it.
func (v *Validator) ValidateTrade(trade Trade) (spiked bool, err error) {
	if trade.Price.Sign() <= 0 {
		v.mu.Lock()
		v.invalidCount++
		v.mu.Unlock()
		return false, fmt.Errorf("%w: price %s must be > 0", ErrInvalidTrade, trade.Price)
	}
	if trade.Quantity.Sign() <= 0 {
		v.mu.Lock()
		v.invalidCount++
		v.mu.Unlock()
		return false, fmt.Errorf("%w: quantity %s must be > 0", ErrInvalidTrade, trade.Quantity)
	}

	now := time.Now().UTC()
	if trade.Timestamp.After(now.Add(5 * time.Second)) {
		v.mu.Lock()
		v.invalidCount++
		v.mu.Unlock()
		return false, fmt.Errorf("%w: future timestamp %s (now %s)", ErrInvalidTrade, trade.Timestamp, now)
	}

	key := trade.Exchange + ":" + trade.Symbol

	v.mu.Lock()
	defer v.mu.Unlock()

	if prev, ok := v.lastPrices[key]; ok {
		elapsed := trade.Timestamp.Sub(prev.timestamp).Seconds()
		if elapsed > 0 && elapsed < 1.0 && !prev.price.IsZero() {
			change := trade.Price.Sub(prev.price).Div(prev.price).Abs().Mul(decimal.NewFromInt(100))
			if change.GreaterThan(decimal.NewFromFloat(v.spikeThresholdPct)) {
				v.spikeCount++
				spiked = true
			}
		}
	}
	v.lastPrices[key] = lastPrice{price: trade.Price, timestamp: trade.Timestamp}

	return spiked, nil
}

// ValidateOrderBook checks non-empty sides, no crossed book, strictly
// positive prices/quantities, and full sort order on both sides.
func (v *Validator) ValidateOrderBook(ob OrderBook) error {
	if len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		v.countInvalid()
		return fmt.Errorf("%w: empty order book (no bids or asks)", ErrInvalidOrderBook)
	}

	bestBid := ob.BestBid().Price
	bestAsk := ob.BestAsk().Price
	if bestBid.GreaterThanOrEqual(bestAsk) {
		v.countInvalid()
		return fmt.Errorf("%w: crossed book bid=%s >= ask=%s", ErrInvalidOrderBook, bestBid, bestAsk)
	}

	for _, level := range append(append([]Level{}, ob.Bids...), ob.Asks...) {
		if level.Price.Sign() <= 0 || level.Quantity.Sign() <= 0 {
			v.countInvalid()
			return fmt.Errorf("%w: non-positive price/quantity %s/%s", ErrInvalidOrderBook, level.Price, level.Quantity)
		}
	}

	for i := 0; i < len(ob.Bids)-1; i++ {
		if ob.Bids[i].Price.LessThan(ob.Bids[i+1].Price) {
			v.countInvalid()
			return fmt.Errorf("%w: bids not sorted descending at index %d", ErrInvalidOrderBook, i)
		}
	}
	for i := 0; i < len(ob.Asks)-1; i++ {
		if ob.Asks[i].Price.GreaterThan(ob.Asks[i+1].Price) {
			v.countInvalid()
			return fmt.Errorf("%w: asks not sorted ascending at index %d", ErrInvalidOrderBook, i)
		}
	}

	return nil
}

func (v *Validator) countInvalid() {
	v.mu.Lock()
	v.invalidCount++
	v.mu.Unlock()
}

// Stats is a snapshot of validation counters for metrics/logging.
type Stats struct {
	SpikeCount     int64
	InvalidCount   int64
	SymbolsTracked int
}

// Stats returns the current validation counters.
func (v *Validator) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Stats{
		SpikeCount:     v.spikeCount,
		InvalidCount:   v.invalidCount,
		SymbolsTracked: len(v.lastPrices),
	}
}
