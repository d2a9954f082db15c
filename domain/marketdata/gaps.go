package marketdata

import (
	"fmt"
	"sort"
	"time"
)

// ParseTimeframe converts a timeframe string into its interval in minutes.
func ParseTimeframe(tf Timeframe) (int, error) {
	minutes := tf.Minutes()
	if minutes == 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedTimeframe, tf)
	}
	return minutes, nil
}

// DetectGaps finds missing candles in a series sorted ascending by
// timestamp. A gap is any interval between two consecutive candles wider
// than the expected spacing; missing_count is the number of candles that
// should exist strictly between them.
func DetectGaps(candles []Candle, expectedIntervalMinutes int) []GapInfo {
	if len(candles) < 2 {
		return nil
	}

	expected := time.Duration(expectedIntervalMinutes) * time.Minute
	var gaps []GapInfo

	for i := 0; i < len(candles)-1; i++ {
		current := candles[i].Timestamp
		next := candles[i+1].Timestamp
		actual := next.Sub(current)

		if actual > expected {
			missing := int(actual.Minutes())/expectedIntervalMinutes - 1
			gaps = append(gaps, GapInfo{
				StartTime:           current.Add(expected),
				EndTime:             next.Add(-expected),
				MissingCount:        missing,
				ExpectedIntervalMin: expectedIntervalMinutes,
			})
		}
	}
	return gaps
}

// FillGaps forward-fills synthetic candles for every gap: open = high = low
// = close = the previous real close, volume/quote_volume/trades_count = 0,
// is_synthetic = true. The original candles plus synthetic fill are
// returned, sorted ascending by timestamp. Synthetic candles produced here
// exist only for downstream computation — callers must not persist them.
func FillGaps(candles []Candle, gaps []GapInfo) []Candle {
	if len(gaps) == 0 {
		return candles
	}

	byTimestamp := make(map[time.Time]Candle, len(candles))
	for _, c := range candles {
		byTimestamp[c.Timestamp] = c
	}

	for _, gap := range gaps {
		interval := time.Duration(gap.ExpectedIntervalMin) * time.Minute
		last, ok := byTimestamp[gap.StartTime.Add(-interval)]
		if !ok {
			continue
		}
		lastClose := last.Close

		for t := gap.StartTime; !t.After(gap.EndTime); t = t.Add(interval) {
			byTimestamp[t] = Candle{
				Timestamp:   t,
				Exchange:    last.Exchange,
				Symbol:      last.Symbol,
				Timeframe:   last.Timeframe,
				Open:        lastClose,
				High:        lastClose,
				Low:         lastClose,
				Close:       lastClose,
				Volume:      0,
				QuoteVolume: 0,
				TradesCount: 0,
				IsSynthetic: true,
			}
		}
	}

	out := make([]Candle, 0, len(byTimestamp))
	for _, c := range byTimestamp {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// GapRatio returns the fraction of missing candles relative to the total
// expected series length (present + missing), used by IndicatorEngine's
// max_gap_ratio skip threshold.
func GapRatio(candles []Candle, gaps []GapInfo) float64 {
	missing := 0
	for _, g := range gaps {
		missing += g.MissingCount
	}
	total := len(candles) + missing
	if total == 0 {
		return 0
	}
	return float64(missing) / float64(total)
}
