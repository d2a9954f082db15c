package observability

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"time"
)

var logger = log.New(os.Stdout, "", 0)

// SetLogOutput redirects the package logger to w and returns a function that
// restores the previous output. Intended for tests in other packages that
// need to assert on emitted log levels (e.g. workerqueue's drop-rate
// escalation) without capturing the real process stdout.
func SetLogOutput(w io.Writer) (restore func()) {
	previous := logger.Writer()
	logger.SetOutput(w)
	return func() { logger.SetOutput(previous) }
}

func LogEvent(ctx context.Context, level string, event string, fields map[string]any) {
	payload := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"level": level,
		"event": event,
	}

	info := RunInfoFromContext(ctx)
	if info.RunID != "" {
		payload["run_id"] = info.RunID
	}
	if info.Component != "" {
		payload["component"] = info.Component
	}
	if info.Exchange != "" {
		payload["exchange"] = info.Exchange
	}
	if info.Symbol != "" {
		payload["symbol"] = info.Symbol
	}
	if info.Timeframe != "" {
		payload["timeframe"] = info.Timeframe
	}

	for key, value := range normalizeFields(fields) {
		payload[key] = value
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("{\"level\":\"error\",\"event\":\"log_marshal_failed\",\"error\":%q}", err.Error())
		return
	}
	logger.Print(string(raw))
}

// LogCycleStart marks the beginning of one CandleSync/IndicatorEngine cycle.
func LogCycleStart(ctx context.Context, component string) {
	LogEvent(ctx, "info", component+"_cycle_start", nil)
}

// LogCycleEnd marks the end of a cycle with its wall-clock duration.
func LogCycleEnd(ctx context.Context, component string, duration time.Duration, err error) {
	fields := map[string]any{
		"elapsed_ms": duration.Milliseconds(),
		"success":    err == nil,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	LogEvent(ctx, "info", component+"_cycle_end", fields)
}

// LogDrop records a WorkerQueue enqueue drop at the severity the caller has
// already decided on (debug, warn, or error) per the §4.1 drop-rate table.
func LogDrop(ctx context.Context, level, queueName string, ratePerSec float64, total int64) {
	LogEvent(ctx, level, "queue_drop", map[string]any{
		"queue":        queueName,
		"rate_per_sec": ratePerSec,
		"total":        total,
	})
}

func normalizeFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		switch key {
		case "input", "payload":
			out[key] = RedactValue(value)
			continue
		}
		if err, ok := value.(error); ok {
			out[key] = err.Error()
			continue
		}
		out[key] = value
	}
	return out
}
