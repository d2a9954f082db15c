package observability

import "context"

type contextKey string

const (
	runIDKey     contextKey = "run_id"
	exchangeKey  contextKey = "exchange"
	symbolKey    contextKey = "symbol"
	timeframeKey contextKey = "timeframe"
	componentKey contextKey = "component"
)

// RunInfo carries trace identifiers through a component's context.
// RunID correlates log lines within one scheduler cycle or one pooled
// connection's lifetime. Component names the owning piece (e.g.
// "candlesync", "streamingest", "columnarstore").
type RunInfo struct {
	RunID     string
	Component string
	Exchange  string
	Symbol    string
	Timeframe string
}

func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	if info.RunID != "" {
		ctx = context.WithValue(ctx, runIDKey, info.RunID)
	}
	if info.Component != "" {
		ctx = context.WithValue(ctx, componentKey, info.Component)
	}
	if info.Exchange != "" {
		ctx = context.WithValue(ctx, exchangeKey, info.Exchange)
	}
	if info.Symbol != "" {
		ctx = context.WithValue(ctx, symbolKey, info.Symbol)
	}
	if info.Timeframe != "" {
		ctx = context.WithValue(ctx, timeframeKey, info.Timeframe)
	}
	return ctx
}

func RunInfoFromContext(ctx context.Context) RunInfo {
	info := RunInfo{}
	if value := ctx.Value(runIDKey); value != nil {
		if runID, ok := value.(string); ok {
			info.RunID = runID
		}
	}
	if value := ctx.Value(componentKey); value != nil {
		if component, ok := value.(string); ok {
			info.Component = component
		}
	}
	if value := ctx.Value(exchangeKey); value != nil {
		if exchange, ok := value.(string); ok {
			info.Exchange = exchange
		}
	}
	if value := ctx.Value(symbolKey); value != nil {
		if symbol, ok := value.(string); ok {
			info.Symbol = symbol
		}
	}
	if value := ctx.Value(timeframeKey); value != nil {
		if timeframe, ok := value.(string); ok {
			info.Timeframe = timeframe
		}
	}
	return info
}
