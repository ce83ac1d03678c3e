package logging

import "context"

type contextKey string

const (
	generationKey contextKey = "evolution_generation"
	strategyIDKey contextKey = "strategy_id"
)

// WithGeneration annotates the context with the current generation number.
func WithGeneration(ctx context.Context, generation int) context.Context {
	return context.WithValue(ctx, generationKey, generation)
}

// GetGeneration extracts the generation number from the context.
func GetGeneration(ctx context.Context) (int, bool) {
	gen, ok := ctx.Value(generationKey).(int)
	return gen, ok
}

// WithStrategyID annotates the context with the strategy being processed.
func WithStrategyID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, strategyIDKey, id)
}

// GetStrategyID extracts the strategy id from the context.
func GetStrategyID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(strategyIDKey).(string)
	return id, ok
}
