package services

import "context"

type contextKey string

const (
	batchIDKey contextKey = "batch_id"
	crystalKey contextKey = "crystal"
	runKey     contextKey = "run"
	stageKey   contextKey = "stage"
)

// WithBatchID annotates context with the identifier of the current batch invocation.
func WithBatchID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, batchIDKey, id)
}

// BatchIDFromContext extracts the batch identifier if present.
func BatchIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(batchIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithCrystal annotates context with the crystal serial being processed.
func WithCrystal(ctx context.Context, serial string) context.Context {
	if serial == "" {
		return ctx
	}
	return context.WithValue(ctx, crystalKey, serial)
}

// CrystalFromContext returns the crystal serial if present.
func CrystalFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(crystalKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRun annotates context with the run number being processed.
func WithRun(ctx context.Context, run int) context.Context {
	return context.WithValue(ctx, runKey, run)
}

// RunFromContext extracts the run number if present.
func RunFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(runKey).(int)
	return v, ok
}

// WithStage annotates context with the stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}
