package logging

import (
	"context"
	"log/slog"

	"crystalproc/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldBatchID identifies one invocation of a batch command.
	FieldBatchID = "batch_id"
	// FieldCrystal is the crystal serial number.
	FieldCrystal = "crystal"
	// FieldRun is the run number.
	FieldRun = "run"
	// FieldStage is the pipeline stage (discover, convert, place, sync, archive).
	FieldStage = "stage"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.BatchIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldBatchID, id))
	}
	if serial, ok := services.CrystalFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCrystal, serial))
	}
	if run, ok := services.RunFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldRun, run))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
