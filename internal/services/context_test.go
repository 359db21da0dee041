package services_test

import (
	"context"
	"testing"

	"crystalproc/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithBatchID(ctx, "batch-1")
	ctx = services.WithCrystal(ctx, "SN42")
	ctx = services.WithRun(ctx, 0)
	ctx = services.WithStage(ctx, "convert")

	if id, ok := services.BatchIDFromContext(ctx); !ok || id != "batch-1" {
		t.Fatalf("unexpected batch id: %v %v", id, ok)
	}
	if serial, ok := services.CrystalFromContext(ctx); !ok || serial != "SN42" {
		t.Fatalf("unexpected crystal: %v %v", serial, ok)
	}
	if run, ok := services.RunFromContext(ctx); !ok || run != 0 {
		t.Fatalf("unexpected run: %v %v", run, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "convert" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithCrystal(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.CrystalFromContext(ctx); ok {
		t.Fatal("expected no crystal value")
	}
	if _, ok := services.RunFromContext(ctx); ok {
		t.Fatal("expected no run value")
	}
}
