package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"crystalproc/internal/config"
	"crystalproc/internal/logging"
	"crystalproc/internal/services"
)

func TestNewConsoleWritesComponentPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "processor").Info("run placed",
		logging.Int("run", 412),
		logging.String("folder", "Position_3"),
		logging.String("path", "/data/my crystal"),
	)

	line := buf.String()
	if !strings.Contains(line, "INFO processor: run placed") {
		t.Fatalf("missing level/component prefix: %q", line)
	}
	if !strings.Contains(line, "run=412") || !strings.Contains(line, "folder=Position_3") {
		t.Fatalf("missing attributes: %q", line)
	}
	if !strings.Contains(line, `path="/data/my crystal"`) {
		t.Fatalf("expected quoted value with spaces: %q", line)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("info line should be filtered: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn line missing: %q", buf.String())
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFromConfigMirrorsToJSONFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Format = "json"

	var console bytes.Buffer
	logger, err := logging.NewFromConfig(&cfg, &console)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("batch complete", logging.Int("placed", 3))
	if !strings.Contains(console.String(), `"placed":3`) {
		t.Fatalf("expected JSON console output, got %q", console.String())
	}

	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logging.LogFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("log file is not JSON: %v (%q)", err, data)
	}
	if entry["msg"] != "batch complete" || entry["level"] != "info" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", entry)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithBatchID(context.Background(), "batch-1")
	ctx = services.WithCrystal(ctx, "SN0001")
	ctx = services.WithRun(ctx, 7)
	ctx = services.WithStage(ctx, "convert")
	logging.WithContext(ctx, logger).Info("converting")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry[logging.FieldBatchID] != "batch-1" || entry[logging.FieldCrystal] != "SN0001" {
		t.Fatalf("missing batch/crystal fields: %v", entry)
	}
	if entry[logging.FieldRun] != float64(7) || entry[logging.FieldStage] != "convert" {
		t.Fatalf("missing run/stage fields: %v", entry)
	}
}

func TestWithContextWithoutFieldsReturnsSameLogger(t *testing.T) {
	logger := logging.NewNop()
	if got := logging.WithContext(context.Background(), logger); got != logger {
		t.Fatal("expected logger to be returned unchanged")
	}
}
