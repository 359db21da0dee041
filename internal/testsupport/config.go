package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"crystalproc/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The raw directory is created; built, work, and log directories are not.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.RawDir = filepath.Join(base, "raw")
	cfgVal.Paths.BuiltDir = filepath.Join(base, "built")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Temperature.DataDir = filepath.Join(base, "temperature")
	if err := os.MkdirAll(cfgVal.Paths.RawDir, 0o755); err != nil {
		t.Fatalf("mkdir raw dir: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithCrystal adds a crystal entry.
func WithCrystal(serial string, position, voltage []int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Crystals[serial] = config.Crystal{Position: position, Voltage: voltage}
	}
}

// WithRemote configures an archive host with remote directories under the
// test base directory.
func WithRemote(host string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Remote.Host = host
		b.cfg.Remote.RawDir = filepath.Join(b.baseDir, "remote", "raw")
		b.cfg.Remote.BuiltDir = filepath.Join(b.baseDir, "remote", "built")
		b.cfg.Remote.TemperatureDir = filepath.Join(b.baseDir, "remote", "temperature")
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the converter and transfer
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{b.cfg.Converter.Binary, "rsync", "ssh", "scp"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.RawDir)
}
