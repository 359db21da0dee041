package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"crystalproc/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("space", dir, 0); !result.Passed || !strings.Contains(result.Detail, "GiB free") {
		t.Fatalf("expected pass with zero threshold, got %+v", result)
	}
	if result := CheckFreeSpace("space", dir, 1<<30); result.Passed {
		t.Fatalf("expected failure for an exabyte threshold, got %+v", result)
	}
	if result := CheckFreeSpace("space", filepath.Join(dir, "missing"), 0); result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestCheckRemote(t *testing.T) {
	if r := CheckRemote(context.Background(), "lab@archive", fakePinger{}); !r.Passed {
		t.Fatalf("expected pass, got %+v", r)
	}
	if r := CheckRemote(context.Background(), "lab@archive", fakePinger{err: errors.New("permission denied")}); r.Passed {
		t.Fatal("expected failure when ssh fails")
	}
	if r := CheckRemote(context.Background(), "lab@archive", nil); r.Passed {
		t.Fatal("expected failure without a client")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_LocalConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Preflight.MinFreeGiB = 0
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg, nil)
	// raw, built, work, free space, converter
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d: %+v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures %+v", failed)
	}
}

func TestRunAll_RemoteConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRemote("lab@archive"), testsupport.WithStubbedBinaries())
	cfg.Preflight.MinFreeGiB = 0
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg, fakePinger{err: errors.New("no route to host")})
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Archive host" {
		t.Fatalf("expected only the archive host to fail, got %+v", failed)
	}
	names := make(map[string]bool, len(results))
	for _, r := range results {
		names[r.Name] = true
	}
	for _, want := range []string{"rsync", "ssh", "scp"} {
		if !names[want] {
			t.Fatalf("expected %s check in %+v", want, results)
		}
	}
}

func TestRunAll_MissingConverter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Converter.Binary = "definitely-not-a-converter"
	cfg.Preflight.MinFreeGiB = 0
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	failed := Failed(RunAll(context.Background(), cfg, nil))
	if len(failed) != 1 || failed[0].Name != "Converter" {
		t.Fatalf("expected converter failure, got %+v", failed)
	}
}
