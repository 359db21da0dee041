package converter_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"crystalproc/internal/converter"
	"crystalproc/internal/execrun"
	"crystalproc/internal/services"
)

type stubExecutor struct {
	calls    []execrun.Command
	produce  bool
	contents string
	err      error
}

func (s *stubExecutor) Run(_ context.Context, cmd execrun.Command, onStdout func(string)) error {
	s.calls = append(s.calls, cmd)
	if onStdout != nil {
		onStdout("processing")
	}
	if s.produce {
		raw := cmd.Args[len(cmd.Args)-1]
		run := filepath.Base(raw)[len("Run"):]
		if err := os.WriteFile(filepath.Join(cmd.Dir, "OR_run"+run+".root"), []byte(s.contents), 0o644); err != nil {
			return err
		}
	}
	return s.err
}

func newClient(t *testing.T, exec execrun.Executor) (*converter.Client, string) {
	t.Helper()
	work := filepath.Join(t.TempDir(), "work")
	client, err := converter.New("majorcaroot", []string{"-v", "error"}, "OR_run%d.root", work, 0, converter.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return client, work
}

func TestConvertPassesRawPathAsSingleArgument(t *testing.T) {
	exec := &stubExecutor{produce: true, contents: "tree"}
	client, work := newClient(t, exec)

	raw := "/data/crystal one/Data/Run42"
	result, err := client.Convert(context.Background(), raw, 42)
	if err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	if len(exec.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(exec.calls))
	}
	call := exec.calls[0]
	if call.Binary != "majorcaroot" || call.Dir != work {
		t.Fatalf("unexpected command %+v", call)
	}
	if len(call.Args) != 3 || call.Args[2] != raw {
		t.Fatalf("raw path must be the last argument, got %q", call.Args)
	}
	if result.OutputPath != filepath.Join(work, "OR_run42.root") {
		t.Fatalf("unexpected output path %q", result.OutputPath)
	}
}

func TestConvertMissingOutputIsConversionError(t *testing.T) {
	client, _ := newClient(t, &stubExecutor{})
	_, err := client.Convert(context.Background(), "/raw/Data/Run5", 5)
	if !errors.Is(err, services.ErrConversion) {
		t.Fatalf("expected ErrConversion, got %v", err)
	}
}

func TestConvertRemovesStaleOutputFirst(t *testing.T) {
	client, work := newClient(t, &stubExecutor{})
	if err := os.MkdirAll(work, 0o755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(work, "OR_run5.root")
	if err := os.WriteFile(stale, []byte("truncated"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := client.Convert(context.Background(), "/raw/Data/Run5", 5)
	if !errors.Is(err, services.ErrConversion) {
		t.Fatalf("stale output must not count as success, got %v", err)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected stale output removed, stat err=%v", err)
	}
}

func TestConvertIgnoresExitStatusWhenOutputExists(t *testing.T) {
	exitErr := &execrun.ExitError{Command: "majorcaroot", Code: 1}
	client, _ := newClient(t, &stubExecutor{produce: true, err: exitErr})

	result, err := client.Convert(context.Background(), "/raw/Data/Run8", 8)
	if err != nil {
		t.Fatalf("expected success when output exists, got %v", err)
	}
	if result.ExitErr == nil {
		t.Fatal("expected exit error recorded on result")
	}
}

func TestConvertStartFailureIsExternalToolError(t *testing.T) {
	client, _ := newClient(t, &stubExecutor{err: errors.New("exec: not found")})
	_, err := client.Convert(context.Background(), "/raw/Data/Run8", 8)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
}

func TestConvertCancelledContext(t *testing.T) {
	client, _ := newClient(t, &stubExecutor{produce: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Convert(ctx, "/raw/Data/Run8", 8)
	if !errors.Is(err, services.ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
}

func TestNewValidatesInputs(t *testing.T) {
	if _, err := converter.New("", nil, "OR_run%d.root", "/tmp", 0); err == nil {
		t.Fatal("expected error for empty binary")
	}
	if _, err := converter.New("majorcaroot", nil, "OR_run.root", "/tmp", 0); err == nil {
		t.Fatal("expected error for pattern without run placeholder")
	}
	client, err := converter.New("majorcaroot", nil, "OR_run%d.root", "/tmp", 60)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if client.OutputName(3) != "OR_run3.root" {
		t.Fatalf("unexpected output name %q", client.OutputName(3))
	}
}
