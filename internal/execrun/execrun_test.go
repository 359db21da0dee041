package execrun_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"crystalproc/internal/execrun"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestCommandExecutorPassesArgumentsVerbatim(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts unavailable")
	}
	dir := t.TempDir()
	script := writeScript(t, dir, "echoargs", "for a in \"$@\"; do echo \"[$a]\"; done\n")

	lines, err := execrun.Lines(context.Background(), execrun.CommandExecutor{}, execrun.Command{
		Binary: script,
		Args:   []string{"-v", "error", "/data/My Crystal/Data/Run12"},
	})
	if err != nil {
		t.Fatalf("Lines returned error: %v", err)
	}
	want := []string{"[-v]", "[error]", "[/data/My Crystal/Data/Run12]"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected output %q", lines)
	}
}

func TestCommandExecutorRunsInWorkingDirectory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts unavailable")
	}
	dir := t.TempDir()
	work := filepath.Join(dir, "work")
	if err := os.MkdirAll(work, 0o755); err != nil {
		t.Fatal(err)
	}
	script := writeScript(t, dir, "touchout", "touch out.txt\n")

	if err := (execrun.CommandExecutor{}).Run(context.Background(), execrun.Command{Binary: script, Dir: work}, nil); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(work, "out.txt")); err != nil {
		t.Fatalf("expected file in working directory: %v", err)
	}
}

func TestCommandExecutorReportsExitStatus(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts unavailable")
	}
	dir := t.TempDir()
	script := writeScript(t, dir, "fail", "echo 'bad input' >&2\nexit 3\n")

	err := (execrun.CommandExecutor{}).Run(context.Background(), execrun.Command{Binary: script}, nil)
	var exitErr *execrun.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if exitErr.Code != 3 {
		t.Fatalf("unexpected exit code %d", exitErr.Code)
	}
	if !strings.Contains(exitErr.Error(), "bad input") {
		t.Fatalf("expected stderr tail in error, got %q", exitErr.Error())
	}
}

func TestCommandExecutorRequiresBinary(t *testing.T) {
	if err := (execrun.CommandExecutor{}).Run(context.Background(), execrun.Command{}, nil); err == nil {
		t.Fatal("expected error for empty binary")
	}
}

func TestCommandString(t *testing.T) {
	cmd := execrun.Command{Binary: "majorcaroot", Args: []string{"-v", "error", "/a b/Run1"}}
	if got := cmd.String(); got != `majorcaroot -v error "/a b/Run1"` {
		t.Fatalf("unexpected rendering %q", got)
	}
}
