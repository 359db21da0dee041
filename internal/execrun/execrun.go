// Package execrun runs external tools (the converter, rsync, ssh, scp) as
// blocking subprocesses with explicit argument lists. Arguments are never
// passed through a shell, so paths containing spaces need no escaping.
package execrun

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"crystalproc/internal/logging"
)

// Command describes a single subprocess invocation.
type Command struct {
	Binary string
	Args   []string
	// Dir is the working directory; empty inherits the caller's.
	Dir string
}

// String renders the command for logs.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Binary)
	for _, arg := range c.Args {
		if arg == "" || strings.ContainsAny(arg, " \t\"'") {
			arg = fmt.Sprintf("%q", arg)
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, cmd Command, onStdout func(string)) error
}

// ExitError reports a subprocess that ran but exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Stderr  []string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Command, e.Code)
	if len(e.Stderr) > 0 {
		msg += ": " + e.Stderr[len(e.Stderr)-1]
	}
	return msg
}

// CommandExecutor runs commands with os/exec. Standard error lines are
// logged at debug level and the last few are kept for ExitError.
type CommandExecutor struct {
	Logger *slog.Logger
}

const stderrTail = 5

func (e CommandExecutor) Run(ctx context.Context, command Command, onStdout func(string)) error {
	if strings.TrimSpace(command.Binary) == "" {
		return errors.New("command binary required")
	}
	logger := e.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	cmd := exec.CommandContext(ctx, command.Binary, command.Args...) //nolint:gosec
	cmd.Dir = command.Dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", command.Binary, err)
	}

	var (
		wg      sync.WaitGroup
		scanErr error
		once    sync.Once
		mu      sync.Mutex
		tail    []string
	)

	scan := func(r io.Reader, forward func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			forward(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout, func(line string) {
		if onStdout != nil {
			onStdout(line)
			return
		}
		logger.Debug("command output", logging.String("binary", command.Binary), logging.String("line", line))
	})
	go scan(stderr, func(line string) {
		logger.Debug("command stderr", logging.String("binary", command.Binary), logging.String("line", line))
		mu.Lock()
		tail = append(tail, line)
		if len(tail) > stderrTail {
			tail = tail[len(tail)-stderrTail:]
		}
		mu.Unlock()
	})

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", command.Binary, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Command: command.Binary, Code: exitErr.ExitCode(), Stderr: tail}
		}
		return fmt.Errorf("wait %s: %w", command.Binary, err)
	}
	return nil
}

// Lines runs cmd and returns its standard output split into lines.
func Lines(ctx context.Context, executor Executor, cmd Command) ([]string, error) {
	var lines []string
	err := executor.Run(ctx, cmd, func(line string) {
		lines = append(lines, line)
	})
	return lines, err
}
