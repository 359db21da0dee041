// Package converter wraps the external raw-to-analysis converter
// (majorcaroot). The converter writes a fixed-name file into its working
// directory; the presence of that file is the only success signal.
package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crystalproc/internal/config"
	"crystalproc/internal/execrun"
	"crystalproc/internal/logging"
	"crystalproc/internal/services"
)

// Converter is the behaviour the processor needs.
type Converter interface {
	OutputName(run int) string
	Convert(ctx context.Context, rawPath string, run int) (Result, error)
}

// Result describes a completed conversion.
type Result struct {
	Run        int
	OutputPath string
	Elapsed    time.Duration
	// ExitErr holds a non-zero exit reported by the converter even though the
	// output file appeared.
	ExitErr error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec execrun.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client invokes the converter binary.
type Client struct {
	binary        string
	args          []string
	outputPattern string
	workDir       string
	timeout       time.Duration
	exec          execrun.Executor
	logger        *slog.Logger
	now           func() time.Time
}

// New constructs a converter client. workDir is where the converter runs and
// deposits its output.
func New(binary string, args []string, outputPattern, workDir string, timeoutSeconds int, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("converter binary required")
	}
	if strings.Count(outputPattern, "%d") != 1 {
		return nil, fmt.Errorf("converter output pattern %q must contain one %%d", outputPattern)
	}
	if strings.TrimSpace(workDir) == "" {
		return nil, errors.New("converter working directory required")
	}
	client := &Client{
		binary:        binary,
		args:          append([]string(nil), args...),
		outputPattern: outputPattern,
		workDir:       workDir,
		timeout:       time.Duration(timeoutSeconds) * time.Second,
		logger:        logging.NewNop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.exec == nil {
		client.exec = execrun.CommandExecutor{Logger: client.logger}
	}
	return client, nil
}

// NewFromConfig builds a client from the converter and paths sections.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Client, error) {
	return New(cfg.Converter.Binary, cfg.Converter.Args, cfg.Converter.OutputPattern, cfg.Paths.WorkDir, cfg.Converter.TimeoutSeconds, opts...)
}

// OutputName returns the file name the converter produces for run.
func (c *Client) OutputName(run int) string {
	return fmt.Sprintf(c.outputPattern, run)
}

// OutputPath returns the working-directory path of the converter output for run.
func (c *Client) OutputPath(run int) string {
	return filepath.Join(c.workDir, c.OutputName(run))
}

// Convert runs the converter on rawPath and blocks until it exits. A stale
// output left in the working directory by an earlier run is removed first so
// it cannot be mistaken for fresh output.
func (c *Client) Convert(ctx context.Context, rawPath string, run int) (Result, error) {
	result := Result{Run: run, OutputPath: c.OutputPath(run)}
	if err := os.MkdirAll(c.workDir, 0o755); err != nil {
		return result, services.Wrap(services.ErrConfiguration, "convert", "create working directory", c.workDir, err)
	}
	if err := os.Remove(result.OutputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, services.Wrap(services.ErrConversion, "convert", "remove stale output", result.OutputPath, err)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := execrun.Command{
		Binary: c.binary,
		Args:   append(append([]string(nil), c.args...), rawPath),
		Dir:    c.workDir,
	}
	logger := logging.WithContext(ctx, c.logger)
	logger.Debug("invoking converter", logging.String("command", cmd.String()))

	start := c.now()
	runErr := c.exec.Run(runCtx, cmd, func(line string) {
		logger.Debug("converter output", logging.String("line", line))
	})
	result.Elapsed = c.now().Sub(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, services.Wrap(services.ErrAborted, "convert", c.binary, "interrupted", ctxErr)
	}
	var exitErr *execrun.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) && !errors.Is(runErr, context.DeadlineExceeded) {
		return result, services.Wrap(services.ErrExternalTool, "convert", c.binary, "run converter", runErr)
	}

	info, err := os.Stat(result.OutputPath)
	if err != nil || !info.Mode().IsRegular() {
		msg := fmt.Sprintf("expected output %s was not produced for run %d", c.OutputName(run), run)
		return result, services.Wrap(services.ErrConversion, "convert", c.binary, msg, runErr)
	}
	if runErr != nil {
		result.ExitErr = runErr
		logger.Warn("converter reported failure but produced output",
			logging.Error(runErr),
			logging.String("output", result.OutputPath),
		)
	}
	return result, nil
}
