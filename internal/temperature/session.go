package temperature

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"crystalproc/internal/config"
	"crystalproc/internal/logging"
	"crystalproc/internal/services"
)

// FileName returns the session log name for a run.
func FileName(run int) string {
	return fmt.Sprintf("run%d_temperature_data.txt", run)
}

// Uploader copies a finished session file to the archive host.
type Uploader interface {
	CopyFile(ctx context.Context, localPath, remoteDir string) error
}

// Reading is one logged sample.
type Reading struct {
	Time    time.Time
	Celsius float64
}

// SessionResult summarizes a finished or interrupted session.
type SessionResult struct {
	Run         int
	Path        string
	Readings    int
	Min, Max    float64
	Started     time.Time
	Finished    time.Time
	Interrupted bool
	Uploaded    bool
}

// Session logs the probe at a fixed interval for a fixed duration.
type Session struct {
	Sensor    Sensor
	Interval  time.Duration
	Duration  time.Duration
	DataDir   string
	Logger    *slog.Logger
	Uploader  Uploader
	RemoteDir string

	now func() time.Time
}

// NewSession builds a session from the temperature config.
func NewSession(sensor Sensor, cfg config.Temperature, logger *slog.Logger) *Session {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Session{
		Sensor:   sensor,
		Interval: time.Duration(cfg.IntervalSeconds) * time.Second,
		Duration: time.Duration(cfg.DurationSeconds) * time.Second,
		DataDir:  cfg.DataDir,
		Logger:   logging.NewComponentLogger(logger, "temperature"),
	}
}

// Run records readings for the given run. Cancelling ctx ends the session
// early; the readings taken so far stay on disk and are still uploaded.
func (s *Session) Run(ctx context.Context, run int) (SessionResult, error) {
	if s.Sensor == nil {
		return SessionResult{}, services.Wrap(services.ErrConfiguration, "temperature", "session", "no sensor", nil)
	}
	if s.Interval <= 0 || s.Duration < s.Interval {
		return SessionResult{}, services.Wrap(services.ErrConfiguration, "temperature", "session",
			fmt.Sprintf("interval %s must be positive and no longer than duration %s", s.Interval, s.Duration), nil)
	}
	logger := s.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	now := s.now
	if now == nil {
		now = time.Now
	}

	if err := os.MkdirAll(s.DataDir, 0o755); err != nil {
		return SessionResult{}, services.Wrap(services.ErrConfiguration, "temperature", "session", "create data dir", err)
	}
	path := filepath.Join(s.DataDir, FileName(run))
	file, err := os.Create(path)
	if err != nil {
		return SessionResult{}, services.Wrap(services.ErrConfiguration, "temperature", "session", "create log file", err)
	}
	defer file.Close()

	result := SessionResult{Run: run, Path: path, Started: now()}
	samples := int(s.Duration / s.Interval)
	logger.Info("temperature session started",
		logging.Int("run", run),
		logging.String("file", path),
		logging.Duration("interval", s.Interval),
		logging.String("expected_end", result.Started.Add(s.Duration).Format(time.TimeOnly)),
	)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	var runErr error
loop:
	for i := 0; i < samples; i++ {
		if ctx.Err() != nil {
			result.Interrupted = true
			break
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				result.Interrupted = true
				break loop
			case <-ticker.C:
			}
		}
		celsius, err := s.Sensor.ReadCelsius(ctx)
		if err != nil {
			if ctx.Err() != nil {
				result.Interrupted = true
				break
			}
			runErr = services.Wrap(services.ErrExternalTool, "temperature", "read sensor", "", err)
			break
		}
		reading := Reading{Time: now(), Celsius: celsius}
		if err := writeReading(file, reading); err != nil {
			runErr = services.Wrap(services.ErrExternalTool, "temperature", "write reading", path, err)
			break
		}
		result.observe(celsius)
		logger.Debug("temperature reading", logging.Float64("celsius", celsius), logging.Int("sample", i+1))
	}

	result.Finished = now()
	if runErr != nil {
		return result, runErr
	}

	logger.Info("temperature session finished",
		logging.Int("run", run),
		logging.Int("readings", result.Readings),
		logging.Float64("min_c", result.Min),
		logging.Float64("max_c", result.Max),
		logging.Bool("interrupted", result.Interrupted),
	)

	if s.Uploader != nil && s.RemoteDir != "" {
		uploadCtx := ctx
		if result.Interrupted {
			uploadCtx = context.WithoutCancel(ctx)
		}
		if err := s.Uploader.CopyFile(uploadCtx, path, s.RemoteDir); err != nil {
			return result, err
		}
		result.Uploaded = true
	}
	if result.Interrupted {
		return result, services.Wrap(services.ErrAborted, "temperature", "session", "interrupted", context.Cause(ctx))
	}
	return result, nil
}

func (r *SessionResult) observe(celsius float64) {
	if r.Readings == 0 || celsius < r.Min {
		r.Min = celsius
	}
	if r.Readings == 0 || celsius > r.Max {
		r.Max = celsius
	}
	r.Readings++
}

func writeReading(w io.Writer, r Reading) error {
	stamp := float64(r.Time.UnixNano()) / float64(time.Second)
	_, err := fmt.Fprintf(w, "%f %f\n", stamp, r.Celsius)
	return err
}
