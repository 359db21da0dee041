package calibration

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"crystalproc/internal/catalog"
	"crystalproc/internal/config"
	"crystalproc/internal/fileutil"
	"crystalproc/internal/logging"
	"crystalproc/internal/services"
)

// Calibrator analyzes the built runs of configured crystals.
type Calibrator struct {
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the calibrator.
type Option func(*Calibrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Calibrator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time stamped on CharLog entries.
func WithClock(now func() time.Time) Option {
	return func(c *Calibrator) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a calibrator.
func New(cfg *config.Config, opts ...Option) *Calibrator {
	c := &Calibrator{cfg: cfg, logger: logging.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "calibration")
	return c
}

// Report is the outcome of one crystal sweep.
type Report struct {
	Serial       string
	Dimension    catalog.Dimension
	Measurements []Measurement
	Position     *PositionSummary
	Gain         *GainCurve
	LogPath      string
	Plots        []string
}

// Calibrate analyzes every built run of serial along dim, appends the sweep
// summary to the crystal's CharLog.txt and writes its plots beside it. Every
// run of the dimension must be built.
func (c *Calibrator) Calibrate(ctx context.Context, serial string, dim catalog.Dimension, opts Options) (*Report, error) {
	ctx = services.WithCrystal(ctx, serial)
	ctx = services.WithStage(ctx, "calibrate")
	logger := logging.WithContext(ctx, c.logger)

	cat, err := catalog.FromConfig(c.cfg, serial)
	if err != nil {
		return nil, err
	}
	src := Source{
		Tree:          c.cfg.Calibration.Tree,
		EnergyBranch:  c.cfg.Calibration.EnergyBranch,
		ChannelBranch: c.cfg.Calibration.ChannelBranch,
		Channel:       c.cfg.Calibration.Channel,
	}

	report := &Report{Serial: serial, Dimension: dim}
	for _, run := range cat.Runs() {
		if err := ctx.Err(); err != nil {
			return nil, services.Wrap(services.ErrAborted, "calibrate", serial, "interrupted", err)
		}
		placement, _ := cat.Lookup(run)
		if placement.Dimension != dim {
			continue
		}
		path := placement.Destination(c.cfg.Paths.BuiltDir, fmt.Sprintf(c.cfg.Converter.OutputPattern, run))
		if ok, _ := fileutil.Exists(path); !ok {
			return nil, services.Wrap(services.ErrNotFound, "calibrate", serial,
				fmt.Sprintf("run %d (%s) is not built: %s", run, placement.Folder, path), nil)
		}
		energies, err := ReadEnergies(src, path)
		if err != nil {
			return nil, err
		}
		result, err := Analyze(energies, opts)
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", run, err)
		}
		logger.Info("run calibrated",
			logging.Int("run", run),
			logging.String("folder", placement.Folder),
			logging.Int("events", len(energies)),
			logging.Float64("offset", result.Calibration.Offset),
			logging.Float64("slope", result.Calibration.Slope),
		)
		report.Measurements = append(report.Measurements, Measurement{Value: placement.Value, Run: result})
	}
	if len(report.Measurements) == 0 {
		return nil, services.Wrap(services.ErrValidation, "calibrate", serial,
			fmt.Sprintf("no %s runs configured", dim), nil)
	}

	outDir := filepath.Join(c.cfg.Paths.BuiltDir, serial)
	report.LogPath = filepath.Join(outDir, CharLogName)
	var entry string
	switch dim {
	case catalog.Position:
		sum, err := SummarizePositions(report.Measurements, c.cfg.Calibration.ReferencePosition)
		if err != nil {
			return nil, err
		}
		report.Position = &sum
		entry = FormatPositionEntry(c.now(), sum)
		if report.Plots, err = RenderPositions(sum, outDir); err != nil {
			return nil, err
		}
	case catalog.Voltage:
		curve, err := FitGainCurve(report.Measurements)
		if err != nil {
			return nil, err
		}
		report.Gain = &curve
		entry = FormatVoltageEntry(c.now(), curve)
		if report.Plots, err = RenderGain(curve, outDir); err != nil {
			return nil, err
		}
	default:
		return nil, services.Wrap(services.ErrValidation, "calibrate", serial, fmt.Sprintf("unknown dimension %q", dim), nil)
	}
	if err := AppendCharLog(report.LogPath, entry); err != nil {
		return nil, err
	}
	logger.Info("sweep calibrated",
		logging.String("dimension", string(dim)),
		logging.Int("runs", len(report.Measurements)),
		logging.String("log", report.LogPath),
	)
	return report, nil
}
