package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"crystalproc/internal/catalog"
	"crystalproc/internal/config"
	"crystalproc/internal/converter"
	"crystalproc/internal/fileutil"
	"crystalproc/internal/journal"
	"crystalproc/internal/logging"
	"crystalproc/internal/runs"
	"crystalproc/internal/services"
)

// Recorder persists run outcomes.
type Recorder interface {
	Record(ctx context.Context, entry journal.Entry) error
}

// Options controls a batch.
type Options struct {
	// Overwrite reconverts runs whose destination already exists and
	// replaces the destination with the fresh output.
	Overwrite bool
}

// Processor runs batches against one configuration.
type Processor struct {
	cfg       *config.Config
	converter converter.Converter
	recorder  Recorder
	logger    *slog.Logger
	batchID   string
	lockPath  string
	now       func() time.Time
}

// Option configures the processor.
type Option func(*Processor)

// WithRecorder sets the journal recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Processor) { p.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithBatchID overrides the generated batch identifier.
func WithBatchID(id string) Option {
	return func(p *Processor) {
		if id != "" {
			p.batchID = id
		}
	}
}

// New constructs a processor. A fresh batch ID is generated per processor.
func New(cfg *config.Config, conv converter.Converter, opts ...Option) (*Processor, error) {
	if cfg == nil || conv == nil {
		return nil, errors.New("processor requires config and converter")
	}
	p := &Processor{
		cfg:       cfg,
		converter: conv,
		logger:    logging.NewNop(),
		batchID:   uuid.NewString(),
		lockPath:  cfg.LockPath(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "processor")
	return p, nil
}

// BatchID returns the identifier recorded with every journal entry.
func (p *Processor) BatchID() string { return p.batchID }

// ProcessAll processes serials in sorted order under the batch lock. An
// empty list selects every configured crystal. The first fatal error halts
// the batch; reports for the crystals handled so far are returned with it.
func (p *Processor) ProcessAll(ctx context.Context, serials []string, opts Options) ([]Report, error) {
	if len(serials) == 0 {
		serials = p.cfg.Serials()
	}
	serials = append([]string(nil), serials...)
	sort.Strings(serials)

	// Reject unknown serials before touching anything.
	catalogs := make([]*catalog.Catalog, 0, len(serials))
	for _, serial := range serials {
		cat, err := catalog.FromConfig(p.cfg, serial)
		if err != nil {
			return nil, err
		}
		catalogs = append(catalogs, cat)
	}

	unlock, err := p.acquireLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	ctx = services.WithBatchID(ctx, p.batchID)
	logger := logging.WithContext(ctx, p.logger)

	raw, err := runs.DiscoverRaw(p.cfg.Paths.RawDir)
	if err != nil {
		logger.Error("raw discovery failed", logging.Error(err))
		return nil, err
	}
	logger.Info("batch started",
		logging.Strings("crystals", serials),
		logging.Int("raw_files", len(raw)),
		logging.Bool("overwrite", opts.Overwrite),
	)

	reports := make([]Report, 0, len(catalogs))
	for _, cat := range catalogs {
		report, err := p.processCrystal(ctx, cat, raw, opts)
		reports = append(reports, report)
		if err != nil {
			return reports, err
		}
	}
	logger.Info("batch complete", logging.Int("crystals", len(reports)))
	return reports, nil
}

// Process handles a single crystal.
func (p *Processor) Process(ctx context.Context, serial string, opts Options) (Report, error) {
	reports, err := p.ProcessAll(ctx, []string{serial}, opts)
	if len(reports) == 0 {
		return Report{Serial: serial}, err
	}
	return reports[0], err
}

func (p *Processor) acquireLock() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(p.lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(p.lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire batch lock: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrAborted, "batch", "acquire lock", "another crystalproc batch is already running ("+p.lockPath+")", nil)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			p.logger.Warn("failed to release batch lock", logging.Error(err))
		}
	}, nil
}

func (p *Processor) processCrystal(ctx context.Context, cat *catalog.Catalog, raw []runs.RawFile, opts Options) (Report, error) {
	serial := cat.Serial()
	ctx = services.WithCrystal(ctx, serial)
	logger := logging.WithContext(ctx, p.logger)
	report := Report{Serial: serial}
	builtRoot := p.cfg.Paths.BuiltDir

	if err := cat.EnsureLayout(builtRoot); err != nil {
		return report, err
	}

	built, err := runs.DiscoverBuilt(filepath.Join(builtRoot, serial))
	if err != nil {
		return report, err
	}

	seen := make(map[int]bool)
	for _, file := range raw {
		placement, ok := cat.Lookup(file.Run)
		if !ok {
			continue
		}
		seen[file.Run] = true
		outcome, err := p.processRun(ctx, file, placement, opts)
		report.Outcomes = append(report.Outcomes, outcome)
		p.record(ctx, outcome)
		if err != nil {
			logger.Error("run failed; halting batch",
				logging.Int(logging.FieldRun, file.Run),
				logging.String("error_kind", services.Kind(err)),
				logging.Error(err),
			)
			return report, err
		}
	}

	for _, run := range cat.Runs() {
		if _, ok := built[run]; ok {
			report.AlreadyBuilt = append(report.AlreadyBuilt, run)
		}
		if !seen[run] {
			report.MissingRaw = append(report.MissingRaw, run)
		}
	}

	logger.Info("crystal processed",
		logging.Int("placed", report.Count(StatePlaced)),
		logging.Int("skipped", report.Count(StateSkipped)),
		logging.Int("missing_raw", len(report.MissingRaw)),
	)
	return report, nil
}

func (p *Processor) processRun(ctx context.Context, file runs.RawFile, placement catalog.Placement, opts Options) (Outcome, error) {
	ctx = services.WithRun(ctx, file.Run)
	logger := logging.WithContext(ctx, p.logger)
	outcome := Outcome{
		Run:         file.Run,
		RawPath:     file.Path,
		Placement:   placement,
		State:       StateUnprocessed,
		Destination: placement.Destination(p.cfg.Paths.BuiltDir, p.converter.OutputName(file.Run)),
	}

	exists, err := fileutil.Exists(outcome.Destination)
	if err != nil {
		outcome.State = StateFailed
		outcome.Err = services.Wrap(services.ErrConfiguration, "place", "stat destination", outcome.Destination, err)
		return outcome, outcome.Err
	}
	if exists && !opts.Overwrite {
		outcome.advance(StateSkipped)
		logger.Info("run already placed; skipping", logging.String("destination", outcome.Destination))
		return outcome, nil
	}

	outcome.advance(StateConverting)
	logger.Info("converting run",
		logging.String("raw", file.Path),
		logging.String("dimension", string(placement.Dimension)),
		logging.String("folder", placement.Folder),
	)
	result, err := p.converter.Convert(services.WithStage(ctx, "convert"), file.Path, file.Run)
	outcome.Elapsed = result.Elapsed
	if err != nil {
		outcome.advance(StateFailed)
		outcome.Err = err
		return outcome, err
	}
	outcome.advance(StateConverted)
	logger.Info("conversion finished", logging.Duration("elapsed", result.Elapsed))

	place := fileutil.MoveFile
	if exists {
		place = fileutil.ReplaceFile
	}
	if err := place(result.OutputPath, outcome.Destination); err != nil {
		outcome.advance(StateFailed)
		outcome.Err = services.Wrap(services.ErrExternalTool, "place", "move output", outcome.Destination, err)
		return outcome, outcome.Err
	}
	outcome.advance(StatePlaced)
	logger.Info("run placed",
		logging.String("destination", outcome.Destination),
		logging.Bool("replaced", exists),
	)
	return outcome, nil
}

func (p *Processor) record(ctx context.Context, o Outcome) {
	if p.recorder == nil {
		return
	}
	entry := journal.Entry{
		BatchID:     p.batchID,
		Serial:      o.Placement.Serial,
		Run:         o.Run,
		Dimension:   string(o.Placement.Dimension),
		Folder:      o.Placement.Folder,
		State:       string(o.State),
		RawPath:     o.RawPath,
		Destination: o.Destination,
		Elapsed:     o.Elapsed,
		RecordedAt:  p.now(),
	}
	if o.Err != nil {
		entry.ErrorKind = services.Kind(o.Err)
		entry.ErrorMessage = o.Err.Error()
	}
	if err := p.recorder.Record(ctx, entry); err != nil {
		p.logger.Warn("journal write failed", logging.Int(logging.FieldRun, o.Run), logging.Error(err))
	}
}
