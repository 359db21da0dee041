// Package archive compacts raw instrument files into zstd archives on the
// archive host. A raw file is only removed once an archive that decodes to
// the same bytes is in place, so an interruption at any point leaves either
// the raw file or a verified archive (plus at most a .tmp file that the next
// pass cleans up).
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"crystalproc/internal/config"
	"crystalproc/internal/fileutil"
	"crystalproc/internal/logging"
	"crystalproc/internal/services"
)

const (
	// Extension is appended to a raw file name to form its archive name.
	Extension = ".zst"
	tmpSuffix = ".tmp"
)

// Action is what a pass did (or would do) for one raw file.
type Action string

const (
	ActionArchived        Action = "archived"
	ActionRemovedRaw      Action = "removed_raw"
	ActionReplacedArchive Action = "replaced_archive"
)

// Result describes the handling of one raw file.
type Result struct {
	RawPath     string
	ArchivePath string
	Action      Action
	RawBytes    int64
	Compressed  int64
	// Problem describes a corrupt or mismatched archive that was discarded.
	Problem string
}

// Report summarizes a pass over a root.
type Report struct {
	Root         string
	DryRun       bool
	Results      []Result
	CleanedTemps []string
}

// Option configures the archiver.
type Option func(*Archiver)

// WithLogger sets the archiver logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archiver) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithDryRun makes passes report planned actions without touching files.
func WithDryRun(dryRun bool) Option {
	return func(a *Archiver) { a.dryRun = dryRun }
}

// Archiver compacts raw files.
type Archiver struct {
	marker   string
	reserved map[string]struct{}
	level    zstd.EncoderLevel
	dryRun   bool
	logger   *slog.Logger
}

// New constructs an archiver from the archive config section.
func New(cfg config.Archive, opts ...Option) (*Archiver, error) {
	marker := strings.TrimSpace(cfg.Marker)
	if marker == "" {
		return nil, errors.New("archive marker required")
	}
	level := zstd.SpeedDefault
	if cfg.Level != "" {
		ok, parsed := zstd.EncoderLevelFromString(cfg.Level)
		if !ok {
			return nil, services.Wrap(services.ErrConfiguration, "archive", "init", fmt.Sprintf("unknown level %q", cfg.Level), nil)
		}
		level = parsed
	}
	a := &Archiver{
		marker:   marker,
		reserved: make(map[string]struct{}, len(cfg.ReservedNames)),
		level:    level,
		logger:   logging.NewNop(),
	}
	for _, name := range cfg.ReservedNames {
		a.reserved[name] = struct{}{}
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.NewComponentLogger(a.logger, "archive")
	return a, nil
}

// IsCandidate reports whether name looks like a raw instrument file: it
// contains the marker, has no extension, and is not a reserved control file.
func (a *Archiver) IsCandidate(name string) bool {
	if _, reserved := a.reserved[name]; reserved {
		return false
	}
	if !strings.Contains(name, a.marker) {
		return false
	}
	return filepath.Ext(name) == ""
}

// Candidates lists raw files under root, sorted.
func (a *Archiver) Candidates(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.Type().IsRegular() && a.IsCandidate(d.Name()) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan archive root %s: %w", root, err)
	}
	sort.Strings(out)
	return out, nil
}

// Run processes every candidate under root. The first failure halts the pass.
func (a *Archiver) Run(ctx context.Context, root string) (Report, error) {
	report := Report{Root: root, DryRun: a.dryRun}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return report, services.Wrap(services.ErrConfiguration, "archive", "stat root", root, err)
	}

	temps, err := a.cleanTemps(root)
	report.CleanedTemps = temps
	if err != nil {
		return report, err
	}

	candidates, err := a.Candidates(root)
	if err != nil {
		return report, err
	}
	for _, raw := range candidates {
		if err := ctx.Err(); err != nil {
			return report, services.Wrap(services.ErrAborted, "archive", "run", "interrupted", err)
		}
		result, err := a.ArchiveFile(raw)
		if err != nil {
			return report, err
		}
		report.Results = append(report.Results, result)
	}
	a.logger.Info("archive pass complete",
		logging.String("root", root),
		logging.Int("files", len(report.Results)),
		logging.Bool("dry_run", a.dryRun),
	)
	return report, nil
}

// ArchiveFile handles one raw file. An existing archive that decodes to the
// raw bytes means only the raw file is removed. An unreadable or mismatched
// archive is discarded and rebuilt from the raw file.
func (a *Archiver) ArchiveFile(rawPath string) (Result, error) {
	archivePath := rawPath + Extension
	result := Result{RawPath: rawPath, ArchivePath: archivePath}
	logger := a.logger.With(logging.String("raw", rawPath))

	rawDigest, rawSize, err := fileutil.HashFile(rawPath)
	if err != nil {
		return result, services.Wrap(services.ErrExternalTool, "archive", "hash raw", rawPath, err)
	}
	result.RawBytes = rawSize

	exists, err := fileutil.Exists(archivePath)
	if err != nil {
		return result, services.Wrap(services.ErrExternalTool, "archive", "stat archive", archivePath, err)
	}
	if exists {
		digest, _, verr := DecodeDigest(archivePath)
		switch {
		case verr != nil:
			result.Problem = "corrupt archive: " + verr.Error()
		case digest != rawDigest:
			result.Problem = "archive content differs from raw file"
		default:
			result.Action = ActionRemovedRaw
			result.Compressed = fileSize(archivePath)
			logger.Info("archive verified; removing raw file")
			if !a.dryRun {
				if err := os.Remove(rawPath); err != nil {
					return result, services.Wrap(services.ErrExternalTool, "archive", "remove raw", rawPath, err)
				}
			}
			return result, nil
		}
		logger.Warn("discarding bad archive", logging.String("archive", archivePath), logging.String("problem", result.Problem))
		result.Action = ActionReplacedArchive
		if !a.dryRun {
			if err := os.Remove(archivePath); err != nil {
				return result, services.Wrap(services.ErrExternalTool, "archive", "remove bad archive", archivePath, err)
			}
		}
	} else {
		result.Action = ActionArchived
	}

	if a.dryRun {
		return result, nil
	}
	if err := a.compress(rawPath, archivePath); err != nil {
		return result, err
	}
	digest, _, err := DecodeDigest(archivePath)
	if err != nil || digest != rawDigest {
		_ = os.Remove(archivePath)
		return result, services.Wrap(services.ErrVerification, "archive", "verify new archive", archivePath, err)
	}
	result.Compressed = fileSize(archivePath)
	if err := os.Remove(rawPath); err != nil {
		return result, services.Wrap(services.ErrExternalTool, "archive", "remove raw", rawPath, err)
	}
	logger.Info("raw file archived",
		logging.Int64("raw_bytes", result.RawBytes),
		logging.Int64("archive_bytes", result.Compressed),
	)
	return result, nil
}

func (a *Archiver) compress(rawPath, archivePath string) error {
	tmp := archivePath + tmpSuffix
	in, err := os.Open(rawPath)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "archive", "open raw", rawPath, err)
	}
	defer in.Close()

	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "archive", "create temp archive", tmp, err)
	}
	fail := func(op string, err error) error {
		_ = out.Close()
		_ = os.Remove(tmp)
		return services.Wrap(services.ErrExternalTool, "archive", op, tmp, err)
	}

	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(a.level), zstd.WithEncoderCRC(true))
	if err != nil {
		return fail("create zstd encoder", err)
	}
	if _, err := io.Copy(enc, in); err != nil {
		_ = enc.Close()
		return fail("compress", err)
	}
	if err := enc.Close(); err != nil {
		return fail("finish frame", err)
	}
	if err := out.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return services.Wrap(services.ErrExternalTool, "archive", "close", tmp, err)
	}
	if err := os.Rename(tmp, archivePath); err != nil {
		_ = os.Remove(tmp)
		return services.Wrap(services.ErrExternalTool, "archive", "rename", archivePath, err)
	}
	syncDir(filepath.Dir(archivePath))
	return nil
}

func (a *Archiver) cleanTemps(root string) ([]string, error) {
	var cleaned []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() || !strings.HasSuffix(d.Name(), Extension+tmpSuffix) {
			return nil
		}
		cleaned = append(cleaned, path)
		if a.dryRun {
			return nil
		}
		a.logger.Info("removing interrupted archive", logging.String("path", path))
		return os.Remove(path)
	})
	if err != nil {
		return cleaned, services.Wrap(services.ErrExternalTool, "archive", "clean temp files", root, err)
	}
	return cleaned, nil
}

// DecodeDigest fully decodes a zstd archive, checking frame checksums, and
// returns the SHA-256 digest and size of the decoded content.
func DecodeDigest(archivePath string) (string, int64, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return "", 0, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()
	return fileutil.HashReader(dec)
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
