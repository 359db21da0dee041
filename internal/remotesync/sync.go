package remotesync

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"crystalproc/internal/config"
	"crystalproc/internal/logging"
	"crystalproc/internal/services"
)

// Options controls a sync pass.
type Options struct {
	// NoDelete stops after verification.
	NoDelete bool
	Confirm  Confirmer
}

// Report describes what a sync pass did.
type Report struct {
	LocalRaw   int
	LocalBuilt int
	Verified   bool
	Confirmed  bool
	Deleted    []string
	Protected  []string
}

// Sync pushes the raw and built trees, verifies them by file name, and then
// deletes local raw files after confirmation. Verification failure returns
// ErrVerification and nothing is deleted.
func (c *Client) Sync(ctx context.Context, paths config.Paths, opts Options) (Report, error) {
	var report Report
	ctx = services.WithStage(ctx, "sync")
	logger := logging.WithContext(ctx, c.logger)

	trees := []struct {
		local, remote string
		count         *int
	}{
		{paths.RawDir, c.remote.RawDir, &report.LocalRaw},
		{paths.BuiltDir, c.remote.BuiltDir, &report.LocalBuilt},
	}

	var localRaw []string
	for _, tree := range trees {
		if err := c.Push(ctx, tree.local, tree.remote); err != nil {
			return report, err
		}
	}
	for i, tree := range trees {
		local, err := ListLocal(tree.local)
		if err != nil {
			return report, err
		}
		*tree.count = len(local)
		remote, err := c.ListRemote(ctx, tree.remote)
		if err != nil {
			return report, err
		}
		if missing := Missing(local, remote); len(missing) > 0 {
			logger.Error("remote copy incomplete", logging.Int("missing", len(missing)), logging.String("tree", tree.local))
			return report, services.Wrap(services.ErrVerification, "sync", "verify", fmt.Sprintf("%d file(s) from %s missing on %s: %s",
				len(missing), tree.local, c.remote.Host, summarize(missing, 5)), nil)
		}
		if i == 0 {
			localRaw = local
		}
	}
	report.Verified = true
	logger.Info("remote copy verified", logging.Int("raw_files", report.LocalRaw), logging.Int("built_files", report.LocalBuilt))

	if opts.NoDelete || len(localRaw) == 0 {
		return report, nil
	}

	protected := make(map[string]struct{}, len(c.remote.ProtectedFiles))
	for _, name := range c.remote.ProtectedFiles {
		protected[NormalizeName(name)] = struct{}{}
	}
	var doomed []string
	for _, path := range localRaw {
		if _, ok := protected[NormalizeName(filepath.ToSlash(path))]; ok {
			report.Protected = append(report.Protected, path)
			continue
		}
		doomed = append(doomed, path)
	}
	if len(doomed) == 0 {
		return report, nil
	}

	confirm := opts.Confirm
	if confirm == nil {
		confirm = PromptConfirmer{}
	}
	ok, err := confirm.Confirm(fmt.Sprintf("Delete %d local raw file(s) under %s?", len(doomed), paths.RawDir))
	if err != nil {
		return report, err
	}
	if !ok {
		logger.Info("deletion declined")
		return report, nil
	}
	report.Confirmed = true

	for _, path := range doomed {
		if err := removeFile(path); err != nil {
			return report, services.Wrap(services.ErrExternalTool, "sync", "delete", path, err)
		}
		report.Deleted = append(report.Deleted, path)
	}
	logger.Info("local raw files deleted", logging.Int("deleted", len(report.Deleted)), logging.Int("protected", len(report.Protected)))
	return report, nil
}

func summarize(paths []string, limit int) string {
	names := make([]string, 0, limit)
	for i, path := range paths {
		if i == limit {
			names = append(names, fmt.Sprintf("and %d more", len(paths)-limit))
			break
		}
		names = append(names, filepath.Base(path))
	}
	return strings.Join(names, ", ")
}
