package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"crystalproc/internal/archive"
	"crystalproc/internal/config"
	"crystalproc/internal/services"
)

func newArchiveCommand(ctx *commandContext) *cobra.Command {
	var root string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Compact raw run files into verified zstd archives",
		Long: "Compress every raw run file under the archive root into <name>.zst. The raw file\n" +
			"is removed only after the archive decodes to identical bytes; a corrupt archive\n" +
			"is discarded and rebuilt from the raw file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			target := strings.TrimSpace(root)
			if target == "" {
				target = cfg.Archive.Root
			} else if target, err = config.ExpandPath(target); err != nil {
				return err
			}
			return runArchive(commandCtx(cmd), cmd, cfg, logger, target, dryRun)
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Directory to compact (defaults to archive.root)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report planned actions without modifying files")
	return cmd
}

func runArchive(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, root string, dryRun bool) error {
	if strings.TrimSpace(root) == "" {
		return fmt.Errorf("%w: archive.root is not configured (or pass --root)", services.ErrConfiguration)
	}
	if config.Overlaps(root, cfg.Paths.RawDir) {
		return fmt.Errorf("%w: archive root %s overlaps paths.raw_dir %s", services.ErrConfiguration, root, cfg.Paths.RawDir)
	}
	archiver, err := archive.New(cfg.Archive, archive.WithLogger(logger), archive.WithDryRun(dryRun))
	if err != nil {
		return err
	}
	report, runErr := archiver.Run(ctx, root)

	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(report.Results))
	var before, after int64
	for _, r := range report.Results {
		rel, err := filepath.Rel(root, r.RawPath)
		if err != nil {
			rel = r.RawPath
		}
		rows = append(rows, []string{rel, string(r.Action), formatBytes(r.RawBytes), formatBytes(r.Compressed), r.Problem})
		before += r.RawBytes
		after += r.Compressed
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable(
			[]string{"File", "Action", "Raw", "Archive", "Note"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
		))
	}
	label := "Archived"
	if dryRun {
		label = "Planned"
	}
	fmt.Fprintf(out, "%s %d file(s) under %s", label, len(report.Results), root)
	if !dryRun && after > 0 {
		fmt.Fprintf(out, " (%s -> %s)", formatBytes(before), formatBytes(after))
	}
	fmt.Fprintln(out)
	if len(report.CleanedTemps) > 0 {
		fmt.Fprintf(out, "Removed %d interrupted temporary file(s)\n", len(report.CleanedTemps))
	}
	return runErr
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
