package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"crystalproc/internal/converter"
	"crystalproc/internal/preflight"
	"crystalproc/internal/processor"
	"crystalproc/internal/services"
)

type processFlags struct {
	all        bool
	overwrite  bool
	sync       bool
	archive    bool
	yes        bool
	skipChecks bool
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var flags processFlags

	cmd := &cobra.Command{
		Use:   "process [SERIAL...]",
		Short: "Convert and place the raw runs of one or more crystals",
		Long: "Convert every raw run listed for the given crystals and place the output under\n" +
			"built_dir/<serial>/<Position|Voltage>/<folder>/. Runs whose output is already\n" +
			"in place are skipped unless --overwrite is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.all && len(args) > 0 {
				return fmt.Errorf("%w: --all cannot be combined with serial numbers", services.ErrConfiguration)
			}
			if !flags.all && len(args) == 0 {
				return fmt.Errorf("%w: name at least one crystal serial or pass --all", services.ErrConfiguration)
			}
			return runProcess(cmd, ctx, args, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.all, "all", false, "Process every configured crystal")
	cmd.Flags().BoolVar(&flags.overwrite, "overwrite", false, "Reconvert runs whose output already exists")
	cmd.Flags().BoolVar(&flags.sync, "sync", false, "Synchronize with the archive host after processing")
	cmd.Flags().BoolVar(&flags.archive, "archive", false, "Compact raw files under archive.root after processing")
	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "Confirm raw-file deletion without prompting")
	cmd.Flags().BoolVar(&flags.skipChecks, "skip-checks", false, "Skip preflight checks")
	return cmd
}

func runProcess(cmd *cobra.Command, ctx *commandContext, serials []string, flags processFlags) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.logger(cmd)
	if err != nil {
		return err
	}
	runCtx := commandCtx(cmd)
	out := cmd.OutOrStdout()

	remote, err := ctx.remoteClient(logger)
	if err != nil {
		return err
	}
	if flags.sync && remote == nil {
		return fmt.Errorf("%w: --sync requires remote.host", services.ErrConfiguration)
	}

	if !flags.skipChecks {
		var pinger preflight.Pinger
		if remote != nil && flags.sync {
			pinger = remote
		}
		checkCfg := *cfg
		if !flags.sync {
			checkCfg.Remote.Host = ""
		}
		if failed := preflight.Failed(preflight.RunAll(runCtx, &checkCfg, pinger)); len(failed) > 0 {
			for _, r := range failed {
				fmt.Fprintln(cmd.ErrOrStderr(), renderStatusLine(r.Name, statusError, r.Detail, shouldColorize(cmd.ErrOrStderr())))
			}
			return fmt.Errorf("%w: %d preflight check(s) failed", services.ErrConfiguration, len(failed))
		}
	}

	store, err := ctx.openJournal()
	if err != nil {
		return err
	}
	defer store.Close()

	conv, err := converter.NewFromConfig(cfg, converter.WithLogger(logger))
	if err != nil {
		return err
	}
	proc, err := processor.New(cfg, conv, processor.WithRecorder(store), processor.WithLogger(logger))
	if err != nil {
		return err
	}

	reports, procErr := proc.ProcessAll(runCtx, serials, processor.Options{Overwrite: flags.overwrite})
	printProcessReports(out, proc.BatchID(), reports)
	if procErr != nil {
		return procErr
	}

	if flags.sync {
		if err := runSync(runCtx, cmd, cfg, remote, flags.yes, false); err != nil {
			return err
		}
	}
	if flags.archive {
		if err := runArchive(runCtx, cmd, cfg, logger, cfg.Archive.Root, false); err != nil {
			return err
		}
	}
	return nil
}

func printProcessReports(out io.Writer, batchID string, reports []processor.Report) {
	if len(reports) == 0 {
		return
	}
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []string{
			r.Serial,
			strconv.Itoa(r.Count(processor.StatePlaced)),
			strconv.Itoa(r.Count(processor.StateSkipped)),
			strconv.Itoa(r.Count(processor.StateFailed)),
			joinRuns(r.MissingRaw),
		})
	}
	fmt.Fprintf(out, "Batch %s\n", batchID)
	fmt.Fprintln(out, renderTable(
		[]string{"Crystal", "Placed", "Skipped", "Failed", "Missing raw"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
	))
}

func joinRuns(runs []int) string {
	if len(runs) == 0 {
		return "-"
	}
	parts := make([]string, len(runs))
	for i, r := range runs {
		parts[i] = strconv.Itoa(r)
	}
	return strings.Join(parts, ", ")
}

func commandCtx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func stdinFile(cmd *cobra.Command) *os.File {
	if f, ok := cmd.InOrStdin().(*os.File); ok {
		return f
	}
	return nil
}
