package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"crystalproc/internal/config"
	"crystalproc/internal/remotesync"
	"crystalproc/internal/services"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	var noDelete bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push raw and built trees to the archive host and clear verified raw files",
		Long: "Mirror raw_dir and built_dir to the archive host with rsync, verify every local\n" +
			"file name is present remotely, and after confirmation delete the local raw files.\n" +
			"Built files and protected control files are never deleted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			remote, err := ctx.remoteClient(logger)
			if err != nil {
				return err
			}
			if remote == nil {
				return fmt.Errorf("%w: remote.host is not configured", services.ErrConfiguration)
			}
			return runSync(commandCtx(cmd), cmd, cfg, remote, yes, noDelete)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm raw-file deletion without prompting")
	cmd.Flags().BoolVar(&noDelete, "no-delete", false, "Stop after verification; keep local raw files")
	return cmd
}

func runSync(ctx context.Context, cmd *cobra.Command, cfg *config.Config, client *remotesync.Client, yes, noDelete bool) error {
	out := cmd.OutOrStdout()
	confirm := remotesync.PromptConfirmer{In: stdinFile(cmd), Out: out, AssumeYes: yes}
	report, err := client.Sync(ctx, cfg.Paths, remotesync.Options{NoDelete: noDelete, Confirm: confirm})

	colorize := shouldColorize(out)
	fmt.Fprintln(out, renderStatusLine("Local raw files", statusInfo, fmt.Sprint(report.LocalRaw), colorize))
	fmt.Fprintln(out, renderStatusLine("Local built files", statusInfo, fmt.Sprint(report.LocalBuilt), colorize))
	verified := statusError
	if report.Verified {
		verified = statusOK
	}
	fmt.Fprintln(out, renderStatusLine("Verified", verified, yesNo(report.Verified), colorize))
	if report.Verified && !noDelete {
		fmt.Fprintln(out, renderStatusLine("Deleted raw files", statusInfo, fmt.Sprint(len(report.Deleted)), colorize))
		if len(report.Protected) > 0 {
			fmt.Fprintln(out, renderStatusLine("Protected (kept)", statusInfo, fmt.Sprint(len(report.Protected)), colorize))
		}
	}
	return err
}
