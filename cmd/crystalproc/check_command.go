package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"crystalproc/internal/preflight"
	"crystalproc/internal/services"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks (directories, free space, tools, archive host)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			var pinger preflight.Pinger
			remote, err := ctx.remoteClient(logger)
			if err != nil {
				return err
			}
			if remote != nil {
				pinger = remote
			}

			results := preflight.RunAll(commandCtx(cmd), cfg, pinger)
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			if ctx.configPath != "" {
				fmt.Fprintln(out, renderStatusLine("Config", statusInfo, ctx.configPath, colorize))
			}
			for _, r := range results {
				fmt.Fprintln(out, renderStatusLine(r.Name, preflightKind(r.Passed), r.Detail, colorize))
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%w: %d check(s) failed", services.ErrConfiguration, len(failed))
			}
			return nil
		},
	}
}
