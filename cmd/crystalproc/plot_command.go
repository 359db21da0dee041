package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"crystalproc/internal/config"
	"crystalproc/internal/summary"
)

func newPlotCommand(ctx *commandContext) *cobra.Command {
	plotCmd := &cobra.Command{
		Use:   "plot",
		Short: "Calibration summary plots",
	}
	plotCmd.AddCommand(newPlotSummaryCommand())
	return plotCmd
}

func newPlotSummaryCommand() *cobra.Command {
	var outDir string
	var skipRows []int
	var logGain float64
	var poorThreshold float64

	cmd := &cobra.Command{
		Use:         "summary CSV",
		Short:       "Histogram crystal calibration results exported from the ELOG",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			records, err := summary.Load(path, skipRows)
			if err != nil {
				return err
			}
			crystals := summary.Summarize(records, logGain)
			hists := summary.Fill(crystals)

			dir := strings.TrimSpace(outDir)
			if dir == "" {
				dir = "."
			}
			if dir, err = config.ExpandPath(dir); err != nil {
				return err
			}
			files, err := summary.Render(hists, dir, logGain)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Crystals: %d", len(crystals))
			if hists.Skipped > 0 {
				fmt.Fprintf(out, " (%d with missing values)", hists.Skipped)
			}
			fmt.Fprintln(out)
			for _, f := range files {
				fmt.Fprintf(out, "Wrote %s\n", f)
			}
			poor := summary.PoorResolution(crystals, poorThreshold)
			if len(poor) == 0 {
				fmt.Fprintf(out, "No crystals with resolution >= %g keV\n", poorThreshold)
			} else {
				fmt.Fprintf(out, "Crystals with poor resolution (>= %g keV): %s\n", poorThreshold, strings.Join(poor, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory for PNG files (default: current directory)")
	cmd.Flags().IntSliceVar(&skipRows, "skip-rows", nil, "1-based data rows to ignore (incomplete entries)")
	cmd.Flags().Float64Var(&logGain, "log-gain", summary.DefaultLogGain, "log10 gain the voltage is quoted at")
	cmd.Flags().Float64Var(&poorThreshold, "poor-resolution", 30, "Resolution (keV) at or above which a crystal is listed")
	return cmd
}
