package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"crystalproc/internal/calibration"
	"crystalproc/internal/catalog"
	"crystalproc/internal/services"
)

func newCalibrateCommand(ctx *commandContext) *cobra.Command {
	var mode string
	var pin float64

	cmd := &cobra.Command{
		Use:   "calibrate SERIAL",
		Short: "Fit the source peaks of a crystal's built runs",
		Long: "Fit the 208Tl, 40K and 137Cs peaks of every built run in one sweep of the crystal,\n" +
			"append the sweep summary to built_dir/<serial>/CharLog.txt and write its plots\n" +
			"beside it. --pin sets the raw 2614 keV position when the automatic search misses.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dim, err := parseMode(mode)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}

			cal := calibration.New(cfg, calibration.WithLogger(logger))
			report, err := cal.Calibrate(commandCtx(cmd), args[0], dim, calibration.Options{Pin: pin})
			if err != nil {
				return err
			}
			printCalibration(cmd, report)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "position", "Sweep to calibrate (position or voltage)")
	cmd.Flags().Float64Var(&pin, "pin", 0, "Raw position of the 208Tl 2614 keV peak (default: search)")
	return cmd
}

func parseMode(mode string) (catalog.Dimension, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "pos", "position":
		return catalog.Position, nil
	case "volt", "voltage":
		return catalog.Voltage, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q (want position or voltage)", services.ErrConfiguration, mode)
	}
}

func printCalibration(cmd *cobra.Command, report *calibration.Report) {
	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(report.Measurements))
	for _, m := range report.Measurements {
		c := m.Run.Calibration
		row := []string{
			formatValue(m.Value),
			formatMeasured(c.Offset, c.OffsetErr),
			formatMeasured(c.Slope, c.SlopeErr),
		}
		if cs, ok := m.Run.Peak(calibration.Cs662); ok {
			e, eErr := c.Energy(cs.Mu, cs.MuErr)
			w, wErr := c.Width(cs.Sigma, cs.SigmaErr)
			row = append(row, formatMeasured(e, eErr), formatMeasured(w, wErr))
		} else {
			row = append(row, "-", "-")
		}
		rows = append(rows, row)
	}
	fmt.Fprintln(out, renderTable(
		[]string{string(report.Dimension), "Offset", "Slope", "137Cs (keV)", "137Cs sigma (keV)"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
	))

	switch {
	case report.Position != nil:
		p := report.Position
		fmt.Fprintf(out, "Cs resolution at position %s: %s keV\n", formatValue(p.Reference), formatMeasured(p.Resolution, p.ResolutionErr))
		fmt.Fprintf(out, "Cs energy variation: %.4g keV (%.6g to %.6g)\n", p.Variation, p.MinEnergy, p.MaxEnergy)
	case report.Gain != nil:
		g := report.Gain
		fmt.Fprintf(out, "Gain offset (ln G0): %s\n", formatMeasured(g.Offset, g.OffsetErr))
		fmt.Fprintf(out, "Gain slope:          %s\n", formatMeasured(g.Slope, g.SlopeErr))
		fmt.Fprintf(out, "Gain curvature:      %s\n", formatMeasured(g.Curvature, g.CurvatureErr))
	}
	fmt.Fprintf(out, "Appended %s\n", report.LogPath)
	for _, f := range report.Plots {
		fmt.Fprintf(out, "Wrote %s\n", f)
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatMeasured(v, err float64) string {
	return fmt.Sprintf("%.5g ± %.2g", v, err)
}
