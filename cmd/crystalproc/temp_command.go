package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"crystalproc/internal/config"
	"crystalproc/internal/services"
	"crystalproc/internal/temperature"
)

func newTempCommand(ctx *commandContext) *cobra.Command {
	tempCmd := &cobra.Command{
		Use:   "temp",
		Short: "Temperature probe utilities",
	}
	tempCmd.AddCommand(newTempPrintCommand(ctx))
	tempCmd.AddCommand(newTempLogCommand(ctx))
	tempCmd.AddCommand(newTempTrackCommand())
	return tempCmd
}

func newTempPrintCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "print",
		Short: "Print a single probe reading",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			sensor, err := temperature.OpenMAX31865(cfg.Temperature)
			if err != nil {
				return services.Wrap(services.ErrExternalTool, "temperature", "open sensor", "", err)
			}
			defer sensor.Close()

			celsius, err := sensor.ReadCelsius(commandCtx(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.3f\n", celsius)
			return nil
		},
	}
}

func newTempLogCommand(ctx *commandContext) *cobra.Command {
	var run int
	var duration time.Duration
	var interval time.Duration
	var noUpload bool

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Log the probe alongside a run",
		Long: "Read the probe every interval for the session duration and append\n" +
			"\"<unix time> <celsius>\" lines to <data_dir>/run<N>_temperature_data.txt.\n" +
			"The file is copied to remote.temperature_dir when configured.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if run < 0 {
				return fmt.Errorf("%w: --run is required", services.ErrConfiguration)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			sensor, err := temperature.OpenMAX31865(cfg.Temperature)
			if err != nil {
				return services.Wrap(services.ErrExternalTool, "temperature", "open sensor", "", err)
			}
			defer sensor.Close()

			session := temperature.NewSession(sensor, cfg.Temperature, logger)
			if duration > 0 {
				session.Duration = duration
			}
			if interval > 0 {
				session.Interval = interval
			}
			if !noUpload && cfg.RemoteEnabled() && cfg.Remote.TemperatureDir != "" {
				remote, err := ctx.remoteClient(logger)
				if err != nil {
					return err
				}
				session.Uploader = remote
				session.RemoteDir = cfg.Remote.TemperatureDir
			}

			out := cmd.OutOrStdout()
			start := time.Now()
			fmt.Fprintf(out, "Start time: %s\n", start.Format(time.TimeOnly))
			fmt.Fprintf(out, "Estimated end time: %s\n", start.Add(session.Duration).Format(time.TimeOnly))

			result, err := session.Run(commandCtx(cmd), run)
			if result.Readings > 0 {
				fmt.Fprintf(out, "Logged %d reading(s) to %s (min %.2f °C, max %.2f °C)\n",
					result.Readings, result.Path, result.Min, result.Max)
			}
			if result.Uploaded {
				fmt.Fprintf(out, "Uploaded to %s:%s\n", cfg.Remote.Host, cfg.Remote.TemperatureDir)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&run, "run", -1, "Run number the session accompanies")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Override temperature.duration_seconds")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Override temperature.interval_seconds")
	cmd.Flags().BoolVar(&noUpload, "no-upload", false, "Keep the log local")
	return cmd
}

func newTempTrackCommand() *cobra.Command {
	var columns []string
	var fit []string
	var start int
	var output string
	var title string

	cmd := &cobra.Command{
		Use:         "track FILE",
		Short:       "Fit and plot temperature drift from a logged table",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			table, err := temperature.LoadTable(path)
			if err != nil {
				return err
			}
			if strings.TrimSpace(output) == "" {
				output = strings.TrimSuffix(path, filepath.Ext(path)) + ".png"
			}
			fits, err := temperature.Track(table, temperature.TrackOptions{
				Columns:  columns,
				Fit:      fit,
				FitStart: start,
				Title:    title,
				Output:   output,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(fits) > 0 {
				rows := make([][]string, 0, len(fits))
				for _, f := range fits {
					rows = append(rows, []string{
						f.Column,
						fmt.Sprint(f.Start),
						fmt.Sprintf("%.6g", f.Slope),
						fmt.Sprintf("%.6g", f.Intercept),
						fmt.Sprintf("%.4f", f.RSquared),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Column", "From", "Slope (°C/sample)", "Intercept (°C)", "R²"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
				))
			}
			fmt.Fprintf(out, "Wrote %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&columns, "column", nil, "Columns to plot (default: all but Time)")
	cmd.Flags().StringSliceVar(&fit, "fit", nil, "Columns to fit with a line")
	cmd.Flags().IntVar(&start, "start", 0, "First sample index used by the fit")
	cmd.Flags().StringVarP(&output, "output", "o", "", "PNG path (default: FILE with .png extension)")
	cmd.Flags().StringVar(&title, "title", "", "Plot title")
	return cmd
}
