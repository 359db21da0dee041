package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"crystalproc/internal/catalog"
	"crystalproc/internal/fileutil"
)

func newCrystalsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "crystals",
		Short: "List configured crystals and how many of their runs are built",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			serials := cfg.Serials()
			if len(serials) == 0 {
				fmt.Fprintln(out, "No crystals configured")
				return nil
			}

			rows := make([][]string, 0, len(serials))
			for _, serial := range serials {
				crystal, _ := cfg.Crystal(serial)
				row := []string{serial, joinRuns(crystal.Position), joinRuns(crystal.Voltage), "", ""}
				cat, err := catalog.FromConfig(cfg, serial)
				if err != nil {
					row[4] = err.Error()
					rows = append(rows, row)
					continue
				}
				built := 0
				for _, run := range cat.Runs() {
					placement, _ := cat.Lookup(run)
					dest := placement.Destination(cfg.Paths.BuiltDir, fmt.Sprintf(cfg.Converter.OutputPattern, run))
					if ok, _ := fileutil.Exists(dest); ok {
						built++
					}
				}
				row[3] = strconv.Itoa(built) + "/" + strconv.Itoa(len(cat.Runs()))
				row[4] = "ok"
				rows = append(rows, row)
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Crystal", "Position runs", "Voltage runs", "Built", "Status"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}
