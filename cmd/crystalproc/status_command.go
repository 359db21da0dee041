package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"crystalproc/internal/journal"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var serial string
	var run int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent batches and run outcomes from the processing journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openJournal()
			if err != nil {
				return err
			}
			defer store.Close()

			runCtx := commandCtx(cmd)
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			if strings.TrimSpace(serial) != "" && run >= 0 {
				entries, err := store.ForRun(runCtx, strings.TrimSpace(serial), run)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintf(out, "No journal entries for %s run %d\n", serial, run)
					return nil
				}
				printEntries(out, entries, colorize)
				return nil
			}

			batches, err := store.Batches(runCtx, limit)
			if err != nil {
				return err
			}
			if len(batches) == 0 {
				fmt.Fprintln(out, "No batches recorded")
				return nil
			}
			for _, line := range renderSectionHeader("Batches", colorize) {
				fmt.Fprintln(out, line)
			}
			printBatches(out, batches)

			entries, err := store.Recent(runCtx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Recent runs", colorize) {
				fmt.Fprintln(out, line)
			}
			printEntries(out, entries, colorize)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of batches and runs to show (0 for all)")
	cmd.Flags().StringVar(&serial, "crystal", "", "Show the history of one crystal's run (with --run)")
	cmd.Flags().IntVar(&run, "run", -1, "Run number for --crystal")
	return cmd
}

func printBatches(out io.Writer, batches []journal.BatchSummary) {
	rows := make([][]string, 0, len(batches))
	for _, b := range batches {
		rows = append(rows, []string{
			shortID(b.BatchID),
			b.Started.Local().Format("2006-01-02 15:04"),
			strings.Join(b.Serials, ", "),
			strconv.Itoa(b.Placed),
			strconv.Itoa(b.Skipped),
			strconv.Itoa(b.Failed),
			b.Converted.Round(time.Second).String(),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Batch", "Started", "Crystals", "Placed", "Skipped", "Failed", "Converting"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
	))
}

func printEntries(out io.Writer, entries []journal.Entry, colorize bool) {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		state := e.State
		if colorize {
			if color := statusKindColor(stateKind(e.State)); color != "" {
				state = color + state + ansiReset
			}
		}
		note := e.Folder
		if e.ErrorMessage != "" {
			note = e.ErrorKind + ": " + e.ErrorMessage
		}
		rows = append(rows, []string{
			e.RecordedAt.Local().Format("2006-01-02 15:04:05"),
			e.Serial,
			strconv.Itoa(e.Run),
			e.Dimension,
			state,
			note,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Recorded", "Crystal", "Run", "Dimension", "State", "Folder / error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
	))
}

func stateKind(state string) statusKind {
	switch state {
	case "placed":
		return statusOK
	case "skipped":
		return statusInfo
	case "failed":
		return statusError
	default:
		return statusWarn
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
