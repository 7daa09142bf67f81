package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/athena/internal/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run the full pass: dedupe, cross-layer detection, rescoring",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "engine")
		if err != nil {
			return err
		}
		defer env.Close()

		format, _ := cmd.Flags().GetString("format")
		rep, err := env.Runner.Run(ctx)
		if rep != nil {
			if format == "json" {
				if jerr := writeJSON(cmd.OutOrStdout(), rep); jerr != nil {
					return jerr
				}
			} else {
				printReconcileReport(cmd.OutOrStdout(), rep)
			}
		}
		return err
	},
}

func init() {
	reconcileCmd.Flags().String("format", "table", "output format: table or json")
	rootCmd.AddCommand(reconcileCmd)
}

func printReconcileReport(w io.Writer, rep *reconcile.Report) {
	fmt.Fprintf(w, "Run %s\n", rep.RunID)
	for _, p := range rep.Phases {
		status := "ok"
		if p.Error != "" {
			status = "FAILED: " + p.Error
		}
		fmt.Fprintf(w, "  %-12s %6dms  %s\n", p.Name, p.DurationMs, status)
	}
	if rep.Merge != nil {
		fmt.Fprintln(w)
		printMergeReport(w, rep.Merge)
	}
	fmt.Fprintf(w, "Cross-layer: %d\n", len(rep.CrossLayer))
	fmt.Fprintf(w, "Scored:      %d\n", rep.Scored)
	if rep.Distribution != nil {
		printDistribution(w, rep.Distribution)
		printRising(w, rep.Rising)
	}
}
