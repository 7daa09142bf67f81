package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/athena/internal/company"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Merge duplicate company records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "engine")
		if err != nil {
			return err
		}
		defer env.Close()

		return runDedupe(ctx, env, cmd.OutOrStdout())
	},
}

// runDedupe consolidates under the runner's locks so it cannot overlap a
// reconcile pass or another dedupe.
func runDedupe(ctx context.Context, env *engine, w io.Writer) error {
	var rep *company.MergeReport
	err := env.Runner.Exclusive(ctx, func(ctx context.Context) error {
		var err error
		rep, err = env.Consolidator.Consolidate(ctx)
		return err
	})
	if err != nil {
		return eris.Wrap(err, "dedupe")
	}
	printMergeReport(w, rep)
	return nil
}

func init() {
	rootCmd.AddCommand(dedupeCmd)
}

func printMergeReport(w io.Writer, rep *company.MergeReport) {
	for _, m := range rep.Merges {
		fmt.Fprintf(w, "Merged: %q (#%d) into %q (#%d): %s\n", m.RemovedName, m.RemovedID, m.KeptName, m.KeptID, m.Reason)
	}
	for _, f := range rep.Failed {
		fmt.Fprintf(w, "Failed: #%d into #%d (%s): %s\n", f.RemovedID, f.KeptID, f.Reason, f.Error)
	}
	fmt.Fprintf(w, "Merges: %d  Failed: %d  Skipped: %d  Compared: %d\n",
		len(rep.Merges), len(rep.Failed), rep.Skipped, rep.Compared)
}
