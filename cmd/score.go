package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os/signal"
	"slices"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/athena/internal/scorer"
	"github.com/sells-group/athena/internal/store"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Rescore every company, or explain one company's heat score",
	Long: `Without --id, snapshots every heat score, recomputes all scores and
prints the score distribution with the companies that rose by at least two
points.

With --id, prints the breakdown of one company's current heat score
without writing anything.

Examples:
  # Rescore everything
  score

  # Explain company 42 as JSON
  score --id 42 --format json`,
	RunE: runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.Int64("id", 0, "explain a single company by id")
	f.String("format", "table", "output format: table or json")
	f.Int("limit", 20, "maximum rising companies to print")

	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	id, _ := cmd.Flags().GetInt64("id")
	format, _ := cmd.Flags().GetString("format")
	limit, _ := cmd.Flags().GetInt("limit")
	if format != "table" && format != "json" {
		return eris.Errorf("score: --format must be table or json (got %q)", format)
	}

	env, err := initEngine(ctx, "engine")
	if err != nil {
		return err
	}
	defer env.Close()

	out := cmd.OutOrStdout()

	if id > 0 {
		b, err := env.Scorer.Breakdown(ctx, id)
		if err != nil {
			return err
		}
		if format == "json" {
			return writeJSON(out, b)
		}
		printBreakdown(out, b)
		return nil
	}

	var (
		n      int
		dist   map[int]int
		rising []store.Rising
	)
	err = env.Runner.Exclusive(ctx, func(ctx context.Context) error {
		var err error
		if n, err = env.Scorer.RescoreAll(ctx); err != nil {
			return eris.Wrap(err, "score: rescore")
		}
		if dist, err = env.Store.ScoreDistribution(ctx); err != nil {
			return err
		}
		rising, err = env.Store.RisingCompanies(ctx, scorer.RisingThreshold, limit)
		return err
	})
	if err != nil {
		return err
	}
	zap.L().Info("scoring complete", zap.Int("scored", n), zap.Int("rising", len(rising)))

	if format == "json" {
		return writeJSON(out, map[string]any{
			"scored":       n,
			"distribution": dist,
			"rising":       rising,
		})
	}
	fmt.Fprintf(out, "Scored %d companies\n", n)
	printDistribution(out, dist)
	printRising(out, rising)
	return nil
}

func printBreakdown(w io.Writer, b *scorer.Breakdown) {
	fmt.Fprintf(w, "Heat:   %d / 10\n", b.Total)
	fmt.Fprintf(w, "Rising: %v\n", b.Rising)
	fmt.Fprintln(w, "\nComponents:")
	for _, key := range []string{scorer.ComponentProgram, scorer.ComponentBuzz, scorer.ComponentSources, scorer.ComponentRecency} {
		c := b.Components[key]
		fmt.Fprintf(w, "  %-8s %d/%d  %s\n", key, c.Score, c.Max, c.Label)
	}
	if len(b.Reasons) > 0 {
		fmt.Fprintln(w, "\nReasons:")
		for _, r := range b.Reasons {
			fmt.Fprintf(w, "  %s\n", r)
		}
	}
}

func printDistribution(w io.Writer, dist map[int]int) {
	fmt.Fprintln(w, "\n--- Score distribution ---")
	for _, score := range slices.Backward(slices.Sorted(maps.Keys(dist))) {
		fmt.Fprintf(w, "  %2d: %d\n", score, dist[score])
	}
}

func printRising(w io.Writer, rising []store.Rising) {
	if len(rising) == 0 {
		fmt.Fprintln(w, "\nNo rising companies.")
		return
	}
	fmt.Fprintln(w, "\n--- Rising ---")
	for _, r := range rising {
		fmt.Fprintf(w, "  %-30s %2d  (+%d)\n", r.Name, r.HeatScore, r.Delta)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode json")
	}
	return nil
}
