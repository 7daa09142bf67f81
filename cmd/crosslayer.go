package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/athena/internal/company"
)

// crossLayerTitles is how many signal titles per layer are printed.
const crossLayerTitles = 3

var crossLayerCmd = &cobra.Command{
	Use:   "crosslayer",
	Short: "List companies seen in both the curated and real-time layers",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context(), "engine")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		matches, err := company.FindCrossLayer(cmd.Context(), st)
		if err != nil {
			return err
		}
		printCrossLayer(cmd.OutOrStdout(), matches)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(crossLayerCmd)
}

func printCrossLayer(w io.Writer, matches []company.CrossLayerMatch) {
	if len(matches) == 0 {
		fmt.Fprintln(w, "No cross-layer matches.")
		return
	}
	for _, m := range matches {
		fmt.Fprintf(w, "%s (#%d): %d sources [%s]\n", m.Name, m.ID, m.SourceCount, m.Sources)
		for _, layer := range []company.Layer{company.LayerCurated, company.LayerRealtime} {
			for _, s := range m.SignalsByLayer(layer, crossLayerTitles) {
				title := s.Title
				if title == "" {
					title = s.SourceURL
				}
				fmt.Fprintf(w, "  %-8s %-12s %s\n", layer, s.SourceName, title)
			}
		}
	}
	fmt.Fprintf(w, "\n%d cross-layer matches\n", len(matches))
}
