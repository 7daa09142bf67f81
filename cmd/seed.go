package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/athena/internal/classify"
	"github.com/sells-group/athena/internal/seed"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Import companies, signals and programs from a YAML file",
	Long: `Imports a seed file of the form:

  companies:
    - name: Heliox AI
      website: https://heliox.ai
      signals:
        - source_name: HackerNews
          layer: realtime
          metadata: {points: 320, num_comments: 41}
      programs:
        - name: Seedcamp
          cohort: "2026"

Missing sectors are inferred from the description and missing geographies
from the description or the website's country-code domain.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedFile == "" {
			return eris.New("seed: --file is required")
		}

		sectors, err := classify.NewSectors(cfg.Classify)
		if err != nil {
			return err
		}

		st, err := openStore(cmd.Context(), "engine")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := seed.NewImporter(st, sectors).ImportFile(cmd.Context(), seedFile)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d companies, %d signals, %d programs (%d classified)\n",
			res.Companies, res.Signals, res.Programs, res.Classified)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "path to the seed YAML file (required)")
	rootCmd.AddCommand(seedCmd)
}
