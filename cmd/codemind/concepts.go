package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var conceptsFormat string

var conceptsCmd = &cobra.Command{
	Use:   "concepts",
	Short: "List learned concepts",
	Long: `List concepts persisted by previous learns and incremental analysis.

Examples:
  codemind concepts
  codemind concepts --format=human`,
	RunE: runConcepts,
}

func init() {
	conceptsCmd.Flags().StringVar(&conceptsFormat, "format", "json", "Output format (json, human)")
	rootCmd.AddCommand(conceptsCmd)
}

func runConcepts(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	db, store, err := openStore(logger)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // Best effort cleanup

	rows, err := store.GetConcepts()
	if err != nil {
		return err
	}

	if conceptsFormat == "human" {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTYPE\tCONFIDENCE\tFILE\tLINES")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%d-%d\n",
				r.Name, r.Type, r.Confidence, r.FilePath, r.LineRange.Start, r.LineRange.End)
		}
		return w.Flush()
	}
	return printJSON(rows)
}
