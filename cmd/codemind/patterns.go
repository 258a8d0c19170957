package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	patternsFormat string
	patternsType   string
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List learned coding patterns",
	Long: `List patterns persisted by previous learns, optionally filtered by type.

Examples:
  codemind patterns
  codemind patterns --type=naming --format=human`,
	RunE: runPatterns,
}

func init() {
	patternsCmd.Flags().StringVar(&patternsFormat, "format", "json", "Output format (json, human)")
	patternsCmd.Flags().StringVar(&patternsType, "type", "", "Filter by pattern type")
	rootCmd.AddCommand(patternsCmd)
}

func runPatterns(cmd *cobra.Command, args []string) error {
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

	rows, err := store.GetPatterns(patternsType)
	if err != nil {
		return err
	}

	if patternsFormat == "human" {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTYPE\tCONFIDENCE\tFREQUENCY\tEXAMPLES")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\t%s\n",
				r.Name, r.Type, r.Confidence, r.Frequency, strings.Join(r.Examples, ", "))
		}
		return w.Flush()
	}
	return printJSON(rows)
}
