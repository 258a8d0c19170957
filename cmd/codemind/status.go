package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"codemind/internal/staleness"
	"codemind/internal/version"
)

var statusFormat string

type statusOutput struct {
	Version   string    `json:"version"`
	Project   string    `json:"project"`
	Database  string    `json:"database"`
	Analyzer  string    `json:"analyzer"`
	Concepts  int       `json:"concepts"`
	Patterns  int       `json:"patterns"`
	Stale     bool      `json:"stale"`
	LastLearn time.Time `json:"lastLearn,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store contents and staleness",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	concepts, patterns, err := store.Counts()
	if err != nil {
		return err
	}
	times, err := store.Timestamps()
	if err != nil {
		return err
	}

	verdict := staleness.NewDetector(cfg.Staleness.Buffer(), logger).
		Check(cfg.ProjectRoot, times)

	out := statusOutput{
		Version:   version.Info(),
		Project:   cfg.ProjectRoot,
		Database:  db.Path(),
		Analyzer:  cfg.Analyzer.Endpoint,
		Concepts:  concepts,
		Patterns:  patterns,
		Stale:     verdict.IsStale,
		LastLearn: verdict.MostRecentIntelligenceTime,
	}

	if statusFormat == "json" {
		return printJSON(out)
	}

	fmt.Printf("codemind %s\n", out.Version)
	fmt.Printf("project:   %s\n", out.Project)
	fmt.Printf("database:  %s\n", out.Database)
	fmt.Printf("analyzer:  %s\n", out.Analyzer)
	fmt.Printf("concepts:  %d\n", out.Concepts)
	fmt.Printf("patterns:  %d\n", out.Patterns)
	if out.Stale {
		fmt.Println("staleness: stale (run 'codemind learn' or 'codemind serve')")
	} else {
		fmt.Println("staleness: fresh")
	}
	if !out.LastLearn.IsZero() {
		fmt.Printf("last learn: %s\n", out.LastLearn.Local().Format(time.RFC3339))
	}
	return nil
}
