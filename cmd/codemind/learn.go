package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"codemind/internal/cerr"
	"codemind/internal/engine"
)

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Learn concepts and patterns from the whole project",
	Long: `Run a deep analysis of the project and persist what it finds.

The learn runs under a wall-clock budget (learning.timeoutMs). When the
analyzer is unavailable a heuristic scan is used instead, marked degraded.`,
	RunE: runLearn,
}

func init() {
	rootCmd.AddCommand(learnCmd)
}

func runLearn(cmd *cobra.Command, args []string) error {
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

	semantic, pattern, err := newEngines(cfg, store, logger)
	if err != nil {
		return err
	}
	defer semantic.Close()
	defer pattern.Close()

	progress := func(p engine.Progress) {
		fmt.Fprintf(os.Stderr, "learning... %d%% (%s elapsed)\n",
			int(p.Percent), p.Elapsed.Round(time.Second))
	}

	result, err := semantic.LearnFromCodebase(cmd.Context(), cfg.ProjectRoot, progress)
	if err != nil {
		if cerr.CodeOf(err) != cerr.PersistencePartial {
			return err
		}
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
	fmt.Printf("concepts: %d found, %d persisted (quality %s) in %s\n",
		len(result.Concepts), result.Persisted, result.Quality,
		result.Duration.Round(time.Millisecond))

	patterns, err := pattern.LearnPatterns(cmd.Context(), cfg.ProjectRoot, nil)
	if err != nil {
		if cerr.CodeOf(err) != cerr.PersistencePartial {
			return err
		}
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
	fmt.Printf("patterns: %d found, %d persisted (quality %s) in %s\n",
		len(patterns.Patterns), patterns.Persisted, patterns.Quality,
		patterns.Duration.Round(time.Millisecond))
	return nil
}
