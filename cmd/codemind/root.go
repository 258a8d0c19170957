package main

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"codemind/internal/analyzer"
	"codemind/internal/config"
	"codemind/internal/engine"
	"codemind/internal/slogutil"
	"codemind/internal/storage"
	"codemind/internal/version"
)

var (
	projectFlag   string
	logLevelFlag  string
	logFormatFlag string
)

var rootCmd = &cobra.Command{
	Use:   "codemind",
	Short: "codemind - resilient codebase intelligence",
	Long: `codemind maintains a learned model of a codebase (semantic concepts and
coding patterns), keeps it fresh as files change, and degrades to heuristic
analysis when the external analysis engine is slow or down.`,
	Version:      version.Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.SetVersionTemplate("codemind version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&projectFlag, "project", "p", ".", "Project root directory")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "Log format override (text, json)")
}

// loadConfig loads the project configuration with CLI overrides applied
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(projectFlag)
	if err != nil {
		return nil, err
	}
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	if logFormatFlag != "" {
		cfg.Logging.Format = logFormatFlag
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slogutil.NewLogger(os.Stderr, slogutil.LevelFromString(cfg.Logging.Level), cfg.Logging.Format)
}

// openStore opens the project's intelligence database
func openStore(logger *slog.Logger) (*storage.DB, *storage.IntelligenceStore, error) {
	db, err := storage.Open(projectFlag, logger)
	if err != nil {
		return nil, nil, err
	}
	return db, storage.NewIntelligenceStore(db), nil
}

// newEngines builds the semantic and pattern engines over a shared analyzer
// endpoint. Each engine still owns its own circuit breaker and caches.
func newEngines(cfg *config.Config, store engine.Store, logger *slog.Logger) (*engine.SemanticEngine, *engine.PatternEngine, error) {
	factory := func() (analyzer.Analyzer, error) {
		return analyzer.NewClient(cfg.Analyzer.Endpoint, logger), nil
	}
	semantic, err := engine.NewSemanticEngine(cfg, factory, store, logger)
	if err != nil {
		return nil, nil, err
	}
	pattern, err := engine.NewPatternEngine(cfg, factory, store, logger)
	if err != nil {
		semantic.Close()
		return nil, nil, err
	}
	return semantic, pattern, nil
}

// printJSON writes v to stdout as indented JSON
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
