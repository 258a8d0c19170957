package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"codemind/internal/daemon"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch the project and keep intelligence fresh",
	Long: `Run the long-lived daemon: re-learn the project if stored intelligence is
stale, then watch for file changes and analyze them incrementally.

Examples:
  codemind serve
  codemind serve --project /path/to/repo --log-format json`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	d, err := daemon.New(cfg, semantic, pattern, store, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("codemind daemon starting",
		"project", cfg.ProjectRoot,
		"analyzer", cfg.Analyzer.Endpoint)
	return d.Run(ctx)
}
