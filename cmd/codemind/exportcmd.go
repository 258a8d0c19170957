package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"codemind/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export [path]",
	Short: "Export learned intelligence to a compressed snapshot",
	Long: `Write the store's concepts and patterns as zstd-compressed JSON, so a
learned store can move between machines without re-running a learn.

Defaults to .codemind/export.json.zst under the project root.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Restore learned intelligence from a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
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

	path := filepath.Join(projectFlag, ".codemind", "export.json.zst")
	if len(args) == 1 {
		path = args[0]
	}

	snap, err := export.Write(store, path)
	if err != nil {
		return err
	}
	fmt.Printf("exported %d concepts and %d patterns to %s\n",
		len(snap.Concepts), len(snap.Patterns), path)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
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

	snap, err := export.Read(args[0])
	if err != nil {
		return err
	}
	n, err := export.Restore(store, snap)
	if err != nil {
		return err
	}
	fmt.Printf("restored %d items from snapshot (version %s)\n", n, snap.Version)
	return nil
}
