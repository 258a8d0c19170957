package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"codemind/internal/config"
	"codemind/internal/storage"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold .codemind configuration and database",
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	cfg.ProjectRoot = projectFlag
	if err := cfg.Save(projectFlag); err != nil {
		return err
	}

	logger := newLogger(cfg)
	db, err := storage.Open(projectFlag, logger)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // Best effort cleanup

	fmt.Printf("initialized codemind in %s\n", filepath.Join(projectFlag, ".codemind"))
	return nil
}
