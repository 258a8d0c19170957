package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var analyzeFormat string

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Analyze a single file or the whole project",
	Long: `Analyze a file (concepts with locations) or a directory (languages,
frameworks, complexity). Without an argument the project root is analyzed.

Examples:
  codemind analyze
  codemind analyze internal/server/server.go --format=human`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "json", "Output format (json, human)")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
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

	target := cfg.ProjectRoot
	if len(args) == 1 {
		target = args[0]
	}
	info, err := os.Stat(target)
	if err != nil {
		return err
	}

	if info.IsDir() {
		result, err := semantic.AnalyzeCodebase(cmd.Context(), target)
		if err != nil {
			return err
		}
		if analyzeFormat == "human" {
			fmt.Printf("quality: %s\n", result.Quality)
			for _, reason := range result.Reasons {
				fmt.Printf("  (%s)\n", reason)
			}
			for lang, n := range result.Analysis.Languages {
				fmt.Printf("  %-12s %d files\n", lang, n)
			}
			if len(result.Analysis.Frameworks) > 0 {
				fmt.Println("frameworks:", strings.Join(result.Analysis.Frameworks, ", "))
			}
			fmt.Printf("complexity: %.1f\nconcepts: %d\n",
				result.Analysis.Complexity, len(result.Analysis.Concepts))
			return nil
		}
		return printJSON(result)
	}

	content, err := os.ReadFile(target)
	if err != nil {
		return err
	}
	result, err := semantic.AnalyzeFile(cmd.Context(), target, string(content))
	if err != nil {
		return err
	}
	if analyzeFormat == "human" {
		fmt.Printf("quality: %s\n", result.Quality)
		for _, reason := range result.Reasons {
			fmt.Printf("  (%s)\n", reason)
		}
		for _, c := range result.Concepts {
			fmt.Printf("  %-10s %-28s %.2f  %s:%d\n",
				c.Type, c.Name, c.Confidence, c.FilePath, c.LineRange.Start)
		}
		return nil
	}
	return printJSON(result)
}
