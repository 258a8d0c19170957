// Package analyzer defines the contract with the external analysis engine.
//
// The engine is a black box that extracts semantic concepts and coding
// patterns from source text. Any call may fail or hang; the analyzer makes
// no timeout guarantees of its own, so callers must bound every invocation
// themselves (see internal/resilience).
package analyzer

import "context"

// LineRange locates a concept or pattern within a file
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Concept is a semantic concept extracted from source code
type Concept struct {
	ID         string    `json:"id,omitempty"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Confidence float64   `json:"confidence"`
	FilePath   string    `json:"filePath"`
	LineRange  LineRange `json:"lineRange"`
}

// Pattern is a recurring coding pattern extracted from source code
type Pattern struct {
	ID         string   `json:"id,omitempty"`
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Confidence float64  `json:"confidence"`
	Frequency  int      `json:"frequency"`
	Examples   []string `json:"examples,omitempty"`
}

// CodebaseAnalysis is the result of a whole-project analysis
type CodebaseAnalysis struct {
	Languages  map[string]int `json:"languages"`
	Frameworks []string       `json:"frameworks"`
	Complexity float64        `json:"complexity"`
	Concepts   []Concept      `json:"concepts"`
}

// Analyzer is the external analysis engine contract
type Analyzer interface {
	// AnalyzeFile extracts concepts from a single file's content
	AnalyzeFile(ctx context.Context, path, content string) ([]Concept, error)

	// AnalyzeCodebase analyzes a whole project tree
	AnalyzeCodebase(ctx context.Context, path string) (*CodebaseAnalysis, error)

	// LearnFromCodebase performs deep concept extraction over a project
	LearnFromCodebase(ctx context.Context, path string) ([]Concept, error)

	// ExtractPatterns mines recurring coding patterns from a project
	ExtractPatterns(ctx context.Context, path string) ([]Pattern, error)
}
