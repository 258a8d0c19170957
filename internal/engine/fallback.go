package engine

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"codemind/internal/analyzer"
	"codemind/internal/watcher"
)

// Heuristic extraction used when the analyzer cannot serve a call. Plain
// regular expressions over source text; the caller assigns a low confidence
// so degraded results are distinguishable from real analysis downstream.

const (
	// maxHeuristicFiles bounds a fallback scan on very large trees
	maxHeuristicFiles = 2000
	// maxHeuristicFileSize skips generated bundles and vendored blobs
	maxHeuristicFileSize = 1 << 20
)

// Directories that never hold project source and are skipped while scanning
var heuristicSkipDirs = map[string]bool{
	".git":         true,
	".codemind":    true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"out":          true,
	".cache":       true,
	"__pycache__":  true,
}

var (
	funcPattern = regexp.MustCompile(`(?m)^\s*(?:(?:pub|public|private|protected|static|async|export)\s+)*(?:func|fn|def|function)\s+(?:\([^)]*\)\s+)?([A-Za-z_][A-Za-z0-9_]*)`)
	typePattern = regexp.MustCompile(`(?m)^\s*(?:(?:pub|public|abstract|final|export)\s+)*(?:class|struct|interface|trait|enum)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	// Go spells type declarations backwards relative to the pattern above
	goTypePattern = regexp.MustCompile(`(?m)^type\s+([A-Za-z_][A-Za-z0-9_]*)\s+(?:struct|interface)\b`)

	camelPattern = regexp.MustCompile(`\b[a-z]+[A-Z][A-Za-z0-9]*\b`)
	snakePattern = regexp.MustCompile(`\b[a-z]+_[a-z0-9_]+\b`)
)

// heuristicFileConcepts extracts declaration-shaped concepts from a single
// file's content.
func heuristicFileConcepts(path, content string, confidence float64) []analyzer.Concept {
	var out []analyzer.Concept
	out = append(out, matchConcepts(funcPattern, "function", path, content, confidence)...)
	out = append(out, matchConcepts(typePattern, "class", path, content, confidence)...)
	out = append(out, matchConcepts(goTypePattern, "class", path, content, confidence)...)
	return out
}

func matchConcepts(re *regexp.Regexp, kind, path, content string, confidence float64) []analyzer.Concept {
	var out []analyzer.Concept
	for _, m := range re.FindAllStringSubmatchIndex(content, -1) {
		if m[2] < 0 {
			continue
		}
		name := content[m[2]:m[3]]
		line := 1 + strings.Count(content[:m[0]], "\n")
		out = append(out, analyzer.Concept{
			Name:       name,
			Type:       kind,
			Confidence: confidence,
			FilePath:   path,
			LineRange:  analyzer.LineRange{Start: line, End: line},
		})
	}
	return out
}

// walkSourceFiles visits up to maxHeuristicFiles source files under root.
// Unreadable entries below the root are skipped; an unreadable root is an
// error.
func walkSourceFiles(root string, visit func(path string, content []byte)) error {
	seen := 0
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil //nolint:nilerr // Skip inaccessible entries, continue walking
		}
		if entry.IsDir() {
			if path != root && heuristicSkipDirs[entry.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !watcher.IsSourceFile(path) {
			return nil
		}
		if seen >= maxHeuristicFiles {
			return fs.SkipAll
		}
		info, err := entry.Info()
		if err != nil || info.Size() > maxHeuristicFileSize {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil //nolint:nilerr // Skip unreadable files, continue walking
		}
		seen++
		visit(path, content)
		return nil
	})
}

// heuristicCodebaseConcepts scans a project tree for declaration-shaped
// concepts.
func heuristicCodebaseConcepts(root string, confidence float64) ([]analyzer.Concept, error) {
	var out []analyzer.Concept
	err := walkSourceFiles(root, func(path string, content []byte) {
		out = append(out, heuristicFileConcepts(relPath(root, path), string(content), confidence)...)
	})
	if err != nil {
		return nil, fmt.Errorf("heuristic scan of %s failed: %w", root, err)
	}
	return out, nil
}

// heuristicCodebaseAnalysis builds a whole-project analysis from file
// extensions, manifest files, and branch-token density.
func heuristicCodebaseAnalysis(root string, confidence float64) (*analyzer.CodebaseAnalysis, error) {
	languages := make(map[string]int)
	var concepts []analyzer.Concept
	var totalLines, branchTokens int

	err := walkSourceFiles(root, func(path string, content []byte) {
		languages[watcher.ClassifyLanguage(path)]++
		text := string(content)
		totalLines += strings.Count(text, "\n") + 1
		branchTokens += strings.Count(text, "if ") +
			strings.Count(text, "for ") +
			strings.Count(text, "while ") +
			strings.Count(text, "case ")
		concepts = append(concepts, heuristicFileConcepts(relPath(root, path), text, confidence)...)
	})
	if err != nil {
		return nil, fmt.Errorf("heuristic scan of %s failed: %w", root, err)
	}

	var complexity float64
	if totalLines > 0 {
		complexity = float64(branchTokens) / float64(totalLines) * 100
	}
	return &analyzer.CodebaseAnalysis{
		Languages:  languages,
		Frameworks: detectFrameworks(root),
		Complexity: complexity,
		Concepts:   concepts,
	}, nil
}

// detectFrameworks reports build ecosystems recognizable from manifest files
// at the project root.
func detectFrameworks(root string) []string {
	markers := []struct {
		file      string
		framework string
	}{
		{"go.mod", "go-modules"},
		{"package.json", "node"},
		{"Cargo.toml", "cargo"},
		{"pyproject.toml", "python"},
		{"requirements.txt", "python"},
		{"pom.xml", "maven"},
		{"build.gradle", "gradle"},
	}

	var out []string
	seen := make(map[string]bool)
	for _, m := range markers {
		if seen[m.framework] {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, m.file)); err == nil {
			seen[m.framework] = true
			out = append(out, m.framework)
		}
	}
	return out
}

// heuristicPatterns mines naming, testing, and error-handling patterns from
// token frequencies across a project tree.
func heuristicPatterns(root string, confidence float64) ([]analyzer.Pattern, error) {
	var camel, snake, testFiles, errChecks int
	var testExamples []string

	err := walkSourceFiles(root, func(path string, content []byte) {
		text := string(content)
		camel += len(camelPattern.FindAllString(text, -1))
		snake += len(snakePattern.FindAllString(text, -1))
		errChecks += strings.Count(text, "if err != nil") +
			strings.Count(text, "try {") +
			strings.Count(text, "except ")

		if isTestFile(path) {
			testFiles++
			if len(testExamples) < 3 {
				testExamples = append(testExamples, relPath(root, path))
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("heuristic scan of %s failed: %w", root, err)
	}

	var out []analyzer.Pattern
	if camel > 0 || snake > 0 {
		name, freq := "snake_case identifiers", snake
		if camel >= snake {
			name, freq = "camelCase identifiers", camel
		}
		out = append(out, analyzer.Pattern{
			Name: name, Type: "naming", Confidence: confidence, Frequency: freq,
		})
	}
	if testFiles > 0 {
		out = append(out, analyzer.Pattern{
			Name: "dedicated test files", Type: "testing",
			Confidence: confidence, Frequency: testFiles, Examples: testExamples,
		})
	}
	if errChecks > 0 {
		out = append(out, analyzer.Pattern{
			Name: "explicit error handling", Type: "error-handling",
			Confidence: confidence, Frequency: errChecks,
		})
	}
	return out, nil
}

func isTestFile(path string) bool {
	base := filepath.Base(path)
	return strings.Contains(base, "_test.") ||
		strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.") ||
		strings.HasPrefix(base, "test_")
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}
