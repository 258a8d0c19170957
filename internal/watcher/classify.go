package watcher

import (
	"path/filepath"
	"strings"
)

// languageByExtension maps file extensions to language names
var languageByExtension = map[string]string{
	".go":    "go",
	".ts":    "typescript",
	".tsx":   "typescript",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".py":    "python",
	".rs":    "rust",
	".java":  "java",
	".kt":    "kotlin",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
	".dart":  "dart",
	".lua":   "lua",
	".sh":    "shell",
	".bash":  "shell",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".scss":  "css",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".md":    "markdown",
}

// ClassifyLanguage returns the language for a file path based on its
// extension, or "unknown" when the extension is not recognized.
func ClassifyLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := languageByExtension[ext]; ok {
		return lang
	}
	return "unknown"
}

// IsSourceFile reports whether the path maps to a known programming language
// (as opposed to config/markup formats or unrecognized files).
func IsSourceFile(path string) bool {
	switch ClassifyLanguage(path) {
	case "unknown", "json", "yaml", "toml", "markdown", "html", "css":
		return false
	default:
		return true
	}
}
