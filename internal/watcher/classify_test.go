package watcher

import "testing"

func TestClassifyLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"main.go", "go"},
		{"src/App.TSX", "typescript"},
		{"scripts/build.sh", "shell"},
		{"lib/core.rs", "rust"},
		{"a/b/c.py", "python"},
		{"README.md", "markdown"},
		{"config.yaml", "yaml"},
		{"Makefile", "unknown"},
		{"archive.tar.gz", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := ClassifyLanguage(tt.path); got != tt.want {
				t.Errorf("ClassifyLanguage(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestIsSourceFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"main.go", true},
		{"app.py", true},
		{"index.html", false},
		{"notes.md", false},
		{"data.json", false},
		{"LICENSE", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsSourceFile(tt.path); got != tt.want {
				t.Errorf("IsSourceFile(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
