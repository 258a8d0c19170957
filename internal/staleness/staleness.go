// Package staleness decides whether stored intelligence is still trustworthy
// relative to the source files it was derived from.
package staleness

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"codemind/internal/watcher"
)

// Directories that never hold project source and are skipped while scanning
var skipDirs = map[string]bool{
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

// Verdict is the result of a staleness check, computed on demand and
// never persisted.
type Verdict struct {
	IsStale                    bool      `json:"isStale"`
	MostRecentFileTime         time.Time `json:"mostRecentFileTime"`
	MostRecentIntelligenceTime time.Time `json:"mostRecentIntelligenceTime"`
}

// Detector compares stored-intelligence timestamps against source file
// modification times.
type Detector struct {
	// Buffer absorbs clock skew and near-simultaneous writes so a learn
	// finishing moments before an edit does not immediately read as stale.
	// Hand-tuned default, not a correctness constant.
	buffer time.Duration
	logger *slog.Logger
}

// NewDetector creates a staleness detector with the given buffer
func NewDetector(buffer time.Duration, logger *slog.Logger) *Detector {
	return &Detector{buffer: buffer, logger: logger}
}

// Check reports whether intelligence with the given persistence timestamps is
// stale relative to the source tree under projectPath.
//
// With no stored timestamps the verdict is stale: nothing trustworthy exists
// yet. A filesystem error while scanning yields not-stale, since a wrong
// stale verdict triggers an expensive re-learn.
func (d *Detector) Check(projectPath string, intelligenceTimes []time.Time) Verdict {
	var latestIntelligence time.Time
	for _, t := range intelligenceTimes {
		if t.After(latestIntelligence) {
			latestIntelligence = t
		}
	}

	if latestIntelligence.IsZero() {
		d.logger.Debug("no intelligence timestamps, treating as stale", "path", projectPath)
		return Verdict{IsStale: true}
	}

	latestFile, err := mostRecentSourceTime(projectPath)
	if err != nil {
		d.logger.Warn("staleness scan failed, assuming not stale",
			"path", projectPath, "error", err.Error())
		return Verdict{
			IsStale:                    false,
			MostRecentIntelligenceTime: latestIntelligence,
		}
	}

	stale := latestFile.Sub(latestIntelligence) > d.buffer
	return Verdict{
		IsStale:                    stale,
		MostRecentFileTime:         latestFile,
		MostRecentIntelligenceTime: latestIntelligence,
	}
}

// mostRecentSourceTime returns the newest modification time among source
// files under root, excluding build and dependency directories.
func mostRecentSourceTime(root string) (time.Time, error) {
	var latest time.Time

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil //nolint:nilerr // Skip inaccessible entries, continue walking
		}
		if entry.IsDir() {
			if path != root && skipDirs[entry.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !watcher.IsSourceFile(path) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil //nolint:nilerr // Skip unstattable files, continue walking
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return latest, nil
}
