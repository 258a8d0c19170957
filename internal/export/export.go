// Package export writes and restores compressed snapshots of stored
// intelligence, so a learned store can move between machines without
// re-running an expensive learn.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"codemind/internal/storage"
	"codemind/internal/version"
)

// Snapshot is the serialized form of the intelligence store
type Snapshot struct {
	Version    string               `json:"version"`
	ExportedAt time.Time            `json:"exportedAt"`
	Concepts   []storage.ConceptRow `json:"concepts"`
	Patterns   []storage.PatternRow `json:"patterns"`
}

// Write serializes the store's contents to path as zstd-compressed JSON
// and returns the snapshot that was written.
func Write(store *storage.IntelligenceStore, path string) (*Snapshot, error) {
	concepts, err := store.GetConcepts()
	if err != nil {
		return nil, fmt.Errorf("failed to read concepts for export: %w", err)
	}
	patterns, err := store.GetPatterns("")
	if err != nil {
		return nil, fmt.Errorf("failed to read patterns for export: %w", err)
	}

	snap := &Snapshot{
		Version:    version.Version,
		ExportedAt: time.Now().UTC(),
		Concepts:   concepts,
		Patterns:   patterns,
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create export directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}

	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}

	if err := json.NewEncoder(enc).Encode(snap); err != nil {
		enc.Close() //nolint:errcheck // Already failing
		f.Close()   //nolint:errcheck // Already failing
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("failed to finish compression: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close export file: %w", err)
	}
	return snap, nil
}

// Read loads a snapshot previously written by Write
func Read(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close() //nolint:errcheck // Read-only handle

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create decompressor: %w", err)
	}
	defer dec.Close()

	var snap Snapshot
	if err := json.NewDecoder(dec).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// Restore inserts a snapshot's contents into the store. Existing rows with
// matching IDs are replaced. Returns how many items were written.
func Restore(store *storage.IntelligenceStore, snap *Snapshot) (int, error) {
	written := 0
	for i := range snap.Concepts {
		if err := store.InsertConcept(&snap.Concepts[i].Concept); err != nil {
			return written, fmt.Errorf("failed to restore concept %s: %w", snap.Concepts[i].Name, err)
		}
		written++
	}
	for i := range snap.Patterns {
		if err := store.InsertPattern(&snap.Patterns[i].Pattern); err != nil {
			return written, fmt.Errorf("failed to restore pattern %s: %w", snap.Patterns[i].Name, err)
		}
		written++
	}
	return written, nil
}
