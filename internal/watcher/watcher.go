// Package watcher observes a project tree and emits debounced, classified,
// fingerprint-deduplicated change records.
package watcher

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeKind represents the type of a change record
type ChangeKind int

const (
	ChangeAdd ChangeKind = iota
	ChangeModify
	ChangeDelete
	ChangeAddDir
	ChangeDeleteDir
)

// String returns a string representation of the change kind
func (k ChangeKind) String() string {
	switch k {
	case ChangeAdd:
		return "add"
	case ChangeModify:
		return "modify"
	case ChangeDelete:
		return "delete"
	case ChangeAddDir:
		return "add-dir"
	case ChangeDeleteDir:
		return "delete-dir"
	default:
		return "unknown"
	}
}

// ChangeRecord is a debounced, stabilized filesystem change
type ChangeRecord struct {
	Kind     ChangeKind
	Path     string
	Hash     string // content fingerprint, empty for dirs/deletes
	Language string
	Size     int64
	ModTime  time.Time
}

// Config contains watcher configuration
type Config struct {
	// Debounce is the quiet period required before a change is emitted
	Debounce time.Duration
	// IncludeContent enables content reads for fingerprinting
	IncludeContent bool
	// IgnorePatterns are names/globs excluded from watching
	IgnorePatterns []string
	// BufferSize bounds the change channel
	BufferSize int
}

// pathState holds the per-path debounce timer and last-known fingerprint.
// Entries are removed on delete so the map stays bounded by the live
// watch set over long-running sessions.
type pathState struct {
	timer    *time.Timer
	lastHash string
	known    bool
}

// Watcher watches a project tree for file changes
type Watcher struct {
	root   string
	config Config
	logger *slog.Logger

	fsw     *fsnotify.Watcher
	changes chan ChangeRecord
	errs    chan error
	ready   chan struct{}
	done    chan struct{}

	stopOnce sync.Once

	mu    sync.Mutex
	paths map[string]*pathState
	dirs  map[string]bool
}

// New creates a watcher for the given root directory
func New(root string, config Config, logger *slog.Logger) (*Watcher, error) {
	if config.Debounce <= 0 {
		return nil, fmt.Errorf("debounce must be positive, got %v", config.Debounce)
	}
	if config.BufferSize <= 0 {
		return nil, fmt.Errorf("buffer size must be positive, got %d", config.BufferSize)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		root:    root,
		config:  config,
		logger:  logger,
		fsw:     fsw,
		changes: make(chan ChangeRecord, config.BufferSize),
		errs:    make(chan error, 1),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		paths:   make(map[string]*pathState),
		dirs:    make(map[string]bool),
	}, nil
}

// Start begins watching. It returns once the initial recursive watch is
// established; Ready() is closed at that point.
func (w *Watcher) Start() error {
	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}

	go w.processEvents()

	close(w.ready)
	w.logger.Info("file watcher started", "root", w.root, "debounce", w.config.Debounce)
	return nil
}

// Stop stops the watcher and tears down all per-path state. Safe to call
// more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsw.Close() //nolint:errcheck // Best effort cleanup

		w.mu.Lock()
		for path, st := range w.paths {
			if st.timer != nil {
				st.timer.Stop()
			}
			delete(w.paths, path)
		}
		w.mu.Unlock()

		w.logger.Info("file watcher stopped", "root", w.root)
	})
}

// Changes returns the channel of emitted change records
func (w *Watcher) Changes() <-chan ChangeRecord {
	return w.changes
}

// Errors returns the channel of watcher errors
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Ready is closed once the initial watch set is established
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// WatchedPaths returns the number of paths with live debounce/fingerprint state
func (w *Watcher) WatchedPaths() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.paths)
}

// addRecursive adds root and all non-ignored subdirectories to the watch set
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // Skip inaccessible entries, continue walking
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return err
		}
		w.mu.Lock()
		w.dirs[path] = true
		w.mu.Unlock()
		return nil
	})
}

// shouldIgnore checks a path against the ignore patterns
func (w *Watcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.config.IgnorePatterns {
		if base == pattern {
			return true
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		// Directory patterns apply anywhere on the path.
		if !strings.ContainsAny(pattern, "*?[") {
			sep := string(filepath.Separator)
			if strings.Contains(path, sep+pattern+sep) {
				return true
			}
		}
	}
	return false
}

// processEvents consumes raw fsnotify events and schedules debounced emits
func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleRawEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err.Error())
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

// handleRawEvent classifies a raw event and resets the path's debounce timer.
// Directory creates and deletes bypass debouncing: they carry no content to
// stabilize and the watch set must follow them immediately.
func (w *Watcher) handleRawEvent(event fsnotify.Event) {
	path := event.Name
	if w.shouldIgnore(path) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.addRecursive(path); err != nil {
				w.logger.Warn("failed to watch new directory", "path", path, "error", err.Error())
			}
			// Emitted off the event loop so a full buffer cannot stall
			// raw event intake.
			go w.emit(ChangeRecord{Kind: ChangeAddDir, Path: path, ModTime: info.ModTime()})
			return
		}
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.mu.Lock()
		wasDir := w.dirs[path]
		if wasDir {
			delete(w.dirs, path)
		}
		w.mu.Unlock()
		if wasDir {
			go w.emit(ChangeRecord{Kind: ChangeDeleteDir, Path: path})
			return
		}
	}

	w.schedule(path)
}

// schedule resets the debounce timer for path, coalescing raw event bursts
// into one logical change per quiet period.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	st, ok := w.paths[path]
	if !ok {
		st = &pathState{}
		w.paths[path] = st
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = time.AfterFunc(w.config.Debounce, func() {
		w.fire(path)
	})
}

// fire runs when a path's debounce timer expires: re-stat, fingerprint,
// suppress no-op writes, classify, emit.
func (w *Watcher) fire(path string) {
	select {
	case <-w.done:
		return
	default:
	}

	info, err := os.Stat(path)
	if err != nil {
		// Path is gone: emit delete and release its state so a later
		// re-creation is treated as fresh.
		w.mu.Lock()
		_, existed := w.paths[path]
		delete(w.paths, path)
		w.mu.Unlock()
		if existed {
			w.emit(ChangeRecord{Kind: ChangeDelete, Path: path, Language: ClassifyLanguage(path)})
		}
		return
	}
	if info.IsDir() {
		return
	}

	var hash string
	if w.config.IncludeContent {
		hash, err = fingerprint(path)
		if err != nil {
			w.logger.Warn("failed to fingerprint file", "path", path, "error", err.Error())
		}
	}

	w.mu.Lock()
	st, ok := w.paths[path]
	if !ok {
		st = &pathState{}
		w.paths[path] = st
	}
	st.timer = nil
	if hash != "" && st.lastHash == hash {
		w.mu.Unlock()
		w.logger.Debug("suppressed no-op write", "path", path)
		return
	}
	kind := ChangeAdd
	if st.known {
		kind = ChangeModify
	}
	st.known = true
	st.lastHash = hash
	w.mu.Unlock()

	w.emit(ChangeRecord{
		Kind:     kind,
		Path:     path,
		Hash:     hash,
		Language: ClassifyLanguage(path),
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	})
}

// emit delivers a record, blocking when the buffer is full so a slow
// consumer applies backpressure instead of losing changes. Debounce fires
// run in their own timer goroutines, so blocking here never stalls raw
// event intake. Stop unblocks any waiting emit.
func (w *Watcher) emit(rec ChangeRecord) {
	select {
	case w.changes <- rec:
		w.logger.Debug("change emitted", "kind", rec.Kind.String(), "path", rec.Path, "language", rec.Language)
	case <-w.done:
	}
}

// fingerprint computes the SHA-256 content hash of a file
func fingerprint(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)), nil
}
