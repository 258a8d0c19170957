package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codemind/internal/slogutil"
)

func testWatcherConfig() Config {
	return Config{
		Debounce:       50 * time.Millisecond,
		IncludeContent: true,
		IgnorePatterns: []string{".git", "*.tmp"},
		BufferSize:     64,
	}
}

func startWatcher(t *testing.T, dir string, config Config) *Watcher {
	t.Helper()
	w, err := New(dir, config, slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(w.Stop)

	select {
	case <-w.Ready():
	case <-time.After(time.Second):
		t.Fatal("watcher never became ready")
	}
	return w
}

func waitForChange(t *testing.T, w *Watcher, timeout time.Duration) (ChangeRecord, bool) {
	t.Helper()
	select {
	case rec := <-w.Changes():
		return rec, true
	case <-time.After(timeout):
		return ChangeRecord{}, false
	}
}

func TestChangeKindString(t *testing.T) {
	tests := []struct {
		kind ChangeKind
		want string
	}{
		{ChangeAdd, "add"},
		{ChangeModify, "modify"},
		{ChangeDelete, "delete"},
		{ChangeAddDir, "add-dir"},
		{ChangeDeleteDir, "delete-dir"},
		{ChangeKind(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	logger := slogutil.NewDiscardLogger()

	if _, err := New(t.TempDir(), Config{Debounce: 0, BufferSize: 1}, logger); err == nil {
		t.Error("New() should reject zero debounce")
	}
	if _, err := New(t.TempDir(), Config{Debounce: time.Second, BufferSize: 0}, logger); err == nil {
		t.Error("New() should reject zero buffer size")
	}
}

func TestEmitsAddForNewFile(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, testWatcherConfig())

	path := filepath.Join(dir, "main.go")
	if err := os.WriteFile(path, []byte("package main\n"), 0644); err != nil {
		t.Fatal(err)
	}

	rec, ok := waitForChange(t, w, time.Second)
	if !ok {
		t.Fatal("no change emitted")
	}
	if rec.Kind != ChangeAdd {
		t.Errorf("Kind = %v, want add", rec.Kind)
	}
	if rec.Path != path {
		t.Errorf("Path = %q, want %q", rec.Path, path)
	}
	if rec.Language != "go" {
		t.Errorf("Language = %q, want go", rec.Language)
	}
	if rec.Hash == "" {
		t.Error("Hash should be set when IncludeContent is enabled")
	}
}

func TestRapidWritesCoalesceIntoOneChange(t *testing.T) {
	dir := t.TempDir()
	config := testWatcherConfig()
	config.Debounce = 200 * time.Millisecond
	w := startWatcher(t, dir, config)

	path := filepath.Join(dir, "app.py")
	if err := os.WriteFile(path, []byte("x = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("x = 2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	rec, ok := waitForChange(t, w, time.Second)
	if !ok {
		t.Fatal("no change emitted")
	}
	if rec.Kind != ChangeAdd {
		t.Errorf("Kind = %v, want add (first sighting of path)", rec.Kind)
	}

	// The two raw writes landed within one debounce window; there must be
	// no second emission.
	if extra, ok := waitForChange(t, w, 400*time.Millisecond); ok {
		t.Errorf("unexpected second change: %+v", extra)
	}
}

func TestIdenticalContentWriteIsSuppressed(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, testWatcherConfig())

	path := filepath.Join(dir, "lib.rs")
	content := []byte("fn main() {}\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	if _, ok := waitForChange(t, w, time.Second); !ok {
		t.Fatal("no change for initial write")
	}

	// Re-write identical content: fingerprint matches, event suppressed.
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	if rec, ok := waitForChange(t, w, 400*time.Millisecond); ok {
		t.Errorf("no-op write should be suppressed, got %+v", rec)
	}
}

func TestModifyAfterAdd(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, testWatcherConfig())

	path := filepath.Join(dir, "util.ts")
	if err := os.WriteFile(path, []byte("const a = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, ok := waitForChange(t, w, time.Second); !ok {
		t.Fatal("no change for initial write")
	}

	if err := os.WriteFile(path, []byte("const a = 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	rec, ok := waitForChange(t, w, time.Second)
	if !ok {
		t.Fatal("no change for modification")
	}
	if rec.Kind != ChangeModify {
		t.Errorf("Kind = %v, want modify", rec.Kind)
	}
}

func TestDeleteClearsFingerprint(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, testWatcherConfig())

	path := filepath.Join(dir, "gone.go")
	if err := os.WriteFile(path, []byte("package gone\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, ok := waitForChange(t, w, time.Second); !ok {
		t.Fatal("no change for initial write")
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	rec, ok := waitForChange(t, w, time.Second)
	if !ok {
		t.Fatal("no change for delete")
	}
	if rec.Kind != ChangeDelete {
		t.Errorf("Kind = %v, want delete", rec.Kind)
	}

	// Path state must be released so a re-creation is fresh.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && w.WatchedPaths() != 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if got := w.WatchedPaths(); got != 0 {
		t.Errorf("WatchedPaths() = %d after delete, want 0", got)
	}

	if err := os.WriteFile(path, []byte("package gone\n"), 0644); err != nil {
		t.Fatal(err)
	}
	rec, ok = waitForChange(t, w, time.Second)
	if !ok {
		t.Fatal("no change for re-creation")
	}
	if rec.Kind != ChangeAdd {
		t.Errorf("Kind = %v for re-created file, want add", rec.Kind)
	}
}

func TestIgnoredPatterns(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, testWatcherConfig())

	if err := os.WriteFile(filepath.Join(dir, "scratch.tmp"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if rec, ok := waitForChange(t, w, 300*time.Millisecond); ok {
		t.Errorf("ignored file produced change: %+v", rec)
	}
}

func TestNewDirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, testWatcherConfig())

	sub := filepath.Join(dir, "pkg")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	rec, ok := waitForChange(t, w, time.Second)
	if !ok {
		t.Fatal("no change for new directory")
	}
	if rec.Kind != ChangeAddDir {
		t.Errorf("Kind = %v, want add-dir", rec.Kind)
	}

	// Files inside the new directory must be picked up.
	if err := os.WriteFile(filepath.Join(sub, "new.go"), []byte("package pkg\n"), 0644); err != nil {
		t.Fatal(err)
	}
	rec, ok = waitForChange(t, w, time.Second)
	if !ok {
		t.Fatal("no change for file in new directory")
	}
	if rec.Kind != ChangeAdd {
		t.Errorf("Kind = %v, want add", rec.Kind)
	}
}

func TestFullBufferBlocksInsteadOfDropping(t *testing.T) {
	dir := t.TempDir()
	config := testWatcherConfig()
	config.BufferSize = 1
	w := startWatcher(t, dir, config)

	names := []string{"a.go", "b.go", "c.go"}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("package x\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	// Let every debounce timer fire before draining. Emits beyond the
	// buffer capacity must wait for the consumer, not be discarded.
	time.Sleep(6 * config.Debounce)

	got := make(map[string]bool)
	for range names {
		rec, ok := waitForChange(t, w, 2*time.Second)
		if !ok {
			t.Fatalf("received %d of %d change records, rest were lost", len(got), len(names))
		}
		got[filepath.Base(rec.Path)] = true
	}
	for _, name := range names {
		if !got[name] {
			t.Errorf("no change record for %s", name)
		}
	}
}

func TestStopUnblocksPendingEmit(t *testing.T) {
	dir := t.TempDir()
	config := testWatcherConfig()
	config.BufferSize = 1
	w := startWatcher(t, dir, config)

	for _, name := range []string{"a.go", "b.go"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("package x\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	time.Sleep(6 * config.Debounce)

	// One record fills the buffer, the other emit is parked. Stop must
	// release it rather than leak the goroutine.
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return with an emit pending")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, testWatcherConfig(), slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop() // must not panic
}
