// Package daemon runs the long-lived watch loop that keeps stored
// intelligence in sync with a project tree.
package daemon

import (
	"context"
	"log/slog"
	"os"
	"time"

	"codemind/internal/cerr"
	"codemind/internal/config"
	"codemind/internal/engine"
	"codemind/internal/staleness"
	"codemind/internal/storage"
	"codemind/internal/watcher"
)

// Daemon watches a project tree and feeds changes through the engines.
// On startup it re-learns the whole project if the stored intelligence is
// stale; afterwards individual file changes are analyzed incrementally.
type Daemon struct {
	root     string
	semantic *engine.SemanticEngine
	pattern  *engine.PatternEngine
	store    *storage.IntelligenceStore
	detector *staleness.Detector
	watcher  *watcher.Watcher
	logger   *slog.Logger
}

// New creates a daemon for cfg.ProjectRoot
func New(cfg *config.Config, semantic *engine.SemanticEngine, pattern *engine.PatternEngine, store *storage.IntelligenceStore, logger *slog.Logger) (*Daemon, error) {
	w, err := watcher.New(cfg.ProjectRoot, watcher.Config{
		Debounce:       cfg.Watcher.Debounce(),
		IncludeContent: cfg.Watcher.IncludeContent,
		IgnorePatterns: cfg.Watcher.IgnorePatterns,
		BufferSize:     cfg.Watcher.BufferSize,
	}, logger)
	if err != nil {
		return nil, err
	}
	return &Daemon{
		root:     cfg.ProjectRoot,
		semantic: semantic,
		pattern:  pattern,
		store:    store,
		detector: staleness.NewDetector(cfg.Staleness.Buffer(), logger),
		watcher:  w,
		logger:   logger,
	}, nil
}

// Ready is closed once the initial watch set is established
func (d *Daemon) Ready() <-chan struct{} {
	return d.watcher.Ready()
}

// Run blocks until ctx is cancelled, processing file changes as they arrive
func (d *Daemon) Run(ctx context.Context) error {
	d.refreshIfStale(ctx)

	if err := d.watcher.Start(); err != nil {
		return err
	}
	defer d.watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon shutting down",
				"semanticBreaker", d.semantic.BreakerStats().State.String(),
				"patternBreaker", d.pattern.BreakerStats().State.String(),
				"cachedResults", d.semantic.CacheSize()+d.pattern.CacheSize())
			return nil
		case rec := <-d.watcher.Changes():
			d.handleChange(ctx, rec)
		case err := <-d.watcher.Errors():
			d.logger.Warn("watch error", "error", err.Error())
		}
	}
}

// refreshIfStale re-learns the project when the stored intelligence is older
// than the source tree. Learn failures are logged, not fatal: the daemon can
// still serve incremental analysis.
func (d *Daemon) refreshIfStale(ctx context.Context) {
	times, err := d.store.Timestamps()
	if err != nil {
		d.logger.Warn("failed to read intelligence timestamps", "error", err.Error())
		return
	}

	verdict := d.detector.Check(d.root, times)
	if !verdict.IsStale {
		d.logger.Info("stored intelligence is fresh", "root", d.root)
		return
	}

	d.logger.Info("stored intelligence is stale, learning",
		"root", d.root,
		"lastLearn", verdict.MostRecentIntelligenceTime)

	progress := func(p engine.Progress) {
		d.logger.Info("learning in progress",
			"percent", int(p.Percent),
			"elapsed", p.Elapsed.Round(time.Second))
	}

	if _, err := d.semantic.LearnFromCodebase(ctx, d.root, progress); err != nil {
		if cerr.CodeOf(err) == cerr.PersistencePartial {
			d.logger.Warn("learn persisted partially", "error", err.Error())
		} else {
			d.logger.Error("learn failed", "error", err.Error())
		}
	}
	if _, err := d.pattern.LearnPatterns(ctx, d.root, nil); err != nil {
		if cerr.CodeOf(err) == cerr.PersistencePartial {
			d.logger.Warn("pattern learn persisted partially", "error", err.Error())
		} else {
			d.logger.Error("pattern learn failed", "error", err.Error())
		}
	}
}

// handleChange analyzes changed source files and keeps the store in sync
func (d *Daemon) handleChange(ctx context.Context, rec watcher.ChangeRecord) {
	switch rec.Kind {
	case watcher.ChangeAdd, watcher.ChangeModify:
		if !watcher.IsSourceFile(rec.Path) {
			return
		}
		content, err := os.ReadFile(rec.Path)
		if err != nil {
			d.logger.Warn("failed to read changed file", "path", rec.Path, "error", err.Error())
			return
		}

		result, err := d.semantic.AnalyzeFile(ctx, rec.Path, string(content))
		if err != nil {
			d.logger.Warn("analysis failed", "path", rec.Path, "error", err.Error())
			return
		}
		for i := range result.Concepts {
			if err := d.store.InsertConcept(&result.Concepts[i]); err != nil {
				d.logger.Warn("failed to persist concept",
					"concept", result.Concepts[i].Name, "error", err.Error())
			}
		}
		d.logger.Info("file analyzed",
			"path", rec.Path,
			"kind", rec.Kind.String(),
			"language", rec.Language,
			"concepts", len(result.Concepts),
			"quality", string(result.Quality))

	case watcher.ChangeDelete:
		n, err := d.store.DeleteConceptsByFile(rec.Path)
		if err != nil {
			d.logger.Warn("failed to prune concepts for deleted file",
				"path", rec.Path, "error", err.Error())
			return
		}
		d.logger.Info("file removed", "path", rec.Path, "conceptsPruned", n)

	case watcher.ChangeAddDir, watcher.ChangeDeleteDir:
		d.logger.Debug("directory change", "kind", rec.Kind.String(), "path", rec.Path)
	}
}
