// Package engine orchestrates analysis calls through caching, circuit
// breaking, and heuristic fallbacks.
//
// Two engines exist: SemanticEngine extracts concepts, PatternEngine mines
// recurring patterns. Each owns its circuit breaker and caches; a failing
// semantic path never degrades pattern extraction or vice versa.
package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"codemind/internal/analyzer"
	"codemind/internal/cerr"
)

// Quality says whether a result came from the full analyzer or from the
// heuristic fallback path.
type Quality string

const (
	// QualityNormal marks results produced by the analyzer
	QualityNormal Quality = "normal"
	// QualityDegraded marks results produced by the heuristic fallback
	QualityDegraded Quality = "degraded"
)

// Store persists intelligence discovered during learning
type Store interface {
	InsertConcept(c *analyzer.Concept) error
	InsertPattern(p *analyzer.Pattern) error
}

// AnalyzerFactory constructs the analyzer handle. Called at most once per
// engine, on the first call that needs the analyzer, so process startup
// stays fast even when the analyzer is slow to come up.
type AnalyzerFactory func() (analyzer.Analyzer, error)

// lazyAnalyzer defers analyzer construction until first use and shares a
// single handle across concurrent initializers.
type lazyAnalyzer struct {
	factory AnalyzerFactory
	group   singleflight.Group

	mu     sync.RWMutex
	handle analyzer.Analyzer
}

func newLazyAnalyzer(factory AnalyzerFactory) *lazyAnalyzer {
	return &lazyAnalyzer{factory: factory}
}

func (l *lazyAnalyzer) get() (analyzer.Analyzer, error) {
	l.mu.RLock()
	h := l.handle
	l.mu.RUnlock()
	if h != nil {
		return h, nil
	}

	v, err, _ := l.group.Do("init", func() (interface{}, error) {
		l.mu.RLock()
		if l.handle != nil {
			h := l.handle
			l.mu.RUnlock()
			return h, nil
		}
		l.mu.RUnlock()

		h, err := l.factory()
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.handle = h
		l.mu.Unlock()
		return h, nil
	})
	if err != nil {
		return nil, cerr.New(cerr.AnalyzerUnavailable, "analyzer initialization failed", err)
	}
	return v.(analyzer.Analyzer), nil
}

// Progress reports how far a learn has come relative to its time budget.
// Percent is interpolated from elapsed wall-clock time, capped at 99 until
// the learn actually returns.
type Progress struct {
	Elapsed time.Duration `json:"elapsed"`
	Budget  time.Duration `json:"budget"`
	Percent float64       `json:"percent"`
}

// ProgressFunc receives periodic progress reports during a learn
type ProgressFunc func(Progress)

// trackProgress invokes fn every interval until the returned stop function
// is called. stop is safe to call more than once and must be called on every
// exit path so the ticker goroutine never outlives the learn.
func trackProgress(interval, budget time.Duration, fn ProgressFunc) (stop func()) {
	if fn == nil {
		return func() {}
	}

	done := make(chan struct{})
	var once sync.Once
	start := time.Now()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				elapsed := time.Since(start)
				pct := float64(elapsed) / float64(budget) * 100
				if pct > 99 {
					pct = 99
				}
				fn(Progress{Elapsed: elapsed, Budget: budget, Percent: pct})
			case <-done:
				return
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

// hashContent returns the hex SHA-256 of content. Matches the fingerprints
// the file watcher computes, so cache keys line up across components.
func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// learnTimeoutError describes a learn that exceeded its wall-clock budget,
// including the likely causes and the knob that raises the budget.
func learnTimeoutError(path string, budget time.Duration, cause error) error {
	return cerr.New(cerr.Timeout,
		fmt.Sprintf("learning %s exceeded the %v budget; likely causes are a large file count, oversized generated files, or deeply nested directories; raise learning.timeoutMs or narrow the project root", path, budget),
		cause)
}
