package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codemind/internal/analyzer"
	"codemind/internal/cache"
	"codemind/internal/cerr"
	"codemind/internal/config"
	"codemind/internal/resilience"
)

// PatternResult is the outcome of a pattern extraction
type PatternResult struct {
	Patterns []analyzer.Pattern `json:"patterns"`
	Quality  Quality            `json:"quality"`
	Reasons  []string           `json:"reasons,omitempty"`
}

// clone returns an independent copy so callers cannot mutate cached entries
func (r *PatternResult) clone() *PatternResult {
	cp := *r
	cp.Patterns = append([]analyzer.Pattern(nil), r.Patterns...)
	cp.Reasons = append([]string(nil), r.Reasons...)
	return &cp
}

// PatternLearnResult summarizes a pattern learn
type PatternLearnResult struct {
	Patterns  []analyzer.Pattern `json:"patterns"`
	Quality   Quality            `json:"quality"`
	Reasons   []string           `json:"reasons,omitempty"`
	Persisted int                `json:"persisted"`
	Skipped   int                `json:"skipped"`
	Duration  time.Duration      `json:"duration"`
}

// PatternEngine mines recurring coding patterns, degrading to frequency
// heuristics when the analyzer cannot serve a call. It owns its circuit
// breaker and cache; semantic failures never affect it.
type PatternEngine struct {
	analyzer *lazyAnalyzer
	breaker  *resilience.Breaker
	cache    *cache.Cache[*PatternResult]
	store    Store
	logger   *slog.Logger

	fallbackConfidence float64
	learnTimeout       time.Duration
	progressInterval   time.Duration
}

// NewPatternEngine creates a pattern engine with its own circuit breaker
// and cache.
func NewPatternEngine(cfg *config.Config, factory AnalyzerFactory, store Store, logger *slog.Logger) (*PatternEngine, error) {
	breaker, err := resilience.NewBreaker("pattern", resilience.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout(),
		RequestTimeout:   cfg.Breaker.RequestTimeout(),
		MonitoringWindow: cfg.Breaker.MonitoringWindow(),
	}, logger)
	if err != nil {
		return nil, err
	}
	return &PatternEngine{
		analyzer:           newLazyAnalyzer(factory),
		breaker:            breaker,
		cache:              cache.New[*PatternResult](cfg.Cache.TTL()),
		store:              store,
		logger:             logger,
		fallbackConfidence: cfg.Analyzer.FallbackConfidence,
		learnTimeout:       cfg.Learning.Timeout(),
		progressInterval:   cfg.Learning.ProgressInterval(),
	}, nil
}

// Close stops the engine's cache sweep
func (e *PatternEngine) Close() {
	e.cache.Close()
}

// BreakerStats returns a snapshot of the engine's circuit breaker
func (e *PatternEngine) BreakerStats() resilience.Stats {
	return e.breaker.Stats()
}

// CacheSize returns the number of cached extraction results
func (e *PatternEngine) CacheSize() int {
	return e.cache.Len()
}

// ExtractPatterns mines recurring patterns from a project tree. Degraded
// results are never cached; the next call retries the analyzer.
func (e *PatternEngine) ExtractPatterns(ctx context.Context, path string) (*PatternResult, error) {
	key := cache.CodebaseKey(path)
	if hit, ok := e.cache.Get(key); ok {
		return hit.clone(), nil
	}

	a, err := e.analyzer.get()
	if err != nil {
		return nil, err
	}

	patterns, outcome, err := resilience.Execute(ctx, e.breaker,
		func(ctx context.Context) ([]analyzer.Pattern, error) {
			return a.ExtractPatterns(ctx, path)
		},
		func(ctx context.Context) ([]analyzer.Pattern, error) {
			return heuristicPatterns(path, e.fallbackConfidence)
		})
	if err != nil {
		return nil, err
	}

	result := &PatternResult{Patterns: patterns, Quality: QualityNormal}
	if outcome.Degraded {
		result.Quality = QualityDegraded
		result.Reasons = append(result.Reasons, outcome.Reason())
		return result, nil
	}
	e.cache.Set(key, result.clone())
	return result, nil
}

// LearnPatterns mines patterns from a project and persists them one at a
// time, under the same budget and failure rules as concept learning.
func (e *PatternEngine) LearnPatterns(ctx context.Context, path string, progress ProgressFunc) (*PatternLearnResult, error) {
	a, err := e.analyzer.get()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	stop := trackProgress(e.progressInterval, e.learnTimeout, progress)
	defer stop()

	result := &PatternLearnResult{Quality: QualityNormal}

	patterns, _, err := resilience.ExecuteWithTimeout(ctx, e.breaker, e.learnTimeout,
		func(ctx context.Context) ([]analyzer.Pattern, error) {
			return a.ExtractPatterns(ctx, path)
		}, nil)
	if err != nil {
		var be *resilience.BreakerError
		if errors.As(err, &be) && be.PrimaryTimedOut {
			return nil, learnTimeoutError(path, e.learnTimeout, err)
		}
		heuristic, herr := heuristicPatterns(path, e.fallbackConfidence)
		if herr != nil {
			return nil, cerr.New(cerr.AnalyzerUnavailable,
				fmt.Sprintf("pattern learning %s failed and the heuristic scan also errored: %v", path, herr), err)
		}
		e.logger.Warn("analyzer pattern learn failed, using heuristic scan",
			"path", path, "error", err.Error(), "patterns", len(heuristic))
		patterns = heuristic
		result.Quality = QualityDegraded
		result.Reasons = append(result.Reasons, err.Error())
	}
	result.Patterns = patterns

	for i := range patterns {
		if perr := e.store.InsertPattern(&patterns[i]); perr != nil {
			e.logger.Warn("failed to persist pattern, skipping",
				"pattern", patterns[i].Name, "error", perr.Error())
			result.Skipped++
			continue
		}
		result.Persisted++
	}
	result.Duration = time.Since(start)

	e.logger.Info("pattern learn complete",
		"path", path,
		"patterns", len(patterns),
		"persisted", result.Persisted,
		"skipped", result.Skipped,
		"quality", string(result.Quality),
		"duration", result.Duration.Round(time.Millisecond))

	if result.Skipped > 0 && result.Persisted == 0 {
		return nil, cerr.New(cerr.StorageFailure,
			fmt.Sprintf("all %d patterns failed to persist", result.Skipped), nil)
	}
	if result.Skipped > 0 {
		return result, cerr.New(cerr.PersistencePartial,
			fmt.Sprintf("%d of %d patterns failed to persist", result.Skipped, len(patterns)), nil)
	}
	return result, nil
}
