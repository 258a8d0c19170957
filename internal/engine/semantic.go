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

// FileResult is the outcome of a single-file analysis
type FileResult struct {
	Concepts []analyzer.Concept `json:"concepts"`
	Quality  Quality            `json:"quality"`
	Reasons  []string           `json:"reasons,omitempty"`
}

// clone returns an independent copy. Cached entries are cloned on both
// store and retrieval so no two callers ever share slices.
func (r *FileResult) clone() *FileResult {
	cp := *r
	cp.Concepts = append([]analyzer.Concept(nil), r.Concepts...)
	cp.Reasons = append([]string(nil), r.Reasons...)
	return &cp
}

// CodebaseResult is the outcome of a whole-project analysis
type CodebaseResult struct {
	Analysis *analyzer.CodebaseAnalysis `json:"analysis"`
	Quality  Quality                    `json:"quality"`
	Reasons  []string                   `json:"reasons,omitempty"`
}

func (r *CodebaseResult) clone() *CodebaseResult {
	cp := *r
	if r.Analysis != nil {
		a := *r.Analysis
		a.Frameworks = append([]string(nil), r.Analysis.Frameworks...)
		a.Concepts = append([]analyzer.Concept(nil), r.Analysis.Concepts...)
		if r.Analysis.Languages != nil {
			a.Languages = make(map[string]int, len(r.Analysis.Languages))
			for lang, n := range r.Analysis.Languages {
				a.Languages[lang] = n
			}
		}
		cp.Analysis = &a
	}
	cp.Reasons = append([]string(nil), r.Reasons...)
	return &cp
}

// LearnResult summarizes a whole-codebase learn
type LearnResult struct {
	Concepts  []analyzer.Concept `json:"concepts"`
	Quality   Quality            `json:"quality"`
	Reasons   []string           `json:"reasons,omitempty"`
	Persisted int                `json:"persisted"`
	Skipped   int                `json:"skipped"`
	Duration  time.Duration      `json:"duration"`
}

// SemanticEngine extracts semantic concepts from source code, degrading to
// regex heuristics when the analyzer cannot serve a call.
type SemanticEngine struct {
	analyzer      *lazyAnalyzer
	breaker       *resilience.Breaker
	fileCache     *cache.Cache[*FileResult]
	codebaseCache *cache.Cache[*CodebaseResult]
	store         Store
	logger        *slog.Logger

	fallbackConfidence float64
	learnTimeout       time.Duration
	progressInterval   time.Duration
}

// NewSemanticEngine creates a semantic engine with its own circuit breaker
// and caches. The analyzer is not constructed until the first call needs it.
func NewSemanticEngine(cfg *config.Config, factory AnalyzerFactory, store Store, logger *slog.Logger) (*SemanticEngine, error) {
	breaker, err := resilience.NewBreaker("semantic", resilience.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout(),
		RequestTimeout:   cfg.Breaker.RequestTimeout(),
		MonitoringWindow: cfg.Breaker.MonitoringWindow(),
	}, logger)
	if err != nil {
		return nil, err
	}
	return &SemanticEngine{
		analyzer:           newLazyAnalyzer(factory),
		breaker:            breaker,
		fileCache:          cache.New[*FileResult](cfg.Cache.TTL()),
		codebaseCache:      cache.New[*CodebaseResult](cfg.Cache.TTL()),
		store:              store,
		logger:             logger,
		fallbackConfidence: cfg.Analyzer.FallbackConfidence,
		learnTimeout:       cfg.Learning.Timeout(),
		progressInterval:   cfg.Learning.ProgressInterval(),
	}, nil
}

// Close stops the engine's cache sweeps
func (e *SemanticEngine) Close() {
	e.fileCache.Close()
	e.codebaseCache.Close()
}

// BreakerStats returns a snapshot of the engine's circuit breaker
func (e *SemanticEngine) BreakerStats() resilience.Stats {
	return e.breaker.Stats()
}

// CacheSize returns the number of cached analysis results
func (e *SemanticEngine) CacheSize() int {
	return e.fileCache.Len() + e.codebaseCache.Len()
}

// AnalyzeFile extracts concepts from a single file. Results are cached under
// a content-addressed key, so an edit invalidates the entry automatically.
// Degraded results are never cached; the next call retries the analyzer.
func (e *SemanticEngine) AnalyzeFile(ctx context.Context, path, content string) (*FileResult, error) {
	key := cache.FileKey(path, hashContent(content))
	if hit, ok := e.fileCache.Get(key); ok {
		return hit.clone(), nil
	}

	a, err := e.analyzer.get()
	if err != nil {
		return nil, err
	}

	concepts, outcome, err := resilience.Execute(ctx, e.breaker,
		func(ctx context.Context) ([]analyzer.Concept, error) {
			return a.AnalyzeFile(ctx, path, content)
		},
		func(ctx context.Context) ([]analyzer.Concept, error) {
			return heuristicFileConcepts(path, content, e.fallbackConfidence), nil
		})
	if err != nil {
		return nil, err
	}

	result := &FileResult{Concepts: concepts, Quality: QualityNormal}
	if outcome.Degraded {
		result.Quality = QualityDegraded
		result.Reasons = append(result.Reasons, outcome.Reason())
		return result, nil
	}
	e.fileCache.Set(key, result.clone())
	return result, nil
}

// AnalyzeCodebase analyzes a whole project tree
func (e *SemanticEngine) AnalyzeCodebase(ctx context.Context, path string) (*CodebaseResult, error) {
	key := cache.CodebaseKey(path)
	if hit, ok := e.codebaseCache.Get(key); ok {
		return hit.clone(), nil
	}

	a, err := e.analyzer.get()
	if err != nil {
		return nil, err
	}

	analysis, outcome, err := resilience.Execute(ctx, e.breaker,
		func(ctx context.Context) (*analyzer.CodebaseAnalysis, error) {
			return a.AnalyzeCodebase(ctx, path)
		},
		func(ctx context.Context) (*analyzer.CodebaseAnalysis, error) {
			return heuristicCodebaseAnalysis(path, e.fallbackConfidence)
		})
	if err != nil {
		return nil, err
	}

	result := &CodebaseResult{Analysis: analysis, Quality: QualityNormal}
	if outcome.Degraded {
		result.Quality = QualityDegraded
		result.Reasons = append(result.Reasons, outcome.Reason())
		return result, nil
	}
	e.codebaseCache.Set(key, result.clone())
	return result, nil
}

// LearnFromCodebase performs deep concept extraction over a project and
// persists what it finds, one concept at a time.
//
// The learn runs under a hard wall-clock budget. On timeout the call fails
// with a descriptive error instead of degrading; a partially learned store
// is worse than an honest failure. Other analyzer failures degrade to a
// heuristic scan. Individual persistence failures are logged and skipped;
// a partial persist returns the result alongside a PERSISTENCE_PARTIAL
// error so callers can keep what succeeded.
func (e *SemanticEngine) LearnFromCodebase(ctx context.Context, path string, progress ProgressFunc) (*LearnResult, error) {
	a, err := e.analyzer.get()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	stop := trackProgress(e.progressInterval, e.learnTimeout, progress)
	defer stop()

	result := &LearnResult{Quality: QualityNormal}

	concepts, _, err := resilience.ExecuteWithTimeout(ctx, e.breaker, e.learnTimeout,
		func(ctx context.Context) ([]analyzer.Concept, error) {
			return a.LearnFromCodebase(ctx, path)
		}, nil)
	if err != nil {
		var be *resilience.BreakerError
		if errors.As(err, &be) && be.PrimaryTimedOut {
			return nil, learnTimeoutError(path, e.learnTimeout, err)
		}
		heuristic, herr := heuristicCodebaseConcepts(path, e.fallbackConfidence)
		if herr != nil {
			return nil, cerr.New(cerr.AnalyzerUnavailable,
				fmt.Sprintf("learning %s failed and the heuristic scan also errored: %v", path, herr), err)
		}
		e.logger.Warn("analyzer learn failed, using heuristic scan",
			"path", path, "error", err.Error(), "concepts", len(heuristic))
		concepts = heuristic
		result.Quality = QualityDegraded
		result.Reasons = append(result.Reasons, err.Error())
	}
	result.Concepts = concepts

	for i := range concepts {
		if perr := e.store.InsertConcept(&concepts[i]); perr != nil {
			e.logger.Warn("failed to persist concept, skipping",
				"concept", concepts[i].Name, "error", perr.Error())
			result.Skipped++
			continue
		}
		result.Persisted++
	}
	result.Duration = time.Since(start)

	e.logger.Info("learn complete",
		"path", path,
		"concepts", len(concepts),
		"persisted", result.Persisted,
		"skipped", result.Skipped,
		"quality", string(result.Quality),
		"duration", result.Duration.Round(time.Millisecond))

	if result.Skipped > 0 && result.Persisted == 0 {
		return nil, cerr.New(cerr.StorageFailure,
			fmt.Sprintf("all %d concepts failed to persist", result.Skipped), nil)
	}
	if result.Skipped > 0 {
		return result, cerr.New(cerr.PersistencePartial,
			fmt.Sprintf("%d of %d concepts failed to persist", result.Skipped, len(concepts)), nil)
	}
	return result, nil
}
