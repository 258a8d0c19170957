// Package resilience provides a circuit breaker for guarding calls into
// unreliable dependencies with an optional degraded fallback path.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrRequestTimeout marks a primary call that exceeded its time budget.
// Callers distinguish it from ordinary failures with errors.Is.
var ErrRequestTimeout = errors.New("request timed out")

// State represents the state of a circuit breaker
type State int

const (
	// StateClosed allows requests through normally
	StateClosed State = iota
	// StateOpen short-circuits requests until the recovery timeout elapses
	StateOpen
	// StateHalfOpen allows a single probe request to test recovery
	StateHalfOpen
)

// String returns a string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config contains circuit breaker tuning. All fields are required;
// NewBreaker rejects zero values so there are no hidden defaults.
type Config struct {
	// FailureThreshold is the number of failures within MonitoringWindow
	// before the circuit opens.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before a probe
	// is allowed through.
	RecoveryTimeout time.Duration
	// RequestTimeout bounds each primary call; exceeding it counts as a failure.
	RequestTimeout time.Duration
	// MonitoringWindow is the span over which failures and success rate
	// are computed.
	MonitoringWindow time.Duration
}

func (c Config) validate() error {
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("failure threshold must be positive, got %d", c.FailureThreshold)
	}
	if c.RecoveryTimeout <= 0 {
		return fmt.Errorf("recovery timeout must be positive, got %v", c.RecoveryTimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %v", c.RequestTimeout)
	}
	if c.MonitoringWindow <= 0 {
		return fmt.Errorf("monitoring window must be positive, got %v", c.MonitoringWindow)
	}
	return nil
}

// BreakerError is returned when a call cannot produce a value: the circuit
// is open with no fallback, or both primary and fallback failed. The original
// error messages are preserved verbatim so operators can tell a root-cause
// failure from a circuit-level symptom.
type BreakerError struct {
	State                State
	FailureCount         int
	SuccessRate          float64
	TimeSinceLastFailure time.Duration
	PrimaryError         string
	FallbackError        string
	// PrimaryTimedOut is set when the primary failure was a timeout rather
	// than an error it returned itself.
	PrimaryTimedOut bool
}

// Error implements the error interface
func (e *BreakerError) Error() string {
	msg := fmt.Sprintf("circuit breaker %s: %d failures, %.0f%% success rate, last failure %v ago",
		e.State, e.FailureCount, e.SuccessRate*100, e.TimeSinceLastFailure.Round(time.Millisecond))
	if e.PrimaryError != "" {
		msg += fmt.Sprintf("; primary: %s", e.PrimaryError)
	}
	if e.FallbackError != "" {
		msg += fmt.Sprintf("; fallback: %s", e.FallbackError)
	}
	return msg
}

// sample is one observed call outcome inside the monitoring window
type sample struct {
	at time.Time
	ok bool
}

// Breaker guards a primary operation and optionally degrades to a fallback.
// Each owner holds its own instance; failure statistics are never shared.
type Breaker struct {
	name   string
	config Config
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	window      []sample
	lastFailure time.Time
	probing     bool
}

// NewBreaker creates a closed circuit breaker with the given configuration
func NewBreaker(name string, config Config, logger *slog.Logger) (*Breaker, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid breaker config for %s: %w", name, err)
	}
	return &Breaker{
		name:   name,
		config: config,
		logger: logger,
		state:  StateClosed,
	}, nil
}

// State returns the current circuit state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(time.Now())
	return b.state
}

// Stats contains a snapshot of breaker statistics
type Stats struct {
	State                State         `json:"state"`
	FailureCount         int           `json:"failureCount"`
	SuccessRate          float64       `json:"successRate"`
	TimeSinceLastFailure time.Duration `json:"timeSinceLastFailure"`
}

// Stats returns a snapshot of the breaker's rolling statistics
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	b.prune(now)
	return b.statsLocked(now)
}

func (b *Breaker) statsLocked(now time.Time) Stats {
	var since time.Duration
	if !b.lastFailure.IsZero() {
		since = now.Sub(b.lastFailure)
	}
	return Stats{
		State:                b.state,
		FailureCount:         b.failuresLocked(),
		SuccessRate:          b.successRateLocked(),
		TimeSinceLastFailure: since,
	}
}

// Reset forces the circuit closed and clears the failure window.
// Operator recovery action only; the breaker never calls this itself.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.window = nil
	b.probing = false
	b.lastFailure = time.Time{}
}

// prune drops samples older than the monitoring window. Lock must be held.
func (b *Breaker) prune(now time.Time) {
	cutoff := now.Add(-b.config.MonitoringWindow)
	i := 0
	for i < len(b.window) && b.window[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		b.window = append(b.window[:0], b.window[i:]...)
	}
}

func (b *Breaker) failuresLocked() int {
	n := 0
	for _, s := range b.window {
		if !s.ok {
			n++
		}
	}
	return n
}

func (b *Breaker) successRateLocked() float64 {
	if len(b.window) == 0 {
		return 1.0
	}
	ok := 0
	for _, s := range b.window {
		if s.ok {
			ok++
		}
	}
	return float64(ok) / float64(len(b.window))
}

// admit decides whether a primary call may proceed. Returns the decision and,
// for rejections, the stats snapshot used to build a BreakerError.
func (b *Breaker) admit(now time.Time) (allowed bool, halfOpen bool, stats Stats) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(now)

	switch b.state {
	case StateClosed:
		return true, false, Stats{}
	case StateOpen:
		if now.Sub(b.lastFailure) >= b.config.RecoveryTimeout {
			b.state = StateHalfOpen
			b.probing = true
			b.logger.Info("circuit breaker probing for recovery", "breaker", b.name)
			return true, true, Stats{}
		}
		return false, false, b.statsLocked(now)
	case StateHalfOpen:
		if !b.probing {
			b.probing = true
			return true, true, Stats{}
		}
		// A probe is already in flight; short-circuit like open.
		return false, false, b.statsLocked(now)
	default:
		return false, false, b.statsLocked(now)
	}
}

// recordSuccess records a successful primary call
func (b *Breaker) recordSuccess(now time.Time, wasProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(now)
	b.window = append(b.window, sample{at: now, ok: true})
	if wasProbe {
		b.probing = false
	}
	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.logger.Info("circuit breaker closed after successful probe", "breaker", b.name)
	}
}

// recordFailure records a failed primary call and opens the circuit when the
// rolling failure count reaches the threshold.
func (b *Breaker) recordFailure(now time.Time, wasProbe bool) Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(now)
	b.window = append(b.window, sample{at: now, ok: false})
	b.lastFailure = now
	if wasProbe {
		b.probing = false
	}

	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.logger.Warn("circuit breaker reopened after failed probe", "breaker", b.name)
	case StateClosed:
		if b.failuresLocked() >= b.config.FailureThreshold {
			b.state = StateOpen
			b.logger.Warn("circuit breaker opened",
				"breaker", b.name,
				"failures", b.failuresLocked(),
				"threshold", b.config.FailureThreshold)
		}
	}
	return b.statsLocked(now)
}

// Outcome describes how Execute produced its value
type Outcome struct {
	// Degraded is true when the value came from the fallback path.
	// A degraded success never closes the circuit.
	Degraded bool
	// ShortCircuited is true when the primary was never invoked because
	// the circuit was open.
	ShortCircuited bool
	// PrimaryError holds the primary's error message verbatim when it
	// failed before the fallback served the call.
	PrimaryError string
}

// Reason returns a human-readable explanation for a degraded outcome
func (o Outcome) Reason() string {
	if !o.Degraded {
		return ""
	}
	if o.ShortCircuited {
		return "circuit open, analyzer not invoked"
	}
	return o.PrimaryError
}

// Execute runs primary through the breaker b with the configured request
// timeout, degrading to fallback when the primary fails or the circuit
// is open.
//
// fallback may be nil, in which case an open circuit or a primary failure
// yields a *BreakerError carrying full diagnostic detail.
func Execute[T any](ctx context.Context, b *Breaker, primary func(context.Context) (T, error), fallback func(context.Context) (T, error)) (T, Outcome, error) {
	return ExecuteWithTimeout(ctx, b, b.config.RequestTimeout, primary, fallback)
}

// ExecuteWithTimeout is Execute with an explicit per-call timeout replacing
// the configured request timeout. Long-running operations (whole-codebase
// learning) own a larger budget than ordinary calls.
func ExecuteWithTimeout[T any](ctx context.Context, b *Breaker, timeout time.Duration, primary func(context.Context) (T, error), fallback func(context.Context) (T, error)) (T, Outcome, error) {
	var zero T
	now := time.Now()

	allowed, wasProbe, stats := b.admit(now)
	if !allowed {
		if fallback != nil {
			val, err := fallback(ctx)
			if err != nil {
				return zero, Outcome{}, &BreakerError{
					State:                stats.State,
					FailureCount:         stats.FailureCount,
					SuccessRate:          stats.SuccessRate,
					TimeSinceLastFailure: stats.TimeSinceLastFailure,
					FallbackError:        err.Error(),
				}
			}
			b.logger.Debug("circuit open, served from fallback", "breaker", b.name)
			return val, Outcome{Degraded: true, ShortCircuited: true}, nil
		}
		return zero, Outcome{ShortCircuited: true}, &BreakerError{
			State:                stats.State,
			FailureCount:         stats.FailureCount,
			SuccessRate:          stats.SuccessRate,
			TimeSinceLastFailure: stats.TimeSinceLastFailure,
		}
	}

	val, primaryErr := callWithTimeout(ctx, timeout, primary)
	if primaryErr == nil {
		b.recordSuccess(time.Now(), wasProbe)
		return val, Outcome{}, nil
	}

	// A cancelled caller says nothing about the dependency's health; the
	// sample is not recorded so shutdowns cannot open the circuit. The probe
	// slot is released for the next caller.
	if ctx.Err() != nil && errors.Is(primaryErr, ctx.Err()) {
		if wasProbe {
			b.mu.Lock()
			b.probing = false
			b.mu.Unlock()
		}
		return zero, Outcome{PrimaryError: primaryErr.Error()}, primaryErr
	}

	stats = b.recordFailure(time.Now(), wasProbe)
	b.logger.Warn("primary call failed",
		"breaker", b.name,
		"error", primaryErr.Error(),
		"state", stats.State.String())

	if fallback == nil {
		return zero, Outcome{PrimaryError: primaryErr.Error()}, &BreakerError{
			State:                stats.State,
			FailureCount:         stats.FailureCount,
			SuccessRate:          stats.SuccessRate,
			TimeSinceLastFailure: stats.TimeSinceLastFailure,
			PrimaryError:         primaryErr.Error(),
			PrimaryTimedOut:      errors.Is(primaryErr, ErrRequestTimeout),
		}
	}

	fval, fallbackErr := fallback(ctx)
	if fallbackErr != nil {
		return zero, Outcome{PrimaryError: primaryErr.Error()}, &BreakerError{
			State:                stats.State,
			FailureCount:         stats.FailureCount,
			SuccessRate:          stats.SuccessRate,
			TimeSinceLastFailure: stats.TimeSinceLastFailure,
			PrimaryError:         primaryErr.Error(),
			FallbackError:        fallbackErr.Error(),
			PrimaryTimedOut:      errors.Is(primaryErr, ErrRequestTimeout),
		}
	}
	return fval, Outcome{Degraded: true, PrimaryError: primaryErr.Error()}, nil
}

// callResult carries a primary call outcome across the timeout race
type callResult[T any] struct {
	val T
	err error
}

// callWithTimeout races fn against the request timeout. A timeout counts as
// a failure; the late result from fn is discarded via the buffered channel
// so the goroutine never leaks.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan callResult[T], 1)
	go func() {
		val, err := fn(callCtx)
		done <- callResult[T]{val: val, err: err}
	}()

	select {
	case res := <-done:
		return res.val, res.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("%w after %v", ErrRequestTimeout, timeout)
	}
}
