package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"codemind/internal/slogutil"
)

func testConfig() Config {
	return Config{
		FailureThreshold: 2,
		RecoveryTimeout:  50 * time.Millisecond,
		RequestTimeout:   time.Second,
		MonitoringWindow: time.Minute,
	}
}

func newTestBreaker(t *testing.T, config Config) *Breaker {
	t.Helper()
	b, err := NewBreaker("test", config, slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("NewBreaker() error = %v", err)
	}
	return b
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewBreakerRejectsZeroConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero threshold", func(c *Config) { c.FailureThreshold = 0 }},
		{"zero recovery", func(c *Config) { c.RecoveryTimeout = 0 }},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = 0 }},
		{"zero window", func(c *Config) { c.MonitoringWindow = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig()
			tt.mutate(&config)
			if _, err := NewBreaker("test", config, slogutil.NewDiscardLogger()); err == nil {
				t.Error("NewBreaker() should reject invalid config")
			}
		})
	}
}

func TestExecuteSuccess(t *testing.T) {
	b := newTestBreaker(t, testConfig())

	val, outcome, err := Execute(context.Background(), b, func(ctx context.Context) (string, error) {
		return "ok", nil
	}, nil)

	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if outcome.Degraded {
		t.Error("successful primary should not be degraded")
	}
	if val != "ok" {
		t.Errorf("Execute() = %q, want %q", val, "ok")
	}
	if got := b.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := newTestBreaker(t, testConfig())
	fail := func(ctx context.Context) (string, error) {
		return "", errors.New("svc down")
	}

	for i := 0; i < 2; i++ {
		if _, _, err := Execute(context.Background(), b, fail, nil); err == nil {
			t.Fatalf("call %d should fail", i)
		}
	}

	if got := b.State(); got != StateOpen {
		t.Fatalf("State() = %v after %d failures, want open", got, 2)
	}

	// The next call must short-circuit without invoking primary.
	primaryCalls := 0
	counted := func(ctx context.Context) (string, error) {
		primaryCalls++
		return "", errors.New("svc down")
	}
	val, outcome, err := Execute(context.Background(), b, counted, func(ctx context.Context) (string, error) {
		return "cached", nil
	})
	if err != nil {
		t.Fatalf("Execute() with fallback error = %v", err)
	}
	if primaryCalls != 0 {
		t.Errorf("primary invoked %d times while circuit open, want 0", primaryCalls)
	}
	if !outcome.Degraded || !outcome.ShortCircuited {
		t.Errorf("outcome = %+v, want degraded short-circuit", outcome)
	}
	if val != "cached" {
		t.Errorf("Execute() = %q, want %q", val, "cached")
	}

	// A degraded success does not close the circuit.
	if got := b.State(); got != StateOpen {
		t.Errorf("State() = %v after degraded success, want open", got)
	}
}

func TestOpenWithoutFallbackReturnsBreakerError(t *testing.T) {
	b := newTestBreaker(t, testConfig())
	fail := func(ctx context.Context) (string, error) {
		return "", errors.New("svc down")
	}

	for i := 0; i < 2; i++ {
		Execute(context.Background(), b, fail, nil)
	}

	_, _, err := Execute(context.Background(), b, fail, nil)
	var be *BreakerError
	if !errors.As(err, &be) {
		t.Fatalf("Execute() error = %T, want *BreakerError", err)
	}
	if be.State != StateOpen {
		t.Errorf("BreakerError.State = %v, want open", be.State)
	}
	if be.FailureCount == 0 {
		t.Error("BreakerError.FailureCount should be non-zero")
	}
}

func TestBreakerErrorPreservesMessages(t *testing.T) {
	b := newTestBreaker(t, testConfig())

	_, _, err := Execute(context.Background(), b, func(ctx context.Context) (string, error) {
		return "", errors.New("primary exploded")
	}, func(ctx context.Context) (string, error) {
		return "", errors.New("fallback exploded too")
	})

	var be *BreakerError
	if !errors.As(err, &be) {
		t.Fatalf("Execute() error = %T, want *BreakerError", err)
	}
	if be.PrimaryError != "primary exploded" {
		t.Errorf("PrimaryError = %q, want verbatim %q", be.PrimaryError, "primary exploded")
	}
	if be.FallbackError != "fallback exploded too" {
		t.Errorf("FallbackError = %q, want verbatim %q", be.FallbackError, "fallback exploded too")
	}
	if !strings.Contains(be.Error(), "primary exploded") || !strings.Contains(be.Error(), "fallback exploded too") {
		t.Errorf("Error() = %q, should contain both original messages", be.Error())
	}
}

func TestHalfOpenProbeClosesOnSuccess(t *testing.T) {
	config := testConfig()
	b := newTestBreaker(t, config)
	fail := func(ctx context.Context) (string, error) {
		return "", errors.New("svc down")
	}

	for i := 0; i < 2; i++ {
		Execute(context.Background(), b, fail, nil)
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("State() = %v, want open", got)
	}

	time.Sleep(config.RecoveryTimeout + 10*time.Millisecond)

	val, outcome, err := Execute(context.Background(), b, func(ctx context.Context) (string, error) {
		return "recovered", nil
	}, nil)
	if err != nil {
		t.Fatalf("probe Execute() error = %v", err)
	}
	if outcome.Degraded {
		t.Error("successful probe should not be degraded")
	}
	if val != "recovered" {
		t.Errorf("Execute() = %q, want %q", val, "recovered")
	}
	if got := b.State(); got != StateClosed {
		t.Errorf("State() = %v after successful probe, want closed", got)
	}
}

func TestHalfOpenProbeReopensOnFailure(t *testing.T) {
	config := testConfig()
	b := newTestBreaker(t, config)
	fail := func(ctx context.Context) (string, error) {
		return "", errors.New("svc down")
	}

	for i := 0; i < 2; i++ {
		Execute(context.Background(), b, fail, nil)
	}
	time.Sleep(config.RecoveryTimeout + 10*time.Millisecond)

	probeCalls := 0
	Execute(context.Background(), b, func(ctx context.Context) (string, error) {
		probeCalls++
		return "", errors.New("still down")
	}, nil)

	if probeCalls != 1 {
		t.Errorf("probe invoked %d times, want exactly 1", probeCalls)
	}
	if got := b.State(); got != StateOpen {
		t.Errorf("State() = %v after failed probe, want open", got)
	}
}

func TestRequestTimeoutCountsAsFailure(t *testing.T) {
	config := testConfig()
	config.RequestTimeout = 20 * time.Millisecond
	b := newTestBreaker(t, config)

	_, _, err := Execute(context.Background(), b, func(ctx context.Context) (string, error) {
		select {
		case <-time.After(time.Second):
			return "too late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}, nil)

	var be *BreakerError
	if !errors.As(err, &be) {
		t.Fatalf("Execute() error = %T, want *BreakerError", err)
	}
	if !strings.Contains(be.PrimaryError, "timed out") {
		t.Errorf("PrimaryError = %q, want timeout message", be.PrimaryError)
	}
	if !be.PrimaryTimedOut {
		t.Error("PrimaryTimedOut should be set on a timeout failure")
	}
	if stats := b.Stats(); stats.FailureCount != 1 {
		t.Errorf("FailureCount = %d after timeout, want 1", stats.FailureCount)
	}
}

func TestCallerCancellationDoesNotTripBreaker(t *testing.T) {
	b := newTestBreaker(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// More cancellations than the failure threshold; none may count.
	for i := 0; i < 4; i++ {
		_, _, err := Execute(ctx, b, func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}, nil)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Execute() error = %v, want context.Canceled", err)
		}
	}

	if got := b.State(); got != StateClosed {
		t.Errorf("State() = %v after caller cancellations, want closed", got)
	}
	if stats := b.Stats(); stats.FailureCount != 0 {
		t.Errorf("FailureCount = %d, want 0 (cancellations are not dependency failures)", stats.FailureCount)
	}
}

func TestReset(t *testing.T) {
	b := newTestBreaker(t, testConfig())
	fail := func(ctx context.Context) (string, error) {
		return "", errors.New("svc down")
	}

	for i := 0; i < 2; i++ {
		Execute(context.Background(), b, fail, nil)
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("State() = %v, want open", got)
	}

	b.Reset()

	if got := b.State(); got != StateClosed {
		t.Errorf("State() = %v after Reset, want closed", got)
	}
	if stats := b.Stats(); stats.FailureCount != 0 {
		t.Errorf("FailureCount = %d after Reset, want 0", stats.FailureCount)
	}
}

// Mirrors the documented scenario: threshold 2, three failures with "svc down",
// then a fallback returning "cached" without a fourth primary invocation.
func TestShortCircuitScenario(t *testing.T) {
	b := newTestBreaker(t, testConfig())

	primaryCalls := 0
	fail := func(ctx context.Context) (string, error) {
		primaryCalls++
		return "", errors.New("svc down")
	}

	for i := 0; i < 3; i++ {
		Execute(context.Background(), b, fail, nil)
	}
	if primaryCalls != 2 {
		t.Fatalf("primary invoked %d times, want 2 (third call short-circuits)", primaryCalls)
	}

	val, outcome, err := Execute(context.Background(), b, fail, func(ctx context.Context) (string, error) {
		return "cached", nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if val != "cached" || !outcome.Degraded {
		t.Errorf("Execute() = (%q, degraded=%v), want (%q, true)", val, outcome.Degraded, "cached")
	}
	if primaryCalls != 2 {
		t.Errorf("primary invoked %d times total, want 2", primaryCalls)
	}
}

func TestOutcomeReasonPreservesPrimaryError(t *testing.T) {
	b := newTestBreaker(t, testConfig())

	_, outcome, err := Execute(context.Background(), b, func(ctx context.Context) (string, error) {
		return "", errors.New("connection refused")
	}, func(ctx context.Context) (string, error) {
		return "heuristic", nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if outcome.Reason() != "connection refused" {
		t.Errorf("Reason() = %q, want the verbatim primary error", outcome.Reason())
	}
}

func TestWindowPruning(t *testing.T) {
	config := testConfig()
	config.MonitoringWindow = 30 * time.Millisecond
	config.FailureThreshold = 3
	b := newTestBreaker(t, config)
	fail := func(ctx context.Context) (string, error) {
		return "", errors.New("svc down")
	}

	Execute(context.Background(), b, fail, nil)
	Execute(context.Background(), b, fail, nil)

	// Let both samples age out of the monitoring window.
	time.Sleep(40 * time.Millisecond)

	Execute(context.Background(), b, fail, nil)

	if got := b.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed (old failures pruned)", got)
	}
	if stats := b.Stats(); stats.FailureCount != 1 {
		t.Errorf("FailureCount = %d, want 1 after pruning", stats.FailureCount)
	}
}
