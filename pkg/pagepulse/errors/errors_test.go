package errors

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCategoryString(t *testing.T) {
	tests := []struct {
		category Category
		expected string
	}{
		{CategoryRejected, "rejected"},
		{CategoryTransient, "transient"},
		{CategoryInvariant, "invariant"},
		{CategoryConfig, "config"},
		{Category(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.category.String(); got != tt.expected {
				t.Errorf("Category(%d).String() = %s, want %s", tt.category, got, tt.expected)
			}
		})
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Category
	}{
		{"nil error", nil, CategoryInvariant},
		{"reject error", &RejectError{Reason: ReasonEmptyKey}, CategoryRejected},
		{"sink error", &SinkError{Sink: "analytics", Op: "upsert", Wrapped: errors.New("down")}, CategoryTransient},
		{"source error", &SourceError{Source: "s3", Wrapped: errors.New("timeout")}, CategoryTransient},
		{"timeout error", &TimeoutError{Operation: "sink write", Duration: "30s"}, CategoryTransient},
		{"categorized invariant", Invariant(errors.New("empty key"), "aggregate"), CategoryInvariant},
		{"categorized config", Config(errors.New("bad max_attempts"), "load"), CategoryConfig},
		{"wrapped sink error", &CategorizedError{Err: &SinkError{}, Category: CategoryTransient}, CategoryTransient},
		{"unknown error", errors.New("unknown"), CategoryInvariant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.err); got != tt.expected {
				t.Errorf("Categorize() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestCategorizedError(t *testing.T) {
	t.Run("error message with context", func(t *testing.T) {
		err := NewCategorized(errors.New("failed"), CategoryTransient, "sink write")
		expected := "sink write: failed (category: transient, attempts: 0)"
		if got := err.Error(); got != expected {
			t.Errorf("Error() = %q, want %q", got, expected)
		}
	})

	t.Run("unwrap", func(t *testing.T) {
		inner := errors.New("inner")
		err := Transient(inner, "op")
		if !errors.Is(err, inner) {
			t.Error("errors.Is should find the wrapped error")
		}
	})
}

func TestPredicates(t *testing.T) {
	if !IsRetryable(&SinkError{Sink: "search", Op: "upsert", Wrapped: errors.New("503")}) {
		t.Error("sink errors should be retryable")
	}
	if IsRetryable(Config(errors.New("bad"), "load")) {
		t.Error("config errors must never be retried")
	}
	if !IsFatal(Invariant(errors.New("bad"), "aggregate")) {
		t.Error("invariant violations are fatal")
	}
	if !IsRejection(&RejectError{Reason: ReasonMissingField, Field: "page_url"}) {
		t.Error("reject errors are rejections")
	}
	if IsFatal(&RejectError{Reason: ReasonMissingField}) {
		t.Error("rejections are not fatal")
	}
}

func TestBackoffAt(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 30 * time.Second, BackoffFactor: 2.0}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 30 * time.Second}, // capped
	}

	for _, tt := range tests {
		if got := cfg.BackoffAt(tt.attempt); got != tt.expected {
			t.Errorf("BackoffAt(%d) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("succeeds first attempt", func(t *testing.T) {
		calls := 0
		res := WithRetry(DefaultRetry, func() (string, error) {
			calls++
			return "ok", nil
		})
		if res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		if res.Value != "ok" || res.Attempts != 1 || calls != 1 {
			t.Errorf("got value=%q attempts=%d calls=%d", res.Value, res.Attempts, calls)
		}
	})

	t.Run("retries transient then succeeds", func(t *testing.T) {
		cfg := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1.0}
		calls := 0
		res := WithRetry(cfg, func() (int, error) {
			calls++
			if calls < 3 {
				return 0, &SinkError{Sink: "analytics", Op: "upsert", Wrapped: errors.New("down")}
			}
			return 42, nil
		})
		if res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		if res.Value != 42 || res.Attempts != 3 {
			t.Errorf("got value=%d attempts=%d", res.Value, res.Attempts)
		}
	})

	t.Run("fatal error stops immediately", func(t *testing.T) {
		calls := 0
		res := WithRetry(DefaultRetry, func() (int, error) {
			calls++
			return 0, Invariant(errors.New("empty page_url"), "aggregate")
		})
		if res.Err == nil {
			t.Fatal("expected error")
		}
		if calls != 1 {
			t.Errorf("fatal error retried %d times, want 1", calls)
		}
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		cfg := RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1.0}
		res := WithRetry(cfg, func() (int, error) {
			return 0, &SinkError{Sink: "search", Op: "upsert", Wrapped: errors.New("down")}
		})
		if res.Err == nil {
			t.Fatal("expected error")
		}
		if res.Attempts != 2 {
			t.Errorf("attempts = %d, want 2", res.Attempts)
		}
	})

	t.Run("cancellation during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cfg := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Minute, MaxBackoff: time.Minute, BackoffFactor: 1.0}
		done := make(chan RetryResult[int])
		go func() {
			done <- WithRetryContext(ctx, cfg, func(context.Context) (int, error) {
				return 0, &SinkError{Sink: "analytics", Op: "upsert", Wrapped: errors.New("down")}
			})
		}()
		time.Sleep(10 * time.Millisecond)
		cancel()
		select {
		case res := <-done:
			if res.Err == nil {
				t.Fatal("expected cancellation error")
			}
			if res.Attempts != 1 {
				t.Errorf("attempts = %d, want 1", res.Attempts)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("retry did not stop after cancellation")
		}
	})
}
