package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/kbukum/speechgate/errors"
)

func fastRetry() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	return cfg
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	got, err := Retry(context.Background(), fastRetry(), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("busy")
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("Retry = %q, %v", got, err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_StopsOnNonRetryableAppError(t *testing.T) {
	attempts := 0
	err := RetryFunc(context.Background(), fastRetry(), func() error {
		attempts++
		return apperrors.NotFound("model", "m1")
	})
	if attempts != 1 {
		t.Errorf("expected a single attempt, got %d", attempts)
	}
	if appErr, ok := apperrors.AsAppError(err); !ok || appErr.Code != apperrors.ErrCodeNotFound {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestRetry_RetriesStoreFailure(t *testing.T) {
	attempts := 0
	err := RetryFunc(context.Background(), fastRetry(), func() error {
		attempts++
		return apperrors.StoreFailure("update", errors.New("locked"))
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := RetryFunc(ctx, fastRetry(), func() error { called = true; return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("fn should not run with a cancelled context")
	}
}

func TestCalculateBackoff_CapsAtMax(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, BackoffFactor: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 300 * time.Millisecond},
		{6, 300 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := calculateBackoff(tt.attempt, cfg); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
