package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func fastPolicy(max int) Policy {
	return Policy{
		MaxRetries:     max,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestDo_Success(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		attempts++
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return Temporary(errors.New("temporary error"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDo_MaxRetriesExceeded(t *testing.T) {
	attempts := 0
	cause := errors.New("persistent error")
	err := Do(context.Background(), fastPolicy(2), func(context.Context) error {
		attempts++
		return Temporary(cause)
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
	if !strings.Contains(err.Error(), "max retries exceeded") {
		t.Errorf("unexpected message: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		attempts++
		return errors.New("bad request")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

type flagged struct{ transient bool }

func (f flagged) Error() string   { return "flagged" }
func (f flagged) Retryable() bool { return f.transient }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("x"), false},
		{"temporary", Temporary(errors.New("x")), true},
		{"wrapped temporary", errors.Join(errors.New("ctx"), Temporary(errors.New("x"))), true},
		{"flag true", flagged{transient: true}, true},
		{"flag false", flagged{transient: false}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxRetries: 5, InitialBackoff: time.Second, MaxBackoff: time.Second, BackoffFactor: 1}

	attempts := 0
	err := Do(ctx, policy, func(context.Context) error {
		attempts++
		cancel()
		return Temporary(errors.New("temporary"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestBackoff(t *testing.T) {
	policy := Policy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, BackoffFactor: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{5, time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(policy, tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	policy.Jitter = true
	got := Backoff(policy, 0)
	if got < 90*time.Millisecond || got > 110*time.Millisecond {
		t.Errorf("jittered backoff %v outside +/-10%%", got)
	}
}
