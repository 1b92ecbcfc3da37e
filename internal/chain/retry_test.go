package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestWithRetryTransientThenSuccess(t *testing.T) {
	calls := 0
	var stamps []time.Time

	err := WithRetry(context.Background(), 5, time.Millisecond, func(ctx context.Context) error {
		stamps = append(stamps, time.Now())
		calls++
		if calls <= 3 {
			return fmt.Errorf("fetch: %w", ErrTransient)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 4 {
		t.Fatalf("calls = %d, want 4", calls)
	}

	// Backoff doubles, so observed gaps must be non-decreasing.
	var prev time.Duration
	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		if gap < prev {
			t.Fatalf("gap %d shrank: %v < %v", i, gap, prev)
		}
		prev = gap
	}
}

func TestWithRetryExhausted(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 2, time.Millisecond, func(ctx context.Context) error {
		calls++
		return fmt.Errorf("dial: %w", ErrTransient)
	})
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestWithRetryDoesNotRetryReverts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 5, time.Millisecond, func(ctx context.Context) error {
		calls++
		return errors.New("execution reverted: allowance too low")
	})
	if err == nil {
		t.Fatalf("expected revert error")
	}
	if calls != 1 {
		t.Fatalf("revert retried: calls = %d, want 1", calls)
	}
}

func TestWithRetryContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, 5, 10*time.Millisecond, func(ctx context.Context) error {
		return fmt.Errorf("fetch: %w", ErrTransient)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection refused"), true},
		{errors.New("read tcp: i/o timeout"), true},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("EOF"), true},
		{errors.New("execution reverted: paused"), false},
		{errors.New("insufficient funds for gas"), false},
		{errors.New("nonce too low"), false},
		{context.DeadlineExceeded, false},
		{fmt.Errorf("call: %w", ErrTransient), true},
	}

	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
