package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/lib/pq"
)

// noJitter はテスト中の遅延を0にする。
func noJitter(t *testing.T) {
	t.Helper()
	orig := jitter
	jitter = func(time.Duration) time.Duration { return 0 }
	t.Cleanup(func() { jitter = orig })
}

func TestRetry_SucceedsFirstTry(t *testing.T) {
	noJitter(t)
	calls := 0

	err := Retry(context.Background(), DefaultRetryPolicy(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_PreparedStatementError_ResetsAndRetries(t *testing.T) {
	noJitter(t)
	calls := 0
	resets := 0

	policy := DefaultRetryPolicy()
	policy.Reset = func(ctx context.Context) error {
		resets++
		return nil
	}

	err := Retry(context.Background(), policy, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &pq.Error{Code: "42P05", Message: `prepared statement "s0" already exists`}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}
}

func TestRetry_StopsAtMaxAttempts(t *testing.T) {
	noJitter(t)
	calls := 0
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	err := Retry(context.Background(), policy, func(ctx context.Context) error {
		calls++
		return driver.ErrBadConn
	})
	if !errors.Is(err, driver.ErrBadConn) {
		t.Fatalf("err = %v, want driver.ErrBadConn", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_NonRetryableError_ReturnsImmediately(t *testing.T) {
	noJitter(t)
	calls := 0
	want := &pq.Error{Code: "23505", Message: "duplicate key"}

	err := Retry(context.Background(), DefaultRetryPolicy(), func(ctx context.Context) error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_ContextCanceled_StopsWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	orig := jitter
	jitter = func(d time.Duration) time.Duration { return d }
	t.Cleanup(func() { jitter = orig })

	err := Retry(ctx, policy, func(ctx context.Context) error {
		calls++
		cancel()
		return io.EOF
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_ZeroAttempts_RunsOnce(t *testing.T) {
	noJitter(t)
	calls := 0

	_ = Retry(context.Background(), RetryPolicy{}, func(ctx context.Context) error {
		calls++
		return io.EOF
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBackoffDelay(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{20, time.Second},
	}

	for _, tt := range tests {
		if got := BackoffDelay(tt.attempt, base, max); got != tt.want {
			t.Errorf("BackoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"duplicate prepared statement", &pq.Error{Code: "42P05"}, true},
		{"missing prepared statement", &pq.Error{Code: "26000"}, true},
		{"connection failure", &pq.Error{Code: "08006"}, true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"wrapped bad conn", fmt.Errorf("query: %w", driver.ErrBadConn), true},
		{"eof", io.EOF, true},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
