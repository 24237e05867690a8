package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPoll_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), 5, time.Millisecond, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestPoll_ExhaustsBudgetWithLastError(t *testing.T) {
	calls := 0
	want := errors.New("element not found")
	err := Poll(context.Background(), 4, time.Millisecond, func(ctx context.Context) error {
		calls++
		return want
	})
	if calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", calls)
	}
	if !errors.Is(err, want) {
		t.Fatalf("expected last probe error, got %v", err)
	}
}

func TestPoll_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), 10, time.Millisecond, func(ctx context.Context) error {
		calls++
		return Permanent(errors.New("fatal"))
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt for permanent error, got %d", calls)
	}
}

func TestPoll_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Poll(ctx, 10, 50*time.Millisecond, func(ctx context.Context) error {
		return errors.New("keep going")
	})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
}
