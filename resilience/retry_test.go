package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowforge/flowcore"
)

type flakyActivity struct{}

var flakyCallCount atomic.Int32

func (flakyActivity) Run(_ context.Context, _ flowcore.Inputs) (int, error) {
	n := flakyCallCount.Add(1)
	if n < 3 {
		return 0, errors.New("transient failure")
	}
	return 42, nil
}

type alwaysFailingActivity struct{}

func (alwaysFailingActivity) Run(_ context.Context, _ flowcore.Inputs) (int, error) {
	return 0, errors.New("permanent failure")
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	flakyCallCount.Store(0)
	r := NewRetry[int, flakyActivity](5, 0)

	got, err := r.Run(context.Background(), flowcore.Inputs{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}

func TestRetryReturnsLastErrorWhenExhausted(t *testing.T) {
	r := NewRetry[int, alwaysFailingActivity](3, 0)

	_, err := r.Run(context.Background(), flowcore.Inputs{})
	if err == nil {
		t.Fatal("expected an error once all attempts are exhausted")
	}
}

func TestRetryHonorsBaseDelayBetweenAttempts(t *testing.T) {
	r := NewRetry[int, alwaysFailingActivity](3, 5*time.Millisecond)

	start := time.Now()
	_, _ = r.Run(context.Background(), flowcore.Inputs{})
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("expected at least 2 delays of 5ms+10ms, elapsed only %s", elapsed)
	}
}

func TestRetryAbortsOnContextCancellation(t *testing.T) {
	r := NewRetry[int, alwaysFailingActivity](10, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, flowcore.Inputs{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
