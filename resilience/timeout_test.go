package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowforge/flowcore"
)

type instantActivity struct{}

func (instantActivity) Run(_ context.Context, _ flowcore.Inputs) (int, error) {
	return 7, nil
}

type slowActivity struct{}

func (slowActivity) Run(ctx context.Context, _ flowcore.Inputs) (int, error) {
	select {
	case <-time.After(200 * time.Millisecond):
		return 7, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func TestTimeoutPassesThroughFastActivity(t *testing.T) {
	d := NewTimeout[int, instantActivity](time.Second)

	got, err := d.Run(context.Background(), flowcore.Inputs{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
}

func TestTimeoutAbortsSlowActivity(t *testing.T) {
	d := NewTimeout[int, slowActivity](10 * time.Millisecond)

	start := time.Now()
	_, err := d.Run(context.Background(), flowcore.Inputs{})
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed > 100*time.Millisecond {
		t.Errorf("expected the timeout to cut the 200ms activity short, elapsed %s", elapsed)
	}
}
