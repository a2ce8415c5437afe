package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/flowforge/flowcore"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Metric keys, mirroring the retrieved pack's timeout.go naming.
const (
	TimeoutProcessedTotal = metricz.Key("resilience.timeout.processed.total")
	TimeoutSuccessesTotal = metricz.Key("resilience.timeout.successes.total")
	TimeoutTimeoutsTotal  = metricz.Key("resilience.timeout.timeouts.total")
	TimeoutDurationMs     = metricz.Key("resilience.timeout.duration.ms")
)

// Span keys and tags.
const (
	TimeoutSpan        = tracez.Key("resilience.timeout")
	TimeoutTagDuration = tracez.Tag("resilience.timeout.duration")
	TimeoutTagTimedOut = tracez.Tag("resilience.timeout.timed_out")
)

var timeoutRegistry = newTimeoutRegistry()
var timeoutTracer = tracez.New()

func newTimeoutRegistry() *metricz.Registry {
	r := metricz.New()
	r.Counter(TimeoutProcessedTotal)
	r.Counter(TimeoutSuccessesTotal)
	r.Counter(TimeoutTimeoutsTotal)
	r.Gauge(TimeoutDurationMs)
	return r
}

// TimeoutMetrics exposes the package-wide timeout counters for tests and
// diagnostics.
func TimeoutMetrics() *metricz.Registry { return timeoutRegistry }

// Timeout enforces a hard time limit on Inner, canceling Inner's context
// and returning context.DeadlineExceeded if it runs too long.
type Timeout[T any, Inner flowcore.TypedActivity[T]] struct {
	Duration time.Duration
	Clock    clockz.Clock
}

// NewTimeout builds a Timeout decorator using the real wall clock.
func NewTimeout[T any, Inner flowcore.TypedActivity[T]](duration time.Duration) Timeout[T, Inner] {
	return Timeout[T, Inner]{Duration: duration, Clock: clockz.RealClock}
}

type timeoutResult[T any] struct {
	value T
	err   error
}

// Run implements flowcore.TypedActivity[T]. Inner runs on its own
// goroutine so a hung call never blocks past Duration; the goroutine
// leaks until Inner eventually returns, the same tradeoff the retrieved
// pack's Timeout connector accepts since Go offers no way to force-abort
// a running goroutine.
func (d Timeout[T, Inner]) Run(ctx context.Context, in flowcore.Inputs) (T, error) {
	var inner Inner
	clock := d.Clock
	if clock == nil {
		clock = clockz.RealClock
	}

	ctx, span := timeoutTracer.StartSpan(ctx, TimeoutSpan)
	span.SetTag(TimeoutTagDuration, d.Duration.String())
	defer span.Finish()

	timeoutRegistry.Counter(TimeoutProcessedTotal).Inc()
	start := clock.Now()
	defer func() {
		timeoutRegistry.Gauge(TimeoutDurationMs).Set(float64(clock.Now().Sub(start).Milliseconds()))
	}()

	ctx, cancel := clock.WithTimeout(ctx, d.Duration)
	defer cancel()

	done := make(chan timeoutResult[T], 1)
	go func() {
		v, err := inner.Run(ctx, in)
		done <- timeoutResult[T]{value: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil {
			timeoutRegistry.Counter(TimeoutSuccessesTotal).Inc()
		}
		return r.value, r.err
	case <-ctx.Done():
		span.SetTag(TimeoutTagTimedOut, "true")
		timeoutRegistry.Counter(TimeoutTimeoutsTotal).Inc()
		var zero T
		return zero, fmt.Errorf("resilience: activity exceeded %s timeout: %w", d.Duration, ctx.Err())
	}
}
