// Package resilience adapts a subset of the teacher pack's resilience
// connectors into TypedActivity[T] decorators: wrap an activity's zero
// value with Retry or Timeout and register the wrapper itself with the
// container, so a node declared AddActivity[T, resilience.Retry[T, X]]
// runs its inner activity under the decorator's policy without the
// flow graph needing any concept of retries or deadlines.
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

// Metric keys, mirroring the retrieved pack's backoff.go naming.
const (
	RetryAttemptsTotal  = metricz.Key("resilience.retry.attempts.total")
	RetrySuccessesTotal = metricz.Key("resilience.retry.successes.total")
	RetryFailuresTotal  = metricz.Key("resilience.retry.failures.total")
	RetryDelayTotalMs   = metricz.Key("resilience.retry.delay.total.ms")
)

// Span keys and tags.
const (
	RetrySpan          = tracez.Key("resilience.retry")
	RetryTagAttempt    = tracez.Tag("resilience.retry.attempt")
	RetryTagMaxAttempt = tracez.Tag("resilience.retry.max_attempts")
)

var retryRegistry = newRetryRegistry()
var retryTracer = tracez.New()

func newRetryRegistry() *metricz.Registry {
	r := metricz.New()
	r.Counter(RetryAttemptsTotal)
	r.Counter(RetrySuccessesTotal)
	r.Counter(RetryFailuresTotal)
	r.Gauge(RetryDelayTotalMs)
	return r
}

// Metrics exposes the package-wide retry counters for tests and
// diagnostics.
func Metrics() *metricz.Registry { return retryRegistry }

// Retry retries Inner up to MaxAttempts times, waiting BaseDelay *
// attempt between attempts (linear backoff) and re-invoking Inner with
// the same Inputs. Context cancellation, including during the delay,
// aborts the sequence immediately.
//
// T is the activity's result type; Inner is the concrete activity type
// being retried. Both are type parameters so Retry itself satisfies
// TypedActivity[T] and can be registered with the container like any
// other activity.
type Retry[T any, Inner flowcore.TypedActivity[T]] struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Clock       clockz.Clock
}

// NewRetry builds a Retry decorator with at least one attempt and the
// real wall clock.
func NewRetry[T any, Inner flowcore.TypedActivity[T]](maxAttempts int, baseDelay time.Duration) Retry[T, Inner] {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return Retry[T, Inner]{MaxAttempts: maxAttempts, BaseDelay: baseDelay, Clock: clockz.RealClock}
}

// Run implements flowcore.TypedActivity[T]. Every attempt calls the same
// zero-value Inner; Inner activities participating in a Retry must
// therefore read everything they need from Inputs rather than from
// mutable state of their own, the same idempotence the retrieved pack
// requires of a retried processor.
func (r Retry[T, Inner]) Run(ctx context.Context, in flowcore.Inputs) (T, error) {
	var inner Inner
	clock := r.Clock
	if clock == nil {
		clock = clockz.RealClock
	}

	ctx, span := retryTracer.StartSpan(ctx, RetrySpan)
	defer span.Finish()
	span.SetTag(RetryTagMaxAttempt, fmt.Sprintf("%d", r.MaxAttempts))

	var lastErr error
	var zero T
	var totalDelay time.Duration
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		span.SetTag(RetryTagAttempt, fmt.Sprintf("%d", attempt))
		retryRegistry.Counter(RetryAttemptsTotal).Inc()

		result, err := inner.Run(ctx, in)
		if err == nil {
			retryRegistry.Counter(RetrySuccessesTotal).Inc()
			return result, nil
		}
		lastErr = err

		if attempt < r.MaxAttempts && r.BaseDelay > 0 {
			delay := r.BaseDelay * time.Duration(attempt)
			totalDelay += delay
			retryRegistry.Gauge(RetryDelayTotalMs).Set(float64(totalDelay.Milliseconds()))
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-clock.After(delay):
			}
		}
	}

	retryRegistry.Counter(RetryFailuresTotal).Inc()
	return zero, fmt.Errorf("resilience: %d retry attempts exhausted: %w", r.MaxAttempts, lastErr)
}
