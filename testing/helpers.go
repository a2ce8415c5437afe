// Package testing provides test doubles for flowcore-based applications:
// a configurable mock activity, a fixed-registration service container,
// and assertion helpers, mirroring the teacher pack's own testing
// package (MockProcessor, AssertProcessed, ChaosProcessor).
package testing

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowforge/flowcore"
)

// MockActivity is a configurable TypedActivity[T] and FaultHandlerActivity[T]
// double. It records every invocation and lets a test script its return
// value, delay, and fault-handling behavior.
type MockActivity[T any] struct {
	t          *testing.T
	name       string
	callCount  int64
	mu         sync.RWMutex
	returnVal  T
	returnErr  error
	delay      time.Duration
	panicMsg   string
	lastInputs flowcore.Inputs
	history    []MockCall[T]
	maxHistory int
}

// MockCall records one invocation of a MockActivity.
type MockCall[T any] struct {
	Inputs    flowcore.Inputs
	Timestamp time.Time
	Cause     error // set only for a HandleFault invocation
}

// NewMockActivity creates a mock with no configured return value; calling
// it before WithReturn returns the zero value of T and a nil error.
func NewMockActivity[T any](t *testing.T, name string) *MockActivity[T] {
	return &MockActivity[T]{t: t, name: name, maxHistory: 100}
}

// WithReturn configures the value and error every subsequent call returns.
func (m *MockActivity[T]) WithReturn(val T, err error) *MockActivity[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.returnVal, m.returnErr = val, err
	return m
}

// WithDelay makes every call sleep for d before returning, for exercising
// cancellation and timeout behavior.
func (m *MockActivity[T]) WithDelay(d time.Duration) *MockActivity[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithPanic makes every call panic with msg, for exercising the
// executor's panic recovery.
func (m *MockActivity[T]) WithPanic(msg string) *MockActivity[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicMsg = msg
	return m
}

// Run implements flowcore.TypedActivity[T].
func (m *MockActivity[T]) Run(ctx context.Context, in flowcore.Inputs) (T, error) {
	return m.invoke(ctx, in, nil)
}

// HandleFault implements flowcore.FaultHandlerActivity[T].
func (m *MockActivity[T]) HandleFault(ctx context.Context, cause error, in flowcore.Inputs) (T, error) {
	return m.invoke(ctx, in, cause)
}

func (m *MockActivity[T]) invoke(ctx context.Context, in flowcore.Inputs, cause error) (T, error) {
	atomic.AddInt64(&m.callCount, 1)

	m.mu.Lock()
	delay, panicMsg, val, err := m.delay, m.panicMsg, m.returnVal, m.returnErr
	m.lastInputs = in
	if len(m.history) >= m.maxHistory && m.maxHistory > 0 {
		m.history = m.history[1:]
	}
	m.history = append(m.history, MockCall[T]{Inputs: in, Timestamp: time.Now(), Cause: cause})
	m.mu.Unlock()

	if panicMsg != "" {
		panic(panicMsg)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
	return val, err
}

// CallCount returns how many times Run or HandleFault has been called.
func (m *MockActivity[T]) CallCount() int {
	return int(atomic.LoadInt64(&m.callCount))
}

// LastInputs returns the Inputs passed to the most recent call.
func (m *MockActivity[T]) LastInputs() flowcore.Inputs {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastInputs
}

// History returns every recorded call, oldest first.
func (m *MockActivity[T]) History() []MockCall[T] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MockCall[T], len(m.history))
	copy(out, m.history)
	return out
}

// AssertCalled fails the test unless mock was called exactly expected times.
func AssertCalled[T any](t *testing.T, mock *MockActivity[T], expected int) {
	t.Helper()
	if got := mock.CallCount(); got != expected {
		t.Errorf("expected %d calls, got %d", expected, got)
	}
}

// AssertNotCalled fails the test if mock was ever called.
func AssertNotCalled[T any](t *testing.T, mock *MockActivity[T]) {
	t.Helper()
	AssertCalled(t, mock, 0)
}

// FixedContainer is a ServiceContainer double that resolves each token to
// the one pre-built instance registered for it with Register, for tests
// that don't need the lifetime semantics BasicContainer provides.
type FixedContainer struct {
	instances map[flowcore.ActivityToken]any
}

// NewFixedContainer creates an empty FixedContainer.
func NewFixedContainer() *FixedContainer {
	return &FixedContainer{instances: make(map[flowcore.ActivityToken]any)}
}

// Register associates instance with T's token.
func Register[T any](c *FixedContainer, instance T) *FixedContainer {
	c.instances[flowcore.TokenOf[T]()] = instance
	return c
}

// Resolve implements flowcore.ServiceContainer.
func (c *FixedContainer) Resolve(tok flowcore.ActivityToken) (any, error) {
	inst, ok := c.instances[tok]
	if !ok {
		return nil, flowcore.ErrActivityInstantiation
	}
	return inst, nil
}

// WaitForCalls polls mock.CallCount until it reaches expected or timeout
// elapses, returning whether it reached the target in time.
func WaitForCalls[T any](mock *MockActivity[T], expected int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if mock.CallCount() >= expected {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return mock.CallCount() >= expected
}
