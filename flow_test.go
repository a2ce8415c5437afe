package flowcore

import (
	"context"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestFlowRunUsesFixedTokenGenerator(t *testing.T) {
	c := NewBasicContainer()
	AddSingleton[numberActivity](c, numberActivity{n: 1})
	AddSingleton[noopFaultHandler](c, noopFaultHandler{})

	b := NewBuilder("fixed-token")
	a := AddActivity[int, numberActivity](b, "a", "a")
	fallback := AddFaultHandler[int, noopFaultHandler](b, "fallback", "fallback")
	b.WithInitialNode(a)
	b.WithDefaultFaultHandler(fallback)
	b.WithDefaultCancellationHandler(fallback)

	flow, vr := b.Build()
	if vr.HasErrors() {
		t.Fatalf("unexpected validation errors: %v", vr.Errors)
	}

	gen := NewFixedGenerator("run-1")
	result := flow.Run(context.Background(), c, WithTokenGenerator(gen))
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("expected OutcomeCompleted, got %s", result.Outcome)
	}
}

func TestFlowRunUsesInjectedClockForDuration(t *testing.T) {
	c := NewBasicContainer()
	AddSingleton[numberActivity](c, numberActivity{n: 1})
	AddSingleton[noopFaultHandler](c, noopFaultHandler{})

	b := NewBuilder("clocked")
	a := AddActivity[int, numberActivity](b, "a", "a")
	fallback := AddFaultHandler[int, noopFaultHandler](b, "fallback", "fallback")
	b.WithInitialNode(a)
	b.WithDefaultFaultHandler(fallback)
	b.WithDefaultCancellationHandler(fallback)

	flow, vr := b.Build()
	if vr.HasErrors() {
		t.Fatalf("unexpected validation errors: %v", vr.Errors)
	}

	fake := clockz.NewFakeClock()
	hooks := NewHookzHooks()
	var captured RunEvent
	done := make(chan struct{})
	if err := hooks.On(RunEventCompleted, func(_ context.Context, ev RunEvent) error {
		captured = ev
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error registering hook: %v", err)
	}

	result := flow.Run(context.Background(), c, WithClock(fake), WithHooks(hooks))
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("expected OutcomeCompleted, got %s", result.Outcome)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the run-completed hook")
	}
	if captured.FlowName != "clocked" {
		t.Errorf("expected hook event for flow %q, got %q", "clocked", captured.FlowName)
	}
	if captured.Duration != 0 {
		t.Errorf("expected zero duration from the unadvanced fake clock, got %v", captured.Duration)
	}
}

func TestFlowValidateReflectsCurrentGraph(t *testing.T) {
	b := NewBuilder("validate-only")
	AddActivity[int, numberActivity](b, "a", "a")
	flow, vr := b.Build()
	if flow != nil {
		t.Fatal("expected Build to fail without an initial node")
	}
	if !vr.HasErrors() {
		t.Fatal("expected validation errors")
	}
}
