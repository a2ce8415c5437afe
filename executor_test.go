package flowcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

type constReader struct{ value int }

func (a constReader) Run(_ context.Context, _ Inputs) (int, error) {
	return a.value, nil
}

type adder struct{}

func (adder) Run(_ context.Context, in Inputs) (int, error) {
	return MustGet[int](in, "A") + MustGet[int](in, "B"), nil
}

type alwaysFails struct{ err error }

func (a alwaysFails) Run(_ context.Context, _ Inputs) (int, error) {
	return 0, a.err
}

type echoHandler struct{}

func (echoHandler) Run(_ context.Context, _ Inputs) (int, error) { return 0, nil }
func (echoHandler) HandleFault(_ context.Context, cause error, _ Inputs) (int, error) {
	if cause == nil {
		return -1, nil
	}
	return -2, nil
}

type brokenHandler struct{}

func (brokenHandler) Run(_ context.Context, _ Inputs) (int, error) { return 0, nil }
func (brokenHandler) HandleFault(_ context.Context, cause error, _ Inputs) (int, error) {
	return 0, errors.New("handler could not recover: " + cause.Error())
}

type sleeper struct{ d time.Duration }

func (s sleeper) Run(ctx context.Context, _ Inputs) (int, error) {
	select {
	case <-time.After(s.d):
		return 1, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func buildTwoActivitySum(t *testing.T) (*Flow, *BasicContainer) {
	t.Helper()
	c := NewBasicContainer()
	AddSingleton[constReader](c, constReader{value: 7})
	AddSingleton[adder](c, adder{})
	AddSingleton[noopFaultHandler](c, noopFaultHandler{})

	b := NewBuilder("sum")
	first := AddActivity[int, constReader](b, "first", "first")
	second := AddActivity[int, constReader](b, "second", "second")
	sum := AddActivity[int, adder](b, "sum", "sum", "A", "B")
	fallback := AddFaultHandler[int, noopFaultHandler](b, "fallback", "fallback")

	b.Bind(sum, "A").ToResultOf(first)
	b.Bind(sum, "B").ToResultOf(second)
	first.ConnectTo(second)
	second.ConnectTo(sum)
	b.WithInitialNode(first)
	b.WithDefaultFaultHandler(fallback)
	b.WithDefaultCancellationHandler(fallback)

	flow, vr := b.Build()
	if vr.HasErrors() {
		t.Fatalf("unexpected validation errors: %v", vr.Errors)
	}
	return flow, c
}

func TestExecutorRunsActivitiesInOrderAndCompletes(t *testing.T) {
	flow, c := buildTwoActivitySum(t)
	result := flow.Run(context.Background(), c)
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("expected OutcomeCompleted, got %s (err=%v)", result.Outcome, result.Err)
	}
}

func TestExecutorValidationFailurePreventsRun(t *testing.T) {
	b := NewBuilder("invalid")
	AddActivity[int, constReader](b, "a", "a")
	// no WithInitialNode: Build refuses, but we also check Flow.Run's own
	// re-validation using a Flow assembled without going through Build.
	flow := rawFlow("invalid", "missing", map[NodeID]*Node{}, nil, "", "")

	c := NewBasicContainer()
	result := flow.Run(context.Background(), c)
	if result.Outcome != OutcomeValidationFailed {
		t.Fatalf("expected OutcomeValidationFailed, got %s", result.Outcome)
	}
	if result.Validation == nil || !result.Validation.HasErrors() {
		t.Fatal("expected a populated Validation with errors")
	}
}

func TestExecutorDefaultFaultHandlerAbsorbsFailure(t *testing.T) {
	c := NewBasicContainer()
	AddSingleton[alwaysFails](c, alwaysFails{err: errors.New("boom")})
	AddSingleton[echoHandler](c, echoHandler{})

	b := NewBuilder("fault-absorbed")
	act := AddActivity[int, alwaysFails](b, "act", "act")
	handler := AddFaultHandler[int, echoHandler](b, "handler", "handler")
	b.WithInitialNode(act)
	b.WithDefaultFaultHandler(handler)
	b.WithDefaultCancellationHandler(handler)

	flow, vr := b.Build()
	if vr.HasErrors() {
		t.Fatalf("unexpected validation errors: %v", vr.Errors)
	}

	result := flow.Run(context.Background(), c)
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("expected OutcomeCompleted (fault absorbed), got %s (err=%v)", result.Outcome, result.Err)
	}
}

func TestExecutorHandlerFailureIsNeverReDispatched(t *testing.T) {
	c := NewBasicContainer()
	AddSingleton[alwaysFails](c, alwaysFails{err: errors.New("boom")})
	AddSingleton[brokenHandler](c, brokenHandler{})

	b := NewBuilder("handler-fails")
	act := AddActivity[int, alwaysFails](b, "act", "act")
	handler := AddFaultHandler[int, brokenHandler](b, "handler", "handler")
	b.WithInitialNode(act)
	b.WithDefaultFaultHandler(handler)
	b.WithDefaultCancellationHandler(handler)

	flow, vr := b.Build()
	if vr.HasErrors() {
		t.Fatalf("unexpected validation errors: %v", vr.Errors)
	}

	result := flow.Run(context.Background(), c)
	if result.Outcome != OutcomeHandlerFailed {
		t.Fatalf("expected OutcomeHandlerFailed, got %s", result.Outcome)
	}
	if !errors.Is(result.Err, ErrHandlerFailed) {
		t.Errorf("expected result.Err to wrap ErrHandlerFailed, got %v", result.Err)
	}
}

func TestExecutorCancellationDispatchesCancelHandler(t *testing.T) {
	c := NewBasicContainer()
	AddSingleton[sleeper](c, sleeper{d: 200 * time.Millisecond})
	AddSingleton[echoHandler](c, echoHandler{})

	b := NewBuilder("cancelled")
	act := AddActivity[int, sleeper](b, "act", "act")
	handler := AddFaultHandler[int, echoHandler](b, "handler", "handler")
	b.WithInitialNode(act)
	b.WithDefaultFaultHandler(handler)
	b.WithDefaultCancellationHandler(handler)

	flow, vr := b.Build()
	if vr.HasErrors() {
		t.Fatalf("unexpected validation errors: %v", vr.Errors)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := flow.Run(ctx, c)
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("expected OutcomeCompleted (cancellation absorbed by handler), got %s (err=%v)", result.Outcome, result.Err)
	}
}

func TestExecutorForkJoinJoinsAllBranches(t *testing.T) {
	c := NewBasicContainer()
	AddSingleton[constReader](c, constReader{value: 1})
	AddSingleton[noopFaultHandler](c, noopFaultHandler{})

	b := NewBuilder("forkjoin")
	branch1 := AddActivity[int, constReader](b, "b1", "b1")
	branch2 := AddActivity[int, constReader](b, "b2", "b2")
	consumer := AddActivity[int, constReader](b, "consumer", "consumer")
	fallback := AddFaultHandler[int, noopFaultHandler](b, "fallback", "fallback")

	fj := b.ForkJoin("fj", "fj").AddChild("one", branch1).AddChild("two", branch2).ConnectTo(consumer)
	b.WithInitialNode(fj)
	b.WithDefaultFaultHandler(fallback)
	b.WithDefaultCancellationHandler(fallback)

	flow, vr := b.Build()
	if vr.HasErrors() {
		t.Fatalf("unexpected validation errors: %v", vr.Errors)
	}

	result := flow.Run(context.Background(), c)
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("expected OutcomeCompleted, got %s (err=%v)", result.Outcome, result.Err)
	}
}

func TestExecutorForkJoinUnrecoverableBranchCancelsSiblings(t *testing.T) {
	c := NewBasicContainer()
	AddSingleton[sleeper](c, sleeper{d: 200 * time.Millisecond})
	AddSingleton[alwaysFails](c, alwaysFails{err: errors.New("branch failure")})
	AddSingleton[brokenHandler](c, brokenHandler{})
	AddSingleton[echoHandler](c, echoHandler{})
	AddSingleton[constReader](c, constReader{value: 1})

	b := NewBuilder("forkjoin-fault")
	ok := AddActivity[int, sleeper](b, "ok", "ok")
	failing := AddActivity[int, alwaysFails](b, "failing", "failing")
	handler := AddFaultHandler[int, brokenHandler](b, "handler", "handler")
	cancelHandler := AddFaultHandler[int, echoHandler](b, "cancelHandler", "cancelHandler")
	failing.ConnectFaultTo(handler)
	consumer := AddActivity[int, constReader](b, "consumer", "consumer")

	fj := b.ForkJoin("fj", "fj").AddChild("ok", ok).AddChild("failing", failing).ConnectTo(consumer)
	b.WithInitialNode(fj)
	b.WithDefaultFaultHandler(handler)
	b.WithDefaultCancellationHandler(cancelHandler)

	flow, vr := b.Build()
	if vr.HasErrors() {
		t.Fatalf("unexpected validation errors: %v", vr.Errors)
	}

	start := time.Now()
	result := flow.Run(context.Background(), c)
	elapsed := time.Since(start)

	if result.Outcome != OutcomeHandlerFailed {
		t.Fatalf("expected OutcomeHandlerFailed, got %s (err=%v)", result.Outcome, result.Err)
	}
	if elapsed >= 200*time.Millisecond {
		t.Errorf("expected the ok branch to be cancelled well before its 200ms sleep completed, took %v", elapsed)
	}
}

func TestExecutorSwitchUnhandledCaseFaults(t *testing.T) {
	c := NewBasicContainer()
	AddSingleton[constReader](c, constReader{value: 1})
	AddSingleton[noopFaultHandler](c, noopFaultHandler{})

	b := NewBuilder("switch-unhandled")
	target := AddActivity[int, constReader](b, "target", "target")
	fallback := AddFaultHandler[int, noopFaultHandler](b, "fallback", "fallback")
	sw := AddSwitch[string](b, "sw", "sw", func(_ context.Context, _ *ExecContext) (string, error) {
		return "unmatched", nil
	})
	sw.ConnectCase("other", target)
	sw.AllowPartialCoverage()
	b.WithInitialNode(sw)
	b.WithDefaultFaultHandler(fallback)
	b.WithDefaultCancellationHandler(fallback)

	flow, vr := b.Build()
	if vr.HasErrors() {
		t.Fatalf("unexpected validation errors: %v", vr.Errors)
	}

	result := flow.Run(context.Background(), c)
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("expected the default fault handler to absorb ErrUnhandledCase, got %s (err=%v)", result.Outcome, result.Err)
	}
}

func TestExecutorVariableUpdateAfterActivityCompletion(t *testing.T) {
	c := NewBasicContainer()
	AddSingleton[constReader](c, constReader{value: 42})
	AddSingleton[noopFaultHandler](c, noopFaultHandler{})

	b := NewBuilder("variable-update")
	act := AddActivity[int, constReader](b, "act", "act")
	fallback := AddFaultHandler[int, noopFaultHandler](b, "fallback", "fallback")
	v := DeclareVariable[int](b, "v", 0)
	v.BindToResultOf(act)
	b.WithInitialNode(act)
	b.WithDefaultFaultHandler(fallback)
	b.WithDefaultCancellationHandler(fallback)

	flow, vr := b.Build()
	if vr.HasErrors() {
		t.Fatalf("unexpected validation errors: %v", vr.Errors)
	}

	result := flow.Run(context.Background(), c)
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("expected OutcomeCompleted, got %s (err=%v)", result.Outcome, result.Err)
	}
}
