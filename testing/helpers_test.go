package testing

import (
	"context"
	"errors"
	stdtesting "testing"
	"time"

	"github.com/flowforge/flowcore"
)

func TestMockActivityRecordsCallsAndReturnsConfiguredValue(t *stdtesting.T) {
	mock := NewMockActivity[int](t, "mock")
	mock.WithReturn(5, nil)

	v, err := mock.Run(context.Background(), flowcore.Inputs{"x": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 5 {
		t.Errorf("expected 5, got %d", v)
	}

	AssertCalled(t, mock, 1)
	if mock.LastInputs()["x"] != 1 {
		t.Error("expected LastInputs to reflect the most recent call")
	}
}

func TestMockActivityWithPanicRecovers(t *stdtesting.T) {
	mock := NewMockActivity[int](t, "panicky")
	mock.WithPanic("boom")

	defer func() {
		if recover() == nil {
			t.Fatal("expected WithPanic to actually panic on invocation")
		}
	}()
	_, _ = mock.Run(context.Background(), flowcore.Inputs{})
}

func TestMockActivityWithDelayRespectsCancellation(t *stdtesting.T) {
	mock := NewMockActivity[int](t, "slow")
	mock.WithDelay(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := mock.Run(ctx, flowcore.Inputs{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestAssertNotCalled(t *stdtesting.T) {
	mock := NewMockActivity[int](t, "unused")
	AssertNotCalled(t, mock)
}

func TestFixedContainerResolvesRegisteredInstance(t *stdtesting.T) {
	type svc struct{ name string }
	c := Register(NewFixedContainer(), svc{name: "registered"})

	got, err := c.Resolve(flowcore.TokenOf[svc]())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.(svc).name != "registered" {
		t.Errorf("expected the registered instance, got %+v", got)
	}
}

func TestFixedContainerUnregisteredTokenErrors(t *stdtesting.T) {
	type unregistered struct{}
	c := NewFixedContainer()
	if _, err := c.Resolve(flowcore.TokenOf[unregistered]()); !errors.Is(err, flowcore.ErrActivityInstantiation) {
		t.Errorf("expected ErrActivityInstantiation, got %v", err)
	}
}

func TestWaitForCallsReturnsTrueOnceThresholdReached(t *stdtesting.T) {
	mock := NewMockActivity[int](t, "eventually")
	mock.WithReturn(1, nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = mock.Run(context.Background(), flowcore.Inputs{})
	}()

	if !WaitForCalls(mock, 1, time.Second) {
		t.Fatal("expected WaitForCalls to observe the call within the timeout")
	}
}
