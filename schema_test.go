package flowcore

import (
	"context"
	"testing"
)

func TestDescribeLabelsEveryEdgeKind(t *testing.T) {
	b := NewBuilder("describe")
	a := AddActivity[int, numberActivity](b, "a", "a")
	c := AddActivity[int, numberActivity](b, "c", "c")
	handler := AddFaultHandler[int, noopFaultHandler](b, "handler", "handler")
	a.ConnectTo(c)
	a.ConnectFaultTo(handler)
	a.ConnectCancellationTo(handler)

	cond := b.AddCondition("cond", "cond", func(_ context.Context, _ *ExecContext) (bool, error) { return true, nil })
	cond.ConnectTrueTo(a)
	cond.ConnectFalseTo(c)

	sw := AddSwitch[string](b, "sw", "sw", func(_ context.Context, _ *ExecContext) (string, error) { return "k", nil })
	sw.ConnectCase("k", a)
	sw.ConnectDefault(c)

	fj := b.ForkJoin("fj", "fj").AddChild("one", a).ConnectTo(c)

	b.WithInitialNode(cond)
	b.WithDefaultFaultHandler(handler)
	b.WithDefaultCancellationHandler(handler)

	flow, vr := b.Build()
	if vr.HasErrors() {
		t.Fatalf("unexpected validation errors: %v", vr.Errors)
	}

	schema := flow.Describe()
	wantLabels := map[string]bool{
		"next": false, "fault": false, "cancel": false,
		"true": false, "false": false, "case(k)": false, "default": false,
		"fork_one": false, "join": false,
	}
	for _, e := range schema.Edges {
		if _, ok := wantLabels[e.Label]; ok {
			wantLabels[e.Label] = true
		}
	}
	for label, seen := range wantLabels {
		if !seen {
			t.Errorf("expected an edge labeled %q in the schema, got edges %+v", label, schema.Edges)
		}
	}
	_ = fj
}

func TestDescribeRootMatchesFlow(t *testing.T) {
	b := NewBuilder("root")
	a := AddActivity[int, numberActivity](b, "a", "a")
	handler := AddFaultHandler[int, noopFaultHandler](b, "handler", "handler")
	b.WithInitialNode(a)
	b.WithDefaultFaultHandler(handler)
	b.WithDefaultCancellationHandler(handler)

	flow, vr := b.Build()
	if vr.HasErrors() {
		t.Fatalf("unexpected validation errors: %v", vr.Errors)
	}

	schema := flow.Describe()
	if schema.Root != a.ID() {
		t.Errorf("expected root %q, got %q", a.ID(), schema.Root)
	}
	if schema.Name != "root" {
		t.Errorf("expected name %q, got %q", "root", schema.Name)
	}
}
