package flowcore

import (
	"context"

	"github.com/zoobzio/clockz"
)

// Flow is the immutable, validated graph produced by Builder.Build. It
// holds no run-scoped state of its own: every Run call allocates its own
// thunks, variable cells, and run token, so one Flow value can be shared
// across concurrent runs.
type Flow struct {
	Name          string
	RootNodeID    NodeID
	Nodes         map[NodeID]*Node
	NodeOrder     []NodeID
	Variables     map[VariableID]*VariableDecl
	DefaultFault  NodeID // empty when the flow declares none
	DefaultCancel NodeID

	tokens TokenGenerator
	clock  clockz.Clock
	observability
}

// getClock returns the flow's clock, defaulting to clockz.RealClock the
// same way the teacher pack's connectors fall back when none was set
// via WithClock.
func (f *Flow) getClock() clockz.Clock {
	if f.clock == nil {
		return clockz.RealClock
	}
	return f.clock
}

// FlowOption configures optional collaborators for one Run call, mirroring
// the teacher pack's functional-options constructors. Builder.Build takes
// no options; they are passed to Flow.Run.
type FlowOption func(*Flow)

// WithTokenGenerator overrides the default UUIDv7Generator used to mint
// run tokens, for deterministic tests.
func WithTokenGenerator(g TokenGenerator) FlowOption {
	return func(f *Flow) { f.tokens = g }
}

// WithClock overrides the clock used for run timing and duration
// metrics, for deterministic tests (grounded on the teacher pack's
// CircuitBreaker.WithClock pattern).
func WithClock(c clockz.Clock) FlowOption {
	return func(f *Flow) { f.clock = c }
}

// WithLogger attaches a structured logger driven by capitan signals.
func WithLogger(l Logger) FlowOption {
	return func(f *Flow) { f.logger = l }
}

// WithTracer attaches a tracez-backed tracer.
func WithTracer(t Tracer) FlowOption {
	return func(f *Flow) { f.tracer = t }
}

// WithMetrics attaches a metricz-backed metrics sink.
func WithMetrics(m MetricsSink) FlowOption {
	return func(f *Flow) { f.metrics = m }
}

// WithHooks attaches a hookz-backed hook emitter.
func WithHooks(h Hooks) FlowOption {
	return func(f *Flow) { f.hooks = h }
}

// Validate re-runs every validation pass against the flow's current
// graph. Build already calls this once; callers re-validate explicitly
// only after constructing a Flow through means other than Builder (the
// export/import boundary, for instance).
func (f *Flow) Validate() ValidationResult {
	st := &buildState{
		name: f.Name, nodes: f.Nodes, order: f.NodeOrder, variables: f.Variables,
		initial: f.RootNodeID, defaultFault: f.DefaultFault, defaultCancel: f.DefaultCancel,
	}
	return validate(st)
}

// Run executes the flow from its root node against the given service
// container, applying opts to a copy of the Flow for this run only. Run
// re-validates before doing
// any work: on any validation error it returns immediately with
// OutcomeValidationFailed and never invokes an activity (spec §6).
func (f *Flow) Run(ctx context.Context, container ServiceContainer, opts ...FlowOption) RunResult {
	run := *f
	for _, opt := range opts {
		opt(&run)
	}
	if run.tokens == nil {
		run.tokens = UUIDv7Generator{}
	}

	vr := run.Validate()
	if vr.HasErrors() {
		run.emitValidationFailed(vr)
		return RunResult{Outcome: OutcomeValidationFailed, Validation: &vr}
	}

	ex := newExecutor(&run, container)
	return ex.run(ctx)
}
