package flowcore

import (
	"context"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Signal constants for flow-level events, following the teacher pack's
// <subject>.<event> naming convention.
const (
	SignalRunStarted         capitan.Signal = "flow.run.started"
	SignalRunCompleted       capitan.Signal = "flow.run.completed"
	SignalValidationFailed   capitan.Signal = "flow.validation.failed"
	SignalNodeFaulted        capitan.Signal = "flow.node.faulted"
	SignalNodeCancelled      capitan.Signal = "flow.node.cancelled"
	SignalForkJoinDispatched capitan.Signal = "flow.forkjoin.dispatched"
)

// Field keys, mirroring the teacher pack's capitan.NewXKey pattern.
var (
	FieldFlowName  = capitan.NewStringKey("flow_name")
	FieldRunToken  = capitan.NewStringKey("run_token")
	FieldNodeID    = capitan.NewStringKey("node_id")
	FieldOutcome   = capitan.NewStringKey("outcome")
	FieldErrorText = capitan.NewStringKey("error")
	FieldElapsedMs = capitan.NewFloat64Key("elapsed_ms")
)

// Metric keys.
const (
	MetricRunsTotal       = metricz.Key("flow.runs.total")
	MetricRunsCompleted   = metricz.Key("flow.runs.completed")
	MetricRunsFailed      = metricz.Key("flow.runs.failed")
	MetricNodesExecuted   = metricz.Key("flow.nodes.executed")
	MetricRunDurationMs   = metricz.Key("flow.run.duration.ms")
)

// Span keys and tags.
const (
	SpanRun       = tracez.Key("flow.run")
	SpanNode      = tracez.Key("flow.node")
	TagFlowName   = tracez.Tag("flow.name")
	TagNodeID     = tracez.Tag("flow.node_id")
	TagOutcome    = tracez.Tag("flow.outcome")
)

// Hook event key and payload for external subscribers that want run
// completions without parsing log output.
const RunEventCompleted = hookz.Key("flow.run.completed")

// RunEvent is delivered to hookz subscribers on run completion.
type RunEvent struct {
	FlowName string
	RunToken string
	Outcome  Outcome
	Err      error
	Duration time.Duration
	At       time.Time
}

// Logger is the structured logging boundary a Flow emits through. The
// default implementation emits nothing; WithLogger installs a capitan-
// backed one.
type Logger interface {
	Info(ctx context.Context, signal capitan.Signal, fields ...capitan.Field)
	Warn(ctx context.Context, signal capitan.Signal, fields ...capitan.Field)
	Error(ctx context.Context, signal capitan.Signal, fields ...capitan.Field)
}

// CapitanLogger emits through the process-wide capitan signal bus, the
// same mechanism the teacher pack's connectors use (spec.md §9 calls for
// "structured, leveled logging" as an ambient concern every component
// carries regardless of the distillation's Non-goals).
type CapitanLogger struct{}

// Info implements Logger.
func (CapitanLogger) Info(ctx context.Context, signal capitan.Signal, fields ...capitan.Field) {
	capitan.Info(ctx, signal, fields...)
}

// Warn implements Logger.
func (CapitanLogger) Warn(ctx context.Context, signal capitan.Signal, fields ...capitan.Field) {
	capitan.Warn(ctx, signal, fields...)
}

// Error implements Logger.
func (CapitanLogger) Error(ctx context.Context, signal capitan.Signal, fields ...capitan.Field) {
	capitan.Error(ctx, signal, fields...)
}

// Tracer is the tracing boundary a Flow emits spans through.
type Tracer interface {
	StartSpan(ctx context.Context, key tracez.Key) (context.Context, *tracez.ActiveSpan)
}

// TracezTracer wraps a *tracez.Tracer to satisfy Tracer.
type TracezTracer struct {
	T *tracez.Tracer
}

// NewTracezTracer creates a TracezTracer with a fresh tracez.Tracer.
func NewTracezTracer() *TracezTracer {
	return &TracezTracer{T: tracez.New()}
}

// StartSpan implements Tracer.
func (t *TracezTracer) StartSpan(ctx context.Context, key tracez.Key) (context.Context, *tracez.ActiveSpan) {
	return t.T.StartSpan(ctx, key)
}

// MetricsSink is the metrics boundary a Flow reports counters and gauges
// through.
type MetricsSink interface {
	Counter(key metricz.Key) *metricz.CounterMetric
	Gauge(key metricz.Key) *metricz.GaugeMetric
}

// MetriczSink wraps a *metricz.Registry to satisfy MetricsSink, pre-
// registering every metric key this package emits.
type MetriczSink struct {
	R *metricz.Registry
}

// NewMetriczSink creates a MetriczSink with the flow-level counters and
// gauges pre-registered.
func NewMetriczSink() *MetriczSink {
	r := metricz.New()
	r.Counter(MetricRunsTotal)
	r.Counter(MetricRunsCompleted)
	r.Counter(MetricRunsFailed)
	r.Counter(MetricNodesExecuted)
	r.Gauge(MetricRunDurationMs)
	return &MetriczSink{R: r}
}

// Counter implements MetricsSink.
func (s *MetriczSink) Counter(key metricz.Key) *metricz.CounterMetric { return s.R.Counter(key) }

// Gauge implements MetricsSink.
func (s *MetriczSink) Gauge(key metricz.Key) *metricz.GaugeMetric { return s.R.Gauge(key) }

// Hooks is the external-subscriber boundary a Flow emits run-completion
// events through.
type Hooks interface {
	Emit(ctx context.Context, key hookz.Key, event RunEvent) error
	On(key hookz.Key, handler func(context.Context, RunEvent) error) error
}

// HookzHooks wraps a *hookz.Hooks[RunEvent] to satisfy Hooks.
type HookzHooks struct {
	H *hookz.Hooks[RunEvent]
}

// NewHookzHooks creates a HookzHooks with a fresh hookz.Hooks[RunEvent].
func NewHookzHooks() *HookzHooks {
	return &HookzHooks{H: hookz.New[RunEvent]()}
}

// Emit implements Hooks.
func (h *HookzHooks) Emit(ctx context.Context, key hookz.Key, event RunEvent) error {
	return h.H.Emit(ctx, key, event)
}

// On implements Hooks.
func (h *HookzHooks) On(key hookz.Key, handler func(context.Context, RunEvent) error) error {
	_, err := h.H.Hook(key, handler)
	return err
}

// observability bundles a Flow's optional collaborators. Every field is
// nil-safe: a Run call given no FlowOption runs with all four
// disabled, matching the teacher pack's "observability never gates
// behavior" posture.
type observability struct {
	logger  Logger
	tracer  Tracer
	metrics MetricsSink
	hooks   Hooks
}

func (f *Flow) emitValidationFailed(vr ValidationResult) {
	if f.logger == nil {
		return
	}
	f.logger.Warn(context.Background(), SignalValidationFailed,
		FieldFlowName.Field(f.Name),
	)
}

func (f *Flow) emitRunStarted(ctx context.Context, runToken string) {
	if f.logger != nil {
		f.logger.Info(ctx, SignalRunStarted, FieldFlowName.Field(f.Name), FieldRunToken.Field(runToken))
	}
	if f.metrics != nil {
		f.metrics.Counter(MetricRunsTotal).Inc()
	}
}

func (f *Flow) emitRunCompleted(ctx context.Context, runToken string, outcome Outcome, runErr error, elapsed time.Duration) {
	if f.logger != nil {
		f.logger.Info(ctx, SignalRunCompleted,
			FieldFlowName.Field(f.Name),
			FieldRunToken.Field(runToken),
			FieldOutcome.Field(outcome.String()),
			FieldElapsedMs.Field(float64(elapsed.Milliseconds())),
		)
	}
	if f.metrics != nil {
		if outcome == OutcomeCompleted {
			f.metrics.Counter(MetricRunsCompleted).Inc()
		} else {
			f.metrics.Counter(MetricRunsFailed).Inc()
		}
		f.metrics.Gauge(MetricRunDurationMs).Set(float64(elapsed.Milliseconds()))
	}
	if f.hooks != nil {
		_ = f.hooks.Emit(ctx, RunEventCompleted, RunEvent{
			FlowName: f.Name, RunToken: runToken, Outcome: outcome, Err: runErr,
			Duration: elapsed, At: f.getClock().Now(),
		})
	}
}

func (f *Flow) emitNodeFaulted(ctx context.Context, id NodeID, cause error) {
	if f.logger != nil {
		f.logger.Error(ctx, SignalNodeFaulted, FieldFlowName.Field(f.Name), FieldNodeID.Field(string(id)), FieldErrorText.Field(cause.Error()))
	}
}

func (f *Flow) emitNodeCancelled(ctx context.Context, id NodeID) {
	if f.logger != nil {
		f.logger.Warn(ctx, SignalNodeCancelled, FieldFlowName.Field(f.Name), FieldNodeID.Field(string(id)))
	}
}

func (f *Flow) countNodeExecuted() {
	if f.metrics != nil {
		f.metrics.Counter(MetricNodesExecuted).Inc()
	}
}

func (f *Flow) startSpan(ctx context.Context, key tracez.Key) (context.Context, *tracez.ActiveSpan) {
	if f.tracer == nil {
		return ctx, nil
	}
	return f.tracer.StartSpan(ctx, key)
}
