package flowcore

import (
	"context"
	"reflect"
)

// TypedActivity is the interface user code implements to participate in a
// flow as an Activity node's action. TResult is the type the activity's
// result thunk will carry.
//
// This is the "typed field handle... resolved at build time against the
// activity type's metadata" variant spec.md §9 calls for when targeting a
// language without reflection-based member access: activities read their
// inputs through Inputs.Get[T] rather than through a lambda
// member-access expression.
type TypedActivity[TResult any] interface {
	Run(ctx context.Context, in Inputs) (TResult, error)
}

// FaultHandlerActivity is the capability a FaultHandler node's activity
// type must implement (spec invariant 3): it accepts the triggering
// error's underlying cause as an additional argument.
type FaultHandlerActivity[TResult any] interface {
	TypedActivity[TResult]
	HandleFault(ctx context.Context, cause error, in Inputs) (TResult, error)
}

// ActivityRunner is the type-erased boundary the executor invokes. Every
// TypedActivity[T] is adapted to this shape when registered with a
// builder, so one flow's flat node store can hold activities of
// heterogeneous result types.
type ActivityRunner interface {
	run(ctx context.Context, in Inputs) (any, error)
}

type activityAdapter[TResult any] struct {
	inner TypedActivity[TResult]
}

func (a activityAdapter[TResult]) run(ctx context.Context, in Inputs) (any, error) {
	return a.inner.Run(ctx, in)
}

type faultHandlerAdapter[TResult any] struct {
	inner FaultHandlerActivity[TResult]
	cause error
}

func (a faultHandlerAdapter[TResult]) run(ctx context.Context, in Inputs) (any, error) {
	return a.inner.HandleFault(ctx, a.cause, in)
}

// ActivityToken identifies an activity's Go type for service container
// resolution (spec §4.F). It is a reflect.Type, cached the same way the
// teacher pack's typeName[T] helper caches reflection lookups to keep
// repeated instantiation off the hot path.
type ActivityToken = reflect.Type

// TokenOf returns the ActivityToken for activity type T.
func TokenOf[T any]() ActivityToken {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// ActivityFunc adapts a plain function to TypedActivity, for activities
// that don't need their own named type. This mirrors the teacher pack's
// Transform/Apply/Effect adapter functions, which wrap user closures as
// Chainable without requiring a dedicated struct per processing step.
type ActivityFunc[TResult any] func(ctx context.Context, in Inputs) (TResult, error)

// Run implements TypedActivity.
func (f ActivityFunc[TResult]) Run(ctx context.Context, in Inputs) (TResult, error) {
	return f(ctx, in)
}

// EffectFunc adapts a function with no result (only a possible error)
// into a TypedActivity[struct{}], for activities run purely for their
// side effects — the same role the teacher pack's Effect adapter plays
// for Chainable pipelines.
type EffectFunc func(ctx context.Context, in Inputs) error

// Run implements TypedActivity[struct{}].
func (f EffectFunc) Run(ctx context.Context, in Inputs) (struct{}, error) {
	return struct{}{}, f(ctx, in)
}
