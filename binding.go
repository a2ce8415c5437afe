package flowcore

import "context"

// BindingKind tags how a Binding resolves its value.
type BindingKind int

const (
	// BindConstant copies an eagerly-known value.
	BindConstant BindingKind = iota
	// BindResult reads the result of another activity once that
	// activity has completed.
	BindResult
	// BindExpression evaluates a zero-argument-at-call-site function at
	// binding resolution time; the function may read any thunks and
	// variables it declares in Reads.
	BindExpression
)

// ExprFunc is the shape of a binding expression: it may read result
// thunks and variables through the ExecContext it is given.
type ExprFunc func(ctx context.Context, ec *ExecContext) (any, error)

// Binding targets a named input property of an activity. It is tagged
// rather than generic over the property's type because one activity node
// carries a heterogeneous set of bindings (one per input property) in a
// single flat slice; type safety at the property is enforced at
// resolution time, against the value the activity's Inputs.Get[T] call
// expects.
type Binding struct {
	Property string
	Kind     BindingKind

	Constant any          // BindConstant
	Source   NodeID       // BindResult
	Expr     ExprFunc     // BindExpression
	Reads    []NodeID     // BindExpression: declared thunk read set for liveness validation
	VarReads []VariableID // BindExpression: declared variable read set for scope validation
}

// ToConstant creates a binding that copies an eagerly-known value into
// the named property.
func ToConstant(property string, value any) Binding {
	return Binding{Property: property, Kind: BindConstant, Constant: value}
}

// ToResultOf creates a binding that reads the result of another
// activity's node once that activity has completed. The validator's
// binding-liveness pass (spec §4.E.6) proves source precedes owner on
// every path that reaches owner.
func ToResultOf(property string, source NodeID) Binding {
	return Binding{Property: property, Kind: BindResult, Source: source}
}

// ToExpression creates a binding whose value is computed at resolution
// time by fn. reads must declare every result thunk fn may access, so the
// validator can run the same liveness proof it runs for ToResultOf
// bindings (spec §9: "expression bindings must declare their read set").
func ToExpression(property string, fn ExprFunc, reads ...NodeID) Binding {
	return Binding{Property: property, Kind: BindExpression, Expr: fn, Reads: reads}
}

// resolve computes the binding's value given the current execution
// context. Called by the executor immediately before an activity's action
// is invoked, for every binding declared on that activity's node.
func (b Binding) resolve(ctx context.Context, ec *ExecContext) (any, error) {
	switch b.Kind {
	case BindConstant:
		return b.Constant, nil
	case BindResult:
		cell, ok := ec.thunkCellFor(b.Source)
		if !ok {
			return nil, ErrResultNotReady
		}
		v, ready := cell.get()
		if !ready {
			return nil, ErrResultNotReady
		}
		return v, nil
	case BindExpression:
		return b.Expr(ctx, ec)
	default:
		return nil, ErrResultNotReady
	}
}

// Inputs is the property bag an activity reads its resolved bindings
// from. The executor populates one Inputs value per activity invocation
// by resolving every Binding declared on that activity's node.
type Inputs map[string]any

// Get reads a named property from Inputs with the expected type T. The
// validator's required-input pass (spec §4.E.5) proves every required
// property the activity's Inputs.Get call names has exactly one binding;
// a missing or mistyped property here indicates either an optional
// property that was never bound, or a validator gap.
func Get[T any](in Inputs, name string) (T, bool) {
	var zero T
	v, ok := in[name]
	if !ok {
		return zero, false
	}
	tv, ok := v.(T)
	return tv, ok
}

// MustGet is Get but returns the zero value silently on a type mismatch
// or missing property, for activities that only bind required properties
// (already proven present by the validator) and would rather not thread a
// second return value through every read.
func MustGet[T any](in Inputs, name string) T {
	v, _ := Get[T](in, name)
	return v
}
