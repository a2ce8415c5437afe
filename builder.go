package flowcore

import (
	"context"
	"fmt"
)

// Identified is implemented by every node handle the builder returns,
// letting edge-wiring and binding methods accept a handle directly
// instead of forcing callers to unwrap an id. VariableHandle does not
// implement it: its ID returns a VariableID.
type Identified interface {
	ID() NodeID
}

// buildState holds the graph under construction. It is shared by
// reference between a Builder and every inner Builder its Block calls
// create, so a block's nodes and variables land in the same flat store
// as the rest of the flow, tagged with the block's scope.
type buildState struct {
	name          string
	nodes         map[NodeID]*Node
	order         []NodeID
	variables     map[VariableID]*VariableDecl
	initial       NodeID
	defaultFault  NodeID
	defaultCancel NodeID
}

// Builder is the fluent, write-only construction API for a Flow (spec
// §4.D). Reading the constructed graph requires a successful Build.
type Builder struct {
	st           *buildState
	scope        Scope
	localInitial NodeID // entry node for this scope, when scope is block-local
}

// NewBuilder creates a builder for a new flow named name.
func NewBuilder(name string) *Builder {
	return &Builder{
		st: &buildState{
			name:      name,
			nodes:     make(map[NodeID]*Node),
			variables: make(map[VariableID]*VariableDecl),
		},
		scope: GlobalScope,
	}
}

func (b *Builder) addNode(n *Node) {
	if _, exists := b.st.nodes[n.ID]; exists {
		panic(fmt.Sprintf("flowcore: duplicate node id %q", n.ID))
	}
	b.st.nodes[n.ID] = n
	b.st.order = append(b.st.order, n.ID)
}

func (b *Builder) mustNode(id NodeID) *Node {
	n, ok := b.st.nodes[id]
	if !ok {
		panic(fmt.Sprintf("flowcore: unknown node id %q", id))
	}
	return n
}

// WithInitialNode designates id as the entry point: the flow's root node
// when called on the top-level builder, or the block's inner entry node
// when called inside a Block's build function.
func (b *Builder) WithInitialNode(n Identified) *Builder {
	if b.scope.Kind == ScopeGlobal {
		b.st.initial = n.ID()
	} else {
		b.localInitial = n.ID()
	}
	return b
}

// WithDefaultFaultHandler designates the flow-wide fault handler used by
// any reachable activity that declares no fault successor of its own.
func (b *Builder) WithDefaultFaultHandler(h Identified) *Builder {
	b.st.defaultFault = h.ID()
	return b
}

// WithDefaultCancellationHandler designates the flow-wide cancellation
// handler used by any reachable activity that declares no cancellation
// successor of its own.
func (b *Builder) WithDefaultCancellationHandler(h Identified) *Builder {
	b.st.defaultCancel = h.ID()
	return b
}

// ActivityHandle is the fluent handle returned for an Activity node.
type ActivityHandle[TResult any] struct {
	b  *Builder
	id NodeID
}

// ID implements Identified.
func (h *ActivityHandle[TResult]) ID() NodeID { return h.id }

func (h *ActivityHandle[TResult]) setSuccessor(which string, target NodeID) *ActivityHandle[TResult] {
	act := h.b.mustNode(h.id).Activity
	switch which {
	case "next":
		if act.Next != "" {
			panic(fmt.Sprintf("flowcore: node %q already has a next edge", h.id))
		}
		act.Next = target
	case "fault":
		if act.Fault != "" {
			panic(fmt.Sprintf("flowcore: node %q already has a fault edge", h.id))
		}
		act.Fault = target
	case "cancel":
		if act.Cancel != "" {
			panic(fmt.Sprintf("flowcore: node %q already has a cancel edge", h.id))
		}
		act.Cancel = target
	}
	h.b.mustNode(target).Incoming++
	return h
}

// ConnectTo wires this activity's successor on success.
func (h *ActivityHandle[TResult]) ConnectTo(next Identified) *ActivityHandle[TResult] {
	return h.setSuccessor("next", next.ID())
}

// ConnectFaultTo wires this activity's own fault handler, taking
// precedence over the flow's default fault handler.
func (h *ActivityHandle[TResult]) ConnectFaultTo(handler Identified) *ActivityHandle[TResult] {
	return h.setSuccessor("fault", handler.ID())
}

// ConnectCancellationTo wires this activity's own cancellation handler.
func (h *ActivityHandle[TResult]) ConnectCancellationTo(handler Identified) *ActivityHandle[TResult] {
	return h.setSuccessor("cancel", handler.ID())
}

// AddActivity declares a new Activity node of type TAct producing
// TResult. required names the input properties the validator must prove
// have exactly one binding (spec §4.E.5); this replaces the source
// system's [Required] attribute with an explicit declaration, per
// spec.md §9.
func AddActivity[TResult any, TAct TypedActivity[TResult]](b *Builder, id NodeID, name string, required ...string) *ActivityHandle[TResult] {
	newRunner := func(instance any) (ActivityRunner, error) {
		act, ok := instance.(TAct)
		if !ok {
			return nil, fmt.Errorf("%w: activity instance does not implement the registered type", ErrActivityInstantiation)
		}
		return activityAdapter[TResult]{inner: act}, nil
	}
	node := &Node{
		ID: id, Name: name, Kind: KindActivity, ParentScope: b.scope,
		Activity: &ActivityNode{Token: TokenOf[TAct](), RequiredInputs: required, newRunner: newRunner},
	}
	b.addNode(node)
	return &ActivityHandle[TResult]{b: b, id: id}
}

// AddFaultHandler declares a FaultHandler node (spec invariant 3: its
// activity type must implement FaultHandlerActivity).
func AddFaultHandler[TResult any, TAct FaultHandlerActivity[TResult]](b *Builder, id NodeID, name string, required ...string) *ActivityHandle[TResult] {
	newRunner := func(instance any) (ActivityRunner, error) {
		act, ok := instance.(TAct)
		if !ok {
			return nil, fmt.Errorf("%w: activity instance does not implement the registered type", ErrActivityInstantiation)
		}
		return activityAdapter[TResult]{inner: act}, nil
	}
	newFaultRunner := func(instance any, cause error) (ActivityRunner, error) {
		act, ok := instance.(TAct)
		if !ok {
			return nil, fmt.Errorf("%w: activity instance does not implement FaultHandlerActivity", ErrActivityInstantiation)
		}
		return faultHandlerAdapter[TResult]{inner: act, cause: cause}, nil
	}
	node := &Node{
		ID: id, Name: name, Kind: KindFaultHandler, ParentScope: b.scope,
		Activity: &ActivityNode{
			Token: TokenOf[TAct](), RequiredInputs: required, IsFaultHandler: true,
			newRunner: newRunner, newFaultRunner: newFaultRunner,
		},
	}
	b.addNode(node)
	return &ActivityHandle[TResult]{b: b, id: id}
}

// BindingBuilder is the fluent continuation of Builder.Bind.
type BindingBuilder struct {
	b        *Builder
	owner    NodeID
	property string
}

// Bind starts a binding declaration for the named input property of
// owner (an Activity or FaultHandler node).
func (b *Builder) Bind(owner Identified, property string) *BindingBuilder {
	return &BindingBuilder{b: b, owner: owner.ID(), property: property}
}

func (bb *BindingBuilder) append(binding Binding) {
	node := bb.b.mustNode(bb.owner)
	if node.Activity == nil {
		panic(fmt.Sprintf("flowcore: node %q is not an activity, cannot bind inputs", bb.owner))
	}
	for _, existing := range node.Activity.Bindings {
		if existing.Property == binding.Property {
			panic(fmt.Sprintf("flowcore: property %q on node %q is already bound", binding.Property, bb.owner))
		}
	}
	node.Activity.Bindings = append(node.Activity.Bindings, binding)
}

// ToConstant binds the property to an eagerly-known value.
func (bb *BindingBuilder) ToConstant(value any) {
	bb.append(ToConstant(bb.property, value))
}

// ToResultOf binds the property to another activity's result.
func (bb *BindingBuilder) ToResultOf(source Identified) {
	bb.append(ToResultOf(bb.property, source.ID()))
}

// ToExpression binds the property to the value fn computes at resolution
// time. reads must name every activity result fn may access.
func (bb *BindingBuilder) ToExpression(fn ExprFunc, reads ...Identified) {
	ids := make([]NodeID, len(reads))
	for i, r := range reads {
		ids[i] = r.ID()
	}
	bb.append(ToExpression(bb.property, fn, ids...))
}

// ToExpressionVars is ToExpression plus an explicit declaration of every
// variable fn reads through VariableValue. The validator's scoping pass
// (spec §4.E.9) checks varReads for visibility from the binding's owner
// node the same way it already checks UpdateAction targets; an
// expression that reads a variable without declaring it here escapes
// that check.
func (bb *BindingBuilder) ToExpressionVars(fn ExprFunc, varReads []VariableID, reads ...Identified) {
	ids := make([]NodeID, len(reads))
	for i, r := range reads {
		ids[i] = r.ID()
	}
	binding := ToExpression(bb.property, fn, ids...)
	binding.VarReads = varReads
	bb.append(binding)
}

// ConditionHandle is the fluent handle for a Condition node.
type ConditionHandle struct {
	b  *Builder
	id NodeID
}

// ID implements Identified.
func (h *ConditionHandle) ID() NodeID { return h.id }

// AddCondition declares a Condition node: a nullary boolean predicate
// with true/false successors.
func (b *Builder) AddCondition(id NodeID, name string, predicate func(ctx context.Context, ec *ExecContext) (bool, error)) *ConditionHandle {
	node := &Node{ID: id, Name: name, Kind: KindCondition, ParentScope: b.scope, Condition: &ConditionNode{Predicate: predicate}}
	b.addNode(node)
	return &ConditionHandle{b: b, id: id}
}

// ConnectTrueTo wires the successor taken when the predicate is true.
func (h *ConditionHandle) ConnectTrueTo(n Identified) *ConditionHandle {
	cond := h.b.mustNode(h.id).Condition
	if cond.TrueNext != "" {
		panic(fmt.Sprintf("flowcore: condition %q already has a true edge", h.id))
	}
	cond.TrueNext = n.ID()
	h.b.mustNode(n.ID()).Incoming++
	return h
}

// ConnectFalseTo wires the successor taken when the predicate is false.
func (h *ConditionHandle) ConnectFalseTo(n Identified) *ConditionHandle {
	cond := h.b.mustNode(h.id).Condition
	if cond.FalseNext != "" {
		panic(fmt.Sprintf("flowcore: condition %q already has a false edge", h.id))
	}
	cond.FalseNext = n.ID()
	h.b.mustNode(n.ID()).Incoming++
	return h
}

// SwitchHandle is the fluent handle for a Switch node keyed by TKey.
type SwitchHandle[TKey comparable] struct {
	b  *Builder
	id NodeID
}

// ID implements Identified.
func (h *SwitchHandle[TKey]) ID() NodeID { return h.id }

// AddSwitch declares a Switch node: a choice expression returning a key
// of type TKey, routed to a successor by key equality.
func AddSwitch[TKey comparable](b *Builder, id NodeID, name string, choice func(ctx context.Context, ec *ExecContext) (TKey, error)) *SwitchHandle[TKey] {
	wrapped := func(ctx context.Context, ec *ExecContext) (string, error) {
		k, err := choice(ctx, ec)
		if err != nil {
			var zero string
			return zero, err
		}
		return fmt.Sprint(k), nil
	}
	node := &Node{ID: id, Name: name, Kind: KindSwitch, ParentScope: b.scope, Switch: &SwitchNode{Choice: wrapped, Cases: make(map[string]NodeID)}}
	b.addNode(node)
	return &SwitchHandle[TKey]{b: b, id: id}
}

// ConnectCase wires the successor for one key value. If key was already
// mapped, the new successor silently replaces it — the source behavior
// for a colliding case was undocumented (spec.md §9 Open Questions); we
// pick ordinary last-write-wins map-assignment semantics rather than
// raising a build-time error, since a builder call reassigning a route
// is indistinguishable from an intentional override.
func (h *SwitchHandle[TKey]) ConnectCase(key TKey, n Identified) *SwitchHandle[TKey] {
	sw := h.b.mustNode(h.id).Switch
	sw.Cases[fmt.Sprint(key)] = n.ID()
	h.b.mustNode(n.ID()).Incoming++
	return h
}

// ConnectDefault wires the successor used when no case matches.
func (h *SwitchHandle[TKey]) ConnectDefault(n Identified) *SwitchHandle[TKey] {
	sw := h.b.mustNode(h.id).Switch
	if sw.HasDefault {
		panic(fmt.Sprintf("flowcore: switch %q already has a default edge", h.id))
	}
	sw.Default = n.ID()
	sw.HasDefault = true
	h.b.mustNode(n.ID()).Incoming++
	return h
}

// AllowPartialCoverage opts this switch out of the validator's
// default-required rule (spec §4.E.7), for flows that accept
// UnhandledCase as a legitimate runtime fault.
func (h *SwitchHandle[TKey]) AllowPartialCoverage() *SwitchHandle[TKey] {
	h.b.mustNode(h.id).Switch.AllowPartial = true
	return h
}

// ForkJoinHandle is the fluent handle for a ForkJoin node.
type ForkJoinHandle struct {
	b  *Builder
	id NodeID
}

// ID implements Identified.
func (h *ForkJoinHandle) ID() NodeID { return h.id }

// ForkJoin declares a new ForkJoin node with no children yet; append
// branches with AddChild in call order.
func (b *Builder) ForkJoin(id NodeID, name string) *ForkJoinHandle {
	node := &Node{ID: id, Name: name, Kind: KindForkJoin, ParentScope: b.scope, ForkJoin: &ForkJoinNode{}}
	b.addNode(node)
	return &ForkJoinHandle{b: b, id: id}
}

// AddChild appends a branch rooted at the given activity node. Children
// are launched in parallel and must be mutually independent: the
// validator rejects a child whose reachable successors loop back into
// this same fork-join (spec invariant 7) and rejects overlapping
// variable writes across siblings (spec §4.E.9).
func (h *ForkJoinHandle) AddChild(name string, root Identified) *ForkJoinHandle {
	fj := h.b.mustNode(h.id).ForkJoin
	fj.Children = append(fj.Children, ForkChild{Name: name, Root: root.ID()})
	h.b.mustNode(root.ID()).Incoming++
	return h
}

// ConnectTo wires the successor taken after every branch has settled.
func (h *ForkJoinHandle) ConnectTo(next Identified) *ForkJoinHandle {
	fj := h.b.mustNode(h.id).ForkJoin
	if fj.Next != "" {
		panic(fmt.Sprintf("flowcore: fork-join %q already has a next edge", h.id))
	}
	fj.Next = next.ID()
	h.b.mustNode(next.ID()).Incoming++
	return h
}

// BlockHandle is the fluent handle for a Block node.
type BlockHandle struct {
	b  *Builder
	id NodeID
}

// ID implements Identified.
func (h *BlockHandle) ID() NodeID { return h.id }

// ConnectTo wires the successor taken on block exit.
func (h *BlockHandle) ConnectTo(next Identified) *BlockHandle {
	blk := h.b.mustNode(h.id).Block
	if blk.Next != "" {
		panic(fmt.Sprintf("flowcore: block %q already has a next edge", h.id))
	}
	blk.Next = next.ID()
	h.b.mustNode(next.ID()).Incoming++
	return h
}

// Block declares a named sub-scope with its own nodes and variables.
// build receives an inner Builder over the block's private scope; call
// WithInitialNode on it to designate the block's entry node. Variables
// declared through the inner builder are destroyed on block exit.
func (b *Builder) Block(id NodeID, name string, build func(inner *Builder)) *BlockHandle {
	inner := &Builder{st: b.st, scope: BlockScope(id)}
	build(inner)
	scope := BlockScope(id)
	var vars []VariableID
	for vid, decl := range b.st.variables {
		if decl.Scope == scope {
			vars = append(vars, vid)
		}
	}
	node := &Node{
		ID: id, Name: name, Kind: KindBlock, ParentScope: b.scope,
		Block: &BlockNode{Initial: inner.localInitial, Variables: vars},
	}
	b.addNode(node)
	return &BlockHandle{b: b, id: id}
}

// VariableHandle is the fluent handle for a Variable declaration.
type VariableHandle[T any] struct {
	b  *Builder
	id VariableID
}

// ID returns the variable's identity.
func (h *VariableHandle[T]) ID() VariableID { return h.id }

// DeclareVariable declares a Variable[T] in the calling builder's current
// scope (flow-wide at the top level, block-local inside a Block build
// function). initial, if given, is the variable's value before any
// update action has run.
func DeclareVariable[T any](b *Builder, id VariableID, initial ...T) *VariableHandle[T] {
	decl := &VariableDecl{ID: id, Scope: b.scope}
	if len(initial) > 0 {
		decl.HasInitial = true
		decl.Initial = initial[0]
	}
	b.st.variables[id] = decl
	return &VariableHandle[T]{b: b, id: id}
}

// UpdateBuilder is the fluent continuation of VariableHandle.AfterCompletionOf.
type UpdateBuilder[T any] struct {
	b       *Builder
	varID   VariableID
	trigger NodeID
}

// AfterCompletionOf starts declaring an update triggered by act's
// successful completion. Multiple updates declared for the same trigger
// run in declaration order (spec §4.A); their target variables must be
// disjoint across distinct parallel fork-join siblings (spec §4.E.9).
func (h *VariableHandle[T]) AfterCompletionOf(act Identified) *UpdateBuilder[T] {
	return &UpdateBuilder[T]{b: h.b, varID: h.id, trigger: act.ID()}
}

func (u *UpdateBuilder[T]) append(action UpdateAction) {
	node := u.b.mustNode(u.trigger)
	if node.Activity == nil {
		panic(fmt.Sprintf("flowcore: node %q is not an activity, cannot trigger a variable update", u.trigger))
	}
	node.Activity.Updates = append(node.Activity.Updates, action)
}

// Assign sets the variable to a fixed value.
func (u *UpdateBuilder[T]) Assign(v T) {
	u.append(UpdateAction{Variable: u.varID, Trigger: u.trigger, Op: OpAssign, Value: v})
}

// AssignResult copies the trigger activity's own result into the
// variable. The caller is responsible for matching T to the trigger
// activity's TResult; a mismatch surfaces as ErrVariableUninitialized on
// read, since the stored value fails the type assertion.
func (u *UpdateBuilder[T]) AssignResult() {
	u.append(UpdateAction{Variable: u.varID, Trigger: u.trigger, Op: OpAssignResult})
}

// Update applies fn to the variable's current value.
func (u *UpdateBuilder[T]) Update(fn func(ctx context.Context, current T) (T, error)) {
	wrapped := func(ctx context.Context, cur any) (any, error) {
		var typed T
		if cur != nil {
			if tv, ok := cur.(T); ok {
				typed = tv
			}
		}
		return fn(ctx, typed)
	}
	u.append(UpdateAction{Variable: u.varID, Trigger: u.trigger, Op: OpUpdate, Fn: wrapped})
}

// BindToResultOf is sugar for AfterCompletionOf(act).AssignResult().
func (h *VariableHandle[T]) BindToResultOf(act Identified) {
	h.AfterCompletionOf(act).AssignResult()
}

// Build runs every validation pass (spec §4.E) against the graph and, if
// no blocking error was found, returns an immutable Flow ready to Run.
// When validation fails, the returned Flow is nil and the caller must
// inspect ValidationResult.Errors; Build never panics on a semantic
// problem, only on the programmer-error conditions the fluent methods
// already guard (duplicate node ids, double-set edges, unbound helpers).
func (b *Builder) Build() (*Flow, ValidationResult) {
	vr := validate(b.st)
	if vr.HasErrors() {
		return nil, vr
	}
	return &Flow{
		Name:          b.st.name,
		RootNodeID:    b.st.initial,
		Nodes:         b.st.nodes,
		NodeOrder:     b.st.order,
		Variables:     b.st.variables,
		DefaultFault:  b.st.defaultFault,
		DefaultCancel: b.st.defaultCancel,
	}, vr
}
