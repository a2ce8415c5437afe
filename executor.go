package flowcore

import (
	"context"
	"fmt"
	"sync"
)

// executor walks a validated Flow's graph from its root node to
// completion against a concrete ServiceContainer. One executor serves
// exactly one Run call; all of its state is local to that run.
type executor struct {
	flow      *Flow
	container ServiceContainer
}

func newExecutor(flow *Flow, container ServiceContainer) *executor {
	return &executor{flow: flow, container: container}
}

func (ex *executor) run(ctx context.Context) RunResult {
	runToken := ex.flow.tokens.Generate()
	start := ex.flow.getClock().Now()
	ex.flow.emitRunStarted(ctx, runToken)

	ec := &ExecContext{thunks: make(map[NodeID]*thunkCell), vars: make(map[VariableID]*varCell)}
	ex.allocateVariables(ec, GlobalScope)

	ctx, span := ex.flow.startSpan(ctx, SpanRun)
	if span != nil {
		span.SetTag(TagFlowName, ex.flow.Name)
		defer span.Finish()
	}

	outcome, runErr := ex.traverse(ctx, ec, ex.flow.RootNodeID, false)
	if span != nil {
		span.SetTag(TagOutcome, outcome.String())
	}

	ex.flow.emitRunCompleted(ctx, runToken, outcome, runErr, ex.flow.getClock().Since(start))
	return RunResult{Outcome: outcome, Err: runErr}
}

func (ex *executor) allocateVariables(ec *ExecContext, scope Scope) {
	for id, decl := range ex.flow.Variables {
		if decl.Scope != scope {
			continue
		}
		cell := &varCell{}
		if decl.HasInitial {
			cell.assign(decl.Initial)
		}
		ec.setVarCell(id, cell)
	}
}

// traverse follows ordinary successor edges starting at start until it
// reaches a node with no further successor (the flow, or a block, runs
// to completion) or a node produces a non-Completed outcome. Flows that
// loop via ordinary sequential edges (spec §4.C: loops are permitted)
// simply revisit the same NodeID; traverse carries no per-node visited
// set, since a validated flow's loops are a construction choice, not a
// defect.
//
// inFork is true while traverse is following a fork-join child's own
// branch. It changes how an unhandled fault or cancellation resolves
// (see dispatchFault/dispatchCancellation): the branch settles raw
// instead of falling back to the flow's default handler inline, so the
// owning stepForkJoin can aggregate across all children before
// dispatching at most once (spec §4.H).
func (ex *executor) traverse(ctx context.Context, ec *ExecContext, start NodeID, inFork bool) (Outcome, error) {
	current := start
	for current != "" {
		node, ok := ex.flow.Nodes[current]
		if !ok {
			return OutcomeFaulted, fmt.Errorf("flowcore: node %q not found", current)
		}
		next, outcome, err := ex.step(ctx, ec, node, inFork)
		if outcome != OutcomeCompleted {
			return outcome, err
		}
		current = next
	}
	return OutcomeCompleted, nil
}

func (ex *executor) step(ctx context.Context, ec *ExecContext, node *Node, inFork bool) (NodeID, Outcome, error) {
	switch node.Kind {
	case KindActivity, KindFaultHandler:
		return ex.stepActivity(ctx, ec, node, nil, inFork)
	case KindCondition:
		return ex.stepCondition(ctx, ec, node, inFork)
	case KindSwitch:
		return ex.stepSwitch(ctx, ec, node, inFork)
	case KindForkJoin:
		return ex.stepForkJoin(ctx, ec, node, inFork)
	case KindBlock:
		return ex.stepBlock(ctx, ec, node, inFork)
	default:
		return "", OutcomeFaulted, fmt.Errorf("flowcore: node %q has unknown kind", node.ID)
	}
}

func (ex *executor) stepCondition(ctx context.Context, ec *ExecContext, node *Node, inFork bool) (NodeID, Outcome, error) {
	ok, err := node.Condition.Predicate(ctx, ec)
	if err != nil {
		return ex.dispatchEngineFault(ctx, ec, node.ID, err, inFork)
	}
	if ok {
		return node.Condition.TrueNext, OutcomeCompleted, nil
	}
	return node.Condition.FalseNext, OutcomeCompleted, nil
}

func (ex *executor) stepSwitch(ctx context.Context, ec *ExecContext, node *Node, inFork bool) (NodeID, Outcome, error) {
	key, err := node.Switch.Choice(ctx, ec)
	if err != nil {
		return ex.dispatchEngineFault(ctx, ec, node.ID, err, inFork)
	}
	if target, ok := node.Switch.Cases[key]; ok {
		return target, OutcomeCompleted, nil
	}
	if node.Switch.HasDefault {
		return node.Switch.Default, OutcomeCompleted, nil
	}
	// UnhandledCase is dispatched to the default fault handler, not the
	// enclosing activity's (spec §4.H); Condition/Switch nodes carry no
	// fault handler of their own to prefer over it.
	return ex.dispatchEngineFault(ctx, ec, node.ID, ErrUnhandledCase, inFork)
}

// dispatchEngineFault routes an engine-level runtime issue (a failed
// predicate/choice evaluation, an unmatched switch key) to the flow's
// default fault handler: spec §7 treats these "as faults originating at
// the current node," and Condition/Switch nodes have no fault handler of
// their own. Inside a fork-join child (inFork), dispatch is deferred to
// the fork-join's own aggregate settlement instead of running here.
func (ex *executor) dispatchEngineFault(ctx context.Context, ec *ExecContext, nodeID NodeID, cause error, inFork bool) (NodeID, Outcome, error) {
	ex.flow.emitNodeFaulted(ctx, nodeID, cause)
	if inFork {
		return "", OutcomeFaulted, cause
	}
	return ex.dispatchFaultTo(ctx, ec, ex.flow.DefaultFault, cause, inFork)
}

// stepActivity invokes node's activity. cause is nil for an ordinary
// activity invocation, and the triggering error for a fault or
// cancellation handler dispatch; both kinds of dispatch run through this
// same function since a FaultHandlerActivity serves both roles (spec.md
// §9 does not distinguish a separate cancellation-handler capability).
func (ex *executor) stepActivity(ctx context.Context, ec *ExecContext, node *Node, cause error, inFork bool) (NodeID, Outcome, error) {
	instance, err := ex.container.Resolve(node.Activity.Token)
	if err != nil {
		return ex.handleActivityFailure(ctx, ec, node, cause, err, inFork)
	}

	var runner ActivityRunner
	if cause != nil {
		runner, err = node.Activity.newFaultRunner(instance, cause)
	} else {
		runner, err = node.Activity.newRunner(instance)
	}
	if err != nil {
		return ex.handleActivityFailure(ctx, ec, node, cause, err, inFork)
	}

	inputs, err := ex.resolveInputs(ctx, ec, node)
	if err != nil {
		return ex.handleActivityFailure(ctx, ec, node, cause, err, inFork)
	}

	ex.flow.countNodeExecuted()
	spanCtx, span := ex.flow.startSpan(ctx, SpanNode)
	if span != nil {
		span.SetTag(TagNodeID, string(node.ID))
		defer span.Finish()
	}

	result, runErr := ex.invoke(spanCtx, runner, inputs, node.ID)
	if runErr != nil {
		return ex.handleActivityFailure(ctx, ec, node, cause, runErr, inFork)
	}

	cell := newThunkCell()
	cell.set(result)
	ec.setThunkCell(node.ID, cell)

	if err := ex.applyUpdates(ctx, ec, node, result); err != nil {
		return ex.handleActivityFailure(ctx, ec, node, cause, err, inFork)
	}

	if cause != nil {
		// node was itself a fault/cancellation handler dispatch. A handler
		// never resumes the flow past its own invocation (spec §7): the
		// run ends here regardless of any Next the handler node carries.
		return "", OutcomeCompleted, nil
	}
	return node.Activity.Next, OutcomeCompleted, nil
}

// handleActivityFailure classifies one activity invocation's failure and
// either dispatches the appropriate handler or terminates the run.
// cause being non-nil means node was already itself a handler dispatch:
// per spec, handler failures are never re-dispatched.
func (ex *executor) handleActivityFailure(ctx context.Context, ec *ExecContext, node *Node, cause, failErr error, inFork bool) (NodeID, Outcome, error) {
	if cause != nil {
		ex.flow.emitNodeFaulted(ctx, node.ID, failErr)
		return "", OutcomeHandlerFailed, fmt.Errorf("%w: %v", ErrHandlerFailed, failErr)
	}
	if ctx.Err() != nil {
		ex.flow.emitNodeCancelled(ctx, node.ID)
		return ex.dispatchCancellation(ctx, ec, node, inFork)
	}
	ex.flow.emitNodeFaulted(ctx, node.ID, failErr)
	return ex.dispatchFault(ctx, ec, node, failErr, inFork)
}

// dispatchFault resolves node's effective fault handler: its own, else
// the flow default. Inside a fork-join child (inFork), an absent own
// handler is not backfilled with the flow default here; the fault
// settles the branch raw and the owning stepForkJoin dispatches the flow
// default once, across all children, after they've all settled.
func (ex *executor) dispatchFault(ctx context.Context, ec *ExecContext, node *Node, cause error, inFork bool) (NodeID, Outcome, error) {
	handlerID := node.Activity.Fault
	if handlerID == "" && !inFork {
		handlerID = ex.flow.DefaultFault
	}
	return ex.dispatchFaultTo(ctx, ec, handlerID, cause, inFork)
}

// dispatchFaultTo invokes the handler at handlerID as the effective
// fault handler for cause. An empty handlerID hard-terminates the run
// with the raw cause (no handler resolved, or resolution deferred to a
// fork-join's aggregate dispatch).
func (ex *executor) dispatchFaultTo(ctx context.Context, ec *ExecContext, handlerID NodeID, cause error, inFork bool) (NodeID, Outcome, error) {
	if handlerID == "" {
		return "", OutcomeFaulted, cause
	}
	handler := ex.flow.Nodes[handlerID]
	return ex.stepActivity(ctx, ec, handler, cause, inFork)
}

// dispatchCancellation mirrors dispatchFault for cancellation.
func (ex *executor) dispatchCancellation(ctx context.Context, ec *ExecContext, node *Node, inFork bool) (NodeID, Outcome, error) {
	handlerID := node.Activity.Cancel
	if handlerID == "" && !inFork {
		handlerID = ex.flow.DefaultCancel
	}
	return ex.dispatchCancellationTo(ctx, ec, handlerID, ctx.Err(), inFork)
}

// dispatchCancellationTo mirrors dispatchFaultTo for cancellation. The
// handler learns of the cancellation through cause; it runs against a
// fresh, uncancelled context so it can perform its own cleanup/logging.
func (ex *executor) dispatchCancellationTo(ctx context.Context, ec *ExecContext, handlerID NodeID, cause error, inFork bool) (NodeID, Outcome, error) {
	if handlerID == "" {
		return "", OutcomeCancelled, cause
	}
	handler := ex.flow.Nodes[handlerID]
	return ex.stepActivity(context.Background(), ec, handler, cause, inFork)
}

// invoke runs runner against inputs, converting a panic into an *Error
// the same way recoverFromPanic does for the teacher pack's connectors.
func (ex *executor) invoke(ctx context.Context, runner ActivityRunner, inputs Inputs, id NodeID) (result any, err error) {
	start := ex.flow.getClock().Now()
	defer recoverFromPanic(&err, id, inputs, start)
	return runner.run(ctx, inputs)
}

func (ex *executor) resolveInputs(ctx context.Context, ec *ExecContext, node *Node) (Inputs, error) {
	in := make(Inputs, len(node.Activity.Bindings))
	for _, b := range node.Activity.Bindings {
		v, err := b.resolve(ctx, ec)
		if err != nil {
			return nil, err
		}
		in[b.Property] = v
	}
	return in, nil
}

func (ex *executor) applyUpdates(ctx context.Context, ec *ExecContext, node *Node, result any) error {
	for _, u := range node.Activity.Updates {
		cell, ok := ec.varCellFor(u.Variable)
		if !ok {
			return fmt.Errorf("%w: %q", ErrVariableUninitialized, u.Variable)
		}
		switch u.Op {
		case OpAssign:
			cell.assign(u.Value)
		case OpAssignResult:
			cell.assign(result)
		case OpUpdate:
			next, err := u.Fn(ctx, cell.value)
			if err != nil {
				return err
			}
			cell.assign(next)
		}
	}
	return nil
}

func (ex *executor) stepBlock(ctx context.Context, ec *ExecContext, node *Node, inFork bool) (NodeID, Outcome, error) {
	ex.allocateVariables(ec, BlockScope(node.ID))
	outcome, err := ex.traverse(ctx, ec, node.Block.Initial, inFork)
	for _, vid := range node.Block.Variables {
		ec.deleteVarCell(vid)
	}
	if outcome != OutcomeCompleted {
		return "", outcome, err
	}
	return node.Block.Next, OutcomeCompleted, nil
}

// stepForkJoin runs every child branch on its own goroutine against a
// shared ExecContext, linked to a single cancellable child context: the
// first branch to end in anything other than OutcomeCompleted cancels
// the rest (spec §5's "fault in one branch cancels its siblings"),
// mirroring the teacher pack's Concurrent connector's
// sync.WaitGroup-plus-error-aggregation shape.
//
// Each child traverses with inFork=true (see traverse), so an activity
// fault or cancellation with no handler declared on that specific node
// settles its branch raw instead of being absorbed locally by the flow
// default. Once every branch has settled, stepForkJoin aggregates: a
// branch whose own handler itself failed (OutcomeHandlerFailed) is
// terminal and propagates immediately; otherwise, if at least one branch
// faulted, the first such fault becomes the primary cause (the rest are
// suppressed) and is dispatched once to the fork-join's effective fault
// handler (spec §4.H) — which, since a ForkJoinNode declares no handler
// of its own, is always the flow default; if at least one branch was
// cancelled and none faulted, the same applies to the cancellation
// handler. Either dispatch ends the run there, exactly like any other
// handler invocation, never proceeding to Next. Only when every branch
// completed cleanly does the fork-join proceed to Next.
func (ex *executor) stepForkJoin(ctx context.Context, ec *ExecContext, node *Node, inFork bool) (NodeID, Outcome, error) {
	fj := node.ForkJoin
	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make([]Outcome, len(fj.Children))
	errs := make([]error, len(fj.Children))

	var wg sync.WaitGroup
	for i, child := range fj.Children {
		wg.Add(1)
		go func(i int, root NodeID) {
			defer wg.Done()
			o, err := ex.traverse(childCtx, ec, root, true)
			outcomes[i] = o
			errs[i] = err
			if o != OutcomeCompleted {
				cancel()
			}
		}(i, child.Root)
	}
	wg.Wait()

	var primaryFault, primaryCancel error
	for i, o := range outcomes {
		switch o {
		case OutcomeHandlerFailed:
			ex.flow.emitNodeFaulted(ctx, node.ID, errs[i])
			return "", o, errs[i]
		case OutcomeFaulted:
			if primaryFault == nil {
				primaryFault = errs[i]
			}
		case OutcomeCancelled:
			if primaryCancel == nil {
				primaryCancel = errs[i]
			}
		}
	}

	if primaryFault != nil {
		ex.flow.emitNodeFaulted(ctx, node.ID, primaryFault)
		handlerID := ex.flow.DefaultFault
		if inFork {
			handlerID = ""
		}
		return ex.dispatchFaultTo(ctx, ec, handlerID, primaryFault, inFork)
	}
	if primaryCancel != nil {
		ex.flow.emitNodeCancelled(ctx, node.ID)
		handlerID := ex.flow.DefaultCancel
		if inFork {
			handlerID = ""
		}
		return ex.dispatchCancellationTo(ctx, ec, handlerID, primaryCancel, inFork)
	}
	return fj.Next, OutcomeCompleted, nil
}
