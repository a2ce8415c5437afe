package flowcore

import "fmt"

// ValidationErrorCode is the closed set of structural and semantic
// problems the validator can report (spec §6).
type ValidationErrorCode string

const (
	CodeMissingInitialNode          ValidationErrorCode = "MissingInitialNode"
	CodeDanglingEdge                ValidationErrorCode = "DanglingEdge"
	CodeUnreachableNode             ValidationErrorCode = "UnreachableNode"
	CodeMissingFaultHandler         ValidationErrorCode = "MissingFaultHandler"
	CodeMissingCancellationHandler  ValidationErrorCode = "MissingCancellationHandler"
	CodeInvalidFaultHandlerType     ValidationErrorCode = "InvalidFaultHandlerType"
	CodeMissingRequiredInput        ValidationErrorCode = "MissingRequiredInput"
	CodeDuplicateBinding            ValidationErrorCode = "DuplicateBinding"
	CodeResultReadBeforeProducer    ValidationErrorCode = "ResultReadBeforeProducer"
	CodeNonDefaultedPartialSwitch   ValidationErrorCode = "NonDefaultedPartialSwitch"
	CodeForkJoinCycle               ValidationErrorCode = "ForkJoinCycle"
	CodeForkJoinEmpty               ValidationErrorCode = "ForkJoinEmpty"
	CodeVariableOutOfScope          ValidationErrorCode = "VariableOutOfScope"
	CodeParallelVariableWriteConflict ValidationErrorCode = "ParallelVariableWriteConflict"
)

// ValidationError describes one problem found by the validator, anchored
// to the node (and, where relevant, the property) it concerns.
type ValidationError struct {
	Code     ValidationErrorCode
	NodeID   NodeID
	Property string
	Message  string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("%s: node %q property %q: %s", e.Code, e.NodeID, e.Property, e.Message)
	}
	if e.NodeID != "" {
		return fmt.Sprintf("%s: node %q: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationResult is the outcome of running every validation pass over a
// flow under construction. A flow with any Errors cannot be built; Warnings
// never block Build.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors reports whether any blocking problem was found.
func (r ValidationResult) HasErrors() bool { return len(r.Errors) > 0 }

// validator runs the fixed sequence of passes described in spec §4.E
// against one buildState, accumulating errors and warnings.
type validator struct {
	st     *buildState
	result ValidationResult
}

func validate(st *buildState) ValidationResult {
	v := &validator{st: st}
	v.checkInitialNode()
	v.checkDanglingEdges()
	v.checkReachability()
	v.checkFaultAndCancellationHandlers()
	v.checkRequiredInputsAndDuplicateBindings()
	v.checkBindingLiveness()
	v.checkSwitchDefaults()
	v.checkForkJoinCycles()
	v.checkVariableScopingAndConflicts()
	return v.result
}

func (v *validator) fail(code ValidationErrorCode, id NodeID, property, msg string) {
	v.result.Errors = append(v.result.Errors, ValidationError{Code: code, NodeID: id, Property: property, Message: msg})
}

func (v *validator) warn(code ValidationErrorCode, id NodeID, msg string) {
	v.result.Warnings = append(v.result.Warnings, ValidationError{Code: code, NodeID: id, Message: msg})
}

// checkInitialNode is pass 1: the flow must designate a root node that
// exists in the node set.
func (v *validator) checkInitialNode() {
	if v.st.initial == "" {
		v.fail(CodeMissingInitialNode, "", "", "no initial node was designated")
		return
	}
	if _, ok := v.st.nodes[v.st.initial]; !ok {
		v.fail(CodeMissingInitialNode, v.st.initial, "", "designated initial node does not exist")
	}
}

// successors returns every NodeID an edge on n points at, paired with a
// human label for error messages, without requiring the target to exist.
func successors(n *Node) []struct {
	label  string
	target NodeID
} {
	var out []struct {
		label  string
		target NodeID
	}
	add := func(label string, target NodeID) {
		if target != "" {
			out = append(out, struct {
				label  string
				target NodeID
			}{label, target})
		}
	}
	switch n.Kind {
	case KindActivity, KindFaultHandler:
		add("next", n.Activity.Next)
		add("fault", n.Activity.Fault)
		add("cancel", n.Activity.Cancel)
	case KindCondition:
		add("true", n.Condition.TrueNext)
		add("false", n.Condition.FalseNext)
	case KindSwitch:
		for k, t := range n.Switch.Cases {
			add("case("+k+")", t)
		}
		if n.Switch.HasDefault {
			add("default", n.Switch.Default)
		}
	case KindForkJoin:
		for _, c := range n.ForkJoin.Children {
			add("fork_"+c.Name, c.Root)
		}
		add("join", n.ForkJoin.Next)
	case KindBlock:
		add("block_entry", n.Block.Initial)
		add("next", n.Block.Next)
	}
	return out
}

// checkDanglingEdges is pass 2: every edge must target a node that exists
// in the flat node set (block-local edges included, since all nodes share
// one namespace).
func (v *validator) checkDanglingEdges() {
	for _, id := range v.st.order {
		n := v.st.nodes[id]
		for _, s := range successors(n) {
			if _, ok := v.st.nodes[s.target]; !ok {
				v.fail(CodeDanglingEdge, id, "", fmt.Sprintf("%s edge targets unknown node %q", s.label, s.target))
			}
		}
	}
}

// checkReachability is pass 3: every node should be reachable from the
// initial node by forward traversal (counting fork-join children and
// block entries as reachable from their owner). Unreachable nodes are a
// warning, not a build-blocking error, since a flow under incremental
// construction may temporarily contain orphaned scaffolding.
func (v *validator) checkReachability() {
	if v.st.initial == "" {
		return
	}
	seen := map[NodeID]bool{}
	var stack []NodeID
	stack = append(stack, v.st.initial)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		n, ok := v.st.nodes[id]
		if !ok {
			continue
		}
		seen[id] = true
		for _, s := range successors(n) {
			if !seen[s.target] {
				stack = append(stack, s.target)
			}
		}
	}
	for _, id := range v.st.order {
		if !seen[id] {
			v.warn(CodeUnreachableNode, id, "node is not reachable from the initial node")
		}
	}
}

// effectiveFaultHandler resolves the handler an activity's fault would
// dispatch to: its own Fault edge, else the flow's default.
func (v *validator) effectiveFaultHandler(n *Node) NodeID {
	if n.Activity.Fault != "" {
		return n.Activity.Fault
	}
	return v.st.defaultFault
}

func (v *validator) effectiveCancellationHandler(n *Node) NodeID {
	if n.Activity.Cancel != "" {
		return n.Activity.Cancel
	}
	return v.st.defaultCancel
}

// checkFaultAndCancellationHandlers is pass 4: every reachable activity
// must resolve to an effective fault handler and an effective
// cancellation handler (its own, or the flow default), and any node named
// as a fault handler must actually be built from a FaultHandlerActivity
// (spec invariant 3).
func (v *validator) checkFaultAndCancellationHandlers() {
	for _, id := range v.st.order {
		n := v.st.nodes[id]
		if n.Kind != KindActivity {
			continue
		}
		if v.effectiveFaultHandler(n) == "" {
			v.fail(CodeMissingFaultHandler, id, "", "activity has no own or default fault handler")
		} else {
			target := v.effectiveFaultHandler(n)
			if tn, ok := v.st.nodes[target]; ok && tn.Kind != KindFaultHandler {
				v.fail(CodeInvalidFaultHandlerType, id, "", fmt.Sprintf("fault handler %q is not a FaultHandler node", target))
			}
		}
		if v.effectiveCancellationHandler(n) == "" {
			v.fail(CodeMissingCancellationHandler, id, "", "activity has no own or default cancellation handler")
		}
	}
}

// checkRequiredInputsAndDuplicateBindings is pass 5: every name in an
// activity's RequiredInputs must have exactly one binding, and no
// property may carry more than one binding regardless of whether it is
// required (duplicate bindings are rejected at build time per the builder,
// but are re-checked here in case a caller constructs a Node outside the
// builder's own append-only append path).
func (v *validator) checkRequiredInputsAndDuplicateBindings() {
	for _, id := range v.st.order {
		n := v.st.nodes[id]
		if n.Activity == nil {
			continue
		}
		seen := map[string]int{}
		for _, b := range n.Activity.Bindings {
			seen[b.Property]++
		}
		for prop, count := range seen {
			if count > 1 {
				v.fail(CodeDuplicateBinding, id, prop, fmt.Sprintf("property is bound %d times", count))
			}
		}
		for _, req := range n.Activity.RequiredInputs {
			if seen[req] == 0 {
				v.fail(CodeMissingRequiredInput, id, req, "required input has no binding")
			}
		}
	}
}

// checkBindingLiveness is pass 6: every ToResultOf binding's source, and
// every ToExpression binding's declared Reads, must be an activity that
// precedes the owner on every path that reaches the owner. We approximate
// "precedes on every path" with a forward reachability check from the
// initial node: merely requiring that source reach owner would be wrong
// (that would permit reading a future result); instead we require that
// owner is NOT reachable from the initial node without passing through
// source. A flow that binds a result
// no predecessor can guarantee has already run is rejected.
func (v *validator) checkBindingLiveness() {
	if v.st.initial == "" {
		return
	}
	for _, id := range v.st.order {
		n := v.st.nodes[id]
		if n.Activity == nil {
			continue
		}
		for _, b := range n.Activity.Bindings {
			switch b.Kind {
			case BindResult:
				v.requireDominates(b.Source, id, id, b.Property)
			case BindExpression:
				for _, src := range b.Reads {
					v.requireDominates(src, id, id, b.Property)
				}
			}
		}
	}
}

// requireDominates fails with CodeResultReadBeforeProducer unless every
// path from the flow's initial node to owner passes through producer
// first. It computes reachability to owner in the graph with producer's
// outgoing edges removed; if owner is still reachable, some path bypasses
// producer entirely.
func (v *validator) requireDominates(producer, owner, anchor NodeID, property string) {
	if _, ok := v.st.nodes[producer]; !ok {
		return // already reported as a dangling edge
	}
	seen := map[NodeID]bool{}
	var stack []NodeID
	stack = append(stack, v.st.initial)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		if id == owner && id != producer {
			v.fail(CodeResultReadBeforeProducer, anchor, property, fmt.Sprintf("reads result of %q without %q guaranteed to precede it on every path", producer, producer))
			return
		}
		if id == producer {
			continue // don't expand past the producer on this branch
		}
		n, ok := v.st.nodes[id]
		if !ok {
			continue
		}
		for _, s := range successors(n) {
			if !seen[s.target] {
				stack = append(stack, s.target)
			}
		}
	}
}

// checkSwitchDefaults is pass 7: a switch with no default branch and no
// explicit AllowPartialCoverage opt-out must be treated as invalid, since
// an unmatched key would otherwise surface as a runtime UnhandledCase
// fault the author never decided to accept.
func (v *validator) checkSwitchDefaults() {
	for _, id := range v.st.order {
		n := v.st.nodes[id]
		if n.Kind != KindSwitch {
			continue
		}
		if !n.Switch.HasDefault && !n.Switch.AllowPartial {
			v.fail(CodeNonDefaultedPartialSwitch, id, "", "switch has no default branch and AllowPartialCoverage was not called")
		}
	}
}

// checkForkJoinCycles is pass 8: no fork-join child's reachable subgraph
// may loop back into the same fork-join node (spec invariant 7).
func (v *validator) checkForkJoinCycles() {
	for _, id := range v.st.order {
		n := v.st.nodes[id]
		if n.Kind != KindForkJoin {
			continue
		}
		if len(n.ForkJoin.Children) == 0 {
			v.fail(CodeForkJoinEmpty, id, "", "fork-join declares no children")
			continue
		}
		for _, child := range n.ForkJoin.Children {
			seen := map[NodeID]bool{}
			var stack []NodeID
			stack = append(stack, child.Root)
			for len(stack) > 0 {
				cur := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if seen[cur] {
					continue
				}
				seen[cur] = true
				if cur == id {
					v.fail(CodeForkJoinCycle, id, "", fmt.Sprintf("child %q loops back into its own fork-join", child.Name))
					break
				}
				cn, ok := v.st.nodes[cur]
				if !ok {
					continue
				}
				for _, s := range successors(cn) {
					if !seen[s.target] {
						stack = append(stack, s.target)
					}
				}
			}
		}
	}
}

// checkVariableScopingAndConflicts is pass 9: every UpdateAction and
// every expression binding's declared variable read must target a
// variable visible from its trigger node's scope (global variables are
// visible everywhere; block variables only within their own block), and
// two fork-join siblings must not both declare an update for the same
// variable (spec §4.E.9) — a race the executor cannot resolve
// deterministically.
func (v *validator) checkVariableScopingAndConflicts() {
	for _, id := range v.st.order {
		n := v.st.nodes[id]
		if n.Activity == nil {
			continue
		}
		for _, u := range n.Activity.Updates {
			v.checkVariableInScope(id, n, u.Variable, "update")
		}
		for _, bnd := range n.Activity.Bindings {
			if bnd.Kind != BindExpression {
				continue
			}
			for _, vid := range bnd.VarReads {
				v.checkVariableInScope(id, n, vid, "expression read")
			}
		}
	}

	for _, id := range v.st.order {
		n := v.st.nodes[id]
		if n.Kind != KindForkJoin {
			continue
		}
		writesBySibling := map[string]map[VariableID]bool{}
		for _, child := range n.ForkJoin.Children {
			writes := map[VariableID]bool{}
			v.collectWrites(child.Root, id, writes, map[NodeID]bool{})
			writesBySibling[child.Name] = writes
		}
		names := n.ForkJoin.Children
		for i := 0; i < len(names); i++ {
			for j := i + 1; j < len(names); j++ {
				for varID := range writesBySibling[names[i].Name] {
					if writesBySibling[names[j].Name][varID] {
						v.fail(CodeParallelVariableWriteConflict, id, string(varID),
							fmt.Sprintf("siblings %q and %q both update this variable", names[i].Name, names[j].Name))
					}
				}
			}
		}
	}
}

// checkVariableInScope is shared by UpdateAction targets and declared
// expression-binding variable reads: both name a VariableID that must
// resolve to a declared variable visible from n's scope.
func (v *validator) checkVariableInScope(id NodeID, n *Node, varID VariableID, kind string) {
	decl, ok := v.st.variables[varID]
	if !ok {
		v.fail(CodeVariableOutOfScope, id, string(varID), fmt.Sprintf("%s targets an undeclared variable", kind))
		return
	}
	if decl.Scope.Kind == ScopeBlock && decl.Scope != n.ParentScope {
		v.fail(CodeVariableOutOfScope, id, string(varID), fmt.Sprintf("variable is scoped to block %q, not visible here", decl.Scope.BlockID))
	}
}

// collectWrites walks a fork-join child's reachable subgraph (stopping at
// the owning fork-join's own id, which is where the branch rejoins) and
// records every variable it updates.
func (v *validator) collectWrites(start, stopAt NodeID, writes map[VariableID]bool, seen map[NodeID]bool) {
	if seen[start] || start == stopAt {
		return
	}
	seen[start] = true
	n, ok := v.st.nodes[start]
	if !ok {
		return
	}
	if n.Activity != nil {
		for _, u := range n.Activity.Updates {
			writes[u.Variable] = true
		}
	}
	for _, s := range successors(n) {
		v.collectWrites(s.target, stopAt, writes, seen)
	}
}
