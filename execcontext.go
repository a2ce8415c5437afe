package flowcore

import "sync"

// ExecContext is the read surface passed to condition predicates, switch
// choice functions, and expression bindings while a flow is running. It
// exposes exactly the result thunks and variables the validator has
// proven are live at the call site; reading anything else is a
// programmer error the validator is supposed to catch at build time (see
// Validator pass 6, "binding liveness").
//
// mu guards the thunks and vars maps themselves (insertion of a new
// node's cell, allocation of a block's variables on entry, deletion on
// exit) — concurrent map writes race in Go even across distinct keys,
// which fork-join branches otherwise produce concurrently. The
// individual cells add their own finer-grained synchronization on top
// (thunkCell) or rely on the validator's no-parallel-write proof
// (varCell).
type ExecContext struct {
	mu     sync.RWMutex
	thunks map[NodeID]*thunkCell
	vars   map[VariableID]*varCell
}

func (ec *ExecContext) thunkCellFor(id NodeID) (*thunkCell, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	c, ok := ec.thunks[id]
	return c, ok
}

func (ec *ExecContext) setThunkCell(id NodeID, c *thunkCell) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.thunks[id] = c
}

func (ec *ExecContext) varCellFor(id VariableID) (*varCell, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	c, ok := ec.vars[id]
	return c, ok
}

func (ec *ExecContext) setVarCell(id VariableID, c *varCell) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.vars[id] = c
}

func (ec *ExecContext) deleteVarCell(id VariableID) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	delete(ec.vars, id)
}

// ResultOf reads the result produced by the activity node id. It is a
// package-level generic function, not a method, because Go methods
// cannot introduce their own type parameters.
func ResultOf[T any](ec *ExecContext, id NodeID) (T, error) {
	var zero T
	cell, ok := ec.thunkCellFor(id)
	if !ok {
		return zero, ErrResultNotReady
	}
	v, ready := cell.get()
	if !ready {
		return zero, ErrResultNotReady
	}
	tv, ok := v.(T)
	if !ok {
		return zero, ErrResultNotReady
	}
	return tv, nil
}

// VariableValue reads the current value of a variable by id.
func VariableValue[T any](ec *ExecContext, id VariableID) (T, error) {
	var zero T
	cell, ok := ec.varCellFor(id)
	if !ok || !cell.hasValue {
		return zero, ErrVariableUninitialized
	}
	tv, ok := cell.value.(T)
	if !ok {
		return zero, ErrVariableUninitialized
	}
	return tv, nil
}
