package flowcore

import (
	"sync"

	"github.com/google/uuid"
)

// NodeID identifies a node within a flow's node store. It is assigned by
// the caller through the builder (not generated) so that graphs are
// reproducible across builds and diagnostics can reference stable ids.
type NodeID string

// VariableID identifies a variable within a flow or block scope.
type VariableID string

// TokenGenerator mints run tokens: time-sortable identifiers, one per
// flow run, attached to the run-started and run-completed log signals and
// to the RunEvent delivered to hooks. Node-level log lines, trace spans
// and metrics do not carry the run token.
//
// The default implementation mints a UUIDv7 per run, following the
// retrieved pack's UUIDv7Generator pattern: UUIDv7 embeds a timestamp in
// its most significant bits, so run tokens sort by creation time.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable run tokens using UUIDv7.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 token as a hyphenated string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined run tokens, for deterministic tests.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token. Panics once all tokens
// have been consumed, the same fail-fast behavior as the retrieved pack's
// FixedGenerator: a test that needs more runs than it declared tokens for
// has a bug, not a generator.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.tokens) {
		panic("flowcore: FixedGenerator exhausted")
	}
	tok := g.tokens[g.idx]
	g.idx++
	return tok
}
