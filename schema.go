package flowcore

// Edge describes one directed connection in a flow's graph, labeled the
// way spec §6 requires for graph export: next, fault, cancel, true,
// false, case(k), default, fork_<name>, join, plus block_entry from a
// Block to its initial node.
type Edge struct {
	From  NodeID
	To    NodeID
	Label string
}

// NodeSummary is the introspection-friendly projection of a Node used by
// graph export and debugging tools, grounded on the teacher pack's
// schema.go (which exposes a comparable read-only summary of a Sequence's
// internal Chainable chain for the same purpose).
type NodeSummary struct {
	ID    NodeID
	Name  string
	Kind  NodeKind
	Scope Scope
}

// Schema is the read-only, exportable view of a built Flow: every node
// plus every labeled edge between them. Export renderers (see the export
// package) consume a Schema rather than a live Flow so they never observe
// run-scoped state.
type Schema struct {
	Name  string
	Root  NodeID
	Nodes []NodeSummary
	Edges []Edge
}

// Describe projects f into a Schema.
func (f *Flow) Describe() Schema {
	s := Schema{Name: f.Name, Root: f.RootNodeID}
	for _, id := range f.NodeOrder {
		n := f.Nodes[id]
		s.Nodes = append(s.Nodes, NodeSummary{ID: n.ID, Name: n.Name, Kind: n.Kind, Scope: n.ParentScope})
		s.Edges = append(s.Edges, describeEdges(n)...)
	}
	return s
}

func describeEdges(n *Node) []Edge {
	var edges []Edge
	add := func(label string, target NodeID) {
		if target != "" {
			edges = append(edges, Edge{From: n.ID, To: target, Label: label})
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
	return edges
}
