// Package export renders a flow's graph as a human-readable ASCII tree,
// for logging and debugging. It operates purely on flowcore.Schema, the
// read-only projection of a built Flow, so it never touches run-scoped
// state.
package export

import (
	"fmt"
	"sort"

	"github.com/m1gwings/treedrawer/tree"

	"github.com/flowforge/flowcore"
)

// Render draws schema as a horizontal ASCII tree rooted at its entry
// node, grounded on the teacher pack's GraphDebugExtension.buildTree
// (which renders a dependency graph the same way for error diagnostics).
// A node reachable by more than one path is drawn again at each
// occurrence rather than merged, since a flow graph is not a tree; cycles
// (loops formed by ordinary sequential edges) are cut the first time a
// node is revisited on the current path, annotated "(loop)".
func Render(schema flowcore.Schema) string {
	byNode := make(map[flowcore.NodeID]flowcore.NodeSummary, len(schema.Nodes))
	for _, n := range schema.Nodes {
		byNode[n.ID] = n
	}
	children := make(map[flowcore.NodeID][]flowcore.Edge)
	for _, e := range schema.Edges {
		children[e.From] = append(children[e.From], e)
	}
	for _, edges := range children {
		sort.Slice(edges, func(i, j int) bool { return edges[i].Label < edges[j].Label })
	}

	if schema.Root == "" {
		return "(empty flow: no root node designated)"
	}

	if _, ok := byNode[schema.Root]; !ok {
		return fmt.Sprintf("(flow %q: root node %q not found)", schema.Name, schema.Root)
	}
	root := buildTree(schema.Root, byNode, children, map[flowcore.NodeID]bool{})
	return root.String()
}

func label(id flowcore.NodeID, byNode map[flowcore.NodeID]flowcore.NodeSummary) string {
	n, ok := byNode[id]
	if !ok {
		return fmt.Sprintf("%s (missing)", id)
	}
	return fmt.Sprintf("%s [%s]", n.Name, n.Kind)
}

func buildTree(
	id flowcore.NodeID,
	byNode map[flowcore.NodeID]flowcore.NodeSummary,
	children map[flowcore.NodeID][]flowcore.Edge,
	onPath map[flowcore.NodeID]bool,
) *tree.Tree {
	if onPath[id] {
		return tree.NewTree(tree.NodeString(label(id, byNode) + " (loop)"))
	}
	onPath[id] = true
	defer delete(onPath, id)

	node := tree.NewTree(tree.NodeString(label(id, byNode)))
	for _, edge := range children[id] {
		child := buildTree(edge.To, byNode, children, onPath)
		labeled := tree.NewTree(tree.NodeString(edge.Label))
		addChildTree(labeled, child)
		addChildTree(node, labeled)
	}
	return node
}

// addChildTree reattaches child's full subtree under parent, the same
// structural-copy approach the teacher pack's addTreeAsChild uses because
// treedrawer trees can only be grown from their own root via AddChild.
func addChildTree(parent, child *tree.Tree) {
	newChild := parent.AddChild(child.Val())
	for _, grandchild := range child.Children() {
		addChildTree(newChild, grandchild)
	}
}
