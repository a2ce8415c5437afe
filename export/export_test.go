package export

import (
	"strings"
	"testing"

	"github.com/flowforge/flowcore"
)

func TestRenderEmptyFlow(t *testing.T) {
	out := Render(flowcore.Schema{Name: "empty"})
	if !strings.Contains(out, "empty flow") {
		t.Errorf("expected a message about an empty flow, got %q", out)
	}
}

func TestRenderLinearChain(t *testing.T) {
	schema := flowcore.Schema{
		Name: "chain",
		Root: "a",
		Nodes: []flowcore.NodeSummary{
			{ID: "a", Name: "A", Kind: flowcore.KindActivity},
			{ID: "b", Name: "B", Kind: flowcore.KindActivity},
		},
		Edges: []flowcore.Edge{
			{From: "a", To: "b", Label: "next"},
		},
	}

	out := Render(schema)
	if !strings.Contains(out, "A [activity]") {
		t.Errorf("expected node A's label in the rendered tree, got %q", out)
	}
	if !strings.Contains(out, "B [activity]") {
		t.Errorf("expected node B's label in the rendered tree, got %q", out)
	}
	if !strings.Contains(out, "next") {
		t.Errorf("expected the \"next\" edge label in the rendered tree, got %q", out)
	}
}

func TestRenderCutsLoopOnRevisit(t *testing.T) {
	schema := flowcore.Schema{
		Name: "loop",
		Root: "a",
		Nodes: []flowcore.NodeSummary{
			{ID: "a", Name: "A", Kind: flowcore.KindActivity},
			{ID: "b", Name: "B", Kind: flowcore.KindActivity},
		},
		Edges: []flowcore.Edge{
			{From: "a", To: "b", Label: "next"},
			{From: "b", To: "a", Label: "next"},
		},
	}

	out := Render(schema)
	if !strings.Contains(out, "(loop)") {
		t.Errorf("expected a loop to be annotated, got %q", out)
	}
}

func TestRenderMissingRootReported(t *testing.T) {
	schema := flowcore.Schema{Name: "dangling-root", Root: "missing"}
	out := Render(schema)
	if !strings.Contains(out, "not found") {
		t.Errorf("expected a message about the missing root node, got %q", out)
	}
}
