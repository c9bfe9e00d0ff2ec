package workflow

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/flowgraph/blockgraph/internal/core/graph"
	"github.com/flowgraph/blockgraph/internal/infrastructure/metrics"
	"github.com/flowgraph/blockgraph/internal/logging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"pgregory.net/rapid"
)

func block(id string, data string) graph.Node {
	return graph.Node{ID: id, Position: &graph.Position{}, Data: json.RawMessage(data)}
}

func link(source, handle, target string) graph.Edge {
	return graph.Edge{ID: source + "-" + target, Source: source, SourceHandle: handle, Target: target}
}

func ids(nodes []graph.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

// branchRecord is start(1) -> if-else(2), with 2 -> llm(3) on "true" and
// 2 -> llm(4) on "false".
func branchRecord() graph.Record {
	return graph.Record{
		Nodes: []graph.Node{
			block("1", `{"type":"start","variables":[{"variable":"query"}]}`),
			block("2", `{"type":"if-else","conditions":[{"variable_selector":["1","query"]}]}`),
			block("3", `{"type":"llm"}`),
			block("4", `{"type":"llm"}`),
		},
		Edges: []graph.Edge{
			link("1", "", "2"),
			link("2", "true", "3"),
			link("2", "false", "4"),
		},
	}
}

// chainRecord is start(1) -> if-else(2) -> llm(3) -> llm(4) where 4 reads
// 3's output in its prompt and context.
func chainRecord() graph.Record {
	return graph.Record{
		Nodes: []graph.Node{
			block("1", `{"type":"start"}`),
			block("2", `{"type":"if-else","conditions":[{"variable_selector":["1","query"]}]}`),
			block("3", `{"type":"llm"}`),
			block("4", `{"type":"llm","prompt_template":[{"role":"system","text":"Use {{#3.output#}}"}],"context":{"enabled":true,"variable_selector":["3","output"]}}`),
		},
		Edges: []graph.Edge{
			link("1", "", "2"),
			link("2", "true", "3"),
			link("3", "", "4"),
		},
	}
}

func newWorkflow(t *testing.T, r graph.Record) *Workflow {
	t.Helper()
	w := New(WithLogger(logging.Discard()), WithMetrics(metrics.NewMetrics()))
	require.Zero(t, w.RenderTreeFromRecord(r))
	return w
}

func nodeData(t *testing.T, w *Workflow, id string) []byte {
	t.Helper()
	n, ok := w.Snapshot().Node(id)
	require.True(t, ok, "node %s", id)
	return n.Data
}

func TestWorkflow_BranchScenario(t *testing.T) {
	w := newWorkflow(t, branchRecord())

	assert.ElementsMatch(t, []string{"3", "4", "1"}, ids(w.LeafDescendants("2")))
	assert.Subset(t, ids(w.LeafDescendants("2")), []string{"3", "4"})
	// if-else is not output capable, so only start remains upstream of 3.
	assert.Equal(t, []string{"1"}, ids(w.AncestorsInBranch("3")))
	assert.Equal(t, []string{"2", "3", "4"}, ids(w.DescendantsInBranch("2")))

	assert.True(t, w.IsValidConnection("1", "2"))
	assert.False(t, w.IsValidConnection("3", "4"))

	reach := w.ReachableFromStart()
	assert.Len(t, reach.ValidNodes, 4)
	assert.Equal(t, 2, reach.MaxDepth)

	assert.Equal(t, []graph.ValueSelector{{"1", "query"}}, w.AvailableSelectors("3"))
	assert.True(t, w.IsSelectorStillUsed(graph.ValueSelector{"1", "query"}))
	assert.True(t, w.IsNodeOutputUsed("1"))
	assert.False(t, w.IsNodeOutputUsed("3"))
}

func TestWorkflow_EmptyGraph(t *testing.T) {
	w := New()

	reach := w.ReachableFromStart()
	assert.Empty(t, reach.ValidNodes)
	assert.Zero(t, reach.MaxDepth)
	assert.Empty(t, w.LeafDescendants("1"))
	assert.Empty(t, w.AncestorsInBranch("1"))
	assert.True(t, w.IsValidConnection("1", "2"))
	assert.False(t, w.IsSelectorStillUsed(graph.ValueSelector{"1", "x"}))
	assert.Nil(t, w.Viewport())
}

func TestWorkflow_RenameVariable(t *testing.T) {
	w := newWorkflow(t, chainRecord())
	before := nodeData(t, w, "2")

	changed := w.RenameVariable(graph.ValueSelector{"3", "output"}, graph.ValueSelector{"3", "text"})
	assert.Equal(t, []string{"4"}, changed)

	data := nodeData(t, w, "4")
	assert.JSONEq(t, `["3","text"]`, gjson.GetBytes(data, "context.variable_selector").Raw)
	assert.Equal(t, "Use {{#3.text#}}", gjson.GetBytes(data, "prompt_template.0.text").String())
	assert.True(t, gjson.GetBytes(data, "context.enabled").Bool())
	assert.Equal(t, before, nodeData(t, w, "2"))

	assert.False(t, w.IsSelectorStillUsed(graph.ValueSelector{"3", "output"}))
	assert.True(t, w.IsSelectorStillUsed(graph.ValueSelector{"3", "text"}))

	// A second application finds nothing left to rewrite.
	assert.Empty(t, w.RenameVariable(graph.ValueSelector{"3", "output"}, graph.ValueSelector{"3", "text"}))
}

func TestWorkflow_RemoveVariable(t *testing.T) {
	w := newWorkflow(t, chainRecord())

	assert.Equal(t, []string{"4"}, ids(w.ReferencingNodes(graph.ValueSelector{"3", "output"})))
	assert.Equal(t, []string{"4"}, w.RemoveVariable(graph.ValueSelector{"3", "output"}))

	data := nodeData(t, w, "4")
	assert.JSONEq(t, `[]`, gjson.GetBytes(data, "context.variable_selector").Raw)
	assert.Equal(t, "Use ", gjson.GetBytes(data, "prompt_template.0.text").String())
	assert.Empty(t, w.ReferencingNodes(graph.ValueSelector{"3", "output"}))
	assert.Nil(t, w.ReferencingNodes(graph.ValueSelector{"3"}))
}

func TestWorkflow_Connect(t *testing.T) {
	w := newWorkflow(t, branchRecord())
	end, err := w.AddNode(graph.Node{ID: "5", Data: json.RawMessage(`{"type":"end"}`)})
	require.NoError(t, err)

	e, ok := w.Connect(graph.Edge{Source: "3", Target: end.ID})
	require.True(t, ok)
	assert.Equal(t, "3-source-5-target", e.ID)
	assert.Equal(t, graph.EdgeTypeCustom, e.Type)
	assert.Equal(t, &graph.EdgeData{SourceType: graph.BlockLLM, TargetType: graph.BlockEnd}, e.Data)
	assert.Contains(t, w.Snapshot().OutgoerIDs("3"), "5")

	tests := []struct {
		name string
		edge graph.Edge
	}{
		{"same ports again", graph.Edge{Source: "3", Target: "5"}},
		{"llm to llm", graph.Edge{Source: "3", Target: "4"}},
		{"into start", graph.Edge{Source: "5", Target: "1"}},
		{"missing target", graph.Edge{Source: "3", Target: "nope"}},
		{"self loop", graph.Edge{Source: "3", Target: "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(w.Snapshot().Edges())
			_, ok := w.Connect(tt.edge)
			assert.False(t, ok)
			assert.Len(t, w.Snapshot().Edges(), before)
		})
	}

	require.NoError(t, w.Disconnect(e.ID))
	assert.NotContains(t, w.Snapshot().OutgoerIDs("3"), "5")
	assert.ErrorIs(t, w.Disconnect(e.ID), ErrEdgeNotFound)
}

func TestWorkflow_AddNode(t *testing.T) {
	w := newWorkflow(t, branchRecord())

	n, err := w.AddNode(graph.Node{Data: json.RawMessage(`{"type":"code"}`)})
	require.NoError(t, err)
	_, parseErr := uuid.Parse(n.ID)
	assert.NoError(t, parseErr)
	assert.Equal(t, graph.NodeTypeCustom, n.Type)
	assert.True(t, w.Snapshot().Has(n.ID))

	tests := []struct {
		name    string
		node    graph.Node
		wantErr error
	}{
		{"second start", graph.Node{ID: "9", Data: json.RawMessage(`{"type":"start"}`)}, graph.ErrMultipleStartNodes},
		{"duplicate id", graph.Node{ID: "3", Data: json.RawMessage(`{"type":"llm"}`)}, graph.ErrDuplicateNode},
		{"unknown kind", graph.Node{ID: "9", Data: json.RawMessage(`{"type":"loop"}`)}, graph.ErrInvalidBlockKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.AddNode(tt.node)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWorkflow_RemoveNode(t *testing.T) {
	w := newWorkflow(t, chainRecord())

	assert.ErrorIs(t, w.RemoveNode("1"), ErrStartNodeRemoval)
	assert.ErrorIs(t, w.RemoveNode("nope"), graph.ErrNodeNotFound)

	require.NoError(t, w.RemoveNode("3"))
	g := w.Snapshot()
	assert.False(t, g.Has("3"))
	assert.Len(t, g.Edges(), 1)
	assert.Empty(t, g.IncomerIDs("4"))
}

func TestWorkflow_ReplaceNode(t *testing.T) {
	w := newWorkflow(t, chainRecord())

	require.NoError(t, w.ReplaceNode(graph.Node{ID: "3", Data: json.RawMessage(`{"type":"llm","title":"Summarise"}`)}))
	n, _ := w.Snapshot().Node("3")
	assert.Equal(t, "Summarise", n.Title())

	assert.ErrorIs(t, w.ReplaceNode(graph.Node{ID: "x", Data: json.RawMessage(`{"type":"llm"}`)}), graph.ErrNodeNotFound)
	assert.ErrorIs(t, w.ReplaceNode(graph.Node{ID: "3", Data: json.RawMessage(`{}`)}), graph.ErrInvalidBlockKind)
}

func TestWorkflow_ApplyAutoLayout(t *testing.T) {
	w := newWorkflow(t, graph.Record{
		Nodes: []graph.Node{
			block("1", `{"type":"start"}`),
			block("2", `{"type":"llm"}`),
			block("3", `{"type":"end"}`),
		},
		Edges: []graph.Edge{link("1", "", "2"), link("2", "", "3")},
	})

	w.ApplyAutoLayout()

	want := map[string]graph.Position{
		"1": {X: 80, Y: 293},
		"2": {X: 388, Y: 293},
		"3": {X: 696, Y: 293},
	}
	for _, n := range w.Snapshot().Nodes() {
		require.NotNil(t, n.Position)
		assert.Equal(t, want[n.ID], *n.Position, "node %s", n.ID)
	}
	assert.Equal(t, &graph.Viewport{X: 0, Y: 0, Zoom: 0.7}, w.Viewport())

	// Layout depends only on topology, so a second pass changes nothing.
	first := w.Record()
	w.ApplyAutoLayout()
	assert.Equal(t, first, w.Record())
}

func TestWorkflow_RenderTreeFromRecord(t *testing.T) {
	w := New()
	r := graph.Record{
		Nodes: []graph.Node{
			{ID: "1", Data: json.RawMessage(`{"type":"start"}`)},
			{ID: "2", Data: json.RawMessage(`{"type":"if-else"}`)},
			{ID: "3", Data: json.RawMessage(`{"type":"question-classifier","classes":[{"id":"c1","name":"Billing"},{"id":"c2","name":"Other"}]}`)},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "1", Target: "2"},
			{ID: "e2", Source: "2", SourceHandle: "false", Target: "3"},
			{ID: "dangling", Source: "3", Target: "gone"},
		},
		Viewport: &graph.Viewport{X: 10, Y: 20, Zoom: 1.5},
	}

	assert.Equal(t, 1, w.RenderTreeFromRecord(r))

	out := w.Record()
	assert.Equal(t, []string{"1", "2", "3"}, ids(out.Nodes))
	require.Len(t, out.Edges, 2)
	assert.Equal(t, "e1", out.Edges[0].ID)
	assert.Equal(t, "e2", out.Edges[1].ID)
	assert.Equal(t, r.Viewport, out.Viewport)

	for i, n := range out.Nodes {
		assert.Equal(t, graph.NodeTypeCustom, n.Type)
		require.NotNil(t, n.Position)
		assert.Equal(t, graph.Position{X: 80 + float64(i)*300, Y: 282}, *n.Position)
	}
	assert.JSONEq(t, `[{"id":"true","name":"IS TRUE"},{"id":"false","name":"IS FALSE"}]`,
		gjson.GetBytes(out.Nodes[1].Data, "_targetBranches").Raw)
	assert.JSONEq(t, `[{"id":"c1","name":"Billing"},{"id":"c2","name":"Other"}]`,
		gjson.GetBytes(out.Nodes[2].Data, "_targetBranches").Raw)

	e := out.Edges[0]
	assert.Equal(t, graph.EdgeTypeCustom, e.Type)
	assert.Equal(t, graph.HandleSource, e.SourceHandle)
	assert.Equal(t, graph.HandleTarget, e.TargetHandle)
	assert.Equal(t, &graph.EdgeData{SourceType: graph.BlockStart, TargetType: graph.BlockIfElse}, e.Data)
	assert.Equal(t, "false", out.Edges[1].SourceHandle)

	// Reloading the exported record is stable.
	w2 := New()
	assert.Zero(t, w2.RenderTreeFromRecord(out))
	assert.Equal(t, out, w2.Record())
}

func TestWorkflow_RoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 10).Draw(t, "nodes")
		r := graph.Record{Viewport: &graph.Viewport{
			X:    rapid.Float64Range(-500, 500).Draw(t, "x"),
			Y:    rapid.Float64Range(-500, 500).Draw(t, "y"),
			Zoom: rapid.Float64Range(0.1, 2).Draw(t, "zoom"),
		}}
		for i := 0; i < n; i++ {
			kind := rapid.SampledFrom(graph.AllBlockKinds[1:]).Draw(t, "kind")
			r.Nodes = append(r.Nodes, graph.Node{
				ID:       fmt.Sprintf("n%d", i),
				Position: &graph.Position{X: float64(i), Y: 0},
				Data:     json.RawMessage(fmt.Sprintf(`{"type":%q}`, kind)),
			})
		}
		edges := rapid.IntRange(0, 2*n).Draw(t, "edges")
		for i := 0; i < edges; i++ {
			src := rapid.IntRange(0, n-1).Draw(t, "src")
			dst := rapid.IntRange(0, n-1).Draw(t, "dst")
			r.Edges = append(r.Edges, graph.Edge{
				ID:     fmt.Sprintf("e%d", i),
				Source: fmt.Sprintf("n%d", src),
				Target: fmt.Sprintf("n%d", dst),
			})
		}

		w := New()
		require.Zero(t, w.RenderTreeFromRecord(r))
		out := w.Record()

		require.Len(t, out.Nodes, len(r.Nodes))
		for i := range r.Nodes {
			assert.Equal(t, r.Nodes[i].ID, out.Nodes[i].ID)
		}
		require.Len(t, out.Edges, len(r.Edges))
		for i := range r.Edges {
			assert.Equal(t, r.Edges[i].ID, out.Edges[i].ID)
		}
		assert.Equal(t, r.Viewport, out.Viewport)
	})
}

func TestDefaultRecord(t *testing.T) {
	r := DefaultRecord()
	require.Len(t, r.Nodes, 1)
	assert.Empty(t, r.Edges)

	start := r.Nodes[0]
	assert.Equal(t, graph.BlockStart, start.Kind())
	assert.Equal(t, &graph.Position{X: 80, Y: 282}, start.Position)
	_, err := uuid.Parse(start.ID)
	assert.NoError(t, err)

	assert.NotEqual(t, start.ID, DefaultRecord().Nodes[0].ID)
}

func TestWorkflow_ConcurrentReadersAndWriters(t *testing.T) {
	w := newWorkflow(t, chainRecord())
	old := graph.ValueSelector{"3", "output"}
	next := graph.ValueSelector{"3", "text"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			w.RenameVariable(old, next)
			w.RenameVariable(next, old)
		}()
		go func() {
			defer wg.Done()
			// Each snapshot holds exactly one of the two names.
			g := w.Snapshot()
			n, ok := g.Node("4")
			assert.True(t, ok)
			sel := gjson.GetBytes(n.Data, "context.variable_selector").Raw
			assert.Contains(t, []string{`["3","output"]`, `["3","text"]`}, sel)
			_ = w.ReachableFromStart()
		}()
	}
	wg.Wait()
}
