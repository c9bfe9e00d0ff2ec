package workflow

import (
	"github.com/flowgraph/blockgraph/internal/core/graph"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Placement of seeded and unplaced blocks.
var (
	StartInitialPosition = graph.Position{X: 80, Y: 282}
	NodeWidthXOffset     = 300.0
)

// targetBranch is an ordering hint for the source handles of a branch block.
type targetBranch struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

var ifElseBranches = []targetBranch{
	{ID: "true", Name: "IS TRUE"},
	{ID: "false", Name: "IS FALSE"},
}

// DefaultRecord returns the graph seeded for an app without a draft: a single
// start block.
func DefaultRecord() graph.Record {
	pos := StartInitialPosition
	return graph.Record{
		Nodes: []graph.Node{{
			ID:       uuid.NewString(),
			Type:     graph.NodeTypeCustom,
			Position: &pos,
			Data:     []byte(`{"type":"start","title":"Start","desc":"","variables":[]}`),
		}},
		Edges: []graph.Edge{},
	}
}

// RenderTreeFromRecord replaces the graph with a normalised copy of r and,
// when r carries one, its viewport. It returns the number of dropped edges.
func (w *Workflow) RenderTreeFromRecord(r graph.Record) int {
	nodes := normalizeNodes(r.Nodes)
	index := make(map[string]graph.Node, len(nodes))
	for _, n := range nodes {
		index[n.ID] = n
	}

	edges := make([]graph.Edge, 0, len(r.Edges))
	dropped := 0
	for _, e := range r.Edges {
		src, okSrc := index[e.Source]
		tgt, okTgt := index[e.Target]
		if !okSrc || !okTgt {
			dropped++
			w.logger.Warn("dropping edge with missing endpoint",
				"edge_id", e.ID, "source", e.Source, "target", e.Target)
			continue
		}
		edges = append(edges, normalizeEdge(e, src, tgt))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.model.Publish(graph.New(nodes, edges))
	if r.Viewport != nil {
		w.model.SetViewport(r.Viewport)
	}
	w.metrics.RecordOperation("render_tree_from_record")
	w.metrics.SetGraphNodes(len(nodes))
	w.logger.Debug("loaded graph", "nodes", len(nodes), "edges", len(edges), "dropped_edges", dropped)
	return dropped
}

// normalizeNodes copies the nodes, sets the renderer type, adds branch hints
// and, when the record was never placed, lines the blocks up in a row.
func normalizeNodes(in []graph.Node) []graph.Node {
	out := make([]graph.Node, len(in))
	unplaced := len(in) > 0 && in[0].Position == nil
	for i, n := range in {
		n = n.Clone()
		if n.Type == "" {
			n.Type = graph.NodeTypeCustom
		}
		if unplaced {
			n.Position = &graph.Position{
				X: StartInitialPosition.X + float64(i)*NodeWidthXOffset,
				Y: StartInitialPosition.Y,
			}
		}
		if branches := targetBranches(n); branches != nil {
			if data, err := sjson.SetBytes(n.Data, "_targetBranches", branches); err == nil {
				n.Data = data
			}
		}
		out[i] = n
	}
	return out
}

func targetBranches(n graph.Node) []targetBranch {
	switch n.Kind() {
	case graph.BlockIfElse:
		return ifElseBranches
	case graph.BlockQuestionClassifier:
		branches := []targetBranch{}
		gjson.GetBytes(n.Data, "classes").ForEach(func(_, class gjson.Result) bool {
			branches = append(branches, targetBranch{
				ID:   class.Get("id").String(),
				Name: class.Get("name").String(),
			})
			return true
		})
		return branches
	default:
		return nil
	}
}

// normalizeEdge fills the renderer type, default handles and endpoint kinds.
func normalizeEdge(e graph.Edge, src, tgt graph.Node) graph.Edge {
	e = e.Clone()
	e.Type = graph.EdgeTypeCustom
	e.SourceHandle = handleOr(e.SourceHandle, graph.HandleSource)
	e.TargetHandle = handleOr(e.TargetHandle, graph.HandleTarget)
	if e.Data == nil {
		e.Data = &graph.EdgeData{}
	}
	if e.Data.SourceType == "" {
		e.Data.SourceType = src.Kind()
	}
	if e.Data.TargetType == "" {
		e.Data.TargetType = tgt.Kind()
	}
	return e
}
