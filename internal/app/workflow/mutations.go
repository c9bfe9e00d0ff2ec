package workflow

import (
	"fmt"
	"slices"
	"time"

	"github.com/flowgraph/blockgraph/internal/core/graph"
	"github.com/flowgraph/blockgraph/internal/core/variable"
	"github.com/google/uuid"
)

// Auto layout policy applied on top of the engine's positions.
var (
	AutoLayoutOffset   = graph.Position{X: -42, Y: 243}
	AutoLayoutViewport = graph.Viewport{X: 0, Y: 0, Zoom: 0.7}
)

// EdgeID returns the id the canvas gives an edge between two ports.
func EdgeID(e graph.Edge) string {
	return fmt.Sprintf("%s-%s-%s-%s", e.Source, handleOr(e.SourceHandle, graph.HandleSource),
		e.Target, handleOr(e.TargetHandle, graph.HandleTarget))
}

// Connect adds the edge when both blocks exist, the ports are not already
// joined and the capability table allows it. A refused connection returns
// false and leaves the graph untouched.
func (w *Workflow) Connect(e graph.Edge) (graph.Edge, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	g := w.model.Snapshot()
	src, okSrc := g.Node(e.Source)
	tgt, okTgt := g.Node(e.Target)
	if !okSrc || !okTgt || e.Source == e.Target {
		w.reject(e, "unresolved endpoint or self-loop")
		return graph.Edge{}, false
	}
	if err := w.validator.Check(g, e.Source, e.Target); err != nil {
		w.reject(e, err.Error())
		return graph.Edge{}, false
	}

	e = normalizeEdge(e, src, tgt)
	if e.ID == "" {
		e.ID = EdgeID(e)
	}
	for _, existing := range g.Edges() {
		if existing.ID == e.ID || existing.SamePorts(e) {
			w.reject(e, "ports already connected")
			return graph.Edge{}, false
		}
	}

	w.model.Publish(g.WithEdges(append(g.Edges(), e)))
	w.metrics.RecordOperation("connect")
	w.logger.Debug("connected blocks", "edge_id", e.ID, "source", e.Source, "target", e.Target)
	return e, true
}

func (w *Workflow) reject(e graph.Edge, reason string) {
	w.metrics.RecordConnectionRejected()
	w.logger.Debug("connection refused", "source", e.Source, "target", e.Target, "reason", reason)
}

// Disconnect removes the edge with the given id.
func (w *Workflow) Disconnect(edgeID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	g := w.model.Snapshot()
	edges := g.Edges()
	i := slices.IndexFunc(edges, func(e graph.Edge) bool { return e.ID == edgeID })
	if i < 0 {
		return ErrEdgeNotFound
	}
	w.model.Publish(g.WithEdges(slices.Delete(edges, i, i+1)))
	w.metrics.RecordOperation("disconnect")
	return nil
}

// AddNode places a block. An empty id is filled with a new uuid and an empty
// renderer type with "custom". A second start block is refused.
func (w *Workflow) AddNode(n graph.Node) (graph.Node, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n = n.Clone()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Type == "" {
		n.Type = graph.NodeTypeCustom
	}
	if err := n.Validate(); err != nil {
		return graph.Node{}, err
	}

	g := w.model.Snapshot()
	if g.Has(n.ID) {
		return graph.Node{}, fmt.Errorf("%w: %s", graph.ErrDuplicateNode, n.ID)
	}
	if n.Kind() == graph.BlockStart {
		if _, ok := g.Start(); ok {
			return graph.Node{}, graph.ErrMultipleStartNodes
		}
	}

	w.model.Publish(g.WithNodes(append(g.Nodes(), n)))
	w.metrics.RecordOperation("add_node")
	w.metrics.SetGraphNodes(g.Len() + 1)
	return n.Clone(), nil
}

// RemoveNode deletes a block and every edge touching it. The start block
// cannot be removed.
func (w *Workflow) RemoveNode(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	g := w.model.Snapshot()
	n, ok := g.Node(id)
	if !ok {
		return graph.ErrNodeNotFound
	}
	if n.Kind() == graph.BlockStart {
		return ErrStartNodeRemoval
	}

	nodes := slices.DeleteFunc(g.Nodes(), func(n graph.Node) bool { return n.ID == id })
	edges := slices.DeleteFunc(g.Edges(), func(e graph.Edge) bool { return e.Source == id || e.Target == id })
	w.model.Publish(graph.New(nodes, edges))
	w.metrics.RecordOperation("remove_node")
	w.metrics.SetGraphNodes(len(nodes))
	if variable.IsNodeOutputUsed(g, id) {
		w.logger.Warn("removed block whose outputs are still referenced", "node_id", id)
	}
	return nil
}

// ReplaceNode swaps a block for a new version with the same id.
func (w *Workflow) ReplaceNode(n graph.Node) error {
	if err := n.Validate(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.model.ReplaceNode(n.Clone()); err != nil {
		return err
	}
	w.metrics.RecordOperation("replace_node")
	return nil
}

// ApplyAutoLayout repositions every block with the layout engine, shifts the
// result by AutoLayoutOffset and resets the viewport to AutoLayoutViewport.
func (w *Workflow) ApplyAutoLayout() {
	w.mu.Lock()
	defer w.mu.Unlock()

	began := time.Now()
	g := w.model.Snapshot()
	nodes := g.Nodes()
	positions := w.layout.Layout(nodes, g.Edges())
	for i := range nodes {
		p := positions[nodes[i].ID]
		nodes[i].Position = &graph.Position{
			X: p.X + AutoLayoutOffset.X,
			Y: p.Y + AutoLayoutOffset.Y,
		}
	}
	w.model.Publish(g.WithNodes(nodes))
	viewport := AutoLayoutViewport
	w.model.SetViewport(&viewport)

	w.metrics.ObserveLayout(time.Since(began))
	w.metrics.RecordOperation("apply_auto_layout")
	w.logger.Debug("applied auto layout", "nodes", len(nodes))
}

// RenameVariable rewrites every downstream reference to old so it points at
// next, and returns the ids of the rewritten blocks.
func (w *Workflow) RenameVariable(old, next graph.ValueSelector) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	g, changed := variable.PropagateRename(w.model.Snapshot(), old, next)
	if len(changed) > 0 {
		w.model.Publish(g)
		w.logger.Info("renamed variable", "from", old.String(), "to", next.String(), "nodes", changed)
	}
	w.metrics.RecordOperation("rename_variable")
	w.metrics.RecordReferencesRewritten("rename", len(changed))
	return changed
}

// RemoveVariable clears every downstream reference to sel and returns the ids
// of the rewritten blocks.
func (w *Workflow) RemoveVariable(sel graph.ValueSelector) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	g, changed := variable.PropagateRemoval(w.model.Snapshot(), sel)
	if len(changed) > 0 {
		w.model.Publish(g)
		w.logger.Info("removed variable", "selector", sel.String(), "nodes", changed)
	}
	w.metrics.RecordOperation("remove_variable")
	w.metrics.RecordReferencesRewritten("remove", len(changed))
	return changed
}

func handleOr(h, def string) string {
	if h == "" {
		return def
	}
	return h
}
