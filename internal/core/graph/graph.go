// Package graph provides the workflow graph model: blocks, connections and
// value selectors, held as immutable snapshots.
package graph

import (
	"slices"
	"sync/atomic"
)

// Graph is an immutable snapshot of the node and edge collections.
// Every mutation returns a new Graph, so a snapshot handed to a query
// cannot change while the query runs.
// PRINCIPLES:
// - KISS: Two slices plus lookup indexes
// - SRP: Only responsible for structure and adjacency, not traversal
type Graph struct {
	nodes []Node
	edges []Edge
	index map[string]int
	out   map[string][]string
	in    map[string][]string
}

// New builds a snapshot from the given collections. The inputs are copied.
func New(nodes []Node, edges []Edge) *Graph {
	g := &Graph{
		nodes: make([]Node, len(nodes)),
		edges: make([]Edge, len(edges)),
	}
	for i, n := range nodes {
		g.nodes[i] = n.Clone()
	}
	for i, e := range edges {
		g.edges[i] = e.Clone()
	}
	g.reindex()
	return g
}

// FromRecord builds a snapshot from a persisted record.
func FromRecord(r Record) *Graph {
	return New(r.Nodes, r.Edges)
}

func (g *Graph) reindex() {
	g.index = make(map[string]int, len(g.nodes))
	for i, n := range g.nodes {
		if _, dup := g.index[n.ID]; !dup {
			g.index[n.ID] = i
		}
	}
	g.out = make(map[string][]string, len(g.nodes))
	g.in = make(map[string][]string, len(g.nodes))
	for _, e := range g.edges {
		if !slices.Contains(g.out[e.Source], e.Target) {
			g.out[e.Source] = append(g.out[e.Source], e.Target)
		}
		if !slices.Contains(g.in[e.Target], e.Source) {
			g.in[e.Target] = append(g.in[e.Target], e.Source)
		}
	}
}

// Nodes returns a copy of the node collection.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.Clone()
	}
	return out
}

// Edges returns a copy of the edge collection.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	for i, e := range g.edges {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node looks up a node by id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i].Clone(), true
}

// Has reports whether a node with the id exists.
func (g *Graph) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Start returns the first node of kind start.
func (g *Graph) Start() (Node, bool) {
	for _, n := range g.nodes {
		if n.Kind() == BlockStart {
			return n.Clone(), true
		}
	}
	return Node{}, false
}

// Incomers returns the nodes with an edge ending at id, in edge insertion order.
func (g *Graph) Incomers(id string) []Node {
	return g.resolve(g.in[id])
}

// Outgoers returns the nodes with an edge starting at id, in edge insertion order.
func (g *Graph) Outgoers(id string) []Node {
	return g.resolve(g.out[id])
}

// IncomerIDs is the id-only form of Incomers.
func (g *Graph) IncomerIDs(id string) []string {
	return g.existing(g.in[id])
}

// OutgoerIDs is the id-only form of Outgoers.
func (g *Graph) OutgoerIDs(id string) []string {
	return g.existing(g.out[id])
}

func (g *Graph) existing(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if g.Has(id) {
			out = append(out, id)
		}
	}
	return out
}

func (g *Graph) resolve(ids []string) []Node {
	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := g.Node(id); ok {
			out = append(out, n)
		}
	}
	return out
}

// ConnectedEdges returns the edges touching id.
func (g *Graph) ConnectedEdges(id string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Source == id || e.Target == id {
			out = append(out, e.Clone())
		}
	}
	return out
}

// WithNodes returns a snapshot with the node collection replaced.
func (g *Graph) WithNodes(nodes []Node) *Graph {
	return New(nodes, g.edges)
}

// WithEdges returns a snapshot with the edge collection replaced.
func (g *Graph) WithEdges(edges []Edge) *Graph {
	return New(g.nodes, edges)
}

// ReplaceNode returns a snapshot where the node with n.ID is swapped for n.
func (g *Graph) ReplaceNode(n Node) (*Graph, error) {
	i, ok := g.index[n.ID]
	if !ok {
		return nil, ErrNodeNotFound
	}
	nodes := slices.Clone(g.nodes)
	nodes[i] = n
	return New(nodes, g.edges), nil
}

// Record exports the snapshot as plain data.
func (g *Graph) Record() Record {
	return Record{Nodes: g.Nodes(), Edges: g.Edges()}
}

// Model owns the current snapshot and the viewport. Writers publish a whole
// new snapshot; readers always see either the old or the new one.
type Model struct {
	current  atomic.Pointer[Graph]
	viewport atomic.Pointer[Viewport]
}

// NewModel creates a model holding an empty graph.
func NewModel() *Model {
	m := &Model{}
	m.current.Store(New(nil, nil))
	return m
}

// Snapshot returns the current immutable graph.
func (m *Model) Snapshot() *Graph {
	return m.current.Load()
}

// Publish swaps in a new snapshot.
func (m *Model) Publish(g *Graph) {
	if g == nil {
		g = New(nil, nil)
	}
	m.current.Store(g)
}

// SetNodes replaces the node collection.
func (m *Model) SetNodes(nodes []Node) {
	m.Publish(m.Snapshot().WithNodes(nodes))
}

// SetEdges replaces the edge collection.
func (m *Model) SetEdges(edges []Edge) {
	m.Publish(m.Snapshot().WithEdges(edges))
}

// ReplaceNode swaps a single node.
func (m *Model) ReplaceNode(n Node) error {
	next, err := m.Snapshot().ReplaceNode(n)
	if err != nil {
		return err
	}
	m.Publish(next)
	return nil
}

// Viewport returns a copy of the viewport, or nil if none was set.
func (m *Model) Viewport() *Viewport {
	v := m.viewport.Load()
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

// SetViewport stores the viewport.
func (m *Model) SetViewport(v *Viewport) {
	if v == nil {
		m.viewport.Store(nil)
		return
	}
	cp := *v
	m.viewport.Store(&cp)
}

// Record exports the current snapshot together with the viewport.
func (m *Model) Record() Record {
	r := m.Snapshot().Record()
	r.Viewport = m.Viewport()
	return r
}
