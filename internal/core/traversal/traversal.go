// Package traversal answers structural questions about a workflow graph
// snapshot: which blocks precede or follow a block, which leaves hang off the
// tree, and how deep the tree rooted at the start block goes.
//
// Every walk is an explicit depth-first stack over an immutable
// *graph.Graph. Walks keep a visited set, so a corrupted graph that contains
// a cycle still terminates; the order of first visits is the same as a plain
// recursive pre-order walk.
package traversal

import (
	"github.com/flowgraph/blockgraph/internal/core/graph"
)

// Reachable is the result of ReachableFromStart.
type Reachable struct {
	ValidNodes []graph.Node `json:"validNodes"`
	MaxDepth   int          `json:"maxDepth"`
}

// neighbours returns the next hop ids from a node.
type neighbours func(id string) []string

// walk is a depth-first visit from root. pre holds ids in first-visit order,
// post in finishing order, and back the edges that close a cycle.
type walk struct {
	pre  []string
	post []string
	back map[[2]string]bool
}

// dfs runs an iterative depth-first search with white/gray/black colouring.
func dfs(root string, next neighbours) walk {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // finished
	)
	type frame struct {
		id       string
		children []string
		i        int
	}

	w := walk{back: make(map[[2]string]bool)}
	color := map[string]int{root: gray}
	w.pre = append(w.pre, root)
	stack := []*frame{{id: root, children: next(root)}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.i == len(top.children) {
			stack = stack[:len(stack)-1]
			color[top.id] = black
			w.post = append(w.post, top.id)
			continue
		}
		child := top.children[top.i]
		top.i++
		switch color[child] {
		case gray:
			w.back[[2]string{top.id, child}] = true
		case white:
			color[child] = gray
			w.pre = append(w.pre, child)
			stack = append(stack, &frame{id: child, children: next(child)})
		}
	}
	return w
}

// LeafDescendants walks every path from the start block and collects the
// blocks that have no outgoing connection, skipping nodeID itself. The
// direct incomers of nodeID are appended, duplicates are dropped, and only
// kinds that expose outputs are kept.
func LeafDescendants(g *graph.Graph, nodeID string) []graph.Node {
	start, ok := g.Start()
	if !ok {
		return nil
	}

	var ids []string
	for _, id := range dfs(start.ID, g.OutgoerIDs).pre {
		if id != nodeID && len(g.OutgoerIDs(id)) == 0 {
			ids = append(ids, id)
		}
	}
	ids = append(ids, g.IncomerIDs(nodeID)...)

	return outputCapable(g, unique(ids))
}

// AncestorsInBranch walks incoming connections from nodeID and returns every
// block reached, furthest first, filtered to kinds that expose outputs.
// Parallel incoming paths are all followed.
func AncestorsInBranch(g *graph.Graph, nodeID string) []graph.Node {
	if !g.Has(nodeID) {
		return nil
	}

	pre := dfs(nodeID, g.IncomerIDs).pre[1:]
	ids := make([]string, 0, len(pre))
	for i := len(pre) - 1; i >= 0; i-- {
		if pre[i] != nodeID {
			ids = append(ids, pre[i])
		}
	}
	return outputCapable(g, ids)
}

// DescendantsInBranch walks outgoing connections from nodeID and returns the
// block itself followed by every block reached, in discovery order.
func DescendantsInBranch(g *graph.Graph, nodeID string) []graph.Node {
	if !g.Has(nodeID) {
		return nil
	}
	return resolve(g, dfs(nodeID, g.OutgoerIDs).pre)
}

// ReachableFromStart returns every block reachable from the start block and
// the longest path length, counted in edges, from start to any of them.
func ReachableFromStart(g *graph.Graph) Reachable {
	start, ok := g.Start()
	if !ok {
		return Reachable{ValidNodes: []graph.Node{}, MaxDepth: 0}
	}

	w := dfs(start.ID, g.OutgoerIDs)
	return Reachable{
		ValidNodes: resolve(g, w.pre),
		MaxDepth:   longestPath(g, start.ID, w),
	}
}

// longestPath relaxes depths in reverse finishing order, which is a
// topological order once cycle-closing edges are ignored.
func longestPath(g *graph.Graph, root string, w walk) int {
	depth := map[string]int{root: 0}
	maxDepth := 0
	for i := len(w.post) - 1; i >= 0; i-- {
		u := w.post[i]
		du, seen := depth[u]
		if !seen {
			continue
		}
		for _, v := range g.OutgoerIDs(u) {
			if w.back[[2]string{u, v}] {
				continue
			}
			if dv, ok := depth[v]; !ok || du+1 > dv {
				depth[v] = du + 1
				if du+1 > maxDepth {
					maxDepth = du + 1
				}
			}
		}
	}
	return maxDepth
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func resolve(g *graph.Graph, ids []string) []graph.Node {
	out := make([]graph.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := g.Node(id); ok {
			out = append(out, n)
		}
	}
	return out
}

func outputCapable(g *graph.Graph, ids []string) []graph.Node {
	out := make([]graph.Node, 0, len(ids))
	for _, n := range resolve(g, ids) {
		if n.Kind().SupportsOutputVars() {
			out = append(out, n)
		}
	}
	return out
}
