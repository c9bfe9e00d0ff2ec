// Package layout assigns canvas positions to workflow blocks with a layered
// left-to-right arrangement: ranks from the longest path out of the sources,
// crossing reduction by barycenter sweeps, then coordinates from rank and
// order. Ties are always broken by input order, so the same input yields the
// same layout.
package layout

import (
	"sort"

	"github.com/flowgraph/blockgraph/internal/core/graph"
)

const (
	DefaultNodeWidth  = 244
	DefaultNodeHeight = 100
	DefaultNodeSep    = 64
	DefaultRankSep    = 64

	// sweeps is the number of down/up barycenter passes.
	sweeps = 4
)

// Engine computes layered layouts.
type Engine struct {
	NodeWidth  float64
	NodeHeight float64
	NodeSep    float64 // gap between blocks in the same rank
	RankSep    float64 // gap between ranks
}

// NewEngine returns an engine with the default block size and spacing.
func NewEngine() *Engine {
	return &Engine{
		NodeWidth:  DefaultNodeWidth,
		NodeHeight: DefaultNodeHeight,
		NodeSep:    DefaultNodeSep,
		RankSep:    DefaultRankSep,
	}
}

// layered is the working state of one layout run.
type layered struct {
	ids   []string
	index map[string]int
	succ  [][]int
	pred  [][]int
	rank  []int
	ranks [][]int // node indexes per rank, in order
}

// Layout returns the center position of every node, keyed by node id.
// Edges whose endpoints are missing are ignored. Edges that close a cycle are
// ignored when ranking.
func (e *Engine) Layout(nodes []graph.Node, edges []graph.Edge) map[string]graph.Position {
	if len(nodes) == 0 {
		return map[string]graph.Position{}
	}

	l := newLayered(nodes, edges)
	l.breakCycles()
	l.assignRanks()
	l.order()
	return e.place(l, nodes)
}

func newLayered(nodes []graph.Node, edges []graph.Edge) *layered {
	l := &layered{index: make(map[string]int, len(nodes))}
	for _, n := range nodes {
		if _, dup := l.index[n.ID]; dup {
			continue
		}
		l.index[n.ID] = len(l.ids)
		l.ids = append(l.ids, n.ID)
	}
	l.succ = make([][]int, len(l.ids))
	l.pred = make([][]int, len(l.ids))

	seen := make(map[[2]int]bool, len(edges))
	for _, edge := range edges {
		u, okU := l.index[edge.Source]
		v, okV := l.index[edge.Target]
		if !okU || !okV || u == v || seen[[2]int{u, v}] {
			continue
		}
		seen[[2]int{u, v}] = true
		l.succ[u] = append(l.succ[u], v)
		l.pred[v] = append(l.pred[v], u)
	}
	return l
}

// breakCycles drops the edges found closing a cycle by a depth-first search
// that starts from the sources and then from any node left unvisited.
func (l *layered) breakCycles() {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(l.ids))
	back := make(map[[2]int]bool)

	visit := func(root int) {
		type frame struct{ v, i int }
		color[root] = gray
		stack := []frame{{v: root}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.i == len(l.succ[top.v]) {
				color[top.v] = black
				stack = stack[:len(stack)-1]
				continue
			}
			w := l.succ[top.v][top.i]
			top.i++
			switch color[w] {
			case gray:
				back[[2]int{top.v, w}] = true
			case white:
				color[w] = gray
				stack = append(stack, frame{v: w})
			}
		}
	}

	for v := range l.ids {
		if len(l.pred[v]) == 0 && color[v] == white {
			visit(v)
		}
	}
	for v := range l.ids {
		if color[v] == white {
			visit(v)
		}
	}
	if len(back) == 0 {
		return
	}

	for u := range l.succ {
		l.succ[u] = filter(l.succ[u], func(v int) bool { return !back[[2]int{u, v}] })
	}
	for v := range l.pred {
		l.pred[v] = filter(l.pred[v], func(u int) bool { return !back[[2]int{u, v}] })
	}
}

// assignRanks places every node one rank after its furthest predecessor.
func (l *layered) assignRanks() {
	l.rank = make([]int, len(l.ids))
	indegree := make([]int, len(l.ids))
	var queue []int
	for v := range l.ids {
		indegree[v] = len(l.pred[v])
		if indegree[v] == 0 {
			queue = append(queue, v)
		}
	}

	maxRank := 0
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range l.succ[u] {
			if l.rank[u]+1 > l.rank[v] {
				l.rank[v] = l.rank[u] + 1
				maxRank = max(maxRank, l.rank[v])
			}
			indegree[v]--
			if indegree[v] == 0 {
				queue = append(queue, v)
			}
		}
	}

	l.ranks = make([][]int, maxRank+1)
	for v := range l.ids {
		l.ranks[l.rank[v]] = append(l.ranks[l.rank[v]], v)
	}
}

// order reduces crossings with alternating barycenter sweeps and keeps the
// best ordering seen.
func (l *layered) order() {
	best := cloneRanks(l.ranks)
	bestCrossings := l.crossings()

	for i := 0; i < sweeps && bestCrossings > 0; i++ {
		for r := 1; r < len(l.ranks); r++ {
			l.sortByBarycenter(r, l.pred)
		}
		for r := len(l.ranks) - 2; r >= 0; r-- {
			l.sortByBarycenter(r, l.succ)
		}
		if c := l.crossings(); c < bestCrossings {
			bestCrossings = c
			best = cloneRanks(l.ranks)
		}
	}
	l.ranks = best
}

func (l *layered) positions() []int {
	pos := make([]int, len(l.ids))
	for _, rank := range l.ranks {
		for i, v := range rank {
			pos[v] = i
		}
	}
	return pos
}

// sortByBarycenter reorders rank r by the mean position of each node's
// neighbours. Nodes without neighbours keep their current slot.
func (l *layered) sortByBarycenter(r int, neighbours [][]int) {
	pos := l.positions()
	rank := l.ranks[r]
	weight := make(map[int]float64, len(rank))
	for i, v := range rank {
		if len(neighbours[v]) == 0 {
			weight[v] = float64(i)
			continue
		}
		sum := 0
		for _, u := range neighbours[v] {
			sum += pos[u]
		}
		weight[v] = float64(sum) / float64(len(neighbours[v]))
	}
	sort.SliceStable(rank, func(i, j int) bool { return weight[rank[i]] < weight[rank[j]] })
}

// crossings counts edge pairs that cross between adjacent ranks.
func (l *layered) crossings() int {
	pos := l.positions()
	total := 0
	for r := 0; r+1 < len(l.ranks); r++ {
		var segs [][2]int
		for _, u := range l.ranks[r] {
			for _, v := range l.succ[u] {
				if l.rank[v] == r+1 {
					segs = append(segs, [2]int{pos[u], pos[v]})
				}
			}
		}
		for i := range segs {
			for j := i + 1; j < len(segs); j++ {
				a, b := segs[i], segs[j]
				if (a[0] < b[0] && a[1] > b[1]) || (a[0] > b[0] && a[1] < b[1]) {
					total++
				}
			}
		}
	}
	return total
}

// place turns rank and order into center coordinates. Ranks run along x and
// each rank is centred vertically against the tallest one.
func (e *Engine) place(l *layered, nodes []graph.Node) map[string]graph.Position {
	width := make([]float64, len(l.ids))
	height := make([]float64, len(l.ids))
	for _, n := range nodes {
		v := l.index[n.ID]
		width[v] = e.NodeWidth
		if n.Width > 0 {
			width[v] = n.Width
		}
		height[v] = e.NodeHeight
		if n.Height > 0 {
			height[v] = n.Height
		}
	}

	spans := make([]float64, len(l.ranks))
	tallest := 0.0
	for r, rank := range l.ranks {
		for i, v := range rank {
			spans[r] += height[v]
			if i > 0 {
				spans[r] += e.NodeSep
			}
		}
		tallest = max(tallest, spans[r])
	}

	out := make(map[string]graph.Position, len(l.ids))
	x := 0.0
	for r, rank := range l.ranks {
		rankWidth := 0.0
		for _, v := range rank {
			rankWidth = max(rankWidth, width[v])
		}
		y := (tallest - spans[r]) / 2
		for _, v := range rank {
			out[l.ids[v]] = graph.Position{X: x + rankWidth/2, Y: y + height[v]/2}
			y += height[v] + e.NodeSep
		}
		x += rankWidth + e.RankSep
	}
	return out
}

func filter(in []int, keep func(int) bool) []int {
	out := in[:0]
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func cloneRanks(ranks [][]int) [][]int {
	out := make([][]int, len(ranks))
	for i, r := range ranks {
		out[i] = append([]int(nil), r...)
	}
	return out
}
