package validation

import (
	"fmt"

	coregraph "github.com/flowgraph/blockgraph/internal/core/graph"
	"github.com/flowgraph/blockgraph/internal/core/variable"
)

// GraphValidationOptions controls optional validation checks.
type GraphValidationOptions struct {
	// RequireStart demands exactly one start block.
	RequireStart bool
	// CheckCycles enables detection of directed cycles.
	CheckCycles bool
}

// ValidateRecord performs structural validation on a graph record.
// It is intended for records loaded from external sources, where the
// builder's own connection gate may have been bypassed.
func ValidateRecord(r coregraph.Record, opts ...GraphValidationOptions) error {
	var cfg GraphValidationOptions
	if len(opts) > 0 {
		cfg = opts[0]
	}

	if err := ValidateWithPlayground(&r); err != nil {
		return err
	}

	// Validate all nodes
	nodes := make(map[string]coregraph.BlockKind, len(r.Nodes))
	var starts []string
	for _, n := range r.Nodes {
		if err := n.Validate(); err != nil {
			return fmt.Errorf("node %q: %w", n.ID, err)
		}
		if _, dup := nodes[n.ID]; dup {
			return fmt.Errorf("node %q: %w", n.ID, coregraph.ErrDuplicateNode)
		}
		nodes[n.ID] = n.Kind()
		if n.Kind() == coregraph.BlockStart {
			starts = append(starts, n.ID)
		}
		if err := validateReferences(n); err != nil {
			return err
		}
	}

	// Validate edges and endpoints
	seenIDs := make(map[string]struct{}, len(r.Edges))
	var seen []coregraph.Edge
	for _, e := range r.Edges {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("edge %q: %w", e.ID, err)
		}
		if _, ok := nodes[e.Source]; !ok {
			return fmt.Errorf("edge %q: %w", e.ID, coregraph.ErrSourceNodeNotFound)
		}
		if _, ok := nodes[e.Target]; !ok {
			return fmt.Errorf("edge %q: %w", e.ID, coregraph.ErrTargetNodeNotFound)
		}
		if _, dup := seenIDs[e.ID]; dup {
			return fmt.Errorf("edge %q: %w", e.ID, coregraph.ErrDuplicateEdge)
		}
		for _, prev := range seen {
			if prev.SamePorts(e) {
				return fmt.Errorf("edge %q: %w", e.ID, coregraph.ErrDuplicateEdge)
			}
		}
		seenIDs[e.ID] = struct{}{}
		seen = append(seen, e)

		if nodes[e.Target] == coregraph.BlockStart {
			return fmt.Errorf("edge %q: %w", e.ID, coregraph.ErrStartHasIncomers)
		}
	}

	if cfg.RequireStart {
		switch {
		case len(starts) == 0:
			return coregraph.ErrNoStartNode
		case len(starts) > 1:
			return fmt.Errorf("%w: %v", coregraph.ErrMultipleStartNodes, starts)
		}
	}

	if cfg.CheckCycles && hasCycle(r) {
		return coregraph.ErrCyclicGraph
	}

	return nil
}

// validateReferences checks that every structured selector in the node is
// either unset or names a producer and a path.
func validateReferences(n coregraph.Node) error {
	for _, ref := range variable.References(n) {
		if ref.Template || ref.Selector.IsEmpty() || ref.Selector.Valid() {
			continue
		}
		return fmt.Errorf("node %q field %s: %w", n.ID, ref.Path, coregraph.ErrInvalidSelector)
	}
	return nil
}

// hasCycle detects any cycle in a directed graph using DFS with coloring.
func hasCycle(r coregraph.Record) bool {
	const (
		white = 0 // unvisited
		gray  = 1 // visiting
		black = 2 // visited
	)
	color := make(map[string]int, len(r.Nodes))
	adj := make(map[string][]string, len(r.Nodes))
	for _, e := range r.Edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	var dfs func(string) bool
	dfs = func(u string) bool {
		color[u] = gray
		for _, v := range adj[u] {
			if color[v] == gray {
				return true // back-edge
			}
			if color[v] == white {
				if dfs(v) {
					return true
				}
			}
		}
		color[u] = black
		return false
	}
	for _, n := range r.Nodes {
		if color[n.ID] == white {
			if dfs(n.ID) {
				return true
			}
		}
	}
	return false
}
