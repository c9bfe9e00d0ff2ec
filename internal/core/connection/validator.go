// Package connection gates new edges against the capability table.
package connection

import (
	"fmt"

	"github.com/flowgraph/blockgraph/internal/core/capability"
	"github.com/flowgraph/blockgraph/internal/core/graph"
)

// Validator checks proposed connections between two blocks.
// PRINCIPLES:
// - KISS: Two table lookups per check
// - SRP: Only answers "may A connect to B", never mutates the graph
type Validator struct {
	table capability.Table
}

// NewValidator creates a validator over a read-only capability table.
func NewValidator(table capability.Table) *Validator {
	return &Validator{table: table}
}

// Check explains why a connection from source to target would be refused.
// It returns nil when either endpoint is not in the graph, so callers are not
// blocked while a node is still being placed.
func (v *Validator) Check(g *graph.Graph, source, target string) error {
	src, ok := g.Node(source)
	if !ok {
		return nil
	}
	tgt, ok := g.Node(target)
	if !ok {
		return nil
	}

	srcCap, ok := v.table.Lookup(src.Kind())
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSourceKind, src.Kind())
	}
	tgtCap, ok := v.table.Lookup(tgt.Kind())
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTargetKind, tgt.Kind())
	}

	if !srcCap.AllowsNext(tgt.Kind()) {
		return fmt.Errorf("%w: %s -> %s", ErrNextNotAllowed, src.Kind(), tgt.Kind())
	}
	if !tgtCap.AllowsPrev(src.Kind()) {
		return fmt.Errorf("%w: %s -> %s", ErrPrevNotAllowed, src.Kind(), tgt.Kind())
	}
	return nil
}

// IsValidConnection reports whether an edge from source to target may be
// added.
func (v *Validator) IsValidConnection(g *graph.Graph, source, target string) bool {
	return v.Check(g, source, target) == nil
}
