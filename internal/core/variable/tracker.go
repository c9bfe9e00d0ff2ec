// Package variable keeps value selectors consistent across a workflow graph.
// It finds the blocks that reference a producer's output and rewrites or
// clears those references when the output is renamed or removed.
//
// References live in two shapes inside a node's opaque data payload:
// structured selectors (JSON string arrays such as ["3","output"]) and
// {{#3.output#}} placeholders embedded in free text. Both are located through
// the per-kind field table in fields.go.
package variable

import (
	"github.com/flowgraph/blockgraph/internal/core/graph"
	"github.com/flowgraph/blockgraph/internal/core/traversal"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Reference is one selector found inside a node payload.
type Reference struct {
	// Path is the concrete gjson path of the field holding the selector.
	Path     string
	Selector graph.ValueSelector
	// Template is set when the selector came from a {{#...#}} placeholder.
	Template bool
}

// References lists every selector embedded in the node's payload.
func References(n graph.Node) []Reference {
	var out []Reference
	for _, pattern := range referenceFields[n.Kind()] {
		for _, path := range expand(n.Data, pattern) {
			v := gjson.GetBytes(n.Data, path)
			if sel, ok := selectorAt(v); ok {
				out = append(out, Reference{Path: path, Selector: sel})
				continue
			}
			if v.Type == gjson.String {
				for _, sel := range TemplateSelectors(v.String()) {
					out = append(out, Reference{Path: path, Selector: sel, Template: true})
				}
			}
		}
	}
	return out
}

// referencesSelector reports whether the node payload references sel or any
// output nested under it.
func referencesSelector(n graph.Node, sel graph.ValueSelector) bool {
	if !sel.Valid() {
		return false
	}
	for _, ref := range References(n) {
		if ref.Selector.HasPrefix(sel) {
			return true
		}
	}
	return false
}

// FindReferencingNodes returns the candidates whose payload references sel,
// either exactly or through a path nested under it.
func FindReferencingNodes(sel graph.ValueSelector, candidates []graph.Node) []graph.Node {
	var out []graph.Node
	for _, n := range candidates {
		if referencesSelector(n, sel) {
			out = append(out, n)
		}
	}
	return out
}

// IsSelectorStillUsed reports whether any block downstream of the selector's
// producer references it. A selector whose producer is gone is not used.
func IsSelectorStillUsed(g *graph.Graph, sel graph.ValueSelector) bool {
	if !sel.Valid() {
		return false
	}
	return len(FindReferencingNodes(sel, traversal.DescendantsInBranch(g, sel.NodeID()))) > 0
}

// PropagateRename rewrites every reference to old, among the blocks
// downstream of its producer, to point at next. It returns the new snapshot
// and the ids of the rewritten blocks. When nothing changes g is returned.
func PropagateRename(g *graph.Graph, old, next graph.ValueSelector) (*graph.Graph, []string) {
	if !next.Valid() || old.Equal(next) {
		return g, nil
	}
	return propagate(g, old, next)
}

// PropagateRemoval clears every reference to sel among the blocks downstream
// of its producer. Structured selectors become empty arrays and template
// placeholders are dropped from the text.
func PropagateRemoval(g *graph.Graph, sel graph.ValueSelector) (*graph.Graph, []string) {
	return propagate(g, sel, graph.ValueSelector{})
}

func propagate(g *graph.Graph, old, next graph.ValueSelector) (*graph.Graph, []string) {
	if !old.Valid() {
		return g, nil
	}

	replaced := make(map[string]graph.Node)
	var changed []string
	for _, n := range FindReferencingNodes(old, traversal.DescendantsInBranch(g, old.NodeID())) {
		if rewritten, ok := RewriteNode(n, old, next); ok {
			replaced[n.ID] = rewritten
			changed = append(changed, n.ID)
		}
	}
	if len(changed) == 0 {
		return g, nil
	}

	nodes := g.Nodes()
	for i, n := range nodes {
		if r, ok := replaced[n.ID]; ok {
			nodes[i] = r
		}
	}
	return g.WithNodes(nodes), changed
}

// RewriteNode returns a copy of n with every reference under old rebased onto
// next, or cleared when next is empty. Fields that do not reference old are
// left byte-for-byte intact.
func RewriteNode(n graph.Node, old, next graph.ValueSelector) (graph.Node, bool) {
	out := n.Clone()
	changed := false
	for _, pattern := range referenceFields[n.Kind()] {
		for _, path := range expand(out.Data, pattern) {
			v := gjson.GetBytes(out.Data, path)

			var value any
			if sel, ok := selectorAt(v); ok {
				if !matches(sel, old, next) {
					continue
				}
				value = []string(sel.Rebase(old, next))
			} else if v.Type == gjson.String {
				text, ok := rewriteTemplate(v.String(), old, next)
				if !ok {
					continue
				}
				value = text
			} else {
				continue
			}

			data, err := sjson.SetBytes(out.Data, path, value)
			if err != nil {
				continue
			}
			out.Data = data
			changed = true
		}
	}
	return out, changed
}

// matches reports whether sel must be rewritten when old becomes next. A
// selector already under next is skipped when next extends old, which keeps a
// repeated rename from nesting the path again.
func matches(sel, old, next graph.ValueSelector) bool {
	if !sel.HasPrefix(old) {
		return false
	}
	if next.HasPrefix(old) && sel.HasPrefix(next) {
		return false
	}
	return true
}
