package variable

import (
	"github.com/flowgraph/blockgraph/internal/core/graph"
	"github.com/tidwall/gjson"
)

// fixedOutputs are the output names of kinds whose outputs do not depend on
// configuration.
var fixedOutputs = map[graph.BlockKind][]string{
	graph.BlockLLM:                {"text"},
	graph.BlockKnowledgeRetrieval: {"result"},
	graph.BlockQuestionClassifier: {"class_name"},
	graph.BlockTemplateTransform:  {"output"},
	graph.BlockHTTPRequest:        {"body", "status_code", "headers", "files"},
	graph.BlockTool:               {"text", "files", "json"},
	graph.BlockVariableAssigner:   {"output"},
}

// OutputSelectors lists the selectors a block exposes to downstream blocks.
// Start exposes its declared input variables and code its declared outputs.
func OutputSelectors(n graph.Node) []graph.ValueSelector {
	var names []string
	switch n.Kind() {
	case graph.BlockStart:
		gjson.GetBytes(n.Data, "variables.#.variable").ForEach(func(_, v gjson.Result) bool {
			if v.String() != "" {
				names = append(names, v.String())
			}
			return true
		})
	case graph.BlockCode:
		gjson.GetBytes(n.Data, "outputs").ForEach(func(k, _ gjson.Result) bool {
			names = append(names, k.String())
			return true
		})
	default:
		names = fixedOutputs[n.Kind()]
	}

	out := make([]graph.ValueSelector, 0, len(names))
	for _, name := range names {
		out = append(out, graph.ValueSelector{n.ID, name})
	}
	return out
}

// IsNodeOutputUsed reports whether any output of the block is referenced by a
// block downstream of it.
func IsNodeOutputUsed(g *graph.Graph, nodeID string) bool {
	n, ok := g.Node(nodeID)
	if !ok {
		return false
	}
	for _, sel := range OutputSelectors(n) {
		if IsSelectorStillUsed(g, sel) {
			return true
		}
	}
	return false
}
