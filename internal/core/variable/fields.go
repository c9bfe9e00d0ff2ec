package variable

import (
	"strconv"
	"strings"

	"github.com/flowgraph/blockgraph/internal/core/graph"
	"github.com/tidwall/gjson"
)

// referenceFields lists, per block kind, the gjson paths inside node data that
// may hold a value selector (a JSON string array) or a template string with
// {{#node.path#}} placeholders. "#" expands every array element and "*"
// every object value.
var referenceFields = map[graph.BlockKind][]string{
	graph.BlockEnd: {
		"outputs.#.value_selector",
	},
	graph.BlockAnswer: {
		"answer",
		"variables.#.value_selector",
	},
	graph.BlockLLM: {
		"prompt_template.#.text",
		"prompt_template.text",
		"context.variable_selector",
		"variables.#.value_selector",
	},
	graph.BlockKnowledgeRetrieval: {
		"query_variable_selector",
	},
	graph.BlockQuestionClassifier: {
		"query_variable_selector",
		"instruction",
	},
	graph.BlockIfElse: {
		"conditions.#.variable_selector",
		"cases.#.conditions.#.variable_selector",
	},
	graph.BlockCode: {
		"variables.#.value_selector",
	},
	graph.BlockTemplateTransform: {
		"variables.#.value_selector",
	},
	graph.BlockHTTPRequest: {
		"variables.#.value_selector",
		"url",
		"headers",
		"params",
		"body.data",
	},
	graph.BlockVariableAssigner: {
		"variables.#",
	},
	graph.BlockTool: {
		"tool_parameters.*.value",
	},
}

// expand resolves a field pattern against data and returns the concrete paths
// that exist, in document order.
func expand(data []byte, pattern string) []string {
	type item struct {
		prefix string
		rest   []string
	}

	var out []string
	queue := []item{{rest: strings.Split(pattern, ".")}}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]

		if len(it.rest) == 0 {
			if it.prefix != "" && gjson.GetBytes(data, it.prefix).Exists() {
				out = append(out, it.prefix)
			}
			continue
		}

		seg, rest := it.rest[0], it.rest[1:]
		switch seg {
		case "#":
			v := lookup(data, it.prefix)
			if !v.IsArray() {
				continue
			}
			for i := range v.Array() {
				queue = append(queue, item{prefix: join(it.prefix, strconv.Itoa(i)), rest: rest})
			}
		case "*":
			v := lookup(data, it.prefix)
			if !v.IsObject() {
				continue
			}
			v.ForEach(func(key, _ gjson.Result) bool {
				queue = append(queue, item{prefix: join(it.prefix, escapeKey(key.String())), rest: rest})
				return true
			})
		default:
			queue = append(queue, item{prefix: join(it.prefix, seg), rest: rest})
		}
	}
	return out
}

func lookup(data []byte, path string) gjson.Result {
	if path == "" {
		return gjson.ParseBytes(data)
	}
	return gjson.GetBytes(data, path)
}

func join(prefix, seg string) string {
	if prefix == "" {
		return seg
	}
	return prefix + "." + seg
}

// escapeKey makes an object key safe to use as a single gjson/sjson path
// segment.
func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '!', '=', '<', '>', '%', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// selectorAt returns the selector stored at a resolved path, if the value is
// an array of strings.
func selectorAt(v gjson.Result) (graph.ValueSelector, bool) {
	if !v.IsArray() {
		return nil, false
	}
	items := v.Array()
	sel := make(graph.ValueSelector, 0, len(items))
	for _, item := range items {
		if item.Type != gjson.String {
			return nil, false
		}
		sel = append(sel, item.String())
	}
	return sel, true
}
