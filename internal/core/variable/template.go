package variable

import (
	"regexp"
	"strings"

	"github.com/flowgraph/blockgraph/internal/core/graph"
)

// placeholder matches {{#nodeId.path#}} references inside free text.
var placeholder = regexp.MustCompile(`\{\{#([a-zA-Z0-9_-]{1,50}(?:\.[a-zA-Z_][a-zA-Z0-9_]{0,29}){1,10})#\}\}`)

// TemplateSelectors returns the selectors referenced by placeholders in text,
// in order of appearance.
func TemplateSelectors(text string) []graph.ValueSelector {
	var out []graph.ValueSelector
	for _, m := range placeholder.FindAllStringSubmatch(text, -1) {
		out = append(out, graph.ValueSelector(strings.Split(m[1], ".")))
	}
	return out
}

// Placeholder renders sel as a template reference.
func Placeholder(sel graph.ValueSelector) string {
	return "{{#" + sel.String() + "#}}"
}

// rewriteTemplate rebases every placeholder under old onto next. With an empty
// next the placeholders are removed.
func rewriteTemplate(text string, old, next graph.ValueSelector) (string, bool) {
	changed := false
	out := placeholder.ReplaceAllStringFunc(text, func(m string) string {
		sel := graph.ValueSelector(strings.Split(placeholder.FindStringSubmatch(m)[1], "."))
		if !matches(sel, old, next) {
			return m
		}
		changed = true
		if len(next) == 0 {
			return ""
		}
		return Placeholder(sel.Rebase(old, next))
	})
	return out, changed
}
