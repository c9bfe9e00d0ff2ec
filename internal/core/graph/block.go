// Package graph provides block kind definitions
package graph

// BlockKind is the discriminant stored in a node's data.type field.
// It is a closed set: every kind the builder can place is listed below.
type BlockKind string

const (
	BlockStart              BlockKind = "start"
	BlockEnd                BlockKind = "end"
	BlockAnswer             BlockKind = "answer"
	BlockLLM                BlockKind = "llm"
	BlockKnowledgeRetrieval BlockKind = "knowledge-retrieval"
	BlockQuestionClassifier BlockKind = "question-classifier"
	BlockIfElse             BlockKind = "if-else"
	BlockCode               BlockKind = "code"
	BlockTemplateTransform  BlockKind = "template-transform"
	BlockHTTPRequest        BlockKind = "http-request"
	BlockVariableAssigner   BlockKind = "variable-assigner"
	BlockTool               BlockKind = "tool"
)

// AllBlockKinds lists every kind in palette order.
var AllBlockKinds = []BlockKind{
	BlockStart,
	BlockEnd,
	BlockAnswer,
	BlockLLM,
	BlockKnowledgeRetrieval,
	BlockQuestionClassifier,
	BlockIfElse,
	BlockCode,
	BlockTemplateTransform,
	BlockHTTPRequest,
	BlockVariableAssigner,
	BlockTool,
}

// outputVarKinds are the kinds whose outputs can be referenced downstream.
var outputVarKinds = map[BlockKind]bool{
	BlockStart:              true,
	BlockLLM:                true,
	BlockKnowledgeRetrieval: true,
	BlockQuestionClassifier: true,
	BlockCode:               true,
	BlockTemplateTransform:  true,
	BlockHTTPRequest:        true,
	BlockTool:               true,
	BlockVariableAssigner:   true,
}

// Valid reports whether k is one of the known block kinds.
func (k BlockKind) Valid() bool {
	for _, known := range AllBlockKinds {
		if k == known {
			return true
		}
	}
	return false
}

// SupportsOutputVars reports whether nodes of this kind expose inspectable
// outputs. Branch and terminal kinds do not.
func (k BlockKind) SupportsOutputVars() bool {
	return outputVarKinds[k]
}

// IsBranch reports whether the kind fans out through several source handles.
func (k BlockKind) IsBranch() bool {
	return k == BlockIfElse || k == BlockQuestionClassifier
}
