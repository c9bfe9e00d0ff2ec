package rag

import (
	"context"
	"fmt"
	"strconv"

	"github.com/flowgraph/blockgraph/pkg/blockgraph"
	"github.com/flowgraph/blockgraph/pkg/prebuilt"
	"github.com/flowgraph/blockgraph/pkg/validation"
)

// ClassifierID is the routing block of the routed template.
const ClassifierID = "classifier"

// Route is one topic the classifier can pick, answered from its own datasets.
type Route struct {
	Name       string   `validate:"required"`
	DatasetIDs []string `validate:"min=1,dive,required"`
}

// RoutedRAGConfig defines inputs to the Routed RAG builder. Questions matching
// no route go to a fallback llm without retrieval.
type RoutedRAGConfig struct {
	Title        string  `validate:"required"`
	Routes       []Route `validate:"min=1,max=8,dive"`
	TopK         int     `validate:"min=1,max=20"`
	Model        ModelConfig
	SystemPrompt string
	Fallback     string `validate:"required"`
}

// DefaultRoutedRAGConfig returns a two-topic support configuration.
func DefaultRoutedRAGConfig() RoutedRAGConfig {
	return RoutedRAGConfig{
		Title: "Support Router",
		Routes: []Route{
			{Name: "Billing", DatasetIDs: []string{"billing-docs"}},
			{Name: "Product", DatasetIDs: []string{"product-docs", "release-notes"}},
		},
		TopK:         4,
		Model:        ModelConfig{Provider: "openai", Name: "gpt-4o-mini", Mode: "chat"},
		SystemPrompt: "Answer the question using only the context below.\n{{#context#}}",
		Fallback:     "Other",
	}
}

// ValidateRoutedConfig checks a Routed RAG configuration.
func ValidateRoutedConfig(cfg RoutedRAGConfig) error {
	return validation.ValidateWithPlayground(&cfg)
}

// NewRoutedRAG returns the "routed_rag" prebuilt. A question classifier picks
// a route; each route retrieves from its datasets and answers through its
// own llm and answer blocks.
func NewRoutedRAG() prebuilt.Builder {
	return prebuilt.NewBuildFunc("routed_rag", func(ctx context.Context, cfg any) (blockgraph.Record, error) {
		c := DefaultRoutedRAGConfig()
		if cfg != nil {
			typed, ok := cfg.(RoutedRAGConfig)
			if !ok {
				return blockgraph.Record{}, fmt.Errorf("invalid config type for routed_rag, expected RoutedRAGConfig")
			}
			c = typed
		}

		if err := ValidateRoutedConfig(c); err != nil {
			return blockgraph.Record{}, fmt.Errorf("invalid configuration: %w", err)
		}

		fallback := strconv.Itoa(len(c.Routes) + 1)
		classes := make([]map[string]any, 0, len(c.Routes)+1)
		for i, r := range c.Routes {
			classes = append(classes, map[string]any{"id": strconv.Itoa(i + 1), "name": r.Name})
		}
		classes = append(classes, map[string]any{"id": fallback, "name": c.Fallback})

		a := prebuilt.NewAssembler().
			Block(StartID, startData(c.Title)).
			Block(ClassifierID, map[string]any{
				"type":                    "question-classifier",
				"title":                   "Question Classifier",
				"query_variable_selector": []string{StartID, "query"},
				"classes":                 classes,
				"instruction":             "",
			}).
			Link(StartID, "", ClassifierID)

		for i, r := range c.Routes {
			class := strconv.Itoa(i + 1)
			retrieval, llm, answer := RetrievalID+"_"+class, LLMID+"_"+class, AnswerID+"_"+class
			a.Block(retrieval, retrievalData(r.Name+" Retrieval", r.DatasetIDs, c.TopK)).
				Block(llm, llmData(r.Name+" LLM", c.Model, c.SystemPrompt, retrieval)).
				Block(answer, answerData(r.Name+" Answer", llm)).
				Link(ClassifierID, class, retrieval).
				Link(retrieval, "", llm).
				Link(llm, "", answer)
		}

		llm, answer := LLMID+"_"+fallback, AnswerID+"_"+fallback
		a.Block(llm, llmData(c.Fallback+" LLM", c.Model, "Answer the question briefly.", "")).
			Block(answer, answerData(c.Fallback+" Answer", llm)).
			Link(ClassifierID, fallback, llm).
			Link(llm, "", answer)

		return a.Record()
	})
}
