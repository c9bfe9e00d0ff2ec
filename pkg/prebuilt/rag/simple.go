// Package rag provides retrieval-augmented chat templates.
package rag

import (
	"context"
	"fmt"

	"github.com/flowgraph/blockgraph/pkg/blockgraph"
	"github.com/flowgraph/blockgraph/pkg/prebuilt"
	"github.com/flowgraph/blockgraph/pkg/validation"
)

// Block ids used by the templates.
const (
	StartID     = "start"
	RetrievalID = "retrieval"
	LLMID       = "llm"
	AnswerID    = "answer"
)

// ModelConfig names the chat model an llm block calls.
type ModelConfig struct {
	Provider string `json:"provider" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Mode     string `json:"mode" validate:"oneof=chat completion"`
}

// SimpleRAGConfig defines inputs to the Simple RAG builder: one retrieval
// over the given datasets feeding one llm block.
type SimpleRAGConfig struct {
	Title        string   `validate:"required"`
	DatasetIDs   []string `validate:"min=1,dive,required"`
	TopK         int      `validate:"min=1,max=20"`
	Model        ModelConfig
	SystemPrompt string
}

// DefaultSimpleRAGConfig returns a configuration for a single-dataset
// retrieval chat.
func DefaultSimpleRAGConfig() SimpleRAGConfig {
	return SimpleRAGConfig{
		Title:        "Knowledge Base Chat",
		DatasetIDs:   []string{"default"},
		TopK:         4,
		Model:        ModelConfig{Provider: "openai", Name: "gpt-4o-mini", Mode: "chat"},
		SystemPrompt: "Answer the question using only the context below.\n{{#context#}}",
	}
}

// ValidateConfig checks a Simple RAG configuration.
func ValidateConfig(cfg SimpleRAGConfig) error {
	return validation.ValidateWithPlayground(&cfg)
}

// NewSimpleRAG returns the "simple_rag" prebuilt:
// start -> knowledge-retrieval -> llm -> answer.
func NewSimpleRAG() prebuilt.Builder {
	return prebuilt.NewBuildFunc("simple_rag", func(ctx context.Context, cfg any) (blockgraph.Record, error) {
		c := DefaultSimpleRAGConfig()
		if cfg != nil {
			typed, ok := cfg.(SimpleRAGConfig)
			if !ok {
				return blockgraph.Record{}, fmt.Errorf("invalid config type for simple_rag, expected SimpleRAGConfig")
			}
			c = typed
		}

		// Validate configuration before proceeding
		if err := ValidateConfig(c); err != nil {
			return blockgraph.Record{}, fmt.Errorf("invalid configuration: %w", err)
		}

		a := prebuilt.NewAssembler().
			Block(StartID, startData(c.Title)).
			Block(RetrievalID, retrievalData("Knowledge Retrieval", c.DatasetIDs, c.TopK)).
			Block(LLMID, llmData("LLM", c.Model, c.SystemPrompt, RetrievalID)).
			Block(AnswerID, answerData("Answer", LLMID)).
			Link(StartID, "", RetrievalID).
			Link(RetrievalID, "", LLMID).
			Link(LLMID, "", AnswerID)
		return a.Record()
	})
}

func startData(title string) map[string]any {
	return map[string]any{
		"type":  "start",
		"title": title,
		"desc":  "",
		"variables": []map[string]any{
			{"variable": "query", "label": "Query", "type": "text-input", "required": true, "max_length": 256},
		},
	}
}

func retrievalData(title string, datasets []string, topK int) map[string]any {
	return map[string]any{
		"type":                    "knowledge-retrieval",
		"title":                   title,
		"query_variable_selector": []string{StartID, "query"},
		"dataset_ids":             datasets,
		"retrieval_mode":          "multiple",
		"multiple_retrieval_config": map[string]any{
			"top_k": topK,
		},
	}
}

// llmData builds an llm block that answers the start query with the result
// of contextFrom as its context.
func llmData(title string, model ModelConfig, system, contextFrom string) map[string]any {
	return map[string]any{
		"type":  "llm",
		"title": title,
		"model": map[string]any{
			"provider":          model.Provider,
			"name":              model.Name,
			"mode":              model.Mode,
			"completion_params": map[string]any{"temperature": 0.7},
		},
		"prompt_template": []map[string]any{
			{"role": "system", "text": system},
			{"role": "user", "text": "{{#" + StartID + ".query#}}"},
		},
		"context": map[string]any{
			"enabled":           contextFrom != "",
			"variable_selector": contextSelector(contextFrom),
		},
	}
}

func contextSelector(from string) []string {
	if from == "" {
		return []string{}
	}
	return []string{from, "result"}
}

func answerData(title, from string) map[string]any {
	return map[string]any{
		"type":   "answer",
		"title":  title,
		"answer": "{{#" + from + ".text#}}",
	}
}
