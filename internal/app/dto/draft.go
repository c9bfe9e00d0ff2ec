// Package dto holds the request and response bodies of the draft HTTP API.
package dto

import (
	"time"

	"github.com/flowgraph/blockgraph/internal/core/draft"
	"github.com/flowgraph/blockgraph/internal/core/graph"
)

// SyncDraftRequest saves a graph as the app's draft. Hash is the hash the
// client last fetched; leave it empty to overwrite unconditionally.
type SyncDraftRequest struct {
	Graph    graph.Record   `json:"graph"`
	Features map[string]any `json:"features"`
	Hash     string         `json:"hash"`
}

// HashRequest carries only the client's last seen hash.
type HashRequest struct {
	Hash string `json:"hash"`
}

// RenameVariableRequest renames an output selector and rewrites its
// downstream references.
type RenameVariableRequest struct {
	From graph.ValueSelector `json:"from" validate:"required,value_selector"`
	To   graph.ValueSelector `json:"to" validate:"required,value_selector"`
	Hash string              `json:"hash"`
}

// Validate checks the fields tags cannot express.
func (r *RenameVariableRequest) Validate() error {
	if r.From.Equal(r.To) {
		return ErrSameSelector
	}
	if r.From.NodeID() != r.To.NodeID() {
		return ErrForeignOutput
	}
	return nil
}

// RemoveVariableRequest clears every downstream reference to a selector.
type RemoveVariableRequest struct {
	Selector graph.ValueSelector `json:"selector" validate:"required,value_selector"`
	Hash     string              `json:"hash"`
}

// DraftResponse is a stored draft as returned to clients.
type DraftResponse struct {
	Graph     graph.Record   `json:"graph"`
	Features  map[string]any `json:"features"`
	Hash      string         `json:"hash"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewDraftResponse converts a stored draft.
func NewDraftResponse(d *draft.Draft) DraftResponse {
	features := d.Features
	if features == nil {
		features = map[string]any{}
	}
	return DraftResponse{
		Graph:     d.Graph,
		Features:  features,
		Hash:      d.Hash,
		UpdatedAt: d.UpdatedAt,
	}
}

// SyncDraftResponse reports a successful save.
type SyncDraftResponse struct {
	Result    string    `json:"result"`
	Hash      string    `json:"hash"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RewriteResponse reports a graph edit that was saved as the new draft.
type RewriteResponse struct {
	Hash  string       `json:"hash"`
	Nodes []string     `json:"nodes"`
	Graph graph.Record `json:"graph"`
}

// VariableUsageResponse answers whether a selector is still referenced.
type VariableUsageResponse struct {
	Selector graph.ValueSelector `json:"selector"`
	Used     bool                `json:"used"`
	Nodes    []string            `json:"nodes"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Fields any    `json:"fields,omitempty"`
}
