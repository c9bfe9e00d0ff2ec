// Package graph provides node definitions
package graph

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// NodeTypeCustom is the renderer type every workflow block is drawn with.
const NodeTypeCustom = "custom"

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node represents a placed block.
// PRINCIPLES:
// - KISS: Data stays an opaque JSON payload owned by the node
// - SRP: Only responsible for node data; traversal lives elsewhere
type Node struct {
	ID       string          `json:"id" validate:"required,node_id"`
	Type     string          `json:"type,omitempty"`
	Position *Position       `json:"position,omitempty"`
	Width    float64         `json:"width,omitempty"`
	Height   float64         `json:"height,omitempty"`
	Data     json.RawMessage `json:"data"`
}

// Kind returns the block kind stored under data.type.
func (n Node) Kind() BlockKind {
	return BlockKind(gjson.GetBytes(n.Data, "type").String())
}

// Title returns data.title, or the id when the block is untitled.
func (n Node) Title() string {
	if t := gjson.GetBytes(n.Data, "title").String(); t != "" {
		return t
	}
	return n.ID
}

// Clone returns a copy that shares no mutable state with n.
func (n Node) Clone() Node {
	out := n
	if n.Position != nil {
		p := *n.Position
		out.Position = &p
	}
	if n.Data != nil {
		out.Data = bytes.Clone(n.Data)
	}
	return out
}

// Validate ensures node integrity
func (n *Node) Validate() error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if !n.Kind().Valid() {
		return ErrInvalidBlockKind
	}
	return nil
}
