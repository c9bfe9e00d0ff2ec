// Package graph provides edge definitions
package graph

// EdgeTypeCustom is the renderer type for workflow connections.
const EdgeTypeCustom = "custom"

// Default port names. Branch blocks use their branch ids as source handles.
const (
	HandleSource = "source"
	HandleTarget = "target"
)

// EdgeData carries the block kinds on both ends of a connection.
type EdgeData struct {
	SourceType BlockKind `json:"sourceType,omitempty"`
	TargetType BlockKind `json:"targetType,omitempty"`
}

// Edge represents a connection between two node ports
// PRINCIPLES:
// - KISS: Simple edge representation
// - SRP: Only responsible for edge data
type Edge struct {
	ID           string    `json:"id" validate:"required"`
	Type         string    `json:"type,omitempty"`
	Source       string    `json:"source" validate:"required"`
	SourceHandle string    `json:"sourceHandle,omitempty"`
	Target       string    `json:"target" validate:"required"`
	TargetHandle string    `json:"targetHandle,omitempty"`
	Data         *EdgeData `json:"data,omitempty"`
}

// Validate ensures edge integrity
// PRINCIPLES:
// - SRP: Single responsibility - validation only
// - KISS: Simple validation, <10 lines
func (e *Edge) Validate() error {
	if e.ID == "" {
		return ErrInvalidEdgeID
	}
	if e.Source == "" {
		return ErrInvalidSource
	}
	if e.Target == "" {
		return ErrInvalidTarget
	}
	if e.Source == e.Target {
		return ErrSelfLoop
	}
	return nil
}

// Clone returns a copy that shares no mutable state with e.
func (e Edge) Clone() Edge {
	out := e
	if e.Data != nil {
		d := *e.Data
		out.Data = &d
	}
	return out
}

// SamePorts reports whether both edges join the same pair of ports.
func (e Edge) SamePorts(other Edge) bool {
	return e.Source == other.Source && e.Target == other.Target &&
		handleOr(e.SourceHandle, HandleSource) == handleOr(other.SourceHandle, HandleSource) &&
		handleOr(e.TargetHandle, HandleTarget) == handleOr(other.TargetHandle, HandleTarget)
}

func handleOr(h, def string) string {
	if h == "" {
		return def
	}
	return h
}
