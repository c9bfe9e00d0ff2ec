package graph

// Viewport is the canvas pan and zoom.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// Record is the plain-data form of a graph exchanged with persistence.
type Record struct {
	Nodes    []Node    `json:"nodes" validate:"dive"`
	Edges    []Edge    `json:"edges" validate:"dive"`
	Viewport *Viewport `json:"viewport,omitempty"`
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := Record{
		Nodes: make([]Node, len(r.Nodes)),
		Edges: make([]Edge, len(r.Edges)),
	}
	for i, n := range r.Nodes {
		out.Nodes[i] = n.Clone()
	}
	for i, e := range r.Edges {
		out.Edges[i] = e.Clone()
	}
	if r.Viewport != nil {
		v := *r.Viewport
		out.Viewport = &v
	}
	return out
}
