// Package workflow is the editing surface over one workflow graph. It owns the
// current snapshot and exposes the structural queries and the mutations a
// canvas issues: connecting blocks, auto layout, and keeping variable
// references consistent on rename or removal.
package workflow

import (
	"log/slog"
	"sync"

	"github.com/flowgraph/blockgraph/internal/core/capability"
	"github.com/flowgraph/blockgraph/internal/core/connection"
	"github.com/flowgraph/blockgraph/internal/core/graph"
	"github.com/flowgraph/blockgraph/internal/core/layout"
	"github.com/flowgraph/blockgraph/internal/core/traversal"
	"github.com/flowgraph/blockgraph/internal/core/variable"
	"github.com/flowgraph/blockgraph/internal/infrastructure/metrics"
	"github.com/flowgraph/blockgraph/internal/logging"
)

// Workflow wraps a graph.Model with the engine components.
// PRINCIPLES:
// - SRP: Queries read one snapshot; mutations publish one snapshot
// - DIP: Capability table, layout engine, logger and metrics are injected
// - KISS: Writers are serialized by a mutex, readers never block
type Workflow struct {
	model     *graph.Model
	validator *connection.Validator
	layout    *layout.Engine
	logger    *slog.Logger
	metrics   *metrics.Metrics

	// mu serializes writers; readers use the model's atomic snapshot.
	mu sync.Mutex
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithCapabilities replaces the default capability table.
func WithCapabilities(table capability.Table) Option {
	return func(w *Workflow) { w.validator = connection.NewValidator(table) }
}

// WithLayoutEngine replaces the default layout engine.
func WithLayoutEngine(e *layout.Engine) Option {
	return func(w *Workflow) { w.layout = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Workflow) { w.metrics = m }
}

// New creates a workflow holding an empty graph.
func New(opts ...Option) *Workflow {
	w := &Workflow{
		model:     graph.NewModel(),
		validator: connection.NewValidator(capability.Default()),
		layout:    layout.NewEngine(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.OrDiscard(w.logger)
	return w
}

// Snapshot returns the current immutable graph.
func (w *Workflow) Snapshot() *graph.Graph {
	return w.model.Snapshot()
}

// Record exports the current graph and viewport.
func (w *Workflow) Record() graph.Record {
	return w.model.Record()
}

// Viewport returns the current viewport, or nil if none was set.
func (w *Workflow) Viewport() *graph.Viewport {
	return w.model.Viewport()
}

// LeafDescendants lists the output-capable blocks whose values are usable as
// prior context for nodeID.
func (w *Workflow) LeafDescendants(nodeID string) []graph.Node {
	return traversal.LeafDescendants(w.Snapshot(), nodeID)
}

// AncestorsInBranch lists the output-capable blocks upstream of nodeID,
// furthest first.
func (w *Workflow) AncestorsInBranch(nodeID string) []graph.Node {
	return traversal.AncestorsInBranch(w.Snapshot(), nodeID)
}

// DescendantsInBranch lists nodeID and every block downstream of it.
func (w *Workflow) DescendantsInBranch(nodeID string) []graph.Node {
	return traversal.DescendantsInBranch(w.Snapshot(), nodeID)
}

// ReachableFromStart returns the blocks reachable from start and the depth of
// the deepest one.
func (w *Workflow) ReachableFromStart() traversal.Reachable {
	return traversal.ReachableFromStart(w.Snapshot())
}

// IsValidConnection reports whether the capability table allows an edge from
// source to target.
func (w *Workflow) IsValidConnection(source, target string) bool {
	return w.validator.IsValidConnection(w.Snapshot(), source, target)
}

// IsSelectorStillUsed reports whether a block downstream of the selector's
// producer references it.
func (w *Workflow) IsSelectorStillUsed(sel graph.ValueSelector) bool {
	return variable.IsSelectorStillUsed(w.Snapshot(), sel)
}

// IsNodeOutputUsed reports whether any output of nodeID is referenced
// downstream.
func (w *Workflow) IsNodeOutputUsed(nodeID string) bool {
	return variable.IsNodeOutputUsed(w.Snapshot(), nodeID)
}

// ReferencingNodes returns the blocks downstream of the selector's producer
// that reference it.
func (w *Workflow) ReferencingNodes(sel graph.ValueSelector) []graph.Node {
	if !sel.Valid() {
		return nil
	}
	g := w.Snapshot()
	return variable.FindReferencingNodes(sel, traversal.DescendantsInBranch(g, sel.NodeID()))
}

// AvailableSelectors lists the outputs of every output-capable ancestor of
// nodeID, furthest ancestor first. These are the values a block's editor may
// offer for selection.
func (w *Workflow) AvailableSelectors(nodeID string) []graph.ValueSelector {
	var out []graph.ValueSelector
	for _, n := range traversal.AncestorsInBranch(w.Snapshot(), nodeID) {
		out = append(out, variable.OutputSelectors(n)...)
	}
	return out
}
