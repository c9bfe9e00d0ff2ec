package blockgraph

import (
	"context"
	"log/slog"

	"github.com/flowgraph/blockgraph/internal/adapters/repository/memory"
	"github.com/flowgraph/blockgraph/internal/app/draftsync"
	"github.com/flowgraph/blockgraph/internal/app/workflow"
	"github.com/flowgraph/blockgraph/internal/core/capability"
	"github.com/flowgraph/blockgraph/internal/core/draft"
	coregraph "github.com/flowgraph/blockgraph/internal/core/graph"
	"github.com/flowgraph/blockgraph/internal/logging"
)

// Re-export core types for convenience
type (
	Record        = coregraph.Record
	Node          = coregraph.Node
	Edge          = coregraph.Edge
	Position      = coregraph.Position
	Viewport      = coregraph.Viewport
	ValueSelector = coregraph.ValueSelector
	BlockKind     = coregraph.BlockKind
	Workflow      = workflow.Workflow
	Draft         = draft.Draft
	Store         = draft.Store
)

// Errors a session save or publish can report.
var (
	ErrDraftConflict = draft.ErrDraftConflict
	ErrNotPublished  = draft.ErrNotPublished
	ErrInvalidGraph  = draftsync.ErrInvalidGraph
)

// Runtime opens app drafts for editing. The default runtime keeps drafts in
// memory and is suitable for local usage and tests.
type Runtime struct {
	drafts *draftsync.Client
	table  capability.Table
	logger *slog.Logger
}

// NewRuntime constructs a runtime over an in-memory store with the built-in
// capability table.
func NewRuntime() *Runtime {
	return NewRuntimeWithStore(memory.NewStore(nil), capability.Default(), nil)
}

// NewRuntimeWithStore constructs a runtime over store. A nil table selects the
// built-in one and a nil logger discards.
func NewRuntimeWithStore(store Store, table capability.Table, logger *slog.Logger) *Runtime {
	if table == nil {
		table = capability.Default()
	}
	logger = logging.OrDiscard(logger)
	return &Runtime{
		drafts: draftsync.NewClient(store, draftsync.WithLogger(logger)),
		table:  table,
		logger: logger,
	}
}

// Session is one app's draft loaded into an editable workflow. Save writes it
// back guarded by the hash it was loaded with.
type Session struct {
	*workflow.Workflow

	rt       *Runtime
	appID    string
	hash     string
	features map[string]any
}

// Open loads the app's draft, creating the default one on first use.
func (rt *Runtime) Open(ctx context.Context, appID string) (*Session, error) {
	w := workflow.New(workflow.WithCapabilities(rt.table), workflow.WithLogger(rt.logger))
	d, err := rt.drafts.Restore(ctx, appID, w)
	if err != nil {
		return nil, err
	}
	return &Session{Workflow: w, rt: rt, appID: appID, hash: d.Hash, features: d.Features}, nil
}

// Publish copies the app's current draft to its published slot.
func (rt *Runtime) Publish(ctx context.Context, appID string) (*Draft, error) {
	return rt.drafts.Publish(ctx, appID)
}

// Published returns the app's last published version.
func (rt *Runtime) Published(ctx context.Context, appID string) (*Draft, error) {
	return rt.drafts.Published(ctx, appID)
}

// Hash is the hash of the draft this session last loaded or saved.
func (s *Session) Hash() string { return s.hash }

// Save writes the session's graph as the app's draft. It fails with
// ErrDraftConflict when the draft changed since the session last saw it.
func (s *Session) Save(ctx context.Context) error {
	hash, err := s.rt.drafts.SyncWorkflow(ctx, s.appID, s.Workflow, s.features, s.hash)
	if err != nil {
		return err
	}
	s.hash = hash
	return nil
}
