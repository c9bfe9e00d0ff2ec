// Package storetest is a conformance suite every draft.Store implementation
// runs from its own tests.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/flowgraph/blockgraph/internal/core/draft"
	"github.com/flowgraph/blockgraph/internal/core/graph"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Record returns a small start -> llm graph.
func Record(title string) graph.Record {
	return graph.Record{
		Nodes: []graph.Node{
			{ID: "1", Type: graph.NodeTypeCustom, Position: &graph.Position{X: 80, Y: 282}, Data: json.RawMessage(`{"type":"start","title":"Start"}`)},
			{ID: "2", Type: graph.NodeTypeCustom, Data: json.RawMessage(`{"type":"llm","title":"` + title + `"}`)},
		},
		Edges: []graph.Edge{
			{ID: "1-2", Type: graph.EdgeTypeCustom, Source: "1", SourceHandle: graph.HandleSource, Target: "2", TargetHandle: graph.HandleTarget},
		},
		Viewport: &graph.Viewport{Zoom: 0.7},
	}
}

// NewDraft builds a draft with a second-precision timestamp, which every
// backend stores exactly.
func NewDraft(t *testing.T, appID, title string) *draft.Draft {
	t.Helper()
	d, err := draft.New(appID, Record(title), map[string]any{"opening_statement": title}, time.Now().Truncate(time.Second))
	require.NoError(t, err)
	return d
}

// Run exercises the draft.Store contract against stores built by newStore.
// Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) draft.Store) {
	ctx := context.Background()

	t.Run("save and load", func(t *testing.T) {
		s := newStore(t)
		d := NewDraft(t, "app-1", "v1")
		require.NoError(t, s.Save(ctx, d, ""))

		loaded, err := s.Load(ctx, "app-1")
		require.NoError(t, err)
		assert.Equal(t, d.AppID, loaded.AppID)
		assert.Equal(t, d.Hash, loaded.Hash)
		assert.True(t, d.UpdatedAt.Equal(loaded.UpdatedAt))
		assert.Equal(t, "v1", loaded.Features["opening_statement"])
		assert.Empty(t, cmp.Diff(d.Graph, loaded.Graph))
	})

	t.Run("missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Load(ctx, "nope")
		assert.ErrorIs(t, err, draft.ErrDraftNotFound)
		_, err = s.LoadPublished(ctx, "nope")
		assert.ErrorIs(t, err, draft.ErrNotPublished)
		_, err = s.Publish(ctx, "nope")
		assert.ErrorIs(t, err, draft.ErrDraftNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "nope"), draft.ErrDraftNotFound)
	})

	t.Run("invalid input", func(t *testing.T) {
		s := newStore(t)
		assert.ErrorIs(t, s.Save(ctx, nil, ""), draft.ErrNilDraft)
		assert.ErrorIs(t, s.Save(ctx, &draft.Draft{Hash: "h"}, ""), draft.ErrInvalidAppID)
		_, err := s.Load(ctx, "")
		assert.ErrorIs(t, err, draft.ErrInvalidAppID)
		_, err = s.Publish(ctx, "")
		assert.ErrorIs(t, err, draft.ErrInvalidAppID)
		_, err = s.LoadPublished(ctx, "")
		assert.ErrorIs(t, err, draft.ErrInvalidAppID)
		assert.ErrorIs(t, s.Delete(ctx, ""), draft.ErrInvalidAppID)
	})

	t.Run("hash conflict", func(t *testing.T) {
		s := newStore(t)
		v1 := NewDraft(t, "app-1", "v1")
		require.NoError(t, s.Save(ctx, v1, "stale-but-nothing-stored"))

		v2 := NewDraft(t, "app-1", "v2")
		assert.ErrorIs(t, s.Save(ctx, v2, "stale"), draft.ErrDraftConflict)
		require.NoError(t, s.Save(ctx, v2, v1.Hash))

		v3 := NewDraft(t, "app-1", "v3")
		assert.ErrorIs(t, s.Save(ctx, v3, v1.Hash), draft.ErrDraftConflict)
		require.NoError(t, s.Save(ctx, v3, ""))

		loaded, err := s.Load(ctx, "app-1")
		require.NoError(t, err)
		assert.Equal(t, v3.Hash, loaded.Hash)
	})

	t.Run("create never replaces a draft", func(t *testing.T) {
		s := newStore(t)
		v1 := NewDraft(t, "app-1", "v1")
		require.NoError(t, s.Create(ctx, v1))

		v2 := NewDraft(t, "app-1", "v2")
		assert.ErrorIs(t, s.Create(ctx, v2), draft.ErrDraftExists)

		loaded, err := s.Load(ctx, "app-1")
		require.NoError(t, err)
		assert.Equal(t, v1.Hash, loaded.Hash)
		assert.Equal(t, "v1", loaded.Features["opening_statement"])

		assert.ErrorIs(t, s.Create(ctx, nil), draft.ErrNilDraft)
	})

	t.Run("publish snapshots the draft", func(t *testing.T) {
		s := newStore(t)
		v1 := NewDraft(t, "app-1", "v1")
		require.NoError(t, s.Save(ctx, v1, ""))

		published, err := s.Publish(ctx, "app-1")
		require.NoError(t, err)
		assert.Equal(t, v1.Hash, published.Hash)

		require.NoError(t, s.Save(ctx, NewDraft(t, "app-1", "v2"), v1.Hash))

		again, err := s.LoadPublished(ctx, "app-1")
		require.NoError(t, err)
		assert.Equal(t, v1.Hash, again.Hash)
		assert.Equal(t, "v1", again.Features["opening_statement"])
	})

	t.Run("delete removes both versions", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, NewDraft(t, "app-1", "v1"), ""))
		_, err := s.Publish(ctx, "app-1")
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, NewDraft(t, "app-2", "other"), ""))

		require.NoError(t, s.Delete(ctx, "app-1"))
		_, err = s.Load(ctx, "app-1")
		assert.ErrorIs(t, err, draft.ErrDraftNotFound)
		_, err = s.LoadPublished(ctx, "app-1")
		assert.ErrorIs(t, err, draft.ErrNotPublished)

		_, err = s.Load(ctx, "app-2")
		assert.NoError(t, err)
	})

	t.Run("loaded drafts are copies", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, NewDraft(t, "app-1", "v1"), ""))

		loaded, err := s.Load(ctx, "app-1")
		require.NoError(t, err)
		loaded.Graph.Nodes[0].ID = "mutated"

		again, err := s.Load(ctx, "app-1")
		require.NoError(t, err)
		assert.Equal(t, "1", again.Graph.Nodes[0].ID)
	})
}
