package blockgraph

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntime_OpenEditSave(t *testing.T) {
	rt := NewRuntime()
	ctx := context.Background()

	s, err := rt.Open(ctx, "app-1")
	require.NoError(t, err)
	start, ok := s.Snapshot().Start()
	require.True(t, ok)

	llm, err := s.AddNode(Node{Data: json.RawMessage(`{"type":"llm","title":"LLM"}`)})
	require.NoError(t, err)
	_, ok = s.Connect(Edge{Source: start.ID, Target: llm.ID})
	require.True(t, ok)

	before := s.Hash()
	require.NoError(t, s.Save(ctx))
	assert.NotEqual(t, before, s.Hash())

	reopened, err := rt.Open(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, s.Hash(), reopened.Hash())
	assert.Equal(t, 2, reopened.Snapshot().Len())
	assert.Equal(t, []string{llm.ID}, reopened.Snapshot().OutgoerIDs(start.ID))
}

func TestRuntime_StaleSessionConflicts(t *testing.T) {
	rt := NewRuntime()
	ctx := context.Background()

	first, err := rt.Open(ctx, "app-1")
	require.NoError(t, err)
	second, err := rt.Open(ctx, "app-1")
	require.NoError(t, err)

	_, err = first.AddNode(Node{Data: json.RawMessage(`{"type":"end"}`)})
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx))

	_, err = second.AddNode(Node{Data: json.RawMessage(`{"type":"answer"}`)})
	require.NoError(t, err)
	assert.ErrorIs(t, second.Save(ctx), ErrDraftConflict)
}

func TestRuntime_Publish(t *testing.T) {
	rt := NewRuntime()
	ctx := context.Background()

	_, err := rt.Published(ctx, "app-1")
	assert.Error(t, err)

	s, err := rt.Open(ctx, "app-1")
	require.NoError(t, err)

	d, err := rt.Publish(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, s.Hash(), d.Hash)

	published, err := rt.Published(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, d.Hash, published.Hash)
}
