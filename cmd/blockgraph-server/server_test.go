package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flowgraph/blockgraph/internal/adapters/repository/memory"
	"github.com/flowgraph/blockgraph/internal/app/draftsync"
	"github.com/flowgraph/blockgraph/internal/app/dto"
	"github.com/flowgraph/blockgraph/internal/config"
	"github.com/flowgraph/blockgraph/internal/core/capability"
	"github.com/flowgraph/blockgraph/internal/core/graph"
	"github.com/flowgraph/blockgraph/internal/infrastructure/metrics"
	"github.com/flowgraph/blockgraph/internal/logging"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	app, _ := newTestAppWithStore(t)
	return app
}

func newTestAppWithStore(t *testing.T) (*fiber.App, *memory.Store) {
	t.Helper()
	m := metrics.NewMetrics()
	store := memory.NewStore(nil)
	s := &server{
		drafts:  draftsync.NewClient(store, draftsync.WithLogger(logging.Discard()), draftsync.WithMetrics(m)),
		table:   capability.Default(),
		logger:  logging.Discard(),
		metrics: m,
		timeout: 5 * time.Second,
	}
	return newApp(s, config.ServerConfig{BodyLimit: 1 << 20}), store
}

func do(t *testing.T, app *fiber.App, method, path string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func node(id, data string) graph.Node {
	return graph.Node{ID: id, Type: graph.NodeTypeCustom, Position: &graph.Position{}, Data: json.RawMessage(data)}
}

func edge(source, target string) graph.Edge {
	return graph.Edge{
		ID:           source + "-source-" + target + "-target",
		Type:         graph.EdgeTypeCustom,
		Source:       source,
		SourceHandle: graph.HandleSource,
		Target:       target,
		TargetHandle: graph.HandleTarget,
	}
}

// chain is start(1) -> llm(2) -> llm(3) where 3 reads 2's text output.
func chain() graph.Record {
	return graph.Record{
		Nodes: []graph.Node{
			node("1", `{"type":"start","title":"Start","variables":[]}`),
			node("2", `{"type":"llm","title":"Draft"}`),
			node("3", `{"type":"llm","title":"Review","prompt_template":[{"role":"user","text":"Check {{#2.text#}}"}],"context":{"enabled":true,"variable_selector":["2","text"]}}`),
		},
		Edges: []graph.Edge{edge("1", "2"), edge("2", "3")},
	}
}

func fetch(t *testing.T, app *fiber.App, appID string) dto.DraftResponse {
	t.Helper()
	status, body := do(t, app, http.MethodGet, "/apps/"+appID+"/workflows/draft", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var d dto.DraftResponse
	require.NoError(t, json.Unmarshal(body, &d))
	return d
}

func seed(t *testing.T, app *fiber.App, appID string) string {
	t.Helper()
	current := fetch(t, app, appID)
	status, body := do(t, app, http.MethodPost, "/apps/"+appID+"/workflows/draft", dto.SyncDraftRequest{
		Graph: chain(),
		Hash:  current.Hash,
	})
	require.Equal(t, http.StatusOK, status, string(body))
	return gjson.GetBytes(body, "hash").String()
}

func TestServer_Health(t *testing.T) {
	app := newTestApp(t)
	status, body := do(t, app, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", string(body))
}

func TestServer_FetchSeedsDefaultDraft(t *testing.T) {
	app := newTestApp(t)
	d := fetch(t, app, "app-1")

	require.Len(t, d.Graph.Nodes, 1)
	assert.Equal(t, graph.BlockStart, d.Graph.Nodes[0].Kind())
	assert.Empty(t, d.Graph.Edges)
	assert.NotEmpty(t, d.Hash)
	assert.NotNil(t, d.Features)

	// A second fetch returns the same seeded draft.
	assert.Equal(t, d.Hash, fetch(t, app, "app-1").Hash)
}

func TestServer_SyncDraft(t *testing.T) {
	app := newTestApp(t)
	hash := seed(t, app, "app-1")
	assert.NotEmpty(t, hash)
	assert.Equal(t, hash, fetch(t, app, "app-1").Hash)

	t.Run("stale hash conflicts", func(t *testing.T) {
		status, body := do(t, app, http.MethodPost, "/apps/app-1/workflows/draft", dto.SyncDraftRequest{
			Graph: chain(),
			Hash:  "stale",
		})
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "draft_workflow_not_sync", gjson.GetBytes(body, "error").String())
	})

	t.Run("dangling edge is rejected", func(t *testing.T) {
		r := chain()
		r.Edges = append(r.Edges, edge("3", "missing"))
		status, _ := do(t, app, http.MethodPost, "/apps/app-1/workflows/draft", dto.SyncDraftRequest{Graph: r})
		assert.Equal(t, http.StatusUnprocessableEntity, status)
	})

	t.Run("graph without start is rejected", func(t *testing.T) {
		r := chain()
		r.Nodes = r.Nodes[1:]
		r.Edges = r.Edges[1:]
		status, _ := do(t, app, http.MethodPost, "/apps/app-1/workflows/draft", dto.SyncDraftRequest{Graph: r})
		assert.Equal(t, http.StatusUnprocessableEntity, status)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/apps/app-1/workflows/draft", bytes.NewBufferString("{"))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestServer_Publish(t *testing.T) {
	app := newTestApp(t)

	status, _ := do(t, app, http.MethodGet, "/apps/app-1/workflows/publish", nil)
	assert.Equal(t, http.StatusNotFound, status)

	hash := seed(t, app, "app-1")
	status, body := do(t, app, http.MethodPost, "/apps/app-1/workflows/publish", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, hash, gjson.GetBytes(body, "hash").String())

	status, body = do(t, app, http.MethodGet, "/apps/app-1/workflows/publish", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(3), gjson.GetBytes(body, "graph.nodes.#").Int())
}

func TestServer_RenameVariable(t *testing.T) {
	app := newTestApp(t)
	seed(t, app, "app-1")

	status, body := do(t, app, http.MethodPost, "/apps/app-1/workflows/draft/variables/rename", dto.RenameVariableRequest{
		From: graph.ValueSelector{"2", "text"},
		To:   graph.ValueSelector{"2", "answer"},
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var resp dto.RewriteResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, []string{"3"}, resp.Nodes)
	assert.Equal(t, resp.Hash, fetch(t, app, "app-1").Hash)

	status, body = do(t, app, http.MethodGet, "/apps/app-1/workflows/draft/variables/used?selector=2.answer", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, gjson.GetBytes(body, "used").Bool())
	assert.Equal(t, `["3"]`, gjson.GetBytes(body, "nodes").Raw)

	status, body = do(t, app, http.MethodGet, "/apps/app-1/workflows/draft/variables/used?selector=2.text", nil)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, gjson.GetBytes(body, "used").Bool())

	tests := []struct {
		name string
		req  dto.RenameVariableRequest
	}{
		{"same selector", dto.RenameVariableRequest{From: graph.ValueSelector{"2", "answer"}, To: graph.ValueSelector{"2", "answer"}}},
		{"other producer", dto.RenameVariableRequest{From: graph.ValueSelector{"2", "answer"}, To: graph.ValueSelector{"1", "answer"}}},
		{"no path", dto.RenameVariableRequest{From: graph.ValueSelector{"2"}, To: graph.ValueSelector{"2", "answer"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := do(t, app, http.MethodPost, "/apps/app-1/workflows/draft/variables/rename", tt.req)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}
}

func TestServer_RemoveVariable(t *testing.T) {
	app := newTestApp(t)
	hash := seed(t, app, "app-1")

	status, body := do(t, app, http.MethodPost, "/apps/app-1/workflows/draft/variables/remove", dto.RemoveVariableRequest{
		Selector: graph.ValueSelector{"2", "text"},
		Hash:     hash,
	})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, `["3"]`, gjson.GetBytes(body, "nodes").Raw)

	d := fetch(t, app, "app-1")
	var review graph.Node
	for _, n := range d.Graph.Nodes {
		if n.ID == "3" {
			review = n
		}
	}
	assert.JSONEq(t, `[]`, gjson.GetBytes(review.Data, "context.variable_selector").Raw)
	assert.Equal(t, "Check ", gjson.GetBytes(review.Data, "prompt_template.0.text").String())

	t.Run("nothing left to remove keeps the hash", func(t *testing.T) {
		status, body := do(t, app, http.MethodPost, "/apps/app-1/workflows/draft/variables/remove", dto.RemoveVariableRequest{
			Selector: graph.ValueSelector{"2", "text"},
		})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, `[]`, gjson.GetBytes(body, "nodes").Raw)
		assert.Equal(t, d.Hash, gjson.GetBytes(body, "hash").String())
	})

	t.Run("stale hash conflicts", func(t *testing.T) {
		status, _ := do(t, app, http.MethodPost, "/apps/app-1/workflows/draft/variables/rename", dto.RenameVariableRequest{
			From: graph.ValueSelector{"2", "text"},
			To:   graph.ValueSelector{"2", "answer"},
			Hash: "stale",
		})
		// Nothing references 2.text any more, so no save is attempted.
		assert.Equal(t, http.StatusOK, status)

		_ = seed(t, app, "app-1")
		status, _ = do(t, app, http.MethodPost, "/apps/app-1/workflows/draft/variables/rename", dto.RenameVariableRequest{
			From: graph.ValueSelector{"2", "text"},
			To:   graph.ValueSelector{"2", "answer"},
			Hash: "stale",
		})
		assert.Equal(t, http.StatusConflict, status)
	})
}

func TestServer_Layout(t *testing.T) {
	app := newTestApp(t)
	seed(t, app, "app-1")

	status, body := do(t, app, http.MethodPost, "/apps/app-1/workflows/draft/layout", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, 0.7, gjson.GetBytes(body, "graph.viewport.zoom").Float())

	d := fetch(t, app, "app-1")
	require.NotNil(t, d.Graph.Viewport)
	assert.Equal(t, 0.7, d.Graph.Viewport.Zoom)

	x := map[string]float64{}
	for _, n := range d.Graph.Nodes {
		require.NotNil(t, n.Position)
		x[n.ID] = n.Position.X
	}
	assert.Less(t, x["1"], x["2"])
	assert.Less(t, x["2"], x["3"])
}

func TestServer_VariableUsageRejectsBadSelector(t *testing.T) {
	app := newTestApp(t)
	for _, q := range []string{"", "?selector=2", "?selector=2..text"} {
		status, _ := do(t, app, http.MethodGet, "/apps/app-1/workflows/draft/variables/used"+q, nil)
		assert.Equal(t, http.StatusBadRequest, status, q)
	}
}

func TestServer_EditsWithoutDraftAreNotFound(t *testing.T) {
	app, store := newTestAppWithStore(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{name: "layout", method: http.MethodPost, path: "/apps/app-1/workflows/draft/layout"},
		{name: "usage", method: http.MethodGet, path: "/apps/app-1/workflows/draft/variables/used?selector=2.text"},
		{name: "rename", method: http.MethodPost, path: "/apps/app-1/workflows/draft/variables/rename", body: dto.RenameVariableRequest{
			From: graph.ValueSelector{"2", "text"}, To: graph.ValueSelector{"2", "answer"},
		}},
		{name: "remove", method: http.MethodPost, path: "/apps/app-1/workflows/draft/variables/remove", body: dto.RemoveVariableRequest{
			Selector: graph.ValueSelector{"2", "text"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, app, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusNotFound, status, string(body))
			assert.Zero(t, store.Len())
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	app := newTestApp(t)
	fetch(t, app, "app-1")

	status, body := do(t, app, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "blockgraph_http_requests_total")
	assert.Contains(t, string(body), `route="/apps/:id/workflows/draft"`)
}
