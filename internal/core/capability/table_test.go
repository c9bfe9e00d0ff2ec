package capability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flowgraph/blockgraph/internal/core/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	table := Default()

	assert.Equal(t, len(graph.AllBlockKinds), len(table.Kinds()))
	for _, k := range graph.AllBlockKinds {
		_, ok := table.Lookup(k)
		assert.True(t, ok, "missing kind %s", k)
	}

	llm, _ := table.Lookup(graph.BlockLLM)
	assert.False(t, llm.AllowsNext(graph.BlockLLM))
	assert.True(t, llm.AllowsNext(graph.BlockEnd))
	assert.True(t, llm.AllowsPrev(graph.BlockStart))

	start, _ := table.Lookup(graph.BlockStart)
	assert.Empty(t, start.AvailablePrevNodes)
	end, _ := table.Lookup(graph.BlockEnd)
	assert.Empty(t, end.AvailableNextNodes)
}

func TestCapability_StartAlwaysPrecedes(t *testing.T) {
	tests := []struct {
		name string
		prev []graph.BlockKind
		kind graph.BlockKind
		want bool
	}{
		{name: "empty list allows start", kind: graph.BlockStart, want: true},
		{name: "empty list refuses llm", kind: graph.BlockLLM, want: false},
		{name: "listed kind", prev: []graph.BlockKind{graph.BlockCode}, kind: graph.BlockCode, want: true},
		{name: "start next to other kinds", prev: []graph.BlockKind{graph.BlockCode}, kind: graph.BlockStart, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Capability{AvailablePrevNodes: tt.prev}
			assert.Equal(t, tt.want, c.AllowsPrev(tt.kind))
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{name: "valid", yaml: "llm:\n  next: [end]\n  prev: [start]\nend:\n  prev: [llm]\n"},
		{name: "empty", yaml: "", wantErr: ErrEmptyTable},
		{name: "unknown key", yaml: "webhook:\n  next: [end]\n", wantErr: ErrUnknownKind},
		{name: "unknown neighbour", yaml: "llm:\n  next: [webhook]\n", wantErr: ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := Parse([]byte(tt.yaml))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, table)
			} else {
				require.NoError(t, err)
				assert.Equal(t, []graph.BlockKind{graph.BlockEnd, graph.BlockLLM}, table.Kinds())
			}
		})
	}

	_, err := Parse([]byte("llm: ["))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	table, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), table)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("code:\n  next: [tool]\ntool:\n  prev: [code]\n"), 0o644))
	table, err = Load(path)
	require.NoError(t, err)
	code, ok := table.Lookup(graph.BlockCode)
	require.True(t, ok)
	assert.True(t, code.AllowsNext(graph.BlockTool))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
