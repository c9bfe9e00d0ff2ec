// Package capability holds the per-block-kind connection rules consumed by the
// connection validator. Tables are read-only once loaded.
package capability

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/flowgraph/blockgraph/internal/core/graph"
	"github.com/flowgraph/blockgraph/pkg/validation"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultTable []byte

var (
	ErrUnknownKind = errors.New("capability table references unknown block kind")
	ErrEmptyTable  = errors.New("capability table is empty")
)

// Capability lists which kinds may follow and precede a block kind.
type Capability struct {
	AvailableNextNodes []graph.BlockKind `json:"availableNextNodes" yaml:"next" validate:"dive,block_kind"`
	AvailablePrevNodes []graph.BlockKind `json:"availablePrevNodes" yaml:"prev" validate:"dive,block_kind"`
}

// AllowsNext reports whether kind may be connected after this block.
func (c Capability) AllowsNext(kind graph.BlockKind) bool {
	return slices.Contains(c.AvailableNextNodes, kind)
}

// AllowsPrev reports whether kind may be connected before this block. The
// start block may precede any block whether or not the table lists it.
func (c Capability) AllowsPrev(kind graph.BlockKind) bool {
	return kind == graph.BlockStart || slices.Contains(c.AvailablePrevNodes, kind)
}

// Table maps each block kind to its capability record.
type Table map[graph.BlockKind]Capability

// Lookup returns the record for kind.
func (t Table) Lookup(kind graph.BlockKind) (Capability, bool) {
	c, ok := t[kind]
	return c, ok
}

// Kinds returns the configured kinds in sorted order.
func (t Table) Kinds() []graph.BlockKind {
	out := make([]graph.BlockKind, 0, len(t))
	for k := range t {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate checks that every key and every listed neighbour is a known kind.
func (t Table) Validate() error {
	if len(t) == 0 {
		return ErrEmptyTable
	}
	for _, kind := range t.Kinds() {
		if !kind.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
		}
		c := t[kind]
		if err := validation.ValidateWithPlayground(&c); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnknownKind, kind, err)
		}
	}
	return nil
}

// Parse decodes a YAML table and validates it.
func Parse(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse capability table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load reads a YAML table from path. An empty path yields the default table.
func Load(path string) (Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read capability table: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in table.
func Default() Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("capability: embedded default table is invalid: %v", err))
	}
	return t
}
