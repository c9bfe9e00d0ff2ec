package prebuilt

import (
	"encoding/json"
	"fmt"

	"github.com/flowgraph/blockgraph/internal/app/workflow"
	"github.com/flowgraph/blockgraph/pkg/blockgraph"
	"github.com/flowgraph/blockgraph/pkg/validation"
)

// Assembler adds blocks and edges through a workflow, so every edge passes
// the capability table. It keeps the first error; later calls are no-ops.
type Assembler struct {
	w   *workflow.Workflow
	err error
}

// NewAssembler returns an assembler over an empty workflow with the built-in
// capability table.
func NewAssembler() *Assembler {
	return &Assembler{w: workflow.New()}
}

// Block adds a block with the given id and data, which is JSON encoded.
func (a *Assembler) Block(id string, data any) *Assembler {
	if a.err != nil {
		return a
	}
	raw, err := json.Marshal(data)
	if err != nil {
		a.err = fmt.Errorf("block %s: %w", id, err)
		return a
	}
	if _, err := a.w.AddNode(blockgraph.Node{ID: id, Data: raw}); err != nil {
		a.err = fmt.Errorf("block %s: %w", id, err)
	}
	return a
}

// Link connects source to target. handle names the source branch and may be
// empty.
func (a *Assembler) Link(source, handle, target string) *Assembler {
	if a.err != nil {
		return a
	}
	if _, ok := a.w.Connect(blockgraph.Edge{Source: source, SourceHandle: handle, Target: target}); !ok {
		a.err = fmt.Errorf("edge %s -> %s was rejected", source, target)
	}
	return a
}

// Record lays the graph out and returns it once it passes publish checks.
func (a *Assembler) Record() (blockgraph.Record, error) {
	if a.err != nil {
		return blockgraph.Record{}, a.err
	}
	a.w.ApplyAutoLayout()
	r := a.w.Record()
	opts := validation.GraphValidationOptions{RequireStart: true, CheckCycles: true}
	if err := validation.ValidateRecord(r, opts); err != nil {
		return blockgraph.Record{}, fmt.Errorf("graph validation failed: %w", err)
	}
	return r, nil
}
