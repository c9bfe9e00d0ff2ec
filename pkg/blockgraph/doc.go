// Package blockgraph provides a minimal public façade for editing workflow
// graphs without importing internal packages. It re-exports the core graph
// types and exposes a Runtime that opens drafts as editable sessions and
// saves them back.
package blockgraph
