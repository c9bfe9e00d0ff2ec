// Package metrics exposes Prometheus collectors for the blockgraph workflow
// engine, draft persistence and HTTP server. Every Metrics method is safe on
// a nil receiver so callers can run without instrumentation.
package metrics
