// Package graph defines domain-specific errors
package graph

import "errors"

// Domain errors - DRY principle: defined once, used everywhere
var (
	// Node errors
	ErrInvalidNodeID    = errors.New("invalid node ID")
	ErrInvalidBlockKind = errors.New("invalid block kind")
	ErrNodeNotFound     = errors.New("node not found")
	ErrDuplicateNode    = errors.New("duplicate node ID")

	// Edge errors
	ErrInvalidEdgeID      = errors.New("invalid edge ID")
	ErrInvalidSource      = errors.New("invalid source node")
	ErrInvalidTarget      = errors.New("invalid target node")
	ErrSourceNodeNotFound = errors.New("source node not found")
	ErrTargetNodeNotFound = errors.New("target node not found")
	ErrDuplicateEdge      = errors.New("duplicate edge")
	ErrSelfLoop           = errors.New("self-loops are not allowed")

	// Graph errors
	ErrNoStartNode        = errors.New("no start node")
	ErrMultipleStartNodes = errors.New("more than one start node")
	ErrStartHasIncomers   = errors.New("start node has incoming edges")
	ErrCyclicGraph        = errors.New("cyclic dependency detected")

	// Selector errors
	ErrInvalidSelector = errors.New("invalid value selector")
)
