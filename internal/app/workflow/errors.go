// Package workflow defines domain-specific errors
package workflow

import "errors"

// Domain errors - DRY principle: defined once, used everywhere
var (
	ErrStartNodeRemoval = errors.New("start node cannot be removed")
	ErrEdgeNotFound     = errors.New("edge not found")
)
