// Package draft defines domain-specific errors
package draft

import "errors"

// Domain errors - DRY principle: defined once, used everywhere
var (
	// Draft validation errors
	ErrInvalidAppID = errors.New("invalid app ID")
	ErrNilDraft     = errors.New("draft cannot be nil")
	ErrMissingHash  = errors.New("draft hash is not set")

	// Lookup errors
	ErrDraftNotFound = errors.New("draft not found")
	ErrNotPublished  = errors.New("workflow has not been published")

	// Concurrency errors
	ErrDraftConflict = errors.New("draft was modified since it was last fetched")
	ErrDraftExists   = errors.New("draft already exists")
)
