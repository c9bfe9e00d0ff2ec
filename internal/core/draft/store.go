package draft

import "context"

// Store persists drafts (DIP - Dependency Inversion)
// PRINCIPLES:
// - DIP: Core domain depends on interface, not implementations
// - SRP: Single responsibility - draft persistence
type Store interface {
	// Save replaces the app's draft. When expectedHash is set and differs
	// from the stored draft's hash, ErrDraftConflict is returned.
	Save(ctx context.Context, d *Draft, expectedHash string) error

	// Create stores d only when the app has no draft yet, and returns
	// ErrDraftExists otherwise.
	Create(ctx context.Context, d *Draft) error

	// Load returns the current draft.
	Load(ctx context.Context, appID string) (*Draft, error)

	// Publish copies the current draft to the published slot.
	Publish(ctx context.Context, appID string) (*Draft, error)

	// LoadPublished returns the last published draft.
	LoadPublished(ctx context.Context, appID string) (*Draft, error)

	// Delete removes both the draft and the published copy.
	Delete(ctx context.Context, appID string) error
}
