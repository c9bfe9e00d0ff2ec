// Package draftsync moves workflow graphs between the editor and a draft
// store: fetching (seeding a start block for new apps), saving with hash
// conflict detection, and publishing.
package draftsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowgraph/blockgraph/internal/app/workflow"
	"github.com/flowgraph/blockgraph/internal/core/draft"
	"github.com/flowgraph/blockgraph/internal/core/graph"
	"github.com/flowgraph/blockgraph/internal/infrastructure/metrics"
	"github.com/flowgraph/blockgraph/internal/logging"
	"github.com/flowgraph/blockgraph/pkg/validation"
)

// Client syncs drafts through a draft.Store.
// PRINCIPLES:
// - DIP: Depends on the draft.Store interface, not a backend
// - SRP: Validation and seeding policy only; storage is the store's job
type Client struct {
	store   draft.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithClock overrides the time source used to stamp drafts.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a client over store.
func NewClient(store draft.Store, opts ...Option) *Client {
	c := &Client{store: store, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDiscard(c.logger)
	return c
}

// Fetch returns the app's draft. An app without one is seeded with a single
// start block, which is saved and returned. A draft stored concurrently wins
// over the seed.
func (c *Client) Fetch(ctx context.Context, appID string) (*draft.Draft, error) {
	d, err := c.Load(ctx, appID)
	if !errors.Is(err, draft.ErrDraftNotFound) {
		return d, err
	}

	seed, err := draft.New(appID, workflow.DefaultRecord(), map[string]any{}, c.now())
	if err != nil {
		return nil, err
	}
	if err := c.store.Create(ctx, seed); err != nil {
		if errors.Is(err, draft.ErrDraftExists) {
			return c.Load(ctx, appID)
		}
		return nil, fmt.Errorf("failed to seed draft: %w", err)
	}
	c.logger.Info("seeded default draft", "app_id", appID, "hash", seed.Hash)
	return seed, nil
}

// Sync validates the record and saves it as the app's draft. expectedHash is
// the hash the caller last fetched; a stale one fails with
// draft.ErrDraftConflict. It returns the new hash.
func (c *Client) Sync(ctx context.Context, appID string, r graph.Record, features map[string]any, expectedHash string) (string, error) {
	if err := validation.ValidateRecord(r, validation.GraphValidationOptions{RequireStart: true}); err != nil {
		c.metrics.RecordDraftSync("invalid")
		return "", fmt.Errorf("%w: %w", ErrInvalidGraph, err)
	}

	d, err := draft.New(appID, r, features, c.now())
	if err != nil {
		c.metrics.RecordDraftSync("invalid")
		return "", err
	}

	if err := c.store.Save(ctx, d, expectedHash); err != nil {
		if errors.Is(err, draft.ErrDraftConflict) {
			c.metrics.RecordDraftConflict()
			c.metrics.RecordDraftSync("conflict")
			c.logger.Warn("draft sync conflict", "app_id", appID, "expected_hash", expectedHash)
			return "", err
		}
		c.metrics.RecordDraftSync("error")
		return "", fmt.Errorf("failed to save draft: %w", err)
	}

	c.metrics.RecordDraftSync("ok")
	c.logger.Debug("synced draft", "app_id", appID, "hash", d.Hash, "nodes", len(r.Nodes))
	return d.Hash, nil
}

// Publish checks the current draft, including for cycles, and copies it to
// the published slot.
func (c *Client) Publish(ctx context.Context, appID string) (*draft.Draft, error) {
	d, err := c.store.Load(ctx, appID)
	if err != nil {
		return nil, err
	}
	opts := validation.GraphValidationOptions{RequireStart: true, CheckCycles: true}
	if err := validation.ValidateRecord(d.Graph, opts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGraph, err)
	}

	published, err := c.store.Publish(ctx, appID)
	if err != nil {
		return nil, err
	}
	c.logger.Info("published draft", "app_id", appID, "hash", published.Hash)
	return published, nil
}

// Published returns the last published version.
func (c *Client) Published(ctx context.Context, appID string) (*draft.Draft, error) {
	return c.store.LoadPublished(ctx, appID)
}

// Load returns the app's stored draft without seeding one.
func (c *Client) Load(ctx context.Context, appID string) (*draft.Draft, error) {
	d, err := c.store.Load(ctx, appID)
	if err != nil && !errors.Is(err, draft.ErrDraftNotFound) && !errors.Is(err, draft.ErrInvalidAppID) {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	return d, err
}

// Restore fetches the app's draft, seeding one when missing, and loads it
// into w.
func (c *Client) Restore(ctx context.Context, appID string, w *workflow.Workflow) (*draft.Draft, error) {
	d, err := c.Fetch(ctx, appID)
	if err != nil {
		return nil, err
	}
	c.render(appID, d, w)
	return d, nil
}

// RestoreExisting loads the app's stored draft into w. An app without a draft
// fails with draft.ErrDraftNotFound and nothing is seeded.
func (c *Client) RestoreExisting(ctx context.Context, appID string, w *workflow.Workflow) (*draft.Draft, error) {
	d, err := c.Load(ctx, appID)
	if err != nil {
		return nil, err
	}
	c.render(appID, d, w)
	return d, nil
}

func (c *Client) render(appID string, d *draft.Draft, w *workflow.Workflow) {
	if dropped := w.RenderTreeFromRecord(d.Graph); dropped > 0 {
		c.logger.Warn("draft had dangling edges", "app_id", appID, "dropped", dropped)
	}
}

// SyncWorkflow saves the current state of w.
func (c *Client) SyncWorkflow(ctx context.Context, appID string, w *workflow.Workflow, features map[string]any, expectedHash string) (string, error) {
	return c.Sync(ctx, appID, w.Record(), features, expectedHash)
}
