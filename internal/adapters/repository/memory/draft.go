// Package memory provides an in-process draft store.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowgraph/blockgraph/internal/core/draft"
	"github.com/flowgraph/blockgraph/pkg/serialization"
)

// Store implements draft.Store with thread-safe in-memory storage. Drafts are
// kept serialized, so callers never share memory with stored versions.
// PRINCIPLES:
// - KISS: Simple map guarded by one RWMutex
// - DIP: Implements draft.Store interface
type Store struct {
	mu         sync.RWMutex
	apps       map[string]*slots
	serializer *serialization.Serializer
}

type slots struct {
	draft     *entry
	published *entry
}

type entry struct {
	data      []byte
	hash      string
	updatedAt time.Time
}

// NewStore creates an in-memory draft store. A nil serializer selects the
// default one.
func NewStore(serializer *serialization.Serializer) *Store {
	if serializer == nil {
		serializer = serialization.DefaultSerializer()
	}
	return &Store{
		apps:       make(map[string]*slots),
		serializer: serializer,
	}
}

// Save stores the draft, checking expectedHash against the current version.
func (s *Store) Save(_ context.Context, d *draft.Draft, expectedHash string) error {
	if err := d.Validate(); err != nil {
		return err
	}

	data, err := s.serializer.Serialize(d.Payload())
	if err != nil {
		return fmt.Errorf("failed to serialize draft: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	app := s.apps[d.AppID]
	if app != nil && app.draft != nil {
		if err := draft.CheckConflict(app.draft.hash, expectedHash); err != nil {
			return err
		}
	}
	if app == nil {
		app = &slots{}
		s.apps[d.AppID] = app
	}
	app.draft = &entry{data: data, hash: d.Hash, updatedAt: d.UpdatedAt}
	return nil
}

// Create stores the draft unless the app already has one.
func (s *Store) Create(_ context.Context, d *draft.Draft) error {
	if err := d.Validate(); err != nil {
		return err
	}
	data, err := s.serializer.Serialize(d.Payload())
	if err != nil {
		return fmt.Errorf("failed to serialize draft: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	app := s.apps[d.AppID]
	if app == nil {
		app = &slots{}
		s.apps[d.AppID] = app
	}
	if app.draft != nil {
		return draft.ErrDraftExists
	}
	app.draft = &entry{data: data, hash: d.Hash, updatedAt: d.UpdatedAt}
	return nil
}

// Load returns the current draft.
func (s *Store) Load(_ context.Context, appID string) (*draft.Draft, error) {
	if appID == "" {
		return nil, draft.ErrInvalidAppID
	}

	s.mu.RLock()
	app := s.apps[appID]
	var e *entry
	if app != nil {
		e = app.draft
	}
	s.mu.RUnlock()

	if e == nil {
		return nil, draft.ErrDraftNotFound
	}
	return s.decode(appID, e)
}

// Publish copies the current draft to the published slot.
func (s *Store) Publish(_ context.Context, appID string) (*draft.Draft, error) {
	if appID == "" {
		return nil, draft.ErrInvalidAppID
	}

	s.mu.Lock()
	app := s.apps[appID]
	if app == nil || app.draft == nil {
		s.mu.Unlock()
		return nil, draft.ErrDraftNotFound
	}
	app.published = app.draft
	e := app.published
	s.mu.Unlock()

	return s.decode(appID, e)
}

// LoadPublished returns the last published draft.
func (s *Store) LoadPublished(_ context.Context, appID string) (*draft.Draft, error) {
	if appID == "" {
		return nil, draft.ErrInvalidAppID
	}

	s.mu.RLock()
	app := s.apps[appID]
	var e *entry
	if app != nil {
		e = app.published
	}
	s.mu.RUnlock()

	if e == nil {
		return nil, draft.ErrNotPublished
	}
	return s.decode(appID, e)
}

// Delete removes both versions of the app's workflow.
func (s *Store) Delete(_ context.Context, appID string) error {
	if appID == "" {
		return draft.ErrInvalidAppID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apps[appID]; !ok {
		return draft.ErrDraftNotFound
	}
	delete(s.apps, appID)
	return nil
}

// Len returns the number of apps with stored workflows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.apps)
}

// decode works on entries, which are never mutated after being stored.
func (s *Store) decode(appID string, e *entry) (*draft.Draft, error) {
	var p draft.Payload
	if err := s.serializer.Deserialize(e.data, &p); err != nil {
		return nil, fmt.Errorf("failed to deserialize draft: %w", err)
	}
	return &draft.Draft{
		AppID:     appID,
		Graph:     p.Graph,
		Features:  p.Features,
		Hash:      e.hash,
		UpdatedAt: e.updatedAt,
	}, nil
}
