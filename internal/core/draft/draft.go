// Package draft holds the persisted form of a workflow: the working draft and
// its last published copy.
package draft

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowgraph/blockgraph/internal/core/graph"
)

// Draft is one saved version of an app's workflow graph.
type Draft struct {
	AppID     string         `json:"app_id"`
	Graph     graph.Record   `json:"graph"`
	Features  map[string]any `json:"features,omitempty"`
	Hash      string         `json:"hash"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Payload is the part of a draft the stores serialize as one blob.
type Payload struct {
	Graph    graph.Record   `json:"graph"`
	Features map[string]any `json:"features,omitempty"`
}

// New builds a draft and stamps its content hash.
func New(appID string, r graph.Record, features map[string]any, now time.Time) (*Draft, error) {
	if appID == "" {
		return nil, ErrInvalidAppID
	}
	h, err := Hash(r, features)
	if err != nil {
		return nil, err
	}
	return &Draft{
		AppID:     appID,
		Graph:     r.Clone(),
		Features:  features,
		Hash:      h,
		UpdatedAt: now.UTC(),
	}, nil
}

// Hash returns the hex sha256 of the canonical JSON form of the graph and
// features. Map keys are sorted by encoding/json, so equal content hashes
// equally.
func Hash(r graph.Record, features map[string]any) (string, error) {
	data, err := json.Marshal(Payload{Graph: r, Features: features})
	if err != nil {
		return "", fmt.Errorf("failed to encode draft for hashing: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Payload returns the serializable part of the draft.
func (d *Draft) Payload() Payload {
	return Payload{Graph: d.Graph, Features: d.Features}
}

// Validate ensures draft integrity
func (d *Draft) Validate() error {
	if d == nil {
		return ErrNilDraft
	}
	if d.AppID == "" {
		return ErrInvalidAppID
	}
	if d.Hash == "" {
		return ErrMissingHash
	}
	return nil
}

// CheckConflict reports ErrDraftConflict when the caller last saw a different
// version than the stored one. An empty expected hash skips the check, as
// does an empty stored hash (no draft yet).
func CheckConflict(storedHash, expectedHash string) error {
	if storedHash == "" || expectedHash == "" || storedHash == expectedHash {
		return nil
	}
	return ErrDraftConflict
}
