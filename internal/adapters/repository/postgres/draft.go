// Package postgres stores workflow drafts in PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/flowgraph/blockgraph/internal/core/draft"
	"github.com/flowgraph/blockgraph/pkg/serialization"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	versionDraft     = "draft"
	versionPublished = "published"
)

// ErrNilPool is returned when the store was built without a connection pool.
var ErrNilPool = errors.New("postgres pool is nil")

var safeIdent = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// DraftStore implements draft.Store for PostgreSQL. Each app has at most two
// rows, one per version.
type DraftStore struct {
	pool       *pgxpool.Pool
	serializer *serialization.Serializer
	tableName  string
}

// Option configures a DraftStore.
type Option func(*DraftStore) error

// WithTableName overrides the default "workflow_drafts" table.
func WithTableName(name string) Option {
	return func(s *DraftStore) error {
		if !safeIdent.MatchString(name) {
			return fmt.Errorf("invalid table name %q", name)
		}
		s.tableName = name
		return nil
	}
}

// NewDraftStore creates a PostgreSQL draft store. A nil serializer selects the
// default one.
func NewDraftStore(pool *pgxpool.Pool, serializer *serialization.Serializer, opts ...Option) (*DraftStore, error) {
	if serializer == nil {
		serializer = serialization.DefaultSerializer()
	}
	s := &DraftStore{
		pool:       pool,
		serializer: serializer,
		tableName:  "workflow_drafts",
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Save upserts the draft row. The stored hash is read under a row lock so
// concurrent writers cannot both pass the conflict check.
func (s *DraftStore) Save(ctx context.Context, d *draft.Draft, expectedHash string) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if s.pool == nil {
		return ErrNilPool
	}

	data, err := s.serializer.Serialize(d.Payload())
	if err != nil {
		return fmt.Errorf("failed to serialize draft: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var stored string
	err = tx.QueryRow(ctx, fmt.Sprintf(
		`SELECT hash FROM %s WHERE app_id = $1 AND version = $2 FOR UPDATE`, s.tableName),
		d.AppID, versionDraft,
	).Scan(&stored)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to read draft hash: %w", err)
	}
	if err := draft.CheckConflict(stored, expectedHash); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (app_id, version, payload, hash, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (app_id, version) DO UPDATE SET
			payload = EXCLUDED.payload,
			hash = EXCLUDED.hash,
			updated_at = EXCLUDED.updated_at
	`, s.tableName), d.AppID, versionDraft, data, d.Hash, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit draft: %w", err)
	}
	return nil
}

// Create inserts the draft row unless one exists.
func (s *DraftStore) Create(ctx context.Context, d *draft.Draft) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if s.pool == nil {
		return ErrNilPool
	}

	data, err := s.serializer.Serialize(d.Payload())
	if err != nil {
		return fmt.Errorf("failed to serialize draft: %w", err)
	}

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (app_id, version, payload, hash, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (app_id, version) DO NOTHING
	`, s.tableName), d.AppID, versionDraft, data, d.Hash, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return draft.ErrDraftExists
	}
	return nil
}

// Load returns the current draft.
func (s *DraftStore) Load(ctx context.Context, appID string) (*draft.Draft, error) {
	return s.load(ctx, appID, versionDraft, draft.ErrDraftNotFound)
}

// LoadPublished returns the last published draft.
func (s *DraftStore) LoadPublished(ctx context.Context, appID string) (*draft.Draft, error) {
	return s.load(ctx, appID, versionPublished, draft.ErrNotPublished)
}

// Publish copies the draft row to the published row in one statement.
func (s *DraftStore) Publish(ctx context.Context, appID string) (*draft.Draft, error) {
	if appID == "" {
		return nil, draft.ErrInvalidAppID
	}
	if s.pool == nil {
		return nil, ErrNilPool
	}

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %[1]s (app_id, version, payload, hash, updated_at)
		SELECT app_id, $2, payload, hash, updated_at FROM %[1]s
		WHERE app_id = $1 AND version = $3
		ON CONFLICT (app_id, version) DO UPDATE SET
			payload = EXCLUDED.payload,
			hash = EXCLUDED.hash,
			updated_at = EXCLUDED.updated_at
	`, s.tableName), appID, versionPublished, versionDraft)
	if err != nil {
		return nil, fmt.Errorf("failed to publish draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, draft.ErrDraftNotFound
	}
	return s.LoadPublished(ctx, appID)
}

// Delete removes both rows of the app.
func (s *DraftStore) Delete(ctx context.Context, appID string) error {
	if appID == "" {
		return draft.ErrInvalidAppID
	}
	if s.pool == nil {
		return ErrNilPool
	}

	tag, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE app_id = $1", s.tableName), appID)
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return draft.ErrDraftNotFound
	}
	return nil
}

// CreateTables creates the necessary database tables
func (s *DraftStore) CreateTables(ctx context.Context) error {
	if s.pool == nil {
		return ErrNilPool
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			app_id VARCHAR(255) NOT NULL,
			version VARCHAR(16) NOT NULL,
			payload BYTEA NOT NULL,
			hash CHAR(64) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (app_id, version)
		);

		CREATE INDEX IF NOT EXISTS idx_%[1]s_updated_at ON %[1]s (updated_at);
	`, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// DropTables removes the store's table.
func (s *DraftStore) DropTables(ctx context.Context) error {
	if s.pool == nil {
		return ErrNilPool
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", s.tableName)); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	return nil
}

// Close closes the database connection pool
func (s *DraftStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *DraftStore) load(ctx context.Context, appID, version string, notFound error) (*draft.Draft, error) {
	if appID == "" {
		return nil, draft.ErrInvalidAppID
	}
	if s.pool == nil {
		return nil, ErrNilPool
	}

	var (
		data      []byte
		hash      string
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT payload, hash, updated_at FROM %s WHERE app_id = $1 AND version = $2`, s.tableName),
		appID, version,
	).Scan(&data, &hash, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}

	var p draft.Payload
	if err := s.serializer.Deserialize(data, &p); err != nil {
		return nil, fmt.Errorf("failed to deserialize draft: %w", err)
	}
	return &draft.Draft{
		AppID:     appID,
		Graph:     p.Graph,
		Features:  p.Features,
		Hash:      hash,
		UpdatedAt: updatedAt.UTC(),
	}, nil
}
