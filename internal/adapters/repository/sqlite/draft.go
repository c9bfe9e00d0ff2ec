// Package sqlite stores workflow drafts in SQLite through database/sql and the
// pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flowgraph/blockgraph/internal/core/draft"
	"github.com/flowgraph/blockgraph/pkg/serialization"
	_ "modernc.org/sqlite"
)

const (
	versionDraft     = "draft"
	versionPublished = "published"
)

// ErrNilDB is returned when the store was built without a database handle.
var ErrNilDB = errors.New("sqlite database is nil")

// DraftStore implements draft.Store for SQLite
type DraftStore struct {
	db         *sql.DB
	serializer *serialization.Serializer
	tableName  string
}

// NewDraftStore creates a SQLite draft store. A nil serializer selects the
// default one.
func NewDraftStore(db *sql.DB, serializer *serialization.Serializer) *DraftStore {
	if serializer == nil {
		serializer = serialization.DefaultSerializer()
	}
	return &DraftStore{
		db:         db,
		serializer: serializer,
		tableName:  "workflow_drafts",
	}
}

// Open opens the database at path and creates the store's table. Use
// ":memory:" for a throwaway database.
func Open(ctx context.Context, path string, serializer *serialization.Serializer) (*DraftStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	s := NewDraftStore(db, serializer)
	if err := s.CreateTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// WithTableName allows overriding the default table name with validation.
// Only alphanumeric and underscore are permitted to prevent SQL injection via identifiers.
func (s *DraftStore) WithTableName(name string) *DraftStore {
	if isSafeIdent(name) {
		s.tableName = name
	}
	return s
}

func isSafeIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			continue
		}
		return false
	}
	return true
}

// Save replaces the draft row after checking expectedHash inside one
// transaction.
func (s *DraftStore) Save(ctx context.Context, d *draft.Draft, expectedHash string) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if s.db == nil {
		return ErrNilDB
	}

	data, err := s.serializer.Serialize(d.Payload())
	if err != nil {
		return fmt.Errorf("failed to serialize draft: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var stored string
	err = tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT hash FROM %s WHERE app_id = ? AND version = ?`, s.tableName),
		d.AppID, versionDraft,
	).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read draft hash: %w", err)
	}
	if err := draft.CheckConflict(stored, expectedHash); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (app_id, version, payload, hash, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, s.tableName), d.AppID, versionDraft, data, d.Hash, d.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit draft: %w", err)
	}
	return nil
}

// Create inserts the draft row unless one exists.
func (s *DraftStore) Create(ctx context.Context, d *draft.Draft) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if s.db == nil {
		return ErrNilDB
	}

	data, err := s.serializer.Serialize(d.Payload())
	if err != nil {
		return fmt.Errorf("failed to serialize draft: %w", err)
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT OR IGNORE INTO %s (app_id, version, payload, hash, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, s.tableName), d.AppID, versionDraft, data, d.Hash, d.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}
	if n == 0 {
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

// Publish copies the draft row over the published row.
func (s *DraftStore) Publish(ctx context.Context, appID string) (*draft.Draft, error) {
	if appID == "" {
		return nil, draft.ErrInvalidAppID
	}
	if s.db == nil {
		return nil, ErrNilDB
	}

	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT OR REPLACE INTO %[1]s (app_id, version, payload, hash, updated_at)
		SELECT app_id, ?, payload, hash, updated_at FROM %[1]s
		WHERE app_id = ? AND version = ?
	`, s.tableName), versionPublished, appID, versionDraft)
	if err != nil {
		return nil, fmt.Errorf("failed to publish draft: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, draft.ErrDraftNotFound
	}
	return s.LoadPublished(ctx, appID)
}

// Delete removes both rows of the app.
func (s *DraftStore) Delete(ctx context.Context, appID string) error {
	if appID == "" {
		return draft.ErrInvalidAppID
	}
	if s.db == nil {
		return ErrNilDB
	}

	result, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE app_id = ?", s.tableName), appID)
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return draft.ErrDraftNotFound
	}
	return nil
}

// CreateTables creates the necessary database tables
func (s *DraftStore) CreateTables(ctx context.Context) error {
	if s.db == nil {
		return ErrNilDB
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			app_id TEXT NOT NULL,
			version TEXT NOT NULL,
			payload BLOB NOT NULL,
			hash TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (app_id, version)
		);

		CREATE INDEX IF NOT EXISTS idx_%[1]s_updated_at ON %[1]s (updated_at);
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *DraftStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *DraftStore) load(ctx context.Context, appID, version string, notFound error) (*draft.Draft, error) {
	if appID == "" {
		return nil, draft.ErrInvalidAppID
	}
	if s.db == nil {
		return nil, ErrNilDB
	}

	var (
		data      []byte
		hash      string
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT payload, hash, updated_at FROM %s WHERE app_id = ? AND version = ?`, s.tableName),
		appID, version,
	).Scan(&data, &hash, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
		UpdatedAt: time.Unix(0, updatedAt).UTC(),
	}, nil
}
