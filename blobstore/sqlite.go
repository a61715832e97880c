package blobstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/skaldworks/skald/idgen"
)

// SchemaSQL creates the assets table. Pass to dbopen.WithSchema.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS assets (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	mime_type  TEXT NOT NULL,
	size       INTEGER NOT NULL,
	sha256     TEXT NOT NULL,
	page_count INTEGER NOT NULL DEFAULT 0,
	payload    BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// SQLite is a Store backed by an SQLite database. Display-ref URLs point at
// the asset raw-serving HTTP route; BaseURL sets its prefix (default
// "/assets").
type SQLite struct {
	refLedger
	db      *sql.DB
	baseURL string
	newID   idgen.Generator
}

// SQLiteOption configures a SQLite blob store.
type SQLiteOption func(*SQLite)

// WithBaseURL sets the display-ref URL prefix.
func WithBaseURL(u string) SQLiteOption { return func(s *SQLite) { s.baseURL = u } }

// WithIDGenerator overrides the asset id generator.
func WithIDGenerator(gen idgen.Generator) SQLiteOption {
	return func(s *SQLite) { s.newID = gen }
}

// NewSQLite wraps an opened database (schema already applied) as a Store.
func NewSQLite(db *sql.DB, opts ...SQLiteOption) *SQLite {
	s := &SQLite{
		db:      db,
		baseURL: "/assets",
		newID:   idgen.Prefixed("ast_", idgen.Default),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *SQLite) Save(ctx context.Context, data []byte, name, mimeType string) (Asset, error) {
	sum := sha256.Sum256(data)
	now := time.Now().UTC()
	asset := Asset{
		ID:        s.newID(),
		Name:      name,
		Type:      mimeType,
		Size:      int64(len(data)),
		SHA256:    hex.EncodeToString(sum[:]),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if mimeType == "application/pdf" {
		asset.PageCount = pdfPageCount(data)
	}
	if err := s.insert(ctx, asset, data); err != nil {
		return Asset{}, err
	}
	return asset, nil
}

func (s *SQLite) Put(ctx context.Context, asset Asset, data []byte) error {
	if asset.ID == "" {
		return fmt.Errorf("blobstore: put without id")
	}
	if asset.SHA256 == "" {
		sum := sha256.Sum256(data)
		asset.SHA256 = hex.EncodeToString(sum[:])
	}
	return s.insert(ctx, asset, data)
}

func (s *SQLite) insert(ctx context.Context, asset Asset, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO assets
			(id, name, mime_type, size, sha256, page_count, payload, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		asset.ID, asset.Name, asset.Type, asset.Size, asset.SHA256,
		asset.PageCount, data, asset.CreatedAt.UnixMilli(), asset.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("blobstore: insert %s: %w", asset.ID, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (Asset, []byte, error) {
	var (
		asset      Asset
		payload    []byte
		createdAt  int64
		updatedAt  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, mime_type, size, sha256, page_count, payload, created_at, updated_at
		FROM assets WHERE id = ?`, id).Scan(
		&asset.ID, &asset.Name, &asset.Type, &asset.Size, &asset.SHA256,
		&asset.PageCount, &payload, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Asset{}, nil, ErrNotFound
	}
	if err != nil {
		return Asset{}, nil, fmt.Errorf("blobstore: get %s: %w", id, err)
	}
	asset.CreatedAt = time.UnixMilli(createdAt).UTC()
	asset.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return asset, payload, nil
}

func (s *SQLite) Resolve(ctx context.Context, id string) (*DisplayRef, error) {
	var name, mimeType string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, mime_type FROM assets WHERE id = ?`, id).Scan(&name, &mimeType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: resolve %s: %w", id, err)
	}
	return &DisplayRef{
		URL:     fmt.Sprintf("%s/%s/raw", s.baseURL, id),
		Name:    name,
		Type:    mimeType,
		release: s.acquire(),
	}, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("blobstore: delete %s: %w", id, err)
	}
	return nil
}
