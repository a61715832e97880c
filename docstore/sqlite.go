package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/skaldworks/skald/doctree"
)

// SchemaSQL creates the documents and snapshots tables. Pass to
// dbopen.WithSchema.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	owner_id      TEXT NOT NULL,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	content       TEXT NOT NULL,
	last_modified INTEGER NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id, last_modified DESC);

CREATE TABLE IF NOT EXISTS snapshots (
	key        TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_owner ON snapshots(owner_id, created_at);
`

// SQLite is a Store + SnapshotStore backed by an SQLite database. The
// section tree persists as a JSON content column; tree queries happen in
// memory, the database is a durable key-value layer.
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps an opened database (schema already applied).
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) Get(ctx context.Context, id string) (*doctree.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, description, content, last_modified, created_at
		FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: get %s: %w", id, err)
	}
	return doc, nil
}

func (s *SQLite) Save(ctx context.Context, doc *doctree.Document) error {
	content, err := json.Marshal(doc.Content)
	if err != nil {
		return fmt.Errorf("docstore: marshal content: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO documents
			(id, owner_id, title, description, content, last_modified, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		doc.ID, doc.OwnerID, doc.Title, doc.Description, string(content),
		doc.LastModified.UnixMilli(), doc.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("docstore: save %s: %w", doc.ID, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("docstore: delete %s: %w", id, err)
	}
	return nil
}

func (s *SQLite) ListByOwner(ctx context.Context, ownerID string) ([]*doctree.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, description, content, last_modified, created_at
		FROM documents WHERE owner_id = ? ORDER BY last_modified DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("docstore: list by owner: %w", err)
	}
	defer rows.Close()

	var out []*doctree.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("docstore: scan: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*doctree.Document, error) {
	var (
		doc          doctree.Document
		content      string
		lastModified int64
		createdAt    int64
	)
	err := row.Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.Description,
		&content, &lastModified, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(content), &doc.Content); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	doc.LastModified = time.UnixMilli(lastModified).UTC()
	doc.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &doc, nil
}

func (s *SQLite) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	payload, err := json.Marshal(snap.Documents)
	if err != nil {
		return fmt.Errorf("docstore: marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshots (key, owner_id, created_at, payload)
		VALUES (?,?,?,?)`,
		snap.Key, snap.OwnerID, snap.CreatedAt.UnixMilli(), string(payload))
	if err != nil {
		return fmt.Errorf("docstore: save snapshot %s: %w", snap.Key, err)
	}
	return nil
}

func (s *SQLite) ListSnapshotKeys(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM snapshots WHERE owner_id = ? ORDER BY created_at ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("docstore: list snapshots: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLite) GetSnapshot(ctx context.Context, key string) (*Snapshot, error) {
	var (
		snap      Snapshot
		payload   string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT key, owner_id, created_at, payload FROM snapshots WHERE key = ?`, key).
		Scan(&snap.Key, &snap.OwnerID, &createdAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: get snapshot %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(payload), &snap.Documents); err != nil {
		return nil, fmt.Errorf("docstore: decode snapshot %s: %w", key, err)
	}
	snap.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &snap, nil
}

func (s *SQLite) DeleteSnapshot(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, key); err != nil {
		return fmt.Errorf("docstore: delete snapshot %s: %w", key, err)
	}
	return nil
}
