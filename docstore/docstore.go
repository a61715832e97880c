// Package docstore persists documents keyed by id. It is the sole
// persistence boundary for document records; binary attachments live in
// package blobstore.
//
// Two implementations ship: Memory (tests, ephemeral sessions) and SQLite.
// Both also implement SnapshotStore, the narrow contract the automatic
// backup engine needs for retention-pruned snapshots.
package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/skaldworks/skald/doctree"
)

// ErrNotFound is returned when a document or snapshot id does not resolve.
var ErrNotFound = errors.New("docstore: not found")

// Store is the document persistence contract.
type Store interface {
	// Get returns the document, or ErrNotFound.
	Get(ctx context.Context, id string) (*doctree.Document, error)
	// Save inserts or replaces the document record.
	Save(ctx context.Context, doc *doctree.Document) error
	// Delete removes the document. Unknown ids are a no-op.
	Delete(ctx context.Context, id string) error
	// ListByOwner returns every document owned by ownerID, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*doctree.Document, error)
}

// Snapshot is one automatic backup capture: documents only, no assets.
type Snapshot struct {
	Key       string              `json:"key"`
	OwnerID   string              `json:"ownerId"`
	CreatedAt time.Time           `json:"createdAt"`
	Documents []*doctree.Document `json:"documents"`
}

// SnapshotStore persists automatic snapshots under timestamp-derived keys.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	// ListSnapshotKeys returns the owner's snapshot keys, oldest first.
	ListSnapshotKeys(ctx context.Context, ownerID string) ([]string, error)
	GetSnapshot(ctx context.Context, key string) (*Snapshot, error)
	DeleteSnapshot(ctx context.Context, key string) error
}
