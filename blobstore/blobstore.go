// Package blobstore stores binary assets (images, PDFs, videos) referenced
// by document blocks, keyed by generated asset id.
//
// Callers obtain displayable references through Resolve. A DisplayRef is a
// session-scoped resource and must be released when it is no longer shown
// or cached; the store keeps an acquire/release ledger so tests can assert
// parity. Deleting an asset is always explicit — orphaned assets are never
// garbage-collected here.
package blobstore

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when an asset id does not resolve.
var ErrNotFound = errors.New("blobstore: asset not found")

// Asset is the metadata record of one stored binary.
type Asset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"` // MIME type
	Size      int64     `json:"size"`
	SHA256    string    `json:"sha256,omitempty"`
	PageCount int       `json:"pageCount,omitempty"` // PDFs only
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DisplayRef is a resolved, displayable reference to an asset. The URL is
// only valid for the current session. Release is idempotent.
type DisplayRef struct {
	URL  string
	Name string
	Type string

	once    sync.Once
	release func()
}

// Release returns the reference to the store. Safe to call more than once.
func (r *DisplayRef) Release() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		if r.release != nil {
			r.release()
		}
	})
}

// Store is the blob storage contract consumed by the hydration engine, the
// exporters and the backup engine.
type Store interface {
	// Save stores a binary payload and returns its metadata record with a
	// freshly generated id.
	Save(ctx context.Context, data []byte, name, mimeType string) (Asset, error)
	// Put inserts a payload under a caller-chosen id. Backup restore uses
	// it to preserve the ids referenced by restored documents.
	Put(ctx context.Context, asset Asset, data []byte) error
	// Get returns metadata plus the raw payload, or ErrNotFound.
	Get(ctx context.Context, id string) (Asset, []byte, error)
	// Resolve returns a displayable reference, or ErrNotFound. The caller
	// must Release the reference when done.
	Resolve(ctx context.Context, id string) (*DisplayRef, error)
	// Delete removes the asset. Deleting an unknown id is a no-op.
	Delete(ctx context.Context, id string) error
}

// RefCounter is implemented by stores that track display-ref parity.
type RefCounter interface {
	// OpenRefs returns the number of resolved references not yet released.
	OpenRefs() int
}

// refLedger counts acquired display refs. Embedded by store
// implementations so leak tests work against any backend.
type refLedger struct {
	mu   sync.Mutex
	open int
}

func (l *refLedger) acquire() func() {
	l.mu.Lock()
	l.open++
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		l.open--
		l.mu.Unlock()
	}
}

// OpenRefs returns the number of unreleased display references.
func (l *refLedger) OpenRefs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}
