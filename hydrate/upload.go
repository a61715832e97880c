package hydrate

import (
	"context"
	"fmt"
	"sync"

	"github.com/skaldworks/skald/blobstore"
	"github.com/skaldworks/skald/doctree"
)

// UploadState is the phase of a two-phase image insert.
type UploadState string

const (
	UploadAwaitingSize UploadState = "awaiting-size-choice"
	UploadCommitted    UploadState = "committed"
	UploadCancelled    UploadState = "cancelled"
)

// PendingUpload is the pause between picking an image file and choosing its
// display size. The payload is already durably stored and a preview
// reference resolved; exactly one of Commit or Cancel must run, and both
// guarantee the preview reference is accounted for (adopted by the session
// cache on commit, released on cancel).
type PendingUpload struct {
	mu      sync.Mutex
	engine  *Engine
	state   UploadState
	asset   blobstore.Asset
	preview *blobstore.DisplayRef
}

// BeginImageUpload stores the picked file and resolves a preview
// reference, leaving the upload awaiting a size choice.
func (e *Engine) BeginImageUpload(ctx context.Context, name, mimeType string, data []byte) (*PendingUpload, error) {
	asset, err := e.blobs.Save(ctx, data, name, mimeType)
	if err != nil {
		return nil, fmt.Errorf("hydrate: store image: %w", err)
	}
	preview, err := e.blobs.Resolve(ctx, asset.ID)
	if err != nil {
		// Roll back the stored payload; nothing references it yet.
		if delErr := e.blobs.Delete(ctx, asset.ID); delErr != nil {
			e.logger.Warn("orphan cleanup failed after preview failure",
				"asset", asset.ID, "error", delErr)
		}
		return nil, fmt.Errorf("hydrate: resolve preview: %w", err)
	}
	return &PendingUpload{
		engine:  e,
		state:   UploadAwaitingSize,
		asset:   asset,
		preview: preview,
	}, nil
}

// State returns the current phase.
func (p *PendingUpload) State() UploadState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Asset returns the stored asset's metadata.
func (p *PendingUpload) Asset() blobstore.Asset {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.asset
}

// PreviewURL returns the preview display URL while the upload is pending.
func (p *PendingUpload) PreviewURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != UploadAwaitingSize {
		return ""
	}
	return p.preview.URL
}

// Commit finishes the insert with the chosen size and returns the image
// block to place in the tree. The preview reference moves into the session
// cache so the block keeps rendering for the rest of the session.
func (p *PendingUpload) Commit(size doctree.ImageSize) (doctree.Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != UploadAwaitingSize {
		return doctree.Block{}, fmt.Errorf("hydrate: commit in state %s", p.state)
	}
	p.state = UploadCommitted

	b := doctree.NewBlock(doctree.BlockImage)
	b.AttachmentID = p.asset.ID
	b.AttachmentName = p.asset.Name
	b.AttachmentType = p.asset.Type
	b.AttachmentData = p.preview.URL
	b.ImageSize = size

	p.engine.cache.Adopt(p.asset.ID, p.preview)
	p.preview = nil
	return b, nil
}

// Cancel abandons the upload: the preview reference is released and the
// stored payload deleted, since no block ever referenced it.
func (p *PendingUpload) Cancel(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != UploadAwaitingSize {
		return fmt.Errorf("hydrate: cancel in state %s", p.state)
	}
	p.state = UploadCancelled

	p.preview.Release()
	p.preview = nil
	if err := p.engine.blobs.Delete(ctx, p.asset.ID); err != nil {
		return fmt.Errorf("hydrate: delete cancelled upload: %w", err)
	}
	return nil
}
