package hydrate

import (
	"context"
	"sync"

	"github.com/skaldworks/skald/blobstore"
)

// RefCache holds resolved display references for the lifetime of an editing
// session, keyed by asset id. It guarantees one Resolve per asset and one
// Release per acquired reference: eviction and Close release explicitly,
// never a finalizer.
type RefCache struct {
	mu    sync.Mutex
	blobs blobstore.Store
	refs  map[string]*blobstore.DisplayRef
}

// NewRefCache creates an empty cache over the given blob store.
func NewRefCache(blobs blobstore.Store) *RefCache {
	return &RefCache{
		blobs: blobs,
		refs:  make(map[string]*blobstore.DisplayRef),
	}
}

// Get returns the cached display reference for the asset, resolving it on
// first use. The cache keeps ownership; callers must not release the
// returned reference.
func (c *RefCache) Get(ctx context.Context, assetID string) (*blobstore.DisplayRef, error) {
	c.mu.Lock()
	if ref, ok := c.refs[assetID]; ok {
		c.mu.Unlock()
		return ref, nil
	}
	c.mu.Unlock()

	// Resolve outside the lock: blob stores may do I/O.
	ref, err := c.blobs.Resolve(ctx, assetID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.refs[assetID]; ok {
		// Lost the race; keep the first resolution.
		ref.Release()
		return existing, nil
	}
	c.refs[assetID] = ref
	return ref, nil
}

// Adopt hands an already-resolved reference to the cache (two-phase upload
// commits do this so the preview reference keeps serving the session). If
// the asset is already cached the adopted reference is released.
func (c *RefCache) Adopt(assetID string, ref *blobstore.DisplayRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.refs[assetID]; ok {
		ref.Release()
		return
	}
	c.refs[assetID] = ref
}

// Evict releases and forgets one asset's reference, if cached.
func (c *RefCache) Evict(assetID string) {
	c.mu.Lock()
	ref, ok := c.refs[assetID]
	if ok {
		delete(c.refs, assetID)
	}
	c.mu.Unlock()
	if ok {
		ref.Release()
	}
}

// Len returns the number of cached references.
func (c *RefCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.refs)
}

// Close releases every cached reference. The cache is reusable afterwards
// but normally this is session teardown.
func (c *RefCache) Close() {
	c.mu.Lock()
	refs := c.refs
	c.refs = make(map[string]*blobstore.DisplayRef)
	c.mu.Unlock()
	for _, ref := range refs {
		ref.Release()
	}
}
