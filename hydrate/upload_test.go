package hydrate

import (
	"context"
	"testing"

	"github.com/skaldworks/skald/blobstore"
	"github.com/skaldworks/skald/doctree"
)

func TestUploadCommit(t *testing.T) {
	blobs := blobstore.NewMemory()
	eng := New(Config{Blobs: blobs})
	ctx := context.Background()

	up, err := eng.BeginImageUpload(ctx, "cat.png", "image/png", []byte("img"))
	if err != nil {
		t.Fatal(err)
	}
	if up.State() != UploadAwaitingSize {
		t.Fatalf("state = %s", up.State())
	}
	if up.PreviewURL() == "" {
		t.Fatal("no preview URL while awaiting size")
	}
	if blobs.OpenRefs() != 1 {
		t.Fatalf("open refs = %d, want 1 (preview)", blobs.OpenRefs())
	}

	b, err := up.Commit(doctree.SizeMedium)
	if err != nil {
		t.Fatal(err)
	}
	if b.Type != doctree.BlockImage || b.ImageSize != doctree.SizeMedium {
		t.Errorf("block = %+v", b)
	}
	if b.AttachmentID == "" || b.AttachmentData == "" {
		t.Errorf("block missing attachment fields: %+v", b)
	}
	if up.State() != UploadCommitted {
		t.Errorf("state = %s", up.State())
	}

	// Preview ref now owned by the session cache: still open, released on
	// session close.
	if blobs.OpenRefs() != 1 {
		t.Errorf("open refs after commit = %d, want 1", blobs.OpenRefs())
	}
	eng.Close()
	if blobs.OpenRefs() != 0 {
		t.Errorf("open refs after close = %d, want 0", blobs.OpenRefs())
	}

	// Commit is single-shot.
	if _, err := up.Commit(doctree.SizeSmall); err == nil {
		t.Error("second commit must fail")
	}
}

func TestUploadCancel(t *testing.T) {
	blobs := blobstore.NewMemory()
	eng := New(Config{Blobs: blobs})
	defer eng.Close()
	ctx := context.Background()

	up, err := eng.BeginImageUpload(ctx, "cat.png", "image/png", []byte("img"))
	if err != nil {
		t.Fatal(err)
	}
	assetID := up.Asset().ID

	if err := up.Cancel(ctx); err != nil {
		t.Fatal(err)
	}
	if up.State() != UploadCancelled {
		t.Errorf("state = %s", up.State())
	}
	// Preview released, orphan payload removed.
	if blobs.OpenRefs() != 0 {
		t.Errorf("open refs after cancel = %d, want 0", blobs.OpenRefs())
	}
	if _, _, err := blobs.Get(ctx, assetID); err != blobstore.ErrNotFound {
		t.Error("cancelled upload left an orphan asset")
	}

	// Terminal states reject further transitions.
	if err := up.Cancel(ctx); err == nil {
		t.Error("second cancel must fail")
	}
	if _, err := up.Commit(doctree.SizeFull); err == nil {
		t.Error("commit after cancel must fail")
	}
}
