package session

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/skaldworks/skald/blobstore"
	"github.com/skaldworks/skald/docstore"
	"github.com/skaldworks/skald/doctree"
)

func newStores() (docstore.Store, *blobstore.Memory) {
	return docstore.NewMemory(), blobstore.NewMemory()
}

func seedDoc(t *testing.T, docs docstore.Store, blobs blobstore.Store) (*doctree.Document, blobstore.Asset) {
	t.Helper()
	ctx := context.Background()
	asset, err := blobs.Save(ctx, []byte("img"), "a.png", "image/png")
	if err != nil {
		t.Fatal(err)
	}
	doc := doctree.NewDocument("owner-1", "Doc")
	img := doctree.NewBlock(doctree.BlockImage)
	img.AttachmentID = asset.ID
	doc.Content.Sections[0].Content = []doctree.Block{img}
	if err := docs.Save(ctx, doc); err != nil {
		t.Fatal(err)
	}
	return doc, asset
}

func TestOpenHydrates(t *testing.T) {
	docs, blobs := newStores()
	doc, _ := seedDoc(t, docs, blobs)
	ctx := context.Background()

	s, err := Open(ctx, Config{Docs: docs, Blobs: blobs}, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(ctx)

	got := s.Document()
	if got.Content.Sections[0].Content[0].AttachmentData == "" {
		t.Error("document not hydrated on open")
	}
	if blobs.OpenRefs() != 1 {
		t.Errorf("open refs = %d, want 1", blobs.OpenRefs())
	}
}

func TestOpenPersistsMigration(t *testing.T) {
	docs, blobs := newStores()
	ctx := context.Background()

	doc := doctree.NewDocument("owner-1", "Legacy")
	legacy := doctree.NewBlock(doctree.BlockImage)
	legacy.AttachmentData = "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("old"))
	doc.Content.Sections[0].Content = []doctree.Block{legacy}
	if err := docs.Save(ctx, doc); err != nil {
		t.Fatal(err)
	}

	s, err := Open(ctx, Config{Docs: docs, Blobs: blobs}, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(ctx)

	// The durable record now references the blob store, inline form gone.
	stored, err := docs.Get(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	b := stored.Content.Sections[0].Content[0]
	if b.AttachmentID == "" {
		t.Error("migration not persisted")
	}
	if strings.HasPrefix(b.AttachmentData, "data:") || b.AttachmentData != "" {
		t.Errorf("stored record still carries attachment data %q", b.AttachmentData)
	}
}

func TestMutateAndFlush(t *testing.T) {
	docs, blobs := newStores()
	doc, _ := seedDoc(t, docs, blobs)
	ctx := context.Background()

	s, err := Open(ctx, Config{Docs: docs, Blobs: blobs}, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(ctx)

	sec := s.InsertSection("New", "")
	para := doctree.NewBlock(doctree.BlockParagraph)
	para.Content = "<p>hello</p>"
	s.InsertBlock(sec.ID, para, "")

	if err := s.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	stored, err := docs.Get(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	got := doctree.FindSection(stored.Content.Sections, sec.ID)
	if got == nil || len(got.Content) != 1 {
		t.Fatal("flushed document missing new section content")
	}
}

func TestDebouncedAutosave(t *testing.T) {
	docs, blobs := newStores()
	doc, _ := seedDoc(t, docs, blobs)
	ctx := context.Background()

	s, err := Open(ctx, Config{Docs: docs, Blobs: blobs, Debounce: 20 * time.Millisecond}, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(ctx)

	s.SetTitle("Renamed")
	stored, _ := docs.Get(ctx, doc.ID)
	if stored.Title == "Renamed" {
		t.Fatal("save fired before debounce window")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		stored, _ = docs.Get(ctx, doc.ID)
		if stored.Title == "Renamed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("autosave never fired")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDeleteSectionCascadesAssets(t *testing.T) {
	docs, blobs := newStores()
	doc, asset := seedDoc(t, docs, blobs)
	ctx := context.Background()

	s, err := Open(ctx, Config{Docs: docs, Blobs: blobs}, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(ctx)

	// A second section so the delete is legal.
	s.InsertSection("Keep", "")
	if err := s.DeleteSection(ctx, doc.Content.Sections[0].ID); err != nil {
		t.Fatal(err)
	}
	if _, _, err := blobs.Get(ctx, asset.ID); err != blobstore.ErrNotFound {
		t.Error("asset survived section delete")
	}
}

func TestDeleteLastSectionRefused(t *testing.T) {
	docs, blobs := newStores()
	doc, asset := seedDoc(t, docs, blobs)
	ctx := context.Background()

	s, err := Open(ctx, Config{Docs: docs, Blobs: blobs}, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(ctx)

	if err := s.DeleteSection(ctx, doc.Content.Sections[0].ID); err == nil {
		t.Fatal("deleting the only section must fail")
	}
	if _, _, err := blobs.Get(ctx, asset.ID); err != nil {
		t.Error("asset deleted despite refused section delete")
	}
}

func TestDeleteBlockReleasesAsset(t *testing.T) {
	docs, blobs := newStores()
	doc, asset := seedDoc(t, docs, blobs)
	ctx := context.Background()

	s, err := Open(ctx, Config{Docs: docs, Blobs: blobs}, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(ctx)

	secID := doc.Content.Sections[0].ID
	blockID := doc.Content.Sections[0].Content[0].ID
	s.DeleteBlock(ctx, secID, blockID)

	if _, _, err := blobs.Get(ctx, asset.ID); err != blobstore.ErrNotFound {
		t.Error("asset survived block delete")
	}
	got := s.Document()
	if len(doctree.FindSection(got.Content.Sections, secID).Content) != 0 {
		t.Error("block still present")
	}
}

func TestCloseReleasesRefs(t *testing.T) {
	docs, blobs := newStores()
	doc, _ := seedDoc(t, docs, blobs)
	ctx := context.Background()

	s, err := Open(ctx, Config{Docs: docs, Blobs: blobs}, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if blobs.OpenRefs() != 0 {
		t.Errorf("open refs after close = %d, want 0", blobs.OpenRefs())
	}
	// Close twice is safe.
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestDeleteDocumentCascade(t *testing.T) {
	docs, blobs := newStores()
	doc, asset := seedDoc(t, docs, blobs)
	ctx := context.Background()

	s, err := Open(ctx, Config{Docs: docs, Blobs: blobs}, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteDocument(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := docs.Get(ctx, doc.ID); err != docstore.ErrNotFound {
		t.Error("document record survived delete")
	}
	if _, _, err := blobs.Get(ctx, asset.ID); err != blobstore.ErrNotFound {
		t.Error("asset survived document delete")
	}
	if blobs.OpenRefs() != 0 {
		t.Errorf("open refs = %d, want 0", blobs.OpenRefs())
	}
}
