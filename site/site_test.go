package site

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/skaldworks/skald/blobstore"
	"github.com/skaldworks/skald/doctree"
)

func exportToZip(t *testing.T, e *Exporter, doc *doctree.Document) (*Report, *zip.Reader) {
	t.Helper()
	var buf bytes.Buffer
	report, err := e.Export(context.Background(), doc, &buf)
	if err != nil {
		t.Fatal(err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	return report, zr
}

func zipFile(t *testing.T, zr *zip.Reader, name string) []byte {
	t.Helper()
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatal(err)
		}
		return data
	}
	t.Fatalf("archive has no entry %q", name)
	return nil
}

func TestExportImageAsset(t *testing.T) {
	blobs := blobstore.NewMemory()
	ctx := context.Background()
	payload := []byte("fake png bytes, long enough to matter")
	asset, err := blobs.Save(ctx, payload, "diagram.png", "image/png")
	if err != nil {
		t.Fatal(err)
	}

	doc := doctree.NewDocument("owner-1", "Handbook")
	img := doctree.NewBlock(doctree.BlockImage)
	img.AttachmentID = asset.ID
	img.AttachmentName = asset.Name
	img.AttachmentType = asset.Type
	doc.Content.Sections[0].Content = []doctree.Block{img}

	report, zr := exportToZip(t, New(Config{Blobs: blobs}), doc)
	if report.Assets != 1 || len(report.OmittedAssets) != 0 {
		t.Fatalf("report = %+v", report)
	}

	wantPath := "assets/" + asset.ID + ".png"
	index := string(zipFile(t, zr, "index.html"))
	if !strings.Contains(index, `src="`+wantPath+`"`) {
		t.Errorf("index.html does not reference %s", wantPath)
	}
	if got := zipFile(t, zr, wantPath); len(got) != len(payload) {
		t.Errorf("asset entry is %d bytes, want %d", len(got), len(payload))
	}
}

func TestExportPreOrderNavigation(t *testing.T) {
	doc := doctree.NewDocument("owner-1", "Manual")
	a := doc.Content.Sections[0]
	a.Title = "A"
	a1 := doctree.NewSection("A.1")
	a1.ParentID = a.ID
	a.Children = []doctree.Section{a1}
	b := doctree.NewSection("B")
	doc.Content.Sections = []doctree.Section{a, b}

	_, zr := exportToZip(t, New(Config{Blobs: blobstore.NewMemory()}), doc)
	index := string(zipFile(t, zr, "index.html"))

	// Sections appear in pre-order: A, A.1, B.
	posA := strings.Index(index, "section-"+a.ID)
	posA1 := strings.Index(index, "section-"+a1.ID)
	posB := strings.Index(index, "section-"+b.ID)
	if posA < 0 || posA1 < 0 || posB < 0 {
		t.Fatal("missing section markup")
	}
	if !(posA < posA1 && posA1 < posB) {
		t.Errorf("section order wrong: A=%d A.1=%d B=%d", posA, posA1, posB)
	}

	// Prev/next follow the same order: A.1 sits between A and B.
	if !strings.Contains(index, `"id":"`+a1.ID+`","title":"A.1","prevId":"`+a.ID+`","nextId":"`+b.ID+`"`) {
		t.Error("navigation data missing pre-order prev/next for A.1")
	}
	// The landing section is the first root section.
	if !strings.Contains(index, `data-landing="`+a.ID+`"`) {
		t.Error("landing section is not the first root section")
	}
}

func TestExportOmitsMissingAsset(t *testing.T) {
	blobs := blobstore.NewMemory()
	doc := doctree.NewDocument("owner-1", "Doc")
	img := doctree.NewBlock(doctree.BlockImage)
	img.AttachmentID = "ast-gone"
	para := doctree.NewBlock(doctree.BlockParagraph)
	para.Content = "<p>still here</p>"
	doc.Content.Sections[0].Content = []doctree.Block{img, para}

	report, zr := exportToZip(t, New(Config{Blobs: blobs}), doc)
	if len(report.OmittedAssets) != 1 || report.OmittedAssets[0] != "ast-gone" {
		t.Fatalf("report = %+v", report)
	}

	index := string(zipFile(t, zr, "index.html"))
	if strings.Contains(index, "ast-gone") {
		t.Error("missing asset leaked into the page")
	}
	if !strings.Contains(index, "still here") {
		t.Error("sibling block lost alongside the omitted one")
	}
}

func TestExportSearchIndexAndTOC(t *testing.T) {
	doc := doctree.NewDocument("owner-1", "Guide")
	root := doc.Content.Sections[0]
	root.Title = "Getting Started"
	para := doctree.NewBlock(doctree.BlockParagraph)
	para.Content = "<p>Install the toolchain first.</p>"
	root.Content = []doctree.Block{para}
	child := doctree.NewSection("Advanced")
	child.ParentID = root.ID
	root.Children = []doctree.Section{child}
	doc.Content.Sections = []doctree.Section{root}

	_, zr := exportToZip(t, New(Config{Blobs: blobstore.NewMemory()}), doc)
	index := string(zipFile(t, zr, "index.html"))

	if !strings.Contains(index, "Install the toolchain first.") {
		t.Error("search index lost block text")
	}
	// TOC keeps the nested shape and expands the landing chain.
	if !strings.Contains(index, `data-section-link="`+child.ID+`"`) {
		t.Error("child section missing from table of contents")
	}
	if !strings.Contains(index, "toc-item expanded") {
		t.Error("landing ancestor chain not expanded")
	}
}

func TestExportEmptyDocumentFails(t *testing.T) {
	doc := doctree.NewDocument("owner-1", "Empty")
	doc.Content.Sections = nil
	var buf bytes.Buffer
	if _, err := New(Config{Blobs: blobstore.NewMemory()}).Export(context.Background(), doc, &buf); err == nil {
		t.Fatal("expected error for sectionless document")
	}
}

func TestExportExt(t *testing.T) {
	cases := []struct {
		name, mime, want string
	}{
		{"photo.JPG", "image/jpeg", "jpg"},
		{"noext", "image/png", "png"},
		{"report", "application/pdf", "pdf"},
		{"clip", "video/mp4", "mp4"},
		{"blob", "application/octet-stream", "bin"},
	}
	for _, tc := range cases {
		got := exportExt(blobstore.Asset{Name: tc.name, Type: tc.mime})
		if got != tc.want {
			t.Errorf("exportExt(%q, %q) = %q, want %q", tc.name, tc.mime, got, tc.want)
		}
	}
}
