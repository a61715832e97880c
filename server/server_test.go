package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/skaldworks/skald/blobstore"
	"github.com/skaldworks/skald/docstore"
	"github.com/skaldworks/skald/doctree"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(Config{OwnerID: "owner-1"}, docstore.NewMemory(), blobstore.NewMemory(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		srv.Close(context.Background())
	})
	return srv, ts
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func createDoc(t *testing.T, ts *httptest.Server, title string) doctree.Document {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/documents", map[string]string{"title": title})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	return decodeBody[doctree.Document](t, resp)
}

func TestDocumentLifecycle(t *testing.T) {
	_, ts := newTestServer(t)

	doc := createDoc(t, ts, "Handbook")
	if doc.OwnerID != "owner-1" || len(doc.Content.Sections) != 1 {
		t.Fatalf("created doc = %+v", doc)
	}

	// Add a section and a paragraph block.
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/documents/"+doc.ID+"/sections",
		map[string]string{"title": "Intro"})
	sec := decodeBody[doctree.Section](t, resp)

	resp = doJSON(t, http.MethodPost,
		ts.URL+"/api/documents/"+doc.ID+"/sections/"+sec.ID+"/blocks",
		map[string]any{"block": map[string]string{"type": "paragraph", "content": "<p>hi</p>"}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("insert block status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/documents/"+doc.ID+"/", nil)
	got := decodeBody[doctree.Document](t, resp)
	found := doctree.FindSection(got.Content.Sections, sec.ID)
	if found == nil || len(found.Content) != 1 {
		t.Fatal("inserted block missing from fetched document")
	}

	// List shows the document with its section count.
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/documents", nil)
	list := decodeBody[[]map[string]any](t, resp)
	if len(list) != 1 {
		t.Fatalf("list = %v", list)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/documents/"+doc.ID+"/", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/documents/"+doc.ID+"/", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDeleteLastSectionRejected(t *testing.T) {
	_, ts := newTestServer(t)
	doc := createDoc(t, ts, "Doc")

	resp := doJSON(t, http.MethodDelete,
		ts.URL+"/api/documents/"+doc.ID+"/sections/"+doc.Content.Sections[0].ID+"/", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMediaUploadAndServe(t *testing.T) {
	_, ts := newTestServer(t)
	doc := createDoc(t, ts, "Doc")
	secID := doc.Content.Sections[0].ID

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "pic.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte("png payload")); err != nil {
		t.Fatal(err)
	}
	mw.WriteField("kind", "image")
	mw.WriteField("size", "large")
	mw.Close()

	req, err := http.NewRequest(http.MethodPost,
		ts.URL+"/api/documents/"+doc.ID+"/sections/"+secID+"/media", &body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	block := decodeBody[doctree.Block](t, resp)
	if block.Type != doctree.BlockImage || block.ImageSize != doctree.SizeLarge || block.AttachmentID == "" {
		t.Fatalf("block = %+v", block)
	}

	// The stored payload is served back.
	resp, err = http.Get(ts.URL + "/assets/" + block.AttachmentID + "/raw")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "png payload" {
		t.Errorf("served asset = %q", data)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/octet-stream") && !strings.HasPrefix(ct, "image/") {
		t.Errorf("content type = %q", ct)
	}
}

func TestExportSiteEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	doc := createDoc(t, ts, "Doc")

	resp, err := http.Get(ts.URL + "/api/documents/" + doc.ID + "/export/site")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/zip" {
		t.Errorf("content type = %q", ct)
	}
	data, _ := io.ReadAll(resp.Body)
	// Zip magic.
	if len(data) < 4 || string(data[:2]) != "PK" {
		t.Error("response is not a zip archive")
	}
}

func TestBackupRoundTripOverHTTP(t *testing.T) {
	srv, ts := newTestServer(t)
	doc := createDoc(t, ts, "Doc")

	resp, err := http.Get(ts.URL + "/api/backup")
	if err != nil {
		t.Fatal(err)
	}
	backupJSON, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	// Wipe and restore.
	if err := srv.docs.Delete(context.Background(), doc.ID); err != nil {
		t.Fatal(err)
	}
	resp, err = http.Post(ts.URL+"/api/restore", "application/json", bytes.NewReader(backupJSON))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("restore status = %d", resp.StatusCode)
	}
	report := decodeBody[map[string]any](t, resp)
	if report["Documents"] != float64(1) {
		t.Errorf("report = %v", report)
	}

	if _, err := srv.docs.Get(context.Background(), doc.ID); err != nil {
		t.Error("document not restored")
	}
}

func TestRestoreRejectsGarbage(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/api/restore", "application/json",
		strings.NewReader(`{"documents":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}
