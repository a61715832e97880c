package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/skaldworks/skald/blobstore"
	"github.com/skaldworks/skald/docstore"
	"github.com/skaldworks/skald/doctree"
)

var testMCPImpl = &mcp.Implementation{Name: "skald-test", Version: "0.1.0"}

func mcpSession(t *testing.T) (*Server, *mcp.ClientSession) {
	t.Helper()
	s := New(Config{OwnerID: "owner-1"}, docstore.NewMemory(), blobstore.NewMemory(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := mcp.NewServer(testMCPImpl, nil)
	s.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return s, session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text
}

func TestMCPDocumentListAndGet(t *testing.T) {
	s, session := mcpSession(t)
	ctx := context.Background()

	doc := doctree.NewDocument("owner-1", "Handbook")
	if err := s.docs.Save(ctx, doc); err != nil {
		t.Fatal(err)
	}

	text := mcpCallTool(t, session, "document_list", map[string]any{})
	var list []struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Sections int    `json:"sections"`
	}
	if err := json.Unmarshal([]byte(text), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Title != "Handbook" || list[0].Sections != 1 {
		t.Fatalf("list = %+v", list)
	}

	text = mcpCallTool(t, session, "document_get", map[string]any{"document_id": doc.ID})
	var got doctree.Document
	if err := json.Unmarshal([]byte(text), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != doc.ID {
		t.Errorf("got = %+v", got)
	}
}

func TestMCPExportSite(t *testing.T) {
	s, session := mcpSession(t)
	ctx := context.Background()

	doc := doctree.NewDocument("owner-1", "Site")
	if err := s.docs.Save(ctx, doc); err != nil {
		t.Fatal(err)
	}

	text := mcpCallTool(t, session, "document_export_site", map[string]any{"document_id": doc.ID})
	var resp exportSiteResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Sections != 1 || resp.ZipBase64 == "" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestMCPBackupRoundTrip(t *testing.T) {
	s, session := mcpSession(t)
	ctx := context.Background()

	doc := doctree.NewDocument("owner-1", "Backed")
	if err := s.docs.Save(ctx, doc); err != nil {
		t.Fatal(err)
	}

	backupJSON := mcpCallTool(t, session, "backup_export", map[string]any{})

	if err := s.docs.Delete(ctx, doc.ID); err != nil {
		t.Fatal(err)
	}
	text := mcpCallTool(t, session, "backup_restore", map[string]any{"backup": backupJSON})
	var report struct {
		Documents int `json:"Documents"`
	}
	if err := json.Unmarshal([]byte(text), &report); err != nil {
		t.Fatal(err)
	}
	if report.Documents != 1 {
		t.Errorf("report = %+v", report)
	}
	if _, err := s.docs.Get(ctx, doc.ID); err != nil {
		t.Error("document not restored via MCP")
	}
}
