package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/skaldworks/skald/bundle"
	"github.com/skaldworks/skald/doctree"
	"github.com/skaldworks/skald/kit"
	"github.com/skaldworks/skald/site"
)

// RegisterMCP registers the document tools on an MCP server.
func (s *Server) RegisterMCP(srv *mcp.Server) {
	s.registerListTool(srv)
	s.registerGetTool(srv)
	s.registerExportSiteTool(srv)
	s.registerBackupExportTool(srv)
	s.registerBackupRestoreTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func (s *Server) ownerOr(owner string) string {
	if owner != "" {
		return owner
	}
	return s.cfg.OwnerID
}

// --- document_list ---

type listRequest struct {
	OwnerID string `json:"owner_id,omitempty"`
}

func (s *Server) registerListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "document_list",
		Description: "List documents with their titles, section counts and modification times.",
		InputSchema: inputSchema(map[string]any{
			"owner_id": map[string]any{"type": "string", "description": "Owner to list for (default: configured owner)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*listRequest)
		docs, err := s.docs.ListByOwner(ctx, s.ownerOr(r.OwnerID))
		if err != nil {
			return nil, err
		}
		type item struct {
			ID       string `json:"id"`
			Title    string `json:"title"`
			Sections int    `json:"sections"`
		}
		out := make([]item, 0, len(docs))
		for _, d := range docs {
			out = append(out, item{d.ID, d.Title, doctree.CountSections(d.Content.Sections)})
		}
		return out, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[listRequest])
}

// --- document_get ---

type getRequest struct {
	DocumentID string `json:"document_id"`
}

func (s *Server) registerGetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "document_get",
		Description: "Fetch one document with its full section tree.",
		InputSchema: inputSchema(map[string]any{
			"document_id": map[string]any{"type": "string", "description": "Document id"},
		}, []string{"document_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*getRequest)
		return s.docs.Get(ctx, r.DocumentID)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[getRequest])
}

// --- document_export_site ---

type exportSiteRequest struct {
	DocumentID string `json:"document_id"`
}

type exportSiteResponse struct {
	Sections      int      `json:"sections"`
	Assets        int      `json:"assets"`
	OmittedAssets []string `json:"omittedAssets,omitempty"`
	ZipBase64     string   `json:"zipBase64"`
}

func (s *Server) registerExportSiteTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "document_export_site",
		Description: "Export a document as a self-contained static site. Returns the zip archive base64-encoded.",
		InputSchema: inputSchema(map[string]any{
			"document_id": map[string]any{"type": "string", "description": "Document id"},
		}, []string{"document_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*exportSiteRequest)
		doc, err := s.docs.Get(ctx, r.DocumentID)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		exporter := site.New(site.Config{Blobs: s.blobs, Logger: s.logger})
		report, err := exporter.Export(ctx, doc, &buf)
		if err != nil {
			return nil, err
		}
		return &exportSiteResponse{
			Sections:      report.Sections,
			Assets:        report.Assets,
			OmittedAssets: report.OmittedAssets,
			ZipBase64:     base64.StdEncoding.EncodeToString(buf.Bytes()),
		}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[exportSiteRequest])
}

// --- backup_export ---

type backupExportRequest struct {
	OwnerID string `json:"owner_id,omitempty"`
}

func (s *Server) registerBackupExportTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "backup_export",
		Description: "Export all documents and referenced assets as a portable backup JSON.",
		InputSchema: inputSchema(map[string]any{
			"owner_id": map[string]any{"type": "string", "description": "Owner to back up (default: configured owner)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*backupExportRequest)
		return bundle.Export(ctx, s.docs, s.blobs, s.ownerOr(r.OwnerID))
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[backupExportRequest])
}

// --- backup_restore ---

type backupRestoreRequest struct {
	OwnerID string `json:"owner_id,omitempty"`
	Backup  string `json:"backup"`
}

func (s *Server) registerBackupRestoreTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "backup_restore",
		Description: "Restore documents and assets from a backup JSON produced by backup_export.",
		InputSchema: inputSchema(map[string]any{
			"owner_id": map[string]any{"type": "string", "description": "Owner to restore for (default: configured owner)"},
			"backup":   map[string]any{"type": "string", "description": "Backup JSON payload"},
		}, []string{"backup"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*backupRestoreRequest)
		backup, err := bundle.Read(strings.NewReader(r.Backup))
		if err != nil {
			return nil, err
		}
		return bundle.Restore(ctx, backup, s.docs, s.blobs, s.ownerOr(r.OwnerID))
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[backupRestoreRequest])
}

// decodeInto unmarshals tool arguments into T.
func decodeInto[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r T
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}
