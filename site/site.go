// Package site exports a document to a self-contained static site: one
// navigation page plus an assets folder, packaged as a zip archive. The
// page needs nothing beyond static file serving — section switching,
// search and table-of-contents behavior run client-side over data embedded
// at export time.
//
// The exporter is a four-phase pipeline: collect (pre-order flatten),
// resolve-assets (fetch each referenced asset once, assign export paths),
// render (sections via the block formatter, navigation order, search
// index), package (zip).
package site

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/skaldworks/skald/blobstore"
	"github.com/skaldworks/skald/doctree"
	"github.com/skaldworks/skald/render"
)

// Config configures an Exporter.
type Config struct {
	Blobs  blobstore.Store
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Exporter writes static-site bundles.
type Exporter struct {
	blobs  blobstore.Store
	logger *slog.Logger
}

// New creates an Exporter.
func New(cfg Config) *Exporter {
	cfg.defaults()
	return &Exporter{blobs: cfg.Blobs, logger: cfg.Logger}
}

// Report summarizes one export. OmittedAssets lists attachment ids that
// could not be resolved; their blocks were skipped, the export still
// succeeded.
type Report struct {
	Sections      int
	Assets        int
	OmittedAssets []string
}

// resolvedAsset is one fetched binary with its export-relative path.
type resolvedAsset struct {
	asset blobstore.Asset
	data  []byte
	path  string
}

// Export writes the site archive for doc to w.
func (e *Exporter) Export(ctx context.Context, doc *doctree.Document, w io.Writer) (*Report, error) {
	sections := doc.Content.Sections
	if len(sections) == 0 {
		return nil, fmt.Errorf("site: document %s has no sections", doc.ID)
	}

	// Phase 1: collect. Pre-order defines prev/next order and the landing
	// section (first entry).
	flat := doctree.Flatten(sections)

	// Phase 2: resolve assets, one fetch per distinct id.
	assets, omitted := e.resolveAssets(ctx, sections)

	// Phase 3: render.
	report := &Report{Sections: len(flat), Assets: len(assets), OmittedAssets: omitted}
	page, err := e.renderPage(doc, sections, flat, assets)
	if err != nil {
		return nil, fmt.Errorf("site: render: %w", err)
	}

	// Phase 4: package.
	zw := zip.NewWriter(w)
	fw, err := zw.Create("index.html")
	if err != nil {
		return nil, fmt.Errorf("site: archive: %w", err)
	}
	if _, err := fw.Write(page); err != nil {
		return nil, fmt.Errorf("site: archive: %w", err)
	}
	for _, ra := range assets {
		fw, err := zw.Create(ra.path)
		if err != nil {
			return nil, fmt.Errorf("site: archive %s: %w", ra.path, err)
		}
		if _, err := fw.Write(ra.data); err != nil {
			return nil, fmt.Errorf("site: archive %s: %w", ra.path, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("site: close archive: %w", err)
	}
	return report, nil
}

// resolveAssets fetches every referenced asset once and assigns its
// export path. Missing assets are logged and reported, never fatal.
func (e *Exporter) resolveAssets(ctx context.Context, sections []doctree.Section) (map[string]resolvedAsset, []string) {
	out := make(map[string]resolvedAsset)
	var omitted []string
	for _, id := range doctree.CollectAttachmentIDs(sections) {
		asset, data, err := e.blobs.Get(ctx, id)
		if err != nil {
			if !errors.Is(err, blobstore.ErrNotFound) {
				e.logger.Warn("asset fetch failed", "asset", id, "error", err)
			} else {
				e.logger.Warn("asset missing, omitting from export", "asset", id)
			}
			omitted = append(omitted, id)
			continue
		}
		out[id] = resolvedAsset{
			asset: asset,
			data:  data,
			path:  "assets/" + id + "." + exportExt(asset),
		}
	}
	return out, omitted
}

// exportExt picks the file extension: original filename first, then a MIME
// fallback (image→png, pdf→pdf, video→mp4, else bin).
func exportExt(asset blobstore.Asset) string {
	if ext := strings.TrimPrefix(path.Ext(asset.Name), "."); ext != "" {
		return strings.ToLower(ext)
	}
	switch {
	case strings.HasPrefix(asset.Type, "image/"):
		return "png"
	case asset.Type == "application/pdf":
		return "pdf"
	case strings.HasPrefix(asset.Type, "video/"):
		return "mp4"
	default:
		return "bin"
	}
}

// renderSectionHTML renders one section's blocks with export-path asset
// references. Unresolvable media blocks are omitted with a diagnostic.
func (e *Exporter) renderSectionHTML(sec doctree.Section, assets map[string]resolvedAsset) string {
	resolve := func(attachmentID string) (string, bool) {
		ra, ok := assets[attachmentID]
		if !ok {
			return "", false
		}
		return ra.path, true
	}
	var sb strings.Builder
	for _, b := range sec.Content {
		frag, err := render.Block(b, resolve)
		if err != nil {
			if errors.Is(err, render.ErrUnresolvedAsset) {
				e.logger.Warn("block omitted from export", "section", sec.ID, "block", b.ID, "error", err)
				continue
			}
			e.logger.Warn("block render failed", "section", sec.ID, "block", b.ID, "error", err)
			continue
		}
		sb.WriteString(frag)
		sb.WriteByte('\n')
	}
	return sb.String()
}
