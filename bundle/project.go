package bundle

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/skaldworks/skald/blobstore"
	"github.com/skaldworks/skald/doctree"
	"github.com/skaldworks/skald/hydrate"
	"github.com/skaldworks/skald/render"
)

// manifestEntry describes one asset inside a project archive.
type manifestEntry struct {
	blobstore.Asset
	Path string `json:"path"` // archive-relative payload location
}

// ExportProject writes a single-document zip archive: project.json with the
// dehydrated document, an asset manifest, and each referenced payload under
// assets/{assetId}/{fileName}. Assets that no longer resolve are left out
// of the manifest.
func ExportProject(ctx context.Context, doc *doctree.Document, blobs blobstore.Store, w io.Writer) error {
	zw := zip.NewWriter(w)

	record, err := json.MarshalIndent(hydrate.DehydrateDocument(doc), "", "  ")
	if err != nil {
		return fmt.Errorf("bundle: marshal project: %w", err)
	}
	if err := writeZipEntry(zw, "project.json", record); err != nil {
		return err
	}

	var manifest []manifestEntry
	for _, id := range doctree.CollectAttachmentIDs(doc.Content.Sections) {
		asset, data, err := blobs.Get(ctx, id)
		if err != nil {
			continue
		}
		entry := manifestEntry{
			Asset: asset,
			Path:  "assets/" + id + "/" + sanitizeFileName(asset.Name),
		}
		if err := writeZipEntry(zw, entry.Path, data); err != nil {
			return err
		}
		manifest = append(manifest, entry)
	}

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("bundle: marshal manifest: %w", err)
	}
	if err := writeZipEntry(zw, "assets/manifest.json", manifestJSON); err != nil {
		return err
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("bundle: close project archive: %w", err)
	}
	return nil
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	fw, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("bundle: archive %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("bundle: archive %s: %w", name, err)
	}
	return nil
}

// sanitizeFileName keeps file names safe as zip entry components.
func sanitizeFileName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r < 0x20:
			return '_'
		default:
			return r
		}
	}, name)
	name = strings.Trim(name, ". ")
	if name == "" {
		return "asset.bin"
	}
	return name
}

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// ExportMarkdown renders the document to portable markdown. Sections become
// headings (level by depth), block content is rendered to HTML and then
// converted. Media references point into the project-archive asset layout.
func ExportMarkdown(doc *doctree.Document) ([]byte, error) {
	resolve := func(attachmentID string) (string, bool) {
		return "assets/" + attachmentID, true
	}

	var html strings.Builder
	var walk func(list []doctree.Section, depth int)
	walk = func(list []doctree.Section, depth int) {
		// Document title takes h1; sections start at h2.
		level := depth + 2
		if level > 6 {
			level = 6
		}
		for _, sec := range list {
			fmt.Fprintf(&html, "<h%d>%s</h%d>\n", level, render.SanitizeHTML(sec.Title), level)
			for _, b := range sec.Content {
				frag, err := render.Block(b, resolve)
				if err != nil {
					continue
				}
				html.WriteString(frag)
				html.WriteByte('\n')
			}
			walk(sec.Children, depth+1)
		}
	}
	walk(doc.Content.Sections, 0)

	md, err := mdConverter.ConvertString(html.String())
	if err != nil {
		return nil, fmt.Errorf("bundle: markdown conversion: %w", err)
	}
	out := "# " + doc.Title + "\n\n" + strings.TrimSpace(md) + "\n"
	return []byte(out), nil
}
