package site

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/skaldworks/skald/doctree"
	"github.com/skaldworks/skald/render"

	xhtml "golang.org/x/net/html"
)

//go:embed assets/page.html.tmpl
var pageTmplSrc string

//go:embed assets/style.css
var styleCSS string

//go:embed assets/app.js
var appJS string

var pageTmpl = template.Must(template.New("page").Parse(pageTmplSrc))

// navEntry is the per-section navigation record embedded in the page.
type navEntry struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	PrevID string `json:"prevId,omitempty"`
	NextID string `json:"nextId,omitempty"`
}

// searchEntry feeds the client-side substring search.
type searchEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// pageEmbed is the JSON blob the behavior script operates on.
type pageEmbed struct {
	Landing string        `json:"landing"`
	Nav     []navEntry    `json:"nav"`
	Search  []searchEntry `json:"search"`
}

type pageData struct {
	DocTitle    string
	Description string
	GeneratedAt string
	LandingID   string
	Style       template.CSS
	Script      template.JS
	DataJSON    template.JS
	TOC         template.HTML
	Sections    template.HTML
}

// renderPage produces the complete index.html.
func (e *Exporter) renderPage(doc *doctree.Document, sections []doctree.Section, flat []doctree.Section, assets map[string]resolvedAsset) ([]byte, error) {
	landing := flat[0].ID

	embed := pageEmbed{Landing: landing}
	var sectionsHTML strings.Builder
	for i, sec := range flat {
		entry := navEntry{ID: sec.ID, Title: sec.Title}
		if i > 0 {
			entry.PrevID = flat[i-1].ID
		}
		if i < len(flat)-1 {
			entry.NextID = flat[i+1].ID
		}
		embed.Nav = append(embed.Nav, entry)

		embed.Search = append(embed.Search, searchEntry{
			ID:    sec.ID,
			Title: sec.Title,
			Text:  sectionText(sec),
		})

		hidden := " hidden"
		if sec.ID == landing {
			hidden = ""
		}
		fmt.Fprintf(&sectionsHTML,
			"<section class=\"doc-section\" id=\"section-%s\" data-section-id=%q%s>\n<h2 class=\"section-title\">%s</h2>\n%s</section>\n",
			template.HTMLEscapeString(sec.ID), sec.ID, hidden,
			template.HTMLEscapeString(sec.Title),
			e.renderSectionHTML(sec, assets))
	}

	dataJSON, err := json.Marshal(embed)
	if err != nil {
		return nil, fmt.Errorf("marshal embedded data: %w", err)
	}

	data := pageData{
		DocTitle:    doc.Title,
		Description: doc.Description,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		LandingID:   landing,
		Style:       template.CSS(styleCSS),
		Script:      template.JS(appJS),
		DataJSON:    template.JS(dataJSON),
		TOC:         template.HTML(renderTOC(sections, landing)),
		Sections:    template.HTML(sectionsHTML.String()),
	}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute page template: %w", err)
	}
	return buf.Bytes(), nil
}

// sectionText flattens a section's block content to the plain text the
// search index stores.
func sectionText(sec doctree.Section) string {
	var parts []string
	for _, b := range sec.Content {
		if t := render.BlockText(b); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// renderTOC renders the sidebar table of contents mirroring the original
// nested structure (not the flattened order). The ancestor chain holding
// the landing section starts expanded.
func renderTOC(sections []doctree.Section, landingID string) string {
	var sb strings.Builder
	renderTOCLevel(&sb, sections, landingID, true)
	return sb.String()
}

func renderTOCLevel(sb *strings.Builder, sections []doctree.Section, landingID string, root bool) {
	if len(sections) == 0 {
		return
	}
	class := "toc-children"
	if root {
		class = "toc-root"
	}
	fmt.Fprintf(sb, `<ul class="%s">`, class)
	for _, sec := range sections {
		expanded := containsSection(sec, landingID)
		liClass := "toc-item"
		if expanded {
			liClass += " expanded"
		}
		fmt.Fprintf(sb, `<li class="%s" data-section=%q><div class="toc-row">`, liClass, xhtml.EscapeString(sec.ID))
		if len(sec.Children) > 0 {
			sb.WriteString(`<button class="toc-toggle" aria-label="toggle">&#9656;</button>`)
		} else {
			sb.WriteString(`<span class="toc-spacer"></span>`)
		}
		fmt.Fprintf(sb, `<a href="#" data-section-link=%q>%s</a></div>`,
			xhtml.EscapeString(sec.ID), xhtml.EscapeString(sec.Title))
		renderTOCLevel(sb, sec.Children, landingID, false)
		sb.WriteString("</li>")
	}
	sb.WriteString("</ul>")
}

// containsSection reports whether the subtree rooted at sec includes id.
func containsSection(sec doctree.Section, id string) bool {
	if sec.ID == id {
		return true
	}
	return doctree.FindSection(sec.Children, id) != nil
}
