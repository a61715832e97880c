// Package render turns blocks into sanitized, framework-independent markup
// fragments. The same renderer serves the live editor (display-ref asset
// URLs) and the static-site exporter (file-relative asset paths) via a
// pluggable RefResolver.
package render

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// richTextPolicy is the allow-list for rich-text fields: paragraph bodies,
// table cells, bullet items. Anything outside the list is unwrapped to its
// text content by bluemonday; attribute rules beyond its reach (fragment
// hrefs, target/rel coupling) are enforced by the normalize pass below.
var richTextPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("a", "b", "strong", "i", "em", "u", "br", "p", "span")
	p.AllowAttrs("href", "target", "rel", "data-section-link").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(true)
	p.RequireParseableURLs(true)
	return p
}()

// SanitizeHTML reduces a rich-text fragment to the allowed tag set
// (a, b/strong, i/em, u, br, p, span). Disallowed tags are unwrapped to
// their text content. On anchors, href is kept only for http(s), mailto and
// fragment targets, target only when it is "_blank", and rel only alongside
// a kept target. Anchors carrying data-section-link get a neutral "#" href;
// consumers intercept the attribute for in-document navigation.
// Sanitizing already-sanitized content is a no-op.
func SanitizeHTML(s string) string {
	if strings.TrimSpace(s) == "" {
		return s
	}
	return normalizeAnchors(richTextPolicy.Sanitize(s))
}

// normalizeAnchors reparses the sanitized fragment and applies the anchor
// attribute rules bluemonday cannot express.
func normalizeAnchors(s string) string {
	nodes, err := parseFragment(s)
	if err != nil {
		// Parse failure after sanitization should not happen; fall back to
		// text-only output rather than passing markup through unchecked.
		return html.EscapeString(s)
	}
	var buf bytes.Buffer
	for _, n := range nodes {
		walkAnchors(n)
		html.Render(&buf, n)
	}
	return buf.String()
}

func walkAnchors(n *html.Node) {
	if n.Type == html.ElementNode && n.DataAtom == atom.A {
		n.Attr = filterAnchorAttrs(n.Attr)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkAnchors(c)
	}
}

func filterAnchorAttrs(attrs []html.Attribute) []html.Attribute {
	var href, target, rel, sectionLink string
	for _, a := range attrs {
		switch a.Key {
		case "href":
			href = a.Val
		case "target":
			target = a.Val
		case "rel":
			rel = a.Val
		case "data-section-link":
			sectionLink = a.Val
		}
	}

	var out []html.Attribute
	if sectionLink != "" {
		// Internal section links are routed client-side; href stays inert.
		out = append(out,
			html.Attribute{Key: "href", Val: "#"},
			html.Attribute{Key: "data-section-link", Val: sectionLink})
		return out
	}
	if allowedHref(href) {
		out = append(out, html.Attribute{Key: "href", Val: href})
	}
	if target == "_blank" {
		out = append(out, html.Attribute{Key: "target", Val: "_blank"})
		if rel != "" {
			out = append(out, html.Attribute{Key: "rel", Val: rel})
		}
	}
	return out
}

func allowedHref(href string) bool {
	if href == "" {
		return false
	}
	if strings.HasPrefix(href, "#") {
		return true
	}
	lower := strings.ToLower(href)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "mailto:")
}

// PlainText strips all markup from a fragment, returning its visible text.
// Used by the export search index.
func PlainText(s string) string {
	nodes, err := parseFragment(s)
	if err != nil {
		return s
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return sb.String()
}

func parseFragment(s string) ([]*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	return html.ParseFragment(strings.NewReader(s), ctx)
}
