package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/skaldworks/skald/doctree"

	"golang.org/x/net/html"
)

// ErrUnresolvedAsset is returned when a media block's attachment cannot be
// resolved to a source URL. Callers log it and omit the block; it is never
// a rendering abort.
var ErrUnresolvedAsset = errors.New("render: asset reference unresolved")

// RefResolver maps an attachment id to a renderable source URL. The editor
// passes display-ref URLs, the exporter passes export-relative paths.
type RefResolver func(attachmentID string) (string, bool)

// imageSizeClass maps the image size preset to a fixed width class. The
// classes form an ordered set of max-widths in the stylesheet
// (320px / 640px / 960px / 100%).
var imageSizeClass = map[doctree.ImageSize]string{
	doctree.SizeSmall:  "img-small",
	doctree.SizeMedium: "img-medium",
	doctree.SizeLarge:  "img-large",
	doctree.SizeFull:   "img-full",
}

// Block renders one block to a sanitized markup fragment. User content is
// escaped before interpolation except rich-text fields, which pass through
// SanitizeHTML instead. Media blocks whose attachment does not resolve
// return ErrUnresolvedAsset.
func Block(b doctree.Block, resolve RefResolver) (string, error) {
	switch b.Type {
	case doctree.BlockParagraph:
		return fmt.Sprintf(`<div class="block block-paragraph">%s</div>`, SanitizeHTML(b.Content)), nil
	case doctree.BlockH1, doctree.BlockH2, doctree.BlockH3:
		tag := string(b.Type)
		return fmt.Sprintf(`<%s class="block block-heading">%s</%s>`, tag, SanitizeHTML(b.Content), tag), nil
	case doctree.BlockImage:
		return renderImage(b, resolve)
	case doctree.BlockPDF:
		return renderPDF(b, resolve)
	case doctree.BlockVideo:
		return renderVideo(b, resolve)
	case doctree.BlockLink:
		return renderLink(b), nil
	case doctree.BlockTable:
		return renderTable(b), nil
	case doctree.BlockBulletList:
		return renderBulletList(b), nil
	case doctree.BlockNavigation:
		return renderNavigation(b), nil
	default:
		return "", fmt.Errorf("render: unknown block type %q", b.Type)
	}
}

func resolveSrc(b doctree.Block, resolve RefResolver) (string, error) {
	if resolve == nil || b.AttachmentID == "" {
		return "", fmt.Errorf("%w: block %s", ErrUnresolvedAsset, b.ID)
	}
	src, ok := resolve(b.AttachmentID)
	if !ok {
		return "", fmt.Errorf("%w: attachment %s", ErrUnresolvedAsset, b.AttachmentID)
	}
	return src, nil
}

func renderImage(b doctree.Block, resolve RefResolver) (string, error) {
	src, err := resolveSrc(b, resolve)
	if err != nil {
		return "", err
	}
	class, ok := imageSizeClass[b.ImageSize]
	if !ok {
		class = imageSizeClass[doctree.SizeMedium]
	}
	return fmt.Sprintf(`<figure class="block block-image"><img src="%s" alt="%s" class="%s"></figure>`,
		html.EscapeString(src), html.EscapeString(b.AttachmentName), class), nil
}

func renderPDF(b doctree.Block, resolve RefResolver) (string, error) {
	src, err := resolveSrc(b, resolve)
	if err != nil {
		return "", err
	}
	name := b.AttachmentName
	if name == "" {
		name = "document.pdf"
	}
	return fmt.Sprintf(
		`<div class="block block-pdf"><a href="%s" download="%s" class="pdf-card"><span class="pdf-icon">PDF</span><span class="pdf-name">%s</span></a></div>`,
		html.EscapeString(src), html.EscapeString(name), html.EscapeString(name)), nil
}

func renderVideo(b doctree.Block, resolve RefResolver) (string, error) {
	src, err := resolveSrc(b, resolve)
	if err != nil {
		return "", err
	}
	mimeType := b.AttachmentType
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	return fmt.Sprintf(
		`<div class="block block-video"><video controls preload="metadata"><source src="%s" type="%s"></video></div>`,
		html.EscapeString(src), html.EscapeString(mimeType)), nil
}

func renderLink(b doctree.Block) string {
	url := strings.TrimSpace(b.Content)
	if !allowedHref(url) {
		// Unknown scheme: show the text without a live link.
		return fmt.Sprintf(`<div class="block block-link"><span>%s</span></div>`, html.EscapeString(url))
	}
	return fmt.Sprintf(
		`<div class="block block-link"><a href="%s" target="_blank" rel="noopener" class="link-card">%s</a></div>`,
		html.EscapeString(url), html.EscapeString(url))
}

func renderTable(b doctree.Block) string {
	var sb strings.Builder
	sb.WriteString(`<table class="block block-table"><tbody>`)
	for _, row := range b.TableData {
		sb.WriteString("<tr>")
		for _, cell := range row {
			if cell.Formatting != "" {
				fmt.Fprintf(&sb, `<td class="cell-%s">%s</td>`,
					html.EscapeString(cell.Formatting), SanitizeHTML(cell.Content))
			} else {
				fmt.Fprintf(&sb, "<td>%s</td>", SanitizeHTML(cell.Content))
			}
		}
		sb.WriteString("</tr>")
	}
	sb.WriteString("</tbody></table>")
	return sb.String()
}

func renderBulletList(b doctree.Block) string {
	style := b.BulletStyle
	if style == "" {
		style = doctree.BulletDisc
	}
	tag := "ul"
	if style == doctree.BulletDecimal {
		tag = "ol"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, `<%s class="block block-list" style="list-style-type:%s">`, tag, style)
	for _, item := range strings.Split(b.Content, "\n") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		fmt.Fprintf(&sb, "<li>%s</li>", SanitizeHTML(item))
	}
	fmt.Fprintf(&sb, "</%s>", tag)
	return sb.String()
}

func renderNavigation(b doctree.Block) string {
	var sb strings.Builder
	sb.WriteString(`<nav class="block block-navigation"><ul>`)
	for _, item := range b.NavItems {
		if item.TargetSectionID != "" {
			fmt.Fprintf(&sb, `<li><a href="#" data-section-link="%s">%s</a></li>`,
				html.EscapeString(item.TargetSectionID), html.EscapeString(item.Label))
		} else {
			fmt.Fprintf(&sb, "<li><span>%s</span></li>", html.EscapeString(item.Label))
		}
	}
	sb.WriteString("</ul></nav>")
	return sb.String()
}

// BlockText returns the searchable plain text of a block: rich-text fields
// stripped of markup, table cells and list items joined, media reduced to
// their attachment names.
func BlockText(b doctree.Block) string {
	switch b.Type {
	case doctree.BlockParagraph, doctree.BlockH1, doctree.BlockH2, doctree.BlockH3:
		return PlainText(b.Content)
	case doctree.BlockLink:
		return strings.TrimSpace(b.Content)
	case doctree.BlockImage, doctree.BlockPDF, doctree.BlockVideo:
		return b.AttachmentName
	case doctree.BlockTable:
		var parts []string
		for _, row := range b.TableData {
			for _, cell := range row {
				if t := PlainText(cell.Content); t != "" {
					parts = append(parts, t)
				}
			}
		}
		return strings.Join(parts, " ")
	case doctree.BlockBulletList:
		var parts []string
		for _, item := range strings.Split(b.Content, "\n") {
			if t := PlainText(item); t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, " ")
	case doctree.BlockNavigation:
		var parts []string
		for _, item := range b.NavItems {
			if item.Label != "" {
				parts = append(parts, item.Label)
			}
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}
