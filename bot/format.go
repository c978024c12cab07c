// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"net/url"
	"strings"

	"github.com/Enovale/matrix-url-previewer-bot/preview"
)

// maxPreviewTextChars bounds each of title, site name, and description
// in a reply. The cap is in characters, not bytes.
const maxPreviewTextChars = 1024

// URLPreview pairs a fetched URL with its extracted metadata.
type URLPreview struct {
	URL      string
	Metadata preview.Metadata
}

// FormatReply renders the preview reply for a message. Each previewed
// URL becomes one blockquote: a backref link (🔗) to the original
// event, the linked title (or a "No title" placeholder), the site name
// when known, and the description as a quoted line. The plain body
// mirrors the HTML for clients that do not render formatting.
func FormatReply(originalEventLink string, previews []URLPreview) (body, formattedBody string) {
	var text strings.Builder
	var html strings.Builder

	for i, p := range previews {
		if i > 0 {
			text.WriteString("\n\n")
		}

		title := limitChars(collapseWhitespace(p.Metadata.Title), maxPreviewTextChars)
		siteName := limitChars(collapseWhitespace(p.Metadata.SiteName), maxPreviewTextChars)
		description := limitChars(collapseWhitespace(p.Metadata.Description), maxPreviewTextChars)
		target := previewTarget(p)

		html.WriteString(`<blockquote><div><a href="`)
		html.WriteString(escapeAttr(originalEventLink))
		html.WriteString(`">🔗</a> `)
		if title == "" {
			html.WriteString(`<em><a href="`)
			html.WriteString(escapeAttr(target))
			html.WriteString(`">No title</a></em>`)
			text.WriteString("(No title)")
		} else {
			html.WriteString(`<strong><a href="`)
			html.WriteString(escapeAttr(target))
			html.WriteString(`">`)
			html.WriteString(escapeText(title))
			html.WriteString(`</a></strong>`)
			text.WriteString(title)
		}
		if siteName != "" {
			html.WriteString(" – <span>")
			html.WriteString(escapeText(siteName))
			html.WriteString("</span>")
			text.WriteString(" – ")
			text.WriteString(siteName)
		}
		html.WriteString("</div>")
		if description != "" {
			html.WriteString("<div>")
			html.WriteString(escapeText(description))
			html.WriteString("</div>")
			text.WriteString("\n> ")
			text.WriteString(description)
		}
		html.WriteString("</blockquote>")
	}

	return text.String(), html.String()
}

// previewTarget picks the URL the title links to: the page's canonical
// URL when it is sane, otherwise the URL that was fetched.
func previewTarget(p URLPreview) string {
	canonical := p.Metadata.CanonicalURL
	if canonical == "" || len(canonical) > maxURLLength {
		return p.URL
	}
	parsed, err := url.Parse(canonical)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Hostname() == "" {
		return p.URL
	}
	return canonical
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// limitChars truncates to maxChars characters, replacing the last kept
// character with an ellipsis when anything was cut.
func limitChars(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars-1]) + "…"
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", `"`, "&quot;")
)

// escapeText escapes a string for use as HTML text content.
func escapeText(s string) string { return textEscaper.Replace(s) }

// escapeAttr escapes a string for use in a double-quoted HTML
// attribute.
func escapeAttr(s string) string { return attrEscaper.Replace(s) }

// MatrixToEventURI builds the matrix.to permalink for an event, used
// as the reply's backref target.
func MatrixToEventURI(roomID string, eventID string) string {
	return "https://matrix.to/#/" + url.PathEscape(roomID) + "/" + url.PathEscape(eventID)
}
