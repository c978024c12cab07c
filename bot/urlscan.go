// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	// maxURLLength matches the practical upper bound browsers accept.
	maxURLLength = 2048
	// maxURLsPerMessage caps how many previews one message can trigger.
	maxURLsPerMessage = 10
)

// ExtractURLs finds the previewable URLs in a message. When a
// formatted (HTML) body is present it is authoritative, since the
// plain body of a rich message is only a fallback rendering; otherwise
// the plain body is scanned line by line. Results are normalized,
// deduplicated in first-seen order, and capped at maxURLsPerMessage.
func ExtractURLs(body, formattedBody string) []string {
	var found []string
	seen := make(map[string]struct{})
	add := func(raw string) {
		normalized, ok := normalizeURL(raw)
		if !ok {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		found = append(found, normalized)
	}

	if formattedBody != "" {
		extractFromHTML(formattedBody, add)
	} else {
		extractFromText(body, add)
	}

	if len(found) > maxURLsPerMessage {
		found = found[:maxURLsPerMessage]
	}
	return found
}

// extractFromText scans plain text. Lines quoted with "> " are
// skipped: they repeat someone else's message, which already got its
// preview.
func extractFromText(body string, add func(string)) {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "> ") || line == ">" {
			continue
		}
		scanLine(line, add)
	}
}

// extractFromHTML walks the formatted body. Anchor hrefs are taken
// directly; the contents of a (once its href is taken), code, pre,
// del, and mx-reply subtrees never produce previews, matching how
// clients render them (code and strikethrough are not live links, and
// mx-reply wraps the quoted fallback of a rich reply).
func extractFromHTML(formattedBody string, add func(string)) {
	root, err := html.Parse(strings.NewReader(formattedBody))
	if err != nil {
		// Unparsable rich bodies still have a plain fallback upstream;
		// nothing to do here.
		return
	}

	var walk func(node *html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			scanLine(node.Data, add)
			return
		case html.ElementNode:
			switch node.Data {
			case "a":
				for _, a := range node.Attr {
					if a.Key == "href" {
						add(a.Val)
						return
					}
				}
				// An anchor without href is just styled text.
			case "code", "pre", "del", "mx-reply":
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
}

// scanLine finds URL literals in a run of text. The recognizer follows
// what Element highlights as a link: an http(s) scheme followed by
// non-whitespace with balanced bracket pairs, so "(see
// https://example.org/x(y))" captures the inner parenthesis but stops
// at the closing one that belongs to the sentence. Trailing sentence
// punctuation is not part of the URL.
func scanLine(text string, add func(string)) {
	for i := 0; i < len(text); {
		n := matchURL(text[i:])
		if n == 0 {
			_, size := utf8.DecodeRuneInString(text[i:])
			i += size
			continue
		}
		add(trimTrailingPunct(text[i : i+n]))
		i += n
	}
}

// matchURL returns the byte length of a URL literal at the start of s,
// or 0 if s does not start with one.
func matchURL(s string) int {
	n := matchScheme(s)
	if n == 0 {
		return 0
	}
	body := 0
	for {
		k := matchDelimited(s[n+body:])
		if k == 0 {
			break
		}
		body += k
	}
	if body == 0 {
		return 0
	}
	return n + body
}

// matchScheme matches "http" or "https" case-insensitively, the colon,
// and any run of slashes.
func matchScheme(s string) int {
	n := 0
	for _, prefix := range []string{"https:", "http:"} {
		if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			n = len(prefix)
			break
		}
	}
	if n == 0 {
		return 0
	}
	for n < len(s) && s[n] == '/' {
		n++
	}
	return n
}

// matchDelimited matches one URL chunk: a balanced bracket group (with
// an optional closing bracket, so truncated groups still count) or a
// run of characters that are neither brackets nor whitespace. An
// unmatched closing bracket matches nothing, which is what terminates
// the URL at sentence-level brackets.
func matchDelimited(s string) int {
	if s == "" {
		return 0
	}
	if closing, ok := bracketPairs[s[0]]; ok {
		n := 1
		for {
			k := matchDelimited(s[n:])
			if k == 0 {
				break
			}
			n += k
		}
		if n < len(s) && s[n] == closing {
			n++
		}
		return n
	}
	n := 0
	for n < len(s) {
		r, size := utf8.DecodeRuneInString(s[n:])
		if isBracket(r) || unicode.IsSpace(r) {
			break
		}
		n += size
	}
	return n
}

var bracketPairs = map[byte]byte{'(': ')', '<': '>', '[': ']', '{': '}'}

func isBracket(r rune) bool {
	switch r {
	case '(', ')', '<', '>', '[', ']', '{', '}':
		return true
	default:
		return false
	}
}

func trimTrailingPunct(s string) string {
	return strings.TrimRight(s, ".,;:!?")
}

// normalizeURL validates a candidate and brings it to the canonical
// form used as the cache and dedup key.
func normalizeURL(raw string) (string, bool) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", false
	}
	// Matrix mentions render as matrix.to links; they are navigation,
	// not content.
	if host == "matrix.to" {
		return "", false
	}

	port := parsed.Port()
	switch {
	case port == "",
		parsed.Scheme == "http" && port == "80",
		parsed.Scheme == "https" && port == "443":
		parsed.Host = host
	default:
		parsed.Host = host + ":" + port
	}
	// Fragments are client-side state and may carry private tokens.
	parsed.Fragment = ""
	parsed.RawFragment = ""

	normalized := parsed.String()
	if len(normalized) > maxURLLength {
		return "", false
	}
	return normalized, true
}
