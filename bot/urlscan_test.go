// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"fmt"
	"reflect"
	"testing"
)

func TestExtractURLsFromText(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "bare url",
			body: "check https://example.org/page out",
			want: []string{"https://example.org/page"},
		},
		{
			name: "trailing sentence punctuation",
			body: "read https://example.org/article.",
			want: []string{"https://example.org/article"},
		},
		{
			name: "trailing question mark",
			body: "have you seen https://example.org/thing?!",
			want: []string{"https://example.org/thing"},
		},
		{
			name: "parenthesized url keeps inner brackets",
			body: "(see https://en.wikipedia.org/wiki/Go_(programming_language))",
			want: []string{"https://en.wikipedia.org/wiki/Go_(programming_language)"},
		},
		{
			name: "sentence bracket not captured",
			body: "[link: https://example.org/a]",
			want: []string{"https://example.org/a"},
		},
		{
			name: "angle brackets around url",
			body: "<https://example.org/b>",
			want: []string{"https://example.org/b"},
		},
		{
			name: "uppercase scheme",
			body: "HTTPS://EXAMPLE.ORG/Path",
			want: []string{"https://example.org/Path"},
		},
		{
			name: "quoted line skipped",
			body: "> someone said https://example.org/quoted\nbut see https://example.org/mine",
			want: []string{"https://example.org/mine"},
		},
		{
			name: "fragment stripped",
			body: "https://example.org/doc#secret-token",
			want: []string{"https://example.org/doc"},
		},
		{
			name: "default port stripped",
			body: "https://example.org:443/x and http://example.org:80/y and http://example.org:8080/z",
			want: []string{"https://example.org/x", "http://example.org/y", "http://example.org:8080/z"},
		},
		{
			name: "matrix.to skipped",
			body: "ping https://matrix.to/#/@user:example.org and https://example.org/ok",
			want: []string{"https://example.org/ok"},
		},
		{
			name: "non-http scheme ignored",
			body: "ftp://example.org/file and mailto:user@example.org",
			want: nil,
		},
		{
			name: "duplicates collapse to first",
			body: "https://example.org/a then https://example.org/a#frag again",
			want: []string{"https://example.org/a"},
		},
		{
			name: "no urls",
			body: "nothing to see here",
			want: nil,
		},
		{
			name: "scheme without body",
			body: "https:// is how urls start",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractURLs(tt.body, "")
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractURLs(%q) = %v, want %v", tt.body, got, tt.want)
			}
		})
	}
}

func TestExtractURLsFromHTML(t *testing.T) {
	tests := []struct {
		name      string
		formatted string
		want      []string
	}{
		{
			name:      "anchor href",
			formatted: `see <a href="https://example.org/linked">this</a>`,
			want:      []string{"https://example.org/linked"},
		},
		{
			name:      "anchor text not double counted",
			formatted: `<a href="https://example.org/a">https://example.org/b</a>`,
			want:      []string{"https://example.org/a"},
		},
		{
			name:      "text nodes scanned",
			formatted: `<p>go to https://example.org/text now</p>`,
			want:      []string{"https://example.org/text"},
		},
		{
			name:      "code skipped",
			formatted: `<code>https://example.org/snippet</code> but https://example.org/real`,
			want:      []string{"https://example.org/real"},
		},
		{
			name:      "pre skipped",
			formatted: `<pre>https://example.org/block</pre>`,
			want:      nil,
		},
		{
			name:      "del skipped",
			formatted: `<del>https://example.org/retracted</del>`,
			want:      nil,
		},
		{
			name:      "reply fallback skipped",
			formatted: `<mx-reply><blockquote><a href="https://example.org/quoted">quoted</a></blockquote></mx-reply>my take: https://example.org/fresh`,
			want:      []string{"https://example.org/fresh"},
		},
		{
			name:      "matrix.to mention skipped",
			formatted: `<a href="https://matrix.to/#/@user:example.org">user</a> see https://example.org/page`,
			want:      []string{"https://example.org/page"},
		},
		{
			name:      "anchor without href is text",
			formatted: `<a>https://example.org/styled</a>`,
			want:      []string{"https://example.org/styled"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractURLs("fallback body ignored", tt.formatted)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractURLs(html %q) = %v, want %v", tt.formatted, got, tt.want)
			}
		})
	}
}

func TestExtractURLsCap(t *testing.T) {
	body := ""
	for i := 0; i < 15; i++ {
		body += fmt.Sprintf("https://example.org/%d ", i)
	}
	got := ExtractURLs(body, "")
	if len(got) != maxURLsPerMessage {
		t.Fatalf("len = %d, want %d", len(got), maxURLsPerMessage)
	}
	if got[0] != "https://example.org/0" || got[9] != "https://example.org/9" {
		t.Errorf("capped list lost order: %v", got)
	}
}

func TestExtractURLsLengthLimit(t *testing.T) {
	long := "https://example.org/"
	for len(long) <= maxURLLength {
		long += "x"
	}
	if got := ExtractURLs(long, ""); got != nil {
		t.Errorf("over-long URL extracted: %v", got)
	}
}
