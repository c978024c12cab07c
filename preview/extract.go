// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// Metadata is the preview-relevant subset of a page's Open Graph and
// fallback metadata. Every field is optional.
type Metadata struct {
	Title        string
	Description  string
	CanonicalURL string
	ImageURL     string
	SiteName     string
}

// IsEmpty reports whether the metadata carries nothing worth posting.
func (m Metadata) IsEmpty() bool {
	return m.Title == "" && m.Description == ""
}

// Extract pulls preview metadata out of a fetched page. The hint can
// redirect the title and description lookups to site-specific meta
// properties. Pages with neither a title nor a description yield an
// *ExtractionError.
//
// Source precedence follows what Synapse's URL previewer does:
// og:title, then twitter:title, then the <title> element; and
// og:description, then twitter:description, then
// <meta name="description">.
func Extract(page *Page, hint ExtractHint) (Metadata, error) {
	reader, err := charset.NewReader(bytes.NewReader(page.Body), page.ContentType)
	if err != nil {
		return Metadata{}, &ExtractionError{Kind: ExtractMalformedMarkup, cause: err}
	}

	titleProperty := "og:title"
	if hint.TitleProperty != "" {
		titleProperty = hint.TitleProperty
	}
	descriptionProperty := "og:description"
	if hint.DescriptionProperty != "" {
		descriptionProperty = hint.DescriptionProperty
	}

	// meta holds property/name -> first seen content.
	meta := make(map[string]string)
	var titleElement string
	var canonicalLink string

	tokenizer := html.NewTokenizer(reader)
	inTitle := false
scan:
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			// io.EOF and malformed trailing bytes both end the scan;
			// whatever was collected so far still counts.
			break scan

		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			switch token.Data {
			case "body":
				// Everything useful lives in <head>.
				break scan
			case "title":
				inTitle = true
			case "meta":
				key := attr(token, "property")
				if key == "" {
					key = attr(token, "name")
				}
				content := attr(token, "content")
				if key != "" && content != "" {
					if _, seen := meta[key]; !seen {
						meta[key] = content
					}
				}
			case "link":
				if strings.EqualFold(attr(token, "rel"), "canonical") && canonicalLink == "" {
					canonicalLink = attr(token, "href")
				}
			}

		case html.TextToken:
			if inTitle {
				titleElement += string(tokenizer.Text())
			}

		case html.EndTagToken:
			if token := tokenizer.Token(); token.Data == "title" {
				inTitle = false
			}
		}
	}

	result := Metadata{
		Title:        firstOf(meta, titleProperty, "twitter:title"),
		Description:  firstOf(meta, descriptionProperty, "twitter:description", "description"),
		SiteName:     meta["og:site_name"],
		ImageURL:     meta["og:image"],
		CanonicalURL: firstOf(meta, "og:url"),
	}
	if result.Title == "" {
		result.Title = strings.TrimSpace(titleElement)
	}
	if result.CanonicalURL == "" {
		result.CanonicalURL = canonicalLink
	}

	if result.IsEmpty() {
		return Metadata{}, &ExtractionError{Kind: ExtractNoMetadata}
	}
	return result, nil
}

func attr(token html.Token, name string) string {
	for _, a := range token.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func firstOf(meta map[string]string, keys ...string) string {
	for _, key := range keys {
		if value := meta[key]; value != "" {
			return value
		}
	}
	return ""
}
