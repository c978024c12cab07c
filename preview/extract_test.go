// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"errors"
	"testing"

	"golang.org/x/text/encoding/charmap"
)

func htmlPage(head string) *Page {
	return &Page{
		URL:         "https://example.org/page",
		Body:        []byte("<html><head>" + head + "</head><body><p>og:title never read here</p></body></html>"),
		ContentType: "text/html; charset=utf-8",
	}
}

func TestExtract(t *testing.T) {
	t.Run("og precedence", func(t *testing.T) {
		metadata, err := Extract(htmlPage(
			`<title>Element Title</title>`+
				`<meta property="og:title" content="OG Title">`+
				`<meta name="twitter:title" content="Twitter Title">`+
				`<meta property="og:description" content="OG Description">`+
				`<meta property="og:site_name" content="Example">`+
				`<meta property="og:url" content="https://example.org/canonical">`+
				`<meta property="og:image" content="https://example.org/img.png">`,
		), ExtractHint{})
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if metadata.Title != "OG Title" {
			t.Errorf("Title = %q", metadata.Title)
		}
		if metadata.Description != "OG Description" {
			t.Errorf("Description = %q", metadata.Description)
		}
		if metadata.SiteName != "Example" {
			t.Errorf("SiteName = %q", metadata.SiteName)
		}
		if metadata.CanonicalURL != "https://example.org/canonical" {
			t.Errorf("CanonicalURL = %q", metadata.CanonicalURL)
		}
		if metadata.ImageURL != "https://example.org/img.png" {
			t.Errorf("ImageURL = %q", metadata.ImageURL)
		}
	})

	t.Run("twitter fallback", func(t *testing.T) {
		metadata, err := Extract(htmlPage(
			`<title>Element Title</title>`+
				`<meta name="twitter:title" content="Twitter Title">`+
				`<meta name="twitter:description" content="Twitter Description">`,
		), ExtractHint{})
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if metadata.Title != "Twitter Title" {
			t.Errorf("Title = %q", metadata.Title)
		}
		if metadata.Description != "Twitter Description" {
			t.Errorf("Description = %q", metadata.Description)
		}
	})

	t.Run("title element and description meta", func(t *testing.T) {
		metadata, err := Extract(htmlPage(
			`<title>  Element Title  </title>`+
				`<meta name="description" content="Plain description">`,
		), ExtractHint{})
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if metadata.Title != "Element Title" {
			t.Errorf("Title = %q", metadata.Title)
		}
		if metadata.Description != "Plain description" {
			t.Errorf("Description = %q", metadata.Description)
		}
	})

	t.Run("canonical link fallback", func(t *testing.T) {
		metadata, err := Extract(htmlPage(
			`<title>T</title><link rel="canonical" href="https://example.org/real">`,
		), ExtractHint{})
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if metadata.CanonicalURL != "https://example.org/real" {
			t.Errorf("CanonicalURL = %q", metadata.CanonicalURL)
		}
	})

	t.Run("hint overrides", func(t *testing.T) {
		metadata, err := Extract(htmlPage(
			`<meta property="og:title" content="OG Title">`+
				`<meta property="custom:headline" content="Custom Title">`+
				`<meta property="custom:summary" content="Custom Summary">`,
		), ExtractHint{TitleProperty: "custom:headline", DescriptionProperty: "custom:summary"})
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if metadata.Title != "Custom Title" {
			t.Errorf("Title = %q", metadata.Title)
		}
		if metadata.Description != "Custom Summary" {
			t.Errorf("Description = %q", metadata.Description)
		}
	})

	t.Run("first meta wins over later duplicate", func(t *testing.T) {
		metadata, err := Extract(htmlPage(
			`<meta property="og:title" content="First">`+
				`<meta property="og:title" content="Second">`,
		), ExtractHint{})
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if metadata.Title != "First" {
			t.Errorf("Title = %q", metadata.Title)
		}
	})

	t.Run("no metadata", func(t *testing.T) {
		_, err := Extract(htmlPage(`<meta property="og:image" content="x.png">`), ExtractHint{})
		var extractionErr *ExtractionError
		if !errors.As(err, &extractionErr) {
			t.Fatalf("error = %v (%T), want *ExtractionError", err, err)
		}
		if extractionErr.Kind != ExtractNoMetadata {
			t.Errorf("Kind = %v, want ExtractNoMetadata", extractionErr.Kind)
		}
	})

	t.Run("body content ignored", func(t *testing.T) {
		// The page body mentions og:title in text; only head metadata
		// counts, so this page has nothing.
		_, err := Extract(htmlPage(``), ExtractHint{})
		if err == nil {
			t.Fatal("expected ExtractNoMetadata")
		}
	})

	t.Run("non-utf8 charset", func(t *testing.T) {
		title, err := charmap.ISO8859_1.NewEncoder().String("Café Déjà")
		if err != nil {
			t.Fatalf("encoding test fixture: %v", err)
		}
		page := &Page{
			URL:         "https://example.org/latin1",
			Body:        []byte(`<html><head><title>` + title + `</title></head><body></body></html>`),
			ContentType: "text/html; charset=iso-8859-1",
		}
		metadata, err := Extract(page, ExtractHint{})
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if metadata.Title != "Café Déjà" {
			t.Errorf("Title = %q", metadata.Title)
		}
	})

	t.Run("truncated markup still yields head metadata", func(t *testing.T) {
		page := &Page{
			URL:         "https://example.org/cut",
			Body:        []byte(`<html><head><meta property="og:title" content="Cut Short"><div <<`),
			ContentType: "text/html",
		}
		metadata, err := Extract(page, ExtractHint{})
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if metadata.Title != "Cut Short" {
			t.Errorf("Title = %q", metadata.Title)
		}
	})
}
