// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import "fmt"

// FetchErrorKind classifies why a page fetch failed.
type FetchErrorKind int

const (
	// FetchTimeout means the request exceeded the configured deadline.
	FetchTimeout FetchErrorKind = iota
	// FetchHTTPStatus means the server answered with a non-2xx status.
	FetchHTTPStatus
	// FetchTooLarge means the response body exceeded the size limit.
	FetchTooLarge
	// FetchConnectionFailed covers DNS, dial, and TLS failures.
	FetchConnectionFailed
	// FetchTooManyRedirects means the redirect chain exceeded the cap.
	FetchTooManyRedirects
	// FetchUnsupported means the response was not an HTML document.
	FetchUnsupported
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchTimeout:
		return "timeout"
	case FetchHTTPStatus:
		return "http status"
	case FetchTooLarge:
		return "too large"
	case FetchConnectionFailed:
		return "connection failed"
	case FetchTooManyRedirects:
		return "too many redirects"
	case FetchUnsupported:
		return "unsupported content"
	default:
		return "unknown"
	}
}

// FetchError describes a failed page fetch. Status is set only for
// FetchHTTPStatus.
type FetchError struct {
	Kind   FetchErrorKind
	Status int
	cause  error
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == FetchHTTPStatus:
		return fmt.Sprintf("preview: fetch failed: http status %d", e.Status)
	case e.cause != nil:
		return fmt.Sprintf("preview: fetch failed: %s: %v", e.Kind, e.cause)
	default:
		return fmt.Sprintf("preview: fetch failed: %s", e.Kind)
	}
}

func (e *FetchError) Unwrap() error {
	return e.cause
}

// ExtractionErrorKind classifies why metadata extraction failed.
type ExtractionErrorKind int

const (
	// ExtractMalformedMarkup means the document could not be tokenized.
	ExtractMalformedMarkup ExtractionErrorKind = iota
	// ExtractNoMetadata means the page had neither a usable title nor a
	// description.
	ExtractNoMetadata
)

// ExtractionError describes a page that fetched fine but yielded no
// usable preview.
type ExtractionError struct {
	Kind  ExtractionErrorKind
	cause error
}

func (e *ExtractionError) Error() string {
	switch e.Kind {
	case ExtractMalformedMarkup:
		return fmt.Sprintf("preview: malformed markup: %v", e.cause)
	case ExtractNoMetadata:
		return "preview: no metadata found"
	default:
		return "preview: extraction failed"
	}
}

func (e *ExtractionError) Unwrap() error {
	return e.cause
}
