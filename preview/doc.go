// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package preview fetches web pages and extracts Open Graph metadata
// for link previews.
//
// The package is organized as a small pipeline: [Rules] rewrites a
// user-posted URL into the URL actually fetched (some sites only serve
// usable metadata on alternate endpoints), [Fetcher] downloads the page
// under strict size, redirect, concurrency, and pacing limits, and
// [Extract] pulls the title, description, and related properties out of
// the HTML head. [Cache] ties the pipeline together and deduplicates
// concurrent and repeated requests for the same URL.
//
// All failures are soft. A page that cannot be fetched or carries no
// metadata yields a typed error the caller is expected to skip over,
// never a crash or a retry storm.
package preview
