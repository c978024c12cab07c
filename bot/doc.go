// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package bot contains the previewer's event-handling core: scanning
// message bodies for URLs, racing edits against in-flight preview
// work, formatting replies, and remembering which reply belongs to
// which message across restarts.
//
// The central piece is [Processor], which consumes timeline events in
// per-room arrival order and drives the preview pipeline. Edits of a
// message form a chain rooted at the original event; [Resolver]
// guarantees that for each chain exactly one reply is visible no
// matter how fetch completions interleave with further edits.
package bot
