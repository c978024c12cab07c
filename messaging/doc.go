// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the subset of the Matrix client-server API
// the previewer bot consumes.
//
// The package provides two core types. [Client] is an unauthenticated
// Matrix client holding the homeserver URL and HTTP transport;
// [Client.Login] authenticates and returns a [Session]. Session exposes
// the operations the bot needs: incremental /sync with long-polling,
// sending room messages (including m.replace edits of the bot's own
// replies), redacting the bot's replies, and room membership
// housekeeping (join, leave, forget).
//
// Everything below this boundary — encryption, device verification,
// session backup — is the transport's concern. The bot consumes
// already-decrypted plaintext event bodies from /sync and never
// inspects raw wire bytes.
//
// All API errors are returned as [*MatrixError] with the standard
// Matrix error code (M_FORBIDDEN, M_NOT_FOUND, etc.) and HTTP status
// code. [IsMatrixError] tests for a specific error code. Request URLs
// are built by string concatenation rather than url.URL to avoid
// double-encoding of path segments that contain URL-encoded characters.
//
// Session credentials persist as a session.json file in the bot's
// state directory ([LoadSessionFile], [SessionFile.Save]), written by
// the login subcommand and consumed by run.
package messaging
