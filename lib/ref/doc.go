// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable Matrix identifier
// values: [RoomID], [EventID], [UserID], and [EventType].
//
// Identifiers arrive as strings from the homeserver (/sync responses,
// send acknowledgements) and are parsed into these types at the
// boundary. All constructors validate the structural format (sigil
// prefix, server suffix where the Matrix spec requires one) and return
// errors for malformed input. Once constructed, a ref is immutable.
//
// JSON marshaling uses the canonical Matrix string form via
// encoding.TextMarshaler, so the types can be used directly in request
// and response structs.
package ref
