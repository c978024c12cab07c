// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// EventType identifies a Matrix state or timeline event type
// (e.g., "m.room.message", "m.room.redaction").
//
// EventType is a named string type, not a struct wrapper: event types
// are opaque identifiers that need no parsing or validation. The type
// exists purely for compile-time safety — preventing accidental use of
// a state key where an event type is expected (or vice versa).
type EventType string

// Standard Matrix event types the bot handles.
const (
	EventTypeMessage   EventType = "m.room.message"
	EventTypeRedaction EventType = "m.room.redaction"
	EventTypeMember    EventType = "m.room.member"
	EventTypeEncrypted EventType = "m.room.encrypted"
)

// String returns the event type string (e.g., "m.room.message").
func (t EventType) String() string { return string(t) }
