// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"github.com/Enovale/matrix-url-previewer-bot/lib/ref"
)

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Type                     string `json:"type"`
	User                     string `json:"user"`
	Password                 string `json:"password"`
	DeviceID                 string `json:"device_id,omitempty"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

// AuthResponse is returned by Login.
type AuthResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

// MessageContent is the content body of a Matrix message event
// (m.room.message). The bot only ever sends m.notice messages —
// notices are the conventional msgtype for bot output, and other bots
// ignore them, which prevents preview loops between two previewer
// instances in the same room.
type MessageContent struct {
	MsgType       string      `json:"msgtype"`
	Body          string      `json:"body"`
	Format        string      `json:"format,omitempty"`
	FormattedBody string      `json:"formatted_body,omitempty"`
	RelatesTo     *RelatesTo  `json:"m.relates_to,omitempty"`
	NewContent    *NewContent `json:"m.new_content,omitempty"`
}

// NewContent carries the replacement content of an m.replace edit.
type NewContent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

// RelatesTo expresses relationships between events. The bot sends
// rel_type "m.replace" when editing its own reply and "m.thread" when
// replying inside a thread, and reads both to recognize edits and
// threaded messages.
type RelatesTo struct {
	RelType       string      `json:"rel_type,omitempty"`
	EventID       ref.EventID `json:"event_id,omitempty"`
	IsFallingBack bool        `json:"is_falling_back,omitempty"`
	InReplyTo     *InReplyTo  `json:"m.in_reply_to,omitempty"`
}

// InReplyTo is the rich-reply fallback inside a thread relation.
type InReplyTo struct {
	EventID ref.EventID `json:"event_id"`
}

// RelTypeReplace is the Matrix relation type for message edits.
const RelTypeReplace = "m.replace"

// RelTypeThread is the Matrix relation type for threaded messages.
const RelTypeThread = "m.thread"

// FormatHTML is the only formatted-body format Matrix defines.
const FormatHTML = "org.matrix.custom.html"

// MsgTypeNotice is the msgtype for bot-generated messages.
const MsgTypeNotice = "m.notice"

// MsgTypeText is the msgtype for ordinary user messages.
const MsgTypeText = "m.text"

// NewHTMLNotice creates an m.notice message with an HTML formatted
// body and a plain-text fallback.
func NewHTMLNotice(body, formattedBody string) MessageContent {
	return MessageContent{
		MsgType:       MsgTypeNotice,
		Body:          body,
		Format:        FormatHTML,
		FormattedBody: formattedBody,
	}
}

// NewReplacement wraps content as an m.replace edit of the given
// event. Per the Matrix spec the top-level body is a fallback ("* "
// prefixed by convention) while m.new_content carries the real
// replacement.
func NewReplacement(target ref.EventID, content MessageContent) MessageContent {
	return MessageContent{
		MsgType:       content.MsgType,
		Body:          "* " + content.Body,
		Format:        content.Format,
		FormattedBody: content.FormattedBody,
		RelatesTo: &RelatesTo{
			RelType: RelTypeReplace,
			EventID: target,
		},
		NewContent: &NewContent{
			MsgType:       content.MsgType,
			Body:          content.Body,
			Format:        content.Format,
			FormattedBody: content.FormattedBody,
		},
	}
}

// NewThreadReply wraps content as a message within the thread rooted
// at root. latest is the event being responded to; it is attached as a
// reply fallback so clients without thread support still render the
// message in context.
func NewThreadReply(root, latest ref.EventID, content MessageContent) MessageContent {
	content.RelatesTo = &RelatesTo{
		RelType:       RelTypeThread,
		EventID:       root,
		IsFallingBack: true,
		InReplyTo:     &InReplyTo{EventID: latest},
	}
	return content
}

// Event represents a Matrix event from the server.
type Event struct {
	EventID        ref.EventID    `json:"event_id"`
	Type           ref.EventType  `json:"type"`
	Sender         ref.UserID     `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	RoomID         ref.RoomID     `json:"room_id,omitempty"`
	StateKey       *string        `json:"state_key,omitempty"`
	// Redacts is set on m.room.redaction events in room versions
	// before 11; newer versions carry the target in content.
	Redacts ref.EventID `json:"redacts,omitempty"`
}

// ParsedMessage is the text content of an m.room.message event after
// edit resolution.
type ParsedMessage struct {
	// MsgType is the effective msgtype (from m.new_content for edits).
	MsgType string

	// Body is the effective plain-text body.
	Body string

	// FormattedBody is the effective HTML body. Empty unless the
	// format is org.matrix.custom.html.
	FormattedBody string

	// Replaces is the event ID this message edits, zero for an
	// original message.
	Replaces ref.EventID

	// ThreadRoot is the root event of the thread this message belongs
	// to, zero for messages in the main timeline. Edits never carry a
	// thread relation; the root lives on the original message.
	ThreadRoot ref.EventID
}

// ParseMessage extracts the text content from an m.room.message event,
// resolving m.replace edits to their m.new_content. Returns false for
// non-message events and messages without a string body (malformed
// content is "zero URLs extracted", never an error).
func (e *Event) ParseMessage() (ParsedMessage, bool) {
	if e.Type != ref.EventTypeMessage {
		return ParsedMessage{}, false
	}

	content := e.Content
	var parsed ParsedMessage

	if relates, ok := content["m.relates_to"].(map[string]any); ok {
		switch relType, _ := relates["rel_type"].(string); relType {
		case RelTypeReplace:
			rawID, _ := relates["event_id"].(string)
			replaced, err := ref.ParseEventID(rawID)
			if err != nil {
				return ParsedMessage{}, false
			}
			parsed.Replaces = replaced
			if newContent, ok := content["m.new_content"].(map[string]any); ok {
				content = newContent
			}
		case RelTypeThread:
			// A malformed root degrades to a main-timeline message
			// rather than dropping the preview entirely.
			rawID, _ := relates["event_id"].(string)
			if root, err := ref.ParseEventID(rawID); err == nil {
				parsed.ThreadRoot = root
			}
		}
	}

	body, ok := content["body"].(string)
	if !ok {
		return ParsedMessage{}, false
	}
	parsed.Body = body
	parsed.MsgType, _ = content["msgtype"].(string)
	if format, _ := content["format"].(string); format == FormatHTML {
		parsed.FormattedBody, _ = content["formatted_body"].(string)
	}
	return parsed, true
}

// RedactsTarget returns the event targeted by an m.room.redaction
// event, checking both the event-level field (room versions < 11) and
// the content field (room versions >= 11). Zero if absent or
// malformed.
func (e *Event) RedactsTarget() ref.EventID {
	if !e.Redacts.IsZero() {
		return e.Redacts
	}
	if raw, ok := e.Content["redacts"].(string); ok {
		if target, err := ref.ParseEventID(raw); err == nil {
			return target
		}
	}
	return ref.EventID{}
}

// Membership returns the membership value of an m.room.member event
// ("join", "leave", "ban", ...), or "" for other events.
func (e *Event) Membership() string {
	if e.Type != ref.EventTypeMember {
		return ""
	}
	membership, _ := e.Content["membership"].(string)
	return membership
}

// SyncOptions controls the behavior of the /sync endpoint.
type SyncOptions struct {
	Since      string // next_batch token from previous sync; empty for initial sync
	Timeout    int    // long-poll timeout in milliseconds; 0 for immediate return
	SetTimeout bool   // if true, send the timeout parameter (needed to distinguish "not set" from "0")
	Filter     string // filter ID or inline JSON filter
}

// SyncResponse is the top-level response from /sync.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection contains per-room sync data grouped by membership
// state. Map keys are room IDs; encoding/json uses ref.RoomID's
// TextUnmarshaler for automatic validation at deserialization.
type RoomsSection struct {
	Join   map[ref.RoomID]JoinedRoom  `json:"join,omitempty"`
	Invite map[ref.RoomID]InvitedRoom `json:"invite,omitempty"`
	Leave  map[ref.RoomID]LeftRoom    `json:"leave,omitempty"`
}

// JoinedRoom contains sync data for a room the user has joined.
type JoinedRoom struct {
	Summary  RoomSummary     `json:"summary"`
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// RoomSummary carries the membership counts from the sync response.
type RoomSummary struct {
	JoinedMemberCount  int `json:"m.joined_member_count,omitempty"`
	InvitedMemberCount int `json:"m.invited_member_count,omitempty"`
}

// InvitedRoom contains sync data for a room the user was invited to.
// The bot never acts on these (anti-abuse: joining is an operator
// decision, not something room members can trigger).
type InvitedRoom struct {
	InviteState StateSection `json:"invite_state"`
}

// LeftRoom contains sync data for a room the user has left.
type LeftRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// TimelineSection contains timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection contains state events from a sync response.
type StateSection struct {
	Events []Event `json:"events"`
}

// SendEventResponse is returned by SendMessage and RedactEvent.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// JoinedRoomsResponse is returned by JoinedRooms.
type JoinedRoomsResponse struct {
	JoinedRooms []ref.RoomID `json:"joined_rooms"`
}

// ServerVersionsResponse is returned by Client.ServerVersions.
type ServerVersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}
