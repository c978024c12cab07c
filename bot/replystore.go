// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/Enovale/matrix-url-previewer-bot/lib/ref"
	"github.com/Enovale/matrix-url-previewer-bot/lib/sqlitepool"
)

const replySchema = `
CREATE TABLE IF NOT EXISTS replies (
	room_id  TEXT NOT NULL,
	event_id TEXT NOT NULL,
	reply_id TEXT NOT NULL,
	UNIQUE (room_id, event_id)
);
`

// ReplyStore persists which reply the bot posted for which message, so
// edits and redactions arriving after a restart still find their
// target.
type ReplyStore struct {
	pool *sqlitepool.Pool
}

// NewReplyStore wraps a pool whose connections carry the reply schema.
// Pass ReplySchema as the pool's OnConnect hook.
func NewReplyStore(pool *sqlitepool.Pool) *ReplyStore {
	return &ReplyStore{pool: pool}
}

// ReplySchema creates the replies table. It is idempotent and intended
// as a sqlitepool OnConnect hook.
func ReplySchema(conn *sqlite.Conn) error {
	if err := sqlitex.ExecuteScript(conn, replySchema, nil); err != nil {
		return fmt.Errorf("bot: creating reply schema: %w", err)
	}
	return nil
}

// Get returns the bot's reply to the given message, if one is
// recorded.
func (s *ReplyStore) Get(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) (ref.EventID, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return ref.EventID{}, false, err
	}
	defer s.pool.Put(conn)

	var replyID ref.EventID
	found := false
	err = sqlitex.Execute(conn, `SELECT reply_id FROM replies WHERE room_id = ? AND event_id = ?`, &sqlitex.ExecOptions{
		Args: []any{roomID.String(), eventID.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			parsed, err := ref.ParseEventID(stmt.ColumnText(0))
			if err != nil {
				return fmt.Errorf("bot: corrupt reply_id row: %w", err)
			}
			replyID = parsed
			found = true
			return nil
		},
	})
	if err != nil {
		return ref.EventID{}, false, fmt.Errorf("bot: reading reply for %s: %w", eventID, err)
	}
	return replyID, found, nil
}

// Put records (or replaces) the bot's reply to a message.
func (s *ReplyStore) Put(ctx context.Context, roomID ref.RoomID, eventID, replyID ref.EventID) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO replies (room_id, event_id, reply_id) VALUES (?, ?, ?)
		ON CONFLICT (room_id, event_id) DO UPDATE SET reply_id = excluded.reply_id`,
		&sqlitex.ExecOptions{
			Args: []any{roomID.String(), eventID.String(), replyID.String()},
		})
	if err != nil {
		return fmt.Errorf("bot: recording reply for %s: %w", eventID, err)
	}
	return nil
}

// Delete removes the recorded reply for a message. Deleting a message
// with no recorded reply is a no-op.
func (s *ReplyStore) Delete(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM replies WHERE room_id = ? AND event_id = ?`, &sqlitex.ExecOptions{
		Args: []any{roomID.String(), eventID.String()},
	})
	if err != nil {
		return fmt.Errorf("bot: deleting reply for %s: %w", eventID, err)
	}
	return nil
}

// DeleteRoom removes every recorded reply in a room, for when the bot
// leaves it.
func (s *ReplyStore) DeleteRoom(ctx context.Context, roomID ref.RoomID) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM replies WHERE room_id = ?`, &sqlitex.ExecOptions{
		Args: []any{roomID.String()},
	})
	if err != nil {
		return fmt.Errorf("bot: deleting replies for room %s: %w", roomID, err)
	}
	return nil
}
