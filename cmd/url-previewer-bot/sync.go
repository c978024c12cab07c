// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Enovale/matrix-url-previewer-bot/bot"
	"github.com/Enovale/matrix-url-previewer-bot/lib/clock"
	"github.com/Enovale/matrix-url-previewer-bot/lib/ref"
	"github.com/Enovale/matrix-url-previewer-bot/messaging"
)

// syncFilter restricts /sync to the event types the bot reacts to.
// Member events are included only so the homeserver keeps the room
// summaries current; the bot itself reads the summary, not the events.
var syncFilter = messaging.BuildSyncFilter([]ref.EventType{
	ref.EventTypeMessage,
	ref.EventTypeRedaction,
	ref.EventTypeMember,
})

const (
	// longPollTimeout is how long the homeserver holds an idle /sync.
	longPollTimeout = 30000 * time.Millisecond
	// maxSyncBackoff caps the retry delay after /sync failures.
	maxSyncBackoff = 30 * time.Second
)

// initialSync obtains the since token that marks "now". The response's
// timeline content is intentionally discarded.
func initialSync(ctx context.Context, session *messaging.Session) (string, int, error) {
	response, err := session.Sync(ctx, messaging.SyncOptions{Filter: syncFilter})
	if err != nil {
		return "", 0, fmt.Errorf("initial sync: %w", err)
	}
	return response.NextBatch, len(response.Rooms.Join), nil
}

// runSyncLoop long-polls /sync until ctx is cancelled, dispatching
// each response to the processor. Transient errors retry with
// exponential backoff; pooled connections are dropped first, since a
// dead keepalive connection is the most common cause.
func runSyncLoop(ctx context.Context, session *messaging.Session, sinceToken string, processor *bot.Processor, clk clock.Clock, logger *slog.Logger) {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		response, err := session.Sync(ctx, messaging.SyncOptions{
			Since:      sinceToken,
			Timeout:    int(longPollTimeout / time.Millisecond),
			SetTimeout: true,
			Filter:     syncFilter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("sync failed, retrying", "error", err, "backoff", backoff)
			session.CloseIdleConnections()
			select {
			case <-ctx.Done():
				return
			case <-clk.After(backoff):
			}
			backoff *= 2
			if backoff > maxSyncBackoff {
				backoff = maxSyncBackoff
			}
			continue
		}

		backoff = time.Second
		sinceToken = response.NextBatch

		// Invited rooms are deliberately ignored: joining is an
		// operator decision, not something room members can trigger.
		for roomID, room := range response.Rooms.Join {
			processor.HandleJoinedRoom(ctx, roomID, room)
		}
		for roomID := range response.Rooms.Leave {
			processor.HandleLeftRoom(ctx, roomID)
		}
	}
}
