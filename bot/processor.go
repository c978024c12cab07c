// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Enovale/matrix-url-previewer-bot/lib/ref"
	"github.com/Enovale/matrix-url-previewer-bot/messaging"
	"github.com/Enovale/matrix-url-previewer-bot/preview"
)

// Messenger is the outbound Matrix surface the processor publishes
// through. *messaging.Session satisfies it; tests use a fake.
type Messenger interface {
	SendMessage(ctx context.Context, roomID ref.RoomID, content messaging.MessageContent) (ref.EventID, error)
	RedactEvent(ctx context.Context, roomID ref.RoomID, target ref.EventID, reason string) (ref.EventID, error)
	LeaveRoom(ctx context.Context, roomID ref.RoomID) error
	ForgetRoom(ctx context.Context, roomID ref.RoomID) error
}

// PreviewSource yields preview metadata for a normalized URL.
// *preview.Cache satisfies it.
type PreviewSource interface {
	GetOrFetch(ctx context.Context, normalizedURL string) (preview.Metadata, error)
}

// Processor consumes timeline events and drives the preview pipeline.
// Ingestion is synchronous and cheap; the fetching and publishing for
// each message version runs in its own goroutine so a slow site never
// stalls the sync loop.
type Processor struct {
	self      ref.UserID
	messenger Messenger
	previews  PreviewSource
	resolver  *Resolver
	store     *ReplyStore
	logger    *slog.Logger

	pipelines sync.WaitGroup
}

// NewProcessor assembles a processor. self is the bot's own user ID,
// used to skip its own events.
func NewProcessor(self ref.UserID, messenger Messenger, previews PreviewSource, resolver *Resolver, store *ReplyStore, logger *slog.Logger) *Processor {
	return &Processor{
		self:      self,
		messenger: messenger,
		previews:  previews,
		resolver:  resolver,
		store:     store,
		logger:    logger,
	}
}

// Wait blocks until all in-flight preview pipelines have finished.
// Called during shutdown after the sync loop has stopped.
func (p *Processor) Wait() {
	p.pipelines.Wait()
}

// HandleJoinedRoom processes one room's slice of a sync response:
// first the membership summary, then the timeline events in arrival
// order.
func (p *Processor) HandleJoinedRoom(ctx context.Context, roomID ref.RoomID, room messaging.JoinedRoom) {
	// A summary count of 1 means the bot is alone; previewing for an
	// empty room is pointless, so leave.
	if room.Summary.JoinedMemberCount == 1 {
		p.logger.Info("everyone left, leaving room", "room", roomID)
		if err := p.messenger.LeaveRoom(ctx, roomID); err != nil {
			p.logger.Warn("failed to leave room", "room", roomID, "error", err)
		}
		p.HandleLeftRoom(ctx, roomID)
		return
	}

	for _, event := range room.Timeline.Events {
		p.handleEvent(ctx, roomID, event)
	}
}

// HandleLeftRoom discards all per-room state after the bot has left or
// been removed, and forgets the room server-side so history stops
// accumulating.
func (p *Processor) HandleLeftRoom(ctx context.Context, roomID ref.RoomID) {
	p.resolver.ForgetRoom(roomID)
	if err := p.store.DeleteRoom(ctx, roomID); err != nil {
		p.logger.Warn("failed to clear replies for room", "room", roomID, "error", err)
	}
	if err := p.messenger.ForgetRoom(ctx, roomID); err != nil {
		p.logger.Warn("failed to forget room", "room", roomID, "error", err)
	}
}

func (p *Processor) handleEvent(ctx context.Context, roomID ref.RoomID, event messaging.Event) {
	if event.Sender == p.self {
		return
	}

	switch event.Type {
	case ref.EventTypeMessage:
		p.handleMessage(ctx, roomID, event)
	case ref.EventTypeRedaction:
		p.handleRedaction(ctx, roomID, event)
	default:
		// Membership changes are covered by the room summary; state
		// and unknown event types carry nothing to preview.
	}
}

func (p *Processor) handleMessage(ctx context.Context, roomID ref.RoomID, event messaging.Event) {
	parsed, ok := event.ParseMessage()
	if !ok || parsed.MsgType != messaging.MsgTypeText {
		return
	}

	chain := event.EventID
	isEdit := false
	if !parsed.Replaces.IsZero() {
		chain = parsed.Replaces
		isEdit = true
	}

	urls := ExtractURLs(parsed.Body, parsed.FormattedBody)
	if !isEdit && len(urls) == 0 {
		// Nothing to preview and nothing earlier to take down.
		return
	}

	seq, ok := p.resolver.Observe(ctx, roomID, chain, isEdit, event.OriginServerTS)
	if !ok {
		return
	}
	p.logger.Debug("observed message version",
		"room", roomID, "chain", chain, "seq", seq, "urls", len(urls))

	p.pipelines.Add(1)
	go func() {
		defer p.pipelines.Done()
		p.runPipeline(ctx, roomID, chain, parsed.ThreadRoot, seq, urls)
	}()
}

// runPipeline fetches previews for every URL of one message version
// and publishes the outcome. Failed URLs are dropped without comment;
// a version whose URLs all fail publishes nothing (or takes an
// existing reply down, for an edit).
func (p *Processor) runPipeline(ctx context.Context, roomID ref.RoomID, chain, threadRoot ref.EventID, seq int, urls []string) {
	results := make([]*URLPreview, len(urls))
	var wg sync.WaitGroup
	for i, target := range urls {
		i, target := i, target
		wg.Add(1)
		go func() {
			defer wg.Done()
			metadata, err := p.previews.GetOrFetch(ctx, target)
			if err != nil {
				p.logger.Debug("no preview for url", "url", target, "error", err)
				return
			}
			results[i] = &URLPreview{URL: target, Metadata: metadata}
		}()
	}
	wg.Wait()

	previews := make([]URLPreview, 0, len(urls))
	for _, result := range results {
		if result != nil {
			previews = append(previews, *result)
		}
	}

	err := p.resolver.Complete(roomID, chain, seq, len(previews) > 0, func(decision Decision) (ref.EventID, error) {
		return p.publish(ctx, roomID, chain, threadRoot, decision, previews)
	})
	if err != nil {
		p.logger.Warn("failed to publish preview",
			"room", roomID, "chain", chain, "seq", seq, "error", err)
	}
}

// publish executes one resolver decision. Delivery is best effort; a
// failed send is logged by the caller and not retried.
func (p *Processor) publish(ctx context.Context, roomID ref.RoomID, chain, threadRoot ref.EventID, decision Decision, previews []URLPreview) (ref.EventID, error) {
	backref := MatrixToEventURI(roomID.String(), chain.String())

	switch decision.Action {
	case ActionSend:
		body, formatted := FormatReply(backref, previews)
		content := messaging.NewHTMLNotice(body, formatted)
		// A preview of a threaded message belongs inside the thread.
		// Edits keep targeting the reply wherever it already lives.
		if !threadRoot.IsZero() {
			content = messaging.NewThreadReply(threadRoot, chain, content)
		}
		replyID, err := p.messenger.SendMessage(ctx, roomID, content)
		if err != nil {
			return ref.EventID{}, err
		}
		if err := p.store.Put(ctx, roomID, chain, replyID); err != nil {
			p.logger.Warn("failed to record reply", "room", roomID, "chain", chain, "error", err)
		}
		p.logger.Info("posted preview", "room", roomID, "chain", chain, "reply", replyID)
		return replyID, nil

	case ActionEdit:
		body, formatted := FormatReply(backref, previews)
		edit := messaging.NewReplacement(decision.ReplyID, messaging.NewHTMLNotice(body, formatted))
		if _, err := p.messenger.SendMessage(ctx, roomID, edit); err != nil {
			return ref.EventID{}, err
		}
		p.logger.Info("updated preview", "room", roomID, "chain", chain, "reply", decision.ReplyID)
		// Future edits keep targeting the original reply event.
		return decision.ReplyID, nil

	case ActionRedact:
		if _, err := p.messenger.RedactEvent(ctx, roomID, decision.ReplyID, "URLs removed from message"); err != nil {
			return ref.EventID{}, err
		}
		if err := p.store.Delete(ctx, roomID, chain); err != nil {
			p.logger.Warn("failed to delete reply record", "room", roomID, "chain", chain, "error", err)
		}
		p.logger.Info("took down preview", "room", roomID, "chain", chain, "reply", decision.ReplyID)
		return ref.EventID{}, nil

	default:
		return ref.EventID{}, nil
	}
}

// handleRedaction takes the bot's reply down when the message it
// previewed is redacted.
func (p *Processor) handleRedaction(ctx context.Context, roomID ref.RoomID, event messaging.Event) {
	target := event.RedactsTarget()
	if target.IsZero() {
		return
	}

	// Drop the chain first so a pipeline still in flight for the
	// redacted message publishes nothing.
	p.resolver.Forget(roomID, target)

	replyID, found, err := p.store.Get(ctx, roomID, target)
	if err != nil {
		p.logger.Warn("reply lookup failed during redaction",
			"room", roomID, "event", target, "error", err)
		return
	}
	if !found {
		return
	}

	if _, err := p.messenger.RedactEvent(ctx, roomID, replyID, "previewed message was removed"); err != nil {
		p.logger.Warn("failed to redact reply", "room", roomID, "reply", replyID, "error", err)
	}
	if err := p.store.Delete(ctx, roomID, target); err != nil {
		p.logger.Warn("failed to delete reply record", "room", roomID, "event", target, "error", err)
	}
	p.logger.Info("removed preview after redaction", "room", roomID, "event", target, "reply", replyID)
}
