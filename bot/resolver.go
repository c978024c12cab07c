// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Enovale/matrix-url-previewer-bot/lib/ref"
)

// Action is the publish decision for a completed preview pipeline.
type Action int

const (
	// ActionNothing means no reply exists and there is nothing to post.
	ActionNothing Action = iota
	// ActionSend posts a new reply.
	ActionSend
	// ActionEdit replaces the existing reply's content.
	ActionEdit
	// ActionRedact takes the existing reply down because the edited
	// message no longer contains previewable URLs.
	ActionRedact
)

func (a Action) String() string {
	switch a {
	case ActionNothing:
		return "nothing"
	case ActionSend:
		return "send"
	case ActionEdit:
		return "edit"
	case ActionRedact:
		return "redact"
	default:
		return "unknown"
	}
}

// Decision carries an Action plus the existing reply it targets.
// ReplyID is set for ActionEdit and ActionRedact.
type Decision struct {
	Action  Action
	ReplyID ref.EventID
}

// ReplyLookup is the persistence hook the resolver uses to recognize
// edits of messages it replied to before a restart. *ReplyStore
// satisfies it.
type ReplyLookup interface {
	Get(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) (ref.EventID, bool, error)
}

type chainKey struct {
	room  ref.RoomID
	chain ref.EventID
}

// chainState tracks one edit chain. seq counts logical versions of the
// message; completedSeq is the newest seq a publish decision was made
// for. published and replyID describe the bot's visible reply, if any.
//
// publishMu serializes the decide-act-record sequence of Complete so
// that a reply send still in flight cannot race a newer version's
// completion into a second send.
type chainState struct {
	publishMu sync.Mutex

	seq          int
	completedSeq int
	originTS     int64
	published    bool
	replyID      ref.EventID
}

// Resolver arbitrates between message edits and the asynchronous
// preview pipelines they spawn. Each chain of edits is keyed by the
// original event; every observed version gets a sequence number, and
// only the pipeline carrying the current sequence number may publish.
// Stale pipelines complete into silence.
type Resolver struct {
	lookup ReplyLookup
	logger *slog.Logger

	mu     sync.Mutex
	chains map[chainKey]*chainState
}

// NewResolver creates a resolver. lookup may be nil, in which case
// edits of unknown chains are always ignored.
func NewResolver(lookup ReplyLookup, logger *slog.Logger) *Resolver {
	return &Resolver{
		lookup: lookup,
		logger: logger,
		chains: make(map[chainKey]*chainState),
	}
}

// Observe registers a message version and assigns it a sequence
// number. ok=false means this version must not be processed at all:
// it is a duplicate original, an out-of-order edit older than what the
// chain already shows, or an edit of a message the bot never saw and
// never replied to.
func (r *Resolver) Observe(ctx context.Context, roomID ref.RoomID, chain ref.EventID, isEdit bool, originTS int64) (int, bool) {
	key := chainKey{room: roomID, chain: chain}

	r.mu.Lock()
	state := r.chains[key]

	if !isEdit {
		if state != nil {
			// Duplicate delivery of an original we already track.
			r.mu.Unlock()
			return 0, false
		}
		state = &chainState{seq: 1, originTS: originTS}
		r.chains[key] = state
		r.mu.Unlock()
		return 1, true
	}

	if state == nil {
		r.mu.Unlock()
		adopted := r.adopt(ctx, key, originTS)
		if adopted == nil {
			return 0, false
		}
		r.mu.Lock()
		if existing := r.chains[key]; existing != nil {
			// Lost the adoption race to a concurrent edit.
			state = existing
		} else {
			r.chains[key] = adopted
			state = adopted
		}
	}

	if originTS <= state.originTS {
		// Out-of-order arrival; the chain already shows a newer
		// version, so this edit is stale on delivery.
		r.mu.Unlock()
		return 0, false
	}
	state.seq++
	state.originTS = originTS
	seq := state.seq
	r.mu.Unlock()
	return seq, true
}

// adopt reconstructs a chain for an edit of a pre-restart message,
// provided the reply store remembers replying to it. Edits of
// messages with no recorded reply stay ignored: the bot cannot know
// what the room looked like while it was away.
func (r *Resolver) adopt(ctx context.Context, key chainKey, originTS int64) *chainState {
	if r.lookup == nil {
		return nil
	}
	replyID, found, err := r.lookup.Get(ctx, key.room, key.chain)
	if err != nil {
		r.logger.Warn("reply lookup failed; ignoring edit",
			"room", key.room, "event", key.chain, "error", err)
		return nil
	}
	if !found {
		return nil
	}
	// Seq 1 stands in for every version published before the restart.
	return &chainState{seq: 1, originTS: originTS - 1, published: true, replyID: replyID}
}

// Complete reports that the preview pipeline for (chain, seq) has
// finished. If seq is still current and not yet acted on, act is
// invoked exactly once with the publish decision; its returned event
// ID becomes the chain's reply for subsequent versions to edit or
// redact. Superseded and duplicate completions return without calling
// act.
//
// act runs with the chain's publish lock held but not the resolver
// lock, so completions for the same chain serialize while other
// chains proceed.
func (r *Resolver) Complete(roomID ref.RoomID, chain ref.EventID, seq int, hasContent bool, act func(Decision) (ref.EventID, error)) error {
	key := chainKey{room: roomID, chain: chain}

	r.mu.Lock()
	state := r.chains[key]
	r.mu.Unlock()
	if state == nil {
		// Chain forgotten (original redacted) while the pipeline ran.
		return nil
	}

	state.publishMu.Lock()
	defer state.publishMu.Unlock()

	r.mu.Lock()
	if state.seq != seq || state.completedSeq >= seq {
		superseded := state.seq != seq
		r.mu.Unlock()
		if superseded {
			// Raced by a newer edit. The work warmed the cache; the
			// result is simply not published.
			r.logger.Debug("preview superseded",
				"room", roomID, "chain", chain, "seq", seq)
		}
		return nil
	}
	state.completedSeq = seq

	var decision Decision
	switch {
	case state.published && hasContent:
		decision = Decision{Action: ActionEdit, ReplyID: state.replyID}
	case state.published && !hasContent:
		decision = Decision{Action: ActionRedact, ReplyID: state.replyID}
	case hasContent:
		decision = Decision{Action: ActionSend}
	default:
		decision = Decision{Action: ActionNothing}
	}
	r.mu.Unlock()

	if decision.Action == ActionNothing {
		return nil
	}

	replyID, err := act(decision)
	if err != nil {
		return fmt.Errorf("bot: publish (%s) for chain %s failed: %w", decision.Action, chain, err)
	}

	r.mu.Lock()
	switch decision.Action {
	case ActionSend, ActionEdit:
		state.published = true
		state.replyID = replyID
	case ActionRedact:
		state.published = false
		state.replyID = ref.EventID{}
	}
	r.mu.Unlock()
	return nil
}

// Forget drops a chain, typically because its original message was
// redacted. In-flight pipelines for the chain complete into silence.
func (r *Resolver) Forget(roomID ref.RoomID, chain ref.EventID) {
	key := chainKey{room: roomID, chain: chain}
	r.mu.Lock()
	delete(r.chains, key)
	r.mu.Unlock()
}

// ForgetRoom drops every chain in a room, for when the bot leaves.
func (r *Resolver) ForgetRoom(roomID ref.RoomID) {
	r.mu.Lock()
	for key := range r.chains {
		if key.room == roomID {
			delete(r.chains, key)
		}
	}
	r.mu.Unlock()
}
