// ABOUTME: Ordered pre/post interceptor chain wrapping every dispatched command.
// ABOUTME: Pre hooks gate dispatch (metrics, rate, blocklist); post hooks report outcomes.

package command

import (
	"context"
	"log/slog"

	"github.com/forgebot/gateway/internal/blocklist"
	"github.com/forgebot/gateway/internal/msgcache"
	"github.com/forgebot/gateway/internal/platform"
	"github.com/forgebot/gateway/internal/stats"
)

// blockedNotice is sent once when a blocked actor or group invokes a command.
const blockedNotice = "This server or your user is blocked from executing commands. " +
	"This may have happened due to abuse, spam, or other reasons. " +
	"If you feel that this has been done in error, request an unban in the support server."

// rateNotice is sent when an actor exceeds the request rate.
const rateNotice = "You are sending requests too fast!"

// Invocation describes one inbound command. GroupID is 0 when the command
// has no group context.
type Invocation struct {
	ActorID   uint64
	GroupID   uint64
	ChannelID uint64
	MessageID uint64
	Name      string
}

// PreHook runs before a command body. Returning false short-circuits the
// chain and the dispatch.
type PreHook func(ctx context.Context, inv *Invocation) bool

// PostHook runs after a command body with its outcome (nil on success).
type PostHook func(ctx context.Context, inv *Invocation, outcome error)

// Chain invokes pre hooks in order before dispatch and post hooks in
// order after. Hooks are fixed at construction.
type Chain struct {
	pre  []PreHook
	post []PostHook
}

// NewChain builds a chain from the given hooks.
func NewChain(pre []PreHook, post []PostHook) *Chain {
	return &Chain{pre: pre, post: post}
}

// Before runs the pre hooks. The first hook returning false stops the
// chain; the command body must not run.
func (c *Chain) Before(ctx context.Context, inv *Invocation) bool {
	for _, hook := range c.pre {
		if !hook(ctx, inv) {
			return false
		}
	}
	return true
}

// After runs the post hooks with the command outcome.
func (c *Chain) After(ctx context.Context, inv *Invocation, outcome error) {
	for _, hook := range c.post {
		hook(ctx, inv, outcome)
	}
}

// Deps collects the collaborators of the default hook set.
type Deps struct {
	Tracker   *stats.Tracker
	Guard     *blocklist.Guard
	Gate      *RateGate
	Messenger platform.Messenger
	Renderer  platform.Renderer
	Cache     *msgcache.Cache
	Logger    *slog.Logger
}

// NewDefault assembles the standard chain: request metric, rate gate, and
// blocklist gate before dispatch; failure reply and command metric after.
func NewDefault(d Deps) *Chain {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "command-chain")

	pre := []PreHook{
		RequestMetricHook(d.Tracker),
	}
	if d.Gate != nil {
		pre = append(pre, RateLimitHook(d.Gate, d.Messenger, d.Renderer, logger))
	}
	pre = append(pre, BlocklistHook(d.Guard, d.Messenger, d.Renderer, logger))

	post := []PostHook{
		FailureReplyHook(d.Messenger, d.Renderer, d.Cache, logger),
		CommandMetricHook(d.Tracker),
	}

	return NewChain(pre, post)
}

// RequestMetricHook unconditionally records a request-count metric when
// tracking is enabled. It never blocks dispatch.
func RequestMetricHook(tracker *stats.Tracker) PreHook {
	return func(ctx context.Context, _ *Invocation) bool {
		tracker.PostRequest(ctx)
		return true
	}
}

// RateLimitHook denies dispatch for actors exceeding the request rate and
// tells them so.
func RateLimitHook(gate *RateGate, messenger platform.Messenger, renderer platform.Renderer, logger *slog.Logger) PreHook {
	return func(ctx context.Context, inv *Invocation) bool {
		if gate.Allow(inv.ActorID) {
			return true
		}
		if _, err := messenger.Send(ctx, inv.ChannelID, renderer.Failure(inv.ActorID, rateNotice)); err != nil {
			logger.Debug("failed to send rate limit notice", "error", err)
		}
		logger.Warn("rate limited actor", "actor_id", inv.ActorID)
		return false
	}
}

// BlocklistHook checks both the actor and the originating group against
// the blocklist. A hit sends exactly one denial reply, logs at warning
// level, and short-circuits dispatch.
func BlocklistHook(guard *blocklist.Guard, messenger platform.Messenger, renderer platform.Renderer, logger *slog.Logger) PreHook {
	return func(ctx context.Context, inv *Invocation) bool {
		actorBlocked := guard.Contains(inv.ActorID)
		groupBlocked := guard.Contains(inv.GroupID)
		if !actorBlocked && !groupBlocked {
			return true
		}

		if _, err := messenger.Send(ctx, inv.ChannelID, renderer.Failure(inv.ActorID, blockedNotice)); err == nil {
			if actorBlocked {
				logger.Warn("blocked user", "actor_id", inv.ActorID)
			} else {
				logger.Warn("blocked group", "group_id", inv.GroupID)
			}
		}
		return false
	}
}

// FailureReplyHook renders and sends a failure reply for errored commands
// and registers the sent reply in the history cache keyed by the invoking
// message id. Only the bot reply is tracked, not the user command.
func FailureReplyHook(messenger platform.Messenger, renderer platform.Renderer, cache *msgcache.Cache, logger *slog.Logger) PostHook {
	return func(ctx context.Context, inv *Invocation, outcome error) {
		if outcome == nil {
			return
		}

		sent, err := messenger.Send(ctx, inv.ChannelID, renderer.Failure(inv.ActorID, outcome.Error()))
		if err != nil {
			logger.Debug("failed to send failure reply", "error", err)
			return
		}
		cache.Put(inv.MessageID, msgcache.Snapshot{
			ReplyID:   sent.ID,
			ChannelID: sent.ChannelID,
			AuthorID:  sent.AuthorID,
			Content:   sent.Content,
			SentAt:    sent.SentAt,
		})
	}
}

// CommandMetricHook emits the command-executed metric tagged with command
// name and group id, regardless of success or failure.
func CommandMetricHook(tracker *stats.Tracker) PostHook {
	return func(ctx context.Context, inv *Invocation, outcome error) {
		tracker.CommandExecuted(ctx, inv.Name, inv.GroupID, outcome == nil)
	}
}
