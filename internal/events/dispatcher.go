// ABOUTME: Transport event variants and the dispatcher that routes them to components.
// ABOUTME: Side effects are best-effort; a failed send or publish never stops dispatch.

package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/forgebot/gateway/internal/msgcache"
	"github.com/forgebot/gateway/internal/platform"
	"github.com/forgebot/gateway/internal/shards"
	"github.com/forgebot/gateway/internal/state"
	"github.com/forgebot/gateway/internal/stats"
)

// DefaultRecentJoinWindow bounds how old a join event may be and still be
// announced. Transports replay every group's join event on reconnect;
// anything older than this is a replay, not a new group.
const DefaultRecentJoinWindow = 30 * time.Second

// Event is a transport event. The variant set is closed; Dispatch switches
// over all of them.
type Event interface {
	eventName() string
}

// ShardReady reports that one shard has connected and seen its groups.
type ShardReady struct {
	ShardIndex int
	GroupCount uint64
	BotID      uint64
	AvatarURL  string
}

// GroupJoined reports the bot entering a group. JoinedAt is the platform's
// join timestamp; a zero value means the transport did not supply one.
type GroupJoined struct {
	GroupID         uint64
	Name            string
	SystemChannelID uint64
	JoinedAt        time.Time
}

// GroupLeft reports the bot leaving a group.
type GroupLeft struct {
	GroupID uint64
	Name    string
}

// MessageCreated carries a newly posted message.
type MessageCreated struct {
	Message platform.Message
}

// MessageEdited carries the post-edit state of a message.
type MessageEdited struct {
	Message platform.Message
}

// MessageDeleted reports a message removal. Only ids survive deletion.
type MessageDeleted struct {
	MessageID uint64
	ChannelID uint64
}

// ReactionAdded carries a reaction placed on a message.
type ReactionAdded struct {
	Reaction platform.ReactionEvent
}

func (ShardReady) eventName() string     { return "shard_ready" }
func (GroupJoined) eventName() string    { return "group_joined" }
func (GroupLeft) eventName() string      { return "group_left" }
func (MessageCreated) eventName() string { return "message_created" }
func (MessageEdited) eventName() string  { return "message_edited" }
func (MessageDeleted) eventName() string { return "message_deleted" }
func (ReactionAdded) eventName() string  { return "reaction_added" }

// SessionHandler receives the message and reaction events that drive the
// confirmation workflow. *confirm.Coordinator satisfies it.
type SessionHandler interface {
	HandleMessage(ctx context.Context, msg platform.Message)
	HandleEdit(ctx context.Context, msg platform.Message)
	OnReaction(evt platform.ReactionEvent)
}

// Dispatcher routes transport events to the gateway's components. It holds
// no event state of its own; all state lives in the collaborators.
type Dispatcher struct {
	aggregator *shards.Aggregator
	tracker    *stats.Tracker
	publisher  stats.Publisher
	sessions   SessionHandler
	cache      *msgcache.Cache
	messenger  platform.Messenger
	renderer   platform.Renderer
	shared     *state.Store
	window     time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// Config collects the Dispatcher's collaborators. Publisher may be nil
// when no external stats endpoint is configured.
type Config struct {
	Aggregator *shards.Aggregator
	Tracker    *stats.Tracker
	Publisher  stats.Publisher
	Sessions   SessionHandler
	Cache      *msgcache.Cache
	Messenger  platform.Messenger
	Renderer   platform.Renderer
	Shared     *state.Store
	JoinWindow time.Duration
	Now        func() time.Time
	Logger     *slog.Logger
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	window := cfg.JoinWindow
	if window == 0 {
		window = DefaultRecentJoinWindow
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		aggregator: cfg.Aggregator,
		tracker:    cfg.Tracker,
		publisher:  cfg.Publisher,
		sessions:   cfg.Sessions,
		cache:      cfg.Cache,
		messenger:  cfg.Messenger,
		renderer:   cfg.Renderer,
		shared:     cfg.Shared,
		window:     window,
		now:        now,
		logger:     logger.With("component", "dispatcher"),
	}
}

// Dispatch routes one event. It may block for the duration of a
// confirmation session, so callers run each event on its own goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) {
	switch e := evt.(type) {
	case ShardReady:
		d.shardReady(ctx, e)
	case GroupJoined:
		d.groupJoined(ctx, e)
	case GroupLeft:
		d.groupLeft(ctx, e)
	case MessageCreated:
		d.sessions.HandleMessage(ctx, e.Message)
	case MessageEdited:
		d.sessions.HandleEdit(ctx, e.Message)
	case MessageDeleted:
		d.messageDeleted(ctx, e)
	case ReactionAdded:
		d.sessions.OnReaction(e.Reaction)
	default:
		d.logger.Warn("unhandled event type", "event", evt.eventName())
	}
}

func (d *Dispatcher) shardReady(ctx context.Context, e ShardReady) {
	snap, err := d.aggregator.Report(e.ShardIndex, e.GroupCount)
	if errors.Is(err, shards.ErrDuplicateReport) {
		d.logger.Info("ignoring replayed ready report", "shard", e.ShardIndex)
		return
	}

	if e.BotID != 0 {
		d.shared.SetUint64(state.KeyBotID, e.BotID)
	}
	if e.AvatarURL != "" {
		d.shared.Set(state.KeyBotAvatar, e.AvatarURL)
	}

	d.logger.Info("shard ready",
		"shard", e.ShardIndex,
		"groups", e.GroupCount,
		"reported", snap.ReportsReceived,
		"expected", snap.ExpectedTotal,
	)

	if snap.JustBecameReady {
		d.allReady(ctx, snap)
	}
}

// allReady runs once, on the report that completed the barrier.
func (d *Dispatcher) allReady(ctx context.Context, snap shards.Snapshot) {
	d.tracker.SetBootCount(snap.CumulativeGroups)
	d.logger.Info("all shards ready",
		"shards", snap.ExpectedTotal,
		"groups", snap.CumulativeGroups,
	)

	d.PublishCounts(ctx)
	if err := d.messenger.UpdatePresence(ctx, snap.CumulativeGroups); err != nil {
		d.logger.Debug("presence update failed", "error", err)
	}
}

func (d *Dispatcher) groupJoined(ctx context.Context, e GroupJoined) {
	// Reconnects replay a join for every group the bot is already in.
	if !e.JoinedAt.IsZero() && d.now().Sub(e.JoinedAt) > d.window {
		return
	}

	if channelID, ok := d.shared.GetUint64(state.KeyJoinLog); ok {
		if _, err := d.messenger.Send(ctx, channelID, d.renderer.JoinNotice(e.Name, e.GroupID)); err != nil {
			d.logger.Debug("join notice failed", "group_id", e.GroupID, "error", err)
		}
	}

	if e.SystemChannelID != 0 {
		if _, err := d.messenger.Send(ctx, e.SystemChannelID, d.renderer.Welcome()); err != nil {
			d.logger.Debug("welcome message failed", "group_id", e.GroupID, "error", err)
		}
	}

	count := d.tracker.GroupJoined()
	d.logger.Info("joined group", "group_id", e.GroupID, "name", e.Name, "total", count)
	d.refreshCounts(ctx, count)
}

func (d *Dispatcher) groupLeft(ctx context.Context, e GroupLeft) {
	if channelID, ok := d.shared.GetUint64(state.KeyJoinLog); ok {
		if _, err := d.messenger.Send(ctx, channelID, d.renderer.LeaveNotice(e.GroupID)); err != nil {
			d.logger.Debug("leave notice failed", "group_id", e.GroupID, "error", err)
		}
	}

	count := d.tracker.GroupLeft()
	d.logger.Info("left group", "group_id", e.GroupID, "total", count)
	d.refreshCounts(ctx, count)
}

func (d *Dispatcher) messageDeleted(ctx context.Context, e MessageDeleted) {
	if snap, ok := d.cache.Get(e.MessageID); ok {
		if err := d.messenger.Delete(ctx, snap.ChannelID, snap.ReplyID); err != nil {
			d.logger.Debug("failed to delete tracked reply",
				"message_id", e.MessageID,
				"reply_id", snap.ReplyID,
				"error", err,
			)
		}
	}
	d.cache.Remove(e.MessageID)
}

// refreshCounts republishes counts and presence after a membership change.
// Skipped while the count is zero, which only happens before the barrier.
func (d *Dispatcher) refreshCounts(ctx context.Context, count uint64) {
	if count == 0 {
		return
	}
	d.PublishCounts(ctx)
	if err := d.messenger.UpdatePresence(ctx, count); err != nil {
		d.logger.Debug("presence update failed", "error", err)
	}
}

// PublishCounts posts the live group and shard counts to the external
// stats endpoint, when one is configured. Failures are logged only.
func (d *Dispatcher) PublishCounts(ctx context.Context) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(ctx, d.tracker.ServerCount(), d.aggregator.ShardCount()); err != nil {
		d.logger.Warn("stats publication failed", "error", err)
	}
}
