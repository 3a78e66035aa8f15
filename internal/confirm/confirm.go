// ABOUTME: Reaction-gated confirm/cancel protocol around the external compile request.
// ABOUTME: One independent session per triggering message; silent expiry on timeout.

package confirm

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/forgebot/gateway/internal/msgcache"
	"github.com/forgebot/gateway/internal/platform"
	"github.com/forgebot/gateway/internal/state"
)

// DefaultWindow is the reaction collection window when none is configured.
const DefaultWindow = 30 * time.Second

// State is a confirmation session's lifecycle position.
type State int

const (
	StateArmed State = iota
	StateConfirmed
	StateExecuting
	StateCompleted
	StateFailed
	StateExpired
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateConfirmed:
		return "confirmed"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Request is the synthesized invocation forwarded to the external service.
type Request struct {
	Language  string
	Code      string
	AuthorID  uint64
	MessageID uint64
	ChannelID uint64
}

// Result is the rendered outcome of a successful execution.
type Result struct {
	Output string
}

// Executor performs the external compile request. It may be slow; the
// call runs to completion or failure once started.
type Executor interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// Resolver maps an attachment's declared language to an execution target.
type Resolver interface {
	Resolve(language string) (target string, ok bool)
}

// session carries one confirmation window. Sessions never share mutable
// state; the reactions channel is the only way in.
type session struct {
	msg       platform.Message
	marker    platform.Reaction
	reactions chan platform.ReactionEvent
	state     State
}

// Coordinator owns all live confirmation sessions and drives each through
// the armed → confirmed → executing workflow.
type Coordinator struct {
	messenger platform.Messenger
	renderer  platform.Renderer
	executor  Executor
	resolver  Resolver
	cache     *msgcache.Cache
	shared    *state.Store
	window    time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[uint64]*session // triggering message ID -> session
}

// Config collects the Coordinator's collaborators.
type Config struct {
	Messenger platform.Messenger
	Renderer  platform.Renderer
	Executor  Executor
	Resolver  Resolver
	Cache     *msgcache.Cache
	Shared    *state.Store
	Window    time.Duration
	Logger    *slog.Logger
}

// New creates a Coordinator. A zero Window falls back to DefaultWindow.
func New(cfg Config) *Coordinator {
	window := cfg.Window
	if window == 0 {
		window = DefaultWindow
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		messenger: cfg.Messenger,
		renderer:  cfg.Renderer,
		executor:  cfg.Executor,
		resolver:  cfg.Resolver,
		cache:     cfg.Cache,
		shared:    cfg.Shared,
		window:    window,
		logger:    logger.With("component", "confirm"),
		sessions:  make(map[uint64]*session),
	}
}

// HandleMessage inspects an inbound message and, when it carries a
// recognized attachment with a resolvable target, runs a confirmation
// session to completion. Messages without a qualifying attachment return
// immediately. The caller dispatches each event on its own goroutine, so
// blocking here is the collection window itself.
func (c *Coordinator) HandleMessage(ctx context.Context, msg platform.Message) {
	if msg.Attachment.Language == "" {
		return
	}
	if _, ok := c.resolver.Resolve(msg.Attachment.Language); !ok {
		return
	}

	s := &session{
		msg:       msg,
		marker:    c.markerReaction(),
		reactions: make(chan platform.ReactionEvent, 16),
		state:     StateArmed,
	}

	c.mu.Lock()
	if _, exists := c.sessions[msg.ID]; exists {
		// One armed session per triggering message
		c.mu.Unlock()
		return
	}
	c.sessions[msg.ID] = s
	c.mu.Unlock()

	defer c.removeSession(msg.ID)
	c.run(ctx, s)
}

// HandleEdit regenerates the tracked reply for an edited trigger message.
// The original confirmation already happened, so the edited content runs
// without a second reaction gate; the previous reply is updated in place.
// Messages with no tracked reply are ignored.
func (c *Coordinator) HandleEdit(ctx context.Context, msg platform.Message) {
	snap, ok := c.cache.Get(msg.ID)
	if !ok {
		return
	}

	var payload platform.Payload
	_, resolvable := c.resolver.Resolve(msg.Attachment.Language)
	if msg.Attachment.Language == "" || !resolvable {
		payload = c.renderer.Failure(msg.AuthorID, "edited message no longer carries a runnable attachment")
	} else {
		result, err := c.executor.Execute(ctx, Request{
			Language:  msg.Attachment.Language,
			Code:      msg.Attachment.Content,
			AuthorID:  msg.AuthorID,
			MessageID: msg.ID,
			ChannelID: msg.ChannelID,
		})
		if err != nil {
			c.logger.Warn("re-execution after edit failed",
				"message_id", msg.ID,
				"error", err,
			)
			payload = c.renderer.Failure(msg.AuthorID, err.Error())
		} else {
			payload = c.renderer.Result(result.Output)
			payload.ReplyTo = msg.ID
		}
	}

	if err := c.messenger.Edit(ctx, snap.ChannelID, snap.ReplyID, payload); err != nil {
		c.logger.Warn("failed to update reply after edit",
			"message_id", msg.ID,
			"reply_id", snap.ReplyID,
			"error", err,
		)
		return
	}

	c.cache.Mutate(msg.ID, func(s *msgcache.Snapshot) {
		s.Content = payload.Description
	})
}

// OnReaction feeds a reaction event into the session collecting on its
// message, if any. Non-blocking; events for full or absent sessions drop.
func (c *Coordinator) OnReaction(evt platform.ReactionEvent) {
	c.mu.Lock()
	s, ok := c.sessions[evt.MessageID]
	c.mu.Unlock()
	if !ok {
		return
	}

	select {
	case s.reactions <- evt:
	default:
	}
}

// ActiveSessions returns the number of sessions currently collecting.
func (c *Coordinator) ActiveSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// run drives one session through the state machine.
func (c *Coordinator) run(ctx context.Context, s *session) {
	msg := s.msg

	// Arm: post the marker reaction. A permission denial aborts the
	// session before it ever collects.
	if err := c.messenger.React(ctx, msg.ChannelID, msg.ID, s.marker); err != nil {
		c.logger.Debug("marker reaction rejected, aborting session",
			"message_id", msg.ID,
			"error", err,
		)
		return
	}

	confirmed := c.collect(ctx, s)

	// Strip our marker (and anything else) regardless of outcome.
	// Best-effort: a failure here never blocks the workflow.
	_ = c.messenger.ClearReactions(ctx, msg.ChannelID, msg.ID)

	if !confirmed {
		s.state = StateExpired
		c.logger.Debug("confirmation window expired", "message_id", msg.ID)
		return
	}

	s.state = StateExecuting
	c.execute(ctx, s)
}

// collect waits for the requester's matching reaction until the window
// elapses. Non-matching reactions and other users neither confirm nor
// reset the deadline.
func (c *Coordinator) collect(ctx context.Context, s *session) bool {
	timer := time.NewTimer(c.window)
	defer timer.Stop()

	for {
		select {
		case evt := <-s.reactions:
			if evt.UserID == s.msg.AuthorID && evt.Reaction.Matches(s.marker) {
				s.state = StateConfirmed
				return true
			}
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// execute forwards the attachment to the external service and delivers
// the outcome as a reply to the triggering message.
func (c *Coordinator) execute(ctx context.Context, s *session) {
	msg := s.msg

	result, err := c.executor.Execute(ctx, Request{
		Language:  msg.Attachment.Language,
		Code:      msg.Attachment.Content,
		AuthorID:  msg.AuthorID,
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
	})
	if err != nil {
		s.state = StateFailed
		c.logger.Warn("execution failed",
			"message_id", msg.ID,
			"language", msg.Attachment.Language,
			"error", err,
		)
		c.reply(ctx, msg, c.renderer.Failure(msg.AuthorID, err.Error()))
		return
	}

	s.state = StateCompleted
	payload := c.renderer.Result(result.Output)
	payload.ReplyTo = msg.ID
	c.reply(ctx, msg, payload)
}

// reply sends a payload to the triggering channel and registers the sent
// message in the history cache keyed by the triggering message id, so
// later edits or deletes of the trigger reconcile against it.
func (c *Coordinator) reply(ctx context.Context, msg platform.Message, payload platform.Payload) {
	sent, err := c.messenger.Send(ctx, msg.ChannelID, payload)
	if err != nil {
		c.logger.Warn("failed to send session reply",
			"message_id", msg.ID,
			"error", err,
		)
		return
	}

	c.cache.Put(msg.ID, msgcache.Snapshot{
		ReplyID:   sent.ID,
		ChannelID: sent.ChannelID,
		AuthorID:  sent.AuthorID,
		Content:   sent.Content,
		SentAt:    sent.SentAt,
	})
}

// markerReaction resolves the configured marker emoji, falling back to
// the unicode default when none is configured.
func (c *Coordinator) markerReaction() platform.Reaction {
	if c.shared != nil {
		if id, ok := c.shared.GetUint64(state.KeyMarkerEmojiID); ok {
			name, _ := c.shared.Get(state.KeyMarkerEmojiName)
			return platform.Reaction{ID: id, Name: name}
		}
	}
	return platform.Reaction{Name: "💻"}
}

// removeSession drops a finished session from the map.
func (c *Coordinator) removeSession(messageID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, messageID)
}
