// ABOUTME: Tests for event routing: readiness barrier effects, join/leave
// ABOUTME: announcements, delete reconciliation, and session delegation.

package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgebot/gateway/internal/msgcache"
	"github.com/forgebot/gateway/internal/platform"
	"github.com/forgebot/gateway/internal/shards"
	"github.com/forgebot/gateway/internal/state"
	"github.com/forgebot/gateway/internal/stats"
)

type sendCall struct {
	channelID uint64
	payload   platform.Payload
}

type deleteCall struct {
	channelID uint64
	messageID uint64
}

type fakeMessenger struct {
	mu       sync.Mutex
	sends    []sendCall
	deletes  []deleteCall
	presence []uint64
	sendErr  error
}

func (f *fakeMessenger) Send(_ context.Context, channelID uint64, payload platform.Payload) (platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return platform.Message{}, f.sendErr
	}
	f.sends = append(f.sends, sendCall{channelID: channelID, payload: payload})
	return platform.Message{ID: 1, ChannelID: channelID}, nil
}

func (f *fakeMessenger) Delete(_ context.Context, channelID, messageID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, deleteCall{channelID: channelID, messageID: messageID})
	return nil
}

func (f *fakeMessenger) Edit(_ context.Context, _, _ uint64, _ platform.Payload) error { return nil }

func (f *fakeMessenger) React(_ context.Context, _, _ uint64, _ platform.Reaction) error { return nil }

func (f *fakeMessenger) ClearReactions(_ context.Context, _, _ uint64) error { return nil }

func (f *fakeMessenger) UpdatePresence(_ context.Context, groupCount uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presence = append(f.presence, groupCount)
	return nil
}

type fakeRenderer struct{}

func (fakeRenderer) JoinNotice(name string, _ uint64) platform.Payload {
	return platform.Payload{Title: "joined", Description: name}
}

func (fakeRenderer) LeaveNotice(_ uint64) platform.Payload {
	return platform.Payload{Title: "left"}
}

func (fakeRenderer) Welcome() platform.Payload {
	return platform.Payload{Title: "welcome"}
}

func (fakeRenderer) Failure(_ uint64, reason string) platform.Payload {
	return platform.Payload{Title: "failure", Description: reason}
}

func (fakeRenderer) Result(output string) platform.Payload {
	return platform.Payload{Title: "result", Description: output}
}

type publishCall struct {
	groups uint64
	shards int
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, groupCount uint64, shardCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, publishCall{groups: groupCount, shards: shardCount})
	return f.err
}

type fakeSessions struct {
	mu        sync.Mutex
	messages  []platform.Message
	edits     []platform.Message
	reactions []platform.ReactionEvent
}

func (f *fakeSessions) HandleMessage(_ context.Context, msg platform.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
}

func (f *fakeSessions) HandleEdit(_ context.Context, msg platform.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, msg)
}

func (f *fakeSessions) OnReaction(evt platform.ReactionEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, evt)
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	messenger  *fakeMessenger
	publisher  *fakePublisher
	sessions   *fakeSessions
	tracker    *stats.Tracker
	cache      *msgcache.Cache
	shared     *state.Store
}

func newFixture(t *testing.T, expectedShards int) *dispatcherFixture {
	t.Helper()
	m := &fakeMessenger{}
	p := &fakePublisher{}
	s := &fakeSessions{}
	tracker := stats.NewTracker(nil, false, nil)
	cache := msgcache.New(16)
	shared := state.New()

	d := New(Config{
		Aggregator: shards.New(expectedShards),
		Tracker:    tracker,
		Publisher:  p,
		Sessions:   s,
		Cache:      cache,
		Messenger:  m,
		Renderer:   fakeRenderer{},
		Shared:     shared,
	})
	return &dispatcherFixture{
		dispatcher: d,
		messenger:  m,
		publisher:  p,
		sessions:   s,
		tracker:    tracker,
		cache:      cache,
		shared:     shared,
	}
}

func TestDispatcher_ShardReadyBarrier(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	f.dispatcher.Dispatch(ctx, ShardReady{ShardIndex: 0, GroupCount: 10, BotID: 42, AvatarURL: "https://cdn/avatar.png"})
	f.dispatcher.Dispatch(ctx, ShardReady{ShardIndex: 1, GroupCount: 5})

	assert.Empty(t, f.publisher.calls, "no publication before the barrier")
	assert.Empty(t, f.messenger.presence)

	f.dispatcher.Dispatch(ctx, ShardReady{ShardIndex: 2, GroupCount: 7})

	require.Len(t, f.publisher.calls, 1, "completing report publishes once")
	assert.Equal(t, uint64(22), f.publisher.calls[0].groups)
	assert.Equal(t, 3, f.publisher.calls[0].shards)
	assert.Equal(t, []uint64{22}, f.messenger.presence)
	assert.Equal(t, uint64(22), f.tracker.ServerCount())

	botID, ok := f.shared.GetUint64(state.KeyBotID)
	require.True(t, ok)
	assert.Equal(t, uint64(42), botID)
	avatar, _ := f.shared.Get(state.KeyBotAvatar)
	assert.Equal(t, "https://cdn/avatar.png", avatar)
}

func TestDispatcher_DuplicateShardReadyIgnored(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	f.dispatcher.Dispatch(ctx, ShardReady{ShardIndex: 0, GroupCount: 10})
	f.dispatcher.Dispatch(ctx, ShardReady{ShardIndex: 0, GroupCount: 10})

	assert.Empty(t, f.publisher.calls, "replayed report must not complete the barrier")

	f.dispatcher.Dispatch(ctx, ShardReady{ShardIndex: 1, GroupCount: 2})

	require.Len(t, f.publisher.calls, 1)
	assert.Equal(t, uint64(12), f.publisher.calls[0].groups)
}

func TestDispatcher_GroupJoinedAnnouncesRecentJoin(t *testing.T) {
	f := newFixture(t, 1)
	f.shared.SetUint64(state.KeyJoinLog, 700)
	ctx := context.Background()

	f.dispatcher.Dispatch(ctx, GroupJoined{
		GroupID:         31,
		Name:            "gophers",
		SystemChannelID: 910,
		JoinedAt:        time.Now(),
	})

	require.Len(t, f.messenger.sends, 2)
	assert.Equal(t, uint64(700), f.messenger.sends[0].channelID)
	assert.Equal(t, "joined", f.messenger.sends[0].payload.Title)
	assert.Equal(t, "gophers", f.messenger.sends[0].payload.Description)
	assert.Equal(t, uint64(910), f.messenger.sends[1].channelID)
	assert.Equal(t, "welcome", f.messenger.sends[1].payload.Title)

	assert.Equal(t, uint64(1), f.tracker.ServerCount())
	require.Len(t, f.publisher.calls, 1)
	assert.Equal(t, []uint64{1}, f.messenger.presence)
}

func TestDispatcher_GroupJoinedSkipsReplayedJoin(t *testing.T) {
	f := newFixture(t, 1)
	f.shared.SetUint64(state.KeyJoinLog, 700)
	ctx := context.Background()

	f.dispatcher.Dispatch(ctx, GroupJoined{
		GroupID:  31,
		Name:     "gophers",
		JoinedAt: time.Now().Add(-5 * time.Minute),
	})

	assert.Empty(t, f.messenger.sends, "replayed joins stay silent")
	assert.Equal(t, uint64(0), f.tracker.ServerCount(), "replayed joins do not count")
	assert.Empty(t, f.publisher.calls)
}

func TestDispatcher_GroupJoinedWithoutJoinLogOrSystemChannel(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	f.dispatcher.Dispatch(ctx, GroupJoined{GroupID: 8, Name: "quiet", JoinedAt: time.Now()})

	assert.Empty(t, f.messenger.sends)
	assert.Equal(t, uint64(1), f.tracker.ServerCount(), "counting is independent of announcements")
}

func TestDispatcher_GroupLeft(t *testing.T) {
	f := newFixture(t, 1)
	f.shared.SetUint64(state.KeyJoinLog, 700)
	f.tracker.SetBootCount(3)
	ctx := context.Background()

	f.dispatcher.Dispatch(ctx, GroupLeft{GroupID: 31, Name: "gophers"})

	require.Len(t, f.messenger.sends, 1)
	assert.Equal(t, "left", f.messenger.sends[0].payload.Title)
	assert.Equal(t, uint64(2), f.tracker.ServerCount())
	require.Len(t, f.publisher.calls, 1)
	assert.Equal(t, uint64(2), f.publisher.calls[0].groups)
}

func TestDispatcher_GroupLeftToZeroSkipsPublication(t *testing.T) {
	f := newFixture(t, 1)
	f.tracker.SetBootCount(1)
	ctx := context.Background()

	f.dispatcher.Dispatch(ctx, GroupLeft{GroupID: 1})

	assert.Empty(t, f.publisher.calls)
	assert.Empty(t, f.messenger.presence)
}

func TestDispatcher_MessageDeletedRemovesTrackedReply(t *testing.T) {
	f := newFixture(t, 1)
	f.cache.Put(55, msgcache.Snapshot{ReplyID: 9001, ChannelID: 500})
	ctx := context.Background()

	f.dispatcher.Dispatch(ctx, MessageDeleted{MessageID: 55, ChannelID: 500})

	require.Len(t, f.messenger.deletes, 1)
	assert.Equal(t, deleteCall{channelID: 500, messageID: 9001}, f.messenger.deletes[0])
	_, ok := f.cache.Get(55)
	assert.False(t, ok)
}

func TestDispatcher_MessageDeletedUntrackedIsNoop(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	f.dispatcher.Dispatch(ctx, MessageDeleted{MessageID: 55, ChannelID: 500})

	assert.Empty(t, f.messenger.deletes)
}

func TestDispatcher_SessionDelegation(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	msg := platform.Message{ID: 5, ChannelID: 10, AuthorID: 3, Content: "hello"}
	f.dispatcher.Dispatch(ctx, MessageCreated{Message: msg})
	f.dispatcher.Dispatch(ctx, MessageEdited{Message: msg})
	f.dispatcher.Dispatch(ctx, ReactionAdded{Reaction: platform.ReactionEvent{MessageID: 5, UserID: 3}})

	require.Len(t, f.sessions.messages, 1)
	assert.Equal(t, msg, f.sessions.messages[0])
	require.Len(t, f.sessions.edits, 1)
	require.Len(t, f.sessions.reactions, 1)
	assert.Equal(t, uint64(5), f.sessions.reactions[0].MessageID)
}

func TestDispatcher_PublisherErrorsAreSwallowed(t *testing.T) {
	f := newFixture(t, 1)
	f.publisher.err = errors.New("endpoint down")
	ctx := context.Background()

	f.dispatcher.Dispatch(ctx, ShardReady{ShardIndex: 0, GroupCount: 4})

	assert.Len(t, f.publisher.calls, 1, "failure is logged, dispatch continues")
	assert.Equal(t, []uint64{4}, f.messenger.presence, "presence still updates after a failed publish")
}
