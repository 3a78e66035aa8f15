// ABOUTME: Tests for the command middleware chain gating and outcome reporting.
// ABOUTME: Covers blocklist denial, rate limiting, failure replies, and metric emission.

package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgebot/gateway/internal/blocklist"
	"github.com/forgebot/gateway/internal/msgcache"
	"github.com/forgebot/gateway/internal/platform"
	"github.com/forgebot/gateway/internal/stats"
)

// fakeMessenger records outbound sends.
type fakeMessenger struct {
	mu       sync.Mutex
	sent     []platform.Payload
	sentMsgs []platform.Message
	nextID   uint64
}

func (f *fakeMessenger) Send(_ context.Context, channelID uint64, payload platform.Payload) (platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	msg := platform.Message{
		ID:        8000 + f.nextID,
		ChannelID: channelID,
		AuthorID:  1,
		Content:   payload.Description,
		SentAt:    time.Now(),
	}
	f.sent = append(f.sent, payload)
	f.sentMsgs = append(f.sentMsgs, msg)
	return msg, nil
}

func (f *fakeMessenger) Delete(_ context.Context, _, _ uint64) error { return nil }

func (f *fakeMessenger) Edit(_ context.Context, _, _ uint64, _ platform.Payload) error { return nil }
func (f *fakeMessenger) React(_ context.Context, _, _ uint64, _ platform.Reaction) error {
	return nil
}
func (f *fakeMessenger) ClearReactions(_ context.Context, _, _ uint64) error { return nil }
func (f *fakeMessenger) UpdatePresence(_ context.Context, _ uint64) error    { return nil }

type fakeRenderer struct{}

func (fakeRenderer) JoinNotice(name string, _ uint64) platform.Payload {
	return platform.Payload{Title: "joined", Description: name}
}
func (fakeRenderer) LeaveNotice(_ uint64) platform.Payload { return platform.Payload{Title: "left"} }
func (fakeRenderer) Welcome() platform.Payload             { return platform.Payload{Title: "welcome"} }
func (fakeRenderer) Failure(_ uint64, reason string) platform.Payload {
	return platform.Payload{Title: "failure", Description: reason}
}
func (fakeRenderer) Result(output string) platform.Payload {
	return platform.Payload{Title: "result", Description: output}
}

// fakeMetricsStore counts metric writes.
type fakeMetricsStore struct {
	mu       sync.Mutex
	requests int
	commands []string
}

func (f *fakeMetricsStore) RecordRequest(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return nil
}

func (f *fakeMetricsStore) RecordCommand(_ context.Context, command string, _ uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	return nil
}

func testDeps(t *testing.T) (Deps, *fakeMessenger, *fakeMetricsStore, *blocklist.Guard, *msgcache.Cache) {
	t.Helper()
	m := &fakeMessenger{}
	ms := &fakeMetricsStore{}
	guard := blocklist.New(nil)
	cache := msgcache.New(32)
	deps := Deps{
		Tracker:   stats.NewTracker(ms, true, nil),
		Guard:     guard,
		Messenger: m,
		Renderer:  fakeRenderer{},
		Cache:     cache,
	}
	return deps, m, ms, guard, cache
}

func inv(actor, group uint64) *Invocation {
	return &Invocation{
		ActorID:   actor,
		GroupID:   group,
		ChannelID: 500,
		MessageID: 777,
		Name:      "compile",
	}
}

func TestChain_Before_AllowsCleanActor(t *testing.T) {
	deps, m, ms, _, _ := testDeps(t)
	chain := NewDefault(deps)

	proceed := chain.Before(context.Background(), inv(10, 20))

	assert.True(t, proceed)
	assert.Empty(t, m.sent)
	assert.Equal(t, 1, ms.requests, "request metric recorded even for allowed commands")
}

func TestChain_Before_BlockedActor(t *testing.T) {
	deps, m, ms, guard, _ := testDeps(t)
	require.NoError(t, guard.Add(context.Background(), 10))
	chain := NewDefault(deps)

	proceed := chain.Before(context.Background(), inv(10, 20))

	assert.False(t, proceed, "blocked actor must not dispatch")
	require.Len(t, m.sent, 1, "exactly one denial reply")
	assert.Equal(t, "failure", m.sent[0].Title)
	assert.Contains(t, m.sent[0].Description, "blocked")
	assert.Equal(t, 1, ms.requests, "request metric is recorded before the gate")
}

func TestChain_Before_BlockedGroup(t *testing.T) {
	deps, m, _, guard, _ := testDeps(t)
	require.NoError(t, guard.Add(context.Background(), 20))
	chain := NewDefault(deps)

	proceed := chain.Before(context.Background(), inv(10, 20))

	assert.False(t, proceed)
	assert.Len(t, m.sent, 1)
}

func TestChain_Before_NoGroupContext(t *testing.T) {
	deps, _, _, guard, _ := testDeps(t)
	require.NoError(t, guard.Add(context.Background(), 30))
	chain := NewDefault(deps)

	// Group id 0 is the no-context sentinel and never matches
	proceed := chain.Before(context.Background(), inv(10, 0))
	assert.True(t, proceed)
}

func TestChain_Before_RateLimited(t *testing.T) {
	deps, m, _, _, _ := testDeps(t)
	deps.Gate = NewRateGate(1, 1) // one request, then dry
	chain := NewDefault(deps)

	assert.True(t, chain.Before(context.Background(), inv(10, 20)))
	assert.False(t, chain.Before(context.Background(), inv(10, 20)))

	require.Len(t, m.sent, 1)
	assert.Contains(t, m.sent[0].Description, "too fast")

	// Other actors have their own bucket
	assert.True(t, chain.Before(context.Background(), inv(11, 20)))
}

func TestChain_After_Success(t *testing.T) {
	deps, m, ms, _, cache := testDeps(t)
	chain := NewDefault(deps)

	chain.After(context.Background(), inv(10, 20), nil)

	assert.Empty(t, m.sent, "no reply on success")
	assert.Equal(t, []string{"compile"}, ms.commands, "command metric always emitted")
	assert.Equal(t, 0, cache.Len())
}

func TestChain_After_FailureReplyRegistered(t *testing.T) {
	deps, m, ms, _, cache := testDeps(t)
	chain := NewDefault(deps)

	chain.After(context.Background(), inv(10, 20), errors.New("bad flags"))

	require.Len(t, m.sent, 1)
	assert.Contains(t, m.sent[0].Description, "bad flags")

	// The reply is tracked under the invoking message id
	snap, ok := cache.Get(777)
	require.True(t, ok)
	assert.Equal(t, m.sentMsgs[0].ID, snap.ReplyID)

	assert.Equal(t, []string{"compile"}, ms.commands)
}

func TestChain_CustomHookOrder(t *testing.T) {
	var order []string
	chain := NewChain(
		[]PreHook{
			func(_ context.Context, _ *Invocation) bool { order = append(order, "a"); return true },
			func(_ context.Context, _ *Invocation) bool { order = append(order, "b"); return false },
			func(_ context.Context, _ *Invocation) bool { order = append(order, "c"); return true },
		},
		nil,
	)

	proceed := chain.Before(context.Background(), inv(1, 0))

	assert.False(t, proceed)
	assert.Equal(t, []string{"a", "b"}, order, "chain stops at the first denying hook")
}

func TestRateGate_Refills(t *testing.T) {
	gate := NewRateGate(100, 1)

	assert.True(t, gate.Allow(1))
	assert.False(t, gate.Allow(1))

	time.Sleep(20 * time.Millisecond) // 100/s refills within 10ms
	assert.True(t, gate.Allow(1))
}
