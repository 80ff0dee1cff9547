package bridge

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/lumeo/client/pkg/querycache"
	"github.com/lumeo/client/pkg/realtime"
	"github.com/lumeo/client/pkg/structs"
)

// fakeClock schedules timers that only fire when the test advances time.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and fires every timer that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.at.After(c.now) {
			t.stopped = true
			due = append(due, t.fn)
		}
	}
	c.mu.Unlock()
	for _, fn := range due {
		fn()
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = false
	t.at = t.clock.now.Add(d)
	return was
}

// fakeChannel is an in-memory EventSource the tests feed directly.
type fakeChannel struct {
	topic  string
	events chan realtime.Event

	mu         sync.Mutex
	broadcasts []fakeBroadcast
	tracked    []realtime.Member
	closed     bool
}

type fakeBroadcast struct {
	event   string
	payload any
}

func newFakeChannel(topic string) *fakeChannel {
	return &fakeChannel{topic: topic, events: make(chan realtime.Event, 64)}
}

func (f *fakeChannel) Topic() string                 { return f.topic }
func (f *fakeChannel) Events() <-chan realtime.Event { return f.events }
func (f *fakeChannel) emit(ev realtime.Event)        { f.events <- ev }

func (f *fakeChannel) Broadcast(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, fakeBroadcast{event: event, payload: payload})
	return nil
}

func (f *fakeChannel) Track(m realtime.Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked = append(f.tracked, m)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *fakeChannel) broadcastLog() []fakeBroadcast {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeBroadcast, len(f.broadcasts))
	copy(out, f.broadcasts)
	return out
}

func newTestBridge() (*Bridge, *querycache.Cache, *fakeClock) {
	cache := querycache.New(querycache.Options{})
	clock := newFakeClock()
	return New(Config{Cache: cache, Clock: clock}), cache, clock
}

func typingPayload(t *testing.T, sig structs.Typing) msgpack.RawMessage {
	t.Helper()
	raw, err := msgpack.Marshal(sig)
	require.NoError(t, err)
	return raw
}

func TestPresenceRebuildAndDiffs(t *testing.T) {
	b, _, _ := newTestBridge()
	ch := newFakeChannel("presence:lobby")

	sub, err := b.Presence(ch, realtime.Member{UserId: "u1", Username: "ada"})
	require.NoError(t, err)
	require.Len(t, ch.tracked, 1, "joining a presence room tracks the local member")
	assert.NotZero(t, ch.tracked[0].OnlineAt)

	ch.emit(realtime.PresenceStateEvent{Members: []realtime.Member{
		{UserId: "u1", Username: "ada"},
		{UserId: "u2", Username: "bob"},
	}})
	ch.emit(realtime.PresenceJoinEvent{Member: realtime.Member{UserId: "u3", Username: "cleo"}})
	ch.emit(realtime.PresenceLeaveEvent{Member: realtime.Member{UserId: "u2", Username: "bob"}})
	require.NoError(t, sub.Close())

	online := sub.Online()
	require.Len(t, online, 2)
	assert.Equal(t, "ada", online[0].Username, "sorted by username")
	assert.Equal(t, "cleo", online[1].Username)
	assert.True(t, sub.IsOnline("u3"))
	assert.False(t, sub.IsOnline("u2"))
}

func TestPresenceFullStateReplacesWholesale(t *testing.T) {
	b, _, _ := newTestBridge()
	ch := newFakeChannel("presence:lobby")

	sub, err := b.Presence(ch, realtime.Member{UserId: "u1", Username: "ada"})
	require.NoError(t, err)

	ch.emit(realtime.PresenceJoinEvent{Member: realtime.Member{UserId: "ghost", Username: "ghost"}})
	// The authoritative sync does not contain the ghost: a missed leave is
	// healed here.
	ch.emit(realtime.PresenceStateEvent{Members: []realtime.Member{
		{UserId: "u1", Username: "ada"},
	}})
	require.NoError(t, sub.Close())

	assert.False(t, sub.IsOnline("ghost"))
	assert.True(t, sub.IsOnline("u1"))
}

func TestConversationFoldsCounterpartMessages(t *testing.T) {
	b, cache, _ := newTestBridge()
	ch := newFakeChannel("room:u1:u2")
	convKey := querycache.MakeKey("messages", "u1", "u2")
	cache.Set(convKey, querycache.Paged[structs.Message]{}.AppendPage([]structs.Message{{Id: "m1"}}))

	sub := b.Conversation(ch, convKey, "u1", "ada", "u2")

	ch.emit(realtime.RowEvent{Kind: realtime.RowInserted, Table: "messages", Row: map[string]any{
		"id": "m2", "sender_id": "u2", "receiver_id": "u1", "text": "hey",
	}})
	// Duplicate delivery is folded once.
	ch.emit(realtime.RowEvent{Kind: realtime.RowInserted, Table: "messages", Row: map[string]any{
		"id": "m2", "sender_id": "u2", "receiver_id": "u1", "text": "hey",
	}})
	require.NoError(t, sub.Close())

	snap, _ := cache.Get(convKey)
	got := snap.Value.(querycache.Paged[structs.Message]).Flatten()
	require.Len(t, got, 2)
	assert.Equal(t, "m2", got[0].Id, "incoming message lands at the head")
}

func TestConversationRejectsForeignMessages(t *testing.T) {
	b, cache, _ := newTestBridge()
	ch := newFakeChannel("room:u1:u2")
	convKey := querycache.MakeKey("messages", "u1", "u2")
	cache.Set(convKey, querycache.Paged[structs.Message]{})

	sub := b.Conversation(ch, convKey, "u1", "ada", "u2")

	// Own message: arrives optimistically through the mutation path instead.
	ch.emit(realtime.RowEvent{Kind: realtime.RowInserted, Table: "messages", Row: map[string]any{
		"id": "own", "sender_id": "u1", "receiver_id": "u2",
	}})
	// Counterpart talking to someone else: must not leak into this key.
	ch.emit(realtime.RowEvent{Kind: realtime.RowInserted, Table: "messages", Row: map[string]any{
		"id": "leak", "sender_id": "u2", "receiver_id": "u3",
	}})
	// Update events never fold in.
	ch.emit(realtime.RowEvent{Kind: realtime.RowUpdated, Table: "messages", Row: map[string]any{
		"id": "upd", "sender_id": "u2", "receiver_id": "u1",
	}})
	require.NoError(t, sub.Close())

	snap, _ := cache.Get(convKey)
	assert.Zero(t, snap.Value.(querycache.Paged[structs.Message]).Len())
}

func TestConversationDropsMalformedPayloads(t *testing.T) {
	b, cache, _ := newTestBridge()
	ch := newFakeChannel("room:u1:u2")
	convKey := querycache.MakeKey("messages", "u1", "u2")
	cache.Set(convKey, querycache.Paged[structs.Message]{})

	sub := b.Conversation(ch, convKey, "u1", "ada", "u2")

	// Message row without an id.
	ch.emit(realtime.RowEvent{Kind: realtime.RowInserted, Table: "messages", Row: map[string]any{
		"sender_id": "u2", "receiver_id": "u1",
	}})
	// Typing payload that is not msgpack.
	ch.emit(realtime.BroadcastEvent{Name: TypingEvent, Payload: msgpack.RawMessage{0xc1}})
	// Typing payload without a user id.
	ch.emit(realtime.BroadcastEvent{Name: TypingEvent, Payload: typingPayload(t, structs.Typing{Typing: true})})
	// A healthy event afterwards still lands: the subscription survived.
	ch.emit(realtime.RowEvent{Kind: realtime.RowInserted, Table: "messages", Row: map[string]any{
		"id": "m1", "sender_id": "u2", "receiver_id": "u1",
	}})
	require.NoError(t, sub.Close())

	snap, _ := cache.Get(convKey)
	assert.Equal(t, 1, snap.Value.(querycache.Paged[structs.Message]).Len())
	assert.Empty(t, sub.TypingUsers())
}

func TestTypingExpiresWithoutRenewal(t *testing.T) {
	b, cache, clock := newTestBridge()
	ch := newFakeChannel("room:u1:u2")
	convKey := querycache.MakeKey("messages", "u1", "u2")
	cache.Set(convKey, querycache.Paged[structs.Message]{})

	sub := b.Conversation(ch, convKey, "u1", "ada", "u2")
	defer sub.Close()

	ch.emit(realtime.BroadcastEvent{Name: TypingEvent,
		Payload: typingPayload(t, structs.Typing{UserId: "u2", Username: "bob", Typing: true})})

	require.Eventually(t, func() bool { return len(sub.TypingUsers()) == 1 },
		time.Second, time.Millisecond)

	clock.Advance(TypingExpiry - time.Millisecond)
	assert.Len(t, sub.TypingUsers(), 1, "still within the expiry window")

	clock.Advance(2 * time.Millisecond)
	assert.Empty(t, sub.TypingUsers(), "unrenewed typing signal expires")
}

func TestTypingRenewalExtendsExpiry(t *testing.T) {
	b, cache, clock := newTestBridge()
	ch := newFakeChannel("room:u1:u2")
	convKey := querycache.MakeKey("messages", "u1", "u2")
	cache.Set(convKey, querycache.Paged[structs.Message]{})

	sub := b.Conversation(ch, convKey, "u1", "ada", "u2")
	defer sub.Close()

	emitTyping := func() {
		ch.emit(realtime.BroadcastEvent{Name: TypingEvent,
			Payload: typingPayload(t, structs.Typing{UserId: "u2", Username: "bob", Typing: true})})
	}

	emitTyping()
	require.Eventually(t, func() bool { return len(sub.TypingUsers()) == 1 },
		time.Second, time.Millisecond)

	clock.Advance(2 * time.Second)
	emitTyping()
	require.Eventually(t, func() bool { return len(sub.TypingUsers()) == 1 },
		time.Second, time.Millisecond)

	// Past the original deadline but within the renewed one.
	clock.Advance(2 * time.Second)
	assert.Len(t, sub.TypingUsers(), 1)

	clock.Advance(2 * time.Second)
	assert.Empty(t, sub.TypingUsers())
}

func TestTypingFalseClearsImmediately(t *testing.T) {
	b, cache, _ := newTestBridge()
	ch := newFakeChannel("room:u1:u2")
	convKey := querycache.MakeKey("messages", "u1", "u2")
	cache.Set(convKey, querycache.Paged[structs.Message]{})

	sub := b.Conversation(ch, convKey, "u1", "ada", "u2")
	defer sub.Close()

	ch.emit(realtime.BroadcastEvent{Name: TypingEvent,
		Payload: typingPayload(t, structs.Typing{UserId: "u2", Username: "bob", Typing: true})})
	require.Eventually(t, func() bool { return len(sub.TypingUsers()) == 1 },
		time.Second, time.Millisecond)

	ch.emit(realtime.BroadcastEvent{Name: TypingEvent,
		Payload: typingPayload(t, structs.Typing{UserId: "u2", Username: "bob", Typing: false})})
	require.Eventually(t, func() bool { return len(sub.TypingUsers()) == 0 },
		time.Second, time.Millisecond)
}

func TestTypingExcludesSelf(t *testing.T) {
	b, cache, _ := newTestBridge()
	ch := newFakeChannel("room:u1:u2")
	convKey := querycache.MakeKey("messages", "u1", "u2")
	cache.Set(convKey, querycache.Paged[structs.Message]{})

	sub := b.Conversation(ch, convKey, "u1", "ada", "u2")
	defer sub.Close()

	require.NoError(t, sub.SetTyping(true))
	assert.Empty(t, sub.TypingUsers(), "the viewer never sees their own typing state")
}

func TestSetTypingAutoFalseBroadcast(t *testing.T) {
	b, cache, clock := newTestBridge()
	ch := newFakeChannel("room:u1:u2")
	convKey := querycache.MakeKey("messages", "u1", "u2")
	cache.Set(convKey, querycache.Paged[structs.Message]{})

	sub := b.Conversation(ch, convKey, "u1", "ada", "u2")
	defer sub.Close()

	require.NoError(t, sub.SetTyping(true))
	clock.Advance(TypingExpiry)

	log := ch.broadcastLog()
	require.Len(t, log, 2, "a stale typing-true is followed by an automatic false")
	assert.True(t, log[0].payload.(structs.Typing).Typing)
	assert.False(t, log[1].payload.(structs.Typing).Typing)
}

func TestSetTypingFalseCancelsAutoBroadcast(t *testing.T) {
	b, cache, clock := newTestBridge()
	ch := newFakeChannel("room:u1:u2")
	convKey := querycache.MakeKey("messages", "u1", "u2")
	cache.Set(convKey, querycache.Paged[structs.Message]{})

	sub := b.Conversation(ch, convKey, "u1", "ada", "u2")
	defer sub.Close()

	require.NoError(t, sub.SetTyping(true))
	require.NoError(t, sub.SetTyping(false))
	clock.Advance(2 * TypingExpiry)

	log := ch.broadcastLog()
	assert.Len(t, log, 2, "explicit false leaves no pending auto-broadcast behind")
}

func TestNotificationsFold(t *testing.T) {
	b, cache, _ := newTestBridge()
	ch := newFakeChannel("notifications:u1")
	notifKey := querycache.MakeKey("notifications", "u1")
	cache.Set(notifKey, querycache.Paged[structs.Notification]{}.AppendPage([]structs.Notification{
		{Id: "n1"},
	}))

	sub := b.Notifications(ch, notifKey, "u1")

	ch.emit(realtime.RowEvent{Kind: realtime.RowInserted, Table: "notifications", Row: map[string]any{
		"id": "n2", "recipient_id": "u1", "type": "like",
		"actor": map[string]any{"id": "u2", "username": "bob"},
	}})
	// Duplicate and foreign-table events are ignored.
	ch.emit(realtime.RowEvent{Kind: realtime.RowInserted, Table: "notifications", Row: map[string]any{
		"id": "n2", "recipient_id": "u1", "type": "like",
	}})
	ch.emit(realtime.RowEvent{Kind: realtime.RowInserted, Table: "messages", Row: map[string]any{
		"id": "m1",
	}})
	require.NoError(t, sub.Close())

	snap, _ := cache.Get(notifKey)
	got := snap.Value.(querycache.Paged[structs.Notification]).Flatten()
	require.Len(t, got, 2)
	assert.Equal(t, "n2", got[0].Id)
	assert.Equal(t, structs.NotificationLike, got[0].Type)
	assert.Equal(t, "bob", got[0].Actor.Username)
}

func TestNotificationsRejectForeignRecipient(t *testing.T) {
	b, cache, _ := newTestBridge()
	ch := newFakeChannel("notifications:u1")
	notifKey := querycache.MakeKey("notifications", "u1")
	cache.Set(notifKey, querycache.Paged[structs.Notification]{})

	sub := b.Notifications(ch, notifKey, "u1")

	ch.emit(realtime.RowEvent{Kind: realtime.RowInserted, Table: "notifications", Row: map[string]any{
		"id": "n-foreign", "recipient_id": "u9", "type": "like",
	}})
	// No recipient at all is treated the same as the wrong one.
	ch.emit(realtime.RowEvent{Kind: realtime.RowInserted, Table: "notifications", Row: map[string]any{
		"id": "n-anon", "type": "like",
	}})
	ch.emit(realtime.RowEvent{Kind: realtime.RowInserted, Table: "notifications", Row: map[string]any{
		"id": "n-mine", "recipient_id": "u1", "type": "follow",
	}})
	require.NoError(t, sub.Close())

	snap, _ := cache.Get(notifKey)
	got := snap.Value.(querycache.Paged[structs.Notification]).Flatten()
	require.Len(t, got, 1, "another viewer's notification must not land under this key")
	assert.Equal(t, "n-mine", got[0].Id)
}
