package bridge

import (
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/lumeo/client/pkg/gateway"
	"github.com/lumeo/client/pkg/messages"
	"github.com/lumeo/client/pkg/normalize"
	"github.com/lumeo/client/pkg/querycache"
	"github.com/lumeo/client/pkg/realtime"
	"github.com/lumeo/client/pkg/structs"
)

// ConversationSub is a live messaging room: counterpart messages are folded
// into the conversation's cache key, typing signals into the typing state.
type ConversationSub struct {
	bridge  *Bridge
	channel EventSource
	convKey querycache.Key

	viewerId   string
	viewerName string
	otherId    string

	typing *typingTracker

	timerMu    sync.Mutex
	localTimer Timer

	closeOnce sync.Once
	done      chan struct{}
}

// Conversation starts consuming a conversation room. convKey is the cache
// key of the open conversation's paged message history.
func (b *Bridge) Conversation(channel EventSource, convKey querycache.Key, viewerId, viewerName, otherId string) *ConversationSub {
	s := &ConversationSub{
		bridge:     b,
		channel:    channel,
		convKey:    convKey,
		viewerId:   viewerId,
		viewerName: viewerName,
		otherId:    otherId,
		typing:     newTypingTracker(b.clock, viewerId),
		done:       make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *ConversationSub) run() {
	defer close(s.done)
	for ev := range s.channel.Events() {
		switch e := ev.(type) {
		case realtime.RowEvent:
			s.handleRow(e)
		case realtime.BroadcastEvent:
			s.handleBroadcast(e)
		}
	}
}

func (s *ConversationSub) handleRow(e realtime.RowEvent) {
	if e.Kind != realtime.RowInserted || e.Table != "messages" {
		return
	}
	m, err := normalize.Message(gateway.Row(e.Row))
	if err != nil {
		s.bridge.dropPayload(s.channel.Topic(), err)
		return
	}
	// Only the counterpart's messages for this conversation are folded in:
	// the viewer's own arrive optimistically, and nothing from another
	// conversation may leak into this key.
	if m.SenderId != s.otherId || !messages.ConversationWith(m, s.viewerId, s.otherId) {
		return
	}
	s.appendMessage(m)
}

func (s *ConversationSub) handleBroadcast(e realtime.BroadcastEvent) {
	if e.Name != TypingEvent {
		return
	}
	var sig structs.Typing
	if err := msgpack.Unmarshal(e.Payload, &sig); err != nil {
		s.bridge.dropPayload(s.channel.Topic(), err)
		return
	}
	if sig.UserId == "" {
		s.bridge.dropPayload(s.channel.Topic(), &normalize.MissingFieldError{Entity: "typing", Field: "user_id"})
		return
	}
	s.typing.apply(sig)
}

func (s *ConversationSub) appendMessage(m structs.Message) {
	snap, ok := s.bridge.cache.Get(s.convKey)
	var paged querycache.Paged[structs.Message]
	if ok {
		paged, _ = snap.Value.(querycache.Paged[structs.Message])
	}
	for _, page := range paged.Pages {
		for _, existing := range page {
			if existing.Id == m.Id {
				return
			}
		}
	}
	s.bridge.cache.Set(s.convKey, paged.PrependToFirstPage(m))
}

// SetTyping broadcasts the viewer's typing state. A true signal schedules an
// automatic false broadcast after TypingExpiry unless renewed or explicitly
// cancelled, so the counterpart never sees a stuck indicator.
func (s *ConversationSub) SetTyping(on bool) error {
	sig := structs.Typing{UserId: s.viewerId, Username: s.viewerName, Typing: on}
	s.typing.apply(sig)

	s.timerMu.Lock()
	if on {
		if s.localTimer != nil {
			s.localTimer.Reset(TypingExpiry)
		} else {
			s.localTimer = s.bridge.clock.AfterFunc(TypingExpiry, func() {
				s.SetTyping(false)
			})
		}
	} else if s.localTimer != nil {
		s.localTimer.Stop()
		s.localTimer = nil
	}
	s.timerMu.Unlock()

	return s.channel.Broadcast(TypingEvent, sig)
}

// TypingUsers is who is typing in this conversation, excluding the viewer.
func (s *ConversationSub) TypingUsers() []structs.Typing {
	return s.typing.users()
}

// Close stops timers, releases the channel and waits for the consumer.
func (s *ConversationSub) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.timerMu.Lock()
		if s.localTimer != nil {
			s.localTimer.Stop()
			s.localTimer = nil
		}
		s.timerMu.Unlock()
		s.typing.close()
		err = s.channel.Close()
		<-s.done
	})
	return err
}
