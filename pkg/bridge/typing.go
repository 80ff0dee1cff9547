package bridge

import (
	"sort"
	"sync"
	"time"

	"github.com/lumeo/client/pkg/structs"
)

// TypingExpiry is how long a typing-true signal stays valid without renewal,
// both for the local auto-false broadcast and for expiring remote records.
const TypingExpiry = 3 * time.Second

// TypingEvent is the broadcast name typing signals travel under.
const TypingEvent = "typing"

// typingTracker keeps the per-room typing state. Each remote typing-true
// schedules (or renews) a cancellable expiry task; typing-false or expiry
// removes the record.
type typingTracker struct {
	clock       Clock
	localUserId string

	mu     sync.Mutex
	typing map[string]structs.Typing
	timers map[string]Timer
	closed bool
}

func newTypingTracker(clock Clock, localUserId string) *typingTracker {
	return &typingTracker{
		clock:       clock,
		localUserId: localUserId,
		typing:      make(map[string]structs.Typing),
		timers:      make(map[string]Timer),
	}
}

func (t *typingTracker) apply(sig structs.Typing) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	if !sig.Typing {
		t.removeLocked(sig.UserId)
		return
	}

	t.typing[sig.UserId] = sig
	if timer, ok := t.timers[sig.UserId]; ok {
		timer.Reset(TypingExpiry)
		return
	}
	userId := sig.UserId
	t.timers[userId] = t.clock.AfterFunc(TypingExpiry, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.removeLocked(userId)
	})
}

func (t *typingTracker) removeLocked(userId string) {
	delete(t.typing, userId)
	if timer, ok := t.timers[userId]; ok {
		timer.Stop()
		delete(t.timers, userId)
	}
}

// users returns who is typing, never including the local user: "you are
// typing" must not be shown to yourself.
func (t *typingTracker) users() []structs.Typing {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]structs.Typing, 0, len(t.typing))
	for _, sig := range t.typing {
		if sig.UserId == t.localUserId {
			continue
		}
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// close stops every pending expiry task. Required before dropping the
// tracker so no timer handle leaks past the subscription.
func (t *typingTracker) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for userId, timer := range t.timers {
		timer.Stop()
		delete(t.timers, userId)
	}
	t.typing = make(map[string]structs.Typing)
}
