package bridge

import (
	"sort"
	"sync"

	"github.com/lumeo/client/pkg/realtime"
	"github.com/lumeo/client/pkg/structs"
)

// presenceMap is the room membership. Full states replace the map wholesale;
// join/leave patch single members between them for low-latency feedback.
// Rebuilding on every state event is what keeps the map drift-free when a
// join or leave was missed.
type presenceMap struct {
	mu      sync.Mutex
	members map[string]structs.Presence
}

func newPresenceMap() *presenceMap {
	return &presenceMap{members: make(map[string]structs.Presence)}
}

func (p *presenceMap) rebuild(members []realtime.Member) {
	fresh := make(map[string]structs.Presence, len(members))
	for _, m := range members {
		fresh[m.UserId] = presenceOf(m)
	}
	p.mu.Lock()
	p.members = fresh
	p.mu.Unlock()
}

func (p *presenceMap) join(m realtime.Member) {
	p.mu.Lock()
	p.members[m.UserId] = presenceOf(m)
	p.mu.Unlock()
}

func (p *presenceMap) leave(m realtime.Member) {
	p.mu.Lock()
	delete(p.members, m.UserId)
	p.mu.Unlock()
}

func (p *presenceMap) online() []structs.Presence {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]structs.Presence, 0, len(p.members))
	for _, m := range p.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func (p *presenceMap) isOnline(userId string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.members[userId]
	return ok
}

func presenceOf(m realtime.Member) structs.Presence {
	return structs.Presence{
		UserId:   m.UserId,
		Username: m.Username,
		Online:   true,
		LastSeen: m.OnlineAt,
	}
}

// PresenceSub is a live presence room: it tracks the local member and keeps
// the membership map current until Close.
type PresenceSub struct {
	bridge  *Bridge
	channel EventSource
	members *presenceMap

	closeOnce sync.Once
	done      chan struct{}
}

// Presence joins a presence room as self and starts consuming its events.
func (b *Bridge) Presence(channel EventSource, self realtime.Member) (*PresenceSub, error) {
	if self.OnlineAt == 0 {
		self.OnlineAt = b.clock.Now().UnixMilli()
	}
	if err := channel.Track(self); err != nil {
		return nil, err
	}

	s := &PresenceSub{
		bridge:  b,
		channel: channel,
		members: newPresenceMap(),
		done:    make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func (s *PresenceSub) run() {
	defer close(s.done)
	for ev := range s.channel.Events() {
		switch e := ev.(type) {
		case realtime.PresenceStateEvent:
			s.members.rebuild(e.Members)
		case realtime.PresenceJoinEvent:
			s.members.join(e.Member)
		case realtime.PresenceLeaveEvent:
			s.members.leave(e.Member)
		}
	}
}

// Online returns the current membership, sorted by username.
func (s *PresenceSub) Online() []structs.Presence {
	return s.members.online()
}

// IsOnline reports whether userId is currently in the room.
func (s *PresenceSub) IsOnline(userId string) bool {
	return s.members.isOnline(userId)
}

// Close releases the channel and waits for the consumer to drain.
func (s *PresenceSub) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.channel.Close()
		<-s.done
	})
	return err
}
