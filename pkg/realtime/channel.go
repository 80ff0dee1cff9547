package realtime

import (
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

const eventBuffer = 64

// SubscribeConfig optionally attaches a row-change stream to the room: every
// insert/update/delete on Table where FilterColumn equals FilterValue is
// delivered as a RowEvent. Leave Table empty for broadcast/presence-only
// rooms.
type SubscribeConfig struct {
	Table        string
	FilterColumn string
	FilterValue  string
}

// Channel is one room on a Socket. Events arrive on Events() in arrival
// order; the channel never reorders.
type Channel struct {
	socket *Socket
	topic  string
	events chan Event

	mu     sync.Mutex
	closed bool
}

func (ch *Channel) Topic() string {
	return ch.topic
}

// Subscribe joins the room.
func (ch *Channel) Subscribe(cfg SubscribeConfig) error {
	body, err := msgpack.Marshal(subscribeBody{
		Table:        cfg.Table,
		FilterColumn: cfg.FilterColumn,
		FilterValue:  cfg.FilterValue,
	})
	if err != nil {
		return err
	}
	return ch.socket.send(Packet{Op: OpSubscribe, Topic: ch.topic, Body: body})
}

// Track announces the local member's presence state to the room.
func (ch *Channel) Track(m Member) error {
	body, err := msgpack.Marshal(m)
	if err != nil {
		return err
	}
	return ch.socket.send(Packet{Op: OpPresenceTrack, Topic: ch.topic, Body: body})
}

// Broadcast sends an ephemeral event to every other member of the room.
func (ch *Channel) Broadcast(event string, payload any) error {
	raw, err := msgpack.Marshal(payload)
	if err != nil {
		return err
	}
	body, err := msgpack.Marshal(broadcastBody{Event: event, Payload: raw})
	if err != nil {
		return err
	}
	return ch.socket.send(Packet{Op: OpBroadcast, Topic: ch.topic, Body: body})
}

// Events is the channel's delivery stream. It is closed on Close or when
// the socket dies, so consumers can range over it.
func (ch *Channel) Events() <-chan Event {
	return ch.events
}

// Close leaves the room and closes the event stream. Idempotent.
func (ch *Channel) Close() error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	ch.closed = true
	ch.mu.Unlock()

	ch.socket.dropChannel(ch.topic)
	err := ch.socket.send(Packet{Op: OpUnsubscribe, Topic: ch.topic})
	close(ch.events)
	return err
}

// shutdown is Close without the unsubscribe packet, for a dying socket.
func (ch *Channel) shutdown() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	ch.mu.Unlock()
	close(ch.events)
}

func (ch *Channel) dispatch(p Packet) {
	var ev Event
	switch p.Op {
	case OpRowInsert, OpRowUpdate, OpRowDelete:
		var body rowBody
		if err := msgpack.Unmarshal(p.Body, &body); err != nil {
			ch.socket.log.Warn("dropping malformed row event",
				zap.String("topic", ch.topic), zap.Error(err))
			return
		}
		kind := RowInserted
		if p.Op == OpRowUpdate {
			kind = RowUpdated
		} else if p.Op == OpRowDelete {
			kind = RowDeleted
		}
		ev = RowEvent{Kind: kind, Table: body.Table, Row: body.Row}

	case OpBroadcast:
		var body broadcastBody
		if err := msgpack.Unmarshal(p.Body, &body); err != nil {
			ch.socket.log.Warn("dropping malformed broadcast",
				zap.String("topic", ch.topic), zap.Error(err))
			return
		}
		ev = BroadcastEvent{Name: body.Event, Payload: body.Payload}

	case OpPresenceState:
		var body presenceStateBody
		if err := msgpack.Unmarshal(p.Body, &body); err != nil {
			ch.socket.log.Warn("dropping malformed presence state",
				zap.String("topic", ch.topic), zap.Error(err))
			return
		}
		ev = PresenceStateEvent{Members: body.Members}

	case OpPresenceDiff:
		var body presenceDiffBody
		if err := msgpack.Unmarshal(p.Body, &body); err != nil {
			ch.socket.log.Warn("dropping malformed presence diff",
				zap.String("topic", ch.topic), zap.Error(err))
			return
		}
		for _, m := range body.Joins {
			ch.deliver(PresenceJoinEvent{Member: m})
		}
		for _, m := range body.Leaves {
			ch.deliver(PresenceLeaveEvent{Member: m})
		}
		return

	default:
		return
	}
	ch.deliver(ev)
}

func (ch *Channel) deliver(ev Event) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return
	}
	select {
	case ch.events <- ev:
	default:
		// A stalled consumer loses the oldest semantics; dropping here is
		// safe because row events are idempotent appends and presence
		// self-heals on the next full state.
		ch.socket.log.Warn("event buffer full, dropping event",
			zap.String("topic", ch.topic))
	}
}
