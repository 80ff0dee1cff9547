package realtime

import "github.com/vmihailenco/msgpack/v5"

// Event is what a Channel delivers to its consumer. The concrete types below
// are the full set; consumers switch on them.
type Event interface {
	isEvent()
}

type RowKind uint8

const (
	RowInserted RowKind = iota
	RowUpdated
	RowDeleted
)

// RowEvent is a change on a subscribed table+filter.
type RowEvent struct {
	Kind  RowKind
	Table string
	Row   map[string]any
}

// BroadcastEvent is an ephemeral room broadcast (typing signals). Payload is
// left encoded; the consumer knows the event's shape.
type BroadcastEvent struct {
	Name    string
	Payload msgpack.RawMessage
}

// PresenceStateEvent carries the room's full authoritative member list.
type PresenceStateEvent struct {
	Members []Member
}

// PresenceJoinEvent and PresenceLeaveEvent are incremental single-member
// diffs between full states.
type PresenceJoinEvent struct {
	Member Member
}

type PresenceLeaveEvent struct {
	Member Member
}

func (RowEvent) isEvent()           {}
func (BroadcastEvent) isEvent()     {}
func (PresenceStateEvent) isEvent() {}
func (PresenceJoinEvent) isEvent()  {}
func (PresenceLeaveEvent) isEvent() {}
