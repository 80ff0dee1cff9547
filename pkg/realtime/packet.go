// Package realtime is the websocket side of the gateway: op-coded msgpack
// packets multiplexing rooms over one socket, with row-change streams,
// broadcasts and a presence primitive per room.
package realtime

import "github.com/vmihailenco/msgpack/v5"

const (
	OpHello       uint8 = 0
	OpSubscribe   uint8 = 1
	OpUnsubscribe uint8 = 2
	OpHeartbeat   uint8 = 3

	OpRowInsert uint8 = 4
	OpRowUpdate uint8 = 5
	OpRowDelete uint8 = 6

	OpBroadcast uint8 = 7

	OpPresenceState uint8 = 8
	OpPresenceDiff  uint8 = 9
	OpPresenceTrack uint8 = 10
)

// Packet is one websocket frame: an op, the room topic it belongs to, and an
// op-specific body left undecoded until routing.
type Packet struct {
	Op    uint8              `msgpack:"op"`
	Topic string             `msgpack:"topic"`
	Body  msgpack.RawMessage `msgpack:"body"`
}

// Member is one presence-room participant.
type Member struct {
	UserId   string `msgpack:"user_id"`
	Username string `msgpack:"username"`
	OnlineAt int64  `msgpack:"online_at"`
}

type subscribeBody struct {
	Table        string `msgpack:"table"`
	FilterColumn string `msgpack:"filter_column"`
	FilterValue  string `msgpack:"filter_value"`
}

type rowBody struct {
	Table string         `msgpack:"table"`
	Row   map[string]any `msgpack:"row"`
}

type broadcastBody struct {
	Event   string             `msgpack:"event"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

type presenceStateBody struct {
	Members []Member `msgpack:"members"`
}

type presenceDiffBody struct {
	Joins  []Member `msgpack:"joins"`
	Leaves []Member `msgpack:"leaves"`
}
