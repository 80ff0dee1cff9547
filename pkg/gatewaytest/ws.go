package gatewaytest

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/lumeo/client/pkg/realtime"
)

// Wire bodies mirrored from the client side of the protocol.
type subscribeBody struct {
	Table        string `msgpack:"table"`
	FilterColumn string `msgpack:"filter_column"`
	FilterValue  string `msgpack:"filter_value"`
}

type rowBody struct {
	Table string         `msgpack:"table"`
	Row   map[string]any `msgpack:"row"`
}

type presenceStateBody struct {
	Members []realtime.Member `msgpack:"members"`
}

type presenceDiffBody struct {
	Joins  []realtime.Member `msgpack:"joins"`
	Leaves []realtime.Member `msgpack:"leaves"`
}

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) send(p realtime.Packet) error {
	raw, err := msgpack.Marshal(p)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, raw)
}

type subscription struct {
	table     string
	filterCol string
	filterVal string
}

type room struct {
	subs     map[*wsConn]subscription
	presence map[*wsConn]realtime.Member
}

func newRoom() *room {
	return &room{
		subs:     make(map[*wsConn]subscription),
		presence: make(map[*wsConn]realtime.Member),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &wsConn{conn: conn}
	c.send(realtime.Packet{Op: realtime.OpHello})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.dropConn(c)
			return
		}
		var p realtime.Packet
		if err := msgpack.Unmarshal(raw, &p); err != nil {
			continue
		}
		s.handlePacket(c, p)
	}
}

func (s *Server) handlePacket(c *wsConn, p realtime.Packet) {
	switch p.Op {
	case realtime.OpSubscribe:
		var body subscribeBody
		if err := msgpack.Unmarshal(p.Body, &body); err != nil {
			return
		}
		s.mu.Lock()
		rm := s.rooms[p.Topic]
		if rm == nil {
			rm = newRoom()
			s.rooms[p.Topic] = rm
		}
		rm.subs[c] = subscription{
			table:     body.Table,
			filterCol: body.FilterColumn,
			filterVal: body.FilterValue,
		}
		s.mu.Unlock()

	case realtime.OpUnsubscribe:
		s.mu.Lock()
		rm := s.rooms[p.Topic]
		var left *realtime.Member
		if rm != nil {
			if m, ok := rm.presence[c]; ok {
				left = &m
				delete(rm.presence, c)
			}
			delete(rm.subs, c)
		}
		s.mu.Unlock()
		if left != nil {
			s.broadcastPresence(p.Topic, nil, []realtime.Member{*left})
		}

	case realtime.OpPresenceTrack:
		var m realtime.Member
		if err := msgpack.Unmarshal(p.Body, &m); err != nil {
			return
		}
		s.mu.Lock()
		rm := s.rooms[p.Topic]
		if rm == nil {
			rm = newRoom()
			s.rooms[p.Topic] = rm
			rm.subs[c] = subscription{}
		}
		rm.presence[c] = m
		s.mu.Unlock()
		s.broadcastPresence(p.Topic, []realtime.Member{m}, nil)

	case realtime.OpBroadcast:
		s.mu.Lock()
		rm := s.rooms[p.Topic]
		var peers []*wsConn
		if rm != nil {
			for peer := range rm.subs {
				if peer != c {
					peers = append(peers, peer)
				}
			}
		}
		s.mu.Unlock()
		for _, peer := range peers {
			peer.send(p)
		}
	}
}

// broadcastPresence sends the diff to everyone but the subject and a full
// authoritative state to every member of the room.
func (s *Server) broadcastPresence(topic string, joins, leaves []realtime.Member) {
	s.mu.Lock()
	rm := s.rooms[topic]
	if rm == nil {
		s.mu.Unlock()
		return
	}
	members := make([]realtime.Member, 0, len(rm.presence))
	for _, m := range rm.presence {
		members = append(members, m)
	}
	conns := make([]*wsConn, 0, len(rm.subs))
	for peer := range rm.subs {
		conns = append(conns, peer)
	}
	s.mu.Unlock()

	diff, _ := msgpack.Marshal(presenceDiffBody{Joins: joins, Leaves: leaves})
	state, _ := msgpack.Marshal(presenceStateBody{Members: members})
	for _, peer := range conns {
		peer.send(realtime.Packet{Op: realtime.OpPresenceDiff, Topic: topic, Body: diff})
		peer.send(realtime.Packet{Op: realtime.OpPresenceState, Topic: topic, Body: state})
	}
}

// fanOutInsert delivers an inserted row to every subscription watching its
// table whose filter the row satisfies.
func (s *Server) fanOutInsert(table string, row map[string]any) {
	type target struct {
		conn  *wsConn
		topic string
	}
	s.mu.Lock()
	var targets []target
	for topic, rm := range s.rooms {
		for conn, sub := range rm.subs {
			if sub.table != table {
				continue
			}
			if sub.filterCol != "" && fmt.Sprintf("%v", row[sub.filterCol]) != sub.filterVal {
				continue
			}
			targets = append(targets, target{conn: conn, topic: topic})
		}
	}
	s.mu.Unlock()

	body, err := msgpack.Marshal(rowBody{Table: table, Row: row})
	if err != nil {
		return
	}
	for _, t := range targets {
		t.conn.send(realtime.Packet{Op: realtime.OpRowInsert, Topic: t.topic, Body: body})
	}
}

func (s *Server) dropConn(c *wsConn) {
	s.mu.Lock()
	type leave struct {
		topic  string
		member realtime.Member
	}
	var leaves []leave
	for topic, rm := range s.rooms {
		if m, ok := rm.presence[c]; ok {
			leaves = append(leaves, leave{topic: topic, member: m})
			delete(rm.presence, c)
		}
		delete(rm.subs, c)
	}
	s.mu.Unlock()

	for _, l := range leaves {
		s.broadcastPresence(l.topic, nil, []realtime.Member{l.member})
	}
	c.conn.Close()
}
