package realtime

import (
	"context"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Socket is one websocket connection to the gateway, multiplexing any number
// of room channels. Reconnection is the caller's concern: on a dead socket,
// dial a new one and re-subscribe; channels tear down cleanly either way.
type Socket struct {
	conn *websocket.Conn
	log  *zap.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	channels map[string]*Channel
	closed   bool
}

// Dial connects and starts the read loop. The token authenticates the
// socket; pass the session's access token.
func Dial(ctx context.Context, wsURL, token string, logger *zap.Logger) (*Socket, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	s := &Socket{
		conn:     conn,
		log:      logger,
		channels: make(map[string]*Channel),
	}
	go s.readLoop()
	return s, nil
}

// Channel returns the channel for topic, creating it if needed. Topics name
// rooms: "messages:<viewer>:<other>", "presence:lobby", "typing:<conv>".
func (s *Socket) Channel(topic string) *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.channels[topic]; ok {
		return ch
	}
	ch := &Channel{
		socket: s,
		topic:  topic,
		events: make(chan Event, eventBuffer),
	}
	s.channels[topic] = ch
	return ch
}

// Close tears down the socket and every channel on it.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	chans := make([]*Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		chans = append(chans, ch)
	}
	s.mu.Unlock()

	for _, ch := range chans {
		ch.shutdown()
	}
	return s.conn.Close()
}

func (s *Socket) send(p Packet) error {
	raw, err := msgpack.Marshal(p)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, raw)
}

func (s *Socket) readLoop() {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.Close()
			return
		}

		var p Packet
		if err := msgpack.Unmarshal(raw, &p); err != nil {
			// Drop the frame; one bad packet must not kill the socket.
			s.log.Warn("dropping undecodable packet", zap.Error(err))
			continue
		}

		switch p.Op {
		case OpHello, OpHeartbeat:
			continue
		}

		s.mu.Lock()
		ch := s.channels[p.Topic]
		s.mu.Unlock()
		if ch == nil {
			continue
		}
		ch.dispatch(p)
	}
}

func (s *Socket) dropChannel(topic string) {
	s.mu.Lock()
	delete(s.channels, topic)
	s.mu.Unlock()
}
