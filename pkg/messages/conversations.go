// Package messages derives conversation state from flat message lists.
// Conversations are not stored by the gateway; they exist only as this
// projection.
package messages

import (
	"sort"

	"github.com/lumeo/client/pkg/structs"
)

// Conversation is one counterpart the viewer has exchanged messages with.
type Conversation struct {
	CounterpartId string
	LastMessage   structs.Message
	UnreadCount   int
}

// Conversations scans msgs and returns one entry per distinct counterpart of
// viewerId, most recent first. Messages not involving viewerId are ignored.
func Conversations(msgs []structs.Message, viewerId string) []Conversation {
	byCounterpart := make(map[string]*Conversation)
	order := make([]string, 0)

	for _, m := range msgs {
		var counterpart string
		switch viewerId {
		case m.SenderId:
			counterpart = m.ReceiverId
		case m.ReceiverId:
			counterpart = m.SenderId
		default:
			continue
		}

		c, ok := byCounterpart[counterpart]
		if !ok {
			c = &Conversation{CounterpartId: counterpart, LastMessage: m}
			byCounterpart[counterpart] = c
			order = append(order, counterpart)
		} else if m.CreatedAt >= c.LastMessage.CreatedAt {
			c.LastMessage = m
		}
		if m.SenderId == counterpart && !m.Read {
			c.UnreadCount++
		}
	}

	out := make([]Conversation, 0, len(order))
	for _, id := range order {
		out = append(out, *byCounterpart[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessage.CreatedAt > out[j].LastMessage.CreatedAt
	})
	return out
}

// SortChronological orders msgs by creation time ascending, the display
// order within an open conversation. The sort is stable so same-timestamp
// messages keep arrival order.
func SortChronological(msgs []structs.Message) []structs.Message {
	out := make([]structs.Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out
}

// ConversationWith reports whether m belongs to the conversation between
// viewerId and otherId, in either direction.
func ConversationWith(m structs.Message, viewerId, otherId string) bool {
	return (m.SenderId == viewerId && m.ReceiverId == otherId) ||
		(m.SenderId == otherId && m.ReceiverId == viewerId)
}
