package mutate

import (
	"context"
	"fmt"
	"time"

	"github.com/lumeo/client/pkg/gateway"
	"github.com/lumeo/client/pkg/normalize"
	"github.com/lumeo/client/pkg/querycache"
	"github.com/lumeo/client/pkg/structs"
)

// MessageInput is a new direct message. Exactly one of Text and MediaURL is
// required.
type MessageInput struct {
	ReceiverId string `validate:"required"`
	Text       string `validate:"required_without=MediaURL,max=5000"`
	MediaURL   string `validate:"omitempty,url,required_without=Text"`
}

// SendMessage prepends an optimistic message (temp id) to the first page of
// the conversation under convKey, then writes it. The first page is the
// newest-first position in that view; appending to the tail would bury the
// message under older pages.
func (c *Coordinator) SendMessage(ctx context.Context, convKey querycache.Key, in MessageInput) (structs.Message, error) {
	sess, err := c.requireSession()
	if err != nil {
		return structs.Message{}, err
	}
	if err := c.validate.Struct(in); err != nil {
		return structs.Message{}, fmt.Errorf("validating message: %w", err)
	}

	temp := structs.Message{
		Id:         TempId(),
		SenderId:   sess.UserId,
		ReceiverId: in.ReceiverId,
		Text:       in.Text,
		MediaURL:   in.MediaURL,
		CreatedAt:  time.Now().UnixMilli(),
	}

	txn := c.begin()
	staged, _ := txn.Stage(convKey)
	paged, _ := staged.(querycache.Paged[structs.Message])
	txn.Apply(convKey, paged.PrependToFirstPage(temp))

	row, err := c.remote.Insert(ctx, "messages", gateway.Row{
		"sender_id":   sess.UserId,
		"receiver_id": in.ReceiverId,
		"text":        in.Text,
		"media_url":   in.MediaURL,
	})
	if err != nil {
		txn.Rollback()
		return structs.Message{}, fmt.Errorf("sending message: %w", err)
	}
	txn.Commit()

	final, nerr := normalize.Message(row)
	if nerr != nil {
		c.cache.Invalidate(convKey)
		return temp, nil
	}

	if snap, ok := c.cache.Get(convKey); ok {
		if cur, ok := snap.Value.(querycache.Paged[structs.Message]); ok {
			c.cache.Set(convKey, cur.Map(func(m structs.Message) structs.Message {
				if m.Id == temp.Id {
					return final
				}
				return m
			}))
		}
	}
	return final, nil
}

// MarkConversationRead flags every unread message from otherId as read,
// optimistically and then remotely.
func (c *Coordinator) MarkConversationRead(ctx context.Context, convKey querycache.Key, otherId string) error {
	sess, err := c.requireSession()
	if err != nil {
		return err
	}

	txn := c.begin()
	staged, ok := txn.Stage(convKey)
	if !ok {
		return ErrNotCached
	}
	paged, ok := staged.(querycache.Paged[structs.Message])
	if !ok {
		return ErrNotCached
	}
	txn.Apply(convKey, paged.Map(func(m structs.Message) structs.Message {
		if m.SenderId == otherId && !m.Read {
			m.Read = true
		}
		return m
	}))

	_, err = c.remote.Update(ctx, "messages",
		map[string]string{"sender_id": otherId, "receiver_id": sess.UserId, "read": "false"},
		gateway.Row{"read": true})
	if err != nil {
		txn.Rollback()
		return fmt.Errorf("marking conversation read: %w", err)
	}
	txn.Commit()
	return nil
}
