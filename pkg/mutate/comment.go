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

// CommentInput is a new comment. Exactly one of Text and VoiceURL is
// required.
type CommentInput struct {
	TargetKind structs.TargetKind `validate:"required,oneof=post reel"`
	TargetId   string             `validate:"required"`
	ParentId   string
	Text       string `validate:"required_without=VoiceURL,max=2200"`
	VoiceURL   string `validate:"omitempty,url,required_without=Text"`
}

// CreateComment prepends an optimistic comment (temp id) to the comment list
// under commentsKey and bumps the target's comment count under targetKey (if
// cached there). On success the temp comment is replaced by the server row;
// on failure both keys roll back.
func (c *Coordinator) CreateComment(ctx context.Context, commentsKey, targetKey querycache.Key, in CommentInput) (structs.Comment, error) {
	sess, err := c.requireSession()
	if err != nil {
		return structs.Comment{}, err
	}
	if err := c.validate.Struct(in); err != nil {
		return structs.Comment{}, fmt.Errorf("validating comment: %w", err)
	}

	temp := structs.Comment{
		Id:         TempId(),
		TargetKind: in.TargetKind,
		TargetId:   in.TargetId,
		ParentId:   in.ParentId,
		Author: structs.UserSnapshot{
			Id:          sess.UserId,
			Username:    sess.Username,
			DisplayName: sess.Username,
			Avatar:      normalize.AvatarPlaceholder(sess.Username),
		},
		Text:      in.Text,
		VoiceURL:  in.VoiceURL,
		CreatedAt: time.Now().UnixMilli(),
	}

	txn := c.begin()

	staged, _ := txn.Stage(commentsKey)
	paged, _ := staged.(querycache.Paged[structs.Comment])
	txn.Apply(commentsKey, paged.PrependToFirstPage(temp))

	if targetKey != "" {
		if tv, ok := txn.Stage(targetKey); ok {
			txn.Apply(targetKey, adjustCommentCount(tv, in.TargetId, 1))
		}
	}

	row, err := c.remote.Insert(ctx, "comments", gateway.Row{
		"target_kind": string(in.TargetKind),
		"target_id":   in.TargetId,
		"parent_id":   in.ParentId,
		"author_id":   sess.UserId,
		"text":        in.Text,
		"voice_url":   in.VoiceURL,
	})
	if err != nil {
		txn.Rollback()
		return structs.Comment{}, fmt.Errorf("creating comment: %w", err)
	}
	txn.Commit()

	final, nerr := normalize.Comment(row)
	if nerr != nil {
		// Server accepted the write but returned an unusable row; fall back
		// to a refetch for canonical state.
		c.cache.Invalidate(commentsKey)
		return temp, nil
	}
	if final.Author.Username == "" {
		final.Author = temp.Author
	}

	if snap, ok := c.cache.Get(commentsKey); ok {
		if cur, ok := snap.Value.(querycache.Paged[structs.Comment]); ok {
			c.cache.Set(commentsKey, cur.Map(func(cm structs.Comment) structs.Comment {
				if cm.Id == temp.Id {
					return final
				}
				return cm
			}))
		}
	}
	return final, nil
}

// DeleteComment removes the viewer's own comment optimistically and adjusts
// the target's comment count down.
func (c *Coordinator) DeleteComment(ctx context.Context, commentsKey, targetKey querycache.Key, commentId, targetId string) error {
	_, err := c.requireSession()
	if err != nil {
		return err
	}

	txn := c.begin()
	staged, ok := txn.Stage(commentsKey)
	if !ok {
		return ErrNotCached
	}
	paged, ok := staged.(querycache.Paged[structs.Comment])
	if !ok {
		return ErrNotCached
	}
	txn.Apply(commentsKey, paged.Filter(func(cm structs.Comment) bool {
		return cm.Id != commentId
	}))

	if targetKey != "" {
		if tv, ok := txn.Stage(targetKey); ok {
			txn.Apply(targetKey, adjustCommentCount(tv, targetId, -1))
		}
	}

	if err := c.remote.Delete(ctx, "comments", map[string]string{"id": commentId}); err != nil {
		txn.Rollback()
		return fmt.Errorf("deleting comment: %w", err)
	}
	txn.Commit()
	return nil
}

// adjustCommentCount bumps the comment counter on whatever entity shape the
// target key holds, clamped at zero.
func adjustCommentCount(value any, targetId string, delta int64) any {
	clamp := func(n int64) int64 {
		if n < 0 {
			return 0
		}
		return n
	}
	switch v := value.(type) {
	case structs.Post:
		if v.Id == targetId {
			v.CommentCount = clamp(v.CommentCount + delta)
		}
		return v
	case structs.Reel:
		if v.Id == targetId {
			v.CommentCount = clamp(v.CommentCount + delta)
		}
		return v
	case querycache.Paged[structs.Post]:
		return v.Map(func(p structs.Post) structs.Post {
			if p.Id == targetId {
				p.CommentCount = clamp(p.CommentCount + delta)
			}
			return p
		})
	case querycache.Paged[structs.Reel]:
		return v.Map(func(r structs.Reel) structs.Reel {
			if r.Id == targetId {
				r.CommentCount = clamp(r.CommentCount + delta)
			}
			return r
		})
	}
	return value
}
