package mutate

import (
	"context"
	"fmt"

	"github.com/lumeo/client/pkg/gateway"
	"github.com/lumeo/client/pkg/querycache"
	"github.com/lumeo/client/pkg/structs"
)

// TogglePostLike flips the viewer's like on a post cached under key. The key
// may hold a paged feed or a single post. The like count moves by exactly
// one and never below zero, no matter how toggles race.
func (c *Coordinator) TogglePostLike(ctx context.Context, key querycache.Key, postId string) error {
	sess, err := c.requireSession()
	if err != nil {
		return err
	}

	txn := c.begin()
	staged, ok := txn.Stage(key)
	if !ok {
		return ErrNotCached
	}

	var nowLiked bool
	var updated any
	switch v := staged.(type) {
	case querycache.Paged[structs.Post]:
		found := false
		out := v.Map(func(p structs.Post) structs.Post {
			if p.Id != postId {
				return p
			}
			found = true
			p = flipPostLike(p)
			nowLiked = p.HasLiked
			return p
		})
		if !found {
			return ErrNotCached
		}
		updated = out
	case structs.Post:
		if v.Id != postId {
			return ErrNotCached
		}
		v = flipPostLike(v)
		nowLiked = v.HasLiked
		updated = v
	default:
		return ErrNotCached
	}

	txn.Apply(key, updated)

	if err := c.writeLikeRow(ctx, "post_likes", "post_id", postId, sess.UserId, nowLiked); err != nil {
		txn.Rollback()
		return fmt.Errorf("toggling post like: %w", err)
	}
	txn.Commit()
	// Like counts are server-computed; the next active read reconciles them.
	c.cache.Invalidate(key)
	return nil
}

// ToggleReelLike is TogglePostLike for reels.
func (c *Coordinator) ToggleReelLike(ctx context.Context, key querycache.Key, reelId string) error {
	sess, err := c.requireSession()
	if err != nil {
		return err
	}

	txn := c.begin()
	staged, ok := txn.Stage(key)
	if !ok {
		return ErrNotCached
	}

	var nowLiked bool
	var updated any
	switch v := staged.(type) {
	case querycache.Paged[structs.Reel]:
		found := false
		out := v.Map(func(r structs.Reel) structs.Reel {
			if r.Id != reelId {
				return r
			}
			found = true
			r = flipReelLike(r)
			nowLiked = r.HasLiked
			return r
		})
		if !found {
			return ErrNotCached
		}
		updated = out
	case structs.Reel:
		if v.Id != reelId {
			return ErrNotCached
		}
		v = flipReelLike(v)
		nowLiked = v.HasLiked
		updated = v
	default:
		return ErrNotCached
	}

	txn.Apply(key, updated)

	if err := c.writeLikeRow(ctx, "reel_likes", "reel_id", reelId, sess.UserId, nowLiked); err != nil {
		txn.Rollback()
		return fmt.Errorf("toggling reel like: %w", err)
	}
	txn.Commit()
	c.cache.Invalidate(key)
	return nil
}

// ToggleCommentLike flips the viewer's like on a comment in a cached comment
// list.
func (c *Coordinator) ToggleCommentLike(ctx context.Context, key querycache.Key, commentId string) error {
	sess, err := c.requireSession()
	if err != nil {
		return err
	}

	txn := c.begin()
	staged, ok := txn.Stage(key)
	if !ok {
		return ErrNotCached
	}
	paged, ok := staged.(querycache.Paged[structs.Comment])
	if !ok {
		return ErrNotCached
	}

	var nowLiked bool
	found := false
	out := paged.Map(func(cm structs.Comment) structs.Comment {
		if cm.Id != commentId {
			return cm
		}
		found = true
		if cm.HasLiked {
			cm.HasLiked = false
			if cm.LikeCount > 0 {
				cm.LikeCount--
			}
		} else {
			cm.HasLiked = true
			cm.LikeCount++
		}
		nowLiked = cm.HasLiked
		return cm
	})
	if !found {
		return ErrNotCached
	}

	txn.Apply(key, out)

	if err := c.writeLikeRow(ctx, "comment_likes", "comment_id", commentId, sess.UserId, nowLiked); err != nil {
		txn.Rollback()
		return fmt.Errorf("toggling comment like: %w", err)
	}
	txn.Commit()
	c.cache.Invalidate(key)
	return nil
}

func flipPostLike(p structs.Post) structs.Post {
	if p.HasLiked {
		p.HasLiked = false
		if p.LikeCount > 0 {
			p.LikeCount--
		}
	} else {
		p.HasLiked = true
		p.LikeCount++
	}
	return p
}

func flipReelLike(r structs.Reel) structs.Reel {
	if r.HasLiked {
		r.HasLiked = false
		if r.LikeCount > 0 {
			r.LikeCount--
		}
	} else {
		r.HasLiked = true
		r.LikeCount++
	}
	return r
}

func (c *Coordinator) writeLikeRow(ctx context.Context, table, column, id, userId string, liked bool) error {
	if liked {
		_, err := c.remote.Insert(ctx, table, gateway.Row{column: id, "user_id": userId})
		return err
	}
	return c.remote.Delete(ctx, table, map[string]string{column: id, "user_id": userId})
}
