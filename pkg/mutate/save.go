package mutate

import (
	"context"
	"fmt"

	"github.com/lumeo/client/pkg/gateway"
	"github.com/lumeo/client/pkg/querycache"
	"github.com/lumeo/client/pkg/structs"
)

// ToggleSave flips the viewer's save flag on a post. Saves have no
// server-computed counter, so the optimistic value stands on success; only
// the separate saved-posts collection key, if supplied, is invalidated.
func (c *Coordinator) ToggleSave(ctx context.Context, key querycache.Key, postId string, savedListKey querycache.Key) error {
	sess, err := c.requireSession()
	if err != nil {
		return err
	}

	txn := c.begin()
	staged, ok := txn.Stage(key)
	if !ok {
		return ErrNotCached
	}

	var nowSaved bool
	var updated any
	switch v := staged.(type) {
	case querycache.Paged[structs.Post]:
		found := false
		out := v.Map(func(p structs.Post) structs.Post {
			if p.Id != postId {
				return p
			}
			found = true
			p.HasSaved = !p.HasSaved
			nowSaved = p.HasSaved
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
		v.HasSaved = !v.HasSaved
		nowSaved = v.HasSaved
		updated = v
	default:
		return ErrNotCached
	}

	txn.Apply(key, updated)

	if nowSaved {
		_, err = c.remote.Insert(ctx, "post_saves", gateway.Row{"post_id": postId, "user_id": sess.UserId})
	} else {
		err = c.remote.Delete(ctx, "post_saves", map[string]string{"post_id": postId, "user_id": sess.UserId})
	}
	if err != nil {
		txn.Rollback()
		return fmt.Errorf("toggling save: %w", err)
	}
	txn.Commit()
	if savedListKey != "" {
		c.cache.Invalidate(savedListKey)
	}
	return nil
}
