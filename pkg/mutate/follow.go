package mutate

import (
	"context"
	"fmt"

	"github.com/lumeo/client/pkg/gateway"
	"github.com/lumeo/client/pkg/querycache"
	"github.com/lumeo/client/pkg/structs"
)

// ToggleFollow follows or unfollows targetUserId. Deliberately asymmetric:
// the viewer's own cached following counter is adjusted optimistically,
// while the target's profile key is only invalidated so its follower count
// and follow state come back authoritative on the next read.
func (c *Coordinator) ToggleFollow(ctx context.Context, viewerKey, targetKey querycache.Key, targetUserId string) error {
	sess, err := c.requireSession()
	if err != nil {
		return err
	}

	tsnap, ok := c.cache.Get(targetKey)
	if !ok {
		return ErrNotCached
	}
	target, ok := tsnap.Value.(structs.Profile)
	if !ok || target.Id != targetUserId {
		return ErrNotCached
	}
	nowFollowing := !target.IsFollowing

	txn := c.begin()
	if vv, ok := txn.Stage(viewerKey); ok {
		if viewer, ok := vv.(structs.Profile); ok {
			if nowFollowing {
				viewer.FollowingCount++
			} else if viewer.FollowingCount > 0 {
				viewer.FollowingCount--
			}
			txn.Apply(viewerKey, viewer)
		}
	}

	if nowFollowing {
		_, err = c.remote.Insert(ctx, "follows", gateway.Row{
			"follower_id": sess.UserId,
			"followee_id": targetUserId,
		})
	} else {
		err = c.remote.Delete(ctx, "follows", map[string]string{
			"follower_id": sess.UserId,
			"followee_id": targetUserId,
		})
	}
	if err != nil {
		txn.Rollback()
		return fmt.Errorf("toggling follow: %w", err)
	}
	txn.Commit()
	c.cache.Invalidate(targetKey)
	return nil
}
