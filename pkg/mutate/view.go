package mutate

import (
	"context"

	"go.uber.org/zap"
)

// RecordView bumps a post or reel view counter through the gateway's RPC
// function. Views are fire-and-forget: no optimistic state, no rollback, and
// failures are only logged since a lost view count is cosmetic.
func (c *Coordinator) RecordView(ctx context.Context, kind, id string) {
	if _, err := c.remote.RPC(ctx, "increment_view_count", map[string]any{
		"target_kind": kind,
		"target_id":   id,
	}); err != nil {
		c.log.Debug("view count increment failed",
			zap.String("kind", kind), zap.String("id", id), zap.Error(err))
	}
}
