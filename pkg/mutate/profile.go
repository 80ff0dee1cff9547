package mutate

import (
	"context"
	"fmt"

	"github.com/lumeo/client/pkg/gateway"
	"github.com/lumeo/client/pkg/querycache"
	"github.com/lumeo/client/pkg/structs"
)

// ProfileInput patches the viewer's own profile. Empty fields are left
// untouched.
type ProfileInput struct {
	DisplayName string `validate:"max=50"`
	Bio         string `validate:"max=160"`
	Website     string `validate:"omitempty,url"`
	Avatar      string `validate:"omitempty,url"`
}

// UpdateProfile applies the patch optimistically to the viewer's cached
// profile, writes it, and invalidates the key on success so server-side
// normalization (trimming, moderation) wins on the next read.
func (c *Coordinator) UpdateProfile(ctx context.Context, profileKey querycache.Key, in ProfileInput) error {
	sess, err := c.requireSession()
	if err != nil {
		return err
	}
	if err := c.validate.Struct(in); err != nil {
		return fmt.Errorf("validating profile: %w", err)
	}

	patch := gateway.Row{}
	if in.DisplayName != "" {
		patch["display_name"] = in.DisplayName
	}
	if in.Bio != "" {
		patch["bio"] = in.Bio
	}
	if in.Website != "" {
		patch["website"] = in.Website
	}
	if in.Avatar != "" {
		patch["avatar"] = in.Avatar
	}
	if len(patch) == 0 {
		return nil
	}

	txn := c.begin()
	if pv, ok := txn.Stage(profileKey); ok {
		if profile, ok := pv.(structs.Profile); ok {
			if in.DisplayName != "" {
				profile.DisplayName = in.DisplayName
			}
			if in.Bio != "" {
				profile.Bio = in.Bio
			}
			if in.Website != "" {
				profile.Website = in.Website
			}
			if in.Avatar != "" {
				profile.Avatar = in.Avatar
			}
			txn.Apply(profileKey, profile)
		}
	}

	if _, err := c.remote.Update(ctx, "profiles", map[string]string{"id": sess.UserId}, patch); err != nil {
		txn.Rollback()
		return fmt.Errorf("updating profile: %w", err)
	}
	txn.Commit()
	c.cache.Invalidate(profileKey)
	return nil
}
