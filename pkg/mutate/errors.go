package mutate

import "errors"

var (
	// ErrNotAuthenticated short-circuits a mutation before any optimistic
	// write; the cache is never touched for an action that cannot succeed.
	ErrNotAuthenticated = errors.New("action requires a signed-in user")

	// ErrNotCached means the entity the mutation targets is not under the
	// given cache key; the view should refetch before retrying.
	ErrNotCached = errors.New("target entity not in cache")
)
