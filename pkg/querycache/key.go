package querycache

import "strings"

// Key addresses one cached query result. Build keys from the entity kind
// plus its parameters, e.g. MakeKey("comments", "post", postId, viewerId).
// Queries whose rows carry viewer-relative fields (has_liked, has_saved)
// must include the viewer id so results are never shared across viewers.
type Key string

func MakeKey(parts ...string) Key {
	return Key(strings.Join(parts, "/"))
}

type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}
