// Package normalize maps raw gateway rows into view models, filling safe
// defaults for optional fields. Every function here is pure: no I/O, no
// panics, and the only error is a missing required identity field.
package normalize

import (
	"net/url"
	"time"

	"github.com/lumeo/client/pkg/gateway"
	"github.com/lumeo/client/pkg/structs"
)

// AvatarPlaceholder is the deterministic fallback used when a profile has no
// avatar. Same username, same placeholder, across sessions.
func AvatarPlaceholder(username string) string {
	return "https://api.dicebear.com/7.x/initials/svg?seed=" + url.QueryEscape(username)
}

// User normalizes an author/actor row. Only id is required.
func User(row gateway.Row) (structs.UserSnapshot, error) {
	id := str(row, "id")
	if id == "" {
		return structs.UserSnapshot{}, &MissingFieldError{Entity: "user", Field: "id"}
	}
	u := structs.UserSnapshot{
		Id:          id,
		Username:    str(row, "username"),
		DisplayName: str(row, "display_name"),
		Avatar:      str(row, "avatar"),
		Verified:    boolean(row, "verified"),
	}
	if u.DisplayName == "" {
		u.DisplayName = u.Username
	}
	if u.Avatar == "" {
		u.Avatar = AvatarPlaceholder(u.Username)
	}
	return u, nil
}

// Profile normalizes a full profile row, counts defaulting to 0.
func Profile(row gateway.Row) (structs.Profile, error) {
	u, err := User(row)
	if err != nil {
		return structs.Profile{}, &MissingFieldError{Entity: "profile", Field: "id"}
	}
	return structs.Profile{
		UserSnapshot:   u,
		Bio:            str(row, "bio"),
		Website:        str(row, "website"),
		PostCount:      integer(row, "post_count"),
		FollowerCount:  integer(row, "follower_count"),
		FollowingCount: integer(row, "following_count"),
		IsFollowing:    boolean(row, "is_following"),
	}, nil
}

// Post normalizes a post row with its joined author relation.
func Post(row gateway.Row) (structs.Post, error) {
	id := str(row, "id")
	if id == "" {
		return structs.Post{}, &MissingFieldError{Entity: "post", Field: "id"}
	}
	author, _ := User(sub(row, "author"))
	kind := structs.MediaKind(str(row, "kind"))
	if kind == "" {
		kind = structs.MediaImage
	}
	return structs.Post{
		Id:           id,
		Author:       author,
		Kind:         kind,
		MediaURLs:    strSlice(row, "media_urls"),
		PosterURL:    str(row, "poster_url"),
		Caption:      str(row, "caption"),
		LikeCount:    integer(row, "like_count"),
		CommentCount: integer(row, "comment_count"),
		ViewCount:    integer(row, "view_count"),
		CreatedAt:    timestamp(row, "created_at"),
		HasLiked:     boolean(row, "has_liked"),
		HasSaved:     boolean(row, "has_saved"),
	}, nil
}

// Comment normalizes a comment row. A parent_id is carried through verbatim;
// orphan handling happens in pkg/comments when the tree is built.
func Comment(row gateway.Row) (structs.Comment, error) {
	id := str(row, "id")
	if id == "" {
		return structs.Comment{}, &MissingFieldError{Entity: "comment", Field: "id"}
	}
	author, _ := User(sub(row, "author"))
	kind := structs.TargetKind(str(row, "target_kind"))
	if kind == "" {
		kind = structs.TargetPost
	}
	return structs.Comment{
		Id:         id,
		TargetKind: kind,
		TargetId:   str(row, "target_id"),
		ParentId:   str(row, "parent_id"),
		Author:     author,
		Text:       str(row, "text"),
		VoiceURL:   str(row, "voice_url"),
		LikeCount:  integer(row, "like_count"),
		HasLiked:   boolean(row, "has_liked"),
		CreatedAt:  timestamp(row, "created_at"),
	}, nil
}

// Reel normalizes a reel row.
func Reel(row gateway.Row) (structs.Reel, error) {
	id := str(row, "id")
	if id == "" {
		return structs.Reel{}, &MissingFieldError{Entity: "reel", Field: "id"}
	}
	author, _ := User(sub(row, "author"))
	return structs.Reel{
		Id:           id,
		Author:       author,
		VideoURL:     str(row, "video_url"),
		PosterURL:    str(row, "poster_url"),
		Caption:      str(row, "caption"),
		AudioLabel:   str(row, "audio_label"),
		LikeCount:    integer(row, "like_count"),
		CommentCount: integer(row, "comment_count"),
		ViewCount:    integer(row, "view_count"),
		CreatedAt:    timestamp(row, "created_at"),
		HasLiked:     boolean(row, "has_liked"),
		HasSaved:     boolean(row, "has_saved"),
		IsFollowing:  boolean(row, "is_following"),
	}, nil
}

// Message normalizes a direct-message row.
func Message(row gateway.Row) (structs.Message, error) {
	id := str(row, "id")
	if id == "" {
		return structs.Message{}, &MissingFieldError{Entity: "message", Field: "id"}
	}
	return structs.Message{
		Id:         id,
		SenderId:   str(row, "sender_id"),
		ReceiverId: str(row, "receiver_id"),
		Text:       str(row, "text"),
		MediaURL:   str(row, "media_url"),
		Read:       boolean(row, "read"),
		CreatedAt:  timestamp(row, "created_at"),
	}, nil
}

// Notification normalizes a notification row; unknown types fall back to
// system so the inbox never renders a blank card.
func Notification(row gateway.Row) (structs.Notification, error) {
	id := str(row, "id")
	if id == "" {
		return structs.Notification{}, &MissingFieldError{Entity: "notification", Field: "id"}
	}
	actor, _ := User(sub(row, "actor"))
	typ := structs.NotificationType(str(row, "type"))
	switch typ {
	case structs.NotificationFollow, structs.NotificationLike, structs.NotificationComment:
	default:
		typ = structs.NotificationSystem
	}
	return structs.Notification{
		Id:        id,
		Type:      typ,
		Actor:     actor,
		TargetId:  str(row, "target_id"),
		Read:      boolean(row, "read"),
		CreatedAt: timestamp(row, "created_at"),
	}, nil
}

func str(row gateway.Row, key string) string {
	if row == nil {
		return ""
	}
	s, _ := row[key].(string)
	return s
}

func boolean(row gateway.Row, key string) bool {
	if row == nil {
		return false
	}
	b, _ := row[key].(bool)
	return b
}

// integer tolerates the numeric types both JSON and msgpack decoding produce.
func integer(row gateway.Row, key string) int64 {
	if row == nil {
		return 0
	}
	switch v := row[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case uint64:
		return int64(v)
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	case int8:
		return int64(v)
	}
	return 0
}

// timestamp accepts unix milliseconds or an RFC 3339 string.
func timestamp(row gateway.Row, key string) int64 {
	if row == nil {
		return 0
	}
	if s, ok := row[key].(string); ok {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return 0
		}
		return t.UnixMilli()
	}
	return integer(row, key)
}

func sub(row gateway.Row, key string) gateway.Row {
	if row == nil {
		return nil
	}
	switch v := row[key].(type) {
	case map[string]any:
		return gateway.Row(v)
	case gateway.Row:
		return v
	}
	return nil
}

func strSlice(row gateway.Row, key string) []string {
	if row == nil {
		return nil
	}
	raw, ok := row[key].([]any)
	if !ok {
		if s := str(row, key); s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
