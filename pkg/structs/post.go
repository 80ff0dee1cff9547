package structs

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

type Post struct {
	Id        string       `json:"id" msgpack:"id"`
	Author    UserSnapshot `json:"author" msgpack:"author"`
	Kind      MediaKind    `json:"kind" msgpack:"kind"`
	MediaURLs []string     `json:"media_urls" msgpack:"media_urls"`
	PosterURL string       `json:"poster_url" msgpack:"poster_url"`
	Caption   string       `json:"caption" msgpack:"caption"`

	LikeCount    int64 `json:"like_count" msgpack:"like_count"`
	CommentCount int64 `json:"comment_count" msgpack:"comment_count"`
	ViewCount    int64 `json:"view_count" msgpack:"view_count"`

	CreatedAt int64 `json:"created_at" msgpack:"created_at"`

	// Viewer-relative. Cache keys for queries carrying these fields must
	// include the viewer id.
	HasLiked bool `json:"has_liked" msgpack:"has_liked"`
	HasSaved bool `json:"has_saved" msgpack:"has_saved"`
}
