package structs

// Reel is video-only and additionally carries the audio-track label and the
// viewer's follow state on the author.
type Reel struct {
	Id         string       `json:"id" msgpack:"id"`
	Author     UserSnapshot `json:"author" msgpack:"author"`
	VideoURL   string       `json:"video_url" msgpack:"video_url"`
	PosterURL  string       `json:"poster_url" msgpack:"poster_url"`
	Caption    string       `json:"caption" msgpack:"caption"`
	AudioLabel string       `json:"audio_label" msgpack:"audio_label"`

	LikeCount    int64 `json:"like_count" msgpack:"like_count"`
	CommentCount int64 `json:"comment_count" msgpack:"comment_count"`
	ViewCount    int64 `json:"view_count" msgpack:"view_count"`

	CreatedAt int64 `json:"created_at" msgpack:"created_at"`

	HasLiked    bool `json:"has_liked" msgpack:"has_liked"`
	HasSaved    bool `json:"has_saved" msgpack:"has_saved"`
	IsFollowing bool `json:"is_following" msgpack:"is_following"`
}
