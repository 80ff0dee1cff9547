package structs

type TargetKind string

const (
	TargetPost TargetKind = "post"
	TargetReel TargetKind = "reel"
)

type Comment struct {
	Id         string       `json:"id" msgpack:"id"`
	TargetKind TargetKind   `json:"target_kind" msgpack:"target_kind"`
	TargetId   string       `json:"target_id" msgpack:"target_id"`
	ParentId   string       `json:"parent_id" msgpack:"parent_id"` // empty for root comments
	Author     UserSnapshot `json:"author" msgpack:"author"`
	Text       string       `json:"text" msgpack:"text"`
	VoiceURL   string       `json:"voice_url" msgpack:"voice_url"`
	LikeCount  int64        `json:"like_count" msgpack:"like_count"`
	HasLiked   bool         `json:"has_liked" msgpack:"has_liked"`
	CreatedAt  int64        `json:"created_at" msgpack:"created_at"`
}
