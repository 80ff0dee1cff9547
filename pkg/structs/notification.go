package structs

type NotificationType string

const (
	NotificationFollow  NotificationType = "follow"
	NotificationLike    NotificationType = "like"
	NotificationComment NotificationType = "comment"
	NotificationSystem  NotificationType = "system"
)

type Notification struct {
	Id        string           `json:"id" msgpack:"id"`
	Type      NotificationType `json:"type" msgpack:"type"`
	Actor     UserSnapshot     `json:"actor" msgpack:"actor"`
	TargetId  string           `json:"target_id" msgpack:"target_id"`
	Read      bool             `json:"read" msgpack:"read"`
	CreatedAt int64            `json:"created_at" msgpack:"created_at"`
}
