package structs

// Message belongs to the conversation identified by the unordered pair
// (SenderId, ReceiverId). Ordering within a conversation is CreatedAt
// ascending.
type Message struct {
	Id         string `json:"id" msgpack:"id"`
	SenderId   string `json:"sender_id" msgpack:"sender_id"`
	ReceiverId string `json:"receiver_id" msgpack:"receiver_id"`
	Text       string `json:"text" msgpack:"text"`
	MediaURL   string `json:"media_url" msgpack:"media_url"`
	Read       bool   `json:"read" msgpack:"read"`
	CreatedAt  int64  `json:"created_at" msgpack:"created_at"`
}
