package structs

// Presence and Typing are ephemeral channel state. They live for the
// lifetime of a realtime subscription and are never persisted.

type Presence struct {
	UserId   string `json:"user_id" msgpack:"user_id"`
	Username string `json:"username" msgpack:"username"`
	Online   bool   `json:"online" msgpack:"online"`
	LastSeen int64  `json:"last_seen" msgpack:"last_seen"`
}

type Typing struct {
	UserId   string `json:"user_id" msgpack:"user_id"`
	Username string `json:"username" msgpack:"username"`
	Typing   bool   `json:"typing" msgpack:"typing"`
}
