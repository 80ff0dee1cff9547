package structs

// UserSnapshot is the denormalized author/actor block embedded in posts,
// comments and notifications. It is a point-in-time copy, not a live join.
type UserSnapshot struct {
	Id          string `json:"id" msgpack:"id"`
	Username    string `json:"username" msgpack:"username"`
	DisplayName string `json:"display_name" msgpack:"display_name"`
	Avatar      string `json:"avatar" msgpack:"avatar"`
	Verified    bool   `json:"verified" msgpack:"verified"`
}

// Profile is the full profile view, including the counters shown on the
// profile page. FollowingCount is the only counter mutated optimistically.
type Profile struct {
	UserSnapshot `msgpack:",inline"`

	Bio            string `json:"bio" msgpack:"bio"`
	Website        string `json:"website" msgpack:"website"`
	PostCount      int64  `json:"post_count" msgpack:"post_count"`
	FollowerCount  int64  `json:"follower_count" msgpack:"follower_count"`
	FollowingCount int64  `json:"following_count" msgpack:"following_count"`

	// Viewer-relative; false on the viewer's own profile.
	IsFollowing bool `json:"is_following" msgpack:"is_following"`
}
