package gateway

import "sync"

// Session is the authenticated viewer. Sign-in/sign-up flows live in the
// hosted platform; this client only carries the resulting token.
type Session struct {
	UserId      string `json:"user_id"`
	Username    string `json:"username"`
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

type authState struct {
	mu       sync.RWMutex
	session  *Session
	watchers map[int]func(*Session)
	nextId   int
}

// Session returns the current session, or nil when signed out.
func (c *Client) Session() *Session {
	c.auth.mu.RLock()
	defer c.auth.mu.RUnlock()
	if c.auth.session == nil {
		return nil
	}
	s := *c.auth.session
	return &s
}

// SetSession installs (or, with nil, clears) the session and notifies
// auth-state watchers.
func (c *Client) SetSession(s *Session) {
	c.auth.mu.Lock()
	if s != nil {
		copied := *s
		c.auth.session = &copied
	} else {
		c.auth.session = nil
	}
	watchers := make([]func(*Session), 0, len(c.auth.watchers))
	for _, fn := range c.auth.watchers {
		watchers = append(watchers, fn)
	}
	c.auth.mu.Unlock()

	for _, fn := range watchers {
		fn(s)
	}
}

// OnAuthStateChange registers fn to run on every session change. The
// returned func unregisters it.
func (c *Client) OnAuthStateChange(fn func(*Session)) func() {
	c.auth.mu.Lock()
	if c.auth.watchers == nil {
		c.auth.watchers = make(map[int]func(*Session))
	}
	id := c.auth.nextId
	c.auth.nextId++
	c.auth.watchers[id] = fn
	c.auth.mu.Unlock()

	return func() {
		c.auth.mu.Lock()
		delete(c.auth.watchers, id)
		c.auth.mu.Unlock()
	}
}
