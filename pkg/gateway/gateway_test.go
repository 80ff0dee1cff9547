package gateway_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumeo/client/pkg/gateway"
	"github.com/lumeo/client/pkg/gatewaytest"
)

func newTestClient(t *testing.T) (*gateway.Client, *gatewaytest.Server) {
	t.Helper()
	gw := gatewaytest.New()
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)

	c, err := gateway.New(gateway.Config{BaseURL: srv.URL, APIKey: "anon-key"})
	require.NoError(t, err)
	return c, gw
}

func TestSelectFiltersOrderAndPaging(t *testing.T) {
	c, gw := newTestClient(t)
	gw.Seed("posts",
		map[string]any{"id": "p1", "author_id": "u1", "created_at": 100},
		map[string]any{"id": "p2", "author_id": "u2", "created_at": 200},
		map[string]any{"id": "p3", "author_id": "u1", "created_at": 300},
		map[string]any{"id": "p4", "author_id": "u1", "created_at": 400},
	)

	rows, err := c.Select(context.Background(), "posts", gateway.SelectOpts{
		Filters: map[string]string{"author_id": "u1"},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   2,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "p4", rows[0]["id"])
	assert.Equal(t, "p3", rows[1]["id"])

	rows, err = c.Select(context.Background(), "posts", gateway.SelectOpts{
		Filters: map[string]string{"author_id": "u1"},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   2,
		Offset:  2,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "p1", rows[0]["id"])
}

func TestSelectNoMatchesIsEmptyNotError(t *testing.T) {
	c, _ := newTestClient(t)
	rows, err := c.Select(context.Background(), "posts", gateway.SelectOpts{
		Filters: map[string]string{"author_id": "nobody"},
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestInsertAssignsServerFields(t *testing.T) {
	c, gw := newTestClient(t)

	row, err := c.Insert(context.Background(), "comments", gateway.Row{
		"target_id": "p1",
		"text":      "nice shot",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, row["id"], "server assigns the id")
	assert.NotNil(t, row["created_at"])
	assert.Equal(t, "nice shot", row["text"])

	stored := gw.Rows("comments")
	require.Len(t, stored, 1)
	assert.Equal(t, row["id"], stored[0]["id"])
}

func TestUpdateAndDelete(t *testing.T) {
	c, gw := newTestClient(t)
	gw.Seed("messages",
		map[string]any{"id": "m1", "receiver_id": "u1", "read": false},
		map[string]any{"id": "m2", "receiver_id": "u1", "read": false},
		map[string]any{"id": "m3", "receiver_id": "u2", "read": false},
	)

	updated, err := c.Update(context.Background(), "messages",
		map[string]string{"receiver_id": "u1"}, gateway.Row{"read": true})
	require.NoError(t, err)
	assert.Len(t, updated, 2)

	require.NoError(t, c.Delete(context.Background(), "messages",
		map[string]string{"id": "m3"}))
	assert.Len(t, gw.Rows("messages"), 2)
}

func TestWriteFailureSurfacesStatusError(t *testing.T) {
	c, gw := newTestClient(t)
	gw.FailNext("post_likes", 503)

	_, err := c.Insert(context.Background(), "post_likes", gateway.Row{"post_id": "p1"})
	var serr *gateway.StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 503, serr.Code)

	// One-shot: the next write goes through.
	_, err = c.Insert(context.Background(), "post_likes", gateway.Row{"post_id": "p1"})
	require.NoError(t, err)
}

func TestRPC(t *testing.T) {
	c, gw := newTestClient(t)
	gw.HandleRPC("increment_view_count", func(args map[string]any) any {
		return map[string]any{"target_id": args["target_id"]}
	})

	raw, err := c.RPC(context.Background(), "increment_view_count", map[string]any{
		"target_kind": "post", "target_id": "p1",
	})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "p1")
	assert.Equal(t, []string{"increment_view_count"}, gw.RPCCalls())
}

func TestUploadRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	data := []byte("not really a jpeg")

	url, err := c.Upload(context.Background(), "media", "u1/avatar.jpg", data, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, c.PublicURL("media", "u1/avatar.jpg"), url)

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestSessionWatchers(t *testing.T) {
	c, _ := newTestClient(t)
	assert.Nil(t, c.Session())

	var seen []*gateway.Session
	unsub := c.OnAuthStateChange(func(s *gateway.Session) {
		seen = append(seen, s)
	})

	c.SetSession(&gateway.Session{UserId: "u1", Username: "ada", AccessToken: "tok"})
	require.NotNil(t, c.Session())
	assert.Equal(t, "u1", c.Session().UserId)

	c.SetSession(nil)
	assert.Nil(t, c.Session())
	require.Len(t, seen, 2)
	assert.Nil(t, seen[1])

	unsub()
	c.SetSession(&gateway.Session{UserId: "u2"})
	assert.Len(t, seen, 2, "unsubscribed watcher no longer fires")
}

func TestSessionCopyIsolation(t *testing.T) {
	c, _ := newTestClient(t)
	c.SetSession(&gateway.Session{UserId: "u1"})

	s := c.Session()
	s.UserId = "tampered"
	assert.Equal(t, "u1", c.Session().UserId, "callers get a copy, not the shared state")
}
