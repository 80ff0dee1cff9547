package mutate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lumeo/client/pkg/gateway"
	"github.com/lumeo/client/pkg/querycache"
	"github.com/lumeo/client/pkg/structs"
)

// fakeRemote records writes and fails on demand.
type fakeRemote struct {
	failNext error

	inserts []remoteCall
	updates []remoteCall
	deletes []remoteCall
	rpcs    []string

	// insertResult, when set, is returned from Insert; otherwise the input
	// row comes back with a server id.
	insertResult gateway.Row
	seq          int
}

type remoteCall struct {
	table   string
	row     gateway.Row
	filters map[string]string
}

func (f *fakeRemote) consumeFailure() error {
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeRemote) Insert(ctx context.Context, table string, row gateway.Row) (gateway.Row, error) {
	if err := f.consumeFailure(); err != nil {
		return nil, err
	}
	f.inserts = append(f.inserts, remoteCall{table: table, row: row})
	if f.insertResult != nil {
		return f.insertResult, nil
	}
	f.seq++
	out := gateway.Row{}
	for k, v := range row {
		out[k] = v
	}
	out["id"] = fmt.Sprintf("srv-%d", f.seq)
	return out, nil
}

func (f *fakeRemote) Update(ctx context.Context, table string, filters map[string]string, patch gateway.Row) ([]gateway.Row, error) {
	if err := f.consumeFailure(); err != nil {
		return nil, err
	}
	f.updates = append(f.updates, remoteCall{table: table, row: patch, filters: filters})
	return []gateway.Row{patch}, nil
}

func (f *fakeRemote) Delete(ctx context.Context, table string, filters map[string]string) error {
	if err := f.consumeFailure(); err != nil {
		return err
	}
	f.deletes = append(f.deletes, remoteCall{table: table, filters: filters})
	return nil
}

func (f *fakeRemote) RPC(ctx context.Context, fn string, args map[string]any) (json.RawMessage, error) {
	if err := f.consumeFailure(); err != nil {
		return nil, err
	}
	f.rpcs = append(f.rpcs, fn)
	return json.RawMessage(`{}`), nil
}

type fakeAuth struct {
	sess *gateway.Session
}

func (f *fakeAuth) Session() *gateway.Session {
	return f.sess
}

var errRemoteDown = errors.New("remote down")

func newTestCoordinator() (*Coordinator, *querycache.Cache, *fakeRemote) {
	cache := querycache.New(querycache.Options{})
	remote := &fakeRemote{}
	c := New(Config{
		Cache:  cache,
		Remote: remote,
		Auth:   &fakeAuth{sess: &gateway.Session{UserId: "u1", Username: "ada"}},
	})
	return c, cache, remote
}

func feedWith(posts ...structs.Post) querycache.Paged[structs.Post] {
	return querycache.Paged[structs.Post]{}.AppendPage(posts)
}

func postIn(cache *querycache.Cache, key querycache.Key, postId string) (structs.Post, bool) {
	snap, ok := cache.Get(key)
	if !ok {
		return structs.Post{}, false
	}
	paged, ok := snap.Value.(querycache.Paged[structs.Post])
	if !ok {
		return structs.Post{}, false
	}
	for _, p := range paged.Flatten() {
		if p.Id == postId {
			return p, true
		}
	}
	return structs.Post{}, false
}
