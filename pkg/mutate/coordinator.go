// Package mutate executes user-initiated writes with the optimistic
// protocol: snapshot the touched cache keys, cancel in-flight fetches on
// them, apply the new value locally, then issue the remote write; failure
// restores the snapshots verbatim, success reconciles or invalidates.
package mutate

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lumeo/client/pkg/gateway"
	"github.com/lumeo/client/pkg/querycache"
)

// Remote is the gateway write surface the coordinator needs. *gateway.Client
// satisfies it.
type Remote interface {
	Insert(ctx context.Context, table string, row gateway.Row) (gateway.Row, error)
	Update(ctx context.Context, table string, filters map[string]string, patch gateway.Row) ([]gateway.Row, error)
	Delete(ctx context.Context, table string, filters map[string]string) error
	RPC(ctx context.Context, fn string, args map[string]any) (json.RawMessage, error)
}

// SessionSource yields the current viewer. *gateway.Client satisfies it.
type SessionSource interface {
	Session() *gateway.Session
}

type Config struct {
	Cache  *querycache.Cache
	Remote Remote
	Auth   SessionSource
	Logger *zap.Logger
}

type Coordinator struct {
	cache    *querycache.Cache
	remote   Remote
	auth     SessionSource
	log      *zap.Logger
	validate *validator.Validate
}

func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cache:    cfg.Cache,
		remote:   cfg.Remote,
		auth:     cfg.Auth,
		log:      logger,
		validate: validator.New(),
	}
}

// requireSession is the precondition for every mutation: it runs before any
// cache write so an action that cannot succeed never touches the cache.
func (c *Coordinator) requireSession() (*gateway.Session, error) {
	s := c.auth.Session()
	if s == nil {
		return nil, ErrNotAuthenticated
	}
	return s, nil
}
