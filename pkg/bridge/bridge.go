// Package bridge folds realtime channel events into the query cache and
// derives the ephemeral presence/typing state. It is the only writer of that
// state; everything it owns dies with the subscription.
package bridge

import (
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/lumeo/client/pkg/querycache"
	"github.com/lumeo/client/pkg/realtime"
)

// EventSource is the part of a realtime channel the bridge consumes.
// *realtime.Channel satisfies it; tests use in-memory fakes.
type EventSource interface {
	Topic() string
	Events() <-chan realtime.Event
	Broadcast(event string, payload any) error
	Track(m realtime.Member) error
	Close() error
}

type Config struct {
	Cache  *querycache.Cache
	Logger *zap.Logger
	Clock  Clock
	// Hub, when set, receives malformed-payload diagnostics.
	Hub *sentry.Hub
}

type Bridge struct {
	cache *querycache.Cache
	log   *zap.Logger
	clock Clock
	hub   *sentry.Hub
}

func New(cfg Config) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	return &Bridge{
		cache: cfg.Cache,
		log:   logger,
		clock: clock,
		hub:   cfg.Hub,
	}
}

// dropPayload records a malformed realtime payload and moves on. The
// subscription must survive any payload shape; presence self-heals on the
// next full sync.
func (b *Bridge) dropPayload(topic string, err error) {
	b.log.Warn("dropping malformed realtime payload",
		zap.String("topic", topic), zap.Error(err))
	if b.hub != nil {
		b.hub.CaptureException(err)
	}
}
