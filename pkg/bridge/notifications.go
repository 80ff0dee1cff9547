package bridge

import (
	"sync"

	"github.com/lumeo/client/pkg/gateway"
	"github.com/lumeo/client/pkg/normalize"
	"github.com/lumeo/client/pkg/querycache"
	"github.com/lumeo/client/pkg/realtime"
	"github.com/lumeo/client/pkg/structs"
)

// NotificationsSub folds inserted notification rows for the viewer into the
// notifications cache key.
type NotificationsSub struct {
	bridge   *Bridge
	channel  EventSource
	notifKey querycache.Key
	viewerId string

	closeOnce sync.Once
	done      chan struct{}
}

func (b *Bridge) Notifications(channel EventSource, notifKey querycache.Key, viewerId string) *NotificationsSub {
	s := &NotificationsSub{
		bridge:   b,
		channel:  channel,
		notifKey: notifKey,
		viewerId: viewerId,
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *NotificationsSub) run() {
	defer close(s.done)
	for ev := range s.channel.Events() {
		e, ok := ev.(realtime.RowEvent)
		if !ok || e.Kind != realtime.RowInserted || e.Table != "notifications" {
			continue
		}
		// Only the viewer's own notifications belong under this key; a row
		// fanned out for someone else must not leak in.
		if recipient, _ := e.Row["recipient_id"].(string); recipient != s.viewerId {
			continue
		}
		n, err := normalize.Notification(gateway.Row(e.Row))
		if err != nil {
			s.bridge.dropPayload(s.channel.Topic(), err)
			continue
		}
		s.prepend(n)
	}
}

func (s *NotificationsSub) prepend(n structs.Notification) {
	snap, ok := s.bridge.cache.Get(s.notifKey)
	var paged querycache.Paged[structs.Notification]
	if ok {
		paged, _ = snap.Value.(querycache.Paged[structs.Notification])
	}
	for _, page := range paged.Pages {
		for _, existing := range page {
			if existing.Id == n.Id {
				return
			}
		}
	}
	s.bridge.cache.Set(s.notifKey, paged.PrependToFirstPage(n))
}

func (s *NotificationsSub) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.channel.Close()
		<-s.done
	})
	return err
}
