// Package querycache is the single source of truth for query results: one
// snapshot per key, with status and staleness, optional durable persistence
// for warm boots, and in-flight fetch cancellation for the optimistic
// mutation protocol.
package querycache

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Snapshot is a read-only view of one cache entry.
type Snapshot struct {
	Value  any
	Status Status
	Err    error
	Stale  bool
}

type entry struct {
	value  any
	status Status
	err    error
	stale  bool

	// gen is the fetch generation. CancelInFlight bumps it; a fetch started
	// under an older generation must not write its result.
	gen uint64
}

type Options struct {
	Logger *zap.Logger
	// Store enables durable persistence. The cache owns it and closes it.
	Store *Store
}

type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry

	watchers    map[Key]map[int]chan struct{}
	nextWatchId int

	store *Store
	log   *zap.Logger
}

func New(opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		entries:  make(map[Key]*entry),
		watchers: make(map[Key]map[int]chan struct{}),
		store:    opts.Store,
		log:      logger,
	}
}

// Get returns the current snapshot for key, reporting whether one exists.
func (c *Cache) Get(key Key) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{Value: e.value, Status: e.status, Err: e.err, Stale: e.stale}, true
}

// Set replaces the snapshot for key and marks it fresh. Used by the mutation
// coordinator for optimistic writes and by reconciliation. Persistence runs
// under the lock so the store sees writes in the same order memory does.
func (c *Cache) Set(key Key, value any) {
	c.mu.Lock()
	e := c.ensure(key)
	e.value = value
	e.status = StatusSuccess
	e.err = nil
	e.stale = false
	if c.store != nil {
		if err := c.store.put(key, value); err != nil {
			c.log.Warn("cache persist failed", zap.String("key", string(key)), zap.Error(err))
		}
	}
	c.mu.Unlock()
	c.notify(key)
}

// Invalidate marks key stale. The next active reader refetches; the stale
// value stays renderable until it does.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.stale = true
	}
	c.mu.Unlock()
	c.notify(key)
}

// Remove drops key entirely, including its persisted copy.
func (c *Cache) Remove(key Key) {
	c.mu.Lock()
	delete(c.entries, key)
	if c.store != nil {
		c.store.delete(key)
	}
	c.mu.Unlock()
	c.notify(key)
}

// CancelInFlight invalidates any fetch currently running for key so a stale
// read cannot clobber a value written after the cancel.
func (c *Cache) CancelInFlight(key Key) {
	c.mu.Lock()
	e := c.ensure(key)
	e.gen++
	if e.status == StatusLoading {
		e.status = StatusIdle
	}
	c.mu.Unlock()
}

// Fetch runs fn and stores its result under key, unless a fresh value is
// already present (in which case that value is returned as-is). If the fetch
// is canceled while fn runs, its result is discarded.
func (c *Cache) Fetch(ctx context.Context, key Key, fn func(context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	e := c.ensure(key)
	if e.status == StatusSuccess && !e.stale {
		v := e.value
		c.mu.Unlock()
		return v, nil
	}
	e.status = StatusLoading
	gen := e.gen
	c.mu.Unlock()
	c.notify(key)

	value, err := fn(ctx)

	c.mu.Lock()
	e = c.ensure(key)
	if e.gen != gen {
		// Canceled while in flight; whatever was written since wins.
		v, ferr := e.value, e.err
		c.mu.Unlock()
		return v, ferr
	}
	if err != nil {
		e.status = StatusError
		e.err = err
		c.mu.Unlock()
		c.notify(key)
		return nil, err
	}
	e.value = value
	e.status = StatusSuccess
	e.err = nil
	e.stale = false
	if c.store != nil {
		if perr := c.store.put(key, value); perr != nil {
			c.log.Warn("cache persist failed", zap.String("key", string(key)), zap.Error(perr))
		}
	}
	c.mu.Unlock()
	c.notify(key)
	return value, nil
}

// Warm restores key from the persisted store, if present and within the
// retention window. The restored value is marked stale so readers render it
// immediately and refetch behind it. decode receives the persisted bytes.
func (c *Cache) Warm(key Key, decode func([]byte) (any, error)) bool {
	if c.store == nil {
		return false
	}
	raw, ok := c.store.get(key)
	if !ok {
		return false
	}
	value, err := decode(raw)
	if err != nil {
		c.log.Warn("cache warm decode failed", zap.String("key", string(key)), zap.Error(err))
		c.store.delete(key)
		return false
	}

	c.mu.Lock()
	e := c.ensure(key)
	if e.status != StatusIdle {
		// A live fetch or write got there first; keep it.
		c.mu.Unlock()
		return false
	}
	e.value = value
	e.status = StatusSuccess
	e.stale = true
	c.mu.Unlock()
	c.notify(key)
	return true
}

// Watch returns a channel that receives a (coalesced) signal whenever key
// changes, plus a stop func. The channel is never closed by the cache.
func (c *Cache) Watch(key Key) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	c.mu.Lock()
	id := c.nextWatchId
	c.nextWatchId++
	if c.watchers[key] == nil {
		c.watchers[key] = make(map[int]chan struct{})
	}
	c.watchers[key][id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		delete(c.watchers[key], id)
		if len(c.watchers[key]) == 0 {
			delete(c.watchers, key)
		}
		c.mu.Unlock()
	}
}

// Close releases the persisted store, if any.
func (c *Cache) Close() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

func (c *Cache) ensure(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{status: StatusIdle}
		c.entries[key] = e
	}
	return e
}

func (c *Cache) notify(key Key) {
	c.mu.Lock()
	chans := make([]chan struct{}, 0, len(c.watchers[key]))
	for _, ch := range c.watchers[key] {
		chans = append(chans, ch)
	}
	c.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
