package mutate

import "github.com/lumeo/client/pkg/querycache"

// TxnState makes the three-phase protocol explicit: a transaction is Pending
// from the first Stage until it either Commits or RollsBack.
type TxnState int

const (
	TxnPending TxnState = iota
	TxnCommitted
	TxnRolledBack
)

type stagedKey struct {
	key     querycache.Key
	value   any
	existed bool
}

// Txn holds the pre-mutation snapshots of every cache key a mutation will
// touch. Rollback restores each staged key to exactly its staged value.
type Txn struct {
	cache  *querycache.Cache
	state  TxnState
	staged []stagedKey
}

func (c *Coordinator) begin() *Txn {
	return &Txn{cache: c.cache}
}

// Stage snapshots key, returning the staged value and whether one existed.
// Staging alone is free of side effects: a mutation that aborts before Apply
// (bad target, wrong shape) leaves any in-flight fetch for the key running.
func (t *Txn) Stage(key querycache.Key) (any, bool) {
	snap, ok := t.cache.Get(key)
	existed := ok && snap.Status == querycache.StatusSuccess
	t.staged = append(t.staged, stagedKey{key: key, value: snap.Value, existed: existed})
	if !existed {
		return nil, false
	}
	return snap.Value, true
}

// Apply cancels any in-flight fetch for key, then writes the optimistic
// value, so a read that was already running cannot clobber it. The key
// should have been staged first.
func (t *Txn) Apply(key querycache.Key, value any) {
	t.cache.CancelInFlight(key)
	t.cache.Set(key, value)
}

// Commit finalizes the optimistic values as the local truth until the next
// refetch or invalidation.
func (t *Txn) Commit() {
	t.state = TxnCommitted
}

// Rollback restores every staged key to its pre-mutation snapshot. Keys that
// had no value are removed again.
func (t *Txn) Rollback() {
	if t.state != TxnPending {
		return
	}
	for i := len(t.staged) - 1; i >= 0; i-- {
		s := t.staged[i]
		if s.existed {
			t.cache.Set(s.key, s.value)
		} else {
			t.cache.Remove(s.key)
		}
	}
	t.state = TxnRolledBack
}

func (t *Txn) State() TxnState {
	return t.state
}
