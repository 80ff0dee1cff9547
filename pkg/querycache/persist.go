package querycache

import (
	"errors"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Store persists cache values to a local pebble database so a fresh process
// can render last-known data before its first refetch. Entries older than
// the retention window are treated as absent and deleted on read.
type Store struct {
	db     *pebble.DB
	maxAge time.Duration
	log    *zap.Logger
	now    func() time.Time
}

type persistedEntry struct {
	SavedAt int64              `msgpack:"saved_at"`
	Value   msgpack.RawMessage `msgpack:"value"`
}

func OpenStore(path string, maxAge time.Duration, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	logger.Info("cache store opened", zap.String("path", path))
	return &Store{db: db, maxAge: maxAge, log: logger, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) put(key Key, value any) error {
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return err
	}
	rec, err := msgpack.Marshal(persistedEntry{
		SavedAt: s.now().UnixMilli(),
		Value:   raw,
	})
	if err != nil {
		return err
	}
	return s.db.Set(storeKey(key), rec, pebble.NoSync)
}

// get returns the persisted value bytes for key if present and still within
// the retention window.
func (s *Store) get(key Key) ([]byte, bool) {
	raw, closer, err := s.db.Get(storeKey(key))
	if err != nil {
		if !errors.Is(err, pebble.ErrNotFound) {
			s.log.Warn("cache store read failed", zap.String("key", string(key)), zap.Error(err))
		}
		return nil, false
	}
	rec := make([]byte, len(raw))
	copy(rec, raw)
	closer.Close()

	var entry persistedEntry
	if err := msgpack.Unmarshal(rec, &entry); err != nil {
		s.log.Warn("cache store entry corrupt", zap.String("key", string(key)), zap.Error(err))
		s.delete(key)
		return nil, false
	}
	if s.maxAge > 0 {
		age := s.now().Sub(time.UnixMilli(entry.SavedAt))
		if age > s.maxAge {
			s.delete(key)
			return nil, false
		}
	}
	return entry.Value, true
}

func (s *Store) delete(key Key) {
	if err := s.db.Delete(storeKey(key), pebble.NoSync); err != nil {
		s.log.Warn("cache store delete failed", zap.String("key", string(key)), zap.Error(err))
	}
}

func storeKey(key Key) []byte {
	return append([]byte("q:"), key...)
}
