package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"scoreboard-service/internal/domain"
)

// KeyLoader fetches answer keys from a backing store (e.g., Postgres).
type KeyLoader interface {
	LoadKey(ctx context.Context, taskID string) ([][]string, error)
}

// KeyWriter persists answer key changes to a backing store.
type KeyWriter interface {
	SaveKey(ctx context.Context, taskID string, rows [][]string) error
	DeleteKey(ctx context.Context, taskID string) error
}

// KeyStore implements app.KeyRepository in memory. With a loader it acts as
// a TTL cache over the backing store; without one it is the authoritative
// key store. Locally set keys never expire.
type KeyStore struct {
	loader KeyLoader // optional
	writer KeyWriter // optional
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedKey
}

type cachedKey struct {
	rows      [][]string
	expiresAt time.Time // zero means never
}

func NewKeyStore(loader KeyLoader, writer KeyWriter, ttl time.Duration) *KeyStore {
	return &KeyStore{
		loader: loader,
		writer: writer,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedKey),
	}
}

func (s *KeyStore) GetKey(ctx context.Context, taskID string) ([][]string, error) {
	now := s.clock()

	s.mu.RLock()
	if entry, ok := s.cache[taskID]; ok && entry.live(now) {
		s.mu.RUnlock()
		return entry.rows, nil
	}
	s.mu.RUnlock()

	if s.loader == nil {
		return nil, domain.ErrKeyNotSet
	}

	result, err, _ := s.sf.Do(taskID, func() (interface{}, error) {
		now := s.clock()
		s.mu.RLock()
		if entry, ok := s.cache[taskID]; ok && entry.live(now) {
			s.mu.RUnlock()
			return entry.rows, nil
		}
		s.mu.RUnlock()

		rows, err := s.loader.LoadKey(ctx, taskID)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.cache[taskID] = cachedKey{rows: rows, expiresAt: now.Add(s.ttlWithJitter())}
		s.mu.Unlock()
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([][]string), nil
}

func (s *KeyStore) SetKey(ctx context.Context, taskID string, rows [][]string) error {
	if s.writer != nil {
		if err := s.writer.SaveKey(ctx, taskID, rows); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.cache[taskID] = cachedKey{rows: rows}
	s.mu.Unlock()
	return nil
}

func (s *KeyStore) DeleteKey(ctx context.Context, taskID string) error {
	if s.writer != nil {
		if err := s.writer.DeleteKey(ctx, taskID); err != nil {
			return err
		}
	}
	s.mu.Lock()
	delete(s.cache, taskID)
	s.mu.Unlock()
	return nil
}

func (e cachedKey) live(now time.Time) bool {
	return e.expiresAt.IsZero() || e.expiresAt.After(now)
}

func (s *KeyStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(s.ttl) / 10
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}

// StaticKeyLoader is a loader backed by a fixed map (useful for tests).
type StaticKeyLoader struct {
	keys map[string][][]string
}

func NewStaticKeyLoader(keys map[string][][]string) *StaticKeyLoader {
	return &StaticKeyLoader{keys: keys}
}

func (l *StaticKeyLoader) LoadKey(_ context.Context, taskID string) ([][]string, error) {
	if rows, ok := l.keys[taskID]; ok {
		return rows, nil
	}
	return nil, domain.ErrKeyNotSet
}
