package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
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

// KeyCache implements app.KeyRepository on Redis. Keys are cached as a JSON
// blob per task (SET task:{taskID}:key) with TTL, falling back to a loader
// on cache miss. Without a loader/writer pair, Redis itself is the
// authoritative store and entries are written without expiry.
type KeyCache struct {
	client *redis.Client
	loader KeyLoader // optional
	writer KeyWriter // optional
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewKeyCache(client *redis.Client, loader KeyLoader, writer KeyWriter, ttl time.Duration) *KeyCache {
	return &KeyCache{
		client: client,
		loader: loader,
		writer: writer,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *KeyCache) GetKey(ctx context.Context, taskID string) ([][]string, error) {
	cached, err := c.client.Get(ctx, c.key(taskID)).Result()
	if err == nil {
		return decodeRows(cached)
	}
	if !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if c.loader == nil {
		return nil, domain.ErrKeyNotSet
	}

	result, err, _ := c.sf.Do(taskID, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		cached, err := c.client.Get(ctx, c.key(taskID)).Result()
		if err == nil {
			return decodeRows(cached)
		}

		rows, err := c.loader.LoadKey(ctx, taskID)
		if err != nil {
			return nil, err
		}
		_ = c.cacheRows(ctx, taskID, rows, c.ttlWithJitter())
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([][]string), nil
}

func (c *KeyCache) SetKey(ctx context.Context, taskID string, rows [][]string) error {
	if c.writer != nil {
		if err := c.writer.SaveKey(ctx, taskID, rows); err != nil {
			return err
		}
		return c.cacheRows(ctx, taskID, rows, c.ttlWithJitter())
	}
	// Authoritative in Redis: no expiry.
	return c.cacheRows(ctx, taskID, rows, 0)
}

func (c *KeyCache) DeleteKey(ctx context.Context, taskID string) error {
	if c.writer != nil {
		if err := c.writer.DeleteKey(ctx, taskID); err != nil {
			return err
		}
	}
	return c.client.Del(ctx, c.key(taskID)).Err()
}

func (c *KeyCache) cacheRows(ctx context.Context, taskID string, rows [][]string, ttl time.Duration) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(taskID), data, ttl).Err()
}

func (c *KeyCache) key(taskID string) string {
	return "task:" + taskID + ":key"
}

func decodeRows(cached string) ([][]string, error) {
	var rows [][]string
	if err := json.Unmarshal([]byte(cached), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *KeyCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
