package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache is a read-through JSON cache. Redis is treated as best effort: a
// failed read or write degrades to calling the loader, never to an error.
type Cache struct {
	rdb *redis.Client
	sf  singleflight.Group
}

func New(client *redis.Client) *Cache {
	return &Cache{rdb: client}
}

func (c *Cache) lookup(ctx context.Context, key string, dst any) bool {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}

	return json.Unmarshal(b, dst) == nil
}

func (c *Cache) store(ctx context.Context, key string, v any, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}

	_ = c.rdb.Set(ctx, key, b, ttl).Err()
}

// GetOrSetJSON returns the cached value for key or loads, stores and returns
// it. Concurrent misses for the same key share one loader call. Loader
// errors are returned as-is and never cached.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	var out T
	if c.lookup(ctx, key, &out) {
		return out, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		var again T
		if c.lookup(ctx, key, &again) {
			return again, nil
		}

		loaded, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, loaded, ttl)

		return loaded, nil
	})
	if err != nil {
		return out, err
	}

	res, ok := v.(T)
	if !ok {
		return out, errors.New("redis.GetOrSetJSON: unexpected shared result type")
	}

	return res, nil
}
