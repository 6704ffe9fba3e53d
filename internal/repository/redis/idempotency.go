package redis

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idemLock      = "LOCK"
	idemResPrefix = "RES:"
)

// IdempotencyStore remembers the response of a request keyed by its
// Idempotency-Key header. A key is first locked, then replaced by the result.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

func (s *IdempotencyStore) AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, idemLock, lockTTL).Result()
}

// SaveResult stores payload under key. status is kept alongside so a replay
// answers with the original status code.
func (s *IdempotencyStore) SaveResult(ctx context.Context, key string, status int, jsonPayload string) error {
	val := idemResPrefix + strconv.Itoa(status) + ":" + jsonPayload
	return s.rdb.Set(ctx, key, val, s.ttl).Err()
}

func (s *IdempotencyStore) GetResult(ctx context.Context, key string) (int, string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, err
	}
	if !strings.HasPrefix(v, idemResPrefix) {
		return 0, "", false, nil
	}

	rest := strings.TrimPrefix(v, idemResPrefix)
	code, payload, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, "", false, nil
	}

	n, err := strconv.Atoi(code)
	if err != nil {
		return 0, "", false, nil
	}

	return n, payload, true, nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
