package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/spacebook/internal/domain"
	"github.com/kirinyoku/spacebook/internal/repository"
)

// CachedAreas serves area capacity configuration from Redis, falling back to
// the wrapped repository. Bookings snapshot max capacity at creation, so a
// stale entry only affects admission until the TTL runs out.
type CachedAreas struct {
	inner repository.AreaRepository
	cache *Cache
	ttl   time.Duration
}

func NewCachedAreas(inner repository.AreaRepository, cache *Cache, ttl time.Duration) *CachedAreas {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return &CachedAreas{inner: inner, cache: cache, ttl: ttl}
}

func (a *CachedAreas) Get(ctx context.Context, id uuid.UUID) (*domain.Area, error) {
	const op = "redis.CachedAreas.Get"

	area, err := GetOrSetJSON(ctx, a.cache, KeyArea(id), a.ttl,
		func(ctx context.Context) (domain.Area, error) {
			ar, err := a.inner.Get(ctx, id)
			if err != nil {
				return domain.Area{}, err
			}
			return *ar, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &area, nil
}
