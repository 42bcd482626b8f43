package middleware

import (
	"context"
	"time"

	"github.com/charlesng35/fanout/internal/cache"
)

// RateStore coordinates rate limiting counters for a specific key.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

type storeRateStore struct {
	store cache.Store
}

// NewRateStore adapts a cache store (memory, redis or database) to a RateStore. A nil store
// falls back to process memory.
func NewRateStore(store cache.Store) RateStore {
	if store == nil {
		store = cache.NewMemoryStore()
	}
	return &storeRateStore{store: store}
}

func (s *storeRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	count, ttl, err := s.store.IncrementWithTTL(ctx, "ratelimit:"+key, window)
	return int(count), ttl, err
}
