package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateCachePrefix = "exchange:rate:latest:"

// RateCache keeps the latest snapshot per pair in Redis so quotes avoid a
// database round trip.
type RateCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRateCache returns nil when rdb is nil; a nil cache is a no-op.
func NewRateCache(rdb *redis.Client, ttl time.Duration) *RateCache {
	if rdb == nil {
		return nil
	}
	return &RateCache{rdb: rdb, ttl: ttl}
}

// Get returns ErrRateNotFound on a miss.
func (c *RateCache) Get(ctx context.Context, pair Pair) (RateSnapshot, error) {
	if c == nil {
		return RateSnapshot{}, ErrRateNotFound
	}
	raw, err := c.rdb.Get(ctx, rateCachePrefix+pair.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return RateSnapshot{}, ErrRateNotFound
	}
	if err != nil {
		return RateSnapshot{}, fmt.Errorf("read cached rate: %w", err)
	}
	var s RateSnapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return RateSnapshot{}, fmt.Errorf("decode cached rate: %w", err)
	}
	return s, nil
}

// Put stores s unless a newer snapshot is already cached.
func (c *RateCache) Put(ctx context.Context, s RateSnapshot) error {
	if c == nil {
		return nil
	}
	pair := Pair{From: s.From, To: s.To}
	if current, err := c.Get(ctx, pair); err == nil && current.Timestamp.After(s.Timestamp) {
		return nil
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode rate: %w", err)
	}
	return c.rdb.Set(ctx, rateCachePrefix+pair.String(), payload, c.ttl).Err()
}
