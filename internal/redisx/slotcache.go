// Package redisx provides the optional Redis-backed cache for the hot
// current-slot lookup.
package redisx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xenking/timeseats/internal/domain/slot"
)

const currentSlotKey = "timeseats:slot:current"

// New creates a Redis client for the given address.
func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// SlotCache caches the resolved current slot. Cache misses and Redis errors
// both fall through to the scheduler; the cache is an optimization, never a
// source of truth.
type SlotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSlotCache creates a SlotCache with the given default TTL.
func NewSlotCache(rdb *redis.Client, ttl time.Duration) *SlotCache {
	return &SlotCache{rdb: rdb, ttl: ttl}
}

// GetCurrent returns the cached current slot, if any.
func (c *SlotCache) GetCurrent(ctx context.Context) (*slot.SalesSlot, bool) {
	data, err := c.rdb.Get(ctx, currentSlotKey).Bytes()
	if err != nil {
		return nil, false
	}
	var s slot.SalesSlot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false
	}
	// A cached slot that has meanwhile ended is stale regardless of TTL.
	if !s.Contains(time.Now()) {
		return nil, false
	}
	return &s, true
}

// SetCurrent stores the current slot. The entry's TTL never outlives the
// slot itself.
func (c *SlotCache) SetCurrent(ctx context.Context, s *slot.SalesSlot) {
	ttl := c.ttl
	if remaining := time.Until(s.EndTime); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, currentSlotKey, data, ttl).Err()
}

// Invalidate drops the cached entry. Called after any slot mutation.
func (c *SlotCache) Invalidate(ctx context.Context) {
	_ = c.rdb.Del(ctx, currentSlotKey).Err()
}
