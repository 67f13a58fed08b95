package domain

import (
	"context"
	"time"
)

// LockManager provides distributed locking. Acquire returns an idempotent
// unlock closure; a key already held surfaces ErrLockHeld.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RoyaltyCache is a read-through cache for royalty attributions. Attributions
// are write-once, so a positive cache entry can never go stale; misses fall
// through to the store.
type RoyaltyCache interface {
	Get(ctx context.Context, asset AssetKey) (RoyaltyAttribution, error)
	Set(ctx context.Context, r RoyaltyAttribution) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// StreamMessage represents a single entry from the durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// EventBus carries ledger events: a durable stream for indexer catch-up and
// pub/sub channels for live consumers.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
