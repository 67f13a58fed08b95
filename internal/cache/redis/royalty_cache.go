package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avendale/tradepost/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Attributions are write-once, so cached entries can never go stale. The TTL
// only bounds memory held by units that stop trading.
const royaltyTTL = 6 * time.Hour

// RoyaltyCache implements domain.RoyaltyCache using Redis hashes with JSON-
// serialized attribution data.
//
// Key schema:
//
//	royalty:{collection}:{unit} - hash with field "data" containing JSON
type RoyaltyCache struct {
	rdb *redis.Client
}

// NewRoyaltyCache creates a RoyaltyCache backed by the given Client.
func NewRoyaltyCache(c *Client) *RoyaltyCache {
	return &RoyaltyCache{rdb: c.Underlying()}
}

func royaltyKey(asset domain.AssetKey) string { return "royalty:" + asset.String() }

// Set stores an attribution in the cache. Only successfully registered
// attributions should be cached; absence must keep falling through to the
// store so first registration is observed.
func (rc *RoyaltyCache) Set(ctx context.Context, r domain.RoyaltyAttribution) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("redis: marshal royalty %s: %w", r.Asset(), err)
	}

	key := royaltyKey(r.Asset())

	pipe := rc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, royaltyTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set royalty %s: %w", r.Asset(), err)
	}
	return nil
}

// Get retrieves an attribution by asset key from the cache.
// It returns domain.ErrNotFound when the key does not exist.
func (rc *RoyaltyCache) Get(ctx context.Context, asset domain.AssetKey) (domain.RoyaltyAttribution, error) {
	data, err := rc.rdb.HGet(ctx, royaltyKey(asset), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.RoyaltyAttribution{}, domain.ErrNotFound
		}
		return domain.RoyaltyAttribution{}, fmt.Errorf("redis: get royalty %s: %w", asset, err)
	}

	var r domain.RoyaltyAttribution
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.RoyaltyAttribution{}, fmt.Errorf("redis: unmarshal royalty %s: %w", asset, err)
	}
	return r, nil
}

// Compile-time interface check.
var _ domain.RoyaltyCache = (*RoyaltyCache)(nil)
