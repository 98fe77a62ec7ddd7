package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GauravKarakoti/ConwayBets/internal/domain"
)

const marketTTL = 5 * time.Minute

// MarketCache implements domain.MarketCache using Redis hashes with JSON-
// serialized Market snapshots. The market's state fingerprint is stored in a
// separate hash field so a write-through from a live update can skip the
// serialization and write when nothing observable changed.
//
// Key schema:
//
//	market:{id} - hash with fields "data" (JSON) and "fingerprint"
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.rdb}
}

func marketKey(id string) string { return "market:" + id }

// Set stores a Market snapshot with a 5-minute TTL. When the cached
// fingerprint matches the incoming one the write is skipped entirely; the TTL
// is still refreshed so hot markets do not expire between identical updates.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	key := marketKey(market.ID)

	if market.Fingerprint != "" {
		cached, err := mc.rdb.HGet(ctx, key, "fingerprint").Result()
		if err == nil && cached == market.Fingerprint {
			if err := mc.rdb.Expire(ctx, key, marketTTL).Err(); err != nil {
				return fmt.Errorf("redis: refresh market %s: %w", market.ID, err)
			}
			return nil
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis: fingerprint market %s: %w", market.ID, err)
		}
	}

	data, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", market.ID, err)
	}

	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data, "fingerprint", market.Fingerprint)
	pipe.Expire(ctx, key, marketTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %s: %w", market.ID, err)
	}
	return nil
}

// Get retrieves a Market snapshot by its ID.
// It returns domain.ErrNotFound when the key does not exist.
func (mc *MarketCache) Get(ctx context.Context, id string) (domain.Market, error) {
	data, err := mc.rdb.HGet(ctx, marketKey(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", id, err)
	}

	var market domain.Market
	if err := json.Unmarshal(data, &market); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", id, err)
	}
	return market, nil
}

// Invalidate removes a Market snapshot from the cache.
func (mc *MarketCache) Invalidate(ctx context.Context, id string) error {
	if err := mc.rdb.Del(ctx, marketKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
