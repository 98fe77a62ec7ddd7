package domain

import (
	"context"
	"time"
)

// MarketCache is a shared snapshot cache for markets, kept fresh from feed
// pages and live updates.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id string) (Market, error)
	Invalidate(ctx context.Context, id string) error
}

// LockManager hands out distributed locks so only one mirror writer runs per
// deployment. Acquire returns ErrLockHeld when another holder owns the key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
