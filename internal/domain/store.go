package domain

import (
	"context"
	"io"
	"time"
)

// MarketStore persists market snapshots for the local read model.
type MarketStore interface {
	Upsert(ctx context.Context, m Market) error
	UpsertBatch(ctx context.Context, markets []Market) error
	Get(ctx context.Context, id string) (Market, error)
	// List returns markets ordered by creation time descending.
	List(ctx context.Context, limit, offset int) ([]Market, error)
	ListResolvedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Market, error)
}

// BetStore persists bet snapshots for the local read model.
type BetStore interface {
	Upsert(ctx context.Context, b Bet) error
	ListByMarket(ctx context.Context, marketID string) ([]Bet, error)
}

// BlobWriter uploads an object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver writes resolved-market history out of the hot read model.
type Archiver interface {
	ArchiveResolved(ctx context.Context, markets []Market) (string, error)
}
