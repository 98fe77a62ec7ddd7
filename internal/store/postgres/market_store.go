package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GauravKarakoti/ConwayBets/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const upsertMarketQuery = `
	INSERT INTO markets (
		id, title, description, creator, end_time,
		outcomes, total_liquidity, resolved, winning_outcome,
		fingerprint, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9,
		$10, $11, NOW()
	)
	ON CONFLICT (id) DO UPDATE SET
		title           = EXCLUDED.title,
		description     = EXCLUDED.description,
		end_time        = EXCLUDED.end_time,
		outcomes        = EXCLUDED.outcomes,
		total_liquidity = EXCLUDED.total_liquidity,
		resolved        = EXCLUDED.resolved,
		winning_outcome = EXCLUDED.winning_outcome,
		fingerprint     = EXCLUDED.fingerprint,
		updated_at      = NOW()
	WHERE markets.fingerprint IS DISTINCT FROM EXCLUDED.fingerprint`

func upsertArgs(m domain.Market) []any {
	return []any{
		m.ID, m.Title, m.Description, m.Creator, m.EndTime,
		m.Outcomes, m.TotalLiquidity, m.Resolved, m.WinningOutcome,
		m.Fingerprint, m.CreatedAt,
	}
}

// Upsert inserts or updates a single market snapshot. Rows whose fingerprint
// already matches are left untouched.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	if _, err := s.pool.Exec(ctx, upsertMarketQuery, upsertArgs(m)...); err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	return nil
}

// UpsertBatch upserts a page of markets in a single batch round trip.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range markets {
		batch.Queue(upsertMarketQuery, upsertArgs(m)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range markets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert market batch item %d: %w", i, err)
		}
	}
	return nil
}

const marketCols = `id, title, description, creator, end_time,
	outcomes, total_liquidity, resolved, winning_outcome,
	fingerprint, created_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var endTime, createdAt *time.Time
	err := row.Scan(
		&m.ID, &m.Title, &m.Description, &m.Creator, &endTime,
		&m.Outcomes, &m.TotalLiquidity, &m.Resolved, &m.WinningOutcome,
		&m.Fingerprint, &createdAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	if endTime != nil {
		m.EndTime = *endTime
	}
	if createdAt != nil {
		m.CreatedAt = *createdAt
	}
	return m, nil
}

// Get retrieves a market snapshot by its primary key.
func (s *MarketStore) Get(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List returns market snapshots ordered by creation time descending, the same
// order the node serves its pages in.
func (s *MarketStore) List(ctx context.Context, limit, offset int) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()
	return collectMarkets(rows)
}

// ListResolvedBefore returns resolved markets whose end time passed before
// the cutoff; the archiver drains these out of the hot read model.
func (s *MarketStore) ListResolvedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets
		 WHERE resolved AND end_time < $1
		 ORDER BY end_time ASC LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolved markets: %w", err)
	}
	defer rows.Close()
	return collectMarkets(rows)
}

func collectMarkets(rows pgx.Rows) ([]domain.Market, error) {
	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: market rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of market snapshots.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
