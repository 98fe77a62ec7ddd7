package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GauravKarakoti/ConwayBets/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

// Upsert inserts or updates a bet snapshot. Status never moves backward: an
// update carrying an earlier lifecycle stage than the stored row is ignored.
func (s *BetStore) Upsert(ctx context.Context, b domain.Bet) error {
	const query = `
		INSERT INTO bets (
			id, market_id, bettor, outcome_index, amount,
			odds, status, placed_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			odds       = EXCLUDED.odds,
			status     = EXCLUDED.status,
			updated_at = NOW()
		WHERE array_position(ARRAY['pending','confirmed','resolved'], bets.status)
		    < array_position(ARRAY['pending','confirmed','resolved'], EXCLUDED.status)`

	_, err := s.pool.Exec(ctx, query,
		b.ID, b.MarketID, b.Bettor, b.OutcomeIndex, b.Amount,
		b.Odds, string(b.Status), b.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert bet %s: %w", b.ID, err)
	}
	return nil
}

// ListByMarket returns the bets recorded for one market, oldest first.
func (s *BetStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, bettor, outcome_index, amount, odds, status, placed_at
		 FROM bets WHERE market_id = $1 ORDER BY placed_at ASC`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for market %s: %w", marketID, err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		var b domain.Bet
		var status string
		if err := rows.Scan(
			&b.ID, &b.MarketID, &b.Bettor, &b.OutcomeIndex, &b.Amount,
			&b.Odds, &status, &b.PlacedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		b.Status = domain.BetStatus(status)
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: bet rows: %w", err)
	}
	return bets, nil
}

// Compile-time interface check.
var _ domain.BetStore = (*BetStore)(nil)
