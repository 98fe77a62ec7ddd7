package domain

import (
	"fmt"
	"strconv"
	"time"
)

// BetStatus is the lifecycle state of a bet. Status only moves forward:
// pending -> confirmed -> resolved.
type BetStatus string

const (
	BetStatusPending   BetStatus = "pending"
	BetStatusConfirmed BetStatus = "confirmed"
	BetStatusResolved  BetStatus = "resolved"
)

// rank orders bet statuses along the lifecycle. Unknown statuses rank lowest.
func (s BetStatus) rank() int {
	switch s {
	case BetStatusPending:
		return 1
	case BetStatusConfirmed:
		return 2
	case BetStatusResolved:
		return 3
	default:
		return 0
	}
}

// CanTransition reports whether a bet may move from s to next. Staying in the
// same state is allowed; moving backward is not.
func (s BetStatus) CanTransition(next BetStatus) bool {
	return next.rank() >= s.rank() && next.rank() > 0 && s.rank() > 0
}

// Bet is a user's wager on one outcome of a market.
type Bet struct {
	ID           string
	MarketID     string
	Bettor       string
	OutcomeIndex int
	Amount       string // decimal string, must be > 0
	Odds         float64
	PlacedAt     time.Time
	Status       BetStatus
}

// Validate checks the bet against the market it references. The outcome index
// must be valid for the market at placement time and the amount positive.
func (b Bet) Validate(market Market) error {
	if b.MarketID != market.ID {
		return fmt.Errorf("%w: bet %s references market %s, validated against %s",
			ErrInvalidBet, b.ID, b.MarketID, market.ID)
	}
	if !market.HasOutcome(b.OutcomeIndex) {
		return fmt.Errorf("%w: outcome index %d out of range for market %s",
			ErrInvalidBet, b.OutcomeIndex, market.ID)
	}
	amt, err := strconv.ParseFloat(b.Amount, 64)
	if err != nil || amt <= 0 {
		return fmt.Errorf("%w: amount %q must be a positive decimal", ErrInvalidBet, b.Amount)
	}
	return nil
}
