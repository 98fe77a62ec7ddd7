package conway

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/GauravKarakoti/ConwayBets/internal/domain"
)

// --------------------------------------------------------------------------
// GraphQL envelopes
// --------------------------------------------------------------------------

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// --------------------------------------------------------------------------
// Typed operation requests
//
// Each gateway operation takes a dedicated request struct so malformed
// variables are a compile-time error, not a runtime one. The structs validate
// themselves before any bytes hit the wire.
// --------------------------------------------------------------------------

// ListMarketsRequest pages through markets ordered by creation time descending.
type ListMarketsRequest struct {
	Limit  int
	Offset int
}

func (r ListMarketsRequest) validate() error {
	if r.Limit <= 0 {
		return fmt.Errorf("limit must be > 0, got %d", r.Limit)
	}
	if r.Offset < 0 {
		return fmt.Errorf("offset must be >= 0, got %d", r.Offset)
	}
	return nil
}

// CreateMarketRequest creates a new market owned by Creator.
type CreateMarketRequest struct {
	Creator     string
	Title       string
	Description string
	EndTime     time.Time
	Outcomes    []string
}

func (r CreateMarketRequest) validate() error {
	if r.Creator == "" {
		return fmt.Errorf("creator must not be empty")
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("title must not be empty")
	}
	if len(r.Outcomes) < 2 {
		return fmt.Errorf("need at least 2 outcomes, got %d", len(r.Outcomes))
	}
	if r.EndTime.IsZero() {
		return fmt.Errorf("end time must be set")
	}
	return nil
}

// PlaceBetRequest places a bet on one outcome of a market.
type PlaceBetRequest struct {
	MarketID     string
	Bettor       string
	OutcomeIndex int
	Amount       string // decimal string > 0
}

func (r PlaceBetRequest) validate() error {
	if r.MarketID == "" {
		return fmt.Errorf("market id must not be empty")
	}
	if r.Bettor == "" {
		return fmt.Errorf("bettor must not be empty")
	}
	if r.OutcomeIndex < 0 {
		return fmt.Errorf("outcome index must be >= 0, got %d", r.OutcomeIndex)
	}
	if r.Amount == "" {
		return fmt.Errorf("amount must not be empty")
	}
	return nil
}

// --------------------------------------------------------------------------
// Node API DTOs
// --------------------------------------------------------------------------

// APIMarket is a market as returned by the Conway node. Timestamps are unix
// seconds; the state hash is hex-encoded.
type APIMarket struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Creator        string   `json:"creator"`
	EndTime        int64    `json:"endTime"`
	Outcomes       []string `json:"outcomes"`
	TotalLiquidity string   `json:"totalLiquidity"`
	IsResolved     bool     `json:"isResolved"`
	WinningOutcome *int     `json:"winningOutcome"`
	StateHash      string   `json:"stateHash"`
	CreatedAt      int64    `json:"createdAt"`
}

// ToDomain converts the DTO to an immutable domain snapshot.
func (m *APIMarket) ToDomain() domain.Market {
	return domain.Market{
		ID:             m.ID,
		Title:          m.Title,
		Description:    m.Description,
		Creator:        m.Creator,
		EndTime:        time.Unix(m.EndTime, 0).UTC(),
		Outcomes:       m.Outcomes,
		TotalLiquidity: m.TotalLiquidity,
		Resolved:       m.IsResolved,
		WinningOutcome: m.WinningOutcome,
		Fingerprint:    m.StateHash,
		CreatedAt:      time.Unix(m.CreatedAt, 0).UTC(),
	}
}

// APIBet is a bet as returned by the Conway node.
type APIBet struct {
	ID           string  `json:"id"`
	MarketID     string  `json:"marketId"`
	Bettor       string  `json:"bettor"`
	OutcomeIndex int     `json:"outcomeIndex"`
	Amount       string  `json:"amount"`
	Odds         float64 `json:"odds"`
	PlacedAt     int64   `json:"placedAt"`
	Status       string  `json:"status"`
}

// ToDomain converts the DTO to a domain Bet.
func (b *APIBet) ToDomain() domain.Bet {
	return domain.Bet{
		ID:           b.ID,
		MarketID:     b.MarketID,
		Bettor:       b.Bettor,
		OutcomeIndex: b.OutcomeIndex,
		Amount:       b.Amount,
		Odds:         b.Odds,
		PlacedAt:     time.Unix(b.PlacedAt, 0).UTC(),
		Status:       mapBetStatus(b.Status),
	}
}

func mapBetStatus(s string) domain.BetStatus {
	switch strings.ToLower(s) {
	case "confirmed", "finalized":
		return domain.BetStatusConfirmed
	case "resolved":
		return domain.BetStatusResolved
	default:
		return domain.BetStatusPending
	}
}

// APIPosition is one portfolio position row.
type APIPosition struct {
	MarketID        string `json:"marketId"`
	MarketTitle     string `json:"marketTitle"`
	OutcomeIndex    int    `json:"outcomeIndex"`
	OutcomeLabel    string `json:"outcomeLabel"`
	Amount          string `json:"amount"`
	CurrentValue    string `json:"currentValue"`
	PotentialProfit string `json:"potentialProfit"`
}

// APIPortfolio is a user portfolio as returned by the Conway node.
type APIPortfolio struct {
	TotalValue   string        `json:"totalValue"`
	ActiveBets   int           `json:"activeBets"`
	ResolvedBets int           `json:"resolvedBets"`
	TotalProfit  string        `json:"totalProfit"`
	Positions    []APIPosition `json:"positions"`
}

// ToDomain converts the DTO to a domain UserPortfolio.
func (p *APIPortfolio) ToDomain(address string) domain.UserPortfolio {
	positions := make([]domain.PortfolioPosition, 0, len(p.Positions))
	for _, pos := range p.Positions {
		positions = append(positions, domain.PortfolioPosition{
			MarketID:        pos.MarketID,
			MarketTitle:     pos.MarketTitle,
			OutcomeIndex:    pos.OutcomeIndex,
			OutcomeLabel:    pos.OutcomeLabel,
			Amount:          pos.Amount,
			CurrentValue:    pos.CurrentValue,
			PotentialProfit: pos.PotentialProfit,
		})
	}
	return domain.UserPortfolio{
		Address:      address,
		TotalValue:   p.TotalValue,
		ActiveBets:   p.ActiveBets,
		ResolvedBets: p.ResolvedBets,
		TotalProfit:  p.TotalProfit,
		Positions:    positions,
	}
}

// APIReceipt acknowledges a mutation. The node reports "pending" or
// "finalized"; anything it rejects comes back as "failed".
type APIReceipt struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ToDomain converts the DTO to a domain Receipt.
func (r *APIReceipt) ToDomain() domain.Receipt {
	return domain.Receipt{
		ID:     r.ID,
		Status: mapReceiptStatus(r.Status),
	}
}

func mapReceiptStatus(s string) domain.ReceiptStatus {
	switch strings.ToLower(s) {
	case "confirmed", "finalized":
		return domain.ReceiptStatusConfirmed
	case "failed", "rejected":
		return domain.ReceiptStatusFailed
	default:
		return domain.ReceiptStatusPending
	}
}

// marketFields is the shared GraphQL selection set for market payloads.
const marketFields = `
	id
	title
	description
	creator
	endTime
	outcomes
	totalLiquidity
	isResolved
	winningOutcome
	stateHash
	createdAt`
