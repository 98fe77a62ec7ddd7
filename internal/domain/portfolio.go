package domain

// PortfolioPosition is one denormalized position row inside a user portfolio.
// Positions are a read model derived on the node; they are never mutated
// independently on the client.
type PortfolioPosition struct {
	MarketID        string
	MarketTitle     string // title snapshot at read time
	OutcomeIndex    int
	OutcomeLabel    string
	Amount          string
	CurrentValue    string
	PotentialProfit string
}

// UserPortfolio aggregates a user's betting activity across markets.
type UserPortfolio struct {
	Address      string
	TotalValue   string
	ActiveBets   int
	ResolvedBets int
	TotalProfit  string
	Positions    []PortfolioPosition
}
