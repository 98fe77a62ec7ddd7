// Package conway is the client for the ConwayBets application on a Conway
// node: a GraphQL query/mutation gateway, a GraphQL-over-WebSocket
// subscription transport, and a server-sent-event stream reader. The gateway
// is stateless; readiness comes from the connection handle it is given.
package conway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/GauravKarakoti/ConwayBets/internal/domain"
)

// Readiness reports whether the underlying connection has been established.
// The gateway never attempts a call while the connection is not ready.
type Readiness interface {
	IsReady() bool
}

// alwaysReady is used when no connection handle is supplied (tests, tools).
type alwaysReady struct{}

func (alwaysReady) IsReady() bool { return true }

// Gateway runs typed queries and mutations against the ConwayBets application.
// It performs no retries and never partially applies a mutation's side effects
// to local state: every call either returns a decoded result or an error.
type Gateway struct {
	queryURL   string
	conn       Readiness
	httpClient *http.Client
}

// NewGateway creates a gateway for the application hosted at endpointURL.
//
// endpointURL is the node's GraphQL root, e.g. "http://localhost:8080";
// the application's query URL is derived from it and applicationID.
func NewGateway(endpointURL, applicationID string, conn Readiness) *Gateway {
	if conn == nil {
		conn = alwaysReady{}
	}
	return &Gateway{
		queryURL: strings.TrimRight(endpointURL, "/") + "/applications/" + applicationID,
		conn:     conn,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListMarkets returns one page of markets ordered by creation time descending.
// At most req.Limit items are returned; a shorter page is the authoritative
// signal that no further pages exist.
func (g *Gateway) ListMarkets(ctx context.Context, req ListMarketsRequest) ([]domain.Market, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("conway: list markets: %w", err)
	}

	query := `
		query Markets($limit: Int!, $offset: Int!) {
			markets(limit: $limit, offset: $offset) {` + marketFields + `
			}
		}
	`
	respData, err := g.doQuery(ctx, query, map[string]any{
		"limit":  req.Limit,
		"offset": req.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("conway: list markets: %w", err)
	}

	var result struct {
		Markets []APIMarket `json:"markets"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("conway: %w: list markets: %v", domain.ErrDecode, err)
	}

	markets := make([]domain.Market, 0, len(result.Markets))
	for i := range result.Markets {
		markets = append(markets, result.Markets[i].ToDomain())
	}
	// Defensive clamp: the page contract is "at most limit".
	if len(markets) > req.Limit {
		markets = markets[:req.Limit]
	}
	return markets, nil
}

// GetMarket returns a single market by its ID.
func (g *Gateway) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	query := `
		query Market($id: String!) {
			market(id: $id) {` + marketFields + `
			}
		}
	`
	respData, err := g.doQuery(ctx, query, map[string]any{"id": id})
	if err != nil {
		return domain.Market{}, fmt.Errorf("conway: get market %s: %w", id, err)
	}

	var result struct {
		Market *APIMarket `json:"market"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return domain.Market{}, fmt.Errorf("conway: %w: get market %s: %v", domain.ErrDecode, id, err)
	}
	if result.Market == nil {
		return domain.Market{}, fmt.Errorf("conway: get market: %w: %s", domain.ErrNotFound, id)
	}
	return result.Market.ToDomain(), nil
}

// MarketPayload returns the raw market document for one market, shaped
// exactly like the push-transport payloads. The polling transport uses this
// so consumers cannot tell which transport delivered an update.
func (g *Gateway) MarketPayload(ctx context.Context, id string) (json.RawMessage, error) {
	query := `
		query Market($id: String!) {
			market(id: $id) {` + marketFields + `
			}
		}
	`
	respData, err := g.doQuery(ctx, query, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("conway: market payload %s: %w", id, err)
	}

	var result struct {
		Market json.RawMessage `json:"market"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("conway: %w: market payload %s: %v", domain.ErrDecode, id, err)
	}
	if len(result.Market) == 0 || string(result.Market) == "null" {
		return nil, fmt.Errorf("conway: market payload: %w: %s", domain.ErrNotFound, id)
	}
	return result.Market, nil
}

// CreateMarket submits a create-market mutation and returns its receipt. The
// gateway does not poll for finalization; a pending receipt stays pending
// until the caller re-queries or a live update names the market.
func (g *Gateway) CreateMarket(ctx context.Context, req CreateMarketRequest) (domain.Receipt, error) {
	if err := req.validate(); err != nil {
		return domain.Receipt{}, fmt.Errorf("conway: create market: %w", err)
	}

	mutation := `
		mutation CreateMarket($creator: String!, $title: String!, $description: String!, $endTime: Int!, $outcomes: [String!]!) {
			createMarket(creator: $creator, title: $title, description: $description, endTime: $endTime, outcomes: $outcomes) {
				id
				status
			}
		}
	`
	respData, err := g.doQuery(ctx, mutation, map[string]any{
		"creator":     req.Creator,
		"title":       req.Title,
		"description": req.Description,
		"endTime":     req.EndTime.Unix(),
		"outcomes":    req.Outcomes,
	})
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("conway: create market: %w", err)
	}

	var result struct {
		CreateMarket APIReceipt `json:"createMarket"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return domain.Receipt{}, fmt.Errorf("conway: %w: create market receipt: %v", domain.ErrDecode, err)
	}
	return result.CreateMarket.ToDomain(), nil
}

// PlaceBet submits a place-bet mutation and returns its receipt.
func (g *Gateway) PlaceBet(ctx context.Context, req PlaceBetRequest) (domain.Receipt, error) {
	if err := req.validate(); err != nil {
		return domain.Receipt{}, fmt.Errorf("conway: place bet: %w", err)
	}

	mutation := `
		mutation PlaceBet($marketId: String!, $bettor: String!, $outcomeIndex: Int!, $amount: String!) {
			placeBet(marketId: $marketId, bettor: $bettor, outcomeIndex: $outcomeIndex, amount: $amount) {
				id
				status
			}
		}
	`
	respData, err := g.doQuery(ctx, mutation, map[string]any{
		"marketId":     req.MarketID,
		"bettor":       req.Bettor,
		"outcomeIndex": req.OutcomeIndex,
		"amount":       req.Amount,
	})
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("conway: place bet: %w", err)
	}

	var result struct {
		PlaceBet APIReceipt `json:"placeBet"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return domain.Receipt{}, fmt.Errorf("conway: %w: place bet receipt: %v", domain.ErrDecode, err)
	}
	return result.PlaceBet.ToDomain(), nil
}

// MarketBets returns the bets recorded for one market.
func (g *Gateway) MarketBets(ctx context.Context, marketID string) ([]domain.Bet, error) {
	query := `
		query MarketBets($marketId: String!) {
			marketBets(marketId: $marketId) {
				id
				marketId
				bettor
				outcomeIndex
				amount
				odds
				placedAt
				status
			}
		}
	`
	respData, err := g.doQuery(ctx, query, map[string]any{"marketId": marketID})
	if err != nil {
		return nil, fmt.Errorf("conway: market bets %s: %w", marketID, err)
	}

	var result struct {
		MarketBets []APIBet `json:"marketBets"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("conway: %w: market bets %s: %v", domain.ErrDecode, marketID, err)
	}

	bets := make([]domain.Bet, 0, len(result.MarketBets))
	for i := range result.MarketBets {
		bets = append(bets, result.MarketBets[i].ToDomain())
	}
	return bets, nil
}

// UserPortfolio returns the aggregated portfolio read model for an address.
func (g *Gateway) UserPortfolio(ctx context.Context, address string) (domain.UserPortfolio, error) {
	query := `
		query UserPortfolio($address: String!) {
			userPortfolio(address: $address) {
				totalValue
				activeBets
				resolvedBets
				totalProfit
				positions {
					marketId
					marketTitle
					outcomeIndex
					outcomeLabel
					amount
					currentValue
					potentialProfit
				}
			}
		}
	`
	respData, err := g.doQuery(ctx, query, map[string]any{"address": address})
	if err != nil {
		return domain.UserPortfolio{}, fmt.Errorf("conway: user portfolio %s: %w", address, err)
	}

	var result struct {
		UserPortfolio *APIPortfolio `json:"userPortfolio"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return domain.UserPortfolio{}, fmt.Errorf("conway: %w: user portfolio: %v", domain.ErrDecode, err)
	}
	if result.UserPortfolio == nil {
		return domain.UserPortfolio{}, fmt.Errorf("conway: user portfolio: %w: %s", domain.ErrNotFound, address)
	}
	return result.UserPortfolio.ToDomain(address), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doQuery executes one GraphQL request and returns the raw "data" field.
// It checks connection readiness first and never touches the network while
// the connection is down.
func (g *Gateway) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	if !g.conn.IsReady() {
		return nil, domain.ErrNotReady
	}

	reqBody := graphqlRequest{
		Query:     query,
		Variables: variables,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.queryURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: HTTP 404: %s", domain.ErrNotFound, string(body))
		}
		return nil, fmt.Errorf("%w: HTTP %d: %s", domain.ErrTransport, resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("%w: graphql error: %s", domain.ErrTransport, gqlResp.Errors[0].Message)
	}
	return gqlResp.Data, nil
}
