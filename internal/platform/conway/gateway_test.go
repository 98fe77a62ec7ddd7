package conway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GauravKarakoti/ConwayBets/internal/domain"
)

type readiness bool

func (r readiness) IsReady() bool { return bool(r) }

// graphqlHandler decodes the request envelope and replies with the given data
// document, recording the last variables seen.
func graphqlHandler(t *testing.T, data string, lastVars *map[string]any) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if lastVars != nil {
			*lastVars = req.Variables
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":` + data + `}`))
	}
}

func TestGateway_ListMarkets(t *testing.T) {
	var vars map[string]any
	server := httptest.NewServer(graphqlHandler(t, `{
		"markets": [
			{"id":"m2","title":"Second","creator":"acct","endTime":1700000600,"outcomes":["Yes","No"],"totalLiquidity":"5","isResolved":false,"stateHash":"bb","createdAt":1700000500},
			{"id":"m1","title":"First","creator":"acct","endTime":1700000300,"outcomes":["Yes","No"],"totalLiquidity":"3","isResolved":true,"winningOutcome":1,"stateHash":"aa","createdAt":1700000100}
		]
	}`, &vars))
	defer server.Close()

	g := NewGateway(server.URL, "app-1", readiness(true))

	markets, err := g.ListMarkets(context.Background(), ListMarketsRequest{Limit: 10, Offset: 0})
	if err != nil {
		t.Fatalf("ListMarkets: %v", err)
	}
	if len(markets) != 2 {
		t.Fatalf("len(markets) = %d, want 2", len(markets))
	}
	if vars["limit"] != float64(10) || vars["offset"] != float64(0) {
		t.Errorf("variables = %v, want limit=10 offset=0", vars)
	}
	if markets[0].ID != "m2" || markets[1].ID != "m1" {
		t.Errorf("order = [%s %s], want [m2 m1] (created desc)", markets[0].ID, markets[1].ID)
	}
	if markets[1].WinningOutcome == nil || *markets[1].WinningOutcome != 1 {
		t.Error("winning outcome lost in conversion")
	}
	if markets[0].CreatedAt != time.Unix(1700000500, 0).UTC() {
		t.Errorf("CreatedAt = %v", markets[0].CreatedAt)
	}
	if err := markets[1].Validate(); err != nil {
		t.Errorf("converted market invalid: %v", err)
	}
}

func TestGateway_ListMarkets_ClampsToLimit(t *testing.T) {
	server := httptest.NewServer(graphqlHandler(t, `{
		"markets": [
			{"id":"a","createdAt":3},
			{"id":"b","createdAt":2},
			{"id":"c","createdAt":1}
		]
	}`, nil))
	defer server.Close()

	g := NewGateway(server.URL, "app-1", readiness(true))
	markets, err := g.ListMarkets(context.Background(), ListMarketsRequest{Limit: 2})
	if err != nil {
		t.Fatalf("ListMarkets: %v", err)
	}
	if len(markets) != 2 {
		t.Errorf("len(markets) = %d, want at most limit (2)", len(markets))
	}
}

func TestGateway_ListMarkets_BadRequest(t *testing.T) {
	g := NewGateway("http://unused", "app-1", readiness(true))
	if _, err := g.ListMarkets(context.Background(), ListMarketsRequest{Limit: 0}); err == nil {
		t.Error("limit 0 should fail validation")
	}
	if _, err := g.ListMarkets(context.Background(), ListMarketsRequest{Limit: 1, Offset: -1}); err == nil {
		t.Error("negative offset should fail validation")
	}
}

func TestGateway_NotReady(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	g := NewGateway(server.URL, "app-1", readiness(false))
	_, err := g.ListMarkets(context.Background(), ListMarketsRequest{Limit: 1})
	if !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	if called {
		t.Error("gateway must not touch the network while not ready")
	}
}

func TestGateway_ErrorMapping(t *testing.T) {
	t.Run("graphql error is transport", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"errors":[{"message":"boom"}]}`))
		}))
		defer server.Close()

		g := NewGateway(server.URL, "app-1", readiness(true))
		_, err := g.GetMarket(context.Background(), "m1")
		if !errors.Is(err, domain.ErrTransport) {
			t.Errorf("err = %v, want ErrTransport", err)
		}
	})

	t.Run("garbage body is decode", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}))
		defer server.Close()

		g := NewGateway(server.URL, "app-1", readiness(true))
		_, err := g.GetMarket(context.Background(), "m1")
		if !errors.Is(err, domain.ErrDecode) {
			t.Errorf("err = %v, want ErrDecode", err)
		}
	})

	t.Run("http 500 is transport", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusInternalServerError)
		}))
		defer server.Close()

		g := NewGateway(server.URL, "app-1", readiness(true))
		_, err := g.GetMarket(context.Background(), "m1")
		if !errors.Is(err, domain.ErrTransport) {
			t.Errorf("err = %v, want ErrTransport", err)
		}
	})

	t.Run("null market is not found", func(t *testing.T) {
		server := httptest.NewServer(graphqlHandler(t, `{"market":null}`, nil))
		defer server.Close()

		g := NewGateway(server.URL, "app-1", readiness(true))
		_, err := g.GetMarket(context.Background(), "nope")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestGateway_PlaceBetReceipt(t *testing.T) {
	var vars map[string]any
	server := httptest.NewServer(graphqlHandler(t, `{"placeBet":{"id":"42","status":"PENDING"}}`, &vars))
	defer server.Close()

	g := NewGateway(server.URL, "app-1", readiness(true))
	receipt, err := g.PlaceBet(context.Background(), PlaceBetRequest{
		MarketID:     "m1",
		Bettor:       "acct",
		OutcomeIndex: 1,
		Amount:       "2.5",
	})
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	if receipt.ID != "42" || receipt.Status != domain.ReceiptStatusPending {
		t.Errorf("receipt = %+v", receipt)
	}
	if vars["marketId"] != "m1" || vars["outcomeIndex"] != float64(1) || vars["amount"] != "2.5" {
		t.Errorf("variables = %v", vars)
	}
}

func TestGateway_CreateMarketReceipt(t *testing.T) {
	server := httptest.NewServer(graphqlHandler(t, `{"createMarket":{"id":"7","status":"finalized"}}`, nil))
	defer server.Close()

	g := NewGateway(server.URL, "app-1", readiness(true))
	receipt, err := g.CreateMarket(context.Background(), CreateMarketRequest{
		Creator:  "acct",
		Title:    "New market",
		EndTime:  time.Now().Add(time.Hour),
		Outcomes: []string{"Yes", "No"},
	})
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	if receipt.Status != domain.ReceiptStatusConfirmed {
		t.Errorf("status = %s, want confirmed (finalized maps to confirmed)", receipt.Status)
	}

	if _, err := g.CreateMarket(context.Background(), CreateMarketRequest{}); err == nil {
		t.Error("empty create request should fail validation")
	}
}

func TestGateway_UserPortfolio(t *testing.T) {
	server := httptest.NewServer(graphqlHandler(t, `{
		"userPortfolio": {
			"totalValue": "120.5",
			"activeBets": 2,
			"resolvedBets": 1,
			"totalProfit": "20.5",
			"positions": [
				{"marketId":"m1","marketTitle":"First","outcomeIndex":0,"outcomeLabel":"Yes","amount":"10","currentValue":"12","potentialProfit":"2"}
			]
		}
	}`, nil))
	defer server.Close()

	g := NewGateway(server.URL, "app-1", readiness(true))
	p, err := g.UserPortfolio(context.Background(), "acct")
	if err != nil {
		t.Fatalf("UserPortfolio: %v", err)
	}
	if p.Address != "acct" || p.ActiveBets != 2 || len(p.Positions) != 1 {
		t.Errorf("portfolio = %+v", p)
	}
	if p.Positions[0].MarketTitle != "First" {
		t.Errorf("position title = %q", p.Positions[0].MarketTitle)
	}
}
