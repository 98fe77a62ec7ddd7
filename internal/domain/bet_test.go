package domain

import "testing"

func TestBetStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to BetStatus
		want     bool
	}{
		{BetStatusPending, BetStatusConfirmed, true},
		{BetStatusPending, BetStatusResolved, true},
		{BetStatusConfirmed, BetStatusResolved, true},
		{BetStatusConfirmed, BetStatusPending, false},
		{BetStatusResolved, BetStatusConfirmed, false},
		{BetStatusResolved, BetStatusPending, false},
		{BetStatusPending, BetStatusPending, true},
		{BetStatusPending, BetStatus("bogus"), false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestBet_Validate(t *testing.T) {
	market := Market{ID: "m1", Outcomes: []string{"Yes", "No"}}

	valid := Bet{ID: "b1", MarketID: "m1", OutcomeIndex: 1, Amount: "10.5", Status: BetStatusPending}
	if err := valid.Validate(market); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	bad := valid
	bad.OutcomeIndex = 2
	if err := bad.Validate(market); err == nil {
		t.Error("out-of-range outcome index should be invalid")
	}

	bad = valid
	bad.Amount = "0"
	if err := bad.Validate(market); err == nil {
		t.Error("zero amount should be invalid")
	}

	bad = valid
	bad.Amount = "abc"
	if err := bad.Validate(market); err == nil {
		t.Error("non-decimal amount should be invalid")
	}

	bad = valid
	bad.MarketID = "m2"
	if err := bad.Validate(market); err == nil {
		t.Error("market mismatch should be invalid")
	}
}
