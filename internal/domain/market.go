package domain

import (
	"fmt"
	"time"
)

// Market is an immutable snapshot of one prediction market as observed on the
// Conway node. Later updates replace, never mutate, a previously fetched copy.
type Market struct {
	ID             string
	Title          string
	Description    string
	Creator        string
	EndTime        time.Time
	Outcomes       []string
	TotalLiquidity string // decimal string, node-side precision preserved
	Resolved       bool
	WinningOutcome *int
	Fingerprint    string // hex digest of observable market state
	CreatedAt      time.Time
}

// Validate checks the market's structural invariant: a winning outcome is
// present iff the market is resolved, and it indexes into Outcomes.
func (m Market) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("market: empty id")
	}
	if m.Resolved {
		if m.WinningOutcome == nil {
			return fmt.Errorf("market %s: resolved without winning outcome", m.ID)
		}
		if !m.HasOutcome(*m.WinningOutcome) {
			return fmt.Errorf("market %s: winning outcome %d out of range", m.ID, *m.WinningOutcome)
		}
		return nil
	}
	if m.WinningOutcome != nil {
		return fmt.Errorf("market %s: winning outcome set on unresolved market", m.ID)
	}
	return nil
}

// HasOutcome reports whether i is a valid index into the market's outcomes.
func (m Market) HasOutcome(i int) bool {
	return i >= 0 && i < len(m.Outcomes)
}

// Changed reports whether other represents a different observable state than m,
// comparing fingerprints when both carry one.
func (m Market) Changed(other Market) bool {
	if m.Fingerprint != "" && other.Fingerprint != "" {
		return m.Fingerprint != other.Fingerprint
	}
	return true
}
