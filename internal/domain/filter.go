package domain

import "strings"

// Filter selects markets client-side. The zero value matches everything.
// Matching is a pure predicate with no side effects.
type Filter struct {
	// Resolved, when non-nil, requires an exact match on the resolved flag.
	Resolved *bool

	// Creator, when non-empty, requires a case-insensitive match on the
	// creator address.
	Creator string

	// Search, when non-empty, requires a case-insensitive substring match
	// over title or description.
	Search string
}

// Matches reports whether the market passes the filter.
func (f Filter) Matches(m Market) bool {
	if f.Resolved != nil && m.Resolved != *f.Resolved {
		return false
	}
	if f.Creator != "" && !strings.EqualFold(f.Creator, m.Creator) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(m.Title), needle) &&
			!strings.Contains(strings.ToLower(m.Description), needle) {
			return false
		}
	}
	return true
}

// Apply returns the subset of markets passing the filter, preserving order.
func (f Filter) Apply(markets []Market) []Market {
	if f.IsZero() {
		return markets
	}
	out := make([]Market, 0, len(markets))
	for _, m := range markets {
		if f.Matches(m) {
			out = append(out, m)
		}
	}
	return out
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f.Resolved == nil && f.Creator == "" && f.Search == ""
}

// Equal reports whether two filters select the same markets. Used to make
// filter updates content-stable: setting an equal filter is a no-op.
func (f Filter) Equal(other Filter) bool {
	if (f.Resolved == nil) != (other.Resolved == nil) {
		return false
	}
	if f.Resolved != nil && *f.Resolved != *other.Resolved {
		return false
	}
	return strings.EqualFold(f.Creator, other.Creator) && f.Search == other.Search
}
