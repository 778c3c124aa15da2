package data

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// ParseSelection turns "1,3-5" into a filter over Item.Index. Empty or "all"
// selects everything.
func ParseSelection(s string) (ItemFilter, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return AcceptAll, nil
	}
	type span struct{ lo, hi int }
	var spans []span
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		a, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil || a < 1 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSelection, part)
		}
		b := a
		if isRange {
			b, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil || b < a {
				return nil, fmt.Errorf("%w: %q", ErrInvalidSelection, part)
			}
		}
		spans = append(spans, span{a, b})
	}
	if len(spans) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSelection, s)
	}
	return func(it Item) bool {
		for _, sp := range spans {
			if it.Index >= sp.lo && it.Index <= sp.hi {
				return true
			}
		}
		return false
	}, nil
}

// MatchTitle selects items whose title fuzzily contains query, ignoring case
// and diacritics. An empty query selects everything.
func MatchTitle(query string) ItemFilter {
	query = strings.TrimSpace(query)
	if query == "" {
		return AcceptAll
	}
	return func(it Item) bool {
		return fuzzy.MatchNormalizedFold(query, it.Title)
	}
}

// All selects items accepted by every filter. Nil filters are ignored.
func All(filters ...ItemFilter) ItemFilter {
	return func(it Item) bool {
		for _, f := range filters {
			if f != nil && !f(it) {
				return false
			}
		}
		return true
	}
}
