// Package model contains domain models passed between layers.
package model

// Identities are opaque strings owned by the persistence layer.
type (
	ProviderID string
	EventID    string
	LeagueID   string
)

// MarketType identifies the outcome set of a betting market.
type MarketType string

const (
	MarketTwoWay   MarketType = "moneyline_2way"
	MarketThreeWay MarketType = "moneyline_3way"
)

// Outcome is one possible result of an event.
type Outcome string

const (
	OutcomeHome Outcome = "home"
	OutcomeDraw Outcome = "draw"
	OutcomeAway Outcome = "away"
)

var (
	twoWayOutcomes   = []Outcome{OutcomeHome, OutcomeAway}
	threeWayOutcomes = []Outcome{OutcomeHome, OutcomeDraw, OutcomeAway}
)

// Valid reports whether m is a supported market type.
func (m MarketType) Valid() bool {
	return m == MarketTwoWay || m == MarketThreeWay
}

// Outcomes returns the market's outcomes in canonical order (home, draw, away).
// The returned slice must not be modified.
func (m MarketType) Outcomes() []Outcome {
	switch m {
	case MarketTwoWay:
		return twoWayOutcomes
	case MarketThreeWay:
		return threeWayOutcomes
	default:
		return nil
	}
}

// Has reports whether o is an outcome of market m.
func (m MarketType) Has(o Outcome) bool {
	for _, x := range m.Outcomes() {
		if x == o {
			return true
		}
	}
	return false
}

// Valid reports whether o is one of the known outcomes.
func (o Outcome) Valid() bool {
	return o == OutcomeHome || o == OutcomeDraw || o == OutcomeAway
}

// OutcomeFromResult maps the match result vocabulary (home_win, away_win, draw)
// onto an Outcome. Unknown values return false.
func OutcomeFromResult(result string) (Outcome, bool) {
	switch result {
	case "home_win", "home":
		return OutcomeHome, true
	case "away_win", "away":
		return OutcomeAway, true
	case "draw":
		return OutcomeDraw, true
	default:
		return "", false
	}
}
