package model

import "time"

// PerformanceRecord summarizes a provider's accuracy over a window for one
// (league, market) group. Brier and LogLoss are time-decayed averages.
type PerformanceRecord struct {
	ID          string     `json:"id"`
	ProviderID  ProviderID `json:"provider_id"`
	LeagueID    LeagueID   `json:"league_id"`
	Market      MarketType `json:"market"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	Brier       float64    `json:"brier"`
	LogLoss     float64    `json:"log_loss"`
	Samples     int        `json:"samples"`
	ComputedAt  time.Time  `json:"computed_at"`
}

// ProviderWeight is the persisted weight of a provider for a (league, market) group.
type ProviderWeight struct {
	ProviderID ProviderID `json:"provider_id"`
	LeagueID   LeagueID   `json:"league_id"`
	Market     MarketType `json:"market"`
	Weight     float64    `json:"weight"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ConsensusResult is the aggregated view of an event. A nil Probabilities
// means no consensus is available yet.
type ConsensusResult struct {
	EventID               EventID        `json:"event_id"`
	Market                MarketType     `json:"market"`
	Probabilities         *Probabilities `json:"probabilities"`
	Tip                   Outcome        `json:"tip,omitempty"`
	Confidence            float64        `json:"confidence"`
	ContributingProviders int            `json:"contributing_providers"`
	LastUpdated           time.Time      `json:"last_updated"`
}

// Empty reports whether r is the "no consensus yet" result.
func (r ConsensusResult) Empty() bool {
	return r.Probabilities == nil
}

// NoConsensus builds the empty result for an event.
func NoConsensus(id EventID, m MarketType) ConsensusResult {
	return ConsensusResult{EventID: id, Market: m}
}
