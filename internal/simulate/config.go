// Package simulate drives a running aggregator over HTTP with synthetic
// fixtures and provider odds, then checks the consensus it serves.
package simulate

import (
	"time"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL   string           // Base URL of the service
	Events    int              // Number of fixtures to create
	Providers int              // Number of providers quoting each fixture
	League    model.LeagueID   // League the fixtures belong to
	Market    model.MarketType // Market quoted by every provider
	Margin    float64          // Bookmaker overround applied to generated odds, e.g. 0.05
	Noise     float64          // Max absolute deviation of a provider from the true probability
	Seed      uint64           // Seed for the random source; 0 picks one from the clock
	Workers   int              // Number of concurrent workers
	Timeout   time.Duration    // HTTP request timeout
	Settle    time.Duration    // Wait between submission and verification
	Output    string           // Output file for generated payloads; empty skips saving
	Verbose   bool             // Log every failed request
}

// Fixture is the body of PUT /events/{id} plus its generated ground truth.
type Fixture struct {
	EventID  model.EventID    `json:"event_id"`
	LeagueID model.LeagueID   `json:"league_id"`
	Market   model.MarketType `json:"market"`
	Kickoff  time.Time        `json:"kickoff"`

	// Truth is the home probability the providers were drawn around.
	Truth float64 `json:"truth"`
}

// Consensus mirrors the consensus response of the API.
type Consensus struct {
	EventID               model.EventID  `json:"event_id"`
	Home                  *float64       `json:"home"`
	Draw                  *float64       `json:"draw"`
	Away                  *float64       `json:"away"`
	Tip                   *model.Outcome `json:"tip"`
	Confidence            *float64       `json:"confidence"`
	ContributingProviders int            `json:"contributing_providers"`
}

// AckResponse represents the response from snapshot submission.
type AckResponse struct {
	Status     string `json:"status"`
	Duplicate  bool   `json:"duplicate"`
	SnapshotID string `json:"snapshot_id"`
}

// Stats holds run statistics.
type Stats struct {
	FixturesRegistered int
	SnapshotsSubmitted int
	SnapshotsAccepted  int
	SnapshotsDuplicate int
	SnapshotsFailed    int
	ConsensusChecked   int
	ConsensusMismatch  int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
