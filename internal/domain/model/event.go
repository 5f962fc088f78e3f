package model

import "time"

// EventStatus is the lifecycle state of a scheduled match.
type EventStatus string

const (
	StatusScheduled EventStatus = "scheduled"
	StatusInPlay    EventStatus = "in_play"
	StatusFinished  EventStatus = "finished"
	StatusPostponed EventStatus = "postponed"
	StatusCancelled EventStatus = "cancelled"
)

// Event is a scheduled match in a league.
type Event struct {
	ID       EventID     `json:"id"`
	LeagueID LeagueID    `json:"league_id"`
	Market   MarketType  `json:"market"`
	Kickoff  time.Time   `json:"kickoff"`
	Status   EventStatus `json:"status"`
}

// MatchOutcome is the final result of an event.
type MatchOutcome struct {
	EventID     EventID   `json:"event_id"`
	Actual      Outcome   `json:"actual"`
	FinalizedAt time.Time `json:"finalized_at"`
}

// ResolvedEvent joins a finished event with its outcome and every snapshot
// captured for it.
type ResolvedEvent struct {
	Event     Event
	Outcome   MatchOutcome
	Snapshots []Snapshot
}
