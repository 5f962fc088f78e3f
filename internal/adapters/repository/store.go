// Package repository persists snapshots, events, outcomes, performance
// records and provider weights.
package repository

import (
	"context"
	"time"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
)

// Group is a (league, market) pair weights and performance are kept for.
type Group struct {
	League model.LeagueID
	Market model.MarketType
}

// Store provides read/write access to persisted state.
type Store interface {
	// SaveSnapshot stores a snapshot. Saving an existing ID is a no-op.
	SaveSnapshot(ctx context.Context, s model.Snapshot) error
	// SnapshotsForEvent returns the event's snapshots captured at or after since.
	SnapshotsForEvent(ctx context.Context, id model.EventID, since time.Time) ([]model.Snapshot, error)
	// LatestCaptures returns the newest capture time per event.
	LatestCaptures(ctx context.Context, ids []model.EventID) (map[model.EventID]time.Time, error)

	SaveEvent(ctx context.Context, e model.Event) error
	// Event returns ErrNotFound for unknown events.
	Event(ctx context.Context, id model.EventID) (model.Event, error)
	// EventsBetween returns events kicking off in [from, to].
	EventsBetween(ctx context.Context, from, to time.Time) ([]model.Event, error)

	// SaveOutcome records a final result and marks the event finished.
	SaveOutcome(ctx context.Context, o model.MatchOutcome) error
	// ResolvedEvents returns events of the group finalized in [from, to)
	// together with all of their snapshots.
	ResolvedEvents(ctx context.Context, g Group, from, to time.Time) ([]model.ResolvedEvent, error)

	// Groups lists every (league, market) pair with at least one event.
	Groups(ctx context.Context) ([]Group, error)

	// LatestPerformance returns the newest record of a provider in the group,
	// or ErrNotFound.
	LatestPerformance(ctx context.Context, g Group, provider model.ProviderID) (model.PerformanceRecord, error)
	// SavePerformance inserts r, or overwrites the record with r.ID when replace is set.
	SavePerformance(ctx context.Context, r model.PerformanceRecord, replace bool) error
	// CurrentPerformance returns the newest record per provider of the group.
	CurrentPerformance(ctx context.Context, g Group) ([]model.PerformanceRecord, error)

	// Weights returns the current weights of a group.
	Weights(ctx context.Context, g Group) ([]model.ProviderWeight, error)
	// ReplaceWeights atomically swaps the weights of a group.
	ReplaceWeights(ctx context.Context, g Group, rows []model.ProviderWeight) error

	Close() error
}
